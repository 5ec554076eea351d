package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"cardprobe/internal/keys"
	"cardprobe/internal/mifare"
	"cardprobe/internal/ops"
	"cardprobe/internal/radio"
	"cardprobe/internal/radio/pcsc"
	"cardprobe/internal/reader"
	"cardprobe/internal/storage"
)

// session is the radio, store and sequencer a headless command works on.
type session struct {
	store *storage.Dir
	seq   *ops.Sequencer
	stats keys.LoadStats
	close radio.CloseFunc
}

func openSession(a *app) (*session, error) {
	store, err := openStore(a)
	if err != nil {
		return nil, err
	}
	if err := store.Ready(); err != nil {
		return nil, err
	}
	opts, err := radioOptions(a.cfg)
	if err != nil {
		return nil, err
	}
	front, closeRadio, err := radio.Open(opts, a.log)
	if err != nil {
		return nil, err
	}
	if c, ok := front.(mifare.Checker); ok {
		if err := c.Ready(); err != nil {
			_ = closeRadio()
			return nil, fmt.Errorf("radio not ready: %w", err)
		}
	}

	dict, stats, err := keys.Load(store.FS(), a.cfg.Storage.KeyFile, a.cfg.Keys.Capacity)
	if err != nil {
		a.log.WithError(err).Warn("key file unreadable, using defaults")
	}
	auth := mifare.NewAuthenticator(front, dict, a.log)
	return &session{
		store: store,
		seq:   ops.NewSequencer(front, auth, store, sequencerSettings(a), a.log),
		stats: stats,
		close: closeRadio,
	}, nil
}

func (s *session) Close(log logrus.FieldLogger) {
	if err := s.close(); err != nil {
		log.WithError(err).Warn("radio close failed")
	}
}

func printReport(w io.Writer, r ops.Report) error {
	fmt.Fprintln(w, r.Title())
	for _, line := range r.Lines() {
		fmt.Fprintln(w, "  "+line)
	}
	if !r.OK() {
		if r.Err != nil {
			return fmt.Errorf("%s: %w", r.Outcome, r.Err)
		}
		return errors.New(r.Outcome.String())
	}
	return nil
}

func newIdentifyCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "identify",
		Short: "Detect a card and print its UID and family",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(a)
			if err != nil {
				return err
			}
			defer s.Close(a.log)

			r := ops.Run(cmd.Context(), s.seq.Classify(), nil, nil)
			out := cmd.OutOrStdout()
			if r.OK() {
				fmt.Fprintln(out, "UID "+r.Card.String())
			}
			return printReport(out, r)
		},
	}
}

func newDumpCmd(a *app) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "dump",
		Short: "Dump all 64 blocks of a MIFARE Classic 1K card to storage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(a)
			if err != nil {
				return err
			}
			defer s.Close(a.log)

			confirm := func(prompt string) bool {
				if force {
					return true
				}
				return askYesNo(cmd.InOrStdin(), cmd.ErrOrStderr(), prompt)
			}
			progress := func(p ops.Progress) {
				if p.Dump != nil && isTerminal(os.Stderr) {
					fmt.Fprintf(cmd.ErrOrStderr(), "\rblock %2d/%d", p.Done, p.Total)
					if p.Done == p.Total {
						fmt.Fprintln(cmd.ErrOrStderr())
					}
				}
			}
			r := ops.Run(cmd.Context(), s.seq.Dump(), confirm, progress)
			return printReport(cmd.OutOrStdout(), r)
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing dump without asking")
	return cmd
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// askYesNo prompts on a terminal. Anything but y/yes declines, and so does
// a non-interactive stdin.
func askYesNo(in io.Reader, out io.Writer, prompt string) bool {
	if f, ok := in.(*os.File); ok && !isTerminal(f) {
		return false
	}
	fmt.Fprintf(out, "%s [y/N] ", prompt)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}

func newKeysCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "keys",
		Short: "Parse the key file and print the dictionary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(a)
			if err != nil {
				return err
			}
			dict, stats, err := keys.Load(store.FS(), a.cfg.Storage.KeyFile, a.cfg.Keys.Capacity)
			if err != nil {
				a.log.WithError(err).Warn("key file unreadable")
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "file:      %s\n", a.cfg.KeyFilePath())
			fmt.Fprintf(out, "source:    %s\n", stats.Defaults)
			fmt.Fprintf(out, "valid:     %d\n", stats.ValidLines)
			fmt.Fprintf(out, "malformed: %d\n", stats.MalformedLines)
			fmt.Fprintf(out, "dropped:   %d\n", stats.DroppedKeys)
			for _, bad := range stats.Malformed {
				fmt.Fprintln(out, "  "+bad.String())
			}
			fmt.Fprintf(out, "keys (%d/%d):\n", dict.Len(), dict.Cap())
			for i, k := range dict.Keys() {
				fmt.Fprintf(out, "  %2d  %s\n", i, k)
			}
			return nil
		},
	}
}

func newReadersCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "readers",
		Short: "List serial ports and PC/SC readers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			fmt.Fprintln(out, "serial ports:")
			ports, err := reader.Ports()
			if err != nil {
				fmt.Fprintf(out, "  error: %v\n", err)
			}
			for _, p := range ports {
				fmt.Fprintln(out, "  "+p)
			}

			fmt.Fprintln(out, "pcsc readers:")
			names, err := pcsc.ListReaders()
			if err != nil {
				fmt.Fprintf(out, "  error: %v\n", err)
			}
			for i, n := range names {
				fmt.Fprintf(out, "  %d) %s\n", i, n)
			}
			a.log.WithFields(logrus.Fields{"serial": len(ports), "pcsc": len(names)}).Debug("readers listed")
			return nil
		},
	}
}
