package main

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"cardprobe/internal/config"
	"cardprobe/internal/logging"
)

// app is what every subcommand shares after the root pre-run.
type app struct {
	configPath string
	envFile    string
	radio      string
	storage    string
	logLevel   string

	cfg    *config.Config
	log    *logrus.Logger
	closer io.Closer
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "cardprobe",
		Short:         "Handheld MIFARE Classic diagnostic tool",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if a.closer != nil {
				return a.closer.Close()
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDevice(cmd.Context(), a)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "config file (default ./"+config.DefaultFile+" when present)")
	flags.StringVar(&a.envFile, "env-file", envOr("CARDPROBE_ENV_FILE", ".env"), "dotenv file loaded before the config")
	flags.StringVar(&a.radio, "radio", "", "radio backend: sim, pn532, pcsc, libnfc")
	flags.StringVar(&a.storage, "storage", "", "storage root directory")
	flags.StringVar(&a.logLevel, "log-level", "", "log level override")

	root.AddCommand(
		newRunCmd(a),
		newIdentifyCmd(a),
		newDumpCmd(a),
		newKeysCmd(a),
		newReadersCmd(a),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command) error {
	if n, err := config.LoadDotEnv(a.envFile); err != nil {
		logrus.WithError(err).Warn("env load warning")
	} else if n > 0 {
		logrus.WithFields(logrus.Fields{"file": a.envFile, "vars": n}).Debug("dotenv loaded")
	}

	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.radio != "" {
		cfg.Radio.Backend = strings.ToLower(strings.TrimSpace(a.radio))
	}
	if a.storage != "" {
		cfg.Storage.Root = a.storage
	}
	if a.logLevel != "" {
		cfg.Log.Level = strings.ToLower(a.logLevel)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg

	// Only the device UI logs to the file; headless commands log to stderr.
	file := cfg.Log.File
	if cmd.Name() != "run" && cmd.Parent() != nil {
		file = ""
	}
	log, closer, err := logging.New(logging.Options{
		Level:    cfg.Log.Level,
		Format:   cfg.Log.Format,
		File:     file,
		Fallback: os.Stderr,
	})
	if err != nil {
		return err
	}
	a.log = log
	a.closer = closer
	log.WithFields(logrus.Fields{
		"config":  cfg.Source,
		"backend": cfg.Radio.Backend,
		"storage": cfg.Storage.Root,
	}).Debug("configuration loaded")
	return nil
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
