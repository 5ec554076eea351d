package keys

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strconv"
	"strings"
)

// DefaultFile is the key file name looked up in the storage root.
const DefaultFile = "keys.txt"

const (
	maxReportedLines = 8
	// maxLineLen bounds one key line, terminator included.
	maxLineLen = 256
)

// LineError describes one rejected key line.
type LineError struct {
	Line   int
	Text   string
	Reason string
}

func (e LineError) String() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Reason)
}

// DefaultsReason says why the built-in keys were used.
type DefaultsReason int

const (
	FromFile DefaultsReason = iota
	MissingFile
	NoValidKeys
)

func (r DefaultsReason) String() string {
	switch r {
	case MissingFile:
		return "key file missing"
	case NoValidKeys:
		return "no valid keys in file"
	default:
		return "loaded from file"
	}
}

// LoadStats summarizes one key file parse.
type LoadStats struct {
	Source         string
	TotalLines     int
	ValidLines     int
	MalformedLines int
	DroppedKeys    int
	Malformed      []LineError
	Defaults       DefaultsReason
}

// UsedDefaults reports whether the dictionary came from the built-in list.
func (s LoadStats) UsedDefaults() bool {
	return s.Defaults != FromFile
}

// Parse reads keys line by line. A line yields a key only when it holds
// exactly six hex byte tokens; anything else is counted as malformed and
// skipped. Blank lines and # comments are ignored. Lines longer than
// maxLineLen are malformed too. The returned dictionary may be empty;
// callers that need a usable dictionary use Load.
func Parse(r io.Reader, capacity int) (*Dictionary, LoadStats, error) {
	dict := NewDictionary(capacity)
	stats := LoadStats{}

	br := bufio.NewReaderSize(r, maxLineLen)
	lineNo := 0
	for {
		line, long, err := readLine(br)
		if err != nil && !errors.Is(err, io.EOF) {
			return dict, stats, fmt.Errorf("read key file: %w", err)
		}
		if len(line) == 0 && !long && err != nil {
			break
		}

		raw := strings.TrimSpace(string(line))
		if lineNo == 0 {
			raw = strings.TrimPrefix(raw, "\uFEFF")
		}
		lineNo++
		if long {
			stats.TotalLines++
			stats.malformed(LineError{Line: lineNo, Reason: fmt.Sprintf("longer than %d bytes", maxLineLen)})
		} else if raw != "" && !strings.HasPrefix(raw, "#") {
			stats.TotalLines++
			if key, reason := parseLine(raw); reason != "" {
				stats.malformed(LineError{Line: lineNo, Text: raw, Reason: reason})
			} else {
				stats.ValidLines++
				if !dict.Add(key) {
					stats.DroppedKeys++
				}
			}
		}
		if err != nil {
			break
		}
	}
	return dict, stats, nil
}

func (s *LoadStats) malformed(e LineError) {
	s.MalformedLines++
	if len(s.Malformed) < maxReportedLines {
		s.Malformed = append(s.Malformed, e)
	}
}

// readLine returns the next line without its terminator. When the line does
// not fit the reader's buffer, the rest of it is discarded and long is set.
func readLine(br *bufio.Reader) (line []byte, long bool, err error) {
	for {
		chunk, err := br.ReadSlice('\n')
		if errors.Is(err, bufio.ErrBufferFull) {
			long = true
			continue
		}
		if !long {
			line = append(line, chunk...)
		}
		return line, long, err
	}
}

func parseLine(line string) (Key, string) {
	tokens := strings.Fields(line)
	if len(tokens) != Size {
		return Key{}, fmt.Sprintf("want %d tokens, got %d", Size, len(tokens))
	}
	var k Key
	for i, tok := range tokens {
		v, err := strconv.ParseUint(tok, 16, 8)
		if err != nil {
			return Key{}, fmt.Sprintf("token %d %q is not a hex byte", i+1, tok)
		}
		k[i] = byte(v)
	}
	return k, ""
}

// Load reads name from fsys and falls back to Defaults when the file is
// missing or yields no keys. Read errors other than a missing file are
// returned alongside the default dictionary.
func Load(fsys fs.FS, name string, capacity int) (*Dictionary, LoadStats, error) {
	f, err := fsys.Open(name)
	if err != nil {
		stats := LoadStats{Source: name, Defaults: MissingFile}
		if errors.Is(err, fs.ErrNotExist) {
			return DefaultDictionary(capacity), stats, nil
		}
		return DefaultDictionary(capacity), stats, fmt.Errorf("open key file: %w", err)
	}
	defer f.Close()

	dict, stats, err := Parse(f, capacity)
	stats.Source = name
	if dict.Len() == 0 {
		stats.Defaults = NoValidKeys
		return DefaultDictionary(capacity), stats, err
	}
	return dict, stats, err
}
