package storage

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gobwas/glob"
)

var (
	ErrShortFile   = errors.New("file too small")
	ErrInvalidName = errors.New("invalid file name")
)

// DefaultMaxEntries bounds one directory listing.
const DefaultMaxEntries = 64

// Entry is one listed file.
type Entry struct {
	Name string
	Size int64
}

// Listing is a capacity-bounded directory listing.
type Listing struct {
	Entries []Entry
	// Overflow counts matching files that did not fit.
	Overflow int
}

// Store is the removable storage the device reads keys from and writes
// dumps to. Names are flat, relative to the store root.
type Store interface {
	List() (Listing, error)
	Exists(name string) (bool, error)
	ReadHead(name string, n int) ([]byte, error)
	WriteFile(name string, data []byte) error
	Remove(name string) error
	FS() fs.FS
}

// Dir is a Store rooted at a host directory.
type Dir struct {
	root       string
	pattern    glob.Glob
	rawPattern string
	maxEntries int
}

// Options tune directory listings.
type Options struct {
	Pattern    string
	MaxEntries int
}

func NewDir(root string, opts Options) (*Dir, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, fmt.Errorf("storage root is empty")
	}
	pattern := strings.TrimSpace(opts.Pattern)
	if pattern == "" {
		pattern = "*"
	}
	g, err := glob.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("compile list pattern %q: %w", pattern, err)
	}
	maxEntries := opts.MaxEntries
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &Dir{
		root:       filepath.Clean(root),
		pattern:    g,
		rawPattern: pattern,
		maxEntries: maxEntries,
	}, nil
}

func (d *Dir) Root() string {
	return d.root
}

func (d *Dir) Pattern() string {
	return d.rawPattern
}

// Ready reports whether the root exists and is a directory.
func (d *Dir) Ready() error {
	info, err := os.Stat(d.root)
	if err != nil {
		return fmt.Errorf("storage not mounted: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("storage root %s is not a directory", d.root)
	}
	return nil
}

func (d *Dir) FS() fs.FS {
	return os.DirFS(d.root)
}

func (d *Dir) path(name string) (string, error) {
	clean := strings.TrimSpace(name)
	if clean == "" || clean != filepath.Base(clean) || clean == "." || clean == ".." {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return filepath.Join(d.root, clean), nil
}

// List returns regular files matching the pattern, sorted by name. Hidden
// files and temp files are skipped.
func (d *Dir) List() (Listing, error) {
	dirents, err := os.ReadDir(d.root)
	if err != nil {
		return Listing{}, fmt.Errorf("list %s: %w", d.root, err)
	}

	names := make([]string, 0, len(dirents))
	byName := make(map[string]fs.DirEntry, len(dirents))
	for _, de := range dirents {
		name := de.Name()
		if !de.Type().IsRegular() || strings.HasPrefix(name, ".") {
			continue
		}
		if !d.pattern.Match(name) {
			continue
		}
		names = append(names, name)
		byName[name] = de
	}
	sort.Strings(names)

	out := Listing{Entries: make([]Entry, 0, min(len(names), d.maxEntries))}
	for _, name := range names {
		if len(out.Entries) >= d.maxEntries {
			out.Overflow++
			continue
		}
		var size int64
		if info, err := byName[name].Info(); err == nil {
			size = info.Size()
		}
		out.Entries = append(out.Entries, Entry{Name: name, Size: size})
	}
	return out, nil
}

func (d *Dir) Exists(name string) (bool, error) {
	p, err := d.path(name)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(p)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// ReadHead returns exactly the first n bytes of name, or ErrShortFile.
func (d *Dir) ReadHead(name string, n int) ([]byte, error) {
	p, err := d.path(name)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	defer f.Close()

	buf := make([]byte, n)
	if _, err := io.ReadFull(f, buf); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%s: %w", name, ErrShortFile)
		}
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return buf, nil
}

// WriteFile replaces name atomically through a temp file in the same
// directory.
func (d *Dir) WriteFile(name string, data []byte) error {
	p, err := d.path(name)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(d.root, ".tmp-"+filepath.Base(p)+"-*")
	if err != nil {
		return fmt.Errorf("create %s: %w", name, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close %s: %w", name, err)
	}
	if err := os.Rename(tmpName, p); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace %s: %w", name, err)
	}
	return nil
}

func (d *Dir) Remove(name string) error {
	p, err := d.path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil {
		return fmt.Errorf("delete %s: %w", name, err)
	}
	return nil
}
