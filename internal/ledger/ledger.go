// Package ledger persists which URLs the pipeline has already uploaded or
// given up on. Each store is a flat text file with one URL per line; the
// failure store may add a tab and a free-text reason after the URL.
package ledger

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// Set holds ledger keys. Reasons are not part of the key.
type Set map[string]struct{}

func (s Set) Has(key string) bool {
	_, ok := s[key]
	return ok
}

// Entry is one parsed ledger line.
type Entry struct {
	URL    string
	Reason string
}

// ReadEntries parses every non-empty line of the file. A missing file yields
// no entries and no error.
func ReadEntries(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "open ledger %s", path)
	}
	defer f.Close()

	var out []Entry
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		e := Entry{URL: line}
		if i := strings.IndexByte(line, '\t'); i >= 0 {
			e.URL = strings.TrimSpace(line[:i])
			e.Reason = strings.TrimSpace(line[i+1:])
		}
		if e.URL == "" {
			continue
		}
		out = append(out, e)
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrapf(err, "read ledger %s", path)
	}
	return out, nil
}

// Load returns the set of URLs recorded in the file.
func Load(path string) (Set, error) {
	entries, err := ReadEntries(path)
	if err != nil {
		return nil, err
	}
	set := make(Set, len(entries))
	for _, e := range entries {
		set[e.URL] = struct{}{}
	}
	return set, nil
}

// Append writes one line, creating the parent directory when needed. It does
// not check for duplicates.
func Append(path, url, reason string) error {
	url = strings.TrimSpace(url)
	if url == "" {
		return errors.New("ledger: empty url")
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrapf(err, "create ledger dir %s", dir)
		}
	}

	line := url
	if reason = sanitize(reason); reason != "" {
		line += "\t" + reason
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return errors.Wrapf(err, "open ledger %s", path)
	}
	if _, err := f.WriteString(line + "\n"); err != nil {
		f.Close()
		return errors.Wrapf(err, "append ledger %s", path)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return errors.Wrapf(err, "sync ledger %s", path)
	}
	return f.Close()
}

// reasons must stay on one line
func sanitize(reason string) string {
	reason = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ", "\t", " ").Replace(reason)
	return strings.TrimSpace(reason)
}

// Store is a file-backed Set kept in memory after the first load.
type Store struct {
	path string
	mu   sync.Mutex
	set  Set
}

func Open(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("ledger: empty path")
	}
	set, err := Load(path)
	if err != nil {
		return nil, err
	}
	return &Store{path: path, set: set}, nil
}

func (s *Store) Path() string { return s.path }

func (s *Store) Has(url string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.set.Has(url)
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.set)
}

// Add persists the line before updating the in-memory set.
func (s *Store) Add(url, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := Append(s.path, url, reason); err != nil {
		return err
	}
	s.set[strings.TrimSpace(url)] = struct{}{}
	return nil
}

// Reload re-reads the file, picking up lines written by other tools.
func (s *Store) Reload() error {
	set, err := Load(s.path)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.set = set
	s.mu.Unlock()
	return nil
}
