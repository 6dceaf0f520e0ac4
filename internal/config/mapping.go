package config

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"

	"github.com/ernestzhang-11/StreamForge/internal/logging"
)

// MappingEntry maps a product keyword to the name written into records.
type MappingEntry struct {
	Keyword string
	Value   string
}

// MappingCache holds the product name mapping file in memory. Get re-stats
// the file at most once per interval and reloads only when its mtime moved.
type MappingCache struct {
	path     string
	interval time.Duration
	log      logging.Logger
	now      func() time.Time

	mu          sync.Mutex
	entries     []MappingEntry
	loaded      bool
	mtime       time.Time
	lastChecked time.Time
}

func NewMappingCache(path string, interval time.Duration, log logging.Logger) *MappingCache {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if log == nil {
		log = logging.Nop()
	}
	return &MappingCache{path: path, interval: interval, log: log, now: time.Now}
}

// Get returns the current mapping in file order.
func (m *MappingCache) Get() []MappingEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if m.loaded && now.Sub(m.lastChecked) < m.interval {
		return m.entries
	}
	m.lastChecked = now

	info, err := os.Stat(m.path)
	if err != nil {
		// missing file means no mapping
		m.entries, m.loaded, m.mtime = nil, true, time.Time{}
		return nil
	}
	if m.loaded && info.ModTime().Equal(m.mtime) {
		return m.entries
	}

	entries, err := readMapping(m.path)
	if err != nil {
		m.log.Warn(context.Background(), "product mapping reload failed, keeping previous", "path", m.path, "err", err)
		m.loaded = true
		return m.entries
	}
	m.entries, m.loaded, m.mtime = entries, true, info.ModTime()
	m.log.Info(context.Background(), "product mapping loaded", "path", m.path, "entries", len(entries))
	return m.entries
}

// Invalidate forces the next Get to stat the file.
func (m *MappingCache) Invalidate() {
	m.mu.Lock()
	m.lastChecked = time.Time{}
	m.mu.Unlock()
}

// MapProduct returns the value of the first entry whose keyword occurs in
// name, or name itself.
func (m *MappingCache) MapProduct(name string) string {
	if name == "" {
		return name
	}
	for _, e := range m.Get() {
		if strings.Contains(name, e.Keyword) {
			return e.Value
		}
	}
	return name
}

// Matches reports whether any keyword occurs in name.
func (m *MappingCache) Matches(name string) bool {
	if name == "" {
		return false
	}
	for _, e := range m.Get() {
		if strings.Contains(name, e.Keyword) {
			return true
		}
	}
	return false
}

// Watch invalidates the cache whenever the mapping file is written, created
// or renamed. It watches the parent directory so editors that replace the
// file are seen too. It returns when ctx is done.
func (m *MappingCache) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "create watcher")
	}
	defer watcher.Close()

	dir := filepath.Dir(m.path)
	if err := watcher.Add(dir); err != nil {
		return errors.Wrapf(err, "watch %s", dir)
	}
	target := filepath.Clean(m.path)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) || ev.Has(fsnotify.Remove) {
				m.log.Debug(ctx, "product mapping changed", "path", ev.Name, "op", ev.Op.String())
				m.Invalidate()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			m.log.Warn(ctx, "product mapping watcher error", "err", err)
		}
	}
}

// readMapping parses {"product_name_mapping": {keyword: value}} keeping the
// key order of the file. Blank keywords or values are dropped.
func readMapping(path string) ([]MappingEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc struct {
		Mapping json.RawMessage `json:"product_name_mapping"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(err, "decode mapping")
	}
	if len(doc.Mapping) == 0 || doc.Mapping[0] != '{' {
		return nil, nil
	}

	dec := json.NewDecoder(bytes.NewReader(doc.Mapping))
	if _, err := dec.Token(); err != nil {
		return nil, errors.Wrap(err, "decode mapping")
	}
	var out []MappingEntry
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, errors.Wrap(err, "decode mapping key")
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, errors.Wrap(err, "decode mapping value")
		}
		key, _ := keyTok.(string)
		var value string
		if json.Unmarshal(raw, &value) != nil {
			continue
		}
		key, value = strings.TrimSpace(key), strings.TrimSpace(value)
		if key == "" || value == "" {
			continue
		}
		out = append(out, MappingEntry{Keyword: key, Value: value})
	}
	return out, nil
}
