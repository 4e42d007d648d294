// Package cache keeps built schema registries in memory and on disk so a
// restart does not have to fetch and parse the reference pages again.
package cache

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/mcncl/river-ls/internal/schema"
)

// DefaultTTL is how long a cached registry is trusted.
const DefaultTTL = 24 * time.Hour

// ErrMiss is returned by Load when no usable entry exists.
var ErrMiss = errors.New("cache miss")

// Key identifies a cached registry: the source that built it and the
// schema version it was built for.
type Key struct {
	Source  string
	Version string
}

func (k Key) String() string {
	return k.Source + "@" + k.Version
}

// Entry wraps a registry with cache metadata.
type Entry struct {
	Key       Key
	Registry  *schema.Registry
	CachedAt  time.Time
	ExpiresAt time.Time
}

// IsExpired checks if the cached registry has expired
func (e *Entry) IsExpired() bool {
	return time.Now().After(e.ExpiresAt)
}

// document is the on-disk layout of one entry.
type document struct {
	Source     string           `json:"source"`
	Version    string           `json:"version"`
	CachedAt   time.Time        `json:"cachedAt"`
	ExpiresAt  time.Time        `json:"expiresAt"`
	Components []namedComponent `json:"components"`
}

type namedComponent struct {
	Name      string           `json:"name"`
	Component schema.Component `json:"component"`
}

// Cache is a two level registry cache: a map in front of one JSON file per
// key. An empty directory keeps the cache in memory only.
type Cache struct {
	mu      sync.RWMutex
	entries map[Key]*Entry
	dir     string
	ttl     time.Duration
	logger  *zap.Logger
}

// New creates a cache storing files under dir.
func New(dir string, ttl time.Duration, logger *zap.Logger) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl == 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		entries: make(map[Key]*Entry),
		dir:     dir,
		ttl:     ttl,
		logger:  logger,
	}
}

// DefaultDir returns the per-user cache directory for the server.
func DefaultDir() (string, error) {
	base, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("cache: locating user cache dir: %w", err)
	}
	return filepath.Join(base, "river-ls"), nil
}

// Dir returns the directory entries are written to.
func (c *Cache) Dir() string {
	return c.dir
}

// Load returns the registry cached for key. Missing, unreadable,
// mismatched and expired entries all report ErrMiss.
func (c *Cache) Load(key Key) (*schema.Registry, error) {
	c.mu.RLock()
	if cached, exists := c.entries[key]; exists && !cached.IsExpired() {
		c.mu.RUnlock()
		return cached.Registry, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	// Double-check after acquiring write lock
	if cached, exists := c.entries[key]; exists {
		if !cached.IsExpired() {
			return cached.Registry, nil
		}
		delete(c.entries, key)
	}

	entry, err := c.read(key)
	if err != nil {
		return nil, err
	}
	c.entries[key] = entry
	return entry.Registry, nil
}

func (c *Cache) read(key Key) (*Entry, error) {
	if c.dir == "" {
		return nil, ErrMiss
	}

	path := c.path(key)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrMiss
		}
		return nil, fmt.Errorf("%w: %v", ErrMiss, err)
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		c.logger.Warn("Discarding corrupt cache file", zap.String("path", path), zap.Error(err))
		return nil, fmt.Errorf("%w: corrupt file %s", ErrMiss, path)
	}
	if stored := (Key{Source: doc.Source, Version: doc.Version}); stored != key {
		return nil, fmt.Errorf("%w: %s holds %s", ErrMiss, path, stored)
	}

	entry := &Entry{
		Key:       key,
		CachedAt:  doc.CachedAt,
		ExpiresAt: doc.ExpiresAt,
	}
	if entry.IsExpired() {
		return nil, fmt.Errorf("%w: %s expired at %s", ErrMiss, path, doc.ExpiresAt.Format(time.RFC3339))
	}

	components := make([]schema.Component, 0, len(doc.Components))
	for _, nc := range doc.Components {
		nc.Component.Name = nc.Name
		components = append(components, nc.Component)
	}
	entry.Registry, _ = schema.NewRegistry(components...)

	c.logger.Debug("Loaded cached registry",
		zap.Stringer("key", key),
		zap.Int("components", entry.Registry.Len()),
		zap.Time("expiresAt", entry.ExpiresAt))
	return entry, nil
}

// Store caches registry under key, in memory and on disk. The file is
// replaced atomically; a failed write leaves the memory entry in place.
func (c *Cache) Store(key Key, registry *schema.Registry) error {
	now := time.Now()
	entry := &Entry{
		Key:       key,
		Registry:  registry,
		CachedAt:  now,
		ExpiresAt: now.Add(c.ttl),
	}

	c.mu.Lock()
	c.entries[key] = entry
	c.mu.Unlock()

	if c.dir == "" {
		return nil
	}
	return c.write(entry)
}

func (c *Cache) write(entry *Entry) error {
	doc := document{
		Source:     entry.Key.Source,
		Version:    entry.Key.Version,
		CachedAt:   entry.CachedAt,
		ExpiresAt:  entry.ExpiresAt,
		Components: make([]namedComponent, 0, entry.Registry.Len()),
	}
	for _, component := range entry.Registry.Components() {
		doc.Components = append(doc.Components, namedComponent{Name: component.Name, Component: component})
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("cache: encoding %s: %w", entry.Key, err)
	}

	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("cache: creating %s: %w", c.dir, err)
	}

	path := c.path(entry.Key)
	tmp, err := os.CreateTemp(c.dir, "."+filepath.Base(path)+"-*.tmp")
	if err != nil {
		return fmt.Errorf("cache: creating temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("cache: writing %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("cache: closing %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("cache: replacing %s: %w", path, err)
	}

	c.logger.Debug("Wrote cached registry", zap.Stringer("key", entry.Key), zap.String("path", path))
	return nil
}

// Invalidate drops key from memory and disk.
func (c *Cache) Invalidate(key Key) error {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()

	if c.dir == "" {
		return nil
	}
	if err := os.Remove(c.path(key)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("cache: removing %s: %w", key, err)
	}
	return nil
}

// ClearExpired removes expired entries from memory.
func (c *Cache) ClearExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key, cached := range c.entries {
		if cached.IsExpired() {
			delete(c.entries, key)
		}
	}
}

// path names the file of key as <source>@<version>.json. Sanitizing may map
// two keys to one file; read tells them apart by the stored key.
func (c *Cache) path(key Key) string {
	return filepath.Join(c.dir, sanitize(key.Source)+"@"+sanitize(key.Version)+".json")
}

// sanitize maps a key part to a safe file name: every rune outside
// [A-Za-z0-9._-] becomes '_'.
func sanitize(part string) string {
	if part == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, part)
}
