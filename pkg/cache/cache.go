// Package cache keeps expensive upstream responses (LLM timeline parses) in an
// otter cache, optionally persisted to disk between runs.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/maypok86/otter/v2"
)

const fileName = "ritualz-cache.gob"

// Entry is a cached payload.
type Entry struct {
	ExpiresAt time.Time `json:"expires_at"`
	Data      []byte    `json:"data"`
}

// Cache is an otter-backed cache keyed by a namespace and request payload.
type Cache struct {
	cache      *otter.Cache[string, Entry]
	logger     *slog.Logger
	saveCancel context.CancelFunc
	dir        string // empty for memory-only caches
	saveWg     sync.WaitGroup
	ttl        time.Duration
	mu         sync.Mutex
}

func newOtter(ttl time.Duration) *otter.Cache[string, Entry] {
	return otter.Must(&otter.Options[string, Entry]{
		MaximumSize:      50_000,
		InitialCapacity:  1_000,
		ExpiryCalculator: otter.ExpiryWriting[string, Entry](ttl),
	})
}

// New creates a disk-backed cache in dir, loads any previous snapshot and
// saves periodically until ctx is done or Close is called.
func New(ctx context.Context, dir string, ttl time.Duration, logger *slog.Logger) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}

	c := &Cache{
		cache:  newOtter(ttl),
		dir:    dir,
		ttl:    ttl,
		logger: logger,
	}

	if err := c.loadFromDisk(); err != nil {
		logger.Warn("failed to load cache from disk", "error", err)
	}
	logger.Info("cache initialized", "dir", dir, "entries_loaded", c.cache.EstimatedSize())

	c.startPeriodicSave(ctx)
	return c, nil
}

// NewMemoryOnly creates a cache that is never written to disk.
func NewMemoryOnly(ttl time.Duration, logger *slog.Logger) *Cache {
	return &Cache{
		cache:  newOtter(ttl),
		ttl:    ttl,
		logger: logger,
	}
}

// Key derives the cache key for a namespace and payload.
func Key(namespace string, payload []byte) string {
	h := sha256.New()
	h.Write([]byte(namespace))
	h.Write([]byte{0})
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns the cached data for namespace and payload.
func (c *Cache) Get(namespace string, payload []byte) ([]byte, bool) {
	key := Key(namespace, payload)
	entry, found := c.cache.GetIfPresent(key)
	if !found {
		c.logger.Debug("cache miss", "namespace", namespace, "reason", "not_found")
		return nil, false
	}
	if time.Now().After(entry.ExpiresAt) {
		c.logger.Debug("cache miss", "namespace", namespace, "reason", "expired", "expired_at", entry.ExpiresAt)
		c.cache.Invalidate(key)
		return nil, false
	}
	return entry.Data, true
}

// Set stores data for namespace and payload.
func (c *Cache) Set(namespace string, payload, data []byte) {
	entry := Entry{Data: data, ExpiresAt: time.Now().Add(c.ttl)}
	c.cache.Set(Key(namespace, payload), entry)
	c.logger.Debug("cache set", "namespace", namespace, "expires_at", entry.ExpiresAt, "size", len(data))
}

// Len returns the approximate number of entries.
func (c *Cache) Len() int {
	return c.cache.EstimatedSize()
}

func (c *Cache) path() string {
	return filepath.Join(c.dir, fileName)
}

func (c *Cache) loadFromDisk() error {
	file, err := os.Open(c.path())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("opening cache file: %w", err)
	}
	defer func() {
		if err := file.Close(); err != nil {
			c.logger.Debug("failed to close cache file", "error", err)
		}
	}()

	var entries map[string]Entry
	if err := gob.NewDecoder(file).Decode(&entries); err != nil {
		return fmt.Errorf("decoding cache file: %w", err)
	}

	now := time.Now()
	valid := 0
	for key, entry := range entries {
		if now.Before(entry.ExpiresAt) {
			c.cache.Set(key, entry)
			valid++
		}
	}
	c.logger.Debug("loaded cache from disk", "path", c.path(), "total_entries", len(entries), "valid_entries", valid)
	return nil
}

// Save writes unexpired entries to disk. It is a no-op for memory-only caches.
func (c *Cache) Save() error {
	if c.dir == "" {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	tempPath := c.path() + ".tmp"
	file, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("creating temp cache file: %w", err)
	}
	defer func() {
		if err := os.Remove(tempPath); err != nil && !os.IsNotExist(err) {
			c.logger.Debug("failed to remove temp file", "error", err)
		}
	}()

	entries := make(map[string]Entry)
	now := time.Now()
	for key, entry := range c.cache.All() {
		if now.Before(entry.ExpiresAt) {
			entries[key] = entry
		}
	}

	if err := gob.NewEncoder(file).Encode(entries); err != nil {
		_ = file.Close() //nolint:errcheck // already failing
		return fmt.Errorf("encoding cache: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("closing cache file: %w", err)
	}
	if err := os.Rename(tempPath, c.path()); err != nil {
		return fmt.Errorf("replacing cache file: %w", err)
	}

	c.logger.Debug("cache saved to disk", "entries", len(entries), "path", c.path())
	return nil
}

func (c *Cache) startPeriodicSave(ctx context.Context) {
	saveCtx, cancel := context.WithCancel(ctx)
	c.saveCancel = cancel

	c.saveWg.Add(1)
	go func() {
		defer c.saveWg.Done()

		ticker := time.NewTicker(15 * time.Minute)
		defer ticker.Stop()

		for {
			select {
			case <-saveCtx.Done():
				return
			case <-ticker.C:
				if err := c.Save(); err != nil {
					c.logger.Error("periodic cache save failed", "error", err)
				}
			}
		}
	}()
}

// Close stops periodic saving and writes a final snapshot.
func (c *Cache) Close() error {
	if c.saveCancel != nil {
		c.saveCancel()
	}
	c.saveWg.Wait()
	return c.Save()
}
