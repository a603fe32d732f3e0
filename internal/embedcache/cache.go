// Package embedcache caches generated embeddings keyed by a content hash of
// the normalized input text. Two tiers back the cache: an in-memory map for
// the hot path and an optional content-addressed directory on disk (one JSON
// file per hash) that survives restarts. Texts differing only in whitespace
// share one entry. Disk I/O failures are logged and degrade to cache misses;
// they never propagate to callers.
package embedcache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

const (
	// defaultMaxEntries bounds the memory tier when Config.MaxEntries is
	// zero.
	defaultMaxEntries = 1000

	// evictCheckEvery is how many inserts pass between oversize checks.
	// Checking on every write would put a map scan on the hot path for no
	// benefit; the cache may transiently exceed its bound by at most this
	// many entries.
	evictCheckEvery = 32

	// evictFraction is the share of entries removed, oldest first, when the
	// cache exceeds its bound.
	evictFraction = 0.2
)

// diskEntry is the JSON layout of one on-disk cache file.
type diskEntry struct {
	// Text is the normalized text this embedding was generated for.
	Text string `json:"text"`
	// Embedding is the cached vector.
	Embedding []float32 `json:"embedding"`
}

// entry is one memory-tier record.
type entry struct {
	text      string
	embedding []float32
	// seq orders entries by insertion for oldest-first eviction.
	seq uint64
}

// Config holds the settings for constructing a Cache.
type Config struct {
	// MaxEntries bounds the entry count of each tier. Defaults to 1000.
	MaxEntries int
	// Dir is the disk-tier directory, created on demand. Empty disables
	// the disk tier.
	Dir string
	// Logger receives warnings for disk-tier failures. Defaults to
	// slog.Default.
	Logger *slog.Logger
}

// Cache is a two-tier embedding cache. It is safe for concurrent use.
type Cache struct {
	mu         sync.Mutex
	maxEntries int
	dir        string
	log        *slog.Logger

	entries map[string]*entry
	nextSeq uint64
	inserts uint64
}

// New constructs a Cache from cfg. When cfg.Dir is set the directory is
// created on first write, not here.
func New(cfg *Config) *Cache {
	if cfg == nil {
		cfg = &Config{}
	}
	max := cfg.MaxEntries
	if max <= 0 {
		max = defaultMaxEntries
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Cache{
		maxEntries: max,
		dir:        cfg.Dir,
		log:        log,
		entries:    make(map[string]*entry),
	}
}

// Normalize collapses runs of whitespace in s to single spaces and trims the
// result. Cache keys are derived from normalized text so whitespace-only
// variants of the same content share an entry.
func Normalize(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Key returns the content hash used as cache key and disk file stem for s.
func Key(s string) string {
	sum := sha256.Sum256([]byte(Normalize(s)))
	return hex.EncodeToString(sum[:])
}

// Get returns the cached embedding for text, or (nil, false) on a miss.
// A memory miss falls through to the disk tier; a disk hit is promoted into
// memory.
func (c *Cache) Get(text string) ([]float32, bool) {
	key := Key(text)

	c.mu.Lock()
	if e, ok := c.entries[key]; ok {
		c.mu.Unlock()
		return e.embedding, true
	}
	c.mu.Unlock()

	if c.dir == "" {
		return nil, false
	}

	data, err := os.ReadFile(c.filePath(key))
	if err != nil {
		if !os.IsNotExist(err) {
			c.log.Warn("embedcache: disk read failed, treating as miss",
				slog.String("key", key), slog.String("error", err.Error()))
		}
		return nil, false
	}

	var de diskEntry
	if err := json.Unmarshal(data, &de); err != nil {
		c.log.Warn("embedcache: corrupt disk entry, treating as miss",
			slog.String("key", key), slog.String("error", err.Error()))
		return nil, false
	}

	c.mu.Lock()
	c.insertLocked(key, de.Text, de.Embedding)
	c.mu.Unlock()
	return de.Embedding, true
}

// Put stores the embedding for text in both tiers. Every evictCheckEvery
// inserts the oversize check runs as a side effect; callers needing a
// deterministic bound call EvictIfOversize directly.
func (c *Cache) Put(text string, embedding []float32) {
	norm := Normalize(text)
	key := Key(norm)

	c.mu.Lock()
	c.insertLocked(key, norm, embedding)
	c.inserts++
	runEvict := c.inserts%evictCheckEvery == 0
	c.mu.Unlock()

	if c.dir != "" {
		c.writeDisk(key, norm, embedding)
	}
	if runEvict {
		c.EvictIfOversize()
	}
}

// Len returns the number of memory-tier entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// EvictIfOversize removes the oldest 20% of entries from any tier that
// exceeds the configured bound: memory by insertion order, disk by file
// modification time. It is a maintenance operation, cheap when nothing is
// oversize.
func (c *Cache) EvictIfOversize() {
	c.evictMemory()
	if c.dir != "" {
		c.evictDisk()
	}
}

// insertLocked adds or refreshes a memory-tier entry. Callers must hold mu.
func (c *Cache) insertLocked(key, text string, embedding []float32) {
	if e, ok := c.entries[key]; ok {
		e.embedding = embedding
		return
	}
	c.entries[key] = &entry{text: text, embedding: embedding, seq: c.nextSeq}
	c.nextSeq++
}

// filePath returns the disk-tier path for key.
func (c *Cache) filePath(key string) string {
	return filepath.Join(c.dir, key+".json")
}

// writeDisk persists one entry to the disk tier, creating the directory on
// demand. Failures are logged and otherwise ignored.
func (c *Cache) writeDisk(key, text string, embedding []float32) {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		c.log.Warn("embedcache: cannot create cache dir",
			slog.String("dir", c.dir), slog.String("error", err.Error()))
		return
	}
	data, err := json.Marshal(diskEntry{Text: text, Embedding: embedding})
	if err != nil {
		c.log.Warn("embedcache: marshal failed", slog.String("error", err.Error()))
		return
	}
	if err := os.WriteFile(c.filePath(key), data, 0o644); err != nil {
		c.log.Warn("embedcache: disk write failed",
			slog.String("key", key), slog.String("error", err.Error()))
	}
}

// evictMemory drops the oldest evictFraction of memory entries when the tier
// is over its bound.
func (c *Cache) evictMemory() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.entries) <= c.maxEntries {
		return
	}

	keys := make([]string, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return c.entries[keys[i]].seq < c.entries[keys[j]].seq
	})

	drop := int(float64(len(keys)) * evictFraction)
	if drop < 1 {
		drop = 1
	}
	for _, k := range keys[:drop] {
		delete(c.entries, k)
	}
}

// evictDisk drops the oldest evictFraction of disk files (by modification
// time) when the tier is over its bound.
func (c *Cache) evictDisk() {
	dirents, err := os.ReadDir(c.dir)
	if err != nil {
		if !os.IsNotExist(err) {
			c.log.Warn("embedcache: cannot list cache dir",
				slog.String("dir", c.dir), slog.String("error", err.Error()))
		}
		return
	}

	type fileAge struct {
		name  string
		mtime int64
	}
	files := make([]fileAge, 0, len(dirents))
	for _, d := range dirents {
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".json") {
			continue
		}
		info, err := d.Info()
		if err != nil {
			continue
		}
		files = append(files, fileAge{name: d.Name(), mtime: info.ModTime().UnixNano()})
	}
	if len(files) <= c.maxEntries {
		return
	}

	sort.Slice(files, func(i, j int) bool { return files[i].mtime < files[j].mtime })
	drop := int(float64(len(files)) * evictFraction)
	if drop < 1 {
		drop = 1
	}
	for _, f := range files[:drop] {
		if err := os.Remove(filepath.Join(c.dir, f.name)); err != nil {
			c.log.Warn("embedcache: evict remove failed",
				slog.String("file", f.name), slog.String("error", err.Error()))
		}
	}
}
