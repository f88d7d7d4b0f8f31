package cache

import (
	"encoding/gob"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
)

const indexName = "clips.index"

// DiskCache is the L2 tier. Clips are written one file per key, optionally
// zstd-compressed, and tracked in an index that survives restarts.
type DiskCache struct {
	dir      string
	capacity int64
	size     int64

	encoder *zstd.Encoder
	decoder *zstd.Decoder

	index map[string]*diskEntry

	mu    sync.Mutex
	stats Stats
}

type diskEntry struct {
	Key        string
	File       string
	Size       int64 // Size on disk
	Created    time.Time
	LastAccess time.Time
	Compressed bool
}

// NewDiskCache opens (or creates) a disk cache in dir. Entries older than
// ttl are dropped while loading the index; a zero ttl keeps everything.
func NewDiskCache(dir string, capacity int64, compressionLevel int, ttl time.Duration) (*DiskCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("unable to create cache directory: %w", err)
	}

	dc := &DiskCache{
		dir:      dir,
		capacity: capacity,
		index:    make(map[string]*diskEntry),
	}

	if compressionLevel > 0 {
		var err error
		dc.encoder, err = zstd.NewWriter(nil,
			zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(compressionLevel)))
		if err != nil {
			return nil, fmt.Errorf("unable to create zstd encoder: %w", err)
		}

		dc.decoder, err = zstd.NewReader(nil)
		if err != nil {
			return nil, fmt.Errorf("unable to create zstd decoder: %w", err)
		}
	}

	// A broken index only costs us the cached clips.
	if err := dc.loadIndex(); err != nil {
		dc.index = make(map[string]*diskEntry)
	}

	if ttl > 0 {
		dc.removeOlderThan(time.Now().Add(-ttl))
	}

	for _, entry := range dc.index {
		dc.size += entry.Size
	}

	return dc, nil
}

// Get reads the clip stored under key.
func (dc *DiskCache) Get(key string) ([]byte, bool) {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	entry, ok := dc.index[key]
	if !ok {
		dc.stats.Misses++
		return nil, false
	}

	data, err := os.ReadFile(entry.File)
	if err == nil && entry.Compressed {
		if dc.decoder == nil {
			err = errors.New("compressed entry without decoder")
		} else {
			data, err = dc.decoder.DecodeAll(data, nil)
		}
	}
	if err != nil {
		dc.removeEntry(entry)
		dc.stats.Misses++
		return nil, false
	}

	entry.LastAccess = time.Now()
	dc.stats.Hits++
	return data, true
}

// Put writes value under key.
func (dc *DiskCache) Put(key string, value []byte) error {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	data := value
	compressed := false
	if dc.encoder != nil {
		// MP3 rarely shrinks much, keep whichever is smaller.
		if enc := dc.encoder.EncodeAll(value, nil); len(enc) < len(value) {
			data = enc
			compressed = true
		}
	}

	size := int64(len(data))
	if size > dc.capacity {
		return ErrItemTooLarge
	}

	if existing, ok := dc.index[key]; ok {
		dc.removeEntry(existing)
	}

	for dc.size+size > dc.capacity && len(dc.index) > 0 {
		dc.evictOldest()
	}

	file := filepath.Join(dc.dir, key+".clip")
	if err := writeFileAtomic(file, data); err != nil {
		return fmt.Errorf("unable to write cache file: %w", err)
	}

	now := time.Now()
	dc.index[key] = &diskEntry{
		Key:        key,
		File:       file,
		Size:       size,
		Created:    now,
		LastAccess: now,
		Compressed: compressed,
	}
	dc.size += size
	return nil
}

// Delete removes key from the cache.
func (dc *DiskCache) Delete(key string) {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	if entry, ok := dc.index[key]; ok {
		dc.removeEntry(entry)
	}
}

// Contains reports whether key is indexed.
func (dc *DiskCache) Contains(key string) bool {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	_, ok := dc.index[key]
	return ok
}

// Clear removes every clip file and empties the index.
func (dc *DiskCache) Clear() error {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	for _, entry := range dc.index {
		_ = os.Remove(entry.File)
	}
	dc.index = make(map[string]*diskEntry)
	dc.size = 0

	return dc.saveIndex()
}

// Size returns the number of bytes on disk.
func (dc *DiskCache) Size() int64 {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	return dc.size
}

// Stats returns a copy of the tier counters.
func (dc *DiskCache) Stats() Stats {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	stats := dc.stats
	stats.Capacity = dc.capacity
	stats.Size = dc.size
	stats.Items = int64(len(dc.index))
	return stats
}

// Keys returns the cached keys, least recently used first.
func (dc *DiskCache) Keys() []string {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	entries := make([]*diskEntry, 0, len(dc.index))
	for _, entry := range dc.index {
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].LastAccess.Before(entries[j].LastAccess)
	})

	keys := make([]string, len(entries))
	for i, entry := range entries {
		keys[i] = entry.Key
	}
	return keys
}

// Close persists the index.
func (dc *DiskCache) Close() error {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	if dc.encoder != nil {
		_ = dc.encoder.Close()
	}
	if dc.decoder != nil {
		dc.decoder.Close()
	}
	return dc.saveIndex()
}

func (dc *DiskCache) removeOlderThan(cutoff time.Time) {
	for _, entry := range dc.index {
		if entry.Created.Before(cutoff) {
			dc.removeEntry(entry)
		}
	}
}

func (dc *DiskCache) removeEntry(entry *diskEntry) {
	_ = os.Remove(entry.File)
	delete(dc.index, entry.Key)
	dc.size -= entry.Size
}

func (dc *DiskCache) evictOldest() {
	var oldest *diskEntry
	for _, entry := range dc.index {
		if oldest == nil || entry.LastAccess.Before(oldest.LastAccess) {
			oldest = entry
		}
	}
	if oldest != nil {
		dc.removeEntry(oldest)
		dc.stats.Evictions++
	}
}

func (dc *DiskCache) loadIndex() error {
	f, err := os.Open(filepath.Join(dc.dir, indexName))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	defer f.Close() //nolint:errcheck

	return gob.NewDecoder(f).Decode(&dc.index)
}

func (dc *DiskCache) saveIndex() error {
	path := filepath.Join(dc.dir, indexName)
	tmp := path + ".tmp"

	f, err := os.Create(tmp)
	if err != nil {
		return err
	}

	err = gob.NewEncoder(f).Encode(dc.index)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(tmp)
		return err
	}

	return os.Rename(tmp, path)
}

func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil { //nolint:gosec
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}
