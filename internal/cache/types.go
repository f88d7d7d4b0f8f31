package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"
)

// Common errors for cache operations
var (
	// ErrItemTooLarge is returned when a clip exceeds the tier capacity
	ErrItemTooLarge = errors.New("item too large for cache")

	// ErrClosed is returned by operations on a closed store
	ErrClosed = errors.New("cache is closed")
)

// Level identifies a cache tier.
type Level int

const (
	// LevelMemory is the in-memory tier (L1).
	LevelMemory Level = iota
	// LevelDisk is the persistent tier (L2).
	LevelDisk
)

// String returns the string representation of the cache level
func (l Level) String() string {
	switch l {
	case LevelMemory:
		return "memory"
	case LevelDisk:
		return "disk"
	default:
		return "unknown"
	}
}

// Stats holds the counters of one tier.
type Stats struct {
	Capacity  int64 // Maximum size in bytes
	Size      int64 // Current size in bytes
	Items     int64
	Hits      int64
	Misses    int64
	Evictions int64
}

// HitRate returns hits / (hits + misses), or zero without lookups.
func (s Stats) HitRate() float64 {
	if s.Hits+s.Misses == 0 {
		return 0
	}
	return float64(s.Hits) / float64(s.Hits+s.Misses)
}

// Config holds the settings of a Store.
type Config struct {
	MemoryCapacity int64 // Bytes, zero disables L1

	DiskCapacity     int64  // Bytes, zero disables L2
	Dir              string // Directory for L2 files
	CompressionLevel int    // Zstd level (1-22), zero stores clips as-is

	TTL time.Duration // Age after which disk entries are dropped on open, zero keeps them
}

// DefaultConfig returns the default cache configuration.
func DefaultConfig() Config {
	return Config{
		MemoryCapacity:   16 * 1024 * 1024,  // 16MB
		DiskCapacity:     100 * 1024 * 1024, // 100MB
		CompressionLevel: 3,
		TTL:              7 * 24 * time.Hour,
	}
}

// Key derives a fixed-length cache key from its parts.
func Key(parts ...string) string {
	hash := sha256.Sum256([]byte(strings.Join(parts, "\x00")))
	return hex.EncodeToString(hash[:16])
}
