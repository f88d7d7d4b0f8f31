package cache

import (
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
)

// Store coordinates the memory and disk tiers. Either tier may be disabled
// by giving it a zero capacity.
type Store struct {
	memory *MemoryCache
	disk   *DiskCache

	logger *log.Logger

	mu     sync.Mutex
	closed bool
}

// NewStore creates a store from cfg. The disk tier needs cfg.Dir.
func NewStore(cfg Config) (*Store, error) {
	s := &Store{
		logger: log.Default().WithPrefix("cache"),
	}

	if cfg.MemoryCapacity > 0 {
		s.memory = NewMemoryCache(cfg.MemoryCapacity)
	}

	if cfg.DiskCapacity > 0 && cfg.Dir != "" {
		disk, err := NewDiskCache(cfg.Dir, cfg.DiskCapacity, cfg.CompressionLevel, cfg.TTL)
		if err != nil {
			return nil, fmt.Errorf("unable to open disk cache: %w", err)
		}
		s.disk = disk

		s.logger.Debug("Opened clip cache",
			"dir", cfg.Dir,
			"size", humanize.Bytes(uint64(disk.Size())), //nolint:gosec
			"capacity", humanize.Bytes(uint64(cfg.DiskCapacity))) //nolint:gosec
	}

	return s, nil
}

// Get looks key up in memory, then on disk. Disk hits are promoted to memory.
func (s *Store) Get(key string) ([]byte, Level, bool) {
	if s == nil || s.isClosed() {
		return nil, 0, false
	}

	if s.memory != nil {
		if data, ok := s.memory.Get(key); ok {
			return data, LevelMemory, true
		}
	}

	if s.disk != nil {
		if data, ok := s.disk.Get(key); ok {
			if s.memory != nil {
				_ = s.memory.Put(key, data)
			}
			return data, LevelDisk, true
		}
	}

	return nil, 0, false
}

// Put stores value in every enabled tier. A clip too large for a tier is
// skipped for that tier only.
func (s *Store) Put(key string, value []byte) error {
	if s == nil {
		return nil
	}
	if s.isClosed() {
		return ErrClosed
	}

	if s.memory != nil {
		if err := s.memory.Put(key, value); err != nil && err != ErrItemTooLarge {
			return fmt.Errorf("memory cache: %w", err)
		}
	}

	if s.disk != nil {
		if err := s.disk.Put(key, value); err != nil && err != ErrItemTooLarge {
			return fmt.Errorf("disk cache: %w", err)
		}
	}

	return nil
}

// Stats returns the counters of the enabled tiers.
func (s *Store) Stats() map[Level]Stats {
	stats := make(map[Level]Stats)
	if s == nil {
		return stats
	}
	if s.memory != nil {
		stats[LevelMemory] = s.memory.Stats()
	}
	if s.disk != nil {
		stats[LevelDisk] = s.disk.Stats()
	}
	return stats
}

// Close persists the disk index. Later calls are no-ops.
func (s *Store) Close() error {
	if s == nil {
		return nil
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	for level, st := range s.Stats() {
		s.logger.Debug("Clip cache stats",
			"level", level,
			"items", st.Items,
			"size", humanize.Bytes(uint64(st.Size)), //nolint:gosec
			"hit_rate", fmt.Sprintf("%.0f%%", st.HitRate()*100))
	}

	if s.memory != nil {
		s.memory.Clear()
	}
	if s.disk != nil {
		if err := s.disk.Close(); err != nil {
			return fmt.Errorf("unable to close disk cache: %w", err)
		}
	}
	return nil
}

func (s *Store) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
