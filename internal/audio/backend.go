package audio

import (
	"context"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/codexplain/codexplain/internal/playback"
)

// Fetcher downloads the clip at a URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Backend plays playback slots through a Player.
type Backend struct {
	fetcher Fetcher
	player  Player
	decode  func([]byte) (*Clip, error)
	logger  *log.Logger

	mu      sync.Mutex
	slots   map[int]*entry
	current *entry
	gen     uint64
}

// entry is one loaded or loading slot.
type entry struct {
	slot     int
	gen      uint64
	sig      playback.Signals
	clip     *Clip
	loading  bool
	autoplay bool
	stop     chan struct{} // closed when the clip is silenced
}

// NewBackend creates a backend fetching clips with fetcher.
func NewBackend(fetcher Fetcher, player Player) *Backend {
	return &Backend{
		fetcher: fetcher,
		player:  player,
		decode:  Decode,
		logger:  log.Default().WithPrefix("audio"),
		slots:   make(map[int]*entry),
	}
}

// Load fetches and decodes the clip of slot in the background.
func (b *Backend) Load(ctx context.Context, slot int, url string, sig playback.Signals) {
	b.mu.Lock()
	b.silenceLocked(b.slots[slot])
	b.gen++
	e := &entry{slot: slot, gen: b.gen, sig: sig, loading: true}
	b.slots[slot] = e
	b.mu.Unlock()

	go b.load(ctx, e, url)
}

func (b *Backend) load(ctx context.Context, e *entry, url string) {
	clip, err := b.fetchClip(ctx, url)

	if ctx.Err() != nil {
		b.drop(e)
		return
	}
	if err != nil {
		b.logger.Debug("Clip failed to load", "slot", e.slot, "err", err)
		if b.drop(e) {
			e.sig.Failed(fmt.Errorf("%w: %w", playback.ErrAudioLoad, err))
		}
		return
	}

	b.mu.Lock()
	if b.slots[e.slot] != e {
		b.mu.Unlock()
		return
	}
	e.clip = clip
	e.loading = false
	autoplay := e.autoplay
	b.mu.Unlock()

	b.logger.Debug("Clip ready", "slot", e.slot, "duration", clip.Duration())
	e.sig.Ready()

	if autoplay {
		b.mu.Lock()
		if b.slots[e.slot] == e && e.autoplay {
			err = b.startLocked(e)
		}
		b.mu.Unlock()
		if err != nil {
			e.sig.Failed(err)
		}
	}
}

func (b *Backend) fetchClip(ctx context.Context, url string) (*Clip, error) {
	data, err := b.fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	return b.decode(data)
}

// drop forgets e if it is still the slot's entry and reports whether it was.
func (b *Backend) drop(e *entry) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.slots[e.slot] != e {
		return false
	}
	delete(b.slots, e.slot)
	return true
}

// Play starts the clip of slot. A slot that is still loading starts as soon
// as its clip arrives.
func (b *Backend) Play(slot int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.slots[slot]
	if !ok {
		return playback.ErrNotReady
	}
	if e.loading {
		e.autoplay = true
		return nil
	}
	if e == b.current {
		return nil
	}
	return b.startLocked(e)
}

func (b *Backend) startLocked(e *entry) error {
	if b.current != nil && b.current != e {
		b.silenceLocked(b.current)
	}

	done, err := b.player.Play(e.clip)
	if err != nil {
		return fmt.Errorf("%w: %w", playback.ErrAudioLoad, err)
	}

	e.autoplay = false
	e.stop = make(chan struct{})
	b.current = e
	go b.watch(e, done, e.stop)
	return nil
}

// watch reports the natural end of e's clip.
func (b *Backend) watch(e *entry, done <-chan struct{}, stop chan struct{}) {
	select {
	case <-stop:
		return
	case <-done:
	}

	b.mu.Lock()
	if b.current != e {
		b.mu.Unlock()
		return
	}
	b.current = nil
	e.stop = nil
	b.mu.Unlock()

	e.sig.Ended()
}

// Pause silences slot without reporting Ended and forgets its clip.
func (b *Backend) Pause(slot int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.slots[slot]
	if !ok {
		return nil
	}
	delete(b.slots, slot)
	b.silenceLocked(e)
	return nil
}

func (b *Backend) silenceLocked(e *entry) {
	if e == nil {
		return
	}
	e.autoplay = false
	if e.stop != nil {
		close(e.stop)
		e.stop = nil
	}
	if b.current == e {
		b.current = nil
		if err := b.player.Stop(); err != nil {
			b.logger.Debug("Could not stop player", "err", err)
		}
	}
}

// Close silences everything and releases the player.
func (b *Backend) Close() error {
	b.mu.Lock()
	for slot, e := range b.slots {
		b.silenceLocked(e)
		delete(b.slots, slot)
	}
	b.mu.Unlock()

	return b.player.Close()
}

var _ playback.Backend = (*Backend)(nil)
