package audio

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/ebitengine/oto/v3"
)

// ErrPlayerClosed is returned by operations on a closed player.
var ErrPlayerClosed = errors.New("player is closed")

// PlayerState represents the current state of a player.
type PlayerState int32

const (
	StateStopped PlayerState = iota
	StatePlaying
	StateClosed
)

// String returns the string representation of the state.
func (s PlayerState) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StatePlaying:
		return "playing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Player plays one clip at a time.
type Player interface {
	// Play replaces whatever is playing with clip. The returned channel is
	// closed when the clip plays to its end, never when it is stopped.
	Play(clip *Clip) (<-chan struct{}, error)
	// Stop silences the current clip.
	Stop() error
	IsPlaying() bool
	SetVolume(volume float64) error
	Close() error
}

// OtoPlayer plays clips on the sound card.
type OtoPlayer struct {
	// The oto context can only be created once per process, so it is
	// created with the sample rate of the first clip.
	context    *oto.Context
	sampleRate int
	bufferSize time.Duration

	player *oto.Player
	// Keeps the PCM of the current clip alive while oto reads it.
	activeStream *AudioStream
	stop         chan struct{}

	state  atomic.Int32
	volume atomic.Uint64 // math.Float64bits

	mu     sync.Mutex
	logger *log.Logger
}

// AudioStream is the PCM oto is currently reading.
type AudioStream struct {
	data     []byte
	duration time.Duration
}

// PlayerConfig contains configuration for the oto player.
type PlayerConfig struct {
	BufferSize time.Duration // Device buffer, zero for the driver default
	Volume     float64       // 0.0 to 1.0
}

// DefaultPlayerConfig returns the default player configuration.
func DefaultPlayerConfig() PlayerConfig {
	return PlayerConfig{
		BufferSize: 100 * time.Millisecond,
		Volume:     1.0,
	}
}

// NewPlayer creates an oto player. The audio device is opened with the
// first clip.
func NewPlayer(config PlayerConfig) (*OtoPlayer, error) {
	if config.BufferSize < 0 {
		return nil, errors.New("buffer size must not be negative")
	}

	p := &OtoPlayer{
		bufferSize: config.BufferSize,
		logger:     log.Default().WithPrefix("audio"),
	}
	p.state.Store(int32(StateStopped))
	if err := p.SetVolume(config.Volume); err != nil {
		return nil, err
	}

	return p, nil
}

// ensureContext must be called with the lock held.
func (p *OtoPlayer) ensureContext(sampleRate int) error {
	if p.context != nil {
		return nil
	}

	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: Channels,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   p.bufferSize,
	})
	if err != nil {
		return fmt.Errorf("failed to create oto context: %w", err)
	}
	<-ready

	p.context = ctx
	p.sampleRate = sampleRate
	p.logger.Debug("Opened audio device", "sample_rate", sampleRate)
	return nil
}

// Play starts clip, replacing the current one.
func (p *OtoPlayer) Play(clip *Clip) (<-chan struct{}, error) {
	if clip == nil || len(clip.PCM) == 0 {
		return nil, errors.New("audio data is empty")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if PlayerState(p.state.Load()) == StateClosed {
		return nil, ErrPlayerClosed
	}

	if err := p.ensureContext(clip.SampleRate); err != nil {
		return nil, err
	}

	p.stopLocked()

	pcm := clip.PCM
	if clip.SampleRate != p.sampleRate {
		pcm = resample(pcm, clip.SampleRate, p.sampleRate)
	}
	stream := &AudioStream{data: pcm, duration: clip.Duration()}

	player := p.context.NewPlayer(bytes.NewReader(stream.data))
	player.SetVolume(p.getVolume())
	player.Play()

	done := make(chan struct{})
	stop := make(chan struct{})
	p.player = player
	p.activeStream = stream
	p.stop = stop
	p.state.Store(int32(StatePlaying))

	go p.watch(player, done, stop)

	p.logger.Debug("Playing clip", "duration", stream.duration, "bytes", len(stream.data))
	return done, nil
}

// watch closes done once oto has drained the clip.
func (p *OtoPlayer) watch(player *oto.Player, done, stop chan struct{}) {
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		if player.IsPlaying() {
			continue
		}

		p.mu.Lock()
		if p.player != player {
			p.mu.Unlock()
			return
		}
		if err := player.Err(); err != nil {
			p.logger.Warn("Playback error", "err", err)
		}
		_ = player.Close()
		p.player = nil
		p.activeStream = nil
		p.stop = nil
		p.state.Store(int32(StateStopped))
		p.mu.Unlock()

		close(done)
		return
	}
}

// Stop silences the current clip.
func (p *OtoPlayer) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stopLocked()
	return nil
}

func (p *OtoPlayer) stopLocked() {
	if p.player == nil {
		return
	}

	close(p.stop)
	p.player.Pause()
	_ = p.player.Close()
	p.player = nil
	p.activeStream = nil
	p.stop = nil

	if PlayerState(p.state.Load()) != StateClosed {
		p.state.Store(int32(StateStopped))
	}
}

// IsPlaying returns whether a clip is playing.
func (p *OtoPlayer) IsPlaying() bool {
	return PlayerState(p.state.Load()) == StatePlaying
}

// SetVolume sets the playback volume (0.0 to 1.0).
func (p *OtoPlayer) SetVolume(volume float64) error {
	if volume < 0.0 || volume > 1.0 {
		return fmt.Errorf("volume must be between 0.0 and 1.0, got %f", volume)
	}

	p.volume.Store(math.Float64bits(volume))

	p.mu.Lock()
	if p.player != nil {
		p.player.SetVolume(volume)
	}
	p.mu.Unlock()

	return nil
}

func (p *OtoPlayer) getVolume() float64 {
	return math.Float64frombits(p.volume.Load())
}

// Close stops playback and suspends the audio device.
func (p *OtoPlayer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if PlayerState(p.state.Load()) == StateClosed {
		return nil
	}

	p.stopLocked()
	p.state.Store(int32(StateClosed))

	// oto contexts cannot be closed, only suspended.
	if p.context != nil {
		return p.context.Suspend()
	}
	return nil
}

// State returns the current player state.
func (p *OtoPlayer) State() PlayerState {
	return PlayerState(p.state.Load())
}

var _ Player = (*OtoPlayer)(nil)
