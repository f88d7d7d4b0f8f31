package audio

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// MockPlayer simulates playback without producing sound. It is used by
// tests and by muted runs.
type MockPlayer struct {
	state atomic.Int32 // PlayerState

	// Current clip
	clip   *Clip
	stopCh chan struct{}
	volume float64

	// Test callbacks
	callbacks MockCallbacks

	mu sync.Mutex

	// Test configuration
	simulateErrors bool
	errorRate      float64
	delayFactor    float64 // Scales simulated playing time

	// Metrics for testing
	playCount atomic.Int64
	stopCount atomic.Int64
	endCount  atomic.Int64
}

// MockCallbacks provides hooks for testing.
type MockCallbacks struct {
	OnPlay  func(clip *Clip)
	OnStop  func()
	OnEnd   func()
	OnClose func()
}

// DefaultMockPlayer creates a mock player playing in real time.
func DefaultMockPlayer() *MockPlayer {
	mp := &MockPlayer{
		volume:      1.0,
		delayFactor: 1.0,
	}
	mp.state.Store(int32(StateStopped))
	return mp
}

// NewMockPlayer creates a mock player with custom callbacks.
func NewMockPlayer(callbacks MockCallbacks) *MockPlayer {
	mp := DefaultMockPlayer()
	mp.callbacks = callbacks
	return mp
}

// Play starts simulating clip.
func (mp *MockPlayer) Play(clip *Clip) (<-chan struct{}, error) {
	if clip == nil || len(clip.PCM) == 0 {
		return nil, errors.New("audio data is empty")
	}

	mp.mu.Lock()
	defer mp.mu.Unlock()

	if PlayerState(mp.state.Load()) == StateClosed {
		return nil, ErrPlayerClosed
	}

	mp.stopLocked()

	count := mp.playCount.Add(1)
	if mp.simulateErrors && mp.shouldError(count) {
		return nil, errors.New("simulated playback error")
	}

	mp.clip = clip
	mp.stopCh = make(chan struct{})
	mp.state.Store(int32(StatePlaying))

	done := make(chan struct{})
	d := time.Duration(float64(clip.Duration()) * mp.delayFactor)
	go mp.simulatePlayback(d, mp.stopCh, done)

	if mp.callbacks.OnPlay != nil {
		mp.callbacks.OnPlay(clip)
	}

	return done, nil
}

// simulatePlayback closes done after d unless stopped first.
func (mp *MockPlayer) simulatePlayback(d time.Duration, stop, done chan struct{}) {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-stop:
		return
	case <-timer.C:
	}

	mp.mu.Lock()
	if mp.stopCh != stop {
		mp.mu.Unlock()
		return
	}
	mp.stopCh = nil
	mp.clip = nil
	mp.state.Store(int32(StateStopped))
	mp.mu.Unlock()

	mp.endCount.Add(1)
	if mp.callbacks.OnEnd != nil {
		mp.callbacks.OnEnd()
	}
	close(done)
}

// Stop silences the current clip.
func (mp *MockPlayer) Stop() error {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	mp.stopLocked()
	return nil
}

func (mp *MockPlayer) stopLocked() {
	if mp.stopCh == nil {
		return
	}

	close(mp.stopCh)
	mp.stopCh = nil
	mp.clip = nil
	if PlayerState(mp.state.Load()) != StateClosed {
		mp.state.Store(int32(StateStopped))
	}
	mp.stopCount.Add(1)

	if mp.callbacks.OnStop != nil {
		mp.callbacks.OnStop()
	}
}

// IsPlaying returns whether a clip is playing.
func (mp *MockPlayer) IsPlaying() bool {
	return PlayerState(mp.state.Load()) == StatePlaying
}

// SetVolume sets the playback volume (0.0 to 1.0).
func (mp *MockPlayer) SetVolume(volume float64) error {
	if volume < 0.0 || volume > 1.0 {
		return fmt.Errorf("volume must be between 0.0 and 1.0, got %f", volume)
	}

	mp.mu.Lock()
	defer mp.mu.Unlock()

	mp.volume = volume
	return nil
}

// Close stops playback.
func (mp *MockPlayer) Close() error {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	if PlayerState(mp.state.Load()) == StateClosed {
		return nil
	}

	mp.stopLocked()
	mp.state.Store(int32(StateClosed))

	if mp.callbacks.OnClose != nil {
		mp.callbacks.OnClose()
	}
	return nil
}

// Test helper methods

// GetState returns the current player state for testing.
func (mp *MockPlayer) GetState() PlayerState {
	return PlayerState(mp.state.Load())
}

// GetVolume returns the current volume for testing.
func (mp *MockPlayer) GetVolume() float64 {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	return mp.volume
}

// Current returns the clip being played, or nil.
func (mp *MockPlayer) Current() *Clip {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	return mp.clip
}

// SetDelayFactor scales simulated playing time.
// 1.0 is real time, 0.01 plays a second of audio in 10ms.
func (mp *MockPlayer) SetDelayFactor(factor float64) {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	mp.delayFactor = factor
}

// SetSimulateErrors makes roughly rate of all plays fail.
func (mp *MockPlayer) SetSimulateErrors(enabled bool, rate float64) {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	mp.simulateErrors = enabled
	mp.errorRate = rate
}

// shouldError fails every 1/errorRate-th play.
func (mp *MockPlayer) shouldError(count int64) bool {
	if mp.errorRate <= 0 {
		return false
	}
	every := int64(1 / mp.errorRate)
	if every < 1 {
		every = 1
	}
	return count%every == 0
}

// GetMetrics returns playback metrics for testing.
func (mp *MockPlayer) GetMetrics() MockPlayerMetrics {
	return MockPlayerMetrics{
		PlayCount: mp.playCount.Load(),
		StopCount: mp.stopCount.Load(),
		EndCount:  mp.endCount.Load(),
	}
}

// MockPlayerMetrics contains playback metrics for testing.
type MockPlayerMetrics struct {
	PlayCount int64
	StopCount int64
	EndCount  int64
}

var _ Player = (*MockPlayer)(nil)
