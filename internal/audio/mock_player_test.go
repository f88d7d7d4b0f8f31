package audio

import (
	"sync/atomic"
	"testing"
	"time"
)

func testClip(d time.Duration) *Clip {
	frames := int(d * 44100 / time.Second)
	return &Clip{PCM: make([]byte, frames*frameSize), SampleRate: 44100}
}

func TestMockPlayer_NaturalEnd(t *testing.T) {
	var ended atomic.Int32
	player := NewMockPlayer(MockCallbacks{
		OnEnd: func() { ended.Add(1) },
	})
	defer player.Close()
	player.SetDelayFactor(0.01)

	if player.GetState() != StateStopped {
		t.Errorf("Initial state should be Stopped, got %v", player.GetState())
	}

	done, err := player.Play(testClip(time.Second))
	if err != nil {
		t.Fatalf("Play failed: %v", err)
	}
	if !player.IsPlaying() {
		t.Error("Player should be playing after Play()")
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("clip did not end")
	}

	if player.IsPlaying() {
		t.Error("Player should not be playing after the clip ended")
	}
	if ended.Load() != 1 {
		t.Errorf("OnEnd called %d times, want 1", ended.Load())
	}
	if m := player.GetMetrics(); m.PlayCount != 1 || m.EndCount != 1 || m.StopCount != 0 {
		t.Errorf("unexpected metrics %+v", m)
	}
}

func TestMockPlayer_StopDoesNotEnd(t *testing.T) {
	player := DefaultMockPlayer()
	defer player.Close()
	player.SetDelayFactor(0.05)

	done, err := player.Play(testClip(time.Second))
	if err != nil {
		t.Fatalf("Play failed: %v", err)
	}

	if err := player.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if player.GetState() != StateStopped {
		t.Errorf("State should be Stopped after Stop(), got %v", player.GetState())
	}

	select {
	case <-done:
		t.Fatal("stopped clip reported its end")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestMockPlayer_PlayReplaces(t *testing.T) {
	player := DefaultMockPlayer()
	defer player.Close()
	player.SetDelayFactor(0.01)

	first, err := player.Play(testClip(10 * time.Second))
	if err != nil {
		t.Fatalf("Play failed: %v", err)
	}
	second, err := player.Play(testClip(time.Second))
	if err != nil {
		t.Fatalf("Play failed: %v", err)
	}

	select {
	case <-second:
	case <-time.After(time.Second):
		t.Fatal("second clip did not end")
	}

	select {
	case <-first:
		t.Fatal("replaced clip reported its end")
	default:
	}

	if m := player.GetMetrics(); m.StopCount != 1 {
		t.Errorf("StopCount = %d, want 1", m.StopCount)
	}
}

func TestMockPlayer_Errors(t *testing.T) {
	player := DefaultMockPlayer()

	if _, err := player.Play(nil); err == nil {
		t.Error("expected an error for a nil clip")
	}
	if err := player.SetVolume(1.5); err == nil {
		t.Error("expected an error for volume > 1")
	}
	if err := player.SetVolume(0.5); err != nil || player.GetVolume() != 0.5 {
		t.Errorf("SetVolume(0.5) = %v, volume %v", err, player.GetVolume())
	}

	player.SetSimulateErrors(true, 1)
	if _, err := player.Play(testClip(time.Second)); err == nil {
		t.Error("expected a simulated error")
	}
	player.SetSimulateErrors(false, 0)

	if err := player.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if _, err := player.Play(testClip(time.Second)); err != ErrPlayerClosed {
		t.Errorf("Play after close = %v, want ErrPlayerClosed", err)
	}
}

func TestPlayerStateString(t *testing.T) {
	tests := map[PlayerState]string{
		StateStopped:    "stopped",
		StatePlaying:    "playing",
		StateClosed:     "closed",
		PlayerState(42): "unknown",
	}
	for state, want := range tests {
		if got := state.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", state, got, want)
		}
	}
}

func TestNewPlayerConfig(t *testing.T) {
	tests := []struct {
		name      string
		config    PlayerConfig
		expectErr bool
	}{
		{"default", DefaultPlayerConfig(), false},
		{"driver buffer", PlayerConfig{Volume: 0.3}, false},
		{"negative buffer", PlayerConfig{BufferSize: -time.Second, Volume: 1}, true},
		{"volume too high", PlayerConfig{Volume: 2}, true},
	}

	// NewPlayer does not touch the audio device.
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewPlayer(tt.config)
			if (err != nil) != tt.expectErr {
				t.Fatalf("NewPlayer() error = %v, expectErr %v", err, tt.expectErr)
			}
			if err == nil && p.State() != StateStopped {
				t.Errorf("State() = %v, want stopped", p.State())
			}
		})
	}
}
