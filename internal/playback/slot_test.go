package playback

import (
	"errors"
	"testing"
	"time"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to SlotState
		want     bool
	}{
		{SlotIdle, SlotLoading, true},
		{SlotIdle, SlotErrored, true},
		{SlotIdle, SlotPlaying, false},
		{SlotIdle, SlotEnded, false},
		{SlotLoading, SlotReady, true},
		{SlotLoading, SlotPlaying, true},
		{SlotLoading, SlotEnded, false},
		{SlotReady, SlotPlaying, true},
		{SlotReady, SlotLoading, false},
		{SlotPlaying, SlotEnded, true},
		{SlotPlaying, SlotIdle, true},
		{SlotPlaying, SlotLoading, false},
		{SlotEnded, SlotLoading, true},
		{SlotEnded, SlotPlaying, false},
		{SlotErrored, SlotLoading, true},
		{SlotErrored, SlotEnded, false},
	}

	for _, tt := range tests {
		t.Run(tt.from.String()+"->"+tt.to.String(), func(t *testing.T) {
			if got := CanTransition(tt.from, tt.to); got != tt.want {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestSlotStateActive(t *testing.T) {
	active := map[SlotState]bool{
		SlotIdle:    false,
		SlotLoading: true,
		SlotReady:   true,
		SlotPlaying: true,
		SlotEnded:   false,
		SlotErrored: false,
	}
	for state, want := range active {
		if got := state.Active(); got != want {
			t.Errorf("%s.Active() = %v, want %v", state, got, want)
		}
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"no forced play", func(c *Config) { c.ReadyTimeout = 0 }, false},
		{"zero safety timeout", func(c *Config) { c.SafetyTimeout = 0 }, true},
		{"negative delay", func(c *Config) { c.AdvanceDelay = -time.Second }, true},
		{"ready after safety", func(c *Config) { c.ReadyTimeout = 200 * time.Second }, true},
		{"negative failures", func(c *Config) { c.MaxConsecutiveFailures = -1 }, true},
		{"negative buffer", func(c *Config) { c.EventBuffer = -1 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(&cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSlotErrorUnwrap(t *testing.T) {
	err := &SlotError{Index: 2, Token: "for", Err: ErrAudioTimeout}

	if !errors.Is(err, ErrAudioTimeout) {
		t.Error("SlotError should unwrap to its cause")
	}
	if got, want := err.Error(), `slot 2 ("for"): audio timed out`; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}
