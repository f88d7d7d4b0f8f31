package playback

import (
	"context"

	"github.com/benbjohnson/clock"
	"github.com/codexplain/codexplain/internal/explain"
)

// SlotState is the media state of one token's clip.
type SlotState int

const (
	// SlotIdle means nothing is loading or playing.
	SlotIdle SlotState = iota
	// SlotLoading means the clip is being fetched.
	SlotLoading
	// SlotReady means the clip can play through.
	SlotReady
	// SlotPlaying means the clip is audible.
	SlotPlaying
	// SlotEnded means the clip played to the end.
	SlotEnded
	// SlotErrored means the clip failed or timed out.
	SlotErrored
)

// String returns the string representation of the state.
func (s SlotState) String() string {
	switch s {
	case SlotIdle:
		return "idle"
	case SlotLoading:
		return "loading"
	case SlotReady:
		return "ready"
	case SlotPlaying:
		return "playing"
	case SlotEnded:
		return "ended"
	case SlotErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// Active reports whether the slot holds media that may need silencing.
func (s SlotState) Active() bool {
	return s == SlotLoading || s == SlotReady || s == SlotPlaying
}

var slotTransitions = map[SlotState][]SlotState{
	SlotIdle:    {SlotLoading, SlotErrored},
	SlotLoading: {SlotReady, SlotPlaying, SlotErrored, SlotIdle},
	SlotReady:   {SlotPlaying, SlotErrored, SlotIdle},
	SlotPlaying: {SlotEnded, SlotErrored, SlotIdle},
	SlotEnded:   {SlotLoading, SlotIdle},
	SlotErrored: {SlotLoading, SlotIdle},
}

// CanTransition reports whether a slot may move from one state to another.
func CanTransition(from, to SlotState) bool {
	for _, s := range slotTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

type slot struct {
	index int
	token explain.Token
	url   string // resolved lazily
	state SlotState

	attempt *attempt // nil once silenced or finished
}

// attempt is one load-and-play cycle of a slot. Every signal and timer
// carries its attempt, and only the first terminal outcome is handled.
type attempt struct {
	id         uint64
	sequential bool
	completed  bool
	silenced   bool

	cancel context.CancelFunc
	safety *clock.Timer
	stall  *clock.Timer
}

func (a *attempt) stopStall() {
	if a.stall != nil {
		a.stall.Stop()
		a.stall = nil
	}
}

func (a *attempt) stopSafety() {
	if a.safety != nil {
		a.safety.Stop()
		a.safety = nil
	}
}

// release stops all timers and abandons the load.
func (a *attempt) release() {
	a.stopStall()
	a.stopSafety()
	if a.cancel != nil {
		a.cancel()
	}
}

type outcome int

const (
	outcomeEnded outcome = iota
	outcomeFailed
	outcomeTimeout
)

func (o outcome) String() string {
	switch o {
	case outcomeEnded:
		return "ended"
	case outcomeFailed:
		return "failed"
	case outcomeTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}
