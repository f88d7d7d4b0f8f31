package playback

import (
	"errors"
	"fmt"
)

var (
	// ErrAudioLoad reports that a clip could not be fetched or decoded.
	ErrAudioLoad = errors.New("audio failed to load")

	// ErrAudioTimeout reports that a slot produced no terminal signal in time.
	ErrAudioTimeout = errors.New("audio timed out")

	// ErrNotReady is returned by a Backend asked to play a slot it has no
	// clip or pending load for.
	ErrNotReady = errors.New("audio not ready")

	// ErrClosed is returned by operations on a closed controller.
	ErrClosed = errors.New("playback controller closed")
)

// SlotError ties a playback failure to the slot it happened on.
type SlotError struct {
	Index int
	Token string
	Err   error
}

// Error implements the error interface.
func (e *SlotError) Error() string {
	return fmt.Sprintf("slot %d (%q): %v", e.Index, e.Token, e.Err)
}

// Unwrap returns the underlying error.
func (e *SlotError) Unwrap() error {
	return e.Err
}
