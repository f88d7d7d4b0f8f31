package playback

import "context"

// Signals carries a slot's media notifications back to the controller.
// Each may be called from any goroutine, at most once per load.
type Signals struct {
	Ready  func()          // the clip can play through
	Ended  func()          // playback reached the end of the clip
	Failed func(err error) // the clip could not be loaded or played
}

// Backend loads and plays the audio of individual slots.
type Backend interface {
	// Load starts fetching the clip at url for slot. It must not block on
	// the download; outcomes are reported through sig. Cancelling ctx
	// abandons the load.
	Load(ctx context.Context, slot int, url string, sig Signals)

	// Play starts the slot's clip, silencing any other. Asked to play a
	// slot that is still loading, it starts as soon as the clip arrives.
	// It returns ErrNotReady if the slot has nothing loaded or loading.
	Play(slot int) error

	// Pause silences the slot without reporting Ended.
	Pause(slot int) error
}

// Resolver maps explanation text to a fetchable clip URL.
type Resolver interface {
	Resolve(text string) (string, error)
}

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(text string) (string, error)

// Resolve calls f(text).
func (f ResolverFunc) Resolve(text string) (string, error) {
	return f(text)
}
