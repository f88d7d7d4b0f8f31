package playback

// Event is a state change published on Controller.Events.
type Event interface {
	event()
}

// HighlightEvent reports the highlighted slot. Index is -1 when the
// highlight is cleared.
type HighlightEvent struct {
	Index int
}

// StatusEvent carries a new status text.
type StatusEvent struct {
	Text string
}

// PlayingEvent reports that a sequence started or ended.
type PlayingEvent struct {
	Playing bool
}

// SlotEvent reports a slot state change. Err is set for SlotErrored.
type SlotEvent struct {
	Index int
	State SlotState
	Err   error
}

func (HighlightEvent) event() {}
func (StatusEvent) event()    {}
func (PlayingEvent) event()   {}
func (SlotEvent) event()      {}
