package playback

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/charmbracelet/log"
	"github.com/codexplain/codexplain/internal/explain"
)

const inboxSize = 128

// Session is the user-visible playback state.
type Session struct {
	Playing      bool   // a sequence is running
	CurrentIndex int    // last slot started by the sequence, -1 before the first
	Highlighted  int    // highlighted slot, -1 for none
	Status       string // status line text
}

// Snapshot is a consistent copy of the controller state.
type Snapshot struct {
	Session
	Slots []SlotState
}

// Option configures a Controller.
type Option func(*Controller)

// WithConfig sets the controller timings.
func WithConfig(cfg Config) Option {
	return func(c *Controller) {
		c.cfg = cfg
	}
}

// WithClock sets the clock used for timers.
func WithClock(clk clock.Clock) Option {
	return func(c *Controller) {
		c.clock = clk
	}
}

// WithLogger sets the logger.
func WithLogger(logger *log.Logger) Option {
	return func(c *Controller) {
		c.logger = logger
	}
}

// Controller plays the explanations of one token sequence.
type Controller struct {
	backend  Backend
	resolver Resolver
	clock    clock.Clock
	cfg      Config
	logger   *log.Logger

	inbox  chan func()
	events chan Event

	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once

	// Owned by the loop goroutine.
	session  Session
	slots    []*slot
	seq      *attempt     // the sequence's in-flight attempt
	pending  *clock.Timer // delayed move to the next slot
	attempts uint64
	epoch    uint64 // bumped whenever a sequence starts or halts
	failures int
}

// New creates a controller for tokens and starts its loop. Close releases it.
func New(tokens []explain.Token, backend Backend, resolver Resolver, options ...Option) (*Controller, error) {
	c := &Controller{
		backend:  backend,
		resolver: resolver,
		clock:    clock.New(),
		cfg:      DefaultConfig(),
		logger:   log.Default().WithPrefix("playback"),
	}

	for _, option := range options {
		option(c)
	}

	if err := c.cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid playback config: %w", err)
	}

	c.slots = make([]*slot, len(tokens))
	for i, tok := range tokens {
		c.slots[i] = &slot{index: i, token: tok}
	}

	c.session = Session{
		CurrentIndex: -1,
		Highlighted:  -1,
		Status:       StatusReady,
	}
	if len(tokens) == 0 {
		c.session.Status = StatusNoTokens
	}

	c.inbox = make(chan func(), inboxSize)
	c.events = make(chan Event, c.cfg.EventBuffer)
	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.done = make(chan struct{})

	go c.run()

	return c, nil
}

// Events returns the channel state changes are published on. It is closed
// when the controller is closed. Events are dropped only while closing, so
// the channel must be drained.
func (c *Controller) Events() <-chan Event {
	return c.events
}

// Start plays all slots in order. It does nothing while a sequence runs.
func (c *Controller) Start() {
	c.post(c.start)
}

// Stop silences everything and ends the sequence.
func (c *Controller) Stop() {
	c.post(c.stop)
}

// Advance moves the sequence to the next slot.
func (c *Controller) Advance() {
	c.post(c.next)
}

// PlaySlot plays one slot. A sequential play belongs to the running
// sequence; a manual one never changes the sequence position.
func (c *Controller) PlaySlot(index int, sequential bool) {
	c.post(func() { c.playSlot(index, sequential) })
}

// Select plays the slot of a clicked label.
func (c *Controller) Select(index int) {
	c.PlaySlot(index, false)
}

// Snapshot returns the current state. After Close it returns ErrClosed.
func (c *Controller) Snapshot() (Snapshot, error) {
	reply := make(chan Snapshot, 1)
	if !c.post(func() { reply <- c.snapshot() }) {
		return Snapshot{}, ErrClosed
	}

	select {
	case s := <-reply:
		return s, nil
	case <-c.done:
		return Snapshot{}, ErrClosed
	}
}

// Close stops playback and ends the loop. Later calls are no-ops.
func (c *Controller) Close() error {
	c.closeOnce.Do(func() {
		c.cancel()
		<-c.done
	})
	return nil
}

func (c *Controller) run() {
	defer close(c.done)
	defer close(c.events)

	for {
		select {
		case fn := <-c.inbox:
			fn()
		case <-c.ctx.Done():
			c.halt()
			return
		}
	}
}

func (c *Controller) post(fn func()) bool {
	select {
	case <-c.ctx.Done():
		return false
	default:
	}

	select {
	case c.inbox <- fn:
		return true
	case <-c.ctx.Done():
		return false
	}
}

// later returns a timer callback that runs fn on the loop.
func (c *Controller) later(fn func()) func() {
	return func() { c.post(fn) }
}

func (c *Controller) emit(ev Event) {
	select {
	case c.events <- ev:
	case <-c.ctx.Done():
	}
}

func (c *Controller) snapshot() Snapshot {
	s := Snapshot{
		Session: c.session,
		Slots:   make([]SlotState, len(c.slots)),
	}
	for i, sl := range c.slots {
		s.Slots[i] = sl.state
	}
	return s
}

func (c *Controller) start() {
	if len(c.slots) == 0 {
		c.setStatus(StatusNoTokens)
		return
	}
	if c.session.Playing {
		c.logger.Debug("Sequence already running")
		return
	}

	c.halt()
	c.failures = 0
	c.setPlaying(true)
	c.session.CurrentIndex = -1
	c.setStatus(StatusStarting)
	c.next()
}

func (c *Controller) stop() {
	c.halt()
	c.setStatus(StatusStopped)
}

// halt silences every slot, cancels every timer and ends the sequence.
func (c *Controller) halt() {
	for _, s := range c.slots {
		c.silence(s, true)
	}
	if c.seq != nil {
		c.seq.release()
		c.seq = nil
	}
	if c.pending != nil {
		c.pending.Stop()
		c.pending = nil
	}
	c.epoch++
	c.clearHighlight()
	c.setPlaying(false)
}

func (c *Controller) next() {
	if !c.session.Playing {
		return
	}

	if c.session.CurrentIndex >= len(c.slots)-1 {
		c.halt()
		c.setStatus(StatusComplete)
		c.logger.Debug("Sequence complete", "slots", len(c.slots))
		return
	}

	c.session.CurrentIndex++
	c.playSlot(c.session.CurrentIndex, true)
}

func (c *Controller) scheduleNext(d time.Duration) {
	if d <= 0 {
		c.next()
		return
	}

	if c.pending != nil {
		c.pending.Stop()
	}
	epoch := c.epoch
	c.pending = c.clock.AfterFunc(d, c.later(func() {
		if c.epoch != epoch {
			return
		}
		c.pending = nil
		c.next()
	}))
}

func (c *Controller) playSlot(index int, sequential bool) {
	if index < 0 || index >= len(c.slots) {
		c.logger.Warn("Ignoring play request for unknown slot", "index", index, "slots", len(c.slots))
		return
	}
	s := c.slots[index]

	for _, other := range c.slots {
		c.silence(other, false)
	}

	if sequential && c.seq != nil {
		// Advance was called before the previous slot finished.
		c.seq.completed = true
		c.seq.release()
		c.seq = nil
	}

	c.attempts++
	ctx, cancel := context.WithCancel(c.ctx)
	a := &attempt{
		id:         c.attempts,
		sequential: sequential,
		cancel:     cancel,
	}
	s.attempt = a
	if sequential {
		c.seq = a
	}

	c.clearHighlight()
	c.highlight(index)
	c.setStatus(fmt.Sprintf(StatusExplaining, s.token.Token))

	if s.url == "" {
		url, err := c.resolver.Resolve(s.token.Explanation)
		if err != nil {
			c.finish(s, a, outcomeFailed, fmt.Errorf("%w: %w", ErrAudioLoad, err))
			return
		}
		s.url = url
	}

	c.setSlotState(s, SlotLoading, nil)

	a.safety = c.clock.AfterFunc(c.cfg.SafetyTimeout, c.later(func() { c.onSafetyTimeout(s, a) }))
	if c.cfg.ReadyTimeout > 0 {
		a.stall = c.clock.AfterFunc(c.cfg.ReadyTimeout, c.later(func() { c.onStall(s, a) }))
	}

	c.logger.Debug("Loading slot", "index", index, "token", s.token.Token, "sequential", sequential, "attempt", a.id)

	c.backend.Load(ctx, index, s.url, Signals{
		Ready:  c.later(func() { c.onReady(s, a) }),
		Ended:  c.later(func() { c.onEnded(s, a) }),
		Failed: func(err error) { c.post(func() { c.onFailed(s, a, err) }) },
	})
}

// silence pauses the slot and detaches its attempt. The safety timer of an
// unfinished sequential attempt survives unless full is set, so a sequence
// interrupted by a manual selection still moves on.
func (c *Controller) silence(s *slot, full bool) {
	a := s.attempt
	if a == nil {
		return
	}

	if s.state.Active() {
		if err := c.backend.Pause(s.index); err != nil {
			c.logger.Debug("Could not pause slot", "index", s.index, "err", err)
		}
		c.setSlotState(s, SlotIdle, nil)
	}

	a.silenced = true
	a.stopStall()
	if a.cancel != nil {
		a.cancel()
	}
	if full || !a.sequential || a.completed {
		a.stopSafety()
	}
	s.attempt = nil
}

func (c *Controller) live(s *slot, a *attempt) bool {
	return s.attempt == a && !a.completed && !a.silenced
}

func (c *Controller) onReady(s *slot, a *attempt) {
	if !c.live(s, a) || s.state != SlotLoading {
		return
	}
	a.stopStall()
	c.setSlotState(s, SlotReady, nil)
	c.play(s, a)
}

func (c *Controller) onStall(s *slot, a *attempt) {
	a.stall = nil
	if !c.live(s, a) || s.state != SlotLoading {
		return
	}
	c.logger.Debug("Clip not ready, playing anyway", "index", s.index, "after", c.cfg.ReadyTimeout)
	c.play(s, a)
}

func (c *Controller) play(s *slot, a *attempt) {
	if err := c.backend.Play(s.index); err != nil {
		c.finish(s, a, outcomeFailed, err)
		return
	}
	c.setSlotState(s, SlotPlaying, nil)
}

func (c *Controller) onEnded(s *slot, a *attempt) {
	if !c.live(s, a) {
		return
	}
	c.finish(s, a, outcomeEnded, nil)
}

func (c *Controller) onFailed(s *slot, a *attempt, err error) {
	if !c.live(s, a) {
		return
	}
	c.finish(s, a, outcomeFailed, err)
}

func (c *Controller) onSafetyTimeout(s *slot, a *attempt) {
	a.safety = nil
	if a.completed {
		return
	}
	if a.sequential {
		if c.seq != a || !c.session.Playing {
			return
		}
	} else if !c.live(s, a) {
		return
	}
	c.finish(s, a, outcomeTimeout, ErrAudioTimeout)
}

// finish handles the terminal outcome of an attempt exactly once.
func (c *Controller) finish(s *slot, a *attempt, out outcome, err error) {
	if a.completed {
		return
	}
	a.completed = true
	a.release()

	if err != nil {
		err = &SlotError{Index: s.index, Token: s.token.Token, Err: err}
	}

	if s.attempt == a {
		s.attempt = nil
		if out == outcomeEnded {
			c.setSlotState(s, SlotEnded, nil)
		} else {
			c.setSlotState(s, SlotErrored, err)
		}
	}

	if a.sequential {
		if c.seq == a {
			c.seq = nil
		}
		c.finishSequential(out, err)
		return
	}

	if c.session.Highlighted == s.index {
		c.clearHighlight()
	}
	if out == outcomeEnded {
		c.setStatus(StatusManualDone)
		return
	}
	c.logger.Warn("Playback failed", "outcome", out, "err", err)
	c.setStatus(StatusError)
}

func (c *Controller) finishSequential(out outcome, err error) {
	if !c.session.Playing {
		return
	}

	if out == outcomeEnded {
		c.failures = 0
		c.scheduleNext(c.cfg.AdvanceDelay)
		return
	}

	c.logger.Warn("Skipping slot", "outcome", out, "err", err)
	c.failures++
	if limit := c.cfg.MaxConsecutiveFailures; limit > 0 && c.failures >= limit {
		c.logger.Error("Too many playback errors, stopping", "failures", c.failures)
		c.halt()
		c.setStatus(StatusAborted)
		return
	}

	if out == outcomeTimeout {
		c.next()
		return
	}
	c.scheduleNext(c.cfg.ErrorDelay)
}

func (c *Controller) setSlotState(s *slot, to SlotState, err error) {
	if s.state == to {
		return
	}
	if !CanTransition(s.state, to) {
		c.logger.Warn("Invalid slot transition", "index", s.index, "from", s.state, "to", to)
		return
	}
	s.state = to
	c.emit(SlotEvent{Index: s.index, State: to, Err: err})
}

func (c *Controller) setStatus(text string) {
	c.session.Status = text
	c.emit(StatusEvent{Text: text})
}

func (c *Controller) setPlaying(playing bool) {
	if c.session.Playing == playing {
		return
	}
	c.session.Playing = playing
	c.emit(PlayingEvent{Playing: playing})
}

func (c *Controller) highlight(index int) {
	c.session.Highlighted = index
	c.emit(HighlightEvent{Index: index})
}

func (c *Controller) clearHighlight() {
	if c.session.Highlighted < 0 {
		return
	}
	c.session.Highlighted = -1
	c.emit(HighlightEvent{Index: -1})
}
