package playback

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/charmbracelet/log"
	"github.com/codexplain/codexplain/internal/explain"
)

// fakeBackend records what the controller asks of the media layer and lets
// tests fire media signals by hand.
type fakeBackend struct {
	mu        sync.Mutex
	signals   map[int]Signals
	ctxs      map[int]context.Context
	urls      map[int]string
	loads     map[int]int
	playing   map[int]bool
	playErr   map[int]error
	autoReady bool
	overlaps  int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		signals: make(map[int]Signals),
		ctxs:    make(map[int]context.Context),
		urls:    make(map[int]string),
		loads:   make(map[int]int),
		playing: make(map[int]bool),
		playErr: make(map[int]error),
	}
}

func (f *fakeBackend) Load(ctx context.Context, slot int, url string, sig Signals) {
	f.mu.Lock()
	f.signals[slot] = sig
	f.ctxs[slot] = ctx
	f.urls[slot] = url
	f.loads[slot]++
	auto := f.autoReady
	f.mu.Unlock()

	if auto {
		sig.Ready()
	}
}

func (f *fakeBackend) Play(slot int) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.playErr[slot]; err != nil {
		return err
	}
	for s, on := range f.playing {
		if on && s != slot {
			f.overlaps++
		}
	}
	f.playing[slot] = true
	return nil
}

func (f *fakeBackend) Pause(slot int) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.playing[slot] = false
	return nil
}

func (f *fakeBackend) sig(t *testing.T, slot int) Signals {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()

	sig, ok := f.signals[slot]
	if !ok {
		t.Fatalf("slot %d was never loaded", slot)
	}
	return sig
}

func (f *fakeBackend) ready(t *testing.T, slot int) { f.sig(t, slot).Ready() }

func (f *fakeBackend) end(t *testing.T, slot int) {
	sig := f.sig(t, slot)
	f.mu.Lock()
	f.playing[slot] = false
	f.mu.Unlock()
	sig.Ended()
}

func (f *fakeBackend) fail(t *testing.T, slot int, err error) { f.sig(t, slot).Failed(err) }

func (f *fakeBackend) loadCount(slot int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loads[slot]
}

func (f *fakeBackend) overlapCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.overlaps
}

func (f *fakeBackend) loadContext(slot int) context.Context {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ctxs[slot]
}

// recorder drains the controller's events.
type recorder struct {
	mu     sync.Mutex
	events []Event
	done   chan struct{}
}

func record(c *Controller) *recorder {
	r := &recorder{done: make(chan struct{})}
	go func() {
		defer close(r.done)
		for ev := range c.Events() {
			r.mu.Lock()
			r.events = append(r.events, ev)
			r.mu.Unlock()
		}
	}()
	return r
}

func (r *recorder) statuses() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []string
	for _, ev := range r.events {
		if s, ok := ev.(StatusEvent); ok {
			out = append(out, s.Text)
		}
	}
	return out
}

func (r *recorder) count(match func(Event) bool) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, ev := range r.events {
		if match(ev) {
			n++
		}
	}
	return n
}

// waitCount waits until exactly want recorded events match.
func (r *recorder) waitCount(t *testing.T, want int, match func(Event) bool) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for {
		got := r.count(match)
		if got == want {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("got %d matching events, want %d", got, want)
		}
		time.Sleep(time.Millisecond)
	}
}

func isStatus(text string) func(Event) bool {
	return func(ev Event) bool {
		s, ok := ev.(StatusEvent)
		return ok && s.Text == text
	}
}

func tokens(n int) []explain.Token {
	out := make([]explain.Token, n)
	for i := range out {
		out[i] = explain.Token{
			Index:       i,
			Token:       fmt.Sprintf("tok%d", i),
			Explanation: fmt.Sprintf("explains token %d", i),
		}
	}
	return out
}

var testResolver = ResolverFunc(func(text string) (string, error) {
	return "http://proxy.test/aiVoice?text=" + text, nil
})

type harness struct {
	c     *Controller
	fb    *fakeBackend
	clock *clock.Mock
	rec   *recorder
}

func newHarness(t *testing.T, n int, cfg Config) *harness {
	t.Helper()
	return newHarnessWith(t, tokens(n), cfg, testResolver)
}

func newHarnessWith(t *testing.T, toks []explain.Token, cfg Config, resolver Resolver) *harness {
	t.Helper()

	h := &harness{
		fb:    newFakeBackend(),
		clock: clock.NewMock(),
	}

	logger := log.New(io.Discard)
	c, err := New(toks, h.fb, resolver, WithConfig(cfg), WithClock(h.clock), WithLogger(logger))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	h.c = c
	h.rec = record(c)

	t.Cleanup(func() {
		_ = c.Close()
		<-h.rec.done
	})
	return h
}

func (h *harness) waitFor(t *testing.T, desc string, cond func(Snapshot) bool) Snapshot {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for {
		s, err := h.c.Snapshot()
		if err != nil {
			t.Fatalf("Snapshot() error = %v", err)
		}
		if cond(s) {
			return s
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s; last snapshot %+v", desc, s)
		}
		time.Sleep(time.Millisecond)
	}
}

func (h *harness) waitSlot(t *testing.T, index int, state SlotState) Snapshot {
	t.Helper()
	return h.waitFor(t, fmt.Sprintf("slot %d %s", index, state), func(s Snapshot) bool {
		return s.Slots[index] == state
	})
}

// settle gives posted timer callbacks a chance to run and returns the state.
func (h *harness) settle(t *testing.T) Snapshot {
	t.Helper()
	time.Sleep(10 * time.Millisecond)
	s, err := h.c.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	return s
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.AdvanceDelay = 0
	cfg.ErrorDelay = 0
	return cfg
}

func TestStartWithoutTokens(t *testing.T) {
	h := newHarness(t, 0, testConfig())

	h.c.Start()
	s := h.settle(t)

	if s.Playing {
		t.Error("expected not playing")
	}
	if s.Status != StatusNoTokens {
		t.Errorf("Status = %q, want %q", s.Status, StatusNoTokens)
	}
}

func TestInitialState(t *testing.T) {
	h := newHarness(t, 2, testConfig())

	s := h.settle(t)
	if s.Playing || s.CurrentIndex != -1 || s.Highlighted != -1 {
		t.Errorf("unexpected initial session %+v", s.Session)
	}
	if s.Status != StatusReady {
		t.Errorf("Status = %q, want %q", s.Status, StatusReady)
	}
	for i, st := range s.Slots {
		if st != SlotIdle {
			t.Errorf("slot %d = %s, want idle", i, st)
		}
	}
}

func TestSequenceNaturalEnd(t *testing.T) {
	cfg := testConfig()
	cfg.AdvanceDelay = 500 * time.Millisecond
	h := newHarness(t, 3, cfg)

	h.c.Start()

	for i := 0; i < 3; i++ {
		h.waitSlot(t, i, SlotLoading)
		h.fb.ready(t, i)
		s := h.waitSlot(t, i, SlotPlaying)

		if !s.Playing || s.CurrentIndex != i || s.Highlighted != i {
			t.Fatalf("slot %d: session %+v", i, s.Session)
		}
		if want := fmt.Sprintf(StatusExplaining, fmt.Sprintf("tok%d", i)); s.Status != want {
			t.Errorf("Status = %q, want %q", s.Status, want)
		}

		h.fb.end(t, i)
		h.waitSlot(t, i, SlotEnded)

		if i < 2 {
			// Nothing happens until the advance delay passes.
			if s := h.settle(t); s.Slots[i+1] != SlotIdle {
				t.Fatalf("slot %d started before the advance delay", i+1)
			}
		}
		h.clock.Add(500 * time.Millisecond)
	}

	s := h.waitFor(t, "completion", func(s Snapshot) bool { return s.Status == StatusComplete })
	if s.Playing {
		t.Error("expected playing to be false after completion")
	}
	if s.Highlighted != -1 {
		t.Errorf("Highlighted = %d, want -1", s.Highlighted)
	}
	if got := h.fb.overlapCount(); got != 0 {
		t.Errorf("%d overlapping plays", got)
	}

	h.rec.waitCount(t, 1, isStatus(StatusComplete))
	statuses := h.rec.statuses()
	if statuses[0] != StatusStarting {
		t.Errorf("first status = %q, want %q", statuses[0], StatusStarting)
	}
	if statuses[len(statuses)-1] != StatusComplete {
		t.Errorf("last status = %q, want %q", statuses[len(statuses)-1], StatusComplete)
	}
}

func TestStallThenSafetyTimeout(t *testing.T) {
	h := newHarness(t, 1, testConfig())

	h.c.Start()
	h.waitSlot(t, 0, SlotLoading)

	// The clip never becomes ready; after two seconds it is played anyway,
	// but nothing comes of it.
	h.clock.Add(2 * time.Second)
	s := h.waitSlot(t, 0, SlotPlaying)
	if !s.Playing {
		t.Fatal("sequence should still be running")
	}

	h.clock.Add(97 * time.Second)
	if s := h.settle(t); !s.Playing || s.Status == StatusComplete {
		t.Fatalf("completed before the safety timeout: %+v", s.Session)
	}

	h.clock.Add(time.Second)
	s = h.waitFor(t, "completion", func(s Snapshot) bool { return s.Status == StatusComplete })
	if s.Playing {
		t.Error("expected playing to be false")
	}
	if s.Slots[0] != SlotErrored {
		t.Errorf("slot 0 = %s, want errored", s.Slots[0])
	}
}

func TestForcedPlayFailureAdvances(t *testing.T) {
	cfg := testConfig()
	cfg.ErrorDelay = 100 * time.Millisecond
	h := newHarness(t, 2, cfg)
	h.fb.playErr[0] = ErrNotReady

	h.c.Start()
	h.waitSlot(t, 0, SlotLoading)

	h.clock.Add(2 * time.Second)
	h.waitSlot(t, 0, SlotErrored)

	h.clock.Add(100 * time.Millisecond)
	s := h.waitSlot(t, 1, SlotLoading)
	if s.CurrentIndex != 1 || !s.Playing {
		t.Errorf("session %+v", s.Session)
	}
}

func TestManualSelectionDuringSequence(t *testing.T) {
	h := newHarness(t, 3, testConfig())

	h.c.Start()
	h.waitSlot(t, 0, SlotLoading)
	h.fb.ready(t, 0)
	h.waitSlot(t, 0, SlotPlaying)

	h.c.Select(1)
	h.waitSlot(t, 1, SlotLoading)
	s := h.waitSlot(t, 0, SlotIdle)

	if s.CurrentIndex != 0 {
		t.Errorf("CurrentIndex = %d, want 0", s.CurrentIndex)
	}
	if !s.Playing {
		t.Error("manual selection must not end the sequence")
	}
	if s.Highlighted != 1 {
		t.Errorf("Highlighted = %d, want 1", s.Highlighted)
	}

	h.fb.ready(t, 1)
	h.waitSlot(t, 1, SlotPlaying)

	// A late signal from the silenced slot is ignored.
	h.fb.end(t, 0)

	h.fb.end(t, 1)
	s = h.waitSlot(t, 1, SlotEnded)
	if s.Status != StatusManualDone {
		t.Errorf("Status = %q, want %q", s.Status, StatusManualDone)
	}
	if s.Highlighted != -1 {
		t.Errorf("Highlighted = %d, want -1", s.Highlighted)
	}
	if s.CurrentIndex != 0 || !s.Playing {
		t.Errorf("session changed by manual playback: %+v", s.Session)
	}
	if s.Slots[0] != SlotIdle {
		t.Errorf("slot 0 = %s, want idle", s.Slots[0])
	}

	// The interrupted sequence moves on once its safety timeout fires.
	h.clock.Add(100 * time.Second)
	s = h.waitFor(t, "sequence to resume", func(s Snapshot) bool { return s.CurrentIndex == 1 })
	if s.Slots[1] != SlotLoading {
		t.Errorf("slot 1 = %s, want loading", s.Slots[1])
	}
	if got := h.fb.overlapCount(); got != 0 {
		t.Errorf("%d overlapping plays", got)
	}
}

func TestManualFailure(t *testing.T) {
	h := newHarness(t, 2, testConfig())

	h.c.Select(1)
	h.waitSlot(t, 1, SlotLoading)
	h.fb.fail(t, 1, errors.New("boom"))

	s := h.waitSlot(t, 1, SlotErrored)
	if s.Status != StatusError {
		t.Errorf("Status = %q, want %q", s.Status, StatusError)
	}
	if s.Highlighted != -1 {
		t.Errorf("Highlighted = %d, want -1", s.Highlighted)
	}
	if s.Playing || s.CurrentIndex != -1 {
		t.Errorf("manual failure changed the session: %+v", s.Session)
	}
}

func TestManualTimeout(t *testing.T) {
	cfg := testConfig()
	cfg.ReadyTimeout = 0
	h := newHarness(t, 1, cfg)

	h.c.Select(0)
	h.waitSlot(t, 0, SlotLoading)

	h.clock.Add(100 * time.Second)
	s := h.waitSlot(t, 0, SlotErrored)
	if s.Status != StatusError {
		t.Errorf("Status = %q, want %q", s.Status, StatusError)
	}

	h.rec.waitCount(t, 1, func(ev Event) bool {
		se, ok := ev.(SlotEvent)
		return ok && errors.Is(se.Err, ErrAudioTimeout)
	})
}

func TestSequentialFailureSkips(t *testing.T) {
	h := newHarness(t, 3, testConfig())

	h.c.Start()
	h.waitSlot(t, 0, SlotLoading)
	h.fb.fail(t, 0, errors.New("proxy down"))

	s := h.waitSlot(t, 1, SlotLoading)
	if s.Slots[0] != SlotErrored {
		t.Errorf("slot 0 = %s, want errored", s.Slots[0])
	}
	if s.Status == StatusError {
		t.Error("sequential failures must not surface as an error status")
	}
}

func TestTerminalHandledOnce(t *testing.T) {
	h := newHarness(t, 3, testConfig())

	h.c.Start()
	h.waitSlot(t, 0, SlotLoading)
	h.fb.ready(t, 0)
	h.waitSlot(t, 0, SlotPlaying)

	sig := h.fb.sig(t, 0)
	sig.Ended()
	sig.Failed(errors.New("late error"))
	sig.Ended()

	h.waitSlot(t, 1, SlotLoading)
	s := h.settle(t)
	if s.CurrentIndex != 1 {
		t.Errorf("CurrentIndex = %d, want 1", s.CurrentIndex)
	}
	if s.Slots[0] != SlotEnded {
		t.Errorf("slot 0 = %s, want ended", s.Slots[0])
	}
	if n := h.fb.loadCount(2); n != 0 {
		t.Errorf("slot 2 loaded %d times, want 0", n)
	}

	// The safety timeout of the finished attempt is gone.
	h.clock.Add(99 * time.Second)
	if s := h.settle(t); s.CurrentIndex != 1 {
		t.Errorf("CurrentIndex = %d after stale timeout, want 1", s.CurrentIndex)
	}
}

func TestStopFromAnyState(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T, h *harness)
	}{
		{
			name:  "idle",
			setup: func(*testing.T, *harness) {},
		},
		{
			name: "loading",
			setup: func(t *testing.T, h *harness) {
				h.c.Start()
				h.waitSlot(t, 0, SlotLoading)
			},
		},
		{
			name: "playing",
			setup: func(t *testing.T, h *harness) {
				h.c.Start()
				h.waitSlot(t, 0, SlotLoading)
				h.fb.ready(t, 0)
				h.waitSlot(t, 0, SlotPlaying)
			},
		},
		{
			name: "waiting to advance",
			setup: func(t *testing.T, h *harness) {
				h.c.Start()
				h.waitSlot(t, 0, SlotLoading)
				h.fb.ready(t, 0)
				h.waitSlot(t, 0, SlotPlaying)
				h.fb.end(t, 0)
				h.waitSlot(t, 0, SlotEnded)
			},
		},
		{
			name: "manual playback",
			setup: func(t *testing.T, h *harness) {
				h.c.Select(1)
				h.waitSlot(t, 1, SlotLoading)
				h.fb.ready(t, 1)
				h.waitSlot(t, 1, SlotPlaying)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.AdvanceDelay = 500 * time.Millisecond
			h := newHarness(t, 3, cfg)

			tt.setup(t, h)

			h.c.Stop()
			s := h.waitFor(t, "stop", func(s Snapshot) bool { return s.Status == StatusStopped })
			if s.Playing {
				t.Error("expected playing to be false")
			}
			if s.Highlighted != -1 {
				t.Errorf("Highlighted = %d, want -1", s.Highlighted)
			}
			for i, st := range s.Slots {
				if st.Active() {
					t.Errorf("slot %d still %s", i, st)
				}
			}
			if ctx := h.fb.loadContext(0); ctx != nil && ctx.Err() == nil {
				t.Error("load context of slot 0 was not cancelled")
			}

			// No timer or late signal may revive anything.
			h.clock.Add(200 * time.Second)
			s = h.settle(t)
			if s.Playing || s.Status != StatusStopped {
				t.Errorf("state changed after stop: %+v", s.Session)
			}
			if n := h.fb.loadCount(2); n > 0 {
				t.Errorf("slot 2 loaded %d times after stop", n)
			}
		})
	}
}

func TestStaleAdvanceAfterRestart(t *testing.T) {
	cfg := testConfig()
	cfg.AdvanceDelay = 500 * time.Millisecond
	h := newHarness(t, 3, cfg)

	h.c.Start()
	h.waitSlot(t, 0, SlotLoading)
	h.fb.ready(t, 0)
	h.waitSlot(t, 0, SlotPlaying)
	h.fb.end(t, 0)
	h.waitSlot(t, 0, SlotEnded)

	h.c.Stop()
	h.c.Start()
	h.waitFor(t, "restart", func(s Snapshot) bool {
		return s.Playing && s.CurrentIndex == 0 && s.Slots[0] == SlotLoading
	})

	h.clock.Add(time.Second)
	s := h.settle(t)
	if s.CurrentIndex != 0 {
		t.Errorf("CurrentIndex = %d, want 0 (stale advance fired)", s.CurrentIndex)
	}
	if n := h.fb.loadCount(1); n != 0 {
		t.Errorf("slot 1 loaded %d times, want 0", n)
	}
}

func TestStartIsGuarded(t *testing.T) {
	h := newHarness(t, 3, testConfig())

	h.c.Start()
	h.waitSlot(t, 0, SlotLoading)

	h.c.Start()
	h.c.Start()
	s := h.settle(t)

	if s.CurrentIndex != 0 {
		t.Errorf("CurrentIndex = %d, want 0", s.CurrentIndex)
	}
	if n := h.fb.loadCount(0); n != 1 {
		t.Errorf("slot 0 loaded %d times, want 1", n)
	}
	h.rec.waitCount(t, 1, isStatus(StatusStarting))
	if n := h.rec.count(func(ev Event) bool { p, ok := ev.(PlayingEvent); return ok && p.Playing }); n != 1 {
		t.Errorf("%d playing events, want 1", n)
	}
}

func TestRestartAfterCompletion(t *testing.T) {
	h := newHarness(t, 1, testConfig())
	h.fb.autoReady = true

	for round := 0; round < 2; round++ {
		h.c.Start()
		h.waitSlot(t, 0, SlotPlaying)
		h.fb.end(t, 0)
		h.waitFor(t, "completion", func(s Snapshot) bool { return s.Status == StatusComplete && !s.Playing })
	}

	if n := h.fb.loadCount(0); n != 2 {
		t.Errorf("slot 0 loaded %d times, want 2", n)
	}
}

func TestMaxConsecutiveFailures(t *testing.T) {
	cfg := testConfig()
	cfg.MaxConsecutiveFailures = 2
	h := newHarness(t, 4, cfg)

	h.c.Start()
	h.waitSlot(t, 0, SlotLoading)
	h.fb.fail(t, 0, errors.New("one"))
	h.waitSlot(t, 1, SlotLoading)
	h.fb.fail(t, 1, errors.New("two"))

	s := h.waitFor(t, "abort", func(s Snapshot) bool { return s.Status == StatusAborted })
	if s.Playing {
		t.Error("expected playing to be false")
	}
	if n := h.fb.loadCount(2); n != 0 {
		t.Errorf("slot 2 loaded %d times, want 0", n)
	}
}

func TestFailureCountResetsOnSuccess(t *testing.T) {
	cfg := testConfig()
	cfg.MaxConsecutiveFailures = 2
	h := newHarness(t, 4, cfg)

	h.c.Start()
	h.waitSlot(t, 0, SlotLoading)
	h.fb.fail(t, 0, errors.New("one"))

	h.waitSlot(t, 1, SlotLoading)
	h.fb.ready(t, 1)
	h.waitSlot(t, 1, SlotPlaying)
	h.fb.end(t, 1)

	h.waitSlot(t, 2, SlotLoading)
	h.fb.fail(t, 2, errors.New("two"))

	s := h.waitSlot(t, 3, SlotLoading)
	if !s.Playing {
		t.Error("sequence should continue")
	}
}

func TestResolveFailureSkipsSlot(t *testing.T) {
	resolver := ResolverFunc(func(text string) (string, error) {
		if text == "explains token 0" {
			return "", errors.New("bad url")
		}
		return "http://proxy.test/" + text, nil
	})
	h := newHarnessWith(t, tokens(2), testConfig(), resolver)

	h.c.Start()
	s := h.waitSlot(t, 1, SlotLoading)
	if s.Slots[0] != SlotErrored {
		t.Errorf("slot 0 = %s, want errored", s.Slots[0])
	}
	if n := h.fb.loadCount(0); n != 0 {
		t.Errorf("slot 0 loaded %d times, want 0", n)
	}
}

func TestURLResolvedOnce(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	resolver := ResolverFunc(func(text string) (string, error) {
		mu.Lock()
		calls++
		mu.Unlock()
		return "http://proxy.test/" + text, nil
	})
	h := newHarnessWith(t, tokens(1), testConfig(), resolver)
	h.fb.autoReady = true

	for i := 0; i < 3; i++ {
		h.c.Select(0)
		h.waitSlot(t, 0, SlotPlaying)
		h.fb.end(t, 0)
		h.waitSlot(t, 0, SlotEnded)
	}

	mu.Lock()
	defer mu.Unlock()
	if calls != 1 {
		t.Errorf("resolver called %d times, want 1", calls)
	}
}

func TestPlaySlotOutOfRange(t *testing.T) {
	h := newHarness(t, 2, testConfig())

	h.c.PlaySlot(-1, false)
	h.c.PlaySlot(2, true)
	s := h.settle(t)

	if s.Highlighted != -1 || s.Status != StatusReady {
		t.Errorf("out of range play changed state: %+v", s.Session)
	}
}

func TestAdvanceWhileNotPlaying(t *testing.T) {
	h := newHarness(t, 2, testConfig())

	h.c.Advance()
	s := h.settle(t)

	if s.CurrentIndex != -1 || s.Playing {
		t.Errorf("Advance changed an idle session: %+v", s.Session)
	}
}

func TestAdvanceSkipsCurrentSlot(t *testing.T) {
	h := newHarness(t, 3, testConfig())

	h.c.Start()
	h.waitSlot(t, 0, SlotLoading)
	h.fb.ready(t, 0)
	h.waitSlot(t, 0, SlotPlaying)

	h.c.Advance()
	s := h.waitSlot(t, 1, SlotLoading)
	if s.Slots[0] != SlotIdle {
		t.Errorf("slot 0 = %s, want idle", s.Slots[0])
	}

	// The abandoned slot's timers must not advance the sequence again.
	h.clock.Add(99 * time.Second)
	if s := h.settle(t); s.CurrentIndex != 1 {
		t.Errorf("CurrentIndex = %d, want 1", s.CurrentIndex)
	}
}

func TestClose(t *testing.T) {
	h := newHarness(t, 2, testConfig())

	h.c.Start()
	h.waitSlot(t, 0, SlotLoading)

	if err := h.c.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := h.c.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}

	select {
	case <-h.rec.done:
	case <-time.After(time.Second):
		t.Fatal("events channel was not closed")
	}

	if _, err := h.c.Snapshot(); !errors.Is(err, ErrClosed) {
		t.Errorf("Snapshot() error = %v, want ErrClosed", err)
	}

	// Operations after close are no-ops and must not block.
	h.c.Start()
	h.c.Stop()
	h.c.Select(0)

	if ctx := h.fb.loadContext(0); ctx.Err() == nil {
		t.Error("load context was not cancelled on close")
	}
}

func TestInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SafetyTimeout = 0

	if _, err := New(tokens(1), newFakeBackend(), testResolver, WithConfig(cfg)); err == nil {
		t.Error("expected an error for an invalid config")
	}
}
