package correlator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/kinspect/internal/ir"
	"github.com/roach88/kinspect/internal/store"
)

// ErrUnknownTrial is returned when an event refers to a trial that was
// never started in this session. Nothing is written.
var ErrUnknownTrial = store.ErrUnknownTrial

// Writer is the store surface the correlator writes through.
type Writer interface {
	StartTrial(ctx context.Context, st store.TrialStart) (store.Trial, store.Function, error)
	AddLineInspect(ctx context.Context, in store.LineInspect) (int64, error)
	AddStacktrace(ctx context.Context, trialRow int64, stack string) (int64, error)
	FunctionReturn(ctx context.Context, trialRow int64, at time.Duration, line int, inspect *store.LineInspect) error
	SetTrialProcess(ctx context.Context, trialRow int64, pid int, proc string) error
}

// State is the lifecycle of a trial.
type State int

const (
	// Open trials have not seen a return or end event.
	Open State = iota
	// Closed trials have; later events still apply.
	Closed
)

func (s State) String() string {
	if s == Closed {
		return "closed"
	}
	return "open"
}

type span struct {
	start, end int
}

func (s span) contains(line int) bool {
	return s.start <= line && line <= s.end
}

// trialState is what the correlator remembers about one trial.
type trialState struct {
	RowID      int64
	TrialID    int64
	FunctionID int64
	File       string
	Func       string
	Range      span
	Start      time.Duration
	State      State
}

type funcKey struct {
	file, fn string
}

// Refresh tells views what to reload after an event.
type Refresh struct {
	// Inspections is set when inspect rows changed.
	Inspections bool `json:"inspections"`

	// Outline is set when trials, returns or stacktraces changed.
	Outline bool `json:"outline"`
}

// Merge returns the union of two refresh requests.
func (r Refresh) Merge(o Refresh) Refresh {
	return Refresh{
		Inspections: r.Inspections || o.Inspections,
		Outline:     r.Outline || o.Outline,
	}
}

// Any reports whether anything needs reloading.
func (r Refresh) Any() bool {
	return r.Inspections || r.Outline
}

// Outcome describes the effect of one applied event.
type Outcome struct {
	Refresh  Refresh
	TrialRow int64
	// Elapsed is return time minus start time, set for return value and
	// end events.
	Elapsed time.Duration
	// Since is the time since the previous start of the same function, set
	// for start events that have a predecessor.
	Since time.Duration
}

// Option configures a Correlator.
type Option func(*Correlator)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Correlator) {
		c.logger = l
	}
}

// WithStructuralIDs makes the correlator number trials itself, for layouts
// whose lines carry no trial id.
func WithStructuralIDs() Option {
	return func(c *Correlator) {
		c.structural = true
	}
}

// Correlator holds the per-session trial index.
type Correlator struct {
	session    int64
	structural bool
	logger     *slog.Logger

	trials    map[int64]*trialState
	latest    map[funcKey]*trialState
	prevStart map[funcKey]time.Duration
	byFile    map[string][]*trialState
	last      *trialState
	nextID    int64

	recording bool
	undo      []func()
}

// New returns a Correlator for the session with the given row id.
func New(session int64, opts ...Option) *Correlator {
	c := &Correlator{
		session:   session,
		logger:    slog.Default(),
		trials:    make(map[int64]*trialState),
		latest:    make(map[funcKey]*trialState),
		prevStart: make(map[funcKey]time.Duration),
		byFile:    make(map[string][]*trialState),
		nextID:    1,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Session returns the session row id the correlator writes under.
func (c *Correlator) Session() int64 {
	return c.session
}

// Len returns the number of trials started in this session.
func (c *Correlator) Len() int {
	return len(c.trials)
}

// Trial returns the state of a trial by emitted id.
func (c *Correlator) Trial(id int64) (State, bool) {
	ts, ok := c.trials[id]
	if !ok {
		return Open, false
	}
	return ts.State, true
}

// Apply correlates one event and performs its single store write.
func (c *Correlator) Apply(ctx context.Context, w Writer, ev ir.Event) (Outcome, error) {
	if ev.Kind == ir.KindFunctionStart {
		return c.start(ctx, w, ev)
	}

	ts, err := c.resolve(ev.Ref)
	if err != nil {
		return Outcome{}, fmt.Errorf("%s %s: %w", ev.Kind, ev.Ref, err)
	}
	out := Outcome{TrialRow: ts.RowID}

	switch ev.Kind {
	case ir.KindVariableInspect, ir.KindPointerInspect:
		if _, err := w.AddLineInspect(ctx, lineInspect(ts, ev)); err != nil {
			return Outcome{}, err
		}
		out.Refresh.Inspections = true

	case ir.KindFunctionReturnValue:
		// The value line is not the return line; only FunctionEnd sets it.
		in := lineInspect(ts, ev)
		if err := w.FunctionReturn(ctx, ts.RowID, ev.Time, 0, &in); err != nil {
			return Outcome{}, err
		}
		c.close(ts)
		out.Elapsed = ev.Time - ts.Start
		out.Refresh = Refresh{Inspections: true, Outline: true}

	case ir.KindFunctionEnd:
		if err := w.FunctionReturn(ctx, ts.RowID, ev.Time, ev.Line, nil); err != nil {
			return Outcome{}, err
		}
		c.close(ts)
		out.Elapsed = ev.Time - ts.Start
		out.Refresh.Outline = true

	case ir.KindFunctionStacktrace:
		if _, err := w.AddStacktrace(ctx, ts.RowID, ev.Stack); err != nil {
			return Outcome{}, err
		}
		out.Refresh.Outline = true

	case ir.KindPidAnnouncement:
		if err := w.SetTrialProcess(ctx, ts.RowID, ev.PID, ev.ProcName); err != nil {
			return Outcome{}, err
		}
		out.Refresh.Outline = true

	default:
		return Outcome{}, fmt.Errorf("apply: unsupported event kind %s", ev.Kind)
	}
	return out, nil
}

func (c *Correlator) close(ts *trialState) {
	prev := ts.State
	c.record(func() { ts.State = prev })
	ts.State = Closed
}

// Begin starts journaling changes to the trial index. Commit keeps them;
// Rollback undoes every change since Begin, for writes that were never
// committed.
func (c *Correlator) Begin() {
	c.recording = true
	c.undo = nil
}

// Commit ends the journal and keeps the changes.
func (c *Correlator) Commit() {
	c.recording = false
	c.undo = nil
}

// Rollback undoes the changes since Begin in reverse order.
func (c *Correlator) Rollback() {
	for i := len(c.undo) - 1; i >= 0; i-- {
		c.undo[i]()
	}
	c.recording = false
	c.undo = nil
}

func (c *Correlator) record(fn func()) {
	if c.recording {
		c.undo = append(c.undo, fn)
	}
}

// lineInspect builds the inspect row for an event. Unlocated messages are
// anchored at the function's first line.
func lineInspect(ts *trialState, ev ir.Event) store.LineInspect {
	key, val := ev.InspectKey()
	in := store.LineInspect{
		TrialRow: ts.RowID,
		File:     ev.File,
		Line:     ev.Line,
		Key:      key,
		VarValue: val,
	}
	if in.File == "" || in.Line == 0 {
		in.File, in.Line = ts.File, ts.Range.start
	}
	return in
}

func (c *Correlator) start(ctx context.Context, w Writer, ev ir.Event) (Outcome, error) {
	id := ev.Ref.ID
	if c.structural || ev.Ref.Kind != ir.RefByID {
		id = c.nextID
	}
	if prev, ok := c.trials[id]; ok {
		c.logger.Warn("ignoring duplicate trial start",
			"session", c.session,
			"trial_id", id,
			"func", ev.Func,
			"state", prev.State.String())
		return Outcome{TrialRow: prev.RowID}, nil
	}

	tr, fn, err := w.StartTrial(ctx, store.TrialStart{
		SessionID:  c.session,
		TrialID:    id,
		Time:       ev.Time,
		File:       ev.File,
		Func:       ev.Func,
		LineStart:  ev.LineStart,
		LineEnd:    ev.LineEnd,
		CalledFrom: ev.CalledFrom,
	})
	if err != nil {
		return Outcome{}, err
	}

	key := funcKey{ev.File, ev.Func}
	prevLatest, hadLatest := c.latest[key]
	prevTime, hadPrev := c.prevStart[key]
	prevLast, prevNext, nFile := c.last, c.nextID, len(c.byFile[ev.File])
	c.record(func() {
		delete(c.trials, id)
		if hadLatest {
			c.latest[key] = prevLatest
		} else {
			delete(c.latest, key)
		}
		if hadPrev {
			c.prevStart[key] = prevTime
		} else {
			delete(c.prevStart, key)
		}
		c.byFile[ev.File] = c.byFile[ev.File][:nFile]
		c.last, c.nextID = prevLast, prevNext
	})

	if id >= c.nextID {
		c.nextID = id + 1
	}
	ts := &trialState{
		RowID:      tr.ID,
		TrialID:    id,
		FunctionID: fn.ID,
		File:       ev.File,
		Func:       ev.Func,
		Range:      span{fn.LineStart, fn.LineEnd},
		Start:      ev.Time,
		State:      Open,
	}
	c.trials[id] = ts
	c.latest[key] = ts
	c.byFile[ev.File] = append(c.byFile[ev.File], ts)
	c.last = ts

	out := Outcome{TrialRow: tr.ID, Refresh: Refresh{Outline: true}}
	if prev, ok := c.prevStart[key]; ok {
		out.Since = ev.Time - prev
	}
	c.prevStart[key] = ev.Time
	return out, nil
}

// resolve finds the trial a reference names. Structural references pick
// the most recent trial of the innermost matching function.
func (c *Correlator) resolve(ref ir.TrialRef) (*trialState, error) {
	switch ref.Kind {
	case ir.RefByID:
		if ts, ok := c.trials[ref.ID]; ok {
			return ts, nil
		}
	case ir.RefByFunction:
		if ts, ok := c.latest[funcKey{ref.File, ref.Func}]; ok {
			return ts, nil
		}
	case ir.RefByLine:
		var best *trialState
		for _, ts := range c.byFile[ref.File] {
			if !ts.Range.contains(ref.Line) {
				continue
			}
			switch {
			case best == nil:
				best = ts
			case ts.Range.end-ts.Range.start < best.Range.end-best.Range.start:
				best = ts
			case ts.Range == best.Range:
				best = ts
			}
		}
		if best != nil {
			return best, nil
		}
	case ir.RefLatest:
		if c.last != nil {
			return c.last, nil
		}
	}
	return nil, ErrUnknownTrial
}
