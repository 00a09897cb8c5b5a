package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/roach88/kinspect/internal/correlator"
	"github.com/roach88/kinspect/internal/decoder"
	"github.com/roach88/kinspect/internal/framer"
	"github.com/roach88/kinspect/internal/store"
)

var tracer = otel.Tracer("kinspect/engine")

// readChunk is the transport read size. One read becomes one burst.
const readChunk = 32 * 1024

// Update is pushed to the Notifier after each burst that changed something.
type Update struct {
	SessionID int64              `json:"session_id"`
	Seq       int64              `json:"seq"`
	Refresh   correlator.Refresh `json:"refresh"`
}

// Notifier receives refresh requests. Notify is called from the Run loop
// and must not block.
type Notifier interface {
	Notify(Update)
}

// Stats are the running counters of one Engine.
type Stats struct {
	Bursts      int64 `json:"bursts"`
	Lines       int64 `json:"lines"`
	Events      int64 `json:"events"`
	Unparsed    int64 `json:"unparsed"`
	Foreign     int64 `json:"foreign"`
	Dropped     int64 `json:"dropped"`
	StoreErrors int64 `json:"store_errors"`
	Truncated   int64 `json:"truncated"`
}

// Engine is the single-writer ingestion loop of one session.
//
// CRITICAL: All store writes and correlator mutations happen in the Run
// goroutine (or in Process, which must not run concurrently with Run).
//
// Thread-safety model:
//   - Enqueue(), Feed(), Stats(): safe from any goroutine
//   - Run(): must be called from exactly one goroutine
type Engine struct {
	store    *store.Store
	decoder  *decoder.Decoder
	corr     *correlator.Correlator
	clock    *Clock
	queue    *burstQueue
	notifier Notifier
	logger   *slog.Logger
	maxBytes int
	trace    func(decoder.Result)

	storeErrLog rate.Sometimes

	bursts      atomic.Int64
	lines       atomic.Int64
	events      atomic.Int64
	unparsed    atomic.Int64
	foreign     atomic.Int64
	dropped     atomic.Int64
	storeErrors atomic.Int64
	truncated   atomic.Int64
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithNotifier sets the receiver of refresh updates.
func WithNotifier(n Notifier) Option {
	return func(e *Engine) {
		e.notifier = n
	}
}

// WithMaxLineBytes sets the framer capacity used by Feed.
func WithMaxLineBytes(n int) Option {
	return func(e *Engine) {
		e.maxBytes = n
	}
}

// WithTrace registers a hook that sees every decode result in order.
func WithTrace(fn func(decoder.Result)) Option {
	return func(e *Engine) {
		e.trace = fn
	}
}

// WithClock sets the burst sequence clock.
func WithClock(c *Clock) Option {
	return func(e *Engine) {
		e.clock = c
	}
}

// New creates an Engine writing to s. The correlator must belong to a
// session already recorded in s.
func New(s *store.Store, dec *decoder.Decoder, corr *correlator.Correlator, opts ...Option) *Engine {
	e := &Engine{
		store:       s,
		decoder:     dec,
		corr:        corr,
		clock:       NewClock(),
		queue:       newBurstQueue(),
		logger:      slog.Default(),
		maxBytes:    framer.DefaultMaxBytes,
		storeErrLog: rate.Sometimes{First: 3, Interval: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SessionID returns the session row the engine writes under.
func (e *Engine) SessionID() int64 {
	return e.corr.Session()
}

// Stats returns a snapshot of the engine counters.
func (e *Engine) Stats() Stats {
	return Stats{
		Bursts:      e.bursts.Load(),
		Lines:       e.lines.Load(),
		Events:      e.events.Load(),
		Unparsed:    e.unparsed.Load(),
		Foreign:     e.foreign.Load(),
		Dropped:     e.dropped.Load(),
		StoreErrors: e.storeErrors.Load(),
		Truncated:   e.truncated.Load(),
	}
}

// Enqueue submits a burst of framed lines for the Run loop.
// Returns false if the engine has been stopped.
func (e *Engine) Enqueue(lines []string) bool {
	if len(lines) == 0 {
		return true
	}
	return e.queue.Enqueue(burst{seq: e.clock.Next(), lines: lines})
}

// Feed frames r and enqueues one burst per read until r is exhausted.
// A clean EOF returns nil; the trailing partial line is flushed first.
func (e *Engine) Feed(ctx context.Context, r io.Reader) error {
	var pending []string
	f := framer.New(e.maxBytes, func(line string) {
		pending = append(pending, line)
	})
	seen := 0
	push := func() {
		if n := f.Truncated(); n > seen {
			e.truncated.Add(int64(n - seen))
			truncatedTotal.Add(float64(n - seen))
			seen = n
		}
		if len(pending) > 0 {
			e.Enqueue(pending)
			pending = nil
		}
	}

	buf := make([]byte, readChunk)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := r.Read(buf)
		if n > 0 {
			_, _ = f.Write(buf[:n])
			push()
		}
		if errors.Is(err, io.EOF) {
			f.Flush()
			push()
			return nil
		}
		if err != nil {
			f.Flush()
			push()
			return fmt.Errorf("read stream: %w", err)
		}
	}
}

// Run starts the single-writer burst loop.
// Blocks until the context is cancelled or the queue is closed and drained.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Debug("engine starting", "session", e.SessionID())

	for {
		b, ok := e.queue.TryDequeue()
		if ok {
			e.processBurst(ctx, b)
			continue
		}

		select {
		case <-ctx.Done():
			e.logger.Debug("engine stopping: context cancelled", "session", e.SessionID())
			e.queue.Close()
			return ctx.Err()

		case <-e.queue.Wait():
			// The signal channel closes with the queue; a closed, empty
			// queue means there is nothing left to drain.
			if e.queue.Drained() {
				e.logger.Debug("engine stopping: queue closed", "session", e.SessionID())
				return nil
			}
		}
	}
}

// Stop closes the queue. Run drains what is left and returns.
func (e *Engine) Stop() {
	e.queue.Close()
}

// Process runs one burst synchronously and returns its merged refresh.
// It must not be called while Run is active.
func (e *Engine) Process(ctx context.Context, lines []string) correlator.Refresh {
	return e.processBurst(ctx, burst{seq: e.clock.Next(), lines: lines})
}

type shapeCount struct {
	reason string
	count  int
}

// processBurst decodes, correlates and commits one burst in one
// transaction. CRITICAL: Called only from the Run goroutine.
func (e *Engine) processBurst(ctx context.Context, b burst) correlator.Refresh {
	started := time.Now()
	session := e.SessionID()
	ctx, span := tracer.Start(ctx, "engine.burst",
		trace.WithAttributes(
			attribute.Int64("session.id", session),
			attribute.Int64("burst.seq", b.seq),
			attribute.Int("burst.lines", len(b.lines)),
		),
	)
	defer span.End()

	var refresh correlator.Refresh
	shapes := make(map[string]*shapeCount)
	dropped := 0

	e.corr.Begin()
	err := e.store.Batch(ctx, func(tx *store.Tx) error {
		for _, line := range b.lines {
			res := e.decoder.Decode(line)
			if e.trace != nil {
				e.trace(res)
			}
			e.lines.Add(1)

			switch {
			case res.Foreign:
				e.foreign.Add(1)
				linesTotal.WithLabelValues("foreign").Inc()
				e.logger.Debug("foreign line", "session", session, "line", line)
				continue
			case res.Unparsed:
				e.unparsed.Add(1)
				linesTotal.WithLabelValues("unparsed").Inc()
				sc, ok := shapes[res.Shape]
				if !ok {
					sc = &shapeCount{reason: res.Reason}
					shapes[res.Shape] = sc
				}
				sc.count++
				continue
			}

			e.events.Add(1)
			linesTotal.WithLabelValues("event").Inc()
			eventsTotal.WithLabelValues(res.Event.Kind.String()).Inc()

			out, err := e.corr.Apply(ctx, tx, res.Event)
			switch {
			case errors.Is(err, correlator.ErrUnknownTrial), errors.Is(err, store.ErrNoFunction):
				dropped++
				e.dropped.Add(1)
				droppedTotal.Inc()
				e.logger.Debug("dropped event", "session", session, "error", err)
			case err != nil:
				e.storeErrors.Add(1)
				storeErrorsTotal.Inc()
				e.storeErrLog.Do(func() {
					e.logger.Error("store write failed",
						"session", session,
						"kind", res.Event.Kind.String(),
						"ref", res.Event.Ref.String(),
						"error", err)
				})
			default:
				refresh = refresh.Merge(out.Refresh)
				if out.Elapsed > 0 {
					e.logger.Debug("trial closed", "session", session, "trial_row", out.TrialRow, "elapsed", out.Elapsed)
				}
			}
		}
		return nil
	})
	if err != nil {
		e.storeErrors.Add(1)
		storeErrorsTotal.Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.logger.Error("commit burst", "session", session, "seq", b.seq, "error", err)
		// Nothing from the burst is visible; do not ask views to reload.
		refresh = correlator.Refresh{}
		e.corr.Rollback()
	} else {
		e.corr.Commit()
	}

	e.logShapes(session, b.seq, shapes)
	if dropped > 0 {
		e.logger.Warn("dropped events with no trial or function",
			"session", session,
			"seq", b.seq,
			"count", dropped)
	}

	e.bursts.Add(1)
	burstDuration.Observe(time.Since(started).Seconds())
	span.SetAttributes(
		attribute.Int("burst.dropped", dropped),
		attribute.Bool("refresh.inspections", refresh.Inspections),
		attribute.Bool("refresh.outline", refresh.Outline),
	)

	if refresh.Any() && e.notifier != nil {
		e.notifier.Notify(Update{SessionID: session, Seq: b.seq, Refresh: refresh})
	}
	return refresh
}

// logShapes logs each unparsed line shape of a burst once, in stable order.
func (e *Engine) logShapes(session, seq int64, shapes map[string]*shapeCount) {
	if len(shapes) == 0 {
		return
	}
	keys := make([]string, 0, len(shapes))
	for k := range shapes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		sc := shapes[k]
		e.logger.Warn("unparsed protocol line",
			"session", session,
			"seq", seq,
			"shape", k,
			"reason", sc.reason,
			"count", sc.count)
	}
}
