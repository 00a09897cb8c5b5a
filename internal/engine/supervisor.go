package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/roach88/kinspect/internal/correlator"
	"github.com/roach88/kinspect/internal/decoder"
	"github.com/roach88/kinspect/internal/store"
)

// DefaultReconnectInterval is the minimum time between transport opens.
const DefaultReconnectInterval = 2 * time.Second

// Source opens the byte stream a session reads from.
// Implemented by the transport package (SSH, file, reader).
type Source interface {
	// Name identifies the source in logs and in the session row.
	Name() string

	// Open starts a new stream. Closing the returned reader ends it.
	Open(ctx context.Context) (io.ReadCloser, error)
}

// Supervisor runs sessions against a Source, one at a time.
//
// Each session gets a new token, a new session row and a fresh
// Correlator, so trial ids from a previous connection are forgotten.
// When a stream ends the supervisor logs a disconnect notice and reopens
// the source, paced by a rate limiter.
type Supervisor struct {
	store       *store.Store
	source      Source
	decoder     *decoder.Decoder
	tokens      TokenGenerator
	limiter     *rate.Limiter
	logger      *slog.Logger
	now         func() time.Time
	maxSessions int
	engineOpts  []Option
}

// SupervisorOption configures a Supervisor.
type SupervisorOption func(*Supervisor)

// WithTokens sets the session token generator.
func WithTokens(g TokenGenerator) SupervisorOption {
	return func(s *Supervisor) {
		s.tokens = g
	}
}

// WithReconnectInterval sets the minimum time between transport opens.
func WithReconnectInterval(d time.Duration) SupervisorOption {
	return func(s *Supervisor) {
		if d > 0 {
			s.limiter = rate.NewLimiter(rate.Every(d), 1)
		} else {
			s.limiter = rate.NewLimiter(rate.Inf, 1)
		}
	}
}

// WithMaxSessions stops the supervisor after n sessions. Zero means no limit.
func WithMaxSessions(n int) SupervisorOption {
	return func(s *Supervisor) {
		s.maxSessions = n
	}
}

// WithSupervisorLogger sets the logger used by the supervisor and its engines.
func WithSupervisorLogger(l *slog.Logger) SupervisorOption {
	return func(s *Supervisor) {
		s.logger = l
	}
}

// WithEngineOptions passes options to every Engine the supervisor creates.
func WithEngineOptions(opts ...Option) SupervisorOption {
	return func(s *Supervisor) {
		s.engineOpts = append(s.engineOpts, opts...)
	}
}

// WithNow sets the wall clock used for session start times.
func WithNow(now func() time.Time) SupervisorOption {
	return func(s *Supervisor) {
		s.now = now
	}
}

// NewSupervisor creates a Supervisor reading src and writing to st.
func NewSupervisor(st *store.Store, src Source, dec *decoder.Decoder, opts ...SupervisorOption) *Supervisor {
	s := &Supervisor{
		store:   st,
		source:  src,
		decoder: dec,
		tokens:  UUIDv7Generator{},
		limiter: rate.NewLimiter(rate.Every(DefaultReconnectInterval), 1),
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run opens sessions until the context is cancelled or the session limit
// is reached. Session errors are logged and never returned.
func (s *Supervisor) Run(ctx context.Context) error {
	for n := 0; s.maxSessions == 0 || n < s.maxSessions; n++ {
		if err := s.limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}

		stats, err := s.RunSession(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			reconnectsTotal.WithLabelValues("failed").Inc()
			s.logger.Warn("session failed", "source", s.source.Name(), "error", err)
			continue
		}
		reconnectsTotal.WithLabelValues("ok").Inc()
		s.logger.Debug("session finished", "source", s.source.Name(), "lines", stats.Lines)
	}
	return nil
}

// RunSession runs one session to the end of its stream and returns the
// engine counters.
func (s *Supervisor) RunSession(ctx context.Context) (Stats, error) {
	name := s.source.Name()
	rc, err := s.source.Open(ctx)
	if err != nil {
		return Stats{}, newOpenError(name, err)
	}
	defer rc.Close()

	token := s.tokens.Generate()
	sessionID, err := s.store.BeginSession(ctx, token, name, s.now())
	if err != nil {
		return Stats{}, newStartError(name, token, err)
	}
	sessionsTotal.Inc()

	var copts []correlator.Option
	copts = append(copts, correlator.WithLogger(s.logger))
	if !s.decoder.Layout().HasTrialID() {
		copts = append(copts, correlator.WithStructuralIDs())
	}
	corr := correlator.New(sessionID, copts...)

	eopts := append([]Option{WithLogger(s.logger)}, s.engineOpts...)
	eng := New(s.store, s.decoder, corr, eopts...)

	s.logger.Info("session started",
		"source", name,
		"session", sessionID,
		"token", token,
		"layout", s.decoder.Layout().String())

	// Closing the stream is the only way to unblock a pending Read.
	stop := context.AfterFunc(ctx, func() {
		_ = rc.Close()
	})
	defer stop()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	done := make(chan error, 1)
	go func() {
		done <- eng.Run(runCtx)
	}()

	feedErr := eng.Feed(ctx, rc)
	eng.Stop()
	runErr := <-done

	stats := eng.Stats()
	s.logger.Info("device disconnected",
		"source", name,
		"session", sessionID,
		"token", token,
		"lines", stats.Lines,
		"events", stats.Events,
		"unparsed", stats.Unparsed,
		"dropped", stats.Dropped,
		"store_errors", stats.StoreErrors)

	if ctx.Err() != nil {
		return stats, nil
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return stats, newClosedError(name, token, runErr)
	}
	if feedErr != nil {
		return stats, newClosedError(name, token, feedErr)
	}
	return stats, nil
}
