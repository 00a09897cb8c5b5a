package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/roach88/kinspect/internal/correlator"
	"github.com/roach88/kinspect/internal/decoder"
	"github.com/roach88/kinspect/internal/engine"
	"github.com/roach88/kinspect/internal/store"
)

// sessionStart is the fixed connection time of every scenario session.
var sessionStart = time.Unix(0, 0).UTC()

// Run executes a scenario against a fresh in-memory store and evaluates
// its assertions.
//
// Execution flow:
//  1. Open an in-memory store and begin a session with a fixed token
//  2. Build the decoder for the scenario layout and a fresh correlator
//  3. Process all lines as one burst, tracing every decode result
//  4. Collect engine counters and table counts, then evaluate assertions
func Run(scenario *Scenario) (*Result, error) {
	ctx := context.Background()

	st, err := store.Open(store.MemoryPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	layout, err := scenario.layout()
	if err != nil {
		return nil, err
	}
	var dopts []decoder.Option
	if scenario.Clock != "" {
		mode, err := decoder.ParseClockMode(scenario.Clock)
		if err != nil {
			return nil, err
		}
		dopts = append(dopts, decoder.WithClock(mode))
	}
	dec, err := decoder.New(layout, dopts...)
	if err != nil {
		return nil, fmt.Errorf("build decoder: %w", err)
	}

	tokens := engine.NewFixedGenerator("scenario-" + scenario.Name)
	session, err := st.BeginSession(ctx, tokens.Generate(), "harness", sessionStart)
	if err != nil {
		return nil, fmt.Errorf("begin session: %w", err)
	}

	// Suppress logs in scenario runs.
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	copts := []correlator.Option{correlator.WithLogger(logger)}
	if !layout.HasTrialID() {
		copts = append(copts, correlator.WithStructuralIDs())
	}

	result := NewResult()
	eng := engine.New(st, dec, correlator.New(session, copts...),
		engine.WithLogger(logger),
		engine.WithTrace(func(r decoder.Result) {
			result.Trace = append(result.Trace, decoder.Format(r))
		}),
	)
	eng.Process(ctx, scenario.Lines)

	result.Stats = eng.Stats()
	counts, err := st.Counts(ctx)
	if err != nil {
		return nil, fmt.Errorf("count rows: %w", err)
	}
	result.Counts = counts

	actx := &AssertionContext{
		Store: st,
		Ctx:   ctx,
	}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}
	return result, nil
}
