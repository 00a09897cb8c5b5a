package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/kinspect/internal/config"
	"github.com/roach88/kinspect/internal/decoder"
	"github.com/roach88/kinspect/internal/engine"
	"github.com/roach88/kinspect/internal/store"
	"github.com/roach88/kinspect/internal/transport"
)

// protocolFlags selects the decoder for commands that read captured logs.
type protocolFlags struct {
	Prefix []string
	Clock  string
}

func (p *protocolFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringSliceVar(&p.Prefix, "prefix", []string{"time", "trial"},
		"bracketed prefix roles in order (time, iteration, trial)")
	cmd.Flags().StringVar(&p.Clock, "clock", "auto", "timestamp unit (auto|seconds|nanoseconds)")
}

// config returns the default configuration with the protocol flags applied.
func (p *protocolFlags) config() (config.Config, error) {
	cfg := config.Default()
	cfg.Protocol.Prefix = p.Prefix
	cfg.Protocol.Clock = p.Clock
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func (p *protocolFlags) decoder() (*decoder.Decoder, config.Config, error) {
	cfg, err := p.config()
	if err != nil {
		return nil, config.Config{}, err
	}
	dec, err := cfg.Decoder()
	if err != nil {
		return nil, config.Config{}, err
	}
	return dec, cfg, nil
}

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	protocolFlags
	Database      string
	Follow        bool
	Listen        string
	MetricsListen string
}

// ReplayResult is the outcome of one replayed log.
type ReplayResult struct {
	Source string         `json:"source"`
	Stats  engine.Stats   `json:"stats"`
	Counts map[string]int `json:"counts"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay <log>",
		Short: "Ingest a captured kernel log",
		Long: `Replay a captured kernel log through the same pipeline as a live device,
as a single session.

With --follow the file is tailed until interrupted. With --listen the HTTP
bridge keeps serving the store after the replay ends, until interrupted.

Exit codes:
  0 - Replay finished
  1 - The session failed
  2 - Command error (bad flags, unreadable log, etc.)

Examples:
  kinspect replay dmesg.log
  kinspect replay dmesg.log --db inspect.sqlite --prefix time,iteration,trial
  kinspect replay dmesg.log --listen :7070 --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, cmd, args[0])
		},
	}

	opts.register(cmd)
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (default in memory)")
	cmd.Flags().BoolVarP(&opts.Follow, "follow", "f", false, "keep reading as the log grows")
	cmd.Flags().StringVar(&opts.Listen, "listen", "", "serve the HTTP bridge on this address")
	cmd.Flags().StringVar(&opts.MetricsListen, "metrics-listen", "", "serve Prometheus metrics on this address")

	return cmd
}

func runReplay(opts *ReplayOptions, cmd *cobra.Command, path string) error {
	dec, cfg, err := opts.decoder()
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid protocol flags", err)
	}

	logger := slog.Default()
	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	src := &transport.File{Path: path, Follow: opts.Follow}

	ctx, cancel := signalContext(cmd)
	defer cancel()

	svc := services{
		store:         st,
		listen:        opts.Listen,
		metricsListen: opts.MetricsListen,
		logger:        logger,
	}
	var stats engine.Stats
	err = svc.run(ctx, func(ctx context.Context, eopts []engine.Option) error {
		eopts = append(eopts, engine.WithMaxLineBytes(cfg.Framer.MaxLineBytes))
		sup := engine.NewSupervisor(st, src, dec,
			engine.WithSupervisorLogger(logger),
			engine.WithEngineOptions(eopts...),
		)
		var err error
		if stats, err = sup.RunSession(ctx); err != nil {
			return err
		}
		if opts.Listen == "" {
			return nil
		}
		logger.Info("replay finished, bridge still serving", "addr", opts.Listen)
		<-ctx.Done()
		return ctx.Err()
	})
	if !isShutdown(ctx, err) {
		var sessErr *engine.SessionError
		if errors.As(err, &sessErr) && sessErr.Code == engine.ErrCodeTransportOpen {
			return WrapExitError(ExitCommandError, "failed to open log", err)
		}
		return WrapExitError(ExitFailure, "replay failed", err)
	}

	counts, err := st.Counts(context.Background())
	if err != nil {
		return WrapExitError(ExitFailure, "failed to read store counts", err)
	}
	result := ReplayResult{Source: src.Name(), Stats: stats, Counts: counts}

	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	if out.IsJSON() {
		return out.Success(result)
	}
	return out.Success(formatReplayText(result))
}

func formatReplayText(r ReplayResult) string {
	return fmt.Sprintf(`Replayed %s
  Lines:    %d (%d events, %d unparsed, %d foreign)
  Dropped:  %d
  Trials:   %d
  Inspects: %d`,
		r.Source,
		r.Stats.Lines, r.Stats.Events, r.Stats.Unparsed, r.Stats.Foreign,
		r.Stats.Dropped,
		r.Counts["trial"],
		r.Counts["inspect"])
}
