package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/kinspect/internal/config"
	"github.com/roach88/kinspect/internal/engine"
	"github.com/roach88/kinspect/internal/store"
	"github.com/roach88/kinspect/internal/transport"
)

// IngestOptions holds flags for the ingest command.
type IngestOptions struct {
	*RootOptions
	ConfigPath    string
	Addr          string
	User          string
	KeyFile       string
	KnownHosts    string
	Command       string
	Database      string
	Listen        string
	MetricsListen string
	MaxSessions   int

	// Source overrides the SSH transport (for testing).
	Source engine.Source
	// Tokens overrides the session token generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	Tokens engine.TokenGenerator
}

// NewIngestCommand creates the ingest command.
func NewIngestCommand(rootOpts *RootOptions) *cobra.Command {
	return newIngestCommand(&IngestOptions{RootOptions: rootOpts})
}

func newIngestCommand(opts *IngestOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Stream inspection lines from the device into the store",
		Long: `Connect to the device over SSH, stream its kernel log, and record every
inspection line in the SQLite store. When the stream ends the device is
reconnected, each connection starting a new session.

Flags override the values from --config.

Example:
  kinspect ingest --addr localhost:2233 --db inspect.sqlite
  kinspect ingest --config kinspect.yaml --listen :7070 --metrics-listen :9090`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(opts, cmd)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.ConfigPath, "config", "c", "", "path to YAML config file")
	f.StringVar(&opts.Addr, "addr", transport.DefaultAddr, "device SSH address host:port")
	f.StringVar(&opts.User, "user", transport.DefaultUser, "device login")
	f.StringVar(&opts.KeyFile, "key", "", "private key file")
	f.StringVar(&opts.KnownHosts, "known-hosts", "", "known_hosts file (host key is not checked when empty)")
	f.StringVar(&opts.Command, "command", transport.DefaultCommand, "command streaming the kernel log")
	f.StringVar(&opts.Database, "db", "", "path to SQLite database")
	f.StringVar(&opts.Listen, "listen", "", "serve the HTTP bridge on this address")
	f.StringVar(&opts.MetricsListen, "metrics-listen", "", "serve Prometheus metrics on this address")
	f.IntVar(&opts.MaxSessions, "max-sessions", 0, "stop after this many sessions (0 = reconnect forever)")

	return cmd
}

// resolveConfig loads --config (or the defaults) and applies every flag
// the user set explicitly.
func (opts *IngestOptions) resolveConfig(cmd *cobra.Command) (config.Config, error) {
	cfg := config.Default()
	if opts.ConfigPath != "" {
		loaded, err := config.Load(opts.ConfigPath)
		if err != nil {
			return config.Config{}, err
		}
		cfg = loaded
	}

	f := cmd.Flags()
	if f.Changed("addr") {
		cfg.Device.Address = opts.Addr
	}
	if f.Changed("user") {
		cfg.Device.User = opts.User
	}
	if f.Changed("key") {
		cfg.Device.KeyFile = opts.KeyFile
	}
	if f.Changed("known-hosts") {
		cfg.Device.KnownHosts = opts.KnownHosts
	}
	if f.Changed("command") {
		cfg.Device.Command = opts.Command
	}
	if f.Changed("db") {
		cfg.Store.Path = opts.Database
	}
	if f.Changed("listen") {
		cfg.Bridge.Listen = opts.Listen
	}
	if f.Changed("metrics-listen") {
		cfg.MetricsListen = opts.MetricsListen
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func runIngest(opts *IngestOptions, cmd *cobra.Command) error {
	cfg, err := opts.resolveConfig(cmd)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	dec, err := cfg.Decoder()
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid protocol settings", err)
	}

	logger := slog.Default()
	logger.Info("opening database", "path", cfg.Store.Path)
	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			logger.Error("error closing database", "error", closeErr)
		}
	}()

	src := opts.Source
	if src == nil {
		src = &transport.SSH{
			Addr:       cfg.Device.Address,
			User:       cfg.Device.User,
			KeyFile:    cfg.Device.KeyFile,
			KnownHosts: cfg.Device.KnownHosts,
			Command:    cfg.Device.Command,
			Logger:     logger,
		}
	}
	tokens := opts.Tokens
	if tokens == nil {
		tokens = engine.UUIDv7Generator{}
	}

	ctx, cancel := signalContext(cmd)
	defer cancel()

	svc := services{
		store:         st,
		listen:        cfg.Bridge.Listen,
		metricsListen: cfg.MetricsListen,
		logger:        logger,
	}
	err = svc.run(ctx, func(ctx context.Context, eopts []engine.Option) error {
		eopts = append(eopts, engine.WithMaxLineBytes(cfg.Framer.MaxLineBytes))
		sup := engine.NewSupervisor(st, src, dec,
			engine.WithTokens(tokens),
			engine.WithReconnectInterval(cfg.ReconnectInterval),
			engine.WithMaxSessions(opts.MaxSessions),
			engine.WithSupervisorLogger(logger),
			engine.WithEngineOptions(eopts...),
		)
		logger.Info("ingest starting", "source", src.Name(), "db", cfg.Store.Path)
		return sup.Run(ctx)
	})
	if !isShutdown(ctx, err) {
		return WrapExitError(ExitFailure, "ingest failed", err)
	}

	counts, err := st.Counts(context.Background())
	if err != nil {
		return WrapExitError(ExitFailure, "failed to read store counts", err)
	}
	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	if out.IsJSON() {
		return out.Success(counts)
	}
	return out.Success(fmt.Sprintf("Stored %d sessions, %d trials, %d inspects.",
		counts["session"], counts["trial"], counts["inspect"]))
}
