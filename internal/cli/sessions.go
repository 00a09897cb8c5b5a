package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/roach88/kinspect/internal/ir"
	"github.com/roach88/kinspect/internal/store"
)

// SessionsOptions holds flags for the sessions command.
type SessionsOptions struct {
	*RootOptions
	Database string
}

// NewSessionsCommand creates the sessions command.
func NewSessionsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SessionsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List device connections recorded in the store",
		Long: `List every session (one per device connection) with its trial counts.
A trial is open when neither a return nor an end line was seen for it.

Examples:
  kinspect sessions --db inspect.sqlite
  kinspect sessions --db inspect.sqlite --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSessions(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "inspect.sqlite", "path to SQLite database")

	return cmd
}

func runSessions(opts *SessionsOptions, cmd *cobra.Command) error {
	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	states, err := st.ListSessionStates(context.Background())
	if err != nil {
		return WrapExitError(ExitFailure, "failed to list sessions", err)
	}

	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	if out.IsJSON() {
		return out.Success(states)
	}

	columns := []string{"id", "token", "source", "started", "trials", "open", "inspects", "last"}
	rows := make([][]any, 0, len(states))
	for _, s := range states {
		rows = append(rows, []any{
			s.ID,
			s.Token,
			s.Source,
			s.StartedAt.Format("2006-01-02 15:04:05"),
			s.Trials,
			s.Open,
			s.Inspects,
			ir.FormatTimestamp(s.LastTime),
		})
	}
	return out.Table(columns, rows)
}
