package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/roach88/kinspect/internal/bridge"
	"github.com/roach88/kinspect/internal/store"
)

// QueryOptions holds flags for the query command.
type QueryOptions struct {
	*RootOptions
	Database string
	Path     string
}

// NewQueryCommand creates the query command.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "query [sql]",
		Short: "Run a read-only SQL query against the store",
		Long: `Run an ad-hoc read statement (SELECT, WITH, VALUES or EXPLAIN) against the
store and print the rows as a table. Statements that would write are
rejected.

With --path and no statement, the default side-view query for that source
file is run: every inspected variable of the file with its time and line.

Examples:
  kinspect query --db inspect.sqlite "SELECT * FROM trial"
  kinspect query --db inspect.sqlite --path fs/read_write.c
  kinspect query --db inspect.sqlite "SELECT count(*) FROM inspect" --format json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(opts, cmd, args)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "inspect.sqlite", "path to SQLite database")
	cmd.Flags().StringVar(&opts.Path, "path", "", "source file for the default query")

	return cmd
}

func runQuery(opts *QueryOptions, cmd *cobra.Command, args []string) error {
	var query string
	switch {
	case len(args) == 1:
		query = args[0]
	case opts.Path != "":
		query = store.DefaultQuery(opts.Path)
	default:
		return NewExitError(ExitCommandError, "a statement or --path is required")
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	res := bridge.RunQuery(context.Background(), st, query)
	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	if res.Error != "" {
		if err := out.Error("QUERY_FAILED", res.Error, nil); err != nil {
			return err
		}
		return NewExitError(ExitFailure, "query failed")
	}
	return out.Table(res.Columns, res.Rows)
}
