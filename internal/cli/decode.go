package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/kinspect/internal/decoder"
	"github.com/roach88/kinspect/internal/framer"
)

// DecodeOptions holds flags for the decode command.
type DecodeOptions struct {
	*RootOptions
	protocolFlags
	MaxLineBytes int
}

// DecodedLine pairs an input line with its decoded form.
type DecodedLine struct {
	Line    string `json:"line"`
	Decoded string `json:"decoded"`
}

// NewDecodeCommand creates the decode command.
func NewDecodeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DecodeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "decode <log>",
		Short: "Print how each log line decodes, without storing anything",
		Long: `Frame and decode a captured kernel log and print one result per line:
the event kind and fields, "foreign" for lines that are not inspection
output, or "unparsed" with the line shape and the reason.

Use "-" to read standard input.

Examples:
  kinspect decode dmesg.log
  dmesg | kinspect decode - --prefix time
  kinspect decode dmesg.log --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDecode(opts, cmd, args[0])
		},
	}

	opts.register(cmd)
	cmd.Flags().IntVar(&opts.MaxLineBytes, "max-line-bytes", framer.DefaultMaxBytes, "longest line kept")

	return cmd
}

func runDecode(opts *DecodeOptions, cmd *cobra.Command, path string) error {
	dec, _, err := opts.decoder()
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid protocol flags", err)
	}

	var in io.Reader = cmd.InOrStdin()
	if path != "-" {
		file, err := os.Open(path)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open log", err)
		}
		defer file.Close()
		in = file
	}

	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	var decoded []DecodedLine
	var writeErr error
	fr := framer.New(opts.MaxLineBytes, func(line string) {
		text := decoder.Format(dec.Decode(line))
		if out.IsJSON() {
			decoded = append(decoded, DecodedLine{Line: line, Decoded: text})
			return
		}
		if writeErr == nil {
			_, writeErr = fmt.Fprintln(out.Writer, text)
		}
	})
	if _, err := io.Copy(fr, in); err != nil {
		return WrapExitError(ExitFailure, "failed to read log", err)
	}
	fr.Flush()
	if writeErr != nil {
		return writeErr
	}

	if out.IsJSON() {
		if decoded == nil {
			decoded = []DecodedLine{}
		}
		return out.Success(decoded)
	}
	return nil
}
