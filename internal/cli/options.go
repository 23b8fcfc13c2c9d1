package cli

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/electwix/apicache/internal/logging"
)

// ErrNoTrace is returned when neither --trace nor a positional trace path is
// given.
var ErrNoTrace = errors.New("a trace file is required")

type Options struct {
	ConfigPath   string
	TracePath    string
	StrictConfig bool
	Verbose      bool
	LogFormat    logging.Format
	Report       bool
	Args         []string
}

func Parse(args []string) (Options, error) {
	opts := Options{
		LogFormat: logging.FormatText,
	}
	var format string

	fs := flag.NewFlagSet("apicache", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&opts.ConfigPath, "config", "", "Path to a TOML or YAML configuration file; defaults apply when empty")
	fs.StringVar(&opts.ConfigPath, "c", "", "Path to a TOML or YAML configuration file; defaults apply when empty")
	fs.StringVar(&opts.TracePath, "trace", "", "Path to the trace to replay")
	fs.StringVar(&opts.TracePath, "t", "", "Path to the trace to replay")
	fs.BoolVar(&opts.StrictConfig, "strict-config", false, "Treat configuration warnings as errors")
	fs.BoolVar(&opts.Verbose, "verbose", false, "Enable verbose logging")
	fs.BoolVar(&opts.Verbose, "v", false, "Enable verbose logging")
	fs.StringVar(&format, "log-format", string(logging.FormatText), "Log format: text or json")
	fs.BoolVar(&opts.Report, "report", false, "Print the final stats report as JSON")

	if err := fs.Parse(args); err != nil {
		return Options{}, fmt.Errorf("%w\n\n%s", err, Usage(fs))
	}

	parsed, err := logging.ParseFormat(format)
	if err != nil {
		return Options{}, fmt.Errorf("%w\n\n%s", err, Usage(fs))
	}
	opts.LogFormat = parsed

	opts.Args = fs.Args()
	if opts.TracePath == "" && len(opts.Args) > 0 {
		opts.TracePath, opts.Args = opts.Args[0], opts.Args[1:]
	}
	if opts.TracePath == "" {
		return Options{}, fmt.Errorf("%w\n\n%s", ErrNoTrace, Usage(fs))
	}
	return opts, nil
}

func Usage(fs *flag.FlagSet) string {
	if fs == nil {
		return ""
	}
	var buf strings.Builder
	fmt.Fprintf(&buf, "Usage of %s:\n", fs.Name())
	out := fs.Output()
	fs.SetOutput(&buf)
	fs.PrintDefaults()
	fs.SetOutput(out)
	return buf.String()
}
