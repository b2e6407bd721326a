// Package logging builds the leveled logger every MIDInet binary uses:
// colourised key-value output on an interactive terminal, plain logfmt
// when stdout is redirected — the same interactive/redirected split the
// teacher draws between text_color_set and its plain dw_printf path, done
// with github.com/charmbracelet/log instead of hand-rolled ANSI codes.
package logging

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/mattn/go-isatty"
)

// Options configures New.
type Options struct {
	// Level is the minimum level emitted: "debug", "info", "warn", "error".
	Level string
	// Output overrides the destination (defaults to os.Stderr). Tests pass
	// an in-memory buffer here.
	Output io.Writer
	// Component is attached to every log line as a "component" field, so
	// host/client/focus/discovery logs can be told apart when merged.
	Component string
	// ArchiveDir, when non-empty, tees output into a daily-rotating log
	// file under this directory (see ArchiveWriter) in addition to
	// Output. Formatting (colour vs. logfmt) is still decided from
	// Output alone, matching the teacher's logfmt-on-file behaviour.
	ArchiveDir string
	// ArchivePattern overrides DefaultArchivePattern when ArchiveDir is set.
	ArchivePattern string
}

// New builds a *log.Logger per Options. Color and timestamp prefixing are
// enabled automatically when Output is a TTY; a plain logfmt formatter is
// used otherwise, matching how the teacher's own tools behave differently
// when run interactively versus piped into a log file.
func New(opts Options) *log.Logger {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	f, isFile := out.(*os.File)
	tty := isFile && isatty.IsTerminal(f.Fd())

	if opts.ArchiveDir != "" {
		archive, err := NewArchiveWriter(opts.ArchiveDir, opts.ArchivePattern)
		if err != nil {
			fmt.Fprintf(out, "logging: archive disabled: %v\n", err)
		} else {
			out = io.MultiWriter(out, archive)
		}
	}

	styles := log.NewDefaultStyles()
	logger := log.NewWithOptions(out, log.Options{
		ReportTimestamp: true,
		TimeFormat:      "2006-01-02T15:04:05.000Z07:00",
	})
	logger.SetStyles(styles)

	if !tty {
		logger.SetFormatter(log.LogfmtFormatter)
	}

	logger.SetLevel(parseLevel(opts.Level))
	if opts.Component != "" {
		logger = logger.With("component", opts.Component)
	}
	return logger
}

func parseLevel(s string) log.Level {
	switch s {
	case "debug":
		return log.DebugLevel
	case "warn":
		return log.WarnLevel
	case "error":
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}
