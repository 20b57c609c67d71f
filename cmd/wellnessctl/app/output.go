package app

import (
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"

	"example.com/wellness/internal/syncer"
	"example.com/wellness/internal/watermark"
)

var (
	okColor    = color.New(color.FgGreen, color.Bold)
	failColor  = color.New(color.FgRed, color.Bold)
	warnColor  = color.New(color.FgYellow)
	labelColor = color.New(color.FgBlue)
	dimColor   = color.New(color.FgHiBlack)
)

type printer struct {
	out io.Writer
}

func (p printer) ok(format string, args ...any) {
	_, _ = okColor.Fprint(p.out, "OK ")
	_, _ = fmt.Fprintf(p.out, format+"\n", args...)
}

func (p printer) warn(format string, args ...any) {
	_, _ = warnColor.Fprintf(p.out, "WARN "+format+"\n", args...)
}

func (p printer) field(label string, value any) {
	_, _ = labelColor.Fprintf(p.out, "  %-14s", label)
	_, _ = fmt.Fprintf(p.out, " %v\n", value)
}

func (p printer) note(format string, args ...any) {
	_, _ = dimColor.Fprintf(p.out, "  "+format+"\n", args...)
}

func (p printer) result(result syncer.Result) {
	p.ok("wrote %d rows to %s", result.Rows, result.Table)
	p.field("run", result.RunID)
	p.field("trigger", result.Trigger)
	if result.WindowStart != "" {
		p.field("window", result.WindowStart+" .. "+result.WindowEnd)
	}
	for _, ep := range result.Endpoints {
		p.field(ep.Endpoint, fmt.Sprintf("%d rows", ep.Rows))
	}
	if result.Watermark != nil {
		p.field("watermark", watermark.Format(*result.Watermark))
	}
	if result.Warnings > 0 {
		p.warn("%d values could not be coerced and were stored as null", result.Warnings)
	}
	p.note("took %s", result.CompletedAt.Sub(result.StartedAt).Round(time.Millisecond))
}

// PrintError writes err to w. Sync failures are reported with the stage
// they failed at.
func PrintError(w io.Writer, err error) {
	failure := syncer.AsFailure(err)
	_, _ = failColor.Fprint(w, "FAILED ")
	if failure.Stage != "" {
		_, _ = fmt.Fprintf(w, "while %s: %s\n", failure.Stage, failure.Cause)
		_, _ = dimColor.Fprintln(w, "  the trends table still holds the previous generation")
		return
	}
	_, _ = fmt.Fprintln(w, failure.Cause)
}
