package annotations

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

// OutputFormatter formats events for human-readable display.
type OutputFormatter struct {
	useColor bool
	writer   io.Writer
}

// NewOutputFormatter creates a formatter with color support detection.
func NewOutputFormatter(w io.Writer) *OutputFormatter {
	if w == nil {
		w = os.Stdout
	}

	useColor := false
	if f, ok := w.(*os.File); ok {
		useColor = isatty.IsTerminal(f.Fd())
	}

	return &OutputFormatter{
		useColor: useColor,
		writer:   w,
	}
}

// Handle implements the Handler interface - prints events as they occur.
func (f *OutputFormatter) Handle(event Event) {
	output := f.Format(event)
	if output != "" {
		fmt.Fprintln(f.writer, output)
	}
}

// Format converts an event to a human-readable string.
func (f *OutputFormatter) Format(event Event) string {
	latency := f.formatLatency(event.Latency)

	switch event.Name {
	case TransactionBegin:
		return fmt.Sprintf("%s %s Transaction %v starting with %v inputs",
			latency,
			f.colorize("===", color.FgYellow),
			event.Data["transaction"],
			event.Data["inputs"])

	case TransactionComplete:
		return fmt.Sprintf("%s %s Transaction %v done: %v frames, %v steps, %v export buckets",
			latency,
			f.colorize("===", color.FgGreen),
			event.Data["transaction"],
			event.Data["frames"],
			event.Data["steps"],
			event.Data["exports"])

	case TransactionFailed:
		return fmt.Sprintf("%s %s Transaction %v failed: %v",
			latency,
			f.colorize("✗", color.FgRed),
			event.Data["transaction"],
			event.Data["error"])

	case RoundOpen:
		return fmt.Sprintf("%s round %v opened", latency, event.Data["round"])

	case CommitCollapse:
		return fmt.Sprintf("%s %s frame %v collapsed, %v commits promoted",
			latency,
			f.colorize("---", color.FgCyan),
			event.Data["frame"],
			event.Data["promoted"])

	case BlockAdd, BlockRemove:
		return fmt.Sprintf("%s %s %v", latency, event.Name, event.Data["block"])
	}

	return ""
}

func (f *OutputFormatter) formatLatency(d time.Duration) string {
	s := fmt.Sprintf("%8s", d.Round(time.Microsecond))
	return f.colorize(s, color.FgHiBlack)
}

func (f *OutputFormatter) colorize(s string, attr color.Attribute) string {
	if !f.useColor {
		return s
	}
	return color.New(attr).Sprint(s)
}
