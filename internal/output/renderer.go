package output

import (
	"fmt"
	"io"

	"github.com/mrzor/strace-summary/internal/config"
	"github.com/mrzor/strace-summary/internal/report"
)

// Renderer prints one report per call.
type Renderer interface {
	Summary(rep *report.SummaryReport) error
	Details(title string, details []report.PidDetail) error
	Execs(rows []report.ExecRow) error
	Files(rows []report.FileRow) error
	Directories(rep *report.DirectoryReport) error
	IO(rows []report.IORow) error
	Histogram(h *report.Histogram) error
	Tree(rep *report.TreeReport) error
	Warnings(msgs []string) error
}

// New returns the renderer for format.
func New(format string, w io.Writer) (Renderer, error) {
	switch format {
	case "", config.FormatText:
		return NewText(w), nil
	case config.FormatJSON:
		return NewJSON(w), nil
	default:
		return nil, fmt.Errorf("unknown output format %q", format)
	}
}
