package output

import (
	"encoding/json"
	"io"

	"github.com/mrzor/strace-summary/internal/report"
)

// JSON renders each report as one indented document. Durations are
// nanoseconds and timestamps are microseconds, as stored.
type JSON struct {
	enc *json.Encoder
}

// NewJSON returns a JSON renderer writing to w.
func NewJSON(w io.Writer) *JSON {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return &JSON{enc: enc}
}

// document is the envelope of every report.
type document struct {
	Report string      `json:"report"`
	Title  string      `json:"title,omitempty"`
	Data   interface{} `json:"data"`
}

func (j *JSON) encode(name string, data interface{}) error {
	return j.enc.Encode(document{Report: name, Data: data})
}

func (j *JSON) Summary(rep *report.SummaryReport) error { return j.encode("summary", rep) }

func (j *JSON) Details(title string, details []report.PidDetail) error {
	return j.enc.Encode(document{Report: "details", Title: title, Data: details})
}

func (j *JSON) Execs(rows []report.ExecRow) error { return j.encode("exec", rows) }

func (j *JSON) Files(rows []report.FileRow) error { return j.encode("files", rows) }

func (j *JSON) Directories(rep *report.DirectoryReport) error {
	return j.encode("directories", rep)
}

func (j *JSON) IO(rows []report.IORow) error { return j.encode("io", rows) }

func (j *JSON) Histogram(h *report.Histogram) error { return j.encode("quantize", h) }

func (j *JSON) Tree(rep *report.TreeReport) error { return j.encode("tree", rep) }

func (j *JSON) Warnings(msgs []string) error {
	if len(msgs) == 0 {
		return nil
	}
	return j.encode("warnings", msgs)
}
