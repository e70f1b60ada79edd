package output

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/mrzor/strace-summary/internal/report"
)

const (
	// execWidth is the widest command line printed in a table cell.
	execWidth = 50
	barWidth  = 40
)

// Text renders reports as aligned plain-text tables.
type Text struct {
	w io.Writer
}

// NewText returns a text renderer writing to w.
func NewText(w io.Writer) *Text {
	return &Text{w: w}
}

// printer buffers a table and keeps the first write error.
type printer struct {
	tw  *tabwriter.Writer
	err error
}

func (t *Text) printer() *printer {
	return &printer{tw: tabwriter.NewWriter(t.w, 0, 8, 2, ' ', 0)}
}

func (p *printer) printf(format string, args ...interface{}) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintf(p.tw, format, args...)
}

func (p *printer) flush() error {
	if p.err != nil {
		return p.err
	}
	return p.tw.Flush()
}

// Summary prints the top processes table followed by session totals.
func (t *Text) Summary(rep *report.SummaryReport) error {
	p := t.printer()
	title := fmt.Sprintf("Top %d PIDs by %s", len(rep.Rows), rep.Sort)
	p.printf("\n%s\n%s\n\n", title, strings.Repeat("-", len(title)))
	p.printf("  PID\tACTIVE\tWAIT\tTOTAL\tUSER\tSYSCALLS\tCHILDREN\tCOMMAND\n")

	var system time.Duration
	for _, r := range rep.Rows {
		p.printf("  %d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.PID,
			millis(r.ActiveTime),
			millis(r.WaitTime),
			millis(r.TotalTime),
			millis(r.UserTime),
			humanize.Comma(int64(r.Syscalls)),
			humanize.Comma(int64(len(r.Children))),
			truncateCmd(r.Cmdline),
		)
		system += r.TotalTime
	}

	p.printf("\nTotal PIDs: %s\n", humanize.Comma(int64(rep.Processes)))
	p.printf("Total Syscalls: %s\n", humanize.Comma(int64(rep.Syscalls)))
	p.printf("System Time (listed): %s\n", millis(system))
	p.printf("Real Time: %s\n", millis(rep.Elapsed))
	return p.flush()
}

// Details prints one block per process: lineage, totals, the syscall
// statistics table, execs and the slowest file opens.
func (t *Text) Details(title string, details []report.PidDetail) error {
	p := t.printer()
	if title != "" {
		p.printf("\n%s\n%s\n", title, strings.Repeat("-", len(title)))
	}

	for _, d := range details {
		p.printf("\nPID %d\t%s\n", d.PID, d.Program)
		if d.ParentPID != 0 {
			p.printf("  Parent PID:\t%d\n", d.ParentPID)
		}
		if len(d.Children) > 0 {
			p.printf("  Child PIDs:\t%s\n", joinInts(d.Children))
		}
		if len(d.Threads) > 0 {
			p.printf("  Threads:\t%s\n", joinInts(d.Threads))
		}
		if d.Exit != nil {
			p.printf("  Exit:\t%s\n", d.Exit)
		}
		p.printf("  Started:\t%s\n", d.Start)
		p.printf("  Lifetime:\t%s\n", millis(d.Lifetime))
		p.printf("  Syscalls:\t%s (%s errors)\n", humanize.Comma(int64(d.Syscalls)), humanize.Comma(int64(d.Errors)))
		p.printf("  Active / Wait / User:\t%s / %s / %s\n", millis(d.ActiveTime), millis(d.WaitTime), millis(d.UserTime))

		if len(d.Stats) > 0 {
			p.printf("\n  SYSCALL\tCALLS\tTOTAL\tMAX\tAVG\tMIN\tERRORS\t\n")
			for _, s := range d.Stats {
				wait := ""
				if s.Wait {
					wait = "(wait)"
				}
				p.printf("  %s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
					s.Name,
					humanize.Comma(int64(s.Count)),
					millis(s.Total),
					millis(s.Max),
					millis(s.Mean),
					millis(s.Min),
					humanize.Comma(int64(s.Errors)),
					wait,
				)
			}
		}

		if len(d.Execs) > 0 {
			p.printf("\n  Programs executed:\n")
			for _, e := range d.Execs {
				p.printf("    %s\t%s\n", e.Time, truncateCmd(e.Cmdline()))
			}
		}

		if len(d.SlowestOpens) > 0 {
			p.printf("\n  Slowest file opens:\n")
			p.printf("    TIME\tDURATION\tSYSCALL\tERROR\tPATH\n")
			for _, f := range d.SlowestOpens {
				p.printf("    %s\t%s\t%s\t%s\t%s\n", f.Time, millis(f.Duration), f.Syscall, dash(f.Errno), f.Path)
			}
		}
	}
	return p.flush()
}

// Execs prints every exec in time order.
func (t *Text) Execs(rows []report.ExecRow) error {
	p := t.printer()
	p.printf("PID\tTIME\tEXIT\tCOMMAND\n")
	for _, r := range rows {
		exit := "-"
		if r.Exit != nil {
			exit = r.Exit.String()
		}
		p.printf("%d\t%s\t%s\t%s\n", r.PID, r.Time, exit, truncateCmd(r.Cmdline()))
	}
	return p.flush()
}

// Files prints file opens.
func (t *Text) Files(rows []report.FileRow) error {
	p := t.printer()
	p.printf("PID\tTIME\tDURATION\tSYSCALL\tERROR\tPATH\n")
	for _, r := range rows {
		p.printf("%d\t%s\t%s\t%s\t%s\t%s\n", r.PID, r.Time, millis(r.Duration), r.Syscall, dash(r.Errno), r.Path)
	}
	return p.flush()
}

// Directories prints the rollup root followed by the directory rows.
func (t *Text) Directories(rep *report.DirectoryReport) error {
	p := t.printer()
	p.printf("Opens: %s\tTotal: %s\n\n", humanize.Comma(int64(rep.Root.Count)), millis(rep.Root.Total))
	p.printf("COUNT\tDURATION\tPID\tFIRST\tLAST\tDIRECTORY\n")
	for _, r := range rep.Rows {
		p.printf("%s\t%s\t%d\t%s\t%s\t%s\n",
			humanize.Comma(int64(r.Count)), millis(r.Total), r.PID, r.First, r.Last, r.Path)
	}
	return p.flush()
}

// IO prints read/write style calls with their descriptor and peer names.
func (t *Text) IO(rows []report.IORow) error {
	p := t.printer()
	p.printf("PID\tTIME\tDURATION\tSYSCALL\tBYTES\tERROR\tTARGET\tPEER\n")
	for _, r := range rows {
		duration := "-"
		if r.HasDuration {
			duration = millis(r.Duration)
		}
		bytes := "-"
		if r.Bytes >= 0 && r.Errno == "" {
			bytes = humanize.Bytes(uint64(r.Bytes))
		}
		p.printf("%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.PID, r.Time, duration, r.Syscall, bytes, dash(r.Errno), r.Target(), dash(strings.Join(r.Peers, ",")))
	}
	return p.flush()
}

// Histogram prints a log2 duration distribution with proportional bars.
func (t *Text) Histogram(h *report.Histogram) error {
	p := t.printer()
	p.printf("\n  syscall: %s\n  pids: %s\n\n", h.Syscall, joinInts(h.PIDs))
	p.printf("    μsecs\t\tcount\tdistribution\n")
	p.printf("    %s\t\t%s\t%s\n", strings.Repeat("-", 24), strings.Repeat("-", 8), strings.Repeat("-", barWidth+2))
	for _, b := range h.Buckets {
		bar := int(b.Ratio*barWidth + 0.5)
		p.printf("    %10d -> %-10d\t\t%s\t|%-*s|\n",
			b.Low, b.High, humanize.Comma(int64(b.Count)), barWidth, strings.Repeat("@", bar))
	}
	p.printf("\n    total: %s\n", humanize.Comma(int64(h.Total)))
	return p.flush()
}

// Tree prints the process forest with box-drawing connectors. Thread
// siblings follow the leader in braces.
func (t *Text) Tree(rep *report.TreeReport) error {
	p := t.printer()
	for _, r := range rep.Rows {
		var b strings.Builder
		for _, open := range r.Rails {
			if open {
				b.WriteString("│  ")
			} else {
				b.WriteString("   ")
			}
		}
		if r.Depth > 0 {
			if r.Last {
				b.WriteString("└─ ")
			} else {
				b.WriteString("├─ ")
			}
		}
		b.WriteString(strconv.Itoa(r.PID))
		if len(r.Threads) > 0 {
			b.WriteString(" {")
			b.WriteString(joinInts(r.Threads))
			b.WriteString("}")
		}
		if r.Cmdline != "" {
			b.WriteString(" ")
			b.WriteString(truncateCmd(r.Cmdline))
		}
		p.printf("%s\n", b.String())
	}
	return p.flush()
}

// Warnings prints one line per message.
func (t *Text) Warnings(msgs []string) error {
	for _, m := range msgs {
		if _, err := fmt.Fprintln(t.w, m); err != nil {
			return err
		}
	}
	return nil
}

// millis formats d in milliseconds with microsecond precision.
func millis(d time.Duration) string {
	return humanize.FormatFloat("#,###.###", float64(d)/float64(time.Millisecond)) + " ms"
}

// truncateCmd shortens s to execWidth runes, marking the cut with "...".
func truncateCmd(s string) string {
	r := []rune(s)
	if len(r) <= execWidth {
		return s
	}
	return string(r[:execWidth-3]) + "..."
}

func joinInts(v []int) string {
	parts := make([]string, len(v))
	for i, n := range v {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, ", ")
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
