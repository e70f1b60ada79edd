package eventstream

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/mrzor/strace-summary/internal/parser"
)

const (
	// DefaultBatchSize is the number of lines parsed together.
	DefaultBatchSize = 4096

	// maxLineSize bounds a single trace line. strace truncates strings at
	// -s bytes, but -v and long argv arrays still produce very long lines.
	maxLineSize = 16 << 20
)

// Handler consumes parsed events in file order.
type Handler interface {
	HandleEvent(ev *parser.Event) error
}

// Stats counts what the stream read.
type Stats struct {
	Lines         int // non-empty lines read
	Events        int // lines parsed and handed to the handler
	ParseFailures int // lines skipped as unparseable
}

// Stream reads strace lines and dispatches parsed events to a handler.
type Stream struct {
	handler   Handler
	workers   int
	batchSize int
	logger    zerolog.Logger
}

// Option configures a Stream.
type Option func(*Stream)

// WithWorkers bounds the number of goroutines parsing a batch.
func WithWorkers(n int) Option {
	return func(s *Stream) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithBatchSize sets how many lines are parsed together.
func WithBatchSize(n int) Option {
	return func(s *Stream) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// WithLogger sets the logger used for parse failures and totals.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Stream) {
		s.logger = logger
	}
}

// New creates a Stream feeding handler.
func New(handler Handler, opts ...Option) *Stream {
	s := &Stream{
		handler:   handler,
		workers:   runtime.GOMAXPROCS(0),
		batchSize: DefaultBatchSize,
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// batch is a run of consecutive lines and their parse results.
type batch struct {
	numbers []int // 1-based line numbers
	lines   []string
	events  []*parser.Event
	errs    []error
}

// Run reads r to the end. Lines are parsed in parallel per batch and handed
// to the handler strictly in file order. The first line must pass
// parser.CheckFlags; a read error or handler error aborts the run.
func (s *Stream) Run(ctx context.Context, r io.Reader) (Stats, error) {
	var stats Stats
	g, ctx := errgroup.WithContext(ctx)
	batches := make(chan *batch, 1)

	g.Go(func() error {
		defer close(batches)
		return s.read(ctx, r, batches)
	})

	g.Go(func() error {
		for b := range batches {
			if err := s.dispatch(ctx, b, &stats); err != nil {
				return err
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return stats, err
	}

	s.logger.Info().
		Int("lines", stats.Lines).
		Int("events", stats.Events).
		Int("parse_failures", stats.ParseFailures).
		Msg("trace ingested")
	return stats, nil
}

// read splits r into batches, parses each and sends it downstream.
func (s *Stream) read(ctx context.Context, r io.Reader, out chan<- *batch) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64<<10), maxLineSize)

	lineNo := 0
	checked := false
	cur := &batch{}

	flush := func() error {
		if len(cur.lines) == 0 {
			return nil
		}
		if err := s.parse(ctx, cur); err != nil {
			return err
		}
		select {
		case out <- cur:
		case <-ctx.Done():
			return ctx.Err()
		}
		cur = &batch{}
		return nil
	}

	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if !checked {
			if err := parser.CheckFlags(line); err != nil {
				return fmt.Errorf("line %d: %w", lineNo, err)
			}
			checked = true
		}
		cur.numbers = append(cur.numbers, lineNo)
		cur.lines = append(cur.lines, line)
		if len(cur.lines) >= s.batchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading trace: %w", err)
	}
	return flush()
}

// parse fills b.events and b.errs using up to s.workers goroutines.
func (s *Stream) parse(ctx context.Context, b *batch) error {
	n := len(b.lines)
	b.events = make([]*parser.Event, n)
	b.errs = make([]error, n)

	chunk := (n + s.workers - 1) / s.workers
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for lo := 0; lo < n; lo += chunk {
		lo, hi := lo, min(lo+chunk, n)
		g.Go(func() error {
			for i := lo; i < hi; i++ {
				if i%256 == 0 && ctx.Err() != nil {
					return ctx.Err()
				}
				b.events[i], b.errs[i] = parser.ParseLine(b.lines[i])
			}
			return nil
		})
	}
	return g.Wait()
}

// dispatch hands one parsed batch to the handler in order.
func (s *Stream) dispatch(ctx context.Context, b *batch, stats *Stats) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for i, ev := range b.events {
		stats.Lines++
		if err := b.errs[i]; err != nil {
			stats.ParseFailures++
			if errors.Is(err, parser.ErrParseFailure) {
				s.logger.Debug().Err(err).Int("line", b.numbers[i]).Msg("skipping line")
				continue
			}
			return fmt.Errorf("line %d: %w", b.numbers[i], err)
		}
		if err := s.handler.HandleEvent(ev); err != nil {
			return fmt.Errorf("line %d: %w", b.numbers[i], err)
		}
		stats.Events++
	}
	return nil
}
