package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // database/sql driver
	"github.com/rs/zerolog"

	"github.com/mrzor/strace-summary/internal/registry"
	"github.com/mrzor/strace-summary/internal/report"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	input TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	lines INTEGER NOT NULL,
	events INTEGER NOT NULL,
	parse_failures INTEGER NOT NULL,
	elapsed_us INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS processes (
	run_id TEXT NOT NULL REFERENCES runs(id),
	pid INTEGER NOT NULL,
	ppid INTEGER,
	program TEXT NOT NULL,
	cmdline TEXT NOT NULL,
	start_us INTEGER NOT NULL,
	end_us INTEGER NOT NULL,
	syscalls INTEGER NOT NULL,
	errors INTEGER NOT NULL,
	active_us INTEGER NOT NULL,
	wait_us INTEGER NOT NULL,
	user_us INTEGER NOT NULL,
	exit_code INTEGER,
	signal TEXT,
	threads TEXT NOT NULL,
	PRIMARY KEY (run_id, pid)
);
CREATE TABLE IF NOT EXISTS syscall_stats (
	run_id TEXT NOT NULL REFERENCES runs(id),
	pid INTEGER NOT NULL,
	syscall TEXT NOT NULL,
	count INTEGER NOT NULL,
	errors INTEGER NOT NULL,
	total_us INTEGER NOT NULL,
	min_us INTEGER NOT NULL,
	max_us INTEGER NOT NULL,
	PRIMARY KEY (run_id, pid, syscall)
);
CREATE TABLE IF NOT EXISTS execs (
	run_id TEXT NOT NULL REFERENCES runs(id),
	pid INTEGER NOT NULL,
	time_us INTEGER NOT NULL,
	program TEXT NOT NULL,
	cmdline TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS file_opens (
	run_id TEXT NOT NULL REFERENCES runs(id),
	pid INTEGER NOT NULL,
	time_us INTEGER NOT NULL,
	duration_us INTEGER NOT NULL,
	syscall TEXT NOT NULL,
	path TEXT NOT NULL,
	errno TEXT
);
CREATE TABLE IF NOT EXISTS io_events (
	run_id TEXT NOT NULL REFERENCES runs(id),
	pid INTEGER NOT NULL,
	time_us INTEGER NOT NULL,
	duration_us INTEGER,
	syscall TEXT NOT NULL,
	bytes INTEGER NOT NULL,
	errno TEXT,
	fd TEXT NOT NULL,
	descriptor TEXT
);
`

// Run describes the ingestion a dump comes from.
type Run struct {
	Input         string
	Lines         int
	Events        int
	ParseFailures int
}

// Store is an open dump database.
type Store struct {
	db     *sql.DB
	logger zerolog.Logger
}

// Open opens or creates the SQLite database at path and ensures the schema.
func Open(ctx context.Context, path string, logger zerolog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close() //nolint:errcheck,gosec // best-effort cleanup on error
		return nil, fmt.Errorf("create tables: %w", err)
	}
	return &Store{db: db, logger: logger}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle for queries.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Dump writes the selected processes of reg as a new run and returns its ID.
func (s *Store) Dump(ctx context.Context, reg *registry.Registry, sel report.Selection, run Run) (uuid.UUID, error) {
	id := uuid.New()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return uuid.Nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO runs (id, input, created_at, lines, events, parse_failures, elapsed_us) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id.String(), run.Input, time.Now().Unix(), run.Lines, run.Events, run.ParseFailures, reg.Elapsed().Microseconds(),
	); err != nil {
		return uuid.Nil, fmt.Errorf("insert run: %w", err)
	}

	w, err := newWriter(ctx, tx, id.String())
	if err != nil {
		return uuid.Nil, err
	}
	defer w.close()

	rows := 0
	for _, pid := range sel.PIDs {
		p := reg.Get(pid)
		if p == nil {
			continue
		}
		n, err := w.process(ctx, p)
		if err != nil {
			return uuid.Nil, fmt.Errorf("pid %d: %w", pid, err)
		}
		rows += n
	}

	if err := tx.Commit(); err != nil {
		return uuid.Nil, fmt.Errorf("commit: %w", err)
	}
	s.logger.Info().Str("run", id.String()).Int("pids", len(sel.PIDs)).Int("rows", rows).Msg("dump written")
	return id, nil
}

// writer holds the prepared inserts of one dump.
type writer struct {
	runID       string
	processStmt *sql.Stmt
	stats       *sql.Stmt
	exec        *sql.Stmt
	open        *sql.Stmt
	io          *sql.Stmt
}

func newWriter(ctx context.Context, tx *sql.Tx, runID string) (*writer, error) {
	w := &writer{runID: runID}
	stmts := []struct {
		dst   **sql.Stmt
		query string
	}{
		{&w.processStmt, `INSERT INTO processes (run_id, pid, ppid, program, cmdline, start_us, end_us, syscalls, errors, active_us, wait_us, user_us, exit_code, signal, threads) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`},
		{&w.stats, `INSERT INTO syscall_stats (run_id, pid, syscall, count, errors, total_us, min_us, max_us) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`},
		{&w.exec, `INSERT INTO execs (run_id, pid, time_us, program, cmdline) VALUES (?, ?, ?, ?, ?)`},
		{&w.open, `INSERT INTO file_opens (run_id, pid, time_us, duration_us, syscall, path, errno) VALUES (?, ?, ?, ?, ?, ?, ?)`},
		{&w.io, `INSERT INTO io_events (run_id, pid, time_us, duration_us, syscall, bytes, errno, fd, descriptor) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`},
	}
	for _, st := range stmts {
		stmt, err := tx.PrepareContext(ctx, st.query)
		if err != nil {
			w.close()
			return nil, fmt.Errorf("prepare statement: %w", err)
		}
		*st.dst = stmt
	}
	return w, nil
}

func (w *writer) close() {
	for _, stmt := range []*sql.Stmt{w.processStmt, w.stats, w.exec, w.open, w.io} {
		if stmt != nil {
			stmt.Close() //nolint:errcheck,gosec // closed with the transaction anyway
		}
	}
}

// process writes p and its events, returning the number of rows inserted.
func (w *writer) process(ctx context.Context, p *registry.Process) (int, error) {
	s := report.Summarize(p)

	var exitCode, signal interface{}
	if p.Exit != nil {
		if p.Exit.Killed() {
			signal = p.Exit.Signal
		} else {
			exitCode = p.Exit.Code
		}
	}
	if _, err := w.processStmt.ExecContext(ctx,
		w.runID, p.PID, nullInt(p.ParentPID), p.Program, p.Cmdline(),
		int64(p.Start), int64(p.End),
		s.Syscalls, s.Errors,
		s.ActiveTime.Microseconds(), s.WaitTime.Microseconds(), s.UserTime.Microseconds(),
		exitCode, signal, joinInts(s.Threads),
	); err != nil {
		return 0, fmt.Errorf("insert process: %w", err)
	}
	rows := 1

	for _, st := range report.StatsTable(p.Syscalls) {
		if _, err := w.stats.ExecContext(ctx,
			w.runID, p.PID, st.Name, st.Count, st.Errors,
			st.Total.Microseconds(), st.Min.Microseconds(), st.Max.Microseconds(),
		); err != nil {
			return rows, fmt.Errorf("insert syscall stats: %w", err)
		}
		rows++
	}

	for _, e := range p.Execs {
		if _, err := w.exec.ExecContext(ctx, w.runID, p.PID, int64(e.Time), e.Program, e.Cmdline()); err != nil {
			return rows, fmt.Errorf("insert exec: %w", err)
		}
		rows++
	}

	for _, f := range p.FileOpens {
		if _, err := w.open.ExecContext(ctx,
			w.runID, p.PID, int64(f.Time), f.Duration.Microseconds(), f.Syscall, f.Path, nullString(f.Errno),
		); err != nil {
			return rows, fmt.Errorf("insert file open: %w", err)
		}
		rows++
	}

	for _, ev := range p.IOEvents {
		var duration interface{}
		if ev.HasDuration {
			duration = ev.Duration.Microseconds()
		}
		if _, err := w.io.ExecContext(ctx,
			w.runID, p.PID, int64(ev.Time), duration, ev.Syscall, ev.Bytes,
			nullString(ev.Errno), ev.FD, nullString(ev.Descriptor),
		); err != nil {
			return rows, fmt.Errorf("insert io event: %w", err)
		}
		rows++
	}
	return rows, nil
}

func nullInt(v int) sql.NullInt64 {
	return sql.NullInt64{Int64: int64(v), Valid: v != 0}
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}

func joinInts(v []int) string {
	parts := make([]string, len(v))
	for i, n := range v {
		parts[i] = fmt.Sprint(n)
	}
	return strings.Join(parts, ",")
}
