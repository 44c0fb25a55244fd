// Package store is the append-only persistence layer for experiments
// and samples. It runs on embedded SQLite by default and on PostgreSQL
// when several clients need the database concurrently, with identical
// semantics: every operation is one short transaction, an append is
// committed before it is acknowledged, and the schema itself carries
// the invariants (experiment foreign key, one running experiment per
// reactor, unique tick per experiment).
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/DhrumilPanchal10/Reactors-GU-CzLab/internal/domain"
	"github.com/DhrumilPanchal10/Reactors-GU-CzLab/internal/ports"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	// Fixed-width UTC layout so SQLite's text comparison of two
	// timestamps matches their chronological order.
	sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"
)

// SQLStore implements ports.Store over database/sql.
type SQLStore struct {
	db     *sql.DB
	driver string
}

// Open connects to the configured backend and applies the schema.
func Open(driver, dsn string) (*SQLStore, error) {
	switch driver {
	case DriverSQLite, DriverPostgres:
	default:
		return nil, fmt.Errorf("store: unsupported driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, &domain.StoreError{Op: "open", Err: err}
	}

	s := &SQLStore{db: db, driver: driver}
	if err := s.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLStore) init() error {
	if s.driver == DriverSQLite {
		// WAL keeps display reads from blocking on loop writes;
		// synchronous=FULL makes the append-before-ack durable.
		pragmas := []string{
			"PRAGMA journal_mode=WAL",
			"PRAGMA synchronous=FULL",
			"PRAGMA busy_timeout=5000",
			"PRAGMA foreign_keys=ON",
		}
		for _, p := range pragmas {
			if _, err := s.db.Exec(p); err != nil {
				return &domain.StoreError{Op: "pragma", Err: err}
			}
		}
	}

	stmts := sqliteSchema()
	if s.driver == DriverPostgres {
		stmts = postgresSchema()
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return &domain.StoreError{Op: "migrate", Err: err}
		}
	}
	return nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

// rebind converts ?-style placeholders to the $n form lib/pq expects.
func (s *SQLStore) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// tsArg converts a timestamp to its bind representation. SQLite gets a
// fixed-width UTC string, PostgreSQL a time.Time.
func (s *SQLStore) tsArg(t time.Time) any {
	if s.driver == DriverSQLite {
		return t.UTC().Format(sqliteTimeLayout)
	}
	return t.UTC()
}

// scanTime accepts a timestamp from either backend, NULL included.
type scanTime struct {
	t     time.Time
	valid bool
}

func (st *scanTime) Scan(v any) error {
	st.valid = false
	switch x := v.(type) {
	case nil:
		return nil
	case time.Time:
		st.t, st.valid = x.UTC(), true
		return nil
	case string:
		return st.parse(x)
	case []byte:
		return st.parse(string(x))
	default:
		return fmt.Errorf("cannot scan %T into timestamp", v)
	}
}

func (st *scanTime) parse(v string) error {
	for _, layout := range []string{sqliteTimeLayout, time.RFC3339Nano} {
		if t, err := time.Parse(layout, v); err == nil {
			st.t, st.valid = t.UTC(), true
			return nil
		}
	}
	return fmt.Errorf("unparseable timestamp %q", v)
}

// StartExperiment opens a new running experiment for the reactor. It
// fails with ErrAlreadyRunning while another one is open; the partial
// unique index backs this up against concurrent writers.
func (s *SQLStore) StartExperiment(ctx context.Context, reactor string, startedAt time.Time) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, &domain.StoreError{Op: "start experiment", Err: err}
	}
	defer func() { _ = tx.Rollback() }()

	var existing int64
	err = tx.QueryRowContext(ctx,
		s.rebind(`SELECT id FROM experiments WHERE reactor = ? AND status = 'running'`),
		reactor,
	).Scan(&existing)
	switch {
	case err == nil:
		return 0, fmt.Errorf("reactor %s (experiment %d): %w", reactor, existing, domain.ErrAlreadyRunning)
	case !errors.Is(err, sql.ErrNoRows):
		return 0, &domain.StoreError{Op: "start experiment", Err: err}
	}

	var id int64
	err = tx.QueryRowContext(ctx,
		s.rebind(`INSERT INTO experiments (reactor, started_at, status) VALUES (?, ?, 'running') RETURNING id`),
		reactor, s.tsArg(startedAt),
	).Scan(&id)
	if err != nil {
		// Lost a race against another process; the unique index fired.
		if s.runningExists(ctx, reactor) {
			return 0, fmt.Errorf("reactor %s: %w", reactor, domain.ErrAlreadyRunning)
		}
		return 0, &domain.StoreError{Op: "start experiment", Err: err}
	}
	if err := tx.Commit(); err != nil {
		return 0, &domain.StoreError{Op: "start experiment", Err: err}
	}
	return id, nil
}

func (s *SQLStore) runningExists(ctx context.Context, reactor string) bool {
	var id int64
	err := s.db.QueryRowContext(ctx,
		s.rebind(`SELECT id FROM experiments WHERE reactor = ? AND status = 'running'`),
		reactor,
	).Scan(&id)
	return err == nil
}

// StopExperiment closes a running experiment. ended_at is clamped so it
// never precedes started_at.
func (s *SQLStore) StopExperiment(ctx context.Context, id int64, endedAt time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &domain.StoreError{Op: "stop experiment", Err: err}
	}
	defer func() { _ = tx.Rollback() }()

	var status string
	var startedAt scanTime
	err = tx.QueryRowContext(ctx,
		s.rebind(`SELECT status, started_at FROM experiments WHERE id = ?`), id,
	).Scan(&status, &startedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return &domain.StoreError{Op: "stop experiment", Err: fmt.Errorf("experiment %d not found", id)}
	}
	if err != nil {
		return &domain.StoreError{Op: "stop experiment", Err: err}
	}
	if domain.ExperimentStatus(status) != domain.StatusRunning {
		return fmt.Errorf("experiment %d: %w", id, domain.ErrExperimentClosed)
	}

	endedAt = endedAt.UTC()
	if startedAt.valid && endedAt.Before(startedAt.t) {
		endedAt = startedAt.t
	}

	if _, err := tx.ExecContext(ctx,
		s.rebind(`UPDATE experiments SET ended_at = ?, status = 'stopped' WHERE id = ?`),
		s.tsArg(endedAt), id,
	); err != nil {
		return &domain.StoreError{Op: "stop experiment", Err: err}
	}
	if err := tx.Commit(); err != nil {
		return &domain.StoreError{Op: "stop experiment", Err: err}
	}
	return nil
}

// CurrentExperiment returns the running experiment for a reactor, or
// nil when logging is idle.
func (s *SQLStore) CurrentExperiment(ctx context.Context, reactor string) (*domain.Experiment, error) {
	row := s.db.QueryRowContext(ctx,
		s.rebind(`SELECT id, reactor, started_at, ended_at, status FROM experiments
	WHERE reactor = ? AND status = 'running'`),
		reactor,
	)
	exp, err := scanExperiment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, &domain.StoreError{Op: "current experiment", Err: err}
	}
	return exp, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExperiment(row rowScanner) (*domain.Experiment, error) {
	var (
		exp       domain.Experiment
		status    string
		startedAt scanTime
		endedAt   scanTime
	)
	if err := row.Scan(&exp.ID, &exp.Reactor, &startedAt, &endedAt, &status); err != nil {
		return nil, err
	}
	exp.StartedAt = startedAt.t
	exp.Status = domain.ExperimentStatus(status)
	if endedAt.valid {
		t := endedAt.t
		exp.EndedAt = &t
	}
	return &exp, nil
}

// AppendSample durably appends one tick's readings. The transaction
// verifies the experiment is live and owned by the sample's reactor and
// that the timestamp does not regress; re-appending an already stored
// tick after a restart is a silent no-op via ON CONFLICT DO NOTHING.
func (s *SQLStore) AppendSample(ctx context.Context, smp *domain.Sample) error {
	for sig := range smp.Values {
		if _, ok := columnFor(sig); !ok {
			return &domain.StoreError{Op: "append", Err: fmt.Errorf("signal %q has no samples column", sig)}
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &domain.StoreError{Op: "append", Err: err}
	}
	defer func() { _ = tx.Rollback() }()

	var expReactor, status string
	err = tx.QueryRowContext(ctx,
		s.rebind(`SELECT reactor, status FROM experiments WHERE id = ?`), smp.ExperimentID,
	).Scan(&expReactor, &status)
	if errors.Is(err, sql.ErrNoRows) {
		return &domain.StoreError{Op: "append", Err: fmt.Errorf("experiment %d not found", smp.ExperimentID)}
	}
	if err != nil {
		return &domain.StoreError{Op: "append", Err: err}
	}
	if expReactor != smp.Reactor {
		return &domain.StoreError{Op: "append", Err: fmt.Errorf("experiment %d belongs to %s, sample is for %s", smp.ExperimentID, expReactor, smp.Reactor)}
	}
	if domain.ExperimentStatus(status) != domain.StatusRunning {
		return fmt.Errorf("experiment %d: %w", smp.ExperimentID, domain.ErrExperimentClosed)
	}

	var last scanTime
	err = tx.QueryRowContext(ctx,
		s.rebind(`SELECT ts FROM samples WHERE reactor = ? ORDER BY ts DESC LIMIT 1`), smp.Reactor,
	).Scan(&last)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return &domain.StoreError{Op: "append", Err: err}
	}
	if last.valid && smp.Timestamp.UTC().Before(last.t) {
		return fmt.Errorf("reactor %s at %s (latest %s): %w",
			smp.Reactor, smp.Timestamp.UTC().Format(time.RFC3339Nano), last.t.Format(time.RFC3339Nano), domain.ErrTimestampRegression)
	}

	cols := make([]string, 0, 3+len(signalColumns))
	args := make([]any, 0, 3+len(signalColumns))
	cols = append(cols, "experiment_id", "reactor", "ts")
	args = append(args, smp.ExperimentID, smp.Reactor, s.tsArg(smp.Timestamp))
	for _, sc := range signalColumns {
		cols = append(cols, sc.Column)
		if v, ok := smp.Values[sc.Signal]; ok {
			args = append(args, v)
		} else {
			args = append(args, nil)
		}
	}

	q := fmt.Sprintf(
		"INSERT INTO samples (%s) VALUES (%s) ON CONFLICT (experiment_id, ts) DO NOTHING",
		strings.Join(cols, ", "),
		strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", "),
	)
	if _, err := tx.ExecContext(ctx, s.rebind(q), args...); err != nil {
		return &domain.StoreError{Op: "append", Err: err}
	}
	if err := tx.Commit(); err != nil {
		return &domain.StoreError{Op: "append", Err: err}
	}
	return nil
}

// Query returns the samples for a reactor inside [from, to], carrying
// only the requested signals (all loggable signals when none are
// named), ordered by timestamp. This is the display's read path.
func (s *SQLStore) Query(ctx context.Context, reactor string, from, to time.Time, signals []string) ([]domain.Sample, error) {
	if len(signals) == 0 {
		signals = LoggableSignals()
	}
	cols := make([]string, 0, len(signals))
	for _, sig := range signals {
		col, ok := columnFor(sig)
		if !ok {
			return nil, &domain.StoreError{Op: "query", Err: fmt.Errorf("unknown signal %q", sig)}
		}
		cols = append(cols, col)
	}

	q := fmt.Sprintf(`SELECT id, experiment_id, reactor, ts, %s FROM samples
	WHERE reactor = ? AND ts >= ? AND ts <= ? ORDER BY ts ASC`, strings.Join(cols, ", "))

	rows, err := s.db.QueryContext(ctx, s.rebind(q), reactor, s.tsArg(from), s.tsArg(to))
	if err != nil {
		return nil, &domain.StoreError{Op: "query", Err: err}
	}
	defer func() { _ = rows.Close() }()

	var out []domain.Sample
	for rows.Next() {
		var (
			smp domain.Sample
			ts  scanTime
		)
		vals := make([]sql.NullFloat64, len(signals))
		dest := []any{&smp.ID, &smp.ExperimentID, &smp.Reactor, &ts}
		for i := range vals {
			dest = append(dest, &vals[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, &domain.StoreError{Op: "query", Err: err}
		}
		smp.Timestamp = ts.t
		smp.Values = make(map[string]float64, len(signals))
		for i, sig := range signals {
			if vals[i].Valid {
				smp.Values[sig] = vals[i].Float64
			}
		}
		out = append(out, smp)
	}
	if err := rows.Err(); err != nil {
		return nil, &domain.StoreError{Op: "query", Err: err}
	}
	return out, nil
}

// ListOpen returns experiments still marked running with no end
// timestamp, so a caller can detect and reconcile a crash.
func (s *SQLStore) ListOpen(ctx context.Context) ([]domain.Experiment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, reactor, started_at, ended_at, status FROM experiments
	WHERE status = 'running' ORDER BY id ASC`)
	if err != nil {
		return nil, &domain.StoreError{Op: "list open", Err: err}
	}
	defer func() { _ = rows.Close() }()

	var out []domain.Experiment
	for rows.Next() {
		exp, err := scanExperiment(rows)
		if err != nil {
			return nil, &domain.StoreError{Op: "list open", Err: err}
		}
		out = append(out, *exp)
	}
	if err := rows.Err(); err != nil {
		return nil, &domain.StoreError{Op: "list open", Err: err}
	}
	return out, nil
}

// RecoverOpen closes experiments a crashed process left running. Each
// is ended at its last sample's timestamp, or at now when it never
// produced one. Returns how many were closed.
func (s *SQLStore) RecoverOpen(ctx context.Context, now time.Time) (int, error) {
	open, err := s.ListOpen(ctx)
	if err != nil {
		return 0, err
	}

	closed := 0
	for _, exp := range open {
		endedAt := now
		var last scanTime
		err := s.db.QueryRowContext(ctx,
			s.rebind(`SELECT ts FROM samples WHERE experiment_id = ? ORDER BY ts DESC LIMIT 1`), exp.ID,
		).Scan(&last)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return closed, &domain.StoreError{Op: "recover", Err: err}
		}
		if last.valid {
			endedAt = last.t
		}
		if err := s.StopExperiment(ctx, exp.ID, endedAt); err != nil {
			return closed, err
		}
		closed++
	}
	return closed, nil
}

var _ ports.Store = (*SQLStore)(nil)
