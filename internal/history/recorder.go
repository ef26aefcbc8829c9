package history

import (
	"context"
	"crypto/rand"
	"database/sql"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	dbpkg "github.com/benedict2310/sftpwizard/internal/db"
)

const (
	defaultLimit    = 50
	maxLimit        = 1000
	timestampLayout = "2006-01-02T15:04:05.000000000Z"
)

// SQLiteRecorder stores entries in the probe_runs table. Run IDs look like
// "api_01J..." and each source keeps its own monotonic ULID sequence, so runs
// from one source that start in the same millisecond still sort in the
// order they were recorded.
type SQLiteRecorder struct {
	db  *sql.DB
	now func() time.Time

	idMu      sync.Mutex
	entropy   io.Reader
	sequences map[string]*ulid.MonotonicEntropy
}

func NewSQLiteRecorder(db *sql.DB) (*SQLiteRecorder, error) {
	if db == nil {
		return nil, fmt.Errorf("database is required")
	}
	return &SQLiteRecorder{
		db:        db,
		now:       time.Now,
		entropy:   rand.Reader,
		sequences: map[string]*ulid.MonotonicEntropy{},
	}, nil
}

func (r *SQLiteRecorder) Record(ctx context.Context, entry Entry) error {
	if strings.TrimSpace(entry.Outcome) == "" {
		return fmt.Errorf("outcome is required")
	}
	source := strings.TrimSpace(entry.Source)
	if source == "" {
		source = SourceAPI
	}
	ts := entry.Timestamp
	if ts.IsZero() {
		ts = r.now()
	}
	id := entry.ID
	if id == "" {
		var err error
		if id, err = r.runID(ts, source); err != nil {
			return err
		}
	}

	q := dbpkg.NewQueries(r.db)
	err := q.InsertProbeRun(ctx, dbpkg.ProbeRunRow{
		ID:         id,
		Timestamp:  ts.UTC().Format(timestampLayout),
		Source:     source,
		Protocol:   entry.Protocol,
		Host:       entry.Host,
		Port:       entry.Port,
		Username:   entry.Username,
		AuthMethod: entry.AuthMethod,
		RemotePath: entry.RemotePath,
		HopCount:   entry.HopCount,
		Success:    entry.Success,
		Outcome:    entry.Outcome,
		Attempts:   entry.Attempts,
		DurationMS: entry.DurationMS,
		Error:      entry.Error,
	})
	if err != nil {
		return fmt.Errorf("record probe run: %w", err)
	}
	return nil
}

func (r *SQLiteRecorder) Query(ctx context.Context, filter Filter) (QueryResult, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	clauses := []string{"1 = 1"}
	args := []any{}
	if host := strings.TrimSpace(filter.Host); host != "" {
		clauses = append(clauses, "host = ?")
		args = append(args, host)
	}
	if filter.Success != nil {
		clauses = append(clauses, "success = ?")
		if *filter.Success {
			args = append(args, 1)
		} else {
			args = append(args, 0)
		}
	}
	if filter.Since != nil {
		clauses = append(clauses, "timestamp >= ?")
		args = append(args, filter.Since.UTC().Format(timestampLayout))
	}
	if filter.Until != nil {
		clauses = append(clauses, "timestamp <= ?")
		args = append(args, filter.Until.UTC().Format(timestampLayout))
	}
	where := strings.Join(clauses, " AND ")

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM probe_runs WHERE `+where, args...).Scan(&total); err != nil {
		return QueryResult{}, fmt.Errorf("count probe runs: %w", err)
	}

	query := `SELECT ` + dbpkg.ProbeRunColumns + `
FROM probe_runs
WHERE ` + where + `
ORDER BY timestamp DESC, id DESC
LIMIT ? OFFSET ?`
	queryArgs := append(append([]any{}, args...), limit, offset)
	rows, err := r.db.QueryContext(ctx, query, queryArgs...)
	if err != nil {
		return QueryResult{}, fmt.Errorf("query probe runs: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		row, err := dbpkg.ScanProbeRun(rows)
		if err != nil {
			return QueryResult{}, fmt.Errorf("scan probe run: %w", err)
		}
		ts, err := parseTimestamp(row.Timestamp)
		if err != nil {
			return QueryResult{}, fmt.Errorf("parse probe run timestamp %q: %w", row.Timestamp, err)
		}
		entries = append(entries, entryFromRow(row, ts))
	}
	if err := rows.Err(); err != nil {
		return QueryResult{}, fmt.Errorf("iterate probe runs: %w", err)
	}
	return QueryResult{Entries: entries, Total: total, Limit: limit, Offset: offset}, nil
}

func (r *SQLiteRecorder) runID(started time.Time, source string) (string, error) {
	r.idMu.Lock()
	defer r.idMu.Unlock()

	seq, ok := r.sequences[source]
	if !ok {
		seq = ulid.Monotonic(r.entropy, 0)
		r.sequences[source] = seq
	}
	id, err := ulid.New(ulid.Timestamp(started.UTC()), seq)
	if err != nil {
		return "", fmt.Errorf("generate %s run id: %w", source, err)
	}
	return source + "_" + id.String(), nil
}

// Prune deletes entries recorded before cutoff.
func (r *SQLiteRecorder) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	return dbpkg.NewQueries(r.db).DeleteProbeRunsBefore(ctx, cutoff.UTC().Format(timestampLayout))
}

func entryFromRow(row dbpkg.ProbeRunRow, ts time.Time) Entry {
	return Entry{
		ID:         row.ID,
		Timestamp:  ts,
		Source:     row.Source,
		Protocol:   row.Protocol,
		Host:       row.Host,
		Port:       row.Port,
		Username:   row.Username,
		AuthMethod: row.AuthMethod,
		RemotePath: row.RemotePath,
		HopCount:   row.HopCount,
		Success:    row.Success,
		Outcome:    row.Outcome,
		Attempts:   row.Attempts,
		DurationMS: row.DurationMS,
		Error:      row.Error,
	}
}

func parseTimestamp(raw string) (time.Time, error) {
	if ts, err := time.Parse(timestampLayout, raw); err == nil {
		return ts, nil
	}
	return time.Parse(time.RFC3339Nano, raw)
}
