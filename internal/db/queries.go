package db

import (
	"context"
	"database/sql"
	"fmt"
)

type queryer interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...any) *sql.Row
}

type Queries struct {
	db queryer
}

func NewQueries(db queryer) *Queries {
	return &Queries{db: db}
}

func (q *Queries) InsertProbeRun(ctx context.Context, in ProbeRunRow) error {
	_, err := q.db.ExecContext(
		ctx,
		`INSERT INTO probe_runs(id, timestamp, source, protocol, host, port, username, auth_method, remote_path, hop_count, success, outcome, attempts, duration_ms, error)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		in.ID,
		in.Timestamp,
		in.Source,
		in.Protocol,
		in.Host,
		in.Port,
		in.Username,
		in.AuthMethod,
		in.RemotePath,
		in.HopCount,
		boolToInt(in.Success),
		in.Outcome,
		in.Attempts,
		in.DurationMS,
		in.Error,
	)
	if err != nil {
		return fmt.Errorf("insert probe run: %w", err)
	}
	return nil
}

func (q *Queries) GetProbeRun(ctx context.Context, id string) (ProbeRunRow, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+ProbeRunColumns+` FROM probe_runs WHERE id = ?`, id)
	out, err := ScanProbeRun(row)
	if err != nil {
		return ProbeRunRow{}, fmt.Errorf("get probe run %q: %w", id, err)
	}
	return out, nil
}

// DeleteProbeRunsBefore removes rows older than the given timestamp and
// returns how many were deleted.
func (q *Queries) DeleteProbeRunsBefore(ctx context.Context, timestamp string) (int64, error) {
	res, err := q.db.ExecContext(ctx, `DELETE FROM probe_runs WHERE timestamp < ?`, timestamp)
	if err != nil {
		return 0, fmt.Errorf("delete probe runs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete probe runs rows affected: %w", err)
	}
	return n, nil
}

// ProbeRunColumns lists probe_runs columns in ScanProbeRun order.
const ProbeRunColumns = `id, timestamp, source, protocol, host, port, username, auth_method, remote_path, hop_count, success, outcome, attempts, duration_ms, error`

type rowScanner interface {
	Scan(dest ...any) error
}

func ScanProbeRun(s rowScanner) (ProbeRunRow, error) {
	var (
		out     ProbeRunRow
		success int
	)
	if err := s.Scan(
		&out.ID,
		&out.Timestamp,
		&out.Source,
		&out.Protocol,
		&out.Host,
		&out.Port,
		&out.Username,
		&out.AuthMethod,
		&out.RemotePath,
		&out.HopCount,
		&success,
		&out.Outcome,
		&out.Attempts,
		&out.DurationMS,
		&out.Error,
	); err != nil {
		return ProbeRunRow{}, err
	}
	out.Success = success == 1
	return out, nil
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
