// Package db owns the SQLite file that stores connection test history. The
// daemon and `sftpwizard test --history-db` open it for writing; the history
// command opens an existing file for reading only.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/benedict2310/sftpwizard/internal/db/migrations"
)

// ErrNoHistory is returned when a read-only open finds no database file.
var ErrNoHistory = errors.New("no history database")

// Access selects how a history database is opened.
type Access int

const (
	// ReadWrite creates the file and its directory when missing and applies
	// pending migrations.
	ReadWrite Access = iota
	// ReadOnly requires an existing, fully migrated file and rejects writes.
	ReadOnly
)

type Options struct {
	Path   string
	Access Access
	// WAL keeps history queries from waiting on the recorder's writes.
	// Ignored for ReadOnly.
	WAL bool
}

const (
	busyTimeout = 5 * time.Second
	pingTimeout = 5 * time.Second
	// The async recorder writes on one connection; the rest serve
	// /api/history and retention pruning.
	writerConns = 4
)

// Open opens the history database at opts.Path and leaves it ready for
// history.SQLiteRecorder.
func Open(ctx context.Context, opts Options) (*sql.DB, error) {
	path := strings.TrimSpace(opts.Path)
	if path == "" {
		return nil, fmt.Errorf("history database path is required")
	}
	path = filepath.Clean(path)

	db, err := connect(ctx, path, opts)
	if err != nil {
		return nil, err
	}
	if opts.Access == ReadOnly {
		err = checkSchema(ctx, db)
	} else {
		err = migrate(ctx, db)
	}
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("history database %s: %w", path, err)
	}
	return db, nil
}

func connect(ctx context.Context, path string, opts Options) (*sql.DB, error) {
	pragmas := []string{fmt.Sprintf("busy_timeout(%d)", busyTimeout.Milliseconds())}
	conns := writerConns
	switch opts.Access {
	case ReadOnly:
		if _, err := os.Stat(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("%w at %s", ErrNoHistory, path)
			}
			return nil, fmt.Errorf("stat history database: %w", err)
		}
		pragmas = append(pragmas, "query_only(1)")
		conns = 1
	default:
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, fmt.Errorf("create history directory: %w", err)
		}
		if opts.WAL {
			pragmas = append(pragmas, "journal_mode(WAL)", "synchronous(NORMAL)")
		}
	}

	params := make([]string, 0, len(pragmas))
	for _, p := range pragmas {
		params = append(params, "_pragma="+p)
	}
	db, err := sql.Open("sqlite", "file:"+path+"?"+strings.Join(params, "&"))
	if err != nil {
		return nil, fmt.Errorf("open history database %s: %w", path, err)
	}
	db.SetMaxOpenConns(conns)
	db.SetMaxIdleConns(conns)
	db.SetConnMaxIdleTime(30 * time.Second)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping history database %s: %w", path, err)
	}
	return db, nil
}

func checkSchema(ctx context.Context, db *sql.DB) error {
	v, err := SchemaVersion(ctx, db)
	if err != nil {
		return fmt.Errorf("not a history database: %w", err)
	}
	if want := migrations.Latest(); v < want {
		return fmt.Errorf("schema version %d is older than %d; open it for writing once to upgrade", v, want)
	}
	return nil
}
