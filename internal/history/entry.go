// Package history keeps a secret-free record of connection test runs.
package history

import (
	"context"
	"time"
)

const (
	SourceAPI = "api"
	SourceCLI = "cli"
)

// Entry describes one connection test run. It intentionally has no field
// that could hold a password, private key or passphrase.
type Entry struct {
	ID         string    `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	Source     string    `json:"source"`
	Protocol   string    `json:"protocol,omitempty"`
	Host       string    `json:"host,omitempty"`
	Port       int       `json:"port,omitempty"`
	Username   string    `json:"username,omitempty"`
	AuthMethod string    `json:"authMethod,omitempty"`
	RemotePath string    `json:"remotePath,omitempty"`
	HopCount   int       `json:"hopCount,omitempty"`
	Success    bool      `json:"success"`
	Outcome    string    `json:"outcome"`
	Attempts   int       `json:"attempts"`
	DurationMS int64     `json:"durationMs"`
	Error      string    `json:"error,omitempty"`
}

type Filter struct {
	Host    string
	Success *bool
	Since   *time.Time
	Until   *time.Time
	Limit   int
	Offset  int
}

type QueryResult struct {
	Entries []Entry `json:"entries"`
	Total   int     `json:"total"`
	Limit   int     `json:"limit"`
	Offset  int     `json:"offset"`
}

type Recorder interface {
	Record(ctx context.Context, entry Entry) error
	Query(ctx context.Context, filter Filter) (QueryResult, error)
}

// Nop discards every entry. Query always returns an empty result.
type Nop struct{}

func (Nop) Record(context.Context, Entry) error { return nil }

func (Nop) Query(_ context.Context, filter Filter) (QueryResult, error) {
	return QueryResult{Entries: []Entry{}, Limit: filter.Limit, Offset: filter.Offset}, nil
}
