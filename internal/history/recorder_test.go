package history

import (
	"context"
	"database/sql"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"

	dbpkg "github.com/benedict2310/sftpwizard/internal/db"
)

func TestSQLiteRecorderRecordAndQuery(t *testing.T) {
	db := openHistoryTestDB(t)
	rec, err := NewSQLiteRecorder(db)
	if err != nil {
		t.Fatalf("NewSQLiteRecorder() error = %v", err)
	}
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	entries := []Entry{
		{Timestamp: base, Protocol: "sftp", Host: "a.example.com", Port: 22, Username: "deploy", AuthMethod: "password", RemotePath: "/", Outcome: "auth_failure", Attempts: 4, DurationMS: 15000, Error: "Connection failed: authentication failed"},
		{Timestamp: base.Add(time.Minute), Protocol: "sftp", Host: "a.example.com", Port: 22, Username: "deploy", AuthMethod: "key", RemotePath: "/srv", Success: true, Outcome: "success", Attempts: 1, DurationMS: 120},
		{Timestamp: base.Add(2 * time.Minute), Source: SourceCLI, Protocol: "ftp", Host: "b.example.com", Port: 21, Username: "ftpuser", AuthMethod: "password", Success: true, Outcome: "success", Attempts: 1, DurationMS: 80},
	}
	for i, e := range entries {
		if err := rec.Record(ctx, e); err != nil {
			t.Fatalf("Record(%d) error = %v", i, err)
		}
	}

	all, err := rec.Query(ctx, Filter{})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if all.Total != 3 || len(all.Entries) != 3 {
		t.Fatalf("expected 3 rows, got total=%d len=%d", all.Total, len(all.Entries))
	}
	if all.Limit != defaultLimit {
		t.Fatalf("expected default limit %d, got %d", defaultLimit, all.Limit)
	}
	if all.Entries[0].Host != "b.example.com" {
		t.Fatalf("expected newest entry first, got %q", all.Entries[0].Host)
	}
	if all.Entries[0].Source != SourceCLI || all.Entries[2].Source != SourceAPI {
		t.Fatalf("unexpected sources %q / %q", all.Entries[0].Source, all.Entries[2].Source)
	}
	if all.Entries[2].ID == "" {
		t.Fatalf("expected generated id")
	}
	if !all.Entries[2].Timestamp.Equal(base) {
		t.Fatalf("timestamp = %s, want %s", all.Entries[2].Timestamp, base)
	}

	byHost, err := rec.Query(ctx, Filter{Host: "a.example.com"})
	if err != nil {
		t.Fatalf("Query(host) error = %v", err)
	}
	if byHost.Total != 2 {
		t.Fatalf("expected 2 rows for host, got %d", byHost.Total)
	}

	failed := false
	failures, err := rec.Query(ctx, Filter{Success: &failed})
	if err != nil {
		t.Fatalf("Query(success=false) error = %v", err)
	}
	if failures.Total != 1 || failures.Entries[0].Outcome != "auth_failure" {
		t.Fatalf("unexpected failures result %+v", failures)
	}

	since := base.Add(30 * time.Second)
	until := base.Add(90 * time.Second)
	window, err := rec.Query(ctx, Filter{Since: &since, Until: &until})
	if err != nil {
		t.Fatalf("Query(window) error = %v", err)
	}
	if window.Total != 1 || window.Entries[0].AuthMethod != "key" {
		t.Fatalf("unexpected window result %+v", window)
	}

	paged, err := rec.Query(ctx, Filter{Limit: 1, Offset: 1})
	if err != nil {
		t.Fatalf("Query(paged) error = %v", err)
	}
	if paged.Total != 3 || len(paged.Entries) != 1 || paged.Entries[0].Host != "a.example.com" {
		t.Fatalf("unexpected page %+v", paged)
	}
}

func TestSQLiteRecorderRunIDs(t *testing.T) {
	rec, err := NewSQLiteRecorder(openHistoryTestDB(t))
	if err != nil {
		t.Fatalf("NewSQLiteRecorder() error = %v", err)
	}
	ctx := context.Background()
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	// Same millisecond, interleaved sources.
	for i := 0; i < 20; i++ {
		source := SourceAPI
		if i%2 == 1 {
			source = SourceCLI
		}
		if err := rec.Record(ctx, Entry{Timestamp: started, Source: source, Host: "h", Outcome: "success", Success: true, Attempts: i}); err != nil {
			t.Fatalf("Record(%d) error = %v", i, err)
		}
	}
	if err := rec.Record(ctx, Entry{ID: "imported-1", Timestamp: started.Add(-time.Hour), Host: "h", Outcome: "success", Success: true}); err != nil {
		t.Fatalf("Record(explicit id) error = %v", err)
	}

	res, err := rec.Query(ctx, Filter{Limit: 100})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if res.Total != 21 {
		t.Fatalf("expected 21 rows, got %d", res.Total)
	}
	seen := map[string]bool{}
	lastAttempt := map[string]int{SourceAPI: 100, SourceCLI: 100}
	for _, e := range res.Entries[:20] {
		prefix := e.Source + "_"
		if !strings.HasPrefix(e.ID, prefix) {
			t.Fatalf("id %q does not start with %q", e.ID, prefix)
		}
		id, err := ulid.ParseStrict(strings.TrimPrefix(e.ID, prefix))
		if err != nil {
			t.Fatalf("id %q is not a ULID: %v", e.ID, err)
		}
		if got := ulid.Time(id.Time()); !got.Equal(started) {
			t.Fatalf("id %q encodes %s, want %s", e.ID, got, started)
		}
		if seen[e.ID] {
			t.Fatalf("duplicate id %q", e.ID)
		}
		seen[e.ID] = true
		// Newest first: within one source, later records come out first.
		if e.Attempts >= lastAttempt[e.Source] {
			t.Fatalf("%s runs out of order: attempt %d after %d", e.Source, e.Attempts, lastAttempt[e.Source])
		}
		lastAttempt[e.Source] = e.Attempts
	}
	if res.Entries[20].ID != "imported-1" {
		t.Fatalf("expected explicit id to be kept, got %q", res.Entries[20].ID)
	}
}

func TestSQLiteRecorderRunIDEntropyFailure(t *testing.T) {
	rec, err := NewSQLiteRecorder(openHistoryTestDB(t))
	if err != nil {
		t.Fatalf("NewSQLiteRecorder() error = %v", err)
	}
	rec.entropy = strings.NewReader("")
	err = rec.Record(context.Background(), Entry{Source: SourceCLI, Host: "h", Outcome: "success"})
	if err == nil || !strings.Contains(err.Error(), "generate cli run id") {
		t.Fatalf("Record() error = %v, want id generation failure", err)
	}
}

func TestSQLiteRecorderClampsLimitAndOffset(t *testing.T) {
	rec, err := NewSQLiteRecorder(openHistoryTestDB(t))
	if err != nil {
		t.Fatalf("NewSQLiteRecorder() error = %v", err)
	}
	res, err := rec.Query(context.Background(), Filter{Limit: maxLimit + 10, Offset: -5})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if res.Limit != maxLimit || res.Offset != 0 {
		t.Fatalf("expected clamped limit/offset, got %d/%d", res.Limit, res.Offset)
	}
	if res.Entries == nil {
		t.Fatalf("expected empty non-nil entries")
	}
}

func TestSQLiteRecorderValidation(t *testing.T) {
	if _, err := NewSQLiteRecorder(nil); err == nil {
		t.Fatalf("expected nil database error")
	}
	rec, err := NewSQLiteRecorder(openHistoryTestDB(t))
	if err != nil {
		t.Fatalf("NewSQLiteRecorder() error = %v", err)
	}
	if err := rec.Record(context.Background(), Entry{Host: "x"}); err == nil || !strings.Contains(err.Error(), "outcome") {
		t.Fatalf("expected outcome required error, got %v", err)
	}
}

func TestSQLiteRecorderPrune(t *testing.T) {
	rec, err := NewSQLiteRecorder(openHistoryTestDB(t))
	if err != nil {
		t.Fatalf("NewSQLiteRecorder() error = %v", err)
	}
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		if err := rec.Record(ctx, Entry{Timestamp: base.Add(time.Duration(i) * 24 * time.Hour), Host: "h", Outcome: "success", Success: true}); err != nil {
			t.Fatalf("Record(%d) error = %v", i, err)
		}
	}
	n, err := rec.Prune(ctx, base.Add(36*time.Hour))
	if err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	if n != 2 {
		t.Fatalf("Prune() = %d, want 2", n)
	}
}

func TestNopRecorder(t *testing.T) {
	var r Recorder = Nop{}
	if err := r.Record(context.Background(), Entry{}); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	res, err := r.Query(context.Background(), Filter{Limit: 5})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if res.Total != 0 || len(res.Entries) != 0 || res.Limit != 5 {
		t.Fatalf("unexpected nop result %+v", res)
	}
}

func openHistoryTestDB(t *testing.T) *sql.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "history.db")
	db, err := dbpkg.Open(context.Background(), dbpkg.Options{Path: path, WAL: true})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}
