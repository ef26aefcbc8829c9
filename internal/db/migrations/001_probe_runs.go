package migrations

type Migration struct {
	Version int
	Name    string
	UpSQL   string
}

const probeRunsSchemaSQL = `
CREATE TABLE IF NOT EXISTS probe_runs (
    id TEXT PRIMARY KEY,
    timestamp TEXT NOT NULL,
    source TEXT NOT NULL DEFAULT 'api',
    protocol TEXT NOT NULL,
    host TEXT NOT NULL DEFAULT '',
    port INTEGER NOT NULL DEFAULT 0,
    username TEXT NOT NULL DEFAULT '',
    auth_method TEXT NOT NULL DEFAULT '',
    remote_path TEXT NOT NULL DEFAULT '',
    hop_count INTEGER NOT NULL DEFAULT 0,
    success INTEGER NOT NULL CHECK (success IN (0, 1)),
    outcome TEXT NOT NULL,
    attempts INTEGER NOT NULL DEFAULT 0,
    duration_ms INTEGER NOT NULL DEFAULT 0,
    error TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_probe_runs_timestamp ON probe_runs(timestamp DESC);
CREATE INDEX IF NOT EXISTS idx_probe_runs_host_timestamp ON probe_runs(host, timestamp DESC);
`

func All() []Migration {
	return []Migration{
		{
			Version: 1,
			Name:    "probe_runs",
			UpSQL:   probeRunsSchemaSQL,
		},
	}
}

// Latest is the schema version a fully migrated history database reports.
func Latest() int {
	v := 0
	for _, m := range All() {
		v = max(v, m.Version)
	}
	return v
}
