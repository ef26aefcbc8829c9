package db

// ProbeRunRow is one row of probe_runs. It never carries credentials.
type ProbeRunRow struct {
	ID         string
	Timestamp  string
	Source     string
	Protocol   string
	Host       string
	Port       int
	Username   string
	AuthMethod string
	RemotePath string
	HopCount   int
	Success    bool
	Outcome    string
	Attempts   int
	DurationMS int64
	Error      string
}
