package output

import (
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/benedict2310/sftpwizard/internal/conntest"
	"github.com/benedict2310/sftpwizard/internal/history"
	"github.com/benedict2310/sftpwizard/internal/sftpconfig"
)

// ConnectionReport is the result of one `sftpwizard test` job. Source names
// the request file or config it came from, or "flags".
type ConnectionReport struct {
	Source   string `json:"source" yaml:"source"`
	Endpoint string `json:"endpoint" yaml:"endpoint"`
	Success  bool   `json:"success" yaml:"success"`
	Message  string `json:"message,omitempty" yaml:"message,omitempty"`
	Error    string `json:"error,omitempty" yaml:"error,omitempty"`
	Outcome  string `json:"outcome" yaml:"outcome"`
	Attempts int    `json:"attempts" yaml:"attempts"`
}

// NewConnectionReport summarises res for the job read from source.
func NewConnectionReport(source, endpoint string, res conntest.Result) ConnectionReport {
	return ConnectionReport{
		Source:   source,
		Endpoint: endpoint,
		Success:  res.Success,
		Message:  res.Message,
		Error:    res.Error,
		Outcome:  string(res.Kind),
		Attempts: res.Attempts,
	}
}

// Rejected reports whether the request never reached the network.
func (r ConnectionReport) Rejected() bool {
	return r.Outcome == string(conntest.KindValidation)
}

// Result is the short status shown in the RESULT column.
func (r ConnectionReport) Result() string {
	switch {
	case r.Rejected():
		return "invalid"
	case !r.Success:
		return "failed"
	default:
		return "ok"
	}
}

// ConnectionReports prints one row per job in the order given.
func (p Printer) ConnectionReports(reports []ConnectionReport) error {
	if p.format != FormatTable {
		return p.encode(reports)
	}
	rows := make([][]string, 0, len(reports))
	for _, r := range reports {
		text := r.Message
		if !r.Success {
			text = r.Error
		}
		rows = append(rows, []string{r.Source, r.Endpoint, r.Result(), strconv.Itoa(r.Attempts), clip(text, 96)})
	}
	return p.table([]string{"SOURCE", "ENDPOINT", "RESULT", "ATTEMPTS", "MESSAGE"}, rows)
}

// History prints a page of recorded connection tests, newest first.
func (p Printer) History(res history.QueryResult) error {
	if p.format != FormatTable {
		return p.encode(res)
	}
	if len(res.Entries) == 0 {
		_, err := fmt.Fprintln(p.w, "No connection tests recorded.")
		return err
	}
	rows := make([][]string, 0, len(res.Entries))
	for _, e := range res.Entries {
		errText := clip(e.Error, 64)
		if errText == "" {
			errText = "-"
		}
		rows = append(rows, []string{
			e.Timestamp.UTC().Format(time.RFC3339),
			e.Source,
			e.Host + ":" + strconv.Itoa(e.Port),
			e.Outcome,
			strconv.Itoa(e.Attempts),
			(time.Duration(e.DurationMS) * time.Millisecond).String(),
			errText,
		})
	}
	if err := p.table([]string{"TIME", "SOURCE", "ENDPOINT", "OUTCOME", "ATTEMPTS", "DURATION", "ERROR"}, rows); err != nil {
		return err
	}
	if shown := res.Offset + len(res.Entries); shown < res.Total {
		_, err := fmt.Fprintf(p.w, "Showing %d of %d; use --limit to see more.\n", len(res.Entries), res.Total)
		return err
	}
	return nil
}

// FormReport is the result of validating a wizard form.
type FormReport struct {
	Valid  bool                   `json:"valid" yaml:"valid"`
	Fields sftpconfig.FieldErrors `json:"fields" yaml:"fields"`
}

// Form prints the invalid fields sorted by name, or a one-line verdict for a
// valid form.
func (p Printer) Form(r FormReport) error {
	if p.format != FormatTable {
		return p.encode(r)
	}
	if r.Valid {
		_, err := fmt.Fprintln(p.w, "Form is valid.")
		return err
	}
	names := make([]string, 0, len(r.Fields))
	for name := range r.Fields {
		names = append(names, name)
	}
	slices.Sort(names)
	rows := make([][]string, 0, len(names))
	for _, name := range names {
		rows = append(rows, []string{name, r.Fields[name]})
	}
	return p.table([]string{"FIELD", "PROBLEM"}, rows)
}
