package cli

import (
	"errors"
	"fmt"

	dbpkg "github.com/benedict2310/sftpwizard/internal/db"
	"github.com/benedict2310/sftpwizard/internal/descriptor"
	"github.com/benedict2310/sftpwizard/internal/output"
	"github.com/benedict2310/sftpwizard/internal/sftpconfig"
)

// Process exit codes. Scripts can tell a bad request apart from a server
// that could not be reached or logged into.
const (
	ExitFailure          = 1
	ExitConnectionFailed = 2
	ExitInvalidInput     = 3
)

// ExitError carries the exit code chosen for err.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e == nil || e.Err == nil {
		return ""
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func exitCodeError(code int, err error) error {
	if err == nil || code <= 0 {
		return err
	}
	return &ExitError{Code: code, Err: err}
}

// ExitCode maps err to the process exit status. Invalid connection details,
// invalid forms and a missing history database exit with ExitInvalidInput
// even when no command tagged them.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var coded *ExitError
	if errors.As(err, &coded) && coded.Code > 0 {
		return coded.Code
	}
	var fields sftpconfig.FieldErrors
	if descriptor.IsValidation(err) || errors.As(err, &fields) || errors.Is(err, dbpkg.ErrNoHistory) {
		return ExitInvalidInput
	}
	return ExitFailure
}

// reportsError summarises a `test` run. Rejected requests outrank connection
// failures so a typo is not mistaken for an unreachable server.
func reportsError(reports []output.ConnectionReport) error {
	var rejected, failed int
	for _, r := range reports {
		switch {
		case r.Rejected():
			rejected++
		case !r.Success:
			failed++
		}
	}
	switch {
	case rejected > 0:
		return exitCodeError(ExitInvalidInput, fmt.Errorf("%d of %d connection test(s) had invalid input", rejected, len(reports)))
	case failed > 0:
		return exitCodeError(ExitConnectionFailed, fmt.Errorf("%d of %d connection test(s) failed", failed, len(reports)))
	}
	return nil
}
