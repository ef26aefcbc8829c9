package conntest

import (
	"github.com/benedict2310/sftpwizard/internal/transport"
)

const (
	SuccessMessage = "Connection successful! Remote path is accessible."

	connectionFailedPrefix = "Connection failed: "
	subsystemFailedPrefix  = "Failed to initialize SFTP session: "
	pathFailedPrefix       = "Remote path access failed: "
)

// KindValidation marks results rejected before any network attempt.
const KindValidation transport.Kind = "validation_error"

// Result is the caller-facing outcome of TestConnection. Kind and Attempts
// are for logging and status mapping; they are not part of the wire shape.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`

	Kind     transport.Kind `json:"-"`
	Attempts int            `json:"-"`
}

// Text returns whichever of Message or Error is set.
func (r Result) Text() string {
	if r.Success {
		return r.Message
	}
	return r.Error
}

func validationResult(msg string) Result {
	return Result{Error: msg, Kind: KindValidation}
}

func resultFromOutcome(o transport.Outcome, attempts int) Result {
	if o.OK() {
		return Result{Success: true, Message: SuccessMessage, Kind: o.Kind, Attempts: attempts}
	}
	return Result{Error: failureMessage(o), Kind: o.Kind, Attempts: attempts}
}

func failureMessage(o transport.Outcome) string {
	switch o.Kind {
	case transport.KindSubsystem:
		return subsystemFailedPrefix + o.Reason
	case transport.KindPath:
		return pathFailedPrefix + o.Reason
	default:
		return connectionFailedPrefix + o.Reason
	}
}
