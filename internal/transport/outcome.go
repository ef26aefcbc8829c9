package transport

import (
	"errors"
	"log/slog"
)

// Kind is the category of a single probe result.
type Kind string

const (
	KindSuccess   Kind = "success"
	KindAuth      Kind = "auth_failure"
	KindNetwork   Kind = "network_failure"
	KindPath      Kind = "path_failure"
	KindSubsystem Kind = "subsystem_failure"
)

// Outcome is the typed result of one connect-authenticate-list cycle.
type Outcome struct {
	Kind   Kind
	Reason string
	Err    error
}

// Success returns the outcome of a probe that listed the remote path.
func Success() Outcome {
	return Outcome{Kind: KindSuccess}
}

// Failure builds an outcome of the given kind with reason as its text.
func Failure(kind Kind, reason string) Outcome {
	return Outcome{Kind: kind, Reason: reason, Err: errors.New(reason)}
}

func (o Outcome) OK() bool {
	return o.Kind == KindSuccess
}

// Transient reports whether another attempt could plausibly succeed
// without the caller changing anything.
func (o Outcome) Transient() bool {
	return o.Kind == KindNetwork || o.Kind == KindPath
}

func (o Outcome) LogValue() slog.Value {
	if o.OK() {
		return slog.GroupValue(slog.String("kind", string(o.Kind)))
	}
	return slog.GroupValue(
		slog.String("kind", string(o.Kind)),
		slog.String("reason", o.Reason),
	)
}

// Classify maps a wrapped transport error to an outcome. Unknown errors are
// treated as network failures.
func Classify(err error) Outcome {
	if err == nil {
		return Success()
	}
	kind := KindNetwork
	switch {
	case errors.Is(err, ErrAuth), errors.Is(err, ErrPrivateKey):
		kind = KindAuth
	case errors.Is(err, ErrSubsystem):
		kind = KindSubsystem
	case errors.Is(err, ErrRemotePath):
		kind = KindPath
	}
	return Outcome{Kind: kind, Reason: err.Error(), Err: err}
}
