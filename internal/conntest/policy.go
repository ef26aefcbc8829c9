package conntest

import (
	"fmt"
	"strings"

	"github.com/benedict2310/sftpwizard/internal/transport"
)

// RetryPolicy selects which failed attempts are retried.
type RetryPolicy string

const (
	// RetryAll retries every failure category.
	RetryAll RetryPolicy = "all"
	// RetryTransient retries network and path failures only. Rejected
	// credentials and missing subsystems fail fast.
	RetryTransient RetryPolicy = "transient"
)

func ParseRetryPolicy(raw string) (RetryPolicy, error) {
	switch RetryPolicy(strings.ToLower(strings.TrimSpace(raw))) {
	case "", RetryAll:
		return RetryAll, nil
	case RetryTransient:
		return RetryTransient, nil
	default:
		return "", fmt.Errorf("unknown retry policy %q (want %q or %q)", raw, RetryAll, RetryTransient)
	}
}

func (p RetryPolicy) shouldRetry() func(transport.Outcome) bool {
	if p == RetryTransient {
		return transport.Outcome.Transient
	}
	return nil
}
