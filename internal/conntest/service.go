// Package conntest validates a connection test request, probes the remote
// server with retries and turns the final outcome into a Result.
package conntest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/benedict2310/sftpwizard/internal/descriptor"
	"github.com/benedict2310/sftpwizard/internal/history"
	"github.com/benedict2310/sftpwizard/internal/retry"
	"github.com/benedict2310/sftpwizard/internal/transport"
)

// Prober runs one connect, authenticate and list cycle. It must not panic
// or block past ctx.
type Prober interface {
	Probe(ctx context.Context, d descriptor.Descriptor) transport.Outcome
}

type Options struct {
	Prober      Prober
	Logger      *slog.Logger
	Recorder    history.Recorder
	RetryPolicy RetryPolicy
	// Source is stored with every history entry ("api" or "cli").
	Source string
	// MaxRetriesLimit rejects requests asking for more retries. Zero means
	// no limit.
	MaxRetriesLimit int
	// MaxDuration bounds a whole test including retry waits. Zero means the
	// caller's context is the only bound.
	MaxDuration time.Duration

	// Now and Sleep are overridable for tests.
	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error
}

// Service is safe for concurrent use. Each TestConnection call owns its
// descriptor and transport sessions.
type Service struct {
	prober      Prober
	logger      *slog.Logger
	recorder    history.Recorder
	policy      RetryPolicy
	source      string
	maxRetries  int
	maxDuration time.Duration
	now         func() time.Time
	sleep       func(ctx context.Context, d time.Duration) error
}

func New(opts Options) (*Service, error) {
	if opts.Prober == nil {
		return nil, fmt.Errorf("prober is required")
	}
	if opts.MaxRetriesLimit < 0 {
		return nil, fmt.Errorf("max retries limit must not be negative")
	}
	if opts.MaxDuration < 0 {
		return nil, fmt.Errorf("max duration must not be negative")
	}
	s := &Service{
		prober:      opts.Prober,
		logger:      opts.Logger,
		recorder:    opts.Recorder,
		policy:      opts.RetryPolicy,
		source:      opts.Source,
		maxRetries:  opts.MaxRetriesLimit,
		maxDuration: opts.MaxDuration,
		now:         opts.Now,
		sleep:       opts.Sleep,
	}
	if s.logger == nil {
		s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if s.recorder == nil {
		s.recorder = history.Nop{}
	}
	if s.policy == "" {
		s.policy = RetryAll
	}
	if s.source == "" {
		s.source = history.SourceAPI
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.sleep == nil {
		s.sleep = retry.Sleep
	}
	return s, nil
}

// TestConnection never returns an error: validation problems and
// connection failures are both reported through Result.
func (s *Service) TestConnection(ctx context.Context, req descriptor.Request) Result {
	started := s.now()

	d, err := descriptor.Build(req)
	if err == nil && s.maxRetries > 0 && d.Tuning.MaxRetries > s.maxRetries {
		err = &descriptor.ValidationError{
			Fields:  []string{"maxRetries"},
			Message: fmt.Sprintf("Invalid field maxRetries: must not exceed %d", s.maxRetries),
		}
	}
	if err != nil {
		msg := err.Error()
		var verr *descriptor.ValidationError
		if !errors.As(err, &verr) {
			msg = "Invalid request: " + msg
		}
		res := validationResult(msg)
		s.logger.Info("connection test rejected", "host", req.Host, "error", msg)
		s.record(ctx, started, req, nil, res)
		return res
	}

	log := s.logger.With("endpoint", d.Address(), "protocol", string(d.Protocol))
	if d.Tuning.Debug {
		log.Info("connection test started", "descriptor", d)
	}

	if s.maxDuration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.maxDuration)
		defer cancel()
	}

	policy := retry.Policy[transport.Outcome]{
		MaxRetries:  d.Tuning.MaxRetries,
		Delay:       d.Tuning.RetryDelay,
		ShouldRetry: s.policy.shouldRetry(),
		Sleep:       s.sleep,
		OnRetry: func(attempt int, last transport.Outcome, delay time.Duration) {
			if !d.Tuning.Debug {
				return
			}
			log.Info("connection attempt failed, retrying",
				"attempt", attempt,
				"outcome", last,
				"retry_in", delay.String())
		},
	}

	outcome, attempts := retry.Run(ctx, policy, func(ctx context.Context, n int) transport.Outcome {
		if d.Tuning.Debug {
			log.Info("connection attempt", "attempt", n, "max_attempts", d.Tuning.MaxRetries+1, "descriptor", d)
		}
		o := s.prober.Probe(ctx, d)
		if d.Tuning.Debug {
			log.Info("connection attempt finished", "attempt", n, "outcome", o)
		}
		return o
	})

	res := resultFromOutcome(outcome, attempts)
	if res.Success {
		log.Info("connection test succeeded", "attempts", attempts)
	} else {
		log.Warn("connection test failed", "attempts", attempts, "outcome", outcome)
	}
	s.record(ctx, started, req, &d, res)
	return res
}

func (s *Service) record(ctx context.Context, started time.Time, req descriptor.Request, d *descriptor.Descriptor, res Result) {
	entry := history.Entry{
		Timestamp:  started,
		Source:     s.source,
		Success:    res.Success,
		Outcome:    string(res.Kind),
		Attempts:   res.Attempts,
		DurationMS: s.now().Sub(started).Milliseconds(),
	}
	if !res.Success {
		entry.Error = res.Error
	}
	if d != nil {
		entry.Protocol = string(d.Protocol)
		entry.Host = d.Host
		entry.Port = d.Port
		entry.Username = d.Username
		entry.AuthMethod = d.Auth.Method()
		entry.RemotePath = d.RemotePath
		entry.HopCount = len(d.Hops)
	} else {
		entry.Host = req.Host
		entry.Port = int(req.Port)
		entry.Username = req.Username
	}
	// Canceled requests are still recorded.
	if err := s.recorder.Record(context.WithoutCancel(ctx), entry); err != nil {
		s.logger.Warn("record connection test history failed", "error", err)
	}
}
