// Package transport runs a single connect, authenticate and list cycle
// against an SFTP or FTP server and reports the result as an Outcome.
package transport

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"runtime/debug"

	"golang.org/x/crypto/ssh"

	"github.com/benedict2310/sftpwizard/internal/descriptor"
)

// Config holds process-wide transport settings shared by every probe.
type Config struct {
	// KnownHostsPath enables host key verification when set.
	KnownHostsPath string
	// Proxy is an optional socks5:// egress proxy used for SSH dials.
	Proxy  string
	Logger *slog.Logger
}

// Prober opens one session per Probe call. It holds no per-connection
// state and is safe for concurrent use.
type Prober struct {
	dialer   Dialer
	proxied  bool
	hostKeys ssh.HostKeyCallback
	logger   *slog.Logger
}

func New(cfg Config) (*Prober, error) {
	dialer, err := NewDialer(cfg.Proxy)
	if err != nil {
		return nil, err
	}
	hostKeys, err := hostKeyCallback(cfg.KnownHostsPath)
	if err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Prober{
		dialer:   dialer,
		proxied:  cfg.Proxy != "",
		hostKeys: hostKeys,
		logger:   logger,
	}, nil
}

// Probe never returns an error or panics; every failure becomes an Outcome.
func (p *Prober) Probe(ctx context.Context, d descriptor.Descriptor) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("probe panicked", "panic", r, "stack", string(debug.Stack()))
			out = Failure(KindNetwork, fmt.Sprintf("internal error: %v", r))
		}
	}()

	if err := ctx.Err(); err != nil {
		return Classify(fmt.Errorf("%w: %w", ErrUnreachable, err))
	}

	var err error
	switch d.Protocol {
	case descriptor.ProtocolFTP:
		err = p.probeFTP(ctx, d)
	default:
		err = p.probeSFTP(ctx, d)
	}
	return Classify(err)
}

func (p *Prober) debug(d descriptor.Descriptor, msg string, args ...any) {
	if !d.Tuning.Debug {
		return
	}
	p.logger.Debug(msg, append([]any{"endpoint", d.Address()}, args...)...)
}
