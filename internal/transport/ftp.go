package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/gonzalop/ftp"

	"github.com/benedict2310/sftpwizard/internal/descriptor"
)

// probeFTP logs in, changes into the remote path and lists it. The ftp
// client has no context support, so ctx only shortens the operation timeout.
// No logger is handed to the client: it would record the PASS command.
func (p *Prober) probeFTP(ctx context.Context, d descriptor.Descriptor) error {
	timeout := d.Tuning.ConnectTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < timeout {
			timeout = left
		}
	}
	if timeout <= 0 {
		return fmt.Errorf("%w: %w", ErrUnreachable, context.DeadlineExceeded)
	}

	addr, err := ftpAddress(ctx, d)
	if err != nil {
		return err
	}

	opts := []ftp.Option{
		ftp.WithTimeout(timeout),
		ftp.WithDialer(&net.Dialer{KeepAlive: d.Tuning.KeepAliveInterval}),
		ftp.WithIdleTimeout(d.Tuning.KeepAliveInterval),
	}
	if d.Secure {
		opts = append(opts, ftp.WithExplicitTLS(&tls.Config{
			ServerName: d.Host,
			MinVersion: tls.VersionTLS12,
		}))
	}

	p.debug(d, "dialing", "address", addr, "secure", d.Secure)
	client, err := ftp.Dial(addr, opts...)
	if err != nil {
		var protoErr *ftp.ProtocolError
		if errors.As(err, &protoErr) {
			return fmt.Errorf("%w: %v", ErrHandshake, err)
		}
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer func() { _ = client.Quit() }()

	if err := client.Login(d.Username, passwordOf(d.Auth)); err != nil {
		var protoErr *ftp.ProtocolError
		if errors.As(err, &protoErr) {
			return fmt.Errorf("%w: %v", ErrAuth, err)
		}
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	p.debug(d, "ftp login succeeded")

	if err := client.ChangeDir(d.RemotePath); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrRemotePath, d.RemotePath, err)
	}
	entries, err := client.List("")
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrRemotePath, d.RemotePath, err)
	}
	p.debug(d, "remote path listed", "path", d.RemotePath, "entries", len(entries))
	return nil
}

// ftpAddress pins the control connection to an IPv4 address when asked.
func ftpAddress(ctx context.Context, d descriptor.Descriptor) (string, error) {
	if !d.Tuning.ForceIPv4 {
		return d.Address(), nil
	}
	if ip := net.ParseIP(d.Host); ip != nil {
		if ip.To4() == nil {
			return "", fmt.Errorf("%w: %s is not an IPv4 address", ErrUnreachable, d.Host)
		}
		return d.Address(), nil
	}

	lookupCtx, cancel := context.WithTimeout(ctx, d.Tuning.ConnectTimeout)
	defer cancel()
	ips, err := net.DefaultResolver.LookupIP(lookupCtx, "ip4", d.Host)
	if err != nil {
		return "", fmt.Errorf("%w: resolve %s: %v", ErrUnreachable, d.Host, err)
	}
	if len(ips) == 0 {
		return "", fmt.Errorf("%w: %s has no IPv4 address", ErrUnreachable, d.Host)
	}
	return net.JoinHostPort(ips[0].String(), strconv.Itoa(d.Port)), nil
}

func passwordOf(auth descriptor.Auth) string {
	if pw, ok := auth.(descriptor.PasswordAuth); ok {
		return pw.Password
	}
	return ""
}
