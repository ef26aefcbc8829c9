package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	xknownhosts "golang.org/x/crypto/ssh/knownhosts"

	"github.com/benedict2310/sftpwizard/internal/descriptor"
)

// probeSFTP dials through any hops, opens the sftp subsystem and lists the
// remote path. Every client it opens is closed before it returns.
func (p *Prober) probeSFTP(ctx context.Context, d descriptor.Descriptor) error {
	if d.Tuning.Compress {
		p.debug(d, "compression requested; not supported by the ssh client, continuing without it")
	}

	client, closers, err := p.connectSSH(ctx, d)
	defer closeAll(closers...)
	if err != nil {
		return err
	}
	p.debug(d, "ssh session established", "hops", len(d.Hops))

	stopKeepAlive := startKeepAlive(client, d.Tuning.KeepAliveInterval)
	defer stopKeepAlive()

	// sftp calls do not take a context; closing the client unblocks them.
	opCtx, cancel := context.WithTimeout(ctx, d.Tuning.ConnectTimeout)
	defer cancel()
	stop := context.AfterFunc(opCtx, func() { _ = client.Close() })
	defer stop()

	sc, err := sftp.NewClient(client)
	if err != nil {
		if ctxErr := opCtx.Err(); ctxErr != nil {
			return fmt.Errorf("%w: sftp subsystem: %w", ErrUnreachable, ctxErr)
		}
		return fmt.Errorf("%w: %v", ErrSubsystem, err)
	}
	defer sc.Close()

	entries, err := sc.ReadDir(d.RemotePath)
	if err != nil {
		if ctxErr := opCtx.Err(); ctxErr != nil {
			return fmt.Errorf("%w: list %s: %w", ErrUnreachable, d.RemotePath, ctxErr)
		}
		return fmt.Errorf("%w: %s: %v", ErrRemotePath, d.RemotePath, err)
	}
	p.debug(d, "remote path listed", "path", d.RemotePath, "entries", len(entries))
	return nil
}

// connectSSH returns the client for the target host plus every closer opened
// on the way, innermost first. The caller closes them even on error.
func (p *Prober) connectSSH(ctx context.Context, d descriptor.Descriptor) (*ssh.Client, []io.Closer, error) {
	dialCtx, cancel := context.WithTimeout(ctx, d.Tuning.ConnectTimeout)
	defer cancel()

	network := "tcp"
	if d.Tuning.ForceIPv4 {
		network = "tcp4"
	}

	type target struct {
		addr     string
		username string
		auth     descriptor.Auth
		label    string
	}
	chain := make([]target, 0, len(d.Hops)+1)
	for i, h := range d.Hops {
		chain = append(chain, target{addr: h.Address(), username: h.Username, auth: h.Auth, label: fmt.Sprintf("hop %d (%s)", i+1, h.Address())})
	}
	chain = append(chain, target{addr: d.Address(), username: d.Username, auth: d.Auth})

	var (
		closers []io.Closer
		prev    *ssh.Client
	)
	for _, t := range chain {
		methods, err := authMethods(t.auth)
		if err != nil {
			return nil, closers, labelled(t.label, err)
		}
		cfg := &ssh.ClientConfig{
			User:            t.username,
			Auth:            methods,
			HostKeyCallback: p.hostKeys,
			Timeout:         d.Tuning.ConnectTimeout,
		}

		var conn net.Conn
		if prev == nil {
			p.debug(d, "dialing", "address", t.addr, "network", network, "proxied", p.proxied)
			conn, err = p.dialer.DialContext(dialCtx, network, t.addr)
		} else {
			p.debug(d, "dialing through hop", "address", t.addr)
			conn, err = dialThrough(dialCtx, prev, t.addr)
		}
		if err != nil {
			return nil, closers, labelled(t.label, classifyDialError(err))
		}

		client, err := handshakeSSH(dialCtx, conn, t.addr, cfg)
		if err != nil {
			return nil, closers, labelled(t.label, err)
		}
		closers = append([]io.Closer{client}, closers...)
		prev = client
	}
	return prev, closers, nil
}

func dialThrough(ctx context.Context, via *ssh.Client, addr string) (net.Conn, error) {
	type result struct {
		conn net.Conn
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		conn, err := via.Dial("tcp", addr)
		ch <- result{conn: conn, err: err}
	}()
	select {
	case r := <-ch:
		return r.conn, r.err
	case <-ctx.Done():
		go func() {
			if r := <-ch; r.conn != nil {
				_ = r.conn.Close()
			}
		}()
		return nil, ctx.Err()
	}
}

// handshakeSSH runs the SSH handshake on conn, aborting it when ctx ends.
func handshakeSSH(ctx context.Context, conn net.Conn, addr string, cfg *ssh.ClientConfig) (*ssh.Client, error) {
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })

	clientConn, chans, reqs, err := ssh.NewClientConn(conn, addr, cfg)
	if !stop() && err == nil {
		_ = clientConn.Close()
		return nil, fmt.Errorf("%w: ssh handshake: %w", ErrUnreachable, ctx.Err())
	}
	if err != nil {
		_ = conn.Close()
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%w: ssh handshake: %w", ErrUnreachable, ctxErr)
		}
		return nil, classifySSHConnectError(err)
	}
	_ = conn.SetDeadline(time.Time{})
	return ssh.NewClient(clientConn, chans, reqs), nil
}

func classifyDialError(err error) error {
	if errors.Is(err, ErrProxy) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrUnreachable, err)
}

func classifySSHConnectError(err error) error {
	if err == nil {
		return nil
	}

	var keyErr *xknownhosts.KeyError
	if errors.As(err, &keyErr) {
		return fmt.Errorf("%w: %v", ErrHostKey, err)
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "unable to authenticate"),
		strings.Contains(msg, "no supported methods remain"),
		strings.Contains(msg, "permission denied"):
		return fmt.Errorf("%w: %v", ErrAuth, err)
	case strings.Contains(msg, "knownhosts"),
		strings.Contains(msg, "host key"):
		return fmt.Errorf("%w: %v", ErrHostKey, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}

	return fmt.Errorf("%w: %v", ErrHandshake, err)
}

func labelled(label string, err error) error {
	if label == "" || err == nil {
		return err
	}
	return fmt.Errorf("%s: %w", label, err)
}

func closeAll(closers ...io.Closer) {
	for _, c := range closers {
		if c != nil {
			_ = c.Close()
		}
	}
}
