package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	txsocks5 "github.com/txthinking/socks5"
)

// Dialer mirrors net.Dialer.DialContext.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// NewDialer returns a direct dialer for an empty proxy, or a SOCKS5 dialer
// for socks5://[user:pass@]host[:port].
func NewDialer(proxy string) (Dialer, error) {
	proxy = strings.TrimSpace(proxy)
	if proxy == "" {
		return &net.Dialer{}, nil
	}

	u, err := url.Parse(proxy)
	if err != nil {
		return nil, fmt.Errorf("invalid proxy url: %w", err)
	}
	if strings.ToLower(u.Scheme) != "socks5" {
		return nil, fmt.Errorf("invalid proxy url scheme %q: expected socks5", u.Scheme)
	}
	if u.Path != "" && u.Path != "/" {
		return nil, errors.New("invalid proxy url: path should be empty")
	}
	host := u.Hostname()
	if host == "" {
		return nil, errors.New("invalid proxy url: host is required")
	}
	port := u.Port()
	if port == "" {
		port = "1080"
	}

	d := &SOCKS5Dialer{ProxyAddr: net.JoinHostPort(host, port)}
	if u.User != nil {
		d.Username = u.User.Username()
		d.Password, _ = u.User.Password()
	}
	return d, nil
}

// SOCKS5Dialer connects through a SOCKS5 proxy using the CONNECT command.
type SOCKS5Dialer struct {
	ProxyAddr string
	Username  string
	Password  string
}

func (d *SOCKS5Dialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	switch network {
	case "tcp", "tcp4", "tcp6":
	default:
		return nil, fmt.Errorf("%w: socks5 dial %s %s: unsupported network", ErrProxy, network, address)
	}

	var nd net.Dialer
	conn, err := nd.DialContext(ctx, "tcp", d.ProxyAddr)
	if err != nil {
		return nil, fmt.Errorf("%w: dial proxy: %w", ErrProxy, err)
	}

	// The negotiation is synchronous; bound it by ctx.
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	if err := socks5Negotiate(conn, d.Username, d.Password); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: %w", ErrProxy, contextErr(ctx, err))
	}
	if err := socks5Connect(conn, address); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: %w", ErrProxy, contextErr(ctx, err))
	}
	if !stop() {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: %w", ErrProxy, ctx.Err())
	}
	_ = conn.SetDeadline(time.Time{})
	return conn, nil
}

func socks5Negotiate(conn net.Conn, username, password string) error {
	methods := []byte{txsocks5.MethodNone}
	if username != "" {
		methods = append(methods, txsocks5.MethodUsernamePassword)
	}
	if _, err := txsocks5.NewNegotiationRequest(methods).WriteTo(conn); err != nil {
		return fmt.Errorf("write negotiation: %w", err)
	}
	neg, err := txsocks5.NewNegotiationReplyFrom(conn)
	if err != nil {
		return fmt.Errorf("read negotiation: %w", err)
	}

	switch neg.Method {
	case txsocks5.MethodNone:
		return nil
	case txsocks5.MethodUsernamePassword:
		if username == "" {
			return errors.New("proxy requires username/password")
		}
		if _, err := txsocks5.NewUserPassNegotiationRequest([]byte(username), []byte(password)).WriteTo(conn); err != nil {
			return fmt.Errorf("write userpass: %w", err)
		}
		rep, err := txsocks5.NewUserPassNegotiationReplyFrom(conn)
		if err != nil {
			return fmt.Errorf("read userpass: %w", err)
		}
		if rep.Status != txsocks5.UserPassStatusSuccess {
			return errors.New("proxy rejected credentials")
		}
		return nil
	default:
		return fmt.Errorf("unsupported negotiation method: %d", neg.Method)
	}
}

func socks5Connect(conn net.Conn, address string) error {
	atyp, dstAddr, dstPort, err := txsocks5.ParseAddress(address)
	if err != nil {
		return fmt.Errorf("parse address: %w", err)
	}
	if atyp == txsocks5.ATYPDomain {
		dstAddr = dstAddr[1:]
	}
	if _, err := txsocks5.NewRequest(txsocks5.CmdConnect, atyp, dstAddr, dstPort).WriteTo(conn); err != nil {
		return fmt.Errorf("write request: %w", err)
	}
	rep, err := txsocks5.NewReplyFrom(conn)
	if err != nil {
		return fmt.Errorf("read reply: %w", err)
	}
	if rep.Rep != txsocks5.RepSuccess {
		return fmt.Errorf("connect %s refused by proxy (reply %d)", address, rep.Rep)
	}
	return nil
}

func contextErr(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return err
}
