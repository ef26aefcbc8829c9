package transport

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/benedict2310/sftpwizard/internal/descriptor"
)

const testUser = "tester"

type sshServerOptions struct {
	password            string
	keyboardInteractive bool
	authorized          ssh.PublicKey
	noSFTP              bool
}

type sshTestServer struct {
	addr       string
	hostSigner ssh.Signer
	opts       sshServerOptions

	keepAlives atomic.Int32

	listener net.Listener
	wg       sync.WaitGroup
}

func startSSHServer(t *testing.T, opts sshServerOptions) *sshTestServer {
	t.Helper()

	hostSigner := newSigner(t)
	cfg := &ssh.ServerConfig{}
	if opts.password != "" && !opts.keyboardInteractive {
		cfg.PasswordCallback = func(conn ssh.ConnMetadata, password []byte) (*ssh.Permissions, error) {
			if conn.User() == testUser && string(password) == opts.password {
				return nil, nil
			}
			return nil, fmt.Errorf("password rejected for %q", conn.User())
		}
	}
	if opts.password != "" && opts.keyboardInteractive {
		cfg.KeyboardInteractiveCallback = func(conn ssh.ConnMetadata, client ssh.KeyboardInteractiveChallenge) (*ssh.Permissions, error) {
			answers, err := client(conn.User(), "", []string{"Password: "}, []bool{false})
			if err != nil {
				return nil, err
			}
			if conn.User() == testUser && len(answers) == 1 && answers[0] == opts.password {
				return nil, nil
			}
			return nil, fmt.Errorf("keyboard-interactive rejected")
		}
	}
	if opts.authorized != nil {
		cfg.PublicKeyCallback = func(conn ssh.ConnMetadata, key ssh.PublicKey) (*ssh.Permissions, error) {
			if conn.User() != testUser {
				return nil, fmt.Errorf("unknown user %q", conn.User())
			}
			if !publicKeysEqual(key, opts.authorized) {
				return nil, fmt.Errorf("unauthorized key")
			}
			return nil, nil
		}
	}
	cfg.AddHostKey(hostSigner)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen ssh server: %v", err)
	}

	s := &sshTestServer{
		addr:       listener.Addr().String(),
		hostSigner: hostSigner,
		opts:       opts,
		listener:   listener,
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				s.handleConn(conn, cfg)
			}()
		}
	}()
	t.Cleanup(s.Close)

	return s
}

func (s *sshTestServer) Close() {
	_ = s.listener.Close()
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
	}
}

func (s *sshTestServer) handleConn(conn net.Conn, cfg *ssh.ServerConfig) {
	sshConn, chans, reqs, err := ssh.NewServerConn(conn, cfg)
	if err != nil {
		_ = conn.Close()
		return
	}
	go func() {
		for req := range reqs {
			if req.Type == keepAliveRequest {
				s.keepAlives.Add(1)
			}
			if req.WantReply {
				_ = req.Reply(false, nil)
			}
		}
	}()

	for newCh := range chans {
		switch newCh.ChannelType() {
		case "session":
			s.handleSession(newCh)
		case "direct-tcpip":
			handleDirectTCPIP(newCh)
		default:
			_ = newCh.Reject(ssh.UnknownChannelType, "unsupported channel type")
		}
	}
	_ = sshConn.Close()
}

func (s *sshTestServer) handleSession(newCh ssh.NewChannel) {
	ch, reqs, err := newCh.Accept()
	if err != nil {
		return
	}
	go func() {
		for req := range reqs {
			var payload struct{ Name string }
			ok := req.Type == "subsystem" &&
				ssh.Unmarshal(req.Payload, &payload) == nil &&
				payload.Name == "sftp" &&
				!s.opts.noSFTP
			if req.WantReply {
				_ = req.Reply(ok, nil)
			}
			if !ok {
				continue
			}
			server, err := sftp.NewServer(ch)
			if err != nil {
				_ = ch.Close()
				return
			}
			go func() {
				_ = server.Serve()
				_ = server.Close()
			}()
		}
	}()
}

func handleDirectTCPIP(newCh ssh.NewChannel) {
	var channelData struct {
		DestAddr   string
		DestPort   uint32
		OriginAddr string
		OriginPort uint32
	}
	if err := ssh.Unmarshal(newCh.ExtraData(), &channelData); err != nil {
		_ = newCh.Reject(ssh.Prohibited, "invalid direct-tcpip payload")
		return
	}

	downstream, err := net.Dial("tcp", net.JoinHostPort(channelData.DestAddr, strconv.Itoa(int(channelData.DestPort))))
	if err != nil {
		_ = newCh.Reject(ssh.ConnectionFailed, err.Error())
		return
	}

	upstream, reqs, err := newCh.Accept()
	if err != nil {
		_ = downstream.Close()
		return
	}
	go ssh.DiscardRequests(reqs)

	// Tear the tunnel down as soon as either side finishes so a closed
	// channel releases the downstream socket.
	go func() {
		done := make(chan struct{}, 2)
		go func() {
			_, _ = io.Copy(downstream, upstream)
			done <- struct{}{}
		}()
		go func() {
			_, _ = io.Copy(upstream, downstream)
			done <- struct{}{}
		}()
		<-done
		_ = upstream.Close()
		_ = downstream.Close()
		<-done
	}()
}

// connCounter is a TCP forwarder that tracks how many of its inbound
// connections the dialing side has not closed yet. A connection only counts
// as released once the dialer closes it; upstream closing first is passed on
// as a half-close.
type connCounter struct {
	addr     string
	open     atomic.Int32
	accepted atomic.Int32
}

func startConnCounter(t *testing.T, target string) *connCounter {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen forwarder: %v", err)
	}
	c := &connCounter{addr: ln.Addr().String()}
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		for {
			in, err := ln.Accept()
			if err != nil {
				return
			}
			c.accepted.Add(1)
			c.open.Add(1)
			go c.forward(in, target)
		}
	}()
	return c
}

func (c *connCounter) forward(in net.Conn, target string) {
	defer c.open.Add(-1)
	defer in.Close()

	out, err := net.Dial("tcp", target)
	if err != nil {
		// Keep the inbound side open until the dialer gives up on it.
		_, _ = io.Copy(io.Discard, in)
		return
	}
	defer out.Close()

	go func() {
		_, _ = io.Copy(in, out)
		if tcp, ok := in.(*net.TCPConn); ok {
			_ = tcp.CloseWrite()
		}
	}()
	_, _ = io.Copy(out, in)
}

// waitReleased fails the test unless every forwarded connection has been
// closed by its dialer within a short grace period.
func (c *connCounter) waitReleased(t *testing.T) {
	t.Helper()
	if c.accepted.Load() == 0 {
		t.Fatalf("forwarder at %s saw no connections", c.addr)
	}
	deadline := time.Now().Add(2 * time.Second)
	for c.open.Load() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("forwarder at %s has %d open connections, want 0", c.addr, c.open.Load())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func newSigner(t *testing.T) ssh.Signer {
	t.Helper()
	_, private, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	signer, err := ssh.NewSignerFromKey(private)
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}
	return signer
}

// newClientKey returns a public key and its OpenSSH-encoded private key,
// encrypted when passphrase is non-empty.
func newClientKey(t *testing.T, passphrase string) (ssh.PublicKey, string) {
	t.Helper()
	_, private, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	signer, err := ssh.NewSignerFromKey(private)
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}

	var block *pem.Block
	if passphrase == "" {
		block, err = ssh.MarshalPrivateKey(private, "test")
	} else {
		block, err = ssh.MarshalPrivateKeyWithPassphrase(private, "test", []byte(passphrase))
	}
	if err != nil {
		t.Fatalf("marshal private key: %v", err)
	}
	return signer.PublicKey(), string(pem.EncodeToMemory(block))
}

func writeKnownHostsFile(t *testing.T, addr string, hostKey ssh.PublicKey) string {
	t.Helper()
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatalf("split host:port: %v", err)
	}
	line := knownhosts.Line([]string{fmt.Sprintf("[%s]:%s", host, port)}, hostKey) + "\n"

	path := filepath.Join(t.TempDir(), "known_hosts")
	if err := os.WriteFile(path, []byte(line), 0o600); err != nil {
		t.Fatalf("write known_hosts: %v", err)
	}
	return path
}

func publicKeysEqual(a, b ssh.PublicKey) bool {
	if a == nil || b == nil {
		return false
	}
	return string(a.Marshal()) == string(b.Marshal())
}

// buildDescriptor turns addr plus req overrides into a descriptor with
// short timeouts suitable for tests.
func buildDescriptor(t *testing.T, addr string, req descriptor.Request) descriptor.Descriptor {
	t.Helper()
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatalf("split host:port: %v", err)
	}
	n, err := strconv.Atoi(port)
	if err != nil {
		t.Fatalf("parse port: %v", err)
	}
	req.Host = host
	req.Port = descriptor.Number(n)
	if req.Username == "" {
		req.Username = testUser
	}
	if req.ConnectionTimeout == nil {
		req.ConnectionTimeout = descriptor.IntPtr(2000)
	}
	d, err := descriptor.Build(req)
	if err != nil {
		t.Fatalf("descriptor.Build() error = %v", err)
	}
	return d
}

func newTestProber(t *testing.T, cfg Config) *Prober {
	t.Helper()
	p, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return p
}

func closedPortAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()
	return addr
}
