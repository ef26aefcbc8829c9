package transport

import "errors"

var (
	// ErrAuth indicates the server rejected the supplied credentials.
	ErrAuth = errors.New("authentication failed")
	// ErrPrivateKey indicates the private key material could not be used.
	ErrPrivateKey = errors.New("private key unusable")
	// ErrHostKey indicates known-hosts verification failure.
	ErrHostKey = errors.New("host key verification failed")
	// ErrUnreachable indicates host connectivity or timeout failure.
	ErrUnreachable = errors.New("host unreachable")
	// ErrHandshake indicates the protocol handshake failed for reasons other than auth.
	ErrHandshake = errors.New("handshake failed")
	// ErrProxy indicates the egress proxy refused or failed the connection.
	ErrProxy = errors.New("proxy connection failed")
	// ErrSubsystem indicates the sftp subsystem could not be started.
	ErrSubsystem = errors.New("sftp subsystem unavailable")
	// ErrRemotePath indicates the remote path could not be listed.
	ErrRemotePath = errors.New("remote path not accessible")
)
