// Package descriptor builds the normalized connection parameters used by a
// single connection test.
package descriptor

import (
	"net"
	"strconv"
	"time"
)

const (
	DefaultSFTPPort          = 22
	DefaultFTPPort           = 21
	DefaultRemotePath        = "/"
	DefaultConnectTimeout    = 10 * time.Second
	DefaultKeepAliveInterval = 30 * time.Second
	DefaultMaxRetries        = 3
	DefaultRetryDelay        = 5 * time.Second
)

type Protocol string

const (
	ProtocolSFTP Protocol = "sftp"
	ProtocolFTP  Protocol = "ftp"
)

// Auth is either PasswordAuth or KeyAuth.
type Auth interface {
	Method() string
	isAuth()
}

type PasswordAuth struct {
	Password string
}

func (PasswordAuth) Method() string { return "password" }
func (PasswordAuth) isAuth()        {}

// KeyAuth carries private key content. It never holds a filesystem path.
type KeyAuth struct {
	PrivateKey string
	Passphrase string
}

func (KeyAuth) Method() string { return "privateKey" }
func (KeyAuth) isAuth()        {}

type Tuning struct {
	ConnectTimeout    time.Duration
	KeepAliveInterval time.Duration
	MaxRetries        int
	RetryDelay        time.Duration
	ForceIPv4         bool
	Compress          bool
	Debug             bool
}

func DefaultTuning() Tuning {
	return Tuning{
		ConnectTimeout:    DefaultConnectTimeout,
		KeepAliveInterval: DefaultKeepAliveInterval,
		MaxRetries:        DefaultMaxRetries,
		RetryDelay:        DefaultRetryDelay,
	}
}

// Hop is an SSH jump host traversed before the target.
type Hop struct {
	Host     string
	Port     int
	Username string
	Auth     Auth
}

func (h Hop) Address() string {
	return net.JoinHostPort(h.Host, strconv.Itoa(h.Port))
}

// Descriptor is built once per test invocation by Build and treated as
// read-only afterwards. Pass it by value.
type Descriptor struct {
	Protocol   Protocol
	Host       string
	Port       int
	Username   string
	Auth       Auth
	RemotePath string
	Secure     bool
	Hops       []Hop
	Tuning     Tuning
}

func (d Descriptor) Address() string {
	return net.JoinHostPort(d.Host, strconv.Itoa(d.Port))
}
