package descriptor

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// MissingRequiredMessage is returned verbatim to callers that omit host,
// port or username.
const MissingRequiredMessage = "Missing required fields: host, port, or username"

// ValidationError reports request problems detected before any network I/O.
type ValidationError struct {
	Fields  []string
	Message string
}

func (e *ValidationError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

func invalidField(field, format string, args ...any) *ValidationError {
	return &ValidationError{
		Fields:  []string{field},
		Message: fmt.Sprintf("Invalid field %s: %s", field, fmt.Sprintf(format, args...)),
	}
}

// IsValidation reports whether err is a *ValidationError.
func IsValidation(err error) bool {
	var verr *ValidationError
	return errors.As(err, &verr)
}

// Build validates req and returns a Descriptor with defaults applied.
func Build(req Request) (Descriptor, error) {
	host := strings.TrimSpace(req.Host)
	username := strings.TrimSpace(req.Username)
	port := int(req.Port)

	var missing []string
	if host == "" {
		missing = append(missing, "host")
	}
	if port == 0 {
		missing = append(missing, "port")
	}
	if username == "" {
		missing = append(missing, "username")
	}
	if len(missing) > 0 {
		return Descriptor{}, &ValidationError{Fields: missing, Message: MissingRequiredMessage}
	}
	if port < 1 || port > 65535 {
		return Descriptor{}, invalidField("port", "must be in range 1..65535")
	}

	protocol, err := parseProtocol(req.Protocol)
	if err != nil {
		return Descriptor{}, err
	}

	tuning, err := buildTuning(req)
	if err != nil {
		return Descriptor{}, err
	}

	d := Descriptor{
		Protocol:   protocol,
		Host:       host,
		Port:       port,
		Username:   username,
		Auth:       buildAuth(req.Password, req.PrivateKey, req.Passphrase),
		RemotePath: strings.TrimSpace(req.RemotePath),
		Tuning:     tuning,
	}
	if d.RemotePath == "" {
		d.RemotePath = DefaultRemotePath
	}

	switch protocol {
	case ProtocolFTP:
		if _, ok := d.Auth.(KeyAuth); ok {
			return Descriptor{}, invalidField("privateKey", "key authentication is only supported for sftp")
		}
		if len(req.Hop) > 0 {
			return Descriptor{}, invalidField("hop", "jump hosts are only supported for sftp")
		}
		d.Secure = req.Secure
	case ProtocolSFTP:
		hops, err := buildHops(req.Hop)
		if err != nil {
			return Descriptor{}, err
		}
		d.Hops = hops
	}
	return d, nil
}

func parseProtocol(raw string) (Protocol, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", string(ProtocolSFTP):
		return ProtocolSFTP, nil
	case string(ProtocolFTP):
		return ProtocolFTP, nil
	default:
		return "", invalidField("protocol", "%q is not supported (expected sftp or ftp)", raw)
	}
}

// buildTuning treats an absent or zero timeout/keep-alive as "use default",
// while an explicit zero retry count or delay is honoured.
func buildTuning(req Request) (Tuning, error) {
	t := DefaultTuning()
	t.ForceIPv4 = req.ForceIPv4
	t.Compress = req.Compress
	t.Debug = req.DebugLogging

	if req.ConnectionTimeout != nil {
		v := int(*req.ConnectionTimeout)
		if v < 0 {
			return Tuning{}, invalidField("connectionTimeout", "must not be negative")
		}
		if v > 0 {
			t.ConnectTimeout = millis(v)
		}
	}
	if req.KeepAliveInterval != nil {
		v := int(*req.KeepAliveInterval)
		if v < 0 {
			return Tuning{}, invalidField("keepAliveInterval", "must not be negative")
		}
		if v > 0 {
			t.KeepAliveInterval = millis(v)
		}
	}
	if req.MaxRetries != nil {
		v := int(*req.MaxRetries)
		if v < 0 {
			return Tuning{}, invalidField("maxRetries", "must not be negative")
		}
		t.MaxRetries = v
	}
	if req.RetryDelay != nil {
		v := int(*req.RetryDelay)
		if v < 0 {
			return Tuning{}, invalidField("retryDelay", "must not be negative")
		}
		t.RetryDelay = millis(v)
	}
	return t, nil
}

func buildAuth(password, privateKey, passphrase string) Auth {
	if strings.TrimSpace(privateKey) != "" {
		return KeyAuth{PrivateKey: privateKey, Passphrase: passphrase}
	}
	return PasswordAuth{Password: password}
}

func buildHops(reqs HopList) ([]Hop, error) {
	if len(reqs) == 0 {
		return nil, nil
	}
	hops := make([]Hop, 0, len(reqs))
	for i, r := range reqs {
		field := fmt.Sprintf("hop[%d]", i)
		host := strings.TrimSpace(r.Host)
		username := strings.TrimSpace(r.Username)
		if host == "" {
			return nil, invalidField(field+".host", "is required")
		}
		if username == "" {
			return nil, invalidField(field+".username", "is required")
		}
		port := int(r.Port)
		if port == 0 {
			port = DefaultSFTPPort
		}
		if port < 1 || port > 65535 {
			return nil, invalidField(field+".port", "must be in range 1..65535")
		}
		hops = append(hops, Hop{
			Host:     host,
			Port:     port,
			Username: username,
			Auth:     buildAuth(r.Password, r.PrivateKey, r.Passphrase),
		})
	}
	return hops, nil
}

func millis(v int) time.Duration {
	return time.Duration(v) * time.Millisecond
}
