package descriptor

import (
	"fmt"
	"log/slog"
	"strings"
)

const masked = "***"

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	return masked
}

func (a PasswordAuth) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("method", a.Method()),
		slog.String("password", mask(a.Password)),
	)
}

func (a PasswordAuth) String() string {
	return fmt.Sprintf("password(%s)", mask(a.Password))
}

func (a PasswordAuth) GoString() string { return a.String() }

func (a KeyAuth) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("method", a.Method()),
		slog.String("privateKey", mask(a.PrivateKey)),
		slog.String("passphrase", mask(a.Passphrase)),
	)
}

func (a KeyAuth) String() string {
	return fmt.Sprintf("privateKey(%s)", mask(a.PrivateKey))
}

func (a KeyAuth) GoString() string { return a.String() }

func (h Hop) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("address", h.Address()),
		slog.String("username", h.Username),
		slog.Attr{Key: "auth", Value: authValue(h.Auth)},
	)
}

func (h Hop) String() string {
	return fmt.Sprintf("%s@%s", h.Username, h.Address())
}

func (d Descriptor) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.String("protocol", string(d.Protocol)),
		slog.String("address", d.Address()),
		slog.String("username", d.Username),
		{Key: "auth", Value: authValue(d.Auth)},
		slog.String("remotePath", d.RemotePath),
		slog.Duration("connectTimeout", d.Tuning.ConnectTimeout),
		slog.Duration("keepAliveInterval", d.Tuning.KeepAliveInterval),
		slog.Int("maxRetries", d.Tuning.MaxRetries),
		slog.Duration("retryDelay", d.Tuning.RetryDelay),
		slog.Bool("forceIPv4", d.Tuning.ForceIPv4),
		slog.Bool("compress", d.Tuning.Compress),
	}
	if d.Protocol == ProtocolFTP {
		attrs = append(attrs, slog.Bool("secure", d.Secure))
	}
	if len(d.Hops) > 0 {
		hops := make([]string, 0, len(d.Hops))
		for _, h := range d.Hops {
			hops = append(hops, h.String())
		}
		attrs = append(attrs, slog.String("hops", strings.Join(hops, ",")))
	}
	return slog.GroupValue(attrs...)
}

func (d Descriptor) String() string {
	method := ""
	if d.Auth != nil {
		method = d.Auth.Method()
	}
	s := fmt.Sprintf("%s://%s@%s%s (auth=%s)", d.Protocol, d.Username, d.Address(), d.RemotePath, method)
	if len(d.Hops) > 0 {
		s += fmt.Sprintf(" via %d hop(s)", len(d.Hops))
	}
	return s
}

func (d Descriptor) GoString() string { return d.String() }

// LogValue masks every credential carried by the raw request.
func (r Request) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("host", r.Host),
		slog.Int("port", int(r.Port)),
		slog.String("username", r.Username),
		slog.String("password", mask(r.Password)),
		slog.String("privateKey", mask(r.PrivateKey)),
		slog.String("passphrase", mask(r.Passphrase)),
		slog.String("protocol", r.Protocol),
		slog.String("remotePath", r.RemotePath),
		slog.Int("hops", len(r.Hop)),
	)
}

func (r Request) String() string {
	return fmt.Sprintf("%s@%s:%d", r.Username, r.Host, int(r.Port))
}

func (r Request) GoString() string { return r.String() }

func (h HopRequest) String() string {
	return fmt.Sprintf("%s@%s:%d", h.Username, h.Host, int(h.Port))
}

func (h HopRequest) GoString() string { return h.String() }

func authValue(a Auth) slog.Value {
	switch v := a.(type) {
	case PasswordAuth:
		return v.LogValue()
	case KeyAuth:
		return v.LogValue()
	default:
		return slog.StringValue("none")
	}
}
