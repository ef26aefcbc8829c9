package sftpconfig

import (
	"fmt"
	"slices"
	"strings"
)

// Steps is the number of wizard steps that carry validation.
const Steps = 3

// FieldErrors maps a form field name to a human readable problem.
type FieldErrors map[string]string

func (e FieldErrors) Error() string {
	keys := make([]string, 0, len(e))
	for k := range e {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e[k]))
	}
	return "invalid form: " + strings.Join(parts, "; ")
}

// ValidateStep checks the fields owned by one wizard step: 1 connection
// details, 2 authentication, 3 configuration. Unknown steps have no fields.
func ValidateStep(step int, f Form) FieldErrors {
	errs := FieldErrors{}
	switch step {
	case 1:
		if strings.TrimSpace(f.Name) == "" {
			errs["name"] = "Name is required"
		}
		if strings.TrimSpace(f.Host) == "" {
			errs["host"] = "Host is required"
		}
		if f.Port < 1 || f.Port > 65535 {
			errs["port"] = "Port must be between 1 and 65535"
		}
		if p := strings.ToLower(strings.TrimSpace(f.Protocol)); p != "" && p != "sftp" && p != "ftp" {
			errs["protocol"] = "Protocol must be sftp or ftp"
		}
	case 2:
		if strings.TrimSpace(f.Username) == "" {
			errs["username"] = "Username is required"
		}
		switch authTypeOf(f) {
		case AuthPassword:
			if strings.TrimSpace(f.Password) == "" {
				errs["password"] = "Password is required"
			}
		case AuthPrivateKey:
			if strings.TrimSpace(f.PrivateKeyPath) == "" {
				errs["privateKeyPath"] = "Private key is required"
			}
		default:
			errs["authType"] = "Auth type must be password or privateKey"
		}
	case 3:
		if strings.TrimSpace(f.RemotePath) == "" {
			errs["remotePath"] = "Remote path is required"
		}
		for name, v := range map[string]*int{
			"connectionTimeout": numberPtr(f.ConnectionTimeout),
			"keepAliveInterval": numberPtr(f.KeepAliveInterval),
			"maxRetries":        numberPtr(f.MaxRetries),
			"retryDelay":        numberPtr(f.RetryDelay),
		} {
			if v != nil && *v < 0 {
				errs[name] = "Must not be negative"
			}
		}
		for i, h := range f.Hop {
			if strings.TrimSpace(h.Host) == "" {
				errs[fmt.Sprintf("hop[%d].host", i)] = "Host is required"
			}
			if strings.TrimSpace(h.Username) == "" {
				errs[fmt.Sprintf("hop[%d].username", i)] = "Username is required"
			}
			if h.Port < 0 || h.Port > 65535 {
				errs[fmt.Sprintf("hop[%d].port", i)] = "Port must be between 1 and 65535"
			}
		}
	}
	return errs
}

// Validate runs every step and merges the results. It returns nil when the
// form is complete.
func Validate(f Form) error {
	all := FieldErrors{}
	for step := 1; step <= Steps; step++ {
		for k, v := range ValidateStep(step, f) {
			all[k] = v
		}
	}
	if len(all) == 0 {
		return nil
	}
	return all
}

func authTypeOf(f Form) string {
	switch strings.TrimSpace(f.AuthType) {
	case "":
		return AuthPassword
	case AuthPassword:
		return AuthPassword
	case AuthPrivateKey:
		return AuthPrivateKey
	default:
		return f.AuthType
	}
}
