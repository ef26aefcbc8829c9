package sftpconfig

import (
	"fmt"

	"github.com/benedict2310/sftpwizard/internal/descriptor"
)

// KeyReader loads private key content from a path in the config document.
type KeyReader func(path string) ([]byte, error)

// Request converts a generated document into a connection test request so
// an existing sftp.json can be checked before use. Key paths are resolved
// through readKey.
func (doc Document) Request(readKey KeyReader) (descriptor.Request, error) {
	req := descriptor.Request{
		Host:         doc.Host,
		Port:         descriptor.Number(doc.Port),
		Username:     doc.Username,
		Password:     doc.Password,
		Passphrase:   doc.Passphrase,
		RemotePath:   doc.RemotePath,
		Protocol:     doc.Protocol,
		DebugLogging: doc.DebugLogging,
		ForceIPv4:    doc.ForceIPv4,
		Compress:     doc.Compress,

		ConnectionTimeout: intNumber(doc.ConnectionTimeout),
		KeepAliveInterval: intNumber(doc.KeepAliveInterval),
		MaxRetries:        intNumber(doc.MaxRetries),
		RetryDelay:        intNumber(doc.RetryDelay),
	}
	if doc.Secure != nil {
		req.Secure = *doc.Secure
	}
	if doc.PrivateKeyPath != "" {
		key, err := readPrivateKey(readKey, doc.PrivateKeyPath)
		if err != nil {
			return descriptor.Request{}, err
		}
		req.PrivateKey = key
	}
	for i, h := range doc.Hop {
		hr := descriptor.HopRequest{
			Host:     h.Host,
			Port:     descriptor.Number(h.Port),
			Username: h.Username,
			Password: h.Password,
		}
		if h.PrivateKeyPath != "" {
			key, err := readPrivateKey(readKey, h.PrivateKeyPath)
			if err != nil {
				return descriptor.Request{}, fmt.Errorf("hop[%d]: %w", i, err)
			}
			hr.PrivateKey = key
		}
		req.Hop = append(req.Hop, hr)
	}
	return req, nil
}

func readPrivateKey(readKey KeyReader, path string) (string, error) {
	if readKey == nil {
		return "", fmt.Errorf("private key %s: no key reader configured", path)
	}
	b, err := readKey(path)
	if err != nil {
		return "", fmt.Errorf("read private key %s: %w", path, err)
	}
	return string(b), nil
}

func intNumber(v *int) *descriptor.Number {
	if v == nil {
		return nil
	}
	return descriptor.IntPtr(*v)
}
