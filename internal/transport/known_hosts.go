package transport

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// hostKeyCallback verifies against path when set. With no path every host
// key is accepted, which is what the wizard has always done.
func hostKeyCallback(path string) (ssh.HostKeyCallback, error) {
	khPath := strings.TrimSpace(path)
	if khPath == "" {
		return ssh.InsecureIgnoreHostKey(), nil
	}
	khPath = filepath.Clean(khPath)
	if !filepath.IsAbs(khPath) {
		abs, err := filepath.Abs(khPath)
		if err != nil {
			return nil, fmt.Errorf("%w: resolve known_hosts path: %w", ErrHostKey, err)
		}
		khPath = filepath.Clean(abs)
	}

	cb, err := knownhosts.New(khPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: known_hosts file not found (populate it with ssh-keyscan)", ErrHostKey)
		}
		return nil, fmt.Errorf("%w: load known_hosts: %v", ErrHostKey, redactPathError(err))
	}
	return cb, nil
}

func redactPathError(err error) error {
	var pathErr *os.PathError
	if errors.As(err, &pathErr) {
		return fmt.Errorf("%s: %w", pathErr.Op, pathErr.Err)
	}
	return err
}
