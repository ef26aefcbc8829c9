package transport

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/ssh"

	"github.com/benedict2310/sftpwizard/internal/descriptor"
)

// authMethods converts a descriptor credential into ssh auth methods.
// Password auth also answers keyboard-interactive prompts, since many
// servers only offer that method for passwords.
func authMethods(auth descriptor.Auth) ([]ssh.AuthMethod, error) {
	switch a := auth.(type) {
	case descriptor.PasswordAuth:
		return []ssh.AuthMethod{
			ssh.Password(a.Password),
			ssh.KeyboardInteractive(answerAll(a.Password)),
		}, nil
	case descriptor.KeyAuth:
		signer, err := parsePrivateKey(a.PrivateKey, a.Passphrase)
		if err != nil {
			return nil, err
		}
		return []ssh.AuthMethod{ssh.PublicKeys(signer)}, nil
	default:
		return nil, fmt.Errorf("%w: no credential supplied", ErrAuth)
	}
}

func answerAll(password string) ssh.KeyboardInteractiveChallenge {
	return func(_, _ string, questions []string, _ []bool) ([]string, error) {
		answers := make([]string, len(questions))
		for i := range answers {
			answers[i] = password
		}
		return answers, nil
	}
}

// parsePrivateKey never includes key bytes in returned errors.
func parsePrivateKey(material, passphrase string) (ssh.Signer, error) {
	raw := []byte(strings.TrimSpace(material) + "\n")
	if passphrase != "" {
		signer, err := ssh.ParsePrivateKeyWithPassphrase(raw, []byte(passphrase))
		if err == nil {
			return signer, nil
		}
		// A passphrase sent alongside an unencrypted key is ignored.
		if plain, plainErr := ssh.ParsePrivateKey(raw); plainErr == nil {
			return plain, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrPrivateKey, err)
	}

	signer, err := ssh.ParsePrivateKey(raw)
	if err != nil {
		var missing *ssh.PassphraseMissingError
		if errors.As(err, &missing) {
			return nil, fmt.Errorf("%w: key is encrypted and no passphrase was given", ErrPrivateKey)
		}
		return nil, fmt.Errorf("%w: %v", ErrPrivateKey, err)
	}
	return signer, nil
}
