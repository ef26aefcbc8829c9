// Package sftpconfig turns wizard form state into an sftp.json document for
// editor SFTP extensions.
package sftpconfig

import (
	"bytes"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/benedict2310/sftpwizard/internal/descriptor"
)

const (
	AuthPassword   = "password"
	AuthPrivateKey = "privateKey"
)

// Form mirrors the wizard's form model. Port and tuning fields accept
// numbers or numeric strings.
type Form struct {
	// ShowAdvancedOptions is UI state. It is accepted and never emitted.
	ShowAdvancedOptions bool `json:"showAdvancedOptions,omitempty" yaml:"showAdvancedOptions,omitempty"`

	Name     string            `json:"name" yaml:"name"`
	Host     string            `json:"host" yaml:"host"`
	Port     descriptor.Number `json:"port" yaml:"port"`
	Protocol string            `json:"protocol,omitempty" yaml:"protocol,omitempty"`
	Secure   bool              `json:"secure,omitempty" yaml:"secure,omitempty"`

	Username       string `json:"username" yaml:"username"`
	Password       string `json:"password,omitempty" yaml:"password,omitempty"`
	PrivateKeyPath string `json:"privateKeyPath,omitempty" yaml:"privateKeyPath,omitempty"`
	Passphrase     string `json:"passphrase,omitempty" yaml:"passphrase,omitempty"`
	AuthType       string `json:"authType,omitempty" yaml:"authType,omitempty"`

	RemotePath   string   `json:"remotePath" yaml:"remotePath"`
	UploadOnSave bool     `json:"uploadOnSave,omitempty" yaml:"uploadOnSave,omitempty"`
	Ignore       []string `json:"ignore,omitempty" yaml:"ignore,omitempty"`
	Watcher      *Watcher `json:"watcher,omitempty" yaml:"watcher,omitempty"`

	Context           string             `json:"context,omitempty" yaml:"context,omitempty"`
	UseTempFile       bool               `json:"useTempFile,omitempty" yaml:"useTempFile,omitempty"`
	OpenSSH           bool               `json:"openSsh,omitempty" yaml:"openSsh,omitempty"`
	ConnectionTimeout *descriptor.Number `json:"connectionTimeout,omitempty" yaml:"connectionTimeout,omitempty"`
	KeepAliveInterval *descriptor.Number `json:"keepAliveInterval,omitempty" yaml:"keepAliveInterval,omitempty"`
	MaxRetries        *descriptor.Number `json:"maxRetries,omitempty" yaml:"maxRetries,omitempty"`
	RetryDelay        *descriptor.Number `json:"retryDelay,omitempty" yaml:"retryDelay,omitempty"`
	DebugLogging      bool               `json:"debugLogging,omitempty" yaml:"debugLogging,omitempty"`
	ForceIPv4         bool               `json:"forceIPv4,omitempty" yaml:"forceIPv4,omitempty"`
	Compress          bool               `json:"compress,omitempty" yaml:"compress,omitempty"`

	Hop Hops `json:"hop,omitempty" yaml:"hop,omitempty"`
}

type Watcher struct {
	Files      string `json:"files" yaml:"files"`
	AutoUpload bool   `json:"autoUpload" yaml:"autoUpload"`
	AutoDelete bool   `json:"autoDelete" yaml:"autoDelete"`
}

type Hop struct {
	Host           string `json:"host" yaml:"host"`
	Port           int    `json:"port,omitempty" yaml:"port,omitempty"`
	Username       string `json:"username" yaml:"username"`
	PrivateKeyPath string `json:"privateKeyPath,omitempty" yaml:"privateKeyPath,omitempty"`
	Password       string `json:"password,omitempty" yaml:"password,omitempty"`
}

// Hops decodes from a single hop object or an array of hops. It encodes
// back to a single object when it holds exactly one hop.
type Hops []Hop

func (h *Hops) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	switch {
	case len(trimmed) == 0, bytes.Equal(trimmed, []byte("null")):
		*h = nil
		return nil
	case trimmed[0] == '[':
		var list []Hop
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return fmt.Errorf("decode hop list: %w", err)
		}
		*h = list
		return nil
	default:
		var one Hop
		if err := json.Unmarshal(trimmed, &one); err != nil {
			return fmt.Errorf("decode hop: %w", err)
		}
		*h = Hops{one}
		return nil
	}
}

func (h *Hops) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.SequenceNode {
		var list []Hop
		if err := value.Decode(&list); err != nil {
			return fmt.Errorf("decode hop list: %w", err)
		}
		*h = list
		return nil
	}
	var one Hop
	if err := value.Decode(&one); err != nil {
		return fmt.Errorf("decode hop: %w", err)
	}
	*h = Hops{one}
	return nil
}

func (h Hops) MarshalJSON() ([]byte, error) {
	if len(h) == 1 {
		return json.Marshal(h[0])
	}
	return json.Marshal([]Hop(h))
}
