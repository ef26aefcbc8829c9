package descriptor

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Request is the raw connection-test payload as sent by the wizard.
type Request struct {
	Host              string  `json:"host" yaml:"host"`
	Port              Number  `json:"port" yaml:"port"`
	Username          string  `json:"username" yaml:"username"`
	Password          string  `json:"password,omitempty" yaml:"password,omitempty"`
	PrivateKey        string  `json:"privateKey,omitempty" yaml:"privateKey,omitempty"`
	Passphrase        string  `json:"passphrase,omitempty" yaml:"passphrase,omitempty"`
	RemotePath        string  `json:"remotePath,omitempty" yaml:"remotePath,omitempty"`
	Protocol          string  `json:"protocol,omitempty" yaml:"protocol,omitempty"`
	Secure            bool    `json:"secure,omitempty" yaml:"secure,omitempty"`
	ConnectionTimeout *Number `json:"connectionTimeout,omitempty" yaml:"connectionTimeout,omitempty"`
	KeepAliveInterval *Number `json:"keepAliveInterval,omitempty" yaml:"keepAliveInterval,omitempty"`
	MaxRetries        *Number `json:"maxRetries,omitempty" yaml:"maxRetries,omitempty"`
	RetryDelay        *Number `json:"retryDelay,omitempty" yaml:"retryDelay,omitempty"`
	DebugLogging      bool    `json:"debugLogging,omitempty" yaml:"debugLogging,omitempty"`
	ForceIPv4         bool    `json:"forceIPv4,omitempty" yaml:"forceIPv4,omitempty"`
	Compress          bool    `json:"compress,omitempty" yaml:"compress,omitempty"`
	Hop               HopList `json:"hop,omitempty" yaml:"hop,omitempty"`
}

type HopRequest struct {
	Host       string `json:"host" yaml:"host"`
	Port       Number `json:"port,omitempty" yaml:"port,omitempty"`
	Username   string `json:"username" yaml:"username"`
	Password   string `json:"password,omitempty" yaml:"password,omitempty"`
	PrivateKey string `json:"privateKey,omitempty" yaml:"privateKey,omitempty"`
	Passphrase string `json:"passphrase,omitempty" yaml:"passphrase,omitempty"`
}

// Number decodes from a JSON/YAML number or a numeric string. Form inputs
// frequently post "22" instead of 22.
type Number int

func IntPtr(v int) *Number {
	n := Number(v)
	return &n
}

func (n *Number) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	raw := string(data)
	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		raw = s
	}
	v, err := parseNumber(raw)
	if err != nil {
		return err
	}
	*n = Number(v)
	return nil
}

func (n *Number) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: expected a number", value.Line)
	}
	if value.Tag == "!!null" {
		return nil
	}
	v, err := parseNumber(value.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*n = Number(v)
	return nil
}

func parseNumber(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	if v, err := strconv.Atoi(raw); err == nil {
		return v, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) || f != math.Trunc(f) {
		return 0, fmt.Errorf("invalid integer %q", raw)
	}
	if f > math.MaxInt32 || f < math.MinInt32 {
		return 0, fmt.Errorf("integer %q out of range", raw)
	}
	return int(f), nil
}

// HopList accepts either a single hop object or an array of hops.
type HopList []HopRequest

func (l *HopList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		return nil
	case bytes.HasPrefix(data, []byte("[")):
		var hops []HopRequest
		if err := json.Unmarshal(data, &hops); err != nil {
			return err
		}
		*l = hops
	default:
		var hop HopRequest
		if err := json.Unmarshal(data, &hop); err != nil {
			return err
		}
		*l = HopList{hop}
	}
	return nil
}

func (l *HopList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.SequenceNode:
		var hops []HopRequest
		if err := value.Decode(&hops); err != nil {
			return err
		}
		*l = hops
	case yaml.MappingNode:
		var hop HopRequest
		if err := value.Decode(&hop); err != nil {
			return err
		}
		*l = HopList{hop}
	case yaml.ScalarNode:
		if value.Tag == "!!null" {
			return nil
		}
		return fmt.Errorf("line %d: hop must be a mapping or a sequence", value.Line)
	default:
		return fmt.Errorf("line %d: hop must be a mapping or a sequence", value.Line)
	}
	return nil
}
