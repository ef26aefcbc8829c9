package sftpconfig

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/benedict2310/sftpwizard/internal/descriptor"
)

const DefaultFilename = "sftp.json"

// Document is the generated sftp.json. Field order is the emitted key
// order; omitted fields did not apply to the chosen protocol or auth type,
// or matched their defaults.
type Document struct {
	Name           string `json:"name"`
	Host           string `json:"host"`
	Protocol       string `json:"protocol"`
	Port           int    `json:"port"`
	Secure         *bool  `json:"secure,omitempty"`
	Username       string `json:"username"`
	AuthType       string `json:"authType"`
	Password       string `json:"password,omitempty"`
	PrivateKeyPath string `json:"privateKeyPath,omitempty"`
	Passphrase     string `json:"passphrase,omitempty"`
	RemotePath     string `json:"remotePath"`
	UploadOnSave   bool   `json:"uploadOnSave"`
	UseTempFile    bool   `json:"useTempFile"`
	OpenSSH        *bool  `json:"openSsh,omitempty"`

	Ignore  []string `json:"ignore,omitempty"`
	Watcher *Watcher `json:"watcher,omitempty"`
	Context string   `json:"context,omitempty"`

	ConnectionTimeout *int `json:"connectionTimeout,omitempty"`
	KeepAliveInterval *int `json:"keepAliveInterval,omitempty"`
	MaxRetries        *int `json:"maxRetries,omitempty"`
	RetryDelay        *int `json:"retryDelay,omitempty"`
	DebugLogging      bool `json:"debugLogging,omitempty"`
	ForceIPv4         bool `json:"forceIPv4,omitempty"`
	Compress          bool `json:"compress,omitempty"`

	Hop Hops `json:"hop,omitempty"`
}

// Generate normalizes f, validates it and builds the config document. A
// validation failure is returned as FieldErrors.
func Generate(f Form) (Document, error) {
	f = normalize(f)
	if err := Validate(f); err != nil {
		return Document{}, err
	}

	doc := Document{
		Name:         f.Name,
		Host:         f.Host,
		Protocol:     f.Protocol,
		Port:         int(f.Port),
		Username:     f.Username,
		AuthType:     f.AuthType,
		RemotePath:   f.RemotePath,
		UploadOnSave: f.UploadOnSave,
		UseTempFile:  f.UseTempFile,
		Context:      f.Context,
		DebugLogging: f.DebugLogging,
		ForceIPv4:    f.ForceIPv4,
		Compress:     f.Compress,

		ConnectionTimeout: nonDefault(f.ConnectionTimeout, descriptor.DefaultConnectTimeout),
		KeepAliveInterval: nonDefault(f.KeepAliveInterval, descriptor.DefaultKeepAliveInterval),
		MaxRetries:        nonDefaultCount(f.MaxRetries, descriptor.DefaultMaxRetries),
		RetryDelay:        nonDefault(f.RetryDelay, descriptor.DefaultRetryDelay),
	}

	switch f.AuthType {
	case AuthPrivateKey:
		doc.PrivateKeyPath = f.PrivateKeyPath
		doc.Passphrase = f.Passphrase
	default:
		doc.Password = f.Password
	}

	if f.Protocol == "ftp" {
		doc.Secure = &f.Secure
	} else {
		doc.OpenSSH = &f.OpenSSH
		doc.Hop = f.Hop
	}

	if len(f.Ignore) > 0 {
		doc.Ignore = f.Ignore
	}
	if f.Watcher != nil && f.Watcher.Files != "" {
		w := *f.Watcher
		doc.Watcher = &w
	}
	return doc, nil
}

// Marshal renders doc as indented JSON with a trailing newline.
func Marshal(doc Document) ([]byte, error) {
	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return append(b, '\n'), nil
}

var (
	whitespaceRun = regexp.MustCompile(`\s+`)
	pathSeparator = regexp.MustCompile(`[/\\]`)
)

// Filename derives the download name from the config name.
func Filename(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return DefaultFilename
	}
	name = whitespaceRun.ReplaceAllString(name, "_")
	name = pathSeparator.ReplaceAllString(name, "_")
	return name + ".json"
}

func normalize(f Form) Form {
	f.Name = strings.TrimSpace(f.Name)
	f.Host = strings.TrimSpace(f.Host)
	f.Username = strings.TrimSpace(f.Username)
	f.PrivateKeyPath = strings.TrimSpace(f.PrivateKeyPath)
	f.RemotePath = strings.TrimSpace(f.RemotePath)
	f.Context = strings.TrimSpace(f.Context)

	f.Protocol = strings.ToLower(strings.TrimSpace(f.Protocol))
	if f.Protocol == "" {
		f.Protocol = "sftp"
	}
	if f.Port == 0 {
		f.Port = descriptor.DefaultSFTPPort
		if f.Protocol == "ftp" {
			f.Port = descriptor.DefaultFTPPort
		}
	}
	if strings.TrimSpace(f.AuthType) == "" {
		f.AuthType = AuthPassword
		if f.Password == "" && f.PrivateKeyPath != "" {
			f.AuthType = AuthPrivateKey
		}
	}
	if f.RemotePath == "" {
		f.RemotePath = descriptor.DefaultRemotePath
	}

	ignore := make([]string, 0, len(f.Ignore))
	for _, pattern := range f.Ignore {
		if p := strings.TrimSpace(pattern); p != "" {
			ignore = append(ignore, p)
		}
	}
	f.Ignore = ignore

	if len(f.Hop) > 0 {
		hops := make(Hops, len(f.Hop))
		for i, h := range f.Hop {
			h.Host = strings.TrimSpace(h.Host)
			h.Username = strings.TrimSpace(h.Username)
			h.PrivateKeyPath = strings.TrimSpace(h.PrivateKeyPath)
			hops[i] = h
		}
		f.Hop = hops
	}
	return f
}

func numberPtr(n *descriptor.Number) *int {
	if n == nil {
		return nil
	}
	v := int(*n)
	return &v
}

func nonDefault(n *descriptor.Number, def time.Duration) *int {
	v := numberPtr(n)
	if v == nil || time.Duration(*v)*time.Millisecond == def {
		return nil
	}
	return v
}

func nonDefaultCount(n *descriptor.Number, def int) *int {
	v := numberPtr(n)
	if v == nil || *v == def {
		return nil
	}
	return v
}
