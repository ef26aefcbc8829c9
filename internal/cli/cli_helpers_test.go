package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/benedict2310/sftpwizard/internal/conntest"
	"github.com/benedict2310/sftpwizard/internal/descriptor"
	"github.com/benedict2310/sftpwizard/internal/transport"
)

type recordingProber struct {
	mu      sync.Mutex
	seen    []descriptor.Descriptor
	outcome func(descriptor.Descriptor) transport.Outcome
}

func (p *recordingProber) Probe(_ context.Context, d descriptor.Descriptor) transport.Outcome {
	p.mu.Lock()
	p.seen = append(p.seen, d)
	p.mu.Unlock()
	if p.outcome != nil {
		return p.outcome(d)
	}
	return transport.Success()
}

func (p *recordingProber) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.seen)
}

func (p *recordingProber) hosts() map[string]descriptor.Descriptor {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]descriptor.Descriptor, len(p.seen))
	for _, d := range p.seen {
		out[d.Host] = d
	}
	return out
}

// useProber swaps the network prober for the duration of the test.
func useProber(t *testing.T, p *recordingProber) {
	t.Helper()
	prev := newProber
	newProber = func(transport.Config) (conntest.Prober, error) { return p, nil }
	t.Cleanup(func() { newProber = prev })
}

func executeCLI(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := NewRootCmd("test")
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}
