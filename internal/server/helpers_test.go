package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benedict2310/sftpwizard/internal/descriptor"
	"github.com/benedict2310/sftpwizard/internal/transport"
)

type stubProber struct {
	calls   atomic.Int32
	mu      sync.Mutex
	outcome transport.Outcome
	block   chan struct{}
}

func (p *stubProber) Probe(ctx context.Context, _ descriptor.Descriptor) transport.Outcome {
	p.calls.Add(1)
	if p.block != nil {
		select {
		case <-p.block:
		case <-ctx.Done():
			return transport.Failure(transport.KindNetwork, ctx.Err().Error())
		}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.outcome.Kind == "" {
		return transport.Success()
	}
	return p.outcome
}

func testConfig(t *testing.T) Config {
	t.Helper()
	return Config{
		BindAddr: "127.0.0.1",
		Port:     0,
		DataDir:  t.TempDir(),
		LogLevel: "info",
		DBWAL:    true,
		History:  HistoryConfig{Enabled: true},
	}
}

func startTestServer(t *testing.T, cfg Config, prober *stubProber) *Server {
	t.Helper()
	srv, err := New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), "v-test", WithProber(prober))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := srv.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})
	return srv
}

func postJSON(t *testing.T, url string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	switch v := body.(type) {
	case string:
		buf.WriteString(v)
	default:
		if err := json.NewEncoder(&buf).Encode(v); err != nil {
			t.Fatalf("encode request body: %v", err)
		}
	}
	resp, err := http.Post(url, "application/json", &buf)
	if err != nil {
		t.Fatalf("POST %s error = %v", url, err)
	}
	defer resp.Body.Close()
	payload := map[string]any{}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode response from %s: %v", url, err)
	}
	return resp, payload
}

func getJSON(t *testing.T, url string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s error = %v", url, err)
	}
	defer resp.Body.Close()
	payload := map[string]any{}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode response from %s: %v", url, err)
	}
	return resp, payload
}

func waitHistoryIdle(t *testing.T, srv *Server) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := srv.historyQueue.WaitIdle(ctx); err != nil {
		t.Fatalf("WaitIdle() error = %v", err)
	}
}
