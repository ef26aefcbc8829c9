// Package server implements sftpwizardd, the HTTP backend of the SFTP
// configuration wizard.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"golang.org/x/net/netutil"
	"golang.org/x/sync/semaphore"

	"github.com/benedict2310/sftpwizard/internal/conntest"
	dbpkg "github.com/benedict2310/sftpwizard/internal/db"
	"github.com/benedict2310/sftpwizard/internal/history"
	"github.com/benedict2310/sftpwizard/internal/transport"
)

const (
	shutdownTimeout = 10 * time.Second

	historyQueueSize               = 512
	historyRetentionCleanupPeriod  = time.Hour
	historyRetentionCleanupTimeout = 30 * time.Second
)

type Server struct {
	cfg        Config
	logger     *slog.Logger
	version    string
	dataPaths  DataPaths
	db         *sql.DB
	listener   net.Listener
	httpServer *http.Server
	errCh      chan error

	prober    conntest.Prober
	service   *conntest.Service
	testSlots *semaphore.Weighted
	limiter   *clientLimiter

	historyStore  *history.SQLiteRecorder
	historyQueue  *history.AsyncRecorder
	retentionStop chan struct{}
	retentionDone chan struct{}
}

// Option customizes a Server built by New.
type Option func(*Server)

// WithProber replaces the network prober, typically with a stub in tests.
func WithProber(p conntest.Prober) Option {
	return func(s *Server) { s.prober = p }
}

func New(cfg Config, logger *slog.Logger, version string, opts ...Option) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	if version == "" {
		version = "dev"
	}

	srv := &Server{
		cfg:       cfg,
		logger:    logger,
		version:   version,
		errCh:     make(chan error, 1),
		testSlots: semaphore.NewWeighted(cfg.maxConcurrentTests()),
		limiter:   newClientLimiter(cfg.RateLimit),
	}
	for _, opt := range opts {
		opt(srv)
	}
	if srv.prober == nil {
		prober, err := transport.New(transport.Config{
			KnownHostsPath: cfg.KnownHostsPath,
			Proxy:          cfg.Proxy,
			Logger:         logger,
		})
		if err != nil {
			return nil, fmt.Errorf("initialize prober: %w", err)
		}
		srv.prober = prober
	}

	mux := http.NewServeMux()
	registerHealthRoutes(mux, srv)
	registerAPIRoutes(mux, srv)
	srv.httpServer = &http.Server{
		Addr:              cfg.ListenAddr(),
		Handler:           corsMiddleware(mux),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// A test may run several attempts with retry delays in between.
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}
	return srv, nil
}

func (s *Server) Start() error {
	paths, err := InitDataDir(s.cfg.DataDir)
	if err != nil {
		return err
	}
	s.dataPaths = paths

	var recorder history.Recorder = history.Nop{}
	if s.cfg.History.Enabled {
		if err := s.openHistory(); err != nil {
			return err
		}
		recorder = s.historyQueue
	}

	retryPolicy, err := conntest.ParseRetryPolicy(s.cfg.RetryPolicy)
	if err != nil {
		s.closeHistory(context.Background())
		return err
	}
	s.service, err = conntest.New(conntest.Options{
		Prober:          s.prober,
		Logger:          s.logger,
		Recorder:        recorder,
		RetryPolicy:     retryPolicy,
		Source:          history.SourceAPI,
		MaxRetriesLimit: s.cfg.maxRetriesLimit(),
		MaxDuration:     s.cfg.maxTestDuration(),
	})
	if err != nil {
		s.closeHistory(context.Background())
		return fmt.Errorf("initialize connection test service: %w", err)
	}

	ln, err := net.Listen("tcp", s.cfg.ListenAddr())
	if err != nil {
		s.closeHistory(context.Background())
		return fmt.Errorf("listen on %s: %w", s.cfg.ListenAddr(), err)
	}
	if s.cfg.MaxConnections > 0 {
		ln = netutil.LimitListener(ln, s.cfg.MaxConnections)
	}
	s.listener = ln

	if !isLoopbackHost(s.cfg.BindAddr) {
		s.logger.Warn("binding to non-loopback address", "bind", s.cfg.BindAddr)
		if s.cfg.APIToken == "" {
			s.logger.Warn("API token is not configured; connection tests are open to any client")
		}
	}

	s.logger.Info("sftpwizardd starting",
		"listen_addr", ln.Addr().String(),
		"data_dir", s.cfg.DataDir,
		"history", s.cfg.History.Enabled,
		"retry_policy", string(retryPolicy),
		"version", s.version,
	)
	s.startRetentionLoop()

	go func() {
		err := s.httpServer.Serve(ln)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.errCh <- err
		}
		close(s.errCh)
	}()

	return nil
}

func (s *Server) openHistory() error {
	dbPath := s.cfg.DBPath
	if dbPath == "" {
		dbPath = s.dataPaths.DBPath
	}
	sqlDB, err := dbpkg.Open(context.Background(), dbpkg.Options{Path: dbPath, WAL: s.cfg.DBWAL})
	if err != nil {
		return err
	}
	store, err := history.NewSQLiteRecorder(sqlDB)
	if err != nil {
		_ = sqlDB.Close()
		return fmt.Errorf("initialize history: %w", err)
	}
	s.db = sqlDB
	s.historyStore = store
	s.historyQueue = history.NewAsyncRecorder(store, historyQueueSize, func(e history.Entry, err error) {
		s.logger.Error("history write failed", "host", e.Host, "outcome", e.Outcome, "error", err)
	})
	return nil
}

func (s *Server) closeHistory(ctx context.Context) error {
	var errs []error
	if s.historyQueue != nil {
		if err := s.historyQueue.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close history queue: %w", err))
		}
		s.historyQueue = nil
	}
	s.historyStore = nil
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close sqlite db: %w", err))
		}
		s.db = nil
	}
	return errors.Join(errs...)
}

func (s *Server) Run(ctx context.Context) error {
	if err := s.Start(); err != nil {
		return err
	}
	return s.Wait(ctx)
}

// Wait blocks until the HTTP server fails or ctx is done, then shuts the
// server down. Start must have succeeded.
func (s *Server) Wait(ctx context.Context) error {
	select {
	case err := <-s.errCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	}
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.listener == nil && s.db == nil {
		return nil
	}

	s.logger.Info("sftpwizardd shutting down")
	if s.listener != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}

		if err, ok := <-s.errCh; ok && err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		s.listener = nil
	}
	if err := s.stopRetentionLoop(ctx); err != nil {
		return fmt.Errorf("stop history retention cleanup: %w", err)
	}
	return s.closeHistory(ctx)
}

func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *Server) startRetentionLoop() {
	days := s.cfg.History.RetentionDays
	if s.historyStore == nil || days <= 0 {
		return
	}
	stopCh := make(chan struct{})
	doneCh := make(chan struct{})
	s.retentionStop = stopCh
	s.retentionDone = doneCh
	store := s.historyStore

	go func() {
		defer close(doneCh)
		ticker := time.NewTicker(historyRetentionCleanupPeriod)
		defer ticker.Stop()

		s.runRetentionCleanup(store, days)
		for {
			select {
			case <-ticker.C:
				s.runRetentionCleanup(store, days)
			case <-stopCh:
				return
			}
		}
	}()
}

func (s *Server) runRetentionCleanup(store *history.SQLiteRecorder, days int) {
	ctx, cancel := context.WithTimeout(context.Background(), historyRetentionCleanupTimeout)
	defer cancel()

	cutoff := time.Now().Add(-time.Duration(days) * 24 * time.Hour)
	deleted, err := store.Prune(ctx, cutoff)
	if err != nil {
		s.logger.Warn("history retention cleanup failed", "retention_days", days, "error", err)
		return
	}
	if deleted > 0 {
		s.logger.Info("history retention cleanup complete", "retention_days", days, "deleted", deleted)
	}
}

func (s *Server) stopRetentionLoop(ctx context.Context) error {
	stopCh := s.retentionStop
	doneCh := s.retentionDone
	if stopCh == nil || doneCh == nil {
		return nil
	}
	s.retentionStop = nil
	s.retentionDone = nil

	close(stopCh)
	select {
	case <-doneCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func isLoopbackHost(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	return ip.IsLoopback()
}

func parseLogLevel(level string) (slog.Level, error) {
	switch level {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level %q (expected debug|info|warn|error)", level)
	}
}

func NewLogger(level string) (*slog.Logger, error) {
	return NewLoggerTo(os.Stderr, level)
}

// NewLoggerTo builds the daemon's JSON logger writing to w.
func NewLoggerTo(w io.Writer, level string) (*slog.Logger, error) {
	parsed, err := parseLogLevel(level)
	if err != nil {
		return nil, err
	}
	h := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: parsed})
	return slog.New(h), nil
}
