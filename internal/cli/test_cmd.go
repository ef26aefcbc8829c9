package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/benedict2310/sftpwizard/internal/conntest"
	dbpkg "github.com/benedict2310/sftpwizard/internal/db"
	"github.com/benedict2310/sftpwizard/internal/descriptor"
	"github.com/benedict2310/sftpwizard/internal/history"
	"github.com/benedict2310/sftpwizard/internal/output"
	"github.com/benedict2310/sftpwizard/internal/sftpconfig"
	"github.com/benedict2310/sftpwizard/internal/transport"
)

const defaultTestConcurrency = 4

var newProber = func(cfg transport.Config) (conntest.Prober, error) {
	p, err := transport.New(cfg)
	if err != nil {
		return nil, err
	}
	return p, nil
}

type testJob struct {
	source string
	req    descriptor.Request
}

type testOptions struct {
	host              string
	port              int
	username          string
	password          string
	privateKeyFile    string
	passphrase        string
	remotePath        string
	protocol          string
	secure            bool
	connectionTimeout int
	keepAliveInterval int
	maxRetries        int
	retryDelay        int
	forceIPv4         bool
	compress          bool
	debug             bool

	files       []string
	configs     []string
	concurrency int
	retryPolicy string
	knownHosts  string
	proxy       string
	historyDB   string
	outputMode  string
}

func newTestCmd() *cobra.Command {
	opts := testOptions{}

	cmd := &cobra.Command{
		Use:   "test",
		Short: "Test an SFTP or FTP connection",
		Long: `Connects, authenticates and lists the remote path, retrying failed attempts.

Connection details come from flags, from request files (--file, JSON or YAML)
or from generated sftp.json documents (--config). Several files are tested
concurrently.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := output.ParseFormat(opts.outputMode)
			if err != nil {
				return exitCodeError(ExitInvalidInput, err)
			}
			policy, err := conntest.ParseRetryPolicy(opts.retryPolicy)
			if err != nil {
				return exitCodeError(ExitInvalidInput, err)
			}
			jobs, err := collectTestJobs(cmd, opts)
			if err != nil {
				return exitCodeError(ExitInvalidInput, err)
			}
			cmd.SilenceUsage = true

			ctx, stop := signalNotifyContext(cmd.Context(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			reports, err := runTestJobs(ctx, cmd.ErrOrStderr(), opts, policy, jobs)
			if err != nil {
				return err
			}
			if err := output.NewPrinter(cmd.OutOrStdout(), format).ConnectionReports(reports); err != nil {
				return err
			}
			return reportsError(reports)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.host, "host", "", "Server hostname or IP address")
	f.IntVar(&opts.port, "port", 22, "Server port")
	f.StringVarP(&opts.username, "username", "u", "", "Login user")
	f.StringVar(&opts.password, "password", "", "Login password")
	f.StringVar(&opts.privateKeyFile, "private-key-file", "", "Path to a PEM private key")
	f.StringVar(&opts.passphrase, "passphrase", "", "Private key passphrase")
	f.StringVar(&opts.remotePath, "remote-path", "/", "Remote directory to list")
	f.StringVar(&opts.protocol, "protocol", "sftp", "Protocol (sftp or ftp)")
	f.BoolVar(&opts.secure, "secure", false, "Use explicit FTPS (ftp only)")
	f.IntVar(&opts.connectionTimeout, "connection-timeout", 0, "Handshake timeout in milliseconds")
	f.IntVar(&opts.keepAliveInterval, "keep-alive-interval", 0, "Keep-alive interval in milliseconds")
	f.IntVar(&opts.maxRetries, "max-retries", 0, "Retries after the first failed attempt")
	f.IntVar(&opts.retryDelay, "retry-delay", 0, "Delay between attempts in milliseconds")
	f.BoolVar(&opts.forceIPv4, "force-ipv4", false, "Resolve the host over IPv4 only")
	f.BoolVar(&opts.compress, "compress", false, "Request compression (accepted, has no effect)")
	f.BoolVar(&opts.debug, "debug", false, "Log every attempt to stderr")

	f.StringArrayVarP(&opts.files, "file", "f", nil, "Connection test request file (repeatable)")
	f.StringArrayVar(&opts.configs, "config", nil, "Generated sftp.json to test (repeatable)")
	f.IntVar(&opts.concurrency, "concurrency", defaultTestConcurrency, "Maximum tests run at once")
	f.StringVar(&opts.retryPolicy, "retry-policy", string(conntest.RetryAll), "Which failures are retried (all or transient)")
	f.StringVar(&opts.knownHosts, "known-hosts", "", "known_hosts file used to verify host keys")
	f.StringVar(&opts.proxy, "proxy", "", "socks5:// proxy for SSH connections")
	f.StringVar(&opts.historyDB, "history-db", "", "Record results in this SQLite history database")
	f.StringVarP(&opts.outputMode, "output", "o", "table", "Output format: table|json|yaml")

	return cmd
}

// collectTestJobs builds one job per request file and config document.
// Flags form a job of their own when no file was given or --host is set.
func collectTestJobs(cmd *cobra.Command, opts testOptions) ([]testJob, error) {
	var jobs []testJob
	if (len(opts.files) == 0 && len(opts.configs) == 0) || cmd.Flags().Changed("host") {
		req, err := requestFromFlags(cmd, opts)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, testJob{source: "flags", req: req})
	}
	for _, path := range opts.files {
		var req descriptor.Request
		if err := decodeFile(path, &req); err != nil {
			return nil, err
		}
		if opts.debug {
			req.DebugLogging = true
		}
		jobs = append(jobs, testJob{source: path, req: req})
	}
	for _, path := range opts.configs {
		var doc sftpconfig.Document
		if err := decodeFile(path, &doc); err != nil {
			return nil, err
		}
		req, err := doc.Request(readKeyFile)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		if opts.debug {
			req.DebugLogging = true
		}
		jobs = append(jobs, testJob{source: path, req: req})
	}
	return jobs, nil
}

func requestFromFlags(cmd *cobra.Command, opts testOptions) (descriptor.Request, error) {
	req := descriptor.Request{
		Host:         opts.host,
		Port:         descriptor.Number(opts.port),
		Username:     opts.username,
		Password:     opts.password,
		Passphrase:   opts.passphrase,
		RemotePath:   opts.remotePath,
		Protocol:     opts.protocol,
		Secure:       opts.secure,
		DebugLogging: opts.debug,
		ForceIPv4:    opts.forceIPv4,
		Compress:     opts.compress,
	}
	if opts.privateKeyFile != "" {
		key, err := readKeyFile(opts.privateKeyFile)
		if err != nil {
			return descriptor.Request{}, fmt.Errorf("read private key: %w", err)
		}
		req.PrivateKey = string(key)
	}
	changed := cmd.Flags().Changed
	if changed("connection-timeout") {
		req.ConnectionTimeout = descriptor.IntPtr(opts.connectionTimeout)
	}
	if changed("keep-alive-interval") {
		req.KeepAliveInterval = descriptor.IntPtr(opts.keepAliveInterval)
	}
	if changed("max-retries") {
		req.MaxRetries = descriptor.IntPtr(opts.maxRetries)
	}
	if changed("retry-delay") {
		req.RetryDelay = descriptor.IntPtr(opts.retryDelay)
	}
	return req, nil
}

func runTestJobs(ctx context.Context, logOut io.Writer, opts testOptions, policy conntest.RetryPolicy, jobs []testJob) (reports []output.ConnectionReport, err error) {
	logger := newCommandLogger(logOut, opts.debug)
	prober, err := newProber(transport.Config{
		KnownHostsPath: opts.knownHosts,
		Proxy:          opts.proxy,
		Logger:         logger,
	})
	if err != nil {
		return nil, exitCodeError(ExitInvalidInput, err)
	}

	var recorder history.Recorder = history.Nop{}
	if opts.historyDB != "" {
		db, rec, openErr := openHistoryDB(ctx, opts.historyDB, dbpkg.ReadWrite)
		if openErr != nil {
			return nil, openErr
		}
		defer func() {
			err = errors.Join(err, db.Close())
		}()
		recorder = rec
	}

	svc, err := conntest.New(conntest.Options{
		Prober:      prober,
		Logger:      logger,
		Recorder:    recorder,
		RetryPolicy: policy,
		Source:      history.SourceCLI,
	})
	if err != nil {
		return nil, err
	}

	reports = make([]output.ConnectionReport, len(jobs))
	var g errgroup.Group
	g.SetLimit(max(opts.concurrency, 1))
	for i, job := range jobs {
		i, job := i, job
		g.Go(func() error {
			res := svc.TestConnection(ctx, job.req)
			reports[i] = output.NewConnectionReport(job.source, endpointOf(job.req), res)
			return nil
		})
	}
	return reports, g.Wait()
}

func openHistoryDB(ctx context.Context, path string, access dbpkg.Access) (*sql.DB, *history.SQLiteRecorder, error) {
	db, err := dbpkg.Open(ctx, dbpkg.Options{Path: path, Access: access, WAL: true})
	if err != nil {
		return nil, nil, err
	}
	rec, err := history.NewSQLiteRecorder(db)
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return db, rec, nil
}

func endpointOf(req descriptor.Request) string {
	if req.Host == "" {
		return "<none>"
	}
	return req.Host + ":" + strconv.Itoa(int(req.Port))
}
