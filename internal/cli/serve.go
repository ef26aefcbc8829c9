package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/benedict2310/sftpwizard/internal/server"
)

var signalNotifyContext = signal.NotifyContext

type serveOptions struct {
	configPath string
	bind       string
	port       int
	dataDir    string
	noHistory  bool
	logLevel   string
}

func newServeCmd(version string) *cobra.Command {
	opts := serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the wizard API locally",
		Long: `Starts the connection test and config generator API on a loopback
address, for running the wizard UI against a local backend. Production
deployments use sftpwizardd.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := serveConfig(cmd, opts)
			if err != nil {
				return exitCodeError(ExitInvalidInput, err)
			}
			cmd.SilenceUsage = true

			ctx, stop := signalNotifyContext(cmd.Context(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return serveAPI(ctx, cfg, version, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.configPath, "config", "", "sftpwizardd config file")
	f.StringVar(&opts.bind, "bind", server.DefaultBindAddr, "Address to listen on")
	f.IntVar(&opts.port, "port", server.DefaultPort, "Port to listen on (use 0 for random available port)")
	f.StringVar(&opts.dataDir, "data-dir", "", "Directory for the history database (default user cache dir)")
	f.BoolVar(&opts.noHistory, "no-history", false, "Do not record connection tests")
	f.StringVar(&opts.logLevel, "log-level", "", "Log level: debug|info|warn|error")

	return cmd
}

// serveConfig starts from the daemon config and applies explicitly set
// flags on top.
func serveConfig(cmd *cobra.Command, opts serveOptions) (server.Config, error) {
	cfg, err := server.LoadConfig(opts.configPath)
	if err != nil {
		return server.Config{}, err
	}
	changed := cmd.Flags().Changed
	if opts.configPath == "" || changed("bind") {
		cfg.BindAddr = opts.bind
	}
	if opts.configPath == "" || changed("port") {
		cfg.Port = opts.port
	}
	switch {
	case changed("data-dir"):
		cfg.DataDir = opts.dataDir
		cfg.DBPath = ""
	case opts.configPath == "" && cfg.DataDir == server.DefaultDataDir:
		cacheDir, err := os.UserCacheDir()
		if err != nil {
			cacheDir = os.TempDir()
		}
		cfg.DataDir = filepath.Join(cacheDir, "sftpwizard")
	}
	if opts.noHistory {
		cfg.History.Enabled = false
	}
	if opts.logLevel != "" {
		cfg.LogLevel = opts.logLevel
	}
	return cfg, cfg.Validate()
}

func serveAPI(ctx context.Context, cfg server.Config, version string, out, logOut io.Writer) error {
	logger, err := server.NewLoggerTo(logOut, cfg.LogLevel)
	if err != nil {
		return err
	}
	srv, err := server.New(cfg, logger, version)
	if err != nil {
		return err
	}
	if err := srv.Start(); err != nil {
		return err
	}
	fmt.Fprintf(out, "Serving wizard API at http://%s\n", srv.Addr())
	return srv.Wait(ctx)
}
