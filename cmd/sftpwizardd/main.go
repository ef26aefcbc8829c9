package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/benedict2310/sftpwizard/internal/server"
)

var version = "dev"

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := pflag.NewFlagSet("sftpwizardd", pflag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	configPath := fs.StringP("config", "c", "", "Path to config file")
	requireAuth := fs.Bool("require-auth", false, "Refuse to start without an apiToken")
	showVersion := fs.Bool("version", false, "Print version and exit")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *showVersion {
		fmt.Println(version)
		return nil
	}

	cfg, err := server.LoadConfig(*configPath)
	if err != nil {
		return err
	}
	if *requireAuth && cfg.APIToken == "" {
		return fmt.Errorf("api authentication required: set apiToken or SFTPWIZARDD_API_TOKEN")
	}

	logger, err := server.NewLogger(cfg.LogLevel)
	if err != nil {
		return err
	}

	srv, err := server.New(cfg, logger, version)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return srv.Run(ctx)
}
