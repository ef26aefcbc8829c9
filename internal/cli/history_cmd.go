package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	dbpkg "github.com/benedict2310/sftpwizard/internal/db"
	"github.com/benedict2310/sftpwizard/internal/history"
	"github.com/benedict2310/sftpwizard/internal/output"
)

func newHistoryCmd() *cobra.Command {
	var (
		dbPath     string
		host       string
		failed     bool
		since      time.Duration
		limit      int
		outputMode string
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded connection tests",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			if dbPath == "" {
				return exitCodeError(ExitInvalidInput, fmt.Errorf("--db is required"))
			}
			format, err := output.ParseFormat(outputMode)
			if err != nil {
				return exitCodeError(ExitInvalidInput, err)
			}
			cmd.SilenceUsage = true

			db, rec, err := openHistoryDB(cmd.Context(), dbPath, dbpkg.ReadOnly)
			if err != nil {
				return err
			}
			defer func() {
				err = errors.Join(err, db.Close())
			}()

			filter := history.Filter{Host: host, Limit: limit}
			if failed {
				ok := false
				filter.Success = &ok
			}
			if since > 0 {
				ts := time.Now().Add(-since)
				filter.Since = &ts
			}
			res, err := rec.Query(cmd.Context(), filter)
			if err != nil {
				return err
			}
			return output.NewPrinter(cmd.OutOrStdout(), format).History(res)
		},
	}

	f := cmd.Flags()
	f.StringVar(&dbPath, "db", "", "History database written by 'test --history-db' or sftpwizardd")
	f.StringVar(&host, "host", "", "Only show tests against this host")
	f.BoolVar(&failed, "failed", false, "Only show failed tests")
	f.DurationVar(&since, "since", 0, "Only show tests newer than this (e.g. 24h)")
	f.IntVar(&limit, "limit", 20, "Maximum entries to show")
	f.StringVarP(&outputMode, "output", "o", "table", "Output format: table|json|yaml")

	return cmd
}
