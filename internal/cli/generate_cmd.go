package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/benedict2310/sftpwizard/internal/output"
	"github.com/benedict2310/sftpwizard/internal/sftpconfig"
)

func newGenerateCmd() *cobra.Command {
	var formPath, outPath string

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate an sftp.json from a wizard form file",
		Long: `Reads the wizard form (JSON or YAML), validates it and writes the
sftp.json document. Without --out the document is printed to stdout. When
--out is a directory the file name is derived from the config name.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if formPath == "" {
				return exitCodeError(ExitInvalidInput, fmt.Errorf("--form is required"))
			}
			cmd.SilenceUsage = true

			var form sftpconfig.Form
			if err := decodeFile(formPath, &form); err != nil {
				return exitCodeError(ExitInvalidInput, err)
			}
			doc, err := sftpconfig.Generate(form)
			if err != nil {
				var fields sftpconfig.FieldErrors
				if errors.As(err, &fields) {
					_ = output.NewPrinter(cmd.ErrOrStderr(), output.FormatTable).Form(output.FormReport{Fields: fields})
					return exitCodeError(ExitInvalidInput, fmt.Errorf("form has %d invalid field(s)", len(fields)))
				}
				return err
			}
			data, err := sftpconfig.Marshal(doc)
			if err != nil {
				return err
			}

			if outPath == "" || outPath == "-" {
				_, err := cmd.OutOrStdout().Write(data)
				return err
			}
			target := outPath
			if info, err := os.Stat(outPath); err == nil && info.IsDir() {
				target = filepath.Join(outPath, sftpconfig.Filename(doc.Name))
			}
			// The document may carry a password.
			if err := os.WriteFile(target, data, 0o600); err != nil {
				return fmt.Errorf("write config: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", target)
			return nil
		},
	}

	cmd.Flags().StringVar(&formPath, "form", "", "Wizard form file (JSON or YAML)")
	cmd.Flags().StringVar(&outPath, "out", "", "Output file or directory (default stdout)")

	return cmd
}

func newValidateCmd() *cobra.Command {
	var (
		formPath   string
		step       int
		outputMode string
	)

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a wizard form file, optionally one step at a time",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if formPath == "" {
				return exitCodeError(ExitInvalidInput, fmt.Errorf("--form is required"))
			}
			if step < 0 || step > sftpconfig.Steps {
				return exitCodeError(ExitInvalidInput, fmt.Errorf("--step must be between 1 and %d", sftpconfig.Steps))
			}
			format, err := output.ParseFormat(outputMode)
			if err != nil {
				return exitCodeError(ExitInvalidInput, err)
			}
			cmd.SilenceUsage = true

			var form sftpconfig.Form
			if err := decodeFile(formPath, &form); err != nil {
				return exitCodeError(ExitInvalidInput, err)
			}
			fields := sftpconfig.FieldErrors{}
			if step > 0 {
				fields = sftpconfig.ValidateStep(step, form)
			} else if err := sftpconfig.Validate(form); err != nil {
				errors.As(err, &fields)
			}

			report := output.FormReport{Valid: len(fields) == 0, Fields: fields}
			if err := output.NewPrinter(cmd.OutOrStdout(), format).Form(report); err != nil {
				return err
			}
			if !report.Valid {
				return exitCodeError(ExitInvalidInput, fmt.Errorf("form has %d invalid field(s)", len(fields)))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&formPath, "form", "", "Wizard form file (JSON or YAML)")
	cmd.Flags().IntVar(&step, "step", 0, "Validate only this wizard step (1-3)")
	cmd.Flags().StringVarP(&outputMode, "output", "o", "table", "Output format: table|json|yaml")

	return cmd
}
