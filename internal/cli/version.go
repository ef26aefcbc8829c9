package cli

import (
	"runtime"

	"github.com/spf13/cobra"

	"github.com/benedict2310/sftpwizard/internal/output"
)

type versionInfo struct {
	Version   string `json:"version" yaml:"version"`
	GoVersion string `json:"goVersion" yaml:"goVersion"`
	Platform  string `json:"platform" yaml:"platform"`
}

func newVersionCmd(version string) *cobra.Command {
	if version == "" {
		version = "dev"
	}
	var outputMode string

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print sftpwizard version",
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := output.ParseFormat(outputMode)
			if err != nil {
				return exitCodeError(ExitInvalidInput, err)
			}
			info := versionInfo{
				Version:   version,
				GoVersion: runtime.Version(),
				Platform:  runtime.GOOS + "/" + runtime.GOARCH,
			}
			return output.NewPrinter(cmd.OutOrStdout(), format).Value(info, version)
		},
	}
	cmd.Flags().StringVarP(&outputMode, "output", "o", "table", "Output format: table|json|yaml")

	return cmd
}
