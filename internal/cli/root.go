package cli

import "github.com/spf13/cobra"

// NewRootCmd builds the sftpwizard root command tree.
func NewRootCmd(version string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sftpwizard",
		Short: "Test SFTP/FTP connections and generate sftp.json configs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.AddCommand(newTestCmd())
	cmd.AddCommand(newGenerateCmd())
	cmd.AddCommand(newValidateCmd())
	cmd.AddCommand(newHistoryCmd())
	cmd.AddCommand(newServeCmd(version))
	cmd.AddCommand(newVersionCmd(version))

	return cmd
}
