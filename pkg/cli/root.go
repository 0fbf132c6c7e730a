package cli

import (
	"fmt"

	"github.com/MakeNowJust/heredoc"
	"github.com/spf13/cobra"
)

// Version of the current build, overridden at link time
var Version = "dev"

// NewRootCommand creates the root command
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "coopsearch <command> [flags]",
		Short:         "Role-scoped federated search for the cooperative portal",
		Long:          "Searches cooperatives, applications, users, complaints, amendments, auditors, trainers and official searches in one request, limited to what the caller's role may see.",
		SilenceErrors: true,
		SilenceUsage:  true,
		Example: heredoc.Doc(`
			$ coopsearch serve
			$ coopsearch search --role county-admin --tenant county-42 "nyeri dairy"
			$ coopsearch policy --output table
		`),
	}

	root.AddCommand(
		newServeCommand(),
		newSearchCommand(),
		newPolicyCommand(),
		newVersionCommand(),
	)

	return root
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the coopsearch version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "coopsearch %s\n", Version)
		},
	}
}
