package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/MakeNowJust/heredoc"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/coopportal/coopsearch/pkg/auth"
	"github.com/coopportal/coopsearch/pkg/rbac"
)

func newPolicyCommand() *cobra.Command {
	var file, output string

	cmd := &cobra.Command{
		Use:   "policy",
		Short: "Print the effective search visibility policy",
		Long:  "Prints the built-in visibility policy, or the policy file merged over it, as YAML or as a category by role matrix.",
		Example: heredoc.Doc(`
			$ coopsearch policy
			$ coopsearch policy --file ./policy.yaml --output table
		`),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			policy := rbac.DefaultPolicy()
			if file != "" {
				var err error
				if policy, err = rbac.LoadPolicy(file); err != nil {
					return err
				}
			}

			switch output {
			case "yaml":
				enc := yaml.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent(2)
				if err := enc.Encode(policy); err != nil {
					return err
				}
				return enc.Close()
			case "table":
				printPolicy(cmd.OutOrStdout(), policy)
				return nil
			default:
				return fmt.Errorf("unsupported output format %q", output)
			}
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Policy file to load over the built-in policy")
	cmd.Flags().StringVarP(&output, "output", "o", "yaml", "Output format: yaml or table")

	return cmd
}

// printPolicy writes one row per category and one column per role. Each cell holds the
// scope applied to the role, or "-" when the category is hidden from it.
func printPolicy(out io.Writer, policy *rbac.Policy) {
	roles := auth.AllRoles()

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	header := []string{"CATEGORY"}
	for _, r := range roles {
		header = append(header, string(r))
	}
	fmt.Fprintln(w, strings.Join(header, "\t"))

	for _, c := range rbac.Categories() {
		row := []string{string(c)}
		rule, ok := policy.Rule(c)
		for _, r := range roles {
			switch {
			case !ok || rule.HiddenFor(r):
				row = append(row, "-")
			default:
				row = append(row, string(rule.ScopeFor(r)))
			}
		}
		fmt.Fprintln(w, strings.Join(row, "\t"))
	}
	w.Flush()
}
