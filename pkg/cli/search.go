package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/MakeNowJust/heredoc"
	"github.com/spf13/cobra"

	"github.com/coopportal/coopsearch/pkg/auth"
	"github.com/coopportal/coopsearch/pkg/gateway/sqlstore"
	"github.com/coopportal/coopsearch/pkg/observability"
	"github.com/coopportal/coopsearch/pkg/rbac"
	"github.com/coopportal/coopsearch/pkg/scope"
	"github.com/coopportal/coopsearch/pkg/search"
)

type searchOptions struct {
	role        string
	tenant      string
	cooperative string
	user        string
	limit       int
	dsn         string
	dialect     string
	policyFile  string
	output      string
}

func newSearchCommand() *cobra.Command {
	opts := &searchOptions{}

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Run one search directly against the portal database",
		Example: heredoc.Doc(`
			$ coopsearch search --role super-admin "nyeri"
			$ coopsearch search --role county-admin --tenant county-42 --output json "dairy"
			$ coopsearch search --role cooperative-admin --user user-17 "annual returns"
		`),
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd, opts, strings.Join(args, " "))
		},
	}

	cmd.Flags().StringVar(&opts.role, "role", "", "Caller role (required)")
	cmd.Flags().StringVar(&opts.tenant, "tenant", "", "Caller tenant (county) id")
	cmd.Flags().StringVar(&opts.cooperative, "cooperative", "", "Caller cooperative id")
	cmd.Flags().StringVar(&opts.user, "user", "", "Caller user id")
	cmd.Flags().IntVar(&opts.limit, "limit", search.DefaultConfig().MaxPerCategory, "Max results per category")
	cmd.Flags().StringVar(&opts.dsn, "dsn", os.Getenv("COOPSEARCH_DATABASE_URL"), "Database connection string")
	cmd.Flags().StringVar(&opts.dialect, "dialect", "postgres", "Database dialect: postgres or sqlite")
	cmd.Flags().StringVar(&opts.policyFile, "policy", "", "Visibility policy file (default: built-in policy)")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "table", "Output format: table or json")
	_ = cmd.MarkFlagRequired("role")

	return cmd
}

func runSearch(cmd *cobra.Command, opts *searchOptions, query string) error {
	if opts.output != "table" && opts.output != "json" {
		return fmt.Errorf("unsupported output format %q", opts.output)
	}
	if opts.dsn == "" {
		return errors.New("--dsn or COOPSEARCH_DATABASE_URL is required")
	}

	role, err := auth.ParseRole(opts.role)
	if err != nil {
		return err
	}
	ac := auth.Context{
		Role:          role,
		TenantID:      auth.String(opts.tenant),
		CooperativeID: auth.String(opts.cooperative),
		UserID:        auth.String(opts.user),
	}
	if err := ac.Validate(); err != nil {
		return err
	}

	dialect, err := sqlstore.ParseDialect(opts.dialect)
	if err != nil {
		return err
	}

	policy := rbac.DefaultPolicy()
	if opts.policyFile != "" {
		if policy, err = rbac.LoadPolicy(opts.policyFile); err != nil {
			return err
		}
	}

	logger, err := observability.NewLogger("warn", "text", cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	store, err := sqlstore.Open(ctx, sqlstore.PoolConfig{Dialect: dialect, PrimaryURL: opts.dsn}, logger)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer store.Pool().Close()

	engine := search.NewEngine(store, rbac.NewStore(policy), scope.NewGatewayResolver(store, logger, nil),
		search.DefaultConfig(), logger, nil)

	res, searchErr := engine.Search(ctx, search.Request{
		Query:          query,
		Auth:           ac,
		MaxPerCategory: opts.limit,
	})
	if res == nil {
		return searchErr
	}

	out := cmd.OutOrStdout()
	if opts.output == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			return err
		}
	} else {
		printResults(out, res)
	}

	if errors.Is(searchErr, search.ErrCooperativeNotFound) {
		// reported in the output
		return nil
	}
	return searchErr
}

func printResults(out io.Writer, res *search.Results) {
	if res.CooperativeNotFound {
		fmt.Fprintln(out, "No cooperative is linked to this user; cooperative-scoped categories were not searched.")
	}

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "CATEGORY\tTITLE\tSUBTITLE\tLINK")
	for _, c := range rbac.Categories() {
		for _, r := range res.Categories.Get(c) {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", search.Label(c), r.Title, r.Subtitle, r.NavigateTo)
		}
	}
	w.Flush()

	fmt.Fprintf(out, "\n%d result(s) for %q\n", res.TotalCount, res.Query)
	for _, c := range rbac.Categories() {
		if msg, ok := res.Failures[c]; ok {
			fmt.Fprintf(out, "%s failed: %s\n", search.Label(c), msg)
		}
	}
}
