package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/pfrederiksen/privaudit/internal/collector"
	"github.com/pfrederiksen/privaudit/internal/graph"
	"github.com/pfrederiksen/privaudit/internal/logging"
	"github.com/pfrederiksen/privaudit/internal/policy/conditions"
	"github.com/pfrederiksen/privaudit/internal/rules"
	"github.com/pfrederiksen/privaudit/internal/simulator"
	"github.com/pfrederiksen/privaudit/internal/store"
	"github.com/pfrederiksen/privaudit/pkg/output"
	"github.com/pfrederiksen/privaudit/pkg/types"
)

var (
	// Global flags
	profile string
	region  string
	debug   bool

	// Snapshot selection flags
	inputFile   string
	account     string
	snapshotTTL time.Duration
)

func main() {
	// Optional .env for local credentials; absence is normal.
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "privaudit",
		Short: "Find privilege escalation risks in AWS IAM",
		Long: `privaudit snapshots an account's IAM configuration, simulates policy
authorization locally, and reports privilege escalation paths and other
risky configurations.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if debug {
				logging.SetLevel(logging.LevelDebug)
			}
		},
	}

	rootCmd.PersistentFlags().StringVar(&profile, "profile", "", "AWS profile to use")
	rootCmd.PersistentFlags().StringVar(&region, "region", "", "AWS region (defaults to us-east-1, IAM is global)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")

	rootCmd.AddCommand(versionCmd())
	rootCmd.AddCommand(collectCmd())
	rootCmd.AddCommand(reportCmd())
	rootCmd.AddCommand(checkCmd())
	rootCmd.AddCommand(graphCmd())
	rootCmd.AddCommand(snapshotsCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("privaudit version %s\n", types.Version)
			fmt.Println("Find privilege escalation risks in AWS IAM")
			fmt.Println("https://github.com/pfrederiksen/privaudit")
		},
	}
}

func collectCmd() *cobra.Command {
	var outputFile string

	cmd := &cobra.Command{
		Use:   "collect",
		Short: "Snapshot IAM users, roles, policies, and bucket policies from AWS",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCollect(outputFile)
		},
	}

	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "Also write the snapshot to this file")

	return cmd
}

func runCollect(outputFile string) error {
	ctx := context.Background()

	c, err := collector.New(ctx, region, profile)
	if err != nil {
		return err
	}

	snap, err := c.Collect(ctx)
	if err != nil {
		return err
	}

	st := &store.Store{}
	if err := st.Save(snap); err != nil {
		return fmt.Errorf("failed to store snapshot: %w", err)
	}

	if outputFile != "" {
		if err := graph.SaveToFile(outputFile, snap); err != nil {
			return err
		}
	}

	fmt.Printf("Collected account %s: %d principal(s), %d edge(s), %d resource policy(ies)\n",
		snap.AccountID, len(snap.Nodes), len(snap.Edges), len(snap.Policies))

	return nil
}

func snapshotFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&inputFile, "input", "i", "", "Read the snapshot from a file instead of the store")
	cmd.Flags().StringVar(&account, "account", "", "Account ID to load from the snapshot store")
	cmd.Flags().DurationVar(&snapshotTTL, "ttl", store.DefaultTTL, "Maximum stored snapshot age")
}

// loadGraph resolves the snapshot the command should analyze: an explicit
// file wins, otherwise the store is consulted by account ID.
func loadGraph() (*graph.Graph, error) {
	if inputFile != "" {
		return graph.LoadFromFile(inputFile)
	}

	if account == "" {
		return nil, fmt.Errorf("either --input or --account is required")
	}

	st := &store.Store{}
	snap, err := st.Load(account, snapshotTTL)
	if err != nil {
		return nil, err
	}
	if snap == nil {
		return nil, fmt.Errorf("no current snapshot for account %s, run 'privaudit collect' first", account)
	}

	return graph.New(snap)
}

func reportCmd() *cobra.Command {
	var (
		format     string
		rulesFile  string
		outputFile string
	)

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Run the risk rules and render the findings",
		Example: `  privaudit report --account 123456789012
  privaudit report --input snapshot.json --format json
  privaudit report --account 123456789012 --rules-config rules.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReport(format, rulesFile, outputFile)
		},
	}

	snapshotFlags(cmd)
	cmd.Flags().StringVar(&format, "format", "markdown", "Output format (markdown|json|summary)")
	cmd.Flags().StringVar(&rulesFile, "rules-config", "", "YAML file disabling rules or overriding severities")
	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "Write the report to a file instead of stdout")

	return cmd
}

func runReport(format, rulesFile, outputFile string) error {
	g, err := loadGraph()
	if err != nil {
		return err
	}

	var cfg *rules.Config
	if rulesFile != "" {
		cfg, err = rules.LoadConfig(rulesFile)
		if err != nil {
			return err
		}
	}

	report, err := rules.NewEngine(g, cfg).GenerateReport()
	if err != nil {
		return err
	}

	w := os.Stdout
	if outputFile != "" {
		f, err := os.Create(outputFile)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	switch format {
	case "markdown":
		return output.RenderMarkdown(w, report)
	case "json":
		return output.RenderJSON(w, report)
	case "summary":
		return output.RenderSummary(w, report)
	default:
		return fmt.Errorf("unknown format %q (markdown|json|summary)", format)
	}
}

func checkCmd() *cobra.Command {
	var (
		principal string
		action    string
		resource  string
		condPairs []string
		withMFA   bool
	)

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Ask whether a principal is authorized for one action",
		Example: `  privaudit check --account 123456789012 \
    --principal arn:aws:iam::123456789012:user/alice \
    --action iam:CreateUser --resource "*"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(principal, action, resource, condPairs, withMFA)
		},
	}

	snapshotFlags(cmd)
	cmd.Flags().StringVar(&principal, "principal", "", "Principal ARN to check")
	cmd.Flags().StringVar(&action, "action", "", "Action to check (e.g. iam:CreateUser)")
	cmd.Flags().StringVar(&resource, "resource", "*", "Resource ARN to check against")
	cmd.Flags().StringArrayVar(&condPairs, "context", nil, "Condition context entry, key=value (repeatable)")
	cmd.Flags().BoolVar(&withMFA, "mfa", false, "Evaluate as if MFA is present")
	_ = cmd.MarkFlagRequired("principal")
	_ = cmd.MarkFlagRequired("action")

	return cmd
}

func runCheck(principal, action, resource string, condPairs []string, withMFA bool) error {
	g, err := loadGraph()
	if err != nil {
		return err
	}

	node, ok := g.Node(principal)
	if !ok {
		return fmt.Errorf("principal %s not found in snapshot", principal)
	}

	condCtx := conditions.Context{}
	for _, pair := range condPairs {
		key, value, found := strings.Cut(pair, "=")
		if !found {
			return fmt.Errorf("invalid --context entry %q, want key=value", pair)
		}
		condCtx[key] = value
	}
	if withMFA {
		condCtx = condCtx.WithMFA()
	}

	result, err := simulator.Evaluate(node, action, resource, condCtx)
	if err != nil {
		return err
	}

	fmt.Printf("%s for %s on %s: %s\n", action, node.Name(), resource, result.Decision)
	if len(result.MissingConditions) > 0 {
		fmt.Printf("Missing condition keys: %s\n", strings.Join(result.MissingConditions, ", "))
	}

	return nil
}

func graphCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Summarize the access graph of a snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGraph()
		},
	}

	snapshotFlags(cmd)

	return cmd
}

func runGraph() error {
	g, err := loadGraph()
	if err != nil {
		return err
	}

	var users, roles, admins int
	for _, node := range g.Nodes() {
		switch node.Kind() {
		case types.NodeKindUser:
			users++
		case types.NodeKindRole:
			roles++
		}
		if node.IsAdmin {
			admins++
		}
	}

	fmt.Printf("Account:     %s\n", g.AccountID())
	fmt.Printf("Collected:   %s\n", g.CollectedAt().Format(time.RFC3339))
	fmt.Printf("Users:       %d\n", users)
	fmt.Printf("Roles:       %d\n", roles)
	fmt.Printf("Admins:      %d\n", admins)
	fmt.Printf("Edges:       %d\n", len(g.Edges()))

	for _, edge := range g.Edges() {
		fmt.Printf("  %s\n", edge.Describe())
	}

	return nil
}

func snapshotsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshots",
		Short: "Manage stored snapshots",
	}

	cmd.AddCommand(snapshotsInfoCmd())
	cmd.AddCommand(snapshotsClearCmd())

	return cmd
}

func snapshotsInfoCmd() *cobra.Command {
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "info",
		Short: "List stored snapshots",
		RunE: func(cmd *cobra.Command, args []string) error {
			st := &store.Store{}
			entries, err := st.Info(ttl)
			if err != nil {
				return err
			}

			if len(entries) == 0 {
				fmt.Println("No snapshots stored.")
				return nil
			}

			sort.Slice(entries, func(i, j int) bool { return entries[i].AccountID < entries[j].AccountID })
			for _, entry := range entries {
				status := "current"
				if entry.Stale {
					status = "stale"
				}
				fmt.Printf("%s  %s  %s\n", entry.AccountID, entry.ModTime.Format(time.RFC3339), status)
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&ttl, "ttl", store.DefaultTTL, "Age beyond which a snapshot is reported stale")

	return cmd
}

func snapshotsClearCmd() *cobra.Command {
	var clearAccount string

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete stored snapshots",
		RunE: func(cmd *cobra.Command, args []string) error {
			st := &store.Store{}
			return st.Clear(clearAccount)
		},
	}

	cmd.Flags().StringVar(&clearAccount, "account", "", "Only clear snapshots for this account (default: all)")

	return cmd
}
