package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/obentoo/ebumper/internal/autoupdate"
	"github.com/obentoo/ebumper/internal/common/output"
)

var (
	listReview bool
	listStatus string
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List queued updates",
	Long: `List the update queue written by 'ebumper check'.

Examples:
  ebumper list                  All entries
  ebumper list --review         Held and conflicting candidates only
  ebumper list --status failed  Entries with one status`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := loadEnvironment()
		if err != nil {
			return err
		}
		pending, err := autoupdate.NewPendingList(env.configDir)
		if err != nil {
			return err
		}

		var updates []autoupdate.PendingUpdate
		switch {
		case listReview:
			updates = pending.ReviewQueue()
		case listStatus != "":
			status := autoupdate.UpdateStatus(listStatus)
			if !autoupdate.IsValidStatus(status) {
				return fmt.Errorf("unknown status %q, expected one of %v", listStatus, autoupdate.ValidStatuses())
			}
			updates = pending.ListByStatus(status)
		default:
			updates = pending.List()
		}

		printPendingUpdates(cmd.OutOrStdout(), updates, env.policy().ConfidenceThreshold)
		return nil
	},
}

func init() {
	listCmd.Flags().BoolVar(&listReview, "review", false, "Show only entries that need review (hold, conflict)")
	listCmd.Flags().StringVar(&listStatus, "status", "", "Show only entries with this status")
	rootCmd.AddCommand(listCmd)
}

func printPendingUpdates(w io.Writer, updates []autoupdate.PendingUpdate, threshold float64) {
	if len(updates) == 0 {
		fmt.Fprintln(w, "No queued updates")
		return
	}

	fmt.Fprintln(w)
	output.Header.Fprintln(w, "Queued Updates")
	fmt.Fprintln(w)

	for _, u := range updates {
		fmt.Fprintf(w, "  %s %s\n", output.FormatDecision(string(u.Status)), output.FormatPackage(u.Package))
		fmt.Fprintf(w, "    Version:    %s -> %s\n", output.FormatVersion(u.CurrentVersion), output.FormatVersion(u.NewVersion))
		fmt.Fprintf(w, "    Confidence: %s", output.FormatConfidence(u.Confidence, threshold))
		if u.Reason != "" {
			fmt.Fprintf(w, " (%s)", u.Reason)
		}
		fmt.Fprintln(w)
		if len(u.Sources) > 0 {
			fmt.Fprintf(w, "    Sources:    %v\n", u.Sources)
		}
		for _, note := range u.Notes {
			fmt.Fprintf(w, "    %s\n", output.Dim.Sprint("also: "+note))
		}
		if u.Error != "" {
			fmt.Fprintf(w, "    %s\n", output.Error.Sprint("Error: "+u.Error))
		}
		fmt.Fprintf(w, "    Detected:   %s\n", u.DetectedAt.Format("2006-01-02 15:04:05"))
		fmt.Fprintln(w)
	}

	fmt.Fprintln(w, output.Info.Sprintf("Total: %d entr%s", len(updates), plural(len(updates), "y", "ies")))
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
