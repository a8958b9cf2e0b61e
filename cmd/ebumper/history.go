package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/obentoo/ebumper/internal/common/output"
	"github.com/obentoo/ebumper/internal/history"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history [package]",
	Short: "Show recorded check decisions",
	Long: `Show the decisions recorded by past check cycles, newest first.

Examples:
  ebumper history
  ebumper history app-editors/neovim --limit 5`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := loadEnvironment()
		if err != nil {
			return err
		}
		store, err := env.openHistory()
		if err != nil {
			return err
		}
		if store == nil {
			fmt.Fprintln(cmd.OutOrStdout(), "History is disabled (autoupdate.history: false)")
			return nil
		}
		defer store.Close()

		pkg := ""
		if len(args) == 1 {
			pkg = args[0]
		}
		entries, err := store.List(cmd.Context(), pkg, historyLimit)
		if err != nil {
			return err
		}
		printHistory(cmd.OutOrStdout(), entries)
		return nil
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "l", 20, "Maximum number of entries (0 for all)")
	rootCmd.AddCommand(historyCmd)
}

func printHistory(w io.Writer, entries []history.Entry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No recorded decisions")
		return
	}

	for _, e := range entries {
		fmt.Fprintf(w, "%s  %-11s %s %s",
			output.Dim.Sprint(e.CheckedAt.Local().Format("2006-01-02 15:04")),
			output.FormatDecision(e.Decision),
			output.FormatPackage(e.Package),
			output.FormatVersion(e.Current))
		if e.Candidate != "" {
			fmt.Fprintf(w, " -> %s (%.0f%%)", output.FormatVersion(e.Candidate), e.Confidence*100)
		}
		fmt.Fprintf(w, "  %s\n", e.Reason)
	}
}
