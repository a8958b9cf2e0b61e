package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/obentoo/ebumper/internal/autoupdate"
	"github.com/obentoo/ebumper/internal/common/output"
	"github.com/obentoo/ebumper/internal/gate"
)

// errPackagesFailed makes the exit status non-zero when any package could
// not be evaluated.
var errPackagesFailed = errors.New("some packages could not be checked")

var (
	checkForce           bool
	checkAllowPrerelease bool
	checkThreshold       float64
)

var checkCmd = &cobra.Command{
	Use:   "check [pattern...]",
	Short: "Check packages against their upstream sources",
	Long: `Query every enabled source bound to each package, resolve a weighted
consensus and record the decision in the queue.

Patterns are globs over category/package. Without patterns every configured
package is checked.

Examples:
  ebumper check                       Check all packages
  ebumper check 'app-editors/*'       Check one category
  ebumper check --force dev-python/requests
  ebumper check --threshold 0.9       Require stronger agreement`,
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := loadEnvironment()
		if err != nil {
			return err
		}

		policy, err := applyPolicyFlags(cmd, env.policy(), checkAllowPrerelease, checkThreshold)
		if err != nil {
			return err
		}

		checker, cleanup, err := env.newChecker(autoupdate.WithPolicy(policy))
		if err != nil {
			return err
		}
		defer cleanup()

		results, err := checker.Check(cmd.Context(), args, checkForce)
		if err != nil {
			return err
		}
		return printCheckResults(cmd.OutOrStdout(), results, policy.ConfidenceThreshold)
	},
}

func init() {
	checkCmd.Flags().BoolVarP(&checkForce, "force", "f", false, "Ignore cached observations")
	checkCmd.Flags().BoolVar(&checkAllowPrerelease, "allow-prerelease", false, "Consider alpha/beta/pre/rc versions")
	checkCmd.Flags().Float64Var(&checkThreshold, "threshold", gate.DefaultConfidenceThreshold, "Minimum confidence for an update")
	rootCmd.AddCommand(checkCmd)
}

func printCheckResults(w io.Writer, results []autoupdate.CheckResult, threshold float64) error {
	if len(results) == 0 {
		fmt.Fprintln(w, "No packages configured for autoupdate")
		return nil
	}

	counts := map[gate.DecisionKind]int{}
	failed := 0

	fmt.Fprintln(w)
	output.Header.Fprintln(w, "Version Check Results")
	fmt.Fprintln(w)

	for _, r := range results {
		if r.Error != nil {
			failed++
			fmt.Fprintf(w, "  %s %s: %v\n", output.Error.Sprint("[error]"), output.FormatPackage(r.Package), r.Error)
			continue
		}

		d := r.Decision()
		counts[d.Kind]++
		line := fmt.Sprintf("  %-11s %s %s", output.FormatDecision(d.Kind.String()), output.FormatPackage(r.Package), output.FormatVersion(r.CurrentVersion))
		if d.Target != nil {
			line += fmt.Sprintf(" -> %s %s", output.FormatVersion(d.Target.String()), output.FormatConfidence(d.Confidence, threshold))
		}
		if d.Kind == gate.Update && r.Verdict.Consensus.NeedsReview(threshold) {
			line += output.Warning.Sprint(" (review: " + reviewReason(r.Verdict.Consensus, threshold) + ")")
		}
		if r.FromCache {
			line += output.Dim.Sprint(" (cached)")
		}
		fmt.Fprintln(w, line)
		fmt.Fprintf(w, "      %s\n", d.Reason)

		if d.Kind != gate.NoOp || len(r.SourceErrors) > 0 {
			for _, note := range r.Verdict.Consensus.Notes {
				fmt.Fprintf(w, "      %s\n", output.Dim.Sprint("also: "+note))
			}
			for name, err := range r.SourceErrors {
				fmt.Fprintf(w, "      %s\n", output.Warning.Sprintf("%s failed: %v", name, err))
			}
		}
	}

	fmt.Fprintln(w)
	summary := []string{
		fmt.Sprintf("%d update", counts[gate.Update]),
		fmt.Sprintf("%d hold", counts[gate.Hold]),
		fmt.Sprintf("%d conflict", counts[gate.Conflict]),
		fmt.Sprintf("%d unchanged", counts[gate.NoOp]),
	}
	fmt.Fprintln(w, output.Info.Sprint(strings.Join(summary, ", ")))
	if counts[gate.Update] > 0 {
		fmt.Fprintln(w, "Use 'ebumper apply <package>' to bump, 'ebumper list --review' for held packages")
	}

	if failed > 0 {
		return fmt.Errorf("%w: %d of %d", errPackagesFailed, failed, len(results))
	}
	return nil
}
