package main

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/obentoo/ebumper/internal/autoupdate"
	"github.com/obentoo/ebumper/internal/common/ebuild"
	"github.com/obentoo/ebumper/internal/common/output"
	"github.com/obentoo/ebumper/internal/gate"
)

var (
	resolveCurrent         string
	resolveAllowPrerelease bool
	resolveThreshold       float64
	resolveStrict          bool
	resolveMaxAge          time.Duration
)

var resolveCmd = &cobra.Command{
	Use:   "resolve <observations.jsonc>",
	Short: "Run the consensus gate on recorded observations",
	Long: `Evaluate a file of source observations without touching the network,
the overlay or the queue. The file is JSON and may contain comments:

  {
    "current": "0.9.5",
    "observations": [
      {"origin": "github", "value": "v0.10.0"},
      {"origin": "pypi", "value": "0.10.0", "weight": 0.25}
    ]
  }

Weights default to the configured source registry. Records may carry an
"observed_at" RFC 3339 timestamp; --max-age drops those older than the window.

Examples:
  ebumper resolve obs.jsonc
  ebumper resolve obs.jsonc --current 0.9.4 --allow-prerelease
  ebumper resolve obs.jsonc --max-age 24h
  ebumper resolve obs.jsonc --strict   Exit non-zero unless the decision is update or no-op`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := loadEnvironment()
		if err != nil {
			return err
		}

		file, err := autoupdate.LoadObservations(args[0])
		if err != nil {
			return err
		}
		current := file.Current
		if resolveCurrent != "" {
			current = resolveCurrent
		}
		if current == "" {
			return errors.New("no current version: set \"current\" in the file or pass --current")
		}

		policy, err := applyPolicyFlags(cmd, env.policy(), resolveAllowPrerelease, resolveThreshold)
		if err != nil {
			return err
		}

		now := time.Now()
		weights := autoupdate.WeightsFromSettings(env.cfg.Autoupdate.SourceSettings())
		obs, dropped := autoupdate.DropExpired(file.ToObservations(weights, now), resolveMaxAge, now)
		if dropped > 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "Dropped %d observation(s) older than %s\n", dropped, resolveMaxAge)
		}
		verdict := gate.Evaluate(ebuild.ParseVersion(current), obs, policy)

		printVerdict(cmd.OutOrStdout(), current, verdict, policy)
		if resolveStrict {
			return verdict.Decision.Err()
		}
		return nil
	},
}

func init() {
	resolveCmd.Flags().StringVar(&resolveCurrent, "current", "", "Current overlay version (overrides the file)")
	resolveCmd.Flags().BoolVar(&resolveAllowPrerelease, "allow-prerelease", false, "Consider alpha/beta/pre/rc versions")
	resolveCmd.Flags().Float64Var(&resolveThreshold, "threshold", gate.DefaultConfidenceThreshold, "Minimum confidence for an update")
	resolveCmd.Flags().DurationVar(&resolveMaxAge, "max-age", 0, "Ignore observations older than this (0 keeps all)")
	resolveCmd.Flags().BoolVar(&resolveStrict, "strict", false, "Exit non-zero on hold, conflict or no consensus")
	rootCmd.AddCommand(resolveCmd)
}

func printVerdict(w io.Writer, current string, v gate.Verdict, p gate.Policy) {
	fmt.Fprintf(w, "Current:    %s\n", output.FormatVersion(current))
	fmt.Fprintf(w, "Considered: %d observation(s)\n", len(v.Filtered))

	for i, g := range v.Consensus.Groups {
		marker := " "
		if i == 0 {
			marker = "*"
		}
		fmt.Fprintf(w, "  %s %-14s weight %.2f  %s\n", marker, g.Version, g.Weight, strings.Join(g.Sources, ", "))
	}

	c := v.Consensus
	if c.HasCandidate() {
		agree := "yes"
		if !c.SourcesAgree {
			agree = output.Warning.Sprint("no")
		}
		fmt.Fprintf(w, "Candidate:  %s, confidence %s, sources agree: %s\n",
			output.FormatVersion(c.Candidate.String()), output.FormatConfidence(c.Confidence, p.ConfidenceThreshold), agree)
	}

	if c.NeedsReview(p.ConfidenceThreshold) {
		fmt.Fprintf(w, "Review:     %s\n", output.Warning.Sprint(reviewReason(c, p.ConfidenceThreshold)))
	}

	d := v.Decision
	fmt.Fprintf(w, "Decision:   %s %s\n", output.FormatDecision(d.Kind.String()), d.Reason)
}

// reviewReason says why a consensus needs a human look.
func reviewReason(c gate.Consensus, threshold float64) string {
	switch {
	case !c.HasCandidate():
		return "no candidate"
	case !c.SourcesAgree:
		return "sources disagree"
	case c.Confidence < threshold:
		return "low confidence"
	default:
		return ""
	}
}
