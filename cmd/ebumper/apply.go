package main

import (
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/obentoo/ebumper/internal/autoupdate"
	"github.com/obentoo/ebumper/internal/common/output"
)

var errApplyFailed = errors.New("some updates could not be applied")

var (
	applyAll    bool
	applyDryRun bool
)

var applyCmd = &cobra.Command{
	Use:   "apply [package...]",
	Short: "Bump packages with an approved update",
	Long: `Copy the current ebuild of each package forward to the version its
queue entry holds. Only entries with status pending (or a previous failed
attempt) are applied; held and conflicting candidates need a new check.

The new ebuild is not committed and its Manifest is not regenerated.

Examples:
  ebumper apply app-editors/neovim
  ebumper apply --all --dry-run`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if applyAll == (len(args) > 0) {
			return errors.New("give package names or --all, not both")
		}

		env, err := loadEnvironment()
		if err != nil {
			return err
		}
		overlay, err := env.overlayPath()
		if err != nil {
			return err
		}
		pending, err := autoupdate.NewPendingList(env.configDir)
		if err != nil {
			return err
		}

		return runApply(cmd.OutOrStdout(), autoupdate.NewApplier(overlay, pending), args, applyDryRun)
	},
}

func init() {
	applyCmd.Flags().BoolVar(&applyAll, "all", false, "Apply every pending update")
	applyCmd.Flags().BoolVarP(&applyDryRun, "dry-run", "n", false, "Show what would be written without changing anything")
	rootCmd.AddCommand(applyCmd)
}

// runApply applies pkgs, or every pending entry when pkgs is empty.
func runApply(w io.Writer, applier *autoupdate.Applier, pkgs []string, dryRun bool) error {
	var (
		results  []autoupdate.ApplyResult
		failures = map[string]error{}
	)

	if len(pkgs) == 0 {
		results, failures = applier.ApplyAll(dryRun)
	} else {
		for _, pkg := range pkgs {
			result, err := applier.Apply(pkg, dryRun)
			if err != nil {
				failures[pkg] = err
				continue
			}
			results = append(results, *result)
		}
	}

	verb := "Bumped"
	if dryRun {
		verb = "Would bump"
	}
	for _, r := range results {
		fmt.Fprintf(w, "%s %s %s -> %s\n", output.Success.Sprint(verb), output.FormatPackage(r.Package), output.FormatVersion(r.From), output.FormatVersion(r.To))
		fmt.Fprintf(w, "    %s\n", r.Target)
	}

	failed := make([]string, 0, len(failures))
	for pkg := range failures {
		failed = append(failed, pkg)
	}
	sort.Strings(failed)
	for _, pkg := range failed {
		fmt.Fprintf(w, "%s %s: %v\n", output.Error.Sprint("Failed"), output.FormatPackage(pkg), failures[pkg])
	}

	if len(results) == 0 && len(failures) == 0 {
		fmt.Fprintln(w, "Nothing to apply")
	}
	if len(failures) > 0 {
		return fmt.Errorf("%w: %d", errApplyFailed, len(failures))
	}
	return nil
}
