package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/obentoo/ebumper/internal/autoupdate"
	"github.com/obentoo/ebumper/internal/common/output"
	"github.com/obentoo/ebumper/internal/overlay"
)

var scanUntracked bool

var scanCmd = &cobra.Command{
	Use:   "scan [pattern...]",
	Short: "List overlay packages and the sources tracking them",
	Long: `Scan the overlay and show each package's current version together with
the sources that 'ebumper check' would query for it. Nothing is fetched.

Examples:
  ebumper scan
  ebumper scan 'app-editors/*'
  ebumper scan --untracked      Packages with no autoupdate entry`,
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := loadEnvironment()
		if err != nil {
			return err
		}
		path, err := env.overlayPath()
		if err != nil {
			return err
		}

		result, err := overlay.ScanOverlay(path, args...)
		if err != nil {
			return err
		}

		packages, err := autoupdate.LoadPackagesConfig(path)
		if errors.Is(err, autoupdate.ErrPackagesConfigNotFound) {
			packages = &autoupdate.PackagesConfig{Packages: map[string]autoupdate.PackageConfig{}}
		} else if err != nil {
			return err
		}

		registry := autoupdate.NewSourceRegistry(env.cfg.Autoupdate.SourceSettings(),
			autoupdate.DefaultSources(autoupdate.NewRetryableHTTPClient())...)

		configured, err := packages.Select(args...)
		if err != nil {
			return err
		}
		printScan(cmd.OutOrStdout(), result, packages, configured, registry, scanUntracked)
		return nil
	},
}

func init() {
	scanCmd.Flags().BoolVar(&scanUntracked, "untracked", false, "Show only packages without an autoupdate entry")
	rootCmd.AddCommand(scanCmd)
}

// printScan lists result against packages. configured holds the tracked
// atoms in scope, used to report entries with no package directory.
func printScan(w io.Writer, result *overlay.ScanResult, packages *autoupdate.PackagesConfig, configured []string, registry *autoupdate.SourceRegistry, untrackedOnly bool) {
	tracked := 0
	for _, pkg := range result.Packages {
		cfg, ok := packages.Packages[pkg.FullName()]
		if ok {
			tracked++
		}
		if untrackedOnly && ok {
			continue
		}

		current := pkg.Latest
		if current == "" {
			current = "live only"
		}
		fmt.Fprintf(w, "%s %s", output.FormatPackage(pkg.FullName()), output.FormatVersion(current))

		if !ok {
			fmt.Fprintf(w, "  %s\n", output.Dim.Sprint("untracked"))
			continue
		}
		names := lo.Map(registry.For(&cfg), func(s autoupdate.WeightedSource, _ int) string {
			return fmt.Sprintf("%s %.2f", s.Name(), s.Weight)
		})
		if len(names) == 0 {
			fmt.Fprintf(w, "  %s\n", output.Warning.Sprint("no enabled source"))
			continue
		}
		fmt.Fprintf(w, "  [%s]\n", strings.Join(names, ", "))
	}

	for _, e := range result.Errors {
		fmt.Fprintf(w, "%s %s: %s\n", output.Warning.Sprint("skipped"), e.Path, e.Message)
	}

	stale := lo.Filter(configured, func(name string, _ int) bool {
		return !lo.ContainsBy(result.Packages, func(p overlay.PackageInfo) bool { return p.FullName() == name })
	})
	fmt.Fprintf(w, "\n%d %s, %d tracked\n", len(result.Packages), plural(len(result.Packages), "package", "packages"), tracked)
	if len(stale) > 0 && !untrackedOnly {
		fmt.Fprintf(w, "Configured but missing from the overlay: %s\n", strings.Join(stale, ", "))
	}
}
