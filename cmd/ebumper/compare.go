package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/obentoo/ebumper/internal/common/ebuild"
)

var orderSymbols = map[ebuild.Ordering]string{
	ebuild.Less:         "<",
	ebuild.Equal:        "==",
	ebuild.Greater:      ">",
	ebuild.Incomparable: "<>",
}

var compareCmd = &cobra.Command{
	Use:   "compare <version-a> <version-b>",
	Short: "Compare two versions with Gentoo ordering",
	Long: `Print how two version strings order under Gentoo rules
(alpha < beta < pre < rc < release < p, then revision).

Exits non-zero when either version cannot be parsed.

Examples:
  ebumper compare 1.2.3 1.2.3_rc1
  ebumper compare v0.10.0 0.10.0-r1`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCompare(cmd.OutOrStdout(), args[0], args[1])
	},
}

func init() {
	rootCmd.AddCommand(compareCmd)
}

func runCompare(w io.Writer, a, b string) error {
	va, vb := ebuild.ParseVersion(a), ebuild.ParseVersion(b)
	ord := ebuild.Compare(va, vb)
	fmt.Fprintf(w, "%s %s %s (%s)\n", va, orderSymbols[ord], vb, ord)

	if ord == ebuild.Incomparable {
		if err := va.Err(); err != nil {
			return err
		}
		return vb.Err()
	}
	return nil
}
