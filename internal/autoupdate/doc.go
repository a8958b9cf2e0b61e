// Package autoupdate checks overlay packages against their upstream sources
// and queues the resulting decisions.
//
// Each package in overlay/.autoupdate/packages.toml binds one or more
// sources: a scraped url with a json, regex or html parser, GitHub releases,
// Arch Linux, PyPI or npm. A check cycle asks every enabled source, caches
// the answers per package and source, and hands the observations to the
// gate. Update decisions land in the pending queue and can be applied;
// Hold and Conflict decisions land in the review queue. Local state lives in
// ~/.config/ebumper/autoupdate/.
//
// Usage:
//
//	checker, err := autoupdate.NewChecker(overlayPath)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	results, err := checker.CheckAll(ctx, false)
package autoupdate
