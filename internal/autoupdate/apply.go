package autoupdate

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.trai.ch/zerr"

	"github.com/obentoo/ebumper/internal/common/ebuild"
	"github.com/obentoo/ebumper/internal/common/logger"
	"github.com/obentoo/ebumper/internal/gate"
)

var (
	// ErrNotApproved is returned when the queue entry is not an Update decision
	ErrNotApproved = errors.New("update is not approved for application")
	// ErrEbuildExists is returned when the target ebuild is already present
	ErrEbuildExists = errors.New("target ebuild already exists")
)

// ApplyResult describes one applied (or planned) bump.
type ApplyResult struct {
	Package string
	From    string
	To      string
	// Source and Target are overlay-relative ebuild paths
	Source string
	Target string
	DryRun bool
}

// Applier bumps packages whose queue entry holds an Update decision by
// copying the current ebuild forward to the new version.
type Applier struct {
	overlayPath string
	pending     *PendingList
}

// NewApplier creates an applier for the overlay and queue.
func NewApplier(overlayPath string, pending *PendingList) *Applier {
	return &Applier{overlayPath: overlayPath, pending: pending}
}

// Apply bumps pkg. Only pending (or previously failed) entries qualify, and
// the target must still be greater than the overlay's current version.
// A dry run validates and reports without touching the overlay or queue.
func (a *Applier) Apply(pkg string, dryRun bool) (*ApplyResult, error) {
	entry, ok := a.pending.Get(pkg)
	if !ok {
		return nil, zerr.With(ErrPackageNotInPending, "package", pkg)
	}
	if entry.Status != StatusPending && entry.Status != StatusFailed {
		return nil, zerr.With(fmt.Errorf("%w: status %s", ErrNotApproved, entry.Status), "package", pkg)
	}

	result, err := a.plan(pkg, entry)
	if err != nil {
		if !dryRun {
			a.markFailed(pkg, err)
		}
		return nil, zerr.With(err, "package", pkg)
	}
	result.DryRun = dryRun
	if dryRun {
		return result, nil
	}

	if err := copyEbuild(filepath.Join(a.overlayPath, result.Source), filepath.Join(a.overlayPath, result.Target)); err != nil {
		a.markFailed(pkg, err)
		return nil, zerr.With(err, "package", pkg)
	}
	if err := a.pending.SetStatus(pkg, StatusApplied, ""); err != nil {
		return result, zerr.With(err, "package", pkg)
	}

	logger.WithField("package", pkg).Info("bumped %s -> %s", result.From, result.To)
	return result, nil
}

// plan re-checks the gate ordering against the overlay as it is now.
func (a *Applier) plan(pkg string, entry *PendingUpdate) (*ApplyResult, error) {
	target := ebuild.ParseVersion(entry.NewVersion)
	if target.Malformed {
		return nil, target.Err()
	}

	category, name, ok := ebuild.SplitAtom(pkg)
	if !ok {
		return nil, ErrInvalidPackageName
	}
	current, err := ebuild.Latest(a.overlayPath, category, name)
	if err != nil {
		return nil, zerr.Wrap(err, "failed to get current version")
	}

	if ord := ebuild.Compare(target, current.ParsedVersion()); ord != ebuild.Greater {
		return nil, fmt.Errorf("%w: target %s is not newer than current %s (%s)", gate.ErrRegressionConflict, target, current.Version, ord)
	}

	next := current.WithVersion(target.String())
	if _, err := os.Stat(filepath.Join(a.overlayPath, next.String())); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrEbuildExists, next)
	}

	return &ApplyResult{
		Package: pkg,
		From:    current.Version,
		To:      next.Version,
		Source:  current.String(),
		Target:  next.String(),
	}, nil
}

func (a *Applier) markFailed(pkg string, cause error) {
	if err := a.pending.SetStatus(pkg, StatusFailed, cause.Error()); err != nil {
		logger.WithField("package", pkg).Warn("failed to mark update failed: %v", err)
	}
}

// ApplyAll applies every pending entry. Failures are returned per package
// and do not stop the others.
func (a *Applier) ApplyAll(dryRun bool) ([]ApplyResult, map[string]error) {
	var results []ApplyResult
	failures := map[string]error{}

	for _, entry := range a.pending.ListByStatus(StatusPending) {
		result, err := a.Apply(entry.Package, dryRun)
		if err != nil {
			failures[entry.Package] = err
			continue
		}
		results = append(results, *result)
	}
	return results, failures
}

// copyEbuild copies src to dst, refusing to overwrite.
func copyEbuild(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open ebuild: %w", err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat ebuild: %w", err)
	}

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, info.Mode().Perm())
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return fmt.Errorf("%w: %s", ErrEbuildExists, dst)
		}
		return fmt.Errorf("failed to create ebuild: %w", err)
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return fmt.Errorf("failed to copy ebuild: %w", err)
	}
	return out.Close()
}
