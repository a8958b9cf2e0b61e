package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"go.trai.ch/zerr"

	"github.com/obentoo/ebumper/internal/autoupdate"
	"github.com/obentoo/ebumper/internal/common/config"
	"github.com/obentoo/ebumper/internal/common/logger"
	"github.com/obentoo/ebumper/internal/gate"
	"github.com/obentoo/ebumper/internal/history"
)

// environment is the resolved user configuration a command runs against.
type environment struct {
	cfg       *config.Config
	configDir string
}

func loadEnvironment() (*environment, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, zerr.Wrap(err, "loading config")
	}
	dir, err := config.AutoupdateDir()
	if err != nil {
		return nil, err
	}
	return &environment{cfg: cfg, configDir: dir}, nil
}

func (e *environment) overlayPath() (string, error) {
	return e.cfg.GetOverlayPath()
}

func (e *environment) policy() gate.Policy {
	a := e.cfg.Autoupdate
	return gate.Policy{
		AllowPrerelease:     a.AllowPrerelease,
		ConfidenceThreshold: a.GetConfidenceThreshold(),
		AgreementThreshold:  a.GetAgreementThreshold(),
	}
}

// errInvalidThreshold rejects a --threshold outside [0, 1].
var errInvalidThreshold = errors.New("threshold must be between 0 and 1")

// applyPolicyFlags overrides p with the --allow-prerelease and --threshold
// flags of cmd when they were given.
func applyPolicyFlags(cmd *cobra.Command, p gate.Policy, allowPrerelease bool, threshold float64) (gate.Policy, error) {
	if cmd.Flags().Changed("allow-prerelease") {
		p.AllowPrerelease = allowPrerelease
	}
	if cmd.Flags().Changed("threshold") {
		if threshold < 0 || threshold > 1 {
			return p, fmt.Errorf("--threshold %v: %w", threshold, errInvalidThreshold)
		}
		p.ConfidenceThreshold = threshold
	}
	return p, nil
}

// githubToken prefers the config file over GITHUB_TOKEN.
func (e *environment) githubToken() string {
	if e.cfg.GitHub.Token != "" {
		return e.cfg.GitHub.Token
	}
	return os.Getenv("GITHUB_TOKEN")
}

// openHistory returns nil when history is disabled.
func (e *environment) openHistory() (*history.Store, error) {
	if !e.cfg.Autoupdate.HistoryEnabled() {
		return nil, nil
	}
	return history.Open(history.Path(e.configDir))
}

// newChecker wires the configured policy, sources and history into a
// checker. extra options are applied last. The returned func releases the
// history store.
func (e *environment) newChecker(extra ...autoupdate.CheckerOption) (*autoupdate.Checker, func(), error) {
	overlay, err := e.overlayPath()
	if err != nil {
		return nil, nil, err
	}

	opts, err := autoupdate.OptionsFromConfig(e.cfg.Autoupdate)
	if err != nil {
		return nil, nil, err
	}

	client := autoupdate.NewRetryableHTTPClient()
	if token := e.githubToken(); token != "" {
		client.SetGitHubToken(token)
	}
	opts = append(opts, autoupdate.WithConfigDir(e.configDir), autoupdate.WithHTTPClient(client))

	cleanup := func() {}
	store, err := e.openHistory()
	if err != nil {
		logger.Warn("history disabled: %v", err)
	} else if store != nil {
		opts = append(opts, autoupdate.WithRecorder(store))
		cleanup = func() { store.Close() }
	}

	checker, err := autoupdate.NewChecker(overlay, append(opts, extra...)...)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return checker, cleanup, nil
}
