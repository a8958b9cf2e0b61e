package autoupdate

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"

	"github.com/google/go-github/v80/github"

	"github.com/obentoo/ebumper/internal/common/config"
	"github.com/obentoo/ebumper/internal/common/ebuild"
)

// ErrNoReleases is returned when a repository has no usable release.
var ErrNoReleases = errors.New("no usable GitHub release")

// tagVersion finds the version inside tags such as "nvim-0.10.0" or "release/1.2"
var tagVersion = regexp.MustCompile(`\d+(\.\d+)*\S*$`)

// GitHubSource reads releases through the GitHub REST API. Drafts are
// skipped. Unless the query allows prereleases, so are releases flagged
// prerelease and tags carrying an alpha/beta/pre/rc suffix. Among the rest
// the greatest parsable tag wins.
type GitHubSource struct {
	client *github.Client
	// pages bounds how many release pages are listed
	pages int
}

// NewGitHubSource creates the source. httpClient may be nil; token may be empty.
func NewGitHubSource(httpClient *http.Client, token string) *GitHubSource {
	client := github.NewClient(httpClient)
	if token != "" {
		client = client.WithAuthToken(token)
	}
	return &GitHubSource{client: client, pages: 1}
}

// WithBaseURL points the source at a GitHub Enterprise or test server.
func (s *GitHubSource) WithBaseURL(base string) (*GitHubSource, error) {
	u, err := url.Parse(withSlash(base))
	if err != nil {
		return nil, err
	}
	s.client.BaseURL = u
	return s, nil
}

func (s *GitHubSource) Name() string { return config.SourceGitHub }

func (s *GitHubSource) Applies(cfg *PackageConfig) bool { return cfg.GitHub != "" }

func (s *GitHubSource) Latest(ctx context.Context, q Query) (string, error) {
	owner, repo, ok := q.Config.GitHubRepo()
	if !ok {
		return "", ErrSourceNotApplicable
	}

	var (
		best    ebuild.Version
		bestTag string
	)
	opts := &github.ListOptions{PerPage: 30}
	for page := 0; page < s.pages; page++ {
		releases, resp, err := s.client.Repositories.ListReleases(ctx, owner, repo, opts)
		if err != nil {
			return "", fmt.Errorf("list releases of %s/%s: %w", owner, repo, err)
		}

		for _, r := range releases {
			if r.GetDraft() || (r.GetPrerelease() && !q.AllowPrerelease) {
				continue
			}
			tag := releaseVersion(r.GetTagName())
			v := ebuild.ParseVersion(tag)
			if v.Malformed || (v.IsPrerelease() && !q.AllowPrerelease) {
				continue
			}
			if bestTag == "" || ebuild.Compare(v, best) == ebuild.Greater {
				best, bestTag = v, tag
			}
		}

		if resp == nil || resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	if bestTag == "" {
		return "", fmt.Errorf("%w: %s/%s", ErrNoReleases, owner, repo)
	}
	return bestTag, nil
}

// releaseVersion strips a leading project name or path from a tag when the
// whole tag does not parse as a version.
func releaseVersion(tag string) string {
	if !ebuild.ParseVersion(tag).Malformed {
		return tag
	}
	if m := tagVersion.FindString(tag); m != "" {
		return m
	}
	return tag
}
