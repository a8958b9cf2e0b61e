package autoupdate

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/obentoo/ebumper/internal/common/config"
	"github.com/obentoo/ebumper/internal/common/ebuild"
	"github.com/obentoo/ebumper/internal/gate"
)

const observationsDoc = `{
  // exported from a check of app-editors/neovim
  "package": "app-editors/neovim",
  "current": "0.9.5",
  "observations": [
    {"origin": "github", "value": "v0.10.0"},
    /* arch lags behind */
    {"origin": "arch_linux", "value": "0.9.5", "observed_at": "2026-09-30T10:00:00Z"},
    {"origin": "mirror", "value": "0.10.0", "weight": 0.05}
  ]
}`

func TestParseObservations(t *testing.T) {
	f, err := ParseObservations([]byte(observationsDoc))
	require.NoError(t, err)
	assert.Equal(t, "app-editors/neovim", f.Package)
	assert.Equal(t, "0.9.5", f.Current)
	require.Len(t, f.Observations, 3)
	assert.Nil(t, f.Observations[0].Weight)
	require.NotNil(t, f.Observations[2].Weight)
	assert.Equal(t, 0.05, *f.Observations[2].Weight)

	now := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	weights := WeightsFromSettings(config.AutoupdateConfig{}.SourceSettings())
	obs := f.ToObservations(weights, now)
	require.Len(t, obs, 3)

	assert.Equal(t, "github", obs[0].Source())
	assert.Equal(t, 0.4, obs[0].Weight)
	assert.True(t, obs[0].ObservedAt.Equal(now))
	assert.Equal(t, "0.10.0", obs[0].Version.String())

	assert.Equal(t, 0.3, obs[1].Weight)
	assert.True(t, obs[1].ObservedAt.Equal(time.Date(2026, 9, 30, 10, 0, 0, 0, time.UTC)))
	assert.Equal(t, 0.05, obs[2].Weight)

	v := gate.Evaluate(mustParse(t, f.Current), obs, gate.DefaultPolicy())
	assert.Equal(t, gate.Hold, v.Decision.Kind)
	assert.Equal(t, "0.10.0", v.Decision.Target.String())
	assert.InDelta(t, 0.45/0.75, v.Decision.Confidence, 1e-9)
}

func TestParseObservationsErrors(t *testing.T) {
	_, err := ParseObservations([]byte(`{"observations": [{"value": "1.0"}]}`))
	assert.ErrorIs(t, err, ErrMissingOrigin)

	_, err = ParseObservations([]byte(`{"observations": [`))
	assert.Error(t, err)
}

func TestLoadObservations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "obs.jsonc")
	require.NoError(t, os.WriteFile(path, []byte(observationsDoc), 0644))

	f, err := LoadObservations(path)
	require.NoError(t, err)
	assert.Len(t, f.Observations, 3)

	_, err = LoadObservations(filepath.Join(t.TempDir(), "missing.json"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestToObservationsUnknownOriginWeighsZero(t *testing.T) {
	f := &ObservationFile{Observations: []ObservationRecord{{Origin: "somewhere", Value: "1.0"}}}
	obs := f.ToObservations(map[string]float64{"github": 0.4}, time.Now())
	require.Len(t, obs, 1)
	assert.Zero(t, obs[0].Weight)
}

func mustParse(t *testing.T, raw string) ebuild.Version {
	t.Helper()
	v := ebuild.ParseVersion(raw)
	require.NoError(t, v.Err())
	return v
}

func TestDropExpired(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	obs := []gate.Observation{
		gate.NewObservation("github", "1.2", 0.4, now.Add(-48*time.Hour)),
		gate.NewObservation("pypi", "1.1", 0.2, now.Add(-time.Hour)),
		gate.NewObservation("npm", "1.1", 0.2, now.Add(-24*time.Hour)),
	}

	fresh, dropped := DropExpired(obs, 24*time.Hour, now)
	assert.Equal(t, 2, dropped)
	require.Len(t, fresh, 1)
	assert.Equal(t, "pypi", fresh[0].Source())

	fresh, dropped = DropExpired(obs, 0, now)
	assert.Zero(t, dropped)
	assert.Len(t, fresh, 3)
}
