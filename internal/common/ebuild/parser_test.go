package ebuild

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// genCategory generates valid Gentoo category names (e.g., "app-misc", "sys-apps")
func genCategory() gopter.Gen {
	return gen.OneConstOf(
		"app-misc", "app-editors", "dev-libs", "dev-python",
		"sys-apps", "net-misc", "www-client", "media-libs",
	)
}

// genPackageName generates valid package names
func genPackageName() gopter.Gen {
	return gen.OneConstOf(
		"neovim", "fastfetch", "htop", "ripgrep", "bat",
		"firefox-bin", "vscode-bin", "python-lsp-server",
	)
}

// genEbuild generates valid Ebuild structs using predefined combinations
func genEbuild() gopter.Gen {
	return gopter.CombineGens(
		genCategory(),
		genPackageName(),
		genCanonicalVersion(),
	).Map(func(values []interface{}) *Ebuild {
		pkg := values[1].(string)
		return &Ebuild{
			Category: values[0].(string),
			Package:  pkg,
			Name:     pkg,
			Version:  values[2].(string),
		}
	})
}

// TestPropertyEbuildRoundTrip tests that String() then ParsePath() returns an equivalent Ebuild
func TestPropertyEbuildRoundTrip(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("String() then ParsePath() returns equivalent Ebuild", prop.ForAll(
		func(original *Ebuild) bool {
			parsed, err := ParsePath(original.String())
			if err != nil {
				t.Logf("ParsePath failed for %q: %v", original.String(), err)
				return false
			}
			return *parsed == *original
		},
		genEbuild(),
	))

	properties.TestingRun(t)
}

func TestParsePath(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		version string
		full    string
	}{
		{"simple version", "app-misc/hello/hello-1.0.ebuild", "1.0", "app-misc/hello"},
		{"rc suffix", "www-client/firefox/firefox-120.0_rc1.ebuild", "120.0_rc1", "www-client/firefox"},
		{"revision", "dev-libs/openssl/openssl-3.0.1-r1.ebuild", "3.0.1-r1", "dev-libs/openssl"},
		{"package with hyphen", "www-client/firefox-bin/firefox-bin-120.0.ebuild", "120.0", "www-client/firefox-bin"},
		{"leading dot slash", "./app-editors/neovim/neovim-0.10.0.ebuild", "0.10.0", "app-editors/neovim"},
		{"windows separators", `app-editors\neovim\neovim-0.10.0.ebuild`, "0.10.0", "app-editors/neovim"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eb, err := ParsePath(tt.path)
			if err != nil {
				t.Fatalf("ParsePath(%q) returned error: %v", tt.path, err)
			}
			if eb.Version != tt.version {
				t.Errorf("Version = %q, want %q", eb.Version, tt.version)
			}
			if eb.FullName() != tt.full {
				t.Errorf("FullName() = %q, want %q", eb.FullName(), tt.full)
			}
		})
	}
}

func TestParsePath_InvalidPaths(t *testing.T) {
	tests := []struct {
		name string
		path string
	}{
		{"empty path", ""},
		{"no category", "hello/hello-1.0.ebuild"},
		{"no version", "app-misc/hello/hello.ebuild"},
		{"wrong extension", "app-misc/hello/hello-1.0.txt"},
		{"mismatched name", "app-misc/hello/world-1.0.ebuild"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParsePath(tt.path); err == nil {
				t.Errorf("ParsePath(%q) should return error", tt.path)
			}
		})
	}
}

func TestEbuild_WithVersion(t *testing.T) {
	e := &Ebuild{Category: "app-editors", Package: "neovim", Name: "neovim", Version: "0.9.5"}
	bumped := e.WithVersion("0.10.0")

	if got := bumped.String(); got != "app-editors/neovim/neovim-0.10.0.ebuild" {
		t.Errorf("String() = %q", got)
	}
	if e.Version != "0.9.5" {
		t.Errorf("WithVersion mutated the receiver: %q", e.Version)
	}
}

func TestSplitAtom(t *testing.T) {
	tests := []struct {
		atom string
		ok   bool
	}{
		{"app-editors/neovim", true},
		{"neovim", false},
		{"app-editors/", false},
		{"a/b/c", false},
	}

	for _, tt := range tests {
		if _, _, ok := SplitAtom(tt.atom); ok != tt.ok {
			t.Errorf("SplitAtom(%q) ok = %v, want %v", tt.atom, ok, tt.ok)
		}
	}
}

func writeEbuilds(t *testing.T, dir string, names ...string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	for _, name := range names {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("EAPI=8\n"), 0644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestLatest(t *testing.T) {
	overlay := t.TempDir()
	writeEbuilds(t, filepath.Join(overlay, "app-editors", "neovim"),
		"neovim-0.9.5.ebuild",
		"neovim-0.10.0_rc1.ebuild",
		"neovim-0.10.0-r1.ebuild",
		"neovim-0.10.0.ebuild",
		"neovim-9999.ebuild",
		"neovim-0.11.0a.ebuild",
		"metadata.xml",
	)

	eb, err := Latest(overlay, "app-editors", "neovim")
	if err != nil {
		t.Fatalf("Latest returned error: %v", err)
	}
	if eb.Version != "0.10.0-r1" {
		t.Errorf("Latest version = %q, want %q", eb.Version, "0.10.0-r1")
	}
}

func TestLatest_NoEbuilds(t *testing.T) {
	overlay := t.TempDir()

	if _, err := Latest(overlay, "app-misc", "missing"); err != ErrNoEbuildFound {
		t.Errorf("missing dir: err = %v, want ErrNoEbuildFound", err)
	}

	writeEbuilds(t, filepath.Join(overlay, "app-misc", "live"), "live-9999.ebuild")
	if _, err := Latest(overlay, "app-misc", "live"); err != ErrNoEbuildFound {
		t.Errorf("live only: err = %v, want ErrNoEbuildFound", err)
	}
}
