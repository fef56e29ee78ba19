package plugins

import (
	"context"
	"testing"
	"time"

	"github.com/mmry-org/mmry-plugins/lib/mmry"
	"github.com/mmry-org/mmry-plugins/lib/testutil"

	"github.com/stretchr/testify/require"
)

type fakePlugin struct {
	manifest Manifest
}

func (f fakePlugin) Manifest() Manifest {
	return f.manifest
}

func (fakePlugin) Run(context.Context, *mmry.Client) error {
	return nil
}

func TestParseManifest(t *testing.T) {
	m, err := ParseManifest([]byte(`
name: github-stars
description: Imports your starred repositories.
inputs:
  - id: GITHUB_TOKEN
    kind: secret
    required: true
    description: A personal access token.
`))
	if err != nil {
		t.Fatal(err)
	}
	require.Equal(t, Manifest{
		Name:        "github-stars",
		Description: "Imports your starred repositories.",
		Inputs: []ManifestInput{{
			ID:          "GITHUB_TOKEN",
			Kind:        "secret",
			Required:    true,
			Description: "A personal access token.",
		}},
	}, m)

	_, err = ParseManifest([]byte(`description: no name`))
	require.Error(t, err)
	_, err = ParseManifest([]byte("name: x\ninputs:\n  - id: a\n    kind: number\n"))
	require.ErrorContains(t, err, "unknown kind")
	require.Panics(t, func() { MustParseManifest([]byte(`: :`)) })
}

func TestRegistry(t *testing.T) {
	registry, err := NewRegistry(
		fakePlugin{Manifest{Name: "youtube"}},
		fakePlugin{Manifest{Name: "github-stars"}},
		fakePlugin{Manifest{Name: "raindrop"}},
	)
	if err != nil {
		t.Fatal(err)
	}
	require.Equal(t, []string{"github-stars", "raindrop", "youtube"}, registry.Names())

	p, ok := registry.Lookup("raindrop")
	require.True(t, ok)
	require.Equal(t, "raindrop", p.Manifest().Name)
	_, ok = registry.Lookup("missing")
	require.False(t, ok)

	_, err = NewRegistry(fakePlugin{Manifest{Name: "a"}}, fakePlugin{Manifest{Name: "a"}})
	require.Error(t, err)
}

func TestConfigSettings(t *testing.T) {
	cfg := Config{
		UserAgent:         "mmry/1.0",
		RequestsPerSecond: 5,
		TimeoutSeconds:    10,
		Plugins: map[string]PluginConfig{
			"github-stars": {ItemLimit: 10, BaseURL: "http://localhost:8080"},
		},
	}

	s := cfg.Settings("github-stars", nil)
	require.Equal(t, 10, s.ItemLimit)
	require.False(t, s.LimitReached(9))
	require.True(t, s.LimitReached(10))
	require.Equal(t, 10*time.Second, s.HTTP.Timeout)

	opts := s.HTTPOptions("https://api.github.com", "github")
	require.Equal(t, "http://localhost:8080", opts.BaseURL)
	require.Equal(t, "mmry/1.0", opts.UserAgent)
	require.Equal(t, "github", opts.Tracer)

	other := cfg.Settings("raindrop", nil)
	require.False(t, other.LimitReached(1000))
	require.Equal(t, "https://api.raindrop.io", other.HTTPOptions("https://api.raindrop.io", "").BaseURL)
}

func TestRequireInput(t *testing.T) {
	run := testutil.SetupRun(t, testutil.RunParams{
		Inputs: []mmry.Input{{ID: "present", Value: "value"}},
	})

	value, err := RequireInput(run.Client, "present", "unused")
	require.NoError(t, err)
	require.Equal(t, "value", value)

	_, err = RequireInput(run.Client, "absent", "Absent is required")
	require.ErrorIs(t, err, ErrMissingInput)
	require.Equal(t, "Absent is required", run.Status(t))
}
