package githubstars

import (
	"context"
	_ "embed"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mmry-org/mmry-plugins/lib/mmry"
	"github.com/mmry-org/mmry-plugins/lib/testutil"
	"github.com/mmry-org/mmry-plugins/plugins"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

//go:embed testdata/starred.json
var starredPage []byte

type fakeGithub struct {
	status   int
	requests []string
}

func (f *fakeGithub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.requests = append(f.requests, r.URL.RequestURI())
	if r.Header.Get("Authorization") != "Bearer ghp_test" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	if f.status != 0 {
		w.WriteHeader(f.status)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if r.URL.Query().Get("page") != "1" {
		w.Write([]byte("[]"))
		return
	}
	w.Write(starredPage)
}

func setup(t *testing.T, token string, settings plugins.Settings) (*fakeGithub, testutil.RunResult, Plugin) {
	fake := &fakeGithub{}
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)

	var inputs []mmry.Input
	if token != "" {
		inputs = append(inputs, mmry.Input{ID: InputToken, Value: token})
	}
	run := testutil.SetupRun(t, testutil.RunParams{Inputs: inputs})

	settings.BaseURL = server.URL
	settings.HTTP.RequestsPerSecond = -1
	return fake, run, New(settings)
}

func TestSync(t *testing.T) {
	ctx := context.Background()
	fake, run, plugin := setup(t, "ghp_test", plugins.Settings{})

	err := plugin.Run(ctx, run.Client)
	if err != nil {
		t.Fatal(err)
	}
	require.Equal(t, "3 new stars imported", run.Status(t))
	require.Equal(t, []string{
		"/user/starred?direction=asc&page=1&per_page=100&sort=created",
	}, fake.requests)

	items := run.Items(t)
	require.Len(t, items, 3)

	expected := mmry.Item{
		ExternalID: "1296269",
		Content: "Title: Hello-World\n" +
			"Description: This your first repo!\n" +
			"Language: Go\n" +
			"Stars: 80\n" +
			"Forks: 9\n" +
			"Topics: octocat, atom, api\n" +
			"Owner: octocat",
		CreatedAt: "2024-01-02T10:00:00Z",
		UpdatedAt: "2024-01-01T12:00:00Z",
		URLs: []string{
			"https://github.com/octocat/Hello-World",
			"https://github.com/octocat/Hello-World/blob/master/README.md",
			"https://github.com",
		},
		Metadata: map[string]any{
			"language":       "Go",
			"starCount":      float64(80),
			"forkCount":      float64(9),
			"topics":         []any{"octocat", "atom", "api"},
			"owner":          "octocat",
			"repositoryName": "Hello-World",
			"fullName":       "octocat/Hello-World",
		},
	}
	if diff := cmp.Diff(expected, items[0]); diff != "" {
		t.Fatal(diff)
	}

	require.Equal(t, "Title: bare\n"+
		"Description: No description\n"+
		"Language: Not specified\n"+
		"Stars: 0\n"+
		"Forks: 0\n"+
		"Owner: someone", items[1].Content)
	require.Nil(t, items[1].Metadata["language"])
	require.Equal(t, []any{}, items[1].Metadata["topics"])
	require.Equal(t, []string{
		"https://github.com/someone/bare",
		"https://github.com/someone/bare/blob/main/README.md",
	}, items[1].URLs)

	state, err := run.Client.State()
	if err != nil {
		t.Fatal(err)
	}
	cursor, ok, err := state.Cursor(CursorKey).Get(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "2024-03-04T10:00:00Z", cursor)
}

func TestSyncCaughtUp(t *testing.T) {
	ctx := context.Background()
	_, run, plugin := setup(t, "ghp_test", plugins.Settings{})

	state, err := run.Client.State()
	if err != nil {
		t.Fatal(err)
	}
	err = state.Cursor(CursorKey).Set(ctx, "2024-01-02T10:00:00Z")
	if err != nil {
		t.Fatal(err)
	}

	err = plugin.Run(ctx, run.Client)
	if err != nil {
		t.Fatal(err)
	}
	require.Equal(t, "0 new stars imported", run.Status(t))
	require.Empty(t, run.Items(t))
}

func TestSyncItemLimit(t *testing.T) {
	_, run, plugin := setup(t, "ghp_test", plugins.Settings{ItemLimit: 2})

	err := plugin.Run(context.Background(), run.Client)
	if err != nil {
		t.Fatal(err)
	}
	require.Len(t, run.Items(t), 2)
	require.Equal(t, "2 new stars imported", run.Status(t))
}

func TestSyncMissingToken(t *testing.T) {
	_, run, plugin := setup(t, "", plugins.Settings{})

	err := plugin.Run(context.Background(), run.Client)
	require.ErrorIs(t, err, plugins.ErrMissingInput)
	require.Equal(t, "GitHub token is required", run.Status(t))
}

func TestSyncApiErrors(t *testing.T) {
	cases := []struct {
		token  string
		status int
		expect string
	}{
		{token: "wrong", expect: "Invalid GitHub token - check your permissions"},
		{token: "ghp_test", status: http.StatusForbidden, expect: "Rate limit exceeded - try again later"},
		{token: "ghp_test", status: http.StatusBadGateway, expect: "GitHub API error: 502"},
	}

	for _, test := range cases {
		fake, run, plugin := setup(t, test.token, plugins.Settings{})
		fake.status = test.status

		err := plugin.Run(context.Background(), run.Client)
		require.Error(t, err)
		require.Equal(t, test.expect, run.Status(t))
		require.Empty(t, run.Items(t))
	}
}

func TestSyncTransportError(t *testing.T) {
	_, run, plugin := setup(t, "ghp_test", plugins.Settings{})
	plugin.settings.BaseURL = "http://127.0.0.1:1"

	err := plugin.Run(context.Background(), run.Client)
	require.Error(t, err)
	require.Equal(t, "Failed to fetch starred repositories", run.Status(t))
}

func TestManifest(t *testing.T) {
	m := New(plugins.Settings{}).Manifest()
	require.Equal(t, "github-stars", m.Name)
	require.Len(t, m.Inputs, 1)
	require.Equal(t, InputToken, m.Inputs[0].ID)
	require.True(t, m.Inputs[0].Required)
}
