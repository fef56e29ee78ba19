package raindrop

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/mmry-org/mmry-plugins/internal/components/telemetry"
	"github.com/mmry-org/mmry-plugins/lib/mmry"
	"github.com/mmry-org/mmry-plugins/lib/testutil"
	"github.com/mmry-org/mmry-plugins/plugins"

	"github.com/stretchr/testify/require"
)

type fakeRaindrop struct {
	lock        sync.Mutex
	collections []collection
	children    []collection
	// collection id -> pages
	pages map[string][][]bookmark
	// collection ids answering with result=false
	broken   map[string]bool
	requests []string
}

func (f *fakeRaindrop) writeJSON(w http.ResponseWriter, value any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(value)
}

func (f *fakeRaindrop) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.requests = append(f.requests, r.URL.RequestURI())

	if r.Header.Get("Authorization") != "Bearer rd_test" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	switch {
	case r.URL.Path == "/collections":
		f.writeJSON(w, apiResponse[collection]{Result: true, Items: f.collections})
	case r.URL.Path == "/collections/childrens":
		f.writeJSON(w, apiResponse[collection]{Result: true, Items: f.children})
	case strings.HasPrefix(r.URL.Path, "/raindrops/"):
		cid := strings.TrimPrefix(r.URL.Path, "/raindrops/")
		if f.broken[cid] {
			f.writeJSON(w, apiResponse[bookmark]{Result: false})
			return
		}
		page := 0
		json.Unmarshal([]byte(r.URL.Query().Get("page")), &page)
		items := []bookmark{}
		if page < len(f.pages[cid]) {
			items = f.pages[cid][page]
		}
		f.writeJSON(w, apiResponse[bookmark]{Result: true, Items: items})
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func newFake() *fakeRaindrop {
	return &fakeRaindrop{
		collections: []collection{
			{ID: 10, Title: "Read Later"},
			{ID: -1, Title: "Unsorted"},
		},
		children: []collection{
			{ID: 11, Title: "Go"},
		},
		pages: map[string][][]bookmark{
			"10": {{
				{
					ID:         1,
					Collection: collectionRef{ID: 10},
					Created:    "2024-01-01T00:00:00.000Z",
					LastUpdate: "2024-01-05T00:00:00.000Z",
					Link:       "https://go.dev/blog",
					Title:      "The Go Blog",
					Excerpt:    "News from the Go team",
					Tags:       []string{"go", "blog"},
				},
				{
					ID:         2,
					Collection: collectionRef{ID: 99},
					Created:    "2024-01-02T00:00:00.000Z",
					Title:      "misplaced",
				},
				{
					ID:         3,
					Collection: collectionRef{ID: 10},
					Created:    "2024-01-03T00:00:00.000Z",
					LastUpdate: "2024-01-03T00:00:00.000Z",
					Link:       "https://example.com",
					Title:      "Example",
					Note:       "remember this",
				},
			}},
			"11": {{
				{
					ID:         4,
					Collection: collectionRef{ID: 11},
					Created:    "2024-02-01T00:00:00.000Z",
					LastUpdate: "2024-02-01T00:00:00.000Z",
					Link:       "https://pkg.go.dev",
					Title:      "Go Packages",
				},
			}},
		},
		broken: map[string]bool{},
	}
}

func setup(t *testing.T, fake *fakeRaindrop, inputs []mmry.Input, settings plugins.Settings) (testutil.RunResult, Plugin) {
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)

	run := testutil.SetupRun(t, testutil.RunParams{Inputs: inputs})
	settings.BaseURL = server.URL
	settings.HTTP.RequestsPerSecond = -1
	return run, New(settings)
}

var tokenInput = mmry.Input{ID: InputToken, Value: "rd_test"}

func TestSync(t *testing.T) {
	ctx := context.Background()
	fake := newFake()
	run, plugin := setup(t, fake, []mmry.Input{tokenInput}, plugins.Settings{})

	err := plugin.Run(ctx, run.Client)
	if err != nil {
		t.Fatal(err)
	}
	require.Equal(t, "3 new bookmarks imported", run.Status(t))
	require.True(t, run.Tel.Has(telemetry.LevelWarning, report_sync_collection))

	items := run.Items(t)
	require.Equal(t, []mmry.Item{
		{
			ExternalID: "raindrop-1",
			Content: "Title: The Go Blog\n" +
				"URL: https://go.dev/blog\n" +
				"Excerpt: News from the Go team\n" +
				"Note: \n" +
				"Tags: go, blog",
			CreatedAt: "2024-01-01T00:00:00.000Z",
			UpdatedAt: "2024-01-05T00:00:00.000Z",
			Href:      "https://go.dev/blog",
		},
		{
			ExternalID: "raindrop-3",
			Content: "Title: Example\n" +
				"URL: https://example.com\n" +
				"Excerpt: \n" +
				"Note: remember this\n" +
				"Tags: ",
			CreatedAt: "2024-01-03T00:00:00.000Z",
			UpdatedAt: "2024-01-03T00:00:00.000Z",
			Href:      "https://example.com",
		},
		{
			ExternalID: "raindrop-4",
			Content: "Title: Go Packages\n" +
				"URL: https://pkg.go.dev\n" +
				"Excerpt: \n" +
				"Note: \n" +
				"Tags: ",
			CreatedAt: "2024-02-01T00:00:00.000Z",
			UpdatedAt: "2024-02-01T00:00:00.000Z",
			Href:      "https://pkg.go.dev",
		},
	}, items)

	store, err := run.Client.State()
	if err != nil {
		t.Fatal(err)
	}
	state, err := mmry.LoadState(store, State{})
	if err != nil {
		t.Fatal(err)
	}
	require.Len(t, state.Collections, 2)
	require.Equal(t, "2024-01-03T00:00:00.000Z", *state.Collections["10"].LastSyncedTimestamp)
	require.Equal(t, 1, state.Collections["10"].LastSyncedPage)
	require.Equal(t, "2024-02-01T00:00:00.000Z", *state.Collections["11"].LastSyncedTimestamp)

	// a second run resumes from the empty page and finds nothing new
	fake.requests = nil
	err = plugin.Run(ctx, run.Client)
	if err != nil {
		t.Fatal(err)
	}
	require.Equal(t, "0 new bookmarks imported", run.Status(t))
	require.Len(t, run.Items(t), 3)
	require.Contains(t, fake.requests, "/raindrops/10?page=1&perpage=50&sort=created")
	require.NotContains(t, fake.requests, "/raindrops/10?page=0&perpage=50&sort=created")
}

func TestSyncNewBookmarksOnKnownPage(t *testing.T) {
	ctx := context.Background()
	fake := newFake()
	run, plugin := setup(t, fake, []mmry.Input{tokenInput}, plugins.Settings{})

	err := plugin.Run(ctx, run.Client)
	if err != nil {
		t.Fatal(err)
	}

	fake.pages["11"] = append(fake.pages["11"], []bookmark{{
		ID:         5,
		Collection: collectionRef{ID: 11},
		Created:    "2024-03-01T00:00:00.000Z",
		Link:       "https://go.dev/doc",
		Title:      "Docs",
	}})

	err = plugin.Run(ctx, run.Client)
	if err != nil {
		t.Fatal(err)
	}
	require.Equal(t, "1 new bookmarks imported", run.Status(t))
	items := run.Items(t)
	require.Equal(t, "raindrop-5", items[len(items)-1].ExternalID)
}

func TestSyncNullCollectionState(t *testing.T) {
	fake := newFake()
	run, plugin := setup(t, fake, []mmry.Input{tokenInput}, plugins.Settings{})
	err := os.WriteFile(
		filepath.Join(run.RunDir, "data.json"),
		[]byte(`{"collections": {"10": null}}`),
		0600,
	)
	if err != nil {
		t.Fatal(err)
	}

	err = plugin.Run(context.Background(), run.Client)
	if err != nil {
		t.Fatal(err)
	}
	require.Equal(t, "3 new bookmarks imported", run.Status(t))

	store, err := run.Client.State()
	if err != nil {
		t.Fatal(err)
	}
	state, err := mmry.LoadState(store, State{})
	if err != nil {
		t.Fatal(err)
	}
	require.NotNil(t, state.Collections["10"])
	require.Equal(t, "2024-01-03T00:00:00.000Z", *state.Collections["10"].LastSyncedTimestamp)
}

func TestSyncCollectionFilter(t *testing.T) {
	run, plugin := setup(t, newFake(), []mmry.Input{
		tokenInput,
		{ID: InputCollections, Value: "read later"},
	}, plugins.Settings{})

	err := plugin.Run(context.Background(), run.Client)
	if err != nil {
		t.Fatal(err)
	}
	require.Equal(t, "2 new bookmarks imported", run.Status(t))
}

func TestSyncBrokenCollection(t *testing.T) {
	fake := newFake()
	fake.broken["10"] = true
	run, plugin := setup(t, fake, []mmry.Input{tokenInput}, plugins.Settings{})

	err := plugin.Run(context.Background(), run.Client)
	if err != nil {
		t.Fatal(err)
	}
	require.Equal(t, "1 new bookmarks imported", run.Status(t))
}

func TestSyncNoCollections(t *testing.T) {
	fake := newFake()
	fake.collections = []collection{{ID: -99, Title: "Trash"}}
	fake.children = nil
	run, plugin := setup(t, fake, []mmry.Input{tokenInput}, plugins.Settings{})

	err := plugin.Run(context.Background(), run.Client)
	require.NoError(t, err)
	require.Equal(t, "No user collections found to sync.", run.Status(t))
	require.Empty(t, run.Items(t))
}

func TestSyncItemLimit(t *testing.T) {
	run, plugin := setup(t, newFake(), []mmry.Input{tokenInput}, plugins.Settings{ItemLimit: 1})

	err := plugin.Run(context.Background(), run.Client)
	if err != nil {
		t.Fatal(err)
	}
	require.Len(t, run.Items(t), 1)
}

func TestSyncErrors(t *testing.T) {
	run, plugin := setup(t, newFake(), nil, plugins.Settings{})
	err := plugin.Run(context.Background(), run.Client)
	require.ErrorIs(t, err, plugins.ErrMissingInput)
	require.Equal(t, "Raindrop API token is required", run.Status(t))

	run, plugin = setup(t, newFake(), []mmry.Input{{ID: InputToken, Value: "wrong"}}, plugins.Settings{})
	err = plugin.Run(context.Background(), run.Client)
	require.Error(t, err)
	require.Equal(t, "Failed to fetch collections", run.Status(t))
}

func TestFilterCollections(t *testing.T) {
	collections := []collection{
		{ID: 1, Title: "Read Later"},
		{ID: 2, Title: "Recipes"},
		{ID: 3, Title: "golang"},
	}
	require.Equal(t, collections, filterCollections(collections, nil))
	require.Equal(
		t,
		[]collection{{ID: 1, Title: "Read Later"}, {ID: 3, Title: "golang"}},
		filterCollections(collections, []string{"readlater", "Golang "}),
	)
	require.Empty(t, filterCollections(collections, []string{"music"}))
}
