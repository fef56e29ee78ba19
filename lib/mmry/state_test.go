package mmry

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/mmry-org/mmry-plugins/internal/components/telemetry"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestStateSingleton(t *testing.T) {
	c, _ := newTestClient(t, testEnv{})

	first, err := c.State()
	if err != nil {
		t.Fatal(err)
	}
	second, err := c.State()
	if err != nil {
		t.Fatal(err)
	}
	require.Same(t, first, second)
	require.Equal(t, filepath.Join(c.RunDir(), "data.json"), first.Path())
	require.Empty(t, first.Keys())
}

func TestStateRoundTrip(t *testing.T) {
	c, _ := newTestClient(t, testEnv{})
	state, err := c.State()
	if err != nil {
		t.Fatal(err)
	}

	err = state.Set("lastSeenStarTimestamp", "2024-01-01T00:00:00Z")
	if err != nil {
		t.Fatal(err)
	}
	err = state.Set("seen", []string{"a", "b"})
	if err != nil {
		t.Fatal(err)
	}
	err = state.Write()
	if err != nil {
		t.Fatal(err)
	}

	_, err = os.Stat(state.Path() + ".tmp")
	require.ErrorIs(t, err, os.ErrNotExist)

	reopened, err := New(Options{RunDir: c.RunDir(), Tel: telemetry.NewRecorder(t.Logf)})
	if err != nil {
		t.Fatal(err)
	}
	other, err := reopened.State()
	if err != nil {
		t.Fatal(err)
	}
	require.Equal(t, []string{"lastSeenStarTimestamp", "seen"}, other.Keys())

	var seen []string
	ok, err := other.Get("seen", &seen)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []string{"a", "b"}, seen)

	var missing string
	ok, err = other.Get("missing", &missing)
	require.NoError(t, err)
	require.False(t, ok)

	other.Delete("seen")
	require.Equal(t, []string{"lastSeenStarTimestamp"}, other.Keys())
}

func TestStateSnapshotIsCopy(t *testing.T) {
	c, _ := newTestClient(t, testEnv{})
	state, err := c.State()
	if err != nil {
		t.Fatal(err)
	}
	err = state.Set("page", 3)
	if err != nil {
		t.Fatal(err)
	}

	snapshot := state.Snapshot()
	snapshot["page"][0] = '9'
	delete(snapshot, "page")

	var page int
	_, err = state.Get("page", &page)
	require.NoError(t, err)
	require.Equal(t, 3, page)
}

func TestStateCorrupt(t *testing.T) {
	c, rec := newTestClient(t, testEnv{})
	err := os.WriteFile(filepath.Join(c.RunDir(), "data.json"), []byte("{not json"), 0600)
	if err != nil {
		t.Fatal(err)
	}

	_, err = c.State()
	require.Error(t, err)
	require.True(t, rec.Has(telemetry.LevelBroken, report_state_read))

	// the failure is remembered
	_, again := c.State()
	require.Equal(t, err, again)
}

type raindropState struct {
	Collections map[string]collectionState `json:"collections"`
	Version     int                        `json:"version"`
}

type collectionState struct {
	LastSyncedTimestamp *string `json:"lastSyncedTimestamp"`
	LastSyncedPage      int     `json:"lastSyncedPage"`
}

func TestLoadSaveState(t *testing.T) {
	c, _ := newTestClient(t, testEnv{})
	state, err := c.State()
	if err != nil {
		t.Fatal(err)
	}
	err = state.Set("unrelated", true)
	if err != nil {
		t.Fatal(err)
	}

	defaults := raindropState{Collections: map[string]collectionState{}, Version: 1}
	loaded, err := LoadState(state, defaults)
	if err != nil {
		t.Fatal(err)
	}
	require.Equal(t, defaults, loaded)

	ts := "2024-02-01T10:00:00.000Z"
	loaded.Collections["12"] = collectionState{LastSyncedTimestamp: &ts, LastSyncedPage: 2}
	err = SaveState(state, loaded)
	if err != nil {
		t.Fatal(err)
	}

	err = state.Read()
	if err != nil {
		t.Fatal(err)
	}
	require.Equal(t, []string{"collections", "unrelated", "version"}, state.Keys())

	reloaded, err := LoadState(state, raindropState{Version: 1})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(loaded, reloaded); diff != "" {
		t.Fatal(diff)
	}

	err = SaveState(state, []int{1, 2})
	require.Error(t, err)
}

func TestCursor(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestClient(t, testEnv{})
	state, err := c.State()
	if err != nil {
		t.Fatal(err)
	}

	cursor := state.Cursor("lastSeenStarTimestamp")
	require.Equal(t, "lastSeenStarTimestamp", cursor.Name())

	_, ok, err := cursor.Get(ctx)
	require.NoError(t, err)
	require.False(t, ok)

	err = cursor.Set(ctx, "2024-05-01T00:00:00Z")
	if err != nil {
		t.Fatal(err)
	}

	contents, err := os.ReadFile(state.Path())
	if err != nil {
		t.Fatal(err)
	}
	var onDisk map[string]any
	err = json.Unmarshal(contents, &onDisk)
	if err != nil {
		t.Fatal(err)
	}
	require.Equal(t, "2024-05-01T00:00:00Z", onDisk["lastSeenStarTimestamp"])

	value, ok, err := cursor.Get(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "2024-05-01T00:00:00Z", value)

	err = cursor.Clear(ctx)
	if err != nil {
		t.Fatal(err)
	}
	_, ok, err = cursor.Get(ctx)
	require.NoError(t, err)
	require.False(t, ok)
	require.Contains(t, state.Keys(), "lastSeenStarTimestamp")

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	require.ErrorIs(t, cursor.Set(cancelled, "x"), context.Canceled)
}
