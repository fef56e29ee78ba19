package itemdb

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/mmry-org/mmry-plugins/lib/mmry"

	"github.com/stretchr/testify/require"
)

func TestStore(t *testing.T) {
	db, err := OpenDB(filepath.Join(t.TempDir(), "nested", "items.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	store := NewStore(db)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()

	now := time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC)
	err = store.Upsert(ctx, now, []mmry.StoredItem{
		{ID: "b", Item: mmry.Item{Content: "second", Collection: "youtube"}},
		{ID: "a", Item: mmry.Item{
			Content:    "first",
			ExternalID: "123",
			URLs:       []string{"https://github.com/mmry-org/mmry"},
			Metadata:   map[string]any{"language": "Go"},
		}},
	})
	if err != nil {
		t.Fatal(err)
	}

	count, err := store.Count(ctx)
	if err != nil {
		t.Fatal(err)
	}
	require.Equal(t, 2, count)

	err = store.Upsert(ctx, now.Add(time.Hour), []mmry.StoredItem{
		{ID: "b", Item: mmry.Item{Content: "second, edited", Collection: "youtube"}},
	})
	if err != nil {
		t.Fatal(err)
	}

	rows, err := store.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	require.Equal(t, []Row{
		{ID: "a", ExternalID: "123", Content: "first"},
		{ID: "b", Collection: "youtube", Content: "second, edited"},
	}, rows)

	var metadata string
	err = db.QueryRowContext(ctx, "select metadata from items where id = 'a'").Scan(&metadata)
	if err != nil {
		t.Fatal(err)
	}
	require.JSONEq(t, `{"language": "Go"}`, metadata)
}

func TestOpenDBRequiresPath(t *testing.T) {
	_, err := OpenDB("")
	require.Error(t, err)
}

func TestConfigDSN(t *testing.T) {
	require.Equal(t, DefaultFile, Config{}.DSN())
	require.Equal(t, "items.db", Config{File: "items.db"}.DSN())
	require.Equal(t, "libsql://mmry.turso.io", Config{File: "items.db", Url: "libsql://mmry.turso.io"}.DSN())
	require.Equal(
		t,
		"libsql://mmry.turso.io?authToken=a+b",
		Config{Url: "libsql://mmry.turso.io", AuthToken: "a b"}.DSN(),
	)
}
