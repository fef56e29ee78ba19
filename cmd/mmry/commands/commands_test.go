package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mmry-org/mmry-plugins/lib/itemdb"
	"github.com/mmry-org/mmry-plugins/lib/mmry"
	"github.com/mmry-org/mmry-plugins/plugins"

	"github.com/stretchr/testify/require"
)

const likes = `window.YTD.like.part0 = [
  {"like": {"tweetId": "1", "fullText": "first like", "expandedUrl": "https://twitter.com/i/web/status/1"}},
  {"like": {"tweetId": "2", "fullText": "second like"}}
];`

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func writeFile(t *testing.T, path, contents string) {
	t.Helper()
	err := os.MkdirAll(filepath.Dir(path), 0755)
	if err != nil {
		t.Fatal(err)
	}
	err = os.WriteFile(path, []byte(contents), 0644)
	if err != nil {
		t.Fatal(err)
	}
}

func setInputs(t *testing.T, inputs ...mmry.Input) {
	t.Helper()
	contents, err := json.Marshal(inputs)
	if err != nil {
		t.Fatal(err)
	}
	t.Setenv(mmry.EnvInputs, string(contents))
}

func TestPluginsCommand(t *testing.T) {
	out, err := execute(t, "plugins")
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"github-stars", "raindrop", "twitter-export", "twitter-tweets", "youtube"} {
		require.Contains(t, out, name)
	}
	require.Contains(t, out, "GITHUB_TOKEN (secret) required")
}

func TestRunAndInspect(t *testing.T) {
	dir := t.TempDir()
	runDir := filepath.Join(dir, "run")
	exportDir := filepath.Join(dir, "export")
	config := filepath.Join(dir, "mmry.json5")

	writeFile(t, filepath.Join(exportDir, "data", "like.js"), likes)
	writeFile(t, config, `{
		// json5 comments are fine
		plugins: {
			"twitter-export": {item_limit: 0},
		},
	}`)
	setInputs(t, mmry.Input{ID: "twitter-data-export", Value: exportDir})

	_, err := execute(t, "run", "twitter-export", "--run-dir", runDir, "--config", config)
	if err != nil {
		t.Fatal(err)
	}

	out, err := execute(t, "items", "--run-dir", runDir)
	if err != nil {
		t.Fatal(err)
	}
	require.Contains(t, out, "first like")
	require.Contains(t, out, "second like")
	require.Contains(t, out, "twitter:likes")

	out, err = execute(t, "state", "--run-dir", runDir)
	if err != nil {
		t.Fatal(err)
	}
	require.Contains(t, out, "seenLikeIds")

	dbPath := filepath.Join(dir, "items.db")
	out, err = execute(t, "export", "--run-dir", runDir, "--db", dbPath)
	if err != nil {
		t.Fatal(err)
	}
	require.Contains(t, out, "exported 2 items, the database now holds 2 items")

	db, err := itemdb.OpenDB(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	rows, err := itemdb.NewStore(db).List(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	var contents []string
	for _, row := range rows {
		contents = append(contents, row.Content)
	}
	require.ElementsMatch(t, []string{"first like", "second like"}, contents)

	// a rerun only reports, nothing new is written
	_, err = execute(t, "run", "twitter-export", "--run-dir", runDir, "--config", config)
	if err != nil {
		t.Fatal(err)
	}
	out, err = execute(t, "export", "--run-dir", runDir, "--db", dbPath)
	if err != nil {
		t.Fatal(err)
	}
	require.Contains(t, out, "exported 2 items, the database now holds 2 items")
}

func TestRunErrors(t *testing.T) {
	runDir := t.TempDir()
	config := filepath.Join(runDir, "mmry.json5")
	writeFile(t, config, `{}`)
	setInputs(t)

	_, err := execute(t, "run", "bookmarks", "--run-dir", runDir, "--config", config)
	require.ErrorContains(t, err, "unknown plugin 'bookmarks'")

	_, err = execute(t, "run", "twitter-export", "--run-dir", runDir, "--config", config)
	require.ErrorIs(t, err, plugins.ErrMissingInput)

	_, err = execute(t, "run")
	require.Error(t, err)
}

func TestPreview(t *testing.T) {
	require.Equal(t, "a b c", preview("a\n b\t\tc "))

	long := bytes.Repeat([]byte("x"), 100)
	p := preview(string(long))
	require.Len(t, []rune(p), previewLength)
	require.Equal(t, "...", p[len(p)-3:])
}

func TestExportFromConfig(t *testing.T) {
	dir := t.TempDir()
	runDir := filepath.Join(dir, "run")
	dbPath := filepath.Join(dir, "configured.db")
	config := filepath.Join(dir, "mmry.json5")
	writeFile(t, config, `{export: {file: "`+filepath.ToSlash(dbPath)+`"}}`)
	writeFile(t, filepath.Join(runDir, "out", "item.json"), `{"content": "hello", "collection": "notes"}`)

	out, err := execute(t, "export", "--run-dir", runDir, "--config", config)
	if err != nil {
		t.Fatal(err)
	}
	require.Contains(t, out, "exported 1 items, the database now holds 1 items")
	require.FileExists(t, dbPath)
}

func TestRunScheduled(t *testing.T) {
	dir := t.TempDir()
	runDir := filepath.Join(dir, "run")
	exportDir := filepath.Join(dir, "export")
	config := filepath.Join(dir, "mmry.json5")
	writeFile(t, filepath.Join(exportDir, "data", "like.js"), likes)
	writeFile(t, config, `{}`)
	setInputs(t, mmry.Input{ID: "twitter-data-export", Value: exportDir})

	g := &globals{runDir: runDir, config: config}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- g.runScheduled(ctx, "twitter-export", "@every 1s")
	}()

	require.Eventually(t, func() bool {
		client, err := g.client()
		if err != nil {
			return false
		}
		items, err := client.OutputItems().Collect()
		return err == nil && len(items) == 2
	}, 10*time.Second, 100*time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	err := g.runScheduled(context.Background(), "twitter-export", "whenever")
	require.ErrorContains(t, err, "invalid schedule")
}
