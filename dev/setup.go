package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	devenv "github.com/mmry-org/mmry-plugins/dev/env"
	"github.com/mmry-org/mmry-plugins/lib/itemdb"
)

const (
	runDir  = "<dev_state>/run"
	itemsDB = "<dev_state>/items.db"
)

const sampleConfig = `{
  // requests and responses of every plugin run are written here
  http_dump_dir: "<dev_state>/http",
  requests_per_second: 2,
  timeout_seconds: 30,
  plugins: {
    "github-stars": {item_limit: 50},
    "raindrop": {item_limit: 50},
  },
}
`

func CreateRunDir() error {
	dir, err := devenv.ResolvePath(runDir)
	if err != nil {
		return err
	}
	for _, sub := range []string{"in", "out"} {
		err = os.MkdirAll(filepath.Join(dir, sub), 0777)
		if err != nil {
			return err
		}
	}
	fmt.Println("run directory at", dir)
	return nil
}

func CreateItemsDB() error {
	path, err := devenv.ResolvePath(itemsDB)
	if err != nil {
		return err
	}

	_, err = os.Stat(path)
	if err == nil {
		fmt.Println("database already created at", path)
		return nil
	}

	fmt.Println("creating database at", path)
	db, err := itemdb.OpenDB(path)
	if err != nil {
		return err
	}
	return db.Close()
}

// CreateConfig writes a local mmry config to the repository root, an existing
// one is left alone.
func CreateConfig() error {
	root, err := devenv.GetWorkspaceRoot()
	if err != nil {
		return err
	}
	path := filepath.Join(root, "mmry.local.json5")
	_, err = os.Stat(path)
	if err == nil {
		fmt.Println("config already created at", path)
		return nil
	}
	fmt.Println("creating config at", path)
	return os.WriteFile(path, []byte(sampleConfig), 0644)
}

func PrintUsage() {
	dir, _ := devenv.ResolvePath(runDir)
	slog.Info(fmt.Sprintf("run a plugin with `MMRY_INPUTS='[...]' go run ./cmd/mmry run <plugin> --run-dir %s`", dir))
}
