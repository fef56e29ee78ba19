package testutil

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/mmry-org/mmry-plugins/internal/components/chrono"
	"github.com/mmry-org/mmry-plugins/internal/components/telemetry"
	"github.com/mmry-org/mmry-plugins/lib/mmry"
)

// Now is the clock of every test run.
var Now = time.Date(2024, time.June, 9, 12, 0, 0, 0, time.UTC)

type RunParams struct {
	// Inputs become MMRY_INPUTS.
	Inputs []mmry.Input
	// if unspecified, a new temporary directory is used
	RunDir string
}

type RunResult struct {
	Client *mmry.Client
	Tel    *telemetry.Recorder
	RunDir string
}

// SetupRun creates an SDK client for a plugin run in a temporary directory, the
// environment is isolated from the process's.
func SetupRun(t testing.TB, params RunParams) RunResult {
	t.Helper()

	runDir := params.RunDir
	if runDir == "" {
		runDir = t.TempDir()
	}

	env := map[string]string{}
	if params.Inputs != nil {
		inputs, err := json.Marshal(params.Inputs)
		if err != nil {
			t.Fatal(err)
		}
		env[mmry.EnvInputs] = string(inputs)
	}

	counter := 0
	tel := telemetry.NewRecorder(t.Logf)
	client, err := mmry.New(mmry.Options{
		RunDir: runDir,
		LookupEnv: func(key string) (string, bool) {
			v, ok := env[key]
			return v, ok
		},
		Environ: func() []string {
			var out []string
			for k, v := range env {
				out = append(out, k+"="+v)
			}
			return out
		},
		Tel:  tel,
		Time: chrono.NewFixedImpl(Now),
		NewID: func() string {
			counter++
			return fmt.Sprintf("%04d", counter)
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	return RunResult{Client: client, Tel: tel, RunDir: runDir}
}

// Items reads back every item written by the run, in the order they were added.
func (r RunResult) Items(t testing.TB) []mmry.Item {
	t.Helper()
	stored, err := r.Client.OutputItems().Collect()
	if err != nil {
		t.Fatal(err)
	}
	items := make([]mmry.Item, len(stored))
	for i, s := range stored {
		items[i] = s.Item
		items[i].ID = ""
	}
	return items
}

// Status returns the last status message of the run.
func (r RunResult) Status(t testing.TB) string {
	t.Helper()
	status, _, err := r.Client.LastStatus()
	if err != nil {
		t.Fatal(err)
	}
	return status.Message
}
