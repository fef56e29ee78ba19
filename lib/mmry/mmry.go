// Package mmry is the SDK every plugin runs against.
//
// A plugin run is described entirely by its environment: MMRY_RUN_DIR holds the
// persisted state (data.json), the status file and the out/ directory items are
// written to, MMRY_INPUTS holds the user supplied inputs as a JSON array.
package mmry

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/mmry-org/mmry-plugins/internal/components/chrono"
	"github.com/mmry-org/mmry-plugins/internal/components/telemetry"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
)

const (
	EnvRunDir = "MMRY_RUN_DIR"
	EnvInputs = "MMRY_INPUTS"
	EnvInDir  = "MMRY_IN_DIR"

	stateFile  = "data.json"
	statusFile = "status.json"
	outDir     = "out"
	inDir      = "in"
)

const report_client_info = "client.info"

var tracer = otel.Tracer("mmry-plugins/lib/mmry")

var ErrNoRunDir = fmt.Errorf("mmry: %s is not set", EnvRunDir)

type Options struct {
	// RunDir is required.
	RunDir string
	// InDir defaults to <RunDir>/in.
	InDir string
	// LookupEnv defaults to os.LookupEnv.
	LookupEnv func(key string) (string, bool)
	// Environ defaults to os.Environ.
	Environ func() []string
	// Tel defaults to a SlogAPI on slog.Default().
	Tel telemetry.API
	// Time defaults to the system clock.
	Time chrono.API
	// NewID names new item files, defaults to random uuids.
	NewID func() string
}

type Client struct {
	runDir string
	inDir  string
	outDir string

	lookupEnv func(string) (string, bool)
	environ   func() []string
	tel       telemetry.API
	time      chrono.API
	newID     func() string

	stateOnce sync.Once
	state     *State
	stateErr  error
}

func New(opts Options) (*Client, error) {
	if opts.RunDir == "" {
		return nil, ErrNoRunDir
	}
	runDir, err := filepath.Abs(opts.RunDir)
	if err != nil {
		return nil, fmt.Errorf("mmry: resolve run dir: %w", err)
	}

	c := &Client{
		runDir:    runDir,
		inDir:     opts.InDir,
		outDir:    filepath.Join(runDir, outDir),
		lookupEnv: opts.LookupEnv,
		environ:   opts.Environ,
		tel:       opts.Tel,
		time:      opts.Time,
		newID:     opts.NewID,
	}
	if c.inDir == "" {
		c.inDir = filepath.Join(runDir, inDir)
	}
	if c.lookupEnv == nil {
		c.lookupEnv = os.LookupEnv
	}
	if c.environ == nil {
		c.environ = os.Environ
	}
	if c.tel == nil {
		c.tel = telemetry.NewSlogAPI(nil)
	}
	c.tel = telemetry.NewScopedAPI("mmry", c.tel)
	if c.time == nil {
		c.time = chrono.NewStandardImpl()
	}
	if c.newID == nil {
		c.newID = uuid.NewString
	}

	return c, nil
}

// FromEnv creates a client from MMRY_RUN_DIR and MMRY_IN_DIR, `runDir` overrides
// MMRY_RUN_DIR when it is not empty.
func FromEnv(runDir string, tel telemetry.API) (*Client, error) {
	if runDir == "" {
		runDir = os.Getenv(EnvRunDir)
	}
	return New(Options{
		RunDir: runDir,
		InDir:  os.Getenv(EnvInDir),
		Tel:    tel,
	})
}

func (c *Client) RunDir() string {
	return c.runDir
}

func (c *Client) OutDir() string {
	return c.outDir
}

func (c *Client) InDir() string {
	return c.inDir
}

// Tel returns the client's telemetry, plugins scope it further.
func (c *Client) Tel() telemetry.API {
	return c.tel
}

func (c *Client) Clock() chrono.API {
	return c.time
}

// Env returns a single environment variable.
func (c *Client) Env(key string) (string, bool) {
	return c.lookupEnv(key)
}

// Environ returns every environment variable except the ones starting with "_".
func (c *Client) Environ() map[string]string {
	out := map[string]string{}
	for _, kv := range c.environ() {
		key, value, _ := strings.Cut(kv, "=")
		if key == "" || strings.HasPrefix(key, "_") {
			continue
		}
		out[key] = value
	}
	return out
}

// EnvironKeys returns the sorted keys of Environ.
func (c *Client) EnvironKeys() []string {
	env := c.Environ()
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Info reports where the client reads and writes and which variables it can see,
// values are left out.
func (c *Client) Info() {
	c.tel.ReportInfo(
		report_client_info,
		"run_dir", c.runDir,
		"in_dir", c.inDir,
		"out_dir", c.outDir,
		"env", strings.Join(c.EnvironKeys(), ","),
	)
}

// Time reports "[MMRY] <time> <message>" and returns the formatted time.
func (c *Client) Time(message string) string {
	now := c.time.Now().Format("3:04:05 PM")
	c.tel.ReportInfo(strings.TrimRight(fmt.Sprintf("[MMRY] %s %s", now, message), " "))
	return now
}

func isNotExist(err error) bool {
	return errors.Is(err, os.ErrNotExist)
}
