// Package plugins holds what every sync plugin shares: manifests, settings, the
// registry the host looks plugins up in and input helpers.
package plugins

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/mmry-org/mmry-plugins/lib/itemdb"
	"github.com/mmry-org/mmry-plugins/lib/mmry"
	"github.com/mmry-org/mmry-plugins/lib/restyutil"

	"gopkg.in/yaml.v3"
)

var ErrMissingInput = errors.New("missing required input")

type Plugin interface {
	Manifest() Manifest
	// Run performs one sync. The run fails when an error is returned.
	Run(ctx context.Context, c *mmry.Client) error
}

type ManifestInput struct {
	ID          string `yaml:"id"`
	Kind        string `yaml:"kind"`
	Required    bool   `yaml:"required"`
	Description string `yaml:"description"`
}

// Manifest describes a plugin to the host, it is read from the plugin's embedded
// plugin.yaml.
type Manifest struct {
	Name        string          `yaml:"name"`
	Description string          `yaml:"description"`
	Inputs      []ManifestInput `yaml:"inputs"`
}

var inputKinds = map[string]struct{}{
	"secret": {},
	"text":   {},
	"url":    {},
	"path":   {},
}

func ParseManifest(contents []byte) (Manifest, error) {
	var m Manifest
	err := yaml.Unmarshal(contents, &m)
	if err != nil {
		return Manifest{}, fmt.Errorf("parse manifest: %w", err)
	}
	if m.Name == "" {
		return Manifest{}, fmt.Errorf("parse manifest: name is required")
	}
	for _, in := range m.Inputs {
		if in.ID == "" {
			return Manifest{}, fmt.Errorf("parse manifest %s: input without an id", m.Name)
		}
		if _, ok := inputKinds[in.Kind]; !ok {
			return Manifest{}, fmt.Errorf("parse manifest %s: input %s has unknown kind '%s'", m.Name, in.ID, in.Kind)
		}
	}
	return m, nil
}

// MustParseManifest is ParseManifest for embedded manifests, it panics on error.
func MustParseManifest(contents []byte) Manifest {
	m, err := ParseManifest(contents)
	if err != nil {
		panic(err)
	}
	return m
}

// Settings are the host's settings for a single plugin.
type Settings struct {
	// BaseURL overrides the api the plugin talks to.
	BaseURL string
	HTTP    restyutil.Options
	// ItemLimit stops a sync after this many new items, 0 means no limit.
	ItemLimit int
}

// HTTPOptions returns the http options with the base url set to the override or
// `defaultBaseURL`.
func (s Settings) HTTPOptions(defaultBaseURL, tracer string) restyutil.Options {
	opts := s.HTTP
	opts.BaseURL = defaultBaseURL
	if s.BaseURL != "" {
		opts.BaseURL = s.BaseURL
	}
	opts.Tracer = tracer
	return opts
}

// LimitReached reports whether `count` new items hit the item limit.
func (s Settings) LimitReached(count int) bool {
	return s.ItemLimit > 0 && count >= s.ItemLimit
}

type PluginConfig struct {
	BaseURL   string `json:"base_url"`
	ItemLimit int    `json:"item_limit"`
}

// Config is the host's mmry.json5.
type Config struct {
	HTTPDumpDir       string                  `json:"http_dump_dir"`
	UserAgent         string                  `json:"user_agent"`
	RequestsPerSecond float64                 `json:"requests_per_second"`
	TimeoutSeconds    int                     `json:"timeout_seconds"`
	Plugins           map[string]PluginConfig `json:"plugins"`
	// Export is the database `mmry export` writes to.
	Export itemdb.Config `json:"export"`
}

// Settings returns the settings of the plugin `name`, `dump` receives http
// exchanges and may be nil.
func (c Config) Settings(name string, dump restyutil.Output) Settings {
	pc := c.Plugins[name]
	return Settings{
		BaseURL: pc.BaseURL,
		HTTP: restyutil.Options{
			UserAgent:         c.UserAgent,
			Timeout:           time.Duration(c.TimeoutSeconds) * time.Second,
			RequestsPerSecond: c.RequestsPerSecond,
			Dump:              dump,
		},
		ItemLimit: pc.ItemLimit,
	}
}

// Registry maps plugin names to plugins.
type Registry struct {
	plugins map[string]Plugin
}

func NewRegistry(plugins ...Plugin) (*Registry, error) {
	r := &Registry{plugins: map[string]Plugin{}}
	for _, p := range plugins {
		name := p.Manifest().Name
		if _, exists := r.plugins[name]; exists {
			return nil, fmt.Errorf("plugin %s registered twice", name)
		}
		r.plugins[name] = p
	}
	return r, nil
}

func (r *Registry) Lookup(name string) (Plugin, bool) {
	p, ok := r.plugins[name]
	return p, ok
}

// All returns every plugin sorted by name.
func (r *Registry) All() []Plugin {
	out := make([]Plugin, 0, len(r.plugins))
	for _, p := range r.plugins {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Manifest().Name < out[j].Manifest().Name
	})
	return out
}

func (r *Registry) Names() []string {
	var names []string
	for _, p := range r.All() {
		names = append(names, p.Manifest().Name)
	}
	return names
}

// RequireInput returns the value of a required input. When it is missing the
// status is set to `status` and ErrMissingInput is returned.
func RequireInput(c *mmry.Client, id, status string) (string, error) {
	value := c.InputValue(id)
	if value == "" {
		c.Status(status)
		return "", fmt.Errorf("%w: %s", ErrMissingInput, id)
	}
	return value, nil
}
