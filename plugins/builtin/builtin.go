// Package builtin registers every plugin shipped with mmry.
package builtin

import (
	"github.com/mmry-org/mmry-plugins/lib/restyutil"
	"github.com/mmry-org/mmry-plugins/plugins"
	"github.com/mmry-org/mmry-plugins/plugins/githubstars"
	"github.com/mmry-org/mmry-plugins/plugins/raindrop"
	"github.com/mmry-org/mmry-plugins/plugins/twitterexport"
	"github.com/mmry-org/mmry-plugins/plugins/twitterscrape"
	"github.com/mmry-org/mmry-plugins/plugins/youtube"
)

// NewRegistry creates every plugin with its settings from `config`, `dump` may be nil.
func NewRegistry(config plugins.Config, dump restyutil.Output) (*plugins.Registry, error) {
	settings := func(name string) plugins.Settings {
		return config.Settings(name, dump)
	}
	return plugins.NewRegistry(
		githubstars.New(settings("github-stars")),
		raindrop.New(settings("raindrop")),
		twitterexport.New(settings("twitter-export")),
		twitterscrape.New(settings("twitter-tweets")),
		youtube.New(settings("youtube")),
	)
}
