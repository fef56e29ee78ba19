// Package twitterexport imports likes from a Twitter/X data export.
package twitterexport

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/mmry-org/mmry-plugins/internal/components/telemetry"
	"github.com/mmry-org/mmry-plugins/lib/mmry"
	"github.com/mmry-org/mmry-plugins/plugins"
)

const (
	InputExport = "twitter-data-export"
	SeenKey     = "seenLikeIds"
	Collection  = "twitter:likes"
)

const report_read_likes = "read-likes"

//go:embed plugin.yaml
var manifestYaml []byte

var manifest = plugins.MustParseManifest(manifestYaml)

type Plugin struct {
	settings plugins.Settings
}

func New(settings plugins.Settings) Plugin {
	return Plugin{settings: settings}
}

func (Plugin) Manifest() plugins.Manifest {
	return manifest
}

type like struct {
	TweetID     string `json:"tweetId"`
	FullText    string `json:"fullText"`
	ExpandedURL string `json:"expandedUrl"`
	Username    string `json:"username"`
}

// export files are js files assigning a json array to a global
var assignmentPrefix = regexp.MustCompile(`^\s*window\.YTD\.[A-Za-z_]*\.part\d+\s*=`)

// ParseArchiveFile reads one of the data/*.js files of an export.
func ParseArchiveFile(contents []byte, out any) error {
	contents = assignmentPrefix.ReplaceAll(contents, nil)
	contents = bytes.TrimSpace(contents)
	contents = bytes.TrimSuffix(contents, []byte(";"))
	return json.Unmarshal(contents, out)
}

func readLikes(dir string) ([]like, error) {
	contents, err := os.ReadFile(filepath.Join(dir, "data", "like.js"))
	if err != nil {
		return nil, err
	}
	var entries []struct {
		Like like `json:"like"`
	}
	err = ParseArchiveFile(contents, &entries)
	if err != nil {
		return nil, fmt.Errorf("parse like.js: %w", err)
	}
	likes := make([]like, len(entries))
	for i, e := range entries {
		likes[i] = e.Like
	}
	return likes, nil
}

func toItem(l like) mmry.Item {
	item := mmry.Item{
		ExternalID: l.TweetID,
		Content:    l.FullText,
		Collection: Collection,
		Href:       l.ExpandedURL,
	}
	if l.Username != "" {
		item.Metadata = map[string]any{"username": l.Username}
	}
	return item
}

func (p Plugin) Run(ctx context.Context, c *mmry.Client) error {
	tel := telemetry.NewScopedAPI("twitter_export", c.Tel())

	file, err := c.InputFile(InputExport)
	if err != nil {
		c.Status("Twitter data export is required")
		return fmt.Errorf("%w: %s: %w", plugins.ErrMissingInput, InputExport, err)
	}
	if !file.Info.IsDir() {
		c.Status("Twitter data export must be a directory")
		return fmt.Errorf("%s is not a directory", file.Path)
	}

	likes, err := readLikes(file.Path)
	if err != nil {
		tel.ReportBroken(report_read_likes, err, file.Path)
		c.Status("Could not read likes from the data export")
		return err
	}

	state, err := c.State()
	if err != nil {
		return err
	}
	var seenList []string
	_, err = state.Get(SeenKey, &seenList)
	if err != nil {
		return err
	}
	seen := make(map[string]struct{}, len(seenList))
	for _, id := range seenList {
		seen[id] = struct{}{}
	}

	var items []mmry.Item
	for _, l := range likes {
		if _, ok := seen[l.TweetID]; ok {
			continue
		}
		if p.settings.LimitReached(len(items)) {
			break
		}
		items = append(items, toItem(l))
		seen[l.TweetID] = struct{}{}
	}
	tel.ReportInfo(fmt.Sprintf("Found %d likes, %d of them new.", len(likes), len(items)))

	n, err := c.AddMany(ctx, items)
	for _, item := range items[:n] {
		seenList = append(seenList, item.ExternalID)
	}
	if n > 0 {
		saveErr := state.Set(SeenKey, seenList)
		if saveErr == nil {
			saveErr = state.Write()
		}
		if saveErr != nil && err == nil {
			err = saveErr
		}
	}
	if err != nil {
		return err
	}

	c.Status(fmt.Sprintf("%d new likes imported", n))
	return nil
}
