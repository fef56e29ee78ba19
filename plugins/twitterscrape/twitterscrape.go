// Package twitterscrape imports single tweets through the public syndication api.
package twitterscrape

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"regexp"

	"github.com/mmry-org/mmry-plugins/internal/components/telemetry"
	"github.com/mmry-org/mmry-plugins/lib/mmry"
	"github.com/mmry-org/mmry-plugins/lib/textutil"
	"github.com/mmry-org/mmry-plugins/plugins"
)

const (
	DefaultBaseURL = "https://cdn.syndication.twimg.com"

	InputTweetIDs = "tweet-ids"
	SeenKey       = "seenTweetIds"
	Collection    = "twitter:tweets"
)

const report_parse_ids = "parse-ids"

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

var tweetIDRegex = regexp.MustCompile(`^\d{1,20}$`)
var tweetURLRegex = regexp.MustCompile(`/status(?:es)?/(\d{1,20})`)

// ParseTweetIDs accepts ids and tweet urls, anything else is returned as invalid.
// Duplicates are dropped.
func ParseTweetIDs(input string) (ids []string, invalid []string) {
	seen := map[string]struct{}{}
	for _, entry := range textutil.SplitList(input) {
		id := ""
		if tweetIDRegex.MatchString(entry) {
			id = entry
		} else if groups := tweetURLRegex.FindStringSubmatch(entry); len(groups) == 2 {
			id = groups[1]
		}
		if id == "" {
			invalid = append(invalid, entry)
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids, invalid
}

func toItem(t Tweet) mmry.Item {
	return mmry.Item{
		ExternalID: t.ID,
		Content:    t.Text,
		CreatedAt:  t.CreatedAt,
		URLs:       []string{t.URL()},
		Images:     t.Photos,
		Collection: Collection,
		Metadata: map[string]any{
			"username": t.Username,
			"name":     t.Name,
			"likes":    t.Likes,
		},
	}
}

func (p Plugin) Run(ctx context.Context, c *mmry.Client) error {
	tel := telemetry.NewScopedAPI("twitter_tweets", c.Tel())

	raw, err := plugins.RequireInput(c, InputTweetIDs, "Tweet ids are required")
	if err != nil {
		return err
	}
	ids, invalid := ParseTweetIDs(raw)
	for _, entry := range invalid {
		tel.ReportWarning(report_parse_ids, fmt.Errorf("'%s' is not a tweet id or url", entry))
	}
	if len(ids) == 0 {
		c.Status("No valid tweet ids given")
		return fmt.Errorf("%w: %s has no valid ids", plugins.ErrMissingInput, InputTweetIDs)
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
	seen := map[string]struct{}{}
	for _, id := range seenList {
		seen[id] = struct{}{}
	}

	cl, err := newClient(p.settings.HTTPOptions(DefaultBaseURL, "mmry-plugins/twitter-tweets"), tel)
	if err != nil {
		return err
	}

	imported := 0
	for i, id := range ids {
		if _, ok := seen[id]; ok {
			tel.ReportDebug(fmt.Sprintf("tweet %s was already imported", id))
			continue
		}
		if p.settings.LimitReached(imported) {
			break
		}

		c.Status(fmt.Sprintf("Fetching tweet %d of %d...", i+1, len(ids)))
		tweet, err := cl.tweet(ctx, id)
		if errors.Is(err, ErrTweetNotFound) {
			tel.ReportInfo(fmt.Sprintf("Tweet %s not found, skipping.", id))
			continue
		}
		if err != nil {
			c.Status(fmt.Sprintf("Failed to fetch tweet %s", id))
			return err
		}

		_, err = c.Add(ctx, toItem(tweet))
		if err != nil {
			return err
		}
		imported++

		seenList = append(seenList, id)
		seen[id] = struct{}{}
		err = state.Set(SeenKey, seenList)
		if err != nil {
			return err
		}
		err = state.Write()
		if err != nil {
			return err
		}
	}

	c.Status(fmt.Sprintf("%d new tweets imported", imported))
	return nil
}
