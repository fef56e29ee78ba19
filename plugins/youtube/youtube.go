// Package youtube imports video transcripts.
package youtube

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
	InputVideo = "youtube-video"
	Collection = "youtube"
)

var (
	ErrInvalidURL   = errors.New("not a youtube video url")
	ErrNoTranscript = errors.New("video has no transcript")
)

//go:embed plugin.yaml
var manifestYaml []byte

var manifest = plugins.MustParseManifest(manifestYaml)

var videoURLRegex = regexp.MustCompile(`^.*((youtu.be\/)|(v\/)|(\/u\/\w\/)|(embed\/)|(watch\?))\??v?=?([^#&?]*).*`)

// VideoID returns the 11 character id of a video link.
func VideoID(link string) (string, error) {
	match := videoURLRegex.FindStringSubmatch(link)
	if match == nil || len(match[7]) != 11 {
		return "", fmt.Errorf("%w: %s", ErrInvalidURL, link)
	}
	return match[7], nil
}

type Plugin struct {
	settings plugins.Settings
	authURL  string
}

func New(settings plugins.Settings) Plugin {
	return Plugin{settings: settings}
}

// WithAuthURL returns a copy of the plugin that signs up at `authURL`.
func (p Plugin) WithAuthURL(authURL string) Plugin {
	p.authURL = authURL
	return p
}

func (Plugin) Manifest() plugins.Manifest {
	return manifest
}

type video struct {
	id  string
	url string
}

func toItem(v video, t Transcript) (mmry.Item, error) {
	track, ok := t.BestTrack()
	if !ok {
		return mmry.Item{}, fmt.Errorf("%w: %s", ErrNoTranscript, v.id)
	}
	metadata := map[string]any{}
	if t.Title != "" {
		metadata["title"] = t.Title
	}
	if track.Language != "" {
		metadata["language"] = track.Language
	}
	if len(metadata) == 0 {
		metadata = nil
	}
	return mmry.Item{
		ExternalID: v.id,
		Content:    track.Text(),
		URLs:       []string{v.url},
		Collection: Collection,
		Metadata:   metadata,
	}, nil
}

func (p Plugin) Run(ctx context.Context, c *mmry.Client) error {
	tel := telemetry.NewScopedAPI("youtube", c.Tel())

	links := textutil.SplitList(c.InputValue(InputVideo))
	if len(links) == 0 {
		c.Status("URL invalid")
		return nil
	}
	var videos []video
	seen := map[string]struct{}{}
	for _, link := range links {
		id, err := VideoID(link)
		if err != nil {
			tel.ReportDebug(err.Error())
			c.Status("URL invalid")
			return nil
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		videos = append(videos, video{id: id, url: link})
	}

	client, err := NewTranscriptClient(TranscriptOptions{
		HTTP:    p.settings.HTTPOptions(DefaultTranscriptURL, "mmry-plugins/youtube"),
		AuthURL: p.authURL,
		Time:    c.Clock(),
	}, tel)
	if err != nil {
		return err
	}

	c.Status("Fetching transcript...")
	var transcripts []Transcript
	if len(videos) == 1 {
		var transcript Transcript
		transcript, err = client.Transcript(ctx, videos[0].id)
		transcripts = []Transcript{transcript}
	} else {
		transcripts, err = client.BulkTranscripts(ctx, videoIDs(videos))
	}
	if err != nil {
		c.Status("Failed to fetch transcript")
		return err
	}

	byID := map[string]Transcript{}
	for _, t := range transcripts {
		byID[t.ID] = t
	}

	imported := 0
	for i, v := range videos {
		if p.settings.LimitReached(imported) {
			break
		}
		transcript, ok := byID[v.id]
		if !ok {
			tel.ReportWarning(report_transcript_fetch, fmt.Errorf("%w: %s", ErrVideoUnavailable, v.id))
			continue
		}

		item, err := toItem(v, transcript)
		if err != nil {
			if len(videos) == 1 {
				c.Status("No transcript available")
				return err
			}
			tel.ReportWarning(report_transcript_fetch, err)
			continue
		}
		_, err = c.Add(ctx, item)
		if err != nil {
			return err
		}
		imported++
		tel.ReportDebug(fmt.Sprintf("imported transcript %d of %d", i+1, len(videos)))
	}

	if len(videos) == 1 {
		c.Status("Transcript imported")
	} else {
		c.Status(fmt.Sprintf("%d transcripts imported", imported))
	}
	return nil
}

func videoIDs(videos []video) []string {
	ids := make([]string, len(videos))
	for i, v := range videos {
		ids[i] = v.id
	}
	return ids
}
