package youtube

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/mmry-org/mmry-plugins/internal/components/chrono"
	"github.com/mmry-org/mmry-plugins/internal/components/telemetry"
	"github.com/mmry-org/mmry-plugins/lib/htmlutil"
	"github.com/mmry-org/mmry-plugins/lib/restyutil"
	"github.com/mmry-org/mmry-plugins/lib/textutil"

	"github.com/Jeffail/gabs/v2"
	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/titanous/json5"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultTranscriptURL = "https://www.youtube-transcript.io"
	DefaultAuthURL       = "https://identitytoolkit.googleapis.com/v1/accounts:signUp"
)

const (
	report_transcript_firebase_config = "transcript.firebase-config"
	report_transcript_auth            = "transcript.auth"
	report_transcript_fetch           = "transcript.fetch"
)

const (
	firebaseClientVersion = "Firefox/JsCore/10.14.1/FirebaseCore-web"
	firebaseAgent         = "fire-core/0.10.13 fire-core-esm2017/0.10.13 fire-js/ fire-js-all-app/10.14.1 fire-auth/1.7.9 fire-auth-esm2017/1.7.9"
)

var (
	ErrNoFirebaseConfig = errors.New("could not find firebase configuration")
	ErrInvalidVideoID   = errors.New("invalid video ID")
	ErrVideoUnavailable = errors.New("video not found or unavailable")
)

var firebaseConfigRegex = regexp.MustCompile(`\(\{[^}]*apiKey:"([^"]+)"[^}]*\}\)`)
var appIDRegex = regexp.MustCompile(`appId:"([^"]+)"`)

type firebaseConfig struct {
	ApiKey string `json:"apiKey"`
	AppID  string `json:"appId"`
}

type Segment struct {
	Text string
}

type Track struct {
	Language string
	Segments []Segment
}

// Text joins the segments of a track with single spaces.
func (t Track) Text() string {
	texts := make([]string, len(t.Segments))
	for i, s := range t.Segments {
		texts[i] = s.Text
	}
	return textutil.CollapseSpaces(strings.Join(texts, " "))
}

type Transcript struct {
	ID     string
	Title  string
	Tracks []Track
}

// BestTrack returns the english track if there is one, otherwise the first track
// by language name.
func (t Transcript) BestTrack() (Track, bool) {
	if len(t.Tracks) == 0 {
		return Track{}, false
	}
	tracks := make([]Track, len(t.Tracks))
	copy(tracks, t.Tracks)
	sort.SliceStable(tracks, func(i, j int) bool {
		if tracks[i].Language == "en" {
			return tracks[j].Language != "en"
		}
		if tracks[j].Language == "en" {
			return false
		}
		return tracks[i].Language < tracks[j].Language
	})
	return tracks[0], true
}

type TranscriptOptions struct {
	HTTP restyutil.Options
	// AuthURL is the anonymous sign up endpoint of the identity platform.
	AuthURL string
	Time    chrono.API
}

// TranscriptClient talks to youtube-transcript.io, which authenticates requests
// with an anonymous firebase account.
type TranscriptClient struct {
	http    *resty.Client
	base    *url.URL
	authURL string
	time    chrono.API
	tel     telemetry.API
	config  *firebaseConfig
}

func NewTranscriptClient(opts TranscriptOptions, tel telemetry.API) (*TranscriptClient, error) {
	if opts.HTTP.BaseURL == "" {
		opts.HTTP.BaseURL = DefaultTranscriptURL
	}
	opts.HTTP.CloudflareBypass = true
	base, err := url.Parse(opts.HTTP.BaseURL)
	if err != nil {
		return nil, err
	}
	httpClient, err := restyutil.NewClient(opts.HTTP, tel)
	if err != nil {
		return nil, err
	}

	authURL := opts.AuthURL
	if authURL == "" {
		authURL = DefaultAuthURL
	}
	clock := opts.Time
	if clock == nil {
		clock = chrono.NewStandardImpl()
	}
	return &TranscriptClient{
		http:    httpClient,
		base:    base,
		authURL: authURL,
		time:    clock,
		tel:     tel,
	}, nil
}

// parseFirebaseConfig extracts the firebase config object literal from a script.
func parseFirebaseConfig(script string) (firebaseConfig, bool) {
	match := firebaseConfigRegex.FindStringSubmatch(script)
	if match == nil {
		return firebaseConfig{}, false
	}
	literal := strings.TrimSuffix(strings.TrimPrefix(match[0], "("), ")")

	var config firebaseConfig
	err := json5.Unmarshal([]byte(literal), &config)
	if err != nil || config.ApiKey == "" {
		// minified bundles may contain expressions json5 does not understand
		config = firebaseConfig{ApiKey: match[1]}
		if appID := appIDRegex.FindStringSubmatch(literal); appID != nil {
			config.AppID = appID[1]
		}
	}
	return config, true
}

func (c *TranscriptClient) fetchText(ctx context.Context, link string) (string, error) {
	res, err := c.http.R().
		SetContext(ctx).
		Get(link)
	if err != nil {
		return "", err
	}
	if res.IsError() {
		return "", fmt.Errorf("GET %s: %s", link, res.Status())
	}
	return res.String(), nil
}

func (c *TranscriptClient) firebaseConfig(ctx context.Context) (firebaseConfig, error) {
	if c.config != nil {
		return *c.config, nil
	}

	home, err := c.fetchText(ctx, c.base.String())
	if err != nil {
		c.tel.ReportBroken(report_transcript_firebase_config, err)
		return firebaseConfig{}, err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(home))
	if err != nil {
		c.tel.ReportBroken(report_transcript_firebase_config, err)
		return firebaseConfig{}, err
	}
	sources := htmlutil.ScriptSources(ctx, doc, c.base)
	c.tel.ReportDebug(fmt.Sprintf("scanning %d scripts for the firebase config", len(sources)))

	scripts := make([]string, len(sources))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(4)
	for i, src := range sources {
		i, src := i, src
		group.Go(func() error {
			script, err := c.fetchText(groupCtx, src)
			if err != nil {
				c.tel.ReportWarning(report_transcript_firebase_config, err)
				return nil
			}
			scripts[i] = script
			return nil
		})
	}
	err = group.Wait()
	if err != nil {
		return firebaseConfig{}, err
	}

	for i, script := range scripts {
		config, ok := parseFirebaseConfig(script)
		if ok {
			c.tel.ReportDebug(fmt.Sprintf("found firebase config in %s", sources[i]))
			c.config = &config
			return config, nil
		}
	}
	c.tel.ReportBroken(report_transcript_firebase_config, ErrNoFirebaseConfig)
	return firebaseConfig{}, ErrNoFirebaseConfig
}

type firebaseHeartbeat struct {
	Agent string   `json:"agent"`
	Dates []string `json:"dates"`
}

type firebaseClientHeader struct {
	Version    int                 `json:"version"`
	Heartbeats []firebaseHeartbeat `json:"heartbeats"`
}

// signUp creates an anonymous account and returns its id token.
func (c *TranscriptClient) signUp(ctx context.Context) (string, error) {
	config, err := c.firebaseConfig(ctx)
	if err != nil {
		return "", err
	}

	clientHeader, err := json.Marshal(firebaseClientHeader{
		Version: 2,
		Heartbeats: []firebaseHeartbeat{{
			Agent: firebaseAgent,
			Dates: []string{c.time.Now().UTC().Format("2006-01-02")},
		}},
	})
	if err != nil {
		return "", err
	}
	gmpid := config.AppID
	if len(gmpid) > 2 {
		gmpid = gmpid[2:]
	}

	var auth struct {
		IDToken string `json:"idToken"`
	}
	res, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("key", config.ApiKey).
		SetHeader("X-Client-Version", firebaseClientVersion).
		SetHeader("X-Firebase-Client", string(clientHeader)).
		SetHeader("X-Firebase-gmpid", gmpid).
		SetBody(map[string]any{"returnSecureToken": true}).
		SetResult(&auth).
		Post(c.authURL)
	if err != nil {
		c.tel.ReportBroken(report_transcript_auth, err)
		return "", err
	}
	if res.IsError() {
		err = fmt.Errorf("auth request failed: %s", res.Status())
		c.tel.ReportBroken(report_transcript_auth, err)
		return "", err
	}
	if auth.IDToken == "" {
		err = fmt.Errorf("auth response has no id token")
		c.tel.ReportBroken(report_transcript_auth, err)
		return "", err
	}
	return auth.IDToken, nil
}

func randomHash() string {
	a := uuid.New()
	b := uuid.New()
	return strings.ReplaceAll(a.String()+b.String(), "-", "")
}

func (c *TranscriptClient) transcripts(ctx context.Context, ids []string, forbidden error) ([]Transcript, error) {
	token, err := c.signUp(ctx)
	if err != nil {
		return nil, err
	}

	res, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetHeader("X-Hash", randomHash()).
		SetBody(map[string]any{"ids": ids}).
		Post("/api/transcripts")
	if err != nil {
		c.tel.ReportBroken(report_transcript_fetch, err)
		return nil, err
	}
	if res.StatusCode() == http.StatusForbidden {
		c.tel.ReportBroken(report_transcript_fetch, forbidden, ids)
		return nil, forbidden
	}
	if res.IsError() {
		err = fmt.Errorf("request failed: %s", res.Status())
		c.tel.ReportBroken(report_transcript_fetch, err, ids)
		return nil, err
	}

	payload, err := gabs.ParseJSON(res.Body())
	if err != nil {
		c.tel.ReportBroken(report_transcript_fetch, fmt.Errorf("parse: %w", err))
		return nil, err
	}
	var out []Transcript
	for _, entry := range payload.Children() {
		out = append(out, parseTranscript(entry))
	}
	return out, nil
}

func parseTranscript(entry *gabs.Container) Transcript {
	var t Transcript
	t.ID, _ = entry.Path("id").Data().(string)
	t.Title, _ = entry.Path("title").Data().(string)
	for _, track := range entry.Path("tracks").Children() {
		var tr Track
		tr.Language, _ = track.Path("language").Data().(string)
		for _, segment := range track.Path("transcript").Children() {
			text, _ := segment.Path("text").Data().(string)
			tr.Segments = append(tr.Segments, Segment{Text: htmlutil.FragmentText(text)})
		}
		t.Tracks = append(t.Tracks, tr)
	}
	return t
}

// Transcript retrieves the transcript of a single video.
func (c *TranscriptClient) Transcript(ctx context.Context, id string) (Transcript, error) {
	transcripts, err := c.transcripts(ctx, []string{id}, ErrInvalidVideoID)
	if err != nil {
		return Transcript{}, err
	}
	for _, t := range transcripts {
		if t.ID == id {
			return t, nil
		}
	}
	return Transcript{}, fmt.Errorf("%w: %s", ErrVideoUnavailable, id)
}

// BulkTranscripts retrieves the transcripts of several videos in one request.
func (c *TranscriptClient) BulkTranscripts(ctx context.Context, ids []string) ([]Transcript, error) {
	return c.transcripts(ctx, ids, ErrVideoUnavailable)
}
