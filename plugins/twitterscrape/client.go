package twitterscrape

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/mmry-org/mmry-plugins/internal/components/telemetry"
	"github.com/mmry-org/mmry-plugins/lib/restyutil"

	"github.com/Jeffail/gabs/v2"
	"github.com/go-resty/resty/v2"
)

const report_client_fetch_tweet = "client.fetch-tweet"

var ErrTweetNotFound = errors.New("tweet not found")

type Tweet struct {
	ID        string
	Text      string
	CreatedAt string
	Username  string
	Name      string
	Likes     int64
	Photos    []string
}

func (t Tweet) URL() string {
	if t.Username == "" {
		return fmt.Sprintf("https://x.com/i/status/%s", t.ID)
	}
	return fmt.Sprintf("https://x.com/%s/status/%s", t.Username, t.ID)
}

type client struct {
	http *resty.Client
	tel  telemetry.API
}

func newClient(opts restyutil.Options, tel telemetry.API) (*client, error) {
	httpClient, err := restyutil.NewClient(opts, tel)
	if err != nil {
		return nil, err
	}
	return &client{http: httpClient, tel: tel}, nil
}

const base36 = "0123456789abcdefghijklmnopqrstuvwxyz"

// syndicationToken derives the token the embed widget sends along with a tweet id:
// (id / 1e15 * pi) written in base 36 without zeros and the radix point.
func syndicationToken(id string) string {
	n, err := strconv.ParseFloat(id, 64)
	if err != nil {
		return ""
	}
	value := n / 1e15 * math.Pi
	whole := math.Floor(value)
	frac := value - whole

	var out strings.Builder
	out.WriteString(strconv.FormatInt(int64(whole), 36))
	for i := 0; i < 11 && frac > 0; i++ {
		frac *= 36
		digit := int(math.Floor(frac))
		out.WriteByte(base36[digit])
		frac -= float64(digit)
	}
	return strings.ReplaceAll(out.String(), "0", "")
}

func parseTweet(payload *gabs.Container) (Tweet, error) {
	if typename, _ := payload.Path("__typename").Data().(string); typename == "TweetTombstone" {
		return Tweet{}, ErrTweetNotFound
	}
	id, _ := payload.Path("id_str").Data().(string)
	if id == "" {
		return Tweet{}, ErrTweetNotFound
	}

	tweet := Tweet{ID: id}
	tweet.Text, _ = payload.Path("text").Data().(string)
	tweet.CreatedAt, _ = payload.Path("created_at").Data().(string)
	tweet.Username, _ = payload.Path("user.screen_name").Data().(string)
	tweet.Name, _ = payload.Path("user.name").Data().(string)
	if likes, ok := payload.Path("favorite_count").Data().(float64); ok {
		tweet.Likes = int64(likes)
	}

	for _, photo := range payload.Path("photos").Children() {
		if url, ok := photo.Path("url").Data().(string); ok && url != "" {
			tweet.Photos = append(tweet.Photos, url)
		}
	}
	if len(tweet.Photos) == 0 {
		for _, media := range payload.Path("mediaDetails").Children() {
			kind, _ := media.Path("type").Data().(string)
			url, _ := media.Path("media_url_https").Data().(string)
			if kind == "photo" && url != "" {
				tweet.Photos = append(tweet.Photos, url)
			}
		}
	}
	return tweet, nil
}

// tweet fetches a single tweet from the syndication api, ErrTweetNotFound is
// returned for deleted, protected or unknown tweets.
func (c *client) tweet(ctx context.Context, id string) (Tweet, error) {
	res, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"id":    id,
			"lang":  "en",
			"token": syndicationToken(id),
		}).
		Get("/tweet-result")
	if err != nil {
		c.tel.ReportBroken(report_client_fetch_tweet, fmt.Errorf("tweet %s: %w", id, err))
		return Tweet{}, err
	}
	if res.StatusCode() == http.StatusNotFound {
		return Tweet{}, ErrTweetNotFound
	}
	if res.IsError() {
		err = fmt.Errorf("tweet %s: %s", id, res.Status())
		c.tel.ReportBroken(report_client_fetch_tweet, err)
		return Tweet{}, err
	}
	if len(res.Body()) == 0 {
		return Tweet{}, ErrTweetNotFound
	}

	payload, err := gabs.ParseJSON(res.Body())
	if err != nil {
		c.tel.ReportBroken(report_client_fetch_tweet, fmt.Errorf("tweet %s: parse: %w", id, err))
		return Tweet{}, err
	}
	return parseTweet(payload)
}
