package githubstars

import (
	"context"
	"fmt"
	"strconv"

	"github.com/mmry-org/mmry-plugins/internal/assert"
	"github.com/mmry-org/mmry-plugins/internal/components/telemetry"
	"github.com/mmry-org/mmry-plugins/lib/restyutil"

	"github.com/go-resty/resty/v2"
)

const (
	report_client_fetch_starred = "client.fetch-starred"
)

const perPage = 100

type owner struct {
	Login string `json:"login"`
}

type repository struct {
	ID              int64    `json:"id"`
	Name            string   `json:"name"`
	FullName        string   `json:"full_name"`
	Description     *string  `json:"description"`
	HtmlURL         string   `json:"html_url"`
	Homepage        *string  `json:"homepage"`
	Language        *string  `json:"language"`
	StargazersCount int      `json:"stargazers_count"`
	ForksCount      int      `json:"forks_count"`
	Topics          []string `json:"topics"`
	UpdatedAt       string   `json:"updated_at"`
	DefaultBranch   string   `json:"default_branch"`
	Owner           *owner   `json:"owner"`
}

type star struct {
	StarredAt string     `json:"starred_at"`
	Repo      repository `json:"repo"`
}

// apiError is a non 2xx response from the api.
type apiError struct {
	StatusCode int
	Status     string
}

func (e apiError) Error() string {
	return fmt.Sprintf("github api: %s", e.Status)
}

type client struct {
	http *resty.Client
	tel  telemetry.API
}

func newClient(opts restyutil.Options, token string, tel telemetry.API) (*client, error) {
	assert.NotEmptyStr(token, "token")

	httpClient, err := restyutil.NewClient(opts, tel)
	if err != nil {
		return nil, err
	}
	httpClient.SetAuthToken(token)
	httpClient.SetHeader("Accept", "application/vnd.github.star+json")
	httpClient.SetHeader("X-GitHub-Api-Version", "2022-11-28")
	return &client{http: httpClient, tel: tel}, nil
}

// starred fetches one page of the user's stars, oldest first.
func (c *client) starred(ctx context.Context, page int) ([]star, error) {
	var stars []star
	res, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"sort":      "created",
			"direction": "asc",
			"per_page":  strconv.Itoa(perPage),
			"page":      strconv.Itoa(page),
		}).
		SetResult(&stars).
		Get("/user/starred")
	if err != nil {
		c.tel.ReportBroken(report_client_fetch_starred, fmt.Errorf("page %d: %w", page, err))
		return nil, err
	}
	if res.IsError() {
		err = apiError{StatusCode: res.StatusCode(), Status: res.Status()}
		c.tel.ReportBroken(report_client_fetch_starred, err, page)
		return nil, err
	}
	c.tel.ReportDebug(fmt.Sprintf("fetched %d repositories from page %d", len(stars), page))
	return stars, nil
}
