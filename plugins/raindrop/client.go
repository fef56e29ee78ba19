package raindrop

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
	report_client_fetch_collections = "client.fetch-collections"
	report_client_fetch_raindrops   = "client.fetch-raindrops"
)

const perPage = 50

type collection struct {
	ID    int64  `json:"_id"`
	Title string `json:"title"`
}

type collectionRef struct {
	ID int64 `json:"$id"`
}

type bookmark struct {
	ID         int64         `json:"_id"`
	Collection collectionRef `json:"collection"`
	Created    string        `json:"created"`
	LastUpdate string        `json:"lastUpdate"`
	Link       string        `json:"link"`
	Title      string        `json:"title"`
	Excerpt    string        `json:"excerpt"`
	Note       string        `json:"note"`
	Tags       []string      `json:"tags"`
}

type apiResponse[T any] struct {
	Result bool `json:"result"`
	Items  []T  `json:"items"`
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
	return &client{http: httpClient, tel: tel}, nil
}

func get[T any](ctx context.Context, c *client, reportId, path string, query map[string]string) (apiResponse[T], error) {
	var out apiResponse[T]
	res, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(query).
		SetResult(&out).
		Get(path)
	if err != nil {
		c.tel.ReportBroken(reportId, fmt.Errorf("%s: %w", path, err))
		return apiResponse[T]{}, err
	}
	if res.IsError() {
		err = fmt.Errorf("%s: %s", path, res.Status())
		c.tel.ReportBroken(reportId, err)
		return apiResponse[T]{}, err
	}
	return out, nil
}

// collections returns the root collections of the user.
func (c *client) collections(ctx context.Context) ([]collection, error) {
	res, err := get[collection](ctx, c, report_client_fetch_collections, "/collections", nil)
	return res.Items, err
}

// childCollections returns every nested collection of the user.
func (c *client) childCollections(ctx context.Context) ([]collection, error) {
	res, err := get[collection](ctx, c, report_client_fetch_collections, "/collections/childrens", nil)
	return res.Items, err
}

// raindrops returns a page of bookmarks of a collection, oldest first. Pages start at 0.
func (c *client) raindrops(ctx context.Context, collectionId int64, page int) (apiResponse[bookmark], error) {
	return get[bookmark](
		ctx, c, report_client_fetch_raindrops,
		fmt.Sprintf("/raindrops/%d", collectionId),
		map[string]string{
			"sort":    "created",
			"page":    strconv.Itoa(page),
			"perpage": strconv.Itoa(perPage),
		},
	)
}
