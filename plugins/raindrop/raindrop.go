// Package raindrop syncs Raindrop.io bookmarks.
//
// Every collection keeps its own cursor: the created time of the newest imported
// bookmark and the page it was found on, so a run continues from that page.
package raindrop

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/mmry-org/mmry-plugins/internal/components/telemetry"
	"github.com/mmry-org/mmry-plugins/lib/mmry"
	"github.com/mmry-org/mmry-plugins/lib/textutil"
	"github.com/mmry-org/mmry-plugins/plugins"

	"github.com/antzucaro/matchr"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultBaseURL = "https://api.raindrop.io/rest/v1"

	InputToken       = "RAINDROP_API_TOKEN"
	InputCollections = "RAINDROP_COLLECTIONS"
)

const report_sync_collection = "sync.collection"

// minimum similarity for a collection title to match a name in RAINDROP_COLLECTIONS
const collectionMatchThreshold = 0.9

//go:embed plugin.yaml
var manifestYaml []byte

var manifest = plugins.MustParseManifest(manifestYaml)

type CollectionSyncStatus struct {
	LastSyncedTimestamp *string `json:"lastSyncedTimestamp"`
	LastSyncedPage      int     `json:"lastSyncedPage"`
}

type State struct {
	Collections map[string]*CollectionSyncStatus `json:"collections"`
}

type Plugin struct {
	settings plugins.Settings
}

func New(settings plugins.Settings) Plugin {
	return Plugin{settings: settings}
}

func (Plugin) Manifest() plugins.Manifest {
	return manifest
}

type run struct {
	settings plugins.Settings
	client   *client
	mmry     *mmry.Client
	tel      telemetry.API
	store    *mmry.State
	state    State
	imported int
}

func (p Plugin) Run(ctx context.Context, c *mmry.Client) error {
	tel := telemetry.NewScopedAPI("raindrop", c.Tel())

	token, err := plugins.RequireInput(c, InputToken, "Raindrop API token is required")
	if err != nil {
		return err
	}
	store, err := c.State()
	if err != nil {
		return err
	}
	state, err := mmry.LoadState(store, State{})
	if err != nil {
		return err
	}
	if state.Collections == nil {
		state.Collections = map[string]*CollectionSyncStatus{}
	}

	cl, err := newClient(p.settings.HTTPOptions(DefaultBaseURL, "mmry-plugins/raindrop"), token, tel)
	if err != nil {
		return err
	}

	r := &run{
		settings: p.settings,
		client:   cl,
		mmry:     c,
		tel:      tel,
		store:    store,
		state:    state,
	}

	c.Status("Fetching collections...")
	collections, err := r.listCollections(ctx)
	if err != nil {
		c.Status("Failed to fetch collections")
		return err
	}
	collections = filterCollections(collections, textutil.SplitListBy(c.InputValue(InputCollections), ','))
	if len(collections) == 0 {
		tel.ReportInfo("No user collections found to sync.")
		c.Status("No user collections found to sync.")
		return nil
	}

	tel.ReportInfo(fmt.Sprintf("Starting sync for %d collections...", len(collections)))
	for _, col := range collections {
		err := r.syncCollection(ctx, col)
		if err != nil {
			return err
		}
		if r.settings.LimitReached(r.imported) {
			tel.ReportInfo(fmt.Sprintf("Hit the item limit of %d, stopping sync.", r.settings.ItemLimit))
			break
		}
	}

	tel.ReportInfo("Finished syncing all collections.")
	c.Status(fmt.Sprintf("%d new bookmarks imported", r.imported))
	return nil
}

// listCollections fetches root and child collections concurrently, system
// collections (Unsorted, Trash) have ids <= 0 and are left out. One of the two
// listings failing is only a warning.
func (r *run) listCollections(ctx context.Context) ([]collection, error) {
	var root, children []collection
	var rootErr, childrenErr error

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		root, rootErr = r.client.collections(groupCtx)
		return nil
	})
	group.Go(func() error {
		children, childrenErr = r.client.childCollections(groupCtx)
		return nil
	})
	_ = group.Wait()

	if rootErr != nil && childrenErr != nil {
		return nil, errors.Join(rootErr, childrenErr)
	}
	if err := errors.Join(rootErr, childrenErr); err != nil {
		r.tel.ReportWarning(report_sync_collection, err)
	}

	var out []collection
	for _, col := range append(root, children...) {
		if col.ID > 0 {
			out = append(out, col)
		}
	}
	return out, nil
}

// filterCollections keeps collections whose title is similar enough to one of
// `names`, no names keeps everything.
func filterCollections(collections []collection, names []string) []collection {
	if len(names) == 0 {
		return collections
	}
	var out []collection
	for _, col := range collections {
		title := textutil.NormalizeName(col.Title)
		for _, name := range names {
			if matchr.JaroWinkler(title, textutil.NormalizeName(name), false) >= collectionMatchThreshold {
				out = append(out, col)
				break
			}
		}
	}
	return out
}

func (r *run) save() error {
	return mmry.SaveState(r.store, r.state)
}

func isNewer(created string, last *string) bool {
	if last == nil || *last == "" {
		return true
	}
	createdTime, err1 := time.Parse(time.RFC3339Nano, created)
	lastTime, err2 := time.Parse(time.RFC3339Nano, *last)
	if err1 != nil || err2 != nil {
		return created > *last
	}
	return createdTime.After(lastTime)
}

func (r *run) syncCollection(ctx context.Context, col collection) error {
	cid := strconv.FormatInt(col.ID, 10)
	r.tel.ReportInfo(fmt.Sprintf("Syncing collection: %s (ID: %s)", col.Title, cid))

	status, ok := r.state.Collections[cid]
	if !ok || status == nil {
		r.tel.ReportDebug(fmt.Sprintf("no previous state found for collection %s, initializing", cid))
		status = &CollectionSyncStatus{}
		r.state.Collections[cid] = status
		err := r.save()
		if err != nil {
			return err
		}
	}

	for page := status.LastSyncedPage; ; page++ {
		r.mmry.Status(fmt.Sprintf("Fetching page %d of %s...", page, col.Title))
		data, err := r.client.raindrops(ctx, col.ID, page)
		if err != nil || !data.Result {
			if err == nil {
				err = fmt.Errorf("invalid response")
			}
			r.tel.ReportWarning(
				report_sync_collection,
				fmt.Errorf("page %d of collection %s, stopping sync for this collection: %w", page, cid, err),
			)
			return nil
		}

		if len(data.Items) == 0 {
			r.tel.ReportDebug(fmt.Sprintf("reached end of raindrops for collection %s", cid))
			status.LastSyncedPage = page
			return r.save()
		}

		foundUnseen := false
		for _, b := range data.Items {
			if b.Collection.ID != col.ID {
				r.tel.ReportWarning(
					report_sync_collection,
					fmt.Errorf("incorrect collection id (%d != %d)", b.Collection.ID, col.ID),
				)
				continue
			}
			if !isNewer(b.Created, status.LastSyncedTimestamp) {
				continue
			}

			foundUnseen = true
			_, err := r.mmry.Add(ctx, toItem(b))
			if err != nil {
				return err
			}
			r.imported++

			created := b.Created
			status.LastSyncedTimestamp = &created
			status.LastSyncedPage = page
			err = r.save()
			if err != nil {
				return err
			}

			if r.settings.LimitReached(r.imported) {
				return nil
			}
		}

		if !foundUnseen && len(data.Items) == perPage {
			r.tel.ReportDebug(fmt.Sprintf("no unseen items: collection %s, page %d", cid, page))
			return nil
		}
	}
}

func toItem(b bookmark) mmry.Item {
	return mmry.Item{
		ExternalID: fmt.Sprintf("raindrop-%d", b.ID),
		Content: textutil.FormatFields(
			textutil.Field{Name: "Title", Value: b.Title},
			textutil.Field{Name: "URL", Value: b.Link},
			textutil.Field{Name: "Excerpt", Value: b.Excerpt},
			textutil.Field{Name: "Note", Value: b.Note},
			textutil.Field{Name: "Tags", Value: strings.Join(b.Tags, ", ")},
		),
		CreatedAt: b.Created,
		UpdatedAt: b.LastUpdate,
		Href:      b.Link,
	}
}
