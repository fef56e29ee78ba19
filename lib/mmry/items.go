package mmry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
)

const (
	report_client_add    = "client.add"
	report_client_update = "client.update"
)

var (
	ErrItemExists = errors.New("mmry: item already exists")
	ErrInvalidID  = errors.New("mmry: invalid item id")
)

var meter = otel.Meter("mmry-plugins/lib/mmry")
var itemsWritten, _ = meter.Int64Counter(
	"mmry.items_written",
	metric.WithDescription("items written to the out directory"),
)

// Item is a normalized record written to the item store.
//
// Metadata is flattened into the top level of the JSON object, it never overrides
// one of the named fields.
type Item struct {
	ID         string   `json:"id,omitempty"`
	ExternalID string   `json:"externalId,omitempty"`
	Content    string   `json:"content"`
	CreatedAt  string   `json:"createdAt,omitempty"`
	UpdatedAt  string   `json:"updatedAt,omitempty"`
	URLs       []string `json:"urls,omitempty"`
	Images     []string `json:"images,omitempty"`
	Collection string   `json:"collection,omitempty"`
	Href       string   `json:"href,omitempty"`

	Metadata map[string]any `json:"-"`
}

var itemFields = map[string]struct{}{
	"id":         {},
	"externalId": {},
	"content":    {},
	"createdAt":  {},
	"updatedAt":  {},
	"urls":       {},
	"images":     {},
	"collection": {},
	"href":       {},
}

type itemFieldsAlias Item

func (i Item) MarshalJSON() ([]byte, error) {
	base, err := json.Marshal(itemFieldsAlias(i))
	if err != nil {
		return nil, err
	}
	if len(i.Metadata) == 0 {
		return base, nil
	}

	var merged map[string]json.RawMessage
	err = json.Unmarshal(base, &merged)
	if err != nil {
		return nil, err
	}
	for k, v := range i.Metadata {
		if _, reserved := itemFields[k]; reserved {
			continue
		}
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("metadata %s: %w", k, err)
		}
		merged[k] = raw
	}
	return json.Marshal(merged)
}

func (i *Item) UnmarshalJSON(b []byte) error {
	var base itemFieldsAlias
	err := json.Unmarshal(b, &base)
	if err != nil {
		return err
	}
	var all map[string]any
	err = json.Unmarshal(b, &all)
	if err != nil {
		return err
	}

	*i = Item(base)
	for k, v := range all {
		if _, reserved := itemFields[k]; reserved {
			continue
		}
		if i.Metadata == nil {
			i.Metadata = map[string]any{}
		}
		i.Metadata[k] = v
	}
	return nil
}

// ISOTime formats a time the way item timestamps are stored, "2006-01-02T15:04:05.000Z".
func ISOTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z07:00")
}

// StoredItem is an item together with where it lives on disk.
type StoredItem struct {
	ID   string
	Path string
	Item Item
}

func validateID(id string) error {
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\`) {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return nil
}

// Add writes a new item to <out dir>/<uuid>.json. Existing files are never overwritten.
// The file name is the item's id, a caller set `item.ID` is not written.
func (c *Client) Add(ctx context.Context, item Item) (StoredItem, error) {
	ctx, span := tracer.Start(ctx, "client:Add")
	defer span.End()

	if err := ctx.Err(); err != nil {
		return StoredItem{}, err
	}

	id := c.newID()
	err := validateID(id)
	if err != nil {
		span.SetStatus(codes.Error, "invalid generated id")
		return StoredItem{}, err
	}
	path := filepath.Join(c.outDir, id+".json")
	span.SetAttributes(attribute.String("mmry.item_path", path))

	item.ID = ""
	contents, err := json.Marshal(item)
	if err != nil {
		span.RecordError(err)
		c.tel.ReportBroken(report_client_add, fmt.Errorf("json marshal: %w", err))
		return StoredItem{}, err
	}

	err = writeFileOnce(path, contents)
	if errors.Is(err, os.ErrExist) {
		err = fmt.Errorf("%w: %s", ErrItemExists, path)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to write item")
		c.tel.ReportBroken(report_client_add, err)
		return StoredItem{}, err
	}

	itemsWritten.Add(ctx, 1, metric.WithAttributes(attribute.String("op", "add")))
	c.tel.ReportInfo(fmt.Sprintf("Added %s", path))
	item.ID = id
	return StoredItem{ID: id, Path: path, Item: item}, nil
}

// AddMany adds items in order and stops at the first failure, returning how many were written.
func (c *Client) AddMany(ctx context.Context, items []Item) (int, error) {
	for i, item := range items {
		_, err := c.Add(ctx, item)
		if err != nil {
			c.tel.ReportCount(report_client_add, int64(i))
			return i, err
		}
	}
	c.tel.ReportCount(report_client_add, int64(len(items)))
	return len(items), nil
}

// Update (over)writes the item stored at <out dir>/<item.ID>.json.
func (c *Client) Update(ctx context.Context, item Item) (StoredItem, error) {
	ctx, span := tracer.Start(ctx, "client:Update")
	defer span.End()

	if err := ctx.Err(); err != nil {
		return StoredItem{}, err
	}
	err := validateID(item.ID)
	if err != nil {
		span.SetStatus(codes.Error, "invalid id")
		return StoredItem{}, err
	}
	path := filepath.Join(c.outDir, item.ID+".json")

	contents, err := json.Marshal(item)
	if err != nil {
		c.tel.ReportBroken(report_client_update, fmt.Errorf("json marshal: %w", err))
		return StoredItem{}, err
	}
	err = writeFileAtomic(path, contents)
	if err != nil {
		span.RecordError(err)
		c.tel.ReportBroken(report_client_update, err)
		return StoredItem{}, err
	}

	itemsWritten.Add(ctx, 1, metric.WithAttributes(attribute.String("op", "update")))
	c.tel.ReportInfo(fmt.Sprintf("Updated %s", path))
	return StoredItem{ID: item.ID, Path: path, Item: item}, nil
}

func (c *Client) UpdateMany(ctx context.Context, items []Item) (int, error) {
	for i, item := range items {
		_, err := c.Update(ctx, item)
		if err != nil {
			c.tel.ReportCount(report_client_update, int64(i))
			return i, err
		}
	}
	c.tel.ReportCount(report_client_update, int64(len(items)))
	return len(items), nil
}

func writeFileOnce(path string, contents []byte) error {
	err := os.MkdirAll(filepath.Dir(path), 0750)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return err
	}
	_, err = f.Write(contents)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(path)
		return err
	}
	return nil
}
