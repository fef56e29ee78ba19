package mmry

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/mmry-org/mmry-plugins/internal/components/telemetry"
)

const report_item_iterator = "item-iterator"

var (
	// ErrAtEnd is returned by Next once every item has been read.
	ErrAtEnd = errors.New("mmry: no more items")
	// ErrStopIteration can be returned from an Iterate callback to stop without an error.
	ErrStopIteration = errors.New("mmry: stop iterating")
)

// ItemIterator lazily reads the *.json items of a directory in name order. The
// directory is only listed on the first call to Next.
type ItemIterator struct {
	dir    string
	tel    telemetry.API
	listed bool
	names  []string
	next   int
}

// InputItems enumerates the items given to the plugin, see Options.InDir.
func (c *Client) InputItems() *ItemIterator {
	return &ItemIterator{dir: c.inDir, tel: c.tel}
}

// OutputItems enumerates the items written so far to the out directory.
func (c *Client) OutputItems() *ItemIterator {
	return &ItemIterator{dir: c.outDir, tel: c.tel}
}

func (it *ItemIterator) list() error {
	it.listed = true
	entries, err := os.ReadDir(it.dir)
	if isNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("mmry: list %s: %w", it.dir, err)
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		it.names = append(it.names, e.Name())
	}
	sort.Strings(it.names)
	return nil
}

// Next returns the next readable item, corrupt files are reported and skipped.
func (it *ItemIterator) Next() (StoredItem, error) {
	if !it.listed {
		err := it.list()
		if err != nil {
			return StoredItem{}, err
		}
	}

	for it.next < len(it.names) {
		name := it.names[it.next]
		it.next++

		path := filepath.Join(it.dir, name)
		contents, err := os.ReadFile(path)
		if err != nil {
			it.tel.ReportWarning(report_item_iterator, err, path)
			continue
		}
		var item Item
		err = json.Unmarshal(contents, &item)
		if err != nil {
			it.tel.ReportWarning(report_item_iterator, fmt.Errorf("parse: %w", err), path)
			continue
		}

		id := strings.TrimSuffix(name, ".json")
		if item.ID == "" {
			item.ID = id
		}
		return StoredItem{ID: id, Path: path, Item: item}, nil
	}
	return StoredItem{}, ErrAtEnd
}

// Iterate calls fn for every remaining item. Returning ErrStopIteration from fn
// ends the iteration with a nil error, any other error is returned as is.
func (it *ItemIterator) Iterate(fn func(item StoredItem) error) error {
	item, err := it.Next()
	for ; err == nil; item, err = it.Next() {
		err = fn(item)
		if err != nil {
			break
		}
	}
	if errors.Is(err, ErrAtEnd) || errors.Is(err, ErrStopIteration) {
		return nil
	}
	return err
}

// Collect reads every remaining item.
func (it *ItemIterator) Collect() ([]StoredItem, error) {
	var out []StoredItem
	err := it.Iterate(func(item StoredItem) error {
		out = append(out, item)
		return nil
	})
	return out, err
}
