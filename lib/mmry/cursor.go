package mmry

import (
	"context"
	"encoding/json"
)

// Cursor is a single named marker in the state recording how far a source has been
// synced, usually a timestamp or a page number. An unset cursor is stored as null.
type Cursor struct {
	state *State
	name  string
}

func (s *State) Cursor(name string) Cursor {
	return Cursor{state: s, name: name}
}

func (c Cursor) Name() string {
	return c.name
}

// Get returns the cursor's value, false if it was never set or was cleared.
func (c Cursor) Get(ctx context.Context) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	var value *string
	ok, err := c.state.Get(c.name, &value)
	if err != nil || !ok || value == nil {
		return "", false, err
	}
	return *value, true, nil
}

// Set stores a new value and persists the state immediately, so an interrupted
// sync resumes from here.
func (c Cursor) Set(ctx context.Context, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := c.state.Set(c.name, value)
	if err != nil {
		return err
	}
	return c.state.Write()
}

// Clear resets the cursor to null and persists the state.
func (c Cursor) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := c.state.Set(c.name, json.RawMessage("null"))
	if err != nil {
		return err
	}
	return c.state.Write()
}
