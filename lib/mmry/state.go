package mmry

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/mmry-org/mmry-plugins/internal/components/telemetry"
)

const (
	report_state_read  = "state.read"
	report_state_write = "state.write"
)

// State is the persisted key-value store of a run, backed by <run dir>/data.json.
//
// Values are kept as raw JSON so plugins can decode them into their own types. Changes
// are only in memory until Write is called.
type State struct {
	lock sync.Mutex
	path string
	data map[string]json.RawMessage
	tel  telemetry.API
}

// State opens the run's state, it is read from disk only on the first call,
// every call returns the same *State.
func (c *Client) State() (*State, error) {
	c.stateOnce.Do(func() {
		s := &State{
			path: filepath.Join(c.runDir, stateFile),
			data: map[string]json.RawMessage{},
			tel:  c.tel,
		}
		err := s.Read()
		if err != nil {
			c.stateErr = err
			return
		}
		c.state = s
	})
	return c.state, c.stateErr
}

func (s *State) Path() string {
	return s.path
}

// Read replaces the in-memory state with the contents of the file, a missing file
// results in an empty state.
func (s *State) Read() error {
	contents, err := os.ReadFile(s.path)
	if isNotExist(err) {
		s.lock.Lock()
		s.data = map[string]json.RawMessage{}
		s.lock.Unlock()
		return nil
	}
	if err != nil {
		s.tel.ReportBroken(report_state_read, err, s.path)
		return err
	}

	data := map[string]json.RawMessage{}
	if len(bytes.TrimSpace(contents)) > 0 {
		err = json.Unmarshal(contents, &data)
		if err != nil {
			err = fmt.Errorf("mmry: parse %s: %w", s.path, err)
			s.tel.ReportBroken(report_state_read, err)
			return err
		}
	}

	s.lock.Lock()
	s.data = data
	s.lock.Unlock()
	return nil
}

// Write persists the state, the file is replaced atomically.
func (s *State) Write() error {
	s.lock.Lock()
	contents, err := json.MarshalIndent(s.data, "", "  ")
	s.lock.Unlock()
	if err != nil {
		s.tel.ReportBroken(report_state_write, err)
		return err
	}

	err = writeFileAtomic(s.path, contents)
	if err != nil {
		s.tel.ReportBroken(report_state_write, err, s.path)
		return err
	}
	return nil
}

// Get decodes the value of `key` into `out`, it returns false if the key is absent.
func (s *State) Get(key string, out any) (bool, error) {
	s.lock.Lock()
	raw, ok := s.data[key]
	s.lock.Unlock()
	if !ok {
		return false, nil
	}
	err := json.Unmarshal(raw, out)
	if err != nil {
		return true, fmt.Errorf("mmry: decode state key %s: %w", key, err)
	}
	return true, nil
}

func (s *State) Set(key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("mmry: encode state key %s: %w", key, err)
	}
	s.lock.Lock()
	s.data[key] = raw
	s.lock.Unlock()
	return nil
}

func (s *State) Delete(key string) {
	s.lock.Lock()
	delete(s.data, key)
	s.lock.Unlock()
}

func (s *State) Keys() []string {
	s.lock.Lock()
	defer s.lock.Unlock()
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Snapshot returns a copy of the raw state.
func (s *State) Snapshot() map[string]json.RawMessage {
	s.lock.Lock()
	defer s.lock.Unlock()
	out := make(map[string]json.RawMessage, len(s.data))
	for k, v := range s.data {
		out[k] = append(json.RawMessage(nil), v...)
	}
	return out
}

// LoadState decodes the whole state into a struct, keys that aren't persisted
// yet keep the values given in `defaults`.
func LoadState[T any](s *State, defaults T) (T, error) {
	contents, err := json.Marshal(s.Snapshot())
	if err != nil {
		return defaults, err
	}
	out := defaults
	err = json.Unmarshal(contents, &out)
	if err != nil {
		return defaults, fmt.Errorf("mmry: decode state: %w", err)
	}
	return out, nil
}

// SaveState merges the keys of `value` (which must encode to a JSON object) into
// the state and writes it.
func SaveState[T any](s *State, value T) error {
	contents, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("mmry: encode state: %w", err)
	}
	var fields map[string]json.RawMessage
	err = json.Unmarshal(contents, &fields)
	if err != nil {
		return fmt.Errorf("mmry: state must encode to a JSON object: %w", err)
	}

	s.lock.Lock()
	for k, v := range fields {
		s.data[k] = v
	}
	s.lock.Unlock()

	return s.Write()
}

func writeFileAtomic(path string, contents []byte) error {
	err := os.MkdirAll(filepath.Dir(path), 0750)
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	err = os.WriteFile(tmp, contents, 0600)
	if err != nil {
		return err
	}
	err = os.Rename(tmp, path)
	if err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}
