package mmry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

const (
	report_client_inputs     = "client.inputs"
	report_client_input_file = "client.input-file"
)

var ErrInputNotFound = errors.New("mmry: input not found")

// Input is one user supplied value, a token, a path or a url.
type Input struct {
	ID    string `json:"id"`
	Value string `json:"value"`
}

// UnmarshalJSON accepts values that aren't strings and keeps their JSON text.
func (i *Input) UnmarshalJSON(b []byte) error {
	var raw struct {
		ID    string          `json:"id"`
		Value json.RawMessage `json:"value"`
	}
	err := json.Unmarshal(b, &raw)
	if err != nil {
		return err
	}
	i.ID = raw.ID
	i.Value = ""

	value := bytes.TrimSpace(raw.Value)
	if len(value) == 0 || bytes.Equal(value, []byte("null")) {
		return nil
	}
	if value[0] == '"' {
		return json.Unmarshal(value, &i.Value)
	}
	i.Value = string(value)
	return nil
}

// InputFile is an input whose value is a path on the local filesystem.
type InputFile struct {
	Path string
	Info fs.FileInfo
}

// Inputs parses MMRY_INPUTS, an unset variable means no inputs.
func (c *Client) Inputs() ([]Input, error) {
	raw, ok := c.lookupEnv(EnvInputs)
	if !ok || len(bytes.TrimSpace([]byte(raw))) == 0 {
		return nil, nil
	}
	var inputs []Input
	err := json.Unmarshal([]byte(raw), &inputs)
	if err != nil {
		err = fmt.Errorf("mmry: parse %s: %w", EnvInputs, err)
		c.tel.ReportBroken(report_client_inputs, err)
		return nil, err
	}
	return inputs, nil
}

// Input returns the first input with the given id.
func (c *Client) Input(id string) (Input, bool, error) {
	inputs, err := c.Inputs()
	if err != nil {
		return Input{}, false, err
	}
	for _, in := range inputs {
		if in.ID == id {
			return in, true, nil
		}
	}
	return Input{}, false, nil
}

// InputValue returns the value of an input or an empty string if it is missing
// or the inputs couldn't be parsed.
func (c *Client) InputValue(id string) string {
	in, ok, err := c.Input(id)
	if err != nil || !ok {
		return ""
	}
	return in.Value
}

// InputFile resolves an input's value to an absolute path (following symlinks) and stats it.
func (c *Client) InputFile(id string) (InputFile, error) {
	in, ok, err := c.Input(id)
	if err != nil {
		return InputFile{}, err
	}
	if !ok || in.Value == "" {
		return InputFile{}, fmt.Errorf("%w: %s", ErrInputNotFound, id)
	}

	path, err := filepath.Abs(in.Value)
	if err != nil {
		c.tel.ReportBroken(report_client_input_file, err, id)
		return InputFile{}, err
	}
	path, err = filepath.EvalSymlinks(path)
	if err != nil {
		c.tel.ReportBroken(report_client_input_file, err, id)
		return InputFile{}, err
	}
	info, err := os.Stat(path)
	if err != nil {
		c.tel.ReportBroken(report_client_input_file, err, id)
		return InputFile{}, err
	}

	return InputFile{Path: path, Info: info}, nil
}
