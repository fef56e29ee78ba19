package mmry

import (
	"encoding/json"
	"os"
	"path/filepath"
)

const report_client_status = "client.status"

// StatusRecord is what the host shows the user about the last run.
type StatusRecord struct {
	Message   string `json:"message"`
	UpdatedAt string `json:"updatedAt"`
}

// Status sets the user-visible status of the run. It is reported and written to
// <run dir>/status.json, write failures are only reported.
func (c *Client) Status(message string) {
	c.tel.ReportInfo(message)

	record := StatusRecord{
		Message:   message,
		UpdatedAt: ISOTime(c.time.Now()),
	}
	contents, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		c.tel.ReportBroken(report_client_status, err)
		return
	}
	err = writeFileAtomic(filepath.Join(c.runDir, statusFile), contents)
	if err != nil {
		c.tel.ReportBroken(report_client_status, err)
	}
}

// LastStatus reads status.json, false if no status was set yet.
func (c *Client) LastStatus() (StatusRecord, bool, error) {
	contents, err := os.ReadFile(filepath.Join(c.runDir, statusFile))
	if isNotExist(err) {
		return StatusRecord{}, false, nil
	}
	if err != nil {
		return StatusRecord{}, false, err
	}
	var record StatusRecord
	err = json.Unmarshal(contents, &record)
	if err != nil {
		return StatusRecord{}, false, err
	}
	return record, true, nil
}
