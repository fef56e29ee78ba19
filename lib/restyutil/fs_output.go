package restyutil

import (
	"fmt"
	"os"
	"path/filepath"

	devenv "github.com/mmry-org/mmry-plugins/dev/env"
	"github.com/mmry-org/mmry-plugins/internal/components/telemetry"
)

const report_fs_output_write = "fs-output.write"

// FilesystemOutput writes every dumped http exchange to its own file in a directory.
type FilesystemOutput struct {
	directory string
	tel       telemetry.API
}

// NewFilesystemOutput (re)creates `dir`, which may start with <dev_state>.
func NewFilesystemOutput(dir string, tel telemetry.API) (FilesystemOutput, error) {
	dir, err := devenv.ResolvePath(dir)
	if err != nil {
		return FilesystemOutput{}, err
	}
	err = os.RemoveAll(dir)
	if err != nil {
		return FilesystemOutput{}, err
	}
	err = os.MkdirAll(dir, 0777)
	if err != nil {
		return FilesystemOutput{}, fmt.Errorf("create http dump dir: %w", err)
	}
	if tel == nil {
		tel = telemetry.NewSlogAPI(nil)
	}
	return FilesystemOutput{directory: dir, tel: tel}, nil
}

func (o FilesystemOutput) Directory() string {
	return o.directory
}

func (o FilesystemOutput) Write(id string, contents string) {
	err := os.WriteFile(filepath.Join(o.directory, id), []byte(contents), 0600)
	if err != nil {
		o.tel.ReportWarning(report_fs_output_write, err, id)
	}
}
