package telemetry

import (
	"fmt"
	"strings"
	"sync"
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarning
	LevelBroken
	LevelCount
)

type Report struct {
	Level  Level
	ID     string
	Params []any
	Count  int64
}

// Recorder implements API by keeping every report in memory.
type Recorder struct {
	logf    func(format string, args ...any)
	lock    sync.Mutex
	reports []Report
}

// NewRecorder creates a Recorder, when `logf` (ex. t.Logf) isn't nil each report
// is also written to it.
func NewRecorder(logf func(format string, args ...any)) *Recorder {
	return &Recorder{logf: logf}
}

func (r *Recorder) record(report Report) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.reports = append(r.reports, report)
	if r.logf != nil {
		r.logf("%s", report.String())
	}
}

func (r *Recorder) ReportBroken(id string, params ...any) {
	r.record(Report{Level: LevelBroken, ID: id, Params: params})
}

func (r *Recorder) ReportWarning(id string, params ...any) {
	r.record(Report{Level: LevelWarning, ID: id, Params: params})
}

func (r *Recorder) ReportInfo(msg string, params ...any) {
	r.record(Report{Level: LevelInfo, ID: msg, Params: params})
}

func (r *Recorder) ReportDebug(msg string, params ...any) {
	r.record(Report{Level: LevelDebug, ID: msg, Params: params})
}

func (r *Recorder) ReportCount(id string, count int64) {
	r.record(Report{Level: LevelCount, ID: id, Count: count})
}

// Reports returns a copy of everything recorded at the given level.
func (r *Recorder) Reports(level Level) []Report {
	r.lock.Lock()
	defer r.lock.Unlock()
	var out []Report
	for _, rep := range r.reports {
		if rep.Level == level {
			out = append(out, rep)
		}
	}
	return out
}

// Has returns true if a report at the given level has an id containing `substr`.
func (r *Recorder) Has(level Level, substr string) bool {
	for _, rep := range r.Reports(level) {
		if strings.Contains(rep.ID, substr) {
			return true
		}
	}
	return false
}

func (r Report) String() string {
	var prefix string
	switch r.Level {
	case LevelDebug:
		prefix = "DEBUG"
	case LevelInfo:
		prefix = "INFO"
	case LevelWarning:
		prefix = "WARN"
	case LevelBroken:
		prefix = "BROKEN"
	case LevelCount:
		return fmt.Sprintf("COUNT %s %d", r.ID, r.Count)
	}
	return fmt.Sprintf("%s %s %v", prefix, r.ID, r.Params)
}
