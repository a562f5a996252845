// Package status renders the fleet as a report: one row per worker plus
// per-status counts. The same report backs the CLI table and the HTTP API.
package status

import (
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"

	"crawlfleet/internal/model"
	"crawlfleet/pkg/constants"

	"github.com/shopspring/decimal"
)

const unknown = "-"

var hundred = decimal.NewFromInt(100)

// WorkerView one worker as reported
type WorkerView struct {
	Name     string `json:"name"`
	Tag      string `json:"tag"`
	ID       int    `json:"id"`
	Status   string `json:"status"`
	Packages *int   `json:"packages"`
	Index    *int   `json:"index"`
	Start    int    `json:"start_index"`
	End      int    `json:"end_index"`
	Progress string `json:"progress"` // Percent of the shard behind the progress index, "-" when unknown
}

// Summary per-status counts
type Summary struct {
	Total    int  `json:"total"`
	Running  int  `json:"running"`
	Stopped  int  `json:"stopped"`
	Done     int  `json:"done"`
	Packages int  `json:"packages"`
	Complete bool `json:"complete"` // Non-empty fleet with every worker Done
}

// Report fleet report
type Report struct {
	Summary Summary      `json:"summary"`
	Workers []WorkerView `json:"workers"`
}

// NewWorkerView reports one worker
func NewWorkerView(w *model.Worker) WorkerView {
	return WorkerView{
		Name:     w.Name,
		Tag:      w.Tag,
		ID:       w.ID,
		Status:   w.Status.String(),
		Packages: w.Packages,
		Index:    w.Index,
		Start:    w.Config.StartIndex,
		End:      w.Config.EndIndex,
		Progress: Progress(w),
	}
}

// Build reports every worker of the fleet in listing order
func Build(fleet *model.Fleet) *Report {
	workers := fleet.List()
	report := &Report{Workers: make([]WorkerView, 0, len(workers))}
	for _, w := range workers {
		report.Workers = append(report.Workers, NewWorkerView(w))
		report.Summary.Total++
		if w.Packages != nil {
			report.Summary.Packages += *w.Packages
		}
		switch w.Status {
		case constants.WorkerStatusRunning:
			report.Summary.Running++
		case constants.WorkerStatusStopped:
			report.Summary.Stopped++
		case constants.WorkerStatusDone:
			report.Summary.Done++
		default:
			panic(fmt.Sprintf("unhandled worker status %q", string(w.Status)))
		}
	}
	report.Summary.Complete = report.Summary.Total > 0 && report.Summary.Done == report.Summary.Total
	return report
}

// Progress share of the shard [start, end) covered up to and including the
// progress index, as a percentage with one decimal.
func Progress(w *model.Worker) string {
	size := w.Config.EndIndex - w.Config.StartIndex
	if w.Index == nil || size <= 0 {
		return unknown
	}
	covered := *w.Index - w.Config.StartIndex + 1
	if covered < 0 {
		covered = 0
	}
	if covered > size {
		covered = size
	}
	pct := decimal.NewFromInt(int64(covered)).
		Mul(hundred).
		Div(decimal.NewFromInt(int64(size)))
	return pct.StringFixed(1) + "%"
}

// Render formats the report as an aligned text table followed by the summary
func Render(report *Report) string {
	var b strings.Builder
	tw := tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "Container\tStatus\tPackages\tIndex\tProgress")
	for _, w := range report.Workers {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", w.Name, w.Status, optional(w.Packages), optional(w.Index), w.Progress)
	}
	tw.Flush()

	s := report.Summary
	fmt.Fprintf(&b, "%d workers: %d running, %d stopped, %d done, %d packages", s.Total, s.Running, s.Stopped, s.Done, s.Packages)
	return b.String()
}

func optional(v *int) string {
	if v == nil {
		return unknown
	}
	return strconv.Itoa(*v)
}
