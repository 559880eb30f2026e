// Package report presents the outcomes of a verify run, as a console summary
// and as an HTML file.
package report

import (
	"html/template"
	"io"
	"os"
	"strings"

	"github.com/lance6716/plan-replayer/pkg/compare"
	"github.com/lance6716/plan-replayer/pkg/filemgr"
	"github.com/pingcap/errors"
)

var t = template.Must(template.New("report").Parse(tpl))

type Report struct {
	TaskInfoItems [][2]string // [key, value]
	Summary       Summary
	Queries       Table
	Details       []Details
}

type Summary struct {
	Overall int
	Passed  int
	Failed  int
	Skipped int
}

type Table struct {
	Header []string
	Data   [][]string
}

type Details struct {
	Header string
	Labels [][2]string
	Source *Plan
	Target *Plan
	Diff   string
}

type Plan struct {
	Labels [][2]string
	Text   string
}

// NewReport builds a Report from outcomes. Plans and diffs of failed queries
// are read from their artifact folders under outDir, a missing file leaves the
// section out.
func NewReport(taskInfo [][2]string, outcomes []*compare.Outcome, outDir string) *Report {
	r := &Report{
		TaskInfoItems: taskInfo,
		Queries:       Table{Header: []string{"Query", "Result", "Stage", "Detail"}},
	}
	for _, o := range outcomes {
		r.Summary.Overall++
		status, detail := statusOf(o)
		switch status {
		case statusPass:
			r.Summary.Passed++
		case statusSkip:
			r.Summary.Skipped++
		default:
			r.Summary.Failed++
		}
		r.Queries.Data = append(r.Queries.Data, []string{o.QueryID, string(status), string(o.Stage), detail})
		if status == statusFail {
			r.Details = append(r.Details, newDetails(o, filemgr.NewQueryManager(outDir, o.QueryID)))
		}
	}
	return r
}

func newDetails(o *compare.Outcome, mgr *filemgr.Manager) Details {
	d := Details{
		Header: o.QueryID,
		Labels: [][2]string{{"Query File", o.QueryFile}},
	}
	if o.Err != nil {
		d.Labels = append(d.Labels, [2]string{"Failed Stage", string(o.Stage)}, [2]string{"Error", o.Err.Error()})
	}
	if query, err := mgr.ReadQuery(); err == nil {
		d.Labels = append(d.Labels, [2]string{"Query", strings.TrimSpace(query)})
	}
	if lines, err := mgr.ReadPlan(); err == nil {
		d.Source = &Plan{
			Labels: [][2]string{{"File", mgr.Path(filemgr.PlanFilename)}},
			Text:   strings.Join(lines, "\n"),
		}
	}
	if lines, err := mgr.ReadSimPlan(); err == nil {
		d.Target = &Plan{
			Labels: [][2]string{{"File", mgr.Path(filemgr.SimPlanFilename)}},
			Text:   strings.Join(lines, "\n"),
		}
	}
	if o.DiffPath != "" {
		if diff, err := os.ReadFile(o.DiffPath); err == nil {
			d.Diff = string(diff)
		}
	}
	return d
}

func Render(r *Report, outFilename string) error {
	file, err := os.Create(outFilename)
	if err != nil {
		return errors.Trace(err)
	}
	defer file.Close()

	return render(r, file)
}

func render(r *Report, w io.Writer) error {
	return errors.Annotate(t.Execute(w, r), "render report")
}
