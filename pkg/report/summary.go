package report

import (
	"fmt"
	"io"

	"github.com/gookit/color"
	"github.com/lance6716/plan-replayer/pkg/compare"
	"github.com/mattn/go-runewidth"
)

type status string

const (
	statusPass status = "PASS"
	statusFail status = "FAIL"
	statusSkip status = "SKIP"
)

func statusOf(o *compare.Outcome) (status, string) {
	switch {
	case o.Skipped:
		return statusSkip, "previously ran"
	case o.Err != nil:
		return statusFail, o.Err.Error()
	case o.Passed():
		return statusPass, ""
	default:
		return statusFail, o.DiffPath
	}
}

var statusStyles = map[status]color.Color{
	statusPass: color.FgGreen,
	statusFail: color.FgRed,
	statusSkip: color.FgYellow,
}

// WriteSummary writes one aligned line per outcome and a total line.
func WriteSummary(w io.Writer, outcomes []*compare.Outcome) error {
	width := 0
	for _, o := range outcomes {
		width = max(width, runewidth.StringWidth(o.QueryID))
	}

	var passed, failed, skipped int
	for _, o := range outcomes {
		s, detail := statusOf(o)
		switch s {
		case statusPass:
			passed++
		case statusSkip:
			skipped++
		default:
			failed++
		}
		if s == statusFail && o.Err != nil {
			detail = string(o.Stage) + ": " + detail
		}
		line := statusStyles[s].Sprint(string(s)) + "  " + runewidth.FillRight(o.QueryID, width)
		if detail != "" {
			line += "  " + detail
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}

	total := fmt.Sprintf("%d passed, %d failed, %d skipped", passed, failed, skipped)
	if failed > 0 {
		total = color.FgRed.Sprint(total)
	} else {
		total = color.FgGreen.Sprint(total)
	}
	_, err := fmt.Fprintln(w, total)
	return err
}
