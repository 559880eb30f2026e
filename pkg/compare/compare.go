// Package compare decides whether the plan observed on a test database matches
// the plan captured on the source.
package compare

import (
	"github.com/pingcap/errors"
	"github.com/pmezard/go-difflib/difflib"
)

type Result string

const (
	Same Result = "same"
	Diff Result = "different"
)

// diffContext is the number of unchanged lines around each hunk.
const diffContext = 3

// CmpPlanLines compares two plans line by line. When they differ it also
// returns a unified diff labelled with fromFile and toFile.
func CmpPlanLines(expected, actual []string, fromFile, toFile string) (Result, string, error) {
	if equalLines(expected, actual) {
		return Same, "", nil
	}
	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        withNewlines(expected),
		B:        withNewlines(actual),
		FromFile: fromFile,
		ToFile:   toFile,
		Context:  diffContext,
	})
	if err != nil {
		return Diff, "", errors.Annotate(err, "failed to compute plan diff")
	}
	return Diff, diff, nil
}

func equalLines(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func withNewlines(lines []string) []string {
	ret := make([]string, len(lines))
	for i, l := range lines {
		ret[i] = l + "\n"
	}
	return ret
}
