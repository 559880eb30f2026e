package compare

// Stage is a step of the per-query pipeline of the verifier.
type Stage string

const (
	StageCapture   Stage = "capture"
	StageProvision Stage = "provision"
	StageLoad      Stage = "schema load"
	StageReplay    Stage = "statistics replay"
	StageCompare   Stage = "plan comparison"
)

// Outcome is the verdict for one query, the final result unit of a verify run.
// A query that stopped early has Err set and Stage tells where.
type Outcome struct {
	QueryID   string
	QueryFile string
	Result    Result
	// DiffPath is set when Result is Diff.
	DiffPath string
	Stage    Stage
	Err      error
	Skipped  bool
}

// Passed reports whether the replayed plan matched the captured one.
func (o *Outcome) Passed() bool {
	return o.Err == nil && !o.Skipped && o.Result == Same
}

// Failed reports whether the query did not pass and was not skipped.
func (o *Outcome) Failed() bool {
	return !o.Skipped && !o.Passed()
}
