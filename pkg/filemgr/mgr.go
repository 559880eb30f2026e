package filemgr

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/lance6716/plan-replayer/pkg/source"
	"github.com/lance6716/plan-replayer/pkg/stats"
	"github.com/lance6716/plan-replayer/pkg/util"
	"github.com/pingcap/errors"
)

const (
	QueryFilename       = "query.sql"
	PlanFilename        = "query_plan.txt"
	DDLFilename         = "ddl.sql"
	StatsFilename       = "statistics.json"
	SettingsFilename    = "overridden_gucs.sql"
	ServerFlagsFilename = "server_flags.json"
	SimPlanFilename     = "sim_query_plan.txt"
	DiffFilename        = "query_plan_diff.txt"
)

// Manager owns the artifact folder of one query. The hierarchy is flat:
//
//	<dir>/query.sql
//	<dir>/query_plan.txt
//	<dir>/ddl.sql
//	<dir>/statistics.json
//	<dir>/overridden_gucs.sql
//	<dir>/server_flags.json    (optional)
//	<dir>/sim_query_plan.txt   (after replay)
//	<dir>/query_plan_diff.txt  (only when plans differ)
type Manager struct {
	dir string
}

// NewManager creates a new Manager instance on the given directory.
func NewManager(dir string) *Manager {
	return &Manager{dir: dir}
}

// NewQueryManager creates a Manager for query id under outDir.
func NewQueryManager(outDir, queryID string) *Manager {
	return NewManager(filepath.Join(outDir, util.EscapePath(queryID)))
}

// Dir returns the artifact folder.
func (m *Manager) Dir() string {
	return m.dir
}

// Path returns the path of the artifact named filename.
func (m *Manager) Path(filename string) string {
	return filepath.Join(m.dir, filename)
}

// Exists reports whether the artifact folder exists.
func (m *Manager) Exists() bool {
	return util.FileExists(m.dir)
}

// EnsureDir creates the artifact folder if needed.
func (m *Manager) EnsureDir() error {
	return errors.Trace(os.MkdirAll(m.dir, 0776))
}

func (m *Manager) write(filename string, content []byte) error {
	if err := m.EnsureDir(); err != nil {
		return err
	}
	return util.AtomicWrite(m.Path(filename), content)
}

func (m *Manager) read(filename string) ([]byte, error) {
	content, err := os.ReadFile(m.Path(filename))
	return content, errors.Annotatef(err, "read %s", filename)
}

// WriteQuery writes the query text.
func (m *Manager) WriteQuery(query string) error {
	return m.write(QueryFilename, []byte(query))
}

// ReadQuery reads the query text.
func (m *Manager) ReadQuery() (string, error) {
	content, err := m.read(QueryFilename)
	return string(content), err
}

// WritePlan writes the plan captured on the source.
func (m *Manager) WritePlan(lines []string) error {
	return m.write(PlanFilename, joinLines(lines))
}

// ReadPlan reads the plan captured on the source.
func (m *Manager) ReadPlan() ([]string, error) {
	content, err := m.read(PlanFilename)
	if err != nil {
		return nil, err
	}
	return splitLines(string(content)), nil
}

// WriteSimPlan writes the plan observed on the test database.
func (m *Manager) WriteSimPlan(lines []string) error {
	return m.write(SimPlanFilename, joinLines(lines))
}

// ReadSimPlan reads the plan observed on the test database.
func (m *Manager) ReadSimPlan() ([]string, error) {
	content, err := m.read(SimPlanFilename)
	if err != nil {
		return nil, err
	}
	return splitLines(string(content)), nil
}

// WriteDDL writes the filtered schema dump.
func (m *Manager) WriteDDL(ddl string) error {
	return m.write(DDLFilename, []byte(ddl))
}

// WriteSnapshot writes the statistics snapshot.
func (m *Manager) WriteSnapshot(s *stats.Snapshot) error {
	if err := m.EnsureDir(); err != nil {
		return err
	}
	return s.WriteFile(m.Path(StatsFilename))
}

// ReadSnapshot reads the statistics snapshot.
func (m *Manager) ReadSnapshot() (*stats.Snapshot, error) {
	return stats.ReadFile(m.Path(StatsFilename))
}

// WriteSettings writes the SET statements of overridden planner settings.
func (m *Manager) WriteSettings(stmts []string) error {
	return m.write(SettingsFilename, joinLines(stmts))
}

// ReadSettings reads the SET statements written by WriteSettings. A missing
// file means no overridden settings.
func (m *Manager) ReadSettings() ([]string, error) {
	content, err := os.ReadFile(m.Path(SettingsFilename))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Annotatef(err, "read %s", SettingsFilename)
	}
	return source.ParseSettingsFile(string(content)), nil
}

// WriteServerFlags writes the server flags as indented JSON.
func (m *Manager) WriteServerFlags(flags []source.ServerFlag) error {
	content, err := json.MarshalIndent(map[string][]source.ServerFlag{"flags": flags}, "", "    ")
	if err != nil {
		return errors.Trace(err)
	}
	return m.write(ServerFlagsFilename, content)
}

// WriteDiff writes the unified diff and returns its path.
func (m *Manager) WriteDiff(diff string) (string, error) {
	return m.Path(DiffFilename), m.write(DiffFilename, []byte(diff))
}

// RemoveDiff removes a diff left by a previous run.
func (m *Manager) RemoveDiff() error {
	err := os.Remove(m.Path(DiffFilename))
	if os.IsNotExist(err) {
		return nil
	}
	return errors.Trace(err)
}

func joinLines(lines []string) []byte {
	if len(lines) == 0 {
		return nil
	}
	return []byte(strings.Join(lines, "\n") + "\n")
}

func splitLines(content string) []string {
	content = strings.TrimSuffix(content, "\n")
	if content == "" {
		return nil
	}
	return strings.Split(content, "\n")
}
