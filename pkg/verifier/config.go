package verifier

import (
	"path/filepath"
	"time"

	"github.com/lance6716/plan-replayer/pkg/dialect"
	"github.com/lance6716/plan-replayer/pkg/stats"
	"github.com/lance6716/plan-replayer/pkg/util"
	"github.com/pingcap/errors"
)

// queriesSubDir holds one query per file inside a benchmark directory.
const queriesSubDir = "queries"

const defaultSettleInterval = 100 * time.Millisecond

// Config is a static struct for a verify run.
type Config struct {
	// Benchmark names the test databases, the base name of BenchmarkPath if
	// empty.
	Benchmark     string
	BenchmarkPath string
	OutDir        string

	Source  util.ConnParams
	Target  util.ConnParams
	Dialect *dialect.Dialect
	Schema  string

	IgnoreRanTests bool
	KeepTestDB     bool
	CreateSourceDB bool
	Colocation     bool
	// Toggles are SET statements applied before EXPLAIN on both sides.
	Toggles              []string
	UpdateCompanionIndex bool
	StatsExtension       string
	FlagsURL             string
	// SettleInterval is waited after statistics replay for the new catalog
	// version to reach every node.
	SettleInterval time.Duration
}

func (c *Config) ensureDefaults() {
	if c.Benchmark == "" && c.BenchmarkPath != "" {
		c.Benchmark = filepath.Base(filepath.Clean(c.BenchmarkPath))
	}
	if c.Dialect == nil {
		c.Dialect = dialect.Postgres
	}
	if c.Schema == "" {
		c.Schema = stats.DefaultSchema
	}
	if c.SettleInterval == 0 {
		c.SettleInterval = defaultSettleInterval
	}
}

func (c *Config) validate() error {
	if c.BenchmarkPath == "" {
		return errors.New("benchmark path is required")
	}
	if c.OutDir == "" {
		return errors.New("output directory is required")
	}
	if c.Source.Database == "" {
		return errors.New("source database is required")
	}
	return nil
}

func (c *Config) queriesDir() string {
	return filepath.Join(c.BenchmarkPath, queriesSubDir)
}
