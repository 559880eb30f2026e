// Package dialect describes the PostgreSQL-compatible engines the tools work
// with.
package dialect

import (
	"sort"
	"strings"

	"github.com/lance6716/plan-replayer/pkg/stats"
	"github.com/pingcap/errors"
)

// Dialect is what differs between engines speaking the PostgreSQL protocol.
type Dialect struct {
	Name string
	// Alias is a short name, also used in the name of create scripts like
	// create.yb.sql.
	Alias       string
	DefaultPort int
	DefaultUser string

	DumpTool     string
	ShellTool    string
	CreateDBTool string
	DropDBTool   string

	// PrivilegeSetting must be on to write catalog tables in a DML transaction.
	PrivilegeSetting string
	// CatalogVersionBump makes other sessions reload catalog caches.
	CatalogVersionBump string
	// SupportsColocation means the create database tool takes --colocation.
	SupportsColocation bool
}

var (
	// Postgres is vanilla PostgreSQL.
	Postgres = &Dialect{
		Name:         "postgres",
		Alias:        "pg",
		DefaultPort:  5432,
		DefaultUser:  "postgres",
		DumpTool:     "pg_dump",
		ShellTool:    "psql",
		CreateDBTool: "createdb",
		DropDBTool:   "dropdb",
	}
	// Yugabyte is YugabyteDB YSQL. Per-database catalog versions are bumped
	// together with the global one.
	Yugabyte = &Dialect{
		Name:               "yugabyte",
		Alias:              "yb",
		DefaultPort:        5433,
		DefaultUser:        "yugabyte",
		DumpTool:           "ysql_dump",
		ShellTool:          "ysqlsh",
		CreateDBTool:       "createdb",
		DropDBTool:         "dropdb",
		PrivilegeSetting:   "yb_non_ddl_txn_for_sys_tables_allowed",
		CatalogVersionBump: "UPDATE pg_yb_catalog_version SET current_version = current_version + 1 WHERE db_oid IN (1, (SELECT oid FROM pg_database WHERE datname = current_database()))",
		SupportsColocation: true,
	}
)

var dialects = map[string]*Dialect{
	Postgres.Name:  Postgres,
	Postgres.Alias: Postgres,
	Yugabyte.Name:  Yugabyte,
	Yugabyte.Alias: Yugabyte,
}

// Lookup finds a dialect by name, case-insensitively.
func Lookup(name string) (*Dialect, error) {
	if d, ok := dialects[strings.ToLower(name)]; ok {
		return d, nil
	}
	names := make([]string, 0, len(dialects))
	for n := range dialects {
		names = append(names, n)
	}
	sort.Strings(names)
	return nil, errors.Errorf("unknown dialect %q, supported: %s", name, strings.Join(names, ", "))
}

// Tools returns every external tool the dialect needs.
func (d *Dialect) Tools() []string {
	return []string{d.DumpTool, d.ShellTool, d.CreateDBTool, d.DropDBTool}
}

// CreateScripts returns the candidate names of the script creating a benchmark
// database, most specific first.
func (d *Dialect) CreateScripts() []string {
	return []string{"create." + d.Name + ".sql", "create." + d.Alias + ".sql", "create.sql"}
}

// ImportOptions returns the statistics importer options of the dialect.
func (d *Dialect) ImportOptions(updateCompanionIndex bool) stats.ImportOptions {
	return stats.ImportOptions{
		PrivilegeSetting:     d.PrivilegeSetting,
		CatalogVersionBump:   d.CatalogVersionBump,
		UpdateCompanionIndex: updateCompanionIndex,
	}
}
