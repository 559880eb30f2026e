// Package source reads auxiliary planner inputs from the source database that
// are not statistics: overridden settings and server flags.
package source

import (
	"context"
	"database/sql"
	"strings"

	"github.com/lance6716/plan-replayer/pkg/util"
	"github.com/pingcap/errors"
)

// plannerSettings are settings not matched by the name prefixes that still
// change plans.
var plannerSettings = []string{
	"constraint_exclusion",
	"cpu_index_tuple_cost",
	"cpu_operator_cost",
	"cpu_tuple_cost",
	"cursor_tuple_fraction",
	"default_statistics_target",
	"effective_cache_size",
	"from_collapse_limit",
	"geqo",
	"geqo_threshold",
	"join_collapse_limit",
	"max_parallel_workers_per_gather",
	"parallel_setup_cost",
	"parallel_tuple_cost",
	"random_page_cost",
	"seq_page_cost",
	"work_mem",
}

const readSettingsSQL = `SELECT name, setting FROM pg_settings
WHERE source NOT IN ('default', 'override', 'client', 'session')
	AND (name LIKE 'enable\_%' OR name LIKE 'yb\_enable\_%' OR name = ANY($1::text[]))
ORDER BY name`

// ReadOverriddenSettings returns a SET statement for every planner setting of
// the source database that is not at its default value.
func ReadOverriddenSettings(ctx context.Context, db *sql.DB) ([]string, error) {
	rows, err := db.QueryContext(ctx, readSettingsSQL, util.StringArrayLiteral(plannerSettings))
	if err != nil {
		return nil, errors.Annotate(err, "read planner settings")
	}
	defer rows.Close()

	fields, allFound, err := util.ReadStrRowsByColumnName(rows, []string{"name", "setting"})
	if err != nil {
		return nil, errors.Trace(err)
	}
	if !allFound {
		return nil, errors.New("pg_settings does not have name and setting columns")
	}
	ret := make([]string, 0, len(fields))
	for _, f := range fields {
		ret = append(ret, SetStatement(f[0], f[1]))
	}
	return ret, nil
}

// SetStatement renders SET name = 'value';
func SetStatement(name, value string) string {
	return "SET " + name + " = " + util.QuoteLiteral(value) + ";"
}

// ParseToggles turns name=value pairs into SET statements.
func ParseToggles(toggles []string) ([]string, error) {
	ret := make([]string, 0, len(toggles))
	for _, t := range toggles {
		name, value, ok := strings.Cut(t, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" || strings.ContainsAny(name, " ;'\"") {
			return nil, errors.Errorf("planner toggle must look like name=value, got %q", t)
		}
		ret = append(ret, SetStatement(name, strings.TrimSpace(value)))
	}
	return ret, nil
}

// ParseSettingsFile returns the non-empty lines of a settings file, each is one
// SET statement.
func ParseSettingsFile(content string) []string {
	var ret []string
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "--") {
			continue
		}
		ret = append(ret, line)
	}
	return ret
}
