// Package schema dumps the DDL of relations from the source and loads it into
// test databases.
package schema

import (
	"bufio"
	"context"
	"regexp"
	"strings"

	"github.com/lance6716/plan-replayer/pkg/dialect"
	"github.com/lance6716/plan-replayer/pkg/extproc"
	"github.com/lance6716/plan-replayer/pkg/util"
	"github.com/pingcap/errors"
	"go.uber.org/zap"
)

// ddlNoiseRe matches lines of a schema dump that must not be replayed: comments,
// session settings, the search_path reset and ownership changes.
var ddlNoiseRe = regexp.MustCompile(`(?:^--)|(?:^SET)|(?:^SELECT pg_catalog)|(?:^ALTER TABLE [\w\.]+ OWNER TO)`)

// FilterDDL removes the lines matched by ddlNoiseRe and blank lines.
func FilterDDL(dump string) string {
	var b strings.Builder
	sc := bufio.NewScanner(strings.NewReader(dump))
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if strings.TrimSpace(line) == "" || ddlNoiseRe.MatchString(line) {
			continue
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String()
}

// Dumper reads schema-only DDL through the dump tool of the dialect.
type Dumper struct {
	runner  extproc.Runner
	dialect *dialect.Dialect
	conn    util.ConnParams
}

// NewDumper creates a Dumper of the database in conn.
func NewDumper(runner extproc.Runner, d *dialect.Dialect, conn util.ConnParams) *Dumper {
	return &Dumper{runner: runner, dialect: d, conn: conn}
}

// DumpDDL returns the filtered DDL of the given relations of namespace, or of
// the whole database when relations is empty.
func (d *Dumper) DumpDDL(ctx context.Context, namespace string, relations []string) (string, error) {
	args := append(d.conn.ToolArgs(), "-d", d.conn.Database, "--schema-only")
	for _, r := range relations {
		args = append(args, "-t", quotePattern(namespace)+"."+quotePattern(r))
	}
	cmd := extproc.Command{Name: d.dialect.DumpTool, Args: args, Env: d.conn.ToolEnv()}
	res, err := extproc.RunExpect(ctx, d.runner, cmd, 0)
	if err != nil {
		return "", errors.Annotatef(err, "dump schema of %v", relations)
	}
	util.Logger.Debug("dumped schema",
		zap.String("database", d.conn.Database),
		zap.Strings("relations", relations),
		zap.Int("bytes", len(res.Stdout)))
	return FilterDDL(string(res.Stdout)), nil
}

// quotePattern makes the dump tool match name exactly, pattern characters and
// case included.
func quotePattern(name string) string {
	return util.QuoteIdentifier(name)
}
