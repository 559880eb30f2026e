package stats

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/lance6716/plan-replayer/pkg/util"
	"github.com/pingcap/errors"
	"go.uber.org/zap"
)

// DefaultSchema is the namespace exported when none is given.
const DefaultSchema = "public"

// Querier is one database session. Session settings made through it must stay
// effective for later calls, so pass a *sql.Conn or a *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// ExportOptions configures an Exporter.
type ExportOptions struct {
	// Schema is the namespace to export, DefaultSchema if empty.
	Schema string
	// Extension is an optional statistics extension created for the duration
	// of the export. Failing to create it is not an error.
	Extension string
}

// Exporter reads row counts and column statistics from the catalog.
type Exporter struct {
	conn Querier
	opts ExportOptions
}

// NewExporter creates an Exporter on the given session.
func NewExporter(conn Querier, opts ExportOptions) *Exporter {
	if opts.Schema == "" {
		opts.Schema = DefaultSchema
	}
	return &Exporter{conn: conn, opts: opts}
}

// Export captures the statistics of the given relations of the schema, or of
// every relation in the schema when relations is empty. A relation that does
// not exist is skipped.
func (e *Exporter) Export(ctx context.Context, relations []string) (*Snapshot, error) {
	// shortest exact representation for real values
	if _, err := e.conn.ExecContext(ctx, "SET extra_float_digits = 3"); err != nil {
		return nil, errors.Annotate(err, "set float precision")
	}
	defer func() {
		_, err := e.conn.ExecContext(context.WithoutCancel(ctx), "RESET extra_float_digits")
		if err != nil {
			util.Logger.Warn("can't reset float precision", zap.Error(err))
		}
	}()
	if e.opts.Extension != "" {
		if created := e.enableExtension(ctx); created {
			defer e.dropExtension(ctx)
		}
	}

	pred, args := relationPredicate(e.opts.Schema, relations)
	rels, err := e.readRelationStats(ctx, pred, args)
	if err != nil {
		return nil, errors.Trace(err)
	}
	warnMissingRelations(e.opts.Schema, relations, rels)

	cols, err := e.readColumnStats(ctx, pred, args)
	if err != nil {
		return nil, errors.Trace(err)
	}
	s := &Snapshot{Relations: rels, Columns: cols}
	if err = s.Validate(); err != nil {
		return nil, errors.Annotate(err, "exported statistics")
	}
	util.Logger.Info("exported statistics",
		zap.String("schema", e.opts.Schema),
		zap.Int("relations", len(rels)),
		zap.Int("columns", len(cols)))
	return s, nil
}

// relationPredicate is shared by the row count query and the column statistics
// query, so both always cover the same relations.
func relationPredicate(schema string, relations []string) (string, []any) {
	pred := "n.nspname = $1 AND c.relkind IN ('r', 'm', 'p', 'f')"
	args := []any{schema}
	if len(relations) > 0 {
		pred += " AND c.relname = ANY($2::text[])"
		args = append(args, util.StringArrayLiteral(relations))
	}
	return pred, args
}

func (e *Exporter) enableExtension(ctx context.Context) (created bool) {
	var exists bool
	err := e.conn.QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM pg_extension WHERE extname = $1)", e.opts.Extension,
	).Scan(&exists)
	if err == nil && exists {
		return false
	}
	if err == nil {
		_, err = e.conn.ExecContext(ctx, "CREATE EXTENSION IF NOT EXISTS "+util.QuoteIdentifier(e.opts.Extension))
	}
	if err != nil {
		util.Logger.Warn("can't enable statistics extension, continue without it",
			zap.String("extension", e.opts.Extension),
			zap.Error(err))
		return false
	}
	return true
}

func (e *Exporter) dropExtension(ctx context.Context) {
	_, err := e.conn.ExecContext(ctx, "DROP EXTENSION IF EXISTS "+util.QuoteIdentifier(e.opts.Extension))
	if err != nil {
		util.Logger.Warn("can't drop statistics extension",
			zap.String("extension", e.opts.Extension),
			zap.Error(err))
	}
}

func (e *Exporter) readRelationStats(ctx context.Context, pred string, args []any) ([]RelationStat, error) {
	query := `SELECT n.nspname, c.relname, c.reltuples
FROM pg_class c
JOIN pg_namespace n ON n.oid = c.relnamespace
WHERE ` + pred + `
ORDER BY n.nspname, c.relname`
	rows, err := e.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Annotate(err, "query relation row counts")
	}
	defer rows.Close()

	var ret []RelationStat
	for rows.Next() {
		var r RelationStat
		if err = rows.Scan(&r.Namespace, &r.Relation, &r.RowCount); err != nil {
			return nil, errors.Annotate(err, "scan relation row counts")
		}
		r.RowCount = float4(r.RowCount)
		ret = append(ret, r)
	}
	return ret, errors.Annotate(rows.Err(), "read relation row counts")
}

var columnStatsQuery = buildColumnStatsQuery()

func buildColumnStatsQuery() string {
	var b strings.Builder
	// one row per column, the non-inherited one if both exist. Values go
	// through their text form, so every element is a JSON string whatever the
	// column type is.
	b.WriteString(`SELECT DISTINCT ON (n.nspname, c.relname, a.attnum)
	n.nspname, c.relname, a.attname, format_type(a.atttypid, NULL),
	s.stainherit, s.stanullfrac, s.stawidth, s.stadistinct`)
	for i := 1; i <= NumSlots; i++ {
		fmt.Fprintf(&b, `,
	s.stakind%[1]d,
	CASE WHEN s.staop%[1]d = 0 THEN NULL ELSE s.staop%[1]d::regoperator::text END,
	array_to_json(s.stanumbers%[1]d)::text,
	array_to_json(s.stavalues%[1]d::text::text[])::text`, i)
	}
	b.WriteString(`
FROM pg_class c
JOIN pg_namespace n ON n.oid = c.relnamespace
JOIN pg_statistic s ON s.starelid = c.oid
JOIN pg_attribute a ON a.attrelid = c.oid AND a.attnum = s.staattnum
WHERE %s AND NOT a.attisdropped
ORDER BY n.nspname, c.relname, a.attnum, s.stainherit`)
	return b.String()
}

type slotRow struct {
	kind    int64
	op      sql.NullString
	numbers sql.NullString
	values  sql.NullString
}

func (e *Exporter) readColumnStats(ctx context.Context, pred string, args []any) ([]ColumnStat, error) {
	query := fmt.Sprintf(columnStatsQuery, pred)
	rows, err := e.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Annotate(err, "query column statistics")
	}
	defer rows.Close()

	var ret []ColumnStat
	for rows.Next() {
		var (
			c     ColumnStat
			width int64
			slots [NumSlots]slotRow
		)
		dest := []any{
			&c.Namespace, &c.Relation, &c.Column, &c.TypeName,
			&c.Inherited, &c.NullFrac, &width, &c.Distinct,
		}
		for i := range slots {
			dest = append(dest, &slots[i].kind, &slots[i].op, &slots[i].numbers, &slots[i].values)
		}
		if err = rows.Scan(dest...); err != nil {
			return nil, errors.Annotate(err, "scan column statistics")
		}
		c.Width = int32(width)
		c.NullFrac = float4(c.NullFrac)
		c.Distinct = float4(c.Distinct)
		for i := range slots {
			c.Slots[i], err = slots[i].toSlot()
			if err != nil {
				return nil, errors.Annotatef(err, "slot %d of column %s", i+1, c.Key())
			}
		}
		ret = append(ret, c)
	}
	return ret, errors.Annotate(rows.Err(), "read column statistics")
}

func (r slotRow) toSlot() (StatSlot, error) {
	s := StatSlot{Kind: int16(r.kind), Operator: r.op.String}
	if r.numbers.Valid {
		if err := json.Unmarshal([]byte(r.numbers.String), &s.Numbers); err != nil {
			return s, errors.Annotatef(err, "decode numbers %s", r.numbers.String)
		}
		for i := range s.Numbers {
			s.Numbers[i] = float4(s.Numbers[i])
		}
	}
	if r.values.Valid {
		dec := json.NewDecoder(strings.NewReader(r.values.String))
		dec.UseNumber()
		if err := dec.Decode(&s.Values); err != nil {
			return s, errors.Annotatef(err, "decode values %s", r.values.String)
		}
	}
	return s, nil
}

// float4 drops the noise digits of a real value that went through float64.
func float4(v float64) float64 {
	f, err := strconv.ParseFloat(strconv.FormatFloat(v, 'g', -1, 32), 64)
	if err != nil {
		return v
	}
	return f
}

func warnMissingRelations(schema string, requested []string, found []RelationStat) {
	for _, name := range requested {
		if !slices.ContainsFunc(found, func(r RelationStat) bool { return r.Relation == name }) {
			util.Logger.Warn("relation is not found in catalog, skip it",
				zap.String("schema", schema),
				zap.String("relation", name))
		}
	}
}
