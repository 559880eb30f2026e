package stats

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/lance6716/plan-replayer/pkg/util"
	"github.com/pingcap/errors"
	"go.uber.org/zap"
)

// DefaultCompanionIndexSuffix is the name suffix of the primary key index of a
// table.
const DefaultCompanionIndexSuffix = "_pkey"

// Executor is one database session, usually the *sql.Tx of the replay.
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// ImportOptions configures an Importer. The zero value suits a vanilla
// PostgreSQL superuser session.
type ImportOptions struct {
	// PrivilegeSetting is a boolean session setting that must be on to write
	// the statistics catalog, it's turned off again when the import finishes.
	// Empty means no setting is needed.
	PrivilegeSetting string
	// CatalogVersionBump is executed after all statistics are written so that
	// other sessions plan with them. Empty means the engine invalidates its
	// caches on commit.
	CatalogVersionBump string
	// UpdateCompanionIndex also writes the row count of the index named
	// relation + CompanionIndexSuffix when it exists.
	UpdateCompanionIndex bool
	CompanionIndexSuffix string
}

// Importer writes a Snapshot into the catalog of a target database.
type Importer struct {
	opts ImportOptions
}

// NewImporter creates an Importer.
func NewImporter(opts ImportOptions) *Importer {
	if opts.UpdateCompanionIndex && opts.CompanionIndexSuffix == "" {
		opts.CompanionIndexSuffix = DefaultCompanionIndexSuffix
	}
	return &Importer{opts: opts}
}

// Import replays s through exec. Any error means the catalog is only partially
// written, so the caller should run Import inside a transaction and roll it
// back on error, see ReplayTx.
func (im *Importer) Import(ctx context.Context, exec Executor, s *Snapshot) (err error) {
	if err = s.Validate(); err != nil {
		return errors.Trace(err)
	}

	if im.opts.PrivilegeSetting != "" {
		if _, err = exec.ExecContext(ctx, "SET "+im.opts.PrivilegeSetting+" = ON"); err != nil {
			return errors.Annotatef(err, "enable %s", im.opts.PrivilegeSetting)
		}
		defer func() {
			_, err2 := exec.ExecContext(ctx, "SET "+im.opts.PrivilegeSetting+" = OFF")
			if err2 == nil {
				return
			}
			if err == nil {
				err = errors.Annotatef(err2, "disable %s", im.opts.PrivilegeSetting)
				return
			}
			// the transaction is already aborted, rollback resets the setting
			util.Logger.Warn("failed to disable privilege setting",
				zap.String("setting", im.opts.PrivilegeSetting),
				zap.Error(err2))
		}()
	}

	for i := range s.Relations {
		if err = im.importRelation(ctx, exec, &s.Relations[i]); err != nil {
			return errors.Trace(err)
		}
	}

	hasCollation := false
	if len(s.Columns) > 0 {
		if hasCollation, err = hasCollationSlots(ctx, exec); err != nil {
			return errors.Trace(err)
		}
	}
	for i := range s.Columns {
		if err = im.importColumn(ctx, exec, &s.Columns[i], hasCollation); err != nil {
			return errors.Trace(err)
		}
	}

	if im.opts.CatalogVersionBump != "" {
		if _, err = exec.ExecContext(ctx, im.opts.CatalogVersionBump); err != nil {
			return errors.Annotate(err, "bump catalog version")
		}
	}
	util.Logger.Info("imported statistics",
		zap.Int("relations", len(s.Relations)),
		zap.Int("columns", len(s.Columns)))
	return nil
}

const updateRowCountSQL = `UPDATE pg_class SET reltuples = $1
WHERE relnamespace = (SELECT oid FROM pg_namespace WHERE nspname = $2) AND relname = $3`

func (im *Importer) importRelation(ctx context.Context, exec Executor, r *RelationStat) error {
	res, err := exec.ExecContext(ctx, updateRowCountSQL, r.RowCount, r.Namespace, r.Relation)
	if err != nil {
		return errors.Annotatef(err, "update row count of %s", relationKey(r.Namespace, r.Relation))
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return errors.Trace(err)
	}
	if affected == 0 {
		return util.WrapKind(util.KindSchemaResolution, errors.Errorf(
			"relation %s does not exist on target", relationKey(r.Namespace, r.Relation),
		))
	}

	if !im.opts.UpdateCompanionIndex {
		return nil
	}
	index := r.Relation + im.opts.CompanionIndexSuffix
	res, err = exec.ExecContext(ctx, updateRowCountSQL, r.RowCount, r.Namespace, index)
	if err != nil {
		return errors.Annotatef(err, "update row count of %s", relationKey(r.Namespace, index))
	}
	if affected, err = res.RowsAffected(); err == nil && affected == 0 {
		util.Logger.Debug("companion index does not exist",
			zap.String("schema", r.Namespace),
			zap.String("index", index))
	}
	return nil
}

const resolveColumnSQL = `SELECT c.oid, a.attnum, a.attcollation
FROM pg_class c
JOIN pg_namespace n ON n.oid = c.relnamespace
JOIN pg_attribute a ON a.attrelid = c.oid
WHERE n.nspname = $1 AND c.relname = $2 AND a.attname = $3 AND NOT a.attisdropped`

// target is where a ColumnStat lives on the target database. Ordinal positions
// are resolved again on every import because they differ between databases.
type target struct {
	relOID    int64
	attnum    int64
	collation int64
}

func resolveColumn(ctx context.Context, exec Executor, c *ColumnStat) (target, error) {
	var t target
	err := exec.QueryRowContext(ctx, resolveColumnSQL, c.Namespace, c.Relation, c.Column).
		Scan(&t.relOID, &t.attnum, &t.collation)
	if err == sql.ErrNoRows {
		return t, util.WrapKind(util.KindSchemaResolution, errors.Errorf(
			"column %s does not exist on target", c.Key(),
		))
	}
	return t, errors.Annotatef(err, "resolve column %s", c.Key())
}

const hasCollationSlotsSQL = `SELECT EXISTS (SELECT 1 FROM pg_attribute
WHERE attrelid = 'pg_catalog.pg_statistic'::regclass AND attname = 'stacoll1')`

func hasCollationSlots(ctx context.Context, exec Executor) (bool, error) {
	var has bool
	err := exec.QueryRowContext(ctx, hasCollationSlotsSQL).Scan(&has)
	return has, errors.Annotate(err, "check collation columns of pg_statistic")
}

const deleteStatisticSQL = `DELETE FROM pg_statistic WHERE starelid = $1 AND staattnum = $2 AND stainherit = $3`

func (im *Importer) importColumn(ctx context.Context, exec Executor, c *ColumnStat, hasCollation bool) error {
	t, err := resolveColumn(ctx, exec, c)
	if err != nil {
		return errors.Trace(err)
	}
	insert, args, err := buildInsertStatistic(c, t, hasCollation)
	if err != nil {
		return errors.Trace(err)
	}

	if _, err = exec.ExecContext(ctx, deleteStatisticSQL, t.relOID, t.attnum, c.Inherited); err != nil {
		return errors.Annotatef(err, "delete statistics of %s", c.Key())
	}
	util.Logger.Debug("insert statistics", zap.String("column", c.Key()), zap.String("sql", insert))
	if _, err = exec.ExecContext(ctx, insert, args...); err != nil {
		return errors.Annotatef(err, "insert statistics of %s", c.Key())
	}
	return nil
}

type argList struct {
	args []any
}

// add binds v and returns its placeholder with cast appended.
func (a *argList) add(v any, cast string) string {
	a.args = append(a.args, v)
	return fmt.Sprintf("$%d%s", len(a.args), cast)
}

// buildInsertStatistic returns the INSERT of one pg_statistic row. Every value
// is a bound parameter, the array literals are built by the escaping utility
// and the value arrays are typed by binding the element type name to regtype.
func buildInsertStatistic(c *ColumnStat, t target, hasCollation bool) (string, []any, error) {
	var (
		cols  []string
		exprs []string
		a     argList
	)
	set := func(col, expr string) {
		cols = append(cols, col)
		exprs = append(exprs, expr)
	}

	set("starelid", a.add(t.relOID, "::oid"))
	set("staattnum", a.add(t.attnum, "::int2"))
	set("stainherit", a.add(c.Inherited, "::bool"))
	set("stanullfrac", a.add(c.NullFrac, "::real"))
	set("stawidth", a.add(int64(c.Width), "::int4"))
	set("stadistinct", a.add(c.Distinct, "::real"))
	for i, slot := range c.Slots {
		set(fmt.Sprintf("stakind%d", i+1), a.add(int64(slot.Kind), "::int2"))
	}
	for i, slot := range c.Slots {
		var op any
		if slot.Operator != "" {
			op = slot.Operator
		}
		set(fmt.Sprintf("staop%d", i+1), "COALESCE("+a.add(op, "::text::regoperator::oid")+", 0)")
	}
	if hasCollation {
		for i, slot := range c.Slots {
			var coll int64
			if slot.Kind != 0 {
				coll = t.collation
			}
			set(fmt.Sprintf("stacoll%d", i+1), a.add(coll, "::oid"))
		}
	}
	for i, slot := range c.Slots {
		set(fmt.Sprintf("stanumbers%d", i+1), a.add(util.FloatArrayLiteral(slot.Numbers), "::real[]"))
	}
	for i, slot := range c.Slots {
		lit, err := util.ArrayLiteral(slot.Values)
		if err != nil {
			return "", nil, util.WrapKind(util.KindMalformedSnapshot, errors.Annotatef(
				err, "values of slot %d of column %s", i+1, c.Key(),
			))
		}
		set(fmt.Sprintf("stavalues%d", i+1), fmt.Sprintf(
			"array_in(%s, %s, -1)::anyarray",
			a.add(lit, "::text::cstring"),
			a.add(c.TypeName, "::text::regtype"),
		))
	}

	query := "INSERT INTO pg_statistic (" + strings.Join(cols, ", ") +
		") VALUES (" + strings.Join(exprs, ", ") + ")"
	return query, a.args, nil
}

// ReplayTx imports s in one transaction of db, nothing is written if any
// statement fails.
func ReplayTx(ctx context.Context, db *sql.DB, im *Importer, s *Snapshot) (err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Annotate(err, "begin statistics replay")
	}
	defer func() {
		if err != nil {
			if err2 := tx.Rollback(); err2 != nil {
				util.Logger.Warn("failed to rollback statistics replay", zap.Error(err2))
			}
		}
	}()

	if err = im.Import(ctx, tx, s); err != nil {
		return errors.Trace(err)
	}
	return errors.Annotate(tx.Commit(), "commit statistics replay")
}
