package util

import (
	"context"
	"database/sql"
	"net"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pingcap/errors"
)

// ConnParams locates one database on one server.
type ConnParams struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
}

// Addr returns host:port.
func (p ConnParams) Addr() string {
	return net.JoinHostPort(p.Host, strconv.Itoa(p.Port))
}

// WithDatabase returns a copy of p pointing at another database on the same
// server.
func (p ConnParams) WithDatabase(database string) ConnParams {
	p.Database = database
	return p
}

// ToolArgs returns the connection arguments understood by the client tools
// (pg_dump, psql, createdb, dropdb and their forks). The database is not
// included because every tool takes it differently.
func (p ConnParams) ToolArgs() []string {
	args := make([]string, 0, 6)
	if p.Host != "" {
		args = append(args, "-h", p.Host)
	}
	if p.Port != 0 {
		args = append(args, "-p", strconv.Itoa(p.Port))
	}
	if p.User != "" {
		args = append(args, "-U", p.User)
	}
	return args
}

// ToolEnv returns the environment entries that pass the password to the
// client tools.
func (p ConnParams) ToolEnv() []string {
	if p.Password == "" {
		return nil
	}
	return []string{"PGPASSWORD=" + p.Password}
}

// ConnectDB connects to a database speaking the PostgreSQL protocol and checks
// that it is reachable. The returned error is of KindConnection.
func ConnectDB(ctx context.Context, p ConnParams) (*sql.DB, error) {
	// TODO(lance6716): TLS
	dsn := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(p.User, p.Password),
		Host:   p.Addr(),
		Path:   "/" + p.Database,
	}
	cfg, err := pgx.ParseConfig(dsn.String())
	if err != nil {
		return nil, WrapKind(KindConnection, errors.Annotatef(err, "build connection config for %s", p.Addr()))
	}

	db := stdlib.OpenDB(*cfg)
	if err = db.PingContext(ctx); err != nil {
		db.Close()
		return nil, WrapKind(KindConnection, errors.Annotatef(
			err, "connect to %s/%s as %s", p.Addr(), p.Database, p.User,
		))
	}
	return db, nil
}

// TrimStatement removes surrounding blanks and trailing semicolons so the
// statement can be prefixed by EXPLAIN.
func TrimStatement(s string) string {
	s = strings.TrimSpace(s)
	for strings.HasSuffix(s, ";") {
		s = strings.TrimSpace(strings.TrimSuffix(s, ";"))
	}
	return s
}

// ReadStrRowsByColumnName reads given columns from sql.Rows. If not all columns
// are found, allFound will be false, given sql.Rows will not be read. Caller
// need to close rows after it returns.
func ReadStrRowsByColumnName(
	rows *sql.Rows,
	columnNames []string,
) (fields [][]string, allFound bool, err error) {
	columnNameToIndex := make(map[string]int, len(columnNames))
	for i, name := range columnNames {
		columnNameToIndex[name] = i
	}

	columns, err := rows.Columns()
	if err != nil {
		return nil, false, errors.Annotatef(err, "failed to get columns (%v)", columnNames)
	}
	found := 0
	dest := make([]any, len(columns))
	oneRow := make([]string, len(columnNames))
	for i := range dest {
		if idx, ok := columnNameToIndex[columns[i]]; ok {
			dest[i] = &oneRow[idx]
			found++
		} else {
			dest[i] = new(any)
		}
	}

	if found != len(columnNames) {
		return nil, false, nil
	}

	fields = make([][]string, 0, 8)
	for rows.Next() {
		err = rows.Scan(dest...)
		if err != nil {
			return nil, false, errors.Annotatef(err, "failed to scan row to get columns (%v)", columnNames)
		}
		fields = append(fields, slices.Clone(oneRow))
	}
	if err = rows.Err(); err != nil {
		return nil, false, errors.Annotatef(err, "failed to get rows (%v)", columnNames)
	}
	return fields, true, nil
}
