package cmd

import (
	"github.com/lance6716/plan-replayer/pkg/source"
	"github.com/lance6716/plan-replayer/pkg/util"
	"github.com/pingcap/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// addConnFlags adds host, port, user, password and database flags, with the
// given prefix, of the database playing role.
func addConnFlags(fs *pflag.FlagSet, prefix, role string, withDatabase bool) {
	fs.String(prefix+"host", "127.0.0.1", role+" host")
	fs.Int(prefix+"port", 0, role+" port, the default port of the dialect if 0")
	fs.String(prefix+"user", "", role+" user, the default user of the dialect if empty")
	fs.String(prefix+"password", "", role+" password, passed to tools by PGPASSWORD")
	if withDatabase {
		fs.String(prefix+"database", "", role+" database")
	}
}

func (o *globalOptions) connParams(prefix string) util.ConnParams {
	p := util.ConnParams{
		Host:     o.v.GetString(prefix + "host"),
		Port:     o.v.GetInt(prefix + "port"),
		User:     o.v.GetString(prefix + "user"),
		Password: o.v.GetString(prefix + "password"),
		Database: o.v.GetString(prefix + "database"),
	}
	if p.Port == 0 {
		p.Port = o.dialect.DefaultPort
	}
	if p.User == "" {
		p.User = o.dialect.DefaultUser
	}
	return p
}

func addToggleFlag(fs *pflag.FlagSet) {
	fs.StringArray("set", nil, "planner setting name=value applied before EXPLAIN, repeatable")
}

func (o *globalOptions) toggles(cmd *cobra.Command) ([]string, error) {
	stmts, err := source.ParseToggles(o.stringArray(cmd, "set"))
	return stmts, errors.Trace(err)
}

func requireValue(name, value string) error {
	if value == "" {
		return errors.Errorf("--%s is required", name)
	}
	return nil
}
