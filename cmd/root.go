package cmd

import (
	"context"
	"strings"

	"github.com/lance6716/plan-replayer/pkg/dialect"
	"github.com/lance6716/plan-replayer/pkg/util"
	"github.com/pingcap/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// envPrefix makes PLAN_REPLAYER_SOURCE_HOST set --source-host.
const envPrefix = "PLAN_REPLAYER"

// globalOptions is shared by all commands. Every flag value is read through v,
// so it may also come from the config file or the environment.
type globalOptions struct {
	v       *viper.Viper
	cfgFile string
	dialect *dialect.Dialect
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{v: viper.New()}
	rootCmd := &cobra.Command{
		Use:           "plan-replayer",
		Short:         "A tool used to replay planner statistics of a PostgreSQL-compatible database elsewhere and verify the plans",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.load(cmd)
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&opts.cfgFile, "config", "c", "", "YAML config file, keys are flag names")
	pf.String("log-level", "info", "log level (debug, info, warn, error)")
	pf.String("log-format", "text", "log format (text, json)")
	pf.String("log-file", "", "log file, stdout if empty")
	pf.String("dialect", dialect.Postgres.Name, "database engine (postgres, yugabyte)")

	rootCmd.AddCommand(newExportCmd(opts), newImportCmd(opts), newVerifyCmd(opts))
	return rootCmd
}

func (o *globalOptions) load(cmd *cobra.Command) error {
	v := o.v
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if o.cfgFile != "" {
		v.SetConfigFile(o.cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return errors.Annotatef(err, "read config file %s", o.cfgFile)
		}
	}
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return errors.Trace(err)
	}

	err := util.InitLogger(util.LogConfig{
		Level:    v.GetString("log-level"),
		Format:   v.GetString("log-format"),
		Filename: v.GetString("log-file"),
	})
	if err != nil {
		return errors.Trace(err)
	}
	o.dialect, err = dialect.Lookup(v.GetString("dialect"))
	return errors.Trace(err)
}

// stringArray reads a repeatable flag. Explicit flags keep their values as
// given, commas included.
func (o *globalOptions) stringArray(cmd *cobra.Command, name string) []string {
	if f := cmd.Flags().Lookup(name); f != nil && f.Changed {
		values, err := cmd.Flags().GetStringArray(name)
		if err == nil {
			return values
		}
	}
	return o.v.GetStringSlice(name)
}

// Execute executes the root command.
func Execute(ctx context.Context) error {
	return newRootCmd().ExecuteContext(ctx)
}
