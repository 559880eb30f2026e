package cmd

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func newTestCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "test"}
	fs := cmd.Flags()
	fs.String("dialect", "postgres", "")
	fs.String("log-level", "info", "")
	fs.String("log-format", "text", "")
	fs.String("log-file", "", "")
	addConnFlags(fs, "target-", "target", false)
	addToggleFlag(fs)
	return cmd
}

func TestLoadPrecedence(t *testing.T) {
	cfgFile := filepath.Join(t.TempDir(), "plan-replayer.yaml")
	require.NoError(t, os.WriteFile(cfgFile, []byte(`dialect: yugabyte
target-host: from-config
target-user: admin
set:
  - yb_enable_base_scans_cost_model=on
`), 0o644))
	t.Setenv("PLAN_REPLAYER_TARGET_PASSWORD", "from-env")

	cmd := newTestCmd()
	require.NoError(t, cmd.ParseFlags([]string{"--target-host", "10.0.0.2"}))
	opts := &globalOptions{v: viper.New(), cfgFile: cfgFile}
	require.NoError(t, opts.load(cmd))

	require.Equal(t, "yugabyte", opts.dialect.Name)
	p := opts.connParams("target-")
	require.Equal(t, "10.0.0.2", p.Host)
	require.Equal(t, 5433, p.Port)
	require.Equal(t, "admin", p.User)
	require.Equal(t, "from-env", p.Password)
	require.Empty(t, p.Database)

	toggles, err := opts.toggles(cmd)
	require.NoError(t, err)
	require.Equal(t, []string{"SET yb_enable_base_scans_cost_model = 'on';"}, toggles)
}

func TestToggleFlagKeepsCommas(t *testing.T) {
	cmd := newTestCmd()
	require.NoError(t, cmd.ParseFlags([]string{"--set", "search_path=a,b", "--set", "enable_seqscan=off"}))
	opts := &globalOptions{v: viper.New()}
	require.NoError(t, opts.load(cmd))

	toggles, err := opts.toggles(cmd)
	require.NoError(t, err)
	require.Equal(t, []string{"SET search_path = 'a,b';", "SET enable_seqscan = 'off';"}, toggles)
	p := opts.connParams("target-")
	require.Equal(t, 5432, p.Port)
	require.Equal(t, "postgres", p.User)
}

func execute(args ...string) error {
	rootCmd := newRootCmd()
	rootCmd.SetArgs(args)
	rootCmd.SetOut(io.Discard)
	rootCmd.SetErr(io.Discard)
	return rootCmd.ExecuteContext(context.Background())
}

func TestCommandErrors(t *testing.T) {
	require.ErrorContains(t, execute("export", "--database", "tpch"), "--out-dir is required")
	require.ErrorContains(t, execute("export", "--out-dir", t.TempDir()), "--database is required")
	require.ErrorContains(t, execute("import", "--database", "tpch"), "--stat-file is required")
	require.ErrorContains(t, execute("import", "--dialect", "mysql"), `unknown dialect "mysql"`)
	require.ErrorContains(t, execute("import", "--database", "tpch", "--stat-file", filepath.Join(t.TempDir(), "missing.json")), "missing.json")
	require.ErrorContains(t, execute("verify", "--source-database", "tpch", "--out-dir", t.TempDir()), "benchmark path is required")
	require.ErrorContains(t, execute("verify", "--set", "enable_seqscan"), "planner toggle must look like name=value")
}
