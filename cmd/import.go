package cmd

import (
	"github.com/lance6716/plan-replayer/pkg/stats"
	"github.com/lance6716/plan-replayer/pkg/util"
	"github.com/pingcap/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newImportCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Replay a statistics snapshot into a database in one transaction",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runImport(cmd, opts)
		},
	}
	fs := cmd.Flags()
	addConnFlags(fs, "", "target", true)
	fs.StringP("stat-file", "s", "", "statistics snapshot written by export")
	fs.Bool("update-pkey-reltuples", false, "also write the row count of the <relation>_pkey index")
	return cmd
}

func runImport(cmd *cobra.Command, opts *globalOptions) error {
	ctx := cmd.Context()
	v := opts.v
	statFile := v.GetString("stat-file")
	if err := requireValue("stat-file", statFile); err != nil {
		return err
	}
	conn := opts.connParams("")
	if err := requireValue("database", conn.Database); err != nil {
		return err
	}

	snapshot, err := stats.ReadFile(statFile)
	if err != nil {
		return errors.Trace(err)
	}
	db, err := util.ConnectDB(ctx, conn)
	if err != nil {
		return errors.Trace(err)
	}
	defer db.Close()

	importer := stats.NewImporter(opts.dialect.ImportOptions(v.GetBool("update-pkey-reltuples")))
	if err = stats.ReplayTx(ctx, db, importer, snapshot); err != nil {
		return errors.Trace(err)
	}
	util.Logger.Info("replayed statistics",
		zap.String("file", statFile),
		zap.String("database", conn.Database))
	return nil
}
