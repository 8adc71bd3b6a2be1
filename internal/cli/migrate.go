package cli

import (
	"github.com/spf13/cobra"
)

type MigrateOptions struct {
	*RootOptions
	Partitions        int32
	ReplicationFactor int16
}

// NewMigrateCommand creates the migrate command.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &MigrateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema and create the audit topic",
		Long: `Apply the embedded schema for the configured DATABASE_DRIVER. Safe to
run repeatedly. When KAFKA_BROKERS is set the audit topic is created too.

Example:
  DATABASE_DRIVER=sqlite3 DATABASE_URL=./approvals.db approvals migrate`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(cmd, opts)
		},
	}

	cmd.Flags().Int32Var(&opts.Partitions, "partitions", 3, "audit topic partitions")
	cmd.Flags().Int16Var(&opts.ReplicationFactor, "replication-factor", 1, "audit topic replication factor")

	return cmd
}

func runMigrate(cmd *cobra.Command, opts *MigrateOptions) error {
	ctx, cancel, a, err := opts.setup(cmd)
	if err != nil {
		return err
	}
	defer cancel()

	if err := a.Migrate(ctx); err != nil {
		return WrapExitError(ExitFailure, "migrate", err)
	}
	printf(cmd, "schema ready (%s)\n", a.cfg.Database.Driver)

	if len(a.cfg.Kafka.Brokers) == 0 {
		return nil
	}
	k, err := a.Kafka(ctx)
	if err != nil {
		return err
	}
	if err := k.EnsureTopic(ctx, opts.Partitions, opts.ReplicationFactor); err != nil {
		return WrapExitError(ExitFailure, "create audit topic", err)
	}
	printf(cmd, "audit topic ready (%s)\n", a.cfg.Kafka.AuditTopic)
	return nil
}
