package cmd

import (
	"github.com/emrgen/notesync/internal/config"
	"github.com/emrgen/notesync/internal/model"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "db commands",
}

func init() {
	dbCmd.AddCommand(Migrate())
}

func Migrate() *cobra.Command {
	command := &cobra.Command{
		Use:   "migrate",
		Short: "Migrate the database",
		Run: func(cmd *cobra.Command, args []string) {
			cfg := config.LoadConfig()
			db := config.GetDb(cfg)
			if err := model.Migrate(db, cfg.Tables()); err != nil {
				logrus.Fatalf("migrate: %v", err)
			}
			logrus.Infof("migrated %s database", cfg.DBDriver)
		},
	}

	return command
}
