package commands

import (
	"github.com/l3montree-dev/kepler/database"
	"github.com/l3montree-dev/kepler/shared"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func NewMigrateCommand() *cobra.Command {
	migrate := cobra.Command{
		Use:   "migrate",
		Short: "Run all pending database migrations",
		Args:  cobra.ExactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			shared.LoadConfig() // nolint: errcheck

			db, err := shared.DatabaseFactory()
			if err != nil {
				return errors.Wrap(err, "could not connect to database")
			}

			return database.RunMigrationsWithDB(db)
		},
	}

	return &migrate
}
