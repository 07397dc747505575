package commands

import (
	"context"
	"log/slog"
	"os"

	"github.com/l3montree-dev/kepler/database"
	"github.com/l3montree-dev/kepler/database/repositories"
	"github.com/l3montree-dev/kepler/shared"
	"github.com/l3montree-dev/kepler/vulndb"
	"github.com/spf13/cobra"
)

func NewImportCommand() *cobra.Command {
	importCmd := cobra.Command{
		Use:   "import",
		Short: "Import vulnerability data",
		Long:  "Commands for importing vulnerability data from the upstream sources into the local database.",
	}

	importCmd.AddCommand(newImportNVDCommand())
	importCmd.AddCommand(newImportNPMCommand())
	return &importCmd
}

func setupServices() (vulndb.NVDService, vulndb.NPMService, error) {
	shared.LoadConfig() // nolint: errcheck

	db, err := shared.DatabaseFactory()
	if err != nil {
		return vulndb.NVDService{}, vulndb.NPMService{}, err
	}

	if os.Getenv("DISABLE_AUTOMIGRATE") != "true" {
		if err := database.RunMigrationsWithDB(db); err != nil {
			return vulndb.NVDService{}, vulndb.NPMService{}, err
		}
	}

	cveRepository := repositories.NewCVERepository(db)
	objectRepository := repositories.NewObjectRepository(db)

	return vulndb.NewNVDService(cveRepository, objectRepository),
		vulndb.NewNPMService(cveRepository, objectRepository), nil
}

func newImportNVDCommand() *cobra.Command {
	importNVD := cobra.Command{
		Use:   "nvd",
		Short: "Mirror the NVD feed",
		Long:  "Fetches the complete NVD feed, or the advisories published in a single year when --year is set.",
		Args:  cobra.ExactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			nvdService, _, err := setupServices()
			if err != nil {
				return err
			}

			year, err := cmd.Flags().GetInt("year")
			if err != nil {
				return err
			}

			if year > 0 {
				slog.Info("importing nvd advisories", "year", year)
				return nvdService.ImportYear(context.Background(), year)
			}

			slog.Info("importing the full nvd feed. this takes a while")
			return nvdService.Sync(context.Background())
		},
	}

	importNVD.Flags().Int("year", 0, "only import advisories published in this year")
	return &importNVD
}

func newImportNPMCommand() *cobra.Command {
	importNPM := cobra.Command{
		Use:   "npm",
		Short: "Mirror the npm advisory feed",
		Args:  cobra.ExactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, npmService, err := setupServices()
			if err != nil {
				return err
			}

			recent, err := cmd.Flags().GetBool("recent")
			if err != nil {
				return err
			}

			return npmService.Sync(context.Background(), recent)
		},
	}

	importNPM.Flags().Bool("recent", false, "only fetch the most recent advisory page")
	return &importNPM
}
