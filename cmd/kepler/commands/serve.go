// Copyright (C) 2025 l3montree GmbH
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package commands

import (
	"log/slog"
	"os"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/l3montree-dev/kepler/controllers"
	"github.com/l3montree-dev/kepler/daemons"
	"github.com/l3montree-dev/kepler/database"
	"github.com/l3montree-dev/kepler/database/repositories"
	"github.com/l3montree-dev/kepler/router"
	"github.com/l3montree-dev/kepler/search"
	"github.com/l3montree-dev/kepler/shared"
	"github.com/l3montree-dev/kepler/vulndb"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var release string // Will be filled at build time

func NewServeCommand() *cobra.Command {
	serveCmd := cobra.Command{
		Use:   "serve",
		Short: "Start the api server",
		Args:  cobra.ExactArgs(0),
		RunE:  serve,
	}
	return &serveCmd
}

func serve(cmd *cobra.Command, args []string) error {
	shared.LoadConfig() // nolint: errcheck

	if os.Getenv("ERROR_TRACKING_DSN") != "" {
		initSentry()

		// Catch panics
		defer func() {
			if err := recover(); err != nil {
				sentry.CurrentHub().Recover(err)
				// Wait for events to be send to server
				sentry.Flush(time.Second * 5)
			}
		}()
	}

	db, err := shared.DatabaseFactory()
	if err != nil {
		return errors.Wrap(err, "failed to setup database connection")
	}

	if os.Getenv("DISABLE_AUTOMIGRATE") != "true" {
		slog.Info("running database migrations...")
		if err := database.RunMigrationsWithDB(db); err != nil {
			return errors.Wrap(err, "failed to run database migrations")
		}
	} else {
		slog.Info("automatic migrations disabled via DISABLE_AUTOMIGRATE=true")
	}

	cveRepository := repositories.NewCVERepository(db)
	objectRepository := repositories.NewObjectRepository(db)
	configRepository := repositories.NewConfigRepository(db)

	nvdService := vulndb.NewNVDService(cveRepository, objectRepository)
	npmService := vulndb.NewNPMService(cveRepository, objectRepository)

	searchService, err := search.NewService(cveRepository)
	if err != nil {
		return errors.Wrap(err, "failed to create search service")
	}
	// an empty database yields an empty index, that is fine on first boot
	if err := searchService.Refresh(); err != nil {
		slog.Error("could not build the initial search index", "err", err)
	}

	runner := daemons.NewDaemonRunner(configRepository, nvdService, npmService, searchService)
	runner.Start()

	e := router.Server()
	router.NewAPIV1Router(e, db,
		controllers.NewCVEController(searchService),
		controllers.NewProductController(searchService),
	)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	return e.Start(":" + port)
}

func initSentry() {
	environment := os.Getenv("ENVIRONMENT")
	if environment == "" {
		environment = "dev"
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:         os.Getenv("ERROR_TRACKING_DSN"),
		Environment: environment,
		Release:     release,

		// In debug mode, the debug information is printed to stdout to help you
		// understand what Sentry is doing.
		Debug: environment == "dev",

		// Configures whether SDK should generate and attach stack traces to pure
		// capture message calls.
		AttachStacktrace: true,

		// If this flag is enabled, certain personally identifiable information (PII) is added by active integrations.
		// By default, no such data is sent.
		SendDefaultPII: false,
	})
	if err != nil {
		slog.Error("Failed to init error tracking", "err", err)
	}
}
