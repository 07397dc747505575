package router

import (
	"github.com/l3montree-dev/kepler/controllers"
	"github.com/l3montree-dev/kepler/shared"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

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

type APIV1Router struct {
	*echo.Group
}

func NewAPIV1Router(e *echo.Echo,
	db shared.DB,
	cveController *controllers.CVEController,
	productController *controllers.ProductController,
) APIV1Router {
	apiV1Router := e.Group("/api/v1")

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	apiV1Router.GET("/metrics/", echo.WrapHandler(promhttp.Handler()))
	apiV1Router.GET("/health/", func(ctx echo.Context) error {
		// Check database connectivity
		sqlDB, err := db.DB()
		if err != nil {
			return ctx.JSON(503, map[string]string{
				"status": "unhealthy",
				"error":  "failed to get database instance",
			})
		}

		if err := sqlDB.Ping(); err != nil {
			return ctx.JSON(503, map[string]string{
				"status": "unhealthy",
				"error":  "database ping failed",
			})
		}

		return ctx.JSON(200, map[string]string{
			"status": "healthy",
		})
	})

	apiV1Router.POST("/cve/search/", cveController.Search)
	apiV1Router.GET("/products/", productController.List)
	apiV1Router.GET("/products/by-vendor/", productController.ListByVendor)
	apiV1Router.GET("/products/search/:query/", productController.Search)

	return APIV1Router{
		Group: apiV1Router,
	}
}
