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

package controllers

import (
	"errors"

	"github.com/l3montree-dev/kepler/search"
	"github.com/l3montree-dev/kepler/shared"
	"github.com/labstack/echo/v4"
)

type searchRequest struct {
	Product string `json:"product"`
	Version string `json:"version"`
}

type CVEController struct {
	searchService *search.Service
}

func NewCVEController(searchService *search.Service) *CVEController {
	return &CVEController{
		searchService: searchService,
	}
}

// Search returns all known vulnerabilities matching the product at the given
// version, ordered by descending score.
func (c CVEController) Search(ctx shared.Context) error {
	var req searchRequest
	if err := ctx.Bind(&req); err != nil {
		return echo.NewHTTPError(400, "invalid request body").WithInternal(err)
	}

	matches, err := c.searchService.Search(req.Product, req.Version)
	if err != nil {
		if errors.Is(err, search.ErrMissingProduct) {
			return echo.NewHTTPError(400, "product must not be empty").WithInternal(err)
		}
		return echo.NewHTTPError(500, "could not search for vulnerabilities").WithInternal(err)
	}

	return ctx.JSON(200, matches)
}
