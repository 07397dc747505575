package controllers

import (
	"github.com/l3montree-dev/kepler/search"
	"github.com/l3montree-dev/kepler/shared"
	"github.com/labstack/echo/v4"
)

type ProductController struct {
	searchService *search.Service
}

func NewProductController(searchService *search.Service) *ProductController {
	return &ProductController{
		searchService: searchService,
	}
}

// List returns all distinct product names in alphabetical order.
func (c ProductController) List(ctx shared.Context) error {
	return ctx.JSON(200, c.searchService.ListProducts())
}

// ListByVendor groups all distinct products under their vendor.
func (c ProductController) ListByVendor(ctx shared.Context) error {
	return ctx.JSON(200, c.searchService.ListByVendor())
}

// Search finds products by case-insensitive substring.
func (c ProductController) Search(ctx shared.Context) error {
	query := shared.SanitizeParam(ctx.Param("query"))
	if query == "" {
		return echo.NewHTTPError(400, "query must not be empty")
	}

	results := c.searchService.SearchProducts(query)
	if results == nil {
		results = []search.ProductEntry{}
	}
	return ctx.JSON(200, results)
}
