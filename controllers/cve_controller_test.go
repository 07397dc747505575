package controllers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/l3montree-dev/kepler/database/models"
	"github.com/l3montree-dev/kepler/search"
	"github.com/l3montree-dev/kepler/shared"
	"github.com/l3montree-dev/kepler/vulndb"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCveRepository struct {
	rows []models.CVE
}

func (f *fakeCveRepository) All() ([]models.CVE, error)                         { return f.rows, nil }
func (f *fakeCveRepository) UpsertBatch(tx shared.DB, cves []*models.CVE) error { return nil }
func (f *fakeCveRepository) DeleteByCVE(tx shared.DB, cveID string) error       { return nil }
func (f *fakeCveRepository) GetLastModDate() (time.Time, error)                 { return time.Time{}, nil }
func (f *fakeCveRepository) Transaction(fn func(tx shared.DB) error) error      { return fn(nil) }
func (f *fakeCveRepository) GetDB(tx shared.DB) shared.DB                       { return nil }

func testSearchService(t *testing.T) *search.Service {
	t.Helper()

	criterion, err := vulndb.NewCriterionFromCPE("cpe:2.3:a:xmlsoft:libxml2:*:*:*:*:*:*:*:*", "", "", "", "2.9.11", true)
	require.NoError(t, err)
	tree := vulndb.MatchNode{Operator: vulndb.OperatorOr, Criteria: []vulndb.Criterion{criterion}}
	treeJSON, err := json.Marshal(tree)
	require.NoError(t, err)

	service, err := search.NewService(&fakeCveRepository{rows: []models.CVE{{
		CVE:            "CVE-2021-3517",
		Vendor:         "xmlsoft",
		Product:        "libxml2",
		Source:         models.SourceNVD,
		Score:          8.6,
		Severity:       models.SeverityHigh,
		Configurations: treeJSON,
	}}})
	require.NoError(t, err)
	require.NoError(t, service.Refresh())
	return service
}

func doSearchRequest(t *testing.T, controller *CVEController, body string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/cve/search", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	ctx := e.NewContext(req, rec)

	err := controller.Search(ctx)
	if err != nil {
		e.HTTPErrorHandler(err, ctx)
	}
	return rec
}

func TestCVEControllerSearch(t *testing.T) {
	controller := NewCVEController(testSearchService(t))

	t.Run("matching query", func(t *testing.T) {
		rec := doSearchRequest(t, controller, `{"product": "libxml2", "version": "2.9.10"}`)
		require.Equal(t, http.StatusOK, rec.Code)

		var matches []models.CVE
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &matches))
		require.Len(t, matches, 1)
		assert.Equal(t, "CVE-2021-3517", matches[0].CVE)
	})

	t.Run("non matching version", func(t *testing.T) {
		rec := doSearchRequest(t, controller, `{"product": "libxml2", "version": "2.9.11"}`)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, "[]", rec.Body.String())
	})

	t.Run("empty product", func(t *testing.T) {
		rec := doSearchRequest(t, controller, `{"product": "", "version": "1.0.0"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("invalid body", func(t *testing.T) {
		rec := doSearchRequest(t, controller, `{"product": 42}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestProductController(t *testing.T) {
	controller := NewProductController(testSearchService(t))
	e := echo.New()

	t.Run("list", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/products/", nil)
		rec := httptest.NewRecorder()
		require.NoError(t, controller.List(e.NewContext(req, rec)))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `["libxml2"]`, rec.Body.String())
	})

	t.Run("by vendor", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/products/by-vendor/", nil)
		rec := httptest.NewRecorder()
		require.NoError(t, controller.ListByVendor(e.NewContext(req, rec)))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"xmlsoft": ["libxml2"]}`, rec.Body.String())
	})

	t.Run("substring search", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/products/search/xml/", nil)
		rec := httptest.NewRecorder()
		ctx := e.NewContext(req, rec)
		ctx.SetParamNames("query")
		ctx.SetParamValues("xml")
		require.NoError(t, controller.Search(ctx))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `[{"vendor": "xmlsoft", "product": "libxml2"}]`, rec.Body.String())
	})

	t.Run("no results is an empty list", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/products/search/nothing/", nil)
		rec := httptest.NewRecorder()
		ctx := e.NewContext(req, rec)
		ctx.SetParamNames("query")
		ctx.SetParamValues("nothing")
		require.NoError(t, controller.Search(ctx))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `[]`, rec.Body.String())
	})
}
