package search

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/l3montree-dev/kepler/database/models"
	"github.com/l3montree-dev/kepler/shared"
	"github.com/l3montree-dev/kepler/vulndb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCveRepository struct {
	rows []models.CVE
}

func (f *fakeCveRepository) All() ([]models.CVE, error) {
	return f.rows, nil
}

func (f *fakeCveRepository) UpsertBatch(tx shared.DB, cves []*models.CVE) error { return nil }
func (f *fakeCveRepository) DeleteByCVE(tx shared.DB, cveID string) error       { return nil }
func (f *fakeCveRepository) GetLastModDate() (time.Time, error)                 { return time.Time{}, nil }
func (f *fakeCveRepository) Transaction(fn func(tx shared.DB) error) error      { return fn(nil) }
func (f *fakeCveRepository) GetDB(tx shared.DB) shared.DB                       { return nil }

func rangeTree(t *testing.T, vendor, product, endExcluding string) vulndb.MatchNode {
	t.Helper()
	criteria := fmt.Sprintf("cpe:2.3:a:%s:%s:*:*:*:*:*:*:*:*", vendor, product)
	criterion, err := vulndb.NewCriterionFromCPE(criteria, "", "", "", endExcluding, true)
	require.NoError(t, err)
	return vulndb.MatchNode{Operator: vulndb.OperatorOr, Criteria: []vulndb.Criterion{criterion}}
}

func makeRow(t *testing.T, cveID, vendor, product string, score float32, tree vulndb.MatchNode) models.CVE {
	t.Helper()
	treeJSON, err := json.Marshal(tree)
	require.NoError(t, err)
	return models.CVE{
		CVE:            cveID,
		Vendor:         vendor,
		Product:        product,
		Source:         models.SourceNVD,
		Score:          score,
		Severity:       models.SeverityHigh,
		Configurations: treeJSON,
	}
}

func newTestService(t *testing.T, rows []models.CVE) *Service {
	t.Helper()
	service, err := NewService(&fakeCveRepository{rows: rows})
	require.NoError(t, err)
	require.NoError(t, service.Refresh())
	return service
}

func TestSearch(t *testing.T) {
	service := newTestService(t, []models.CVE{
		makeRow(t, "CVE-2021-3517", "xmlsoft", "libxml2", 8.6, rangeTree(t, "xmlsoft", "libxml2", "2.9.11")),
	})

	t.Run("version inside the range matches", func(t *testing.T) {
		matches, err := service.Search("libxml2", "2.9.10")
		require.NoError(t, err)
		require.Len(t, matches, 1)
		assert.Equal(t, "CVE-2021-3517", matches[0].CVE)
	})

	t.Run("exclusive upper bound", func(t *testing.T) {
		matches, err := service.Search("libxml2", "2.9.11")
		require.NoError(t, err)
		assert.Empty(t, matches)
	})

	t.Run("unknown product", func(t *testing.T) {
		matches, err := service.Search("libxml3", "2.9.10")
		require.NoError(t, err)
		assert.Empty(t, matches)
	})

	t.Run("input is normalized", func(t *testing.T) {
		matches, err := service.Search("  LibXML2  ", "2.9.10")
		require.NoError(t, err)
		assert.Len(t, matches, 1)
	})

	t.Run("empty product is an input error", func(t *testing.T) {
		_, err := service.Search("", "1.0.0")
		assert.ErrorIs(t, err, ErrMissingProduct)

		_, err = service.Search("   ", "1.0.0")
		assert.ErrorIs(t, err, ErrMissingProduct)
	})
}

func TestSearchOrdering(t *testing.T) {
	service := newTestService(t, []models.CVE{
		makeRow(t, "CVE-2020-0002", "vendor", "thing", 5.0, rangeTree(t, "vendor", "thing", "9.0")),
		makeRow(t, "CVE-2020-0001", "vendor", "thing", 5.0, rangeTree(t, "vendor", "thing", "9.0")),
		makeRow(t, "CVE-2020-0003", "vendor", "thing", 9.8, rangeTree(t, "vendor", "thing", "9.0")),
	})

	matches, err := service.Search("thing", "1.0")
	require.NoError(t, err)
	require.Len(t, matches, 3)

	// descending score, ties broken by cve id ascending
	assert.Equal(t, "CVE-2020-0003", matches[0].CVE)
	assert.Equal(t, "CVE-2020-0001", matches[1].CVE)
	assert.Equal(t, "CVE-2020-0002", matches[2].CVE)
}

func TestSearchCache(t *testing.T) {
	t.Run("repeated queries are served from the cache", func(t *testing.T) {
		service := newTestService(t, []models.CVE{
			makeRow(t, "CVE-2021-3517", "xmlsoft", "libxml2", 8.6, rangeTree(t, "xmlsoft", "libxml2", "2.9.11")),
		})

		first, err := service.Search("libxml2", "2.9.10")
		require.NoError(t, err)

		_, cached := service.cache.Get(fingerprint("libxml2", "2.9.10"))
		assert.True(t, cached)

		second, err := service.Search("libxml2", "2.9.10")
		require.NoError(t, err)
		assert.Equal(t, first, second)
	})

	t.Run("refresh purges the cache", func(t *testing.T) {
		repository := &fakeCveRepository{}
		service, err := NewService(repository)
		require.NoError(t, err)
		require.NoError(t, service.Refresh())

		// a miss on an empty index is cached as well
		matches, err := service.Search("libxml2", "2.9.10")
		require.NoError(t, err)
		assert.Empty(t, matches)

		repository.rows = []models.CVE{
			makeRow(t, "CVE-2021-3517", "xmlsoft", "libxml2", 8.6, rangeTree(t, "xmlsoft", "libxml2", "2.9.11")),
		}
		require.NoError(t, service.Refresh())

		matches, err = service.Search("libxml2", "2.9.10")
		require.NoError(t, err)
		assert.Len(t, matches, 1)
	})

	t.Run("lru eviction at capacity", func(t *testing.T) {
		service := newTestService(t, nil)

		for i := 0; i < cacheSize+1; i++ {
			_, err := service.Search("product", fmt.Sprintf("1.0.%d", i))
			require.NoError(t, err)
		}

		assert.Equal(t, cacheSize, service.cache.Len())
		// the first fingerprint was never touched again and got evicted
		_, ok := service.cache.Get(fingerprint("product", "1.0.0"))
		assert.False(t, ok)
		_, ok = service.cache.Get(fingerprint("product", fmt.Sprintf("1.0.%d", cacheSize)))
		assert.True(t, ok)
	})
}

// searches must keep working while the index is rebuilt, observing either the
// old or the new generation
func TestRefreshDoesNotBlockSearches(t *testing.T) {
	repository := &fakeCveRepository{rows: []models.CVE{
		makeRow(t, "CVE-2021-3517", "xmlsoft", "libxml2", 8.6, rangeTree(t, "xmlsoft", "libxml2", "2.9.11")),
	}}
	service, err := NewService(repository)
	require.NoError(t, err)
	require.NoError(t, service.Refresh())

	var wg sync.WaitGroup
	stop := make(chan struct{})

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				matches, err := service.Search("libxml2", "2.9.10")
				assert.NoError(t, err)
				assert.Len(t, matches, 1)
			}
		}()
	}

	for i := 0; i < 50; i++ {
		require.NoError(t, service.Refresh())
	}
	close(stop)
	wg.Wait()
}

func TestBrokenRecordsAreSkipped(t *testing.T) {
	broken := makeRow(t, "CVE-2020-9999", "vendor", "thing", 5.0, rangeTree(t, "vendor", "thing", "9.0"))
	broken.Configurations = []byte("{not json")

	service := newTestService(t, []models.CVE{
		broken,
		makeRow(t, "CVE-2020-0001", "vendor", "thing", 5.0, rangeTree(t, "vendor", "thing", "9.0")),
	})

	matches, err := service.Search("thing", "1.0")
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "CVE-2020-0001", matches[0].CVE)
}

func TestProductListing(t *testing.T) {
	node := func(vendor, product string) vulndb.MatchNode {
		return rangeTree(t, vendor, product, "9.0")
	}
	service := newTestService(t, []models.CVE{
		makeRow(t, "CVE-1", "haxx", "curl", 5.0, node("haxx", "curl")),
		makeRow(t, "CVE-2", "haxx", "curl", 6.0, node("haxx", "curl")),
		makeRow(t, "CVE-3", "haxx", "libcurl", 6.0, node("haxx", "libcurl")),
		makeRow(t, "CVE-4", "@npm", "node-tar", 4.0, node("@npm", "node-tar")),
	})

	t.Run("list products", func(t *testing.T) {
		assert.Equal(t, []string{"curl", "libcurl", "node-tar"}, service.ListProducts())
	})

	t.Run("list by vendor has no duplicates", func(t *testing.T) {
		byVendor := service.ListByVendor()
		assert.Equal(t, []string{"curl", "libcurl"}, byVendor["haxx"])
		assert.Equal(t, []string{"node-tar"}, byVendor["@npm"])
	})

	t.Run("substring search ranks by match position", func(t *testing.T) {
		results := service.SearchProducts("cur")
		require.Len(t, results, 2)
		// "curl" matches at position 0, "libcurl" at position 3
		assert.Equal(t, "curl", results[0].Product)
		assert.Equal(t, "libcurl", results[1].Product)
	})

	t.Run("substring search is case-insensitive", func(t *testing.T) {
		results := service.SearchProducts("CURL")
		assert.Len(t, results, 2)
	})
}
