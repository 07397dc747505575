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

package search

import (
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/l3montree-dev/kepler/database/models"
	"github.com/l3montree-dev/kepler/monitoring"
	"github.com/l3montree-dev/kepler/shared"
	"github.com/pkg/errors"
)

// the cache holds final responses per (product, version) fingerprint
const cacheSize = 4096

var ErrMissingProduct = errors.New("product must not be empty")

// Service answers vulnerability queries from an in-memory index. The index is
// an immutable snapshot swapped atomically on refresh, searches never block
// on a rebuild and never touch the database.
type Service struct {
	cveRepository shared.CveRepository

	index atomic.Pointer[snapshot]
	cache *lru.Cache[string, []models.CVE]
}

func NewService(cveRepository shared.CveRepository) (*Service, error) {
	cache, err := lru.New[string, []models.CVE](cacheSize)
	if err != nil {
		return nil, errors.Wrap(err, "could not create search cache")
	}

	service := &Service{
		cveRepository: cveRepository,
		cache:         cache,
	}
	// start with an empty generation, Refresh fills it
	service.index.Store(buildSnapshot(nil))
	return service, nil
}

// Refresh builds a new index generation from the store and swaps it in. The
// cache is purged wholesale afterwards, stale "no match" entries would
// silently become wrong otherwise.
func (service *Service) Refresh() error {
	start := time.Now()

	rows, err := service.cveRepository.All()
	if err != nil {
		return errors.Wrap(err, "could not load records for index rebuild")
	}

	snap := buildSnapshot(rows)
	service.index.Store(snap)
	service.cache.Purge()

	monitoring.IndexRebuildDuration.Observe(time.Since(start).Minutes())
	slog.Info("search index rebuilt", "records", len(rows), "products", len(snap.products), "duration", time.Since(start))
	return nil
}

func fingerprint(product, version string) string {
	return product + "\x00" + version
}

// Search returns all records matching the product at the given version,
// ordered by descending score, ties broken by cve id.
func (service *Service) Search(product, version string) ([]models.CVE, error) {
	product = strings.ToLower(strings.TrimSpace(product))
	version = strings.ToLower(strings.TrimSpace(version))

	if product == "" {
		return nil, ErrMissingProduct
	}

	key := fingerprint(product, version)
	if cached, ok := service.cache.Get(key); ok {
		monitoring.SearchCacheHits.Inc()
		return cached, nil
	}
	monitoring.SearchCacheMisses.Inc()

	matches := service.index.Load().search(product, version)
	service.cache.Add(key, matches)
	return matches, nil
}

// ListProducts returns all distinct product names in alphabetical order.
func (service *Service) ListProducts() []string {
	return service.index.Load().products
}

// ListByVendor groups all distinct products under their vendor.
func (service *Service) ListByVendor() map[string][]string {
	return service.index.Load().byVendor
}

// SearchProducts finds products by case-insensitive substring.
func (service *Service) SearchProducts(query string) []ProductEntry {
	query = strings.ToLower(strings.TrimSpace(query))
	return service.index.Load().searchProducts(query)
}
