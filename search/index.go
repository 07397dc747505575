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
	"encoding/json"
	"log/slog"
	"sort"
	"strings"

	"github.com/l3montree-dev/kepler/database/models"
	"github.com/l3montree-dev/kepler/vulndb"
)

// ProductEntry is one distinct (vendor, product) pair known to the index.
type ProductEntry struct {
	Vendor  string `json:"vendor"`
	Product string `json:"product"`
}

type indexEntry struct {
	record models.CVE
	tree   vulndb.MatchNode
}

// snapshot is one immutable generation of the product index. It is built
// completely before it becomes visible, readers never see a partial one.
type snapshot struct {
	byProduct map[string][]indexEntry
	byVendor  map[string][]string
	products  []string
	pairs     []ProductEntry
}

// buildSnapshot groups all rows by normalized product name and parses each
// stored match tree exactly once. Rows with an unreadable tree are logged and
// left out, they can never match anyway.
func buildSnapshot(rows []models.CVE) *snapshot {
	snap := &snapshot{
		byProduct: make(map[string][]indexEntry),
		byVendor:  make(map[string][]string),
	}

	pairSeen := map[ProductEntry]struct{}{}

	for _, row := range rows {
		product := strings.ToLower(strings.TrimSpace(row.Product))
		if product == "" {
			continue
		}

		var tree vulndb.MatchNode
		if err := json.Unmarshal(row.Configurations, &tree); err != nil {
			slog.Error("could not parse stored match tree, skipping record", "cve", row.CVE, "product", product, "err", err)
			continue
		}

		snap.byProduct[product] = append(snap.byProduct[product], indexEntry{record: row, tree: tree})

		pair := ProductEntry{Vendor: strings.ToLower(strings.TrimSpace(row.Vendor)), Product: product}
		if _, ok := pairSeen[pair]; !ok {
			pairSeen[pair] = struct{}{}
			snap.pairs = append(snap.pairs, pair)
		}
	}

	// results are ordered by descending score, ties broken by cve id. Sorting
	// each candidate list once here keeps the query path allocation free.
	for _, entries := range snap.byProduct {
		sort.Slice(entries, func(i, j int) bool {
			if entries[i].record.Score != entries[j].record.Score {
				return entries[i].record.Score > entries[j].record.Score
			}
			return entries[i].record.CVE < entries[j].record.CVE
		})
	}

	sort.Slice(snap.pairs, func(i, j int) bool {
		if snap.pairs[i].Product != snap.pairs[j].Product {
			return snap.pairs[i].Product < snap.pairs[j].Product
		}
		return snap.pairs[i].Vendor < snap.pairs[j].Vendor
	})

	productSeen := map[string]struct{}{}
	vendorProductSeen := map[ProductEntry]struct{}{}
	for _, pair := range snap.pairs {
		if _, ok := productSeen[pair.Product]; !ok {
			productSeen[pair.Product] = struct{}{}
			snap.products = append(snap.products, pair.Product)
		}
		if _, ok := vendorProductSeen[pair]; !ok {
			vendorProductSeen[pair] = struct{}{}
			snap.byVendor[pair.Vendor] = append(snap.byVendor[pair.Vendor], pair.Product)
		}
	}
	for vendor := range snap.byVendor {
		sort.Strings(snap.byVendor[vendor])
	}

	return snap
}

// search returns all records whose match tree confirms the given product and
// version. Candidates are narrowed by exact product name first, the tree
// evaluator only runs on records of that product.
func (snap *snapshot) search(product, version string) []models.CVE {
	entries := snap.byProduct[product]

	matches := make([]models.CVE, 0, len(entries))
	for _, entry := range entries {
		if entry.tree.Matches(product, version) {
			matches = append(matches, entry.record)
		}
	}
	return matches
}

// searchProducts finds all pairs whose product name contains the query as a
// substring, ordered by the position of the substring, then product, then
// vendor.
func (snap *snapshot) searchProducts(query string) []ProductEntry {
	type scored struct {
		entry ProductEntry
		pos   int
	}

	var results []scored
	for _, pair := range snap.pairs {
		if pos := strings.Index(pair.Product, query); pos >= 0 {
			results = append(results, scored{entry: pair, pos: pos})
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].pos < results[j].pos
	})

	entries := make([]ProductEntry, len(results))
	for i, result := range results {
		entries[i] = result.entry
	}
	return entries
}
