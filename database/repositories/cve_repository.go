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

package repositories

import (
	"time"

	"github.com/l3montree-dev/kepler/database/models"
	"github.com/l3montree-dev/kepler/shared"
	"gorm.io/gorm/clause"
)

type cveRepository struct {
	*GormRepository[string, models.CVE]
	db shared.DB
}

func NewCVERepository(db shared.DB) *cveRepository {
	return &cveRepository{
		db:             db,
		GormRepository: newGormRepository[string, models.CVE](db),
	}
}

// UpsertBatch writes one row per (cve, vendor, product), updating rows that
// already exist. Used by the importers, which see the same advisory again on
// every incremental sync.
func (r *cveRepository) UpsertBatch(tx shared.DB, cves []*models.CVE) error {
	return r.Upsert(tx,
		cves,
		[]clause.Column{{Name: "cve"}, {Name: "vendor"}, {Name: "product"}},
		[]string{"date_published", "date_last_modified", "summary", "score", "severity", "vector", "references", "configurations", "object_id", "updated_at"},
	)
}

// GetLastModDate returns the newest modification date across all rows. The
// incremental NVD sync resumes from this point.
func (r *cveRepository) GetLastModDate() (time.Time, error) {
	var lastModDate time.Time
	err := r.db.Model(&models.CVE{}).Select("MAX(date_last_modified)").Row().Scan(&lastModDate)
	return lastModDate, err
}

// DeleteByCVE removes all rows of an advisory. NPM pseudo advisories get
// deleted once the upstream entry acquires a real CVE id.
func (r *cveRepository) DeleteByCVE(tx shared.DB, cveID string) error {
	return r.GetDB(tx).Where("cve = ?", cveID).Delete(&models.CVE{}).Error
}
