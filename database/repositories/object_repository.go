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
	"github.com/l3montree-dev/kepler/database/models"
	"github.com/l3montree-dev/kepler/shared"
	"gorm.io/gorm/clause"
)

type objectRepository struct {
	*GormRepository[string, models.Object]
	db shared.DB
}

func NewObjectRepository(db shared.DB) *objectRepository {
	return &objectRepository{
		db:             db,
		GormRepository: newGormRepository[string, models.Object](db),
	}
}

// UpsertReturningID writes the raw payload and fills obj.ID with the id of
// the stored row, whether it was inserted or already existed.
func (r *objectRepository) UpsertReturningID(tx shared.DB, obj *models.Object) error {
	return r.GetDB(tx).Clauses(
		clause.OnConflict{
			Columns:   []clause.Column{{Name: "cve"}},
			DoUpdates: clause.AssignmentColumns([]string{"source", "data", "updated_at"}),
		},
		clause.Returning{Columns: []clause.Column{{Name: "id"}}},
	).Create(obj).Error
}

// DeleteByCVE removes the raw payload of an advisory. Rows in cves cascade.
func (r *objectRepository) DeleteByCVE(tx shared.DB, cveID string) error {
	return r.GetDB(tx).Where("cve = ?", cveID).Delete(&models.Object{}).Error
}
