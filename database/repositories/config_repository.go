package repositories

import (
	"encoding/json"

	"github.com/l3montree-dev/kepler/database/models"
	"github.com/l3montree-dev/kepler/shared"
	"gorm.io/gorm/clause"
)

type configRepository struct {
	*GormRepository[string, models.Config]
	db shared.DB
}

func NewConfigRepository(db shared.DB) *configRepository {
	return &configRepository{
		db:             db,
		GormRepository: newGormRepository[string, models.Config](db),
	}
}

func (r *configRepository) GetJSONConfig(key string, v any) error {
	var config models.Config
	if err := r.db.First(&config, "key = ?", key).Error; err != nil {
		return err
	}
	return json.Unmarshal(config.Val, v)
}

func (r *configRepository) SetJSONConfig(key string, v any) error {
	val, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"val"}),
	}).Create(&models.Config{Key: key, Val: val}).Error
}
