package models

import "gorm.io/datatypes"

// Config is a simple key value store for operational state, like the last
// successful mirror time per feed.
type Config struct {
	Key string         `json:"key" gorm:"primaryKey;type:text;"`
	Val datatypes.JSON `json:"val" gorm:"type:jsonb;"`
}

func (m Config) TableName() string {
	return "configs"
}
