package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Object is the raw advisory payload exactly as the feed delivered it, kept
// for auditing and re-imports. One row per advisory id, whatever the source.
type Object struct {
	ID        uuid.UUID `json:"id" gorm:"primaryKey;type:uuid;default:gen_random_uuid();"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	CVE    string         `json:"cve" gorm:"unique;not null;type:text;"`
	Source Source         `json:"source" gorm:"not null;type:text;"`
	Data   datatypes.JSON `json:"data" gorm:"type:jsonb;"`
}

func (m Object) TableName() string {
	return "objects"
}
