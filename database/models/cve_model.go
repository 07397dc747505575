package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type Source string

const (
	SourceNVD Source = "NVD"
	SourceNPM Source = "NPM"
)

type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityNone     Severity = "none"
)

type cveReference struct {
	URL  string   `json:"url"`
	Tags []string `json:"tags"`
}

// CVE is one (vulnerability, vendor, product) row. A single advisory that
// names several products fans out into several rows, all pointing at the same
// Object. Rows are created and updated only by the importers.
type CVE struct {
	ID        uuid.UUID `json:"id" gorm:"primaryKey;type:uuid;default:gen_random_uuid();"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	CVE     string `json:"cve" gorm:"uniqueIndex:idx_cve_vendor_product;not null;type:text;"`
	Vendor  string `json:"vendor" gorm:"uniqueIndex:idx_cve_vendor_product;not null;type:text;"`
	Product string `json:"product" gorm:"uniqueIndex:idx_cve_vendor_product;not null;type:text;"`

	DatePublished    time.Time `json:"datePublished"`
	DateLastModified time.Time `json:"dateLastModified"`

	Source   Source   `json:"source" gorm:"not null;type:text;"`
	Summary  string   `json:"summary" gorm:"type:text;"`
	Score    float32  `json:"score" gorm:"type:decimal(4,2);"`
	Severity Severity `json:"severity" gorm:"type:text;"`
	Vector   *string  `json:"vector" gorm:"type:text;"`

	References datatypes.JSON `json:"references" gorm:"type:jsonb;"`
	// the match tree built from the advisory's configurations
	Configurations datatypes.JSON `json:"configurations" gorm:"type:jsonb;"`

	ObjectID uuid.UUID `json:"objectId" gorm:"type:uuid;not null;"`
	Object   Object    `json:"-" gorm:"foreignKey:ObjectID;constraint:OnDelete:CASCADE;"`
}

func (m CVE) TableName() string {
	return "cves"
}

func (m CVE) GetReferences() ([]cveReference, error) {
	var refs []cveReference
	if err := json.Unmarshal(m.References, &refs); err != nil {
		return nil, err
	}
	return refs, nil
}
