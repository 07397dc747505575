package shared

import (
	"time"

	"github.com/l3montree-dev/kepler/database/models"
)

// CveRepository persists the per (cve, vendor, product) rows the matching
// engine is built from.
type CveRepository interface {
	All() ([]models.CVE, error)
	UpsertBatch(tx DB, cves []*models.CVE) error
	DeleteByCVE(tx DB, cveID string) error
	GetLastModDate() (time.Time, error)
	Transaction(f func(tx DB) error) error
	GetDB(tx DB) DB
}

// ObjectRepository persists the raw advisory payloads.
type ObjectRepository interface {
	UpsertReturningID(tx DB, obj *models.Object) error
	DeleteByCVE(tx DB, cveID string) error
}

// ConfigService is a key value store for operational state.
type ConfigService interface {
	GetJSONConfig(key string, v any) error
	SetJSONConfig(key string, v any) error
}
