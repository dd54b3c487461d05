package migration

import (
	"github.com/openarchive/preserv-backend/internal/domain"
	"gorm.io/gorm"
)

// Run creates or updates the versioning schema. Tables are additive only;
// existing rows are never rewritten here.
func Run(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.VersionHistory{},
		&domain.VersionRecord{},
		&domain.VersionContent{},
		&domain.Bitstream{},
	)
}
