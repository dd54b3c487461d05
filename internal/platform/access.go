package platform

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/openarchive/preserv-backend/internal/domain"
)

// Policy actions mirrored from the platform's resource policy table.
const (
	ActionRead  = "READ"
	ActionWrite = "WRITE"
)

// Resource type discriminators for PolicyRow.
const (
	ResourceItem      = "ITEM"
	ResourceBitstream = "BITSTREAM"
)

// PolicyRow grants an account an action on a resource.
type PolicyRow struct {
	ID           uint64 `gorm:"column:policy_id;primaryKey;autoIncrement"`
	ResourceType string `gorm:"column:resource_type;type:varchar(16);index:idx_policy_resource"`
	ResourceID   uint64 `gorm:"column:resource_id;index:idx_policy_resource"`
	AccountID    uint64 `gorm:"column:eperson_id;index"`
	Action       string `gorm:"column:action;type:varchar(16)"`
}

func (PolicyRow) TableName() string { return "resourcepolicy" }

// AccountRow is the slice of the platform account table this service reads.
type AccountRow struct {
	ID    uint64 `gorm:"column:eperson_id;primaryKey;autoIncrement"`
	Email string `gorm:"column:email;type:varchar(255);uniqueIndex"`
	Admin bool   `gorm:"column:is_admin"`
}

func (AccountRow) TableName() string { return "eperson" }

type accessControl struct {
	db *gorm.DB
}

// NewAccessControl adapts the platform policy tables to the versioning
// subsystem's permission interface.
func NewAccessControl(db *gorm.DB) domain.AccessControl {
	return &accessControl{db: db}
}

func (a *accessControl) IsAdmin(ctx context.Context, actor domain.Actor, _ *domain.Item) (bool, error) {
	if actor.ID == 0 {
		return false, nil
	}
	var row AccountRow
	err := a.db.WithContext(ctx).First(&row, "eperson_id = ?", actor.ID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return row.Admin, nil
}

func (a *accessControl) CanWrite(ctx context.Context, actor domain.Actor, item *domain.Item) (bool, error) {
	if actor.ID == 0 || item == nil {
		return false, nil
	}
	var count int64
	err := a.db.WithContext(ctx).Model(&PolicyRow{}).
		Where("resource_type = ? AND resource_id = ? AND eperson_id = ? AND action = ?",
			ResourceItem, item.ID, actor.ID, ActionWrite).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// InheritPolicies copies the item's read policies onto a derived bitstream,
// so manifest visibility always matches the item it describes.
func (a *accessControl) InheritPolicies(ctx context.Context, item *domain.Item, bitstreamID uint64) error {
	if item == nil {
		return nil
	}
	return a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&PolicyRow{}, "resource_type = ? AND resource_id = ?", ResourceBitstream, bitstreamID).Error; err != nil {
			return err
		}
		var policies []PolicyRow
		if err := tx.Where("resource_type = ? AND resource_id = ? AND action = ?",
			ResourceItem, item.ID, ActionRead).Find(&policies).Error; err != nil {
			return err
		}
		for i := range policies {
			policies[i].ID = 0
			policies[i].ResourceType = ResourceBitstream
			policies[i].ResourceID = bitstreamID
		}
		if len(policies) == 0 {
			return nil
		}
		return tx.Create(&policies).Error
	})
}
