package repository

import (
	"context"
	"errors"

	"github.com/openarchive/preserv-backend/internal/domain"
	"gorm.io/gorm"
)

// VersionHistoryRepository persists version history heads. A history is
// created lazily on an item's first qualifying mutation and deleted only
// when its last record is removed.
type VersionHistoryRepository interface {
	Create(ctx context.Context) (*domain.VersionHistory, error)
	FindByID(ctx context.Context, id uint64) (*domain.VersionHistory, error)
	// FindByItemID resolves the history owning any version record that
	// points at the item, or nil when the item is unversioned.
	FindByItemID(ctx context.Context, itemID uint64) (*domain.VersionHistory, error)
	Delete(ctx context.Context, id uint64) error
}

type versionHistoryRepository struct {
	db *gorm.DB
}

// NewVersionHistoryRepository creates a new VersionHistoryRepository
func NewVersionHistoryRepository(db *gorm.DB) VersionHistoryRepository {
	return &versionHistoryRepository{db: db}
}

func (r *versionHistoryRepository) Create(ctx context.Context) (*domain.VersionHistory, error) {
	history := &domain.VersionHistory{}
	if err := r.db.WithContext(ctx).Create(history).Error; err != nil {
		return nil, err
	}
	return history, nil
}

func (r *versionHistoryRepository) FindByID(ctx context.Context, id uint64) (*domain.VersionHistory, error) {
	var history domain.VersionHistory
	err := r.db.WithContext(ctx).First(&history, "history_id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &history, nil
}

func (r *versionHistoryRepository) FindByItemID(ctx context.Context, itemID uint64) (*domain.VersionHistory, error) {
	var history domain.VersionHistory
	err := r.db.WithContext(ctx).
		Joins("JOIN versionitem ON versionitem.history_id = versionhistory.history_id").
		Where("versionitem.item_id = ?", itemID).
		Order("versionitem.version_number DESC").
		First(&history).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &history, nil
}

func (r *versionHistoryRepository) Delete(ctx context.Context, id uint64) error {
	return r.db.WithContext(ctx).Delete(&domain.VersionHistory{}, "history_id = ?", id).Error
}
