package repository

import (
	"context"
	"errors"

	"github.com/openarchive/preserv-backend/internal/domain"
	"gorm.io/gorm"
)

// VersionRepository persists version records and their content snapshots.
type VersionRepository interface {
	Create(ctx context.Context, record *domain.VersionRecord) error
	Update(ctx context.Context, record *domain.VersionRecord) error
	Delete(ctx context.Context, id uint64) error
	FindByID(ctx context.Context, id uint64) (*domain.VersionRecord, error)

	// FindLatestByItemID returns the item's record with the highest version
	// number, or nil when the item has none.
	FindLatestByItemID(ctx context.Context, itemID uint64) (*domain.VersionRecord, error)
	FindWorkingByItemID(ctx context.Context, itemID uint64) (*domain.VersionRecord, error)
	FindByHistoryID(ctx context.Context, historyID uint64) ([]domain.VersionRecord, error)
	LatestArchived(ctx context.Context, historyID uint64) (*domain.VersionRecord, error)

	// NextVersionNumber returns latest archived + 1, or 1 for a history with
	// no archived records. Callers must hold the history lock.
	NextVersionNumber(ctx context.Context, historyID uint64) (int, error)
	CountByHistory(ctx context.Context, historyID uint64) (int64, error)
	CountWorking(ctx context.Context, historyID uint64) (int64, error)

	// Previous and Next navigate the archived chain, skipping removed
	// records. Both return nil at the ends of the chain.
	Previous(ctx context.Context, historyID uint64, versionNumber int) (*domain.VersionRecord, error)
	Next(ctx context.Context, historyID uint64, versionNumber int) (*domain.VersionRecord, error)

	FindByAIPBitstream(ctx context.Context, bitstreamID uint64) (*domain.VersionRecord, error)
	FindByOREBitstream(ctx context.Context, bitstreamID uint64) (*domain.VersionRecord, error)
	FindLatestByContentBitstream(ctx context.Context, bitstreamID uint64) (*domain.VersionRecord, error)

	AddContentBitstreams(ctx context.Context, versionID uint64, bitstreamIDs []uint64) error
	ContentBitstreamIDs(ctx context.Context, versionID uint64) ([]uint64, error)
	DeleteContent(ctx context.Context, versionID uint64) error

	Search(ctx context.Context, query string, offset, limit int) ([]domain.VersionRecord, error)
	SearchCount(ctx context.Context, query string) (int64, error)
}

type versionRepository struct {
	db *gorm.DB
}

// NewVersionRepository creates a new VersionRepository
func NewVersionRepository(db *gorm.DB) VersionRepository {
	return &versionRepository{db: db}
}

func (r *versionRepository) Create(ctx context.Context, record *domain.VersionRecord) error {
	return r.db.WithContext(ctx).Create(record).Error
}

func (r *versionRepository) Update(ctx context.Context, record *domain.VersionRecord) error {
	return r.db.WithContext(ctx).Save(record).Error
}

func (r *versionRepository) Delete(ctx context.Context, id uint64) error {
	return r.db.WithContext(ctx).Delete(&domain.VersionRecord{}, "version_id = ?", id).Error
}

func (r *versionRepository) FindByID(ctx context.Context, id uint64) (*domain.VersionRecord, error) {
	var record domain.VersionRecord
	err := r.db.WithContext(ctx).First(&record, "version_id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *versionRepository) FindLatestByItemID(ctx context.Context, itemID uint64) (*domain.VersionRecord, error) {
	var record domain.VersionRecord
	err := r.db.WithContext(ctx).
		Where("item_id = ?", itemID).
		Order("version_number DESC").
		First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *versionRepository) FindWorkingByItemID(ctx context.Context, itemID uint64) (*domain.VersionRecord, error) {
	var record domain.VersionRecord
	err := r.db.WithContext(ctx).
		Where("item_id = ? AND version_number = ?", itemID, domain.WorkingVersionNumber).
		Order("version_id DESC").
		First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *versionRepository) FindByHistoryID(ctx context.Context, historyID uint64) ([]domain.VersionRecord, error) {
	var records []domain.VersionRecord
	err := r.db.WithContext(ctx).
		Where("history_id = ?", historyID).
		Order("version_number DESC").
		Find(&records).Error
	return records, err
}

func (r *versionRepository) LatestArchived(ctx context.Context, historyID uint64) (*domain.VersionRecord, error) {
	var record domain.VersionRecord
	err := r.db.WithContext(ctx).
		Where("history_id = ? AND version_number >= 0", historyID).
		Order("version_number DESC").
		First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *versionRepository) NextVersionNumber(ctx context.Context, historyID uint64) (int, error) {
	var maxNumber *int
	err := r.db.WithContext(ctx).Model(&domain.VersionRecord{}).
		Where("history_id = ? AND version_number >= 0", historyID).
		Select("MAX(version_number)").
		Scan(&maxNumber).Error
	if err != nil {
		return 1, err
	}
	if maxNumber == nil {
		return 1, nil
	}
	return *maxNumber + 1, nil
}

func (r *versionRepository) CountByHistory(ctx context.Context, historyID uint64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.VersionRecord{}).
		Where("history_id = ?", historyID).
		Count(&count).Error
	return count, err
}

func (r *versionRepository) CountWorking(ctx context.Context, historyID uint64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.VersionRecord{}).
		Where("history_id = ? AND version_number = ?", historyID, domain.WorkingVersionNumber).
		Count(&count).Error
	return count, err
}

func (r *versionRepository) Previous(ctx context.Context, historyID uint64, versionNumber int) (*domain.VersionRecord, error) {
	var record domain.VersionRecord
	err := r.db.WithContext(ctx).
		Where("history_id = ? AND version_number >= 0 AND version_number < ?", historyID, versionNumber).
		Order("version_number DESC").
		First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *versionRepository) Next(ctx context.Context, historyID uint64, versionNumber int) (*domain.VersionRecord, error) {
	var record domain.VersionRecord
	err := r.db.WithContext(ctx).
		Where("history_id = ? AND version_number > ?", historyID, versionNumber).
		Order("version_number ASC").
		First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *versionRepository) FindByAIPBitstream(ctx context.Context, bitstreamID uint64) (*domain.VersionRecord, error) {
	var record domain.VersionRecord
	err := r.db.WithContext(ctx).First(&record, "aip_bitstream_id = ?", bitstreamID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *versionRepository) FindByOREBitstream(ctx context.Context, bitstreamID uint64) (*domain.VersionRecord, error) {
	var record domain.VersionRecord
	err := r.db.WithContext(ctx).First(&record, "ore_bitstream_id = ?", bitstreamID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *versionRepository) FindLatestByContentBitstream(ctx context.Context, bitstreamID uint64) (*domain.VersionRecord, error) {
	var record domain.VersionRecord
	err := r.db.WithContext(ctx).
		Joins("JOIN version2bitstream ON version2bitstream.version_id = versionitem.version_id").
		Where("version2bitstream.bitstream_id = ?", bitstreamID).
		Order("versionitem.version_number DESC").
		First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *versionRepository) AddContentBitstreams(ctx context.Context, versionID uint64, bitstreamIDs []uint64) error {
	if len(bitstreamIDs) == 0 {
		return nil
	}
	rows := make([]domain.VersionContent, 0, len(bitstreamIDs))
	for _, id := range bitstreamIDs {
		rows = append(rows, domain.VersionContent{VersionID: versionID, BitstreamID: id})
	}
	return r.db.WithContext(ctx).Create(&rows).Error
}

func (r *versionRepository) ContentBitstreamIDs(ctx context.Context, versionID uint64) ([]uint64, error) {
	var ids []uint64
	err := r.db.WithContext(ctx).Model(&domain.VersionContent{}).
		Where("version_id = ?", versionID).
		Order("bitstream_id ASC").
		Pluck("bitstream_id", &ids).Error
	return ids, err
}

func (r *versionRepository) DeleteContent(ctx context.Context, versionID uint64) error {
	return r.db.WithContext(ctx).Delete(&domain.VersionContent{}, "version_id = ?", versionID).Error
}

func (r *versionRepository) Search(ctx context.Context, query string, offset, limit int) ([]domain.VersionRecord, error) {
	var records []domain.VersionRecord
	tx := r.searchQuery(ctx, query).Order("item_id ASC, version_number ASC")
	if limit > 0 {
		tx = tx.Limit(limit)
	}
	if offset > 0 {
		tx = tx.Offset(offset)
	}
	err := tx.Find(&records).Error
	return records, err
}

func (r *versionRepository) SearchCount(ctx context.Context, query string) (int64, error) {
	var count int64
	err := r.searchQuery(ctx, query).Count(&count).Error
	return count, err
}

func (r *versionRepository) searchQuery(ctx context.Context, query string) *gorm.DB {
	pattern := "%" + query + "%"
	tx := r.db.WithContext(ctx).Model(&domain.VersionRecord{})
	return tx.Where(
		"CAST(version_id AS CHAR) = ? OR LOWER(handle) LIKE LOWER(?) OR CAST(item_id AS CHAR) = ? OR version_summary LIKE ?",
		query, pattern, query, pattern,
	)
}
