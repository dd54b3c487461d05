package repository

import (
	"context"

	"github.com/openarchive/preserv-backend/internal/domain"
	"gorm.io/gorm"
)

// BitstreamRepository persists bitstream rows for the asset store.
type BitstreamRepository interface {
	Create(ctx context.Context, bitstream *domain.Bitstream) error
	Update(ctx context.Context, bitstream *domain.Bitstream) error
	FindByID(ctx context.Context, id uint64) (*domain.Bitstream, error)
	FindByInternalID(ctx context.Context, internalID string) (*domain.Bitstream, error)
	FindByIDs(ctx context.Context, ids []uint64) ([]domain.Bitstream, error)
	// MarkDeleted soft-deletes the row; the stored bytes stay in the backend
	// until a purge.
	MarkDeleted(ctx context.Context, id uint64) error
	Delete(ctx context.Context, id uint64) error
}

type bitstreamRepository struct {
	db *gorm.DB
}

// NewBitstreamRepository creates a new BitstreamRepository
func NewBitstreamRepository(db *gorm.DB) BitstreamRepository {
	return &bitstreamRepository{db: db}
}

func (r *bitstreamRepository) Create(ctx context.Context, bitstream *domain.Bitstream) error {
	return r.db.WithContext(ctx).Create(bitstream).Error
}

func (r *bitstreamRepository) Update(ctx context.Context, bitstream *domain.Bitstream) error {
	return r.db.WithContext(ctx).Save(bitstream).Error
}

func (r *bitstreamRepository) FindByID(ctx context.Context, id uint64) (*domain.Bitstream, error) {
	var bitstream domain.Bitstream
	err := r.db.WithContext(ctx).First(&bitstream, "bitstream_id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &bitstream, nil
}

func (r *bitstreamRepository) FindByInternalID(ctx context.Context, internalID string) (*domain.Bitstream, error) {
	var bitstream domain.Bitstream
	err := r.db.WithContext(ctx).First(&bitstream, "internal_id = ?", internalID).Error
	if err != nil {
		return nil, err
	}
	return &bitstream, nil
}

func (r *bitstreamRepository) FindByIDs(ctx context.Context, ids []uint64) ([]domain.Bitstream, error) {
	var bitstreams []domain.Bitstream
	if len(ids) == 0 {
		return bitstreams, nil
	}
	err := r.db.WithContext(ctx).
		Where("bitstream_id IN ?", ids).
		Order("bitstream_id ASC").
		Find(&bitstreams).Error
	return bitstreams, err
}

func (r *bitstreamRepository) MarkDeleted(ctx context.Context, id uint64) error {
	return r.db.WithContext(ctx).Model(&domain.Bitstream{}).
		Where("bitstream_id = ?", id).
		Update("deleted", true).Error
}

func (r *bitstreamRepository) Delete(ctx context.Context, id uint64) error {
	return r.db.WithContext(ctx).Delete(&domain.Bitstream{}, "bitstream_id = ?", id).Error
}
