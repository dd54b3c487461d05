package platform

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/openarchive/preserv-backend/internal/common"
	"github.com/openarchive/preserv-backend/internal/domain"
)

// ItemRow is the platform's item table.
type ItemRow struct {
	ID           uint64    `gorm:"column:item_id;primaryKey;autoIncrement"`
	Handle       string    `gorm:"column:handle;type:varchar(255);index"`
	ParentHandle string    `gorm:"column:parent_handle;type:varchar(255)"`
	SubmitterID  uint64    `gorm:"column:submitter_id"`
	InArchive    bool      `gorm:"column:in_archive"`
	Withdrawn    bool      `gorm:"column:withdrawn"`
	Discoverable bool      `gorm:"column:discoverable"`
	LastModified time.Time `gorm:"column:last_modified;autoUpdateTime"`
}

func (ItemRow) TableName() string { return "item" }

// MetadataRow is one qualified metadata value of an item.
type MetadataRow struct {
	ID        uint64 `gorm:"column:metadata_value_id;primaryKey;autoIncrement"`
	ItemID    uint64 `gorm:"column:item_id;index"`
	Schema    string `gorm:"column:short_id;type:varchar(32)"`
	Element   string `gorm:"column:element;type:varchar(64)"`
	Qualifier string `gorm:"column:qualifier;type:varchar(64)"`
	Language  string `gorm:"column:text_lang;type:varchar(24)"`
	Value     string `gorm:"column:text_value;type:text"`
	Place     int    `gorm:"column:place"`
}

func (MetadataRow) TableName() string { return "metadatavalue" }

// BundleRow maps an item to one content bitstream under a named bundle.
type BundleRow struct {
	ID          uint64 `gorm:"column:bundle_row_id;primaryKey;autoIncrement"`
	ItemID      uint64 `gorm:"column:item_id;index"`
	Name        string `gorm:"column:bundle_name;type:varchar(64)"`
	BitstreamID uint64 `gorm:"column:bitstream_id;index"`
}

func (BundleRow) TableName() string { return "item2bundle" }

// CollectionRow maps an item into a collection.
type CollectionRow struct {
	CollectionID uint64 `gorm:"column:collection_id;primaryKey"`
	ItemID       uint64 `gorm:"column:item_id;primaryKey;index"`
}

func (CollectionRow) TableName() string { return "collection2item" }

// Migrate creates the platform-side tables. Separate from the versioning
// schema migration: a real deployment brings these tables itself.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&ItemRow{},
		&MetadataRow{},
		&BundleRow{},
		&CollectionRow{},
		&PolicyRow{},
		&AccountRow{},
	)
}

type itemRepository struct {
	db *gorm.DB
}

// NewItemRepository adapts the platform item tables to the versioning
// subsystem's item interface.
func NewItemRepository(db *gorm.DB) domain.ItemRepository {
	return &itemRepository{db: db}
}

func (r *itemRepository) Find(ctx context.Context, id uint64) (*domain.Item, error) {
	var row ItemRow
	err := r.db.WithContext(ctx).First(&row, "item_id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, common.ErrItemNotFound
	}
	if err != nil {
		return nil, err
	}
	return r.assemble(ctx, &row)
}

func (r *itemRepository) assemble(ctx context.Context, row *ItemRow) (*domain.Item, error) {
	item := &domain.Item{
		ID:           row.ID,
		Handle:       row.Handle,
		ParentHandle: row.ParentHandle,
		SubmitterID:  row.SubmitterID,
		Archived:     row.InArchive,
		Withdrawn:    row.Withdrawn,
		Discoverable: row.Discoverable,
		LastModified: row.LastModified,
	}

	var mdRows []MetadataRow
	if err := r.db.WithContext(ctx).
		Where("item_id = ?", row.ID).
		Order("short_id ASC, element ASC, qualifier ASC, place ASC").
		Find(&mdRows).Error; err != nil {
		return nil, err
	}
	for _, m := range mdRows {
		item.Metadata = append(item.Metadata, domain.MetadataValue{
			Schema:    m.Schema,
			Element:   m.Element,
			Qualifier: m.Qualifier,
			Language:  m.Language,
			Value:     m.Value,
		})
	}

	var bundleRows []BundleRow
	if err := r.db.WithContext(ctx).
		Where("item_id = ?", row.ID).
		Order("bundle_name ASC, bitstream_id ASC").
		Find(&bundleRows).Error; err != nil {
		return nil, err
	}
	bundles := map[string]*domain.Bundle{}
	var order []string
	for _, b := range bundleRows {
		var bs domain.Bitstream
		if err := r.db.WithContext(ctx).First(&bs, "bitstream_id = ?", b.BitstreamID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				continue
			}
			return nil, err
		}
		bundle, ok := bundles[b.Name]
		if !ok {
			bundle = &domain.Bundle{Name: b.Name}
			bundles[b.Name] = bundle
			order = append(order, b.Name)
		}
		bundle.Bitstreams = append(bundle.Bitstreams, bs)
	}
	for _, name := range order {
		item.Bundles = append(item.Bundles, *bundles[name])
	}
	return item, nil
}

func (r *itemRepository) CreateWorkingCopy(ctx context.Context, from *domain.Item) (*domain.Item, error) {
	var created *domain.Item
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row := ItemRow{
			ParentHandle: from.ParentHandle,
			SubmitterID:  from.SubmitterID,
			InArchive:    false,
			Withdrawn:    false,
			Discoverable: true,
		}
		if err := tx.Create(&row).Error; err != nil {
			return err
		}

		var mdRows []MetadataRow
		if err := tx.Where("item_id = ?", from.ID).Find(&mdRows).Error; err != nil {
			return err
		}
		for i := range mdRows {
			mdRows[i].ID = 0
			mdRows[i].ItemID = row.ID
		}
		if len(mdRows) > 0 {
			if err := tx.Create(&mdRows).Error; err != nil {
				return err
			}
		}

		var bundleRows []BundleRow
		if err := tx.Where("item_id = ?", from.ID).Find(&bundleRows).Error; err != nil {
			return err
		}
		for i := range bundleRows {
			bundleRows[i].ID = 0
			bundleRows[i].ItemID = row.ID
		}
		if len(bundleRows) > 0 {
			if err := tx.Create(&bundleRows).Error; err != nil {
				return err
			}
		}

		var err error
		created, err = (&itemRepository{db: tx}).assemble(ctx, &row)
		return err
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (r *itemRepository) SetDiscoverable(ctx context.Context, id uint64, discoverable bool) error {
	return r.db.WithContext(ctx).Model(&ItemRow{}).
		Where("item_id = ?", id).
		Update("discoverable", discoverable).Error
}

func (r *itemRepository) RemoveFromCollections(ctx context.Context, id uint64) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&CollectionRow{}, "item_id = ?", id).Error; err != nil {
			return err
		}
		if err := tx.Delete(&MetadataRow{}, "item_id = ?", id).Error; err != nil {
			return err
		}
		if err := tx.Delete(&BundleRow{}, "item_id = ?", id).Error; err != nil {
			return err
		}
		return tx.Delete(&ItemRow{}, "item_id = ?", id).Error
	})
}
