package domain

import "time"

// Checksum algorithm recorded on every stored bitstream. Fixed to MD5 for
// compatibility with legacy checksum consumers.
const ChecksumAlgorithm = "MD5"

// Bitstream is an immutable, checksummed byte blob in the asset store.
// A row is created with Deleted=true when the stream is allocated and
// flipped to false exactly once, when the digest sink finalizes.
type Bitstream struct {
	ID                uint64    `gorm:"column:bitstream_id;primaryKey;autoIncrement" json:"bitstream_id"`
	InternalID        string    `gorm:"column:internal_id;type:varchar(64);uniqueIndex" json:"internal_id"`
	StoreBackend      string    `gorm:"column:store_backend;type:varchar(32)" json:"store_backend"`
	Name              string    `gorm:"column:name;type:varchar(255)" json:"name,omitempty"`
	Source            string    `gorm:"column:source;type:varchar(255)" json:"source,omitempty"`
	Description       string    `gorm:"column:description;type:varchar(255)" json:"description,omitempty"`
	Format            string    `gorm:"column:format;type:varchar(255)" json:"format"`
	SizeBytes         int64     `gorm:"column:size_bytes" json:"size_bytes"`
	Checksum          string    `gorm:"column:checksum;type:varchar(64)" json:"checksum"`
	ChecksumAlgorithm string    `gorm:"column:checksum_algorithm;type:varchar(16)" json:"checksum_algorithm"`
	Deleted           bool      `gorm:"column:deleted" json:"deleted"`
	CreatedAt         time.Time `gorm:"column:create_date;autoCreateTime" json:"create_date"`
	LastModified      time.Time `gorm:"column:last_modified_date;autoUpdateTime" json:"last_modified_date"`
}

func (Bitstream) TableName() string { return "bitstream" }
