package domain

import "time"

// WorkingVersionNumber marks an in-progress version record. A record keeps
// this number while its item sits in submission or workflow; promotion to
// the archive assigns the next integer in the history.
const WorkingVersionNumber = -1

// VersionRecord is one row of an item's version history. At most one record
// per history carries WorkingVersionNumber at any time; archived records
// (version_number >= 0) form a gapless ascending sequence.
type VersionRecord struct {
	ID             uint64    `gorm:"column:version_id;primaryKey;autoIncrement" json:"version_id"`
	HistoryID      uint64    `gorm:"column:history_id;index" json:"history_id"`
	ItemID         *uint64   `gorm:"column:item_id;index" json:"item_id,omitempty"`
	VersionNumber  int       `gorm:"column:version_number;index" json:"version_number"`
	VersionDate    time.Time `gorm:"column:version_date" json:"version_date"`
	EditorID       uint64    `gorm:"column:editor_id" json:"editor_id"`
	Summary        string    `gorm:"column:version_summary;type:varchar(255)" json:"summary"`
	Log            string    `gorm:"column:version_log;type:text" json:"log"`
	Handle         string    `gorm:"column:handle;type:varchar(255)" json:"handle,omitempty"`
	AIPBitstreamID *uint64   `gorm:"column:aip_bitstream_id;index" json:"aip_bitstream_id,omitempty"`
	OREBitstreamID *uint64   `gorm:"column:ore_bitstream_id;index" json:"ore_bitstream_id,omitempty"`
}

func (VersionRecord) TableName() string { return "versionitem" }

// IsWorking reports whether the record is the history's mutable tail.
func (v *VersionRecord) IsWorking() bool { return v.VersionNumber == WorkingVersionNumber }

// IsArchived reports whether the record refers to an immutable, archived version.
func (v *VersionRecord) IsArchived() bool { return v.VersionNumber >= 0 }

// VersionHistory groups the version records of one item lineage. Records are
// not held as owning pointers; they are looked up by history id through the
// repository, ordered by version number.
type VersionHistory struct {
	ID        uint64    `gorm:"column:history_id;primaryKey;autoIncrement" json:"history_id"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (VersionHistory) TableName() string { return "versionhistory" }

// VersionContent maps a version record to one content bitstream that was part
// of the item at archive time.
type VersionContent struct {
	VersionID   uint64 `gorm:"column:version_id;primaryKey" json:"version_id"`
	BitstreamID uint64 `gorm:"column:bitstream_id;primaryKey;index" json:"bitstream_id"`
}

func (VersionContent) TableName() string { return "version2bitstream" }
