package platform

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/openarchive/preserv-backend/internal/common"
	"github.com/openarchive/preserv-backend/internal/domain"
)

func setupPlatform(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.Bitstream{}))
	require.NoError(t, Migrate(db))
	return db
}

func seedItem(t *testing.T, db *gorm.DB) *ItemRow {
	t.Helper()
	row := &ItemRow{
		Handle:       "10673/50",
		ParentHandle: "10673/2",
		SubmitterID:  7,
		InArchive:    true,
		Discoverable: true,
	}
	require.NoError(t, db.Create(row).Error)
	require.NoError(t, db.Create(&MetadataRow{
		ItemID: row.ID, Schema: "dc", Element: "title", Value: "Plankton counts",
	}).Error)
	return row
}

func TestItemRepositoryFind(t *testing.T) {
	db := setupPlatform(t)
	repo := NewItemRepository(db)
	ctx := context.Background()
	row := seedItem(t, db)

	bs := &domain.Bitstream{InternalID: "feedfacecafe", Name: "counts.csv", Format: "text/csv", Checksum: "aa"}
	require.NoError(t, db.Create(bs).Error)
	require.NoError(t, db.Create(&BundleRow{ItemID: row.ID, Name: "ORIGINAL", BitstreamID: bs.ID}).Error)

	item, err := repo.Find(ctx, row.ID)
	require.NoError(t, err)
	assert.Equal(t, "10673/50", item.Handle)
	assert.Equal(t, "Plankton counts", item.Title())
	require.Len(t, item.Bundles, 1)
	assert.Equal(t, "ORIGINAL", item.Bundles[0].Name)
	assert.Equal(t, []uint64{bs.ID}, item.BitstreamIDs())

	_, err = repo.Find(ctx, 9999)
	assert.ErrorIs(t, err, common.ErrItemNotFound)
}

func TestCreateWorkingCopy(t *testing.T) {
	db := setupPlatform(t)
	repo := NewItemRepository(db)
	ctx := context.Background()
	row := seedItem(t, db)

	original, err := repo.Find(ctx, row.ID)
	require.NoError(t, err)

	copyItem, err := repo.CreateWorkingCopy(ctx, original)
	require.NoError(t, err)
	assert.NotEqual(t, original.ID, copyItem.ID)
	assert.False(t, copyItem.Archived, "working copies start outside the archive")
	assert.Empty(t, copyItem.Handle, "handles are assigned at archive time")
	assert.Equal(t, original.SubmitterID, copyItem.SubmitterID)
	assert.Equal(t, original.Title(), copyItem.Title(), "metadata is cloned")
}

func TestSetDiscoverableAndRemove(t *testing.T) {
	db := setupPlatform(t)
	repo := NewItemRepository(db)
	ctx := context.Background()
	row := seedItem(t, db)
	require.NoError(t, db.Create(&CollectionRow{CollectionID: 3, ItemID: row.ID}).Error)

	require.NoError(t, repo.SetDiscoverable(ctx, row.ID, false))
	item, err := repo.Find(ctx, row.ID)
	require.NoError(t, err)
	assert.False(t, item.Discoverable)

	require.NoError(t, repo.RemoveFromCollections(ctx, row.ID))
	_, err = repo.Find(ctx, row.ID)
	assert.ErrorIs(t, err, common.ErrItemNotFound)

	var count int64
	require.NoError(t, db.Model(&CollectionRow{}).Where("item_id = ?", row.ID).Count(&count).Error)
	assert.Zero(t, count)
}

func TestAccessControl(t *testing.T) {
	db := setupPlatform(t)
	ac := NewAccessControl(db)
	ctx := context.Background()
	row := seedItem(t, db)

	require.NoError(t, db.Create(&AccountRow{ID: 1, Email: "root@repo.test", Admin: true}).Error)
	require.NoError(t, db.Create(&AccountRow{ID: 7, Email: "sub@repo.test"}).Error)
	require.NoError(t, db.Create(&PolicyRow{
		ResourceType: ResourceItem, ResourceID: row.ID, AccountID: 7, Action: ActionWrite,
	}).Error)
	require.NoError(t, db.Create(&PolicyRow{
		ResourceType: ResourceItem, ResourceID: row.ID, AccountID: 7, Action: ActionRead,
	}).Error)

	item := &domain.Item{ID: row.ID}

	admin, err := ac.IsAdmin(ctx, domain.Actor{ID: 1}, item)
	assert.NoError(t, err)
	assert.True(t, admin)
	admin, err = ac.IsAdmin(ctx, domain.Actor{ID: 7}, item)
	assert.NoError(t, err)
	assert.False(t, admin)

	ok, err := ac.CanWrite(ctx, domain.Actor{ID: 7}, item)
	assert.NoError(t, err)
	assert.True(t, ok)
	ok, err = ac.CanWrite(ctx, domain.Actor{ID: 99}, item)
	assert.NoError(t, err)
	assert.False(t, ok)

	// Read policies propagate to a derived bitstream.
	require.NoError(t, ac.InheritPolicies(ctx, item, 555))
	var policies []PolicyRow
	require.NoError(t, db.Where("resource_type = ? AND resource_id = ?", ResourceBitstream, 555).Find(&policies).Error)
	require.Len(t, policies, 1)
	assert.Equal(t, ActionRead, policies[0].Action)
	assert.Equal(t, uint64(7), policies[0].AccountID)
}

func TestManifestIngesterReplace(t *testing.T) {
	db := setupPlatform(t)
	items := NewItemRepository(db)
	ingester := NewManifestIngester(db)
	ctx := context.Background()
	row := seedItem(t, db)

	bs := &domain.Bitstream{InternalID: "0011223344", Name: "counts.csv", Format: "text/csv", Checksum: "d41d8cd98f00b204e9800998ecf8427e"}
	require.NoError(t, db.Create(bs).Error)

	manifest := `<?xml version="1.0"?>
<mets xmlns="http://www.loc.gov/METS/">
  <dmdSec ID="dmd_1">
    <mdWrap MDTYPE="OTHER" OTHERMDTYPE="DIM">
      <xmlData>
        <dim xmlns="http://www.openarchive.org/xmlns/dim">
          <field mdschema="dc" element="title">Plankton counts, corrected</field>
          <field mdschema="dc" element="description" qualifier="abstract">Recount after calibration.</field>
        </dim>
      </xmlData>
    </mdWrap>
  </dmdSec>
  <fileSec>
    <fileGrp USE="ORIGINAL">
      <file ID="file_1" CHECKSUM="d41d8cd98f00b204e9800998ecf8427e"/>
    </fileGrp>
  </fileSec>
</mets>`

	target, err := items.Find(ctx, row.ID)
	require.NoError(t, err)

	restored, err := ingester.Replace(ctx, target, strings.NewReader(manifest), map[string]string{"manifestOnly": "true"})
	require.NoError(t, err)
	assert.Equal(t, "Plankton counts, corrected", restored.Title())
	assert.Equal(t, []string{"Recount after calibration."}, restored.Field("dc", "description", "abstract"))
	require.Len(t, restored.Bundles, 1)
	assert.Equal(t, []uint64{bs.ID}, restored.BitstreamIDs())
}

func TestManifestIngesterRejectsUnknownChecksum(t *testing.T) {
	db := setupPlatform(t)
	items := NewItemRepository(db)
	ingester := NewManifestIngester(db)
	ctx := context.Background()
	row := seedItem(t, db)

	manifest := `<mets><dmdSec><mdWrap MDTYPE="OTHER" OTHERMDTYPE="DIM"><xmlData><dim>
<field mdschema="dc" element="title">x</field>
</dim></xmlData></mdWrap></dmdSec>
<fileSec><fileGrp USE="ORIGINAL"><file CHECKSUM="not-stored"/></fileGrp></fileSec></mets>`

	target, err := items.Find(ctx, row.ID)
	require.NoError(t, err)

	_, err = ingester.Replace(ctx, target, strings.NewReader(manifest), nil)
	assert.ErrorIs(t, err, common.ErrBitstreamNotFound)
}
