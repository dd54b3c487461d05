package service

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/openarchive/preserv-backend/internal/common"
	"github.com/openarchive/preserv-backend/internal/domain"
	"github.com/openarchive/preserv-backend/internal/packager"
	"github.com/openarchive/preserv-backend/internal/repository"
	"github.com/openarchive/preserv-backend/pkg/cache"
)

// MockItemRepository is a mock implementation of domain.ItemRepository
type MockItemRepository struct {
	mock.Mock
}

func (m *MockItemRepository) Find(ctx context.Context, id uint64) (*domain.Item, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Item), args.Error(1)
}

func (m *MockItemRepository) CreateWorkingCopy(ctx context.Context, from *domain.Item) (*domain.Item, error) {
	args := m.Called(from)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Item), args.Error(1)
}

func (m *MockItemRepository) SetDiscoverable(ctx context.Context, id uint64, discoverable bool) error {
	args := m.Called(id, discoverable)
	return args.Error(0)
}

func (m *MockItemRepository) RemoveFromCollections(ctx context.Context, id uint64) error {
	args := m.Called(id)
	return args.Error(0)
}

// MockAccessControl is a mock implementation of domain.AccessControl
type MockAccessControl struct {
	mock.Mock
}

func (m *MockAccessControl) IsAdmin(ctx context.Context, actor domain.Actor, item *domain.Item) (bool, error) {
	args := m.Called(actor, item)
	return args.Bool(0), args.Error(1)
}

func (m *MockAccessControl) CanWrite(ctx context.Context, actor domain.Actor, item *domain.Item) (bool, error) {
	args := m.Called(actor, item)
	return args.Bool(0), args.Error(1)
}

func (m *MockAccessControl) InheritPolicies(ctx context.Context, item *domain.Item, bitstreamID uint64) error {
	args := m.Called(item, bitstreamID)
	return args.Error(0)
}

// MockPackageIngester is a mock implementation of domain.PackageIngester
type MockPackageIngester struct {
	mock.Mock
}

func (m *MockPackageIngester) Replace(ctx context.Context, target *domain.Item, manifest io.Reader, params map[string]string) (*domain.Item, error) {
	args := m.Called(target, manifest, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Item), args.Error(1)
}

// MockAIPGenerator is a mock implementation of AIPGenerator
type MockAIPGenerator struct {
	mock.Mock
}

func (m *MockAIPGenerator) Write(ctx context.Context, item *domain.Item, opts packager.AIPOptions) (*domain.Bitstream, error) {
	args := m.Called(item, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Bitstream), args.Error(1)
}

// MockOREGenerator is a mock implementation of OREGenerator
type MockOREGenerator struct {
	mock.Mock
}

func (m *MockOREGenerator) Write(ctx context.Context, item *domain.Item, aip *domain.Bitstream) (*domain.Bitstream, error) {
	args := m.Called(item, aip)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Bitstream), args.Error(1)
}

// MockArtifactStore is a mock implementation of ArtifactStore
type MockArtifactStore struct {
	mock.Mock
}

func (m *MockArtifactStore) Retrieve(ctx context.Context, id uint64) (io.ReadCloser, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(io.ReadCloser), args.Error(1)
}

func (m *MockArtifactStore) Delete(ctx context.Context, id uint64, purge bool) error {
	args := m.Called(id, purge)
	return args.Error(0)
}

type serviceFixture struct {
	svc       VersioningService
	versions  repository.VersionRepository
	histories repository.VersionHistoryRepository
	items     *MockItemRepository
	access    *MockAccessControl
	ingester  *MockPackageIngester
	aip       *MockAIPGenerator
	ore       *MockOREGenerator
	artifacts *MockArtifactStore
	db        *gorm.DB
}

func newFixture(t *testing.T) *serviceFixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&domain.VersionHistory{},
		&domain.VersionRecord{},
		&domain.VersionContent{},
		&domain.Bitstream{},
	))

	f := &serviceFixture{
		versions:  repository.NewVersionRepository(db),
		histories: repository.NewVersionHistoryRepository(db),
		items:     new(MockItemRepository),
		access:    new(MockAccessControl),
		ingester:  new(MockPackageIngester),
		aip:       new(MockAIPGenerator),
		ore:       new(MockOREGenerator),
		artifacts: new(MockArtifactStore),
		db:        db,
	}
	f.svc = NewVersioningService(
		f.versions, f.histories, f.items, f.access, f.ingester,
		f.aip, f.ore, f.artifacts, cache.NewService(nil), true,
	)
	return f
}

func archivedItem(id uint64) *domain.Item {
	return &domain.Item{
		ID:           id,
		Handle:       "10673/42",
		SubmitterID:  5,
		Archived:     true,
		Discoverable: true,
		LastModified: time.Now(),
		Metadata:     []domain.MetadataValue{{Schema: "dc", Element: "title", Value: "Dataset"}},
		Bundles: []domain.Bundle{{
			Name:       "ORIGINAL",
			Bitstreams: []domain.Bitstream{{ID: 11}, {ID: 12}},
		}},
	}
}

func workspaceItem(id uint64) *domain.Item {
	it := archivedItem(id)
	it.Archived = false
	it.Handle = ""
	return it
}

func (f *serviceFixture) expectManifests(aipID, oreID uint64) {
	f.aip.On("Write", mock.Anything, mock.Anything).Return(&domain.Bitstream{ID: aipID, Format: "http://www.loc.gov/METS/"}, nil).Once()
	f.ore.On("Write", mock.Anything, mock.Anything).Return(&domain.Bitstream{ID: oreID, Format: "http://www.openarchives.org/ore/terms/"}, nil).Once()
	f.access.On("InheritPolicies", mock.Anything, aipID).Return(nil).Once()
	f.access.On("InheritPolicies", mock.Anything, oreID).Return(nil).Once()
}

func TestFirstArchiveCreatesVersionOne(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	item := archivedItem(100)
	f.expectManifests(500, 501)

	record, err := f.svc.UpdateVersionHistory(ctx, item, nil, "Create New Item", "", time.Now(), UpdateOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, record.VersionNumber)
	require.NotNil(t, record.AIPBitstreamID)
	require.NotNil(t, record.OREBitstreamID)
	assert.Equal(t, uint64(500), *record.AIPBitstreamID)
	assert.Equal(t, uint64(501), *record.OREBitstreamID)
	assert.Equal(t, "Create New Item", record.Summary)
	assert.Equal(t, "10673/42", record.Handle)

	history, err := f.histories.FindByItemID(ctx, 100)
	require.NoError(t, err)
	require.NotNil(t, history)
	assert.Equal(t, record.HistoryID, history.ID)

	ids, err := f.versions.ContentBitstreamIDs(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, []uint64{11, 12}, ids, "content snapshot is captured at archive time")

	f.aip.AssertExpectations(t)
	f.ore.AssertExpectations(t)
}

func TestWorkingRecordIsReusedNotDuplicated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	item := workspaceItem(200)

	first, err := f.svc.UpdateVersionHistory(ctx, item, nil, "draft edit", "", time.Now(), UpdateOptions{})
	require.NoError(t, err)
	assert.True(t, first.IsWorking())

	second, err := f.svc.UpdateVersionHistory(ctx, item, nil, "another edit", "", time.Now(), UpdateOptions{})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID, "one working record per item")
	assert.Equal(t, "draft edit", second.Summary, "summary is kept once set")

	count, err := f.versions.CountByHistory(ctx, first.HistoryID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
	f.aip.AssertNotCalled(t, "Write", mock.Anything, mock.Anything)
}

func TestPromotionAssignsNextNumberAndRetiresPredecessor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	prev := archivedItem(300)

	f.expectManifests(600, 601)
	_, err := f.svc.UpdateVersionHistory(ctx, prev, nil, "Create New Item", "", time.Now(), UpdateOptions{})
	require.NoError(t, err)

	successor := workspaceItem(301)
	_, err = f.svc.UpdateVersionHistory(ctx, successor, prev, "fixed units", "", time.Now(), UpdateOptions{})
	require.NoError(t, err)

	successor.Archived = true
	successor.Handle = "10673/43"
	f.expectManifests(602, 603)
	f.items.On("SetDiscoverable", prev.ID, false).Return(nil).Once()

	record, err := f.svc.UpdateVersionHistory(ctx, successor, prev, "", "", time.Now(), UpdateOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, record.VersionNumber)
	assert.Equal(t, "fixed units", record.Summary, "summary from the working phase survives promotion")

	f.items.AssertExpectations(t)
}

func TestManifestFailurePersistsNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	item := archivedItem(400)

	f.aip.On("Write", mock.Anything, mock.Anything).Return(nil, common.ErrPluginMissing).Once()

	_, err := f.svc.UpdateVersionHistory(ctx, item, nil, "Create New Item", "", time.Now(), UpdateOptions{})
	assert.ErrorIs(t, err, common.ErrPluginMissing)

	var count int64
	require.NoError(t, f.db.Model(&domain.VersionRecord{}).Count(&count).Error)
	assert.Zero(t, count, "no version record is committed when manifests fail")

	require.NoError(t, f.db.Model(&domain.VersionHistory{}).Count(&count).Error)
	assert.Zero(t, count, "the freshly created history is rolled back too")
}

func TestOREFailureDiscardsAIP(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	item := archivedItem(410)

	f.aip.On("Write", mock.Anything, mock.Anything).Return(&domain.Bitstream{ID: 700}, nil).Once()
	f.ore.On("Write", mock.Anything, mock.Anything).Return(nil, common.ErrStorageFailure).Once()
	f.artifacts.On("Delete", uint64(700), true).Return(nil).Once()

	_, err := f.svc.UpdateVersionHistory(ctx, item, nil, "", "", time.Now(), UpdateOptions{})
	assert.ErrorIs(t, err, common.ErrStorageFailure)
	f.artifacts.AssertExpectations(t)
}

func TestSecondWorkingRecordRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	prev := archivedItem(500)

	f.expectManifests(800, 801)
	_, err := f.svc.UpdateVersionHistory(ctx, prev, nil, "", "", time.Now(), UpdateOptions{})
	require.NoError(t, err)

	_, err = f.svc.UpdateVersionHistory(ctx, workspaceItem(501), prev, "", "", time.Now(), UpdateOptions{})
	require.NoError(t, err)

	_, err = f.svc.UpdateVersionHistory(ctx, workspaceItem(502), prev, "", "", time.Now(), UpdateOptions{})
	assert.ErrorIs(t, err, common.ErrInvariantViolation)
}

func TestRestoreReplaysOntoLatestItem(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	prev := archivedItem(600)
	actor := domain.Actor{ID: 5}

	f.expectManifests(900, 901)
	v1, err := f.svc.UpdateVersionHistory(ctx, prev, nil, "Create New Item", "", time.Now(), UpdateOptions{})
	require.NoError(t, err)

	successor := workspaceItem(601)
	_, err = f.svc.UpdateVersionHistory(ctx, successor, prev, "fixed units", "", time.Now(), UpdateOptions{})
	require.NoError(t, err)

	successor.Archived = true
	successor.Handle = "10673/43"
	f.expectManifests(902, 903)
	f.items.On("SetDiscoverable", prev.ID, false).Return(nil).Once()
	v2, err := f.svc.UpdateVersionHistory(ctx, successor, prev, "", "", time.Now(), UpdateOptions{})
	require.NoError(t, err)
	require.Equal(t, 2, v2.VersionNumber)

	// Restoring version 1 replays its manifest onto version 2's item, the
	// history's current latest, not onto version 1's own item.
	f.items.On("Find", successor.ID).Return(successor, nil)
	f.access.On("IsAdmin", actor, successor).Return(false, nil)
	f.access.On("CanWrite", actor, successor).Return(false, nil)
	f.artifacts.On("Retrieve", uint64(900)).Return(io.NopCloser(strings.NewReader("<mets/>")), nil).Once()
	f.ingester.On("Replace", successor, mock.Anything, mock.MatchedBy(func(p map[string]string) bool {
		return p["manifestOnly"] == "true" && p["internal"] == "true"
	})).Return(successor, nil).Once()

	restored, err := f.svc.RestoreVersion(ctx, actor, v1.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, successor.ID, restored.ID, "restore targets the latest version's item")

	// Two manifest generations from setup; the restore itself must not write.
	f.aip.AssertNumberOfCalls(t, "Write", 2)
	f.ingester.AssertExpectations(t)

	// The restore is tracked as a fresh working record on the latest item.
	working, err := f.versions.FindWorkingByItemID(ctx, successor.ID)
	require.NoError(t, err)
	require.NotNil(t, working)
	assert.Equal(t, v1.HistoryID, working.HistoryID)
	assert.Equal(t, "Version Restored", working.Summary)
	assert.Nil(t, working.AIPBitstreamID)

	// Both archived records survive the replay untouched.
	for _, id := range []uint64{v1.ID, v2.ID} {
		archived, err := f.svc.GetVersion(ctx, id)
		require.NoError(t, err)
		assert.True(t, archived.IsArchived())
	}
}

func TestRestoreOfLatestVersionIsNoOp(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	item := archivedItem(650)
	actor := domain.Actor{ID: 5}

	f.expectManifests(910, 911)
	record, err := f.svc.UpdateVersionHistory(ctx, item, nil, "Create New Item", "", time.Now(), UpdateOptions{})
	require.NoError(t, err)

	f.items.On("Find", item.ID).Return(item, nil)
	f.access.On("IsAdmin", actor, item).Return(false, nil)
	f.access.On("CanWrite", actor, item).Return(false, nil)

	restored, err := f.svc.RestoreVersion(ctx, actor, record.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, item.ID, restored.ID)

	// The latest version already is the item's content: nothing is replayed
	// and no working record is opened.
	f.ingester.AssertNotCalled(t, "Replace", mock.Anything, mock.Anything, mock.Anything)
	count, err := f.versions.CountByHistory(ctx, record.HistoryID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestMutationEventKeepsArchivedDate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	item := archivedItem(670)
	archivedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	f.expectManifests(920, 921)
	record, err := f.svc.UpdateVersionHistory(ctx, item, nil, "Create New Item", "", archivedAt, UpdateOptions{})
	require.NoError(t, err)

	// A later metadata event on the already-archived item must not rewrite
	// the record's version date or number.
	_, err = f.svc.UpdateVersionHistory(ctx, item, nil, "", "metadata edit", archivedAt.Add(48*time.Hour), UpdateOptions{})
	require.NoError(t, err)

	got, err := f.svc.GetVersion(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.VersionNumber)
	assert.WithinDuration(t, archivedAt, got.VersionDate, time.Second)
	f.aip.AssertNumberOfCalls(t, "Write", 1)

	count, err := f.versions.CountByHistory(ctx, record.HistoryID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestRemoveVersionCascades(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	item := archivedItem(700)
	admin := domain.Actor{ID: 1}

	f.expectManifests(1000, 1001)
	record, err := f.svc.UpdateVersionHistory(ctx, item, nil, "", "", time.Now(), UpdateOptions{})
	require.NoError(t, err)

	f.items.On("Find", item.ID).Return(item, nil)
	f.access.On("IsAdmin", admin, item).Return(true, nil)
	f.artifacts.On("Delete", uint64(1000), true).Return(nil).Once()
	f.artifacts.On("Delete", uint64(1001), true).Return(nil).Once()
	f.items.On("RemoveFromCollections", item.ID).Return(nil).Once()

	require.NoError(t, f.svc.RemoveVersion(ctx, admin, record.ID))

	_, err = f.svc.GetVersion(ctx, record.ID)
	assert.ErrorIs(t, err, common.ErrVersionNotFound)

	ids, err := f.versions.ContentBitstreamIDs(ctx, record.ID)
	require.NoError(t, err)
	assert.Empty(t, ids)

	// The last record also removes the history head and its lock entry.
	_, err = f.histories.FindByID(ctx, record.HistoryID)
	assert.Error(t, err)

	impl := f.svc.(*versioningService)
	impl.lockMu.Lock()
	_, held := impl.locks[record.HistoryID]
	impl.lockMu.Unlock()
	assert.False(t, held, "deleted history's lock is evicted")

	f.artifacts.AssertExpectations(t)
	f.items.AssertExpectations(t)
}

func TestRemoveVersionRequiresAdmin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	item := archivedItem(750)
	actor := domain.Actor{ID: 5}

	f.expectManifests(1100, 1101)
	record, err := f.svc.UpdateVersionHistory(ctx, item, nil, "", "", time.Now(), UpdateOptions{})
	require.NoError(t, err)

	f.items.On("Find", item.ID).Return(item, nil)
	f.access.On("IsAdmin", actor, item).Return(false, nil)

	err = f.svc.RemoveVersion(ctx, actor, record.ID)
	assert.ErrorIs(t, err, common.ErrForbidden)
}

func TestCanVersion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	item := archivedItem(800)

	submitter := domain.Actor{ID: item.SubmitterID}
	f.access.On("IsAdmin", submitter, item).Return(false, nil)
	f.access.On("CanWrite", submitter, item).Return(false, nil)
	ok, err := f.svc.CanVersion(ctx, submitter, item)
	assert.NoError(t, err)
	assert.True(t, ok, "submitters may version their own items")

	stranger := domain.Actor{ID: 99}
	f.access.On("IsAdmin", stranger, item).Return(false, nil)
	f.access.On("CanWrite", stranger, item).Return(false, nil)
	ok, err = f.svc.CanVersion(ctx, stranger, item)
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestCreateWorkingVersion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	item := archivedItem(900)
	actor := domain.Actor{ID: item.SubmitterID}

	f.expectManifests(1200, 1201)
	_, err := f.svc.UpdateVersionHistory(ctx, item, nil, "", "", time.Now(), UpdateOptions{})
	require.NoError(t, err)

	copyItem := workspaceItem(901)
	f.items.On("Find", item.ID).Return(item, nil)
	f.access.On("IsAdmin", actor, item).Return(false, nil)
	f.access.On("CanWrite", actor, item).Return(false, nil)
	f.items.On("CreateWorkingCopy", item).Return(copyItem, nil).Once()

	record, created, err := f.svc.CreateWorkingVersion(ctx, actor, item.ID, "preparing corrections")
	require.NoError(t, err)
	assert.Equal(t, copyItem.ID, created.ID)
	assert.True(t, record.IsWorking())
	assert.Equal(t, actor.ID, record.EditorID)
	assert.Equal(t, "preparing corrections", record.Summary)

	// A second working copy on the same history is refused.
	_, _, err = f.svc.CreateWorkingVersion(ctx, actor, item.ID, "again")
	assert.ErrorIs(t, err, common.ErrInvariantViolation)
}

func TestUpdateVersionSummary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	item := archivedItem(950)
	actor := domain.Actor{ID: item.SubmitterID}

	f.expectManifests(1300, 1301)
	record, err := f.svc.UpdateVersionHistory(ctx, item, nil, "old summary", "", time.Now(), UpdateOptions{})
	require.NoError(t, err)

	f.items.On("Find", item.ID).Return(item, nil)
	f.access.On("IsAdmin", actor, item).Return(false, nil)
	f.access.On("CanWrite", actor, item).Return(false, nil)

	updated, err := f.svc.UpdateVersionSummary(ctx, actor, record.ID, "corrected summary")
	require.NoError(t, err)
	assert.Equal(t, "corrected summary", updated.Summary)
	assert.Equal(t, actor.ID, updated.EditorID)
}
