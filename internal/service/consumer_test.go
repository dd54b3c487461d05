package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/openarchive/preserv-backend/internal/common"
	"github.com/openarchive/preserv-backend/internal/domain"
)

// MockVersioningService is a mock implementation of VersioningService
type MockVersioningService struct {
	mock.Mock
}

func (m *MockVersioningService) CreateWorkingVersion(ctx context.Context, actor domain.Actor, itemID uint64, summary string) (*domain.VersionRecord, *domain.Item, error) {
	args := m.Called(actor, itemID, summary)
	return nil, nil, args.Error(2)
}

func (m *MockVersioningService) UpdateVersionHistory(ctx context.Context, newItem, previousItem *domain.Item, summary, logMsg string, date time.Time, opts UpdateOptions) (*domain.VersionRecord, error) {
	args := m.Called(newItem, previousItem, summary, logMsg, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.VersionRecord), args.Error(1)
}

func (m *MockVersioningService) RestoreVersion(ctx context.Context, actor domain.Actor, versionID uint64, params map[string]string) (*domain.Item, error) {
	args := m.Called(actor, versionID, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Item), args.Error(1)
}

func (m *MockVersioningService) RemoveVersion(ctx context.Context, actor domain.Actor, versionID uint64) error {
	args := m.Called(actor, versionID)
	return args.Error(0)
}

func (m *MockVersioningService) UpdateVersionSummary(ctx context.Context, actor domain.Actor, versionID uint64, summary string) (*domain.VersionRecord, error) {
	args := m.Called(actor, versionID, summary)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.VersionRecord), args.Error(1)
}

func (m *MockVersioningService) CanVersion(ctx context.Context, actor domain.Actor, item *domain.Item) (bool, error) {
	args := m.Called(actor, item)
	return args.Bool(0), args.Error(1)
}

func (m *MockVersioningService) GetVersion(ctx context.Context, versionID uint64) (*domain.VersionRecord, error) {
	args := m.Called(versionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.VersionRecord), args.Error(1)
}

func (m *MockVersioningService) ListHistory(ctx context.Context, historyID uint64) ([]domain.VersionRecord, error) {
	args := m.Called(historyID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.VersionRecord), args.Error(1)
}

func (m *MockVersioningService) HistoryForItem(ctx context.Context, itemID uint64) (*domain.VersionHistory, error) {
	args := m.Called(itemID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.VersionHistory), args.Error(1)
}

func (m *MockVersioningService) LatestVersion(ctx context.Context, itemID uint64) (*domain.VersionRecord, error) {
	args := m.Called(itemID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.VersionRecord), args.Error(1)
}

func (m *MockVersioningService) SearchVersions(ctx context.Context, query string, offset, limit int) ([]domain.VersionRecord, int64, error) {
	args := m.Called(query, offset, limit)
	if args.Get(0) == nil {
		return nil, args.Get(1).(int64), args.Error(2)
	}
	return args.Get(0).([]domain.VersionRecord), args.Get(1).(int64), args.Error(2)
}

func TestMutationQueueCoalescesEvents(t *testing.T) {
	versioning := new(MockVersioningService)
	items := new(MockItemRepository)
	q := NewMutationQueue(versioning, items)
	ctx := context.Background()

	item := archivedItem(100)
	items.On("Find", item.ID).Return(item, nil).Once()

	q.Enqueue(ItemMutation{Kind: MutationModify, ItemID: item.ID})
	q.Enqueue(ItemMutation{Kind: MutationInstall, ItemID: item.ID})
	q.Enqueue(ItemMutation{Kind: MutationMetadata, ItemID: item.ID})

	versioning.On("UpdateVersionHistory", item, (*domain.Item)(nil), "Create New Item", "", UpdateOptions{}).
		Return(&domain.VersionRecord{ID: 1}, nil).Once()

	require.NoError(t, q.Flush(ctx))
	versioning.AssertExpectations(t)
	items.AssertExpectations(t)
}

func TestMutationQueueModifySummary(t *testing.T) {
	versioning := new(MockVersioningService)
	items := new(MockItemRepository)
	q := NewMutationQueue(versioning, items)

	item := archivedItem(200)
	prev := archivedItem(199)
	items.On("Find", item.ID).Return(item, nil).Once()

	q.Enqueue(ItemMutation{Kind: MutationModify, ItemID: item.ID, Previous: prev})

	versioning.On("UpdateVersionHistory", item, prev, "Modify Item", "", UpdateOptions{}).
		Return(&domain.VersionRecord{ID: 2}, nil).Once()

	require.NoError(t, q.Flush(context.Background()))
	versioning.AssertExpectations(t)
}

func TestMutationQueueIsolatesFailures(t *testing.T) {
	versioning := new(MockVersioningService)
	items := new(MockItemRepository)
	q := NewMutationQueue(versioning, items)

	broken := archivedItem(300)
	healthy := archivedItem(301)
	items.On("Find", broken.ID).Return(broken, nil).Once()
	items.On("Find", healthy.ID).Return(healthy, nil).Once()

	q.Enqueue(ItemMutation{Kind: MutationModify, ItemID: broken.ID})
	q.Enqueue(ItemMutation{Kind: MutationModify, ItemID: healthy.ID})

	versioning.On("UpdateVersionHistory", broken, (*domain.Item)(nil), "Modify Item", "", UpdateOptions{}).
		Return(nil, common.ErrStorageFailure).Once()
	versioning.On("UpdateVersionHistory", healthy, (*domain.Item)(nil), "Modify Item", "", UpdateOptions{}).
		Return(&domain.VersionRecord{ID: 3}, nil).Once()

	err := q.Flush(context.Background())
	assert.ErrorIs(t, err, common.ErrStorageFailure)
	versioning.AssertExpectations(t)
}

func TestMutationQueueEmptyFlush(t *testing.T) {
	q := NewMutationQueue(new(MockVersioningService), new(MockItemRepository))
	assert.NoError(t, q.Flush(context.Background()))
}
