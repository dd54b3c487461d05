package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/openarchive/preserv-backend/internal/common"
	"github.com/openarchive/preserv-backend/internal/domain"
	"github.com/openarchive/preserv-backend/internal/metrics"
	"github.com/openarchive/preserv-backend/internal/packager"
	"github.com/openarchive/preserv-backend/internal/repository"
	"github.com/openarchive/preserv-backend/pkg/cache"
	pkglogger "github.com/openarchive/preserv-backend/pkg/logger"
)

// UpdateOptions tune one history update.
type UpdateOptions struct {
	// Restore marks the update as a restore of an older version: the
	// version's existing manifests stay authoritative and are not rebuilt.
	Restore bool
	// ForceManifests regenerates manifests even when the record already
	// references an archival manifest.
	ForceManifests bool
}

// AIPGenerator produces the archival manifest for an item snapshot.
type AIPGenerator interface {
	Write(ctx context.Context, item *domain.Item, opts packager.AIPOptions) (*domain.Bitstream, error)
}

// OREGenerator produces the resource map relating a manifest to its content.
type OREGenerator interface {
	Write(ctx context.Context, item *domain.Item, aip *domain.Bitstream) (*domain.Bitstream, error)
}

// ArtifactStore is the slice of the content store the service needs for
// reading back and deleting manifest bitstreams.
type ArtifactStore interface {
	Retrieve(ctx context.Context, id uint64) (io.ReadCloser, error)
	Delete(ctx context.Context, id uint64, purge bool) error
}

// VersioningService owns the version-history state machine: working copies,
// promotion to the archive, manifest materialization, restore and removal.
type VersioningService interface {
	// CreateWorkingVersion clones the item into the caller's workspace and
	// opens a working version record for the clone.
	CreateWorkingVersion(ctx context.Context, actor domain.Actor, itemID uint64, summary string) (*domain.VersionRecord, *domain.Item, error)

	// UpdateVersionHistory applies one item mutation to its history: it
	// creates the history and record as needed, promotes working records
	// when the item is archived, and materializes manifests. previousItem is
	// the predecessor being superseded, or nil.
	UpdateVersionHistory(ctx context.Context, newItem, previousItem *domain.Item, summary, logMsg string, date time.Time, opts UpdateOptions) (*domain.VersionRecord, error)

	// RestoreVersion re-materializes the given version's archival manifest
	// into the item, then records the restore in the history.
	RestoreVersion(ctx context.Context, actor domain.Actor, versionID uint64, params map[string]string) (*domain.Item, error)

	// RemoveVersion deletes a version record, its content snapshot, its
	// manifests, and its item; an emptied history is deleted too.
	RemoveVersion(ctx context.Context, actor domain.Actor, versionID uint64) error

	UpdateVersionSummary(ctx context.Context, actor domain.Actor, versionID uint64, summary string) (*domain.VersionRecord, error)

	// CanVersion reports whether the actor may version the item: admins,
	// writers, and the item's submitter.
	CanVersion(ctx context.Context, actor domain.Actor, item *domain.Item) (bool, error)

	GetVersion(ctx context.Context, versionID uint64) (*domain.VersionRecord, error)
	ListHistory(ctx context.Context, historyID uint64) ([]domain.VersionRecord, error)
	HistoryForItem(ctx context.Context, itemID uint64) (*domain.VersionHistory, error)
	LatestVersion(ctx context.Context, itemID uint64) (*domain.VersionRecord, error)
	SearchVersions(ctx context.Context, query string, offset, limit int) ([]domain.VersionRecord, int64, error)
}

type versioningService struct {
	versions  repository.VersionRepository
	histories repository.VersionHistoryRepository
	items     domain.ItemRepository
	access    domain.AccessControl
	ingester  domain.PackageIngester
	aip       AIPGenerator
	ore       OREGenerator
	artifacts ArtifactStore
	cache     cache.Service
	validate  bool
	log       zerolog.Logger

	lockMu sync.Mutex
	locks  map[uint64]*sync.Mutex
}

// NewVersioningService wires the service. validate enables structural
// manifest validation before manifests are committed to the store.
func NewVersioningService(
	versions repository.VersionRepository,
	histories repository.VersionHistoryRepository,
	items domain.ItemRepository,
	access domain.AccessControl,
	ingester domain.PackageIngester,
	aip AIPGenerator,
	ore OREGenerator,
	artifacts ArtifactStore,
	cacheSvc cache.Service,
	validate bool,
) VersioningService {
	return &versioningService{
		versions:  versions,
		histories: histories,
		items:     items,
		access:    access,
		ingester:  ingester,
		aip:       aip,
		ore:       ore,
		artifacts: artifacts,
		cache:     cacheSvc,
		validate:  validate,
		log:       pkglogger.Component("versioning"),
		locks:     make(map[uint64]*sync.Mutex),
	}
}

// lockHistory serializes promotions per history so version numbers stay
// gapless under concurrent mutations.
func (s *versioningService) lockHistory(historyID uint64) func() {
	s.lockMu.Lock()
	mu, ok := s.locks[historyID]
	if !ok {
		mu = &sync.Mutex{}
		s.locks[historyID] = mu
	}
	s.lockMu.Unlock()
	mu.Lock()
	return mu.Unlock
}

// forgetLock drops a deleted history's mutex so the lock table does not grow
// without bound. A racer still holding the stale mutex is harmless: the
// history row it guards is already gone.
func (s *versioningService) forgetLock(historyID uint64) {
	s.lockMu.Lock()
	delete(s.locks, historyID)
	s.lockMu.Unlock()
}

func (s *versioningService) CanVersion(ctx context.Context, actor domain.Actor, item *domain.Item) (bool, error) {
	if item == nil {
		return false, fmt.Errorf("%w: nil item", common.ErrInvalidInput)
	}
	admin, err := s.access.IsAdmin(ctx, actor, item)
	if err != nil {
		return false, err
	}
	if admin {
		return true, nil
	}
	writer, err := s.access.CanWrite(ctx, actor, item)
	if err != nil {
		return false, err
	}
	if writer {
		return true, nil
	}
	return actor.ID != 0 && actor.ID == item.SubmitterID, nil
}

func (s *versioningService) CreateWorkingVersion(ctx context.Context, actor domain.Actor, itemID uint64, summary string) (*domain.VersionRecord, *domain.Item, error) {
	item, err := s.items.Find(ctx, itemID)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: item %d: %v", common.ErrItemNotFound, itemID, err)
	}
	ok, err := s.CanVersion(ctx, actor, item)
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		return nil, nil, common.ErrForbidden
	}

	if history, err := s.histories.FindByItemID(ctx, itemID); err != nil {
		return nil, nil, err
	} else if history != nil {
		working, err := s.versions.CountWorking(ctx, history.ID)
		if err != nil {
			return nil, nil, err
		}
		if working > 0 {
			return nil, nil, fmt.Errorf("%w: history %d already has an open working version", common.ErrInvariantViolation, history.ID)
		}
	}

	copyItem, err := s.items.CreateWorkingCopy(ctx, item)
	if err != nil {
		return nil, nil, err
	}
	record, err := s.UpdateVersionHistory(ctx, copyItem, item, summary, "", time.Now(), UpdateOptions{})
	if err != nil {
		return nil, nil, err
	}
	record.EditorID = actor.ID
	if err := s.versions.Update(ctx, record); err != nil {
		return nil, nil, err
	}
	s.log.Info().
		Uint64("item_id", itemID).
		Uint64("working_item_id", copyItem.ID).
		Uint64("version_id", record.ID).
		Uint64("editor_id", actor.ID).
		Msg("working version opened")
	return record, copyItem, nil
}

func (s *versioningService) UpdateVersionHistory(ctx context.Context, newItem, previousItem *domain.Item, summary, logMsg string, date time.Time, opts UpdateOptions) (*domain.VersionRecord, error) {
	if newItem == nil {
		return nil, fmt.Errorf("%w: nil item", common.ErrInvalidInput)
	}
	if date.IsZero() {
		date = time.Now()
	}

	history, seed, created, err := s.resolveHistory(ctx, newItem, previousItem)
	if err != nil {
		return nil, err
	}
	unlock := s.lockHistory(history.ID)
	defer unlock()

	// A history created by this call must not survive a failed update.
	fail := func(err error) (*domain.VersionRecord, error) {
		if created {
			s.dropEmptyHistory(ctx, history.ID)
		}
		return nil, err
	}

	if seed && previousItem != nil && previousItem.Archived && !previousItem.Withdrawn {
		if _, err := s.promote(ctx, history, previousItem, nil, "Original Version", "", date, UpdateOptions{}); err != nil {
			return fail(err)
		}
	}

	record, err := s.versions.FindWorkingByItemID(ctx, newItem.ID)
	if err != nil {
		return fail(err)
	}

	if newItem.Archived && !newItem.Withdrawn {
		record, err = s.promote(ctx, history, newItem, previousItem, summary, logMsg, date, opts)
		if err != nil {
			return fail(err)
		}
		s.invalidate(ctx, history.ID, record.ID)
		return record, nil
	}

	if record == nil {
		working, err := s.versions.CountWorking(ctx, history.ID)
		if err != nil {
			return fail(err)
		}
		if working > 0 {
			return fail(fmt.Errorf("%w: history %d already has a working version", common.ErrInvariantViolation, history.ID))
		}
		itemID := newItem.ID
		record = &domain.VersionRecord{
			HistoryID:     history.ID,
			ItemID:        &itemID,
			VersionNumber: domain.WorkingVersionNumber,
			VersionDate:   date,
			EditorID:      newItem.SubmitterID,
			Summary:       summary,
			Log:           logMsg,
			Handle:        newItem.Handle,
		}
		if err := s.versions.Create(ctx, record); err != nil {
			return fail(err)
		}
	} else {
		record.VersionDate = date
		if record.Summary == "" {
			record.Summary = summary
		}
		if record.Log == "" {
			record.Log = logMsg
		}
		if record.Handle == "" {
			record.Handle = newItem.Handle
		}
		if err := s.versions.Update(ctx, record); err != nil {
			return fail(err)
		}
	}
	s.invalidate(ctx, history.ID, record.ID)
	return record, nil
}

// resolveHistory finds the history for newItem, falling back to the
// predecessor's, and creates one when neither item is versioned yet. seed is
// true when the new history still needs a record for the predecessor;
// created is true when the history row was made by this call.
func (s *versioningService) resolveHistory(ctx context.Context, newItem, previousItem *domain.Item) (*domain.VersionHistory, bool, bool, error) {
	history, err := s.histories.FindByItemID(ctx, newItem.ID)
	if err != nil {
		return nil, false, false, err
	}
	if history != nil {
		return history, false, false, nil
	}
	if previousItem != nil {
		history, err = s.histories.FindByItemID(ctx, previousItem.ID)
		if err != nil {
			return nil, false, false, err
		}
		if history != nil {
			return history, false, false, nil
		}
		history, err = s.histories.Create(ctx)
		if err != nil {
			return nil, false, false, err
		}
		return history, true, true, nil
	}
	history, err = s.histories.Create(ctx)
	if err != nil {
		return nil, false, false, err
	}
	return history, false, true, nil
}

// dropEmptyHistory removes a history row that holds no records, so a failed
// update leaves no trace behind.
func (s *versioningService) dropEmptyHistory(ctx context.Context, historyID uint64) {
	count, err := s.versions.CountByHistory(ctx, historyID)
	if err != nil || count > 0 {
		return
	}
	if err := s.histories.Delete(ctx, historyID); err != nil {
		s.log.Warn().Err(err).Uint64("history_id", historyID).Msg("failed to drop empty history")
	}
}

// promote archives an item's state: it assigns the next version number to a
// working record (or creates a fresh archived record), materializes both
// manifests, and retires the predecessor from discovery. The record is
// persisted only after both manifests are committed, so a packager failure
// leaves the history untouched.
func (s *versioningService) promote(ctx context.Context, history *domain.VersionHistory, item, previousItem *domain.Item, summary, logMsg string, date time.Time, opts UpdateOptions) (*domain.VersionRecord, error) {
	record, err := s.versions.FindWorkingByItemID(ctx, item.ID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		record, err = s.versions.FindLatestByItemID(ctx, item.ID)
		if err != nil {
			return nil, err
		}
	}

	fresh := record == nil
	if fresh {
		itemID := item.ID
		record = &domain.VersionRecord{
			HistoryID:     history.ID,
			ItemID:        &itemID,
			VersionNumber: domain.WorkingVersionNumber,
			EditorID:      item.SubmitterID,
		}
	}
	promoted := record.IsWorking()
	if promoted {
		number, err := s.versions.NextVersionNumber(ctx, history.ID)
		if err != nil {
			return nil, err
		}
		record.VersionNumber = number
	}

	if !opts.Restore && (record.AIPBitstreamID == nil || opts.ForceManifests) {
		aipBS, oreBS, err := s.materializeManifests(ctx, item)
		if err != nil {
			return nil, err
		}
		if record.AIPBitstreamID != nil {
			s.discardManifest(ctx, *record.AIPBitstreamID)
		}
		if record.OREBitstreamID != nil {
			s.discardManifest(ctx, *record.OREBitstreamID)
		}
		record.AIPBitstreamID = &aipBS.ID
		record.OREBitstreamID = &oreBS.ID
	}

	// A record that was already archived is immutable apart from manifest-ref
	// refresh; only a promotion or a brand-new record takes the event's date.
	if promoted || fresh {
		record.VersionDate = date
	}
	if record.Summary == "" {
		record.Summary = summary
	}
	if record.Log == "" {
		record.Log = logMsg
	}
	if record.Handle == "" {
		record.Handle = item.Handle
	}

	if fresh {
		if err := s.versions.Create(ctx, record); err != nil {
			return nil, err
		}
	} else {
		if err := s.versions.Update(ctx, record); err != nil {
			return nil, err
		}
	}

	existing, err := s.versions.ContentBitstreamIDs(ctx, record.ID)
	if err != nil {
		return nil, err
	}
	if len(existing) == 0 {
		if err := s.versions.AddContentBitstreams(ctx, record.ID, item.BitstreamIDs()); err != nil {
			return nil, err
		}
	}

	if previousItem != nil {
		if err := s.items.SetDiscoverable(ctx, previousItem.ID, false); err != nil {
			return nil, err
		}
	}

	if promoted {
		metrics.VersionPromotions.Inc()
	}
	s.log.Info().
		Uint64("history_id", history.ID).
		Uint64("item_id", item.ID).
		Uint64("version_id", record.ID).
		Int("version_number", record.VersionNumber).
		Bool("restore", opts.Restore).
		Msg("version archived")
	return record, nil
}

// materializeManifests writes the AIP and its resource map. Partial output is
// rolled back: an ORE or policy failure discards the already-written AIP.
func (s *versioningService) materializeManifests(ctx context.Context, item *domain.Item) (*domain.Bitstream, *domain.Bitstream, error) {
	aipBS, err := s.aip.Write(ctx, item, packager.AIPOptions{ManifestOnly: true, Validate: s.validate})
	if err != nil {
		return nil, nil, err
	}
	oreBS, err := s.ore.Write(ctx, item, aipBS)
	if err != nil {
		s.discardManifest(ctx, aipBS.ID)
		return nil, nil, err
	}
	for _, id := range []uint64{aipBS.ID, oreBS.ID} {
		if err := s.access.InheritPolicies(ctx, item, id); err != nil {
			s.discardManifest(ctx, aipBS.ID)
			s.discardManifest(ctx, oreBS.ID)
			return nil, nil, err
		}
	}
	return aipBS, oreBS, nil
}

func (s *versioningService) discardManifest(ctx context.Context, id uint64) {
	if err := s.artifacts.Delete(ctx, id, true); err != nil {
		s.log.Warn().Err(err).Uint64("bitstream_id", id).Msg("failed to discard manifest bitstream")
	}
}

func (s *versioningService) RestoreVersion(ctx context.Context, actor domain.Actor, versionID uint64, params map[string]string) (*domain.Item, error) {
	record, err := s.findRecord(ctx, versionID)
	if err != nil {
		return nil, err
	}
	if !record.IsArchived() || record.AIPBitstreamID == nil {
		return nil, fmt.Errorf("%w: version %d has no archival manifest to restore from", common.ErrInvalidInput, versionID)
	}

	// The manifest is replayed onto the item of the history's current latest
	// version, replacing its content in place.
	latest, err := s.versions.LatestArchived(ctx, record.HistoryID)
	if err != nil {
		return nil, err
	}
	if latest == nil || latest.ItemID == nil {
		return nil, fmt.Errorf("%w: history %d has no archived item to restore into", common.ErrInvalidInput, record.HistoryID)
	}

	target, err := s.items.Find(ctx, *latest.ItemID)
	if err != nil {
		return nil, fmt.Errorf("%w: item %d: %v", common.ErrItemNotFound, *latest.ItemID, err)
	}
	ok, err := s.CanVersion(ctx, actor, target)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, common.ErrForbidden
	}

	// Restoring the version that is already current changes nothing.
	if latest.ID == record.ID {
		return target, nil
	}

	manifest, err := s.artifacts.Retrieve(ctx, *record.AIPBitstreamID)
	if err != nil {
		return nil, err
	}
	defer manifest.Close()

	p := map[string]string{
		"manifestOnly": "true",
		"internal":     "true",
	}
	for k, v := range params {
		p[k] = v
	}
	restored, err := s.ingester.Replace(ctx, target, manifest, p)
	if err != nil {
		return nil, err
	}

	// The restore is tracked as a fresh working record, not a promotion:
	// the replayed content re-enters the draft state and will earn its own
	// archived number when it is next promoted.
	unlock := s.lockHistory(record.HistoryID)
	defer unlock()
	working, err := s.versions.CountWorking(ctx, record.HistoryID)
	if err != nil {
		return nil, err
	}
	if working > 0 {
		return nil, fmt.Errorf("%w: history %d already has an open working version", common.ErrInvariantViolation, record.HistoryID)
	}
	restoredID := restored.ID
	provenance := &domain.VersionRecord{
		HistoryID:     record.HistoryID,
		ItemID:        &restoredID,
		VersionNumber: domain.WorkingVersionNumber,
		VersionDate:   time.Now(),
		EditorID:      actor.ID,
		Summary:       "Version Restored",
		Log:           fmt.Sprintf("restored from version %d", record.VersionNumber),
		Handle:        restored.Handle,
	}
	if err := s.versions.Create(ctx, provenance); err != nil {
		return nil, err
	}
	s.invalidate(ctx, record.HistoryID, provenance.ID)
	metrics.VersionRestores.Inc()
	s.log.Info().
		Uint64("version_id", versionID).
		Uint64("item_id", restored.ID).
		Uint64("editor_id", actor.ID).
		Msg("version restored")
	return restored, nil
}

func (s *versioningService) RemoveVersion(ctx context.Context, actor domain.Actor, versionID uint64) error {
	record, err := s.findRecord(ctx, versionID)
	if err != nil {
		return err
	}

	var item *domain.Item
	if record.ItemID != nil {
		item, err = s.items.Find(ctx, *record.ItemID)
		if err != nil {
			item = nil // item already gone on the host platform
		}
	}
	admin, err := s.access.IsAdmin(ctx, actor, item)
	if err != nil {
		return err
	}
	if !admin {
		return common.ErrForbidden
	}

	unlock := s.lockHistory(record.HistoryID)
	defer unlock()

	if err := s.versions.DeleteContent(ctx, record.ID); err != nil {
		return err
	}
	if record.AIPBitstreamID != nil {
		if err := s.artifacts.Delete(ctx, *record.AIPBitstreamID, true); err != nil && !errors.Is(err, common.ErrBitstreamNotFound) {
			return err
		}
	}
	if record.OREBitstreamID != nil {
		if err := s.artifacts.Delete(ctx, *record.OREBitstreamID, true); err != nil && !errors.Is(err, common.ErrBitstreamNotFound) {
			return err
		}
	}
	if err := s.versions.Delete(ctx, record.ID); err != nil {
		return err
	}
	if record.ItemID != nil {
		if err := s.items.RemoveFromCollections(ctx, *record.ItemID); err != nil {
			return err
		}
	}

	remaining, err := s.versions.CountByHistory(ctx, record.HistoryID)
	if err != nil {
		return err
	}
	if remaining == 0 {
		if err := s.histories.Delete(ctx, record.HistoryID); err != nil {
			return err
		}
		defer s.forgetLock(record.HistoryID)
	}

	metrics.VersionsRemoved.Inc()
	s.invalidate(ctx, record.HistoryID, record.ID)
	s.log.Info().
		Uint64("version_id", versionID).
		Uint64("history_id", record.HistoryID).
		Int("version_number", record.VersionNumber).
		Uint64("editor_id", actor.ID).
		Msg("version removed")
	return nil
}

func (s *versioningService) UpdateVersionSummary(ctx context.Context, actor domain.Actor, versionID uint64, summary string) (*domain.VersionRecord, error) {
	record, err := s.findRecord(ctx, versionID)
	if err != nil {
		return nil, err
	}
	var item *domain.Item
	if record.ItemID != nil {
		item, err = s.items.Find(ctx, *record.ItemID)
		if err != nil {
			return nil, fmt.Errorf("%w: item %d: %v", common.ErrItemNotFound, *record.ItemID, err)
		}
	}
	ok, err := s.canEdit(ctx, actor, item)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, common.ErrForbidden
	}

	record.Summary = summary
	record.EditorID = actor.ID
	if err := s.versions.Update(ctx, record); err != nil {
		return nil, err
	}
	s.invalidate(ctx, record.HistoryID, record.ID)
	return record, nil
}

// canEdit is CanVersion with an orphaned-record escape hatch: when the
// version's item is gone, only admins may touch the record.
func (s *versioningService) canEdit(ctx context.Context, actor domain.Actor, item *domain.Item) (bool, error) {
	if item == nil {
		return s.access.IsAdmin(ctx, actor, nil)
	}
	return s.CanVersion(ctx, actor, item)
}

func (s *versioningService) GetVersion(ctx context.Context, versionID uint64) (*domain.VersionRecord, error) {
	var cached domain.VersionRecord
	if err := s.cache.GetVersion(ctx, versionID, &cached); err == nil {
		return &cached, nil
	}
	record, err := s.findRecord(ctx, versionID)
	if err != nil {
		return nil, err
	}
	if err := s.cache.SetVersion(ctx, versionID, record); err != nil {
		s.log.Debug().Err(err).Uint64("version_id", versionID).Msg("version cache write failed")
	}
	return record, nil
}

func (s *versioningService) ListHistory(ctx context.Context, historyID uint64) ([]domain.VersionRecord, error) {
	var cached []domain.VersionRecord
	if err := s.cache.GetHistory(ctx, historyID, &cached); err == nil {
		return cached, nil
	}
	if _, err := s.histories.FindByID(ctx, historyID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, common.ErrHistoryNotFound
		}
		return nil, err
	}
	records, err := s.versions.FindByHistoryID(ctx, historyID)
	if err != nil {
		return nil, err
	}
	if err := s.cache.SetHistory(ctx, historyID, records); err != nil {
		s.log.Debug().Err(err).Uint64("history_id", historyID).Msg("history cache write failed")
	}
	return records, nil
}

func (s *versioningService) HistoryForItem(ctx context.Context, itemID uint64) (*domain.VersionHistory, error) {
	return s.histories.FindByItemID(ctx, itemID)
}

func (s *versioningService) LatestVersion(ctx context.Context, itemID uint64) (*domain.VersionRecord, error) {
	return s.versions.FindLatestByItemID(ctx, itemID)
}

func (s *versioningService) SearchVersions(ctx context.Context, query string, offset, limit int) ([]domain.VersionRecord, int64, error) {
	total, err := s.versions.SearchCount(ctx, query)
	if err != nil {
		return nil, 0, err
	}
	records, err := s.versions.Search(ctx, query, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	return records, total, nil
}

func (s *versioningService) findRecord(ctx context.Context, versionID uint64) (*domain.VersionRecord, error) {
	record, err := s.versions.FindByID(ctx, versionID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, common.ErrVersionNotFound
	}
	if err != nil {
		return nil, err
	}
	return record, nil
}

func (s *versioningService) invalidate(ctx context.Context, historyID, versionID uint64) {
	if err := s.cache.InvalidateHistory(ctx, historyID); err != nil {
		s.log.Debug().Err(err).Uint64("history_id", historyID).Msg("history cache invalidation failed")
	}
	if err := s.cache.InvalidateVersion(ctx, versionID); err != nil {
		s.log.Debug().Err(err).Uint64("version_id", versionID).Msg("version cache invalidation failed")
	}
}
