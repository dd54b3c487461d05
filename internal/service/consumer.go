package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/openarchive/preserv-backend/internal/domain"
	pkglogger "github.com/openarchive/preserv-backend/pkg/logger"
)

// MutationKind classifies an item event observed on the host platform.
type MutationKind int

const (
	// MutationInstall is an item entering the archive.
	MutationInstall MutationKind = iota
	// MutationModify is a content change on an existing item.
	MutationModify
	// MutationMetadata is a metadata-only change.
	MutationMetadata
)

func (k MutationKind) String() string {
	switch k {
	case MutationInstall:
		return "install"
	case MutationModify:
		return "modify"
	case MutationMetadata:
		return "metadata"
	default:
		return "unknown"
	}
}

// ItemMutation is one queued event for an item.
type ItemMutation struct {
	Kind     MutationKind
	ItemID   uint64
	Previous *domain.Item
	At       time.Time
}

// MutationQueue batches item events and folds them into version history on
// Flush, one update per distinct item. Events for the same item coalesce:
// an install anywhere in the batch wins over modifications when choosing the
// recorded summary.
type MutationQueue struct {
	versioning VersioningService
	items      domain.ItemRepository
	log        zerolog.Logger

	mu      sync.Mutex
	pending map[uint64][]ItemMutation
	order   []uint64
}

func NewMutationQueue(versioning VersioningService, items domain.ItemRepository) *MutationQueue {
	return &MutationQueue{
		versioning: versioning,
		items:      items,
		log:        pkglogger.Component("consumer"),
		pending:    make(map[uint64][]ItemMutation),
	}
}

// Enqueue records an event for the next Flush. Duplicate events for one item
// are kept; they collapse at flush time.
func (q *MutationQueue) Enqueue(m ItemMutation) {
	if m.At.IsZero() {
		m.At = time.Now()
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, seen := q.pending[m.ItemID]; !seen {
		q.order = append(q.order, m.ItemID)
	}
	q.pending[m.ItemID] = append(q.pending[m.ItemID], m)
}

// Flush applies every queued mutation. Items are processed in arrival order;
// a failure on one item is logged and does not block the rest. The joined
// error reports every failed item.
func (q *MutationQueue) Flush(ctx context.Context) error {
	q.mu.Lock()
	pending := q.pending
	order := q.order
	q.pending = make(map[uint64][]ItemMutation)
	q.order = nil
	q.mu.Unlock()

	var errs []error
	for _, itemID := range order {
		if err := q.apply(ctx, itemID, pending[itemID]); err != nil {
			q.log.Error().Err(err).Uint64("item_id", itemID).Msg("version history update failed")
			errs = append(errs, fmt.Errorf("item %d: %w", itemID, err))
		}
	}
	return errors.Join(errs...)
}

func (q *MutationQueue) apply(ctx context.Context, itemID uint64, muts []ItemMutation) error {
	item, err := q.items.Find(ctx, itemID)
	if err != nil {
		return err
	}

	summary := "Modify Item"
	var previous *domain.Item
	at := muts[0].At
	for _, m := range muts {
		if m.Kind == MutationInstall {
			summary = "Create New Item"
		}
		if m.Previous != nil {
			previous = m.Previous
		}
		if m.At.After(at) {
			at = m.At
		}
	}

	_, err = q.versioning.UpdateVersionHistory(ctx, item, previous, summary, "", at, UpdateOptions{})
	return err
}
