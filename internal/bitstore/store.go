package bitstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"

	"github.com/google/uuid"
	"github.com/openarchive/preserv-backend/internal/common"
	"github.com/openarchive/preserv-backend/internal/domain"
	"github.com/openarchive/preserv-backend/internal/repository"
	pkglogger "github.com/openarchive/preserv-backend/pkg/logger"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// Backend is one physical asset store: local filesystem or S3-compatible
// object storage.
type Backend interface {
	Name() string
	Put(ctx context.Context, key string) (io.WriteCloser, error)
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Remove(ctx context.Context, key string) error
	// URL returns the absolute, externally stable URL of the asset under
	// key. It must depend only on the key, never on time of call.
	URL(key string) string
}

// Store is the content store for bitstreams: it allocates pending rows,
// hands out digest sinks, and serves retrieval and deletion.
type Store struct {
	backend    Backend
	bitstreams repository.BitstreamRepository
	log        zerolog.Logger
}

// NewStore creates a Store over the given backend.
func NewStore(backend Backend, bitstreams repository.BitstreamRepository) *Store {
	return &Store{
		backend:    backend,
		bitstreams: bitstreams,
		log:        pkglogger.Component("bitstore"),
	}
}

// Open allocates a new bitstream row (deleted until finalized) and returns a
// digest sink writing into the backend. The row's id is available
// immediately via DigestWriter.Bitstream.
func (s *Store) Open(ctx context.Context, format string) (*DigestWriter, error) {
	pending := &domain.Bitstream{
		InternalID:        uuid.NewString(),
		StoreBackend:      s.backend.Name(),
		Format:            format,
		ChecksumAlgorithm: domain.ChecksumAlgorithm,
		Deleted:           true,
	}
	if err := s.bitstreams.Create(ctx, pending); err != nil {
		return nil, fmt.Errorf("%w: allocating bitstream: %v", common.ErrStorageFailure, err)
	}

	dst, err := s.backend.Put(ctx, storeKey(pending.InternalID))
	if err != nil {
		if derr := s.bitstreams.Delete(ctx, pending.ID); derr != nil {
			s.log.Error().Err(derr).Uint64("bitstream_id", pending.ID).Msg("failed to release pending bitstream row")
		}
		return nil, fmt.Errorf("%w: opening backend writer: %v", common.ErrStorageFailure, err)
	}

	return newDigestWriter(dst, pending, s.bitstreams, s.log), nil
}

// Abort discards a sink that will never be finalized: the backend object and
// the pending row are removed. Safe to call after a failed Close.
func (s *Store) Abort(ctx context.Context, w *DigestWriter) {
	if !w.closed {
		w.closed = true
		if err := w.dst.Close(); err != nil {
			s.log.Warn().Err(err).Msg("abort: closing backend writer")
		}
	}
	if err := s.backend.Remove(ctx, storeKey(w.pending.InternalID)); err != nil {
		s.log.Warn().Err(err).Str("internal_id", w.pending.InternalID).Msg("abort: removing backend object")
	}
	if err := s.bitstreams.Delete(ctx, w.pending.ID); err != nil {
		s.log.Warn().Err(err).Uint64("bitstream_id", w.pending.ID).Msg("abort: deleting pending row")
	}
}

// Retrieve opens the finalized bitstream for reading.
func (s *Store) Retrieve(ctx context.Context, id uint64) (io.ReadCloser, error) {
	row, err := s.bitstreams.FindByID(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, common.ErrBitstreamNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: loading bitstream %d: %v", common.ErrStorageFailure, id, err)
	}
	if row.Deleted {
		return nil, common.ErrBitstreamNotFound
	}
	rc, err := s.backend.Get(ctx, storeKey(row.InternalID))
	if err != nil {
		return nil, fmt.Errorf("%w: reading bitstream %d: %v", common.ErrStorageFailure, id, err)
	}
	return rc, nil
}

// Delete soft-deletes the bitstream row; with purge the stored bytes and the
// row itself are removed as well.
func (s *Store) Delete(ctx context.Context, id uint64, purge bool) error {
	row, err := s.bitstreams.FindByID(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return common.ErrBitstreamNotFound
	}
	if err != nil {
		return fmt.Errorf("%w: loading bitstream %d: %v", common.ErrStorageFailure, id, err)
	}

	if err := s.bitstreams.MarkDeleted(ctx, id); err != nil {
		return fmt.Errorf("%w: deleting bitstream %d: %v", common.ErrStorageFailure, id, err)
	}

	if purge {
		if err := s.backend.Remove(ctx, storeKey(row.InternalID)); err != nil {
			return fmt.Errorf("%w: purging bitstream %d: %v", common.ErrStorageFailure, id, err)
		}
		if err := s.bitstreams.Delete(ctx, id); err != nil {
			return fmt.Errorf("%w: removing bitstream row %d: %v", common.ErrStorageFailure, id, err)
		}
	}

	s.log.Info().Uint64("bitstream_id", id).Bool("purge", purge).Msg("delete_bitstream")
	return nil
}

// AbsoluteURL returns the stable asset-store URL of a bitstream. It depends
// only on the storage layer, not on the repository object model.
func (s *Store) AbsoluteURL(b *domain.Bitstream) string {
	return s.backend.URL(storeKey(b.InternalID))
}

// storeKey spreads assets over a shallow directory tree derived from the
// internal id, following the classic assetstore layout.
func storeKey(internalID string) string {
	if len(internalID) < 6 {
		return internalID
	}
	return path.Join(internalID[0:2], internalID[2:4], internalID[4:6], internalID)
}
