package bitstore

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"

	"github.com/openarchive/preserv-backend/internal/common"
	"github.com/openarchive/preserv-backend/internal/domain"
	"github.com/openarchive/preserv-backend/internal/metrics"
	"github.com/openarchive/preserv-backend/internal/repository"
	"github.com/rs/zerolog"
)

// ErrClosed is returned by writes and a second Close after the sink has
// been finalized.
var ErrClosed = errors.New("bitstream writer already closed")

// DigestWriter streams bytes into a storage backend while accumulating a
// running MD5 digest and byte count. Close finalizes the pending bitstream
// row exactly once: size, checksum and algorithm are recorded and the row's
// deleted flag is cleared in one save.
//
// Useful when a bitstream is produced by a conversion process, e.g. when
// serializing AIP and ORE manifests into the asset store.
type DigestWriter struct {
	dst        io.WriteCloser
	digest     hash.Hash
	count      int64
	closed     bool
	pending    *domain.Bitstream
	bitstreams repository.BitstreamRepository
	log        zerolog.Logger
}

func newDigestWriter(dst io.WriteCloser, pending *domain.Bitstream, bitstreams repository.BitstreamRepository, log zerolog.Logger) *DigestWriter {
	return &DigestWriter{
		dst:        dst,
		digest:     md5.New(),
		pending:    pending,
		bitstreams: bitstreams,
		log:        log,
	}
}

// Write implements io.Writer. The byte count advances by exactly the number
// of bytes accepted by the backend, never by a buffer offset.
func (w *DigestWriter) Write(p []byte) (int, error) {
	if w.closed {
		return 0, ErrClosed
	}
	n, err := w.dst.Write(p)
	if n > 0 {
		w.digest.Write(p[:n])
		w.count += int64(n)
	}
	return n, err
}

// WriteByte writes a single byte, advancing the count by one.
func (w *DigestWriter) WriteByte(b byte) error {
	_, err := w.Write([]byte{b})
	return err
}

// Close finalizes the digest, records {size, checksum, algorithm} on the
// pending bitstream row, clears its deleted flag and commits the row.
// At most one Close succeeds; later writes and closes fail with ErrClosed.
func (w *DigestWriter) Close(ctx context.Context) error {
	if w.closed {
		return ErrClosed
	}
	w.closed = true

	if err := w.dst.Close(); err != nil {
		return fmt.Errorf("%w: closing backend writer: %v", common.ErrStorageFailure, err)
	}

	w.pending.SizeBytes = w.count
	w.pending.Checksum = hex.EncodeToString(w.digest.Sum(nil))
	w.pending.ChecksumAlgorithm = domain.ChecksumAlgorithm
	w.pending.Deleted = false

	if err := w.bitstreams.Update(ctx, w.pending); err != nil {
		return fmt.Errorf("%w: finalizing bitstream %d: %v", common.ErrStorageFailure, w.pending.ID, err)
	}

	w.log.Info().
		Uint64("bitstream_id", w.pending.ID).
		Str("internal_id", w.pending.InternalID).
		Int64("size_bytes", w.count).
		Str("checksum", w.pending.Checksum).
		Msg("create_bitstream")

	metrics.BitstreamsCreated.Inc()
	metrics.BitstreamBytesWritten.Add(float64(w.count))

	return nil
}

// Bitstream returns the pending bitstream row. The id is allocated at Open
// time, so callers may embed self-referential URLs before any byte is
// written; size and checksum are only valid after Close.
func (w *DigestWriter) Bitstream() *domain.Bitstream {
	return w.pending
}

// ByteCount returns the number of bytes written so far.
func (w *DigestWriter) ByteCount() int64 {
	return w.count
}
