package bitstore

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/openarchive/preserv-backend/internal/common"
	"github.com/openarchive/preserv-backend/internal/domain"
	"github.com/openarchive/preserv-backend/internal/repository"
)

func newTestStore(t *testing.T) (*Store, repository.BitstreamRepository) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.Bitstream{}))

	backend, err := NewFilesystemBackend(t.TempDir())
	require.NoError(t, err)

	repo := repository.NewBitstreamRepository(db)
	return NewStore(backend, repo), repo
}

func TestDigestWriterCountsAndChecksum(t *testing.T) {
	store, repo := newTestStore(t)
	ctx := context.Background()

	w, err := store.Open(ctx, "text/plain")
	require.NoError(t, err)

	payload := []byte("archived version content")
	n, err := w.Write(payload[:10])
	require.NoError(t, err)
	assert.Equal(t, 10, n)
	_, err = w.Write(payload[10:])
	require.NoError(t, err)
	require.NoError(t, w.WriteByte('\n'))

	want := append(append([]byte{}, payload...), '\n')
	assert.Equal(t, int64(len(want)), w.ByteCount())

	require.NoError(t, w.Close(ctx))

	sum := md5.Sum(want)
	b := w.Bitstream()
	assert.Equal(t, int64(len(want)), b.SizeBytes)
	assert.Equal(t, hex.EncodeToString(sum[:]), b.Checksum)
	assert.Equal(t, domain.ChecksumAlgorithm, b.ChecksumAlgorithm)

	row, err := repo.FindByID(ctx, b.ID)
	require.NoError(t, err)
	assert.False(t, row.Deleted, "finalized row is visible")
	assert.Equal(t, b.Checksum, row.Checksum)
}

func TestDigestWriterCloseTwice(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	w, err := store.Open(ctx, "text/plain")
	require.NoError(t, err)
	_, err = w.Write([]byte("x"))
	require.NoError(t, err)

	require.NoError(t, w.Close(ctx))
	assert.ErrorIs(t, w.Close(ctx), ErrClosed)

	_, err = w.Write([]byte("y"))
	assert.ErrorIs(t, err, ErrClosed)
}

func TestStoreRetrieveRoundtrip(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	w, err := store.Open(ctx, "application/xml")
	require.NoError(t, err)
	_, err = w.Write([]byte("<doc/>"))
	require.NoError(t, err)
	require.NoError(t, w.Close(ctx))

	rc, err := store.Retrieve(ctx, w.Bitstream().ID)
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "<doc/>", string(data))
}

func TestStoreDeletePurge(t *testing.T) {
	store, repo := newTestStore(t)
	ctx := context.Background()

	w, err := store.Open(ctx, "application/xml")
	require.NoError(t, err)
	_, err = w.Write([]byte("<doc/>"))
	require.NoError(t, err)
	require.NoError(t, w.Close(ctx))
	id := w.Bitstream().ID

	require.NoError(t, store.Delete(ctx, id, false))
	_, err = store.Retrieve(ctx, id)
	assert.ErrorIs(t, err, common.ErrBitstreamNotFound)

	row, err := repo.FindByID(ctx, id)
	require.NoError(t, err)
	assert.True(t, row.Deleted, "soft delete keeps the row")

	require.NoError(t, store.Delete(ctx, id, true))
	_, err = repo.FindByID(ctx, id)
	assert.Error(t, err, "purge removes the row")
}

func TestStoreAbortDiscardsPendingRow(t *testing.T) {
	store, repo := newTestStore(t)
	ctx := context.Background()

	w, err := store.Open(ctx, "application/xml")
	require.NoError(t, err)
	_, err = w.Write([]byte("partial"))
	require.NoError(t, err)
	id := w.Bitstream().ID

	store.Abort(ctx, w)
	_, err = repo.FindByID(ctx, id)
	assert.Error(t, err)
}
