package service

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/openarchive/preserv-backend/internal/domain"
	"github.com/openarchive/preserv-backend/internal/repository"
	pkglogger "github.com/openarchive/preserv-backend/pkg/logger"
)

// BitstreamType classifies how a bitstream participates in version history.
type BitstreamType string

const (
	BitstreamTypeAIP     BitstreamType = "aip"
	BitstreamTypeORE     BitstreamType = "ore"
	BitstreamTypeContent BitstreamType = "content"
	BitstreamTypeUnknown BitstreamType = ""
)

// RelationService answers obsolescence questions for preservation clients: a
// bitstream is obsoleted by its same-role counterpart in the next archived
// version, and obsoletes the counterpart in the previous one. Lookups that
// cannot be resolved answer (nil, nil); a missing relation is an ordinary
// answer, not a failure.
type RelationService interface {
	TypeOf(ctx context.Context, bitstreamID uint64) (BitstreamType, *domain.VersionRecord, error)
	Obsoletes(ctx context.Context, bitstreamID uint64) (*domain.Bitstream, error)
	ObsoletedBy(ctx context.Context, bitstreamID uint64) (*domain.Bitstream, error)
}

type relationService struct {
	versions   repository.VersionRepository
	bitstreams repository.BitstreamRepository
	log        zerolog.Logger
}

func NewRelationService(versions repository.VersionRepository, bitstreams repository.BitstreamRepository) RelationService {
	return &relationService{
		versions:   versions,
		bitstreams: bitstreams,
		log:        pkglogger.Component("relations"),
	}
}

// TypeOf probes the version tables in manifest-first order: ORE column, AIP
// column, then the content join table.
func (s *relationService) TypeOf(ctx context.Context, bitstreamID uint64) (BitstreamType, *domain.VersionRecord, error) {
	record, err := s.versions.FindByOREBitstream(ctx, bitstreamID)
	if err != nil {
		return BitstreamTypeUnknown, nil, err
	}
	if record != nil {
		return BitstreamTypeORE, record, nil
	}

	record, err = s.versions.FindByAIPBitstream(ctx, bitstreamID)
	if err != nil {
		return BitstreamTypeUnknown, nil, err
	}
	if record != nil {
		return BitstreamTypeAIP, record, nil
	}

	record, err = s.versions.FindLatestByContentBitstream(ctx, bitstreamID)
	if err != nil {
		return BitstreamTypeUnknown, nil, err
	}
	if record != nil {
		return BitstreamTypeContent, record, nil
	}
	return BitstreamTypeUnknown, nil, nil
}

func (s *relationService) Obsoletes(ctx context.Context, bitstreamID uint64) (*domain.Bitstream, error) {
	return s.adjacent(ctx, bitstreamID, s.versions.Previous)
}

func (s *relationService) ObsoletedBy(ctx context.Context, bitstreamID uint64) (*domain.Bitstream, error) {
	return s.adjacent(ctx, bitstreamID, s.versions.Next)
}

type stepFunc func(ctx context.Context, historyID uint64, versionNumber int) (*domain.VersionRecord, error)

func (s *relationService) adjacent(ctx context.Context, bitstreamID uint64, step stepFunc) (*domain.Bitstream, error) {
	kind, record, err := s.TypeOf(ctx, bitstreamID)
	if err != nil {
		return nil, err
	}
	if record == nil || !record.IsArchived() {
		return nil, nil
	}

	neighbor, err := step(ctx, record.HistoryID, record.VersionNumber)
	if err != nil {
		return nil, err
	}
	if neighbor == nil {
		return nil, nil
	}

	switch kind {
	case BitstreamTypeAIP:
		return s.loadRef(ctx, neighbor.AIPBitstreamID)
	case BitstreamTypeORE:
		return s.loadRef(ctx, neighbor.OREBitstreamID)
	case BitstreamTypeContent:
		return s.matchContent(ctx, bitstreamID, neighbor)
	default:
		return nil, nil
	}
}

func (s *relationService) loadRef(ctx context.Context, id *uint64) (*domain.Bitstream, error) {
	if id == nil {
		return nil, nil
	}
	b, err := s.bitstreams.FindByID(ctx, *id)
	if err != nil {
		s.log.Debug().Err(err).Uint64("bitstream_id", *id).Msg("adjacent manifest bitstream unavailable")
		return nil, nil
	}
	return b, nil
}

// matchContent finds the counterpart of a content bitstream in the adjacent
// version's snapshot by filename. No match means the file was added or
// removed between the two versions.
func (s *relationService) matchContent(ctx context.Context, bitstreamID uint64, neighbor *domain.VersionRecord) (*domain.Bitstream, error) {
	self, err := s.bitstreams.FindByID(ctx, bitstreamID)
	if err != nil {
		return nil, nil
	}
	ids, err := s.versions.ContentBitstreamIDs(ctx, neighbor.ID)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	candidates, err := s.bitstreams.FindByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range candidates {
		if candidates[i].Name != "" && candidates[i].Name == self.Name {
			return &candidates[i], nil
		}
	}
	return nil, nil
}
