package service

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"voeventdb/internal/cache"
	"voeventdb/internal/ingest"
	"voeventdb/internal/metrics"
	"voeventdb/internal/models"
	"voeventdb/internal/repository"
	"voeventdb/internal/voevent"
)

// Outcome labels reported for single packets.
const (
	OutcomeInserted  = "inserted"
	OutcomeDuplicate = "duplicate"
	OutcomeConflict  = "conflict"
	OutcomeInvalid   = "invalid"
	OutcomeError     = "error"
)

type InsertResult struct {
	Ivorn   string `json:"ivorn,omitempty"`
	Outcome string `json:"outcome"`
}

type IngestService interface {
	// InsertPacket safely inserts one raw packet; source labels metrics and
	// logs. The result is filled in even when an error is returned.
	InsertPacket(ctx context.Context, raw []byte, source string) (*InsertResult, error)
	LoadArchive(ctx context.Context, path string, opts ingest.LoadOptions) (ingest.LoadResult, error)
	LoadArchiveReader(ctx context.Context, r io.Reader, source string, opts ingest.LoadOptions) (ingest.LoadResult, error)
	RecentRuns(ctx context.Context, n int) ([]*models.IngestRun, error)
}

type ingestService struct {
	engine  *ingest.Engine
	runs    repository.IngestRunRepository
	cache   cache.ResultCache
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewIngestService(
	engine *ingest.Engine,
	runs repository.IngestRunRepository,
	resultCache cache.ResultCache,
	m *metrics.Metrics,
	logger *slog.Logger,
) IngestService {
	if resultCache == nil {
		resultCache = cache.Noop()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ingestService{
		engine:  engine,
		runs:    runs,
		cache:   resultCache,
		metrics: m,
		logger:  logger,
	}
}

// OutcomeOf classifies the result of a single insert.
func OutcomeOf(outcome ingest.Outcome, err error) string {
	var conflict *ingest.ConflictError
	switch {
	case err == nil && outcome == ingest.OutcomeInserted:
		return OutcomeInserted
	case err == nil:
		return OutcomeDuplicate
	case errors.As(err, &conflict):
		return OutcomeConflict
	case IsInvalidPacket(err):
		return OutcomeInvalid
	default:
		return OutcomeError
	}
}

func (s *ingestService) InsertPacket(ctx context.Context, raw []byte, source string) (*InsertResult, error) {
	outcome, ivorn, err := s.engine.SafeInsertRaw(ctx, raw)
	res := &InsertResult{Ivorn: ivorn, Outcome: OutcomeOf(outcome, err)}
	s.metrics.ObserveIngest(source, res.Outcome)

	switch res.Outcome {
	case OutcomeInserted:
		s.logger.Info("packet ingested", "ivorn", ivorn, "source", source)
		s.invalidate(ctx)
	case OutcomeConflict:
		s.logger.Error("conflicting packet rejected", "ivorn", ivorn, "source", source)
	case OutcomeInvalid:
		s.logger.Warn("invalid packet rejected", "source", source, "error", err)
	}
	return res, err
}

func (s *ingestService) LoadArchive(ctx context.Context, path string, opts ingest.LoadOptions) (ingest.LoadResult, error) {
	res, err := s.engine.LoadFromArchive(ctx, path, opts)
	s.afterLoad(ctx, res)
	return res, err
}

func (s *ingestService) LoadArchiveReader(ctx context.Context, r io.Reader, source string, opts ingest.LoadOptions) (ingest.LoadResult, error) {
	res, err := s.engine.LoadFromReader(ctx, r, source, opts)
	s.afterLoad(ctx, res)
	return res, err
}

func (s *ingestService) afterLoad(ctx context.Context, res ingest.LoadResult) {
	s.metrics.ObserveArchive(res.Loaded, len(res.Skipped))
	if res.Loaded > 0 {
		s.invalidate(ctx)
	}
}

func (s *ingestService) invalidate(ctx context.Context) {
	if err := s.cache.Invalidate(context.WithoutCancel(ctx)); err != nil {
		s.logger.Warn("failed to invalidate result cache", "error", err)
	}
}

func (s *ingestService) RecentRuns(ctx context.Context, n int) ([]*models.IngestRun, error) {
	if s.runs == nil {
		return []*models.IngestRun{}, nil
	}
	return s.runs.GetLastN(ctx, n)
}

// IsInvalidPacket reports whether err rejects the packet itself rather than
// signalling a storage failure.
func IsInvalidPacket(err error) bool {
	return errors.Is(err, voevent.ErrMalformed) ||
		errors.Is(err, models.ErrMissingIvorn) ||
		errors.Is(err, models.ErrInvalidPacket)
}
