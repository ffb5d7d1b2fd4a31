// Package ingest decides whether incoming packets are new, harmless
// duplicates or conflicts, and loads archives in batches.
package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"voeventdb/internal/models"
	"voeventdb/internal/repository"
	"voeventdb/internal/voevent"
)

// PacketStore is the persistence the engine needs. Create and CreateBatch
// must each be atomic and report a unique-ivorn violation as
// repository.ErrDuplicateIvorn.
type PacketStore interface {
	IvornPresent(ctx context.Context, ivorn string) (bool, error)
	IvornPrefixPresent(ctx context.Context, prefix string) (bool, error)
	Create(ctx context.Context, packet *models.Packet) error
	CreateBatch(ctx context.Context, packets []*models.Packet) error
	FetchPayload(ctx context.Context, ivorn string) ([]byte, error)
}

// RunRecorder persists the audit row of an archive load.
type RunRecorder interface {
	Create(ctx context.Context, run *models.IngestRun) error
}

type Outcome int

const (
	OutcomeInserted Outcome = iota + 1
	OutcomeDuplicate
)

func (o Outcome) String() string {
	switch o {
	case OutcomeInserted:
		return "inserted"
	case OutcomeDuplicate:
		return "duplicate"
	default:
		return "unknown"
	}
}

// ConflictError means a packet reuses an archived ivorn with different
// content. It is never resolved automatically.
type ConflictError struct {
	Ivorn string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("ivorn %s is already archived with a different payload", e.Ivorn)
}

type Engine struct {
	store  PacketStore
	runs   RunRecorder
	logger *slog.Logger
	now    func() time.Time
}

// NewEngine returns an engine over store. runs may be nil, in which case
// archive loads are not audited.
func NewEngine(store PacketStore, runs RunRecorder, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:  store,
		runs:   runs,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the clock used for received timestamps.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

func (e *Engine) IvornPresent(ctx context.Context, ivorn string) (bool, error) {
	return e.store.IvornPresent(ctx, ivorn)
}

func (e *Engine) IvornPrefixPresent(ctx context.Context, prefix string) (bool, error) {
	return e.store.IvornPrefixPresent(ctx, prefix)
}

// SafeInsert stores doc unless its ivorn is already archived. A byte-identical
// duplicate is a logged no-op; differing content is a *ConflictError.
func (e *Engine) SafeInsert(ctx context.Context, doc *voevent.Document) (Outcome, error) {
	packet, err := models.FromDocument(doc, e.now(), e.logger)
	if err != nil {
		return 0, err
	}

	present, err := e.store.IvornPresent(ctx, packet.Ivorn)
	if err != nil {
		return 0, fmt.Errorf("check %s: %w", packet.Ivorn, err)
	}
	if present {
		return e.compareExisting(ctx, packet)
	}

	err = e.store.Create(ctx, packet)
	if errors.Is(err, repository.ErrDuplicateIvorn) {
		// Lost a race with a concurrent insert of the same ivorn.
		return e.compareExisting(ctx, packet)
	}
	if err != nil {
		return 0, fmt.Errorf("insert %s: %w", packet.Ivorn, err)
	}
	return OutcomeInserted, nil
}

// SafeInsertRaw parses raw and hands it to SafeInsert. The ivorn is returned
// whenever the packet parsed.
func (e *Engine) SafeInsertRaw(ctx context.Context, raw []byte) (Outcome, string, error) {
	doc, err := voevent.Parse(raw)
	if err != nil {
		return 0, "", err
	}
	outcome, err := e.SafeInsert(ctx, doc)
	return outcome, doc.Ivorn, err
}

func (e *Engine) compareExisting(ctx context.Context, packet *models.Packet) (Outcome, error) {
	existing, err := e.store.FetchPayload(ctx, packet.Ivorn)
	if err != nil {
		return 0, fmt.Errorf("fetch archived %s: %w", packet.Ivorn, err)
	}
	if !bytes.Equal(existing, packet.XML) {
		return 0, &ConflictError{Ivorn: packet.Ivorn}
	}
	e.logger.Warn("ignoring duplicate packet", "ivorn", packet.Ivorn)
	return OutcomeDuplicate, nil
}
