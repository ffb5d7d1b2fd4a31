package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"voeventdb/internal/filestore"
	"voeventdb/internal/models"
	"voeventdb/internal/voevent"

	"gorm.io/datatypes"
)

const DefaultPacketsPerCommit = 1000

type LoadOptions struct {
	// CheckDuplicates skips packets whose ivorn is archived or already
	// pending in the current batch, without comparing payloads. Without it a
	// duplicate fails the batch commit.
	CheckDuplicates  bool
	PacketsPerCommit int
}

type LoadResult struct {
	Parsed  int                   `json:"parsed"`
	Loaded  int                   `json:"loaded"`
	Skipped []models.SkippedEntry `json:"skipped"`
}

// LoadFromArchive loads every packet in the archive at path. Entries that are
// oversized or do not parse or convert are logged and skipped; only failures
// of the archive or the store are returned.
func (e *Engine) LoadFromArchive(ctx context.Context, path string, opts LoadOptions) (LoadResult, error) {
	return e.load(ctx, path, opts, func(fn func(filestore.Entry) error) error {
		return filestore.WalkFile(path, fn)
	})
}

// LoadFromReader is LoadFromArchive over an open stream; source names it in
// logs and the audit row.
func (e *Engine) LoadFromReader(ctx context.Context, r io.Reader, source string, opts LoadOptions) (LoadResult, error) {
	return e.load(ctx, source, opts, func(fn func(filestore.Entry) error) error {
		return filestore.Walk(r, fn)
	})
}

type batchLoader struct {
	e       *Engine
	opts    LoadOptions
	pending []*models.Packet
	inBatch map[string]bool
	result  LoadResult
}

func (e *Engine) load(ctx context.Context, source string, opts LoadOptions, walk func(func(filestore.Entry) error) error) (LoadResult, error) {
	if opts.PacketsPerCommit <= 0 {
		opts.PacketsPerCommit = DefaultPacketsPerCommit
	}
	started := e.now()
	bl := &batchLoader{e: e, opts: opts, inBatch: make(map[string]bool)}

	err := walk(func(entry filestore.Entry) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		return bl.add(ctx, entry)
	})
	if err == nil {
		err = bl.flush(ctx)
	}

	e.recordRun(ctx, source, opts, started, bl.result)
	if err != nil {
		return bl.result, fmt.Errorf("load %s: %w", source, err)
	}

	e.logger.Info("archive loaded",
		"source", source,
		"parsed", bl.result.Parsed,
		"loaded", bl.result.Loaded,
		"skipped", len(bl.result.Skipped))
	return bl.result, nil
}

func (bl *batchLoader) skip(name, reason string) {
	bl.result.Skipped = append(bl.result.Skipped, models.SkippedEntry{Name: name, Reason: reason})
}

func (bl *batchLoader) add(ctx context.Context, entry filestore.Entry) error {
	log := bl.e.logger

	if entry.Err != nil {
		log.Warn("skipping unreadable archive entry", "entry", entry.Name, "error", entry.Err)
		bl.skip(entry.Name, entry.Err.Error())
		return nil
	}
	doc, err := voevent.Parse(entry.Data)
	if err != nil {
		log.Warn("skipping unparseable archive entry", "entry", entry.Name, "error", err)
		bl.skip(entry.Name, err.Error())
		return nil
	}
	bl.result.Parsed++
	if doc.Version != "2.0" {
		log.Debug("non 2.0 packet", "ivorn", doc.Ivorn, "version", doc.Version)
	}

	packet, err := models.FromDocument(doc, bl.e.now(), log)
	if err != nil {
		log.Warn("skipping unconvertible packet", "entry", entry.Name, "error", err)
		bl.skip(entry.Name, err.Error())
		return nil
	}

	if bl.opts.CheckDuplicates {
		if bl.inBatch[packet.Ivorn] {
			bl.skip(entry.Name, "duplicate ivorn in archive")
			return nil
		}
		present, err := bl.e.store.IvornPresent(ctx, packet.Ivorn)
		if err != nil {
			return fmt.Errorf("check %s: %w", packet.Ivorn, err)
		}
		if present {
			bl.skip(entry.Name, "ivorn already archived")
			return nil
		}
	}

	bl.pending = append(bl.pending, packet)
	bl.inBatch[packet.Ivorn] = true
	if len(bl.pending) >= bl.opts.PacketsPerCommit {
		return bl.flush(ctx)
	}
	return nil
}

func (bl *batchLoader) flush(ctx context.Context) error {
	if len(bl.pending) == 0 {
		return nil
	}
	if err := bl.e.store.CreateBatch(ctx, bl.pending); err != nil {
		return fmt.Errorf("commit batch of %d: %w", len(bl.pending), err)
	}
	bl.result.Loaded += len(bl.pending)
	bl.e.logger.Debug("batch committed", "packets", len(bl.pending), "loaded", bl.result.Loaded)
	bl.pending = bl.pending[:0]
	bl.inBatch = make(map[string]bool)
	return nil
}

// recordRun writes the audit row. It runs even when the load failed or the
// context was cancelled; a failure to record is only logged.
func (e *Engine) recordRun(ctx context.Context, source string, opts LoadOptions, started time.Time, res LoadResult) {
	if e.runs == nil {
		return
	}
	skipped := res.Skipped
	if skipped == nil {
		skipped = []models.SkippedEntry{}
	}
	payload, err := json.Marshal(skipped)
	if err != nil {
		e.logger.Warn("failed to encode skipped entries", "source", source, "error", err)
		payload = []byte("[]")
	}

	run := &models.IngestRun{
		Source:          source,
		CheckDuplicates: opts.CheckDuplicates,
		Parsed:          res.Parsed,
		Loaded:          res.Loaded,
		Skipped:         datatypes.JSON(payload),
		StartedAt:       started,
		FinishedAt:      e.now(),
	}
	if err := e.runs.Create(context.WithoutCancel(ctx), run); err != nil {
		e.logger.Warn("failed to record ingest run", "source", source, "error", err)
	}
}
