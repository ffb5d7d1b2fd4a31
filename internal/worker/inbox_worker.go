package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"voeventdb/internal/filestore"
	"voeventdb/internal/ingest"
	"voeventdb/internal/service"

	"github.com/fsnotify/fsnotify"
)

const (
	DoneDir   = "done"
	FailedDir = "failed"

	// settleDelay lets a burst of write events finish before a scan.
	settleDelay = 500 * time.Millisecond
)

type InboxConfig struct {
	Dir              string
	Interval         time.Duration
	PacketsPerCommit int
}

// InboxWorker ingests files dropped into a directory. Single .xml packets go
// through a safe insert, archives through a duplicate-checked load. Handled
// files are moved to done/ or failed/; files hit by a storage error stay put
// and are retried on the next scan. Writers should create files under a
// dotted or .part name and rename them into place.
type InboxWorker struct {
	ingest service.IngestService
	cfg    InboxConfig
	logger *slog.Logger
	loop   loop
}

func NewInboxWorker(ingest service.IngestService, cfg InboxConfig, logger *slog.Logger) *InboxWorker {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	return &InboxWorker{
		ingest: ingest,
		cfg:    cfg,
		logger: logger.With("worker", "inbox", "dir", cfg.Dir),
	}
}

func (w *InboxWorker) Name() string { return "inbox" }

func (w *InboxWorker) Start() {
	if w.loop.start(w.run) {
		w.logger.Info("inbox worker started", "interval", w.cfg.Interval)
	}
}

func (w *InboxWorker) Stop() {
	if w.loop.halt() {
		w.logger.Info("inbox worker stopped")
	}
}

// Prepare creates the inbox and its done/ and failed/ subdirectories.
func (w *InboxWorker) Prepare() error {
	for _, dir := range []string{w.cfg.Dir, filepath.Join(w.cfg.Dir, DoneDir), filepath.Join(w.cfg.Dir, FailedDir)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("inbox: %w", err)
		}
	}
	return nil
}

func (w *InboxWorker) run(stop <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-stop
		cancel()
	}()

	if err := w.Prepare(); err != nil {
		w.logger.Error("inbox unavailable", "error", err)
		return
	}

	var events <-chan fsnotify.Event
	var watchErrs <-chan error
	watcher, err := fsnotify.NewWatcher()
	if err == nil {
		err = watcher.Add(w.cfg.Dir)
	}
	if err != nil {
		w.logger.Warn("file watching unavailable, relying on rescans", "error", err)
	} else {
		defer watcher.Close()
		events, watchErrs = watcher.Events, watcher.Errors
	}

	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()
	settle := time.NewTimer(settleDelay)
	defer settle.Stop()

	w.scan(ctx)
	for {
		select {
		case <-stop:
			return
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write) || ev.Has(fsnotify.Rename) {
				settle.Reset(settleDelay)
			}
		case err, ok := <-watchErrs:
			if !ok {
				watchErrs = nil
				continue
			}
			w.logger.Warn("watch error", "error", err)
		case <-settle.C:
			w.scan(ctx)
		case <-ticker.C:
			w.scan(ctx)
		}
	}
}

func (w *InboxWorker) scan(ctx context.Context) {
	if _, err := w.ScanOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
		w.logger.Error("inbox scan failed", "error", err)
	}
}

// ScanResult counts the files a scan moved.
type ScanResult struct {
	Done   int `json:"done"`
	Failed int `json:"failed"`
	Kept   int `json:"kept"`
}

// ScanOnce handles every ready file currently in the inbox, oldest name
// first.
func (w *InboxWorker) ScanOnce(ctx context.Context) (ScanResult, error) {
	var res ScanResult
	entries, err := os.ReadDir(w.cfg.Dir)
	if err != nil {
		return res, fmt.Errorf("inbox: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if !e.Type().IsRegular() || strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".part") {
			continue
		}
		if filestore.IsPacketName(name) || filestore.IsArchiveName(name) {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		dest, err := w.handle(ctx, filepath.Join(w.cfg.Dir, name))
		if err != nil {
			w.logger.Error("inbox file kept for retry", "file", name, "error", err)
			res.Kept++
			continue
		}
		if err := w.move(name, dest); err != nil {
			return res, err
		}
		if dest == DoneDir {
			res.Done++
		} else {
			res.Failed++
		}
	}
	return res, nil
}

// handle ingests one file and picks its destination. A returned error means
// the file should stay in the inbox.
func (w *InboxWorker) handle(ctx context.Context, path string) (string, error) {
	name := filepath.Base(path)

	if filestore.IsArchiveName(name) {
		res, err := w.ingest.LoadArchive(ctx, path, ingest.LoadOptions{
			CheckDuplicates:  true,
			PacketsPerCommit: w.cfg.PacketsPerCommit,
		})
		if err != nil {
			// Anything but a damaged archive is retried; the reload skips
			// what already committed.
			if !errors.Is(err, filestore.ErrCorruptArchive) {
				return "", err
			}
			w.logger.Error("archive rejected", "file", name, "loaded", res.Loaded, "error", err)
			return FailedDir, nil
		}
		w.logger.Info("archive loaded", "file", name, "parsed", res.Parsed, "loaded", res.Loaded, "skipped", len(res.Skipped))
		return DoneDir, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	res, err := w.ingest.InsertPacket(ctx, raw, "inbox")
	switch res.Outcome {
	case service.OutcomeInserted, service.OutcomeDuplicate:
		return DoneDir, nil
	case service.OutcomeInvalid, service.OutcomeConflict:
		w.logger.Warn("packet rejected", "file", name, "outcome", res.Outcome, "error", err)
		return FailedDir, nil
	default:
		return "", err
	}
}

func (w *InboxWorker) move(name, sub string) error {
	dest := filepath.Join(w.cfg.Dir, sub, name)
	if _, err := os.Stat(dest); err == nil {
		dest = fmt.Sprintf("%s.%d", dest, time.Now().UnixNano())
	}
	if err := os.Rename(filepath.Join(w.cfg.Dir, name), dest); err != nil {
		return fmt.Errorf("inbox: %w", err)
	}
	return nil
}
