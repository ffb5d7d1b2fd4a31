package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"voeventdb/internal/filestore"
	"voeventdb/internal/ingest"
	"voeventdb/internal/models"
	"voeventdb/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedIngest picks an outcome from the packet body.
type scriptedIngest struct {
	mu       sync.Mutex
	packets  []string
	archives []string
	sources  []string
}

func (s *scriptedIngest) InsertPacket(_ context.Context, raw []byte, source string) (*service.InsertResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	body := string(raw)
	s.packets = append(s.packets, body)
	s.sources = append(s.sources, source)
	switch {
	case strings.Contains(body, "invalid"):
		return &service.InsertResult{Outcome: service.OutcomeInvalid}, errors.New("malformed packet")
	case strings.Contains(body, "unavailable"):
		return &service.InsertResult{Outcome: service.OutcomeError}, errors.New("connection refused")
	case strings.Contains(body, "again"):
		return &service.InsertResult{Ivorn: "ivo://org.example/s#1", Outcome: service.OutcomeDuplicate}, nil
	default:
		return &service.InsertResult{Ivorn: "ivo://org.example/s#1", Outcome: service.OutcomeInserted}, nil
	}
}

func (s *scriptedIngest) LoadArchive(_ context.Context, path string, opts ingest.LoadOptions) (ingest.LoadResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.archives = append(s.archives, filepath.Base(path))
	if !opts.CheckDuplicates {
		return ingest.LoadResult{}, errors.New("duplicate checking expected")
	}
	switch {
	case strings.Contains(path, "broken"):
		return ingest.LoadResult{}, fmt.Errorf("load %s: %w: tar: %w", path, filestore.ErrCorruptArchive, io.ErrUnexpectedEOF)
	case strings.Contains(path, "offline"):
		return ingest.LoadResult{Parsed: 2}, fmt.Errorf("load %s: connection refused", path)
	}
	return ingest.LoadResult{Parsed: 3, Loaded: 3}, nil
}

func (s *scriptedIngest) LoadArchiveReader(context.Context, io.Reader, string, ingest.LoadOptions) (ingest.LoadResult, error) {
	return ingest.LoadResult{}, nil
}

func (s *scriptedIngest) RecentRuns(context.Context, int) ([]*models.IngestRun, error) {
	return nil, nil
}

func (s *scriptedIngest) packetCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.packets)
}

func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, body := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
}

func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names
}

func TestInboxScanOnce(t *testing.T) {
	dir := t.TempDir()
	stub := &scriptedIngest{}
	w := NewInboxWorker(stub, InboxConfig{Dir: dir, Interval: time.Hour}, nil)
	require.NoError(t, w.Prepare())

	writeFiles(t, dir, map[string]string{
		"a-new.xml":       "<VOEvent/>",
		"b-again.xml":     "<VOEvent again/>",
		"c-bad.xml":       "invalid",
		"d-down.xml":      "unavailable",
		"e-series.tar.gz": "archive",
		"f-broken.tar":    "archive",
		"g-offline.tar":   "archive",
		"notes.txt":       "ignored",
		".g-hidden.xml":   "<VOEvent/>",
		"h-upload.part":   "<VOEvent/>",
	})

	res, err := w.ScanOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ScanResult{Done: 3, Failed: 2, Kept: 2}, res)

	assert.ElementsMatch(t, []string{"a-new.xml", "b-again.xml", "e-series.tar.gz"}, listDir(t, filepath.Join(dir, DoneDir)))
	assert.ElementsMatch(t, []string{"c-bad.xml", "f-broken.tar"}, listDir(t, filepath.Join(dir, FailedDir)))
	assert.ElementsMatch(t, []string{"d-down.xml", "g-offline.tar", "notes.txt", ".g-hidden.xml", "h-upload.part"}, listDir(t, dir))
	assert.Equal(t, []string{"e-series.tar.gz", "f-broken.tar", "g-offline.tar"}, stub.archives)
	assert.Equal(t, []string{"inbox", "inbox", "inbox", "inbox"}, stub.sources)

	// kept files are retried
	res, err = w.ScanOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ScanResult{Kept: 2}, res)
	assert.Equal(t, []string{"e-series.tar.gz", "f-broken.tar", "g-offline.tar", "g-offline.tar"}, stub.archives)
}

func TestInboxMoveKeepsEarlierFiles(t *testing.T) {
	dir := t.TempDir()
	w := NewInboxWorker(&scriptedIngest{}, InboxConfig{Dir: dir}, nil)
	require.NoError(t, w.Prepare())

	for i := 0; i < 2; i++ {
		writeFiles(t, dir, map[string]string{"same.xml": "<VOEvent/>"})
		_, err := w.ScanOnce(context.Background())
		require.NoError(t, err)
	}
	assert.Len(t, listDir(t, filepath.Join(dir, DoneDir)), 2)
}

func TestInboxWorkerPicksUpNewFiles(t *testing.T) {
	dir := t.TempDir()
	stub := &scriptedIngest{}
	w := NewInboxWorker(stub, InboxConfig{Dir: dir, Interval: 100 * time.Millisecond}, nil)
	w.Start()
	t.Cleanup(w.Stop)

	require.Eventually(t, func() bool {
		_, err := os.Stat(filepath.Join(dir, DoneDir))
		return err == nil
	}, 5*time.Second, 20*time.Millisecond)

	tmp := filepath.Join(dir, ".incoming")
	require.NoError(t, os.WriteFile(tmp, []byte("<VOEvent/>"), 0o644))
	require.NoError(t, os.Rename(tmp, filepath.Join(dir, "live.xml")))

	assert.Eventually(t, func() bool {
		_, err := os.Stat(filepath.Join(dir, DoneDir, "live.xml"))
		return err == nil
	}, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, 1, stub.packetCount())
}

func TestReplyFor(t *testing.T) {
	var r Reply
	require.NoError(t, json.Unmarshal(replyFor(&service.InsertResult{Ivorn: "ivo://a/b#c", Outcome: service.OutcomeInserted}, nil), &r))
	assert.Equal(t, Reply{Ivorn: "ivo://a/b#c", Outcome: service.OutcomeInserted}, r)

	r = Reply{}
	require.NoError(t, json.Unmarshal(replyFor(&service.InsertResult{Outcome: service.OutcomeInvalid}, errors.New("malformed packet")), &r))
	assert.Equal(t, "malformed packet", r.Error)

	r = Reply{}
	require.NoError(t, json.Unmarshal(replyFor(&service.InsertResult{Outcome: service.OutcomeError}, errors.New("dial tcp 10.0.0.1:5432")), &r))
	assert.Empty(t, r.Error)
}

type countingWorker struct {
	starts, stops atomic.Int32
}

func (w *countingWorker) Name() string { return "counting" }
func (w *countingWorker) Start()       { w.starts.Add(1) }
func (w *countingWorker) Stop()        { w.stops.Add(1) }

func TestScheduler(t *testing.T) {
	s := NewScheduler(nil)
	a, b := &countingWorker{}, &countingWorker{}
	s.AddWorker(a)
	s.AddWorker(b)
	assert.Equal(t, []string{"counting", "counting"}, s.Names())

	s.Start()
	assert.True(t, s.IsRunning())
	s.Stop()
	s.Stop()
	assert.False(t, s.IsRunning())

	s.Start()
	for _, w := range []*countingWorker{a, b} {
		assert.Equal(t, int32(1), w.starts.Load())
		assert.Equal(t, int32(1), w.stops.Load())
	}
}
