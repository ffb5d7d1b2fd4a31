package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"

	"voeventdb/internal/models"
	"voeventdb/internal/query"
	"voeventdb/internal/repository"
)

// fakePackets is an in-memory PacketRepository. It also satisfies
// ingest.PacketStore.
type fakePackets struct {
	mu      sync.Mutex
	byIvorn map[string]*models.Packet
	order   []string
	windows []repository.AuthoredWindow
}

func newFakePackets() *fakePackets {
	return &fakePackets{byIvorn: make(map[string]*models.Packet)}
}

func (f *fakePackets) IvornPresent(_ context.Context, ivorn string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.byIvorn[ivorn]
	return ok, nil
}

func (f *fakePackets) IvornPrefixPresent(_ context.Context, prefix string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ivorn := range f.order {
		if strings.HasPrefix(ivorn, prefix) {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakePackets) Create(_ context.Context, p *models.Packet) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.byIvorn[p.Ivorn]; ok {
		return fmt.Errorf("%w: %s", repository.ErrDuplicateIvorn, p.Ivorn)
	}
	p.ID = uint(len(f.order) + 1)
	f.byIvorn[p.Ivorn] = p
	f.order = append(f.order, p.Ivorn)
	return nil
}

func (f *fakePackets) CreateBatch(ctx context.Context, ps []*models.Packet) error {
	for _, p := range ps {
		if err := f.Create(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakePackets) FetchPayload(_ context.Context, ivorn string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.byIvorn[ivorn]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return p.XML, nil
}

func (f *fakePackets) GetWithChildren(_ context.Context, ivorn string) (*models.Packet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.byIvorn[ivorn]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := *p
	out.XML = nil
	return &out, nil
}

func (f *fakePackets) StreamPayloads(_ context.Context, window repository.AuthoredWindow, _ int, fn func(string, []byte) error) error {
	f.mu.Lock()
	f.windows = append(f.windows, window)
	order := append([]string(nil), f.order...)
	f.mu.Unlock()

	for _, ivorn := range order {
		p := f.byIvorn[ivorn]
		if window.Start != nil || window.End != nil {
			if p.AuthorDatetime == nil {
				continue
			}
			if window.Start != nil && p.AuthorDatetime.Before(*window.Start) {
				continue
			}
			if window.End != nil && !p.AuthorDatetime.Before(*window.End) {
				continue
			}
		}
		if err := fn(ivorn, p.XML); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakePackets) Stats(context.Context) (*repository.TableCounts, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	counts := &repository.TableCounts{Packets: int64(len(f.order))}
	for _, p := range f.byIvorn {
		counts.Cites += int64(len(p.Cites))
		counts.Coords += int64(len(p.Coords))
	}
	return counts, nil
}

// fakeQueries answers every listing from the fake packet table and counts
// aggregate calls.
type fakeQueries struct {
	packets  *fakePackets
	mu       sync.Mutex
	mapCalls int
	lastPage query.Pagination
	// afterMap runs once after the next aggregate is computed.
	afterMap func()
}

func (q *fakeQueries) Count(ctx context.Context, _ url.Values) (int64, error) {
	counts, err := q.packets.Stats(ctx)
	return counts.Packets, err
}

func (q *fakeQueries) ListIvorns(_ context.Context, _ url.Values, page query.Pagination) ([]string, error) {
	q.lastPage = page
	return append([]string{}, q.packets.order...), nil
}

func (q *fakeQueries) ListSummaries(_ context.Context, _ url.Values, page query.Pagination) ([]models.PacketSummary, error) {
	q.lastPage = page
	rows := make([]models.PacketSummary, 0, len(q.packets.order))
	for _, ivorn := range q.packets.order {
		rows = append(rows, q.packets.byIvorn[ivorn].Summary())
	}
	return rows, nil
}

func (q *fakeQueries) ListIvornNRefs(context.Context, url.Values, query.Pagination) ([]models.IvornCount, error) {
	return []models.IvornCount{}, nil
}

func (q *fakeQueries) ListIvornNCites(context.Context, url.Values, query.Pagination) ([]models.IvornCount, error) {
	return []models.IvornCount{}, nil
}

func (q *fakeQueries) ListMissingRefs(context.Context, url.Values, query.Pagination) ([]string, error) {
	return []string{}, nil
}

func (q *fakeQueries) ListIvornsWithMissingRefs(context.Context, url.Values, query.Pagination) ([]string, error) {
	return []string{}, nil
}

func (q *fakeQueries) roles() map[string]int64 {
	q.mu.Lock()
	q.mapCalls++
	q.mu.Unlock()
	out := map[string]int64{}
	for _, p := range q.packets.byIvorn {
		out[string(p.Role)]++
	}
	if hook := q.afterMap; hook != nil {
		q.afterMap = nil
		hook()
	}
	return out
}

func (q *fakeQueries) RoleCounts(context.Context, url.Values) (map[string]int64, error) {
	return q.roles(), nil
}

func (q *fakeQueries) StreamCounts(context.Context, url.Values) (map[string]int64, error) {
	return q.roles(), nil
}

func (q *fakeQueries) AuthoredMonthCounts(context.Context, url.Values) (map[string]int64, error) {
	return q.roles(), nil
}

func (q *fakeQueries) StreamRoleCounts(context.Context, url.Values) (map[string]map[string]int64, error) {
	return map[string]map[string]int64{"s": q.roles()}, nil
}

func (q *fakeQueries) calls() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.mapCalls
}

// memCache is a generation-versioned ResultCache held in memory.
type memCache struct {
	mu      sync.Mutex
	gen     int64
	entries map[string][]byte
}

func newMemCache() *memCache {
	return &memCache{entries: make(map[string][]byte)}
}

func memKey(gen int64, k string) string {
	return fmt.Sprintf("%d:%s", gen, k)
}

func (c *memCache) GetJSON(_ context.Context, key string, dest interface{}) (int64, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, ok := c.entries[memKey(c.gen, key)]
	if !ok {
		return c.gen, false, nil
	}
	return c.gen, true, json.Unmarshal(raw, dest)
}

func (c *memCache) SetJSON(_ context.Context, gen int64, key string, value interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[memKey(gen, key)] = raw
	return nil
}

func (c *memCache) Invalidate(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	return nil
}

func (c *memCache) keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.entries))
	for k := range c.entries {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
