package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"voeventdb/internal/apierror"
	"voeventdb/internal/cache"
	"voeventdb/internal/metrics"
	"voeventdb/internal/models"
	"voeventdb/internal/query"
	"voeventdb/internal/repository"
)

// ListKind names a paginated listing.
type ListKind string

const (
	ListIvorn            ListKind = "ivorn"
	ListIvornNRefs       ListKind = "ivorn_nrefs"
	ListIvornNCites      ListKind = "ivorn_ncites"
	ListSummary          ListKind = "summary"
	ListMissingRefs      ListKind = "missing_refs"
	ListIvornMissingRefs ListKind = "ivorn_missing_refs"
)

var ListKinds = []ListKind{
	ListIvorn, ListIvornNRefs, ListIvornNCites, ListSummary, ListMissingRefs, ListIvornMissingRefs,
}

// MapKind names a grouped count.
type MapKind string

const (
	MapAuthoredMonthCount MapKind = "authored_month_count"
	MapRoleCount          MapKind = "role_count"
	MapStreamCount        MapKind = "stream_count"
	MapStreamRoleCount    MapKind = "stream_role_count"
)

var MapKinds = []MapKind{MapAuthoredMonthCount, MapRoleCount, MapStreamCount, MapStreamRoleCount}

type ListResult struct {
	Items interface{}
	Page  query.Pagination
}

type QueryService interface {
	Count(ctx context.Context, filters url.Values) (int64, error)
	List(ctx context.Context, kind ListKind, values url.Values) (*ListResult, error)
	Map(ctx context.Context, kind MapKind, filters url.Values) (interface{}, error)
	Synopsis(ctx context.Context, ivorn string) (*models.Synopsis, error)
	PacketXML(ctx context.Context, ivorn string) ([]byte, error)
	Stats(ctx context.Context) (*repository.TableCounts, error)
}

type queryService struct {
	queries repository.QueryRepository
	packets repository.PacketRepository
	cache   cache.ResultCache
	metrics *metrics.Metrics
	limits  query.Limits
	logger  *slog.Logger
}

// NewQueryService wires the read side. resultCache and m may be nil.
func NewQueryService(
	queries repository.QueryRepository,
	packets repository.PacketRepository,
	resultCache cache.ResultCache,
	m *metrics.Metrics,
	limits query.Limits,
	logger *slog.Logger,
) QueryService {
	if resultCache == nil {
		resultCache = cache.Noop()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &queryService{
		queries: queries,
		packets: packets,
		cache:   resultCache,
		metrics: m,
		limits:  limits,
		logger:  logger,
	}
}

func (s *queryService) Count(ctx context.Context, filters url.Values) (int64, error) {
	return s.queries.Count(ctx, filters)
}

func (s *queryService) List(ctx context.Context, kind ListKind, values url.Values) (*ListResult, error) {
	page, err := query.ParsePagination(values, s.limits)
	if err != nil {
		return nil, err
	}

	var items interface{}
	switch kind {
	case ListIvorn:
		items, err = s.queries.ListIvorns(ctx, values, page)
	case ListIvornNRefs:
		items, err = s.queries.ListIvornNRefs(ctx, values, page)
	case ListIvornNCites:
		items, err = s.queries.ListIvornNCites(ctx, values, page)
	case ListSummary:
		items, err = s.queries.ListSummaries(ctx, values, page)
	case ListMissingRefs:
		items, err = s.queries.ListMissingRefs(ctx, values, page)
	case ListIvornMissingRefs:
		items, err = s.queries.ListIvornsWithMissingRefs(ctx, values, page)
	default:
		return nil, fmt.Errorf("unknown list %q", kind)
	}
	if err != nil {
		return nil, err
	}
	return &ListResult{Items: items, Page: page}, nil
}

func cacheKey(kind MapKind, filters url.Values) string {
	return "map/" + string(kind) + "?" + filters.Encode()
}

// Map returns a grouped count, served from the result cache when possible.
// Cache failures only cost a database round trip.
func (s *queryService) Map(ctx context.Context, kind MapKind, filters url.Values) (interface{}, error) {
	switch kind {
	case MapStreamRoleCount:
		return cached(ctx, s, cacheKey(kind, filters), func() (map[string]map[string]int64, error) {
			return s.queries.StreamRoleCounts(ctx, filters)
		})
	case MapAuthoredMonthCount:
		return cached(ctx, s, cacheKey(kind, filters), func() (map[string]int64, error) {
			return s.queries.AuthoredMonthCounts(ctx, filters)
		})
	case MapRoleCount:
		return cached(ctx, s, cacheKey(kind, filters), func() (map[string]int64, error) {
			return s.queries.RoleCounts(ctx, filters)
		})
	case MapStreamCount:
		return cached(ctx, s, cacheKey(kind, filters), func() (map[string]int64, error) {
			return s.queries.StreamCounts(ctx, filters)
		})
	default:
		return nil, fmt.Errorf("unknown map %q", kind)
	}
}

func cached[T any](ctx context.Context, s *queryService, key string, fetch func() (T, error)) (T, error) {
	var out T
	gen, hit, readErr := s.cache.GetJSON(ctx, key, &out)
	if readErr != nil {
		s.logger.Warn("cache read failed", "key", key, "error", readErr)
	}
	s.metrics.ObserveCache(hit)
	if hit {
		return out, nil
	}

	out, err := fetch()
	if err != nil {
		return out, err
	}
	// Written under the generation read above, so a result computed before a
	// concurrent ingest cannot surface after it.
	if readErr == nil {
		if err := s.cache.SetJSON(ctx, gen, key, out); err != nil {
			s.logger.Warn("cache write failed", "key", key, "error", err)
		}
	}
	return out, nil
}

func notFound(ivorn string, err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apierror.IvornNotFound(ivorn)
	}
	return err
}

func (s *queryService) Synopsis(ctx context.Context, ivorn string) (*models.Synopsis, error) {
	if ivorn == "" {
		return nil, apierror.IvornNotSupplied()
	}
	packet, err := s.packets.GetWithChildren(ctx, ivorn)
	if err != nil {
		return nil, notFound(ivorn, err)
	}

	syn := &models.Synopsis{
		Packet:       packet.Summary(),
		Refs:         packet.Cites,
		Coords:       packet.Coords,
		RelevantURLs: RelevantURLs(packet.Ivorn, packet.Cites),
	}
	if syn.Refs == nil {
		syn.Refs = []models.Cite{}
	}
	if syn.Coords == nil {
		syn.Coords = []models.Coord{}
	}
	return syn, nil
}

func (s *queryService) PacketXML(ctx context.Context, ivorn string) ([]byte, error) {
	if ivorn == "" {
		return nil, apierror.IvornNotSupplied()
	}
	xml, err := s.packets.FetchPayload(ctx, ivorn)
	if err != nil {
		return nil, notFound(ivorn, err)
	}
	return xml, nil
}

func (s *queryService) Stats(ctx context.Context) (*repository.TableCounts, error) {
	return s.packets.Stats(ctx)
}

const swiftGRBPosPrefix = "ivo://nasa.gsfc.gcn/SWIFT#BAT_GRB_Pos_"

// RelevantURLs points at external pages for a packet. Swift BAT GRB position
// notices, or packets citing one, link to the Swift and GCN trigger pages.
func RelevantURLs(ivorn string, cites []models.Cite) []string {
	trigger := swiftTriggerID(ivorn)
	if trigger == "" {
		for _, c := range cites {
			if id := swiftTriggerID(c.RefIvorn); id != "" {
				trigger = id
			}
		}
	}
	if trigger == "" {
		return []string{}
	}
	return []string{
		"http://www.swift.ac.uk/search/summary.php?obsid=" + trigger,
		"http://gcn.gsfc.nasa.gov/other/" + trigger + ".swift",
	}
}

func swiftTriggerID(ivorn string) string {
	rest, ok := strings.CutPrefix(ivorn, swiftGRBPosPrefix)
	if !ok {
		return ""
	}
	id, _, _ := strings.Cut(rest, "-")
	return id
}
