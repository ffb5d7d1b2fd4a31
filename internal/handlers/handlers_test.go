package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"voeventdb/internal/apierror"
	"voeventdb/internal/ingest"
	"voeventdb/internal/metrics"
	"voeventdb/internal/models"
	"voeventdb/internal/query"
	"voeventdb/internal/repository"
	"voeventdb/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const knownIvorn = "ivo://nasa.gsfc.gcn/SWIFT#BAT_GRB_Pos_532871-729"

type stubQuery struct {
	lastFilters url.Values
	lastKind    string
	statsErr    error
}

func (s *stubQuery) Count(_ context.Context, filters url.Values) (int64, error) {
	s.lastFilters = filters
	return 42, nil
}

func (s *stubQuery) List(_ context.Context, kind service.ListKind, values url.Values) (*service.ListResult, error) {
	s.lastKind = string(kind)
	if values.Get("limit") == "99999" {
		return nil, apierror.LimitMaxExceeded(99999, 100)
	}
	return &service.ListResult{
		Items: []string{knownIvorn},
		Page:  query.Pagination{Limit: 100, Order: query.OrderID},
	}, nil
}

func (s *stubQuery) Map(_ context.Context, kind service.MapKind, _ url.Values) (interface{}, error) {
	s.lastKind = string(kind)
	return map[string]int64{"observation": 3}, nil
}

func (s *stubQuery) Synopsis(_ context.Context, ivorn string) (*models.Synopsis, error) {
	if ivorn != knownIvorn {
		return nil, apierror.IvornNotFound(ivorn)
	}
	return &models.Synopsis{
		Packet:       models.PacketSummary{Ivorn: ivorn, Stream: "nasa.gsfc.gcn/SWIFT"},
		Refs:         []models.Cite{},
		Coords:       []models.Coord{},
		RelevantURLs: service.RelevantURLs(ivorn, nil),
	}, nil
}

func (s *stubQuery) PacketXML(_ context.Context, ivorn string) ([]byte, error) {
	if ivorn == "" {
		return nil, apierror.IvornNotSupplied()
	}
	if ivorn != knownIvorn {
		return nil, apierror.IvornNotFound(ivorn)
	}
	return []byte("<VOEvent/>"), nil
}

func (s *stubQuery) Stats(context.Context) (*repository.TableCounts, error) {
	if s.statsErr != nil {
		return nil, s.statsErr
	}
	return &repository.TableCounts{Packets: 3, Cites: 2, Coords: 1}, nil
}

type stubIngest struct {
	result *service.InsertResult
	err    error
	body   []byte
}

func (s *stubIngest) InsertPacket(_ context.Context, raw []byte, source string) (*service.InsertResult, error) {
	s.body = raw
	return s.result, s.err
}

func (s *stubIngest) LoadArchive(context.Context, string, ingest.LoadOptions) (ingest.LoadResult, error) {
	return ingest.LoadResult{}, nil
}

func (s *stubIngest) LoadArchiveReader(context.Context, io.Reader, string, ingest.LoadOptions) (ingest.LoadResult, error) {
	return ingest.LoadResult{}, nil
}

func (s *stubIngest) RecentRuns(context.Context, int) ([]*models.IngestRun, error) {
	return []*models.IngestRun{{ID: 1, Source: "archive.tar.gz", Loaded: 5}}, nil
}

type stubExport struct{}

func (stubExport) SummaryWorkbook(_ context.Context, w io.Writer, _ url.Values) error {
	_, err := w.Write([]byte("PK-workbook"))
	return err
}

func (stubExport) Dump(context.Context, service.DumpOptions) (*service.DumpResult, error) {
	return &service.DumpResult{}, nil
}

type testServer struct {
	router *gin.Engine
	query  *stubQuery
	ingest *stubIngest
}

func newTestServer(cfg RouterConfig) *testServer {
	ts := &testServer{
		query:  &stubQuery{},
		ingest: &stubIngest{result: &service.InsertResult{Ivorn: knownIvorn, Outcome: service.OutcomeInserted}},
	}
	system := NewSystemHandler(ts.query, nil).
		AddCheck("database", func(context.Context) error { return nil }).
		AddStats("workers", func(context.Context) (interface{}, error) {
			return gin.H{"inbox": false}, nil
		})
	if cfg.Version == "" {
		cfg.Version = "1.2"
	}
	ts.router = NewRouter(cfg, Deps{
		Query:   ts.query,
		Ingest:  ts.ingest,
		Export:  stubExport{},
		System:  system,
		Metrics: metrics.New(),
	})
	return ts
}

func (ts *testServer) do(method, target string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestRootListsEndpoints(t *testing.T) {
	ts := newTestServer(RouterConfig{})
	rec := ts.do(http.MethodGet, "/apiv1/", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode(t, rec)
	result := body[KeyResult].(map[string]interface{})
	assert.Equal(t, "1.2", result["version"])
	endpoints := result["endpoints"].([]interface{})
	assert.Contains(t, endpoints, "/apiv1/list/ivorn_missing_refs")
	assert.Contains(t, endpoints, "/apiv1/map/stream_role_count")
	assert.NotContains(t, endpoints, "POST /apiv1/packet")
}

func TestCountEnvelope(t *testing.T) {
	ts := newTestServer(RouterConfig{})
	rec := ts.do(http.MethodGet, "/apiv1/count?role=observation&role=test", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode(t, rec)
	assert.Equal(t, "/apiv1/count", body[KeyEndpoint])
	assert.Equal(t, 42.0, body[KeyResult])
	assert.Equal(t, "http://example.com/apiv1/count?role=observation&role=test", body[KeyURL])
	assert.Equal(t, map[string]interface{}{"role": []interface{}{"observation", "test"}}, body[KeyQuerystring])
	assert.Equal(t, []string{"observation", "test"}, ts.query.lastFilters["role"])
}

func TestListEchoesLimit(t *testing.T) {
	ts := newTestServer(RouterConfig{})
	rec := ts.do(http.MethodGet, "/apiv1/list/ivorn_missing_refs", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode(t, rec)
	assert.Equal(t, 100.0, body[KeyLimit])
	assert.Equal(t, []interface{}{knownIvorn}, body[KeyResult])
	assert.Equal(t, "ivorn_missing_refs", ts.query.lastKind)

	rec = ts.do(http.MethodGet, "/apiv1/list/summary?limit=99999", nil)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	apiErr := decode(t, rec)["error"].(map[string]interface{})
	assert.Equal(t, "Limit too high", apiErr["description"])
}

func TestMap(t *testing.T) {
	ts := newTestServer(RouterConfig{})
	rec := ts.do(http.MethodGet, "/apiv1/map/role_count", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]interface{}{"observation": 3.0}, decode(t, rec)[KeyResult])
	assert.Equal(t, "role_count", ts.query.lastKind)
}

func TestSynopsisByEncodedIvorn(t *testing.T) {
	ts := newTestServer(RouterConfig{})
	rec := ts.do(http.MethodGet, "/apiv1/packet/synopsis/"+url.QueryEscape(knownIvorn), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decode(t, rec)
	assert.Equal(t, "/apiv1/packet/synopsis/*ivorn", body[KeyEndpoint])
	result := body[KeyResult].(map[string]interface{})
	assert.Equal(t, knownIvorn, result["voevent"].(map[string]interface{})["ivorn"])
	assert.Len(t, result["relevant_urls"], 2)
	assert.Equal(t, []interface{}{}, result["refs"])

	rec = ts.do(http.MethodGet, "/apiv1/packet/synopsis/"+url.QueryEscape("ivo://org.example/none#1"), nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestPacketXML(t *testing.T) {
	ts := newTestServer(RouterConfig{})
	rec := ts.do(http.MethodGet, "/apiv1/packet/xml/"+url.QueryEscape(knownIvorn), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "<VOEvent/>", rec.Body.String())
	assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "text/xml"))

	rec = ts.do(http.MethodGet, "/apiv1/packet/xml/", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPostPacket(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		ts := newTestServer(RouterConfig{})
		rec := ts.do(http.MethodPost, "/apiv1/packet", []byte("<VOEvent/>"))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	cases := []struct {
		outcome string
		err     error
		status  int
	}{
		{service.OutcomeInserted, nil, http.StatusCreated},
		{service.OutcomeDuplicate, nil, http.StatusOK},
		{service.OutcomeConflict, &ingest.ConflictError{Ivorn: knownIvorn}, http.StatusConflict},
		{service.OutcomeInvalid, errors.New("malformed"), http.StatusBadRequest},
		{service.OutcomeError, errors.New("db down"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.outcome, func(t *testing.T) {
			ts := newTestServer(RouterConfig{HTTPIngest: true})
			ts.ingest.result = &service.InsertResult{Ivorn: knownIvorn, Outcome: tc.outcome}
			ts.ingest.err = tc.err

			rec := ts.do(http.MethodPost, "/apiv1/packet", []byte("<VOEvent/>"))
			assert.Equal(t, tc.status, rec.Code)
			assert.Equal(t, "<VOEvent/>", string(ts.ingest.body))
			if tc.status != http.StatusInternalServerError {
				assert.Equal(t, tc.outcome, decode(t, rec)["outcome"])
			} else {
				assert.NotContains(t, rec.Body.String(), "db down")
			}
		})
	}
}

func TestRecentRuns(t *testing.T) {
	ts := newTestServer(RouterConfig{})
	rec := ts.do(http.MethodGet, "/apiv1/ingest/runs", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	runs := decode(t, rec)["runs"].([]interface{})
	require.Len(t, runs, 1)
	assert.Equal(t, 5.0, runs[0].(map[string]interface{})["loaded"])
}

func TestSummaryXLSX(t *testing.T) {
	ts := newTestServer(RouterConfig{})
	rec := ts.do(http.MethodGet, "/apiv1/export/summary.xlsx?role=observation", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, xlsxContentType, rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "attachment; filename=\"voevent_summary_")
	assert.Equal(t, "PK-workbook", rec.Body.String())
}

func TestHealthAndStats(t *testing.T) {
	ts := newTestServer(RouterConfig{})
	rec := ts.do(http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode(t, rec)["status"])

	rec = ts.do(http.MethodGet, "/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, map[string]interface{}{"voevent": 3.0, "cite": 2.0, "coord": 1.0}, body["database"])
	assert.Equal(t, map[string]interface{}{"inbox": false}, body["workers"])

	ts.query.statsErr = fmt.Errorf("connection refused")
	rec = ts.do(http.MethodGet, "/stats", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestHealthDegraded(t *testing.T) {
	system := NewSystemHandler(&stubQuery{}, nil).
		AddCheck("database", func(context.Context) error { return nil }).
		AddCheck("redis", func(context.Context) error { return errors.New("dial tcp: refused") })
	r := NewRouter(RouterConfig{}, Deps{Query: &stubQuery{}, System: system})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "degraded", body["status"])
	assert.Equal(t, map[string]interface{}{"database": "ok", "redis": "unavailable"}, body["services"])
}

func TestUnknownRoute(t *testing.T) {
	ts := newTestServer(RouterConfig{})
	rec := ts.do(http.MethodGet, "/apiv1/list/nothing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, decode(t, rec), "error")
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(RouterConfig{})
	ts.do(http.MethodGet, "/apiv1/count", nil)
	rec := ts.do(http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `voeventdb_http_request_duration_seconds_count{method="GET",route="/apiv1/count",status="200"} 1`)
}

func TestRateLimitOutsideDebug(t *testing.T) {
	ts := newTestServer(RouterConfig{RateLimitRPS: 1, RateLimitBurst: 1})
	assert.Equal(t, http.StatusOK, ts.do(http.MethodGet, "/apiv1/count", nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, ts.do(http.MethodGet, "/apiv1/count", nil).Code)
	assert.Equal(t, http.StatusOK, ts.do(http.MethodGet, "/health", nil).Code)

	debug := newTestServer(RouterConfig{Debug: true, RateLimitRPS: 1, RateLimitBurst: 1})
	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, debug.do(http.MethodGet, "/apiv1/count", nil).Code)
	}
}
