package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sulaimonao/self-hosted-search-engine-sub002/internal/crawler"
	"github.com/sulaimonao/self-hosted-search-engine-sub002/internal/pacing"
	"github.com/sulaimonao/self-hosted-search-engine-sub002/internal/scheduler"
	storagemem "github.com/sulaimonao/self-hosted-search-engine-sub002/internal/storage/memory"
)

type fakeScheduler struct {
	submitted []crawler.RunParameters
	submitErr error
	canceled  []string
	cancelErr error
}

func (f *fakeScheduler) Submit(_ context.Context, params crawler.RunParameters) (crawler.Run, error) {
	if f.submitErr != nil {
		return crawler.Run{}, f.submitErr
	}
	f.submitted = append(f.submitted, params)
	return crawler.Run{ID: "run-1", Status: crawler.RunStatusQueued, Parameters: params}, nil
}

func (f *fakeScheduler) Cancel(runID string) error {
	if f.cancelErr != nil {
		return f.cancelErr
	}
	f.canceled = append(f.canceled, runID)
	return nil
}

func testPacer(t *testing.T) *pacing.Controller {
	t.Helper()
	ctrl, err := pacing.NewController(pacing.DefaultConfig())
	require.NoError(t, err)
	return ctrl
}

func newTestServer(t *testing.T, sched RunScheduler, runs crawler.RunStore) *Server {
	t.Helper()
	if runs == nil {
		runs = storagemem.NewRunStore()
	}
	return NewServer(sched, runs, testPacer(t), zap.NewNop())
}

func TestServer_Healthz(t *testing.T) {
	t.Parallel()

	server := newTestServer(t, &fakeScheduler{}, nil)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()

	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "ok")
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestServer_SubmitCrawl_Succeeds(t *testing.T) {
	t.Parallel()

	sched := &fakeScheduler{}
	server := newTestServer(t, sched, nil)

	body := []byte(`{"seeds":["https://example.org/"],"max_depth":2}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/crawls", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Contains(t, rec.Body.String(), "run-1")
	require.Len(t, sched.submitted, 1)
	require.Equal(t, []string{"https://example.org/"}, sched.submitted[0].Seeds)
	require.Equal(t, 2, sched.submitted[0].MaxDepth)
}

func TestServer_SubmitCrawl_InvalidJSON(t *testing.T) {
	t.Parallel()

	server := newTestServer(t, &fakeScheduler{}, nil)
	req := httptest.NewRequest(http.MethodPost, "/v1/crawls", bytes.NewBufferString("{invalid"))
	rec := httptest.NewRecorder()

	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "invalid JSON")
}

func TestServer_SubmitCrawl_RejectedSeeds(t *testing.T) {
	t.Parallel()

	server := newTestServer(t, &fakeScheduler{submitErr: scheduler.ErrNoSeeds}, nil)
	req := httptest.NewRequest(http.MethodPost, "/v1/crawls", bytes.NewBufferString(`{"seeds":[]}`))
	rec := httptest.NewRecorder()

	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "seed")
}

func TestServer_GetRun(t *testing.T) {
	t.Parallel()

	runs := storagemem.NewRunStore()
	run := crawler.Run{ID: "run-9", Status: crawler.RunStatusRunning, Submitted: time.Unix(100, 0).UTC()}
	require.NoError(t, runs.CreateRun(context.Background(), run))

	server := newTestServer(t, &fakeScheduler{}, runs)
	req := httptest.NewRequest(http.MethodGet, "/v1/crawls/run-9", nil)
	rec := httptest.NewRecorder()

	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "run-9")
	require.Contains(t, rec.Body.String(), string(crawler.RunStatusRunning))
}

func TestServer_GetRun_NotFound(t *testing.T) {
	t.Parallel()

	server := newTestServer(t, &fakeScheduler{}, nil)
	req := httptest.NewRequest(http.MethodGet, "/v1/crawls/missing", nil)
	rec := httptest.NewRecorder()

	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_ListRuns(t *testing.T) {
	t.Parallel()

	runs := storagemem.NewRunStore()
	require.NoError(t, runs.CreateRun(context.Background(), crawler.Run{ID: "run-a", Submitted: time.Unix(1, 0)}))
	require.NoError(t, runs.CreateRun(context.Background(), crawler.Run{ID: "run-b", Submitted: time.Unix(2, 0)}))

	server := newTestServer(t, &fakeScheduler{}, runs)
	req := httptest.NewRequest(http.MethodGet, "/v1/crawls", nil)
	rec := httptest.NewRecorder()

	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var payload struct {
		Runs []crawler.Run `json:"runs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	require.Len(t, payload.Runs, 2)
}

func TestServer_CancelRun(t *testing.T) {
	t.Parallel()

	sched := &fakeScheduler{}
	server := newTestServer(t, sched, nil)
	req := httptest.NewRequest(http.MethodPost, "/v1/crawls/run-1/cancel", nil)
	rec := httptest.NewRecorder()

	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Equal(t, []string{"run-1"}, sched.canceled)
}

func TestServer_CancelRun_Unknown(t *testing.T) {
	t.Parallel()

	server := newTestServer(t, &fakeScheduler{cancelErr: scheduler.ErrUnknownRun}, nil)
	req := httptest.NewRequest(http.MethodPost, "/v1/crawls/run-x/cancel", nil)
	rec := httptest.NewRecorder()

	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_PacingSnapshot(t *testing.T) {
	t.Parallel()

	pacer := testPacer(t)
	_, err := pacer.RecordOutcome("https://example.org", pacing.OutcomeOverloaded)
	require.NoError(t, err)

	server := NewServer(&fakeScheduler{}, storagemem.NewRunStore(), pacer, zap.NewNop())
	req := httptest.NewRequest(http.MethodGet, "/v1/pacing", nil)
	rec := httptest.NewRecorder()

	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var payload struct {
		TrackedHosts int              `json:"tracked_hosts"`
		BaseDelayMs  int64            `json:"base_delay_ms"`
		Hosts        map[string]int64 `json:"hosts"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	require.Equal(t, 1, payload.TrackedHosts)
	require.Equal(t, int64(250), payload.BaseDelayMs)
	require.Equal(t, int64(500), payload.Hosts["https://example.org"])
}

func TestServer_PacingHost(t *testing.T) {
	t.Parallel()

	pacer := testPacer(t)
	server := NewServer(&fakeScheduler{}, storagemem.NewRunStore(), pacer, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/v1/pacing/host?url=https://example.org/some/page", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var payload struct {
		Host    string `json:"host"`
		DelayMs int64  `json:"delay_ms"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	require.Equal(t, "https://example.org", payload.Host)
	require.Equal(t, int64(250), payload.DelayMs)
}

func TestServer_PacingHost_BadRequest(t *testing.T) {
	t.Parallel()

	server := newTestServer(t, &fakeScheduler{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/pacing/host", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/v1/pacing/host?url=ftp://example.org", nil)
	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
