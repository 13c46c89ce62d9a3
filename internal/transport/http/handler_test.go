package httptransport_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"content-agent-service/internal/config"
	"content-agent-service/internal/entity"
	"content-agent-service/internal/repository/memory"
	"content-agent-service/internal/service"
	httptransport "content-agent-service/internal/transport/http"
)

// ---- fakes ----

type dispatchStub struct{ ids []uuid.UUID }

func (d *dispatchStub) Dispatch(_ context.Context, id uuid.UUID) error {
	d.ids = append(d.ids, id)
	return nil
}

// ---- helpers ----

var refs = []entity.AgentRef{
	{ID: "brief-analyst", Name: "Brief Analyst"},
	{ID: "editor", Name: "Editor"},
}

type env struct {
	repo     *memory.JobRepository
	tracker  *service.Tracker
	dispatch *dispatchStub
	router   http.Handler
}

func newEnv(stream config.Stream) *env {
	repo := memory.NewJobRepository()
	tr := service.NewTracker(repo, nil, nil, nil)
	d := &dispatchStub{}
	svc := service.NewJobService(repo, d, tr, refs, nil, nil)
	h := httptransport.NewHandler(svc, nil, stream, nil, nil)
	return &env{
		repo:     repo,
		tracker:  tr,
		dispatch: d,
		router:   httptransport.Routes(h, http.NotFoundHandler()),
	}
}

func defaultEnv() *env {
	return newEnv(config.Stream{Interval: 10 * time.Millisecond, MaxDuration: 2 * time.Second})
}

func (e *env) do(method, path, body string, hdr ...string) *httptest.ResponseRecorder {
	var rd *bytes.Buffer
	if body != "" {
		rd = bytes.NewBufferString(body)
	} else {
		rd = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, rd)
	for i := 0; i+1 < len(hdr); i += 2 {
		req.Header.Set(hdr[i], hdr[i+1])
	}
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func (e *env) seed(t *testing.T) uuid.UUID {
	t.Helper()
	j := entity.NewJob(uuid.New(), json.RawMessage(`{"topic":"t"}`), refs, time.Now().UTC())
	if err := e.repo.Create(context.Background(), j); err != nil {
		t.Fatalf("Create: %v", err)
	}
	return j.ID
}

func (e *env) complete(t *testing.T, id uuid.UUID, result string) {
	t.Helper()
	ctx := context.Background()
	if _, err := e.tracker.Start(ctx, id); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := e.tracker.Complete(ctx, id, json.RawMessage(result)); err != nil {
		t.Fatalf("Complete: %v", err)
	}
}

func msgOf(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var e struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &e); err != nil {
		t.Fatalf("invalid error body: %v, body=%s", err, rr.Body.String())
	}
	return e.Message
}

// ---- tests ----

func TestHTTP_CreateJob_202_ThenQueued(t *testing.T) {
	e := defaultEnv()

	rr := e.do(http.MethodPost, "/jobs", `{"topic":"spring sale","tone":"playful"}`, "Content-Type", "application/json")
	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d, body=%s", rr.Code, rr.Body.String())
	}
	var resp struct {
		JobID string `json:"jobId"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json response: %v, body=%s", err, rr.Body.String())
	}
	id, err := uuid.Parse(resp.JobID)
	if err != nil {
		t.Fatalf("jobId is not a uuid: %q", resp.JobID)
	}
	if len(e.dispatch.ids) != 1 || e.dispatch.ids[0] != id {
		t.Fatalf("expected dispatch of %s, got %v", id, e.dispatch.ids)
	}

	rr2 := e.do(http.MethodGet, "/jobs/"+id.String(), "")
	if rr2.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d, body=%s", rr2.Code, rr2.Body.String())
	}
	var got entity.Job
	if err := json.Unmarshal(rr2.Body.Bytes(), &got); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if got.Status != entity.StatusQueued || got.Progress != 0 || len(got.Agents) != 2 {
		t.Fatalf("unexpected job %+v", got)
	}
	if !strings.Contains(string(got.Request), "playful") {
		t.Fatalf("request not kept: %s", got.Request)
	}
}

func TestHTTP_Generate_Alias(t *testing.T) {
	e := defaultEnv()
	rr := e.do(http.MethodPost, "/api/generate", `{"prompt":"write a tagline"}`)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d, body=%s", rr.Code, rr.Body.String())
	}
}

func TestHTTP_CreateJob_400(t *testing.T) {
	e := defaultEnv()
	for _, body := range []string{`{`, `[1,2]`, `{"tone":"dry"}`} {
		rr := e.do(http.MethodPost, "/jobs", body)
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", body, rr.Code)
		}
		if msgOf(t, rr) == "" {
			t.Fatalf("%s: expected message", body)
		}
	}
	if len(e.dispatch.ids) != 0 {
		t.Fatalf("expected no dispatch")
	}
}

func TestHTTP_GetJob_400_404(t *testing.T) {
	e := defaultEnv()
	if rr := e.do(http.MethodGet, "/jobs/not-a-uuid", ""); rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	rr := e.do(http.MethodGet, "/jobs/"+uuid.NewString(), "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
	if msgOf(t, rr) != "job not found" {
		t.Fatalf("unexpected message %q", msgOf(t, rr))
	}
}

func TestHTTP_GetJobResult_409_WhenNotCompleted(t *testing.T) {
	e := defaultEnv()
	id := e.seed(t)

	rr := e.do(http.MethodGet, "/jobs/"+id.String()+"/result", "")
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d, body=%s", rr.Code, rr.Body.String())
	}
}

func TestHTTP_GetJobResult_200_ReturnsRawJSON(t *testing.T) {
	e := defaultEnv()
	id := e.seed(t)
	e.complete(t, id, `{"content":{"headline":"hi"},"steps":{}}`)

	rr := e.do(http.MethodGet, "/jobs/"+id.String()+"/result", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d, body=%s", rr.Code, rr.Body.String())
	}
	if got := strings.TrimSpace(rr.Body.String()); got != `{"content":{"headline":"hi"},"steps":{}}` {
		t.Fatalf("expected raw result, got %s", got)
	}
}

func TestHTTP_ListJobs(t *testing.T) {
	e := defaultEnv()
	for i := 0; i < 3; i++ {
		if rr := e.do(http.MethodPost, "/jobs", `{"topic":"t"}`); rr.Code != http.StatusAccepted {
			t.Fatalf("create: %d", rr.Code)
		}
	}

	rr := e.do(http.MethodGet, "/jobs?limit=2", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var resp struct {
		Jobs []entity.Job `json:"jobs"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if len(resp.Jobs) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(resp.Jobs))
	}
	if resp.Jobs[0].CreatedAt.Before(resp.Jobs[1].CreatedAt) {
		t.Fatalf("expected newest first")
	}

	if rr := e.do(http.MethodGet, "/jobs?limit=zero", ""); rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad limit, got %d", rr.Code)
	}
}

func TestHTTP_ListJobs_EmptyIsArray(t *testing.T) {
	e := defaultEnv()
	rr := e.do(http.MethodGet, "/jobs", "")
	if got := strings.TrimSpace(rr.Body.String()); got != `{"jobs":[]}` {
		t.Fatalf("unexpected body %s", got)
	}
}

func TestHTTP_DeleteJob(t *testing.T) {
	e := defaultEnv()
	id := e.seed(t)

	if rr := e.do(http.MethodDelete, "/jobs/"+id.String(), ""); rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
	if rr := e.do(http.MethodDelete, "/jobs/"+id.String(), ""); rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestHTTP_Events_TerminalJobClosesStream(t *testing.T) {
	e := defaultEnv()
	id := e.seed(t)
	e.complete(t, id, `{"content":{}}`)

	rr := e.do(http.MethodGet, "/jobs/"+id.String()+"/events", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}
	body := rr.Body.String()
	if strings.Count(body, "event: job\n") != 1 {
		t.Fatalf("expected one job event, body=%s", body)
	}
	if !strings.Contains(body, `event: done`+"\n"+`data: {"status":"completed"}`) {
		t.Fatalf("expected done event, body=%s", body)
	}
}

func TestHTTP_Events_FollowsProgress(t *testing.T) {
	e := defaultEnv()
	id := e.seed(t)
	ctx := context.Background()
	if _, err := e.tracker.Start(ctx, id); err != nil {
		t.Fatalf("Start: %v", err)
	}

	go func() {
		time.Sleep(50 * time.Millisecond)
		_ = e.tracker.Complete(ctx, id, json.RawMessage(`{"content":{}}`))
	}()

	rr := e.do(http.MethodGet, "/jobs/"+id.String()+"?stream=1", "")
	body := rr.Body.String()

	running := strings.Index(body, `"status":"running"`)
	completed := strings.Index(body, `"status":"completed","progress":100`)
	if running < 0 || completed < 0 || running > completed {
		t.Fatalf("expected running then completed, body=%s", body)
	}
	if !strings.Contains(body, ": keepalive") {
		t.Fatalf("expected keepalive while unchanged, body=%s", body)
	}
	if !strings.HasSuffix(body, "event: done\ndata: {\"status\":\"completed\"}\n\n") {
		t.Fatalf("expected stream to end with done, body=%s", body)
	}
}

func TestHTTP_GetJob_AcceptEventStream(t *testing.T) {
	e := defaultEnv()
	id := e.seed(t)
	e.complete(t, id, `{}`)

	rr := e.do(http.MethodGet, "/jobs/"+id.String(), "", "Accept", "text/event-stream")
	if !strings.Contains(rr.Body.String(), "event: done") {
		t.Fatalf("expected event stream, body=%s", rr.Body.String())
	}
}

func TestHTTP_Events_MaxDuration(t *testing.T) {
	e := newEnv(config.Stream{Interval: 10 * time.Millisecond, MaxDuration: 60 * time.Millisecond})
	id := e.seed(t)

	rr := e.do(http.MethodGet, "/jobs/"+id.String()+"/events", "")
	body := rr.Body.String()
	if !strings.Contains(body, "event: timeout") {
		t.Fatalf("expected timeout event, body=%s", body)
	}
	if strings.Contains(body, "event: done") {
		t.Fatalf("unexpected done for queued job, body=%s", body)
	}
}

func TestHTTP_Events_404(t *testing.T) {
	e := defaultEnv()
	if rr := e.do(http.MethodGet, "/jobs/"+uuid.NewString()+"/events", ""); rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestHTTP_Health(t *testing.T) {
	e := defaultEnv()
	rr := e.do(http.MethodGet, "/health", "")
	if rr.Code != http.StatusOK || rr.Body.String() != "ok" {
		t.Fatalf("unexpected health %d %q", rr.Code, rr.Body.String())
	}
}
