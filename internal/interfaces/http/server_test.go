package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/evalharness/evalharness/internal/domain/entity"
	"github.com/evalharness/evalharness/internal/domain/service"
	"github.com/evalharness/evalharness/internal/infrastructure/monitoring"
)

type fakeSummaryStore struct {
	tree *entity.SummaryTree
	err  error
}

func (s fakeSummaryStore) Write(entity.TestRecord) error               { return nil }
func (s fakeSummaryStore) WriteBatch([]entity.TestRecord) error        { return nil }
func (s fakeSummaryStore) Flush() error                                { return nil }
func (s fakeSummaryStore) Clear(string) error                          { return nil }
func (s fakeSummaryStore) QuerySummary(service.SummaryFilter) (*entity.SummaryTree, error) {
	return s.tree, s.err
}

func newTestServer(t *testing.T, store service.ResultStore, monitor *monitoring.Monitor) *Server {
	t.Helper()
	return NewServer(Config{Addr: "127.0.0.1:0", Mode: "debug"}, store, monitor, zap.NewNop())
}

func TestServer_HealthzReturnsOK(t *testing.T) {
	s := newTestServer(t, fakeSummaryStore{tree: entity.NewSummaryTree()}, nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	s.server.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d, want 200", rec.Code)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if body["status"] != "ok" {
		t.Fatalf("got status field %v, want ok", body["status"])
	}
}

func TestServer_SummaryReturnsTreeFromStore(t *testing.T) {
	tree := entity.NewSummaryTree()
	tree.Accumulate(entity.TestRecord{
		ModelID: "model-a",
		Result:  entity.TestResult{SuccessLevel: entity.FullSuccess},
	})
	s := newTestServer(t, fakeSummaryStore{tree: tree}, nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/summary", nil)
	s.server.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d, want 200", rec.Code)
	}
	var got entity.SummaryTree
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if _, ok := got.Models["model-a"]; !ok {
		t.Fatalf("expected model-a in the summary response, got %+v", got.Models)
	}
}

func TestServer_SummaryErrorFromStorePropagatesAs500(t *testing.T) {
	s := newTestServer(t, fakeSummaryStore{err: errBoom{}}, nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/summary", nil)
	s.server.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("got status %d, want 500", rec.Code)
	}
}

func TestServer_MetricsEndpointOnlyMountedWhenMonitorProvided(t *testing.T) {
	withoutMonitor := newTestServer(t, fakeSummaryStore{tree: entity.NewSummaryTree()}, nil)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	withoutMonitor.server.Handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("got status %d, want 404 when no monitor is wired", rec.Code)
	}

	withMonitor := newTestServer(t, fakeSummaryStore{tree: entity.NewSummaryTree()}, monitoring.NewMonitor(zap.NewNop()))
	rec2 := httptest.NewRecorder()
	req2 := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	withMonitor.server.Handler.ServeHTTP(rec2, req2)
	if rec2.Code != http.StatusOK {
		t.Fatalf("got status %d, want 200 when a monitor is wired", rec2.Code)
	}
}

type errBoom struct{}

func (errBoom) Error() string { return "boom" }
