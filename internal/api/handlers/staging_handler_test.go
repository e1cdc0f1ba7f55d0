package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/rspy/rs-staging/internal/catalog"
	"github.com/rspy/rs-staging/internal/config"
	"github.com/rspy/rs-staging/internal/jobs"
	"github.com/rspy/rs-staging/internal/staging"
)

type stubCatalog struct {
	mu         sync.Mutex
	searchErr  error
	lastCookie string
}

func (s *stubCatalog) SearchByIDs(_ context.Context, _ string, ids []string, cookie string) (*catalog.SearchResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastCookie = cookie
	if s.searchErr != nil {
		return nil, s.searchErr
	}
	refs := make([]catalog.FeatureRef, 0, len(ids))
	for _, id := range ids {
		refs = append(refs, catalog.FeatureRef{ID: id})
	}
	resp := &catalog.SearchResponse{Features: &refs}
	resp.Context.Returned = len(ids)
	return resp, nil
}

func (s *stubCatalog) PublishItem(context.Context, string, any, string) error { return nil }

func (s *stubCatalog) DeleteItem(context.Context, string, string, string) error { return nil }

func newTestRouter(cat *stubCatalog) (*gin.Engine, *jobs.Tracker) {
	gin.SetMode(gin.TestMode)
	tracker := jobs.NewTracker(jobs.NewMemoryStore())
	handler := NewStagingHandler(tracker, cat, staging.Settings{Bucket: "rs-catalog"}, config.ClusterConfig{})

	router := gin.New()
	router.POST("/staging", handler.Execute)
	router.GET("/staging/jobs", handler.ListJobs)
	router.GET("/staging/jobs/:id", handler.GetJob)
	return router, tracker
}

func TestExecuteRequiresCollection(t *testing.T) {
	router, _ := newTestRouter(&stubCatalog{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/staging", strings.NewReader(`{"type":"FeatureCollection","features":[]}`))
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestExecuteRejectsMalformedBody(t *testing.T) {
	router, _ := newTestRouter(&stubCatalog{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/staging?collection=sentinel-1", strings.NewReader(`{"features": "nope"`))
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestExecuteEmptyItems(t *testing.T) {
	router, tracker := newTestRouter(&stubCatalog{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/staging?collection=sentinel-1", strings.NewReader(`{"type":"FeatureCollection","features":[]}`))
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var receipt staging.Receipt
	if err := json.Unmarshal(rec.Body.Bytes(), &receipt); err != nil {
		t.Fatalf("failed to decode receipt: %v", err)
	}
	if receipt.Finished == "" || receipt.Started != "" || receipt.Failed != "" {
		t.Fatalf("receipt = %+v, want only finished set", receipt)
	}

	job, err := tracker.Get(context.Background(), receipt.Finished)
	if err != nil {
		t.Fatalf("job record was not created: %v", err)
	}
	if job.Status != jobs.StatusFinished {
		t.Fatalf("status = %q", job.Status)
	}
}

func TestExecuteForwardsCookieAndReportsSearchFailure(t *testing.T) {
	cat := &stubCatalog{searchErr: errors.New("catalog offline")}
	router, tracker := newTestRouter(cat)

	body := `{"type":"FeatureCollection","features":[{"type":"Feature","id":"S1A_0001","assets":{"data":{"href":"https://station/f1","title":"f1.raw"}}}]}`
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/staging?collection=sentinel-1", strings.NewReader(body))
	req.Header.Set("Cookie", "session=abc")
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var receipt staging.Receipt
	if err := json.Unmarshal(rec.Body.Bytes(), &receipt); err != nil {
		t.Fatalf("failed to decode receipt: %v", err)
	}
	if receipt.Failed == "" {
		t.Fatalf("receipt = %+v, want failed set", receipt)
	}

	cat.mu.Lock()
	cookie := cat.lastCookie
	cat.mu.Unlock()
	if cookie != "session=abc" {
		t.Fatalf("forwarded cookie = %q", cookie)
	}

	job, err := tracker.Get(context.Background(), receipt.Failed)
	if err != nil {
		t.Fatalf("job record was not created: %v", err)
	}
	if job.Status != jobs.StatusFailed {
		t.Fatalf("status = %q", job.Status)
	}
}

func TestGetJob(t *testing.T) {
	router, tracker := newTestRouter(&stubCatalog{})
	if err := tracker.Create(context.Background(), jobs.NewJob("job-x")); err != nil {
		t.Fatalf("failed to seed job: %v", err)
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/staging/jobs/job-x", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var job jobs.Job
	if err := json.Unmarshal(rec.Body.Bytes(), &job); err != nil {
		t.Fatalf("failed to decode job: %v", err)
	}
	if job.ID != "job-x" || job.Status != jobs.StatusCreated {
		t.Fatalf("job = %+v", job)
	}
}

func TestGetJobNotFound(t *testing.T) {
	router, _ := newTestRouter(&stubCatalog{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/staging/jobs/nope", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestListJobs(t *testing.T) {
	router, tracker := newTestRouter(&stubCatalog{})
	for _, id := range []string{"job-a", "job-b"} {
		if err := tracker.Create(context.Background(), jobs.NewJob(id)); err != nil {
			t.Fatalf("failed to seed job %s: %v", id, err)
		}
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/staging/jobs", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var payload struct {
		Jobs []jobs.Job `json:"jobs"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode listing: %v", err)
	}
	if len(payload.Jobs) != 2 {
		t.Fatalf("jobs = %d, want 2", len(payload.Jobs))
	}
}
