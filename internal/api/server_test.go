package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/storepulse/internal/api"
	"github.com/jonesrussell/storepulse/internal/config"
	"github.com/jonesrussell/storepulse/internal/database"
	"github.com/jonesrussell/storepulse/internal/domain"
	"github.com/jonesrussell/storepulse/internal/logger"
	"github.com/jonesrussell/storepulse/internal/orchestrator"
)

type fakeBatchService struct {
	mu       sync.Mutex
	startErr error
	ran      []string
	ranCh    chan string
}

func (f *fakeBatchService) StartBatch(ctx context.Context, siteID string) (*domain.Job, error) {
	if f.startErr != nil {
		return nil, f.startErr
	}
	return &domain.Job{ID: "job-1", SiteID: siteID, BatchID: "batch-1", Status: domain.JobStatusQueued}, nil
}

func (f *fakeBatchService) RunBatch(ctx context.Context, siteID, jobID string) error {
	f.mu.Lock()
	f.ran = append(f.ran, jobID)
	f.mu.Unlock()
	if f.ranCh != nil {
		f.ranCh <- jobID
	}
	return nil
}

type fakeStatusService struct {
	statuses []domain.SiteStatus
	err      error
}

func (f *fakeStatusService) ActiveStatus(ctx context.Context) ([]domain.SiteStatus, error) {
	return f.statuses, f.err
}

func newTestServer(batches api.BatchService, status api.StatusService, budget int) *api.Server {
	return api.NewServer(api.Params{
		Config: &config.ServerConfig{
			Address:      ":0",
			ReadTimeout:  time.Second,
			WriteTimeout: time.Second,
			IdleTimeout:  time.Second,
			StatusBudget: budget,
		},
		Logger:  logger.NewNoOp(),
		Batches: batches,
		Status:  status,
	})
}

func TestHealth(t *testing.T) {
	server := newTestServer(&fakeBatchService{}, &fakeStatusService{}, 0)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	server.Engine().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestCreateBatch_Accepted(t *testing.T) {
	batches := &fakeBatchService{ranCh: make(chan string, 1)}
	server := newTestServer(batches, &fakeStatusService{}, 0)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/sites/site-1/batches", nil)
	server.Engine().ServeHTTP(w, req)

	assert.Equal(t, http.StatusAccepted, w.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "job-1", body["job_id"])

	// The batch runs in the background after the response.
	select {
	case jobID := <-batches.ranCh:
		assert.Equal(t, "job-1", jobID)
	case <-time.After(time.Second):
		t.Fatal("batch was not executed")
	}
}

func TestCreateBatch_Conflict(t *testing.T) {
	batches := &fakeBatchService{startErr: orchestrator.ErrBatchInProgress}
	server := newTestServer(batches, &fakeStatusService{}, 0)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/sites/site-1/batches", nil)
	server.Engine().ServeHTTP(w, req)

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Empty(t, batches.ran)
}

func TestCreateBatch_SiteNotFound(t *testing.T) {
	batches := &fakeBatchService{startErr: database.ErrSiteNotFound}
	server := newTestServer(batches, &fakeStatusService{}, 0)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/sites/missing/batches", nil)
	server.Engine().ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateBatch_InternalError(t *testing.T) {
	batches := &fakeBatchService{startErr: errors.New("db down")}
	server := newTestServer(batches, &fakeStatusService{}, 0)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/sites/site-1/batches", nil)
	server.Engine().ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestGetStatus(t *testing.T) {
	status := &fakeStatusService{statuses: []domain.SiteStatus{
		{SiteID: "site-1", SiteName: "Shop", Status: domain.SiteActivityTesting, Progress: 50, JobCount: 1},
		{SiteID: "site-2", SiteName: "Other", Status: domain.SiteActivityIdle},
	}}
	server := newTestServer(&fakeBatchService{}, status, 0)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
	server.Engine().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Sites []domain.SiteStatus `json:"sites"`
		Count int                 `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Count)
	assert.Equal(t, domain.SiteActivityTesting, body.Sites[0].Status)
}

func TestGetStatus_Error(t *testing.T) {
	server := newTestServer(&fakeBatchService{}, &fakeStatusService{err: errors.New("db down")}, 0)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
	server.Engine().ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestGetStatus_BudgetExceeded(t *testing.T) {
	server := newTestServer(&fakeBatchService{}, &fakeStatusService{}, 2)

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
		server.Engine().ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code)
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
	server.Engine().ServeHTTP(w, req)

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))
}

func TestStatusBudget_ZeroDisablesLimiting(t *testing.T) {
	server := newTestServer(&fakeBatchService{}, &fakeStatusService{}, 0)

	for i := 0; i < 100; i++ {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
		server.Engine().ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code)
	}
}
