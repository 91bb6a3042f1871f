package controller

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rancher-error-digest/internal/dto"
	"rancher-error-digest/internal/metrics"
	"rancher-error-digest/internal/model"
	"rancher-error-digest/internal/service"
	"rancher-error-digest/internal/store"
)

type stubDigestService struct {
	digest model.Digest
	err    error
	calls  int
}

func (s *stubDigestService) Run(ctx context.Context) (model.Digest, error) {
	s.calls++
	return s.digest, s.err
}

type envelope struct {
	Message string              `json:"message"`
	Data    *dto.DigestResponse `json:"data"`
}

func sampleDigest() model.Digest {
	return model.Digest{
		RunID:         "run-1",
		StartedAt:     time.Date(2024, time.May, 1, 10, 10, 0, 0, time.UTC),
		WindowMinutes: 60,
		Title:         "Rancher Errors in the Last 60 Minutes",
		Lines: []model.ReportLine{
			{Timestamp: time.Date(2024, time.May, 1, 10, 0, 0, 0, time.UTC), Text: "Error: 2024-05-01 12:00:00 --> disk full (2 occurrences)"},
			{Timestamp: time.Date(2024, time.May, 1, 10, 5, 0, 0, time.UTC), Text: "Error: 2024-05-01 12:05:00 --> connection refused"},
		},
		Stats: model.RunStats{Sources: 2, Groups: 2, Errors: 3},
	}
}

func setupRouter(svc service.DigestService, digestStore store.DigestStore) (*gin.Engine, *prometheus.Registry) {
	gin.SetMode(gin.TestMode)
	reg := prometheus.NewRegistry()
	router := gin.New()
	RegisterDigestRoutes(router, NewDigestController(svc, digestStore, reg))
	return router, reg
}

func doRequest(t *testing.T, router *gin.Engine, method, target string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var body envelope
	if w.Header().Get("Content-Type") == "application/json; charset=utf-8" {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	}
	return w, body
}

func TestGetLatestDigest_NoDigest(t *testing.T) {
	router, _ := setupRouter(&stubDigestService{}, store.NewInMemoryDigestStore())

	w, _ := doRequest(t, router, http.MethodGet, "/api/v1/digest/latest")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetLatestDigest(t *testing.T) {
	digestStore := store.NewInMemoryDigestStore()
	require.NoError(t, digestStore.Save(context.Background(), sampleDigest()))
	router, _ := setupRouter(&stubDigestService{}, digestStore)

	w, body := doRequest(t, router, http.MethodGet, "/api/v1/digest/latest")
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, body.Data)
	assert.Equal(t, "run-1", body.Data.RunID)
	require.Len(t, body.Data.Lines, 2)
	assert.Equal(t, "Error: 2024-05-01 12:00:00 --> disk full (2 occurrences)", body.Data.Lines[0].Text)
	assert.Equal(t, int64(1714557600000), body.Data.Lines[0].Timestamp)
}

func TestGetLatestDigest_Since(t *testing.T) {
	digestStore := store.NewInMemoryDigestStore()
	require.NoError(t, digestStore.Save(context.Background(), sampleDigest()))
	router, _ := setupRouter(&stubDigestService{}, digestStore)

	w, body := doRequest(t, router, http.MethodGet, "/api/v1/digest/latest?since=2024-05-01T10:01:00Z")
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, body.Data.Lines, 1)
	assert.Equal(t, "Error: 2024-05-01 12:05:00 --> connection refused", body.Data.Lines[0].Text)

	w, _ = doRequest(t, router, http.MethodGet, "/api/v1/digest/latest?since=yesterday")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTriggerRun(t *testing.T) {
	tests := []struct {
		name         string
		err          error
		expectedCode int
	}{
		{"Success", nil, http.StatusOK},
		{"Already Running", service.ErrRunInProgress, http.StatusConflict},
		{"Fetch Failure", errors.New("failed to fetch logs: forbidden"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &stubDigestService{digest: sampleDigest(), err: tt.err}
			router, _ := setupRouter(svc, store.NewInMemoryDigestStore())

			w, body := doRequest(t, router, http.MethodPost, "/api/v1/digest/run")
			assert.Equal(t, tt.expectedCode, w.Code)
			assert.Equal(t, 1, svc.calls)
			if tt.err == nil {
				require.NotNil(t, body.Data)
				assert.Len(t, body.Data.Lines, 2)
			}
		})
	}
}

func TestHealthAndMetrics(t *testing.T) {
	router, reg := setupRouter(&stubDigestService{}, store.NewInMemoryDigestStore())
	recorder := metrics.NewPrometheusRecorder(reg)
	recorder.ObserveRun(model.RunStats{LinesScanned: 5}, time.Second, nil)

	w, body := doRequest(t, router, http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", body.Message)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "digest_runs_total")
	assert.Contains(t, rec.Body.String(), "digest_lines_scanned_total 5")
}
