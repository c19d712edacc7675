package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/allocator/internal/modules/optimization"
)

func testRouter(t *testing.T) *chi.Mux {
	t.Helper()

	service := optimization.NewService(nil, zerolog.Nop())
	handler := NewHandler(service, zerolog.Nop())

	router := chi.NewRouter()
	handler.RegisterRoutes(router)
	return router
}

func postRun(t *testing.T, router *chi.Mux, req optimization.Request) *httptest.ResponseRecorder {
	t.Helper()

	body, err := json.Marshal(req)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("POST", "/optimizer/run", bytes.NewReader(body)))
	return rec
}

func validRequest() optimization.Request {
	return optimization.Request{
		Universe:        []string{"AAA", "BBB"},
		Optimizer:       optimization.OptimizerMinVariance,
		ExpectedReturns: map[string]float64{"AAA": 0.05, "BBB": 0.08},
		Covariance: [][]float64{
			{0.04, 0.01},
			{0.01, 0.09},
		},
	}
}

func TestHandleRun_Success(t *testing.T) {
	router := testRouter(t)

	rec := postRun(t, router, validRequest())
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var envelope struct {
		Data     optimization.Result    `json:"data"`
		Metadata map[string]interface{} `json:"metadata"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))

	sum := 0.0
	for _, w := range envelope.Data.Weights {
		sum += w
	}
	assert.InDelta(t, 1.0, sum, 1e-6)
	assert.NotEmpty(t, envelope.Metadata["request_id"])
}

func TestHandleRun_MalformedBody(t *testing.T) {
	router := testRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("POST", "/optimizer/run", bytes.NewReader([]byte("{not json"))))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleRun_InputErrorsMapToBadRequest(t *testing.T) {
	router := testRouter(t)

	// Missing expected return for BBB: asset mismatch, caller's fault.
	req := validRequest()
	req.ExpectedReturns = map[string]float64{"AAA": 0.05}

	rec := postRun(t, router, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
}

func TestHandleRun_InfeasibleBoundsMapToBadRequest(t *testing.T) {
	router := testRouter(t)

	req := validRequest()
	req.Config.UpperBound = 0.3 // two assets cannot reach full investment

	rec := postRun(t, router, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
}

func TestHandleStatus(t *testing.T) {
	router := testRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/optimizer/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var envelope struct {
		Data struct {
			Status     string   `json:"status"`
			Optimizers []string `json:"optimizers"`
			Models     []string `json:"models"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))

	assert.Equal(t, "ready", envelope.Data.Status)
	assert.Contains(t, envelope.Data.Optimizers, string(optimization.OptimizerBlackLitterman))
	assert.Contains(t, envelope.Data.Models, string(optimization.ModelCAPM))
}

func TestRegisterRoutes_UnknownPath(t *testing.T) {
	router := testRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/run", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
