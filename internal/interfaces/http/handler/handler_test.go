package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	syncapp "github.com/erp/crmsync/internal/application/integration"
	"github.com/erp/crmsync/internal/domain/integration"
	"github.com/erp/crmsync/internal/interfaces/http/dto"
)

// ---------------------------------------------------------------------------
// Mocks
// ---------------------------------------------------------------------------

type MockSyncRunService struct {
	mock.Mock
}

func (m *MockSyncRunService) Start(ctx context.Context, opts syncapp.RunOptions) (*integration.RunSummary, error) {
	args := m.Called(ctx, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*integration.RunSummary), args.Error(1)
}

func (m *MockSyncRunService) GetRun(ctx context.Context, id uuid.UUID) (*integration.RunSummary, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*integration.RunSummary), args.Error(1)
}

func (m *MockSyncRunService) ListRuns(ctx context.Context, limit int) ([]*integration.RunSummary, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*integration.RunSummary), args.Error(1)
}

type stubChecker map[string]error

func (s stubChecker) TestConnections(context.Context) map[string]error {
	return s
}

// ---------------------------------------------------------------------------
// Test Helpers
// ---------------------------------------------------------------------------

func newSyncRouter(svc SyncRunService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewSyncRunHandler(svc)
	r := gin.New()
	r.GET("/runs", h.ListRuns)
	r.GET("/runs/:id", h.GetRun)
	r.POST("/runs", h.TriggerRun)
	return r
}

func doRequest(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) dto.Response {
	t.Helper()
	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func finishedRun() *integration.RunSummary {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	run := integration.NewRunSummary(integration.RunTriggerAPI, start)
	phase := integration.NewPhaseSummary(integration.PhaseCustomers, start)
	phase.Record(integration.Created("101"))
	phase.Finish(start.Add(time.Minute))
	run.AddPhase(phase)
	run.Finish(start.Add(2 * time.Minute))
	return run
}

// ---------------------------------------------------------------------------
// Sync run handler
// ---------------------------------------------------------------------------

func TestSyncRunHandler_TriggerRun_DefaultsToAllPhases(t *testing.T) {
	svc := new(MockSyncRunService)
	started := integration.NewRunSummary(integration.RunTriggerAPI, time.Now())
	svc.On("Start", mock.Anything, syncapp.DefaultRunOptions(integration.RunTriggerAPI)).Return(started, nil)

	w := doRequest(newSyncRouter(svc), http.MethodPost, "/runs", "")

	assert.Equal(t, http.StatusAccepted, w.Code)
	resp := decode(t, w)
	assert.True(t, resp.Success)
	data := resp.Data.(map[string]any)
	assert.Equal(t, started.ID.String(), data["id"])
	assert.Equal(t, string(integration.SyncStatusRunning), data["status"])
	svc.AssertExpectations(t)
}

func TestSyncRunHandler_TriggerRun_SelectsPhases(t *testing.T) {
	svc := new(MockSyncRunService)
	svc.On("Start", mock.Anything, mock.MatchedBy(func(o syncapp.RunOptions) bool {
		return !o.Customers && !o.Quotes && o.Orders && o.OrderFilter == "OrderNum gt 100"
	})).Return(integration.NewRunSummary(integration.RunTriggerAPI, time.Now()), nil)

	body := `{"customers":false,"quotes":false,"order_filter":"OrderNum gt 100"}`
	w := doRequest(newSyncRouter(svc), http.MethodPost, "/runs", body)

	assert.Equal(t, http.StatusAccepted, w.Code)
	svc.AssertExpectations(t)
}

func TestSyncRunHandler_TriggerRun_Errors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		startErr   error
		wantStatus int
		wantCode   string
	}{
		{"run in progress", "", integration.ErrRunInProgress, http.StatusConflict, dto.ErrCodeRunInProgress},
		{"lock backend down", "", errors.New("redis: connection refused"), http.StatusInternalServerError, dto.ErrCodeInternal},
		{"malformed json", "{", nil, http.StatusBadRequest, dto.ErrCodeInvalidJSON},
		{"no phases", `{"customers":false,"quotes":false,"orders":false}`, nil, http.StatusBadRequest, dto.ErrCodeValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockSyncRunService)
			if tt.startErr != nil {
				svc.On("Start", mock.Anything, mock.Anything).Return(nil, tt.startErr)
			}

			w := doRequest(newSyncRouter(svc), http.MethodPost, "/runs", tt.body)

			assert.Equal(t, tt.wantStatus, w.Code)
			resp := decode(t, w)
			assert.False(t, resp.Success)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.wantCode, resp.Error.Code)
			assert.NotContains(t, resp.Error.Message, "redis")
			svc.AssertExpectations(t)
		})
	}
}

func TestSyncRunHandler_GetRun(t *testing.T) {
	run := finishedRun()

	t.Run("found", func(t *testing.T) {
		svc := new(MockSyncRunService)
		svc.On("GetRun", mock.Anything, run.ID).Return(run, nil)

		w := doRequest(newSyncRouter(svc), http.MethodGet, "/runs/"+run.ID.String(), "")

		assert.Equal(t, http.StatusOK, w.Code)
		data := decode(t, w).Data.(map[string]any)
		assert.Equal(t, string(integration.SyncStatusSuccess), data["status"])
		assert.EqualValues(t, 120000, data["duration_ms"])
		phases := data["phases"].([]any)
		require.Len(t, phases, 1)
		assert.EqualValues(t, 1, phases[0].(map[string]any)["created"])
	})

	t.Run("not found", func(t *testing.T) {
		svc := new(MockSyncRunService)
		svc.On("GetRun", mock.Anything, mock.Anything).Return(nil, integration.ErrSyncRunNotFound)

		w := doRequest(newSyncRouter(svc), http.MethodGet, "/runs/"+uuid.NewString(), "")

		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, dto.ErrCodeNotFound, decode(t, w).Error.Code)
	})

	t.Run("invalid id", func(t *testing.T) {
		svc := new(MockSyncRunService)
		w := doRequest(newSyncRouter(svc), http.MethodGet, "/runs/not-a-uuid", "")

		assert.Equal(t, http.StatusBadRequest, w.Code)
		svc.AssertNotCalled(t, "GetRun", mock.Anything, mock.Anything)
	})
}

func TestSyncRunHandler_ListRuns(t *testing.T) {
	t.Run("default limit", func(t *testing.T) {
		svc := new(MockSyncRunService)
		svc.On("ListRuns", mock.Anything, defaultListLimit).Return([]*integration.RunSummary{finishedRun()}, nil)

		w := doRequest(newSyncRouter(svc), http.MethodGet, "/runs", "")

		assert.Equal(t, http.StatusOK, w.Code)
		resp := decode(t, w)
		require.NotNil(t, resp.Meta)
		assert.Equal(t, 1, resp.Meta.Count)
		assert.Equal(t, defaultListLimit, resp.Meta.Limit)
	})

	t.Run("explicit limit", func(t *testing.T) {
		svc := new(MockSyncRunService)
		svc.On("ListRuns", mock.Anything, 5).Return([]*integration.RunSummary{}, nil)

		w := doRequest(newSyncRouter(svc), http.MethodGet, "/runs?limit=5", "")

		assert.Equal(t, http.StatusOK, w.Code)
		svc.AssertExpectations(t)
	})

	t.Run("limit out of range", func(t *testing.T) {
		svc := new(MockSyncRunService)
		w := doRequest(newSyncRouter(svc), http.MethodGet, "/runs?limit=1000", "")

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, dto.ErrCodeValidation, decode(t, w).Error.Code)
	})
}

// ---------------------------------------------------------------------------
// Health handler
// ---------------------------------------------------------------------------

func TestHealthHandler_Health(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewHealthHandler(nil, "1.2.3")

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/health", nil)
	h.Health(c)

	assert.Equal(t, http.StatusOK, w.Code)
	data := decode(t, w).Data.(map[string]any)
	assert.Equal(t, "healthy", data["status"])
	assert.Equal(t, "1.2.3", data["version"])
	assert.NotEmpty(t, data["go_version"])
	assert.NotContains(t, data, "last_scheduled")
}

func TestHealthHandler_HealthWithSchedule(t *testing.T) {
	gin.SetMode(gin.TestMode)
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	calls := 0
	h := NewHealthHandler(nil, "dev").WithSchedule(func() (ScheduledTick, bool) {
		calls++
		if calls == 1 {
			return ScheduledTick{}, false
		}
		return ScheduledTick{At: at, RunID: "r-1", Status: "partial"}, true
	})

	get := func() map[string]any {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest(http.MethodGet, "/health", nil)
		h.Health(c)
		require.Equal(t, http.StatusOK, w.Code)
		return decode(t, w).Data.(map[string]any)
	}

	assert.NotContains(t, get(), "last_scheduled")

	tick := get()["last_scheduled"].(map[string]any)
	assert.Equal(t, "r-1", tick["run_id"])
	assert.Equal(t, "partial", tick["status"])
	assert.Equal(t, "2024-03-01T12:00:00Z", tick["at"])
	assert.NotContains(t, tick, "skipped")
}

func TestHealthHandler_Ready(t *testing.T) {
	tests := []struct {
		name       string
		checker    ConnectionChecker
		wantStatus int
		wantState  string
	}{
		{"no checker", nil, http.StatusOK, "ready"},
		{"all reachable", stubChecker{"epicor": nil, "hubspot": nil}, http.StatusOK, "ready"},
		{"crm down", stubChecker{"epicor": nil, "hubspot": errors.New("401 unauthorized")}, http.StatusServiceUnavailable, "unavailable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gin.SetMode(gin.TestMode)
			h := NewHealthHandler(tt.checker, "dev")

			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodGet, "/ready", nil)
			h.Ready(c)

			assert.Equal(t, tt.wantStatus, w.Code)
			data := decode(t, w).Data.(map[string]any)
			assert.Equal(t, tt.wantState, data["status"])
		})
	}

	t.Run("systems are sorted by name", func(t *testing.T) {
		gin.SetMode(gin.TestMode)
		h := NewHealthHandler(stubChecker{"hubspot": nil, "epicor": errors.New("timeout")}, "dev")

		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest(http.MethodGet, "/ready", nil)
		h.Ready(c)

		systems := decode(t, w).Data.(map[string]any)["systems"].([]any)
		require.Len(t, systems, 2)
		first := systems[0].(map[string]any)
		assert.Equal(t, "epicor", first["name"])
		assert.Equal(t, false, first["ok"])
		assert.Equal(t, "timeout", first["error"])
	})
}
