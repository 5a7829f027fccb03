package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	syncapp "github.com/erp/crmsync/internal/application/integration"
	"github.com/erp/crmsync/internal/domain/integration"
	"github.com/erp/crmsync/internal/infrastructure/logger"
	"github.com/erp/crmsync/internal/interfaces/http/handler"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeSyncService struct {
	runs []*integration.RunSummary
}

func (f *fakeSyncService) Start(_ context.Context, opts syncapp.RunOptions) (*integration.RunSummary, error) {
	run := integration.NewRunSummary(opts.Trigger, time.Now())
	f.runs = append(f.runs, run)
	return run, nil
}

func (f *fakeSyncService) GetRun(_ context.Context, id uuid.UUID) (*integration.RunSummary, error) {
	for _, r := range f.runs {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, integration.ErrSyncRunNotFound
}

func (f *fakeSyncService) ListRuns(_ context.Context, limit int) ([]*integration.RunSummary, error) {
	if limit < len(f.runs) {
		return f.runs[:limit], nil
	}
	return f.runs, nil
}

func serve(engine *gin.Engine, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(method, path, nil))
	return w
}

func TestNewRouter(t *testing.T) {
	r := NewRouter(gin.New())
	assert.Equal(t, "v1", r.apiVersion)
	assert.Empty(t, r.registrars)

	r = NewRouter(gin.New(), WithAPIVersion("v2"))
	assert.Equal(t, "v2", r.apiVersion)
}

func TestRouterSetup_MountsGroupsUnderVersion(t *testing.T) {
	engine := gin.New()
	group := NewRouteGroup("/test").GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, "pong")
	})
	NewRouter(engine, WithAPIVersion("v2")).Register(group).Setup()

	w := serve(engine, http.MethodGet, "/api/v2/test/ping")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "pong", w.Body.String())

	assert.Equal(t, http.StatusNotFound, serve(engine, http.MethodGet, "/api/v1/test/ping").Code)
}

func TestRouteGroup_Middleware(t *testing.T) {
	engine := gin.New()
	var hit bool
	group := NewRouteGroup("/guarded").
		Use(func(c *gin.Context) { hit = true; c.Next() }).
		POST("/items", func(c *gin.Context) { c.Status(http.StatusCreated) })
	group.RegisterRoutes(engine.Group("/api/v1"))

	assert.Equal(t, "/guarded", group.Prefix())
	assert.Equal(t, http.StatusCreated, serve(engine, http.MethodPost, "/api/v1/guarded/items").Code)
	assert.True(t, hit)
}

func TestNewEngine_ServesProbesAndSyncRoutes(t *testing.T) {
	svc := &fakeSyncService{}
	engine, err := NewEngine(EngineConfig{Mode: gin.TestMode, ServiceName: "test", MaxBodySize: 1024},
		handler.NewHealthHandler(nil, "test"))
	require.NoError(t, err)
	NewRouter(engine).Register(SyncRoutes(handler.NewSyncRunHandler(svc))).Setup()

	w := serve(engine, http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(logger.RequestIDHeader))

	assert.Equal(t, http.StatusOK, serve(engine, http.MethodGet, "/ready").Code)

	w = serve(engine, http.MethodPost, "/api/v1/sync/runs")
	assert.Equal(t, http.StatusAccepted, w.Code)
	require.Len(t, svc.runs, 1)
	assert.Equal(t, integration.RunTriggerAPI, svc.runs[0].Trigger)

	w = serve(engine, http.MethodGet, "/api/v1/sync/runs/"+svc.runs[0].ID.String())
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), svc.runs[0].ID.String()))

	assert.Equal(t, http.StatusOK, serve(engine, http.MethodGet, "/api/v1/sync/runs").Code)
}

func TestNewEngine_RecoversPanics(t *testing.T) {
	engine, err := NewEngine(EngineConfig{Mode: gin.TestMode}, nil)
	require.NoError(t, err)
	engine.GET("/boom", func(*gin.Context) { panic("boom") })

	assert.Equal(t, http.StatusInternalServerError, serve(engine, http.MethodGet, "/boom").Code)
	assert.Equal(t, http.StatusNotFound, serve(engine, http.MethodGet, "/health").Code)
}
