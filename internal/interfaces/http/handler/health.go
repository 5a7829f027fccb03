package handler

import (
	"context"
	"net/http"
	"runtime"
	"sort"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/erp/crmsync/internal/interfaces/http/dto"
)

// ConnectionChecker pings the remote systems of the sync
type ConnectionChecker interface {
	TestConnections(ctx context.Context) map[string]error
}

// ScheduledTick describes the most recent tick of the periodic sync
type ScheduledTick struct {
	At      time.Time `json:"at"`
	RunID   string    `json:"run_id,omitempty"`
	Status  string    `json:"status,omitempty"`
	Skipped bool      `json:"skipped,omitempty"`
	Error   string    `json:"error,omitempty"`
}

// ScheduleStatus returns the last scheduled tick, false before the first one
type ScheduleStatus func() (ScheduledTick, bool)

// HealthHandler serves liveness and readiness probes
type HealthHandler struct {
	BaseHandler
	checker      ConnectionChecker
	schedule     ScheduleStatus
	version      string
	startTime    time.Time
	checkTimeout time.Duration
}

// NewHealthHandler creates a new HealthHandler. checker may be nil, in
// which case readiness only reports uptime.
func NewHealthHandler(checker ConnectionChecker, version string) *HealthHandler {
	return &HealthHandler{
		checker:      checker,
		version:      version,
		startTime:    time.Now(),
		checkTimeout: 10 * time.Second,
	}
}

// WithSchedule adds the last scheduled tick to the liveness payload
func (h *HealthHandler) WithSchedule(s ScheduleStatus) *HealthHandler {
	h.schedule = s
	return h
}

// HealthResponse is the liveness payload
type HealthResponse struct {
	Status        string         `json:"status"`
	Version       string         `json:"version"`
	GoVersion     string         `json:"go_version"`
	Uptime        string         `json:"uptime"`
	LastScheduled *ScheduledTick `json:"last_scheduled,omitempty"`
}

// ReadinessResponse is the readiness payload
type ReadinessResponse struct {
	Status  string            `json:"status"`
	Systems []SystemCheckInfo `json:"systems"`
}

// SystemCheckInfo is the result of pinging one remote system
type SystemCheckInfo struct {
	Name  string `json:"name"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// Health reports that the process is up
func (h *HealthHandler) Health(c *gin.Context) {
	resp := HealthResponse{
		Status:    "healthy",
		Version:   h.version,
		GoVersion: runtime.Version(),
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
	}
	if h.schedule != nil {
		if tick, ok := h.schedule(); ok {
			resp.LastScheduled = &tick
		}
	}
	h.Success(c, resp)
}

// Ready pings the ERP and CRM and answers 503 if either is unreachable
func (h *HealthHandler) Ready(c *gin.Context) {
	resp := ReadinessResponse{Status: "ready", Systems: []SystemCheckInfo{}}
	if h.checker == nil {
		h.Success(c, resp)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.checkTimeout)
	defer cancel()

	results := h.checker.TestConnections(ctx)
	names := make([]string, 0, len(results))
	for name := range results {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		info := SystemCheckInfo{Name: name, OK: results[name] == nil}
		if !info.OK {
			info.Error = results[name].Error()
			resp.Status = "unavailable"
		}
		resp.Systems = append(resp.Systems, info)
	}

	if resp.Status != "ready" {
		c.JSON(http.StatusServiceUnavailable, dto.Response{Success: false, Data: resp})
		return
	}
	h.Success(c, resp)
}
