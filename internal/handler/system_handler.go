package handler

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-academy/internal/response"
)

// SessionCounter reports how many attempt sessions are hosted and how many
// submitted results still await confirmation by the store.
type SessionCounter interface {
	LiveSessions() int
	PendingResults() int
}

// QueueDepth reports the length of the reconciliation queue.
type QueueDepth interface {
	Len(ctx context.Context) (int64, error)
}

// SystemHandler reports process and engine health.
type SystemHandler struct {
	sessions  SessionCounter
	queue     QueueDepth
	driver    string
	startTime time.Time
	log       zerolog.Logger
}

// NewSystemHandler creates a new SystemHandler. queue may be nil when the
// store runs without Redis.
func NewSystemHandler(sessions SessionCounter, queue QueueDepth, driver string, log zerolog.Logger) *SystemHandler {
	return &SystemHandler{
		sessions:  sessions,
		queue:     queue,
		driver:    driver,
		startTime: time.Now(),
		log:       log.With().Str("component", "system_handler").Logger(),
	}
}

type systemHealth struct {
	Status string `json:"status"`
	Uptime string `json:"uptime"`
	Driver string `json:"store_driver"`

	LiveSessions   int    `json:"live_sessions"`
	PendingResults int    `json:"pending_results"`
	QueueResults   *int64 `json:"queue_results,omitempty"`

	Goroutines int    `json:"goroutines"`
	HeapAlloc  uint64 `json:"heap_alloc"`
	NumGC      uint32 `json:"num_gc"`
	GoVersion  string `json:"go_version"`
}

// Health godoc
// GET /api/v1/system/health
// A failing reconciliation queue degrades the status but still answers 200.
func (h *SystemHandler) Health(c *gin.Context) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	out := systemHealth{
		Status:         "ok",
		Uptime:         time.Since(h.startTime).Round(time.Second).String(),
		Driver:         h.driver,
		LiveSessions:   h.sessions.LiveSessions(),
		PendingResults: h.sessions.PendingResults(),
		Goroutines:     runtime.NumGoroutine(),
		HeapAlloc:      mem.HeapAlloc,
		NumGC:          mem.NumGC,
		GoVersion:      runtime.Version(),
	}

	if h.queue != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		n, err := h.queue.Len(ctx)
		if err != nil {
			h.log.Warn().Err(err).Msg("Queue length unavailable")
			out.Status = "degraded"
		} else {
			out.QueueResults = &n
		}
	}

	response.Success(c, http.StatusOK, out)
}
