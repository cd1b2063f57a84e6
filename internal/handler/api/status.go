package api

import (
	"time"

	"github.com/labstack/echo/v4"

	domrepo "LOBFuse/internal/domain/repository"
	"LOBFuse/internal/runner"
	"LOBFuse/internal/service/cache"
	"LOBFuse/internal/service/ratelimit"
	pkghttp "LOBFuse/pkg/http"
	applogger "LOBFuse/pkg/logger"
	"LOBFuse/pkg/util"
)

// StatusHandler serves pipeline health, latest-state and record queries.
type StatusHandler struct {
	runID        string
	stream       domrepo.MarketStream
	store        domrepo.RecordStore
	status       *cache.TTLCache
	pendingDepth func() int
	rl           *ratelimit.Limiter
	l            *applogger.Logger
}

func NewStatusHandler(runID string, stream domrepo.MarketStream, store domrepo.RecordStore, status *cache.TTLCache, pendingDepth func() int) *StatusHandler {
	return &StatusHandler{
		runID:        runID,
		stream:       stream,
		store:        store,
		status:       status,
		pendingDepth: pendingDepth,
		rl:           ratelimit.New(),
	}
}

// SetLogger injects a structured logger.
func (h *StatusHandler) SetLogger(l *applogger.Logger) { h.l = l }

// RegisterRoutes implements pkg/http.Handler.
func (h *StatusHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Health)
	e.GET("/api/status", h.Status)
	e.GET("/api/records", h.Records)
}

// Health reports feed and storage health.
func (h *StatusHandler) Health(c echo.Context) error {
	out := map[string]interface{}{
		"run_id":    h.runID,
		"connected": h.stream != nil && h.stream.IsConnected(),
	}
	if h.store != nil {
		if err := h.store.Health(c.Request().Context()); err != nil {
			out["storage"] = "down"
			return pkghttp.ServiceUnavailableResponse(c, out)
		}
		out["storage"] = "ok"
	}
	return pkghttp.SuccessResponse(c, out)
}

// Status returns the latest cached pipeline state.
func (h *StatusHandler) Status(c echo.Context) error {
	keys := []string{
		runner.KeyLatestSnapshot,
		runner.KeyLatestAggregate,
		runner.KeyLatestSpike,
		runner.KeyLatestSignal,
		runner.KeyLatestRecord,
		runner.KeyLatestPrediction,
	}
	out := make(map[string]interface{}, len(keys)+2)
	out["run_id"] = h.runID
	if h.pendingDepth != nil {
		out["pending_depth"] = h.pendingDepth()
	}
	for _, k := range keys {
		if v, ok := h.status.Get(k); ok {
			out[k] = v
		}
	}
	return pkghttp.SuccessResponse(c, out)
}

// Records queries finalized records in a time range.
func (h *StatusHandler) Records(c echo.Context) error {
	if !h.rl.Allow(c.RealIP()+":records", 5, 2) {
		if h.l != nil {
			h.l.Warn("records rate_limited", applogger.String("remote", c.RealIP()))
		}
		return pkghttp.TooManyRequestsResponse(c)
	}

	now := time.Now()
	from := util.ParseTimeDefault(c.QueryParam("from"), now.Add(-time.Hour))
	to := util.ParseTimeDefault(c.QueryParam("to"), now)
	limit := util.ParseIntDefault(c.QueryParam("limit"), 500)
	if limit <= 0 || limit > 10000 {
		return pkghttp.BadRequestResponse(c, "limit must be in (0, 10000]")
	}
	if to.Before(from) {
		return pkghttp.BadRequestResponse(c, "to before from")
	}

	recs, err := h.store.Query(c.Request().Context(), from, to, limit)
	if err != nil {
		if h.l != nil {
			h.l.Error("records query error", applogger.Error(err))
		}
		return pkghttp.InternalServerErrorResponse(c)
	}
	return pkghttp.ListResponse(c, recs, int64(len(recs)))
}
