// Package httpx exposes the REST and websocket surface of the dashboard.
package httpx

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"log/slog"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/ersozo/re-dashboard/internal/domain"
	"github.com/ersozo/re-dashboard/internal/service/report"
	"github.com/ersozo/re-dashboard/internal/stream"
	"github.com/ersozo/re-dashboard/internal/ws"
)

// Router wires HTTP endpoints to the report service and stream sessions.
type Router struct {
	mux          *mux.Router
	logger       *slog.Logger
	reports      *report.Service
	registry     *stream.Registry
	upgrader     websocket.Upgrader
	limiter      RateLimiter
	pushInterval time.Duration
	baseCtx      context.Context
	dbHealth     func(context.Context) error
}

const (
	rateWindowDefault  = time.Minute
	rateWindowRealtime = 30 * time.Second
	rateLimitRead      = 120
	rateLimitWebsocket = 30
	healthCheckTimeout = 2 * time.Second
)

// NewRouter assembles routes with dependencies. baseCtx bounds the lifetime
// of websocket sessions; cancel it to drain them on shutdown.
func NewRouter(baseCtx context.Context, logger *slog.Logger, reports *report.Service, registry *stream.Registry, limiter RateLimiter, pushInterval time.Duration, dbHealth func(context.Context) error) *Router {
	r := &Router{
		mux:      mux.NewRouter(),
		logger:   logger,
		reports:  reports,
		registry: registry,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		limiter:      limiter,
		pushInterval: pushInterval,
		baseCtx:      baseCtx,
		dbHealth:     dbHealth,
	}
	if r.baseCtx == nil {
		r.baseCtx = context.Background()
	}
	if r.limiter == nil {
		r.limiter = NewMemoryRateLimiter()
	}
	r.register()
	return r
}

// ServeHTTP delegates to the underlying mux.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// Close releases background resources.
func (r *Router) Close() {
	if r.limiter != nil {
		r.limiter.Close()
	}
}

func (r *Router) register() {
	r.mux.HandleFunc("/healthz", r.audit(r.handleHealthz)).Methods(http.MethodGet)
	r.mux.HandleFunc("/units", r.audit(r.withRateLimit(rateLimitRead, rateWindowDefault, r.handleUnits))).Methods(http.MethodGet)
	r.mux.HandleFunc("/report-data", r.audit(r.withRateLimit(rateLimitRead, rateWindowDefault, r.handleReportData))).Methods(http.MethodGet)
	r.mux.HandleFunc("/historical-data/{unit_name}", r.audit(r.withRateLimit(rateLimitRead, rateWindowDefault, r.handleHistoricalData))).Methods(http.MethodGet)
	r.mux.HandleFunc("/historical-hourly-data/{unit_name}", r.audit(r.withRateLimit(rateLimitRead, rateWindowDefault, r.handleHistoricalHourlyData))).Methods(http.MethodGet)
	// The hourly route registers first so /ws/hourly/X never binds as a
	// standard stream for unit "hourly".
	r.mux.HandleFunc("/ws/hourly/{unit_name}", r.audit(r.withRateLimit(rateLimitWebsocket, rateWindowRealtime, r.streamHandler(stream.KindHourly)))).Methods(http.MethodGet)
	r.mux.HandleFunc("/ws/{unit_name}", r.audit(r.withRateLimit(rateLimitWebsocket, rateWindowRealtime, r.streamHandler(stream.KindStandard)))).Methods(http.MethodGet)
}

func (r *Router) handleUnits(w http.ResponseWriter, req *http.Request) {
	units, err := r.reports.Units(req.Context())
	if err != nil {
		r.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, units)
}

func (r *Router) handleReportData(w http.ResponseWriter, req *http.Request) {
	query := req.URL.Query()
	units := query["units"]
	if len(units) == 1 {
		units = splitUnits(units[0])
	}
	if len(units) == 0 {
		writeError(w, http.StatusBadRequest, "units query parameter required")
		return
	}
	window, mode, ok := r.windowParams(w, req)
	if !ok {
		return
	}
	rep, err := r.reports.MultiUnitReport(req.Context(), units, window, mode)
	if err != nil {
		if errors.Is(err, report.ErrNoUnits) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		r.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (r *Router) handleHistoricalData(w http.ResponseWriter, req *http.Request) {
	unitName := mux.Vars(req)["unit_name"]
	window, mode, ok := r.windowParams(w, req)
	if !ok {
		return
	}
	rep, err := r.reports.UnitReport(req.Context(), unitName, window, mode)
	if err != nil {
		r.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (r *Router) handleHistoricalHourlyData(w http.ResponseWriter, req *http.Request) {
	unitName := mux.Vars(req)["unit_name"]
	window, mode, ok := r.windowParams(w, req)
	if !ok {
		return
	}
	rep, err := r.reports.HourlyReport(req.Context(), unitName, window, mode)
	if err != nil {
		r.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (r *Router) streamHandler(kind stream.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		unitName := mux.Vars(req)["unit_name"]
		conn, err := r.upgrader.Upgrade(w, req, nil)
		if err != nil {
			r.logger.Error("websocket upgrade failed", "error", err, "unit", unitName)
			return
		}
		client := ws.NewClient(conn, r.logger)
		session := stream.NewSession(kind, unitName, client, r.reports, r.registry, r.logger, r.pushInterval)
		// The request context dies with the handler; the session lives
		// until the client disconnects or the server drains.
		go session.Run(r.baseCtx)
	}
}

func (r *Router) handleHealthz(w http.ResponseWriter, req *http.Request) {
	components := make(map[string]any)
	status := "ok"
	if r.dbHealth != nil {
		ctx, cancel := context.WithTimeout(req.Context(), healthCheckTimeout)
		defer cancel()
		if err := r.dbHealth(ctx); err != nil {
			status = "degraded"
			components["database"] = map[string]any{
				"status": "down",
				"error":  err.Error(),
			}
		} else {
			components["database"] = map[string]any{"status": "up"}
		}
	}
	components["streams"] = r.registry.Counts()
	payload := map[string]any{
		"status":     status,
		"components": components,
		"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
	}
	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, payload)
}

// windowParams parses start_time, end_time and working_mode query
// parameters, answering 400 on invalid input.
func (r *Router) windowParams(w http.ResponseWriter, req *http.Request) (domain.TimeWindow, domain.WorkingMode, bool) {
	query := req.URL.Query()
	start := query.Get("start_time")
	end := query.Get("end_time")
	if start == "" || end == "" {
		writeError(w, http.StatusBadRequest, "start_time and end_time query parameters required")
		return domain.TimeWindow{}, "", false
	}
	window, err := domain.ParseWindow(start, end)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return domain.TimeWindow{}, "", false
	}
	return window, domain.ParseWorkingMode(query.Get("working_mode")), true
}

func (r *Router) writeServiceError(w http.ResponseWriter, err error) {
	if errors.Is(err, report.ErrQueryTimeout) {
		writeError(w, http.StatusGatewayTimeout, "Database query timeout - try a smaller time range")
		return
	}
	writeError(w, http.StatusInternalServerError, "Database error: "+err.Error())
}

func splitUnits(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
