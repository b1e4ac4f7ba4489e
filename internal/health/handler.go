package health

import (
	"context"
	"net/http"
	"time"

	"lv-tradecore/internal/httputil"
)

// Pinger is satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// QuoteCounter reports how many symbols currently have a usable quote.
type QuoteCounter interface {
	Fresh() int
}

type Handler struct {
	db        Pinger
	quotes    QuoteCounter
	startedAt time.Time
	timeout   time.Duration
}

// NewHandler builds the health endpoints. db may be nil when the engine runs
// on the in-memory store.
func NewHandler(db Pinger, quotes QuoteCounter, startedAt time.Time) *Handler {
	start := startedAt.UTC()
	if start.IsZero() {
		start = time.Now().UTC()
	}
	return &Handler{db: db, quotes: quotes, startedAt: start, timeout: time.Second}
}

type liveResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	UptimeSec int64  `json:"uptime_sec"`
	Uptime    string `json:"uptime"`
}

type readinessResponse struct {
	Status      string          `json:"status"`
	Timestamp   string          `json:"timestamp"`
	UptimeSec   int64           `json:"uptime_sec"`
	Database    readinessDBStat `json:"database"`
	FreshQuotes int             `json:"fresh_quotes"`
}

type readinessDBStat struct {
	Configured bool   `json:"configured"`
	Reachable  bool   `json:"reachable"`
	PingMs     int64  `json:"ping_ms"`
	Error      string `json:"error,omitempty"`
}

func (h *Handler) uptime(now time.Time) time.Duration {
	uptime := now.Sub(h.startedAt)
	if uptime < 0 {
		return 0
	}
	return uptime
}

func (h *Handler) collectDB(ctx context.Context) readinessDBStat {
	if h.db == nil {
		return readinessDBStat{Reachable: true}
	}
	start := time.Now()
	pingCtx, cancel := context.WithTimeout(ctx, h.timeout)
	err := h.db.Ping(pingCtx)
	cancel()
	stat := readinessDBStat{Configured: true, PingMs: time.Since(start).Milliseconds()}
	if err != nil {
		stat.Error = err.Error()
	} else {
		stat.Reachable = true
	}
	return stat
}

// Live does not touch any dependency.
func (h *Handler) Live(w http.ResponseWriter, r *http.Request) {
	now := time.Now().UTC()
	uptime := h.uptime(now)
	httputil.WriteJSON(w, http.StatusOK, liveResponse{
		Status:    "ok",
		Timestamp: now.Format(time.RFC3339),
		UptimeSec: int64(uptime.Seconds()),
		Uptime:    uptime.String(),
	})
}

// Ready returns 503 when the database is unreachable. The fresh quote count
// is reported but does not affect the status.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	now := time.Now().UTC()
	db := h.collectDB(r.Context())
	status := "ok"
	httpStatus := http.StatusOK
	if !db.Reachable {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}
	fresh := 0
	if h.quotes != nil {
		fresh = h.quotes.Fresh()
	}
	httputil.WriteJSON(w, httpStatus, readinessResponse{
		Status:      status,
		Timestamp:   now.Format(time.RFC3339),
		UptimeSec:   int64(h.uptime(now).Seconds()),
		Database:    db,
		FreshQuotes: fresh,
	})
}
