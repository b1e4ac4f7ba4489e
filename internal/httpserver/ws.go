package httpserver

import (
	"context"
	"net/http"
	"strings"
	"time"

	"lv-tradecore/internal/logging"
	"lv-tradecore/internal/marketdata"

	"github.com/gorilla/websocket"
)

var (
	httpLog = logging.Component("httpserver")
	wsLog   = logging.Component("ws")
)

const (
	wsWriteTimeout    = 5 * time.Second
	wsSnapshotTimeout = 2 * time.Second
)

// WSHandler streams quotes to every client and order, valuation and margin
// call events only to the account they belong to. A client receives its
// current valuation right after connecting.
type WSHandler struct {
	bus      *marketdata.Bus
	tokens   *TokenParser
	vals     Valuations
	upgrader websocket.Upgrader
}

func NewWSHandler(bus *marketdata.Bus, tokens *TokenParser, vals Valuations, origin string) *WSHandler {
	return &WSHandler{
		bus:    bus,
		tokens: tokens,
		vals:   vals,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return allowOrigin(r, origin) },
		},
	}
}

func allowOrigin(r *http.Request, origin string) bool {
	if origin == "*" {
		return true
	}
	reqOrigin := r.Header.Get("Origin")
	if reqOrigin == "" {
		return true
	}
	return strings.EqualFold(reqOrigin, origin)
}

// Visible reports whether evt may be sent to accountID.
func Visible(evt marketdata.Event, accountID string) bool {
	return evt.AccountID == "" || evt.AccountID == accountID
}

// wsToken accepts either a bearer header or a ?token= query parameter,
// since browsers cannot set headers on the upgrade request.
func wsToken(r *http.Request) string {
	if t, ok := bearerToken(r); ok {
		return t
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}

func (h *WSHandler) snapshot(ctx context.Context, accountID string) (marketdata.Event, bool) {
	if h.vals == nil {
		return marketdata.Event{}, false
	}
	ctx, cancel := context.WithTimeout(ctx, wsSnapshotTimeout)
	defer cancel()
	v, err := h.vals.Get(ctx, accountID)
	if err != nil {
		wsLog.WithError(err).WithField("account_id", accountID).Warn("initial valuation")
		return marketdata.Event{}, false
	}
	return marketdata.Event{Type: marketdata.EventValuation, AccountID: accountID, Data: v}, true
}

func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	raw := wsToken(r)
	if raw == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}
	accountID, err := h.tokens.ParseToken(raw)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	sub := h.bus.Subscribe()
	defer h.bus.Unsubscribe(sub)
	log := wsLog.WithField("account_id", accountID)
	log.Debug("client connected")

	write := func(evt marketdata.Event) bool {
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := conn.WriteJSON(evt); err != nil {
			log.WithError(err).Debug("write failed")
			return false
		}
		return true
	}
	if evt, ok := h.snapshot(r.Context(), accountID); ok && !write(evt) {
		return
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
	for {
		select {
		case evt, ok := <-sub:
			if !ok {
				return
			}
			if Visible(evt, accountID) && !write(evt) {
				return
			}
		case <-done:
			return
		case <-r.Context().Done():
			return
		}
	}
}
