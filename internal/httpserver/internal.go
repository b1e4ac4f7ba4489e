package httpserver

import (
	"net/http"
	"strings"

	"lv-tradecore/internal/apperr"
	"lv-tradecore/internal/httputil"
	"lv-tradecore/internal/marketdata"

	"github.com/shopspring/decimal"
)

// PriceHandler accepts normalized bid/ask batches from the feed gateway.
type PriceHandler struct {
	cache *marketdata.Cache
}

func NewPriceHandler(cache *marketdata.Cache) *PriceHandler {
	return &PriceHandler{cache: cache}
}

type tickRequest struct {
	Bid *decimal.Decimal `json:"bid"`
	Ask *decimal.Decimal `json:"ask"`
}

type pricesRequest struct {
	Prices map[string]tickRequest `json:"prices" validate:"required,min=1"`
}

func (h *PriceHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	var req pricesRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	ticks := make(map[string]marketdata.RawTick, len(req.Prices))
	for sym, t := range req.Prices {
		sym = strings.ToUpper(strings.TrimSpace(sym))
		if sym == "" {
			httputil.WriteError(w, apperr.Validation("empty symbol"))
			return
		}
		var tick marketdata.RawTick
		if t.Bid != nil {
			tick.Bid = *t.Bid
		}
		if t.Ask != nil {
			tick.Ask = *t.Ask
		}
		ticks[sym] = tick
	}
	h.cache.Ingest(ticks)
	httputil.WriteJSON(w, http.StatusAccepted, map[string]int{"accepted": len(ticks)})
}
