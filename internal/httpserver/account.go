package httpserver

import (
	"context"
	"net/http"

	"lv-tradecore/internal/httputil"
	"lv-tradecore/internal/model"
	"lv-tradecore/internal/portfolio"
	"lv-tradecore/internal/store"
)

type Valuations interface {
	Get(ctx context.Context, accountID string) (portfolio.Valuation, error)
}

type AccountHandler struct {
	store store.Store
	vals  Valuations
}

func NewAccountHandler(st store.Store, vals Valuations) *AccountHandler {
	return &AccountHandler{store: st, vals: vals}
}

type accountResponse struct {
	Account   model.Account       `json:"account"`
	Valuation portfolio.Valuation `json:"valuation"`
}

func (h *AccountHandler) Get(w http.ResponseWriter, r *http.Request, accountID string) {
	acc, err := h.store.GetAccount(r.Context(), accountID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	v, err := h.vals.Get(r.Context(), accountID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, accountResponse{Account: acc, Valuation: v})
}

func (h *AccountHandler) Transactions(w http.ResponseWriter, r *http.Request, accountID string) {
	txs, err := h.store.ListTransactions(r.Context(), accountID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, txs)
}
