package httpserver

import (
	"net/http"

	"lv-tradecore/internal/health"
	"lv-tradecore/internal/httputil"
	"lv-tradecore/internal/orders"

	"github.com/go-chi/chi/v5"
)

type RouterDeps struct {
	OrderHandler   *orders.Handler
	AccountHandler *AccountHandler
	PriceHandler   *PriceHandler
	HealthHandler  *health.Handler
	Tokens         *TokenParser
	Limiter        *RateLimiter
	InternalToken  string
	WSHandler      http.Handler
}

type accountHandlerFunc func(w http.ResponseWriter, r *http.Request, accountID string)

type orderHandlerFunc func(w http.ResponseWriter, r *http.Request, accountID, orderID string)

// withAccount resolves the authenticated account before calling h.
func withAccount(h accountHandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accountID, ok := AccountID(r)
		if !ok {
			httputil.WriteJSON(w, http.StatusUnauthorized, httputil.ErrorResponse{Error: "unauthorized"})
			return
		}
		h(w, r, accountID)
	}
}

func withOrder(h orderHandlerFunc) http.HandlerFunc {
	return withAccount(func(w http.ResponseWriter, r *http.Request, accountID string) {
		h(w, r, accountID, chi.URLParam(r, "id"))
	})
}

func NewRouter(d RouterDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(SecurityHeaders)
	if d.Limiter != nil {
		r.Use(d.Limiter.Middleware)
	}

	if d.HealthHandler != nil {
		r.Get("/health", d.HealthHandler.Ready)
		r.Get("/health/live", d.HealthHandler.Live)
		r.Get("/health/ready", d.HealthHandler.Ready)
	} else {
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	}
	r.Route("/v1", func(r chi.Router) {
		if d.WSHandler != nil {
			r.Get("/ws", d.WSHandler.ServeHTTP)
		}
		r.Group(func(r chi.Router) {
			r.Use(WithAuth(d.Tokens))
			r.Get("/account", withAccount(d.AccountHandler.Get))
			r.Get("/account/transactions", withAccount(d.AccountHandler.Transactions))

			r.Post("/orders", withAccount(d.OrderHandler.Place))
			r.Get("/orders", withAccount(d.OrderHandler.Active))
			r.Get("/orders/history", withAccount(d.OrderHandler.History))
			r.Get("/orders/{id}", withOrder(d.OrderHandler.Get))
			r.Get("/orders/{id}/actions", withOrder(d.OrderHandler.Actions))
			r.Patch("/orders/{id}", withOrder(d.OrderHandler.Modify))
			r.Delete("/orders/{id}", withOrder(d.OrderHandler.Cancel))
			r.Post("/orders/{id}/close", withOrder(d.OrderHandler.Close))
			r.Put("/orders/{id}/stop-loss", withOrder(d.OrderHandler.SetStopLoss))
			r.Delete("/orders/{id}/stop-loss", withOrder(d.OrderHandler.RemoveStopLoss))
			r.Put("/orders/{id}/take-profit", withOrder(d.OrderHandler.SetTakeProfit))
			r.Delete("/orders/{id}/take-profit", withOrder(d.OrderHandler.RemoveTakeProfit))
		})
		r.Group(func(r chi.Router) {
			r.Use(InternalAuth(d.InternalToken))
			r.Post("/internal/prices", d.PriceHandler.Ingest)
			r.Post("/internal/bridge/confirmations", d.OrderHandler.Confirm)
		})
	})
	return r
}
