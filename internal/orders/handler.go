package orders

import (
	"net/http"

	"lv-tradecore/internal/bridge"
	"lv-tradecore/internal/httputil"
	"lv-tradecore/internal/types"

	"github.com/shopspring/decimal"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

type placeOrderRequest struct {
	Symbol     string           `json:"symbol" validate:"required"`
	Side       string           `json:"side" validate:"required,oneof=BUY SELL"`
	Kind       string           `json:"kind" validate:"required,oneof=MARKET LIMIT STOP"`
	Quantity   decimal.Decimal  `json:"quantity"`
	Price      *decimal.Decimal `json:"price"`
	StopLoss   *decimal.Decimal `json:"stop_loss"`
	TakeProfit *decimal.Decimal `json:"take_profit"`
}

type modifyOrderRequest struct {
	Price    *decimal.Decimal `json:"price"`
	Quantity *decimal.Decimal `json:"quantity"`
}

type levelRequest struct {
	Price decimal.Decimal `json:"price"`
}

func (h *Handler) Place(w http.ResponseWriter, r *http.Request, accountID string) {
	var req placeOrderRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	o, err := h.svc.Place(r.Context(), PlaceRequest{
		AccountID:  accountID,
		Actor:      types.ActorUser,
		Symbol:     req.Symbol,
		Side:       types.OrderSide(req.Side),
		Kind:       types.OrderKind(req.Kind),
		Quantity:   req.Quantity,
		Price:      req.Price,
		StopLoss:   req.StopLoss,
		TakeProfit: req.TakeProfit,
	})
	if err != nil {
		// A bridge send failure still leaves a PROCESSING order behind.
		if o.ID != "" {
			httputil.WriteJSON(w, httputil.StatusFor(err), map[string]any{"error": err.Error(), "order": o})
			return
		}
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, o)
}

func (h *Handler) Active(w http.ResponseWriter, r *http.Request, accountID string) {
	list, err := h.svc.ListActive(r.Context(), accountID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, list)
}

func (h *Handler) History(w http.ResponseWriter, r *http.Request, accountID string) {
	list, err := h.svc.History(r.Context(), accountID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, list)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request, accountID, orderID string) {
	o, err := h.svc.Get(r.Context(), accountID, orderID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, o)
}

func (h *Handler) Actions(w http.ResponseWriter, r *http.Request, accountID, orderID string) {
	list, err := h.svc.Actions(r.Context(), accountID, orderID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, list)
}

func (h *Handler) Modify(w http.ResponseWriter, r *http.Request, accountID, orderID string) {
	var req modifyOrderRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.reply(w, http.StatusOK)(h.svc.ModifyPending(r.Context(), ModifyRequest{
		AccountID: accountID,
		OrderID:   orderID,
		Actor:     types.ActorUser,
		Price:     req.Price,
		Quantity:  req.Quantity,
	}))
}

func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request, accountID, orderID string) {
	h.reply(w, http.StatusOK)(h.svc.CancelPending(r.Context(), OrderRef{AccountID: accountID, OrderID: orderID, Actor: types.ActorUser}))
}

func (h *Handler) Close(w http.ResponseWriter, r *http.Request, accountID, orderID string) {
	h.reply(w, http.StatusOK)(h.svc.Close(r.Context(), OrderRef{AccountID: accountID, OrderID: orderID, Actor: types.ActorUser}))
}

func (h *Handler) SetStopLoss(w http.ResponseWriter, r *http.Request, accountID, orderID string) {
	var req levelRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.reply(w, http.StatusOK)(h.svc.AddStopLoss(r.Context(), LevelRequest{AccountID: accountID, OrderID: orderID, Actor: types.ActorUser, Price: req.Price}))
}

func (h *Handler) RemoveStopLoss(w http.ResponseWriter, r *http.Request, accountID, orderID string) {
	h.reply(w, http.StatusOK)(h.svc.CancelStopLoss(r.Context(), OrderRef{AccountID: accountID, OrderID: orderID, Actor: types.ActorUser}))
}

func (h *Handler) SetTakeProfit(w http.ResponseWriter, r *http.Request, accountID, orderID string) {
	var req levelRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.reply(w, http.StatusOK)(h.svc.AddTakeProfit(r.Context(), LevelRequest{AccountID: accountID, OrderID: orderID, Actor: types.ActorUser, Price: req.Price}))
}

func (h *Handler) RemoveTakeProfit(w http.ResponseWriter, r *http.Request, accountID, orderID string) {
	h.reply(w, http.StatusOK)(h.svc.CancelTakeProfit(r.Context(), OrderRef{AccountID: accountID, OrderID: orderID, Actor: types.ActorUser}))
}

// Confirm accepts a provider confirmation on the internal API.
func (h *Handler) Confirm(w http.ResponseWriter, r *http.Request) {
	var c bridge.Confirmation
	if err := httputil.ReadJSON(r, &c); err != nil {
		httputil.WriteError(w, err)
		return
	}
	o, err := h.svc.ApplyConfirmation(r.Context(), c)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, o)
}

func (h *Handler) reply(w http.ResponseWriter, status int) func(any, error) {
	return func(v any, err error) {
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		httputil.WriteJSON(w, status, v)
	}
}
