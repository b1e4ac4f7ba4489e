// Package httputil holds the JSON helpers shared by every handler.
package httputil

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"lv-tradecore/internal/apperr"
	"lv-tradecore/internal/logging"

	"github.com/go-playground/validator/v10"
)

var httpLog = logging.Component("http")

var validate = validator.New(validator.WithRequiredStructEnabled())

const maxBody = 1 << 20

type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		httpLog.WithError(err).Warn("write response")
	}
}

// ReadJSON decodes the body into v, rejecting unknown fields, and runs the
// struct's validate tags.
func ReadJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return apperr.Validation("request body is empty")
		}
		return apperr.Validation("invalid json: %v", err)
	}
	if err := validate.Struct(v); err != nil {
		var ve validator.ValidationErrors
		if errors.As(err, &ve) {
			parts := make([]string, 0, len(ve))
			for _, fe := range ve {
				parts = append(parts, fmt.Sprintf("%s failed %s", strings.ToLower(fe.Field()), fe.Tag()))
			}
			return apperr.Validation("%s", strings.Join(parts, ", "))
		}
		return apperr.Validation("%v", err)
	}
	return nil
}

// StatusFor maps an error kind onto an HTTP status.
func StatusFor(err error) int {
	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindInvalidState:
		return http.StatusConflict
	case apperr.KindInsufficientMargin, apperr.KindInsufficientFunds:
		return http.StatusUnprocessableEntity
	case apperr.KindPricingUnavailable:
		return http.StatusServiceUnavailable
	case apperr.KindExternalBridge:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func WriteError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	if status == http.StatusInternalServerError {
		httpLog.WithError(err).Error("request failed")
		WriteJSON(w, status, ErrorResponse{Error: "internal error"})
		return
	}
	WriteJSON(w, status, ErrorResponse{Error: err.Error(), Kind: string(apperr.KindOf(err))})
}
