package httputil

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"lv-tradecore/internal/apperr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusFor(t *testing.T) {
	cases := map[error]int{
		apperr.Validation("x"):         http.StatusBadRequest,
		apperr.NotFound("x"):           http.StatusNotFound,
		apperr.InvalidState("x"):       http.StatusConflict,
		apperr.InsufficientMargin("x"): http.StatusUnprocessableEntity,
		apperr.InsufficientFunds("x"):  http.StatusUnprocessableEntity,
		apperr.PricingUnavailable("x"): http.StatusServiceUnavailable,
		apperr.Consistency("x"):        http.StatusInternalServerError,
		errors.New("boom"):             http.StatusInternalServerError,
	}
	for err, want := range cases {
		assert.Equal(t, want, StatusFor(err), err.Error())
	}
}

func TestWriteErrorHidesInternal(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, errors.New("db password leaked"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "password")
}

type sample struct {
	Name string `json:"name" validate:"required"`
}

func TestReadJSON(t *testing.T) {
	read := func(body string) error {
		var s sample
		return ReadJSON(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)), &s)
	}
	require.NoError(t, read(`{"name":"a"}`))
	assert.ErrorIs(t, read(``), apperr.ErrValidation)
	assert.ErrorIs(t, read(`{"name":"a","x":1}`), apperr.ErrValidation)
	assert.ErrorIs(t, read(`{}`), apperr.ErrValidation)
}
