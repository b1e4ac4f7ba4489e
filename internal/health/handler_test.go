package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

type counter int

func (c counter) Fresh() int { return int(c) }

func TestReady(t *testing.T) {
	cases := []struct {
		name string
		db   Pinger
		want int
	}{
		{"memory store", nil, http.StatusOK},
		{"database up", pinger{}, http.StatusOK},
		{"database down", pinger{err: errors.New("refused")}, http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := NewHandler(tc.db, counter(3), time.Now())
			rec := httptest.NewRecorder()
			h.Ready(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
			assert.Equal(t, tc.want, rec.Code)
			assert.Contains(t, rec.Body.String(), `"fresh_quotes":3`)
		})
	}
}

func TestLive(t *testing.T) {
	h := NewHandler(pinger{err: errors.New("down")}, nil, time.Now().Add(-time.Minute))
	rec := httptest.NewRecorder()
	h.Live(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
