package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeReady struct{ ready bool }

func (f fakeReady) Ready() bool { return f.ready }

func TestHandleHealthzAlwaysOK(t *testing.T) {
	s := &Server{log: zap.NewNop()}
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)

	s.handleHealthz(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
}

func TestHandleReadyzReflectsChecker(t *testing.T) {
	s := &Server{log: zap.NewNop()}

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	s.handleReadyz(rr, req, fakeReady{ready: false})
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)

	rr = httptest.NewRecorder()
	s.handleReadyz(rr, req, fakeReady{ready: true})
	require.Equal(t, http.StatusOK, rr.Code)
}

func TestHandleReadyzNilCheckerDefaultsReady(t *testing.T) {
	s := &Server{log: zap.NewNop()}
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)

	s.handleReadyz(rr, req, nil)

	require.Equal(t, http.StatusOK, rr.Code)
}
