package control

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEngine struct {
	halted    bool
	cancelErr []error
}

func (f *fakeEngine) Halt()  { f.halted = true }
func (f *fakeEngine) Resume() { f.halted = false }
func (f *fakeEngine) CancelAll(ctx context.Context) []error { return f.cancelErr }

func TestHandleStopHaltsEngine(t *testing.T) {
	eng := &fakeEngine{}
	s := New(0, eng, nil, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/control/stop", nil)
	w := httptest.NewRecorder()
	s.handleStop(w, req)

	assert.True(t, eng.halted)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHandleEmergencyStopReportsFailures(t *testing.T) {
	eng := &fakeEngine{cancelErr: []error{assertErr("boom")}}
	s := New(0, eng, nil, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/control/emergency-stop", nil)
	w := httptest.NewRecorder()
	s.handleEmergencyStop(w, req)

	assert.True(t, eng.halted)
	assert.Equal(t, http.StatusMultiStatus, w.Code)
}

func TestHandleConfigReloadNotSupported(t *testing.T) {
	eng := &fakeEngine{}
	s := New(0, eng, nil, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/control/config/reload", nil)
	w := httptest.NewRecorder()
	s.handleConfigReload(w, req)

	assert.Equal(t, http.StatusNotImplemented, w.Code)
}

func TestHandleConfigReloadSuccess(t *testing.T) {
	eng := &fakeEngine{}
	called := false
	s := New(0, eng, nil, nil, func() error { called = true; return nil })

	req := httptest.NewRequest(http.MethodPost, "/api/v1/control/config/reload", nil)
	w := httptest.NewRecorder()
	s.handleConfigReload(w, req)

	require.True(t, called)
	assert.Equal(t, http.StatusOK, w.Code)
}

type assertErr string

func (e assertErr) Error() string { return string(e) }
