package rpc

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jangala-dev/daqd/internal/mockdriver"
	"github.com/jangala-dev/daqd/internal/registry"
)

func newTestServer(t *testing.T) *Server {
	reg := registry.New()
	_, err := reg.Register("stg", "mock_mover", mockdriver.NewMover(0), nil)
	require.NoError(t, err)
	_, err = reg.Register("det", "mock_camera", mockdriver.NewCamera(), nil)
	require.NoError(t, err)
	return NewServer(reg, nil, nil)
}

func TestListDevicesFiltersByCapability(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/devices?capability=movable", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var devices []deviceView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &devices))
	require.Len(t, devices, 1)
	assert.Equal(t, "stg", devices[0].ID)
}

func TestListDevicesUnknownCapabilityIs400(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/devices?capability=nonsense", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMoveDeviceNotFoundIs404(t *testing.T) {
	s := newTestServer(t)
	body, _ := json.Marshal(moveRequest{Position: 1})
	req := httptest.NewRequest(http.MethodPost, "/devices/nope/move", bytes.NewReader(body))
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMoveKnownDeviceSucceeds(t *testing.T) {
	s := newTestServer(t)
	body, _ := json.Marshal(moveRequest{Position: 7.5})
	req := httptest.NewRequest(http.MethodPost, "/devices/stg/move", bytes.NewReader(body))
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestTriggerArmsThenFires(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/devices/det/trigger", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestQueueScan1DStartsRun(t *testing.T) {
	s := newTestServer(t)

	body, _ := json.Marshal(scan1DRequest{Name: "t", MoverID: "stg", DetID: "det", Start: 0, Stop: 10, Steps: 3})
	req := httptest.NewRequest(http.MethodPost, "/run/queue", bytes.NewReader(body))
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusAccepted, w.Code)

	// The handler records the new engine on the server for run control.
	require.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.engine != nil
	}, time.Second, 10*time.Millisecond)
}

func TestRunControlWithNoActiveRunIsConflict(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/run/pause", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestHealthStatusReturnsEmptyBeforeSweep(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health/status", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	var statuses []moduleHealth
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &statuses))
	assert.Empty(t, statuses)
}

func TestHealthSweepPopulatesStatus(t *testing.T) {
	s := newTestServer(t)
	s.health.sweep(nil)
	snap := s.health.snapshot()
	require.Len(t, snap, 2)
}

func TestFrameStreamRejectsNonFrameProducer(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/devices/det/frames", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestFrameStreamRejectsUnknownDevice(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/devices/nope/frames", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestObservableStreamRejectsNonReadable(t *testing.T) {
	reg := registry.New()
	_, err := reg.Register("stg", "mock_mover", mockdriver.NewMover(0), nil)
	require.NoError(t, err)
	s := NewServer(reg, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/devices/stg/observe", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestFrameStreamAcceptsFrameProducer(t *testing.T) {
	reg := registry.New()
	_, err := reg.Register("cam2", "mock_frame_camera", mockdriver.NewFrameCamera(64, 48), nil)
	require.NoError(t, err)
	s := NewServer(reg, nil, nil)

	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	wsURL := "ws" + srv.URL[len("http"):] + "/devices/cam2/frames"
	ws, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer ws.Close()

	var msg frameMessage
	require.NoError(t, ws.ReadJSON(&msg))
	assert.Equal(t, 64, msg.Width)
	assert.Equal(t, 48, msg.Height)
}

func TestStorageStartWithoutFlusherIsConflict(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/storage/start", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusConflict, w.Code)
}
