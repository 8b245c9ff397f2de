package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/weiawesome/wes-io-live/ticket-scanner/internal/config"
	"github.com/weiawesome/wes-io-live/ticket-scanner/internal/domain"
	"github.com/weiawesome/wes-io-live/ticket-scanner/internal/hub"
	"github.com/weiawesome/wes-io-live/ticket-scanner/internal/preview"
	"github.com/weiawesome/wes-io-live/ticket-scanner/internal/service"
)

type fakeController struct {
	mu        sync.Mutex
	state     domain.ScannerState
	selectErr error
	selected  []string
	torch     domain.TorchResult
}

func (f *fakeController) Start(ctx context.Context) error { return nil }

func (f *fakeController) SelectCamera(ctx context.Context, cameraID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.state.Cameras {
		if c.ID == cameraID {
			if f.selectErr != nil {
				return f.selectErr
			}
			f.selected = append(f.selected, cameraID)
			f.state.SelectedCameraID = cameraID
			return nil
		}
	}
	return fmt.Errorf("%w: %s", service.ErrUnknownCamera, cameraID)
}

func (f *fakeController) ToggleTorch(ctx context.Context) domain.TorchResult {
	return f.torch
}

func (f *fakeController) Snapshot() domain.ScannerState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state.Clone()
}

func (f *fakeController) Cameras() []domain.CameraDevice {
	return f.Snapshot().Cameras
}

func (f *fakeController) Close(ctx context.Context) domain.BestEffort {
	return domain.Applied()
}

func newFakeController() *fakeController {
	return &fakeController{
		state: domain.ScannerState{
			StationID:        "station-1",
			Cameras:          []domain.CameraDevice{{ID: "cam1", Label: "Front"}, {ID: "cam2"}},
			SelectedCameraID: "cam1",
			State:            domain.SessionRunning,
			LastResult:       &domain.ScanResult{Text: "TICKET-0042"},
		},
		torch: domain.TorchResult{BestEffort: domain.NotApplied(domain.ReasonNoSession, nil)},
	}
}

func setupRouter(t *testing.T, ctrl service.ScanController, pv *preview.Broadcaster, page PageConfig) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewHandler(ctrl, pv, page).RegisterRoutes(r)
	return r
}

func doRequest(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code string `json:"code"`
	} `json:"error"`
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode body %q: %v", w.Body.String(), err)
	}
	return env
}

func TestScanPage(t *testing.T) {
	r := setupRouter(t, newFakeController(), preview.NewBroadcaster(), PageConfig{DashboardURL: "/dashboard", QRBoxWidth: 360})

	for _, path := range []string{"/", "/scan"} {
		w := doRequest(r, http.MethodGet, path, "")
		if w.Code != http.StatusOK {
			t.Fatalf("%s status = %d", path, w.Code)
		}
		body := w.Body.String()
		for _, want := range []string{
			`href="/dashboard" target="_blank"`,
			`<option value="cam1" selected>Front</option>`,
			`<option value="cam2">Camera</option>`,
			"Enable flashlight",
			"Last scanned code",
			"TICKET-0042",
		} {
			if !strings.Contains(body, want) {
				t.Errorf("%s page missing %q", path, want)
			}
		}
	}
}

func TestStatusAndHealth(t *testing.T) {
	r := setupRouter(t, newFakeController(), preview.NewBroadcaster(), PageConfig{})

	w := doRequest(r, http.MethodGet, "/api/scan", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"status":"ok"`) {
		t.Errorf("/api/scan = %d %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `"state":"running"`) {
		t.Errorf("/api/scan missing state: %s", w.Body.String())
	}

	w = doRequest(r, http.MethodGet, "/health", "")
	if w.Code != http.StatusOK {
		t.Errorf("/health = %d", w.Code)
	}
}

func TestGetStateAndCameras(t *testing.T) {
	r := setupRouter(t, newFakeController(), preview.NewBroadcaster(), PageConfig{})

	env := decodeEnvelope(t, doRequest(r, http.MethodGet, "/api/v1/scanner", ""))
	var state domain.ScannerState
	if err := json.Unmarshal(env.Data, &state); err != nil {
		t.Fatalf("state: %v", err)
	}
	if !env.Success || state.SelectedCameraID != "cam1" || state.LastResult.Text != "TICKET-0042" {
		t.Errorf("state = %+v", state)
	}

	env = decodeEnvelope(t, doRequest(r, http.MethodGet, "/api/v1/scanner/cameras", ""))
	var cams []domain.CameraDevice
	if err := json.Unmarshal(env.Data, &cams); err != nil {
		t.Fatalf("cameras: %v", err)
	}
	if len(cams) != 2 || cams[0].ID != "cam1" {
		t.Errorf("cameras = %+v", cams)
	}
}

func TestSelectCamera(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		selectErr  error
		wantStatus int
		wantCode   string
	}{
		{"ok", `{"camera_id":"cam2"}`, nil, http.StatusOK, ""},
		{"missing id", `{}`, nil, http.StatusBadRequest, "BAD_REQUEST"},
		{"unknown camera", `{"camera_id":"cam9"}`, nil, http.StatusNotFound, "NOT_FOUND"},
		{"start failed", `{"camera_id":"cam2"}`, errors.New("device busy"), http.StatusServiceUnavailable, "CAMERA_UNAVAILABLE"},
		{"closed", `{"camera_id":"cam2"}`, service.ErrClosed, http.StatusServiceUnavailable, "CAMERA_UNAVAILABLE"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := newFakeController()
			ctrl.selectErr = tt.selectErr
			r := setupRouter(t, ctrl, preview.NewBroadcaster(), PageConfig{})

			w := doRequest(r, http.MethodPut, "/api/v1/scanner/camera", tt.body)
			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (%s)", w.Code, tt.wantStatus, w.Body.String())
			}
			env := decodeEnvelope(t, w)
			if tt.wantCode == "" {
				if !env.Success || ctrl.Snapshot().SelectedCameraID != "cam2" {
					t.Errorf("select not applied: %s", w.Body.String())
				}
				return
			}
			if env.Error == nil || env.Error.Code != tt.wantCode {
				t.Errorf("error = %+v, want %s", env.Error, tt.wantCode)
			}
		})
	}
}

func TestToggleTorch(t *testing.T) {
	r := setupRouter(t, newFakeController(), preview.NewBroadcaster(), PageConfig{})

	env := decodeEnvelope(t, doRequest(r, http.MethodPost, "/api/v1/scanner/torch", ""))
	var res domain.TorchResult
	if err := json.Unmarshal(env.Data, &res); err != nil {
		t.Fatalf("torch result: %v", err)
	}
	if res.Applied || res.Reason != domain.ReasonNoSession {
		t.Errorf("result = %+v", res)
	}
}

func TestCueAsset(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "beep.mp3")
	if err := os.WriteFile(path, []byte("ID3"), 0o644); err != nil {
		t.Fatalf("write cue: %v", err)
	}

	r := setupRouter(t, newFakeController(), preview.NewBroadcaster(), PageConfig{CuePath: path})
	w := doRequest(r, http.MethodGet, "/beep.mp3", "")
	if w.Code != http.StatusOK || w.Body.String() != "ID3" {
		t.Errorf("cue = %d %q", w.Code, w.Body.String())
	}

	r = setupRouter(t, newFakeController(), preview.NewBroadcaster(), PageConfig{CuePath: filepath.Join(dir, "missing.mp3")})
	if w := doRequest(r, http.MethodGet, "/beep.mp3", ""); w.Code != http.StatusNotFound {
		t.Errorf("missing cue status = %d, want 404", w.Code)
	}
}

func TestPreviewStream(t *testing.T) {
	pv := preview.NewBroadcaster()
	pv.Publish([]byte("frame-bytes"))
	r := setupRouter(t, newFakeController(), pv, PageConfig{})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/scan/preview", nil).WithContext(ctx)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "multipart/x-mixed-replace") {
		t.Errorf("content type = %q", ct)
	}
	if !strings.Contains(w.Body.String(), "frame-bytes") {
		t.Errorf("body missing frame: %q", w.Body.String())
	}
}

func TestWebSocket(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ctrl := newFakeController()

	h := hub.NewHub(config.WebSocketConfig{
		PingInterval:   time.Second,
		PongWait:       2 * time.Second,
		WriteWait:      time.Second,
		MaxMessageSize: 4096,
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	r := gin.New()
	NewWSHandler(h, ctrl).RegisterRoutes(r)
	srv := httptest.NewServer(r)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	read := func() map[string]json.RawMessage {
		t.Helper()
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var msg map[string]json.RawMessage
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read: %v", err)
		}
		return msg
	}
	typeOf := func(msg map[string]json.RawMessage) string {
		var s string
		json.Unmarshal(msg["type"], &s)
		return s
	}

	if got := typeOf(read()); got != domain.MsgTypeState {
		t.Fatalf("first message = %s, want state", got)
	}

	tests := []struct {
		send string
		want string
	}{
		{`{"type":"toggle_torch"}`, domain.MsgTypeTorchResult},
		{`{"type":"select_camera","camera_id":"cam9"}`, domain.MsgTypeError},
		{`{"type":"ping"}`, domain.MsgTypePong},
		{`{"type":"bogus"}`, domain.MsgTypeError},
		{`not json`, domain.MsgTypeError},
	}
	for _, tt := range tests {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(tt.send)); err != nil {
			t.Fatalf("write: %v", err)
		}
		if got := typeOf(read()); got != tt.want {
			t.Errorf("reply to %s = %s, want %s", tt.send, got, tt.want)
		}
	}

	if err := conn.WriteJSON(domain.SelectCameraMessage{Type: domain.MsgTypeSelectCamera, CameraID: "cam2"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := conn.WriteJSON(map[string]string{"type": domain.MsgTypePing}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if got := typeOf(read()); got != domain.MsgTypePong {
		t.Fatalf("reply = %s, want pong", got)
	}
	ctrl.mu.Lock()
	selected := append([]string(nil), ctrl.selected...)
	ctrl.mu.Unlock()
	if len(selected) != 1 || selected[0] != "cam2" {
		t.Errorf("selected = %v, want [cam2]", selected)
	}
}
