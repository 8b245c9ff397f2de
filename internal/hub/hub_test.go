package hub

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/weiawesome/wes-io-live/ticket-scanner/internal/config"
	"github.com/weiawesome/wes-io-live/ticket-scanner/internal/domain"
)

func testConfig() config.WebSocketConfig {
	return config.WebSocketConfig{
		PingInterval:   time.Second,
		PongWait:       2 * time.Second,
		WriteWait:      time.Second,
		MaxMessageSize: 4096,
	}
}

func startHub(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	h := NewHub(testConfig())

	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)
	t.Cleanup(cancel)

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		c := &Client{ID: r.URL.Query().Get("id"), Hub: h, Conn: conn, Send: make(chan []byte, 8)}
		h.Register(c)
		go c.WritePump()
		go c.ReadPump(func(c *Client, msg []byte) {
			c.SendMessage(map[string]string{"echo": string(msg)})
		})
	}))
	t.Cleanup(srv.Close)
	return h, srv
}

func dial(t *testing.T, srv *httptest.Server, id string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?id=" + id
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitClients(t *testing.T, h *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for h.ClientCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("client count = %d, want %d", h.ClientCount(), n)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestBroadcastReachesEveryClient(t *testing.T) {
	h, srv := startHub(t)
	a := dial(t, srv, "a")
	b := dial(t, srv, "b")
	waitClients(t, h, 2)

	h.OnScan(domain.ScanResult{Text: "TICKET-0042"})

	for _, conn := range []*websocket.Conn{a, b} {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var msg domain.ScanMessage
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read: %v", err)
		}
		if msg.Type != domain.MsgTypeScan || msg.Result.Text != "TICKET-0042" {
			t.Errorf("message = %+v", msg)
		}
	}
}

func TestSendMessageTargetsOneClient(t *testing.T) {
	h, srv := startHub(t)
	conn := dial(t, srv, "a")
	waitClients(t, h, 1)

	if err := conn.WriteMessage(websocket.TextMessage, []byte("hi")); err != nil {
		t.Fatalf("write: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var got map[string]string
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got["echo"] != "hi" {
		t.Errorf("echo = %q, want hi", got["echo"])
	}
}

func TestClientUnregistersOnDisconnect(t *testing.T) {
	h, srv := startHub(t)
	conn := dial(t, srv, "a")
	waitClients(t, h, 1)

	conn.Close()
	waitClients(t, h, 0)
}
