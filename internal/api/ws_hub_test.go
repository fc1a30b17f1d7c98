package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Esemudje/portfolio-manager-team02/internal/api"
)

// dialHub starts the hub and returns a client connected to it once the hub
// has registered the connection.
func dialHub(t *testing.T, env *testEnv) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go env.hub.Run(ctx)

	srv := httptest.NewServer(env.router)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	deadline := time.Now().Add(2 * time.Second)
	for env.hub.Clients() < 1 {
		if time.Now().After(deadline) {
			t.Fatal("client was never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) api.WSMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var msg api.WSMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("decode %q: %v", data, err)
	}
	return msg
}

func TestWSWatchlistUpdate(t *testing.T) {
	env := newTestEnv(t)
	conn := dialHub(t, env)

	w := env.do(t, "POST", "/api/v1/watchlist", map[string]string{"symbol": "NVDA"})
	if w.Code != 201 {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	msg := readMessage(t, conn)
	if msg.Type != api.MsgWatchlistUpdated || msg.Symbol != "NVDA" {
		t.Errorf("unexpected message %+v", msg)
	}
}

func TestWSSnapshotAfterRefresh(t *testing.T) {
	env := newTestEnv(t)
	conn := dialHub(t, env)

	w := env.do(t, "POST", "/api/v1/dashboard/refresh", nil)
	if w.Code != 200 {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	msg := readMessage(t, conn)
	if msg.Type != api.MsgPortfolioSnapshot {
		t.Fatalf("expected snapshot, got %+v", msg)
	}
	data, ok := msg.Data.(map[string]any)
	if !ok || data["cycle"] != float64(1) {
		t.Errorf("unexpected snapshot payload %v", msg.Data)
	}
}

func TestWSRejectsUnlistedOrigin(t *testing.T) {
	hub := api.NewWSHub([]string{"https://app.example.com/"})
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	t.Cleanup(srv.Close)
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"https://evil.example.net"}})
	if err == nil {
		t.Fatal("expected the upgrade to be refused")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %+v", resp)
	}

	for _, origin := range []string{"https://APP.example.com", ""} {
		h := http.Header{}
		if origin != "" {
			h.Set("Origin", origin)
		}
		conn, _, err := websocket.DefaultDialer.Dial(url, h)
		if err != nil {
			t.Fatalf("origin %q: dial: %v", origin, err)
		}
		conn.Close()
	}
}
