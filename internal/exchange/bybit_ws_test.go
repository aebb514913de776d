package exchange

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// wsTestServer runs a private-stream endpoint that accepts any auth and
// subscribe handshake, then hands the connection to the session func along
// with its 1-based connection number.
func wsTestServer(t *testing.T, session func(conn *websocket.Conn, connNum int)) *httptest.Server {
	t.Helper()
	var upgrader websocket.Upgrader
	var connCount int32

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		n := int(atomic.AddInt32(&connCount, 1))

		var auth map[string]interface{}
		if err := conn.ReadJSON(&auth); err != nil {
			return
		}
		if auth["op"] != "auth" {
			t.Errorf("first client frame op = %v, want auth", auth["op"])
			return
		}
		conn.WriteJSON(map[string]interface{}{"op": "auth", "success": true})

		var sub map[string]interface{}
		if err := conn.ReadJSON(&sub); err != nil {
			return
		}
		conn.WriteJSON(map[string]interface{}{"op": "subscribe", "success": true})

		session(conn, n)
	}))
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func newTestWS(url string) *BybitPrivateWS {
	ws := NewBybitPrivateWS("test-key", "test-secret", url)
	ws.baseBackoff = 20 * time.Millisecond
	return ws
}

// drain consumes client frames so writes from the other side never block
func drain(conn *websocket.Conn) {
	for {
		if _, _, err := conn.NextReader(); err != nil {
			return
		}
	}
}

func TestServerPingGetsPongReply(t *testing.T) {
	pongCh := make(chan map[string]interface{}, 1)
	srv := wsTestServer(t, func(conn *websocket.Conn, _ int) {
		conn.WriteJSON(map[string]interface{}{"op": "ping"})
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var reply map[string]interface{}
		if err := conn.ReadJSON(&reply); err != nil {
			return
		}
		pongCh <- reply
	})
	defer srv.Close()

	ws := newTestWS(wsURL(srv))
	if err := ws.Start(); err != nil {
		t.Fatal(err)
	}
	defer ws.Stop()

	select {
	case reply := <-pongCh:
		if reply["op"] != "pong" {
			t.Fatalf("reply op = %v, want pong", reply["op"])
		}
		if ts, ok := reply["timestamp_e6"].(float64); !ok || ts <= 0 {
			t.Errorf("timestamp_e6 = %v, want a positive microsecond timestamp", reply["timestamp_e6"])
		}
	case <-time.After(3 * time.Second):
		t.Fatal("server ping never answered")
	}
}

func TestPositionPushReachesCallback(t *testing.T) {
	srv := wsTestServer(t, func(conn *websocket.Conn, _ int) {
		conn.WriteJSON(map[string]interface{}{
			"topic": "position",
			"data": []map[string]interface{}{{
				"symbol":        "BTCUSDT",
				"side":          "Buy",
				"size":          "0.5",
				"entryPrice":    "43000",
				"leverage":      "25",
				"unrealisedPnl": "12.5",
				"stopLoss":      "42000",
			}},
		})
		conn.WriteJSON(map[string]interface{}{
			"topic": "position",
			"data": []map[string]interface{}{{
				"symbol": "BTCUSDT",
				"side":   "Buy",
				"size":   "0",
			}},
		})
		drain(conn)
	})
	defer srv.Close()

	ws := newTestWS(wsURL(srv))
	events := make(chan []PositionEvent, 2)
	ws.SetPositionUpdateCallback(func(evs []PositionEvent) { events <- evs })
	if err := ws.Start(); err != nil {
		t.Fatal(err)
	}
	defer ws.Stop()

	select {
	case evs := <-events:
		if len(evs) != 1 {
			t.Fatalf("got %d events, want 1", len(evs))
		}
		ev := evs[0]
		if ev.Symbol != "BTCUSDT" || ev.Side != SideBuy || ev.Size != 0.5 {
			t.Errorf("unexpected event: %+v", ev)
		}
		if ev.EntryPrice != 43000 || ev.Leverage != 25 || ev.StopLoss != 42000 {
			t.Errorf("numeric fields not parsed: %+v", ev)
		}
		if ev.Closed {
			t.Error("open position flagged closed")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("position push never reached the callback")
	}

	select {
	case evs := <-events:
		if len(evs) != 1 || !evs[0].Closed {
			t.Errorf("zero-size row must arrive flagged closed: %+v", evs)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("closed-position push never reached the callback")
	}
}

func TestReconnectReauthenticates(t *testing.T) {
	sessions := make(chan int, 4)
	srv := wsTestServer(t, func(conn *websocket.Conn, n int) {
		sessions <- n
		if n == 1 {
			return // drop the first connection immediately
		}
		drain(conn)
	})
	defer srv.Close()

	ws := newTestWS(wsURL(srv))
	if err := ws.Start(); err != nil {
		t.Fatal(err)
	}
	defer ws.Stop()

	for want := 1; want <= 2; want++ {
		select {
		case n := <-sessions:
			if n != want {
				t.Fatalf("session %d arrived, want %d", n, want)
			}
		case <-time.After(3 * time.Second):
			t.Fatalf("session %d never established", want)
		}
	}

	deadline := time.Now().Add(2 * time.Second)
	for !ws.IsAuthenticated() {
		if time.Now().After(deadline) {
			t.Fatal("not re-authenticated after reconnect")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if got := ws.GetStats()["reconnects"].(int); got < 2 {
		t.Errorf("reconnects = %d, want at least 2", got)
	}
}

func TestStaleStreamForcesReconnect(t *testing.T) {
	sessions := make(chan int, 4)
	srv := wsTestServer(t, func(conn *websocket.Conn, n int) {
		sessions <- n
		// Send nothing after the handshake; the client must notice the
		// silence on its own and cycle the connection
		drain(conn)
	})
	defer srv.Close()

	ws := newTestWS(wsURL(srv))
	ws.pingInterval = 25 * time.Millisecond
	ws.staleAfter = 60 * time.Millisecond
	if err := ws.Start(); err != nil {
		t.Fatal(err)
	}
	defer ws.Stop()

	for want := 1; want <= 2; want++ {
		select {
		case <-sessions:
		case <-time.After(3 * time.Second):
			t.Fatalf("session %d never established; stale stream not detected", want)
		}
	}
}
