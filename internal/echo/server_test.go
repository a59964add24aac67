package echo

import (
	"context"
	"net"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	return conn
}

func roundTrip(t *testing.T, conn *websocket.Conn, msgType int, payload string) (int, string) {
	t.Helper()
	if err := conn.WriteMessage(msgType, []byte(payload)); err != nil {
		t.Fatalf("write: %v", err)
	}
	conn.SetReadDeadline(time.Now().Add(time.Second))
	gotType, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return gotType, string(data)
}

func TestServer_Echo(t *testing.T) {
	srv := NewServer(DefaultConfig(), nil)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	conn := dial(t, "ws"+strings.TrimPrefix(ts.URL, "http"))
	defer conn.Close()

	for _, payload := range []string{"js says hi", "another", "manualsend"} {
		msgType, got := roundTrip(t, conn, websocket.TextMessage, payload)
		if msgType != websocket.TextMessage {
			t.Errorf("message type = %d, want text", msgType)
		}
		if got != payload {
			t.Errorf("echo = %q, want %q", got, payload)
		}
	}
}

func TestServer_Prefix(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Prefix = "Echo: "
	srv := NewServer(cfg, nil)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	conn := dial(t, "ws"+strings.TrimPrefix(ts.URL, "http"))
	defer conn.Close()

	_, got := roundTrip(t, conn, websocket.TextMessage, "hello")
	if got != "Echo: hello" {
		t.Errorf("echo = %q, want %q", got, "Echo: hello")
	}
}

func TestServer_BinaryPreserved(t *testing.T) {
	srv := NewServer(DefaultConfig(), nil)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	conn := dial(t, "ws"+strings.TrimPrefix(ts.URL, "http"))
	defer conn.Close()

	msgType, got := roundTrip(t, conn, websocket.BinaryMessage, "\x00\x01")
	if msgType != websocket.BinaryMessage {
		t.Errorf("message type = %d, want binary", msgType)
	}
	if got != "\x00\x01" {
		t.Errorf("echo = %q, want %q", got, "\x00\x01")
	}
}

func TestServer_Path(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Path = "/ws"
	srv := NewServer(cfg, nil)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	base := "ws" + strings.TrimPrefix(ts.URL, "http")

	if _, _, err := websocket.DefaultDialer.Dial(base+"/other", nil); err == nil {
		t.Error("expected dial to an unknown path to fail")
	}

	conn := dial(t, base+"/ws")
	defer conn.Close()
}

func TestServer_ServeShutdown(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	srv := NewServer(DefaultConfig(), nil)
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ctx, ln) }()

	conn := dial(t, "ws://"+ln.Addr().String()+"/")
	defer conn.Close()

	// Wait for the peer to be tracked
	deadline := time.Now().Add(time.Second)
	for srv.PeerCount() != 1 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if srv.PeerCount() != 1 {
		t.Fatalf("PeerCount = %d, want 1", srv.PeerCount())
	}

	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Serve returned %v, want nil", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for Serve to return")
	}

	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, _, err = conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseGoingAway) {
		t.Errorf("read after shutdown = %v, want going-away close", err)
	}
}
