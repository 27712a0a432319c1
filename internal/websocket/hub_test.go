package websocket

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	ws "github.com/coder/websocket"

	"github.com/dukerupert/chorewheel/internal/auth"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

// mockClient creates a Client with a send channel but no real connection.
func mockClient(hub *Hub, homeID int64) *Client {
	return &Client{hub: hub, homeID: homeID, send: make(chan []byte, sendBufferSize)}
}

func TestRegisterUnregister(t *testing.T) {
	hub := NewHub(discard)
	c1 := mockClient(hub, 1)
	c2 := mockClient(hub, 1)
	c3 := mockClient(hub, 2)
	hub.Register(c1)
	hub.Register(c2)
	hub.Register(c3)

	if got := hub.ClientCount(1); got != 2 {
		t.Fatalf("home 1 clients = %d, want 2", got)
	}
	hub.Unregister(c1)
	hub.Unregister(c1)
	if got := hub.ClientCount(1); got != 1 {
		t.Fatalf("home 1 clients = %d, want 1", got)
	}
	hub.Unregister(c2)
	hub.Unregister(c3)
	if hub.ClientCount(1) != 0 || hub.ClientCount(2) != 0 {
		t.Fatal("expected empty hub")
	}
}

func TestBroadcastIsHomeScoped(t *testing.T) {
	hub := NewHub(discard)
	mine := mockClient(hub, 1)
	other := mockClient(hub, 2)
	hub.Register(mine)
	hub.Register(other)
	defer hub.Unregister(mine)
	defer hub.Unregister(other)

	hub.Broadcast(1, NewMessage("assignment", "completed", 42, map[string]any{"member_id": float64(3)}))

	select {
	case data := <-mine.send:
		var got Message
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if got.Type != "assignment_completed" || got.ID != 42 {
			t.Errorf("got %+v", got)
		}
		if got.Extra["member_id"] != float64(3) {
			t.Errorf("extra = %v", got.Extra)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timeout waiting for message")
	}

	select {
	case data := <-other.send:
		t.Fatalf("other home received %s", data)
	default:
	}
}

func TestBroadcastFullBuffer(t *testing.T) {
	hub := NewHub(discard)
	c := mockClient(hub, 1)
	hub.Register(c)
	defer hub.Unregister(c)

	for i := 0; i < sendBufferSize+1; i++ {
		hub.Broadcast(1, NewMessage("test", "fill", int64(i), nil))
	}
	if got := len(c.send); got != sendBufferSize {
		t.Errorf("buffered = %d, want %d", got, sendBufferSize)
	}
}

func TestConcurrentAccess(t *testing.T) {
	hub := NewHub(discard)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(home int64) {
			defer wg.Done()
			c := mockClient(hub, home)
			hub.Register(c)
			hub.Broadcast(home, NewMessage("test", "concurrent", 0, nil))
			hub.Unregister(c)
		}(int64(i % 3))
	}
	wg.Wait()
	for h := int64(0); h < 3; h++ {
		if got := hub.ClientCount(h); got != 0 {
			t.Errorf("home %d has %d clients", h, got)
		}
	}
}

func TestHandleDeliversHomeMessages(t *testing.T) {
	hub := NewHub(discard)
	inject := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), auth.Identity{MemberID: 1, HomeID: 9})))
		})
	}
	srv := httptest.NewServer(inject(Handle(hub, discard)))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	conn, _, err := ws.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.CloseNow()

	for hub.ClientCount(9) == 0 {
		select {
		case <-ctx.Done():
			t.Fatal("client never registered")
		case <-time.After(5 * time.Millisecond):
		}
	}
	hub.Broadcast(9, NewMessage("cycle", "started", 9, nil))

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(data), `"type":"cycle_started"`) {
		t.Errorf("message = %s", data)
	}
}

func TestHandleRequiresIdentity(t *testing.T) {
	rec := httptest.NewRecorder()
	Handle(NewHub(discard), discard)(rec, httptest.NewRequest("GET", "/ws", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d", rec.Code)
	}
}
