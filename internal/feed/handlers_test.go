package feed

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gorilla/websocket"

	"github.com/julianparra1/villavix/internal/auth"
	"github.com/julianparra1/villavix/internal/posts"
)

func startFeedServer(t *testing.T, hub *Hub, src Lister) string {
	t.Helper()
	app := fiber.New()
	RegisterRoutes(app.Group("/api"), hub, src, 5)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen error: %v", err)
	}
	go func() {
		_ = app.Listener(ln)
	}()
	t.Cleanup(func() { _ = app.Shutdown() })
	return "ws://" + ln.Addr().String() + "/api/feed/ws"
}

func readSnapshot(t *testing.T, conn *websocket.Conn) Snapshot {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var snap Snapshot
	if err := conn.ReadJSON(&snap); err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	return snap
}

func TestFeedUpgradeRequired(t *testing.T) {
	svc, _ := seededService(t, 1)
	app := fiber.New()
	RegisterRoutes(app.Group("/api"), NewHub(nil, nil), svc, 5)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/feed/ws", nil))
	if err != nil {
		t.Fatalf("request error: %v", err)
	}
	if resp.StatusCode != fiber.StatusUpgradeRequired {
		t.Fatalf("expected 426 for plain request, got %d", resp.StatusCode)
	}
}

func TestFeedWebsocketLiveAndPaged(t *testing.T) {
	svc, _ := seededService(t, 7)
	hub := NewHub(nil, nil)
	url := startFeedServer(t, hub, svc)

	conn, _, err := websocket.DefaultDialer.Dial(url+"?limit=3", nil)
	if err != nil {
		t.Fatalf("dial error: %v", err)
	}
	defer conn.Close()

	first := readSnapshot(t, conn)
	if first.Type != "snapshot" || len(first.Posts) != 3 || !first.HasMore || first.Posts[0].ID != "p07" {
		t.Fatalf("unexpected initial snapshot %+v", first)
	}

	if err := conn.WriteJSON(map[string]string{"action": "loadMore"}); err != nil {
		t.Fatalf("write error: %v", err)
	}
	more := readSnapshot(t, conn)
	if len(more.Posts) != 6 || more.Generation != first.Generation {
		t.Fatalf("expected appended page, got %d posts gen %d", len(more.Posts), more.Generation)
	}

	if _, err := svc.CreatePost(context.Background(), auth.Session{UID: "u1", Name: "Ana"}, posts.CreatePostInput{Title: "nuevo", Content: "c"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	hub.Notify()
	live := readSnapshot(t, conn)
	if live.Generation != first.Generation+1 || len(live.Posts) != 3 || live.Posts[0].Title != "nuevo" {
		t.Fatalf("expected refreshed top page, got %+v", live)
	}
}

func TestFeedWebsocketIgnoresUnknownMessages(t *testing.T) {
	svc, _ := seededService(t, 2)
	hub := NewHub(nil, nil)
	url := startFeedServer(t, hub, svc)

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial error: %v", err)
	}
	_ = readSnapshot(t, conn)

	_ = conn.WriteMessage(websocket.TextMessage, []byte("not json"))
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
	conn.Close()

	hub.Notify()
	time.Sleep(20 * time.Millisecond)
}
