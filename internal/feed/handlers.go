package feed

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"
)

const maxWindowSize = 50

type clientMessage struct {
	Action string `json:"action"`
}

func RegisterRoutes(r fiber.Router, hub *Hub, src Lister, pageSize int) {
	r.Use("/feed/ws", func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		return c.Next()
	})

	r.Get("/feed/ws", websocket.New(func(c *websocket.Conn) {
		size := pageSize
		if n, err := strconv.Atoi(c.Query("limit")); err == nil && n > 0 {
			size = min(n, maxWindowSize)
		}
		serve(c, hub, NewWindow(src, size))
	}))
}

func serve(c *websocket.Conn, hub *Hub, window *Window) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub := hub.Subscribe()
	defer hub.Unsubscribe(sub)

	var writeMu sync.Mutex
	send := func(snap Snapshot) bool {
		writeMu.Lock()
		defer writeMu.Unlock()
		return c.WriteJSON(snap) == nil
	}

	snap, err := window.Refresh(ctx)
	if err != nil {
		hub.log.Warn("initial feed load failed", zap.Error(err))
		return
	}
	if !send(snap) {
		return
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-sub.C:
				if !ok {
					return
				}
				snap, err := window.Refresh(ctx)
				if err != nil {
					if ctx.Err() == nil {
						hub.log.Warn("feed refresh failed", zap.Error(err))
					}
					continue
				}
				if !send(snap) {
					cancel()
					return
				}
			}
		}
	}()

	for {
		_, raw, err := c.ReadMessage()
		if err != nil {
			break
		}
		var msg clientMessage
		if json.Unmarshal(raw, &msg) != nil || msg.Action != "loadMore" {
			continue
		}
		snap, err := window.LoadMore(ctx)
		if errors.Is(err, ErrStale) {
			continue
		}
		if err != nil {
			hub.log.Warn("feed load more failed", zap.Error(err))
			continue
		}
		if !send(snap) {
			break
		}
	}

	cancel()
	wg.Wait()
}
