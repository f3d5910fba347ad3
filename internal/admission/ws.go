package admission

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// streamInterval is how often /api/stream pushes a fresh snapshot,
// SPEC_FULL §2 item 17.
const streamInterval = time.Second

// stream implements the additive GET /api/stream endpoint: it upgrades to
// a websocket and pushes a JSON stat snapshot for every channel once per
// second, a push alternative to polling /api/stat/<channel>. fiber runs on
// fasthttp, so the upgrade is bridged through adaptor.HTTPHandlerFunc to
// the net/http surface nhooyr.io/websocket expects.
func (s *server) stream(c *fiber.Ctx) error {
	handler := adaptor.HTTPHandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			s.log.Warn("websocket upgrade failed", "err", err)
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "stream closed")

		ctx := r.Context()
		ticker := time.NewTicker(streamInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				snapshot := make(map[string]statResponse, len(s.app.Channels.Names()))
				for _, name := range s.app.Channels.Names() {
					ch, ok := s.app.Channels.Get(name)
					if !ok {
						continue
					}
					snapshot[name] = statSnapshot(ch)
				}
				if err := wsjson.Write(ctx, conn, snapshot); err != nil {
					return
				}
			}
		}
	})

	return handler(c)
}
