package sink

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/nimdanitro/sensortag-go/pkg/sensortag"
	"go.uber.org/zap"
)

const (
	writeWait = 2 * time.Second

	// events buffered per client before it is considered too slow
	clientBuffer = 64
)

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub broadcasts events as JSON to every connected WebSocket client. Each
// client has its own writer goroutine; a client that falls behind by more
// than clientBuffer events is disconnected.
type Hub struct {
	upgrader websocket.Upgrader
	log      *zap.Logger

	mu      sync.Mutex
	clients map[*client]bool
}

func NewHub(log *zap.Logger) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		log:     log,
		clients: make(map[*client]bool),
	}
}

func (h *Hub) Register(r gin.IRoutes) {
	r.GET("/ws", h.ServeWS)
}

func (h *Hub) ServeWS(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	cl := &client{conn: conn, send: make(chan []byte, clientBuffer)}
	h.mu.Lock()
	h.clients[cl] = true
	n := len(h.clients)
	h.mu.Unlock()
	h.log.Info("websocket client connected", zap.Int("clients", n))

	go h.writePump(cl)

	// keep reading so close frames are handled
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	h.drop(cl)
}

func (h *Hub) writePump(cl *client) {
	defer cl.conn.Close()
	for msg := range cl.send {
		cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := cl.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			h.log.Warn("websocket write failed", zap.Error(err))
			h.drop(cl)
			// drain until drop closed the channel
			for range cl.send {
			}
			return
		}
	}
	cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
	cl.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
}

// drop unregisters cl and closes its send channel, which ends its writer.
func (h *Hub) drop(cl *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.remove(cl)
}

func (h *Hub) remove(cl *client) {
	if !h.clients[cl] {
		return
	}
	delete(h.clients, cl)
	close(cl.send)
	h.log.Info("websocket client disconnected", zap.Int("clients", len(h.clients)))
}

func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Handle never blocks on the network.
func (h *Hub) Handle(e sensortag.Event) {
	msg, err := json.Marshal(e)
	if err != nil {
		h.log.Error("cannot encode event", zap.Error(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for cl := range h.clients {
		select {
		case cl.send <- msg:
		default:
			h.log.Warn("websocket client too slow, disconnecting")
			h.remove(cl)
		}
	}
}

func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for cl := range h.clients {
		h.remove(cl)
	}
	return nil
}
