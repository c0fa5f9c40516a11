package websocket

import (
	"context"
	"encoding/json"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/sirupsen/logrus"
	valkeylib "github.com/valkey-io/valkey-go"

	"github.com/propertydesk/groupqueue/infrastructure/valkey"
)

type client struct{}

// BroadcastMessage is the envelope pushed to every connected status client.
type BroadcastMessage struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Result   any    `json:"result"`
	SenderID string `json:"sender_id,omitempty"`
}

// Hub fans dispatch events out to websocket clients. With valkey enabled the
// hub also relays events across nodes over pub/sub.
type Hub struct {
	clients    map[*websocket.Conn]client
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	broadcast  chan BroadcastMessage

	vkClient *valkey.Client
	localID  string
}

func NewHub(vkClient *valkey.Client, serverID string) *Hub {
	return &Hub{
		clients:    make(map[*websocket.Conn]client),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		broadcast:  make(chan BroadcastMessage),
		vkClient:   vkClient,
		localID:    serverID,
	}
}

// Publish queues a message for every connected client. Safe to call from any
// goroutine.
func (h *Hub) Publish(message BroadcastMessage) {
	h.broadcast <- message
}

func (h *Hub) broadcastToLocal(message BroadcastMessage) {
	marshalMessage, err := json.Marshal(message)
	if err != nil {
		logrus.Errorf("[WS] Marshal error: %v", err)
		return
	}

	for conn := range h.clients {
		if err := conn.WriteMessage(websocket.TextMessage, marshalMessage); err != nil {
			logrus.Errorf("[WS] Write error: %v", err)
			h.closeConnection(conn)
		}
	}
}

func (h *Hub) publishToValkey(message BroadcastMessage) {
	if h.vkClient == nil {
		return
	}

	// Attach local ID as sender so we can ignore our own relayed messages.
	message.SenderID = h.localID

	data, err := json.Marshal(message)
	if err != nil {
		return
	}

	ctx := context.Background()
	channel := h.vkClient.Key("ws_broadcast")
	cmd := h.vkClient.Inner().B().Publish().Channel(channel).Message(string(data)).Build()
	if err := h.vkClient.Inner().Do(ctx, cmd).Error(); err != nil {
		logrus.Errorf("[WS] Failed to publish to Valkey: %v", err)
	}
}

func (h *Hub) startValkeySubscriber() {
	if h.vkClient == nil {
		return
	}

	logrus.Info("[WS] Starting Valkey Pub/Sub subscriber for distributed events")
	go func() {
		channel := h.vkClient.Key("ws_broadcast")
		err := h.vkClient.Inner().Receive(context.Background(), h.vkClient.Inner().B().Subscribe().Channel(channel).Build(), func(msg valkeylib.PubSubMessage) {
			var broadcastMsg BroadcastMessage
			if err := json.Unmarshal([]byte(msg.Message), &broadcastMsg); err == nil {
				if broadcastMsg.SenderID == h.localID {
					return
				}
				h.broadcastToLocal(broadcastMsg)
			}
		})
		if err != nil {
			logrus.Errorf("[WS] Valkey subscriber failed: %v", err)
		}
	}()
}

func (h *Hub) closeConnection(conn *websocket.Conn) {
	_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
	_ = conn.Close()
	delete(h.clients, conn)
}

// Run owns the client map; it must be the only goroutine touching it.
func (h *Hub) Run() {
	h.startValkeySubscriber()

	for {
		select {
		case conn := <-h.register:
			h.clients[conn] = client{}
			logrus.Debug("[WS] Connection registered")

		case conn := <-h.unregister:
			delete(h.clients, conn)
			logrus.Debug("[WS] Connection unregistered")

		case message := <-h.broadcast:
			h.broadcastToLocal(message)
			h.publishToValkey(message)
		}
	}
}

// RegisterRoutes mounts the /ws endpoint. Clients are read-drained only; the
// feed is one-way from the dispatcher to the browser.
func (h *Hub) RegisterRoutes(app fiber.Router) {
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return c.SendStatus(fiber.StatusUpgradeRequired)
	})

	app.Get("/ws", websocket.New(func(conn *websocket.Conn) {
		defer func() {
			h.unregister <- conn
			_ = conn.Close()
		}()

		h.register <- conn

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					logrus.Println("read error:", err)
				}
				return
			}
		}
	}))
}
