package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
)

const (
	clientSendBuffer = 64
	writeWait        = 10 * time.Second
	pongWait         = 60 * time.Second
	pingPeriod       = (pongWait * 9) / 10
)

type wsConn interface {
	WriteMessage(messageType int, data []byte) error
	ReadMessage() (messageType int, p []byte, err error)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

// Client is one websocket connection of a user.
type Client struct {
	userID string
	conn   wsConn
	send   chan []byte
	// done is closed once writePump has stopped using conn.
	done chan struct{}
}

// Hub keeps websocket clients grouped per user and pushes events to the
// owners of the wallets involved.
type Hub struct {
	mu     sync.RWMutex
	rooms  map[string]map[*Client]struct{}
	logger *slog.Logger
}

// NewHub builds an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{rooms: make(map[string]map[*Client]struct{}), logger: logger}
}

type wsMessage struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// Send implements Notifier.
func (h *Hub) Send(_ context.Context, event Event) error {
	if len(event.Recipients) == 0 {
		return nil
	}
	msgs := make([][]byte, 0, 2)
	txMsg, err := json.Marshal(wsMessage{Event: "transaction-updated", Data: event})
	if err != nil {
		return fmt.Errorf("marshal transaction message: %w", err)
	}
	msgs = append(msgs, txMsg)
	if event.ChangesBalances() {
		balMsg, err := json.Marshal(wsMessage{Event: "balance-updated", Data: map[string]string{
			"from_wallet_id": event.FromWalletID,
			"to_wallet_id":   event.ToWalletID,
			"currency":       event.Currency,
		}})
		if err != nil {
			return fmt.Errorf("marshal balance message: %w", err)
		}
		msgs = append(msgs, balMsg)
	}

	var slow []*Client
	h.mu.RLock()
	for _, userID := range event.Recipients {
		for client := range h.rooms[userID] {
			for _, msg := range msgs {
				select {
				case client.send <- msg:
				default:
					slow = append(slow, client)
				}
			}
		}
	}
	h.mu.RUnlock()

	for _, client := range slow {
		h.logger.Warn("websocket client too slow, disconnecting", slog.String("user_id", client.userID))
		h.unregister(client)
	}
	return nil
}

// Connected returns the number of open connections for userID.
func (h *Hub) Connected(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[userID])
}

func (h *Hub) register(userID string, conn wsConn) *Client {
	client := &Client{userID: userID, conn: conn, send: make(chan []byte, clientSendBuffer), done: make(chan struct{})}
	h.mu.Lock()
	room, ok := h.rooms[userID]
	if !ok {
		room = make(map[*Client]struct{})
		h.rooms[userID] = room
	}
	room[client] = struct{}{}
	h.mu.Unlock()
	return client
}

func (h *Hub) unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room, ok := h.rooms[client.userID]
	if !ok {
		return
	}
	if _, ok := room[client]; !ok {
		return
	}
	delete(room, client)
	close(client.send)
	if len(room) == 0 {
		delete(h.rooms, client.userID)
	}
}

// Serve registers conn for userID and blocks until the connection closes.
// It returns only after both pumps are done with conn, so the caller may
// release it.
func (h *Hub) Serve(conn wsConn, userID string) {
	client := h.register(userID, conn)
	h.logger.Debug("websocket client connected", slog.String("user_id", userID))

	go h.writePump(client)
	h.readPump(client)
	<-client.done
}

func (h *Hub) writePump(client *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.conn.Close() // nolint:errcheck
		close(client.done)
	}()

	for {
		select {
		case msg, ok := <-client.send:
			_ = client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = client.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := client.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				h.unregister(client)
				return
			}
		case <-ticker.C:
			_ = client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.unregister(client)
				return
			}
		}
	}
}

// readPump discards client messages; it exists to notice disconnects and
// keep the read deadline moving on pongs.
func (h *Hub) readPump(client *Client) {
	defer func() {
		h.unregister(client)
		h.logger.Debug("websocket client disconnected", slog.String("user_id", client.userID))
	}()

	_ = client.conn.SetReadDeadline(time.Now().Add(pongWait))
	client.conn.SetPongHandler(func(string) error {
		return client.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("websocket read error", slog.String("user_id", client.userID), slog.Any("error", err))
			}
			return
		}
	}
}
