package ws

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jaennil/guide_helper/backend/tilestream/pkg/logger"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10

	// sendBuffer bounds the events queued for one subscriber. A subscriber
	// that falls further behind is dropped.
	sendBuffer = 256
)

var ErrHubClosed = errors.New("event hub closed")

// Event is one tileset notification as sent to subscribers.
type Event struct {
	Type       string `json:"type"`
	Frame      int64  `json:"frame"`
	TileID     *int32 `json:"tileId,omitempty"`
	URL        string `json:"url,omitempty"`
	Message    string `json:"message,omitempty"`
	Pending    *int   `json:"pendingRequests,omitempty"`
	Processing *int   `json:"tilesProcessing,omitempty"`
}

type subscriber struct {
	conn *websocket.Conn
	mu   sync.Mutex
	send chan []byte
	once sync.Once
}

// WriteMessage sends a websocket message guarded by the subscriber's mutex
// and write deadline.
func (s *subscriber) WriteMessage(messageType int, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return s.conn.WriteMessage(messageType, data)
}

func (s *subscriber) close() {
	s.once.Do(func() {
		close(s.send)
	})
}

// Hub fans tileset events out to websocket subscribers. Broadcast never
// blocks on a slow connection.
type Hub struct {
	mu          sync.Mutex
	subscribers map[*subscriber]struct{}
	closed      bool
	logger      logger.Logger
}

func NewHub(l logger.Logger) *Hub {
	return &Hub{
		subscribers: make(map[*subscriber]struct{}),
		logger:      l,
	}
}

// Subscribe registers conn and serves it until the peer goes away or the hub
// is closed. It blocks, so callers run it on the connection's goroutine.
func (h *Hub) Subscribe(conn *websocket.Conn) error {
	sub := &subscriber{conn: conn, send: make(chan []byte, sendBuffer)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return ErrHubClosed
	}
	h.subscribers[sub] = struct{}{}
	n := len(h.subscribers)
	h.mu.Unlock()

	h.logger.Debug("event subscriber joined", "remote", conn.RemoteAddr().String(), "subscribers", n)

	go h.readPump(sub)
	h.writePump(sub)
	return nil
}

// readPump discards client frames and detects disconnects.
func (h *Hub) readPump(sub *subscriber) {
	defer h.remove(sub)

	sub.conn.SetReadLimit(512)
	sub.conn.SetReadDeadline(time.Now().Add(pongWait))
	sub.conn.SetPongHandler(func(string) error {
		return sub.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := sub.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(sub *subscriber) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		h.remove(sub)
		sub.conn.Close()
	}()

	for {
		select {
		case data, ok := <-sub.send:
			if !ok {
				sub.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := sub.WriteMessage(websocket.TextMessage, data); err != nil {
				h.logger.Debug("failed to send event", "remote", sub.conn.RemoteAddr().String(), "error", err)
				return
			}
		case <-ticker.C:
			if err := sub.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) remove(sub *subscriber) {
	h.mu.Lock()
	_, ok := h.subscribers[sub]
	delete(h.subscribers, sub)
	h.mu.Unlock()
	if ok {
		sub.close()
	}
}

// Broadcast queues ev for every subscriber.
func (h *Hub) Broadcast(ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("failed to marshal event", "type", ev.Type, "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subscribers {
		select {
		case sub.send <- data:
		default:
			h.logger.Warn("dropping slow event subscriber", "remote", sub.conn.RemoteAddr().String())
			delete(h.subscribers, sub)
			sub.close()
		}
	}
}

func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}

// Close disconnects every subscriber and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for sub := range h.subscribers {
		delete(h.subscribers, sub)
		sub.close()
	}
}
