package ws

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"
)

// MessageType defines the type of WebSocket message
type MessageType string

const (
	MsgSubscribed         MessageType = "subscribed"
	MsgQuestionReady      MessageType = "question_ready"
	MsgInterviewCompleted MessageType = "interview_completed"
	MsgError              MessageType = "error"
)

// Message is the WebSocket envelope format
type Message struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Hub fans interview events out to every socket watching that interview
type Hub struct {
	// interviewID -> connections
	conns map[string]map[*Connection]struct{}

	mu sync.RWMutex

	// Channels for coordination
	register   chan *Connection
	unregister chan *Connection
	broadcast  chan *BroadcastMessage
	done       chan struct{}

	log zerolog.Logger
}

// Connection represents a WebSocket connection
type Connection struct {
	InterviewID string
	OwnerID     string
	Send        chan []byte
	Hub         *Hub
}

// BroadcastMessage is a message to broadcast
type BroadcastMessage struct {
	InterviewID string
	Message     *Message
}

// NewHub creates a new WebSocket hub
func NewHub(logger zerolog.Logger) *Hub {
	h := &Hub{
		conns:      make(map[string]map[*Connection]struct{}),
		register:   make(chan *Connection),
		unregister: make(chan *Connection),
		broadcast:  make(chan *BroadcastMessage, 256),
		done:       make(chan struct{}),
		log:        logger.With().Str("component", "ws").Logger(),
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	for {
		select {
		case <-h.done:
			h.mu.Lock()
			for id, set := range h.conns {
				for conn := range set {
					close(conn.Send)
				}
				delete(h.conns, id)
			}
			h.mu.Unlock()
			return

		case conn := <-h.register:
			h.mu.Lock()
			if h.conns[conn.InterviewID] == nil {
				h.conns[conn.InterviewID] = make(map[*Connection]struct{})
			}
			h.conns[conn.InterviewID][conn] = struct{}{}
			h.mu.Unlock()
			h.log.Debug().Str("interview", conn.InterviewID).Str("owner", conn.OwnerID).Msg("socket subscribed")

			data, _ := json.Marshal(&Message{
				Type:    MsgSubscribed,
				Payload: mustJSON(map[string]string{"interviewId": conn.InterviewID}),
			})
			trySend(conn, data)

		case conn := <-h.unregister:
			h.mu.Lock()
			if set, ok := h.conns[conn.InterviewID]; ok {
				if _, ok := set[conn]; ok {
					delete(set, conn)
					close(conn.Send)
					if len(set) == 0 {
						delete(h.conns, conn.InterviewID)
					}
					h.log.Debug().Str("interview", conn.InterviewID).Msg("socket unsubscribed")
				}
			}
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.mu.RLock()
			data, _ := json.Marshal(msg.Message)
			for conn := range h.conns[msg.InterviewID] {
				trySend(conn, data)
			}
			h.mu.RUnlock()
		}
	}
}

// Drop message if buffer full
func trySend(conn *Connection, data []byte) {
	select {
	case conn.Send <- data:
	default:
	}
}

func mustJSON(v interface{}) json.RawMessage {
	data, _ := json.Marshal(v)
	return data
}

// Register adds a connection
func (h *Hub) Register(conn *Connection) {
	select {
	case h.register <- conn:
	case <-h.done:
		close(conn.Send)
	}
}

// Unregister removes a connection
func (h *Hub) Unregister(conn *Connection) {
	select {
	case h.unregister <- conn:
	case <-h.done:
	}
}

// Close disconnects every socket and stops the hub
func (h *Hub) Close() {
	close(h.done)
}

// Subscribers counts sockets watching an interview
func (h *Hub) Subscribers(interviewID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns[interviewID])
}

// BroadcastToInterview sends a message to every socket on an interview (implements service.Broadcaster)
func (h *Hub) BroadcastToInterview(interviewID string, msgType string, payload interface{}) {
	data, _ := json.Marshal(payload)
	msg := &BroadcastMessage{
		InterviewID: interviewID,
		Message: &Message{
			Type:    MessageType(msgType),
			Payload: data,
		},
	}
	select {
	case h.broadcast <- msg:
	default:
		h.log.Warn().Str("interview", interviewID).Str("type", msgType).Msg("broadcast queue full, event dropped")
	}
}
