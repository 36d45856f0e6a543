package models

import (
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// WebSocketManager handles WebSocket connections and broadcasts
type WebSocketManager struct {
	clients    map[*websocket.Conn]bool
	broadcast  chan []byte
	register   chan registration
	unregister chan *websocket.Conn
	done       chan struct{}
	mu         sync.Mutex
	logger     zerolog.Logger
}

// NewWebSocketManager creates a new WebSocket manager
func NewWebSocketManager(logger zerolog.Logger) *WebSocketManager {
	return &WebSocketManager{
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan []byte, 64),
		register:   make(chan registration),
		unregister: make(chan *websocket.Conn),
		done:       make(chan struct{}),
		logger:     logger.With().Str("component", "websocket").Logger(),
	}
}

// Start begins the WebSocket manager
func (wsm *WebSocketManager) Start() {
	go func() {
		for {
			select {
			case <-wsm.done:
				wsm.mu.Lock()
				for client := range wsm.clients {
					client.Close()
					delete(wsm.clients, client)
				}
				wsm.mu.Unlock()
				return
			case reg := <-wsm.register:
				// The snapshot goes out before any broadcast reaches this client.
				if reg.initial != nil {
					if err := reg.conn.WriteMessage(websocket.TextMessage, reg.initial); err != nil {
						wsm.logger.Warn().Err(err).Msg("failed to send initial documents")
						reg.conn.Close()
						continue
					}
				}
				wsm.mu.Lock()
				wsm.clients[reg.conn] = true
				n := len(wsm.clients)
				wsm.mu.Unlock()
				wsm.logger.Debug().Int("clients", n).Msg("websocket client connected")
			case client := <-wsm.unregister:
				wsm.mu.Lock()
				if _, ok := wsm.clients[client]; ok {
					delete(wsm.clients, client)
					client.Close()
				}
				n := len(wsm.clients)
				wsm.mu.Unlock()
				wsm.logger.Debug().Int("clients", n).Msg("websocket client disconnected")
			case message := <-wsm.broadcast:
				wsm.mu.Lock()
				for client := range wsm.clients {
					if err := client.WriteMessage(websocket.TextMessage, message); err != nil {
						wsm.logger.Warn().Err(err).Msg("failed to send message to client")
						client.Close()
						delete(wsm.clients, client)
					}
				}
				wsm.mu.Unlock()
			}
		}
	}()
}

// Stop disconnects every client and ends the manager loop.
func (wsm *WebSocketManager) Stop() {
	close(wsm.done)
}

type registration struct {
	conn    *websocket.Conn
	initial []byte
}

// InitialDocuments is the first message a client receives after connecting.
type InitialDocuments struct {
	Type      string      `json:"type"`
	Documents []*Document `json:"documents"`
}

// DocumentUpdate is the message pushed to clients on every status transition.
type DocumentUpdate struct {
	Type        string         `json:"type"`
	ID          int64          `json:"id"`
	Status      DocumentStatus `json:"status"`
	DownloadURL string         `json:"downloadUrl,omitempty"`
	Error       string         `json:"error,omitempty"`
	Timestamp   int64          `json:"timestamp"`
}

// BroadcastDocumentUpdate sends a document update to all connected clients.
// Updates are dropped rather than blocking the caller when the hub is saturated.
func (wsm *WebSocketManager) BroadcastDocumentUpdate(doc Document) {
	update := DocumentUpdate{
		Type:        "document_update",
		ID:          doc.ID,
		Status:      doc.Status,
		DownloadURL: doc.DownloadURL,
		Error:       doc.Error,
		Timestamp:   doc.UpdatedAt.UnixMilli(),
	}

	jsonData, err := json.Marshal(update)
	if err != nil {
		wsm.logger.Error().Err(err).Msg("failed to marshal document update")
		return
	}

	select {
	case wsm.broadcast <- jsonData:
	case <-wsm.done:
	default:
		wsm.logger.Warn().Int64("document_id", doc.ID).Msg("websocket broadcast queue full, dropping update")
	}
}

// RegisterClient registers a new WebSocket client
func (wsm *WebSocketManager) RegisterClient(conn *websocket.Conn) {
	wsm.registerClient(registration{conn: conn})
}

// RegisterClientWithDocuments registers a client and sends it docs as an
// initial_documents message ahead of any update.
func (wsm *WebSocketManager) RegisterClientWithDocuments(conn *websocket.Conn, docs []*Document) error {
	if docs == nil {
		docs = []*Document{}
	}
	initial, err := json.Marshal(InitialDocuments{Type: "initial_documents", Documents: docs})
	if err != nil {
		return err
	}
	wsm.registerClient(registration{conn: conn, initial: initial})
	return nil
}

func (wsm *WebSocketManager) registerClient(reg registration) {
	select {
	case wsm.register <- reg:
	case <-wsm.done:
		reg.conn.Close()
	}
}

// UnregisterClient unregisters a WebSocket client
func (wsm *WebSocketManager) UnregisterClient(conn *websocket.Conn) {
	select {
	case wsm.unregister <- conn:
	case <-wsm.done:
	}
}
