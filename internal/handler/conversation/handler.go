package conversation

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/zhouzirui/realtime-relay/backend/internal/model/transcript"
	conversationsvc "github.com/zhouzirui/realtime-relay/backend/internal/service/conversation"
	"github.com/zhouzirui/realtime-relay/backend/pkg/utils"
)

const (
	pongWait     = 60 * time.Second
	pingInterval = 54 * time.Second
	writeWait    = 10 * time.Second
)

// Store is the read side of the conversation store.
type Store interface {
	Get(ctx context.Context, conversationID string) (transcript.Conversation, error)
	Subscribe(conversationID string) (<-chan transcript.Utterance, func())
}

// Handler exposes stored conversations and their live feeds.
type Handler struct {
	store        Store
	upgrader     websocket.Upgrader
	pingInterval time.Duration
}

// New creates a conversation handler. Origin checks for the websocket feed
// are left to the CORS middleware in front of it.
func New(store Store) *Handler {
	return &Handler{
		store: store,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		pingInterval: pingInterval,
	}
}

// RegisterRoutes mounts conversation lookup and the live feeds.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/conversations/{id}", h.HandleGet)
	r.Get("/conversations/{id}/ws", h.handleWebSocket)
	r.Get("/conversations/{id}/events", h.handleEvents)
}

// HandleGet answers with the stored conversation or 404.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	conv, err := h.store.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, conversationsvc.ErrConversationNotFound) {
			utils.RespondError(w, http.StatusNotFound, "conversation not found")
			return
		}
		zerolog.Ctx(r.Context()).Error().Err(err).Str("conversation_id", id).Msg("conversation lookup failed")
		utils.RespondError(w, http.StatusInternalServerError, "failed to load conversation")
		return
	}

	utils.RespondJSON(w, http.StatusOK, conv)
}

// handleWebSocket pushes each utterance appended after the upgrade as a JSON
// text frame. The conversation need not exist yet.
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	log := zerolog.Ctx(r.Context()).With().Str("conversation_id", id).Logger()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	feed, cancel := h.store.Subscribe(id)
	defer cancel()

	done := make(chan struct{})
	go h.readPump(conn, done)

	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	log.Debug().Msg("websocket feed opened")
	for {
		select {
		case <-done:
			log.Debug().Msg("websocket feed closed by client")
			return
		case <-r.Context().Done():
			return
		case u, ok := <-feed:
			if !ok {
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "feed ended"))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(u); err != nil {
				log.Warn().Err(err).Msg("websocket write failed")
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump drains client frames so pongs and close frames are processed.
func (h *Handler) readPump(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// handleEvents is the Server-Sent Events rendition of the live feed.
func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	feed, cancel := h.store.Subscribe(id)
	defer cancel()

	utils.SetupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)
	if err := utils.SendSSEComment(w, flusher, "subscribed"); err != nil {
		return
	}

	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case u, ok := <-feed:
			if !ok {
				_ = utils.SendSSEEvent(w, flusher, "end", map[string]string{"conversationId": id})
				return
			}
			if err := utils.SendSSEEvent(w, flusher, "utterance", u); err != nil {
				return
			}
		case <-ticker.C:
			if err := utils.SendSSEComment(w, flusher, "keep-alive"); err != nil {
				return
			}
		}
	}
}
