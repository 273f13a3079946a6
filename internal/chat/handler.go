package chat

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"go-chatbot/internal/broker"
	myMiddleware "go-chatbot/internal/middleware"
	"go-chatbot/internal/response"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

var clientMessages = response.Messages{
	ErrEmptyMessage:             "Message cannot be empty",
	ErrSequenceAllocationFailed: "Could not allocate a message id, please try again.",
	broker.ErrPublishTimeout:    "Message saved but the relay timed out.",
	broker.ErrPublishFailed:     "Message saved but could not be relayed.",
}

type Handler struct {
	service *Service
	hub     *Hub
	log     zerolog.Logger
}

func NewHandler(service *Service, hub *Hub, log zerolog.Logger) *Handler {
	return &Handler{service: service, hub: hub, log: log}
}

func (h *Handler) PostMessage(w http.ResponseWriter, r *http.Request) {
	user, ok := myMiddleware.UserFromContext(r.Context())
	if !ok || user.Email == "" {
		response.Unauthorized(w, "Invalid token")
		return
	}

	var req PostRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log.Error().Err(err).Str("module", "ChatRoutes/PostMessage").Str("actor", user.Email).Msg("decode request")
		response.Failed(w, "Invalid request body", nil)
		return
	}

	msg, err := h.service.PostMessage(r.Context(), user.Email, req.Message)
	if err != nil {
		h.log.Error().Err(err).Str("module", "ChatRoutes/PostMessage").Str("actor", user.Email).Msg("post message failed")
		// The row survives a relay failure, so the client still gets it.
		var result any
		if isPublishError(err) {
			result = msg
		}
		response.Failed(w, response.ErrorMessage(err, clientMessages), result)
		return
	}
	response.OK(w, msg)
}

func (h *Handler) ChatHistory(w http.ResponseWriter, r *http.Request) {
	user, ok := myMiddleware.UserFromContext(r.Context())
	if !ok || user.Email == "" {
		response.Failed(w, "User not authenticated", nil)
		return
	}

	var before int64
	if raw := r.URL.Query().Get("previous_id"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			response.Failed(w, "previous_id must be an integer", nil)
			return
		}
		before = v
	}

	page, err := h.service.FetchHistory(r.Context(), user.Email, before)
	if err != nil {
		h.log.Error().Err(err).Str("module", "ChatRoutes/ChatHistory").Str("actor", user.Email).Msg("history failed")
		response.Failed(w, response.ErrorMessage(err, clientMessages), nil)
		return
	}
	response.OK(w, page)
}

// Initialize upgrades to a websocket and registers it under the user named
// in the path, replacing any earlier connection for that user.
func (h *Handler) Initialize(w http.ResponseWriter, r *http.Request) {
	user := chi.URLParam(r, "user")
	if user == "" {
		http.Error(w, "user required", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Str("module", "WebSocketRoutes/initialize").Str("actor", user).Msg("upgrade failed")
		return
	}

	client := NewClient(h.hub, conn, user, h.log)
	if !h.hub.Register(client) {
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// isPublishError reports whether err only affected the relay step.
func isPublishError(err error) bool {
	return errors.Is(err, broker.ErrPublishTimeout) || errors.Is(err, broker.ErrPublishFailed)
}
