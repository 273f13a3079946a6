package authproxy

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"go-chatbot/internal/authclient"
	"go-chatbot/internal/response"
)

const (
	msgUnauthorized = "Authentication failed"
	msgUnavailable  = "Authentication service unavailable"
)

type Upstream interface {
	Login(ctx context.Context, code string) (json.RawMessage, error)
	Logout(ctx context.Context, authorization string) error
}

type loginRequest struct {
	Token string `json:"token"`
}

// Handler exposes /Auth/login and /Auth/logout on the chat API so browsers
// only ever talk to one origin.
type Handler struct {
	upstream Upstream
	log      zerolog.Logger
}

func NewHandler(upstream Upstream, log zerolog.Logger) *Handler {
	return &Handler{upstream: upstream, log: log}
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log.Error().Err(err).Str("module", "ChatAuthRoutes/login").Str("actor", "").Msg("decode login request")
		response.Failed(w, msgUnauthorized, nil)
		return
	}

	result, err := h.upstream.Login(r.Context(), req.Token)
	if err != nil {
		h.log.Error().Err(err).Str("module", "ChatAuthRoutes/login").Str("actor", "").Msg("login failed")
		response.Failed(w, message(err), nil)
		return
	}
	response.OK(w, result)
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if authorization := r.Header.Get("Authorization"); authorization != "" {
		if err := h.upstream.Logout(r.Context(), authorization); err != nil {
			h.log.Error().Err(err).Str("module", "ChatAuthRoutes/logout").Str("actor", "").Msg("logout failed")
			response.Failed(w, message(err), nil)
			return
		}
	}
	response.OK(w, nil)
}

func message(err error) string {
	return response.ErrorMessage(err, response.Messages{
		authclient.ErrUnauthorized: msgUnauthorized,
		authclient.ErrUnavailable:  msgUnavailable,
	})
}
