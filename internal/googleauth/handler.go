package googleauth

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"go-chatbot/internal/identity"
	myMiddleware "go-chatbot/internal/middleware"
	"go-chatbot/internal/response"
	"go-chatbot/internal/session"
)

type LoginRequest struct {
	Token string `json:"token"`
}

type AuthResponse struct {
	Token string        `json:"token"`
	User  identity.User `json:"user"`
}

type VerifyResponse struct {
	Valid bool           `json:"valid"`
	User  *identity.User `json:"user,omitempty"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

// SessionManager is what the handler needs from session.Manager.
type SessionManager interface {
	Issue(u identity.User) (string, error)
	Verify(token string) (identity.User, error)
	Revoke(token string)
}

// Handler serves the identity service's /GoogleAuth routes.
type Handler struct {
	exchanger identity.Exchanger
	sessions  SessionManager
	log       zerolog.Logger
}

func NewHandler(exchanger identity.Exchanger, sessions SessionManager, log zerolog.Logger) *Handler {
	return &Handler{exchanger: exchanger, sessions: sessions, log: log}
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log.Error().Err(err).Str("module", "GoogleAuthRoutes/Login").Msg("decode login request")
		response.JSON(w, http.StatusUnauthorized, errorResponse{Detail: "Invalid Google token"})
		return
	}

	user, err := h.exchanger.ExchangeCode(r.Context(), req.Token)
	if err != nil {
		h.log.Error().Err(err).Str("module", "GoogleAuthRoutes/Login").Msg("google code exchange failed")
		response.JSON(w, http.StatusUnauthorized, errorResponse{Detail: "Invalid Google token"})
		return
	}

	token, err := h.sessions.Issue(user)
	if err != nil {
		h.log.Error().Err(err).Str("module", "GoogleAuthRoutes/Login").Str("actor", user.Email).Msg("issue session token")
		response.JSON(w, http.StatusUnauthorized, errorResponse{Detail: "Invalid Google token"})
		return
	}

	response.JSON(w, http.StatusOK, AuthResponse{Token: token, User: user})
}

func (h *Handler) VerifyToken(w http.ResponseWriter, r *http.Request) {
	token := myMiddleware.BearerToken(r)
	if token == "" {
		response.JSON(w, http.StatusUnauthorized, errorResponse{Detail: "Valid token required"})
		return
	}

	user, err := h.sessions.Verify(token)
	if err != nil {
		h.log.Warn().Err(err).Str("module", "GoogleAuthRoutes/VerifyToken").Msg("token rejected")
		response.JSON(w, http.StatusUnauthorized, errorResponse{Detail: verifyDetail(err)})
		return
	}

	response.JSON(w, http.StatusOK, VerifyResponse{Valid: true, User: &user})
}

// Logout always succeeds; unknown or missing tokens are a no-op.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if token := myMiddleware.BearerToken(r); token != "" {
		h.sessions.Revoke(token)
	}
	response.JSON(w, http.StatusOK, map[string]string{"message": "Logged out successfully"})
}

func verifyDetail(err error) string {
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		return "Invalid or expired session"
	case errors.Is(err, session.ErrExpired):
		return "Token expired"
	default:
		return "Valid token required"
	}
}
