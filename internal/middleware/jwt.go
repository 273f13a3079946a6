package myMiddleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"go-chatbot/internal/identity"
	"go-chatbot/internal/response"
)

type contextKey string

const UserKey contextKey = "user"

// TokenValidator decouples the middleware from whoever actually checks
// session tokens (the identity service, reached over HTTP).
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (identity.User, error)
}

type AuthMiddleware struct {
	validator TokenValidator
	log       zerolog.Logger
}

func NewAuthMiddleware(v TokenValidator, log zerolog.Logger) *AuthMiddleware {
	return &AuthMiddleware{validator: v, log: log}
}

func (am *AuthMiddleware) Handle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := BearerToken(r)
		if token == "" {
			response.Unauthorized(w, "Missing authentication token")
			return
		}

		user, err := am.validator.ValidateToken(r.Context(), token)
		if err != nil {
			am.log.Warn().Err(err).Str("module", "VerifyAuth").Str("path", r.URL.Path).Msg("token rejected")
			response.Unauthorized(w, "Invalid token")
			return
		}

		ctx := context.WithValue(r.Context(), UserKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// BearerToken reads the token from the Authorization header, falling back
// to the token query parameter that browsers use for WebSocket upgrades.
func BearerToken(r *http.Request) string {
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		scheme, token, ok := strings.Cut(authHeader, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
	}
	return r.URL.Query().Get("token")
}

func UserFromContext(ctx context.Context) (identity.User, bool) {
	u, ok := ctx.Value(UserKey).(identity.User)
	return u, ok
}
