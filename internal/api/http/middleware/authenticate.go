package middleware

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/keyfold/keyfold/internal/logger"
	"github.com/keyfold/keyfold/internal/model"
)

// Authenticate validates the bearer access token and puts the caller's
// identity on the request context.
type Authenticate struct {
	tokens         model.TokenManager
	contextManager model.ContextManager
	logger         *logger.Logger
}

func NewAuthenticate(tokens model.TokenManager, contextManager model.ContextManager, l *logger.Logger) *Authenticate {
	return &Authenticate{
		tokens:         tokens,
		contextManager: contextManager,
		logger:         l,
	}
}

// Handle rejects requests without a valid Authorization header.
func (m *Authenticate) Handle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		tokenString, found := strings.CutPrefix(header, "Bearer ")
		if !found || tokenString == "" {
			unauthorized(w)
			return
		}

		userID, sessionID, err := m.tokens.ParseAccessToken(tokenString)
		if err != nil {
			m.logger.Debug("access token rejected", "error", err)
			unauthorized(w)
			return
		}

		ctx := m.contextManager.SetIdentityToContext(r.Context(), userID, sessionID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": "invalid or expired credential"})
}
