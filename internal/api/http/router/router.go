package router

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/keyfold/keyfold/internal/api/http/handler"
	"github.com/keyfold/keyfold/internal/api/http/middleware"
	"github.com/keyfold/keyfold/internal/logger"
	"github.com/keyfold/keyfold/internal/model"
	"github.com/keyfold/keyfold/internal/service"
)

// Router wires the HTTP handlers and middleware into a ServeMux.
type Router struct {
	authService    *service.Auth
	tokens         model.TokenManager
	contextManager model.ContextManager
	logger         *logger.Logger
}

func New(
	authService *service.Auth,
	tokens model.TokenManager,
	contextManager model.ContextManager,
	l *logger.Logger,
) *Router {
	return &Router{
		authService:    authService,
		tokens:         tokens,
		contextManager: contextManager,
		logger:         l,
	}
}

// Register builds the full request handler. Sign-in and refresh routes
// are open, the session-scoped routes require a bearer access token.
func (r *Router) Register() http.Handler {
	logging := middleware.NewLogging(r.logger)
	metrics := middleware.NewMetrics()
	authenticate := middleware.NewAuthenticate(r.tokens, r.contextManager, r.logger)

	authHandler := handler.NewAuth(r.authService, r.contextManager, r.logger)

	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/signin/credential", authHandler.SignInWithCredential)
	mux.HandleFunc("POST /v1/signin/provider/begin", authHandler.BeginProviderSignIn)
	mux.HandleFunc("POST /v1/signin/provider/complete", authHandler.CompleteProviderSignIn)
	mux.HandleFunc("POST /v1/signin/code", authHandler.ExchangeCode)
	mux.HandleFunc("POST /v1/token/refresh", authHandler.Refresh)

	mux.Handle("POST /v1/signout", authenticate.Handle(http.HandlerFunc(authHandler.SignOut)))
	mux.Handle("POST /v1/sessions/invalidate", authenticate.Handle(http.HandlerFunc(authHandler.InvalidateAllSessions)))

	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	return logging.Handle(metrics.Handle(mux))
}
