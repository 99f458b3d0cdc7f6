package api

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/mcoot/bananaclick/internal/api/handler"
	"github.com/mcoot/bananaclick/internal/api/middleware"
	rootmiddleware "github.com/mcoot/bananaclick/internal/middleware"
	"github.com/mcoot/bananaclick/internal/services/auth"
	"github.com/mcoot/bananaclick/internal/services/ranking"
	"github.com/mcoot/bananaclick/internal/services/users"
)

// RouterConfig holds configuration for the API router
type RouterConfig struct {
	Logger         *slog.Logger
	AuthService    *auth.Service
	UsersService   *users.Service
	RankingService *ranking.Service
	Store          handler.Pinger
	Presence       handler.PresenceCounter
	Connections    handler.ConnectionCounter

	// Realtime transports, mounted at /ws and /events when set
	WSHandler  http.Handler
	SSEHandler http.Handler

	// AllowedOrigins lists browser origins allowed by CORS; "*" allows any
	AllowedOrigins []string
	// SecureCookies marks the session cookie Secure
	SecureCookies bool
}

// NewRouter creates a new router with all routes configured
func NewRouter(cfg RouterConfig) http.Handler {
	r := mux.NewRouter()

	// Create handlers
	authHandler := handler.NewAuthHandler(cfg.AuthService, cfg.SecureCookies)
	usersHandler := handler.NewUsersHandler(cfg.UsersService)
	rankingsHandler := handler.NewRankingsHandler(cfg.RankingService)
	systemHandler := handler.NewSystemHandler(cfg.Store, cfg.Presence, cfg.Connections, cfg.Logger)

	// Create middleware
	authMiddleware := middleware.Auth(cfg.AuthService)
	loggingMiddleware := rootmiddleware.Logging(cfg.Logger)
	recoveryMiddleware := middleware.Recovery(cfg.Logger)

	// API subrouter with common middleware
	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(recoveryMiddleware)
	api.Use(loggingMiddleware)

	// Auth routes (no auth required to register or log in)
	api.HandleFunc("/auth/register", authHandler.Register).Methods(http.MethodPost)
	api.HandleFunc("/auth/login", authHandler.Login).Methods(http.MethodPost)

	// Protected auth routes
	authProtected := api.PathPrefix("/auth").Subrouter()
	authProtected.Use(authMiddleware)
	authProtected.HandleFunc("/logout", authHandler.Logout).Methods(http.MethodPost)
	authProtected.HandleFunc("/me", authHandler.GetMe).Methods(http.MethodGet)

	// Rankings (any authenticated user)
	rankings := api.PathPrefix("/rankings").Subrouter()
	rankings.Use(authMiddleware)
	rankings.HandleFunc("", rankingsHandler.Get).Methods(http.MethodGet)

	// User routes (all require auth; reading yourself is allowed to players)
	userRoutes := api.PathPrefix("/users").Subrouter()
	userRoutes.Use(authMiddleware)
	userRoutes.HandleFunc("/{id}", usersHandler.Get).Methods(http.MethodGet)

	admin := userRoutes.NewRoute().Subrouter()
	admin.Use(middleware.RequireAdmin)
	admin.HandleFunc("", usersHandler.List).Methods(http.MethodGet)
	admin.HandleFunc("", usersHandler.Create).Methods(http.MethodPost)
	admin.HandleFunc("/{id}", usersHandler.Update).Methods(http.MethodPut)
	admin.HandleFunc("/{id}", usersHandler.Delete).Methods(http.MethodDelete)
	admin.HandleFunc("/{id}/block", usersHandler.SetBlocked).Methods(http.MethodPut)
	admin.HandleFunc("/{id}/reset", usersHandler.Reset).Methods(http.MethodPost)

	// Health check endpoint (no auth)
	api.HandleFunc("/health", systemHandler.Health).Methods(http.MethodGet)

	// Stats (admin)
	stats := api.PathPrefix("/stats").Subrouter()
	stats.Use(authMiddleware, middleware.RequireAdmin)
	stats.HandleFunc("", systemHandler.Stats).Methods(http.MethodGet)

	// Realtime transports authenticate during their own handshake
	if cfg.WSHandler != nil {
		r.Handle("/ws", cfg.WSHandler).Methods(http.MethodGet)
	}
	if cfg.SSEHandler != nil {
		r.Handle("/events", cfg.SSEHandler).Methods(http.MethodGet)
	}

	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodDelete,
		},
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedHeaders:   []string{"Authorization", "Content-Type", rootmiddleware.RequestIDHeader},
		ExposedHeaders:   []string{rootmiddleware.RequestIDHeader},
		AllowCredentials: true,
	})

	return c.Handler(r)
}
