package httpserver

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"carnetsante/internal/config"
	"carnetsante/internal/relay"
	"carnetsante/internal/security"
	"carnetsante/internal/service"
	"carnetsante/internal/store"
)

// NewRouter constructs the main HTTP router and wires routes, services, and
// middleware.
func NewRouter(cfg *config.Config, repos *store.Repositories, rly *relay.Relay, tokenSvc *security.TokenService, encryptor *security.Encryptor) http.Handler {
	r := chi.NewRouter()

	// Middlewares
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Services
	convSvc := service.NewConversationService(repos.Users, repos.Conversations)
	msgSvc := service.NewMessageService(repos.Conversations, repos.Messages, encryptor, cfg.MaxMessageLength, cfg.MaxMessageHistory)

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"message":"Carnet de Santé Messaging Relay","version":"1.0.0"}`))
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	})

	// REST collaborators (conversation listing, history, creation/archival)
	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(AuthMiddleware(tokenSvc, repos.Users))

			r.Get("/contacts", handleListContacts(convSvc))

			r.Route("/conversations", func(r chi.Router) {
				r.Post("/", handleCreateConversation(convSvc))
				r.Get("/", handleListConversations(convSvc, msgSvc))
				r.Get("/{conversationID}", handleGetConversation(convSvc, msgSvc))
				r.Post("/{conversationID}/archive", handleArchiveConversation(convSvc))
				r.Post("/{conversationID}/read", handleMarkConversationRead(msgSvc))
				r.Get("/{conversationID}/messages", handleListMessages(msgSvc))
			})
		})
	})

	// Persistent messaging connection
	r.Get("/ws", relay.MakeHandler(rly, tokenSvc, repos.Users, convSvc, msgSvc, cfg.CORSOrigins))

	return r
}

// writeJSON is a small helper to send JSON responses.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}
