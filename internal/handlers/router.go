package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/iyunix/go-designdesk/internal/logger"
	"github.com/iyunix/go-designdesk/internal/middleware"
	"github.com/iyunix/go-designdesk/internal/ratelimit"
	"github.com/iyunix/go-designdesk/internal/realtime"
	"github.com/iyunix/go-designdesk/internal/services/identity"
	"github.com/iyunix/go-designdesk/internal/services/messaging"
)

// RouterDeps collects what the HTTP surface needs.
type RouterDeps struct {
	APIKey       string
	Identity     *identity.Service
	Messaging    *messaging.Service
	Hub          *realtime.Hub
	WriteLimiter *ratelimit.MemoryRateLimiter // optional
	Logger       logger.Logger
}

// NewRouter wires every route behind the api key and token middleware.
func NewRouter(d RouterDeps) *mux.Router {
	log := d.Logger
	if log == nil {
		log = logger.NewNop()
	}

	identityHandler := NewIdentityHandler(d.Identity, log)
	messageHandler := NewMessageHandler(d.Messaging, log)
	realtimeHandler := NewRealtimeHandler(d.Hub, log)
	logHandler := NewLogHandler(log)

	r := mux.NewRouter()
	r.Use(middleware.RecoverPanic(log))
	r.Use(middleware.LoggingMiddleware(log))
	r.Use(middleware.RequireAPIKey(d.APIKey, log))
	r.Use(middleware.Authenticate(d.Identity, log))

	writes := func(h http.HandlerFunc) http.Handler {
		var handler http.Handler = h
		if d.WriteLimiter != nil {
			handler = middleware.RateLimitMiddleware(d.WriteLimiter, "message_write", log)(handler)
		}
		return middleware.RequireAccount(handler)
	}

	authRouter := r.PathPrefix("/auth/v1").Subrouter()
	authRouter.HandleFunc("/signup", identityHandler.Signup).Methods(http.MethodPost)
	authRouter.HandleFunc("/token", identityHandler.Token).Methods(http.MethodPost)

	rest := r.PathPrefix("/rest/v1").Subrouter()
	rest.Handle("/users/me", middleware.RequireAccount(http.HandlerFunc(identityHandler.PutOwnProfile))).Methods(http.MethodPut)
	rest.HandleFunc("/users/{id}", identityHandler.GetProfile).Methods(http.MethodGet)
	rest.HandleFunc("/conversations", messageHandler.Conversations).Methods(http.MethodGet)
	rest.HandleFunc("/messages", messageHandler.List).Methods(http.MethodGet)
	rest.Handle("/messages", writes(messageHandler.Create)).Methods(http.MethodPost)
	rest.Handle("/messages/{id}", writes(messageHandler.Update)).Methods(http.MethodPatch)
	rest.Handle("/messages/{id}", writes(messageHandler.Delete)).Methods(http.MethodDelete)
	rest.HandleFunc("/client-logs", logHandler.Report).Methods(http.MethodPost)

	r.HandleFunc("/realtime/v1/websocket", realtimeHandler.Serve).Methods(http.MethodGet)

	r.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)

	return r
}
