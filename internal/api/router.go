package api

import (
	"net/http"

	"github.com/ernie/fortress-ops/internal/auth"
	"github.com/ernie/fortress-ops/internal/registry"
	"github.com/ernie/fortress-ops/internal/storage"
)

// Router holds the HTTP routes and dependencies
type Router struct {
	mux   *http.ServeMux
	store *storage.Store
	reg   *registry.Registry
	wsHub *WebSocketHub
	auth  *auth.Service
}

// NewRouter creates a new HTTP router
func NewRouter(store *storage.Store, reg *registry.Registry, authService *auth.Service) *Router {
	r := &Router{
		mux:   http.NewServeMux(),
		store: store,
		reg:   reg,
		wsHub: NewWebSocketHub(),
		auth:  authService,
	}

	// Server routes
	r.mux.HandleFunc("GET /api/servers", r.handleGetServers)
	r.mux.HandleFunc("GET /api/servers/{address}/status", r.requireAuth(r.handleGetServerStatus))

	// Operator command routes (admin only)
	r.mux.HandleFunc("POST /api/fanout", r.requireAdmin(r.handleFanOut))
	r.mux.HandleFunc("POST /api/servers/{address}/rcon", r.requireAdmin(r.handleRconCommand))

	// Leaderboards
	r.mux.HandleFunc("GET /api/leaderboards/seeders", r.handleTopSeeders)
	r.mux.HandleFunc("GET /api/leaderboards/dominations", r.handleTopDominations)

	// Identity linking
	r.mux.HandleFunc("POST /api/link-code", r.requireAuth(r.handleCreateLinkCode))

	// Auth routes
	r.mux.HandleFunc("POST /api/auth/login", r.handleLogin)
	r.mux.HandleFunc("GET /api/auth/check", r.handleAuthCheck)

	// WebSocket event stream
	r.mux.HandleFunc("GET /ws/events", r.handleWebSocket)

	// Health check
	r.mux.HandleFunc("GET /health", r.handleHealth)

	return r
}

// ServeHTTP implements http.Handler
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	// CORS headers for API
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

	if req.Method == "OPTIONS" {
		w.WriteHeader(http.StatusOK)
		return
	}

	r.mux.ServeHTTP(w, req)
}

// StartWebSocketHub starts broadcasting events to WebSocket clients
func (r *Router) StartWebSocketHub() {
	go r.wsHub.Run()
}

// Hub exposes the event hub so the ingress broker can feed it
func (r *Router) Hub() *WebSocketHub {
	return r.wsHub
}
