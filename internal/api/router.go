package api

import (
	"github.com/gorilla/mux"

	"github.com/workmate-hq/workmate/internal/api/recovery"
	"github.com/workmate-hq/workmate/internal/auth"
	"github.com/workmate-hq/workmate/internal/domain"
	"github.com/workmate-hq/workmate/internal/engine"
	"github.com/workmate-hq/workmate/internal/health"
	"github.com/workmate-hq/workmate/internal/store"
)

// Deps bundles everything the router needs.
type Deps struct {
	Store      store.Store
	Engine     *engine.Engine
	Services   *domain.Services
	Authorizer auth.Authorizer
	Health     HealthReporter
	Pinger     health.HealthPinger
}

// NewRouter wires all API routes.
func NewRouter(d Deps) *mux.Router {
	router := mux.NewRouter()
	router.Use(recovery.Middleware)

	chatHandler := NewChatHandler(d.Engine, d.Store, d.Authorizer)
	domainHandler := NewDomainHandler(d.Services, d.Authorizer)
	healthHandler := NewHealthHandler(d.Health, d.Pinger)

	// Health endpoints
	router.HandleFunc("/api/health", healthHandler.CheckHealth).Methods("GET")
	router.HandleFunc("/api/health/db", healthHandler.CheckStorageHealth).Methods("GET")

	// Chat endpoints
	router.HandleFunc("/api/chat", chatHandler.HandleChat).Methods("POST")
	router.HandleFunc("/api/chat/conversations", chatHandler.ListConversations).Methods("GET")
	router.HandleFunc("/api/chat/conversations/{conversationId:[0-9a-fA-F-]{36}}", chatHandler.GetConversation).Methods("GET")
	router.HandleFunc("/api/chat/conversations/{conversationId:[0-9a-fA-F-]{36}}/archive", chatHandler.ArchiveConversation).Methods("POST")

	// Domain read endpoints
	router.HandleFunc("/api/leaves", domainHandler.ListLeaves).Methods("GET")
	router.HandleFunc("/api/leaves/balance", domainHandler.GetLeaveBalance).Methods("GET")
	router.HandleFunc("/api/rooms", domainHandler.ListRooms).Methods("GET")
	router.HandleFunc("/api/bookings", domainHandler.ListBookings).Methods("GET")
	router.HandleFunc("/api/claims", domainHandler.ListClaims).Methods("GET")
	router.HandleFunc("/api/claims/categories", domainHandler.ListClaimCategories).Methods("GET")

	return router
}
