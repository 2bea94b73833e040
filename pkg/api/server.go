// Package api serves the chat UI's data layer, the live chat endpoints and
// the WebSocket stream over HTTP.
package api

import (
	"context"
	"net/http"
	"slices"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/codeready-toolchain/design-team/pkg/config"
	"github.com/codeready-toolchain/design-team/pkg/database"
	"github.com/codeready-toolchain/design-team/pkg/events"
	"github.com/codeready-toolchain/design-team/pkg/services"
)

// Server is the HTTP API server.
type Server struct {
	cfg            *config.Config
	engine         *gin.Engine
	httpServer     *http.Server
	dbClient       *database.Client
	threadService  *services.ThreadService
	chatService    *services.ChatService
	connManager    *events.ConnectionManager
	eventPublisher *events.EventPublisher
	gatherer       prometheus.Gatherer
	upgrader       websocket.Upgrader
}

// NewServer creates a new API server with all routes registered.
// connManager and gatherer may be nil.
func NewServer(
	cfg *config.Config,
	dbClient *database.Client,
	threadService *services.ThreadService,
	chatService *services.ChatService,
	connManager *events.ConnectionManager,
	gatherer prometheus.Gatherer,
) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()

	s := &Server{
		cfg:           cfg,
		engine:        engine,
		dbClient:      dbClient,
		threadService: threadService,
		chatService:   chatService,
		connManager:   connManager,
		gatherer:      gatherer,
		upgrader: websocket.Upgrader{
			CheckOrigin: originChecker(cfg.AllowedWSOrigins),
		},
	}

	s.setupRoutes()
	return s
}

// SetEventPublisher sets the publisher used to announce thread deletions.
func (s *Server) SetEventPublisher(p *events.EventPublisher) {
	s.eventPublisher = p
}

// setupRoutes registers all API routes.
func (s *Server) setupRoutes() {
	s.engine.Use(gin.Recovery(), requestLogger(), securityHeaders())

	s.engine.GET("/health", s.healthHandler)
	if s.gatherer != nil {
		s.engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	}

	v1 := s.engine.Group("/api/v1")

	threads := v1.Group("/threads")
	threads.GET("", s.listThreadsHandler)
	threads.GET("/:id", s.getThreadHandler)
	threads.GET("/:id/author", s.getThreadAuthorHandler)
	threads.PATCH("/:id", s.updateThreadHandler)
	threads.DELETE("/:id", s.deleteThreadHandler)
	threads.GET("/:id/elements/:element_id", s.getElementHandler)
	threads.POST("/:id/elements", s.createElementHandler)
	threads.DELETE("/:id/elements/:element_id", s.deleteElementHandler)

	v1.POST("/steps", s.createStepHandler)
	v1.PATCH("/steps/:id", s.updateStepHandler)
	v1.DELETE("/steps/:id", s.deleteStepHandler)

	v1.GET("/users/:identifier", s.getUserHandler)
	v1.POST("/users", s.createUserHandler)

	v1.PUT("/feedback", s.upsertFeedbackHandler)
	v1.DELETE("/feedback/:id", s.deleteFeedbackHandler)

	chats := v1.Group("/chats")
	chats.POST("", s.startChatHandler)
	chats.POST("/:id/messages", s.sendMessageHandler)
	chats.POST("/:id/stop", s.stopChatHandler)
	chats.POST("/:id/end", s.endChatHandler)
	chats.POST("/:id/resume", s.resumeChatHandler)

	v1.GET("/ws", s.wsHandler)
}

// Handler returns the HTTP handler. Used by tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start starts the HTTP server on the given address. Blocks until the
// server stops.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server. Open WebSocket
// connections are closed first since http.Server does not track hijacked
// connections.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.connManager != nil {
		s.connManager.CloseAll()
	}
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// originChecker builds the WebSocket origin policy. An empty list keeps
// gorilla's same-origin check; "*" accepts any origin.
func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return nil
	}
	if slices.Contains(allowed, "*") {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || slices.Contains(allowed, origin)
	}
}
