package api

import (
	"fmt"
	"log"
	"net"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kubestellar/console-assistant/pkg/api/handlers"
	"github.com/kubestellar/console-assistant/pkg/api/middleware"
	"github.com/kubestellar/console-assistant/pkg/assistant"
	"github.com/kubestellar/console-assistant/pkg/store"
)

// Config holds server configuration
type Config struct {
	Port        int
	JWTSecret   string
	FrontendURL string
	// DisableRequestLog turns off the per-request access log
	DisableRequestLog bool
}

// Server represents the API server
type Server struct {
	app         *fiber.App
	config      Config
	hub         *handlers.Hub
	session     *assistant.Session
	store       store.Store
	refresh     handlers.Refresher
	unsubscribe func()
}

// NewServer creates a new API server around an assistant session. st and
// refresh may be nil.
func NewServer(cfg Config, session *assistant.Session, st store.Store, refresh handlers.Refresher) (*Server, error) {
	if session == nil {
		return nil, fmt.Errorf("assistant session is required")
	}

	app := fiber.New(fiber.Config{
		ErrorHandler:          customErrorHandler,
		ReadBufferSize:        16384,
		DisableStartupMessage: true,
	})

	hub := handlers.NewHub(func() interface{} {
		return handlers.NewStateResponse(session.State())
	})
	hub.SetJWTSecret(cfg.JWTSecret)
	go hub.Run()

	server := &Server{
		app:     app,
		config:  cfg,
		hub:     hub,
		session: session,
		store:   st,
		refresh: refresh,
	}
	server.unsubscribe = session.Subscribe(hub)

	server.setupMiddleware()
	server.setupRoutes()

	return server, nil
}

func (s *Server) setupMiddleware() {
	s.app.Use(recover.New())

	if !s.config.DisableRequestLog {
		s.app.Use(logger.New(logger.Config{
			Format:     "${time} | ${status} | ${latency} | ${method} ${path}\n",
			TimeFormat: "15:04:05",
		}))
	}

	if s.config.FrontendURL != "" {
		s.app.Use(cors.New(cors.Config{
			AllowOrigins:     s.config.FrontendURL,
			AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS",
			AllowHeaders:     "Origin,Content-Type,Accept,Authorization",
			AllowCredentials: true,
		}))
	}
}

func (s *Server) setupRoutes() {
	s.app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":      "ok",
			"backends":    len(s.session.State().Backends),
			"connections": s.hub.ConnectionCount(),
		})
	})

	s.app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	api := s.app.Group("/api", middleware.JWTAuth(s.config.JWTSecret))

	h := handlers.NewAssistantHandler(s.session, s.store, s.refresh)
	a := api.Group("/assistant")
	a.Get("/state", h.GetState)
	a.Get("/backends", h.ListBackends)
	a.Get("/models/tree", h.GetModelTree)
	a.Put("/selection/backend", h.SelectBackend)
	a.Put("/selection/model", h.SelectModel)
	a.Put("/selection/task", h.SelectTask)
	a.Put("/editor", h.SetEditor)
	a.Post("/query", h.Query)
	a.Post("/feedback", h.Feedback)
	a.Get("/codeblocks", h.ListCodeBlocks)
	a.Post("/codeblocks/apply", h.ApplyCodeBlock)
	a.Post("/codeblocks/diff", h.DiffCodeBlock)
	a.Get("/history", h.History)
	a.Post("/refresh", h.Refresh)
	a.Post("/refresh/stream", h.RefreshStream)

	// WebSocket for state snapshots; auth happens in the first message
	s.app.Use("/ws", middleware.WebSocketUpgrade())
	s.app.Get("/ws", websocket.New(func(c *websocket.Conn) {
		s.hub.HandleConnection(c)
	}))
}

// App returns the underlying fiber app
func (s *Server) App() *fiber.App {
	return s.app
}

// NotifyConfigChanged tells connected clients the host configuration was reloaded
func (s *Server) NotifyConfigChanged(source string) {
	s.hub.BroadcastAll(handlers.Message{
		Type: handlers.MessageTypeConfigChanged,
		Data: map[string]string{"source": source},
	})
}

// Start starts the server
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.config.Port)
	log.Printf("[api] starting server on %s", addr)
	return s.app.Listen(addr)
}

// Serve serves on an existing listener
func (s *Server) Serve(ln net.Listener) error {
	log.Printf("[api] serving on %s", ln.Addr())
	return s.app.Listener(ln)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown() error {
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
	s.hub.Close()
	return s.app.Shutdown()
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	return c.Status(code).JSON(fiber.Map{
		"error": message,
	})
}
