package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/commerce/internal/health"
	idemsvc "github.com/vladislavdragonenkov/commerce/internal/service/idempotency"
)

// Server — HTTP-сервер платформы: API, webhook провайдера и health-пробы.
type Server struct {
	engine *gin.Engine
	server *http.Server
	logger *log.Entry
}

// ServerConfig — зависимости и настройки HTTP-сервера.
type ServerConfig struct {
	Addr        string
	Handlers    *Handlers
	Webhooks    *WebhookHandler
	Idempotency *idemsvc.Service
	Health      *health.Handler
	Logger      *log.Entry
}

// NewServer собирает gin-движок с маршрутами и middleware.
func NewServer(cfg ServerConfig) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = log.WithField("component", "http-server")
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(RequestLogger(logger))

	engine.GET("/health", gin.WrapH(cfg.Health))
	engine.GET("/health/live", gin.WrapF(health.LivenessHandler))
	engine.GET("/health/ready", gin.WrapF(cfg.Health.ReadinessHandler))

	api := engine.Group("/api/v1", RequireTenant())
	{
		api.POST("/carts", cfg.Handlers.CreateCart)
		api.GET("/carts/:id", cfg.Handlers.GetCart)
		api.GET("/orders/:id", cfg.Handlers.GetOrder)
		api.GET("/reconciliation", cfg.Handlers.Reconcile)

		// Мутирующие маршруты требуют Idempotency-Key.
		idem := Idempotency(cfg.Idempotency, logger)
		api.POST("/checkout", idem, cfg.Handlers.Checkout)
		api.POST("/orders/:id/refund", idem, cfg.Handlers.Refund)
	}

	engine.POST("/webhooks/:provider", cfg.Webhooks.Handle)

	return &Server{
		engine: engine,
		server: &http.Server{
			Addr:              cfg.Addr,
			Handler:           engine,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger,
	}
}

// Engine возвращает gin-движок; используется в httptest.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Start запускает сервер; блокирует до остановки.
func (s *Server) Start() error {
	s.logger.WithField("addr", s.server.Addr).Info("http server listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown останавливает сервер, дожидаясь активных запросов.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
