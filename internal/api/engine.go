// Package api exposes the action dispatcher over HTTP with gin.
package api

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/wangfeng/cherrycake-gateway/pkg/router"
	"github.com/wangfeng/cherrycake-gateway/pkg/security"
)

// EngineConfig holds what the HTTP engine is built from
type EngineConfig struct {
	Actions  *router.Actions
	CSRF     *security.CSRF
	Gatherer prometheus.Gatherer
	Logger   *slog.Logger
	Version  string
}

// NewEngine builds the gin engine: admin API and metrics on fixed routes,
// every other request dispatched to the mapped actions.
func NewEngine(cfg EngineConfig) *gin.Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	engine := gin.New()
	engine.Use(gin.Recovery(), CORS(), RequestLogger(logger))
	if cfg.CSRF != nil {
		engine.Use(CSRFCookie(cfg.CSRF))
	}

	NewAdminHandler(cfg.Actions, cfg.Gatherer, cfg.Version).RegisterRoutes(engine)
	NewDispatcher(cfg.Actions, logger).RegisterRoutes(engine)
	return engine
}
