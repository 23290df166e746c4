package router

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"sync-admin/internal/adapter/gin/handler"
	"sync-admin/internal/adapter/gin/middleware"
)

// HealthChecker reports whether a dependency is reachable.
type HealthChecker func(ctx context.Context) error

// Config carries what the router needs besides the handlers.
type Config struct {
	ServiceName    string
	MetricsHandler http.Handler // defaults to promhttp.Handler()
	Checks         map[string]HealthChecker
}

// SetupRouter configures and returns a Gin router with all routes and middleware
func SetupRouter(
	tableHandler *handler.TableHandler,
	streamHandler *handler.StreamHandler,
	rateLimiter *middleware.RateLimiter,
	cfg Config,
	log *zap.Logger,
) *gin.Engine {
	router := gin.New()

	// Global middleware
	router.Use(middleware.Recovery(log))
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(log))

	router.GET("/health", health(cfg))

	metricsHandler := cfg.MetricsHandler
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}
	router.GET("/metrics", gin.WrapH(metricsHandler))

	// API v1 routes
	v1 := router.Group("/v1")
	v1.Use(rateLimiter.Middleware())
	{
		v1.POST("/tables/:table/sessions", tableHandler.CreateSession)

		sessions := v1.Group("/sessions/:id")
		{
			sessions.GET("", tableHandler.GetSession)
			sessions.DELETE("", tableHandler.DeleteSession)
			sessions.PUT("/search", tableHandler.Search)
			sessions.POST("/sort", tableHandler.Sort)
			sessions.PUT("/page", tableHandler.SetPage)
			sessions.POST("/refresh", tableHandler.Refresh)
			sessions.GET("/export", tableHandler.Export)
			sessions.GET("/stream", streamHandler.Stream)
		}
	}

	return router
}

func health(cfg Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		checks := make(map[string]string, len(cfg.Checks))
		for name, check := range cfg.Checks {
			if err := check(ctx); err != nil {
				checks[name] = err.Error()
				status = http.StatusServiceUnavailable
				continue
			}
			checks[name] = "ok"
		}

		state := "healthy"
		if status != http.StatusOK {
			state = "unhealthy"
		}
		c.JSON(status, gin.H{
			"status":  state,
			"service": cfg.ServiceName,
			"checks":  checks,
		})
	}
}
