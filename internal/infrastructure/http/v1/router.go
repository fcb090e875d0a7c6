package v1

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jaennil/guide_helper/backend/tilestream/internal/infrastructure/http/v1/handler"
	"github.com/jaennil/guide_helper/backend/tilestream/pkg/logger"
	"github.com/jaennil/guide_helper/backend/tilestream/pkg/telemetry"
)

func NewRouter(handler *handler.Handler, l logger.Logger, telemetryEnabled bool, serviceName string) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery())

	if telemetryEnabled {
		r.Use(telemetry.GinMiddleware(serviceName))
	}

	r.Use(ginZapLogger(l))

	api := r.Group("/api")
	v1 := api.Group("/v1")

	v1.GET("/healthz", handler.Healthz)
	v1.GET("/stats", handler.Stats)
	v1.GET("/tiles", handler.Tiles)
	v1.GET("/tiles/:source/:style/:x/:y/:z", handler.Tile)
	v1.GET("/source/:z/:x/:y", handler.SourceTile)
	v1.POST("/view", handler.SetView)
	v1.POST("/reload", handler.Reload)

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func ginZapLogger(l logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("logger", l)

		start := time.Now()

		c.Next()

		latency := time.Since(start)

		l.Info("request",
			"status", c.Writer.Status(),
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"ip", c.ClientIP(),
			"latency", latency,
			"size", c.Writer.Size(),
		)
	}
}
