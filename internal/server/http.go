package server

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/oggyb/swipecook/internal/auth"
	"github.com/oggyb/swipecook/internal/cache"
	"github.com/oggyb/swipecook/internal/config"
	"github.com/oggyb/swipecook/internal/metrics"
)

// RouterDeps is everything NewRouter mounts.
type RouterDeps struct {
	Config     *config.Config
	DB         *gorm.DB
	Cache      *cache.RedisCache
	Metrics    *metrics.Registry
	Identifier *auth.Identifier
	// Live is the websocket upgrade handler.
	Live   gin.HandlerFunc
	Routes []RouteRegistrar
}

// NewRouter serves the live channel, health, metrics and the JSON API.
//
//	GET  /healthz     database and redis reachability
//	GET  /metrics     prometheus exposition
//	GET  <live path>  websocket upgrade (token or X-User-ID)
//	     /api/v1/...  authenticated JSON API
func NewRouter(d RouterDeps) *gin.Engine {
	switch d.Config.App.ENV {
	case "development":
		gin.SetMode(gin.DebugMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", healthHandler(d))
	if d.Metrics != nil {
		r.GET("/metrics", gin.WrapH(d.Metrics.Handler()))
	}
	if d.Live != nil {
		path := d.Config.Live.Path
		if path == "" {
			path = "/ws"
		}
		r.GET(path, d.Live)
	}

	api := r.Group("/api/v1", d.Identifier.Middleware())
	for _, rr := range d.Routes {
		rr.RegisterRoutes(api)
	}
	return r
}

func healthHandler(d RouterDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		checks := gin.H{}
		healthy := true

		if d.DB != nil {
			checks["db"] = "ok"
			sqlDB, err := d.DB.DB()
			if err == nil {
				err = sqlDB.PingContext(ctx)
			}
			if err != nil {
				checks["db"] = err.Error()
				healthy = false
			}
		}
		if d.Cache != nil {
			checks["redis"] = "ok"
			if err := d.Cache.Ping(ctx); err != nil {
				checks["redis"] = err.Error()
				healthy = false
			}
		}

		code := http.StatusOK
		if !healthy {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{"healthy": healthy, "checks": checks})
	}
}

// NewHTTPServer wraps the router in an http.Server bound to the HTTP config.
func NewHTTPServer(cfg *config.Config, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              net.JoinHostPort(cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}
}
