package api

import (
	"net/http"
	"path"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"arena-agent/internal/auth"
	"arena-agent/internal/config"
)

// SetupRouter wires the arena endpoints under the configured subpath. The
// prediction route carries arena auth, the monitor stream operator auth; both
// run open when no JWT secret is configured.
func SetupRouter(cfg *config.Config, rt Predictor, status StatusReporter, rdb *redis.Client) *gin.Engine {
	r := gin.Default()
	subpath := cfg.Server.Subpath

	monitor := NewMonitor()

	group := r.Group(subpath)
	{
		group.GET("/health", healthHandler)
		group.GET("/status", statusHandler(status, rdb))

		group.POST("/v1/predict", auth.Middleware(cfg, rdb, false), predictHandler(rt, monitor))

		group.GET("/ws/monitor", auth.Middleware(cfg, rdb, true), monitor.Handler())
	}

	// Redirect /subpath/ to /subpath (no duplicate panic)
	if subpath != "" && subpath != "/" {
		r.GET(subpath+"/", func(c *gin.Context) {
			c.Redirect(http.StatusMovedPermanently, path.Clean(subpath))
		})
	}
	return r
}
