package system

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dopl-dev/stream-forwarder/internal/health"
)

// Controller serves the probe and metrics routes.
type Controller struct {
	health *health.Health
}

func New(h *health.Health) *Controller {
	return &Controller{health: h}
}

func (c *Controller) RegisterRoutes(r *gin.Engine) {
	r.GET("/healthcheck", health.LiveHandler(c.health))
	r.GET("/ready", health.ReadyHandler(c.health))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
}
