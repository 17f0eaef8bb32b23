package health

import (
	"github.com/gin-gonic/gin"
)

// LiveHandler answers with the Live status and an empty body.
func LiveHandler(h *Health) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Status(h.Live())
	}
}

func ReadyHandler(h *Health) gin.HandlerFunc {
	return func(c *gin.Context) {
		code, report := h.Ready()
		c.JSON(code, report)
	}
}
