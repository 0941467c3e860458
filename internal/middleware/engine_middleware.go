package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/prawira/gotix/internal/coordinator"
)

// EngineMiddleware exposes the purchase engine to handlers via the request
// context, the same way the database connection is shared.
func EngineMiddleware(co *coordinator.Coordinator) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("coordinator", co)
		c.Next()
	}
}

func GetCoordinator(c *gin.Context) *coordinator.Coordinator {
	value, exists := c.Get("coordinator")
	if !exists {
		return nil
	}
	return value.(*coordinator.Coordinator)
}
