package middlewares

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sharmarakshya7/financial-rating-platform/utils"
)

// AuthMiddleware rejects requests that SessionMiddleware did not authenticate.
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if userId, ok := utils.GetUserIdFromContext(c.Request.Context()); !ok || userId <= 0 {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}
		c.Next()
	}
}
