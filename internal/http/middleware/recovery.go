// README: Recovery middleware; converts panics into the JSON error envelope.
package middleware

import (
	"log"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
)

func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("http: panic rid=%s: %v\n%s", RequestIDFrom(c), r, debug.Stack())
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"success": false,
					"message": "internal error",
					"error":   gin.H{"kind": "internal_error", "message": "internal error"},
				})
			}
		}()
		c.Next()
	}
}
