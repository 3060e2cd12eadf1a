package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	resp "quiz-leaderboard/internal/transport/http/response"
)

// MaxBodyBytes 限制请求体大小；超限时读 body 报 *http.MaxBytesError，由 handler 映射成 413
func MaxBodyBytes(n int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > n {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, resp.Error(http.StatusRequestEntityTooLarge, "request body too large"))
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, n)
		c.Next()
	}
}
