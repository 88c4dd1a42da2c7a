package middleware

import "github.com/gin-gonic/gin"

// NoStore keeps live session state out of browser and proxy caches.
func NoStore() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Cache-Control", "no-store")
		c.Next()
	}
}
