package middlewares

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/moyoez/bigtransfer-go/tool"
)

// OnlyAllowLocal rejects any request not coming from the loopback interface.
func OnlyAllowLocal(c *gin.Context) {
	ip := c.ClientIP()
	if ip == "127.0.0.1" || ip == "::1" {
		c.Next()
		return
	}
	tool.DefaultLogger.Warnf("[API] Rejected request from %s", ip)
	c.AbortWithStatusJSON(http.StatusForbidden, tool.FastReturnError("Forbidden"))
}
