package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/moyoez/bigtransfer-go/notify"
	"github.com/moyoez/bigtransfer-go/tool"
)

// Status returns the current transfer view.
// GET /api/self/v1/status
func (t *TransferController) Status(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"running":           true,
		"origin":            t.ctrl.Origin(),
		"authenticated":     t.ctrl.Identity().Authenticated(),
		"notify_ws_enabled": t.wsEnabled,
		"notify_socket":     notify.UseNotify,
		"view":              t.ctrl.View(),
	})
}

// ConfigGet returns the effective configuration without the token.
// GET /api/self/v1/config
func (t *TransferController) ConfigGet(c *gin.Context) {
	cfg := *tool.GetCurrentConfig()
	cfg.AuthToken = ""
	c.JSON(http.StatusOK, cfg)
}
