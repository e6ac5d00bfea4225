package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/moyoez/bigtransfer-go/selection"
	"github.com/moyoez/bigtransfer-go/share"
	"github.com/moyoez/bigtransfer-go/tool"
	"github.com/moyoez/bigtransfer-go/transfer"
	"github.com/moyoez/bigtransfer-go/types"
)

// TransferController exposes the transfer session to local display clients.
type TransferController struct {
	ctrl      *transfer.Controller
	batches   *share.BatchCache
	wsEnabled bool
}

func NewTransferController(ctrl *transfer.Controller, batches *share.BatchCache, wsEnabled bool) *TransferController {
	return &TransferController{ctrl: ctrl, batches: batches, wsEnabled: wsEnabled}
}

// AddItemsRequest names local files or folders to select.
type AddItemsRequest struct {
	Paths []string `json:"paths" binding:"required,min=1"`
}

// ListItems GET /api/self/v1/items
func (t *TransferController) ListItems(c *gin.Context) {
	c.JSON(http.StatusOK, tool.FastReturnSuccessWithData(t.ctrl.Selection().Items()))
}

// AddItems POST /api/self/v1/items
func (t *TransferController) AddItems(c *gin.Context) {
	var req AddItemsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, tool.FastReturnError("Invalid request body: "+err.Error()))
		return
	}
	entries, err := selection.CollectPaths(req.Paths)
	if err != nil {
		c.JSON(http.StatusBadRequest, tool.FastReturnError(err.Error()))
		return
	}
	result, err := t.ctrl.AddItems(entries, false)
	if err != nil {
		respondFlowError(c, err)
		return
	}
	c.JSON(http.StatusOK, tool.FastReturnSuccessWithData(result))
}

// DragEnter POST /api/self/v1/dropzone/enter
func (t *TransferController) DragEnter(c *gin.Context) {
	c.JSON(http.StatusOK, tool.FastReturnSuccessWithData(gin.H{"visible": t.ctrl.DragEnter()}))
}

// DragLeave POST /api/self/v1/dropzone/leave
func (t *TransferController) DragLeave(c *gin.Context) {
	c.JSON(http.StatusOK, tool.FastReturnSuccessWithData(gin.H{"visible": t.ctrl.DragLeave()}))
}

// Drop POST /api/self/v1/dropzone/drop, same body as AddItems.
func (t *TransferController) Drop(c *gin.Context) {
	var req AddItemsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		t.ctrl.Drop(nil, false)
		c.JSON(http.StatusBadRequest, tool.FastReturnError("Invalid request body: "+err.Error()))
		return
	}
	entries, err := selection.CollectPaths(req.Paths)
	if err != nil {
		t.ctrl.Drop(nil, false)
		c.JSON(http.StatusBadRequest, tool.FastReturnError(err.Error()))
		return
	}
	result, err := t.ctrl.Drop(entries, false)
	if err != nil {
		respondFlowError(c, err)
		return
	}
	c.JSON(http.StatusOK, tool.FastReturnSuccessWithData(result))
}

// RemoveItem DELETE /api/self/v1/items/:id
func (t *TransferController) RemoveItem(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, tool.FastReturnError("Invalid item id"))
		return
	}
	if err := t.ctrl.RemoveItem(id); err != nil {
		respondFlowError(c, err)
		return
	}
	c.JSON(http.StatusOK, tool.FastReturnSuccess())
}

// ClearItems DELETE /api/self/v1/items
func (t *TransferController) ClearItems(c *gin.Context) {
	if err := t.ctrl.ClearAll(); err != nil {
		respondFlowError(c, err)
		return
	}
	c.JSON(http.StatusOK, tool.FastReturnSuccess())
}

// StartUpload POST /api/self/v1/upload
func (t *TransferController) StartUpload(c *gin.Context) {
	if err := t.ctrl.StartUpload(c.Request.Context()); err != nil {
		respondFlowError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, tool.FastReturnSuccessWithData(t.ctrl.View().Upload))
}

// CancelUpload POST /api/self/v1/cancel
func (t *TransferController) CancelUpload(c *gin.Context) {
	if !t.ctrl.CancelUpload() {
		c.JSON(http.StatusConflict, tool.FastReturnError("No upload in progress"))
		return
	}
	c.JSON(http.StatusOK, tool.FastReturnSuccess())
}

// RequestDownload POST /api/self/v1/download
func (t *TransferController) RequestDownload(c *gin.Context) {
	var target types.DownloadTarget
	if err := c.ShouldBindJSON(&target); err != nil {
		c.JSON(http.StatusBadRequest, tool.FastReturnError("Invalid request body: "+err.Error()))
		return
	}
	started, err := t.ctrl.RequestDownload(c.Request.Context(), target)
	if err != nil {
		respondFlowError(c, err)
		return
	}
	if !started {
		c.JSON(http.StatusOK, tool.FastReturnErrorWithData("Download already being prepared", map[string]any{"ignored": true}))
		return
	}
	c.JSON(http.StatusAccepted, tool.FastReturnSuccessWithData(t.ctrl.View().Download))
}

// CancelDownload POST /api/self/v1/download/cancel
func (t *TransferController) CancelDownload(c *gin.Context) {
	if !t.ctrl.CancelDownload() {
		c.JSON(http.StatusConflict, tool.FastReturnError("No download being prepared"))
		return
	}
	c.JSON(http.StatusOK, tool.FastReturnSuccess())
}

// BatchDetails GET /api/self/v1/batch/:accessId
func (t *TransferController) BatchDetails(c *gin.Context) {
	details, err := t.batches.Get(c.Request.Context(), c.Param("accessId"), t.ctrl.Identity().Token)
	if err != nil {
		c.JSON(http.StatusBadGateway, tool.FastReturnError(err.Error()))
		return
	}
	c.JSON(http.StatusOK, tool.FastReturnSuccessWithData(details))
}

func respondFlowError(c *gin.Context, err error) {
	if errors.Is(err, types.ErrSessionBusy) {
		c.JSON(http.StatusConflict, tool.FastReturnError(err.Error()))
		return
	}
	c.JSON(http.StatusBadRequest, tool.FastReturnError(err.Error()))
}
