// Package api serves the local control and status API that display clients drive.
package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"

	"github.com/moyoez/bigtransfer-go/api/controllers"
	"github.com/moyoez/bigtransfer-go/api/middlewares"
	"github.com/moyoez/bigtransfer-go/api/notifyhub"
	"github.com/moyoez/bigtransfer-go/share"
	"github.com/moyoez/bigtransfer-go/tool"
	"github.com/moyoez/bigtransfer-go/transfer"
	"github.com/moyoez/bigtransfer-go/types"
)

// Server represents the local HTTP API server.
type Server struct {
	listen  string
	ctrl    *transfer.Controller
	batches *share.BatchCache
	hub     *notifyhub.Hub
	engine  *gin.Engine
	server  *http.Server
	mu      sync.RWMutex
}

// NewServer wires the controller to the routes. hub may be nil to disable /notify-ws.
func NewServer(listen string, ctrl *transfer.Controller, batches *share.BatchCache, hub *notifyhub.Hub) *Server {
	s := &Server{listen: listen, ctrl: ctrl, batches: batches, hub: hub}
	if hub != nil {
		ctrl.OnNotification(hub.Broadcast)
		hub.SetGreeting(func() *types.Notification {
			view := ctrl.View()
			return &types.Notification{
				Type:    types.NotifyTypeStatus,
				Title:   string(view.Status.Kind),
				Message: view.Status.Message,
				Data:    map[string]any{"view": view},
			}
		})
	}
	return s
}

func (s *Server) setupRoutes() *gin.Engine {
	if tool.DefaultLogger.GetLevel() == log.DebugLevel {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())

	transferCtrl := controllers.NewTransferController(s.ctrl, s.batches, s.hub != nil)

	self := engine.Group("/api/self/v1", middlewares.OnlyAllowLocal)
	{
		self.GET("/status", transferCtrl.Status)
		self.GET("/config", transferCtrl.ConfigGet)
		self.GET("/items", transferCtrl.ListItems)
		self.POST("/items", transferCtrl.AddItems)
		self.DELETE("/items", transferCtrl.ClearItems)
		self.DELETE("/items/:id", transferCtrl.RemoveItem)
		self.POST("/dropzone/enter", transferCtrl.DragEnter)
		self.POST("/dropzone/leave", transferCtrl.DragLeave)
		self.POST("/dropzone/drop", transferCtrl.Drop)
		self.POST("/upload", transferCtrl.StartUpload)
		self.POST("/cancel", transferCtrl.CancelUpload)
		self.POST("/download", transferCtrl.RequestDownload)
		self.POST("/download/cancel", transferCtrl.CancelDownload)
		self.GET("/share-qr", transferCtrl.ShareQRCode)
		self.GET("/batch/:accessId", transferCtrl.BatchDetails)
		if s.hub != nil {
			self.GET("/notify-ws", notifyhub.HandleNotifyWS(s.hub))
		}
	}
	return engine
}

// Handler returns the routed engine, building it on first use.
func (s *Server) Handler() http.Handler {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.engine == nil {
		s.engine = s.setupRoutes()
	}
	return s.engine
}

// Start serves until Shutdown. It returns nil after a clean shutdown.
func (s *Server) Start() error {
	handler := s.Handler()
	ln, err := net.Listen("tcp", s.listen)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.server = &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	srv := s.server
	s.mu.Unlock()

	tool.DefaultLogger.Infof("Starting control API on http://%s/api/self/v1", ln.Addr())
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.RLock()
	srv := s.server
	s.mu.RUnlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}
