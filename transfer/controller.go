// Package transfer runs the upload and download flows against the transfer service.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/moyoez/bigtransfer-go/progress"
	"github.com/moyoez/bigtransfer-go/selection"
	"github.com/moyoez/bigtransfer-go/sse"
	"github.com/moyoez/bigtransfer-go/tool"
	"github.com/moyoez/bigtransfer-go/types"
)

// IdentityStore is the anonymous id store owned by the controller.
type IdentityStore interface {
	AnonymousIDSource
	Clear() error
}

type Option func(*Controller)

// WithControlClient sets the client for JSON control calls.
func WithControlClient(client *http.Client) Option {
	return func(c *Controller) { c.controlClient = client }
}

// WithStreamClient sets the client for uploads, event streams and fetches.
func WithStreamClient(client *http.Client) Option {
	return func(c *Controller) { c.streamClient = client }
}

func WithFetcher(f Fetcher) Option {
	return func(c *Controller) { c.fetcher = f }
}

func WithAnonymousStore(store IdentityStore) Option {
	return func(c *Controller) { c.anonymous = store }
}

func WithAnonymousQuota(quota int) Option {
	return func(c *Controller) { c.quota = quota }
}

func WithReadyCooldown(d time.Duration) Option {
	return func(c *Controller) { c.cooldown = d }
}

func WithIdentity(identity types.Identity) Option {
	return func(c *Controller) { c.identity = identity }
}

// Controller is the transfer session: one selection, one upload flow and one download flow,
// never both flows at once.
type Controller struct {
	origin        string
	controlClient *http.Client
	streamClient  *http.Client
	fetcher       Fetcher
	anonymous     IdentityStore
	quota         int
	cooldown      time.Duration

	selection  *selection.Selection
	dropZone   selection.DropZone
	channels   *sse.Manager
	uploader   *Uploader
	downloader *Downloader

	// flowMu serializes reactions to flow changes so each sees the latest state once.
	flowMu sync.Mutex
	// startMu spans the busy check and the start of either flow.
	startMu sync.Mutex

	mu          sync.Mutex
	identity    types.Identity
	status      types.Status
	shareLink   string
	lastUpload  types.UploadState
	lastDown    types.DownloadState
	subscribers []func(types.TransferView)
	notifiers   []func(*types.Notification)
	lastNotify  time.Time
}

func NewController(origin string, opts ...Option) *Controller {
	c := &Controller{
		origin:   origin,
		quota:    tool.DefaultAnonymousQuota,
		cooldown: tool.DefaultReadyCooldown,
		status:   types.Status{Message: "Select files to upload.", Kind: types.StatusInfo},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.controlClient == nil {
		c.controlClient = tool.GetHttpClient()
	}
	if c.streamClient == nil {
		c.streamClient = tool.GetStreamClient()
	}
	c.selection = selection.New(c.quota, c.Identity)
	c.selection.SetOnChange(c.selectionChanged)
	c.channels = sse.NewManager(c.streamClient)
	c.uploader = NewUploader(origin, c.streamClient, c.channels, c.anonymous)
	c.uploader.SetOnChange(c.uploadChanged)
	c.downloader = NewDownloader(origin, c.controlClient, c.channels, c.fetcher, c.cooldown)
	c.downloader.SetOnChange(c.downloadChanged)
	return c
}

func (c *Controller) Origin() string { return c.origin }

func (c *Controller) Selection() *selection.Selection { return c.selection }

func (c *Controller) Identity() types.Identity {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.identity
}

// SetIdentity switches between anonymous and logged-in use. Any change of identity drops the
// stored anonymous id.
func (c *Controller) SetIdentity(identity types.Identity) {
	c.mu.Lock()
	changed := c.identity != identity
	c.identity = identity
	c.mu.Unlock()
	if changed && c.anonymous != nil {
		if err := c.anonymous.Clear(); err != nil {
			tool.DefaultLogger.Warnf("[Transfer] %v", err)
		}
	}
}

// Subscribe registers a view listener, called after every state change.
func (c *Controller) Subscribe(fn func(types.TransferView)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscribers = append(c.subscribers, fn)
}

// OnNotification registers a listener for flow transitions and throttled progress.
func (c *Controller) OnNotification(fn func(*types.Notification)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notifiers = append(c.notifiers, fn)
}

func (c *Controller) AddItems(entries []types.RawEntry, isFolderBatch bool) (types.AddResult, error) {
	result, err := c.selection.AddItems(entries, isFolderBatch)
	if err != nil {
		c.setStatus("Please wait for the current transfer to finish.", types.StatusError)
		return result, err
	}
	switch {
	case result.Advisory != "":
		c.setStatus(result.Advisory, types.StatusInfo)
	case len(result.Added) > 0:
		c.setStatus(fmt.Sprintf("%d file(s) selected (%s).", c.selection.Len(), progress.FormatBytes(c.selection.TotalBytes())), types.StatusInfo)
	}
	return result, nil
}

// DragEnter and DragLeave track a drag over the display's drop target.
func (c *Controller) DragEnter() bool {
	c.dropZone.Enter()
	return c.dropZone.Visible()
}

func (c *Controller) DragLeave() bool {
	c.dropZone.Leave()
	return c.dropZone.Visible()
}

// Drop ends the drag and selects what was dropped.
func (c *Controller) Drop(entries []types.RawEntry, isFolderBatch bool) (types.AddResult, error) {
	c.dropZone.Drop()
	return c.AddItems(entries, isFolderBatch)
}

func (c *Controller) RemoveItem(id int64) error {
	if err := c.selection.RemoveItem(id); err != nil {
		c.setStatus("Please wait for the current transfer to finish.", types.StatusError)
		return err
	}
	return nil
}

func (c *Controller) ClearAll() error {
	if err := c.selection.ClearAll(); err != nil {
		c.setStatus("Please wait for the current transfer to finish.", types.StatusError)
		return err
	}
	c.setStatus("Selection cleared.", types.StatusInfo)
	return nil
}

// StartUpload uploads the current selection. The selection stays locked until the upload
// reaches a terminal state.
func (c *Controller) StartUpload(ctx context.Context) error {
	c.startMu.Lock()
	defer c.startMu.Unlock()
	if c.uploader.Active() || c.downloader.Active() {
		c.setStatus("Please wait for the current transfer to finish.", types.StatusError)
		return types.ErrSessionBusy
	}
	items := c.selection.Items()
	if len(items) == 0 {
		c.setStatus("Select at least one file to upload.", types.StatusError)
		return errEmptySelection
	}
	c.selection.Lock()
	c.mu.Lock()
	c.lastUpload = ""
	c.mu.Unlock()
	if err := c.uploader.Start(ctx, items, c.Identity()); err != nil {
		if !errors.Is(err, types.ErrSessionBusy) {
			c.selection.Unlock()
		}
		var idErr *types.IdentityError
		if !errors.As(err, &idErr) {
			c.setStatus(userMessage(err, true), types.StatusError)
		}
		return err
	}
	return nil
}

func (c *Controller) CancelUpload() bool {
	return c.uploader.Cancel()
}

// WaitUpload blocks until the current upload is terminal.
func (c *Controller) WaitUpload(ctx context.Context) (*types.UploadSession, error) {
	return c.uploader.Wait(ctx)
}

// RequestDownload prepares target. A request while a preparation runs is ignored.
func (c *Controller) RequestDownload(ctx context.Context, target types.DownloadTarget) (bool, error) {
	c.startMu.Lock()
	defer c.startMu.Unlock()
	if c.uploader.Active() {
		c.setStatus("Please wait for the current transfer to finish.", types.StatusError)
		return false, types.ErrSessionBusy
	}
	c.selection.Lock()
	if !c.downloader.Active() {
		c.mu.Lock()
		c.lastDown = ""
		c.mu.Unlock()
	}
	started, err := c.downloader.RequestDownload(ctx, target, c.Identity())
	if err != nil || !started {
		if !c.downloader.Active() {
			c.selection.Unlock()
		}
		if err != nil {
			c.setStatus(err.Error(), types.StatusError)
		}
	}
	return started, err
}

func (c *Controller) CancelDownload() bool {
	return c.downloader.Cancel()
}

// WaitDownload blocks until the current preparation failed or its file was fetched.
func (c *Controller) WaitDownload(ctx context.Context) (*types.DownloadPreparation, error) {
	return c.downloader.Wait(ctx)
}

func (c *Controller) Status() types.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

func (c *Controller) ShareLink() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.shareLink
}

// View snapshots everything a display needs.
func (c *Controller) View() types.TransferView {
	upload := c.uploader.Session()
	download := c.downloader.Preparation()
	c.mu.Lock()
	defer c.mu.Unlock()
	return types.TransferView{
		Status:    c.status,
		Items:     c.selection.Items(),
		Upload:    upload,
		Download:  download,
		ShareLink: c.shareLink,
		Dragging:  c.dropZone.Visible(),
	}
}

// Close tears down both flows and every channel.
func (c *Controller) Close() {
	c.uploader.Cancel()
	c.downloader.Cancel()
	c.downloader.Close()
	c.channels.CloseAll()
}

func (c *Controller) selectionChanged() {
	c.mu.Lock()
	c.shareLink = ""
	c.mu.Unlock()
}

func (c *Controller) uploadChanged() {
	c.flowMu.Lock()
	defer c.flowMu.Unlock()
	session := c.uploader.Session()
	if session == nil {
		return
	}

	c.mu.Lock()
	transition := session.State != c.lastUpload
	c.lastUpload = session.State
	c.mu.Unlock()

	switch session.State {
	case types.UploadInitiating:
		if transition {
			c.setStatus(session.Message, types.StatusInfo)
			c.notify(&types.Notification{Type: types.NotifyTypeUploadStart, Title: "Upload started", Message: session.Message,
				Data: map[string]any{"files": itemNames(session.Items), "totalFiles": len(session.Items), "totalBytes": session.Progress.TotalBytes}})
		}
	case types.UploadStreaming:
		c.setStatus(session.Message, types.StatusInfo)
		c.notifyProgress(types.NotifyTypeUploadProgress, session.UploadID, session.Progress)
	case types.UploadCompleted:
		if !transition {
			return
		}
		c.selection.Reset()
		c.mu.Lock()
		c.shareLink = session.ShareLink
		c.mu.Unlock()
		c.setStatus(session.Message, types.StatusSuccess)
		c.notify(&types.Notification{Type: types.NotifyTypeUploadEnd, Title: "Upload complete", Message: session.ShareLink,
			Data: map[string]any{"uploadId": session.UploadID, "batchAccessId": session.ResultBatchAccessID, "shareLink": session.ShareLink}})
	case types.UploadCancelled:
		if !transition {
			return
		}
		c.selection.Unlock()
		c.setStatus(session.Message, types.StatusInfo)
	case types.UploadFailed:
		if !transition {
			return
		}
		c.selection.Unlock()
		c.setStatus(session.Message, types.StatusError)
		c.notify(&types.Notification{Type: types.NotifyTypeUploadFailed, Title: "Upload failed", Message: session.Message,
			Data: map[string]any{"uploadId": session.UploadID}})
	}
}

func (c *Controller) downloadChanged() {
	c.flowMu.Lock()
	defer c.flowMu.Unlock()
	prep := c.downloader.Preparation()
	if prep == nil {
		return
	}

	c.mu.Lock()
	transition := prep.State != c.lastDown
	c.lastDown = prep.State
	c.mu.Unlock()

	switch prep.State {
	case types.DownloadPreparing:
		c.setStatus(prep.Message, types.StatusInfo)
		if transition {
			c.notify(&types.Notification{Type: types.NotifyTypeDownloadStart, Title: "Preparing download", Message: prep.Target.AccessID,
				Data: map[string]any{"accessId": prep.Target.AccessID, "kind": string(prep.Target.Kind)}})
		} else {
			c.notifyProgress(types.NotifyTypeDownloadProgress, prep.Target.AccessID, prep.Progress)
		}
	case types.DownloadReady:
		if transition {
			c.selection.Unlock()
			c.notify(&types.Notification{Type: types.NotifyTypeDownloadReady, Title: "Download ready", Message: prep.FinalFilename,
				Data: map[string]any{"accessId": prep.Target.AccessID, "filename": prep.FinalFilename, "tempFileId": prep.TempFileID}})
		}
		kind := types.StatusSuccess
		if c.downloader.Err() != nil {
			kind = types.StatusError
		}
		c.setStatus(prep.Message, kind)
	case types.DownloadIdle:
		if transition && !c.uploader.Active() {
			c.selection.Unlock()
		}
	case types.DownloadFailed:
		if !transition {
			return
		}
		c.selection.Unlock()
		c.setStatus(prep.Message, types.StatusError)
		c.notify(&types.Notification{Type: types.NotifyTypeDownloadFailed, Title: "Download failed", Message: prep.Message,
			Data: map[string]any{"accessId": prep.Target.AccessID}})
	}
}

// setStatus replaces the status line, keeping the old message when message is empty, and
// publishes the view.
func (c *Controller) setStatus(message string, kind types.StatusKind) {
	c.mu.Lock()
	if message != "" {
		c.status = types.Status{Message: message, Kind: kind}
	}
	subscribers := append([]func(types.TransferView){}, c.subscribers...)
	c.mu.Unlock()
	if len(subscribers) == 0 {
		return
	}
	view := c.View()
	for _, fn := range subscribers {
		fn(view)
	}
}

func (c *Controller) notify(n *types.Notification) {
	c.mu.Lock()
	notifiers := append([]func(*types.Notification){}, c.notifiers...)
	c.mu.Unlock()
	for _, fn := range notifiers {
		fn(n)
	}
}

// notifyProgress forwards progress at most once per second.
func (c *Controller) notifyProgress(kind, id string, snapshot types.ProgressSnapshot) {
	c.mu.Lock()
	if time.Since(c.lastNotify) < time.Second {
		c.mu.Unlock()
		return
	}
	c.lastNotify = time.Now()
	c.mu.Unlock()
	c.notify(&types.Notification{Type: kind, Title: "Progress", Message: fmt.Sprintf("%.0f%%", snapshot.Percentage),
		Data: map[string]any{"id": id, "percentage": snapshot.Percentage, "bytesProcessed": snapshot.BytesProcessed,
			"totalBytes": snapshot.TotalBytes, "speedMBps": snapshot.SpeedMBps, "eta": snapshot.EtaFormatted}})
}

func itemNames(items []types.SelectedItem) []string {
	names := make([]string, 0, len(items))
	for _, item := range items {
		names = append(names, item.DisplayName)
	}
	return names
}
