package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"sync"

	"github.com/bytedance/sonic"

	"github.com/moyoez/bigtransfer-go/progress"
	"github.com/moyoez/bigtransfer-go/sse"
	"github.com/moyoez/bigtransfer-go/tool"
	"github.com/moyoez/bigtransfer-go/types"
)

const (
	FlowUpload   = "upload"
	FlowDownload = "download"

	// FormFieldFiles and FormFieldAnonymousID are the multipart fields of POST /initiate-upload.
	FormFieldFiles       = "files[]"
	FormFieldAnonymousID = "anonymous_upload_id"
)

// AnonymousIDSource yields the persisted anonymous correlation id.
type AnonymousIDSource interface {
	Get() (string, error)
}

// Uploader owns the single active upload: initiation, the progress channel and its result.
type Uploader struct {
	origin    string
	client    *http.Client
	channels  *sse.Manager
	anonymous AnonymousIDSource
	onChange  func()

	mu         sync.Mutex
	session    *types.UploadSession
	generation uint64
	cancelInit context.CancelFunc
	lastErr    error
	done       chan struct{}
}

func NewUploader(origin string, client *http.Client, channels *sse.Manager, anonymous AnonymousIDSource) *Uploader {
	if client == nil {
		client = tool.GetStreamClient()
	}
	return &Uploader{
		origin:    strings.TrimRight(origin, "/"),
		client:    client,
		channels:  channels,
		anonymous: anonymous,
	}
}

// SetOnChange registers a hook called after every state or progress change.
func (u *Uploader) SetOnChange(fn func()) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.onChange = fn
}

// Start submits items as one multipart upload and begins tracking it. It returns once the
// session is Initiating; the request itself runs in the background.
func (u *Uploader) Start(ctx context.Context, items []types.SelectedItem, identity types.Identity) error {
	u.mu.Lock()
	if u.session != nil && u.session.State.Active() {
		u.mu.Unlock()
		return types.ErrSessionBusy
	}
	if len(items) == 0 {
		u.mu.Unlock()
		return errEmptySelection
	}

	var anonymousID string
	if !identity.Authenticated() {
		var err error
		if u.anonymous == nil {
			err = &types.IdentityError{}
		} else if anonymousID, err = u.anonymous.Get(); err != nil {
			err = &types.IdentityError{Err: err}
		}
		if err != nil {
			u.generation++
			u.session = &types.UploadSession{State: types.UploadFailed, Items: items, Progress: progress.Reset()}
			u.done = make(chan struct{})
			u.failLocked(err)
			u.mu.Unlock()
			u.changed()
			return err
		}
	}

	var total int64
	for _, item := range items {
		total += item.SizeBytes
	}
	snapshot := progress.Reset()
	snapshot.TotalBytes = total

	u.generation++
	gen := u.generation
	u.session = &types.UploadSession{
		State:    types.UploadInitiating,
		Items:    items,
		Progress: snapshot,
		Message:  fmt.Sprintf("Uploading %d file(s)...", len(items)),
	}
	u.lastErr = nil
	u.done = make(chan struct{})
	initCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	u.cancelInit = cancel
	u.mu.Unlock()
	u.changed()

	tool.DefaultLogger.Infof("[Upload] Initiating upload of %d file(s), %d bytes", len(items), total)
	go u.initiate(initCtx, gen, items, anonymousID, identity)
	return nil
}

func (u *Uploader) initiate(ctx context.Context, gen uint64, items []types.SelectedItem, anonymousID string, identity types.Identity) {
	resp, err := u.postFiles(ctx, items, anonymousID, identity.Token)

	u.mu.Lock()
	if gen != u.generation || u.session == nil || u.session.State != types.UploadInitiating {
		u.mu.Unlock()
		tool.DefaultLogger.Debugf("[Upload] Discarding initiation result of a superseded upload")
		return
	}
	if err != nil {
		u.failLocked(err)
		u.mu.Unlock()
		u.changed()
		return
	}

	uploadID := resp.UploadID
	u.session.UploadID = uploadID
	u.session.State = types.UploadStreaming
	if resp.Message != "" {
		u.session.Message = resp.Message
	}
	opts := sse.Options{}
	if identity.Authenticated() {
		opts = sse.Options{Auth: sse.AuthBearer, Token: identity.Token}
	}
	handlers := make(map[string]sse.Handler)
	for _, kind := range []string{"start", "status", "progress", "complete", "error", sse.EventConnectionError} {
		handlers[kind] = func(ev sse.Event) { u.handleEvent(uploadID, ev) }
	}
	if _, err := u.channels.Open(ctx, FlowUpload, tool.BuildUploadStreamURL(u.origin, uploadID), opts, handlers); err != nil {
		u.failLocked(&types.ConnectionError{Err: err})
	}
	u.mu.Unlock()
	tool.DefaultLogger.Infof("[Upload] Upload %s initiated, tracking progress", uploadID)
	u.changed()
}

func (u *Uploader) postFiles(ctx context.Context, items []types.SelectedItem, anonymousID, token string) (*types.InitiateUploadResponse, error) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		err := writeParts(ctx, mw, items, anonymousID)
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tool.BuildInitiateUploadURL(u.origin), pr)
	if err != nil {
		pr.CloseWithError(err)
		return nil, &types.InitiationError{Err: fmt.Errorf("failed to create upload request: %v", err)}
	}
	defer pr.Close()
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")
	tool.SetBearer(req, token)

	resp, err := u.client.Do(req)
	if err != nil {
		pr.CloseWithError(err)
		return nil, &types.InitiationError{Err: err}
	}
	defer tool.CloseBody(resp.Body)

	body, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return nil, &types.InitiationError{Err: fmt.Errorf("failed to read upload response: %v", readErr)}
	}
	tool.DefaultLogger.Debugf("[Upload] initiate-upload response (%s): %s", resp.Status, string(body))

	var response types.InitiateUploadResponse
	parseErr := sonic.Unmarshal(body, &response)
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		msg := response.Error
		if msg == "" {
			msg = response.Message
		}
		if parseErr != nil || msg == "" {
			msg = fmt.Sprintf("upload request failed: %s", resp.Status)
		}
		return nil, &types.InitiationError{Message: msg}
	}
	if parseErr != nil {
		return nil, &types.InitiationError{Err: fmt.Errorf("failed to parse upload response: %v", parseErr)}
	}
	if response.UploadID == "" {
		msg := response.Error
		if msg == "" {
			msg = "server did not return an upload id"
		}
		return nil, &types.InitiationError{Message: msg}
	}
	return &response, nil
}

func writeParts(ctx context.Context, mw *multipart.Writer, items []types.SelectedItem, anonymousID string) error {
	if anonymousID != "" {
		if err := mw.WriteField(FormFieldAnonymousID, anonymousID); err != nil {
			return err
		}
	}
	for _, item := range items {
		if item.Source == nil {
			return fmt.Errorf("item %q has no data source", item.DisplayName)
		}
		part, err := mw.CreateFormFile(FormFieldFiles, item.DisplayName)
		if err != nil {
			return err
		}
		src, err := item.Source.Open()
		if err != nil {
			return fmt.Errorf("failed to open %s: %v", item.DisplayName, err)
		}
		_, err = tool.CopyWithContext(ctx, part, src)
		if closeErr := src.Close(); closeErr != nil {
			tool.DefaultLogger.Warnf("[Upload] Failed to close %s: %v", item.DisplayName, closeErr)
		}
		if err != nil {
			return fmt.Errorf("failed to send %s: %v", item.DisplayName, err)
		}
	}
	return nil
}

// handleEvent applies one event of upload uploadID. Events for anything other than the
// current, still streaming upload are dropped untouched.
func (u *Uploader) handleEvent(uploadID string, ev sse.Event) {
	u.mu.Lock()
	if u.session == nil || u.session.UploadID != uploadID || u.session.State != types.UploadStreaming {
		u.mu.Unlock()
		tool.DefaultLogger.Debugf("[Upload] Dropping stale %q event for %s", ev.Kind, uploadID)
		return
	}
	if !u.applyLocked(ev) {
		u.mu.Unlock()
		return
	}
	u.mu.Unlock()
	u.changed()
}

// applyLocked reports whether the session changed.
func (u *Uploader) applyLocked(ev sse.Event) bool {
	if ev.Kind == sse.EventConnectionError {
		err := ev.Err
		if err == nil {
			err = &types.ConnectionError{}
		}
		u.failLocked(err)
		return true
	}

	switch ev.Kind {
	case "error":
		u.failLocked(&types.InitiationError{Message: serverMessage(ev.Data, msgUploadFailed)})
		return true
	case "complete":
		u.completeLocked(ev)
		return true
	}

	payload, err := progress.Decode(ev.Data)
	if err != nil {
		tool.DefaultLogger.Warnf("[Upload] Ignoring %q event: %v", ev.Kind, err)
		return false
	}

	switch ev.Kind {
	case "start":
		u.session.Progress = progress.Project(u.session.Progress, payload)
		if msg, ok := payload["message"].(string); ok && msg != "" {
			u.session.Message = msg
		}
	case "status":
		msg, ok := payload["message"].(string)
		if !ok || msg == "" {
			return false
		}
		u.session.Message = msg
	case "progress":
		u.session.Progress = progress.Project(u.session.Progress, payload)
	default:
		return false
	}
	return true
}

func (u *Uploader) completeLocked(ev sse.Event) {
	var complete types.UploadCompleteEvent
	if err := sonic.Unmarshal(ev.Data, &complete); err != nil || complete.BatchAccessID == "" {
		tool.DefaultLogger.Errorf("[Upload] complete event without batch_access_id: %s", string(ev.Data))
		u.failLocked(&types.ProtocolError{Event: "complete", Reason: "missing batch_access_id"})
		return
	}
	payload, _ := progress.Decode(ev.Data)
	u.session.Progress = progress.Complete(u.session.Progress, payload)
	u.session.ResultBatchAccessID = complete.BatchAccessID
	u.session.ShareLink = tool.BuildShareLink(u.origin, complete.BatchAccessID)
	u.session.State = types.UploadCompleted
	u.session.Message = complete.Message
	if u.session.Message == "" {
		u.session.Message = "Upload complete."
	}
	u.channels.Close(FlowUpload)
	u.finishLocked()
	tool.DefaultLogger.Infof("[Upload] Upload %s complete: %s", u.session.UploadID, u.session.ShareLink)
}

// Cancel abandons the active upload. The server may keep processing it.
func (u *Uploader) Cancel() bool {
	u.mu.Lock()
	if u.session == nil || !u.session.State.Active() {
		u.mu.Unlock()
		return false
	}
	u.generation++
	u.channels.Close(FlowUpload)
	tool.DefaultLogger.Infof("[Upload] Cancelled upload %s", u.session.UploadID)
	u.session.State = types.UploadCancelled
	u.session.Progress = progress.Reset()
	u.session.Message = "Upload cancelled."
	u.finishLocked()
	u.mu.Unlock()
	u.changed()
	return true
}

func (u *Uploader) failLocked(err error) {
	u.lastErr = err
	u.session.State = types.UploadFailed
	u.session.Message = userMessage(err, true)
	u.channels.Close(FlowUpload)
	u.finishLocked()
	tool.DefaultLogger.Errorf("[Upload] Upload failed: %v", err)
}

func (u *Uploader) finishLocked() {
	if u.cancelInit != nil {
		u.cancelInit()
		u.cancelInit = nil
	}
	if u.done != nil {
		select {
		case <-u.done:
		default:
			close(u.done)
		}
	}
}

// Session returns a copy of the current session, or nil before the first Start.
func (u *Uploader) Session() *types.UploadSession {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.session == nil {
		return nil
	}
	s := *u.session
	return &s
}

// Active reports whether an upload is Initiating or Streaming.
func (u *Uploader) Active() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.session != nil && u.session.State.Active()
}

// Err returns the error that failed the last upload.
func (u *Uploader) Err() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.lastErr
}

// Wait blocks until the current upload reaches a terminal state.
func (u *Uploader) Wait(ctx context.Context) (*types.UploadSession, error) {
	u.mu.Lock()
	done := u.done
	u.mu.Unlock()
	if done == nil {
		return nil, errors.New("no upload started")
	}
	select {
	case <-done:
	case <-ctx.Done():
		return u.Session(), ctx.Err()
	}
	return u.Session(), u.Err()
}

func (u *Uploader) changed() {
	u.mu.Lock()
	fn := u.onChange
	u.mu.Unlock()
	if fn != nil {
		fn()
	}
}
