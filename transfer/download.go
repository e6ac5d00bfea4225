package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"

	"github.com/moyoez/bigtransfer-go/progress"
	"github.com/moyoez/bigtransfer-go/sse"
	"github.com/moyoez/bigtransfer-go/tool"
	"github.com/moyoez/bigtransfer-go/types"
)

// Downloader owns the single download-preparation flow.
type Downloader struct {
	origin   string
	client   *http.Client // control calls
	channels *sse.Manager
	fetcher  Fetcher
	cooldown time.Duration
	onChange func()

	mu         sync.Mutex
	prep       *types.DownloadPreparation
	generation uint64
	cancelFlow context.CancelFunc
	timer      *time.Timer
	lastErr    error
	done       chan struct{}

	// fetches outlive their preparation; only Close cancels them
	fetchCtx    context.Context
	cancelFetch context.CancelFunc
}

func NewDownloader(origin string, client *http.Client, channels *sse.Manager, fetcher Fetcher, cooldown time.Duration) *Downloader {
	if client == nil {
		client = tool.GetHttpClient()
	}
	if cooldown < 0 {
		cooldown = 0
	}
	d := &Downloader{
		origin:   strings.TrimRight(origin, "/"),
		client:   client,
		channels: channels,
		fetcher:  fetcher,
		cooldown: cooldown,
	}
	d.fetchCtx, d.cancelFetch = context.WithCancel(context.Background())
	return d
}

func (d *Downloader) SetOnChange(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onChange = fn
}

// RequestDownload starts preparing target. It reports false without side effects when a
// preparation is already in progress.
func (d *Downloader) RequestDownload(ctx context.Context, target types.DownloadTarget, identity types.Identity) (bool, error) {
	if target.AccessID == "" {
		return false, errors.New("access id is required")
	}
	if target.Kind == "" {
		target.Kind = types.DownloadBatch
		if target.Filename != "" {
			target.Kind = types.DownloadSingle
		}
	}
	if target.Kind == types.DownloadSingle && target.Filename == "" {
		return false, errors.New("filename is required for a single file download")
	}

	d.mu.Lock()
	if d.prep != nil && d.prep.State == types.DownloadPreparing {
		d.mu.Unlock()
		tool.DefaultLogger.Debugf("[Download] Ignoring request for %s: preparation in progress", target.AccessID)
		return false, nil
	}
	d.stopTimerLocked()
	// a new request supersedes the previous preparation; a fetch already running finishes on its own
	d.cancelLocked()
	d.generation++
	gen := d.generation
	d.prep = &types.DownloadPreparation{
		Target:   target,
		State:    types.DownloadPreparing,
		Progress: progress.Reset(),
		Message:  "Preparing download...",
	}
	d.lastErr = nil
	d.done = make(chan struct{})
	flowCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	d.cancelFlow = cancel
	d.mu.Unlock()
	d.changed()

	tool.DefaultLogger.Infof("[Download] Preparing %s download of %s", target.Kind, target.AccessID)
	go d.prepare(flowCtx, gen, target, identity)
	return true, nil
}

func (d *Downloader) prepare(ctx context.Context, gen uint64, target types.DownloadTarget, identity types.Identity) {
	streamURL, err := d.streamURL(ctx, target, identity)

	d.mu.Lock()
	if gen != d.generation || d.prep == nil || d.prep.State != types.DownloadPreparing {
		d.mu.Unlock()
		return
	}
	if err != nil {
		d.failLocked(err)
		d.mu.Unlock()
		d.changed()
		return
	}

	opts := sse.Options{}
	if identity.Authenticated() {
		opts = sse.Options{Auth: sse.AuthBearer, Token: identity.Token}
	}
	handlers := make(map[string]sse.Handler)
	for _, kind := range []string{"status", "progress", "ready", "error", sse.EventConnectionError} {
		handlers[kind] = func(ev sse.Event) { d.handleEvent(gen, ev) }
	}
	if _, err := d.channels.Open(ctx, FlowDownload, streamURL, opts, handlers); err != nil {
		d.failLocked(&types.ConnectionError{Err: err})
		d.mu.Unlock()
		d.changed()
		return
	}
	d.mu.Unlock()
	tool.DefaultLogger.Debugf("[Download] Following %s", streamURL)
}

func (d *Downloader) streamURL(ctx context.Context, target types.DownloadTarget, identity types.Identity) (string, error) {
	switch target.Kind {
	case types.DownloadSingle:
		return tool.BuildDownloadSingleURL(d.origin, target.AccessID, target.Filename), nil
	case types.DownloadRecord:
		return tool.BuildStreamDownloadURL(d.origin, target.AccessID), nil
	case types.DownloadBatch:
	default:
		return "", &types.InitiationError{Message: fmt.Sprintf("unknown download kind %q", target.Kind)}
	}

	req, err := tool.NewHTTPReqWithApplication(http.NewRequestWithContext(ctx, http.MethodGet, tool.BuildInitiateDownloadAllURL(d.origin, target.AccessID), nil))
	if err != nil {
		return "", &types.InitiationError{Err: fmt.Errorf("failed to create download request: %v", err)}
	}
	tool.SetBearer(req, identity.Token)
	resp, err := d.client.Do(req)
	if err != nil {
		return "", &types.InitiationError{Err: err}
	}
	defer tool.CloseBody(resp.Body)
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &types.InitiationError{Err: fmt.Errorf("failed to read response body: %v", err)}
	}

	var response types.InitiateDownloadResponse
	parseErr := sonic.Unmarshal(body, &response)
	if resp.StatusCode != http.StatusOK {
		msg := response.Error
		if parseErr != nil || msg == "" {
			msg = fmt.Sprintf("download request failed: %s", resp.Status)
		}
		return "", &types.InitiationError{Message: msg}
	}
	if parseErr != nil {
		return "", &types.InitiationError{Err: fmt.Errorf("failed to parse response body: %v", parseErr)}
	}
	if response.SSEStreamURL == "" {
		msg := response.Error
		if msg == "" {
			msg = "server did not return a download stream"
		}
		return "", &types.InitiationError{Message: msg}
	}
	resolved, err := tool.ResolveStreamURL(d.origin, response.SSEStreamURL)
	if err != nil {
		return "", &types.InitiationError{Err: err}
	}
	return resolved, nil
}

func (d *Downloader) handleEvent(gen uint64, ev sse.Event) {
	d.mu.Lock()
	if gen != d.generation || d.prep == nil || d.prep.State != types.DownloadPreparing {
		d.mu.Unlock()
		tool.DefaultLogger.Debugf("[Download] Dropping stale %q event", ev.Kind)
		return
	}
	changed, fetch := d.applyLocked(ev)
	d.mu.Unlock()
	if fetch != nil {
		go fetch()
	}
	if changed {
		d.changed()
	}
}

// applyLocked returns whether the preparation changed and, on ready, the fetch to run.
func (d *Downloader) applyLocked(ev sse.Event) (bool, func()) {
	if ev.Kind == sse.EventConnectionError {
		err := ev.Err
		if err == nil {
			err = &types.ConnectionError{}
		}
		d.failLocked(err)
		return true, nil
	}

	// error and ready end the flow whatever their body looks like
	switch ev.Kind {
	case "error":
		d.failLocked(&types.InitiationError{Message: serverMessage(ev.Data, msgDownloadFailed)})
		return true, nil
	case "ready":
		return true, d.readyLocked(ev)
	}

	payload, err := progress.Decode(ev.Data)
	if err != nil {
		tool.DefaultLogger.Warnf("[Download] Ignoring %q event: %v", ev.Kind, err)
		return false, nil
	}

	switch ev.Kind {
	case "status":
		msg, ok := payload["message"].(string)
		if !ok || msg == "" {
			return false, nil
		}
		d.prep.Message = msg
	case "progress":
		d.prep.Progress = progress.Project(d.prep.Progress, payload)
	default:
		return false, nil
	}
	return true, nil
}

// readyLocked moves the flow to Ready and returns the fetch to run, or fails the flow
// when the event lacks what the fetch needs.
func (d *Downloader) readyLocked(ev sse.Event) func() {
	var ready types.DownloadReadyEvent
	if err := sonic.Unmarshal(ev.Data, &ready); err != nil || ready.TempFileID == "" || ready.FinalFilename == "" {
		tool.DefaultLogger.Errorf("[Download] ready event without temp_file_id/final_filename: %s", string(ev.Data))
		d.failLocked(&types.ProtocolError{Event: "ready", Reason: "missing temp_file_id or final_filename"})
		return nil
	}
	payload, _ := progress.Decode(ev.Data)
	d.channels.Close(FlowDownload)
	d.cancelLocked()
	d.prep.State = types.DownloadReady
	d.prep.TempFileID = ready.TempFileID
	d.prep.FinalFilename = ready.FinalFilename
	d.prep.Progress = progress.Complete(d.prep.Progress, payload)
	d.prep.Message = fmt.Sprintf("Download ready: %s", ready.FinalFilename)
	tool.DefaultLogger.Infof("[Download] %s ready as %s", d.prep.Target.AccessID, ready.FinalFilename)
	d.scheduleIdleLocked(d.generation)
	return d.fetchFunc(d.generation, ready)
}

func (d *Downloader) fetchFunc(gen uint64, ready types.DownloadReadyEvent) func() {
	ctx := d.fetchCtx
	done := d.done
	url := tool.BuildServeTempFileURL(d.origin, ready.TempFileID, ready.FinalFilename)
	fetcher := d.fetcher
	return func() {
		var (
			path string
			err  error
		)
		if fetcher != nil {
			path, err = fetcher.Fetch(ctx, url, ready.FinalFilename)
		}

		d.mu.Lock()
		if gen != d.generation || d.prep == nil {
			closeDone(done)
			d.mu.Unlock()
			if err != nil {
				tool.DefaultLogger.Errorf("[Download] Superseded fetch of %s failed: %v", ready.FinalFilename, err)
			} else if path != "" {
				tool.DefaultLogger.Infof("[Download] Saved %s", path)
			}
			return
		}
		if err != nil {
			d.lastErr = err
			d.prep.Message = fmt.Sprintf("Download of %s failed: %v", ready.FinalFilename, err)
			tool.DefaultLogger.Errorf("[Download] %v", err)
		} else if path != "" {
			d.prep.SavedPath = path
			d.prep.Message = fmt.Sprintf("Saved %s", path)
		}
		closeDone(done)
		d.mu.Unlock()
		d.changed()
	}
}

// scheduleIdleLocked returns the flow to Idle after the cooldown, unless something newer
// happened meanwhile.
func (d *Downloader) scheduleIdleLocked(gen uint64) {
	d.stopTimerLocked()
	d.timer = time.AfterFunc(d.cooldown, func() {
		d.mu.Lock()
		if gen != d.generation || d.prep == nil || d.prep.State != types.DownloadReady {
			d.mu.Unlock()
			return
		}
		d.prep.State = types.DownloadIdle
		d.timer = nil
		d.mu.Unlock()
		d.changed()
	})
}

func (d *Downloader) stopTimerLocked() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

// Cancel abandons a preparation in progress.
func (d *Downloader) Cancel() bool {
	d.mu.Lock()
	if d.prep == nil || d.prep.State != types.DownloadPreparing {
		d.mu.Unlock()
		return false
	}
	d.generation++
	d.channels.Close(FlowDownload)
	d.prep.State = types.DownloadIdle
	d.prep.Progress = progress.Reset()
	d.prep.Message = "Download cancelled."
	d.cancelLocked()
	d.finishLocked()
	d.mu.Unlock()
	tool.DefaultLogger.Infof("[Download] Cancelled preparation")
	d.changed()
	return true
}

func (d *Downloader) failLocked(err error) {
	d.lastErr = err
	d.prep.State = types.DownloadFailed
	d.prep.Message = userMessage(err, false)
	d.channels.Close(FlowDownload)
	d.cancelLocked()
	d.finishLocked()
	tool.DefaultLogger.Errorf("[Download] Preparation failed: %v", err)
}

func (d *Downloader) cancelLocked() {
	if d.cancelFlow != nil {
		d.cancelFlow()
		d.cancelFlow = nil
	}
}

func (d *Downloader) finishLocked() {
	closeDone(d.done)
}

func closeDone(done chan struct{}) {
	if done == nil {
		return
	}
	select {
	case <-done:
	default:
		close(done)
	}
}

// Preparation returns a copy of the current flow, or nil before the first request.
func (d *Downloader) Preparation() *types.DownloadPreparation {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.prep == nil {
		return nil
	}
	p := *d.prep
	return &p
}

// Active reports whether a preparation is in progress.
func (d *Downloader) Active() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.prep != nil && d.prep.State == types.DownloadPreparing
}

func (d *Downloader) Err() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastErr
}

// Wait blocks until the current preparation failed, was cancelled or its fetch finished.
func (d *Downloader) Wait(ctx context.Context) (*types.DownloadPreparation, error) {
	d.mu.Lock()
	done := d.done
	d.mu.Unlock()
	if done == nil {
		return nil, errors.New("no download requested")
	}
	select {
	case <-done:
	case <-ctx.Done():
		return d.Preparation(), ctx.Err()
	}
	return d.Preparation(), d.Err()
}

// Close stops the cooldown timer and any in-flight work, running fetches included.
func (d *Downloader) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.generation++
	d.stopTimerLocked()
	d.cancelLocked()
	d.cancelFetch()
	d.fetchCtx, d.cancelFetch = context.WithCancel(context.Background())
	d.finishLocked()
}

func (d *Downloader) changed() {
	d.mu.Lock()
	fn := d.onChange
	d.mu.Unlock()
	if fn != nil {
		fn()
	}
}
