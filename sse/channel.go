// Package sse wraps one logical server-push channel: open, typed dispatch, error and close.
package sse

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/moyoez/bigtransfer-go/tool"
	"github.com/moyoez/bigtransfer-go/types"
)

const (
	EventMessage = "message"
	// EventConnectionError is synthesized by the channel for transport failures.
	// It never collides with a server "error" event.
	EventConnectionError = "connectionError"
)

var (
	ErrAlreadyOpen = errors.New("channel already opened")
	ErrClosed      = errors.New("channel closed")
	errStreamEnded = errors.New("event stream ended")
)

type AuthMode int

const (
	AuthNone AuthMode = iota
	AuthBearer
)

// Options controls how a channel authenticates.
type Options struct {
	Auth  AuthMode
	Token string
}

// Event is one dispatched event. Err is set only on EventConnectionError.
type Event struct {
	Kind string
	ID   string
	Data []byte
	Err  error
}

type Handler func(Event)

type channelState int

const (
	channelNew channelState = iota
	channelOpen
	channelClosed
)

// Channel is one server-push connection. Each Channel owns at most one transport connection.
type Channel struct {
	client *http.Client

	mu       sync.Mutex
	state    channelState
	handlers map[string]Handler
	cancel   context.CancelFunc
	done     chan struct{}
	url      string
}

func NewChannel(client *http.Client) *Channel {
	if client == nil {
		client = tool.GetStreamClient()
	}
	return &Channel{
		client:   client,
		handlers: make(map[string]Handler),
		done:     make(chan struct{}),
	}
}

// On registers the handler for kind, replacing any previous one. Ignored once closed.
func (c *Channel) On(kind string, h Handler) *Channel {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != channelClosed {
		c.handlers[kind] = h
	}
	return c
}

// Open starts the connection in the background. Failures to connect are reported through
// EventConnectionError, not the returned error, which only covers misuse.
func (c *Channel) Open(ctx context.Context, url string, opts Options) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case channelOpen:
		return ErrAlreadyOpen
	case channelClosed:
		return ErrClosed
	}

	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create stream request: %v", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	if opts.Auth == AuthBearer {
		tool.SetBearer(req, opts.Token)
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.state = channelOpen
	c.url = url
	go c.run(runCtx, req.WithContext(runCtx))
	return nil
}

// Close detaches all handlers and releases the transport. Safe to call repeatedly and from
// inside a handler; it does not wait for the reader to exit.
func (c *Channel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == channelClosed {
		return
	}
	wasOpen := c.state == channelOpen
	c.state = channelClosed
	c.handlers = make(map[string]Handler)
	if c.cancel != nil {
		c.cancel()
	}
	if !wasOpen {
		close(c.done)
	}
	tool.DefaultLogger.Debugf("[SSE] Closed channel %s", c.url)
}

// Closed reports whether Close has been called.
func (c *Channel) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == channelClosed
}

// Done is closed once the reader has exited (or immediately for a channel closed before Open).
func (c *Channel) Done() <-chan struct{} {
	return c.done
}

func (c *Channel) run(ctx context.Context, req *http.Request) {
	defer close(c.done)

	tool.DefaultLogger.Debugf("[SSE] Connecting to %s", req.URL)
	resp, err := c.client.Do(req)
	if err != nil {
		c.fail(err)
		return
	}
	defer tool.CloseBody(resp.Body)

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		c.fail(fmt.Errorf("unexpected status %s: %s", resp.Status, strings.TrimSpace(string(body))))
		return
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		tool.DefaultLogger.Warnf("[SSE] Unexpected content type %q from %s", ct, req.URL)
	}

	err = Parse(resp.Body, c.dispatch)
	if err == nil {
		err = errStreamEnded
	}
	if ctx.Err() == nil {
		c.fail(err)
	}
}

func (c *Channel) dispatch(ev Event) {
	c.mu.Lock()
	if c.state == channelClosed {
		c.mu.Unlock()
		return
	}
	h := c.handlers[ev.Kind]
	c.mu.Unlock()
	if h == nil {
		tool.DefaultLogger.Debugf("[SSE] No handler for %q event", ev.Kind)
		return
	}
	h(ev)
}

func (c *Channel) fail(err error) {
	if c.Closed() {
		return
	}
	tool.DefaultLogger.Warnf("[SSE] Connection error on %s: %v", c.url, err)
	c.dispatch(Event{Kind: EventConnectionError, Err: &types.ConnectionError{Err: err}})
}
