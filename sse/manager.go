package sse

import (
	"context"
	"net/http"
	"sync"
)

// Manager keeps at most one live channel per logical flow.
type Manager struct {
	client *http.Client

	mu   sync.Mutex
	live map[string]*Channel
}

func NewManager(client *http.Client) *Manager {
	return &Manager{client: client, live: make(map[string]*Channel)}
}

// Open closes the flow's previous channel, registers handlers on a new one and opens it.
func (m *Manager) Open(ctx context.Context, flow, url string, opts Options, handlers map[string]Handler) (*Channel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if prior := m.live[flow]; prior != nil {
		prior.Close()
	}
	ch := NewChannel(m.client)
	for kind, h := range handlers {
		ch.On(kind, h)
	}
	m.live[flow] = ch
	if err := ch.Open(ctx, url, opts); err != nil {
		ch.Close()
		delete(m.live, flow)
		return nil, err
	}
	return ch, nil
}

// Close closes and forgets the flow's channel, if any.
func (m *Manager) Close(flow string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ch := m.live[flow]; ch != nil {
		ch.Close()
		delete(m.live, flow)
	}
}

// Live returns the flow's current channel or nil.
func (m *Manager) Live(flow string) *Channel {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.live[flow]
}

// CloseAll tears down every flow.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for flow, ch := range m.live {
		ch.Close()
		delete(m.live, flow)
	}
}
