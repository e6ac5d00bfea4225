package sse

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, body string) []Event {
	t.Helper()
	var events []Event
	require.NoError(t, Parse(strings.NewReader(body), func(ev Event) {
		events = append(events, ev)
	}))
	return events
}

func TestParseNamedEvents(t *testing.T) {
	events := collect(t, "event: progress\ndata: {\"percentage\":50}\n\nevent:complete\ndata:{\"batch_access_id\":\"abc\"}\n\n")
	require.Len(t, events, 2)
	assert.Equal(t, "progress", events[0].Kind)
	assert.Equal(t, `{"percentage":50}`, string(events[0].Data))
	assert.Equal(t, "complete", events[1].Kind)
	assert.Equal(t, `{"batch_access_id":"abc"}`, string(events[1].Data))
}

func TestParseMultilineDataAndDefaults(t *testing.T) {
	events := collect(t, ": keep-alive\r\nid: 7\r\ndata: first\r\ndata: second\r\n\r\n")
	require.Len(t, events, 1)
	assert.Equal(t, EventMessage, events[0].Kind)
	assert.Equal(t, "7", events[0].ID)
	assert.Equal(t, "first\nsecond", string(events[0].Data))
}

func TestParseSkipsEventsWithoutData(t *testing.T) {
	events := collect(t, "event: status\n\nevent: status\ndata: ok\n\n")
	require.Len(t, events, 1)
	assert.Equal(t, "ok", string(events[0].Data))
}

func TestParseDropsUnterminatedEvent(t *testing.T) {
	events := collect(t, "event: status\ndata: one\n\nevent: status\ndata: two")
	require.Len(t, events, 1)
	assert.Equal(t, "one", string(events[0].Data))
}
