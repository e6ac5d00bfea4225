package transfer

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moyoez/bigtransfer-go/progress"
	"github.com/moyoez/bigtransfer-go/sse"
	"github.com/moyoez/bigtransfer-go/types"
)

func selectedItems(names ...string) []types.SelectedItem {
	items := make([]types.SelectedItem, 0, len(names))
	for i, name := range names {
		items = append(items, types.SelectedItem{
			ID:          int64(i + 1),
			Source:      memSource("content of " + name),
			DisplayName: name,
			SizeBytes:   3_000_000,
		})
	}
	return items
}

func newTestUploader(t *testing.T, b *fakeBackend, ids AnonymousIDSource) *Uploader {
	t.Helper()
	channels := sse.NewManager(b.Client())
	t.Cleanup(channels.CloseAll)
	return NewUploader(b.URL(), b.Client(), channels, ids)
}

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestUploadCompletesWithShareLink(t *testing.T) {
	b := newFakeBackend(t)
	b.set(func(b *fakeBackend) {
		b.uploadFrames = []frame{
			{"start", gin.H{"totalBytes": 9_000_000, "message": "Receiving 3 files"}},
			{"progress", gin.H{"percentage": 50, "bytesProcessed": 4_500_000, "totalBytes": 9_000_000, "speedMBps": 2.5, "etaFormatted": "00:02"}},
			{"complete", gin.H{"batch_access_id": "abc123", "message": "Upload complete."}},
		}
	})
	ids := &fixedIDs{id: "anon-1"}
	u := newTestUploader(t, b, ids)

	var (
		mu   sync.Mutex
		seen []float64
	)
	u.SetOnChange(func() {
		if s := u.Session(); s != nil {
			mu.Lock()
			seen = append(seen, s.Progress.Percentage)
			mu.Unlock()
		}
	})

	require.NoError(t, u.Start(context.Background(), selectedItems("a.txt", "b.txt", "c.txt"), types.Identity{}))
	session, err := u.Wait(waitCtx(t))
	require.NoError(t, err)

	assert.Equal(t, types.UploadCompleted, session.State)
	assert.Equal(t, "u1", session.UploadID)
	assert.Equal(t, "abc123", session.ResultBatchAccessID)
	assert.Equal(t, b.URL()+"/browse/abc123", session.ShareLink)
	assert.Equal(t, float64(100), session.Progress.Percentage)
	assert.Equal(t, int64(9_000_000), session.Progress.TotalBytes)
	mu.Lock()
	assert.Contains(t, seen, float64(50))
	mu.Unlock()
	assert.Nil(t, u.channels.Live(FlowUpload))

	got := <-b.uploads
	assert.Equal(t, []string{"a.txt", "b.txt", "c.txt"}, got.filenames)
	assert.Equal(t, "anon-1", got.anonymousID)
	assert.Empty(t, got.auth)
}

func TestUploadAuthenticatedSendsBearerAndNoAnonymousID(t *testing.T) {
	b := newFakeBackend(t)
	b.set(func(b *fakeBackend) {
		b.uploadFrames = []frame{{"complete", gin.H{"batch_access_id": "xyz"}}}
	})
	u := newTestUploader(t, b, &fixedIDs{id: "anon-1"})

	require.NoError(t, u.Start(context.Background(), selectedItems("a.txt"), types.Identity{Token: "secret"}))
	_, err := u.Wait(waitCtx(t))
	require.NoError(t, err)

	got := <-b.uploads
	assert.Empty(t, got.anonymousID)
	assert.Equal(t, "Bearer secret", got.auth)
	b.mu.Lock()
	defer b.mu.Unlock()
	assert.Equal(t, []string{"Bearer secret"}, b.streamAuth)
}

func TestUploadCompleteWithoutAccessIDFails(t *testing.T) {
	b := newFakeBackend(t)
	b.set(func(b *fakeBackend) {
		b.uploadFrames = []frame{{"complete", gin.H{"message": "done"}}}
	})
	u := newTestUploader(t, b, &fixedIDs{id: "anon-1"})

	require.NoError(t, u.Start(context.Background(), selectedItems("a.txt"), types.Identity{}))
	session, err := u.Wait(waitCtx(t))

	var protoErr *types.ProtocolError
	require.ErrorAs(t, err, &protoErr)
	assert.Equal(t, types.UploadFailed, session.State)
	assert.Equal(t, msgUploadLinkMissing, session.Message)
	assert.Empty(t, session.ShareLink)
}

func TestUploadInitiationErrorSurfacesServerMessage(t *testing.T) {
	b := newFakeBackend(t)
	b.set(func(b *fakeBackend) {
		b.uploadStatus = http.StatusForbidden
		b.uploadBody = gin.H{"error": "Anonymous upload limit reached"}
	})
	u := newTestUploader(t, b, &fixedIDs{id: "anon-1"})

	require.NoError(t, u.Start(context.Background(), selectedItems("a.txt"), types.Identity{}))
	session, err := u.Wait(waitCtx(t))

	var initErr *types.InitiationError
	require.ErrorAs(t, err, &initErr)
	assert.Equal(t, types.UploadFailed, session.State)
	assert.Equal(t, "Anonymous upload limit reached", session.Message)
}

func TestUploadConnectionLossFails(t *testing.T) {
	b := newFakeBackend(t)
	b.set(func(b *fakeBackend) {
		b.uploadFrames = []frame{{"progress", gin.H{"percentage": 10}}}
		b.endStream = true
	})
	u := newTestUploader(t, b, &fixedIDs{id: "anon-1"})

	require.NoError(t, u.Start(context.Background(), selectedItems("a.txt"), types.Identity{}))
	session, err := u.Wait(waitCtx(t))

	var connErr *types.ConnectionError
	require.ErrorAs(t, err, &connErr)
	assert.Equal(t, types.UploadFailed, session.State)
	assert.Equal(t, msgUploadLost, session.Message)
}

func TestUploadIdentityError(t *testing.T) {
	b := newFakeBackend(t)
	u := newTestUploader(t, b, &fixedIDs{err: errors.New("storage unavailable")})

	err := u.Start(context.Background(), selectedItems("a.txt"), types.Identity{})
	var idErr *types.IdentityError
	require.ErrorAs(t, err, &idErr)
	assert.Equal(t, types.UploadFailed, u.Session().State)
	assert.False(t, u.Active())
}

func TestUploadRejectsEmptyAndConcurrentStart(t *testing.T) {
	b := newFakeBackend(t)
	u := newTestUploader(t, b, &fixedIDs{id: "anon-1"})

	assert.ErrorIs(t, u.Start(context.Background(), nil, types.Identity{}), errEmptySelection)

	require.NoError(t, u.Start(context.Background(), selectedItems("a.txt"), types.Identity{}))
	assert.ErrorIs(t, u.Start(context.Background(), selectedItems("b.txt"), types.Identity{}), types.ErrSessionBusy)
	assert.True(t, u.Cancel())
}

func TestUploadCancelWhileStreaming(t *testing.T) {
	b := newFakeBackend(t)
	b.set(func(b *fakeBackend) {
		b.uploadFrames = []frame{{"progress", gin.H{"percentage": 40}}}
	})
	u := newTestUploader(t, b, &fixedIDs{id: "anon-1"})

	require.NoError(t, u.Start(context.Background(), selectedItems("a.txt"), types.Identity{}))
	require.Eventually(t, func() bool {
		s := u.Session()
		return s.State == types.UploadStreaming && s.Progress.Percentage == 40
	}, 5*time.Second, 10*time.Millisecond)

	assert.True(t, u.Cancel())
	session := u.Session()
	assert.Equal(t, types.UploadCancelled, session.State)
	assert.Equal(t, progress.Reset(), session.Progress)
	assert.Nil(t, u.channels.Live(FlowUpload))
	assert.False(t, u.Cancel())

	// a cancelled session can be replaced immediately
	require.NoError(t, u.Start(context.Background(), selectedItems("b.txt"), types.Identity{}))
	assert.True(t, u.Cancel())
}

func TestUploadIgnoresStaleEvents(t *testing.T) {
	u := NewUploader("http://origin.test", nil, sse.NewManager(nil), nil)
	u.session = &types.UploadSession{UploadID: "u2", State: types.UploadStreaming, Progress: progress.Reset()}
	u.done = make(chan struct{})

	// events of a superseded upload
	u.handleEvent("u1", sse.Event{Kind: "progress", Data: []byte(`{"percentage":80}`)})
	u.handleEvent("u1", sse.Event{Kind: "complete", Data: []byte(`{"batch_access_id":"old"}`)})
	assert.Equal(t, types.UploadStreaming, u.Session().State)
	assert.Zero(t, u.Session().Progress.Percentage)

	u.handleEvent("u2", sse.Event{Kind: "progress", Data: []byte(`{"percentage":30}`)})
	assert.Equal(t, float64(30), u.Session().Progress.Percentage)

	require.True(t, u.Cancel())
	u.handleEvent("u2", sse.Event{Kind: "complete", Data: []byte(`{"batch_access_id":"late"}`)})
	u.handleEvent("u2", sse.Event{Kind: sse.EventConnectionError, Err: &types.ConnectionError{}})
	session := u.Session()
	assert.Equal(t, types.UploadCancelled, session.State)
	assert.Empty(t, session.ShareLink)
	assert.NoError(t, u.Err())
}

func TestUploadIgnoresMalformedPayload(t *testing.T) {
	u := NewUploader("http://origin.test", nil, sse.NewManager(nil), nil)
	u.session = &types.UploadSession{UploadID: "u1", State: types.UploadStreaming, Progress: progress.Reset()}
	u.done = make(chan struct{})

	u.handleEvent("u1", sse.Event{Kind: "progress", Data: []byte(`{"percentage":`)})
	u.handleEvent("u1", sse.Event{Kind: "status", Data: []byte(`{"message":"Scanning files"}`)})

	session := u.Session()
	assert.Equal(t, types.UploadStreaming, session.State)
	assert.Equal(t, "Scanning files", session.Message)
}

func TestUploadCancelDuringInitiationDiscardsLateResult(t *testing.T) {
	b := newFakeBackend(t)
	hold := make(chan struct{})
	b.set(func(b *fakeBackend) {
		b.holdUpload = hold
		b.uploadFrames = []frame{{"complete", gin.H{"batch_access_id": "late"}}}
	})
	u := newTestUploader(t, b, &fixedIDs{id: "anon-1"})

	require.NoError(t, u.Start(context.Background(), selectedItems("a.txt"), types.Identity{}))
	<-b.uploads
	require.Equal(t, types.UploadInitiating, u.Session().State)

	require.True(t, u.Cancel())
	close(hold)

	session, err := u.Wait(waitCtx(t))
	require.NoError(t, err)
	assert.Equal(t, types.UploadCancelled, session.State)

	// give a late initiation result the chance to land
	time.Sleep(100 * time.Millisecond)
	session = u.Session()
	assert.Equal(t, types.UploadCancelled, session.State)
	assert.Empty(t, session.UploadID)
	assert.Empty(t, session.ShareLink)
	assert.Nil(t, u.channels.Live(FlowUpload))
	b.mu.Lock()
	defer b.mu.Unlock()
	assert.Empty(t, b.streamPaths)
}

func TestUploadServerErrorEventFails(t *testing.T) {
	b := newFakeBackend(t)
	b.set(func(b *fakeBackend) {
		b.uploadFrames = []frame{
			{"progress", gin.H{"percentage": 20}},
			{"error", "Storage quota exceeded"},
		}
	})
	u := newTestUploader(t, b, &fixedIDs{id: "anon-1"})

	require.NoError(t, u.Start(context.Background(), selectedItems("a.txt"), types.Identity{}))
	session, err := u.Wait(waitCtx(t))

	var initErr *types.InitiationError
	require.ErrorAs(t, err, &initErr)
	assert.Equal(t, types.UploadFailed, session.State)
	assert.Equal(t, "Storage quota exceeded", session.Message)
	assert.Nil(t, u.channels.Live(FlowUpload))
}
