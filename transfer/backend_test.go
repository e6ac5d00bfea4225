package transfer

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/moyoez/bigtransfer-go/types"
)

type frame struct {
	event string
	data  any
}

type receivedUpload struct {
	filenames   []string
	anonymousID string
	auth        string
}

// fakeBackend mimics the transfer service: initiation endpoints, progress streams and the
// temp file server. Streams write their frames and then stay open until the client leaves
// unless endStream is set.
type fakeBackend struct {
	srv     *httptest.Server
	release chan struct{}

	mu               sync.Mutex
	uploadStatus     int
	uploadBody       gin.H
	uploadFrames     []frame
	downloadStatus   int
	downloadBody     gin.H
	downloadFrames   []frame
	endStream        bool
	tempFileBody     string
	streamAuth       []string
	streamPaths      []string
	downloadInitHits int
	// holdUpload, when set, keeps initiate-upload from answering until it is closed
	holdUpload chan struct{}

	uploads chan receivedUpload
}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()
	gin.SetMode(gin.TestMode)
	b := &fakeBackend{
		release:        make(chan struct{}),
		uploadStatus:   http.StatusOK,
		uploadBody:     gin.H{"upload_id": "u1", "message": "Upload initiated"},
		downloadStatus: http.StatusOK,
		downloadBody:   gin.H{"sse_stream_url": "/prepare-batch/abc123"},
		tempFileBody:   "zip-bytes",
		uploads:        make(chan receivedUpload, 8),
	}

	router := gin.New()
	router.POST("/initiate-upload", b.initiateUpload)
	router.GET("/stream-progress/:id", func(c *gin.Context) { b.stream(c, b.frames(true)) })
	router.GET("/initiate-download-all/:id", func(c *gin.Context) {
		b.mu.Lock()
		b.downloadInitHits++
		status, body := b.downloadStatus, b.downloadBody
		b.mu.Unlock()
		c.JSON(status, body)
	})
	router.GET("/prepare-batch/:id", func(c *gin.Context) { b.stream(c, b.frames(false)) })
	router.GET("/download-single/:id/:filename", func(c *gin.Context) { b.stream(c, b.frames(false)) })
	router.GET("/stream-download/:id", func(c *gin.Context) { b.stream(c, b.frames(false)) })
	router.GET("/serve-temp-file/:temp/:final", func(c *gin.Context) {
		b.mu.Lock()
		body := b.tempFileBody
		b.mu.Unlock()
		c.Header("Content-Disposition", "attachment; filename="+c.Param("final"))
		c.String(http.StatusOK, body)
	})

	b.srv = httptest.NewServer(router)
	t.Cleanup(func() {
		close(b.release)
		b.srv.Close()
	})
	return b
}

func (b *fakeBackend) URL() string { return b.srv.URL }

func (b *fakeBackend) Client() *http.Client { return b.srv.Client() }

func (b *fakeBackend) frames(upload bool) []frame {
	b.mu.Lock()
	defer b.mu.Unlock()
	if upload {
		return b.uploadFrames
	}
	return b.downloadFrames
}

func (b *fakeBackend) initiateUpload(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	got := receivedUpload{auth: c.GetHeader("Authorization")}
	for _, fh := range form.File[FormFieldFiles] {
		got.filenames = append(got.filenames, fh.Filename)
	}
	if ids := form.Value[FormFieldAnonymousID]; len(ids) > 0 {
		got.anonymousID = ids[0]
	}
	b.uploads <- got

	b.mu.Lock()
	status, body, hold := b.uploadStatus, b.uploadBody, b.holdUpload
	b.mu.Unlock()
	if hold != nil {
		select {
		case <-hold:
		case <-c.Request.Context().Done():
			return
		}
	}
	c.JSON(status, body)
}

func (b *fakeBackend) stream(c *gin.Context, frames []frame) {
	b.mu.Lock()
	b.streamAuth = append(b.streamAuth, c.GetHeader("Authorization"))
	b.streamPaths = append(b.streamPaths, c.Request.URL.Path)
	end := b.endStream
	b.mu.Unlock()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Status(http.StatusOK)
	c.Writer.Flush()
	for _, f := range frames {
		c.SSEvent(f.event, f.data)
		c.Writer.Flush()
	}
	if end {
		return
	}
	select {
	case <-c.Request.Context().Done():
	case <-b.release:
	}
}

func (b *fakeBackend) set(fn func(b *fakeBackend)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fn(b)
}

type memSource []byte

func (m memSource) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(m)), nil
}

func rawEntry(name string, size int64) types.RawEntry {
	return types.RawEntry{Source: memSource("content of " + name), DisplayName: name, SizeBytes: size}
}

type fixedIDs struct {
	mu      sync.Mutex
	id      string
	err     error
	cleared int
}

func (f *fixedIDs) Get() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.id, f.err
}

func (f *fixedIDs) Clear() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleared++
	return nil
}
