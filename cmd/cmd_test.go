package cmd

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moyoez/bigtransfer-go/types"
)

// newBackend serves just enough of the transfer service for one upload and one batch download.
func newBackend(t *testing.T) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	release := make(chan struct{})
	stream := func(frames ...[2]any) gin.HandlerFunc {
		return func(c *gin.Context) {
			c.Header("Content-Type", "text/event-stream")
			c.Status(http.StatusOK)
			for _, f := range frames {
				c.SSEvent(f[0].(string), f[1])
				c.Writer.Flush()
			}
			select {
			case <-c.Request.Context().Done():
			case <-release:
			}
		}
	}

	router := gin.New()
	router.POST("/initiate-upload", func(c *gin.Context) {
		if _, err := c.MultipartForm(); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"upload_id": "u1"})
	})
	router.GET("/stream-progress/:id", stream(
		[2]any{"progress", gin.H{"percentage": 50}},
		[2]any{"complete", gin.H{"batch_access_id": "abc123"}},
	))
	router.GET("/initiate-download-all/:id", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"sse_stream_url": "/prepare-batch/" + c.Param("id")})
	})
	router.GET("/prepare-batch/:id", stream(
		[2]any{"ready", gin.H{"temp_file_id": "t1", "final_filename": "batch.zip"}},
	))
	router.GET("/serve-temp-file/:temp/:final", func(c *gin.Context) {
		c.String(http.StatusOK, "zip-bytes")
	})
	router.GET("/batch-details/:id", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"batch_display_name":  "holiday photos",
			"total_original_size": 3_000_000,
			"files":               []gin.H{{"original_filename": "a.jpg", "original_size": 3_000_000}},
		})
	})

	srv := httptest.NewServer(router)
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})
	return srv
}

// writeConfig points every on-disk path at dir.
func writeConfig(t *testing.T, dir, origin string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	content := fmt.Sprintf(`origin: %s
anonymousQuota: 5
downloadDir: %s
readyCooldownMs: 1
listen: 127.0.0.1:0
anonymousIdPath: %s
useNotify: false
`, origin, filepath.Join(dir, "downloads"), filepath.Join(dir, "anonymous_id.yaml"))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(append([]string{"--log", "none"}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestUploadPrintsShareLinkAndWritesQR(t *testing.T) {
	srv := newBackend(t)
	dir := t.TempDir()
	cfg := writeConfig(t, dir, srv.URL)

	first := filepath.Join(dir, "a.txt")
	second := filepath.Join(dir, "b.txt")
	require.NoError(t, os.WriteFile(first, []byte("alpha"), 0o644))
	require.NoError(t, os.WriteFile(second, []byte("beta"), 0o644))
	qr := filepath.Join(dir, "link.png")

	out, err := run(t, "-c", cfg, "upload", first, second, "--qr", qr)
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/browse/abc123", strings.TrimSpace(out))

	info, err := os.Stat(qr)
	require.NoError(t, err)
	assert.NotZero(t, info.Size())

	// the anonymous id was generated and persisted for reuse
	_, err = os.Stat(filepath.Join(dir, "anonymous_id.yaml"))
	assert.NoError(t, err)
}

func TestUploadRejectsMissingPath(t *testing.T) {
	srv := newBackend(t)
	dir := t.TempDir()
	cfg := writeConfig(t, dir, srv.URL)

	_, err := run(t, "-c", cfg, "upload", filepath.Join(dir, "nope.txt"))
	assert.Error(t, err)
}

func TestDownloadSavesBatch(t *testing.T) {
	srv := newBackend(t)
	dir := t.TempDir()
	cfg := writeConfig(t, dir, srv.URL)

	out, err := run(t, "-c", cfg, "download", "abc123")
	require.NoError(t, err)
	saved := strings.TrimSpace(out)
	assert.Equal(t, filepath.Join(dir, "downloads", "batch.zip"), saved)

	data, err := os.ReadFile(saved)
	require.NoError(t, err)
	assert.Equal(t, "zip-bytes", string(data))
}

func TestDownloadRecordTakesNoFilename(t *testing.T) {
	dir := t.TempDir()
	cfg := writeConfig(t, dir, "http://127.0.0.1:1")

	_, err := run(t, "-c", cfg, "download", "abc123", "a.txt", "--record")
	assert.EqualError(t, err, "--record takes no filename")
}

func TestDetailsListsFiles(t *testing.T) {
	srv := newBackend(t)
	dir := t.TempDir()
	cfg := writeConfig(t, dir, srv.URL)

	out, err := run(t, "-c", cfg, "details", "abc123")
	require.NoError(t, err)
	assert.Contains(t, out, "holiday photos (1 file(s)")
	assert.Contains(t, out, "a.jpg")
	assert.Contains(t, out, srv.URL+"/browse/abc123")
}

func TestIdentityShowAndReset(t *testing.T) {
	dir := t.TempDir()
	cfg := writeConfig(t, dir, "http://127.0.0.1:1")

	first, err := run(t, "-c", cfg, "identity", "show")
	require.NoError(t, err)
	again, err := run(t, "-c", cfg, "identity", "show")
	require.NoError(t, err)
	assert.Equal(t, first, again)

	_, err = run(t, "-c", cfg, "identity", "reset")
	require.NoError(t, err)
	fresh, err := run(t, "-c", cfg, "identity", "show")
	require.NoError(t, err)
	assert.NotEqual(t, first, fresh)
}

func TestProgressRendererSwitchesToBytes(t *testing.T) {
	r := newProgressRenderer(io.Discard, "Uploading")

	r.Update(types.ProgressSnapshot{Percentage: 40})
	assert.Equal(t, int64(40), r.Current())

	r.Update(types.ProgressSnapshot{Percentage: 50, TotalBytes: 1000})
	assert.Equal(t, int64(500), r.Current())

	r.Update(types.ProgressSnapshot{Percentage: 60, BytesProcessed: 700, TotalBytes: 1000})
	assert.Equal(t, int64(700), r.Current())

	r.Finish(true)
	assert.Zero(t, r.Current())
}
