package share

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDetailsServer(t *testing.T, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/batch-details/:id", func(c *gin.Context) {
		hits.Add(1)
		if c.Param("id") == "missing" {
			c.JSON(http.StatusNotFound, gin.H{"error": "Batch not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"batch_display_name":  "holiday photos",
			"is_batch":            true,
			"total_original_size": 9_000_000,
			"files": []gin.H{
				{"original_filename": "a.jpg", "original_size": 3_000_000},
				{"original_filename": "b.jpg", "original_size": 6_000_000},
			},
			"auth": c.GetHeader("Authorization"),
		})
	})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

func TestBatchCacheFetchesOnce(t *testing.T) {
	var hits atomic.Int32
	srv := newDetailsServer(t, &hits)
	cache := NewBatchCache(srv.URL, srv.Client(), time.Minute)

	details, err := cache.Get(context.Background(), "abc123", "tok")
	require.NoError(t, err)
	assert.Equal(t, "abc123", details.AccessID)
	assert.Equal(t, "holiday photos", details.BatchName)
	assert.Equal(t, int64(9_000_000), details.TotalSizeBytes)
	require.Len(t, details.Files, 2)
	assert.Equal(t, "b.jpg", details.Files[1].Filename)

	_, err = cache.Get(context.Background(), "abc123", "tok")
	require.NoError(t, err)
	assert.Equal(t, int32(1), hits.Load())
	assert.Equal(t, []string{"abc123"}, cache.Cached())

	cache.Invalidate("abc123")
	_, err = cache.Get(context.Background(), "abc123", "tok")
	require.NoError(t, err)
	assert.Equal(t, int32(2), hits.Load())
}

func TestBatchCacheSurfacesServerError(t *testing.T) {
	var hits atomic.Int32
	srv := newDetailsServer(t, &hits)
	cache := NewBatchCache(srv.URL, srv.Client(), time.Minute)

	_, err := cache.Get(context.Background(), "missing", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Batch not found")
	assert.Empty(t, cache.Cached())

	_, err = cache.Get(context.Background(), "", "")
	assert.Error(t, err)
}
