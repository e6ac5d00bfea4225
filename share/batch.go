// Package share reads stored batch metadata, cached for repeated lookups.
package share

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	ttlworker "github.com/FloatTech/ttl"
	"github.com/bytedance/sonic"

	"github.com/moyoez/bigtransfer-go/tool"
	"github.com/moyoez/bigtransfer-go/types"
)

const (
	DefaultTTL = 300 * time.Second // set 300 seconds.
)

// BatchCache fetches GET /batch-details/{access_id} and keeps results for a while.
type BatchCache struct {
	origin string
	client *http.Client
	cache  *ttlworker.Cache[string, *types.BatchDetails]
}

func NewBatchCache(origin string, client *http.Client, ttl time.Duration) *BatchCache {
	if client == nil {
		client = tool.GetHttpClient()
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &BatchCache{
		origin: strings.TrimRight(origin, "/"),
		client: client,
		cache:  ttlworker.NewCache[string, *types.BatchDetails](ttl),
	}
}

// Get returns the batch details, from cache when fresh.
func (b *BatchCache) Get(ctx context.Context, accessID, token string) (*types.BatchDetails, error) {
	if accessID == "" {
		return nil, fmt.Errorf("access id is required")
	}
	if cached := b.cache.Get(accessID); cached != nil {
		tool.DefaultLogger.Debugf("[Share] Batch details cache hit: %s", accessID)
		return cached, nil
	}

	req, err := tool.NewHTTPReqWithApplication(http.NewRequestWithContext(ctx, http.MethodGet, tool.BuildBatchDetailsURL(b.origin, accessID), nil))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %v", err)
	}
	tool.SetBearer(req, token)
	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch batch details: %v", err)
	}
	defer tool.CloseBody(resp.Body)
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %v", err)
	}

	var details types.BatchDetails
	parseErr := sonic.Unmarshal(body, &details)
	if resp.StatusCode != http.StatusOK {
		if parseErr == nil && details.Error != "" {
			return nil, fmt.Errorf("batch %s: %s", accessID, details.Error)
		}
		return nil, fmt.Errorf("batch %s: unexpected status %s", accessID, resp.Status)
	}
	if parseErr != nil {
		return nil, fmt.Errorf("failed to parse batch details: %v", parseErr)
	}
	if details.AccessID == "" {
		details.AccessID = accessID
	}
	b.cache.Set(accessID, &details)
	return &details, nil
}

// Invalidate drops the cached entry for accessID.
func (b *BatchCache) Invalidate(accessID string) {
	b.cache.Delete(accessID)
}

// Cached lists the access ids currently cached.
func (b *BatchCache) Cached() []string {
	keys := make([]string, 0)
	err := b.cache.Range(func(k string, _ *types.BatchDetails) error {
		keys = append(keys, k)
		return nil
	})
	if err != nil {
		return nil
	}
	return keys
}
