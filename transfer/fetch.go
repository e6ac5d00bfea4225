package transfer

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/moyoez/bigtransfer-go/tool"
)

// Fetcher retrieves the prepared bytes once a download is ready and returns where they went.
type Fetcher interface {
	Fetch(ctx context.Context, url, finalFilename string) (string, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, url, finalFilename string) (string, error)

func (f FetcherFunc) Fetch(ctx context.Context, url, finalFilename string) (string, error) {
	return f(ctx, url, finalFilename)
}

// HTTPFetcher streams the served temp file into Dir under a collision-free name.
type HTTPFetcher struct {
	Client *http.Client
	Dir    string
	Token  string
}

func (f *HTTPFetcher) Fetch(ctx context.Context, url, finalFilename string) (string, error) {
	client := f.Client
	if client == nil {
		client = tool.GetStreamClient()
	}
	dir := f.Dir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create download directory: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create fetch request: %v", err)
	}
	tool.SetBearer(req, f.Token)
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch prepared file: %v", err)
	}
	defer tool.CloseBody(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to fetch prepared file: %s", resp.Status)
	}

	target := tool.NextAvailablePath(dir, finalFilename)
	file, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("failed to create file: %v", err)
	}
	written, copyErr := tool.CopyWithContext(ctx, file, resp.Body)
	closeErr := file.Close()
	if copyErr == nil {
		copyErr = closeErr
	}
	if copyErr != nil {
		if removeErr := os.Remove(target); removeErr != nil {
			tool.DefaultLogger.Warnf("[Download] Failed to remove partial file %s: %v", target, removeErr)
		}
		return "", fmt.Errorf("failed to write %s: %v", target, copyErr)
	}
	tool.DefaultLogger.Infof("[Download] Saved %s (%d bytes)", target, written)
	return target, nil
}
