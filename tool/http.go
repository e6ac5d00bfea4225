package tool

import (
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

var (
	DefaultTimeout       = 30 * time.Second
	ConnectionHttpClient *http.Client // control calls: initiate-download-all, batch-details
	StreamHttpClient     *http.Client // long-lived: uploads, SSE channels, temp file fetches
)

func init() {
	InitHTTPClients(false)
}

// NewHTTPClient creates an HTTP client. A zero timeout leaves the client unbounded,
// which long-lived streams rely on; those are cancelled through their request context.
func NewHTTPClient(timeout time.Duration, insecure bool) *http.Client {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        50,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		DisableCompression:  true,
	}
	if insecure {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}

// NewRetryClient wraps base with retries for idempotent control calls.
func NewRetryClient(base *http.Client) *http.Client {
	retryClient := retryablehttp.NewClient()
	retryClient.HTTPClient = base
	retryClient.RetryMax = 3
	retryClient.RetryWaitMin = 500 * time.Millisecond
	retryClient.RetryWaitMax = 5 * time.Second
	retryClient.Logger = retryLogger{}
	return retryClient.StandardClient()
}

// InitHTTPClients (re)initializes the shared clients.
func InitHTTPClients(insecure bool) {
	ConnectionHttpClient = NewRetryClient(NewHTTPClient(DefaultTimeout, insecure))
	StreamHttpClient = NewHTTPClient(0, insecure)
}

func GetHttpClient() *http.Client {
	return ConnectionHttpClient
}

func GetStreamClient() *http.Client {
	return StreamHttpClient
}

// NewHTTPReqWithApplication sets JSON headers on a freshly built request.
func NewHTTPReqWithApplication(req *http.Request, err error) (*http.Request, error) {
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if req.Body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// SetBearer attaches the login token, if any.
func SetBearer(req *http.Request, token string) {
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

// CloseBody closes a response body and logs a failure.
func CloseBody(body io.Closer) {
	if err := body.Close(); err != nil {
		DefaultLogger.Errorf("Failed to close response body: %v", err)
	}
}

// retryLogger implements retryablehttp.LeveledLogger on top of DefaultLogger.
type retryLogger struct{}

func (retryLogger) Error(msg string, keysAndValues ...interface{}) {
	DefaultLogger.Error(fmt.Sprintf("[Retry] %s", msg), keysAndValues...)
}

func (retryLogger) Info(msg string, keysAndValues ...interface{}) {}

func (retryLogger) Debug(msg string, keysAndValues ...interface{}) {
	DefaultLogger.Debug(fmt.Sprintf("[Retry] %s", msg), keysAndValues...)
}

func (retryLogger) Warn(msg string, keysAndValues ...interface{}) {
	DefaultLogger.Warn(fmt.Sprintf("[Retry] %s", msg), keysAndValues...)
}
