package downloader

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"songrecognition/internal/apperr"
	"songrecognition/internal/media"
)

const (
	defaultDownloadTimeout       = 5 * time.Minute
	defaultDialTimeout           = 5 * time.Second
	defaultResponseHeaderTimeout = 15 * time.Second
	defaultIdleConnTimeout       = 30 * time.Second
	defaultMaxIdleConnsPerHost   = 4
)

// HTTPFetcher fetches direct media URLs.
type HTTPFetcher struct {
	client    *http.Client
	userAgent string
}

var _ media.Fetcher = (*HTTPFetcher)(nil)

// NewHTTPFetcher returns a fetcher whose whole request, body included, is
// bounded by timeout.
func NewHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	return &HTTPFetcher{client: newClient(timeout), userAgent: "songrec/1.0"}
}

func newClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = defaultDownloadTimeout
	}
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			DialContext:           (&net.Dialer{Timeout: defaultDialTimeout, KeepAlive: 30 * time.Second}).DialContext,
			ForceAttemptHTTP2:     true,
			MaxIdleConnsPerHost:   defaultMaxIdleConnsPerHost,
			IdleConnTimeout:       defaultIdleConnTimeout,
			TLSHandshakeTimeout:   defaultDialTimeout,
			ResponseHeaderTimeout: defaultResponseHeaderTimeout,
		},
	}
}

// HeadContentType returns the Content-Type the server declares for link.
func (f *HTTPFetcher) HeadContentType(ctx context.Context, link string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, link, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %w", apperr.ErrValidation, err)
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("HEAD %s failed: %w", link, err)
	}
	resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return "", err
	}
	return resp.Header.Get("Content-Type"), nil
}

// Stream opens the body of link. The caller closes it.
func (f *HTTPFetcher) Stream(ctx context.Context, link string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperr.ErrValidation, err)
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s failed: %w", link, err)
	}
	if err := checkStatus(resp); err != nil {
		resp.Body.Close()
		return nil, err
	}
	return resp.Body, nil
}

// checkStatus treats client errors as final and server errors as retryable.
func checkStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%s returned %d", resp.Request.URL.Host, resp.StatusCode)
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return fmt.Errorf("%w: %s returned %d", apperr.ErrNotFound, resp.Request.URL.Host, resp.StatusCode)
	default:
		return fmt.Errorf("%s returned %d", resp.Request.URL.Host, resp.StatusCode)
	}
}
