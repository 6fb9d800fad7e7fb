// Package shazam is a client for the recognition sidecar, an HTTP service
// exposing Shazam-style recognize and track endpoints.
package shazam

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"songrecognition/internal/apperr"
	"songrecognition/internal/metadata"
	"songrecognition/internal/recognition"
)

const userAgent = "songrec/1.0"

// maxErrorBody caps how much of an error response is kept.
const maxErrorBody = 512

// Options configures a Client.
type Options struct {
	BaseURL   string
	Timeout   time.Duration
	RateLimit rate.Limit
	Burst     int
}

// Client implements recognition.Backend over HTTP.
type Client struct {
	httpClient *http.Client
	apiURL     string
	limiter    *rate.Limiter
}

var _ recognition.Backend = (*Client)(nil)

// New creates a recognition client. A zero rate limit disables throttling.
func New(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	limit := opts.RateLimit
	if limit <= 0 {
		limit = rate.Inf
	}
	if opts.Burst <= 0 {
		opts.Burst = 1
	}
	return &Client{
		httpClient: &http.Client{Timeout: opts.Timeout},
		apiURL:     strings.TrimRight(opts.BaseURL, "/"),
		limiter:    rate.NewLimiter(limit, opts.Burst),
	}
}

// Recognize sends an encoded clip and returns every match.
func (c *Client) Recognize(ctx context.Context, clip []byte) (recognition.Candidate, error) {
	req, err := c.newRequest(ctx, http.MethodPost, "/recognize", bytes.NewReader(clip))
	if err != nil {
		return recognition.Candidate{}, err
	}
	req.Header.Set("Content-Type", "audio/mpeg")

	var resp recognizeResponse
	if err := c.do(req, &resp); err != nil {
		return recognition.Candidate{}, fmt.Errorf("recognize request failed: %w", err)
	}

	var cand recognition.Candidate
	for _, m := range resp.Matches {
		cand.Matches = append(cand.Matches, recognition.Match{ID: int64(m.ID)})
	}
	return cand, nil
}

// Lookup fetches the full track record. An unknown id is apperr.ErrNoMatch.
func (c *Client) Lookup(ctx context.Context, id int64) (metadata.Track, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/tracks/"+strconv.FormatInt(id, 10), nil)
	if err != nil {
		return metadata.Track{}, err
	}

	var track metadata.Track
	if err := c.do(req, &track); err != nil {
		if errors.Is(err, errNotFound) {
			return metadata.Track{}, fmt.Errorf("%w: track %d does not exist", apperr.ErrNoMatch, id)
		}
		return metadata.Track{}, fmt.Errorf("track lookup failed: %w", err)
	}
	return track, nil
}

// Ping checks that the sidecar answers its health endpoint.
func (c *Client) Ping(ctx context.Context) error {
	req, err := c.newRequest(ctx, http.MethodGet, "/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("recognizer unreachable: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("recognizer health returned %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, method, c.apiURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create recognizer request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
	return req, nil
}

var errNotFound = errors.New("not found")

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return errNotFound
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("recognizer returned %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode recognizer response: %w", err)
	}
	return nil
}

// Recognizer API response types

type recognizeResponse struct {
	Matches   []matchItem `json:"matches"`
	Timestamp int64       `json:"timestamp,omitempty"`
	Tagid     string      `json:"tagid,omitempty"`
}

type matchItem struct {
	ID flexID `json:"id"`
}

// flexID accepts ids encoded either as JSON strings or numbers.
type flexID int64

func (f *flexID) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid match id %s: %w", data, err)
	}
	*f = flexID(n)
	return nil
}
