// internal/clients/video_client.go
package clients

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

var ErrNoMetadata = errors.New("no metadata for video")

// VideoMetadata is the subset of an oEmbed response the bar displays.
type VideoMetadata struct {
	Title        string `json:"title"`
	ThumbnailURL string `json:"thumbnail_url"`
}

// VideoClient looks up video titles and thumbnails from an oEmbed endpoint.
type VideoClient struct {
	endpoint string
	http     *http.Client
}

func NewVideoClient(endpoint string, timeout time.Duration) *VideoClient {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &VideoClient{
		endpoint: endpoint,
		http:     &http.Client{Timeout: timeout},
	}
}

func (c *VideoClient) Lookup(ctx context.Context, videoRef string) (*VideoMetadata, error) {
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid oembed endpoint: %w", err)
	}
	q := u.Query()
	q.Set("url", videoRef)
	q.Set("format", "json")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound, http.StatusUnauthorized, http.StatusNotImplemented:
		return nil, ErrNoMetadata
	default:
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var meta VideoMetadata
	if err := json.NewDecoder(resp.Body).Decode(&meta); err != nil {
		return nil, err
	}
	return &meta, nil
}
