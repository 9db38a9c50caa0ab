// Package framesource fetches still frames from the camera gateway.
package framesource

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/sg-security/backend/config"
)

// maxFrameBytes caps a single frame body.
const maxFrameBytes = 16 << 20

// Client talks to the gateway over a single pooled HTTP connection set.
// It is safe for concurrent use by all recording sessions.
type Client struct {
	base     string
	mime     string
	apiKey   string
	apiKeyID string
	http     *http.Client
	logger   *zap.Logger
}

// NewClient creates a gateway client. The transport is shared for the life of the process.
func NewClient(cfg config.FrameSourceConfig, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	keepAlive := cfg.KeepAlive
	if keepAlive <= 0 {
		keepAlive = 90 * time.Second
	}
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 32,
		IdleConnTimeout:     keepAlive,
		ForceAttemptHTTP2:   true,
	}
	mime := cfg.MimeType
	if mime == "" {
		mime = "image/jpeg"
	}
	return &Client{
		base:     cfg.BaseURL,
		mime:     mime,
		apiKey:   cfg.APIKey,
		apiKeyID: cfg.APIKeyID,
		http:     &http.Client{Transport: transport},
		logger:   logger,
	}
}

// GetFrame returns the latest frame for cameraID. A camera with no frame available
// yields (nil, nil). Deadlines come from ctx.
func (c *Client) GetFrame(ctx context.Context, cameraID string) ([]byte, error) {
	u := fmt.Sprintf("%s/cameras/%s/image?mime_type=%s", c.base, url.PathEscape(cameraID), url.QueryEscape(c.mime))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	c.authorize(req)
	req.Header.Set("Accept", c.mime)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get frame %s: %w", cameraID, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound, http.StatusNoContent:
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, nil
	default:
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("get frame %s: unexpected status %d", cameraID, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFrameBytes))
	if err != nil {
		return nil, fmt.Errorf("read frame %s: %w", cameraID, err)
	}
	if len(body) == 0 {
		return nil, nil
	}
	return body, nil
}

// Ping checks the gateway is reachable.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/health", nil)
	if err != nil {
		return err
	}
	c.authorize(req)
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("frame source unhealthy: status %d", resp.StatusCode)
	}
	c.logger.Info("frame source reachable", zap.String("base_url", c.base))
	return nil
}

// Close releases idle connections.
func (c *Client) Close() {
	c.http.CloseIdleConnections()
}

func (c *Client) authorize(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}
	if c.apiKeyID != "" {
		req.Header.Set("X-API-Key-ID", c.apiKeyID)
	}
}
