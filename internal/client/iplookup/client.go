// Package iplookup asks an external echo service for the caller's public IP.
package iplookup

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"
)

type Client struct {
	url        string
	httpClient *http.Client
	log        *zap.Logger
}

func NewClient(url string, timeout time.Duration, log *zap.Logger) *Client {
	return &Client{
		url:        url,
		httpClient: &http.Client{Timeout: timeout},
		log:        log,
	}
}

type lookupResponse struct {
	IP string `json:"ip"`
}

// PublicIP returns the address reported by the lookup service.
func (c *Client) PublicIP(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return "", fmt.Errorf("build ip lookup request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("ip lookup: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ip lookup: unexpected status %d", resp.StatusCode)
	}

	var body lookupResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&body); err != nil {
		return "", fmt.Errorf("decode ip lookup response: %w", err)
	}
	if net.ParseIP(body.IP) == nil {
		return "", fmt.Errorf("ip lookup returned invalid address %q", body.IP)
	}

	c.log.Debug("Public IP resolved", zap.String("ip", body.IP))
	return body.IP, nil
}
