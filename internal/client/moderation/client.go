// Package moderation calls the Google Vision SafeSearch endpoint.
package moderation

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
)

// Likelihood values returned by SafeSearch.
const (
	Unknown      = "UNKNOWN"
	VeryUnlikely = "VERY_UNLIKELY"
	Unlikely     = "UNLIKELY"
	Possible     = "POSSIBLE"
	Likely       = "LIKELY"
	VeryLikely   = "VERY_LIKELY"
)

var (
	ErrNotConfigured = errors.New("vision api key not configured")
	ErrNoAnnotation  = errors.New("safe search annotation missing")
)

type SafeSearch struct {
	Adult    string `json:"adult"`
	Spoof    string `json:"spoof"`
	Medical  string `json:"medical"`
	Violence string `json:"violence"`
	Racy     string `json:"racy"`
}

type Client struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
	log        *zap.Logger
}

func NewClient(endpoint, apiKey string, timeout time.Duration, log *zap.Logger) *Client {
	return &Client{
		endpoint:   endpoint,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		log:        log,
	}
}

func (c *Client) Enabled() bool {
	return c != nil && c.apiKey != ""
}

type annotateRequest struct {
	Requests []imageRequest `json:"requests"`
}

type imageRequest struct {
	Image    imageContent `json:"image"`
	Features []feature    `json:"features"`
}

type imageContent struct {
	Content string `json:"content"`
}

type feature struct {
	Type       string `json:"type"`
	MaxResults int    `json:"maxResults"`
}

type annotateResponse struct {
	Responses []struct {
		SafeSearchAnnotation *SafeSearch `json:"safeSearchAnnotation"`
		Error                *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	} `json:"responses"`
}

// SafeSearch annotates raw image bytes.
func (c *Client) SafeSearch(ctx context.Context, data []byte) (*SafeSearch, error) {
	if !c.Enabled() {
		return nil, ErrNotConfigured
	}

	payload, err := json.Marshal(annotateRequest{
		Requests: []imageRequest{{
			Image:    imageContent{Content: base64.StdEncoding.EncodeToString(data)},
			Features: []feature{{Type: "SAFE_SEARCH_DETECTION", MaxResults: 1}},
		}},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal annotate request: %w", err)
	}

	endpoint, err := url.Parse(c.endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse vision endpoint: %w", err)
	}
	q := endpoint.Query()
	q.Set("key", c.apiKey)
	endpoint.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build annotate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		// the url error would carry the key in its message
		var uerr *url.Error
		if errors.As(err, &uerr) {
			err = uerr.Err
		}
		return nil, fmt.Errorf("vision request: %w", err)
	}
	defer resp.Body.Close()

	c.log.Debug("Vision API responded",
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("vision request: unexpected status %d", resp.StatusCode)
	}

	var body annotateResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode vision response: %w", err)
	}
	if len(body.Responses) == 0 {
		return nil, ErrNoAnnotation
	}
	first := body.Responses[0]
	if first.Error != nil {
		return nil, fmt.Errorf("vision error %d: %s", first.Error.Code, first.Error.Message)
	}
	if first.SafeSearchAnnotation == nil {
		return nil, ErrNoAnnotation
	}

	return first.SafeSearchAnnotation, nil
}
