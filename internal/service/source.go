package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"syscall"
	"time"

	"go.uber.org/zap"

	"lgtmagic/internal/domain"
)

var errBlockedAddress = errors.New("address not allowed")

// SourceLoader turns user input into raw image bytes.
type SourceLoader interface {
	Validate(src domain.SourceImage) error
	Load(ctx context.Context, src domain.SourceImage) ([]byte, error)
}

type sourceLoader struct {
	maxSize    int64
	httpClient *http.Client
	log        *zap.Logger
}

func NewSourceLoader(maxSize int64, timeout time.Duration, allowPrivate bool, log *zap.Logger) SourceLoader {
	dialer := &net.Dialer{
		Timeout:   timeout,
		KeepAlive: 30 * time.Second,
	}
	if !allowPrivate {
		dialer.Control = func(network, address string, _ syscall.RawConn) error {
			return checkDialAddress(address)
		}
	}

	return &sourceLoader{
		maxSize: maxSize,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				DialContext:         dialer.DialContext,
				TLSHandshakeTimeout: 10 * time.Second,
				MaxIdleConns:        10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		log: log,
	}
}

func checkDialAddress(address string) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return fmt.Errorf("%w: %s", errBlockedAddress, address)
	}
	ip := net.ParseIP(host)
	if ip == nil || !isPublicIP(ip) {
		return fmt.Errorf("%w: %s", errBlockedAddress, host)
	}
	return nil
}

// isPublicIP is false for loopback, private, link-local and unspecified addresses.
func isPublicIP(ip net.IP) bool {
	return !(ip.IsLoopback() ||
		ip.IsPrivate() ||
		ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() ||
		ip.IsInterfaceLocalMulticast() ||
		ip.IsUnspecified())
}

func (l *sourceLoader) Validate(src domain.SourceImage) error {
	switch {
	case len(src.Data) > 0:
		if int64(len(src.Data)) > l.maxSize {
			return fmt.Errorf("%w: file exceeds %d bytes", domain.ErrValidation, l.maxSize)
		}
		return nil
	case src.URL != "":
		_, err := parseSourceURL(src.URL)
		return err
	default:
		return fmt.Errorf("%w: no image provided", domain.ErrValidation)
	}
}

func parseSourceURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid url", domain.ErrValidation)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: url scheme must be http or https", domain.ErrValidation)
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("%w: url has no host", domain.ErrValidation)
	}
	return u, nil
}

func (l *sourceLoader) Load(ctx context.Context, src domain.SourceImage) ([]byte, error) {
	if err := l.Validate(src); err != nil {
		return nil, err
	}
	if len(src.Data) > 0 {
		return src.Data, nil
	}

	u, _ := parseSourceURL(src.URL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid url", domain.ErrValidation)
	}
	req.Header.Set("Accept", "image/*")

	resp, err := l.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, errBlockedAddress) {
			l.log.Warn("Blocked source url", zap.String("host", u.Hostname()))
			return nil, fmt.Errorf("%w: url host is not allowed", domain.ErrValidation)
		}
		return nil, fmt.Errorf("%w: fetch source: %w", domain.ErrImageDecode, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: fetch source: status %d", domain.ErrImageDecode, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, l.maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read source: %w", domain.ErrImageDecode, err)
	}
	if int64(len(data)) > l.maxSize {
		return nil, fmt.Errorf("%w: remote image exceeds %d bytes", domain.ErrValidation, l.maxSize)
	}

	l.log.Debug("Source image fetched",
		zap.String("host", u.Hostname()),
		zap.Int("size", len(data)))

	return data, nil
}
