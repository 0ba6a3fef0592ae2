package sensor

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"codeberg.org/mutker/upsguard/internal/errors"
	"codeberg.org/mutker/upsguard/internal/logger"
)

const (
	defaultTimeout = 30 * time.Second
	maxPayloadSize = 8 << 20
)

// Config identifies the telemetry endpoint.
type Config struct {
	Host    string
	Port    int
	Timeout time.Duration
}

// URL returns the endpoint queried by Fetch.
func (c Config) URL() string {
	return "http://" + net.JoinHostPort(c.Host, strconv.Itoa(c.Port)) + "/"
}

// HTTPClient performs one bounded GET per Fetch. It never retries.
type HTTPClient struct {
	httpClient *http.Client
	url        string
	log        logger.Logger
}

// NewHTTPClient returns a client for the endpoint in cfg. A zero Timeout
// falls back to 30 seconds.
func NewHTTPClient(cfg Config, log logger.Logger) (*HTTPClient, error) {
	errFactory := errors.New()

	if cfg.Host == "" {
		return nil, errFactory.WithMessage(ErrInvalidConfig, "sensor host is required")
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, errFactory.WithData(ErrInvalidConfig, fmt.Sprintf("port %d", cfg.Port))
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &HTTPClient{
		httpClient: &http.Client{Timeout: timeout},
		url:        cfg.URL(),
		log:        log,
	}, nil
}

// Fetch returns the raw response body. Transport failures, timeouts and
// non-2xx statuses are all reported as ErrNetwork; a body over the size
// limit is ErrPayloadTooLarge.
func (c *HTTPClient) Fetch(ctx context.Context) ([]byte, error) {
	errFactory := errors.New()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, http.NoBody)
	if err != nil {
		return nil, errFactory.Wrap(ErrNetwork, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errFactory.Wrap(ErrNetwork, err)
	}
	defer func() { _ = resp.Body.Close() }()

	c.log.Debug().Int("status", resp.StatusCode).Str("url", c.url).Msg("Telemetry response")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errFactory.WithMessage(ErrNetwork, "unexpected HTTP status "+resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPayloadSize+1))
	if err != nil {
		return nil, errFactory.Wrap(ErrNetwork, err)
	}
	if len(body) > maxPayloadSize {
		return nil, errFactory.WithData(ErrPayloadTooLarge, struct {
			Limit int
		}{maxPayloadSize})
	}

	return body, nil
}
