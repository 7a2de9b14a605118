package rpc

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/vietddude/autoacdc/internal/metrics"
)

const maxErrorBody = 512

// Client makes JSON calls to one remote service.
type Client struct {
	name       string
	httpClient *http.Client
	limiter    *rate.Limiter
	retry      RetryConfig
}

// NewClient creates a client. The certificate in auth is loaded once, here.
func NewClient(name string, cfg Config, auth AuthConfig) (*Client, error) {
	cfg = cfg.withDefaults()

	tlsConfig, err := loadTLSConfig(auth)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	c := &Client{
		name: name,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				TLSClientConfig:     tlsConfig,
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: rate.NewLimiter(rate.Inf, cfg.Burst),
		retry:   cfg.Retry,
	}
	if cfg.RateLimit > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.Burst)
	}
	return c, nil
}

// Name returns the service name used in metrics.
func (c *Client) Name() string {
	return c.name
}

// GetJSON issues a GET and decodes the response into out.
func (c *Client) GetJSON(ctx context.Context, endpoint string, out any) error {
	return c.Do(ctx, http.MethodGet, endpoint, nil, out)
}

// Do sends body as JSON and decodes the response into out. Either may be nil.
func (c *Client) Do(ctx context.Context, method, endpoint string, body, out any) error {
	payload, err := marshalBody(body)
	if err != nil {
		return err
	}

	return CallWithRetry(ctx, c.retry, func(ctx context.Context) error {
		return c.once(ctx, method, endpoint, payload, out)
	})
}

// DoOnce is Do without retries, for calls the server must not see twice.
func (c *Client) DoOnce(ctx context.Context, method, endpoint string, body, out any) error {
	payload, err := marshalBody(body)
	if err != nil {
		return err
	}
	return c.once(ctx, method, endpoint, payload, out)
}

func marshalBody(body any) ([]byte, error) {
	if body == nil {
		return nil, nil
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	return payload, nil
}

func (c *Client) once(ctx context.Context, method, endpoint string, payload []byte, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	start := time.Now()
	label := operationLabel(method, endpoint)
	metrics.HTTPCallsTotal.WithLabelValues(c.name, label).Inc()
	defer func() {
		metrics.HTTPLatency.WithLabelValues(c.name, label).Observe(time.Since(start).Seconds())
	}()

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.HTTPErrorsTotal.WithLabelValues(c.name, "network").Inc()
		return fmt.Errorf("%s %s: %w", method, endpoint, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.HTTPErrorsTotal.WithLabelValues(c.name, "read").Inc()
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		metrics.HTTPErrorsTotal.WithLabelValues(c.name, strconv.Itoa(resp.StatusCode)).Inc()
		return &StatusError{
			Code:       resp.StatusCode,
			Body:       truncate(string(data), maxErrorBody),
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		metrics.HTTPErrorsTotal.WithLabelValues(c.name, "decode").Inc()
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

func loadTLSConfig(auth AuthConfig) (*tls.Config, error) {
	cfg := &tls.Config{MinVersion: tls.VersionTLS12}

	if auth.CertFile != "" {
		keyFile := auth.KeyFile
		if keyFile == "" {
			keyFile = auth.CertFile
		}
		cert, err := tls.LoadX509KeyPair(auth.CertFile, keyFile)
		if err != nil {
			return nil, fmt.Errorf("load client certificate: %w", err)
		}
		cfg.Certificates = []tls.Certificate{cert}
	}

	if auth.CAFile != "" {
		pem, err := os.ReadFile(auth.CAFile)
		if err != nil {
			return nil, fmt.Errorf("read CA file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates in %s", auth.CAFile)
		}
		cfg.RootCAs = pool
	}
	return cfg, nil
}

// operationLabel keeps metric cardinality bounded: the path without query or
// trailing workflow names.
func operationLabel(method, endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil {
		return method
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) > 3 {
		parts = parts[:3]
	}
	return method + " /" + strings.Join(parts, "/")
}

func parseRetryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
