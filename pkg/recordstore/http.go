package recordstore

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"
	"golang.org/x/time/rate"

	"github.com/azuminxx/simple-redger-sub000/pkg/metrics"
	"github.com/azuminxx/simple-redger-sub000/pkg/models"
	"github.com/azuminxx/simple-redger-sub000/pkg/tracing"
)

const (
	// DefaultMaxResponseSize is the largest page body accepted (10MB)
	DefaultMaxResponseSize = 10 * 1024 * 1024

	maxErrorBody = 512
)

// HTTPConfig holds record store client configuration
type HTTPConfig struct {
	BaseURL         string
	Endpoint        string
	Timeout         time.Duration
	MaxIdleConns    int
	IdleConnTimeout time.Duration
	MaxResponseSize int64

	// RequestsPerSecond throttles outbound requests across all stores; zero disables it.
	RequestsPerSecond float64
	Burst             int

	TokenHeader string
	Tokens      map[models.Store]string

	RecordsPath    string
	TotalCountPath string
}

// DefaultHTTPConfig returns default record store client configuration
func DefaultHTTPConfig() HTTPConfig {
	return HTTPConfig{
		Endpoint:          "/k/v1/records.json",
		Timeout:           30 * time.Second,
		MaxIdleConns:      100,
		IdleConnTimeout:   90 * time.Second,
		MaxResponseSize:   DefaultMaxResponseSize,
		RequestsPerSecond: 10,
		Burst:             5,
		TokenHeader:       "X-Cybozu-API-Token",
		RecordsPath:       "records",
		TotalCountPath:    "totalCount",
	}
}

// HTTPClient reads record pages over the platform's REST API.
type HTTPClient struct {
	client    *http.Client
	cfg       HTTPConfig
	limiter   *rate.Limiter
	evaluator *evaluator
	logger    ectologger.Logger
}

// NewHTTPClient creates a record store client
func NewHTTPClient(cfg HTTPConfig, logger ectologger.Logger) *HTTPClient {
	transport := &http.Transport{
		MaxIdleConns:    cfg.MaxIdleConns,
		IdleConnTimeout: cfg.IdleConnTimeout,
	}
	if cfg.MaxResponseSize <= 0 {
		cfg.MaxResponseSize = DefaultMaxResponseSize
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	return &HTTPClient{
		client: &http.Client{
			Transport: transport,
			Timeout:   cfg.Timeout,
		},
		cfg:       cfg,
		limiter:   limiter,
		evaluator: newEvaluator(),
		logger:    logger,
	}
}

// Query reads one page of records.
func (c *HTTPClient) Query(ctx context.Context, req Request) (*Page, error) {
	ctx, span := tracing.StartSpan(ctx, "recordstore.HTTPClient.Query")
	defer span.End()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}

	reqURL, err := c.buildURL(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if token := c.cfg.Tokens[req.Store]; token != "" && c.cfg.TokenHeader != "" {
		httpReq.Header.Set(c.cfg.TokenHeader, token)
	}
	httpReq.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.client.Do(httpReq)
	if err != nil {
		metrics.RecordRecordStoreRequest(string(req.Store), "error", time.Since(start))
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.cfg.MaxResponseSize+1))
	duration := time.Since(start)
	metrics.RecordRecordStoreRequest(string(req.Store), fmt.Sprintf("%d", resp.StatusCode), duration)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if int64(len(body)) > c.cfg.MaxResponseSize {
		return nil, fmt.Errorf("response body too large: more than %d bytes", c.cfg.MaxResponseSize)
	}

	c.logger.WithContext(ctx).Debugf("record store %s offset %d -> %d (%s)", req.Store, req.Offset, resp.StatusCode, duration)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet := string(body)
		if len(snippet) > maxErrorBody {
			snippet = snippet[:maxErrorBody]
		}
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: snippet}
	}

	var decoded any
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}

	page, err := c.evaluator.decodePage(decoded, c.cfg.RecordsPath, c.cfg.TotalCountPath)
	if err != nil {
		return nil, fmt.Errorf("malformed response: %w", err)
	}
	return page, nil
}

func (c *HTTPClient) buildURL(req Request) (string, error) {
	base := strings.TrimRight(c.cfg.BaseURL, "/")
	parsed, err := url.Parse(base + c.cfg.Endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid record store URL: %w", err)
	}

	params := parsed.Query()
	params.Set("app", req.App)
	params.Set("query", req.String())
	params.Set("totalCount", "true")
	parsed.RawQuery = params.Encode()
	return parsed.String(), nil
}
