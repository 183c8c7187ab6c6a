package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/darkangelpraha/dropindex/internal/config"
	"github.com/darkangelpraha/dropindex/internal/logger"
	"github.com/darkangelpraha/dropindex/internal/retry"
)

const maxErrorBodyBytes = 1024

// Client talks to one Qdrant collection over its REST API
type Client struct {
	log        *logger.Logger
	baseURL    string
	collection string
	apiKey     string
	http       *http.Client
	retry      retry.Config
}

// Option customizes a Client
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithRetry replaces the retry policy
func WithRetry(rc retry.Config) Option {
	return func(c *Client) {
		c.retry = rc
	}
}

// New creates a client for cfg.Collection at cfg.QdrantURL
func New(cfg config.Config, log *logger.Logger, opts ...Option) *Client {
	if log == nil {
		log = logger.NewNop()
	}
	c := &Client{
		log:        log.With("service", "qdrant"),
		baseURL:    strings.TrimRight(cfg.QdrantURL, "/"),
		collection: cfg.Collection,
		apiKey:     cfg.QdrantAPIKey,
		http:       &http.Client{Timeout: cfg.HTTPTimeout()},
	}
	c.retry = retry.Config{
		MaxRetries: cfg.HTTPRetries,
		BaseDelay:  cfg.RetryBaseDelay(),
		MaxDelay:   cfg.RetryMaxDelay(),
		Multiplier: 2.0,
		OnRetry: func(attempt int, err error, wait time.Duration) {
			c.log.Warn("qdrant request failed, retrying", "attempt", attempt, "wait", wait, "error", err)
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Collection returns the collection name
func (c *Client) Collection() string {
	return c.collection
}

// URL returns the base URL of the Qdrant server
func (c *Client) URL() string {
	return c.baseURL
}

type envelope struct {
	Result json.RawMessage `json:"result"`
	Status json.RawMessage `json:"status"`
	Time   float64         `json:"time"`
}

// call runs doJSON under the retry policy
func (c *Client) call(ctx context.Context, op, method, path string, in, out any) error {
	var body []byte
	if in != nil {
		var err error
		body, err = json.Marshal(in)
		if err != nil {
			return opErr(op, OperationErrorEncodeFailed, "encode request failed", err)
		}
	}
	_, err := retry.Do(ctx, c.retry, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, c.doJSON(ctx, op, method, path, body, out)
	})
	return err
}

func (c *Client) doJSON(ctx context.Context, op, method, path string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return opErr(op, OperationErrorTransportFailed, "build request failed", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("api-key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return classifyHTTPCallError(op, "qdrant request failed", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return opErr(op, OperationErrorDecodeFailed, "read response failed", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &OperationError{
			Code:       OperationErrorQueryFailed,
			Operation:  op,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("qdrant http status=%d body=%q", resp.StatusCode, truncateBody(raw)),
		}
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return opErr(op, OperationErrorTransportFailed, "empty reply from server", nil)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return opErr(op, OperationErrorDecodeFailed, "decode qdrant envelope failed", err)
	}
	if msg := parseEnvelopeStatus(env.Status); msg != "" {
		return &OperationError{
			Code:       OperationErrorQueryFailed,
			Operation:  op,
			StatusCode: resp.StatusCode,
			Message:    msg,
		}
	}

	if out == nil || len(env.Result) == 0 || string(env.Result) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		return opErr(op, OperationErrorDecodeFailed, "decode qdrant result failed", err)
	}
	return nil
}

func classifyHTTPCallError(op, message string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return opErr(op, OperationErrorTimeout, message, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return opErr(op, OperationErrorTimeout, message, err)
	}
	return opErr(op, OperationErrorTransportFailed, message, err)
}

func parseEnvelopeStatus(raw json.RawMessage) string {
	status := strings.TrimSpace(string(raw))
	if status == "" || status == "null" {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if strings.EqualFold(s, "ok") || strings.EqualFold(s, "acknowledged") {
			return ""
		}
		return fmt.Sprintf("qdrant status=%q", s)
	}

	var obj struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && strings.TrimSpace(obj.Error) != "" {
		return strings.TrimSpace(obj.Error)
	}
	return fmt.Sprintf("qdrant status=%s", status)
}

func truncateBody(raw []byte) string {
	if len(raw) <= maxErrorBodyBytes {
		return string(raw)
	}
	return string(raw[:maxErrorBodyBytes]) + "..."
}

func (c *Client) collectionPath(suffix string) string {
	return "/collections/" + c.collection + suffix
}
