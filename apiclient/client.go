package apiclient

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cpacket/appliance-registrar/credentials"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	contentTypeJSON = "application/json"
	// DefaultTimeout bounds every call, including the liveness probe.
	DefaultTimeout = 10 * time.Second
)

var (
	// ErrTransport covers connection errors, timeouts and redirect loops.
	ErrTransport = errors.New("transport failure")
	// ErrDecode is returned when a response body is not the expected JSON.
	ErrDecode = errors.New("failed to decode response body")
)

// APIError is a response outside of the success band. Name and Message are
// filled from the appliance's {"name": ..., "message": ...} error body when
// it has one.
type APIError struct {
	StatusCode int
	Name       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Name != "" || e.Message != "" {
		return fmt.Sprintf("HTTP %d (%s): %s", e.StatusCode, e.Name, e.Message)
	}
	return fmt.Sprintf("HTTP %d", e.StatusCode)
}

// Client issues JSON REST calls against cClear-V and cVu-V appliances.
// Every failure is logged here and returned as an error; callers treat any
// error as "no result" and carry on.
type Client struct {
	cli    *http.Client
	logger *zap.Logger
	config clientConfig
}

type clientConfig struct {
	timeout            time.Duration
	insecureSkipVerify bool
	transport          http.RoundTripper
}

type ClientOption func(*clientConfig)

// Timeout overrides the per-call timeout.
func Timeout(d time.Duration) ClientOption {
	return func(c *clientConfig) {
		c.timeout = d
	}
}

// VerifyTLS enables certificate verification. Appliances ship self-signed
// certificates, so it is off by default.
func VerifyTLS(verify bool) ClientOption {
	return func(c *clientConfig) {
		c.insecureSkipVerify = !verify
	}
}

// Transport replaces the round tripper, mostly for tests.
func Transport(rt http.RoundTripper) ClientOption {
	return func(c *clientConfig) {
		c.transport = rt
	}
}

// New creates a Client.
func New(logger *zap.Logger, opts ...ClientOption) *Client {
	config := clientConfig{
		timeout:            DefaultTimeout,
		insecureSkipVerify: true,
	}
	for _, o := range opts {
		o(&config)
	}

	transport := config.transport
	if transport == nil {
		t := http.DefaultTransport.(*http.Transport).Clone()
		t.TLSClientConfig = &tls.Config{InsecureSkipVerify: config.insecureSkipVerify} //nolint:gosec // appliances use self-signed certs
		transport = t
	}

	return &Client{
		cli: &http.Client{
			Timeout:   config.timeout,
			Transport: transport,
		},
		logger: logger,
		config: config,
	}
}

// Request describes one call.
type Request struct {
	Method string
	URL    string
	// Auth is sent as HTTP basic auth when set.
	Auth *credentials.BasicAuth
	// Body is JSON encoded when set.
	Body any
}

// Do executes req and decodes the JSON response into out. A nil out still
// requires a well-formed (or empty) body.
func (c *Client) Do(ctx context.Context, req Request, out any) error {
	logger := c.logger.With(zap.String("method", req.Method), zap.String("url", req.URL))
	b, err := c.roundTrip(ctx, logger, req)
	if err != nil {
		return err
	}

	if out == nil {
		if len(bytes.TrimSpace(b)) == 0 || json.Valid(b) {
			return nil
		}
		logger.Error("failed to decode JSON", zap.ByteString("body", b))
		return errors.Wrapf(ErrDecode, "%s %s", req.Method, req.URL)
	}
	if err := json.Unmarshal(b, out); err != nil {
		logger.Error("failed to decode JSON", zap.ByteString("body", b), zap.Error(err))
		return errors.Wrapf(ErrDecode, "%s %s: %v", req.Method, req.URL, err)
	}
	return nil
}

// Probe issues an unauthenticated GET and only checks that a response in
// the success band came back.
func (c *Client) Probe(ctx context.Context, url string) error {
	logger := c.logger.With(zap.String("method", http.MethodGet), zap.String("url", url))
	_, err := c.roundTrip(ctx, logger, Request{Method: http.MethodGet, URL: url})
	return err
}

func (c *Client) roundTrip(ctx context.Context, logger *zap.Logger, req Request) ([]byte, error) {
	var body io.Reader = http.NoBody
	if req.Body != nil {
		var buf bytes.Buffer
		if err := json.NewEncoder(&buf).Encode(req.Body); err != nil {
			return nil, errors.Wrap(err, "failed to encode request body")
		}
		body = &buf
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		logger.Error("failed to build request", zap.Error(err))
		return nil, errors.Wrap(err, "failed to build request")
	}
	httpReq.Header.Set("Accept", contentTypeJSON)
	if req.Body != nil {
		httpReq.Header.Set("Content-Type", contentTypeJSON)
	}
	if req.Auth != nil {
		httpReq.SetBasicAuth(req.Auth.Username, req.Auth.Password)
	}

	resp, err := c.cli.Do(httpReq)
	if err != nil {
		logger.Error("network error", zap.Error(err))
		return nil, errors.Wrapf(ErrTransport, "%s %s: %v", req.Method, req.URL, err)
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		logger.Error("failed to read response body", zap.Error(err))
		return nil, errors.Wrapf(ErrTransport, "%s %s: %v", req.Method, req.URL, err)
	}

	if IsSuccess(resp.StatusCode) {
		return b, nil
	}

	apiErr := &APIError{StatusCode: resp.StatusCode}
	var errBody struct {
		Name    string `json:"name"`
		Message string `json:"message"`
	}
	if json.Unmarshal(b, &errBody) == nil && (errBody.Name != "" || errBody.Message != "") {
		apiErr.Name, apiErr.Message = errBody.Name, errBody.Message
		logger.Error("request failed",
			zap.Int("status", resp.StatusCode), zap.String("name", apiErr.Name), zap.String("message", apiErr.Message))
	} else {
		logger.Error("request failed", zap.Int("status", resp.StatusCode), zap.ByteString("body", b))
	}
	return nil, apiErr
}

// IsSuccess reports whether code is in the band the appliances use for
// success, [200, 302).
func IsSuccess(code int) bool {
	return code >= http.StatusOK && code < http.StatusFound
}
