package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/goliatone/go-oauthlink/core"
	"github.com/goliatone/go-oauthlink/ratelimit"
	"github.com/goliatone/go-oauthlink/transport"
)

const (
	PathStart    = "/api/oauth/start"
	PathStatus   = "/api/oauth/status"
	PathComplete = "/api/oauth/complete"
)

type Paths struct {
	Start    string
	Status   string
	Complete string
}

func DefaultPaths() Paths {
	return Paths{Start: PathStart, Status: PathStatus, Complete: PathComplete}
}

// Client is the HTTP implementation of core.AccountClient.
type Client struct {
	transport            core.TransportAdapter
	paths                Paths
	timeout              time.Duration
	maxResponseBodyBytes int64
	headers              map[string]string
	rateLimit            RateLimitPolicy
}

// RateLimitPolicy gates calls per operation ("start", "status", "complete").
type RateLimitPolicy interface {
	BeforeCall(ctx context.Context, operation string) error
	AfterCall(ctx context.Context, operation string, res core.TransportResponse) error
}

type Option func(*Client)

// WithTransport replaces the REST adapter built from the client config.
func WithTransport(adapter core.TransportAdapter) Option {
	return func(c *Client) {
		c.transport = adapter
	}
}

func WithPaths(paths Paths) Option {
	return func(c *Client) {
		if strings.TrimSpace(paths.Start) != "" {
			c.paths.Start = paths.Start
		}
		if strings.TrimSpace(paths.Status) != "" {
			c.paths.Status = paths.Status
		}
		if strings.TrimSpace(paths.Complete) != "" {
			c.paths.Complete = paths.Complete
		}
	}
}

// WithRateLimitPolicy replaces the default adaptive policy. nil disables
// throttling.
func WithRateLimitPolicy(policy RateLimitPolicy) Option {
	return func(c *Client) {
		c.rateLimit = policy
	}
}

// WithHeader adds a header to every request, e.g. a session cookie or bearer
// token for the account API.
func WithHeader(key string, value string) Option {
	return func(c *Client) {
		if strings.TrimSpace(key) == "" {
			return
		}
		c.headers[strings.TrimSpace(key)] = value
	}
}

func New(cfg core.ClientConfig, opts ...Option) (*Client, error) {
	c := &Client{
		paths:                DefaultPaths(),
		timeout:              cfg.Timeout,
		maxResponseBodyBytes: cfg.MaxResponseBodyBytes,
		headers:              map[string]string{},
		rateLimit:            ratelimit.NewAdaptivePolicy(nil),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	if c.transport != nil {
		return c, nil
	}

	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, clientValidationError("base_url", "base url is required")
	}
	httpClient := &http.Client{}
	if cfg.Timeout > 0 {
		httpClient.Timeout = cfg.Timeout
	}
	c.transport = transport.NewRESTAdapter(httpClient,
		transport.WithBaseURL(cfg.BaseURL),
		transport.WithResponseBodyLimit(cfg.MaxResponseBodyBytes),
	)
	return c, nil
}

type startRequest struct {
	ForceMethod string `json:"forceMethod,omitempty"`
}

type startResponse struct {
	Method           string  `json:"method"`
	AuthorizationURL *string `json:"authorizationUrl"`
	CallbackURL      *string `json:"callbackUrl"`
	VerificationURL  *string `json:"verificationUrl"`
	UserCode         *string `json:"userCode"`
	DeviceAuthID     *string `json:"deviceAuthId"`
	IntervalSeconds  *int    `json:"intervalSeconds"`
	ExpiresInSeconds *int    `json:"expiresInSeconds"`
}

type statusResponse struct {
	Status       string  `json:"status"`
	ErrorMessage *string `json:"errorMessage"`
}

type completeRequest struct {
	DeviceAuthID *string `json:"deviceAuthId,omitempty"`
	UserCode     *string `json:"userCode,omitempty"`
}

func (c *Client) StartOAuth(ctx context.Context, opts core.StartOptions) (core.FlowDescriptor, error) {
	if opts.ForceMethod != core.FlowMethodNone && !opts.ForceMethod.Valid() {
		return core.FlowDescriptor{}, clientValidationError("forceMethod", "must be browser or device")
	}
	var payload startResponse
	if err := c.call(ctx, "start", http.MethodPost, c.paths.Start, startRequest{ForceMethod: string(opts.ForceMethod)}, &payload); err != nil {
		return core.FlowDescriptor{}, err
	}

	method := core.FlowMethodNone
	if raw := strings.TrimSpace(payload.Method); raw != "" {
		parsed, ok := core.ParseFlowMethod(raw)
		if !ok {
			return core.FlowDescriptor{}, clientInvalidResponseError("start", "unsupported method "+raw)
		}
		method = parsed
	}
	if payload.IntervalSeconds != nil && *payload.IntervalSeconds < 0 {
		return core.FlowDescriptor{}, clientInvalidResponseError("start", "intervalSeconds must be >= 0")
	}
	if payload.ExpiresInSeconds != nil && *payload.ExpiresInSeconds < 0 {
		return core.FlowDescriptor{}, clientInvalidResponseError("start", "expiresInSeconds must be >= 0")
	}

	return core.FlowDescriptor{
		Method:           method,
		AuthorizationURL: payload.AuthorizationURL,
		CallbackURL:      payload.CallbackURL,
		VerificationURL:  payload.VerificationURL,
		UserCode:         payload.UserCode,
		DeviceAuthID:     payload.DeviceAuthID,
		IntervalSeconds:  payload.IntervalSeconds,
		ExpiresInSeconds: payload.ExpiresInSeconds,
	}, nil
}

func (c *Client) GetOAuthStatus(ctx context.Context) (core.FlowStatusReport, error) {
	var payload statusResponse
	if err := c.call(ctx, "status", http.MethodGet, c.paths.Status, nil, &payload); err != nil {
		return core.FlowStatusReport{}, err
	}
	status := strings.ToLower(strings.TrimSpace(payload.Status))
	if status == "" {
		return core.FlowStatusReport{}, clientInvalidResponseError("status", "status is required")
	}
	return core.FlowStatusReport{Status: status, ErrorMessage: payload.ErrorMessage}, nil
}

func (c *Client) CompleteOAuth(ctx context.Context, params core.CompleteParams) error {
	return c.call(ctx, "complete", http.MethodPost, c.paths.Complete, completeRequest{
		DeviceAuthID: params.DeviceAuthID,
		UserCode:     params.UserCode,
	}, nil)
}

func (c *Client) call(ctx context.Context, operation string, method string, path string, body any, out any) error {
	if c == nil || c.transport == nil {
		return clientValidationError("transport", "transport is required")
	}
	req := core.TransportRequest{
		Method:               method,
		URL:                  path,
		Headers:              copyHeaders(c.headers),
		Timeout:              c.timeout,
		MaxResponseBodyBytes: c.maxResponseBodyBytes,
		Metadata:             map[string]any{"operation": operation},
	}
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return clientValidationError("body", err.Error())
		}
		req.Body = encoded
	}

	if c.rateLimit != nil {
		if err := c.rateLimit.BeforeCall(ctx, operation); err != nil {
			var throttled ratelimit.ThrottledError
			if errors.As(err, &throttled) {
				return throttled.ToError()
			}
			return err
		}
	}
	res, err := c.transport.Do(ctx, req)
	if err != nil {
		return err
	}
	if c.rateLimit != nil {
		// Throttle bookkeeping never fails the call itself.
		_ = c.rateLimit.AfterCall(ctx, operation, res)
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return clientResponseError(res.StatusCode, responseErrorMessage(res.Body), map[string]any{
			"operation":   operation,
			"status_code": res.StatusCode,
			"path":        path,
		})
	}
	if out == nil || len(strings.TrimSpace(string(res.Body))) == 0 {
		if out != nil {
			return clientInvalidResponseError(operation, "empty body")
		}
		return nil
	}
	if err := json.Unmarshal(res.Body, out); err != nil {
		return clientDecodeError(err, operation)
	}
	return nil
}

type errorEnvelope struct {
	Error   json.RawMessage `json:"error"`
	Detail  string          `json:"detail"`
	Message string          `json:"message"`
}

// responseErrorMessage reads {"error":{"message"}}, {"error":"..."},
// {"detail"} or {"message"}, in that order.
func responseErrorMessage(body []byte) string {
	var envelope errorEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return ""
	}
	if len(envelope.Error) > 0 {
		var nested struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(envelope.Error, &nested); err == nil && strings.TrimSpace(nested.Message) != "" {
			return nested.Message
		}
		var flat string
		if err := json.Unmarshal(envelope.Error, &flat); err == nil && strings.TrimSpace(flat) != "" {
			return flat
		}
	}
	if strings.TrimSpace(envelope.Detail) != "" {
		return envelope.Detail
	}
	return envelope.Message
}

func copyHeaders(headers map[string]string) map[string]string {
	copied := make(map[string]string, len(headers))
	for key, value := range headers {
		copied[key] = value
	}
	return copied
}

var _ core.AccountClient = (*Client)(nil)
