package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-oauthlink/core"
)

const KindREST = "rest"

const defaultRESTClientTimeout = 30 * time.Second
const defaultRESTResponseBodyLimit int64 = 1 << 20 // 1 MiB

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// RESTAdapter sends requests against the account API. Relative request URLs
// resolve against BaseURL; absolute ones are used as given.
type RESTAdapter struct {
	Client               HTTPDoer
	BaseURL              string
	DefaultHeaders       map[string]string
	MaxResponseBodyBytes int64
	Now                  func() time.Time
}

type RESTOption func(*RESTAdapter)

func WithBaseURL(baseURL string) RESTOption {
	return func(a *RESTAdapter) {
		a.BaseURL = strings.TrimSpace(baseURL)
	}
}

func WithDefaultHeader(key string, value string) RESTOption {
	return func(a *RESTAdapter) {
		if strings.TrimSpace(key) == "" {
			return
		}
		a.DefaultHeaders[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
}

func WithResponseBodyLimit(limit int64) RESTOption {
	return func(a *RESTAdapter) {
		if limit > 0 {
			a.MaxResponseBodyBytes = limit
		}
	}
}

func NewRESTAdapter(client HTTPDoer, opts ...RESTOption) *RESTAdapter {
	if client == nil {
		client = &http.Client{Timeout: defaultRESTClientTimeout}
	}
	adapter := &RESTAdapter{
		Client: client,
		DefaultHeaders: map[string]string{
			"Accept": "application/json",
		},
		MaxResponseBodyBytes: defaultRESTResponseBodyLimit,
		Now:                  func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(adapter)
		}
	}
	return adapter
}

func (*RESTAdapter) Kind() string {
	return KindREST
}

func (a *RESTAdapter) Do(ctx context.Context, req core.TransportRequest) (core.TransportResponse, error) {
	if a == nil || a.Client == nil {
		return core.TransportResponse{}, transportError(
			"transport: rest adapter requires an http client",
			goerrors.CategoryInternal,
			http.StatusInternalServerError,
			map[string]any{"adapter": KindREST},
		)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	method := strings.TrimSpace(strings.ToUpper(req.Method))
	if method == "" {
		method = http.MethodGet
	}
	target, err := a.ResolveURL(req.URL)
	if err != nil {
		return core.TransportResponse{}, err
	}

	query := target.Query()
	for key, value := range req.Query {
		if strings.TrimSpace(key) == "" {
			continue
		}
		query.Set(strings.TrimSpace(key), strings.TrimSpace(value))
	}
	target.RawQuery = query.Encode()

	requestCtx := ctx
	cancel := func() {}
	if req.Timeout > 0 {
		requestCtx, cancel = context.WithTimeout(ctx, req.Timeout)
	}
	defer cancel()

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(requestCtx, method, target.String(), body)
	if err != nil {
		return core.TransportResponse{}, transportWrapError(
			err,
			goerrors.CategoryBadInput,
			"transport: create http request",
			http.StatusBadRequest,
			map[string]any{"adapter": KindREST, "method": method, "url": target.String()},
		)
	}
	for key, value := range a.DefaultHeaders {
		if strings.TrimSpace(key) == "" {
			continue
		}
		httpReq.Header.Set(strings.TrimSpace(key), strings.TrimSpace(value))
	}
	if len(req.Body) > 0 && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	for key, value := range req.Headers {
		if strings.TrimSpace(key) == "" {
			continue
		}
		httpReq.Header.Set(strings.TrimSpace(key), strings.TrimSpace(value))
	}

	startedAt := a.now()
	httpRes, err := a.Client.Do(httpReq)
	if err != nil {
		return core.TransportResponse{}, transportWrapError(
			err,
			goerrors.CategoryExternal,
			"transport: execute http request",
			http.StatusBadGateway,
			map[string]any{"adapter": KindREST, "method": method, "url": target.String()},
		)
	}
	defer httpRes.Body.Close()

	maxBodyBytes := resolveResponseBodyLimit(req.MaxResponseBodyBytes, a.MaxResponseBodyBytes)
	payload, err := io.ReadAll(io.LimitReader(httpRes.Body, maxBodyBytes+1))
	if err != nil {
		return core.TransportResponse{}, transportWrapError(
			err,
			goerrors.CategoryExternal,
			"transport: read response body",
			http.StatusBadGateway,
			map[string]any{"adapter": KindREST, "status_code": httpRes.StatusCode},
		)
	}
	if int64(len(payload)) > maxBodyBytes {
		return core.TransportResponse{}, transportError(
			fmt.Sprintf("transport: response body exceeds limit of %d bytes", maxBodyBytes),
			goerrors.CategoryExternal,
			http.StatusBadGateway,
			map[string]any{
				"adapter":          KindREST,
				"status_code":      httpRes.StatusCode,
				"response_limit_b": maxBodyBytes,
			},
		)
	}

	return core.TransportResponse{
		StatusCode: httpRes.StatusCode,
		Headers:    flattenHeaders(httpRes.Header),
		Body:       payload,
		Metadata: map[string]any{
			"duration_ms": a.now().Sub(startedAt).Milliseconds(),
			"kind":        KindREST,
			"method":      method,
			"path":        target.Path,
		},
	}, nil
}

// ResolveURL joins raw onto BaseURL unless raw is already absolute.
func (a *RESTAdapter) ResolveURL(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	parsed, err := url.Parse(raw)
	if err != nil {
		return nil, transportWrapError(
			err,
			goerrors.CategoryBadInput,
			"transport: invalid request url",
			http.StatusBadRequest,
			map[string]any{"adapter": KindREST, "url": raw},
		)
	}
	if parsed.IsAbs() {
		return parsed, nil
	}

	base := ""
	if a != nil {
		base = strings.TrimSpace(a.BaseURL)
	}
	if base == "" {
		if raw == "" {
			return nil, transportError(
				"transport: request url is required",
				goerrors.CategoryBadInput,
				http.StatusBadRequest,
				map[string]any{"adapter": KindREST},
			)
		}
		return parsed, nil
	}
	baseURL, err := url.Parse(strings.TrimRight(base, "/") + "/")
	if err != nil || baseURL.Scheme == "" || baseURL.Host == "" {
		return nil, transportError(
			fmt.Sprintf("transport: invalid base url %q", base),
			goerrors.CategoryBadInput,
			http.StatusBadRequest,
			map[string]any{"adapter": KindREST, "base_url": base},
		)
	}
	parsed.Path = strings.TrimLeft(parsed.Path, "/")
	return baseURL.ResolveReference(parsed), nil
}

func (a *RESTAdapter) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now().UTC()
}

func flattenHeaders(headers http.Header) map[string]string {
	if len(headers) == 0 {
		return map[string]string{}
	}
	flat := make(map[string]string, len(headers))
	for key, values := range headers {
		if len(values) == 0 {
			flat[key] = ""
			continue
		}
		flat[key] = strings.Join(values, ",")
	}
	return flat
}

func resolveResponseBodyLimit(requestLimit int64, adapterLimit int64) int64 {
	if requestLimit > 0 {
		return requestLimit
	}
	if adapterLimit > 0 {
		return adapterLimit
	}
	return defaultRESTResponseBodyLimit
}

var _ core.TransportAdapter = (*RESTAdapter)(nil)
