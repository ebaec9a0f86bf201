package transport

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-oauthlink/core"
)

func TestRESTAdapter_DoSendsMethodHeadersAndBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST method, got %s", r.Method)
		}
		if r.URL.Path != "/v1/api/oauth/start" {
			t.Errorf("expected path joined onto base url, got %q", r.URL.Path)
		}
		if got := r.Header.Get("Content-Type"); got != "application/json" {
			t.Errorf("expected json content type, got %q", got)
		}
		if got := r.Header.Get("Accept"); got != "application/json" {
			t.Errorf("expected json accept header, got %q", got)
		}
		if got := r.Header.Get("X-Client"); got != "cli" {
			t.Errorf("expected default header, got %q", got)
		}
		body, _ := io.ReadAll(r.Body)
		if string(body) != `{"forceMethod":"device"}` {
			t.Errorf("unexpected request body %q", string(body))
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	adapter := NewRESTAdapter(server.Client(),
		WithBaseURL(server.URL+"/v1"),
		WithDefaultHeader("X-Client", "cli"),
	)
	res, err := adapter.Do(context.Background(), core.TransportRequest{
		Method: http.MethodPost,
		URL:    "/api/oauth/start",
		Body:   []byte(`{"forceMethod":"device"}`),
	})
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", res.StatusCode)
	}
	if string(res.Body) != `{"ok":true}` {
		t.Fatalf("unexpected body %q", string(res.Body))
	}
	if res.Headers["Content-Type"] != "application/json" {
		t.Fatalf("expected flattened response headers, got %+v", res.Headers)
	}
	if res.Metadata["kind"] != KindREST || res.Metadata["path"] != "/v1/api/oauth/start" {
		t.Fatalf("unexpected metadata %+v", res.Metadata)
	}
}

func TestRESTAdapter_GetAppendsQuery(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("flow"); got != "abc" {
			t.Errorf("expected query value, got %q", got)
		}
		if r.Header.Get("Content-Type") != "" {
			t.Errorf("expected no content type without a body")
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	adapter := NewRESTAdapter(server.Client(), WithBaseURL(server.URL))
	if _, err := adapter.Do(context.Background(), core.TransportRequest{
		URL:   "api/oauth/status",
		Query: map[string]string{"flow": "abc", " ": "skip"},
	}); err != nil {
		t.Fatalf("do request: %v", err)
	}
}

func TestRESTAdapter_ResponseLimitReturnsRichError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("12345"))
	}))
	defer server.Close()

	adapter := NewRESTAdapter(server.Client(), WithResponseBodyLimit(4))

	_, err := adapter.Do(context.Background(), core.TransportRequest{Method: http.MethodGet, URL: server.URL})
	if err == nil {
		t.Fatalf("expected response body limit error")
	}

	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.Category != goerrors.CategoryExternal {
		t.Fatalf("expected external category, got %q", rich.Category)
	}
	if rich.TextCode != core.ErrorUpstream {
		t.Fatalf("expected %q text code, got %q", core.ErrorUpstream, rich.TextCode)
	}
	if rich.Code != http.StatusBadGateway {
		t.Fatalf("expected %d code, got %d", http.StatusBadGateway, rich.Code)
	}
}

func TestRESTAdapter_RequestTimeoutWrapsExternalError(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	adapter := NewRESTAdapter(server.Client())
	_, err := adapter.Do(context.Background(), core.TransportRequest{
		URL:     server.URL,
		Timeout: 20 * time.Millisecond,
	})
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) || rich.TextCode != core.ErrorUpstream {
		t.Fatalf("expected upstream error on timeout, got %v", err)
	}
}

func TestRESTAdapter_ResolveURL(t *testing.T) {
	adapter := NewRESTAdapter(nil, WithBaseURL("https://accounts.example/base/"))
	resolved, err := adapter.ResolveURL("/api/oauth/complete")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.String() != "https://accounts.example/base/api/oauth/complete" {
		t.Fatalf("unexpected resolved url %q", resolved.String())
	}

	absolute, err := adapter.ResolveURL("https://other.example/x")
	if err != nil || absolute.Host != "other.example" {
		t.Fatalf("expected absolute url to pass through, got %v %v", absolute, err)
	}

	if _, err := NewRESTAdapter(nil).ResolveURL(""); err == nil {
		t.Fatalf("expected empty url without base to fail")
	}
	if _, err := NewRESTAdapter(nil, WithBaseURL("not-a-url")).ResolveURL("/x"); err == nil {
		t.Fatalf("expected invalid base url to fail")
	}
}

func TestRESTAdapter_NilReturnsRichError(t *testing.T) {
	var adapter *RESTAdapter
	_, err := adapter.Do(context.Background(), core.TransportRequest{})
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.TextCode != core.ErrorInternal || rich.Code != http.StatusInternalServerError {
		t.Fatalf("unexpected envelope %+v", rich)
	}
}
