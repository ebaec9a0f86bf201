package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

// AccountClient is the account API surface the coordinator drives. Transport
// and payload validation belong to the implementation.
type AccountClient interface {
	StartOAuth(ctx context.Context, opts StartOptions) (FlowDescriptor, error)
	GetOAuthStatus(ctx context.Context) (FlowStatusReport, error)
	CompleteOAuth(ctx context.Context, params CompleteParams) error
}

type TransportRequest struct {
	Method               string
	URL                  string
	Headers              map[string]string
	Query                map[string]string
	Body                 []byte
	Metadata             map[string]any
	Timeout              time.Duration
	MaxResponseBodyBytes int64
}

type TransportResponse struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
	Metadata   map[string]any
}

type TransportAdapter interface {
	Kind() string
	Do(ctx context.Context, req TransportRequest) (TransportResponse, error)
}

type FlowActivitySink interface {
	Record(ctx context.Context, entry FlowActivityEntry) error
}

type FlowActivityReader interface {
	List(ctx context.Context, filter FlowActivityFilter) (FlowActivityPage, error)
}

type FlowActivityStore interface {
	FlowActivitySink
	FlowActivityReader
}

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger
