package core

import (
	"context"
	"sync"
	"time"
)

type fakeAccountClient struct {
	mu sync.Mutex

	startFn    func(context.Context, StartOptions) (FlowDescriptor, error)
	statusFn   func(context.Context) (FlowStatusReport, error)
	completeFn func(context.Context, CompleteParams) error

	startCalls    []StartOptions
	statusCalls   int
	completeCalls []CompleteParams
}

func (f *fakeAccountClient) StartOAuth(ctx context.Context, opts StartOptions) (FlowDescriptor, error) {
	f.mu.Lock()
	f.startCalls = append(f.startCalls, opts)
	fn := f.startFn
	f.mu.Unlock()
	if fn == nil {
		return FlowDescriptor{Method: FlowMethodBrowser}, nil
	}
	return fn(ctx, opts)
}

func (f *fakeAccountClient) GetOAuthStatus(ctx context.Context) (FlowStatusReport, error) {
	f.mu.Lock()
	f.statusCalls++
	fn := f.statusFn
	f.mu.Unlock()
	if fn == nil {
		return FlowStatusReport{Status: "pending"}, nil
	}
	return fn(ctx)
}

func (f *fakeAccountClient) CompleteOAuth(ctx context.Context, params CompleteParams) error {
	f.mu.Lock()
	f.completeCalls = append(f.completeCalls, CompleteParams{
		DeviceAuthID: cloneString(params.DeviceAuthID),
		UserCode:     cloneString(params.UserCode),
	})
	fn := f.completeFn
	f.mu.Unlock()
	if fn == nil {
		return nil
	}
	return fn(ctx, params)
}

func (f *fakeAccountClient) statusCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.statusCalls
}

func (f *fakeAccountClient) completions() []CompleteParams {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]CompleteParams(nil), f.completeCalls...)
}

func browserDescriptor(interval int, expires int) FlowDescriptor {
	return FlowDescriptor{
		Method:           FlowMethodBrowser,
		AuthorizationURL: StringPtr("https://x"),
		CallbackURL:      StringPtr("https://y"),
		IntervalSeconds:  IntPtr(interval),
		ExpiresInSeconds: IntPtr(expires),
	}
}

func newTestCoordinator(client AccountClient, clock *ManualClock, opts ...Option) *Coordinator {
	base := []Option{
		WithClock(clock),
		WithLogger(stubLogger{}),
		WithLoggerProvider(stubLoggerProvider{logger: stubLogger{}}),
	}
	coordinator, err := NewCoordinator(client, append(base, opts...)...)
	if err != nil {
		panic(err)
	}
	return coordinator
}

func newTestClock() *ManualClock {
	return NewManualClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
}

type stubLogger struct{}

func (stubLogger) Trace(string, ...any) {}
func (stubLogger) Debug(string, ...any) {}
func (stubLogger) Info(string, ...any)  {}
func (stubLogger) Warn(string, ...any)  {}
func (stubLogger) Error(string, ...any) {}
func (stubLogger) Fatal(string, ...any) {}
func (s stubLogger) WithContext(context.Context) Logger {
	return s
}

type stubLoggerProvider struct {
	logger Logger
}

func (s stubLoggerProvider) GetLogger(string) Logger {
	return s.logger
}

type mapRawLoader struct {
	values map[string]any
}

func (l mapRawLoader) LoadRaw(context.Context) (map[string]any, error) {
	return copyAnyMap(l.values), nil
}

type failingActivitySink struct {
	err error
}

func (s failingActivitySink) Record(context.Context, FlowActivityEntry) error {
	return s.err
}
