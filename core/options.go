package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-config/cfgx"
	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	opts "github.com/goliatone/go-options"
	"github.com/google/uuid"
)

type ErrorFactory func(message string, category ...goerrors.Category) *goerrors.Error

type ErrorMapper func(err error) *goerrors.Error

// ConfigProvider loads config on top of defaults. Pointer fields left nil
// are treated as unset by the resolver.
type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

type coordinatorBuilder struct {
	runtimeConfig      Config
	logger             Logger
	loggerProvider     LoggerProvider
	metricsRecorder    MetricsRecorder
	errorFactory       ErrorFactory
	errorMapper        ErrorMapper
	configProvider     ConfigProvider
	optionsResolver    OptionsResolver
	clock              Clock
	activitySink       FlowActivitySink
	flowIDGenerator    func() string
	deviceAutoComplete *bool
}

type Option func(*coordinatorBuilder)

func WithConfig(cfg Config) Option {
	return func(b *coordinatorBuilder) {
		b.runtimeConfig = cfg
	}
}

func WithLogger(logger Logger) Option {
	return func(b *coordinatorBuilder) {
		b.logger = logger
	}
}

func WithLoggerProvider(provider LoggerProvider) Option {
	return func(b *coordinatorBuilder) {
		b.loggerProvider = provider
	}
}

func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(b *coordinatorBuilder) {
		b.metricsRecorder = recorder
	}
}

func WithErrorFactory(factory ErrorFactory) Option {
	return func(b *coordinatorBuilder) {
		b.errorFactory = factory
	}
}

func WithErrorMapper(mapper ErrorMapper) Option {
	return func(b *coordinatorBuilder) {
		b.errorMapper = mapper
	}
}

func WithConfigProvider(provider ConfigProvider) Option {
	return func(b *coordinatorBuilder) {
		b.configProvider = provider
	}
}

func WithOptionsResolver(resolver OptionsResolver) Option {
	return func(b *coordinatorBuilder) {
		b.optionsResolver = resolver
	}
}

func WithClock(clock Clock) Option {
	return func(b *coordinatorBuilder) {
		b.clock = clock
	}
}

func WithActivitySink(sink FlowActivitySink) Option {
	return func(b *coordinatorBuilder) {
		b.activitySink = sink
	}
}

func WithFlowIDGenerator(generator func() string) Option {
	return func(b *coordinatorBuilder) {
		b.flowIDGenerator = generator
	}
}

// WithDeviceAutoComplete overrides device_auto_complete after config
// resolution.
func WithDeviceAutoComplete(enabled bool) Option {
	return func(b *coordinatorBuilder) {
		b.deviceAutoComplete = &enabled
	}
}

func defaultCoordinatorBuilder() coordinatorBuilder {
	loggerProvider, logger := glog.Resolve(defaultServiceName, nil, nil)
	return coordinatorBuilder{
		loggerProvider:  loggerProvider,
		logger:          logger,
		metricsRecorder: NopMetricsRecorder{},
		errorFactory:    goerrors.New,
		errorMapper:     defaultErrorMapper,
		configProvider:  NewCfgxConfigProvider(nil),
		optionsResolver: GoOptionsResolver{},
		clock:           SystemClock{},
		flowIDGenerator: uuid.NewString,
	}
}

func defaultErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}
	return oauthLinkErrorMapper(err)
}

type staticRawConfigLoader struct {
	Values map[string]any
}

func (l staticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	return copyAnyMap(l.Values), nil
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = staticRawConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg, err := cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults.clone()),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			configToLayerMap(defaults, true),
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			configToLayerMap(loaded, false),
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			configToLayerMap(runtime, false),
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults.clone()),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	if err := resolved.Validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

// configToLayerMap drops zero values unless includeZero is set, so partial
// configs only override what they name. Booleans are pointers, so an explicit
// false still overrides a true default.
func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.ServiceName) != "" {
		layer["service_name"] = cfg.ServiceName
	}
	if includeZero || strings.TrimSpace(cfg.FallbackErrorMessage) != "" {
		layer["fallback_error_message"] = cfg.FallbackErrorMessage
	}
	if cfg.DeviceAutoComplete != nil {
		layer["device_auto_complete"] = *cfg.DeviceAutoComplete
	} else if includeZero {
		layer["device_auto_complete"] = true
	}
	if includeZero || cfg.OperationTimeout > 0 {
		layer["operation_timeout"] = cfg.OperationTimeout
	}

	client := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.Client.BaseURL) != "" {
		client["base_url"] = strings.TrimSpace(cfg.Client.BaseURL)
	}
	if includeZero || cfg.Client.Timeout > 0 {
		client["timeout"] = cfg.Client.Timeout
	}
	if includeZero || cfg.Client.MaxResponseBodyBytes > 0 {
		client["max_response_body_bytes"] = cfg.Client.MaxResponseBodyBytes
	}
	if len(client) > 0 {
		layer["client"] = client
	}

	if cfg.Activity.Enabled != nil {
		layer["activity"] = map[string]any{"enabled": *cfg.Activity.Enabled}
	} else if includeZero {
		layer["activity"] = map[string]any{"enabled": true}
	}
	return layer
}

// ResolveConfig runs the same provider and resolver pipeline the coordinator
// uses, for callers that need the resolved config before building one.
func ResolveConfig(ctx context.Context, provider ConfigProvider, resolver OptionsResolver, runtime Config) (Config, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if provider == nil {
		provider = NewCfgxConfigProvider(nil)
	}
	if resolver == nil {
		resolver = GoOptionsResolver{}
	}
	defaults := DefaultConfig()
	loaded, err := provider.Load(ctx, defaults)
	if err != nil {
		return Config{}, err
	}
	return resolver.Resolve(defaults, loaded, runtime)
}
