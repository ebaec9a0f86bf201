package oauthlink

import (
	"github.com/goliatone/go-oauthlink/client"
	"github.com/goliatone/go-oauthlink/core"
)

type Config = core.Config
type ClientConfig = core.ClientConfig
type Option = core.Option

type Coordinator = core.Coordinator
type CoordinatorDependencies = core.CoordinatorDependencies
type AccountClient = core.AccountClient

type FlowState = core.FlowState
type FlowStatus = core.FlowStatus
type FlowMethod = core.FlowMethod
type StartOptions = core.StartOptions

var (
	WithConfig             = core.WithConfig
	WithLogger             = core.WithLogger
	WithLoggerProvider     = core.WithLoggerProvider
	WithMetricsRecorder    = core.WithMetricsRecorder
	WithErrorFactory       = core.WithErrorFactory
	WithErrorMapper        = core.WithErrorMapper
	WithConfigProvider     = core.WithConfigProvider
	WithOptionsResolver    = core.WithOptionsResolver
	WithClock              = core.WithClock
	WithActivitySink       = core.WithActivitySink
	WithFlowIDGenerator    = core.WithFlowIDGenerator
	WithDeviceAutoComplete = core.WithDeviceAutoComplete
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

func NewCoordinator(accountClient AccountClient, opts ...Option) (*Coordinator, error) {
	return core.NewCoordinator(accountClient, opts...)
}

// NewHTTPCoordinator builds the account API client from cfg.Client and a
// coordinator driving it. cfg is applied as the runtime config layer.
func NewHTTPCoordinator(cfg Config, clientOpts []client.Option, opts ...Option) (*Coordinator, error) {
	accountClient, err := client.New(cfg.Client, clientOpts...)
	if err != nil {
		return nil, err
	}
	return core.NewCoordinator(accountClient, append([]Option{core.WithConfig(cfg)}, opts...)...)
}
