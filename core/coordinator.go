package core

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
)

// Coordinator drives one OAuth linking attempt at a time through
// start, pending and a terminal outcome. Build one per consumer; instances
// share nothing.
//
// Every Start and Reset opens a new flow generation. Timer callbacks and
// network responses carry the generation they were issued under and are
// dropped once it is stale.
type Coordinator struct {
	config          Config
	client          AccountClient
	logger          Logger
	loggerProvider  LoggerProvider
	metricsRecorder MetricsRecorder
	errorFactory    ErrorFactory
	errorMapper     ErrorMapper
	configProvider  ConfigProvider
	optionsResolver OptionsResolver
	clock           Clock
	activitySink    FlowActivitySink
	newFlowID       func() string

	mu         sync.Mutex
	state      FlowState
	generation uint64
	version    uint64
	flowID     string
	flowCtx    context.Context
	flowCancel context.CancelFunc
	timerSeq   uint64
	pollTimer  *flowTimer
	countdown  *flowTimer

	subMu       sync.Mutex
	subSeq      uint64
	subscribers map[uint64]func(FlowState)
	delivered   uint64
}

type CoordinatorDependencies struct {
	Logger          Logger
	LoggerProvider  LoggerProvider
	MetricsRecorder MetricsRecorder
	ErrorFactory    ErrorFactory
	ErrorMapper     ErrorMapper
	ConfigProvider  ConfigProvider
	OptionsResolver OptionsResolver
	Clock           Clock
	ActivitySink    FlowActivitySink
}

type timerToken struct {
	generation uint64
	seq        uint64
}

type flowTimer struct {
	token    timerToken
	interval int
	timer    Timer
}

func NewCoordinator(client AccountClient, opts ...Option) (*Coordinator, error) {
	if client == nil {
		return nil, newOAuthLinkError("core: account client is required", goerrors.CategoryBadInput, ErrorBadInput)
	}
	builder := defaultCoordinatorBuilder()
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve(defaultServiceName, builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger(defaultServiceName); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.errorFactory == nil {
		builder.errorFactory = goerrors.New
	}
	if builder.errorMapper == nil {
		builder.errorMapper = defaultErrorMapper
	}
	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}
	if builder.clock == nil {
		builder.clock = SystemClock{}
	}
	if builder.flowIDGenerator == nil {
		builder.flowIDGenerator = defaultCoordinatorBuilder().flowIDGenerator
	}

	finalConfig, err := ResolveConfig(context.Background(), builder.configProvider, builder.optionsResolver, builder.runtimeConfig)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	if builder.deviceAutoComplete != nil {
		finalConfig.DeviceAutoComplete = BoolPtr(*builder.deviceAutoComplete)
	}

	return &Coordinator{
		config:          finalConfig,
		client:          client,
		logger:          logger,
		loggerProvider:  provider,
		metricsRecorder: builder.metricsRecorder,
		errorFactory:    builder.errorFactory,
		errorMapper:     builder.errorMapper,
		configProvider:  builder.configProvider,
		optionsResolver: builder.optionsResolver,
		clock:           builder.clock,
		activitySink:    builder.activitySink,
		newFlowID:       builder.flowIDGenerator,
		state:           InitialFlowState(),
		subscribers:     map[uint64]func(FlowState){},
	}, nil
}

func mapBuildError(mapper ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		return err
	}
	mapped := mapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func (c *Coordinator) Config() Config {
	if c == nil {
		return Config{}
	}
	return c.config.clone()
}

func (c *Coordinator) Dependencies() CoordinatorDependencies {
	if c == nil {
		return CoordinatorDependencies{}
	}
	return CoordinatorDependencies{
		Logger:          c.logger,
		LoggerProvider:  c.loggerProvider,
		MetricsRecorder: c.metricsRecorder,
		ErrorFactory:    c.errorFactory,
		ErrorMapper:     c.errorMapper,
		ConfigProvider:  c.configProvider,
		OptionsResolver: c.optionsResolver,
		Clock:           c.clock,
		ActivitySink:    c.activitySink,
	}
}

// State returns a copy of the current flow state.
func (c *Coordinator) State() FlowState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Clone()
}

// FlowID identifies the current flow for activity records. Empty while idle.
func (c *Coordinator) FlowID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.flowID
}

// Start begins a new flow, superseding any flow in progress. Failures are
// recorded in state and returned unchanged.
func (c *Coordinator) Start(ctx context.Context, opts StartOptions) (FlowState, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	startedAt := c.clock.Now()
	if opts.ForceMethod != FlowMethodNone && !opts.ForceMethod.Valid() {
		err := c.errorFactory(
			fmt.Sprintf("core: unsupported oauth method %q", opts.ForceMethod),
			goerrors.CategoryBadInput,
		).WithTextCode(ErrorBadInput)
		c.observeOperation(ctx, startedAt, "start", err, map[string]any{"force_method": string(opts.ForceMethod)})
		return c.State(), err
	}

	c.mu.Lock()
	generation := c.openGenerationLocked()
	c.flowID = c.newFlowID()
	flowID := c.flowID
	c.state.Status = FlowStatusStarting
	c.state.ErrorMessage = nil
	snapshot, version := c.commitLocked()
	c.mu.Unlock()
	c.notify(snapshot, version)
	c.recordActivity(ctx, flowID, FlowActionStarted, snapshot, "", map[string]any{
		"force_method": string(opts.ForceMethod),
	})

	fields := map[string]any{
		"flow_id":      flowID,
		"force_method": string(opts.ForceMethod),
	}

	callCtx, cancel := c.operationContext(ctx)
	descriptor, err := c.client.StartOAuth(callCtx, opts)
	cancel()

	if err != nil {
		c.mu.Lock()
		if c.generation != generation {
			current := c.state.Clone()
			c.mu.Unlock()
			fields["superseded"] = true
			c.observeOperation(ctx, startedAt, "start", err, fields)
			return current, err
		}
		c.state.Status = FlowStatusError
		c.state.ErrorMessage = StringPtr(ErrorMessage(err, c.config.FallbackErrorMessage))
		snapshot, version = c.commitLocked()
		c.mu.Unlock()
		c.notify(snapshot, version)
		c.recordActivity(ctx, flowID, FlowActionFailed, snapshot, *snapshot.ErrorMessage, nil)
		fields["flow_status"] = string(snapshot.Status)
		c.observeOperation(ctx, startedAt, "start", err, fields)
		return snapshot, err
	}

	method := descriptor.Method
	if method == FlowMethodNone {
		method = opts.ForceMethod
	}

	c.mu.Lock()
	if c.generation != generation {
		current := c.state.Clone()
		c.mu.Unlock()
		fields["superseded"] = true
		c.observeOperation(ctx, startedAt, "start", ErrFlowSuperseded, fields)
		return current, ErrFlowSuperseded
	}
	c.state = FlowState{
		Status:           FlowStatusPending,
		Method:           method,
		AuthorizationURL: cloneString(descriptor.AuthorizationURL),
		CallbackURL:      cloneString(descriptor.CallbackURL),
		VerificationURL:  cloneString(descriptor.VerificationURL),
		UserCode:         cloneString(descriptor.UserCode),
		DeviceAuthID:     cloneString(descriptor.DeviceAuthID),
		IntervalSeconds:  cloneInt(descriptor.IntervalSeconds),
		ExpiresInSeconds: cloneInt(descriptor.ExpiresInSeconds),
	}
	snapshot, version = c.commitLocked()
	c.mu.Unlock()
	c.notify(snapshot, version)
	c.recordActivity(ctx, flowID, FlowActionPending, snapshot, "", nil)

	if c.config.DeviceAutoCompleteEnabled() &&
		method == FlowMethodDevice &&
		hasValue(descriptor.DeviceAuthID) &&
		hasValue(descriptor.UserCode) {
		c.precompleteDevice(ctx, flowID, snapshot, CompleteParams{
			DeviceAuthID: cloneString(descriptor.DeviceAuthID),
			UserCode:     cloneString(descriptor.UserCode),
		})
	}

	fields["flow_method"] = string(method)
	fields["flow_status"] = string(snapshot.Status)
	c.observeOperation(ctx, startedAt, "start", nil, fields)
	return snapshot, nil
}

// precompleteDevice issues the completion call right after a device flow
// starts. Its outcome never changes flow state; Poll and Complete decide.
func (c *Coordinator) precompleteDevice(ctx context.Context, flowID string, snapshot FlowState, params CompleteParams) {
	callCtx, cancel := c.operationContext(ctx)
	err := c.client.CompleteOAuth(callCtx, params)
	cancel()
	if err == nil {
		c.logDebug(ctx, "device pre-completion accepted", map[string]any{"flow_id": flowID})
		return
	}
	message := ErrorMessage(err, c.config.FallbackErrorMessage)
	c.logWarn(ctx, "device pre-completion failed", map[string]any{
		"flow_id": flowID,
		"error":   err.Error(),
	})
	c.recordActivity(ctx, flowID, FlowActionDevicePrecompleteFailed, snapshot, message, nil)
}

// Poll checks the flow status once. Failures land in state and are never
// returned.
func (c *Coordinator) Poll(ctx context.Context) FlowState {
	if ctx == nil {
		ctx = context.Background()
	}
	c.mu.Lock()
	generation := c.generation
	c.mu.Unlock()
	return c.poll(ctx, generation, false)
}

func (c *Coordinator) poll(ctx context.Context, generation uint64, fromTimer bool) FlowState {
	startedAt := c.clock.Now()
	callCtx, cancel := c.operationContext(ctx)
	report, err := c.client.GetOAuthStatus(callCtx)
	cancel()

	c.mu.Lock()
	if c.generation != generation || (fromTimer && c.state.Status != FlowStatusPending) {
		current := c.state.Clone()
		c.mu.Unlock()
		c.logDebug(ctx, "discarded stale poll result", map[string]any{"from_timer": fromTimer})
		return current
	}
	previous := c.state.Status
	flowID := c.flowID
	if err != nil {
		c.state.Status = FlowStatusError
		c.state.ErrorMessage = StringPtr(ErrorMessage(err, c.config.FallbackErrorMessage))
	} else {
		switch strings.ToLower(strings.TrimSpace(report.Status)) {
		case string(FlowStatusSuccess):
			c.state.Status = FlowStatusSuccess
		case string(FlowStatusError):
			c.state.Status = FlowStatusError
		default:
			c.state.Status = FlowStatusPending
		}
		c.state.ErrorMessage = cloneString(report.ErrorMessage)
	}
	snapshot, version := c.commitLocked()
	c.mu.Unlock()
	c.notify(snapshot, version)

	if snapshot.Status != previous {
		switch snapshot.Status {
		case FlowStatusSuccess:
			c.recordActivity(ctx, flowID, FlowActionSucceeded, snapshot, "", nil)
		case FlowStatusError:
			c.recordActivity(ctx, flowID, FlowActionFailed, snapshot, derefString(snapshot.ErrorMessage), nil)
		}
	}

	fields := map[string]any{
		"flow_id":     flowID,
		"flow_method": string(snapshot.Method),
		"flow_status": string(snapshot.Status),
		"from_timer":  fromTimer,
	}
	if fromTimer && err == nil && snapshot.Status == previous {
		c.logDebug(ctx, "poll tick", fields)
		return snapshot
	}
	c.observeOperation(ctx, startedAt, "poll", err, fields)
	return snapshot
}

// Complete finalizes the flow with the current device identifiers, if any.
// Failures are recorded in state and returned unchanged.
func (c *Coordinator) Complete(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	startedAt := c.clock.Now()

	c.mu.Lock()
	generation := c.generation
	flowID := c.flowID
	method := c.state.Method
	params := CompleteParams{
		DeviceAuthID: cloneString(c.state.DeviceAuthID),
		UserCode:     cloneString(c.state.UserCode),
	}
	c.mu.Unlock()

	fields := map[string]any{
		"flow_id":     flowID,
		"flow_method": string(method),
	}

	callCtx, cancel := c.operationContext(ctx)
	err := c.client.CompleteOAuth(callCtx, params)
	cancel()

	c.mu.Lock()
	if c.generation != generation {
		c.mu.Unlock()
		fields["superseded"] = true
		c.observeOperation(ctx, startedAt, "complete", err, fields)
		return err
	}
	if err != nil {
		c.state.Status = FlowStatusError
		c.state.ErrorMessage = StringPtr(ErrorMessage(err, c.config.FallbackErrorMessage))
		snapshot, version := c.commitLocked()
		c.mu.Unlock()
		c.notify(snapshot, version)
		c.recordActivity(ctx, flowID, FlowActionFailed, snapshot, *snapshot.ErrorMessage, nil)
		fields["flow_status"] = string(snapshot.Status)
		c.observeOperation(ctx, startedAt, "complete", err, fields)
		return err
	}
	c.state.Status = FlowStatusSuccess
	snapshot, version := c.commitLocked()
	c.mu.Unlock()
	c.notify(snapshot, version)
	c.recordActivity(ctx, flowID, FlowActionSucceeded, snapshot, "", nil)
	fields["flow_status"] = string(snapshot.Status)
	c.observeOperation(ctx, startedAt, "complete", nil, fields)
	return nil
}

// Reset cancels timers and restores the initial idle state. Calls still in
// flight resolve into a stale generation and are dropped, even when Reset
// finds the flow already idle.
func (c *Coordinator) Reset() {
	c.mu.Lock()
	c.openGenerationLocked()
	if c.state.IsInitial() && c.flowID == "" {
		c.mu.Unlock()
		return
	}
	previous := c.state.Clone()
	flowID := c.flowID
	c.flowID = ""
	c.state = InitialFlowState()
	snapshot, version := c.commitLocked()
	c.mu.Unlock()
	c.notify(snapshot, version)
	if flowID != "" {
		c.recordActivity(context.Background(), flowID, FlowActionReset, previous, "", nil)
	}
	c.logDebug(context.Background(), "flow reset", map[string]any{"flow_id": flowID})
}

// Subscribe registers fn for every state change and returns a function that
// removes it. fn may run on timer goroutines; a snapshot older than one
// already delivered is skipped.
func (c *Coordinator) Subscribe(fn func(FlowState)) func() {
	if fn == nil {
		return func() {}
	}
	c.subMu.Lock()
	c.subSeq++
	id := c.subSeq
	c.subscribers[id] = fn
	c.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.subMu.Lock()
			delete(c.subscribers, id)
			c.subMu.Unlock()
		})
	}
}

// Await blocks until the flow is terminal or back to idle, or ctx is done.
func (c *Coordinator) Await(ctx context.Context) (FlowState, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	changed := make(chan struct{}, 1)
	unsubscribe := c.Subscribe(func(FlowState) {
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	defer unsubscribe()

	for {
		current := c.State()
		if current.Status.Terminal() || current.Status == FlowStatusIdle {
			return current, nil
		}
		select {
		case <-ctx.Done():
			return current, ctx.Err()
		case <-changed:
		}
	}
}

func (c *Coordinator) openGenerationLocked() uint64 {
	c.generation++
	c.stopTimersLocked()
	if c.flowCancel != nil {
		c.flowCancel()
	}
	c.flowCtx, c.flowCancel = context.WithCancel(context.Background())
	return c.generation
}

func (c *Coordinator) commitLocked() (FlowState, uint64) {
	c.version++
	c.syncTimersLocked()
	return c.state.Clone(), c.version
}

func (c *Coordinator) operationContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.config.OperationTimeout > 0 {
		return context.WithTimeout(ctx, c.config.OperationTimeout)
	}
	return context.WithCancel(ctx)
}

func (c *Coordinator) notify(snapshot FlowState, version uint64) {
	c.subMu.Lock()
	if version <= c.delivered {
		c.subMu.Unlock()
		return
	}
	c.delivered = version
	ids := make([]uint64, 0, len(c.subscribers))
	for id := range c.subscribers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	handlers := make([]func(FlowState), 0, len(ids))
	for _, id := range ids {
		handlers = append(handlers, c.subscribers[id])
	}
	c.subMu.Unlock()

	for _, handler := range handlers {
		handler(snapshot.Clone())
	}
}

func (c *Coordinator) recordActivity(
	ctx context.Context,
	flowID string,
	action string,
	snapshot FlowState,
	message string,
	metadata map[string]any,
) {
	if c.activitySink == nil || !c.config.Activity.IsEnabled() || strings.TrimSpace(flowID) == "" {
		return
	}
	entry := FlowActivityEntry{
		FlowID:    flowID,
		Action:    action,
		Method:    snapshot.Method,
		Status:    snapshot.Status,
		Message:   message,
		Metadata:  copyAnyMap(metadata),
		CreatedAt: c.clock.Now().UTC(),
	}
	if err := c.activitySink.Record(ctx, entry); err != nil {
		c.logWarn(ctx, "flow activity record failed", map[string]any{
			"flow_id": flowID,
			"action":  action,
			"error":   err.Error(),
		})
	}
}

func hasValue(value *string) bool {
	return value != nil && strings.TrimSpace(*value) != ""
}

func derefString(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
