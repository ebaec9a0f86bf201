package command

import (
	"context"
	"errors"
	"testing"

	gocmd "github.com/goliatone/go-command"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-oauthlink/core"
)

type stubFlowController struct {
	state      core.FlowState
	startFn    func(ctx context.Context, opts core.StartOptions) (core.FlowState, error)
	completeFn func(ctx context.Context) error
	polls      int
	resets     int
}

func (s *stubFlowController) Start(ctx context.Context, opts core.StartOptions) (core.FlowState, error) {
	if s.startFn != nil {
		return s.startFn(ctx, opts)
	}
	return s.state, nil
}

func (s *stubFlowController) Poll(context.Context) core.FlowState {
	s.polls++
	return s.state
}

func (s *stubFlowController) Complete(ctx context.Context) error {
	if s.completeFn != nil {
		return s.completeFn(ctx)
	}
	return nil
}

func (s *stubFlowController) Reset() {
	s.resets++
	s.state = core.InitialFlowState()
}

func (s *stubFlowController) State() core.FlowState {
	return s.state
}

func TestStartFlowCommand_ExecuteDelegatesAndStoresResult(t *testing.T) {
	var received core.StartOptions
	flow := &stubFlowController{
		startFn: func(_ context.Context, opts core.StartOptions) (core.FlowState, error) {
			received = opts
			return core.FlowState{Status: core.FlowStatusPending, Method: core.FlowMethodDevice}, nil
		},
	}

	collector := gocmd.NewResult[core.FlowState]()
	ctx := gocmd.ContextWithResult(context.Background(), collector)
	if err := NewStartFlowCommand(flow).Execute(ctx, StartFlowMessage{ForceMethod: " Device "}); err != nil {
		t.Fatalf("execute start: %v", err)
	}
	if received.ForceMethod != core.FlowMethodDevice {
		t.Fatalf("expected device method, got %q", received.ForceMethod)
	}
	result, ok := collector.Load()
	if !ok || result.Status != core.FlowStatusPending {
		t.Fatalf("expected stored pending state, got %#v", result)
	}
}

func TestStartFlowCommand_RejectsUnknownMethod(t *testing.T) {
	called := false
	flow := &stubFlowController{
		startFn: func(context.Context, core.StartOptions) (core.FlowState, error) {
			called = true
			return core.FlowState{}, nil
		},
	}
	err := NewStartFlowCommand(flow).Execute(context.Background(), StartFlowMessage{ForceMethod: "fax"})
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.Category != goerrors.CategoryValidation || rich.TextCode != core.ErrorBadInput {
		t.Fatalf("unexpected validation envelope %+v", rich)
	}
	if called {
		t.Fatalf("expected coordinator not to be called")
	}
}

func TestStartFlowCommand_ReturnsStartError(t *testing.T) {
	expected := errors.New("upstream down")
	flow := &stubFlowController{
		startFn: func(context.Context, core.StartOptions) (core.FlowState, error) {
			return core.FlowState{Status: core.FlowStatusError}, expected
		},
	}
	if err := NewStartFlowCommand(flow).Execute(context.Background(), StartFlowMessage{}); !errors.Is(err, expected) {
		t.Fatalf("expected start error, got %v", err)
	}
}

func TestFlowCommands_DelegateToCoordinator(t *testing.T) {
	t.Run("poll", func(t *testing.T) {
		flow := &stubFlowController{state: core.FlowState{Status: core.FlowStatusSuccess}}
		collector := gocmd.NewResult[core.FlowState]()
		ctx := gocmd.ContextWithResult(context.Background(), collector)
		if err := NewPollFlowCommand(flow).Execute(ctx, PollFlowMessage{}); err != nil {
			t.Fatalf("execute poll: %v", err)
		}
		if flow.polls != 1 {
			t.Fatalf("expected one poll, got %d", flow.polls)
		}
		if result, ok := collector.Load(); !ok || result.Status != core.FlowStatusSuccess {
			t.Fatalf("expected stored success state, got %#v", result)
		}
	})

	t.Run("complete error", func(t *testing.T) {
		expected := errors.New("link expired")
		flow := &stubFlowController{completeFn: func(context.Context) error { return expected }}
		if err := NewCompleteFlowCommand(flow).Execute(context.Background(), CompleteFlowMessage{}); err != expected {
			t.Fatalf("expected complete error unchanged, got %v", err)
		}
	})

	t.Run("complete success", func(t *testing.T) {
		flow := &stubFlowController{state: core.FlowState{Status: core.FlowStatusSuccess}}
		collector := gocmd.NewResult[core.FlowState]()
		ctx := gocmd.ContextWithResult(context.Background(), collector)
		if err := NewCompleteFlowCommand(flow).Execute(ctx, CompleteFlowMessage{}); err != nil {
			t.Fatalf("execute complete: %v", err)
		}
		if result, ok := collector.Load(); !ok || result.Status != core.FlowStatusSuccess {
			t.Fatalf("expected stored state, got %#v", result)
		}
	})

	t.Run("reset", func(t *testing.T) {
		flow := &stubFlowController{state: core.FlowState{Status: core.FlowStatusPending}}
		if err := NewResetFlowCommand(flow).Execute(context.Background(), ResetFlowMessage{}); err != nil {
			t.Fatalf("execute reset: %v", err)
		}
		if flow.resets != 1 || !flow.State().IsInitial() {
			t.Fatalf("expected reset to initial state")
		}
	})
}

func TestFlowCommands_NilCoordinatorReturnsRichError(t *testing.T) {
	var start *StartFlowCommand
	err := start.Execute(context.Background(), StartFlowMessage{})
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) || rich.Category != goerrors.CategoryInternal {
		t.Fatalf("expected internal dependency error, got %v", err)
	}
	if err := NewResetFlowCommand(nil).Execute(context.Background(), ResetFlowMessage{}); err == nil {
		t.Fatalf("expected reset dependency error")
	}
}

func TestStartFlowMessage_Validate(t *testing.T) {
	for _, value := range []string{"", "browser", "DEVICE"} {
		if err := (StartFlowMessage{ForceMethod: value}).Validate(); err != nil {
			t.Fatalf("%q: unexpected validation error %v", value, err)
		}
	}
	if err := (StartFlowMessage{ForceMethod: "sms"}).Validate(); err == nil {
		t.Fatalf("expected validation error for sms")
	}
	if (StartFlowMessage{}).Type() != TypeStartFlow {
		t.Fatalf("unexpected message type")
	}
}
