package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-oauthlink/core"
)

// FlowController is the coordinator surface the commands drive.
type FlowController interface {
	Start(ctx context.Context, opts core.StartOptions) (core.FlowState, error)
	Poll(ctx context.Context) core.FlowState
	Complete(ctx context.Context) error
	Reset()
	State() core.FlowState
}

type StartFlowCommand struct {
	flow FlowController
}

func NewStartFlowCommand(flow FlowController) *StartFlowCommand {
	return &StartFlowCommand{flow: flow}
}

func (c *StartFlowCommand) Execute(ctx context.Context, msg StartFlowMessage) error {
	if c == nil || c.flow == nil {
		return commandDependencyError("command: flow coordinator is required")
	}
	method, err := msg.method()
	if err != nil {
		return err
	}
	state, err := c.flow.Start(ctx, core.StartOptions{ForceMethod: method})
	if err != nil {
		return err
	}
	storeResult(ctx, state)
	return nil
}

type PollFlowCommand struct {
	flow FlowController
}

func NewPollFlowCommand(flow FlowController) *PollFlowCommand {
	return &PollFlowCommand{flow: flow}
}

func (c *PollFlowCommand) Execute(ctx context.Context, _ PollFlowMessage) error {
	if c == nil || c.flow == nil {
		return commandDependencyError("command: flow coordinator is required")
	}
	storeResult(ctx, c.flow.Poll(ctx))
	return nil
}

type CompleteFlowCommand struct {
	flow FlowController
}

func NewCompleteFlowCommand(flow FlowController) *CompleteFlowCommand {
	return &CompleteFlowCommand{flow: flow}
}

func (c *CompleteFlowCommand) Execute(ctx context.Context, _ CompleteFlowMessage) error {
	if c == nil || c.flow == nil {
		return commandDependencyError("command: flow coordinator is required")
	}
	if err := c.flow.Complete(ctx); err != nil {
		return err
	}
	storeResult(ctx, c.flow.State())
	return nil
}

type ResetFlowCommand struct {
	flow FlowController
}

func NewResetFlowCommand(flow FlowController) *ResetFlowCommand {
	return &ResetFlowCommand{flow: flow}
}

func (c *ResetFlowCommand) Execute(ctx context.Context, _ ResetFlowMessage) error {
	if c == nil || c.flow == nil {
		return commandDependencyError("command: flow coordinator is required")
	}
	c.flow.Reset()
	storeResult(ctx, c.flow.State())
	return nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
