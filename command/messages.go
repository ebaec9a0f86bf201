package command

import (
	"strings"

	"github.com/goliatone/go-oauthlink/core"
)

const (
	TypeStartFlow    = "oauthlink.command.flow.start"
	TypePollFlow     = "oauthlink.command.flow.poll"
	TypeCompleteFlow = "oauthlink.command.flow.complete"
	TypeResetFlow    = "oauthlink.command.flow.reset"
)

// StartFlowMessage starts a linking flow. ForceMethod is empty, "browser" or
// "device".
type StartFlowMessage struct {
	ForceMethod string
}

func (StartFlowMessage) Type() string { return TypeStartFlow }

func (m StartFlowMessage) Validate() error {
	_, err := m.method()
	return err
}

func (m StartFlowMessage) method() (core.FlowMethod, error) {
	raw := strings.TrimSpace(m.ForceMethod)
	if raw == "" {
		return core.FlowMethodNone, nil
	}
	method, ok := core.ParseFlowMethod(raw)
	if !ok {
		return core.FlowMethodNone, commandValidationError("force_method", "must be browser or device")
	}
	return method, nil
}

type PollFlowMessage struct{}

func (PollFlowMessage) Type() string { return TypePollFlow }

func (PollFlowMessage) Validate() error { return nil }

type CompleteFlowMessage struct{}

func (CompleteFlowMessage) Type() string { return TypeCompleteFlow }

func (CompleteFlowMessage) Validate() error { return nil }

type ResetFlowMessage struct{}

func (ResetFlowMessage) Type() string { return TypeResetFlow }

func (ResetFlowMessage) Validate() error { return nil }
