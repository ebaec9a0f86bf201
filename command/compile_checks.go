package command

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-oauthlink/core"
)

var (
	_ gocmd.Commander[StartFlowMessage]    = (*StartFlowCommand)(nil)
	_ gocmd.Commander[PollFlowMessage]     = (*PollFlowCommand)(nil)
	_ gocmd.Commander[CompleteFlowMessage] = (*CompleteFlowCommand)(nil)
	_ gocmd.Commander[ResetFlowMessage]    = (*ResetFlowCommand)(nil)

	_ FlowController = (*core.Coordinator)(nil)
)
