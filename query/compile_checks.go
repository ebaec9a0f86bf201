package query

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-oauthlink/core"
)

var (
	_ gocmd.Querier[GetFlowStateMessage, core.FlowState]            = (*GetFlowStateQuery)(nil)
	_ gocmd.Querier[ListFlowActivityMessage, core.FlowActivityPage] = (*ListFlowActivityQuery)(nil)

	_ FlowStateReader         = (*core.Coordinator)(nil)
	_ core.FlowActivityReader = (*core.MemoryActivityStore)(nil)
)
