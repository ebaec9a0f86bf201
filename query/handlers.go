package query

import (
	"context"

	"github.com/goliatone/go-oauthlink/core"
)

type FlowStateReader interface {
	State() core.FlowState
}

type GetFlowStateQuery struct {
	reader FlowStateReader
}

func NewGetFlowStateQuery(reader FlowStateReader) *GetFlowStateQuery {
	return &GetFlowStateQuery{reader: reader}
}

func (q *GetFlowStateQuery) Query(_ context.Context, _ GetFlowStateMessage) (core.FlowState, error) {
	if q == nil || q.reader == nil {
		return core.FlowState{}, queryDependencyError("query: flow state reader is required")
	}
	return q.reader.State(), nil
}

type ListFlowActivityQuery struct {
	reader core.FlowActivityReader
}

func NewListFlowActivityQuery(reader core.FlowActivityReader) *ListFlowActivityQuery {
	return &ListFlowActivityQuery{reader: reader}
}

func (q *ListFlowActivityQuery) Query(ctx context.Context, msg ListFlowActivityMessage) (core.FlowActivityPage, error) {
	if q == nil || q.reader == nil {
		return core.FlowActivityPage{}, queryDependencyError("query: flow activity reader is required")
	}
	if err := msg.Validate(); err != nil {
		return core.FlowActivityPage{}, err
	}
	return q.reader.List(ctx, msg.Filter)
}
