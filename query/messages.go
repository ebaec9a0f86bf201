package query

import (
	"github.com/goliatone/go-oauthlink/core"
)

const (
	TypeGetFlowState     = "oauthlink.query.flow.state"
	TypeListFlowActivity = "oauthlink.query.flow.activity.list"

	maxActivityPerPage = 200
)

type GetFlowStateMessage struct{}

func (GetFlowStateMessage) Type() string { return TypeGetFlowState }

func (GetFlowStateMessage) Validate() error { return nil }

type ListFlowActivityMessage struct {
	Filter core.FlowActivityFilter
}

func (ListFlowActivityMessage) Type() string { return TypeListFlowActivity }

func (m ListFlowActivityMessage) Validate() error {
	if m.Filter.Page < 0 {
		return queryValidationError("page", "must be >= 0")
	}
	if m.Filter.PerPage < 0 || m.Filter.PerPage > maxActivityPerPage {
		return queryValidationError("per_page", "must be between 0 and 200")
	}
	if m.Filter.From != nil && m.Filter.To != nil && m.Filter.To.Before(*m.Filter.From) {
		return queryValidationError("to", "must not be before from")
	}
	return nil
}
