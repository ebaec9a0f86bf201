package oauthlink

import (
	"fmt"

	"github.com/goliatone/go-oauthlink/adapters/gocommand"
	oauthcommand "github.com/goliatone/go-oauthlink/command"
	"github.com/goliatone/go-oauthlink/core"
	oauthquery "github.com/goliatone/go-oauthlink/query"
)

type Commands struct {
	Start    *oauthcommand.StartFlowCommand
	Poll     *oauthcommand.PollFlowCommand
	Complete *oauthcommand.CompleteFlowCommand
	Reset    *oauthcommand.ResetFlowCommand
}

type Queries struct {
	GetFlowState     *oauthquery.GetFlowStateQuery
	ListFlowActivity *oauthquery.ListFlowActivityQuery
}

// Facade bundles the command and query handlers for one flow controller.
type Facade struct {
	flow           oauthcommand.FlowController
	activityReader core.FlowActivityReader
	commands       Commands
	queries        Queries
}

type FacadeOption func(*facadeOptions)

type facadeOptions struct {
	activityReader core.FlowActivityReader
}

func WithActivityReader(reader core.FlowActivityReader) FacadeOption {
	return func(options *facadeOptions) {
		options.activityReader = reader
	}
}

func NewFacade(flow oauthcommand.FlowController, opts ...FacadeOption) (*Facade, error) {
	if flow == nil {
		return nil, fmt.Errorf("oauthlink: flow controller is required")
	}
	cfg := facadeOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&cfg)
	}

	reader := cfg.activityReader
	if reader == nil {
		reader = resolveActivityReader(flow)
	}

	facade := &Facade{flow: flow, activityReader: reader}
	facade.commands = Commands{
		Start:    oauthcommand.NewStartFlowCommand(flow),
		Poll:     oauthcommand.NewPollFlowCommand(flow),
		Complete: oauthcommand.NewCompleteFlowCommand(flow),
		Reset:    oauthcommand.NewResetFlowCommand(flow),
	}
	facade.queries = Queries{
		GetFlowState:     oauthquery.NewGetFlowStateQuery(flow),
		ListFlowActivity: oauthquery.NewListFlowActivityQuery(reader),
	}
	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Flow() oauthcommand.FlowController {
	if f == nil {
		return nil
	}
	return f.flow
}

// ActivityReader is nil when neither an option nor the coordinator's sink
// provides one.
func (f *Facade) ActivityReader() core.FlowActivityReader {
	if f == nil {
		return nil
	}
	return f.activityReader
}

// Register adds every handler to the registry and subscribes it on the
// go-command dispatcher. The activity query is skipped without a reader. On
// failure the subscriptions made so far are released.
func (f *Facade) Register(adapter *gocommand.RegistryAdapter) (gocommand.Subscriptions, error) {
	if f == nil {
		return nil, fmt.Errorf("oauthlink: facade is nil")
	}
	subs := gocommand.Subscriptions{}
	steps := []func() (gocommand.Subscriptions, error){
		func() (gocommand.Subscriptions, error) {
			sub, err := gocommand.RegisterAndSubscribe(adapter, f.commands.Start)
			return gocommand.Subscriptions{sub}, err
		},
		func() (gocommand.Subscriptions, error) {
			sub, err := gocommand.RegisterAndSubscribe(adapter, f.commands.Poll)
			return gocommand.Subscriptions{sub}, err
		},
		func() (gocommand.Subscriptions, error) {
			sub, err := gocommand.RegisterAndSubscribe(adapter, f.commands.Complete)
			return gocommand.Subscriptions{sub}, err
		},
		func() (gocommand.Subscriptions, error) {
			sub, err := gocommand.RegisterAndSubscribe(adapter, f.commands.Reset)
			return gocommand.Subscriptions{sub}, err
		},
		func() (gocommand.Subscriptions, error) {
			sub, err := gocommand.RegisterAndSubscribeQuery(adapter, f.queries.GetFlowState)
			return gocommand.Subscriptions{sub}, err
		},
	}
	if f.activityReader != nil {
		steps = append(steps, func() (gocommand.Subscriptions, error) {
			sub, err := gocommand.RegisterAndSubscribeQuery(adapter, f.queries.ListFlowActivity)
			return gocommand.Subscriptions{sub}, err
		})
	}
	for _, step := range steps {
		added, err := step()
		if err != nil {
			subs.Unsubscribe()
			return nil, err
		}
		subs = append(subs, added...)
	}
	return subs, nil
}

// resolveActivityReader reuses the coordinator's activity sink when it can
// also list entries.
func resolveActivityReader(flow oauthcommand.FlowController) core.FlowActivityReader {
	if reader, ok := flow.(core.FlowActivityReader); ok {
		return reader
	}
	provider, ok := flow.(interface {
		Dependencies() core.CoordinatorDependencies
	})
	if !ok {
		return nil
	}
	reader, ok := provider.Dependencies().ActivitySink.(core.FlowActivityReader)
	if !ok {
		return nil
	}
	return reader
}
