package oauthlink

import (
	"context"
	"testing"

	"github.com/goliatone/go-command"
	"github.com/goliatone/go-oauthlink/adapters/gocommand"
	oauthcommand "github.com/goliatone/go-oauthlink/command"
	"github.com/goliatone/go-oauthlink/core"
	oauthquery "github.com/goliatone/go-oauthlink/query"
)

type stubFacadeAccountClient struct {
	completes int
}

func (s *stubFacadeAccountClient) StartOAuth(context.Context, core.StartOptions) (core.FlowDescriptor, error) {
	return core.FlowDescriptor{
		Method:           core.FlowMethodBrowser,
		AuthorizationURL: core.StringPtr("https://auth.example.com/authorize"),
	}, nil
}

func (s *stubFacadeAccountClient) GetOAuthStatus(context.Context) (core.FlowStatusReport, error) {
	return core.FlowStatusReport{Status: "success"}, nil
}

func (s *stubFacadeAccountClient) CompleteOAuth(context.Context, core.CompleteParams) error {
	s.completes++
	return nil
}

func newFacadeCoordinator(t *testing.T, sink core.FlowActivitySink) *core.Coordinator {
	t.Helper()
	opts := []core.Option{core.WithClock(core.NewManualClock(core.SystemClock{}.Now()))}
	if sink != nil {
		opts = append(opts, core.WithActivitySink(sink))
	}
	coordinator, err := NewCoordinator(&stubFacadeAccountClient{}, opts...)
	if err != nil {
		t.Fatalf("new coordinator: %v", err)
	}
	t.Cleanup(coordinator.Reset)
	return coordinator
}

func TestNewFacade_WiresCommandsAndQueries(t *testing.T) {
	facade, err := NewFacade(newFacadeCoordinator(t, nil), WithActivityReader(core.NewMemoryActivityStore()))
	if err != nil {
		t.Fatalf("new facade: %v", err)
	}

	commands := facade.Commands()
	if commands.Start == nil || commands.Poll == nil || commands.Complete == nil || commands.Reset == nil {
		t.Fatalf("expected command handlers to be wired")
	}
	queries := facade.Queries()
	if queries.GetFlowState == nil || queries.ListFlowActivity == nil {
		t.Fatalf("expected query handlers to be wired")
	}
}

func TestNewFacade_ResolvesActivityReaderFromCoordinatorSink(t *testing.T) {
	store := core.NewMemoryActivityStore()
	coordinator := newFacadeCoordinator(t, store)

	facade, err := NewFacade(coordinator)
	if err != nil {
		t.Fatalf("new facade: %v", err)
	}
	if facade.ActivityReader() != store {
		t.Fatalf("expected coordinator sink to be reused as activity reader")
	}

	if _, err := coordinator.Start(context.Background(), core.StartOptions{}); err != nil {
		t.Fatalf("start: %v", err)
	}
	page, err := facade.Queries().ListFlowActivity.Query(context.Background(), oauthquery.ListFlowActivityMessage{
		Filter: core.FlowActivityFilter{FlowID: coordinator.FlowID()},
	})
	if err != nil {
		t.Fatalf("list activity: %v", err)
	}
	if page.Total == 0 {
		t.Fatalf("expected recorded activity for flow %s", coordinator.FlowID())
	}
}

func TestFacade_RegisterDispatchesThroughGoCommand(t *testing.T) {
	coordinator := newFacadeCoordinator(t, core.NewMemoryActivityStore())
	facade, err := NewFacade(coordinator)
	if err != nil {
		t.Fatalf("new facade: %v", err)
	}

	subs, err := facade.Register(gocommand.NewRegistryAdapter(command.NewRegistry()))
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	defer subs.Unsubscribe()
	if len(subs) != 6 {
		t.Fatalf("expected 6 subscriptions, got %d", len(subs))
	}

	ctx := context.Background()
	state, ok, err := gocommand.DispatchWithResult[oauthcommand.StartFlowMessage, core.FlowState](ctx, oauthcommand.StartFlowMessage{ForceMethod: "browser"})
	if err != nil {
		t.Fatalf("dispatch start: %v", err)
	}
	if !ok || state.Status != core.FlowStatusPending || state.Method != core.FlowMethodBrowser {
		t.Fatalf("expected pending browser state, got %+v (ok=%v)", state, ok)
	}

	snapshot, err := gocommand.Query[oauthquery.GetFlowStateMessage, core.FlowState](ctx, oauthquery.GetFlowStateMessage{})
	if err != nil {
		t.Fatalf("query state: %v", err)
	}
	if snapshot.AuthorizationURL == nil || *snapshot.AuthorizationURL != "https://auth.example.com/authorize" {
		t.Fatalf("unexpected state snapshot %+v", snapshot)
	}

	if err := gocommand.Dispatch(ctx, oauthcommand.ResetFlowMessage{}); err != nil {
		t.Fatalf("dispatch reset: %v", err)
	}
	if !coordinator.State().IsInitial() {
		t.Fatalf("expected reset to restore the initial state, got %+v", coordinator.State())
	}
}

func TestFacade_RegisterSkipsActivityQueryWithoutReader(t *testing.T) {
	facade, err := NewFacade(newFacadeCoordinator(t, nil))
	if err != nil {
		t.Fatalf("new facade: %v", err)
	}
	if facade.ActivityReader() != nil {
		t.Fatalf("expected no activity reader")
	}
	subs, err := facade.Register(gocommand.NewRegistryAdapter(command.NewRegistry()))
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	defer subs.Unsubscribe()
	if len(subs) != 5 {
		t.Fatalf("expected 5 subscriptions, got %d", len(subs))
	}
}

func TestFacade_RegisterRequiresRegistry(t *testing.T) {
	facade, err := NewFacade(newFacadeCoordinator(t, nil))
	if err != nil {
		t.Fatalf("new facade: %v", err)
	}
	if _, err := facade.Register(nil); err == nil {
		t.Fatalf("expected error for nil registry adapter")
	}
}

func TestNewFacade_RequiresFlowController(t *testing.T) {
	facade, err := NewFacade(nil)
	if err == nil {
		t.Fatalf("expected nil flow controller error")
	}
	if facade != nil {
		t.Fatalf("expected nil facade on error")
	}
}

func TestNewHTTPCoordinator_RequiresBaseURL(t *testing.T) {
	if _, err := NewHTTPCoordinator(DefaultConfig(), nil); err == nil {
		t.Fatalf("expected error without client base url")
	}
	cfg := DefaultConfig()
	cfg.Client.BaseURL = "https://accounts.example.com"
	coordinator, err := NewHTTPCoordinator(cfg, nil)
	if err != nil {
		t.Fatalf("new http coordinator: %v", err)
	}
	if coordinator.Config().Client.BaseURL != "https://accounts.example.com" {
		t.Fatalf("expected runtime config to carry base url, got %+v", coordinator.Config().Client)
	}
}
