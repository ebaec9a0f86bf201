package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-command"
	oauthlink "github.com/goliatone/go-oauthlink"
	"github.com/goliatone/go-oauthlink/adapters/gocommand"
	"github.com/goliatone/go-oauthlink/adapters/gologger"
	"github.com/goliatone/go-oauthlink/client"
	oauthcommand "github.com/goliatone/go-oauthlink/command"
	"github.com/goliatone/go-oauthlink/core"
	sqlstore "github.com/goliatone/go-oauthlink/store/sql"
	persistence "github.com/goliatone/go-persistence-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

const (
	exitOK    = 0
	exitFlow  = 1
	exitSetup = 2

	defaultManualPollEvery = 2 * time.Second
)

type cliArgs struct {
	Config     string        `arg:"--config,env:OAUTHLINK_CONFIG" help:"JSON config file"`
	BaseURL    string        `arg:"--base-url,env:OAUTHLINK_BASE_URL" help:"account API base URL"`
	Method     string        `arg:"--method" help:"force browser or device"`
	Timeout    time.Duration `arg:"--timeout" help:"give up after this long; 0 waits until the link expires"`
	LogFile    string        `arg:"--log-file" help:"also write logs to this rotating file"`
	LogLevel   string        `arg:"--log-level" default:"warn" help:"trace, debug, info, warn or error"`
	ActivityDB string        `arg:"--activity-db" help:"sqlite path or postgres:// DSN for the flow activity ledger"`

	// PollEvery drives manual polls when the API returns no interval.
	PollEvery time.Duration `arg:"--poll-every" default:"2s" help:"manual poll cadence when the API sets no interval"`
}

func (cliArgs) Description() string {
	return "oauthlink links an account through the browser or device OAuth flow"
}

// run executes one linking flow and returns the process exit code.
func run(ctx context.Context, args cliArgs, out io.Writer) int {
	base := gologger.NewLogrus(args.LogLevel, gologger.FileConfig{Path: args.LogFile})
	provider := gologger.NewProvider(base)
	logger := provider.GetLogger("oauthlink.cli")

	method, ok := core.ParseFlowMethod(args.Method)
	if !ok {
		fmt.Fprintf(out, "error: unsupported method %q (use browser or device)\n", args.Method)
		return exitSetup
	}

	cfg, err := core.ResolveConfig(ctx,
		core.NewCfgxConfigProvider(client.NewFileConfigLoader(args.Config)),
		core.GoOptionsResolver{},
		core.Config{Client: core.ClientConfig{BaseURL: strings.TrimSpace(args.BaseURL)}},
	)
	if err != nil {
		fmt.Fprintf(out, "error: %v\n", err)
		return exitSetup
	}

	sink, closeSink, err := openActivitySink(ctx, args.ActivityDB)
	if err != nil {
		fmt.Fprintf(out, "error: %v\n", err)
		return exitSetup
	}
	defer closeSink()

	accountClient, err := client.New(cfg.Client)
	if err != nil {
		fmt.Fprintf(out, "error: %s\n", core.ErrorMessage(err, cfg.FallbackErrorMessage))
		return exitSetup
	}
	coordinator, err := core.NewCoordinator(accountClient,
		core.WithConfig(cfg),
		core.WithLoggerProvider(provider),
		core.WithLogger(logger),
		core.WithActivitySink(sink),
	)
	if err != nil {
		fmt.Fprintf(out, "error: %v\n", err)
		return exitSetup
	}

	facade, err := oauthlink.NewFacade(coordinator)
	if err != nil {
		fmt.Fprintf(out, "error: %v\n", err)
		return exitSetup
	}
	subs, err := facade.Register(gocommand.NewRegistryAdapter(command.NewRegistry()))
	if err != nil {
		fmt.Fprintf(out, "error: %v\n", err)
		return exitSetup
	}
	defer subs.Unsubscribe()

	printer := &statePrinter{out: out}
	expired := make(chan struct{}, 1)
	unsubscribe := coordinator.Subscribe(func(state core.FlowState) {
		printer.print(state)
		if state.Status == core.FlowStatusPending && state.ExpiresInSeconds != nil && *state.ExpiresInSeconds == 0 {
			select {
			case expired <- struct{}{}:
			default:
			}
		}
	})
	defer unsubscribe()

	state, _, err := gocommand.DispatchWithResult[oauthcommand.StartFlowMessage, core.FlowState](
		ctx, oauthcommand.StartFlowMessage{ForceMethod: string(method)},
	)
	if err != nil {
		if coordinator.State().Status != core.FlowStatusError {
			fmt.Fprintf(out, "error: %s\n", core.ErrorMessage(err, cfg.FallbackErrorMessage))
		}
		return exitFlow
	}
	if state.Status != core.FlowStatusPending {
		return exitCode(state)
	}

	waitCtx, cancel := waitContext(ctx, args.Timeout)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		controlFlow(waitCtx, coordinator, expired, args.PollEvery)
	}()

	final, err := coordinator.Await(waitCtx)
	cancel()
	wg.Wait()

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		coordinator.Reset()
		fmt.Fprintln(out, "error: timed out waiting for the account link")
		return exitFlow
	case err != nil:
		coordinator.Reset()
		fmt.Fprintln(out, "cancelled")
		return exitFlow
	case final.Status == core.FlowStatusIdle:
		fmt.Fprintln(out, "error: the link expired before it was approved")
		return exitFlow
	}
	return exitCode(final)
}

// controlFlow resets the coordinator once the countdown hits zero and polls
// by hand when the API did not provide an interval.
func controlFlow(ctx context.Context, coordinator *core.Coordinator, expired <-chan struct{}, pollEvery time.Duration) {
	if pollEvery <= 0 {
		pollEvery = defaultManualPollEvery
	}
	ticker := time.NewTicker(pollEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-expired:
			coordinator.Reset()
			return
		case <-ticker.C:
			state := coordinator.State()
			if state.Status != core.FlowStatusPending {
				return
			}
			if state.IntervalSeconds == nil || *state.IntervalSeconds <= 0 {
				if err := gocommand.Dispatch(ctx, oauthcommand.PollFlowMessage{}); err != nil {
					return
				}
			}
		}
	}
}

func waitContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout > 0 {
		return context.WithTimeout(ctx, timeout)
	}
	return context.WithCancel(ctx)
}

func exitCode(state core.FlowState) int {
	if state.Status == core.FlowStatusSuccess {
		return exitOK
	}
	return exitFlow
}

// openActivitySink picks the ledger backend: none, postgres for postgres://
// DSNs, sqlite otherwise. SQL ledgers are read through a cache.
func openActivitySink(ctx context.Context, dsn string) (core.FlowActivitySink, func(), error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return core.NewMemoryActivityStore(), func() {}, nil
	}

	var (
		db  *persistence.Client
		err error
	)
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		db, err = sqlstore.OpenPostgres(ctx, dsn)
	} else {
		db, err = sqlstore.OpenSQLite(ctx, dsn)
	}
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() { _ = db.Close() }

	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(db)
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	cacheService, err := repositorycache.NewCacheService(repositorycache.DefaultConfig())
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	reader, err := factory.WithCache(cacheService)
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	return reader, closeFn, nil
}

// statePrinter writes one line per visible change. Countdown ticks only
// print every 15 seconds and during the last 5.
type statePrinter struct {
	mu   sync.Mutex
	out  io.Writer
	last core.FlowState
	seen bool
}

func (p *statePrinter) print(state core.FlowState) {
	p.mu.Lock()
	defer p.mu.Unlock()
	previous, seen := p.last, p.seen
	p.last, p.seen = state, true

	if seen && previous.Status == state.Status {
		if state.Status == core.FlowStatusPending && state.ErrorMessage != nil &&
			derefString(previous.ErrorMessage) != *state.ErrorMessage {
			fmt.Fprintf(p.out, "note: %s\n", *state.ErrorMessage)
		}
		if state.Status == core.FlowStatusPending && state.ExpiresInSeconds != nil &&
			(previous.ExpiresInSeconds == nil || *previous.ExpiresInSeconds != *state.ExpiresInSeconds) {
			remaining := *state.ExpiresInSeconds
			if remaining%15 == 0 || remaining <= 5 {
				fmt.Fprintf(p.out, "expires in %ds\n", remaining)
			}
		}
		return
	}

	switch state.Status {
	case core.FlowStatusStarting:
		fmt.Fprintln(p.out, "starting account link...")
	case core.FlowStatusPending:
		switch {
		case state.AuthorizationURL != nil:
			fmt.Fprintf(p.out, "open this URL to approve: %s\n", *state.AuthorizationURL)
		case state.VerificationURL != nil:
			fmt.Fprintf(p.out, "visit %s and enter code %s\n", *state.VerificationURL, derefString(state.UserCode))
		default:
			fmt.Fprintln(p.out, "waiting for approval...")
		}
		if state.ErrorMessage != nil {
			fmt.Fprintf(p.out, "note: %s\n", *state.ErrorMessage)
		}
	case core.FlowStatusSuccess:
		fmt.Fprintln(p.out, "account linked")
	case core.FlowStatusError:
		fmt.Fprintf(p.out, "error: %s\n", derefString(state.ErrorMessage))
	}
}

func derefString(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
