package sqlstore_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-oauthlink/core"
	sqlstore "github.com/goliatone/go-oauthlink/store/sql"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

type countingActivityStore struct {
	*core.MemoryActivityStore
	lists   int
	listErr error
}

func (s *countingActivityStore) List(ctx context.Context, filter core.FlowActivityFilter) (core.FlowActivityPage, error) {
	s.lists++
	if s.listErr != nil {
		return core.FlowActivityPage{}, s.listErr
	}
	return s.MemoryActivityStore.List(ctx, filter)
}

func TestCachedActivityReader_CachesUntilRecord(t *testing.T) {
	base := &countingActivityStore{MemoryActivityStore: core.NewMemoryActivityStore()}
	reader, err := sqlstore.NewCachedActivityReader(base, newTestActivityCacheService(t))
	if err != nil {
		t.Fatalf("new cached reader: %v", err)
	}
	ctx := context.Background()
	filter := core.FlowActivityFilter{FlowID: "flow_1"}

	if err := reader.Record(ctx, core.FlowActivityEntry{FlowID: "flow_1", Action: core.FlowActionStarted}); err != nil {
		t.Fatalf("record: %v", err)
	}
	for i := 0; i < 2; i++ {
		page, err := reader.List(ctx, filter)
		if err != nil {
			t.Fatalf("list %d: %v", i, err)
		}
		if page.Total != 1 {
			t.Fatalf("expected 1 entry, got %d", page.Total)
		}
	}
	if base.lists != 1 {
		t.Fatalf("expected one base list call, got %d", base.lists)
	}

	if err := reader.Record(ctx, core.FlowActivityEntry{FlowID: "flow_1", Action: core.FlowActionPending}); err != nil {
		t.Fatalf("record: %v", err)
	}
	page, err := reader.List(ctx, filter)
	if err != nil {
		t.Fatalf("list after record: %v", err)
	}
	if page.Total != 2 || base.lists != 2 {
		t.Fatalf("expected invalidated read with 2 entries, got total=%d lists=%d", page.Total, base.lists)
	}
}

// stallingActivityStore snapshots the page, then waits for release before
// returning it, so a Record can land mid-fetch.
type stallingActivityStore struct {
	*core.MemoryActivityStore
	mu      sync.Mutex
	stall   bool
	entered chan struct{}
	release chan struct{}
	lists   int
}

func (s *stallingActivityStore) List(ctx context.Context, filter core.FlowActivityFilter) (core.FlowActivityPage, error) {
	page, err := s.MemoryActivityStore.List(ctx, filter)
	s.mu.Lock()
	s.lists++
	stall := s.stall
	s.stall = false
	s.mu.Unlock()
	if stall {
		s.entered <- struct{}{}
		<-s.release
	}
	return page, err
}

func TestCachedActivityReader_RecordDuringFetchIsNotCached(t *testing.T) {
	base := &stallingActivityStore{
		MemoryActivityStore: core.NewMemoryActivityStore(),
		stall:               true,
		entered:             make(chan struct{}, 1),
		release:             make(chan struct{}),
	}
	reader, err := sqlstore.NewCachedActivityReader(base, newTestActivityCacheService(t))
	if err != nil {
		t.Fatalf("new cached reader: %v", err)
	}
	ctx := context.Background()
	filter := core.FlowActivityFilter{FlowID: "flow_1"}

	type result struct {
		page core.FlowActivityPage
		err  error
	}
	done := make(chan result, 1)
	go func() {
		page, err := reader.List(ctx, filter)
		done <- result{page: page, err: err}
	}()
	<-base.entered

	if err := reader.Record(ctx, core.FlowActivityEntry{FlowID: "flow_1", Action: core.FlowActionStarted}); err != nil {
		t.Fatalf("record: %v", err)
	}
	close(base.release)
	first := <-done
	if first.err != nil {
		t.Fatalf("list during record: %v", first.err)
	}
	if first.page.Total != 0 {
		t.Fatalf("expected the in-flight page to predate the record, got %d", first.page.Total)
	}

	page, err := reader.List(ctx, filter)
	if err != nil {
		t.Fatalf("list after record: %v", err)
	}
	if page.Total != 1 {
		t.Fatalf("expected fresh page with the recorded entry, got %d", page.Total)
	}
	base.mu.Lock()
	lists := base.lists
	base.mu.Unlock()
	if lists != 2 {
		t.Fatalf("expected stale page to be evicted and refetched, got %d base lists", lists)
	}
}

func TestCachedActivityReader_ReturnsIndependentCopies(t *testing.T) {
	base := &countingActivityStore{MemoryActivityStore: core.NewMemoryActivityStore()}
	reader, err := sqlstore.NewCachedActivityReader(base, newTestActivityCacheService(t))
	if err != nil {
		t.Fatalf("new cached reader: %v", err)
	}
	ctx := context.Background()
	if err := reader.Record(ctx, core.FlowActivityEntry{
		FlowID:   "flow_1",
		Action:   core.FlowActionPending,
		Metadata: map[string]any{"user_code": "ABCD"},
	}); err != nil {
		t.Fatalf("record: %v", err)
	}

	first, err := reader.List(ctx, core.FlowActivityFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	first.Items[0].Metadata["user_code"] = "mutated"

	second, err := reader.List(ctx, core.FlowActivityFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if second.Items[0].Metadata["user_code"] != "ABCD" {
		t.Fatalf("expected cached page to be isolated from caller mutation")
	}
}

func TestCachedActivityReader_PropagatesBaseErrors(t *testing.T) {
	expected := errors.New("db down")
	base := &countingActivityStore{MemoryActivityStore: core.NewMemoryActivityStore(), listErr: expected}
	reader, err := sqlstore.NewCachedActivityReader(base, newTestActivityCacheService(t))
	if err != nil {
		t.Fatalf("new cached reader: %v", err)
	}
	if _, err := reader.List(context.Background(), core.FlowActivityFilter{}); !errors.Is(err, expected) {
		t.Fatalf("expected base error, got %v", err)
	}
}

func TestCachedActivityReader_RequiresDependencies(t *testing.T) {
	if _, err := sqlstore.NewCachedActivityReader(nil, newTestActivityCacheService(t)); err == nil {
		t.Fatalf("expected error for nil base store")
	}
	if _, err := sqlstore.NewCachedActivityReader(core.NewMemoryActivityStore(), nil); err == nil {
		t.Fatalf("expected error for nil cache service")
	}
}

func TestActivityListCacheKey_NormalizesPaging(t *testing.T) {
	from := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	key := sqlstore.ActivityListCacheKey(core.FlowActivityFilter{FlowID: " flow/1 ", From: &from})
	if !strings.HasPrefix(key, "oauthlink::flow_activity::v1::flow%2F1::") {
		t.Fatalf("unexpected key prefix %q", key)
	}
	if !strings.HasSuffix(key, "::1::25") {
		t.Fatalf("expected default paging in key, got %q", key)
	}
	explicit := sqlstore.ActivityListCacheKey(core.FlowActivityFilter{FlowID: "flow/1", From: &from, Page: 1, PerPage: 25})
	if key != explicit {
		t.Fatalf("expected equal keys for defaulted and explicit paging: %q vs %q", key, explicit)
	}
}

func newTestActivityCacheService(t *testing.T) repositorycache.CacheService {
	t.Helper()
	config := repositorycache.DefaultConfig()
	config.TTL = time.Minute
	service, err := repositorycache.NewCacheService(config)
	if err != nil {
		t.Fatalf("new cache service: %v", err)
	}
	return service
}
