package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-oauthlink/core"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

const activityListCacheKeyPrefix = "oauthlink::flow_activity::v1"

// CachedActivityReader serves List through a cache and drops every cached
// page when a new entry is recorded.
type CachedActivityReader struct {
	base  core.FlowActivityStore
	cache repositorycache.CacheService

	mu      sync.Mutex
	keys    map[string]struct{}
	version uint64
}

func NewCachedActivityReader(
	base core.FlowActivityStore,
	cacheService repositorycache.CacheService,
) (*CachedActivityReader, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base activity store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: activity cache service is required")
	}
	return &CachedActivityReader{base: base, cache: cacheService, keys: map[string]struct{}{}}, nil
}

// ActivityListCacheKey returns
// oauthlink::flow_activity::v1::<flow>::<action>::<status>::<from>::<to>::<page>::<per_page>
// with each text segment URL-path escaped. Paging is normalized first.
func ActivityListCacheKey(filter core.FlowActivityFilter) string {
	page, perPage, _ := core.NormalizeActivityPaging(filter)
	segments := []string{
		url.PathEscape(strings.TrimSpace(filter.FlowID)),
		url.PathEscape(strings.TrimSpace(filter.Action)),
		url.PathEscape(strings.TrimSpace(string(filter.Status))),
		timeSegment(filter.From),
		timeSegment(filter.To),
		strconv.Itoa(page),
		strconv.Itoa(perPage),
	}
	return strings.Join(append([]string{activityListCacheKeyPrefix}, segments...), "::")
}

func (r *CachedActivityReader) List(ctx context.Context, filter core.FlowActivityFilter) (core.FlowActivityPage, error) {
	if r == nil || r.base == nil || r.cache == nil {
		return core.FlowActivityPage{}, fmt.Errorf("sqlstore: cached activity reader is not configured")
	}
	key := ActivityListCacheKey(filter)
	version := r.currentVersion()

	page, err := repositorycache.GetOrFetch(ctx, r.cache, key, func(ctx context.Context) (core.FlowActivityPage, error) {
		fetched, fetchErr := r.base.List(ctx, filter)
		if fetchErr != nil {
			return core.FlowActivityPage{}, fetchErr
		}
		return cloneActivityPage(fetched), nil
	})
	if err != nil {
		return core.FlowActivityPage{}, err
	}
	if !r.trackIfCurrent(key, version) {
		// A Record landed while the page was fetched; the cached copy may
		// predate it.
		if err := r.cache.Delete(ctx, key); err != nil {
			return core.FlowActivityPage{}, err
		}
	}
	return cloneActivityPage(page), nil
}

func (r *CachedActivityReader) Record(ctx context.Context, entry core.FlowActivityEntry) error {
	if r == nil || r.base == nil || r.cache == nil {
		return fmt.Errorf("sqlstore: cached activity reader is not configured")
	}
	if err := r.base.Record(ctx, entry); err != nil {
		return err
	}
	return r.Invalidate(ctx)
}

// Invalidate deletes every page cached through this reader.
func (r *CachedActivityReader) Invalidate(ctx context.Context) error {
	if r == nil || r.cache == nil {
		return nil
	}
	r.mu.Lock()
	r.version++
	keys := make([]string, 0, len(r.keys))
	for key := range r.keys {
		keys = append(keys, key)
	}
	r.keys = map[string]struct{}{}
	r.mu.Unlock()

	for _, key := range keys {
		if err := r.cache.Delete(ctx, key); err != nil {
			return err
		}
	}
	return nil
}

func (r *CachedActivityReader) currentVersion() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.version
}

// trackIfCurrent records key for invalidation unless an invalidation ran
// since version was read.
func (r *CachedActivityReader) trackIfCurrent(key string, version uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.version != version {
		return false
	}
	r.keys[key] = struct{}{}
	return true
}

func timeSegment(value *time.Time) string {
	if value == nil {
		return ""
	}
	return url.PathEscape(value.UTC().Format(time.RFC3339Nano))
}

func cloneActivityPage(page core.FlowActivityPage) core.FlowActivityPage {
	cloned := page
	cloned.Items = make([]core.FlowActivityEntry, 0, len(page.Items))
	for _, item := range page.Items {
		item.Metadata = copyAnyMap(item.Metadata)
		cloned.Items = append(cloned.Items, item)
	}
	return cloned
}
