package core

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const defaultActivityPerPage = 25

// MemoryActivityStore keeps flow activity in process, newest first on List.
type MemoryActivityStore struct {
	mu      sync.Mutex
	entries []FlowActivityEntry
}

func NewMemoryActivityStore() *MemoryActivityStore {
	return &MemoryActivityStore{}
}

func (s *MemoryActivityStore) Record(_ context.Context, entry FlowActivityEntry) error {
	if s == nil {
		return fmt.Errorf("core: activity store is not configured")
	}
	entry, err := NormalizeActivityEntry(entry)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.entries = append(s.entries, entry)
	s.mu.Unlock()
	return nil
}

func (s *MemoryActivityStore) List(_ context.Context, filter FlowActivityFilter) (FlowActivityPage, error) {
	if s == nil {
		return FlowActivityPage{}, fmt.Errorf("core: activity store is not configured")
	}
	page, perPage, offset := NormalizeActivityPaging(filter)

	s.mu.Lock()
	matched := make([]FlowActivityEntry, 0, len(s.entries))
	for _, entry := range s.entries {
		if activityMatches(entry, filter) {
			matched = append(matched, cloneActivityEntry(entry))
		}
	}
	s.mu.Unlock()

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)
	items := []FlowActivityEntry{}
	if offset < total {
		end := offset + perPage
		if end > total {
			end = total
		}
		items = matched[offset:end]
	}
	hasNext := offset+len(items) < total
	nextCursor := ""
	if hasNext {
		nextCursor = strconv.Itoa(offset + len(items))
	}
	return FlowActivityPage{
		Items:      items,
		Page:       page,
		PerPage:    perPage,
		Total:      total,
		HasNext:    hasNext,
		NextCursor: nextCursor,
	}, nil
}

// NormalizeActivityEntry fills the id and timestamp and trims text fields.
func NormalizeActivityEntry(entry FlowActivityEntry) (FlowActivityEntry, error) {
	entry.FlowID = strings.TrimSpace(entry.FlowID)
	entry.Action = strings.TrimSpace(entry.Action)
	entry.Message = strings.TrimSpace(entry.Message)
	if entry.FlowID == "" {
		return FlowActivityEntry{}, fmt.Errorf("core: activity flow id is required")
	}
	if entry.Action == "" {
		return FlowActivityEntry{}, fmt.Errorf("core: activity action is required")
	}
	if strings.TrimSpace(entry.ID) == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	entry.CreatedAt = entry.CreatedAt.UTC()
	entry.Metadata = copyAnyMap(entry.Metadata)
	return entry, nil
}

// NormalizeActivityPaging returns page, per-page and offset with defaults.
func NormalizeActivityPaging(filter FlowActivityFilter) (int, int, int) {
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	perPage := filter.PerPage
	if perPage <= 0 {
		perPage = defaultActivityPerPage
	}
	return page, perPage, (page - 1) * perPage
}

func activityMatches(entry FlowActivityEntry, filter FlowActivityFilter) bool {
	if flowID := strings.TrimSpace(filter.FlowID); flowID != "" && entry.FlowID != flowID {
		return false
	}
	if action := strings.TrimSpace(filter.Action); action != "" && entry.Action != action {
		return false
	}
	if filter.Status != "" && entry.Status != filter.Status {
		return false
	}
	if filter.From != nil && entry.CreatedAt.Before(filter.From.UTC()) {
		return false
	}
	if filter.To != nil && entry.CreatedAt.After(filter.To.UTC()) {
		return false
	}
	return true
}

func cloneActivityEntry(entry FlowActivityEntry) FlowActivityEntry {
	cloned := entry
	cloned.Metadata = copyAnyMap(entry.Metadata)
	return cloned
}

var _ FlowActivityStore = (*MemoryActivityStore)(nil)
