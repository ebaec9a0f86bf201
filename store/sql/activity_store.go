package sqlstore

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-oauthlink/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// ActivityStore persists flow activity in the oauth_flow_activity table.
type ActivityStore struct {
	db   *bun.DB
	repo repository.Repository[*flowActivityRecord]

	// Now sets the TTL reference for Prune. Defaults to the wall clock.
	Now func() time.Time
}

func NewActivityStore(db *bun.DB) (*ActivityStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*flowActivityRecord](db, flowActivityHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid flow activity repository wiring: %w", err)
		}
	}
	return &ActivityStore{db: db, repo: repo}, nil
}

func (s *ActivityStore) Record(ctx context.Context, entry core.FlowActivityEntry) error {
	if s == nil || s.repo == nil {
		return fmt.Errorf("sqlstore: activity store is not configured")
	}
	entry, err := core.NormalizeActivityEntry(entry)
	if err != nil {
		return err
	}
	record := &flowActivityRecord{
		ID:        entry.ID,
		FlowID:    entry.FlowID,
		Action:    entry.Action,
		Method:    string(entry.Method),
		Status:    string(entry.Status),
		Message:   entry.Message,
		Metadata:  entry.Metadata,
		CreatedAt: entry.CreatedAt,
	}
	_, err = s.repo.Create(ctx, record)
	return err
}

func (s *ActivityStore) List(ctx context.Context, filter core.FlowActivityFilter) (core.FlowActivityPage, error) {
	if s == nil || s.repo == nil {
		return core.FlowActivityPage{}, fmt.Errorf("sqlstore: activity store is not configured")
	}
	page, perPage, offset := core.NormalizeActivityPaging(filter)

	selectors := []repository.SelectCriteria{
		repository.OrderBy("created_at DESC"),
		repository.SelectPaginate(perPage, offset),
	}
	if flowID := strings.TrimSpace(filter.FlowID); flowID != "" {
		selectors = append(selectors, repository.SelectBy("flow_id", "=", flowID))
	}
	if action := strings.TrimSpace(filter.Action); action != "" {
		selectors = append(selectors, repository.SelectBy("action", "=", action))
	}
	if status := strings.TrimSpace(string(filter.Status)); status != "" {
		selectors = append(selectors, repository.SelectBy("status", "=", status))
	}
	if filter.From != nil {
		selectors = append(selectors, repository.SelectByTimetz("created_at", ">=", filter.From.UTC()))
	}
	if filter.To != nil {
		selectors = append(selectors, repository.SelectByTimetz("created_at", "<=", filter.To.UTC()))
	}

	records, total, err := s.repo.List(ctx, selectors...)
	if err != nil {
		return core.FlowActivityPage{}, err
	}
	items := make([]core.FlowActivityEntry, 0, len(records))
	for _, record := range records {
		items = append(items, flowActivityToDomain(record))
	}
	hasNext := offset+len(items) < total
	nextCursor := ""
	if hasNext {
		nextCursor = strconv.Itoa(offset + len(items))
	}
	return core.FlowActivityPage{
		Items:      items,
		Page:       page,
		PerPage:    perPage,
		Total:      total,
		HasNext:    hasNext,
		NextCursor: nextCursor,
	}, nil
}

// Prune drops entries older than ttl, then the oldest rows beyond rowCap.
// Zero values skip the matching pass.
func (s *ActivityStore) Prune(ctx context.Context, ttl time.Duration, rowCap int) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("sqlstore: activity store is not configured")
	}
	deleted := 0

	if ttl > 0 {
		cutoff := s.now().Add(-ttl)
		res, err := s.db.NewDelete().
			Model((*flowActivityRecord)(nil)).
			Where("created_at < ?", cutoff).
			Exec(ctx)
		if err != nil {
			return deleted, err
		}
		affected, _ := res.RowsAffected()
		deleted += int(affected)
	}

	if rowCap > 0 {
		total, err := s.db.NewSelect().Model((*flowActivityRecord)(nil)).Count(ctx)
		if err != nil {
			return deleted, err
		}
		if excess := total - rowCap; excess > 0 {
			res, err := s.db.NewRaw(
				"DELETE FROM oauth_flow_activity WHERE id IN (SELECT id FROM oauth_flow_activity ORDER BY created_at ASC LIMIT ?)",
				excess,
			).Exec(ctx)
			if err != nil {
				return deleted, err
			}
			affected, _ := res.RowsAffected()
			deleted += int(affected)
		}
	}

	return deleted, nil
}

func (s *ActivityStore) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func flowActivityToDomain(record *flowActivityRecord) core.FlowActivityEntry {
	if record == nil {
		return core.FlowActivityEntry{}
	}
	return core.FlowActivityEntry{
		ID:        record.ID,
		FlowID:    record.FlowID,
		Action:    record.Action,
		Method:    core.FlowMethod(record.Method),
		Status:    core.FlowStatus(record.Status),
		Message:   record.Message,
		Metadata:  copyAnyMap(record.Metadata),
		CreatedAt: record.CreatedAt.UTC(),
	}
}
