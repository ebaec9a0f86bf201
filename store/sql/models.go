package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

type flowActivityRecord struct {
	bun.BaseModel `bun:"table:oauth_flow_activity,alias:ofa"`

	ID        string         `bun:"id,pk"`
	FlowID    string         `bun:"flow_id,notnull"`
	Action    string         `bun:"action,notnull"`
	Method    string         `bun:"method,notnull"`
	Status    string         `bun:"status,notnull"`
	Message   string         `bun:"message,notnull"`
	Metadata  map[string]any `bun:"metadata,type:jsonb,notnull"`
	CreatedAt time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}
