package sqlstore

import "github.com/goliatone/go-oauthlink/core"

var (
	_ core.FlowActivityStore = (*ActivityStore)(nil)
	_ core.FlowActivityStore = (*CachedActivityReader)(nil)
)
