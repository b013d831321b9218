package audit

import (
	"encoding/json"
	"time"
)

// Entry is one recorded admin action.
type Entry struct {
	ID         int64
	OccurredAt time.Time
	ActorID    int64
	ActorEmail string
	Action     string
	Entity     string
	EntityID   string
	Meta       json.RawMessage
}

// Filters narrows a timeline query. Zero values mean "any".
type Filters struct {
	From     time.Time
	To       time.Time
	ActorID  int64
	Entity   string
	Action   string
	Page     int
	PageSize int
}

// Paging carries cursor metadata for a timeline page.
type Paging struct {
	Page     int  `json:"page"`
	PageSize int  `json:"pageSize"`
	HasNext  bool `json:"hasNext"`
}

// Result is one page of timeline entries.
type Result struct {
	Entries []Entry
	Paging  Paging
}
