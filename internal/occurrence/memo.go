package occurrence

import (
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"

	"wallcal/internal/model"
	"wallcal/internal/wallclock"
)

// Memo caches expansion results keyed on (definition list revision,
// window). A new revision never sees an older result, so output is always
// what ExpandWithConfig would return.
type Memo struct {
	store *cache.Cache
	cfg   Config
}

// NewMemo returns a Memo whose entries live for ttl.
func NewMemo(ttl time.Duration, cfg Config) *Memo {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Memo{
		store: cache.New(ttl, 2*ttl),
		cfg:   cfg,
	}
}

// Expand returns the expansion of defs over the window. revision must
// change whenever defs do. Callers must not modify the returned result.
func (m *Memo) Expand(revision uint64, defs []model.Definition, windowStart, windowEnd wallclock.Time) Result {
	key := fmt.Sprintf("%d|%s|%s", revision, windowStart, windowEnd)
	if v, found := m.store.Get(key); found {
		return v.(Result)
	}

	res := ExpandWithConfig(defs, windowStart, windowEnd, m.cfg)
	m.store.SetDefault(key, res)
	return res
}

// Len is the number of cached windows.
func (m *Memo) Len() int {
	return m.store.ItemCount()
}

// Flush drops every cached result.
func (m *Memo) Flush() {
	m.store.Flush()
}
