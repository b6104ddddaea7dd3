package ics

import (
	"context"
	"fmt"
	"slices"

	appLog "wallcal/internal/log"
	"wallcal/internal/model"
	"wallcal/internal/store"
)

// Import appends parsed definitions to s and returns how many were created.
// Masters are created first. Each override is then linked to the id its
// master received, and the occurrence it replaces is excluded from the
// master. An override whose master is missing is kept as a one-off event.
func Import(ctx context.Context, s store.Store, defs []model.Definition) (int, error) {
	var masters, overrides []model.Definition
	for _, d := range defs {
		if d.IsOverride() {
			overrides = append(overrides, d)
		} else {
			masters = append(masters, d)
		}
	}

	excluded := make(map[string][]string)
	for _, ov := range overrides {
		excluded[ov.ParentID] = append(excluded[ov.ParentID], ov.OverrideOf)
	}

	ids := make(map[string]string, len(masters))
	created := 0
	for _, m := range masters {
		uid := m.ID
		for _, ex := range excluded[uid] {
			if !slices.Contains(m.ExceptionDates, ex) {
				m.ExceptionDates = append(slices.Clone(m.ExceptionDates), ex)
			}
		}
		saved, err := s.Create(ctx, m)
		if err != nil {
			return created, fmt.Errorf("ics: import %q: %w", uid, err)
		}
		if _, dup := ids[uid]; dup {
			appLog.Warn("ics: duplicate UID, overrides link to the last one", "uid", uid)
		}
		ids[uid] = saved.ID
		created++
	}

	for _, ov := range overrides {
		uid := ov.ParentID
		if id, ok := ids[uid]; ok {
			ov.ParentID = id
		} else {
			appLog.Warn("ics: override without master imported as single event", "uid", uid, "recurrence_id", ov.OverrideOf)
			ov.ParentID = ""
			ov.OverrideOf = ""
		}
		if _, err := s.Create(ctx, ov); err != nil {
			return created, fmt.Errorf("ics: import override of %q: %w", uid, err)
		}
		created++
	}

	appLog.Info("ics: import completed", "created", created)
	return created, nil
}
