package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"

	"wallcal/internal/model"
)

var ErrInvalidBackup = errors.New("backup must be a JSON array of definitions")

// ExportJSON writes every definition as an indented JSON array.
func ExportJSON(ctx context.Context, s Store, w io.Writer) error {
	defs, err := s.All(ctx)
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(defs); err != nil {
		return fmt.Errorf("export: encode: %w", err)
	}
	return nil
}

// ImportJSON replaces the store contents with the array read from r and
// returns how many definitions were imported. Records without an id get
// one; duplicate ids are rejected.
func ImportJSON(ctx context.Context, s Store, r io.Reader) (int, error) {
	var raw json.RawMessage
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return 0, fmt.Errorf("import: %w: %v", ErrInvalidBackup, err)
	}
	var defs []model.Definition
	if len(raw) == 0 || raw[0] != '[' {
		return 0, ErrInvalidBackup
	}
	if err := json.Unmarshal(raw, &defs); err != nil {
		return 0, fmt.Errorf("import: %w: %v", ErrInvalidBackup, err)
	}

	seen := make(map[string]struct{}, len(defs))
	for i := range defs {
		if defs[i].ID == "" {
			defs[i].ID = uuid.NewString()
		}
		if _, dup := seen[defs[i].ID]; dup {
			return 0, fmt.Errorf("import: %w: duplicate id %q", ErrInvalidBackup, defs[i].ID)
		}
		seen[defs[i].ID] = struct{}{}
	}

	if err := s.ReplaceAll(ctx, defs); err != nil {
		return 0, fmt.Errorf("import: %w", err)
	}
	return len(defs), nil
}
