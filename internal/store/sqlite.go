package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	appLog "wallcal/internal/log"
	"wallcal/internal/model"
)

// SQLite stores each definition as a JSON document plus a few columns used
// for lookups. Row order (seq) is insertion order.
type SQLite struct {
	db *sql.DB

	// mu serializes mutations so changes are published in commit order.
	mu  sync.Mutex
	rev uint64
	hub *Hub
}

var _ Store = (*SQLite)(nil)

func NewSQLite(db *sql.DB) *SQLite {
	return &SQLite{db: db, hub: NewHub()}
}

func (s *SQLite) All(ctx context.Context) ([]model.Definition, error) {
	return s.all(ctx, s.db)
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *SQLite) all(ctx context.Context, q querier) ([]model.Definition, error) {
	rows, err := q.QueryContext(ctx, `SELECT data FROM definitions ORDER BY seq ASC`)
	if err != nil {
		return nil, fmt.Errorf("query definitions: %w", err)
	}
	defer rows.Close()

	defs := make([]model.Definition, 0)
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan definition: %w", err)
		}
		d, err := decode(data)
		if err != nil {
			return nil, err
		}
		defs = append(defs, d)
	}
	return defs, rows.Err()
}

func (s *SQLite) Get(ctx context.Context, id string) (model.Definition, error) {
	return s.get(ctx, s.db, id)
}

func (s *SQLite) get(ctx context.Context, q querier, id string) (model.Definition, error) {
	var data string
	err := q.QueryRowContext(ctx, `SELECT data FROM definitions WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Definition{}, fmt.Errorf("get %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.Definition{}, fmt.Errorf("query definition %s: %w", id, err)
	}
	return decode(data)
}

func (s *SQLite) Create(ctx context.Context, def model.Definition) (model.Definition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	def = def.Clone()
	def.ID = uuid.NewString()
	data, err := encode(def)
	if err != nil {
		return model.Definition{}, err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO definitions (id, title, dtstart, rrule, parent_id, data)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		def.ID, def.Title, def.Start.String(), def.RepeatRule, def.ParentID, data,
	)
	if err != nil {
		return model.Definition{}, fmt.Errorf("insert definition: %w", err)
	}

	s.changed(ctx)
	return def, nil
}

func (s *SQLite) Update(ctx context.Context, id string, patch model.Patch) (model.Definition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Definition{}, fmt.Errorf("begin update: %w", err)
	}
	defer tx.Rollback()

	current, err := s.get(ctx, tx, id)
	if err != nil {
		return model.Definition{}, err
	}
	updated := patch.Apply(current)
	updated.ID = id

	data, err := encode(updated)
	if err != nil {
		return model.Definition{}, err
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE definitions
		 SET title = ?, dtstart = ?, rrule = ?, parent_id = ?, data = ?, updated_at = ?
		 WHERE id = ?`,
		updated.Title, updated.Start.String(), updated.RepeatRule, updated.ParentID, data, time.Now().UTC(), id,
	)
	if err != nil {
		return model.Definition{}, fmt.Errorf("update definition %s: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return model.Definition{}, fmt.Errorf("commit update: %w", err)
	}

	s.changed(ctx)
	return updated, nil
}

func (s *SQLite) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM definitions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete definition %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("delete %s: %w", id, ErrNotFound)
	}

	s.changed(ctx)
	return nil
}

func (s *SQLite) ReplaceAll(ctx context.Context, defs []model.Definition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM definitions`); err != nil {
		return fmt.Errorf("clear definitions: %w", err)
	}
	for _, d := range defs {
		data, err := encode(d)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO definitions (id, title, dtstart, rrule, parent_id, data)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			d.ID, d.Title, d.Start.String(), d.RepeatRule, d.ParentID, data,
		)
		if err != nil {
			return fmt.Errorf("insert definition %s: %w", d.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit replace: %w", err)
	}

	s.changed(ctx)
	return nil
}

func (s *SQLite) Revision() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rev
}

func (s *SQLite) Subscribe(buffer int) *Subscription {
	return s.hub.Subscribe(buffer)
}

// changed must be called with mu held, after the write committed.
func (s *SQLite) changed(ctx context.Context) {
	s.rev++
	defs, err := s.all(ctx, s.db)
	if err != nil {
		appLog.Error("store: reload after change failed", err, "revision", s.rev)
		return
	}
	s.hub.Publish(Change{Revision: s.rev, Definitions: defs})
}

func encode(d model.Definition) (string, error) {
	b, err := json.Marshal(d)
	if err != nil {
		return "", fmt.Errorf("encode definition %s: %w", d.ID, err)
	}
	return string(b), nil
}

func decode(data string) (model.Definition, error) {
	var d model.Definition
	if err := json.Unmarshal([]byte(data), &d); err != nil {
		return model.Definition{}, fmt.Errorf("decode definition: %w", err)
	}
	return d, nil
}
