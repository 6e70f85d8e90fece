// Package inbox remembers inbound events that were already handled, for Kafka deliveries
// (inbox_events) and payment webhooks (processed_events).
package inbox

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/batdimoiprint/medicare-booking/libs/db"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Repository struct {
	db Execer
}

func NewRepository(conn Execer) *Repository {
	return &Repository{db: conn}
}

func (r *Repository) Seen(ctx context.Context, eventID string) (bool, error) {
	var exists int
	err := r.db.QueryRow(ctx, `SELECT 1 FROM inbox_events WHERE event_id = $1`, eventID).Scan(&exists)
	if err != nil {
		if db.IsNoRows(err) {
			return false, nil
		}
		return false, fmt.Errorf("inbox: check seen: %w", err)
	}
	return true, nil
}

// Record stores eventID and reports false when it was already present.
func (r *Repository) Record(ctx context.Context, eventID string, eventType string) (bool, error) {
	_, err := r.db.Exec(ctx, `
		INSERT INTO inbox_events (event_id, event_type)
		VALUES ($1, $2)
	`, eventID, eventType)
	if err == nil {
		return true, nil
	}
	if db.IsConstraintViolation(err, "") {
		return false, nil
	}
	return false, fmt.Errorf("inbox: record: %w", err)
}

// AlreadyProcessed checks if we've seen this provider event id.
func (r *Repository) AlreadyProcessed(ctx context.Context, provider, eventID string) (bool, error) {
	var exists int
	err := r.db.QueryRow(ctx, `SELECT 1 FROM processed_events WHERE provider = $1 AND event_id = $2`, provider, eventID).Scan(&exists)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("inbox: check processed: %w", err)
	}
	return true, nil
}

// MarkProcessed inserts an event id for the provider, returning false if it already exists.
func (r *Repository) MarkProcessed(ctx context.Context, provider, eventID string) (bool, error) {
	ct, err := r.db.Exec(ctx, `
		INSERT INTO processed_events (provider, event_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, provider, eventID)
	if err != nil {
		return false, fmt.Errorf("inbox: mark processed: %w", err)
	}
	return ct.RowsAffected() > 0, nil
}

// Memory is the in-process counterpart of Repository.
type Memory struct {
	mu        sync.Mutex
	inbox     map[string]string
	processed map[string]struct{}
}

func NewMemory() *Memory {
	return &Memory{inbox: map[string]string{}, processed: map[string]struct{}{}}
}

func (m *Memory) Seen(_ context.Context, eventID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.inbox[eventID]
	return ok, nil
}

func (m *Memory) Record(_ context.Context, eventID, eventType string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.inbox[eventID]; ok {
		return false, nil
	}
	m.inbox[eventID] = eventType
	return true, nil
}

func (m *Memory) AlreadyProcessed(_ context.Context, provider, eventID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.processed[provider+"/"+eventID]
	return ok, nil
}

func (m *Memory) MarkProcessed(_ context.Context, provider, eventID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := provider + "/" + eventID
	if _, ok := m.processed[key]; ok {
		return false, nil
	}
	m.processed[key] = struct{}{}
	return true, nil
}
