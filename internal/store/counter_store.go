package store

import (
	"database/sql"
	"errors"
	"fmt"
)

// CounterStore persists id-generation counters in the id_counters table.
// It satisfies ident.CounterStore.
type CounterStore struct {
	db *DB
}

// NewCounterStore creates a counter store using the given database.
func NewCounterStore(db *DB) *CounterStore {
	return &CounterStore{db: db}
}

// LoadCounter returns the next value for the named counter, 0 if unset.
func (s *CounterStore) LoadCounter(name string) (int, error) {
	var next int
	err := s.db.sql.QueryRow(`SELECT next FROM id_counters WHERE name = ?`, name).Scan(&next)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("loading counter %s: %w", name, err)
	}
	return next, nil
}

// SaveCounter records the next value for the named counter.
func (s *CounterStore) SaveCounter(name string, next int) error {
	_, err := s.db.sql.Exec(`
		INSERT INTO id_counters (name, next) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET next = excluded.next`, name, next)
	if err != nil {
		return fmt.Errorf("saving counter %s: %w", name, err)
	}
	return nil
}
