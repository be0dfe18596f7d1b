package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/hawkfin/hawkd/internal/domain"
	"github.com/hawkfin/hawkd/internal/logging"
)

// asOfDateFormat is the storage format for position as-of dates.
const asOfDateFormat = "2006-01-02"

// PositionStore reads position/NAV rows for dashboard aggregation.
// Amounts are stored as decimal strings so no precision is lost on the
// round trip.
type PositionStore struct {
	db  *DB
	log *logging.Logger
}

// NewPositionStore creates a position store using the given database.
func NewPositionStore(db *DB) *PositionStore {
	return &PositionStore{db: db, log: db.log.Sub("positions")}
}

// Snapshot returns all position rows, optionally filtered to one
// currency. The dashboard aggregator consumes this wholesale.
func (s *PositionStore) Snapshot(currencyFilter string) ([]domain.Position, error) {
	query := `SELECT id, entity_id, currency_code, position_amount, nav_amount, as_of_date, dq_status
	          FROM positions`
	var args []any
	if currencyFilter != "" {
		query += ` WHERE currency_code = ?`
		args = append(args, currencyFilter)
	}
	query += ` ORDER BY as_of_date, rowid`

	rows, err := s.db.sql.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("loading position snapshot: %w", err)
	}
	defer rows.Close()

	var positions []domain.Position
	for rows.Next() {
		var p domain.Position
		var entity, dq sql.NullString
		var posAmt, navAmt, asOf string
		if err := rows.Scan(&p.ID, &entity, &p.CurrencyCode, &posAmt, &navAmt, &asOf, &dq); err != nil {
			return nil, fmt.Errorf("scanning position: %w", err)
		}
		p.EntityID = entity.String
		p.DQStatus = dq.String
		if p.PositionAmount, err = decimal.NewFromString(posAmt); err != nil {
			return nil, fmt.Errorf("position amount %q: %w", posAmt, err)
		}
		if p.NAVAmount, err = decimal.NewFromString(navAmt); err != nil {
			return nil, fmt.Errorf("nav amount %q: %w", navAmt, err)
		}
		if p.AsOfDate, err = time.Parse(asOfDateFormat, asOf); err != nil {
			return nil, fmt.Errorf("as-of date %q: %w", asOf, err)
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

// Insert adds one position row and notifies subscribers.
func (s *PositionStore) Insert(p domain.Position) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	_, err := s.db.sql.Exec(`
		INSERT INTO positions (id, entity_id, currency_code, position_amount, nav_amount, as_of_date, dq_status)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.ID, nullStr(p.EntityID), p.CurrencyCode,
		p.PositionAmount.String(), p.NAVAmount.String(),
		p.AsOfDate.Format(asOfDateFormat), nullStr(p.DQStatus))
	if err != nil {
		return fmt.Errorf("inserting position: %w", err)
	}

	s.db.notify.Publish(ChangeEvent{Table: TablePositions, Op: OpInsert, Key: p.ID})
	return nil
}
