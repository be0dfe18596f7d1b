package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Position is one position/NAV row from the hedge book. The dashboard
// aggregator reduces snapshots of these; it never mutates them.
type Position struct {
	ID             string          `json:"id"`
	EntityID       string          `json:"entityId"`
	CurrencyCode   string          `json:"currencyCode"`
	PositionAmount decimal.Decimal `json:"positionAmount"`
	NAVAmount      decimal.Decimal `json:"navAmount"`
	AsOfDate       time.Time       `json:"asOfDate"`
	DQStatus       string          `json:"dqStatus,omitempty"` // data-quality status
}
