// Package dashboard computes the metrics snapshot behind the admin
// dashboard: headline KPIs and the chart breakdowns, all pure
// reductions over a position snapshot.
package dashboard

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hawkfin/hawkd/internal/domain"
	"github.com/hawkfin/hawkd/internal/logging"
)

// OthersLabel is the aggregate bucket appended after the Top-N entity
// slices. The bucket carries the remainder, so the breakdown total
// always equals the snapshot total.
const OthersLabel = "Others"

// acceptedDQ are data-quality statuses that do not raise a risk alert.
var acceptedDQ = map[string]bool{
	"ok":     true,
	"normal": true,
	"good":   true,
}

// AmountKPI is a headline value with its change versus the previous
// calendar month.
type AmountKPI struct {
	Value decimal.Decimal `json:"value"`
	Delta decimal.Decimal `json:"delta"`
}

// CountKPI is a headline count with its change versus the previous
// calendar month.
type CountKPI struct {
	Value int `json:"value"`
	Delta int `json:"delta"`
}

// RatioKPI is hedge effectiveness in percent for the latest calendar
// month, with the previous month retained for the delta.
type RatioKPI struct {
	Value    decimal.Decimal `json:"value"`
	Previous decimal.Decimal `json:"previous"`
	Delta    decimal.Decimal `json:"delta"`
}

// CategoryAmount is one slice of a categorical amount breakdown.
type CategoryAmount struct {
	Label  string          `json:"label"`
	Amount decimal.Decimal `json:"amount"`
}

// CategoryCount is one slice of a categorical count breakdown.
type CategoryCount struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// DailyPoint is one day of the position/NAV time series.
type DailyPoint struct {
	Date     string          `json:"date"` // YYYY-MM-DD
	Position decimal.Decimal `json:"position"`
	NAV      decimal.Decimal `json:"nav"`
}

// DailyRatio is one day of the hedge-coverage-ratio series, in percent.
type DailyRatio struct {
	Date  string          `json:"date"`
	Ratio decimal.Decimal `json:"ratio"`
}

// Metrics is one full dashboard snapshot.
type Metrics struct {
	GeneratedAt    time.Time `json:"generatedAt"`
	CurrencyFilter string    `json:"currencyFilter,omitempty"`
	Rows           int       `json:"rows"`

	TotalHedged        AmountKPI `json:"totalHedged"`
	ActiveEntities     CountKPI  `json:"activeEntities"`
	RiskAlerts         CountKPI  `json:"riskAlerts"`
	HedgeEffectiveness RatioKPI  `json:"hedgeEffectiveness"`

	ByCurrency         []CategoryAmount `json:"byCurrency"`
	DailyPosition      []CategoryAmount `json:"dailyPosition"`
	DailyNAV           []DailyPoint     `json:"dailyNav"`
	TopEntities        []CategoryAmount `json:"topEntities"`
	DailyCoverage      []DailyRatio     `json:"dailyCoverage"`
	StatusDistribution []CategoryCount  `json:"statusDistribution"`
}

// Aggregator reduces position snapshots into Metrics. Stateless apart
// from configuration; every call is a full recompute.
type Aggregator struct {
	topN int
	log  *logging.Logger
}

// NewAggregator creates an aggregator keeping topN entity slices before
// the "Others" bucket.
func NewAggregator(topN int, log *logging.Logger) *Aggregator {
	if topN < 1 {
		topN = 10
	}
	return &Aggregator{topN: topN, log: log.Sub("dashboard")}
}

// Compute reduces one snapshot into a metrics snapshot. rows are
// assumed already currency-filtered by the caller; currencyFilter is
// echoed back for display.
func (a *Aggregator) Compute(rows []domain.Position, currencyFilter string) *Metrics {
	m := &Metrics{
		GeneratedAt:    time.Now().UTC(),
		CurrencyFilter: currencyFilter,
		Rows:           len(rows),
	}

	latest, previous := splitByMonth(rows)

	m.TotalHedged = AmountKPI{
		Value: sumPositions(rows),
		Delta: sumPositions(latest).Sub(sumPositions(previous)),
	}
	m.ActiveEntities = CountKPI{
		Value: distinctEntities(rows),
		Delta: distinctEntities(latest) - distinctEntities(previous),
	}
	m.RiskAlerts = CountKPI{
		Value: riskAlerts(rows),
		Delta: riskAlerts(latest) - riskAlerts(previous),
	}

	cur := effectiveness(latest)
	prev := effectiveness(previous)
	m.HedgeEffectiveness = RatioKPI{Value: cur, Previous: prev, Delta: cur.Sub(prev)}

	m.ByCurrency = a.amountBreakdown(rows, func(p domain.Position) string { return p.CurrencyCode })
	m.DailyPosition = dailyAmounts(rows)
	m.DailyNAV = dailyPoints(rows)
	m.TopEntities = a.amountBreakdown(rows, func(p domain.Position) string { return p.EntityID })
	m.DailyCoverage = dailyCoverage(rows)
	m.StatusDistribution = statusDistribution(rows)

	a.log.Debug().
		Int("rows", len(rows)).
		Str("totalHedged", m.TotalHedged.Value.String()).
		Int("riskAlerts", m.RiskAlerts.Value).
		Msg("metrics recomputed")
	return m
}

func sumPositions(rows []domain.Position) decimal.Decimal {
	total := decimal.Zero
	for _, p := range rows {
		total = total.Add(p.PositionAmount)
	}
	return total
}

func distinctEntities(rows []domain.Position) int {
	seen := make(map[string]bool)
	for _, p := range rows {
		if p.EntityID != "" {
			seen[p.EntityID] = true
		}
	}
	return len(seen)
}

func riskAlerts(rows []domain.Position) int {
	n := 0
	for _, p := range rows {
		dq := strings.ToLower(strings.TrimSpace(p.DQStatus))
		if dq != "" && !acceptedDQ[dq] {
			n++
		}
	}
	return n
}

// effectiveness is 100 * sum(position) / sum(NAV) over rows, zero when
// NAV sums to zero.
func effectiveness(rows []domain.Position) decimal.Decimal {
	pos, nav := decimal.Zero, decimal.Zero
	for _, p := range rows {
		pos = pos.Add(p.PositionAmount)
		nav = nav.Add(p.NAVAmount)
	}
	if nav.IsZero() {
		return decimal.Zero
	}
	return pos.Div(nav).Mul(decimal.NewFromInt(100)).Round(2)
}

// splitByMonth partitions rows into the latest calendar month present
// in the snapshot and the month immediately before it. Rows from older
// months fall into neither bucket.
func splitByMonth(rows []domain.Position) (latest, previous []domain.Position) {
	var max time.Time
	for _, p := range rows {
		if p.AsOfDate.After(max) {
			max = p.AsOfDate
		}
	}
	if max.IsZero() {
		return nil, nil
	}

	firstOfMonth := time.Date(max.Year(), max.Month(), 1, 0, 0, 0, 0, max.Location())
	latestKey := max.Format("2006-01")
	previousKey := firstOfMonth.AddDate(0, 0, -1).Format("2006-01")
	for _, p := range rows {
		switch p.AsOfDate.Format("2006-01") {
		case latestKey:
			latest = append(latest, p)
		case previousKey:
			previous = append(previous, p)
		}
	}
	return latest, previous
}

// amountBreakdown sums position amounts by key, sorts descending and
// folds everything past topN into the total-preserving "Others" bucket.
func (a *Aggregator) amountBreakdown(rows []domain.Position, key func(domain.Position) string) []CategoryAmount {
	sums := make(map[string]decimal.Decimal)
	for _, p := range rows {
		k := key(p)
		if k == "" {
			k = OthersLabel
		}
		sums[k] = sums[k].Add(p.PositionAmount)
	}

	out := make([]CategoryAmount, 0, len(sums))
	for label, amount := range sums {
		out = append(out, CategoryAmount{Label: label, Amount: amount})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Amount.Equal(out[j].Amount) {
			return out[i].Amount.GreaterThan(out[j].Amount)
		}
		return out[i].Label < out[j].Label
	})

	if len(out) <= a.topN {
		return out
	}
	others := decimal.Zero
	for _, c := range out[a.topN:] {
		others = others.Add(c.Amount)
	}
	return append(out[:a.topN:a.topN], CategoryAmount{Label: OthersLabel, Amount: others})
}

func dailyAmounts(rows []domain.Position) []CategoryAmount {
	sums := make(map[string]decimal.Decimal)
	for _, p := range rows {
		day := p.AsOfDate.Format("2006-01-02")
		sums[day] = sums[day].Add(p.PositionAmount)
	}
	out := make([]CategoryAmount, 0, len(sums))
	for day, amount := range sums {
		out = append(out, CategoryAmount{Label: day, Amount: amount})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Label < out[j].Label })
	return out
}

func dailyPoints(rows []domain.Position) []DailyPoint {
	type acc struct{ pos, nav decimal.Decimal }
	sums := make(map[string]*acc)
	for _, p := range rows {
		day := p.AsOfDate.Format("2006-01-02")
		a, ok := sums[day]
		if !ok {
			a = &acc{}
			sums[day] = a
		}
		a.pos = a.pos.Add(p.PositionAmount)
		a.nav = a.nav.Add(p.NAVAmount)
	}
	out := make([]DailyPoint, 0, len(sums))
	for day, a := range sums {
		out = append(out, DailyPoint{Date: day, Position: a.pos, NAV: a.nav})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}

func dailyCoverage(rows []domain.Position) []DailyRatio {
	points := dailyPoints(rows)
	out := make([]DailyRatio, 0, len(points))
	for _, p := range points {
		ratio := decimal.Zero
		if !p.NAV.IsZero() {
			ratio = p.Position.Div(p.NAV).Mul(decimal.NewFromInt(100)).Round(2)
		}
		out = append(out, DailyRatio{Date: p.Date, Ratio: ratio})
	}
	return out
}

func statusDistribution(rows []domain.Position) []CategoryCount {
	counts := make(map[string]int)
	for _, p := range rows {
		dq := strings.ToLower(strings.TrimSpace(p.DQStatus))
		if dq == "" {
			dq = "unknown"
		}
		counts[dq]++
	}
	out := make([]CategoryCount, 0, len(counts))
	for label, n := range counts {
		out = append(out, CategoryCount{Label: label, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Label < out[j].Label
	})
	return out
}
