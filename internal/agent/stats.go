package agent

import (
	"fmt"
	"math"
	"sort"

	"github.com/hawkfin/hawkd/internal/domain"
)

// sessionSucceeded applies the override rule: an explicit human
// completion_status beats the automatic status; absent an override, the
// system status decides.
func sessionSucceeded(s domain.Session) bool {
	if s.Metadata.CompletionStatus != "" {
		return s.Metadata.CompletionStatus == domain.CompletionComplete
	}
	return s.Status == domain.StatusCompleted
}

// SuccessRate computes the percent success rate over sessions matching
// one template category and 1-based index, rounded to nearest. The
// second return is false when no session matches.
func SuccessRate(sessions []domain.Session, category string, index int) (int, bool) {
	total, succeeded := 0, 0
	for _, s := range sessions {
		if s.TemplateCategory != category || s.TemplateIndex != index {
			continue
		}
		total++
		if sessionSucceeded(s) {
			succeeded++
		}
	}
	if total == 0 {
		return 0, false
	}
	return int(math.Round(100 * float64(succeeded) / float64(total))), true
}

// StatsService derives success-rate statistics by scanning the full
// session list on demand. No incremental counters: the scan is cheap at
// admin-dashboard scale and cannot drift.
type StatsService struct {
	sessions SessionStore
}

// NewStatsService creates a stats service over the given session store.
func NewStatsService(sessions SessionStore) *StatsService {
	return &StatsService{sessions: sessions}
}

// TemplateStats returns the success-rate view for one template slot.
// A store read failure propagates: statistics are then "unknown", never
// zero.
func (s *StatsService) TemplateStats(category string, index int) (*domain.TemplateStats, error) {
	sessions, err := s.sessions.List()
	if err != nil {
		return nil, fmt.Errorf("computing template stats: %w", err)
	}

	stats := &domain.TemplateStats{TemplateCategory: category, TemplateIndex: index}
	for _, sess := range sessions {
		if sess.TemplateCategory != category || sess.TemplateIndex != index {
			continue
		}
		stats.Sessions++
		if sessionSucceeded(sess) {
			stats.Succeeded++
		}
	}
	if stats.Sessions > 0 {
		stats.SuccessRate = int(math.Round(100 * float64(stats.Succeeded) / float64(stats.Sessions)))
	}
	return stats, nil
}

// AllStats returns one entry per (category, index) pair seen in the
// session list, ordered by category then index.
func (s *StatsService) AllStats() ([]domain.TemplateStats, error) {
	sessions, err := s.sessions.List()
	if err != nil {
		return nil, fmt.Errorf("computing template stats: %w", err)
	}

	type slot struct {
		category string
		index    int
	}
	grouped := make(map[slot]*domain.TemplateStats)
	for _, sess := range sessions {
		if sess.TemplateCategory == "" || sess.TemplateIndex == 0 {
			continue
		}
		k := slot{sess.TemplateCategory, sess.TemplateIndex}
		st, ok := grouped[k]
		if !ok {
			st = &domain.TemplateStats{TemplateCategory: k.category, TemplateIndex: k.index}
			grouped[k] = st
		}
		st.Sessions++
		if sessionSucceeded(sess) {
			st.Succeeded++
		}
	}

	out := make([]domain.TemplateStats, 0, len(grouped))
	for _, st := range grouped {
		st.SuccessRate = int(math.Round(100 * float64(st.Succeeded) / float64(st.Sessions)))
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TemplateCategory != out[j].TemplateCategory {
			return out[i].TemplateCategory < out[j].TemplateCategory
		}
		return out[i].TemplateIndex < out[j].TemplateIndex
	})
	return out, nil
}
