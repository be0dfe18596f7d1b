package agent

import "github.com/hawkfin/hawkd/internal/domain"

// SessionStore is the persistence boundary for agent sessions.
//
// Create and Update are best-effort: implementations log failures and
// never return them, so a degraded store cannot abort an in-flight chat
// request. List and Get fail loudly because statistics computed from a
// partial read would be silently wrong.
type SessionStore interface {
	Create(promptText, messageUID, instructionID, userID string,
		sessionType domain.SessionType, templateCategory string, templateIndex int) *domain.Session
	Update(messageUID string, patch domain.SessionPatch)
	Get(messageUID string) (*domain.Session, error)
	List() ([]domain.Session, error)
}
