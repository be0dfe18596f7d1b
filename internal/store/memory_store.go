package store

import (
	"fmt"
	"sync"
	"time"

	"github.com/hawkfin/hawkd/internal/domain"
	"github.com/hawkfin/hawkd/internal/logging"
)

// MemorySessionStore is an in-memory session store with the same
// best-effort semantics as the SQLite one. Used in tests and as a
// degraded-mode fallback when the database cannot be opened.
type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*domain.Session
	order    []string // message_uids in insertion order
	notify   *Notifier
	log      *logging.Logger

	// FailWrites/FailReads simulate an unavailable backend.
	FailWrites bool
	FailReads  bool
}

// NewMemorySessionStore creates an empty in-memory session store.
func NewMemorySessionStore(log *logging.Logger) *MemorySessionStore {
	return &MemorySessionStore{
		sessions: make(map[string]*domain.Session),
		notify:   NewNotifier(),
		log:      log.Sub("memstore"),
	}
}

// Notifier returns the change-notification registry for this store.
func (s *MemorySessionStore) Notifier() *Notifier { return s.notify }

// Create inserts a pending session. Best-effort like the SQLite store.
func (s *MemorySessionStore) Create(promptText, messageUID, instructionID, userID string,
	sessionType domain.SessionType, templateCategory string, templateIndex int) *domain.Session {

	now := time.Now().UTC()
	sess := &domain.Session{
		MessageUID:       messageUID,
		InstructionID:    instructionID,
		UserID:           userID,
		SessionType:      sessionType,
		Status:           domain.StatusPending,
		TemplateCategory: templateCategory,
		TemplateIndex:    templateIndex,
		Metadata:         domain.SessionMetadata{PromptText: promptText},
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	s.mu.Lock()
	if s.FailWrites {
		s.mu.Unlock()
		s.log.Warn().Str("messageUid", messageUID).Msg("session insert failed, continuing with local record")
		return sess
	}
	copied := *sess
	s.sessions[messageUID] = &copied
	s.order = append(s.order, messageUID)
	s.mu.Unlock()

	s.notify.Publish(ChangeEvent{Table: TableSessions, Op: OpInsert, Key: messageUID})
	return sess
}

// Update applies a partial update keyed by message_uid. Best-effort.
func (s *MemorySessionStore) Update(messageUID string, patch domain.SessionPatch) {
	s.mu.Lock()
	if s.FailWrites {
		s.mu.Unlock()
		s.log.Warn().Str("messageUid", messageUID).Msg("session update failed")
		return
	}
	sess, ok := s.sessions[messageUID]
	if !ok {
		s.mu.Unlock()
		s.log.Warn().Str("messageUid", messageUID).Msg("session update skipped, unknown id")
		return
	}
	applyPatch(sess, patch, s.log)
	sess.UpdatedAt = time.Now().UTC()
	s.mu.Unlock()

	s.notify.Publish(ChangeEvent{Table: TableSessions, Op: OpUpdate, Key: messageUID})
}

// Get returns one session by message_uid.
func (s *MemorySessionStore) Get(messageUID string) (*domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.FailReads {
		return nil, fmt.Errorf("session store unavailable")
	}
	sess, ok := s.sessions[messageUID]
	if !ok {
		return nil, fmt.Errorf("session %s not found", messageUID)
	}
	copied := *sess
	return &copied, nil
}

// List returns all sessions ordered by creation time descending.
// Read errors propagate, mirroring the SQLite store contract.
func (s *MemorySessionStore) List() ([]domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.FailReads {
		return nil, fmt.Errorf("session store unavailable")
	}

	// Reverse insertion order: newest first, stable within equal
	// timestamps.
	out := make([]domain.Session, 0, len(s.order))
	for i := len(s.order) - 1; i >= 0; i-- {
		out = append(out, *s.sessions[s.order[i]])
	}
	return out, nil
}
