package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hawkfin/hawkd/internal/domain"
	"github.com/hawkfin/hawkd/internal/logging"
)

// SessionStore persists agent sessions in the hawk_agent_sessions table.
//
// Writes are best-effort: a persistence failure is logged and swallowed
// so it can never abort an in-flight chat request. Reads fail loudly —
// stale statistics are a correctness issue, not an availability one.
type SessionStore struct {
	db  *DB
	log *logging.Logger
}

// NewSessionStore creates a session store using the given database.
func NewSessionStore(db *DB) *SessionStore {
	return &SessionStore{db: db, log: db.log.Sub("sessions")}
}

// Create inserts a pending session row. On store failure it logs a
// warning and returns a locally constructed Session so the caller can
// proceed optimistically.
func (s *SessionStore) Create(promptText, messageUID, instructionID, userID string,
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

	meta, _ := json.Marshal(sess.Metadata)
	_, err := s.db.sql.Exec(
		`INSERT INTO hawk_agent_sessions
		 (message_uid, instruction_id, user_id, session_type, status,
		  template_category, template_idx, metadata, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		messageUID, instructionID, userID, string(sessionType), string(domain.StatusPending),
		nullStr(templateCategory), nullInt(templateIndex), string(meta),
		now.Format(time.DateTime), now.Format(time.DateTime),
	)
	if err != nil {
		s.log.Warn().Err(err).Str("messageUid", messageUID).Msg("session insert failed, continuing with local record")
		return sess
	}

	s.db.notify.Publish(ChangeEvent{Table: TableSessions, Op: OpInsert, Key: messageUID})
	return sess
}

// Update applies a partial update keyed by message_uid. Best-effort:
// failures are logged, never returned. A terminal session only ever
// accepts completion_status and rating changes; status never reverts.
func (s *SessionStore) Update(messageUID string, patch domain.SessionPatch) {
	sess, err := s.Get(messageUID)
	if err != nil {
		s.log.Warn().Err(err).Str("messageUid", messageUID).Msg("session update skipped")
		return
	}

	applyPatch(sess, patch, s.log)

	meta, _ := json.Marshal(sess.Metadata)
	var in, out, total any
	if sess.TokenUsage != nil {
		in, out, total = sess.TokenUsage.InputTokens, sess.TokenUsage.OutputTokens, sess.TokenUsage.TotalTokens
	}

	_, err = s.db.sql.Exec(
		`UPDATE hawk_agent_sessions
		 SET status = ?, response_text = ?, input_tokens = ?, output_tokens = ?,
		     total_tokens = ?, metadata = ?, updated_at = ?
		 WHERE message_uid = ?`,
		string(sess.Status), sess.ResponseText, in, out, total, string(meta),
		time.Now().UTC().Format(time.DateTime), messageUID,
	)
	if err != nil {
		s.log.Warn().Err(err).Str("messageUid", messageUID).Msg("session update failed")
		return
	}

	s.db.notify.Publish(ChangeEvent{Table: TableSessions, Op: OpUpdate, Key: messageUID})
}

// Get returns one session by message_uid.
func (s *SessionStore) Get(messageUID string) (*domain.Session, error) {
	row := s.db.sql.QueryRow(
		selectSessionSQL+` WHERE message_uid = ?`, messageUID,
	)
	sess, err := scanSession(row)
	if err != nil {
		return nil, fmt.Errorf("loading session %s: %w", messageUID, err)
	}
	return sess, nil
}

// List returns a full session snapshot ordered by creation time
// descending. Unlike writes, list errors propagate: callers computing
// statistics must treat a failed read as "unknown", not zero.
func (s *SessionStore) List() ([]domain.Session, error) {
	rows, err := s.db.sql.Query(selectSessionSQL + ` ORDER BY created_at DESC, rowid DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer rows.Close()

	var sessions []domain.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		sessions = append(sessions, *sess)
	}
	return sessions, rows.Err()
}

const selectSessionSQL = `
	SELECT message_uid, instruction_id, user_id, session_type, status,
	       template_category, template_idx, response_text,
	       input_tokens, output_tokens, total_tokens, metadata,
	       created_at, updated_at
	FROM hawk_agent_sessions`

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(r rowScanner) (*domain.Session, error) {
	var sess domain.Session
	var sessionType, status string
	var category sql.NullString
	var index, inTok, outTok, totalTok sql.NullInt64
	var meta sql.NullString
	var createdAt, updatedAt string

	if err := r.Scan(
		&sess.MessageUID, &sess.InstructionID, &sess.UserID, &sessionType, &status,
		&category, &index, &sess.ResponseText,
		&inTok, &outTok, &totalTok, &meta,
		&createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}

	sess.SessionType = domain.SessionType(sessionType)
	sess.Status = domain.SessionStatus(status)
	sess.TemplateCategory = category.String
	sess.TemplateIndex = int(index.Int64)
	if inTok.Valid || outTok.Valid || totalTok.Valid {
		sess.TokenUsage = &domain.TokenUsage{
			InputTokens:  int(inTok.Int64),
			OutputTokens: int(outTok.Int64),
			TotalTokens:  int(totalTok.Int64),
		}
	}
	if meta.Valid && meta.String != "" {
		_ = json.Unmarshal([]byte(meta.String), &sess.Metadata)
	}
	sess.CreatedAt, _ = time.Parse(time.DateTime, createdAt)
	sess.UpdatedAt, _ = time.Parse(time.DateTime, updatedAt)
	return &sess, nil
}

// applyPatch merges patch into sess, enforcing forward-only status
// transitions.
func applyPatch(sess *domain.Session, patch domain.SessionPatch, log *logging.Logger) {
	if patch.Status != nil {
		if sess.Status.Terminal() && !patch.Status.Terminal() {
			log.Warn().
				Str("messageUid", sess.MessageUID).
				Str("from", string(sess.Status)).
				Str("to", string(*patch.Status)).
				Msg("refusing to revert terminal session status")
		} else {
			sess.Status = *patch.Status
		}
	}
	if patch.ResponseText != nil {
		sess.ResponseText = *patch.ResponseText
	}
	if patch.TokenUsage != nil {
		u := *patch.TokenUsage
		sess.TokenUsage = &u
	}
	if patch.ConversationID != nil {
		sess.Metadata.ConversationID = *patch.ConversationID
	}
	if patch.TaskID != nil {
		sess.Metadata.TaskID = *patch.TaskID
	}
	if patch.CompletionStatus != nil {
		sess.Metadata.CompletionStatus = *patch.CompletionStatus
	}
	if patch.Rating != nil {
		sess.Metadata.Rating = *patch.Rating
	}
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullInt(i int) any {
	if i == 0 {
		return nil
	}
	return i
}
