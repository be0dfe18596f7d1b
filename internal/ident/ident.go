// Package ident generates the correlation identifiers embedded in every
// agent submission. Identifiers are sequential and zero-padded
// (MSG_UID_0000, INST0000) with the counters persisted through an
// injectable CounterStore; when persistence is unavailable a
// timestamp+random scheme keeps ids unique in degraded mode.
package ident

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hawkfin/hawkd/internal/logging"
)

// Counter names used with the CounterStore.
const (
	counterMessageUID    = "msg_uid"
	counterInstructionID = "instruction_id"
)

// CounterStore persists monotonically increasing counters.
type CounterStore interface {
	// LoadCounter returns the next value for the named counter, or 0 if
	// the counter has never been saved.
	LoadCounter(name string) (int, error)

	// SaveCounter records the next value for the named counter.
	SaveCounter(name string, next int) error
}

// Generator hands out message_uid / instruction_id pairs. Safe for
// concurrent use; a pair is never reused even under rapid-fire
// submission.
type Generator struct {
	mu     sync.Mutex
	store  CounterStore
	log    *logging.Logger
	loaded bool
	msgSeq int
	insSeq int
}

// NewGenerator creates a Generator backed by the given store.
func NewGenerator(store CounterStore, log *logging.Logger) *Generator {
	return &Generator{store: store, log: log.Sub("ident")}
}

// NextPair returns a fresh (message_uid, instruction_id) pair.
// Both counters advance together so the pair stays aligned.
func (g *Generator) NextPair() (messageUID, instructionID string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.loadLocked() {
		// Counter persistence unavailable: fall back to the
		// timestamp+random scheme so ids stay unique regardless.
		now := time.Now().UnixMilli()
		return fmt.Sprintf("MSG-%d-%s", now, randomBase36(6)),
			fmt.Sprintf("INSTR-%d-%s", now, randomBase36(6))
	}

	messageUID = fmt.Sprintf("MSG_UID_%04d", g.msgSeq)
	instructionID = fmt.Sprintf("INST%04d", g.insSeq)
	g.msgSeq++
	g.insSeq++

	if err := g.store.SaveCounter(counterMessageUID, g.msgSeq); err != nil {
		g.log.Warn().Err(err).Msg("failed to persist msg_uid counter")
	}
	if err := g.store.SaveCounter(counterInstructionID, g.insSeq); err != nil {
		g.log.Warn().Err(err).Msg("failed to persist instruction_id counter")
	}
	return messageUID, instructionID
}

// loadLocked lazily loads persisted counters. Returns false when the
// store cannot be read, which switches the generator to the fallback
// scheme for this call only (a later call may recover).
func (g *Generator) loadLocked() bool {
	if g.loaded {
		return true
	}
	msg, err := g.store.LoadCounter(counterMessageUID)
	if err != nil {
		g.log.Warn().Err(err).Msg("failed to load msg_uid counter")
		return false
	}
	ins, err := g.store.LoadCounter(counterInstructionID)
	if err != nil {
		g.log.Warn().Err(err).Msg("failed to load instruction_id counter")
		return false
	}
	g.msgSeq = msg
	g.insSeq = ins
	g.loaded = true
	return true
}

// randomBase36 returns n base36 characters derived from a random UUID.
func randomBase36(n int) string {
	id := uuid.New()
	v := binary.BigEndian.Uint64(id[:8])
	s := strconv.FormatUint(v, 36)
	for len(s) < n {
		s = "0" + s
	}
	return strings.ToUpper(s[len(s)-n:])
}

// MemCounterStore is an in-memory CounterStore for tests and degraded
// startup.
type MemCounterStore struct {
	mu       sync.Mutex
	counters map[string]int

	// FailLoads/FailSaves force errors, for exercising fallback paths.
	FailLoads bool
	FailSaves bool
}

// NewMemCounterStore creates an empty in-memory counter store.
func NewMemCounterStore() *MemCounterStore {
	return &MemCounterStore{counters: make(map[string]int)}
}

// LoadCounter implements CounterStore.
func (m *MemCounterStore) LoadCounter(name string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailLoads {
		return 0, fmt.Errorf("counter store unavailable")
	}
	return m.counters[name], nil
}

// SaveCounter implements CounterStore.
func (m *MemCounterStore) SaveCounter(name string, next int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailSaves {
		return fmt.Errorf("counter store unavailable")
	}
	m.counters[name] = next
	return nil
}
