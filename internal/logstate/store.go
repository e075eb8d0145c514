// Package logstate holds the in-memory, ordered food log and keeps it in step
// with persistent storage.
//
// All mutation goes through the store's primitives. The optimistic ones
// (UpsertInState, PatchInState, RemoveFromState) only touch memory; the
// persisted ones (CreatePersisted, UpdatePersisted, DeletePersisted) write to
// storage first and only then update memory, so memory never runs ahead of
// what was durably saved.
//
// A persisted delete is terminal for its id: the id is tombstoned and every
// later upsert or create for it is dropped. Together with PatchInState never
// inserting, this keeps a slow estimation that finishes after a delete from
// bringing the entry back.
package logstate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"gainslog/internal/metrics"
	"gainslog/internal/models"
	"gainslog/internal/storage"
)

// ErrDeleted is returned when persisting an entry whose id was deleted earlier
// in this process.
var ErrDeleted = errors.New("food log entry was deleted")

// Store owns the shared food log collection, newest first.
type Store struct {
	storage storage.Storage
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu      sync.RWMutex
	entries []models.FoodLogEntry
	deleted map[string]struct{}

	// persistMu serializes storage read-modify-write cycles.
	persistMu sync.Mutex
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithMetrics records every mutation in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Store) {
		s.metrics = m
	}
}

func New(st storage.Storage, opts ...Option) *Store {
	s := &Store{
		storage: st,
		logger:  slog.Default(),
		deleted: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load replaces the in-memory collection with the contents of storage.
func (s *Store) Load(ctx context.Context) error {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	entries, err := s.storage.GetAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to load food logs: %w", err)
	}

	s.mu.Lock()
	s.entries = entries
	s.mu.Unlock()

	s.logger.Debug("Loaded food logs", "count", len(entries))
	return nil
}

// UpsertInState replaces the entry with the same id at its position, or
// inserts it at the head. Deleted ids are ignored.
func (s *Store) UpsertInState(entry models.FoodLogEntry) bool {
	s.mu.Lock()
	applied := s.upsertLocked(entry)
	s.mu.Unlock()

	s.metrics.StoreMutation("upsert", applied)
	return applied
}

// PatchInState replaces an existing entry and never inserts. It reports
// whether an entry was replaced.
func (s *Store) PatchInState(entry models.FoodLogEntry) bool {
	s.mu.Lock()
	applied := s.patchLocked(entry)
	s.mu.Unlock()

	s.metrics.StoreMutation("patch", applied)
	if !applied {
		s.logger.Debug("Dropped patch for missing entry", "id", entry.ID)
	}
	return applied
}

// RemoveFromState drops the entry with id; absent ids are a no-op.
func (s *Store) RemoveFromState(id string) {
	s.mu.Lock()
	applied := s.removeLocked(id)
	s.mu.Unlock()

	s.metrics.StoreMutation("remove", applied)
}

// CreatePersisted saves entry and then upserts it. If the save fails the
// in-memory collection is left as it was.
func (s *Store) CreatePersisted(ctx context.Context, entry models.FoodLogEntry) error {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	if s.isDeleted(entry.ID) {
		s.metrics.StoreMutation("create", false)
		return fmt.Errorf("create %s: %w", entry.ID, ErrDeleted)
	}

	entry.NeedsAIEstimation = false
	if err := s.storage.SaveOrReplace(ctx, entry); err != nil {
		s.metrics.StoreMutation("create", false)
		return fmt.Errorf("failed to save food log %s: %w", entry.ID, err)
	}

	s.mu.Lock()
	applied := s.upsertLocked(entry)
	s.mu.Unlock()

	s.metrics.StoreMutation("create", applied)
	return nil
}

// UpdatePersisted replaces entry in storage and then patches it in memory.
func (s *Store) UpdatePersisted(ctx context.Context, entry models.FoodLogEntry) error {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	if s.isDeleted(entry.ID) {
		s.metrics.StoreMutation("update", false)
		return fmt.Errorf("update %s: %w", entry.ID, ErrDeleted)
	}

	entry.NeedsAIEstimation = false
	if err := s.storage.Replace(ctx, entry); err != nil {
		s.metrics.StoreMutation("update", false)
		return fmt.Errorf("failed to update food log %s: %w", entry.ID, err)
	}

	s.mu.Lock()
	applied := s.patchLocked(entry)
	s.mu.Unlock()

	s.metrics.StoreMutation("update", applied)
	return nil
}

// DeletePersisted deletes id from storage, then tombstones and removes it from
// memory. On storage failure the entry stays visible.
func (s *Store) DeletePersisted(ctx context.Context, id string) error {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	if err := s.storage.DeleteByID(ctx, id); err != nil {
		s.metrics.StoreMutation("delete", false)
		return fmt.Errorf("failed to delete food log %s: %w", id, err)
	}

	s.mu.Lock()
	s.deleted[id] = struct{}{}
	s.removeLocked(id)
	s.mu.Unlock()

	s.metrics.StoreMutation("delete", true)
	return nil
}

// Entries returns a copy of the collection, newest first.
func (s *Store) Entries() []models.FoodLogEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.FoodLogEntry, len(s.entries))
	copy(out, s.entries)
	return out
}

// EntriesForDate returns the entries attributed to date, newest first.
func (s *Store) EntriesForDate(date string) []models.FoodLogEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []models.FoodLogEntry{}
	for _, e := range s.entries {
		if e.Date == date {
			out = append(out, e)
		}
	}
	return out
}

// Get returns the entry with id.
func (s *Store) Get(id string) (models.FoodLogEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if idx := s.indexLocked(id); idx >= 0 {
		return s.entries[idx], true
	}
	return models.FoodLogEntry{}, false
}

// DailyTotals sums every entry attributed to date. Skeletons contribute the
// values known so far and are counted in Estimating.
func (s *Store) DailyTotals(date string) models.DailyTotals {
	totals := models.DailyTotals{Date: date}
	for _, e := range s.EntriesForDate(date) {
		totals.Entries++
		if e.IsEstimating() {
			totals.Estimating++
		}
		totals.Totals.Calories += e.Calories
		totals.Totals.Protein += e.Protein
		totals.Totals.Carbs += e.Carbs
		totals.Totals.Fat += e.Fat
	}
	return totals
}

func (s *Store) isDeleted(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.deleted[id]
	return ok
}

func (s *Store) indexLocked(id string) int {
	for i := range s.entries {
		if s.entries[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) upsertLocked(entry models.FoodLogEntry) bool {
	if _, gone := s.deleted[entry.ID]; gone {
		return false
	}
	if idx := s.indexLocked(entry.ID); idx >= 0 {
		s.entries[idx] = entry
		return true
	}
	s.entries = append([]models.FoodLogEntry{entry}, s.entries...)
	return true
}

func (s *Store) patchLocked(entry models.FoodLogEntry) bool {
	idx := s.indexLocked(entry.ID)
	if idx < 0 {
		return false
	}
	s.entries[idx] = entry
	return true
}

func (s *Store) removeLocked(id string) bool {
	idx := s.indexLocked(id)
	if idx < 0 {
		return false
	}
	s.entries = append(s.entries[:idx:idx], s.entries[idx+1:]...)
	return true
}
