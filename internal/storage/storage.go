// internal/storage/storage.go
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"gainslog/internal/models"
)

// FoodLogsKey is the key the serialized entry list is stored under.
const FoodLogsKey = "food_logs"

var (
	// ErrNotFound is returned by Replace when no entry has the given id.
	ErrNotFound = errors.New("food log entry not found")
)

// Storage persists the ordered entry list. Implementations do not need to be
// safe for concurrent writers; LogStateStore serializes its writes.
type Storage interface {
	GetAll(ctx context.Context) ([]models.FoodLogEntry, error)
	// SaveOrReplace replaces an entry with the same id in place, otherwise
	// prepends it.
	SaveOrReplace(ctx context.Context, entry models.FoodLogEntry) error
	// Replace overwrites an existing entry and fails with ErrNotFound otherwise.
	Replace(ctx context.Context, entry models.FoodLogEntry) error
	// DeleteByID removes an entry. Deleting a missing id is not an error.
	DeleteByID(ctx context.Context, id string) error
	Close() error
}

// blobBackend reads and writes the raw serialized list.
type blobBackend interface {
	readBlob(ctx context.Context, key string) (string, bool, error)
	writeBlob(ctx context.Context, key, value string) error
}

// listStore implements Storage on top of a single-blob backend by
// reading, modifying and writing back the full list.
type listStore struct {
	backend blobBackend
}

func (s listStore) GetAll(ctx context.Context) ([]models.FoodLogEntry, error) {
	raw, ok, err := s.backend.readBlob(ctx, FoodLogsKey)
	if err != nil {
		return nil, fmt.Errorf("failed to read food logs: %w", err)
	}
	if !ok || raw == "" {
		return []models.FoodLogEntry{}, nil
	}
	return decodeList(raw)
}

func (s listStore) SaveOrReplace(ctx context.Context, entry models.FoodLogEntry) error {
	entries, err := s.GetAll(ctx)
	if err != nil {
		return err
	}
	return s.write(ctx, saveOrReplace(entries, entry))
}

func (s listStore) Replace(ctx context.Context, entry models.FoodLogEntry) error {
	entries, err := s.GetAll(ctx)
	if err != nil {
		return err
	}
	idx := indexOf(entries, entry.ID)
	if idx < 0 {
		return fmt.Errorf("replace %s: %w", entry.ID, ErrNotFound)
	}
	entries[idx] = entry
	return s.write(ctx, entries)
}

func (s listStore) DeleteByID(ctx context.Context, id string) error {
	entries, err := s.GetAll(ctx)
	if err != nil {
		return err
	}
	idx := indexOf(entries, id)
	if idx < 0 {
		return nil
	}
	entries = append(entries[:idx], entries[idx+1:]...)
	return s.write(ctx, entries)
}

func (s listStore) write(ctx context.Context, entries []models.FoodLogEntry) error {
	raw, err := encodeList(entries)
	if err != nil {
		return err
	}
	if err := s.backend.writeBlob(ctx, FoodLogsKey, raw); err != nil {
		return fmt.Errorf("failed to write food logs: %w", err)
	}
	return nil
}

func saveOrReplace(entries []models.FoodLogEntry, entry models.FoodLogEntry) []models.FoodLogEntry {
	if idx := indexOf(entries, entry.ID); idx >= 0 {
		entries[idx] = entry
		return entries
	}
	return append([]models.FoodLogEntry{entry}, entries...)
}

func indexOf(entries []models.FoodLogEntry, id string) int {
	for i := range entries {
		if entries[i].ID == id {
			return i
		}
	}
	return -1
}

func encodeList(entries []models.FoodLogEntry) (string, error) {
	if entries == nil {
		entries = []models.FoodLogEntry{}
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return "", fmt.Errorf("failed to marshal food logs: %w", err)
	}
	return string(data), nil
}

// decodeList also collapses duplicate ids written by older versions, keeping
// the first (newest) occurrence.
func decodeList(raw string) ([]models.FoodLogEntry, error) {
	var entries []models.FoodLogEntry
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return nil, fmt.Errorf("failed to unmarshal food logs: %w", err)
	}
	seen := make(map[string]bool, len(entries))
	out := entries[:0]
	for _, e := range entries {
		if seen[e.ID] {
			continue
		}
		seen[e.ID] = true
		out = append(out, e)
	}
	return out, nil
}
