// Package history keeps the append-only log of predictions per user.
package history

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Brownie44l1/xray-api/internal/model"
)

const TypeChestXRay = "Chest X-Ray Detection"

var ErrNotFound = errors.New("no history for user")

type Record struct {
	ID             string      `json:"id"`
	Type           string      `json:"type"`
	Timestamp      time.Time   `json:"datetime"`
	PredictedClass model.Label `json:"predicted_class"`
	ImageURL       string      `json:"detection_img"`
}

// Store appends records and lists them back in insertion order. List
// returns ErrNotFound for a user with no records.
type Store interface {
	Append(ctx context.Context, userID string, rec Record) error
	List(ctx context.Context, userID string) ([]Record, error)
}

// MemoryStore keeps history in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string][]Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string][]Record)}
}

func (m *MemoryStore) Append(_ context.Context, userID string, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[userID] = append(m.records[userID], rec)
	return nil
}

func (m *MemoryStore) List(_ context.Context, userID string) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	recs := m.records[userID]
	if len(recs) == 0 {
		return nil, ErrNotFound
	}
	return append([]Record(nil), recs...), nil
}
