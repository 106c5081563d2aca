package database

import (
	"context"
	"sync"
	"time"

	"github.com/ponytojas/airlog/internal/models"
)

// MemoryStore keeps readings in a slice. It is used for dry runs and tests.
type MemoryStore struct {
	mu       sync.Mutex
	clock    Clock
	readings []models.Reading
	failure  error
}

// NewMemoryStore creates an empty store; a nil clock means time.Now
func NewMemoryStore(clock Clock) *MemoryStore {
	if clock == nil {
		clock = time.Now
	}
	return &MemoryStore{clock: clock}
}

// SetFailure makes every following Save fail with err until it is called
// again with nil.
func (s *MemoryStore) SetFailure(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failure = err
}

// Save appends the reading with the next sequential id
func (s *MemoryStore) Save(ctx context.Context, reading models.Reading) (models.Reading, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return models.Reading{}, &StoreError{Op: "insert", Reading: reading, Err: err}
	}
	if s.failure != nil {
		return models.Reading{}, &StoreError{Op: "insert", Reading: reading, Err: s.failure}
	}

	row := models.Reading{
		ID:        uint(len(s.readings) + 1),
		Timestamp: s.clock().Format(models.TimestampFormat),
		CO2:       reading.CO2,
		TVOC:      reading.TVOC,
	}
	s.readings = append(s.readings, row)
	return row, nil
}

// Readings returns a copy of everything saved so far.
func (s *MemoryStore) Readings() []models.Reading {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Reading(nil), s.readings...)
}

// Close is a no-op
func (s *MemoryStore) Close() error {
	return nil
}
