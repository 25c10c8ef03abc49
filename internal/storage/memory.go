package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/agrisense/agripipe/pkg/models"
)

// MemoryHistory is an in-memory HistoryProvider. It backs single-process
// deployments without a database and the test suite.
type MemoryHistory struct {
	mu       sync.RWMutex
	readings map[models.SeriesKey][]models.Reading
}

// NewMemoryHistory creates an empty in-memory history.
func NewMemoryHistory() *MemoryHistory {
	return &MemoryHistory{readings: make(map[models.SeriesKey][]models.Reading)}
}

// Add appends readings to the history.
func (m *MemoryHistory) Add(readings ...models.Reading) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range readings {
		key := r.Series()
		m.readings[key] = append(m.readings[key], r)
	}
}

// Insert appends a processed batch to the history.
func (m *MemoryHistory) Insert(ctx context.Context, batch []models.Reading) error {
	m.Add(batch...)
	return nil
}

// Fetch returns the series readings within [from, to] inclusive, ordered by
// timestamp. An empty result is not an error.
func (m *MemoryHistory) Fetch(ctx context.Context, sensorID string, readingType models.ReadingType, from, to time.Time) ([]models.Reading, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	key := models.SeriesKey{SensorID: sensorID, ReadingType: readingType}
	var out []models.Reading
	for _, r := range m.readings[key] {
		if r.Timestamp.Before(from) || r.Timestamp.After(to) {
			continue
		}
		out = append(out, r)
	}

	sort.Slice(out, func(a, b int) bool { return out[a].Timestamp.Before(out[b].Timestamp) })
	return out, nil
}
