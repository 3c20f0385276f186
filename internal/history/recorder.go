// internal/history/recorder.go
package history

import (
	"context"
	"sync"

	"github.com/overlaypush/broadcast-backend/internal/model"
)

// Appender receives one trigger record per completed campaign run. The
// write side of the reporting boundary.
type Appender interface {
	Append(ctx context.Context, rec model.TriggerRecord) error
}

// Reader serves trigger records back out, for the API.
type Reader interface {
	ListByCampaign(ctx context.Context, campaignID string) ([]model.TriggerRecord, error)
}

// MemoryRecorder keeps records in process memory. Used by the memory
// history driver and the test suite.
type MemoryRecorder struct {
	mu      sync.Mutex
	records []model.TriggerRecord
}

func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{}
}

func (m *MemoryRecorder) Append(ctx context.Context, rec model.TriggerRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	return nil
}

func (m *MemoryRecorder) ListByCampaign(ctx context.Context, campaignID string) ([]model.TriggerRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.TriggerRecord{}
	for _, rec := range m.records {
		if rec.CampaignID == campaignID {
			out = append(out, rec)
		}
	}
	return out, nil
}

// All returns every record appended so far. Test helper.
func (m *MemoryRecorder) All() []model.TriggerRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.TriggerRecord(nil), m.records...)
}
