package appointments

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/sameday-sync/internal/platform"
)

type naturalKey struct {
	providerID string
	platform   string
	externalID string
}

// MemoryStore is an in-process Store used by tests and local runs.
type MemoryStore struct {
	mu   sync.RWMutex
	rows map[naturalKey]SyncedAppointment
	now  func() time.Time
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rows: make(map[naturalKey]SyncedAppointment),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// Upsert implements Store.
func (s *MemoryStore) Upsert(_ context.Context, providerID, platformName string, appts []platform.RawAppointment) (int, error) {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()

	written := 0
	for _, raw := range appts {
		if strings.TrimSpace(raw.ID) == "" {
			continue
		}
		a := FromRaw(providerID, platformName, raw, now)
		key := naturalKey{providerID: providerID, platform: platformName, externalID: raw.ID}
		if existing, ok := s.rows[key]; ok {
			a.ID = existing.ID
			a.CreatedAt = existing.CreatedAt
		} else {
			a.ID = uuid.NewString()
			a.CreatedAt = now
		}
		a.UpdatedAt = now
		s.rows[key] = a
		written++
	}
	return written, nil
}

// ListAvailable implements Store.
func (s *MemoryStore) ListAvailable(_ context.Context, providerID, platformName string) ([]SyncedAppointment, error) {
	return s.list(providerID, platformName, true, platform.DateWindow{}), nil
}

// ListUnavailable implements Store.
func (s *MemoryStore) ListUnavailable(_ context.Context, providerID, platformName string, window platform.DateWindow) ([]SyncedAppointment, error) {
	return s.list(providerID, platformName, false, window), nil
}

// Len returns the number of stored rows.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rows)
}

func (s *MemoryStore) list(providerID, platformName string, available bool, window platform.DateWindow) []SyncedAppointment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []SyncedAppointment
	for key, a := range s.rows {
		if key.providerID != providerID || key.platform != platformName || a.Available != available {
			continue
		}
		if !window.Contains(a.AppointmentAt) {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].AppointmentAt.Equal(out[j].AppointmentAt) {
			return out[i].PlatformAppointmentID < out[j].PlatformAppointmentID
		}
		return out[i].AppointmentAt.Before(out[j].AppointmentAt)
	})
	return out
}
