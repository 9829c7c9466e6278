package catalog

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/sameday-sync/internal/platform"
)

type slotKey struct {
	serviceID     string
	appointmentID string
}

// MemoryRepository is an in-process Repository that enforces the same
// uniqueness rules as the Postgres schema.
type MemoryRepository struct {
	mu          sync.RWMutex
	providers   map[string]Provider
	connections []platform.Connection
	services    map[string]Service
	slots       map[string]TimeSlot
	slotKeys    map[slotKey]string
	categories  map[string]Category
	now         func() time.Time
}

var _ Repository = (*MemoryRepository)(nil)

// NewMemoryRepository returns an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		providers:  make(map[string]Provider),
		services:   make(map[string]Service),
		slots:      make(map[string]TimeSlot),
		slotKeys:   make(map[slotKey]string),
		categories: make(map[string]Category),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// PutProvider stores or replaces a provider.
func (m *MemoryRepository) PutProvider(p Provider) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.providers[p.ID] = p
}

// PutConnection stores a platform connection.
func (m *MemoryRepository) PutConnection(c platform.Connection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	m.connections = append(m.connections, c)
}

// PutService stores or replaces a service, assigning an id when empty.
func (m *MemoryRepository) PutService(s Service) Service {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = m.now()
	}
	m.services[s.ID] = cloneService(s)
	return s
}

// Services returns every stored service for a provider.
func (m *MemoryRepository) Services(providerID string) []Service {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Service
	for _, s := range m.services {
		if s.ProviderID == providerID {
			out = append(out, cloneService(s))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Slots returns every stored slot for a service.
func (m *MemoryRepository) Slots(serviceID string) []TimeSlot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []TimeSlot
	for _, s := range m.slots {
		if s.ServiceID == serviceID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartAt.Before(out[j].StartAt) })
	return out
}

// Categories returns every stored category.
func (m *MemoryRepository) Categories() []Category {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Category, 0, len(m.categories))
	for _, c := range m.categories {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// GetProvider implements Repository.
func (m *MemoryRepository) GetProvider(_ context.Context, providerID string) (*Provider, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.providers[providerID]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

// GetActiveConnection implements Repository.
func (m *MemoryRepository) GetActiveConnection(_ context.Context, providerID, platformName string) (*platform.Connection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for i := len(m.connections) - 1; i >= 0; i-- {
		c := m.connections[i]
		if c.Active && c.ProviderID == providerID && c.Platform == platformName {
			return &c, nil
		}
	}
	return nil, ErrNotFound
}

// ListActiveConnections implements Repository.
func (m *MemoryRepository) ListActiveConnections(context.Context) ([]platform.Connection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []platform.Connection
	for _, c := range m.connections {
		if c.Active {
			out = append(out, c)
		}
	}
	return out, nil
}

// GetService implements Repository.
func (m *MemoryRepository) GetService(_ context.Context, serviceID string) (*Service, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.services[serviceID]
	if !ok {
		return nil, ErrNotFound
	}
	out := cloneService(s)
	return &out, nil
}

// FindSyncedService implements Repository.
func (m *MemoryRepository) FindSyncedService(_ context.Context, providerID, syncSource, signature string) (*Service, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if s, ok := m.syncedLocked(providerID, syncSource, signature); ok {
		return &s, nil
	}
	return nil, ErrNotFound
}

func (m *MemoryRepository) syncedLocked(providerID, syncSource, signature string) (Service, bool) {
	for _, s := range m.services {
		if s.ProviderID == providerID && s.SyncSource != nil && *s.SyncSource == syncSource &&
			s.PlatformServiceID != nil && *s.PlatformServiceID == signature {
			return cloneService(s), true
		}
	}
	return Service{}, false
}

// FindWatchedService implements Repository.
func (m *MemoryRepository) FindWatchedService(_ context.Context, providerID, name string) (*Service, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var found *Service
	for _, s := range m.services {
		if s.ProviderID != providerID || s.Name != name || s.SyncSource != nil {
			continue
		}
		if found == nil || s.CreatedAt.Before(found.CreatedAt) {
			c := cloneService(s)
			found = &c
		}
	}
	if found == nil {
		return nil, ErrNotFound
	}
	return found, nil
}

// ConvertWatchedService implements Repository.
func (m *MemoryRepository) ConvertWatchedService(_ context.Context, serviceID, syncSource, signature string, metadata map[string]any) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.services[serviceID]
	if !ok || s.SyncSource != nil {
		return false, nil
	}
	if _, taken := m.syncedLocked(s.ProviderID, syncSource, signature); taken {
		return false, nil
	}
	s.SyncSource = stringPtr(syncSource)
	s.PlatformServiceID = stringPtr(signature)
	if s.SyncMetadata == nil {
		s.SyncMetadata = make(map[string]any)
	}
	for k, v := range metadata {
		s.SyncMetadata[k] = v
	}
	s.UpdatedAt = m.now()
	m.services[serviceID] = s
	return true, nil
}

// CreateSyncedService implements Repository.
func (m *MemoryRepository) CreateSyncedService(_ context.Context, svc *Service) (bool, error) {
	if svc.SyncSource == nil || svc.PlatformServiceID == nil {
		return false, fmt.Errorf("catalog: create synced service: lineage required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.syncedLocked(svc.ProviderID, *svc.SyncSource, *svc.PlatformServiceID); ok {
		*svc = existing
		return false, nil
	}
	if svc.ID == "" {
		svc.ID = uuid.NewString()
	}
	now := m.now()
	svc.CreatedAt, svc.UpdatedAt = now, now
	m.services[svc.ID] = cloneService(*svc)
	return true, nil
}

// ListBookableServices implements Repository.
func (m *MemoryRepository) ListBookableServices(_ context.Context, providerID string) ([]Service, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []Service{}
	for _, s := range m.services {
		if !s.Available || (providerID != "" && s.ProviderID != providerID) {
			continue
		}
		out = append(out, cloneService(s))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// SetServiceAvailability implements Repository.
func (m *MemoryRepository) SetServiceAvailability(_ context.Context, serviceID string, available bool) (*Service, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.services[serviceID]
	if !ok {
		return nil, ErrNotFound
	}
	s.Available = available
	s.UpdatedAt = m.now()
	m.services[serviceID] = s
	out := cloneService(s)
	return &out, nil
}

// InsertTimeSlot implements Repository.
func (m *MemoryRepository) InsertTimeSlot(_ context.Context, slot *TimeSlot) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if slot.PlatformAppointmentID != nil {
		key := slotKey{serviceID: slot.ServiceID, appointmentID: *slot.PlatformAppointmentID}
		if _, exists := m.slotKeys[key]; exists {
			return false, nil
		}
		if slot.ID == "" {
			slot.ID = uuid.NewString()
		}
		m.slotKeys[key] = slot.ID
	} else if slot.ID == "" {
		slot.ID = uuid.NewString()
	}
	slot.CreatedAt = m.now()
	m.slots[slot.ID] = *slot
	return true, nil
}

// RetireSlots implements Repository.
func (m *MemoryRepository) RetireSlots(_ context.Context, providerID, syncSource string, platformAppointmentIDs []string) (int, error) {
	ids := make(map[string]bool, len(platformAppointmentIDs))
	for _, id := range platformAppointmentIDs {
		ids[id] = true
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	retired := 0
	for id, slot := range m.slots {
		if !slot.Available || slot.PlatformAppointmentID == nil || !ids[*slot.PlatformAppointmentID] {
			continue
		}
		svc, ok := m.services[slot.ServiceID]
		if !ok || svc.ProviderID != providerID || svc.SyncSource == nil || *svc.SyncSource != syncSource {
			continue
		}
		slot.Available = false
		m.slots[id] = slot
		retired++
	}
	return retired, nil
}

// ListAvailableSlots implements Repository.
func (m *MemoryRepository) ListAvailableSlots(_ context.Context, serviceID string, from time.Time) ([]TimeSlot, error) {
	out := []TimeSlot{}
	for _, s := range m.Slots(serviceID) {
		if s.Available && !s.StartAt.Before(from) {
			out = append(out, s)
		}
	}
	return out, nil
}

// BookSlot implements Repository.
func (m *MemoryRepository) BookSlot(_ context.Context, slotID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.slots[slotID]
	if !ok || !s.Available {
		return ErrSlotUnavailable
	}
	if svc, ok := m.services[s.ServiceID]; !ok || !svc.Available {
		return ErrSlotUnavailable
	}
	s.Available = false
	m.slots[slotID] = s
	return nil
}

// GetOrCreateCategory implements Repository.
func (m *MemoryRepository) GetOrCreateCategory(_ context.Context, name, icon string) (*Category, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.categories[name]; ok {
		return &c, nil
	}
	c := Category{ID: uuid.NewString(), Name: name, Icon: icon, CreatedAt: m.now()}
	m.categories[name] = c
	return &c, nil
}

func cloneService(s Service) Service {
	if s.SyncMetadata != nil {
		md := make(map[string]any, len(s.SyncMetadata))
		for k, v := range s.SyncMetadata {
			md[k] = v
		}
		s.SyncMetadata = md
	}
	return s
}
