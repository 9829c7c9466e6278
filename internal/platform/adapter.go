// Package platform defines the contract every source-platform adapter implements
// (Square, Boulevard, Vagaro, ...) and the registry the sync engine dispatches through.
package platform

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrUnsupportedPlatform is returned when no adapter is registered for a platform id.
	ErrUnsupportedPlatform = errors.New("platform: unsupported platform")
	// ErrNotImplemented is returned alongside an empty result by adapters whose
	// protocol support is not finished. Callers treat it as "nothing to sync".
	ErrNotImplemented = errors.New("platform: not yet implemented")
)

// SyncType selects how much history a sync run asks the adapter for.
type SyncType string

const (
	SyncFull        SyncType = "full"
	SyncIncremental SyncType = "incremental"
)

// ParseSyncType normalizes a user-supplied sync type. Empty defaults to full.
func ParseSyncType(raw string) (SyncType, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", string(SyncFull):
		return SyncFull, nil
	case string(SyncIncremental):
		return SyncIncremental, nil
	default:
		return "", fmt.Errorf("platform: unknown sync type %q", raw)
	}
}

// Connection binds one provider to one source platform.
type Connection struct {
	ID           string
	ProviderID   string
	Platform     string
	AccessToken  string
	RefreshToken string
	// MerchantID is the platform-native merchant/business/user id.
	MerchantID string
	// LocationID narrows the fetch for platforms with multi-location merchants.
	LocationID string
	Active     bool
}

// DateWindow bounds the appointments an adapter returns.
type DateWindow struct {
	Start time.Time
	End   time.Time
	// UpdatedSince, when set, limits the result to appointments changed after it.
	UpdatedSince *time.Time
}

// Contains reports whether t falls inside [Start, End).
func (w DateWindow) Contains(t time.Time) bool {
	if !w.Start.IsZero() && t.Before(w.Start) {
		return false
	}
	if !w.End.IsZero() && !t.Before(w.End) {
		return false
	}
	return true
}

// RawAppointment is the canonical shape every adapter normalizes into.
type RawAppointment struct {
	ID              string
	ServiceName     string
	StartAt         time.Time
	DurationMinutes int
	// Amount is nil when the platform did not report a price.
	Amount       *float64
	Status       string
	Available    bool
	CustomerNote string
	// Description comes from a secondary catalog lookup and may be empty.
	Description string
	UpdatedAt   time.Time
	Payload     map[string]any
}

// Adapter fetches raw appointments from one source platform.
type Adapter interface {
	// Platform returns the registry key (e.g. "square").
	Platform() string

	// Fetch returns the appointments for a provider within the window. Adapters
	// without full protocol support return (nil, ErrNotImplemented).
	Fetch(ctx context.Context, providerID string, conn Connection, window DateWindow) ([]RawAppointment, error)
}

// Float returns a pointer to v. Adapters use it to fill RawAppointment.Amount.
func Float(v float64) *float64 {
	return &v
}
