package vagaro

import "time"

// Service is a bookable Vagaro service.
type Service struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Description     string `json:"description,omitempty"`
	DurationMinutes int    `json:"durationMinutes,omitempty"`
	PriceCents      int    `json:"priceCents,omitempty"`
	Currency        string `json:"currency,omitempty"`
	Active          bool   `json:"active"`
}

// TimeSlot is a single open appointment slot.
type TimeSlot struct {
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	ProviderID string    `json:"providerId,omitempty"`
	Available  bool      `json:"available"`
}

// Vagaro wraps list payloads under either a named key or "data".
type servicesEnvelope struct {
	Services []Service `json:"services"`
	Data     []Service `json:"data"`
}

type slotsEnvelope struct {
	Slots []TimeSlot `json:"slots"`
	Data  []TimeSlot `json:"data"`
}
