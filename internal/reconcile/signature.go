package reconcile

import (
	"fmt"
	"math"
	"sort"

	"github.com/wolfman30/sameday-sync/internal/appointments"
)

// Signature identifies which appointments belong to the same catalog service.
type Signature struct {
	Name            string
	DurationMinutes int
}

// Key is the value stored in services.platform_service_id.
func (s Signature) Key() string {
	return fmt.Sprintf("%s::%dm", s.Name, s.DurationMinutes)
}

// SignatureOf returns the grouping key of an appointment.
func SignatureOf(a appointments.SyncedAppointment) Signature {
	return Signature{Name: a.ServiceName, DurationMinutes: a.DurationMinutes}
}

// Group is every appointment sharing one signature.
type Group struct {
	Signature    Signature
	Appointments []appointments.SyncedAppointment
}

// GroupBySignature partitions appts, ordering groups by name then duration.
func GroupBySignature(appts []appointments.SyncedAppointment) []Group {
	index := make(map[Signature]int)
	var groups []Group
	for _, a := range appts {
		sig := SignatureOf(a)
		i, ok := index[sig]
		if !ok {
			i = len(groups)
			index[sig] = i
			groups = append(groups, Group{Signature: sig})
		}
		groups[i].Appointments = append(groups[i].Appointments, a)
	}
	sort.SliceStable(groups, func(i, j int) bool {
		if groups[i].Signature.Name == groups[j].Signature.Name {
			return groups[i].Signature.DurationMinutes < groups[j].Signature.DurationMinutes
		}
		return groups[i].Signature.Name < groups[j].Signature.Name
	})
	return groups
}

// RepresentativePrice is the mean amount of the group; missing amounts count as zero.
func (g Group) RepresentativePrice() float64 {
	if len(g.Appointments) == 0 {
		return 0
	}
	var total float64
	for _, a := range g.Appointments {
		if a.Amount != nil {
			total += *a.Amount
		}
	}
	return roundCents(total / float64(len(g.Appointments)))
}

// Description returns the first non-empty catalog description in the group.
func (g Group) Description() string {
	for _, a := range g.Appointments {
		if a.Description != "" {
			return a.Description
		}
	}
	return ""
}

// EffectiveDiscount is the discount left after the platform fee, never negative.
func EffectiveDiscount(providerDiscountPercent, platformFeePercent float64) float64 {
	d := providerDiscountPercent - platformFeePercent
	if d < 0 {
		return 0
	}
	if d > 100 {
		return 100
	}
	return d
}

// ApplyDiscount computes original * (1 - max(0, discount - fee)/100) in cents.
func ApplyDiscount(originalPrice, providerDiscountPercent, platformFeePercent float64) float64 {
	return roundCents(originalPrice * (1 - EffectiveDiscount(providerDiscountPercent, platformFeePercent)/100))
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
