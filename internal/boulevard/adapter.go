// Package boulevard fetches appointments from the Boulevard Admin GraphQL API.
package boulevard

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/wolfman30/sameday-sync/internal/platform"
	"github.com/wolfman30/sameday-sync/pkg/logging"
)

// Name is the registry key for this adapter.
const Name = "boulevard"

// Options configures the Boulevard adapter.
type Options struct {
	Endpoint  string
	Transport platform.TransportOptions
}

// Adapter implements platform.Adapter for Boulevard.
type Adapter struct {
	endpoint  string
	transport *platform.Transport
	logger    *logging.Logger
}

var _ platform.Adapter = (*Adapter)(nil)

// NewAdapter creates a Boulevard adapter.
func NewAdapter(opts Options, logger *logging.Logger) *Adapter {
	if logger == nil {
		logger = logging.Default()
	}
	endpoint := strings.TrimSpace(opts.Endpoint)
	if endpoint == "" {
		endpoint = defaultGraphQLEndpoint
	}
	return &Adapter{
		endpoint:  endpoint,
		transport: platform.NewTransport(Name, opts.Transport, logger),
		logger:    logger,
	}
}

// Platform implements platform.Adapter.
func (a *Adapter) Platform() string { return Name }

// Fetch pages through appointments for the connection's location. Service
// descriptions are looked up once per fetch and are optional.
func (a *Adapter) Fetch(ctx context.Context, providerID string, conn platform.Connection, window platform.DateWindow) ([]platform.RawAppointment, error) {
	if strings.TrimSpace(conn.LocationID) == "" {
		return nil, fmt.Errorf("boulevard: connection %s has no location id", conn.ID)
	}

	nodes, err := a.listAppointments(ctx, conn, window)
	if err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, nil
	}

	descriptions, err := a.serviceDescriptions(ctx, conn)
	if err != nil {
		a.logger.Warn("boulevard: service description lookup failed", "provider_id", providerID, "error", err)
		descriptions = nil
	}

	out := make([]platform.RawAppointment, 0, len(nodes))
	for _, n := range nodes {
		appt, ok := normalize(n, descriptions)
		if !ok {
			a.logger.Warn("boulevard: skipping appointment without usable data", "provider_id", providerID, "appointment_id", n.ID)
			continue
		}
		out = append(out, appt)
	}
	return out, nil
}

func (a *Adapter) listAppointments(ctx context.Context, conn platform.Connection, window platform.DateWindow) ([]appointmentNode, error) {
	var (
		all   []appointmentNode
		after string
	)
	filter := buildFilter(window)
	for {
		vars := map[string]any{"locationId": conn.LocationID, "first": pageSize}
		if after != "" {
			vars["after"] = after
		}
		if filter != "" {
			vars["query"] = filter
		}
		data, err := graphQL[appointmentsData](ctx, a, conn, "Appointments", queryAppointments, vars)
		if err != nil {
			return nil, fmt.Errorf("boulevard: list appointments: %w", err)
		}
		for _, e := range data.Appointments.Edges {
			all = append(all, e.Node)
		}
		info := data.Appointments.PageInfo
		if !info.HasNextPage || info.EndCursor == "" {
			return all, nil
		}
		after = info.EndCursor
	}
}

func (a *Adapter) serviceDescriptions(ctx context.Context, conn platform.Connection) (map[string]string, error) {
	out := make(map[string]string)
	after := ""
	for {
		vars := map[string]any{"first": pageSize}
		if after != "" {
			vars["after"] = after
		}
		data, err := graphQL[servicesData](ctx, a, conn, "Services", queryServices, vars)
		if err != nil {
			return nil, err
		}
		for _, e := range data.Services.Edges {
			if desc := strings.TrimSpace(e.Node.Description); desc != "" {
				out[e.Node.ID] = desc
			}
		}
		info := data.Services.PageInfo
		if !info.HasNextPage || info.EndCursor == "" {
			return out, nil
		}
		after = info.EndCursor
	}
}

// buildFilter renders Boulevard's QueryString syntax for the window.
func buildFilter(window platform.DateWindow) string {
	var clauses []string
	if !window.Start.IsZero() {
		clauses = append(clauses, fmt.Sprintf("startAt >= '%s'", window.Start.UTC().Format(time.RFC3339)))
	}
	if !window.End.IsZero() {
		clauses = append(clauses, fmt.Sprintf("startAt < '%s'", window.End.UTC().Format(time.RFC3339)))
	}
	if window.UpdatedSince != nil {
		clauses = append(clauses, fmt.Sprintf("updatedAt > '%s'", window.UpdatedSince.UTC().Format(time.RFC3339)))
	}
	return strings.Join(clauses, " AND ")
}

func normalize(n appointmentNode, descriptions map[string]string) (platform.RawAppointment, bool) {
	start, err := time.Parse(time.RFC3339, n.StartAt)
	if err != nil || n.ID == "" || len(n.AppointmentServices) == 0 {
		return platform.RawAppointment{}, false
	}
	svc := n.AppointmentServices[0]
	name := strings.TrimSpace(svc.Service.Name)
	if name == "" {
		return platform.RawAppointment{}, false
	}

	duration := n.Duration
	if duration == 0 {
		for _, s := range n.AppointmentServices {
			duration += s.Duration
		}
	}
	var amount *float64
	var total int64
	priced := false
	for _, s := range n.AppointmentServices {
		if s.Price > 0 {
			total += s.Price
			priced = true
		}
	}
	if priced {
		amount = platform.Float(float64(total) / 100)
	}
	updated, _ := time.Parse(time.RFC3339, n.UpdatedAt)

	return platform.RawAppointment{
		ID:              n.ID,
		ServiceName:     name,
		StartAt:         start,
		DurationMinutes: duration,
		Amount:          amount,
		Status:          n.State,
		Available:       isAvailable(n),
		CustomerNote:    n.Notes,
		Description:     descriptions[svc.Service.ID],
		UpdatedAt:       updated,
		Payload: map[string]any{
			"service_id":  svc.Service.ID,
			"location_id": n.LocationID,
		},
	}, true
}

func isAvailable(n appointmentNode) bool {
	if n.Cancelled {
		return false
	}
	switch strings.ToUpper(n.State) {
	case "BOOKED", "CONFIRMED":
		return true
	default:
		return false
	}
}
