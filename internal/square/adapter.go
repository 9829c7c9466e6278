// Package square fetches bookings from the Square Bookings API and resolves
// their service variations through the Square Catalog API.
package square

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/wolfman30/sameday-sync/internal/platform"
	"github.com/wolfman30/sameday-sync/pkg/logging"
)

// Name is the registry key for this adapter.
const Name = "square"

// Options configures the Square adapter.
type Options struct {
	BaseURL   string
	Version   string
	Transport platform.TransportOptions
}

// Adapter implements platform.Adapter for Square.
type Adapter struct {
	baseURL   string
	version   string
	transport *platform.Transport
	logger    *logging.Logger
}

var _ platform.Adapter = (*Adapter)(nil)

// NewAdapter constructs a Square adapter.
func NewAdapter(opts Options, logger *logging.Logger) *Adapter {
	if logger == nil {
		logger = logging.Default()
	}
	if strings.TrimSpace(opts.BaseURL) == "" {
		opts.BaseURL = defaultBaseURL
	}
	if strings.TrimSpace(opts.Version) == "" {
		opts.Version = defaultVersion
	}
	return &Adapter{
		baseURL:   strings.TrimRight(opts.BaseURL, "/"),
		version:   opts.Version,
		transport: platform.NewTransport(Name, opts.Transport, logger),
		logger:    logger,
	}
}

// Platform implements platform.Adapter.
func (a *Adapter) Platform() string { return Name }

// Fetch lists bookings in the window, resolves each booked variation's name and
// price from the catalog, and attaches item descriptions when they can be read.
func (a *Adapter) Fetch(ctx context.Context, providerID string, conn platform.Connection, window platform.DateWindow) ([]platform.RawAppointment, error) {
	bookings, err := a.listBookings(ctx, conn, window)
	if err != nil {
		return nil, err
	}
	if len(bookings) == 0 {
		return nil, nil
	}

	variationIDs := uniqueVariationIDs(bookings)
	variations, err := a.retrieveVariations(ctx, conn, variationIDs)
	if err != nil {
		return nil, err
	}
	descriptions := a.itemDescriptions(ctx, conn, variations)

	out := make([]platform.RawAppointment, 0, len(bookings))
	for _, b := range bookings {
		appt, ok := a.normalize(b, variations, descriptions)
		if !ok {
			a.logger.Warn("square: skipping booking without usable data", "provider_id", providerID, "booking_id", b.ID)
			continue
		}
		out = append(out, appt)
	}
	return out, nil
}

func (a *Adapter) listBookings(ctx context.Context, conn platform.Connection, window platform.DateWindow) ([]booking, error) {
	var (
		all    []booking
		cursor string
	)
	for {
		q := url.Values{}
		q.Set("limit", fmt.Sprint(pageLimit))
		if loc := strings.TrimSpace(conn.LocationID); loc != "" {
			q.Set("location_id", loc)
		}
		if !window.Start.IsZero() {
			q.Set("start_at_min", window.Start.UTC().Format(time.RFC3339))
		}
		if !window.End.IsZero() {
			q.Set("start_at_max", window.End.UTC().Format(time.RFC3339))
		}
		if cursor != "" {
			q.Set("cursor", cursor)
		}

		body, err := a.transport.Send(ctx, conn, http.MethodGet, a.baseURL+"/v2/bookings?"+q.Encode(), nil, a.headers())
		if err != nil {
			return nil, fmt.Errorf("square: list bookings: %w", err)
		}
		var page listBookingsResponse
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, fmt.Errorf("square: decode bookings: %w", err)
		}
		for _, b := range page.Bookings {
			if window.UpdatedSince != nil {
				updated, err := time.Parse(time.RFC3339, b.UpdatedAt)
				if err == nil && !updated.After(*window.UpdatedSince) {
					continue
				}
			}
			all = append(all, b)
		}
		if page.Cursor == "" {
			return all, nil
		}
		cursor = page.Cursor
	}
}

func (a *Adapter) retrieveVariations(ctx context.Context, conn platform.Connection, ids []string) (map[string]variation, error) {
	out := make(map[string]variation, len(ids))
	for start := 0; start < len(ids); start += batchLimit {
		end := start + batchLimit
		if end > len(ids) {
			end = len(ids)
		}
		payload, err := json.Marshal(batchRetrieveRequest{ObjectIDs: ids[start:end], IncludeRelatedObjects: true})
		if err != nil {
			return nil, fmt.Errorf("square: marshal catalog request: %w", err)
		}
		body, err := a.transport.Send(ctx, conn, http.MethodPost, a.baseURL+"/v2/catalog/batch-retrieve", payload, a.headers())
		if err != nil {
			return nil, fmt.Errorf("square: retrieve catalog variations: %w", err)
		}
		var resp batchRetrieveResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, fmt.Errorf("square: decode catalog variations: %w", err)
		}

		itemNames := make(map[string]string)
		for _, obj := range resp.RelatedObjects {
			if obj.Type == "ITEM" && obj.ItemData != nil {
				itemNames[obj.ID] = obj.ItemData.Name
			}
		}
		for _, obj := range resp.Objects {
			if obj.Type != "ITEM_VARIATION" || obj.ItemVariationData == nil {
				continue
			}
			data := obj.ItemVariationData
			v := variation{ID: obj.ID, ItemID: data.ItemID, Name: serviceName(itemNames[data.ItemID], data.Name)}
			if data.PriceMoney != nil {
				v.Amount = platform.Float(float64(data.PriceMoney.Amount) / 100)
			}
			out[obj.ID] = v
		}
	}
	return out, nil
}

// itemDescriptions reads parent item descriptions. Failures are logged and the
// affected items are left without a description.
func (a *Adapter) itemDescriptions(ctx context.Context, conn platform.Connection, variations map[string]variation) map[string]string {
	out := make(map[string]string)
	seen := make(map[string]bool)
	for _, v := range variations {
		if v.ItemID == "" || seen[v.ItemID] {
			continue
		}
		seen[v.ItemID] = true

		body, err := a.transport.Send(ctx, conn, http.MethodGet, a.baseURL+"/v2/catalog/object/"+url.PathEscape(v.ItemID), nil, a.headers())
		if err != nil {
			a.logger.Warn("square: item description lookup failed", "item_id", v.ItemID, "error", err)
			continue
		}
		var resp retrieveObjectResponse
		if err := json.Unmarshal(body, &resp); err != nil || resp.Object.ItemData == nil {
			a.logger.Warn("square: item description decode failed", "item_id", v.ItemID, "error", err)
			continue
		}
		desc := resp.Object.ItemData.DescriptionPlaintext
		if desc == "" {
			desc = resp.Object.ItemData.Description
		}
		out[v.ItemID] = strings.TrimSpace(desc)
	}
	return out
}

func (a *Adapter) normalize(b booking, variations map[string]variation, descriptions map[string]string) (platform.RawAppointment, bool) {
	start, err := time.Parse(time.RFC3339, b.StartAt)
	if err != nil || b.ID == "" || len(b.AppointmentSegments) == 0 {
		return platform.RawAppointment{}, false
	}
	duration := 0
	for _, seg := range b.AppointmentSegments {
		duration += seg.DurationMinutes
	}
	v, ok := variations[b.AppointmentSegments[0].ServiceVariationID]
	if !ok || v.Name == "" {
		return platform.RawAppointment{}, false
	}
	updated, _ := time.Parse(time.RFC3339, b.UpdatedAt)

	return platform.RawAppointment{
		ID:              b.ID,
		ServiceName:     v.Name,
		StartAt:         start,
		DurationMinutes: duration,
		Amount:          v.Amount,
		Status:          b.Status,
		Available:       isAvailable(b.Status),
		CustomerNote:    b.CustomerNote,
		Description:     descriptions[v.ItemID],
		UpdatedAt:       updated,
		Payload: map[string]any{
			"location_id":          b.LocationID,
			"service_variation_id": v.ID,
			"item_id":              v.ItemID,
			"team_member_id":       b.AppointmentSegments[0].TeamMemberID,
			"version":              b.Version,
		},
	}, true
}

func (a *Adapter) headers() http.Header {
	h := http.Header{}
	h.Set("Square-Version", a.version)
	return h
}

func isAvailable(status string) bool {
	switch strings.ToUpper(status) {
	case "ACCEPTED", "PENDING":
		return true
	default:
		return false
	}
}

// serviceName prefers the parent item name and appends the variation name
// unless it is Square's placeholder "Regular".
func serviceName(itemName, variationName string) string {
	itemName = strings.TrimSpace(itemName)
	variationName = strings.TrimSpace(variationName)
	switch {
	case itemName == "":
		return variationName
	case variationName == "" || strings.EqualFold(variationName, "Regular") || strings.EqualFold(variationName, itemName):
		return itemName
	default:
		return itemName + " - " + variationName
	}
}

func uniqueVariationIDs(bookings []booking) []string {
	seen := make(map[string]bool)
	var ids []string
	for _, b := range bookings {
		for _, seg := range b.AppointmentSegments {
			if seg.ServiceVariationID == "" || seen[seg.ServiceVariationID] {
				continue
			}
			seen[seg.ServiceVariationID] = true
			ids = append(ids, seg.ServiceVariationID)
		}
	}
	return ids
}
