package vagaro

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/wolfman30/sameday-sync/internal/platform"
)

// GetServices lists the services of a Vagaro business.
func (a *Adapter) GetServices(ctx context.Context, conn platform.Connection, businessID string) ([]Service, error) {
	path := fmt.Sprintf("/api/v1/businesses/%s/services", url.PathEscape(businessID))

	var wrapped servicesEnvelope
	if err := a.doJSON(ctx, conn, http.MethodGet, path, &wrapped); err != nil {
		return nil, fmt.Errorf("vagaro: get services: %w", err)
	}
	if len(wrapped.Services) > 0 {
		return wrapped.Services, nil
	}
	return wrapped.Data, nil
}

// GetAvailableSlots returns the open slots of a service on one date. An empty
// staffID asks for every staff member.
func (a *Adapter) GetAvailableSlots(ctx context.Context, conn platform.Connection, businessID, serviceID, staffID string, date time.Time) ([]TimeSlot, error) {
	q := url.Values{}
	q.Set("serviceId", serviceID)
	if staffID != "" {
		q.Set("providerId", staffID)
	}
	q.Set("date", date.Format("2006-01-02"))

	path := fmt.Sprintf("/api/v1/businesses/%s/availability?%s", url.PathEscape(businessID), q.Encode())

	var wrapped slotsEnvelope
	if err := a.doJSON(ctx, conn, http.MethodGet, path, &wrapped); err != nil {
		return nil, fmt.Errorf("vagaro: get availability: %w", err)
	}
	if len(wrapped.Slots) > 0 {
		return wrapped.Slots, nil
	}
	return wrapped.Data, nil
}

func (a *Adapter) doJSON(ctx context.Context, conn platform.Connection, method, path string, out any) error {
	respBody, err := a.transport.Send(ctx, conn, method, a.baseURL+path, nil, nil)
	if err != nil {
		return err
	}
	if len(respBody) == 0 || out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
