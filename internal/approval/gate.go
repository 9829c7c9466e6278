// Package approval decides what happens after a synced service is created
// hidden, and tells the provider about it.
package approval

import (
	"context"

	"github.com/wolfman30/sameday-sync/internal/catalog"
	"github.com/wolfman30/sameday-sync/internal/notify"
	"github.com/wolfman30/sameday-sync/pkg/logging"
)

// Notifier delivers the "awaiting approval" message.
type Notifier interface {
	NotifyServicePendingApproval(ctx context.Context, p notify.PendingService) error
}

// Gate sends approval notifications for newly created hidden services.
type Gate struct {
	notifier Notifier
	logger   *logging.Logger
}

// NewGate creates a Gate. A nil notifier disables notifications.
func NewGate(notifier Notifier, logger *logging.Logger) *Gate {
	if logger == nil {
		logger = logging.Default()
	}
	return &Gate{notifier: notifier, logger: logger}
}

// InitialVisibility is the is_available value for a newly created service.
func InitialVisibility(provider catalog.Provider) bool {
	return !provider.RequiresServiceApproval
}

// ServiceCreated notifies the provider when svc is pending approval and reports
// whether a message went out. Delivery failures are logged, not returned.
func (g *Gate) ServiceCreated(ctx context.Context, provider catalog.Provider, svc catalog.Service, platformName string) bool {
	if svc.Available || g == nil || g.notifier == nil {
		return false
	}
	err := g.notifier.NotifyServicePendingApproval(ctx, notify.PendingService{
		ProviderID:      provider.ID,
		ProviderName:    provider.Name,
		ProviderEmail:   provider.Email,
		ServiceID:       svc.ID,
		ServiceName:     svc.Name,
		Platform:        platformName,
		Price:           svc.Price,
		DurationMinutes: svc.DurationMinutes,
	})
	if err != nil {
		g.logger.Warn("approval notification failed", "provider_id", provider.ID, "service_id", svc.ID, "error", err)
		return false
	}
	g.logger.Info("approval notification sent", "provider_id", provider.ID, "service_id", svc.ID)
	return true
}
