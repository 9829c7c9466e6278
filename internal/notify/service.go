// Package notify delivers provider-facing notifications.
package notify

import (
	"context"
	"fmt"
	"html"
	"strings"

	"github.com/wolfman30/sameday-sync/pkg/logging"
)

// PendingService describes a synced service that is waiting for approval.
type PendingService struct {
	ProviderID      string
	ProviderName    string
	ProviderEmail   string
	ServiceID       string
	ServiceName     string
	Platform        string
	Price           float64
	DurationMinutes int
}

// Service sends provider notifications over email.
type Service struct {
	email  EmailSender
	logger *logging.Logger
}

// NewService creates a notification service.
func NewService(email EmailSender, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{email: email, logger: logger}
}

// NotifyServicePendingApproval emails the provider about a new hidden service.
func (s *Service) NotifyServicePendingApproval(ctx context.Context, p PendingService) error {
	if s.email == nil {
		s.logger.Debug("notify: email sender not configured, skipping", "provider_id", p.ProviderID)
		return nil
	}
	if strings.TrimSpace(p.ProviderEmail) == "" {
		return fmt.Errorf("notify: provider %s has no email address", p.ProviderID)
	}

	subject := fmt.Sprintf("New service awaiting approval: %s", p.ServiceName)
	text := fmt.Sprintf(
		"We found a new service on your %s calendar.\n\nService: %s\nDuration: %d min\nPrice: $%.2f\n\nIt stays hidden from customers until you approve it in your dashboard.",
		platformLabel(p.Platform), p.ServiceName, p.DurationMinutes, p.Price)
	body := fmt.Sprintf(
		"<p>We found a new service on your %s calendar.</p><ul><li><strong>Service:</strong> %s</li><li><strong>Duration:</strong> %d min</li><li><strong>Price:</strong> $%.2f</li></ul><p>It stays hidden from customers until you approve it in your dashboard.</p>",
		html.EscapeString(platformLabel(p.Platform)), html.EscapeString(p.ServiceName), p.DurationMinutes, p.Price)

	if err := s.email.Send(ctx, EmailMessage{
		To:      p.ProviderEmail,
		ToName:  p.ProviderName,
		Subject: subject,
		Body:    text,
		HTML:    body,
	}); err != nil {
		return fmt.Errorf("notify: pending approval email: %w", err)
	}
	return nil
}

func platformLabel(platformName string) string {
	if platformName == "" {
		return "booking"
	}
	return strings.ToUpper(platformName[:1]) + platformName[1:]
}
