package bootstrap

import (
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"

	appconfig "github.com/wolfman30/sameday-sync/internal/config"
	"github.com/wolfman30/sameday-sync/internal/notify"
	"github.com/wolfman30/sameday-sync/pkg/logging"
)

// BuildEmailSender picks the approval email transport from EMAIL_PROVIDER.
// It falls back to the stub sender when the chosen provider is not configured
// and reports the provider actually used.
func BuildEmailSender(cfg *appconfig.Config, awsCfg *aws.Config, logger *logging.Logger) (notify.EmailSender, string) {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg == nil {
		return notify.NewStubEmailSender(logger), "stub"
	}

	switch cfg.EmailProvider {
	case "ses":
		if awsCfg != nil && cfg.SESFromEmail != "" {
			return notify.NewSESSender(sesv2.NewFromConfig(*awsCfg), notify.SESConfig{
				FromEmail: cfg.SESFromEmail,
				FromName:  cfg.SendGridFromName,
			}, logger), "ses"
		}
		logger.Warn("EMAIL_PROVIDER=ses but SES is not configured, using stub sender")
	case "sendgrid", "":
		if sender := notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.SendGridFromEmail,
			FromName:  cfg.SendGridFromName,
		}, logger); sender != nil {
			return sender, "sendgrid"
		}
		logger.Warn("SENDGRID_API_KEY not set, using stub sender")
	case "stub":
	default:
		logger.Warn("unknown EMAIL_PROVIDER, using stub sender", "provider", cfg.EmailProvider)
	}
	return notify.NewStubEmailSender(logger), "stub"
}
