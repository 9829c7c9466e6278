package bootstrap

import (
	appconfig "github.com/wolfman30/sameday-sync/internal/config"
	"github.com/wolfman30/sameday-sync/internal/boulevard"
	"github.com/wolfman30/sameday-sync/internal/platform"
	"github.com/wolfman30/sameday-sync/internal/square"
	"github.com/wolfman30/sameday-sync/internal/vagaro"
	"github.com/wolfman30/sameday-sync/pkg/logging"
)

// BuildRegistry registers every supported platform adapter.
func BuildRegistry(cfg *appconfig.Config, logger *logging.Logger) *platform.Registry {
	if logger == nil {
		logger = logging.Default()
	}
	transport := platform.TransportOptions{
		Timeout:    cfg.AdapterTimeout,
		MaxRetries: cfg.AdapterMaxRetries,
		Backoff:    cfg.AdapterBackoff,
	}
	return platform.NewRegistry(
		square.NewAdapter(square.Options{
			BaseURL:   cfg.SquareBaseURL,
			Version:   cfg.SquareVersion,
			Transport: transport,
		}, logger.With("platform", square.Name)),
		boulevard.NewAdapter(boulevard.Options{
			Endpoint:  cfg.BoulevardEndpoint,
			Transport: transport,
		}, logger.With("platform", boulevard.Name)),
		vagaro.NewAdapter(vagaro.Options{
			BaseURL:   cfg.VagaroBaseURL,
			Transport: transport,
		}, logger.With("platform", vagaro.Name)),
	)
}
