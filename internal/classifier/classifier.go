// Package classifier maps free-text service names to marketplace categories.
package classifier

import (
	"context"
	"fmt"
	"strings"

	"github.com/wolfman30/sameday-sync/internal/catalog"
	"github.com/wolfman30/sameday-sync/pkg/logging"
)

// FallbackCategory is used when a platform has no configured default.
const FallbackCategory = "Other"

// Rule maps any of its keywords to a category.
type Rule struct {
	Keywords []string
	Category string
	Icon     string
}

// DefaultRules is the built-in rule table, evaluated top to bottom.
func DefaultRules() []Rule {
	return []Rule{
		{Keywords: []string{"massage", "deep tissue", "swedish", "hot stone", "reflexology"}, Category: "Massage", Icon: "hand"},
		{Keywords: []string{"brow", "lash", "lamination"}, Category: "Brows & Lashes", Icon: "eye"},
		{Keywords: []string{"manicure", "pedicure", "nail"}, Category: "Nails", Icon: "sparkles"},
		{Keywords: []string{"facial", "peel", "microderm", "dermaplan", "hydrafacial"}, Category: "Facials", Icon: "smile"},
		{Keywords: []string{"botox", "filler", "injectable", "dysport"}, Category: "Injectables", Icon: "syringe"},
		{Keywords: []string{"wax", "sugaring", "threading"}, Category: "Waxing", Icon: "feather"},
		{Keywords: []string{"haircut", "hair", "blowout", "balayage", "highlights", "trim"}, Category: "Hair", Icon: "scissors"},
		{Keywords: []string{"makeup", "make-up", "bridal"}, Category: "Makeup", Icon: "palette"},
		{Keywords: []string{"yoga", "pilates", "barre", "personal training"}, Category: "Fitness", Icon: "activity"},
		{Keywords: []string{"acupuncture", "cupping", "sauna", "float", "cryo", "iv therapy"}, Category: "Wellness", Icon: "leaf"},
	}
}

// CategoryStore creates categories on demand.
type CategoryStore interface {
	GetOrCreateCategory(ctx context.Context, name, icon string) (*catalog.Category, error)
}

// Classifier resolves categories for service names.
type Classifier struct {
	rules    []Rule
	defaults map[string]string
	store    CategoryStore
	logger   *logging.Logger
}

// New builds a Classifier. A nil rules slice selects DefaultRules; defaults maps
// platform ids to the category used when no rule matches.
func New(store CategoryStore, rules []Rule, defaults map[string]string, logger *logging.Logger) *Classifier {
	if logger == nil {
		logger = logging.Default()
	}
	if rules == nil {
		rules = DefaultRules()
	}
	normalized := make([]Rule, 0, len(rules))
	for _, r := range rules {
		kw := make([]string, 0, len(r.Keywords))
		for _, k := range r.Keywords {
			if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
				kw = append(kw, k)
			}
		}
		normalized = append(normalized, Rule{Keywords: kw, Category: r.Category, Icon: r.Icon})
	}
	d := make(map[string]string, len(defaults))
	for platformName, category := range defaults {
		d[strings.ToLower(platformName)] = category
	}
	return &Classifier{rules: normalized, defaults: d, store: store, logger: logger}
}

// Match returns the first rule with a keyword contained in name.
func (c *Classifier) Match(name string) (Rule, bool) {
	lowered := strings.ToLower(name)
	for _, r := range c.rules {
		for _, k := range r.Keywords {
			if strings.Contains(lowered, k) {
				return r, true
			}
		}
	}
	return Rule{}, false
}

// Classify returns the matched category, creating it if needed, or nil when no
// rule matches.
func (c *Classifier) Classify(ctx context.Context, name string) (*catalog.Category, error) {
	rule, ok := c.Match(name)
	if !ok {
		return nil, nil
	}
	cat, err := c.store.GetOrCreateCategory(ctx, rule.Category, rule.Icon)
	if err != nil {
		return nil, fmt.Errorf("classifier: resolve %q: %w", rule.Category, err)
	}
	return cat, nil
}

// Resolve classifies name and falls back to the platform's default category.
func (c *Classifier) Resolve(ctx context.Context, platformName, name string) (*catalog.Category, error) {
	cat, err := c.Classify(ctx, name)
	if err != nil || cat != nil {
		return cat, err
	}
	fallback := c.DefaultFor(platformName)
	c.logger.Debug("classifier: no rule matched, using platform default", "service_name", name, "platform", platformName, "category", fallback)
	cat, err = c.store.GetOrCreateCategory(ctx, fallback, "tag")
	if err != nil {
		return nil, fmt.Errorf("classifier: resolve default %q: %w", fallback, err)
	}
	return cat, nil
}

// DefaultFor returns the configured default category name for a platform.
func (c *Classifier) DefaultFor(platformName string) string {
	if name, ok := c.defaults[strings.ToLower(platformName)]; ok {
		return name
	}
	return FallbackCategory
}
