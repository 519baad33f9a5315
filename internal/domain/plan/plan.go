// Package plan holds the read-only plan catalog: prices, billing cycles and
// the feature map that drives feature gating.
package plan

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bizbook/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BillingCycle is the length of one paid subscription period
type BillingCycle string

const (
	BillingCycleMonthly    BillingCycle = "monthly"
	BillingCycleQuarterly  BillingCycle = "quarterly"
	BillingCycleSemiAnnual BillingCycle = "semi_annual"
	BillingCycleAnnual     BillingCycle = "annual"
)

// IsValid returns true if the billing cycle is known
func (c BillingCycle) IsValid() bool {
	switch c {
	case BillingCycleMonthly, BillingCycleQuarterly, BillingCycleSemiAnnual, BillingCycleAnnual:
		return true
	}
	return false
}

// PeriodEnd returns the end of a billing period starting at start
func (c BillingCycle) PeriodEnd(start time.Time) (time.Time, error) {
	switch c {
	case BillingCycleMonthly:
		return start.AddDate(0, 1, 0), nil
	case BillingCycleQuarterly:
		return start.AddDate(0, 3, 0), nil
	case BillingCycleSemiAnnual:
		return start.AddDate(0, 6, 0), nil
	case BillingCycleAnnual:
		return start.AddDate(1, 0, 0), nil
	}
	return time.Time{}, shared.NewValidationError(fmt.Sprintf("unknown billing cycle %q", c))
}

// Features maps a feature name to a flag. Values come from admin-edited JSON
// and may be booleans, "true"/"false" strings or numbers.
type Features map[string]any

// Lookup reports whether the feature is declared and, if so, whether it is enabled.
func (f Features) Lookup(name string) (enabled bool, declared bool) {
	raw, ok := f[name]
	if !ok || raw == nil {
		return true, false
	}
	return parseFlag(raw), true
}

// Enabled reports whether a feature is usable. Undeclared features are enabled.
func (f Features) Enabled(name string) bool {
	enabled, _ := f.Lookup(name)
	return enabled
}

// parseFlag interprets a feature value. Anything it cannot interpret is
// treated as enabled, same as an absent key.
func parseFlag(v any) bool {
	switch val := v.(type) {
	case bool:
		return val
	case string:
		s := strings.ToLower(strings.TrimSpace(val))
		switch s {
		case "false", "0", "no", "off", "":
			return false
		case "true", "1", "yes", "on":
			return true
		}
		if b, err := strconv.ParseBool(s); err == nil {
			return b
		}
		return true
	case float64:
		return val != 0
	case float32:
		return val != 0
	case int:
		return val != 0
	case int64:
		return val != 0
	case int32:
		return val != 0
	}
	return true
}

// Plan is an immutable entry in the plan catalog
type Plan struct {
	ID           uuid.UUID
	Code         string
	Name         string
	Price        decimal.Decimal
	Currency     string
	BillingCycle BillingCycle
	Features     Features
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// HasFeature reports whether the plan enables the named feature
func (p *Plan) HasFeature(name string) bool {
	return p.Features.Enabled(name)
}

// PeriodEnd returns the end of a paid period that starts at start
func (p *Plan) PeriodEnd(start time.Time) (time.Time, error) {
	return p.BillingCycle.PeriodEnd(start)
}

// Repository is the read side of the plan catalog
type Repository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Plan, error)
	FindActive(ctx context.Context) ([]Plan, error)
}

// FindUpgrades returns the active plans, other than current, that enable the feature
func FindUpgrades(plans []Plan, current uuid.UUID, feature string) []Plan {
	var out []Plan
	for _, p := range plans {
		if !p.IsActive || p.ID == current {
			continue
		}
		if feature == "" || p.HasFeature(feature) {
			out = append(out, p)
		}
	}
	return out
}
