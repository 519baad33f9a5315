// Package access defines the allow/deny vocabulary of the feature gate.
package access

import (
	"github.com/bizbook/backend/internal/domain/account"
	"github.com/bizbook/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// Reason is a machine-readable denial code returned to clients
type Reason string

const (
	ReasonNoSubscription      Reason = "NO_SUBSCRIPTION"
	ReasonSubscriptionExpired Reason = "SUBSCRIPTION_EXPIRED"
	ReasonFeatureNotAvailable Reason = "FEATURE_NOT_AVAILABLE"
	ReasonFeatureNotInPlan    Reason = "FEATURE_NOT_IN_PLAN"
	ReasonWrongAccountType    Reason = "ACCOUNT_TYPE_NOT_ALLOWED"
)

// Message returns the user-facing text for a denial reason
func (r Reason) Message() string {
	switch r {
	case ReasonNoSubscription:
		return "A subscription is required for this action"
	case ReasonSubscriptionExpired:
		return "Your subscription has expired. Renew to continue making changes"
	case ReasonFeatureNotAvailable:
		return "This feature is only available to business accounts"
	case ReasonFeatureNotInPlan:
		return "This feature is not included in your current plan"
	case ReasonWrongAccountType:
		return "This action is not available for your account type"
	}
	return "Access denied"
}

// Business-only features individual accounts can never use
const (
	FeatureCustomers  = "customers"
	FeatureVendors    = "vendors"
	FeatureStock      = "stock"
	FeatureProfitLoss = "profit_loss"
	FeatureBranches   = "branches"
)

var businessOnlyFeatures = map[string]struct{}{
	FeatureCustomers:  {},
	FeatureVendors:    {},
	FeatureStock:      {},
	FeatureProfitLoss: {},
	FeatureBranches:   {},
}

// IsBusinessOnly reports whether individual accounts are denied the feature
func IsBusinessOnly(feature string) bool {
	_, ok := businessOnlyFeatures[feature]
	return ok
}

// BusinessOnlyFeatures returns the fixed set of business-only features
func BusinessOnlyFeatures() []string {
	return []string{FeatureCustomers, FeatureVendors, FeatureStock, FeatureProfitLoss, FeatureBranches}
}

// Subject is the caller an authorization decision is made for
type Subject struct {
	UserID     uuid.UUID
	BusinessID *uuid.UUID
	Type       account.Type
}

// IsIndividual returns true unless the subject is a business account
func (s Subject) IsIndividual() bool {
	return s.Type != account.TypeBusiness || s.BusinessID == nil
}

// Decision is the outcome of one policy
type Decision struct {
	Allowed          bool
	Reason           Reason
	Feature          string
	CurrentPlan      string
	UpgradeAvailable bool
}

// Allow is the permitting decision
func Allow() Decision {
	return Decision{Allowed: true}
}

// Deny builds a denial with the given reason
func Deny(reason Reason) Decision {
	return Decision{Reason: reason}
}

// Err converts a denial into a ForbiddenError; it returns nil when allowed
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	fe := shared.NewForbiddenError(string(d.Reason), d.Reason.Message())
	fe.Feature = d.Feature
	fe.CurrentPlan = d.CurrentPlan
	fe.UpgradeAvailable = d.UpgradeAvailable
	return fe
}
