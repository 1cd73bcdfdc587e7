/**
 * @description
 * This file defines the core domain models for the subscription-service.
 * It includes the subscription tier enum, the SubscriptionStatus and UsageInfo
 * value records the mobile client renders from, and the facade lifecycle states.
 */
package domain

import (
	"time"
)

// Tier is the app's local classification of subscription level, derived
// from the vendor's entitlement snapshot.
type Tier string

const (
	TierFree  Tier = "free"
	TierPro   Tier = "pro"
	TierElite Tier = "elite"
)

// UnlimitedRecordings marks a tier with no recording cap.
// Exposed to clients as -1, matching the app's convention for "unlimited".
const UnlimitedRecordings = -1

// TierLimits maps each tier to its monthly recording allowance.
type TierLimits struct {
	Free int
	Pro  int // UnlimitedRecordings means no cap
}

// LimitFor returns the recording limit for a tier. Elite is always unlimited.
func (l TierLimits) LimitFor(tier Tier) int {
	switch tier {
	case TierPro:
		return l.Pro
	case TierElite:
		return UnlimitedRecordings
	default:
		return l.Free
	}
}

// SubscriptionStatus is the simplified view of a user's entitlement state.
// It is derived entirely from the latest vendor snapshot and always replaced
// wholesale, never mutated in place.
type SubscriptionStatus struct {
	IsActive          bool       `json:"is_active"`
	Tier              Tier       `json:"tier"`
	ExpirationDate    *time.Time `json:"expiration_date,omitempty"`
	WillRenew         bool       `json:"will_renew"`
	IsInGracePeriod   bool       `json:"is_in_grace_period"`
	ProductIdentifier *string    `json:"product_identifier,omitempty"`
}

// DefaultSubscriptionStatus is the state before the first successful vendor
// fetch and after any unrecoverable error: free tier, inactive.
func DefaultSubscriptionStatus() SubscriptionStatus {
	return SubscriptionStatus{IsActive: false, Tier: TierFree}
}

// UsageInfo describes the user's recording usage for the current month.
type UsageInfo struct {
	RecordingsUsed      int       `json:"recordings_used"`
	RecordingsLimit     int       `json:"recordings_limit"` // -1 for unlimited
	RecordingsRemaining int       `json:"recordings_remaining"`
	Unlimited           bool      `json:"unlimited"`
	ResetDate           time.Time `json:"reset_date"`
}

// NewUsageInfo computes UsageInfo as a pure function of (tier, used) against
// the configured limits table. ResetDate is the first day of the next
// calendar month at local midnight.
func NewUsageInfo(limits TierLimits, tier Tier, used int, now time.Time) UsageInfo {
	if used < 0 {
		used = 0
	}

	limit := limits.LimitFor(tier)
	info := UsageInfo{
		RecordingsUsed:  used,
		RecordingsLimit: limit,
		ResetDate:       NextMonthStart(now),
	}

	if limit == UnlimitedRecordings {
		info.Unlimited = true
		info.RecordingsRemaining = UnlimitedRecordings
		return info
	}

	remaining := limit - used
	if remaining < 0 {
		remaining = 0
	}
	info.RecordingsRemaining = remaining
	return info
}

// NextMonthStart returns the first day of the month after t, at local midnight.
func NextMonthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location()).AddDate(0, 1, 0)
}

// SameMonth reports whether two timestamps fall in the same calendar month.
func SameMonth(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month()
}

// FacadeStateName is the lifecycle state of the subscription facade.
type FacadeStateName string

const (
	StateUninitialized FacadeStateName = "uninitialized"
	StateInitializing  FacadeStateName = "initializing"
	StateReady         FacadeStateName = "ready"
	StateDegraded      FacadeStateName = "degraded"
)

// FacadeState is the full view-state snapshot returned to the API layer.
// Consumers receive a copy; only the facade mutates the underlying state.
type FacadeState struct {
	State        FacadeStateName    `json:"state"`
	IsLoading    bool               `json:"is_loading"`
	AppUserID    string             `json:"app_user_id,omitempty"`
	Subscription SubscriptionStatus `json:"subscription"`
	Usage        UsageInfo          `json:"usage"`
	Error        string             `json:"error,omitempty"`
}

// EntitlementEvent is the payload the webhook edge publishes to RabbitMQ for
// every vendor notification (INITIAL_PURCHASE, RENEWAL, CANCELLATION, ...).
type EntitlementEvent struct {
	AppUserID string    `json:"app_user_id"`
	EventType string    `json:"event_type"`
	ProductID string    `json:"product_id,omitempty"`
	EventAt   time.Time `json:"event_at"`
}

// PaywallResult is the outcome of a vendor paywall presentation.
type PaywallResult string

const (
	PaywallPurchased    PaywallResult = "PURCHASED"
	PaywallCancelled    PaywallResult = "CANCELLED"
	PaywallNotPresented PaywallResult = "NOT_PRESENTED"
	PaywallError        PaywallResult = "ERROR"
	PaywallRestored     PaywallResult = "RESTORED"
)
