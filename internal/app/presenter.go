/**
 * @description
 * Adapter from the vendor paywall client onto the Presenter boundary the
 * paywall controller consumes. It fills in the current session's app user id
 * and translates the vendor result codes into the domain enum.
 */
package app

import (
	"context"

	"github.com/calorietracker/subscription-service/internal/domain"
	"github.com/calorietracker/subscription-service/pkg/revenuecat"
)

// VendorPresenter presents paywalls through the RevenueCat paywall client.
type VendorPresenter struct {
	paywall *revenuecat.Paywall
	facade  *Facade
}

var _ Presenter = (*VendorPresenter)(nil)

// NewVendorPresenter creates the adapter.
func NewVendorPresenter(paywall *revenuecat.Paywall, facade *Facade) *VendorPresenter {
	return &VendorPresenter{paywall: paywall, facade: facade}
}

// Present shows the paywall for the current session.
func (v *VendorPresenter) Present(ctx context.Context, opts PaywallOptions) (domain.PaywallResult, error) {
	code, err := v.paywall.Present(ctx, v.request(opts))
	return mapPaywallResult(code), err
}

// PresentIfNeeded shows the paywall only when the required entitlement is missing.
func (v *VendorPresenter) PresentIfNeeded(ctx context.Context, opts PaywallOptions) (domain.PaywallResult, error) {
	code, err := v.paywall.PresentIfNeeded(ctx, v.request(opts))
	return mapPaywallResult(code), err
}

func (v *VendorPresenter) request(opts PaywallOptions) revenuecat.PaywallRequest {
	return revenuecat.PaywallRequest{
		AppUserID:             v.facade.AppUserID(),
		RequiredEntitlementID: opts.RequiredEntitlementID,
		OfferingID:            opts.OfferingID,
	}
}

func mapPaywallResult(code revenuecat.PaywallResultCode) domain.PaywallResult {
	switch code {
	case revenuecat.ResultPurchased:
		return domain.PaywallPurchased
	case revenuecat.ResultRestored:
		return domain.PaywallRestored
	case revenuecat.ResultCancelled:
		return domain.PaywallCancelled
	case revenuecat.ResultNotPresented:
		return domain.PaywallNotPresented
	default:
		return domain.PaywallError
	}
}
