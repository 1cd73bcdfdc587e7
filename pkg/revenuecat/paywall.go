/**
 * @description
 * Remote paywall flow against the vendor. The vendor owns the paywall UI and
 * the purchase it may produce; this client only requests a presentation for a
 * subscriber and maps the returned result code. The if-needed variant checks
 * the required entitlement first and skips the vendor call entirely when the
 * user already holds it.
 */
package revenuecat

import (
	"context"
	"net/http"
	"net/url"
)

// PaywallResultCode is the vendor's paywall outcome enum.
type PaywallResultCode string

const (
	ResultPurchased    PaywallResultCode = "PURCHASED"
	ResultCancelled    PaywallResultCode = "CANCELLED"
	ResultNotPresented PaywallResultCode = "NOT_PRESENTED"
	ResultError        PaywallResultCode = "ERROR"
	ResultRestored     PaywallResultCode = "RESTORED"
)

// PaywallRequest configures a presentation.
type PaywallRequest struct {
	AppUserID             string `json:"app_user_id"`
	RequiredEntitlementID string `json:"required_entitlement_id,omitempty"`
	OfferingID            string `json:"offering_id,omitempty"`
}

// Paywall drives the vendor paywall flow for one subscriber.
type Paywall struct {
	client *HTTPClient
}

// NewPaywall creates the paywall client over an existing API client.
func NewPaywall(client *HTTPClient) *Paywall {
	return &Paywall{client: client}
}

// Present requests a paywall presentation and returns the vendor result code.
func (p *Paywall) Present(ctx context.Context, req PaywallRequest) (PaywallResultCode, error) {
	var resp struct {
		Result PaywallResultCode `json:"result"`
	}
	path := "/subscribers/" + url.PathEscape(req.AppUserID) + "/paywall"
	if err := p.client.do(ctx, http.MethodPost, path, req, &resp); err != nil {
		return ResultError, err
	}
	return resp.Result, nil
}

// PresentIfNeeded presents only when the required entitlement is not already
// active. NOT_PRESENTED is returned without a vendor paywall call when the
// entitlement is held.
func (p *Paywall) PresentIfNeeded(ctx context.Context, req PaywallRequest) (PaywallResultCode, error) {
	if req.RequiredEntitlementID != "" {
		info, err := p.client.GetCustomerInfo(ctx, req.AppUserID)
		if err != nil {
			return ResultError, err
		}
		if ent, ok := info.Entitlements.Active[req.RequiredEntitlementID]; ok && ent.IsActive {
			return ResultNotPresented, nil
		}
	}
	return p.Present(ctx, req)
}
