/**
 * @description
 * This package provides a client for interacting with the RevenueCat REST API.
 * It encapsulates the logic for making authenticated HTTP requests to the
 * vendor's subscriber endpoints, handling request body construction, and
 * parsing the raw customer-info response into the shape the facade consumes.
 *
 * @dependencies
 * - bytes, context, encoding/json, fmt, net/http, time: Standard Go libraries.
 */
package revenuecat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"
)

// Entitlement is a single active entitlement from the vendor snapshot.
type Entitlement struct {
	IsActive          bool       `json:"is_active"`
	WillRenew         bool       `json:"will_renew"`
	ExpirationDate    *time.Time `json:"expiration_date,omitempty"`
	ProductIdentifier string     `json:"product_identifier"`
	Store             string     `json:"store"`
	PeriodType        string     `json:"period_type"`
	IsInGracePeriod   bool       `json:"is_in_grace_period"`
}

// Entitlements wraps the active-entitlements mapping keyed by entitlement
// identifier, as configured in the vendor dashboard.
type Entitlements struct {
	Active map[string]Entitlement `json:"active"`
}

// CustomerInfo is the vendor's snapshot of a user's purchase and entitlement
// state. The facade treats it as opaque except for entitlement extraction.
type CustomerInfo struct {
	OriginalAppUserID              string       `json:"original_app_user_id"`
	Entitlements                   Entitlements `json:"entitlements"`
	ActiveSubscriptions            []string     `json:"active_subscriptions"`
	AllPurchasedProductIdentifiers []string     `json:"all_purchased_product_identifiers"`
	RequestDate                    time.Time    `json:"request_date"`
}

// Package is a purchasable unit inside an offering.
type Package struct {
	Identifier        string `json:"identifier"`
	ProductIdentifier string `json:"product_identifier"`
}

// Offering is a vendor-curated bundle of packages.
type Offering struct {
	Identifier string    `json:"identifier"`
	Packages   []Package `json:"packages"`
}

// Offerings is the current offering catalog for a subscriber.
type Offerings struct {
	Current string     `json:"current_offering_id"`
	All     []Offering `json:"offerings"`
}

// PurchaseRequest carries the store receipt the mobile client obtained from
// the platform billing flow.
type PurchaseRequest struct {
	ProductID  string `json:"product_id"`
	FetchToken string `json:"fetch_token"`
	Store      string `json:"store"` // app_store | play_store
}

// Client is the vendor boundary the facade and its tests program against.
type Client interface {
	Configure(ctx context.Context, appUserID string) (*CustomerInfo, error)
	GetCustomerInfo(ctx context.Context, appUserID string) (*CustomerInfo, error)
	PurchasePackage(ctx context.Context, appUserID string, purchase PurchaseRequest) (*CustomerInfo, error)
	RestorePurchases(ctx context.Context, appUserID string) (*CustomerInfo, error)
	LogIn(ctx context.Context, currentAppUserID, newAppUserID string) (*CustomerInfo, error)
	LogOut(ctx context.Context, anonymousAppUserID string) (*CustomerInfo, error)
	GetOfferings(ctx context.Context, appUserID string) (*Offerings, error)
}

// HTTPClient is the live implementation of Client over the RevenueCat REST API.
type HTTPClient struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
	Verbose    bool
}

var _ Client = (*HTTPClient)(nil)

// NewClient creates a new RevenueCat API client.
func NewClient(baseURL, apiKey string, verbose bool) *HTTPClient {
	return &HTTPClient{
		BaseURL: baseURL,
		APIKey:  apiKey,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		Verbose: verbose,
	}
}

// errorResponse is the vendor's structured error body.
type errorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// subscriberResponse is the wire shape of GET /subscribers/{app_user_id}.
type subscriberResponse struct {
	RequestDate time.Time `json:"request_date"`
	Subscriber  struct {
		OriginalAppUserID string `json:"original_app_user_id"`
		Entitlements      map[string]struct {
			ExpiresDate            *time.Time `json:"expires_date"`
			GracePeriodExpiresDate *time.Time `json:"grace_period_expires_date"`
			ProductIdentifier      string     `json:"product_identifier"`
			PurchaseDate           time.Time  `json:"purchase_date"`
		} `json:"entitlements"`
		Subscriptions map[string]struct {
			ExpiresDate           *time.Time `json:"expires_date"`
			UnsubscribeDetectedAt *time.Time `json:"unsubscribe_detected_at"`
			Store                 string     `json:"store"`
			PeriodType            string     `json:"period_type"`
		} `json:"subscriptions"`
		NonSubscriptions map[string][]struct {
			PurchaseDate time.Time `json:"purchase_date"`
		} `json:"non_subscriptions"`
	} `json:"subscriber"`
}

// Configure performs the one-time vendor handshake for an app user. The
// subscriber endpoint creates the record when it does not exist yet, so this
// doubles as the first entitlement fetch.
func (c *HTTPClient) Configure(ctx context.Context, appUserID string) (*CustomerInfo, error) {
	return c.GetCustomerInfo(ctx, appUserID)
}

// GetCustomerInfo fetches the subscriber record and reshapes it into CustomerInfo.
func (c *HTTPClient) GetCustomerInfo(ctx context.Context, appUserID string) (*CustomerInfo, error) {
	var resp subscriberResponse
	path := "/subscribers/" + url.PathEscape(appUserID)
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return reshapeSubscriber(resp), nil
}

// PurchasePackage submits a platform store receipt for validation. The vendor
// returns the updated customer info on success.
func (c *HTTPClient) PurchasePackage(ctx context.Context, appUserID string, purchase PurchaseRequest) (*CustomerInfo, error) {
	payload := struct {
		AppUserID  string `json:"app_user_id"`
		ProductID  string `json:"product_id"`
		FetchToken string `json:"fetch_token"`
		Store      string `json:"store"`
	}{appUserID, purchase.ProductID, purchase.FetchToken, purchase.Store}

	var resp subscriberResponse
	if err := c.do(ctx, http.MethodPost, "/receipts", payload, &resp); err != nil {
		return nil, err
	}
	return reshapeSubscriber(resp), nil
}

// RestorePurchases asks the vendor to re-sync the subscriber against the
// platform store and returns the refreshed customer info.
func (c *HTTPClient) RestorePurchases(ctx context.Context, appUserID string) (*CustomerInfo, error) {
	var resp subscriberResponse
	path := "/subscribers/" + url.PathEscape(appUserID) + "/restore"
	if err := c.do(ctx, http.MethodPost, path, nil, &resp); err != nil {
		return nil, err
	}
	return reshapeSubscriber(resp), nil
}

// LogIn aliases the current (usually anonymous) subscriber onto the identified
// user id and returns the merged customer info.
func (c *HTTPClient) LogIn(ctx context.Context, currentAppUserID, newAppUserID string) (*CustomerInfo, error) {
	payload := struct {
		NewAppUserID string `json:"new_app_user_id"`
	}{newAppUserID}

	path := "/subscribers/" + url.PathEscape(currentAppUserID) + "/alias"
	if err := c.do(ctx, http.MethodPost, path, payload, nil); err != nil {
		return nil, err
	}
	return c.GetCustomerInfo(ctx, newAppUserID)
}

// LogOut switches the vendor session to a fresh anonymous subscriber.
func (c *HTTPClient) LogOut(ctx context.Context, anonymousAppUserID string) (*CustomerInfo, error) {
	return c.GetCustomerInfo(ctx, anonymousAppUserID)
}

// GetOfferings fetches the current offering catalog for a subscriber.
func (c *HTTPClient) GetOfferings(ctx context.Context, appUserID string) (*Offerings, error) {
	var resp struct {
		CurrentOfferingID string `json:"current_offering_id"`
		Offerings         []struct {
			Identifier string `json:"identifier"`
			Packages   []struct {
				Identifier        string `json:"identifier"`
				PlatformProductID string `json:"platform_product_identifier"`
			} `json:"packages"`
		} `json:"offerings"`
	}

	path := "/subscribers/" + url.PathEscape(appUserID) + "/offerings"
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}

	out := &Offerings{Current: resp.CurrentOfferingID}
	for _, o := range resp.Offerings {
		offering := Offering{Identifier: o.Identifier}
		for _, p := range o.Packages {
			offering.Packages = append(offering.Packages, Package{
				Identifier:        p.Identifier,
				ProductIdentifier: p.PlatformProductID,
			})
		}
		out.All = append(out.All, offering)
	}
	return out, nil
}

// do executes an authenticated request and decodes the response into out.
func (c *HTTPClient) do(ctx context.Context, method, path string, payload, out interface{}) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewBuffer(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("X-Platform", "server")

	if c.Verbose {
		log.Printf("level=debug component=revenuecat_client method=%s path=%s", method, path)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errResp errorResponse
		if err := json.Unmarshal(bodyBytes, &errResp); err != nil {
			log.Printf("level=warn component=revenuecat_client method=%s path=%s status=%d msg=\"non-2xx response (unparsable error body)\"", method, path, resp.StatusCode)
			return &APIError{HTTPStatus: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		}
		log.Printf("level=warn component=revenuecat_client method=%s path=%s status=%d code=%d message=%q", method, path, resp.StatusCode, errResp.Code, errResp.Message)
		return &APIError{Code: errResp.Code, Message: errResp.Message, HTTPStatus: resp.StatusCode}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(bodyBytes, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// reshapeSubscriber folds the wire subscriber record into CustomerInfo.
// Entitlement activeness is derived from expiry: a nil expires_date means a
// lifetime grant; a grace_period_expires_date in the future keeps an expired
// entitlement active with the grace flag set.
func reshapeSubscriber(resp subscriberResponse) *CustomerInfo {
	now := resp.RequestDate
	if now.IsZero() {
		now = time.Now()
	}

	info := &CustomerInfo{
		OriginalAppUserID: resp.Subscriber.OriginalAppUserID,
		Entitlements:      Entitlements{Active: map[string]Entitlement{}},
		RequestDate:       now,
	}

	for id, ent := range resp.Subscriber.Entitlements {
		active := ent.ExpiresDate == nil || ent.ExpiresDate.After(now)
		inGrace := false
		if !active && ent.GracePeriodExpiresDate != nil && ent.GracePeriodExpiresDate.After(now) {
			active = true
			inGrace = true
		}
		if !active {
			continue
		}

		e := Entitlement{
			IsActive:          true,
			ExpirationDate:    ent.ExpiresDate,
			ProductIdentifier: ent.ProductIdentifier,
			IsInGracePeriod:   inGrace,
		}
		if sub, ok := resp.Subscriber.Subscriptions[ent.ProductIdentifier]; ok {
			e.WillRenew = sub.UnsubscribeDetectedAt == nil
			e.Store = sub.Store
			e.PeriodType = sub.PeriodType
		}
		info.Entitlements.Active[id] = e
	}

	for productID, sub := range resp.Subscriber.Subscriptions {
		info.AllPurchasedProductIdentifiers = append(info.AllPurchasedProductIdentifiers, productID)
		if sub.ExpiresDate == nil || sub.ExpiresDate.After(now) {
			info.ActiveSubscriptions = append(info.ActiveSubscriptions, productID)
		}
	}
	for productID := range resp.Subscriber.NonSubscriptions {
		info.AllPurchasedProductIdentifiers = append(info.AllPurchasedProductIdentifiers, productID)
	}

	return info
}
