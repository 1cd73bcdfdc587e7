/**
 * @description
 * This file contains the HTTP handler functions for the subscription-service.
 * Handlers parse incoming requests from the mobile client, invoke the facade
 * actions, and write the resulting view-state as JSON. A degraded facade is
 * not an HTTP error: /status reports it inertly and the app keeps running in
 * free-tier mode.
 */
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/calorietracker/subscription-service/internal/app"
	"github.com/calorietracker/subscription-service/internal/domain"
	"github.com/calorietracker/subscription-service/pkg/revenuecat"
)

// Handler holds the facade and paywall controller the handlers act on.
type Handler struct {
	facade  *app.Facade
	paywall *app.PaywallController
}

// NewHandler creates a new Handler.
func NewHandler(facade *app.Facade, paywall *app.PaywallController) *Handler {
	return &Handler{facade: facade, paywall: paywall}
}

// handleGetStatus returns the full facade snapshot.
func (h *Handler) handleGetStatus(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, h.facade.Snapshot())
}

// handleInitialize configures the vendor session. The app user id is taken
// from the authenticated token when present, else from the request body, else
// an anonymous id is generated.
func (h *Handler) handleInitialize(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AppUserID string `json:"app_user_id"`
	}
	// An empty body is fine; initialization then runs anonymously.
	_ = json.NewDecoder(r.Body).Decode(&req)

	if authID, ok := GetAuthUserID(r.Context()); ok && req.AppUserID == "" {
		req.AppUserID = authID
	}

	if err := h.facade.Initialize(r.Context(), req.AppUserID); err != nil {
		respondWithError(w, http.StatusConflict, err.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, h.facade.Snapshot())
}

// handleRefresh triggers an explicit customer-info fetch.
func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if err := h.facade.Refresh(r.Context()); err != nil {
		h.respondActionError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, h.facade.Snapshot())
}

// handlePurchase submits a store receipt obtained by the mobile billing flow.
func (h *Handler) handlePurchase(w http.ResponseWriter, r *http.Request) {
	var req revenuecat.PurchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.facade.PurchasePackage(r.Context(), req); err != nil {
		h.respondActionError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, h.facade.Snapshot())
}

// handleRestore re-syncs purchases from the platform store.
func (h *Handler) handleRestore(w http.ResponseWriter, r *http.Request) {
	if err := h.facade.RestorePurchases(r.Context()); err != nil {
		h.respondActionError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, h.facade.Snapshot())
}

// handleIdentify aliases the vendor session onto a known user id.
func (h *Handler) handleIdentify(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AppUserID string `json:"app_user_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.AppUserID == "" {
		respondWithError(w, http.StatusBadRequest, "app_user_id is required")
		return
	}

	if err := h.facade.IdentifyUser(r.Context(), req.AppUserID); err != nil {
		h.respondActionError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, h.facade.Snapshot())
}

// handleLogout switches to a fresh anonymous vendor session.
func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := h.facade.LogoutUser(r.Context()); err != nil {
		h.respondActionError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, h.facade.Snapshot())
}

// handleUsageIncrement counts completed recordings locally.
func (h *Handler) handleUsageIncrement(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Count int `json:"count"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	info, err := h.facade.UpdateUsageCount(r.Context(), req.Count)
	if err != nil {
		h.respondActionError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, info)
}

// handleGetOfferings proxies the vendor offering catalog.
func (h *Handler) handleGetOfferings(w http.ResponseWriter, r *http.Request) {
	offerings, err := h.facade.GetOfferings(r.Context())
	if err != nil {
		h.respondActionError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, offerings)
}

// handlePresentPaywall runs the vendor paywall flow and reports the outcome.
func (h *Handler) handlePresentPaywall(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RequiredEntitlementID string `json:"required_entitlement_id"`
		OfferingID            string `json:"offering_id"`
		OnlyIfNeeded          bool   `json:"only_if_needed"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	opts := app.PaywallOptions{
		RequiredEntitlementID: req.RequiredEntitlementID,
		OfferingID:            req.OfferingID,
	}

	var outcome struct {
		Result  domain.PaywallResult `json:"result"`
		Success bool                 `json:"success"`
		Message string               `json:"message,omitempty"`
	}
	cb := app.PaywallCallbacks{
		OnSuccess: func(result domain.PaywallResult) { outcome.Success = true },
		OnError:   func(message string) { outcome.Message = message },
		OnCancel:  func() {},
	}

	var (
		result domain.PaywallResult
		err    error
	)
	if req.OnlyIfNeeded {
		result, err = h.paywall.PresentIfNeeded(r.Context(), opts, cb)
	} else {
		result, err = h.paywall.Present(r.Context(), opts, cb)
	}
	outcome.Result = result

	if errors.Is(err, app.ErrAlreadyPresenting) {
		respondWithError(w, http.StatusConflict, err.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, outcome)
}

// handleReset clears the facade back to Uninitialized.
func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) {
	h.facade.Reset()
	respondWithJSON(w, http.StatusOK, h.facade.Snapshot())
}

// respondActionError maps facade errors onto HTTP statuses.
func (h *Handler) respondActionError(w http.ResponseWriter, err error) {
	var purchaseErr *app.PurchaseFailure
	switch {
	case errors.Is(err, app.ErrNotInitialized):
		respondWithError(w, http.StatusConflict, err.Error())
	case errors.Is(err, app.ErrBusy):
		respondWithError(w, http.StatusConflict, err.Error())
	case errors.As(err, &purchaseErr):
		respondWithJSON(w, http.StatusPaymentRequired, map[string]string{
			"error": purchaseErr.Message,
			"class": string(purchaseErr.Class),
		})
	default:
		respondWithError(w, http.StatusInternalServerError, err.Error())
	}
}

// respondWithJSON is a helper function to write JSON responses.
func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

// respondWithError writes a JSON error envelope.
func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}
