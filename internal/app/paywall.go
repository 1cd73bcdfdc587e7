/**
 * @description
 * This file wraps the vendor paywall UI flow. It maps the vendor's result
 * enum onto the three user callbacks, guards against concurrent
 * presentations, and refreshes the facade after a successful purchase or
 * restore so the new entitlement is visible before onSuccess fires.
 */
package app

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/calorietracker/subscription-service/internal/domain"
)

// ErrAlreadyPresenting is returned when a paywall presentation is requested
// while another one is still on screen.
var ErrAlreadyPresenting = errors.New("a paywall is already being presented")

// PaywallOptions configures a presentation request.
type PaywallOptions struct {
	RequiredEntitlementID string `json:"required_entitlement_id,omitempty"`
	OfferingID            string `json:"offering_id,omitempty"`
}

// Presenter is the vendor paywall UI boundary.
type Presenter interface {
	Present(ctx context.Context, opts PaywallOptions) (domain.PaywallResult, error)
	PresentIfNeeded(ctx context.Context, opts PaywallOptions) (domain.PaywallResult, error)
}

// PaywallCallbacks are the user-facing outcomes of a presentation.
type PaywallCallbacks struct {
	OnSuccess func(result domain.PaywallResult)
	OnError   func(message string)
	OnCancel  func()
}

// PaywallController presents at most one paywall at a time.
type PaywallController struct {
	presenter Presenter
	facade    *Facade
	logger    *slog.Logger

	mu           sync.Mutex
	isPresenting bool
}

// NewPaywallController creates the paywall wrapper around a vendor presenter.
func NewPaywallController(presenter Presenter, facade *Facade, logger *slog.Logger) *PaywallController {
	return &PaywallController{presenter: presenter, facade: facade, logger: logger}
}

// Present shows the vendor paywall and routes the outcome to the callbacks.
// Concurrent calls are rejected as no-ops: exactly one vendor UI invocation
// happens at a time and the second caller gets ErrAlreadyPresenting
// immediately.
func (p *PaywallController) Present(ctx context.Context, opts PaywallOptions, cb PaywallCallbacks) (domain.PaywallResult, error) {
	return p.present(ctx, opts, cb, false)
}

// PresentIfNeeded shows the paywall only when the required entitlement is not
// already held. NOT_PRESENTED is treated as success in this mode: the user
// already has the entitlement.
func (p *PaywallController) PresentIfNeeded(ctx context.Context, opts PaywallOptions, cb PaywallCallbacks) (domain.PaywallResult, error) {
	return p.present(ctx, opts, cb, true)
}

func (p *PaywallController) present(ctx context.Context, opts PaywallOptions, cb PaywallCallbacks, onlyIfNeeded bool) (domain.PaywallResult, error) {
	p.mu.Lock()
	if p.isPresenting {
		p.mu.Unlock()
		return domain.PaywallNotPresented, ErrAlreadyPresenting
	}
	p.isPresenting = true
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.isPresenting = false
		p.mu.Unlock()
	}()

	var (
		result domain.PaywallResult
		err    error
	)
	if onlyIfNeeded {
		result, err = p.presenter.PresentIfNeeded(ctx, opts)
	} else {
		result, err = p.presenter.Present(ctx, opts)
	}
	if err != nil {
		p.logger.Warn("paywall presentation failed", "error", err)
		if cb.OnError != nil {
			cb.OnError(err.Error())
		}
		return domain.PaywallError, err
	}

	switch result {
	case domain.PaywallPurchased, domain.PaywallRestored:
		// Refresh before the success callback so the caller observes the new
		// entitlement state.
		if refreshErr := p.facade.Refresh(ctx); refreshErr != nil {
			p.logger.Warn("post-paywall refresh failed", "error", refreshErr)
		}
		if cb.OnSuccess != nil {
			cb.OnSuccess(result)
		}
	case domain.PaywallNotPresented:
		if onlyIfNeeded {
			// The user already holds the entitlement.
			if cb.OnSuccess != nil {
				cb.OnSuccess(result)
			}
		} else {
			if cb.OnCancel != nil {
				cb.OnCancel()
			}
		}
	case domain.PaywallCancelled:
		if cb.OnCancel != nil {
			cb.OnCancel()
		}
	case domain.PaywallError:
		if cb.OnError != nil {
			cb.OnError("paywall reported an error")
		}
	}

	return result, nil
}
