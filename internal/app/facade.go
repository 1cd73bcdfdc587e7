/**
 * @description
 * This file contains the subscription-state facade, the single owner of the
 * app's subscription view-state. It mirrors the remote entitlement source of
 * truth (the RevenueCat subscriber record) into local state, exposes the
 * imperative actions the mobile UI invokes, and folds vendor push updates
 * into the same state. All divergent retry/guard logic from the old mobile
 * hooks is consolidated here into one state machine with a single attempt
 * counter.
 */
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/calorietracker/subscription-service/internal/config"
	"github.com/calorietracker/subscription-service/internal/domain"
	"github.com/calorietracker/subscription-service/internal/store"
	"github.com/calorietracker/subscription-service/pkg/revenuecat"
)

var (
	// ErrNotInitialized is returned by actions that require a configured
	// vendor session.
	ErrNotInitialized = errors.New("subscription facade is not initialized")

	// ErrBusy is returned when an action is invoked while another mutating
	// vendor call is still in flight.
	ErrBusy = errors.New("another subscription operation is in progress")
)

// PurchaseFailure is a purchase/restore error classified for user messaging.
type PurchaseFailure struct {
	Class   revenuecat.PurchaseErrorClass
	Message string
}

func (e *PurchaseFailure) Error() string {
	return fmt.Sprintf("purchase failed (%s): %s", e.Class, e.Message)
}

// UsageStore is the persistence boundary for the monthly usage counter.
// Persistence is best-effort: failures are logged and swallowed, never
// surfaced to the caller, since the counter is not a billing source of truth.
type UsageStore interface {
	LoadUsage(ctx context.Context, appUserID string) (*store.UsageRecord, error)
	SaveUsage(ctx context.Context, appUserID string, recordingsUsed int, lastReset time.Time) error
	ResetUsage(ctx context.Context, appUserID string) error
}

const (
	anonymousIDPrefix = "$anon:"
	retryBackoff      = 500 * time.Millisecond
)

// Facade owns the one FacadeState instance for the running app and is the
// only component allowed to mutate it.
type Facade struct {
	client revenuecat.Client
	usage  UsageStore
	cfg    config.Config
	limits domain.TierLimits
	logger *slog.Logger

	mu               sync.Mutex
	state            domain.FacadeStateName
	isLoading        bool
	appUserID        string
	customerInfo     *revenuecat.CustomerInfo
	subscription     domain.SubscriptionStatus
	recordingsUsed   int
	lastReset        time.Time
	errMsg           string
	listenerAttached bool
	initAttempts     int
	closed           bool
}

// NewFacade creates the subscription facade. It starts Uninitialized; nothing
// talks to the vendor until Initialize is called.
func NewFacade(client revenuecat.Client, usage UsageStore, cfg config.Config, logger *slog.Logger) *Facade {
	return &Facade{
		client: client,
		usage:  usage,
		cfg:    cfg,
		limits: domain.TierLimits{
			Free: cfg.FreeTierRecordingLimit,
			Pro:  proLimit(cfg.ProTierRecordingLimit),
		},
		logger:       logger,
		state:        domain.StateUninitialized,
		subscription: domain.DefaultSubscriptionStatus(),
		lastReset:    time.Now(),
	}
}

// proLimit maps the configured pro-tier limit onto the domain convention
// where zero or negative means unlimited.
func proLimit(configured int) int {
	if configured <= 0 {
		return domain.UnlimitedRecordings
	}
	return configured
}

// Initialize configures the vendor session exactly once per process lifetime.
// Repeat calls while Initializing or already Ready are no-ops. On repeated
// failure the facade lands in Degraded with a FREE-tier default so the app
// stays usable without purchases.
func (f *Facade) Initialize(ctx context.Context, userID string) error {
	f.mu.Lock()
	if f.state == domain.StateInitializing || f.state == domain.StateReady {
		f.mu.Unlock()
		return nil
	}
	if f.state == domain.StateDegraded {
		// Degraded requires an explicit Reset before re-initialization.
		f.mu.Unlock()
		return fmt.Errorf("%w: facade is degraded, call reset first", ErrNotInitialized)
	}

	appUserID := strings.TrimSpace(userID)
	if appUserID == "" {
		appUserID = anonymousIDPrefix + uuid.NewString()
	}
	f.state = domain.StateInitializing
	f.isLoading = true
	f.appUserID = appUserID
	f.initAttempts = 0
	f.mu.Unlock()

	if err := f.cfg.ValidateAPIKey(); err != nil {
		f.failInitialization(err)
		return nil
	}

	// Known vendor-race workaround: a short fixed delay before the first
	// configure call. See CONFIGURE_DELAY_MS.
	if f.cfg.ConfigureDelayMs > 0 {
		select {
		case <-time.After(time.Duration(f.cfg.ConfigureDelayMs) * time.Millisecond):
		case <-ctx.Done():
			f.failInitialization(ctx.Err())
			return nil
		}
	}

	var (
		info *revenuecat.CustomerInfo
		err  error
	)
	for attempt := 1; attempt <= f.cfg.InitRetryAttempts; attempt++ {
		f.mu.Lock()
		f.initAttempts = attempt
		f.mu.Unlock()

		// The first entitlement fetch races a fixed deadline; a timeout is
		// treated as a failed attempt.
		fetchCtx, cancel := context.WithTimeout(ctx, time.Duration(f.cfg.FirstFetchTimeoutS)*time.Second)
		info, err = f.client.Configure(fetchCtx, appUserID)
		cancel()
		if err == nil {
			break
		}

		f.logger.Warn("vendor configure attempt failed",
			"attempt", attempt,
			"max_attempts", f.cfg.InitRetryAttempts,
			"class", revenuecat.Classify(err),
			"error", err)

		if attempt < f.cfg.InitRetryAttempts {
			select {
			case <-time.After(retryBackoff):
			case <-ctx.Done():
				f.failInitialization(ctx.Err())
				return nil
			}
		}
	}

	if err != nil {
		f.failInitialization(err)
		return nil
	}

	used, lastReset := f.loadUsage(ctx, appUserID)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.customerInfo = info
	f.subscription = f.parseEntitlements(info)
	f.recordingsUsed = used
	f.lastReset = lastReset
	f.state = domain.StateReady
	f.isLoading = false
	f.errMsg = ""
	f.logger.Info("subscription facade ready", "app_user_id", appUserID, "tier", f.subscription.Tier)
	return nil
}

// failInitialization lands the facade in Degraded with the FREE default.
func (f *Facade) failInitialization(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = domain.StateDegraded
	f.isLoading = false
	f.customerInfo = nil
	f.subscription = domain.DefaultSubscriptionStatus()
	f.errMsg = revenuecat.UserMessage(err)
	f.logger.Error("subscription initialization failed; continuing in degraded free-tier mode",
		"attempts", f.initAttempts, "error", err)
}

// Refresh fetches a fresh customer-info snapshot and folds it into state.
// Whichever vendor response arrives last wins; there is no ordering guarantee
// versus push updates.
func (f *Facade) Refresh(ctx context.Context) error {
	f.mu.Lock()
	if f.appUserID == "" {
		f.mu.Unlock()
		return ErrNotInitialized
	}
	appUserID := f.appUserID
	f.isLoading = true
	f.mu.Unlock()

	info, err := f.client.GetCustomerInfo(ctx, appUserID)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.isLoading = false
	if err != nil {
		f.errMsg = revenuecat.UserMessage(err)
		return err
	}
	f.foldLocked(info)
	return nil
}

// PurchasePackage submits a store receipt through the vendor and folds the
// resulting snapshot. Failures are classified into {cancelled,
// payment-pending, network, other} for user messaging.
func (f *Facade) PurchasePackage(ctx context.Context, purchase revenuecat.PurchaseRequest) error {
	return f.mutateThroughVendor(ctx, "purchase", func(ctx context.Context, appUserID string) (*revenuecat.CustomerInfo, error) {
		return f.client.PurchasePackage(ctx, appUserID, purchase)
	})
}

// RestorePurchases re-syncs the subscriber against the platform store.
func (f *Facade) RestorePurchases(ctx context.Context) error {
	return f.mutateThroughVendor(ctx, "restore", func(ctx context.Context, appUserID string) (*revenuecat.CustomerInfo, error) {
		return f.client.RestorePurchases(ctx, appUserID)
	})
}

// IdentifyUser aliases the current vendor session onto a known user id and
// switches the usage counter to that user's row.
func (f *Facade) IdentifyUser(ctx context.Context, newUserID string) error {
	newUserID = strings.TrimSpace(newUserID)
	if newUserID == "" {
		return errors.New("user id cannot be empty")
	}
	err := f.mutateThroughVendor(ctx, "identify", func(ctx context.Context, appUserID string) (*revenuecat.CustomerInfo, error) {
		return f.client.LogIn(ctx, appUserID, newUserID)
	})
	if err != nil {
		return err
	}
	f.switchUser(ctx, newUserID)
	return nil
}

// LogoutUser switches the vendor session to a fresh anonymous subscriber.
func (f *Facade) LogoutUser(ctx context.Context) error {
	anonID := anonymousIDPrefix + uuid.NewString()
	err := f.mutateThroughVendor(ctx, "logout", func(ctx context.Context, appUserID string) (*revenuecat.CustomerInfo, error) {
		return f.client.LogOut(ctx, anonID)
	})
	if err != nil {
		return err
	}
	f.switchUser(ctx, anonID)
	return nil
}

// mutateThroughVendor is the shared shape of every vendor-mutating action:
// take the loading guard, call the vendor, fold the snapshot, release.
func (f *Facade) mutateThroughVendor(ctx context.Context, op string, call func(context.Context, string) (*revenuecat.CustomerInfo, error)) error {
	f.mu.Lock()
	if f.appUserID == "" || f.state == domain.StateUninitialized {
		f.mu.Unlock()
		return ErrNotInitialized
	}
	if f.isLoading {
		f.mu.Unlock()
		return ErrBusy
	}
	appUserID := f.appUserID
	f.isLoading = true
	f.mu.Unlock()

	info, err := call(ctx, appUserID)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.isLoading = false
	if err != nil {
		class := revenuecat.ClassifyPurchase(err)
		f.errMsg = err.Error()
		f.logger.Warn("vendor operation failed", "op", op, "class", class, "error", err)
		return &PurchaseFailure{Class: class, Message: err.Error()}
	}
	f.foldLocked(info)
	return nil
}

// switchUser repoints the usage counter at a different app user row after a
// successful identify/logout.
func (f *Facade) switchUser(ctx context.Context, newAppUserID string) {
	used, lastReset := f.loadUsage(ctx, newAppUserID)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.appUserID = newAppUserID
	f.recordingsUsed = used
	f.lastReset = lastReset
}

// UpdateUsageCount is a pure local increment: it recomputes UsageInfo from
// (currentTier, used+n) and best-effort persists the counter. It never calls
// the vendor and never alters SubscriptionStatus.
func (f *Facade) UpdateUsageCount(ctx context.Context, n int) (domain.UsageInfo, error) {
	if n <= 0 {
		n = 1
	}

	f.mu.Lock()
	if f.appUserID == "" {
		f.mu.Unlock()
		return domain.UsageInfo{}, ErrNotInitialized
	}

	now := time.Now()
	if !domain.SameMonth(f.lastReset, now) {
		f.recordingsUsed = 0
		f.lastReset = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	}
	f.recordingsUsed += n
	appUserID := f.appUserID
	used := f.recordingsUsed
	lastReset := f.lastReset
	info := domain.NewUsageInfo(f.limits, f.subscription.Tier, used, now)
	f.mu.Unlock()

	if err := f.usage.SaveUsage(ctx, appUserID, used, lastReset); err != nil {
		// Best-effort persistence: the counter is view-state, not billing truth.
		f.logger.Warn("failed to persist usage counter", "app_user_id", appUserID, "error", err)
	}
	return info, nil
}

// ApplyCustomerInfo is the push-update entry point. Each push delivers a
// fresh snapshot which is folded unconditionally: last write observed wins.
func (f *Facade) ApplyCustomerInfo(info *revenuecat.CustomerInfo) {
	if info == nil {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed || f.appUserID == "" {
		return
	}
	f.foldLocked(info)
}

// foldLocked replaces the entitlement-derived state wholesale from a vendor
// snapshot. Callers must hold f.mu.
func (f *Facade) foldLocked(info *revenuecat.CustomerInfo) {
	f.customerInfo = info
	f.subscription = f.parseEntitlements(info)
	f.errMsg = ""
	if f.state == domain.StateDegraded {
		f.state = domain.StateReady
	}
}

// AttachListener marks the push-update listener as attached. It returns false
// when a listener is already attached so the consumer is wired at most once.
func (f *Facade) AttachListener() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listenerAttached || f.closed {
		return false
	}
	f.listenerAttached = true
	return true
}

// AppUserID returns the vendor app user id of the current session.
func (f *Facade) AppUserID() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.appUserID
}

// Reset clears all guards and state back to Uninitialized. This is the
// explicit escape hatch out of Degraded.
func (f *Facade) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = domain.StateUninitialized
	f.isLoading = false
	f.appUserID = ""
	f.customerInfo = nil
	f.subscription = domain.DefaultSubscriptionStatus()
	f.recordingsUsed = 0
	f.lastReset = time.Now()
	f.errMsg = ""
	f.initAttempts = 0
	f.listenerAttached = false
	f.closed = false
}

// Close detaches the push listener and stops the facade from folding any
// further updates.
func (f *Facade) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listenerAttached = false
	f.closed = true
}

// Snapshot returns a read-only copy of the facade state. Other consumers
// derive from this instead of re-deriving entitlements themselves.
func (f *Facade) Snapshot() domain.FacadeState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return domain.FacadeState{
		State:        f.state,
		IsLoading:    f.isLoading,
		AppUserID:    f.appUserID,
		Subscription: f.subscription,
		Usage:        domain.NewUsageInfo(f.limits, f.subscription.Tier, f.recordingsUsed, time.Now()),
		Error:        f.errMsg,
	}
}

// GetOfferings proxies the vendor offering catalog for the current session.
func (f *Facade) GetOfferings(ctx context.Context) (*revenuecat.Offerings, error) {
	f.mu.Lock()
	appUserID := f.appUserID
	f.mu.Unlock()
	if appUserID == "" {
		return nil, ErrNotInitialized
	}
	return f.client.GetOfferings(ctx, appUserID)
}

// loadUsage reads the persisted counter, tolerating absence and failure.
func (f *Facade) loadUsage(ctx context.Context, appUserID string) (int, time.Time) {
	now := time.Now()
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())

	rec, err := f.usage.LoadUsage(ctx, appUserID)
	if err != nil {
		if !errors.Is(err, store.ErrUsageNotFound) {
			f.logger.Warn("failed to load usage counter; starting from zero", "app_user_id", appUserID, "error", err)
		}
		return 0, start
	}
	return rec.RecordingsUsed, rec.LastReset
}

// parseEntitlements derives the subscription tier from the raw active
// entitlements. The lookup cascades: exact configured key, case-insensitive
// key, key containing "pro", then a direct check of purchased product
// identifiers. The cascade exists because entitlement key casing is not
// contractually guaranteed by the vendor dashboard; every fallback hit is
// logged so the ambiguity stays observable.
func (f *Facade) parseEntitlements(info *revenuecat.CustomerInfo) domain.SubscriptionStatus {
	if info == nil || len(info.Entitlements.Active) == 0 {
		if info != nil && f.matchesProProduct(info) {
			f.logger.Warn("entitlement resolved via product-id fallback", "app_user_id", info.OriginalAppUserID)
			return domain.SubscriptionStatus{IsActive: true, Tier: domain.TierPro}
		}
		return domain.DefaultSubscriptionStatus()
	}

	active := info.Entitlements.Active

	// Elite outranks pro when both are granted.
	for key, ent := range active {
		if strings.EqualFold(key, "elite") {
			return statusFromEntitlement(domain.TierElite, ent)
		}
	}

	if ent, ok := active[f.cfg.ProEntitlementID]; ok {
		return statusFromEntitlement(domain.TierPro, ent)
	}

	for key, ent := range active {
		if strings.EqualFold(key, f.cfg.ProEntitlementID) {
			f.logger.Warn("entitlement resolved via case-insensitive fallback", "configured", f.cfg.ProEntitlementID, "actual", key)
			return statusFromEntitlement(domain.TierPro, ent)
		}
	}

	for key, ent := range active {
		if strings.Contains(strings.ToLower(key), "pro") {
			f.logger.Warn("entitlement resolved via substring fallback", "configured", f.cfg.ProEntitlementID, "actual", key)
			return statusFromEntitlement(domain.TierPro, ent)
		}
	}

	if f.matchesProProduct(info) {
		f.logger.Warn("entitlement resolved via product-id fallback", "app_user_id", info.OriginalAppUserID)
		return domain.SubscriptionStatus{IsActive: true, Tier: domain.TierPro}
	}

	return domain.DefaultSubscriptionStatus()
}

// matchesProProduct checks purchased product identifiers against the known
// pro product-id list, the last rung of the entitlement cascade.
func (f *Facade) matchesProProduct(info *revenuecat.CustomerInfo) bool {
	if len(f.cfg.ProProductIDs) == 0 {
		return false
	}
	known := make(map[string]bool, len(f.cfg.ProProductIDs))
	for _, id := range f.cfg.ProProductIDs {
		known[id] = true
	}
	for _, id := range info.ActiveSubscriptions {
		if known[id] {
			return true
		}
	}
	return false
}

func statusFromEntitlement(tier domain.Tier, ent revenuecat.Entitlement) domain.SubscriptionStatus {
	status := domain.SubscriptionStatus{
		IsActive:        true,
		Tier:            tier,
		ExpirationDate:  ent.ExpirationDate,
		WillRenew:       ent.WillRenew,
		IsInGracePeriod: ent.IsInGracePeriod,
	}
	if ent.ProductIdentifier != "" {
		productID := ent.ProductIdentifier
		status.ProductIdentifier = &productID
	}
	return status
}
