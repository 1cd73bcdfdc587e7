package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/calorietracker/subscription-service/internal/config"
	"github.com/calorietracker/subscription-service/internal/domain"
	"github.com/calorietracker/subscription-service/internal/store"
	"github.com/calorietracker/subscription-service/pkg/revenuecat"
)

// stubClient is a programmable in-memory revenuecat.Client for tests.
type stubClient struct {
	mu             sync.Mutex
	configureCalls int
	getInfoCalls   int
	purchaseCalls  int

	configureFn func(ctx context.Context, appUserID string) (*revenuecat.CustomerInfo, error)
	getInfoFn   func(ctx context.Context, appUserID string) (*revenuecat.CustomerInfo, error)
	purchaseFn  func(ctx context.Context, appUserID string, purchase revenuecat.PurchaseRequest) (*revenuecat.CustomerInfo, error)
}

func (s *stubClient) Configure(ctx context.Context, appUserID string) (*revenuecat.CustomerInfo, error) {
	s.mu.Lock()
	s.configureCalls++
	s.mu.Unlock()
	if s.configureFn != nil {
		return s.configureFn(ctx, appUserID)
	}
	return freeInfo(appUserID), nil
}

func (s *stubClient) GetCustomerInfo(ctx context.Context, appUserID string) (*revenuecat.CustomerInfo, error) {
	s.mu.Lock()
	s.getInfoCalls++
	s.mu.Unlock()
	if s.getInfoFn != nil {
		return s.getInfoFn(ctx, appUserID)
	}
	return freeInfo(appUserID), nil
}

func (s *stubClient) PurchasePackage(ctx context.Context, appUserID string, purchase revenuecat.PurchaseRequest) (*revenuecat.CustomerInfo, error) {
	s.mu.Lock()
	s.purchaseCalls++
	s.mu.Unlock()
	if s.purchaseFn != nil {
		return s.purchaseFn(ctx, appUserID, purchase)
	}
	return freeInfo(appUserID), nil
}

func (s *stubClient) RestorePurchases(ctx context.Context, appUserID string) (*revenuecat.CustomerInfo, error) {
	return freeInfo(appUserID), nil
}

func (s *stubClient) LogIn(ctx context.Context, currentAppUserID, newAppUserID string) (*revenuecat.CustomerInfo, error) {
	return freeInfo(newAppUserID), nil
}

func (s *stubClient) LogOut(ctx context.Context, anonymousAppUserID string) (*revenuecat.CustomerInfo, error) {
	return freeInfo(anonymousAppUserID), nil
}

func (s *stubClient) GetOfferings(ctx context.Context, appUserID string) (*revenuecat.Offerings, error) {
	return &revenuecat.Offerings{Current: "default"}, nil
}

type savedUsage struct {
	appUserID string
	used      int
	lastReset time.Time
}

// stubUsageStore is an in-memory UsageStore that records every save.
type stubUsageStore struct {
	mu      sync.Mutex
	records map[string]store.UsageRecord
	saves   []savedUsage
	loadErr error
	saveErr error
}

func newStubUsageStore() *stubUsageStore {
	return &stubUsageStore{records: map[string]store.UsageRecord{}}
}

func (s *stubUsageStore) LoadUsage(ctx context.Context, appUserID string) (*store.UsageRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	rec, ok := s.records[appUserID]
	if !ok {
		return nil, store.ErrUsageNotFound
	}
	return &rec, nil
}

func (s *stubUsageStore) SaveUsage(ctx context.Context, appUserID string, recordingsUsed int, lastReset time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.records[appUserID] = store.UsageRecord{AppUserID: appUserID, RecordingsUsed: recordingsUsed, LastReset: lastReset}
	s.saves = append(s.saves, savedUsage{appUserID: appUserID, used: recordingsUsed, lastReset: lastReset})
	return nil
}

func (s *stubUsageStore) ResetUsage(ctx context.Context, appUserID string) error {
	return s.SaveUsage(ctx, appUserID, 0, time.Now())
}

func (s *stubUsageStore) saveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.saves)
}

func (s *stubUsageStore) lastSave() savedUsage {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.saves) == 0 {
		return savedUsage{}
	}
	return s.saves[len(s.saves)-1]
}

func testConfig() config.Config {
	return config.Config{
		Platform:               config.PlatformIOS,
		BuildProfile:           config.ProfileDevelopment,
		RevenueCatAppleKey:     "appl_test_key_12345",
		ProEntitlementID:       "pro",
		FreeTierRecordingLimit: 10,
		ProTierRecordingLimit:  300,
		InitRetryAttempts:      3,
		ConfigureDelayMs:       0,
		FirstFetchTimeoutS:     2,
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func freeInfo(appUserID string) *revenuecat.CustomerInfo {
	return &revenuecat.CustomerInfo{
		OriginalAppUserID: appUserID,
		Entitlements:      revenuecat.Entitlements{Active: map[string]revenuecat.Entitlement{}},
		RequestDate:       time.Now(),
	}
}

func entitledInfo(appUserID, entitlementKey, productID string) *revenuecat.CustomerInfo {
	expiry := time.Now().Add(30 * 24 * time.Hour)
	return &revenuecat.CustomerInfo{
		OriginalAppUserID: appUserID,
		Entitlements: revenuecat.Entitlements{Active: map[string]revenuecat.Entitlement{
			entitlementKey: {
				IsActive:          true,
				WillRenew:         true,
				ExpirationDate:    &expiry,
				ProductIdentifier: productID,
			},
		}},
		ActiveSubscriptions: []string{productID},
		RequestDate:         time.Now(),
	}
}

func TestInitializeConfiguresVendorOnce(t *testing.T) {
	client := &stubClient{}
	f := NewFacade(client, newStubUsageStore(), testConfig(), testLogger())

	if err := f.Initialize(context.Background(), "user_123"); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if err := f.Initialize(context.Background(), "user_123"); err != nil {
		t.Fatalf("expected nil error on repeat call, got %v", err)
	}

	if client.configureCalls != 1 {
		t.Fatalf("expected exactly 1 configure call, got %d", client.configureCalls)
	}

	snap := f.Snapshot()
	if snap.State != domain.StateReady {
		t.Fatalf("expected state %s, got %s", domain.StateReady, snap.State)
	}
	if snap.AppUserID != "user_123" {
		t.Fatalf("expected app user id user_123, got %q", snap.AppUserID)
	}
}

func TestInitializeAssignsAnonymousID(t *testing.T) {
	client := &stubClient{}
	f := NewFacade(client, newStubUsageStore(), testConfig(), testLogger())

	if err := f.Initialize(context.Background(), "  "); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}

	snap := f.Snapshot()
	if !strings.HasPrefix(snap.AppUserID, anonymousIDPrefix) {
		t.Fatalf("expected anonymous id with prefix %q, got %q", anonymousIDPrefix, snap.AppUserID)
	}
}

func TestInitializeRetriesThenDegrades(t *testing.T) {
	client := &stubClient{
		configureFn: func(ctx context.Context, appUserID string) (*revenuecat.CustomerInfo, error) {
			return nil, &revenuecat.APIError{Code: revenuecat.CodeInvalidAPIKey, Message: "Invalid API Key.", HTTPStatus: 401}
		},
	}
	f := NewFacade(client, newStubUsageStore(), testConfig(), testLogger())

	// Initialization failure is absorbed: the app proceeds without purchases.
	if err := f.Initialize(context.Background(), "user_123"); err != nil {
		t.Fatalf("expected nil error on degraded initialization, got %v", err)
	}

	if client.configureCalls != 3 {
		t.Fatalf("expected 3 configure attempts, got %d", client.configureCalls)
	}

	snap := f.Snapshot()
	if snap.State != domain.StateDegraded {
		t.Fatalf("expected state %s, got %s", domain.StateDegraded, snap.State)
	}
	if snap.Subscription.Tier != domain.TierFree {
		t.Fatalf("expected free-tier default, got %s", snap.Subscription.Tier)
	}
	if snap.Subscription.IsActive {
		t.Fatal("degraded default must not report an active subscription")
	}
	if snap.Error == "" {
		t.Fatal("expected a user-facing error message after degraded initialization")
	}
}

func TestDegradedRequiresResetBeforeReinitialize(t *testing.T) {
	failing := true
	client := &stubClient{
		configureFn: func(ctx context.Context, appUserID string) (*revenuecat.CustomerInfo, error) {
			if failing {
				return nil, errors.New("dial tcp: connection refused")
			}
			return freeInfo(appUserID), nil
		},
	}
	cfg := testConfig()
	cfg.InitRetryAttempts = 1
	f := NewFacade(client, newStubUsageStore(), cfg, testLogger())

	_ = f.Initialize(context.Background(), "user_123")
	if f.Snapshot().State != domain.StateDegraded {
		t.Fatalf("expected degraded state, got %s", f.Snapshot().State)
	}

	failing = false
	if err := f.Initialize(context.Background(), "user_123"); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized while degraded, got %v", err)
	}

	f.Reset()
	if err := f.Initialize(context.Background(), "user_123"); err != nil {
		t.Fatalf("expected nil error after reset, got %v", err)
	}
	if f.Snapshot().State != domain.StateReady {
		t.Fatalf("expected ready state after reset, got %s", f.Snapshot().State)
	}
}

func TestEntitlementCascade(t *testing.T) {
	tests := []struct {
		name       string
		info       func() *revenuecat.CustomerInfo
		productIDs []string
		wantTier   domain.Tier
		wantActive bool
	}{
		{
			name:       "exact configured key",
			info:       func() *revenuecat.CustomerInfo { return entitledInfo("user_123", "pro", "pro_monthly") },
			wantTier:   domain.TierPro,
			wantActive: true,
		},
		{
			name:       "case-insensitive key fallback",
			info:       func() *revenuecat.CustomerInfo { return entitledInfo("user_123", "Pro", "pro_monthly") },
			wantTier:   domain.TierPro,
			wantActive: true,
		},
		{
			name:       "substring key fallback",
			info:       func() *revenuecat.CustomerInfo { return entitledInfo("user_123", "calorie_pro_plan", "pro_monthly") },
			wantTier:   domain.TierPro,
			wantActive: true,
		},
		{
			name: "product id fallback without entitlements",
			info: func() *revenuecat.CustomerInfo {
				info := freeInfo("user_123")
				info.ActiveSubscriptions = []string{"pro_monthly"}
				return info
			},
			productIDs: []string{"pro_monthly", "pro_yearly"},
			wantTier:   domain.TierPro,
			wantActive: true,
		},
		{
			name: "elite outranks pro",
			info: func() *revenuecat.CustomerInfo {
				info := entitledInfo("user_123", "pro", "pro_monthly")
				expiry := time.Now().Add(30 * 24 * time.Hour)
				info.Entitlements.Active["Elite"] = revenuecat.Entitlement{
					IsActive:          true,
					ExpirationDate:    &expiry,
					ProductIdentifier: "elite_monthly",
				}
				return info
			},
			wantTier:   domain.TierElite,
			wantActive: true,
		},
		{
			name:       "no entitlements means free",
			info:       func() *revenuecat.CustomerInfo { return freeInfo("user_123") },
			wantTier:   domain.TierFree,
			wantActive: false,
		},
		{
			name: "unrelated entitlement means free",
			info: func() *revenuecat.CustomerInfo {
				return entitledInfo("user_123", "beta_access", "beta_pass")
			},
			wantTier:   domain.TierFree,
			wantActive: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.ProProductIDs = tt.productIDs
			f := NewFacade(&stubClient{}, newStubUsageStore(), cfg, testLogger())

			status := f.parseEntitlements(tt.info())
			if status.Tier != tt.wantTier {
				t.Fatalf("expected tier %s, got %s", tt.wantTier, status.Tier)
			}
			if status.IsActive != tt.wantActive {
				t.Fatalf("expected active=%t, got %t", tt.wantActive, status.IsActive)
			}
		})
	}
}

func TestFreshSessionUsageScenario(t *testing.T) {
	usage := newStubUsageStore()
	usage.records["user_123"] = store.UsageRecord{
		AppUserID:      "user_123",
		RecordingsUsed: 3,
		LastReset:      time.Date(time.Now().Year(), time.Now().Month(), 1, 0, 0, 0, 0, time.Local),
	}

	f := NewFacade(&stubClient{}, usage, testConfig(), testLogger())
	if err := f.Initialize(context.Background(), "user_123"); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}

	snap := f.Snapshot()
	if snap.Usage.RecordingsUsed != 3 || snap.Usage.RecordingsRemaining != 7 {
		t.Fatalf("expected 3 used / 7 remaining, got %d / %d", snap.Usage.RecordingsUsed, snap.Usage.RecordingsRemaining)
	}

	info, err := f.UpdateUsageCount(context.Background(), 1)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if info.RecordingsUsed != 4 || info.RecordingsRemaining != 6 {
		t.Fatalf("expected 4 used / 6 remaining, got %d / %d", info.RecordingsUsed, info.RecordingsRemaining)
	}

	if usage.saveCount() != 1 {
		t.Fatalf("expected 1 persisted save, got %d", usage.saveCount())
	}
	if last := usage.lastSave(); last.appUserID != "user_123" || last.used != 4 {
		t.Fatalf("expected save of 4 for user_123, got %+v", last)
	}
}

func TestUpdateUsageCountRollsOverStaleMonth(t *testing.T) {
	usage := newStubUsageStore()
	usage.records["user_123"] = store.UsageRecord{
		AppUserID:      "user_123",
		RecordingsUsed: 9,
		LastReset:      time.Now().AddDate(0, -1, 0),
	}

	f := NewFacade(&stubClient{}, usage, testConfig(), testLogger())
	if err := f.Initialize(context.Background(), "user_123"); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}

	info, err := f.UpdateUsageCount(context.Background(), 1)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if info.RecordingsUsed != 1 {
		t.Fatalf("expected counter reset to 1 after month rollover, got %d", info.RecordingsUsed)
	}
	if last := usage.lastSave(); last.used != 1 {
		t.Fatalf("expected save of 1, got %+v", last)
	}
}

func TestUpdateUsageCountSwallowsPersistenceFailure(t *testing.T) {
	usage := newStubUsageStore()
	usage.saveErr = errors.New("database unavailable")

	f := NewFacade(&stubClient{}, usage, testConfig(), testLogger())
	if err := f.Initialize(context.Background(), "user_123"); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}

	info, err := f.UpdateUsageCount(context.Background(), 1)
	if err != nil {
		t.Fatalf("persistence failures must not surface, got %v", err)
	}
	if info.RecordingsUsed != 1 {
		t.Fatalf("expected local counter 1, got %d", info.RecordingsUsed)
	}
}

func TestActionsBeforeInitialize(t *testing.T) {
	f := NewFacade(&stubClient{}, newStubUsageStore(), testConfig(), testLogger())

	if err := f.Refresh(context.Background()); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized from Refresh, got %v", err)
	}
	if err := f.PurchasePackage(context.Background(), revenuecat.PurchaseRequest{}); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized from PurchasePackage, got %v", err)
	}
	if _, err := f.UpdateUsageCount(context.Background(), 1); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized from UpdateUsageCount, got %v", err)
	}
	if _, err := f.GetOfferings(context.Background()); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized from GetOfferings, got %v", err)
	}
}

func TestMutatingActionsRejectedWhileBusy(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	client := &stubClient{
		purchaseFn: func(ctx context.Context, appUserID string, purchase revenuecat.PurchaseRequest) (*revenuecat.CustomerInfo, error) {
			close(entered)
			<-release
			return freeInfo(appUserID), nil
		},
	}
	f := NewFacade(client, newStubUsageStore(), testConfig(), testLogger())
	if err := f.Initialize(context.Background(), "user_123"); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- f.PurchasePackage(context.Background(), revenuecat.PurchaseRequest{ProductID: "pro_monthly"})
	}()

	<-entered
	if err := f.RestorePurchases(context.Background()); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy while a purchase is in flight, got %v", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("expected first purchase to succeed, got %v", err)
	}
}

func TestPurchaseFailureIsClassified(t *testing.T) {
	client := &stubClient{
		purchaseFn: func(ctx context.Context, appUserID string, purchase revenuecat.PurchaseRequest) (*revenuecat.CustomerInfo, error) {
			return nil, &revenuecat.APIError{Code: revenuecat.CodePurchaseCancelled, Message: "Purchase was cancelled.", HTTPStatus: 400}
		},
	}
	f := NewFacade(client, newStubUsageStore(), testConfig(), testLogger())
	if err := f.Initialize(context.Background(), "user_123"); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}

	err := f.PurchasePackage(context.Background(), revenuecat.PurchaseRequest{ProductID: "pro_monthly"})
	var failure *PurchaseFailure
	if !errors.As(err, &failure) {
		t.Fatalf("expected *PurchaseFailure, got %T: %v", err, err)
	}
	if failure.Class != revenuecat.PurchaseCancelled {
		t.Fatalf("expected class %s, got %s", revenuecat.PurchaseCancelled, failure.Class)
	}
}

func TestSuccessfulPurchaseUpgradesTier(t *testing.T) {
	client := &stubClient{
		purchaseFn: func(ctx context.Context, appUserID string, purchase revenuecat.PurchaseRequest) (*revenuecat.CustomerInfo, error) {
			return entitledInfo(appUserID, "pro", "pro_monthly"), nil
		},
	}
	f := NewFacade(client, newStubUsageStore(), testConfig(), testLogger())
	if err := f.Initialize(context.Background(), "user_123"); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}

	if err := f.PurchasePackage(context.Background(), revenuecat.PurchaseRequest{ProductID: "pro_monthly"}); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}

	snap := f.Snapshot()
	if snap.Subscription.Tier != domain.TierPro {
		t.Fatalf("expected pro tier after purchase, got %s", snap.Subscription.Tier)
	}
	if snap.Usage.RecordingsLimit != 300 {
		t.Fatalf("expected pro recording limit 300, got %d", snap.Usage.RecordingsLimit)
	}
}

func TestApplyCustomerInfoFoldsPushUpdate(t *testing.T) {
	f := NewFacade(&stubClient{}, newStubUsageStore(), testConfig(), testLogger())
	if err := f.Initialize(context.Background(), "user_123"); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}

	f.ApplyCustomerInfo(entitledInfo("user_123", "pro", "pro_monthly"))
	if tier := f.Snapshot().Subscription.Tier; tier != domain.TierPro {
		t.Fatalf("expected pro tier after push update, got %s", tier)
	}

	// A later push downgrading the user wins over the earlier one.
	f.ApplyCustomerInfo(freeInfo("user_123"))
	if tier := f.Snapshot().Subscription.Tier; tier != domain.TierFree {
		t.Fatalf("expected free tier after downgrade push, got %s", tier)
	}
}

func TestApplyCustomerInfoPromotesDegraded(t *testing.T) {
	client := &stubClient{
		configureFn: func(ctx context.Context, appUserID string) (*revenuecat.CustomerInfo, error) {
			return nil, errors.New("dial tcp: connection refused")
		},
	}
	cfg := testConfig()
	cfg.InitRetryAttempts = 1
	f := NewFacade(client, newStubUsageStore(), cfg, testLogger())

	_ = f.Initialize(context.Background(), "user_123")
	if f.Snapshot().State != domain.StateDegraded {
		t.Fatalf("expected degraded state, got %s", f.Snapshot().State)
	}

	f.ApplyCustomerInfo(entitledInfo("user_123", "pro", "pro_monthly"))

	snap := f.Snapshot()
	if snap.State != domain.StateReady {
		t.Fatalf("expected push update to promote degraded to ready, got %s", snap.State)
	}
	if snap.Subscription.Tier != domain.TierPro {
		t.Fatalf("expected pro tier, got %s", snap.Subscription.Tier)
	}
	if snap.Error != "" {
		t.Fatalf("expected error message cleared, got %q", snap.Error)
	}
}

func TestApplyCustomerInfoIgnoredAfterClose(t *testing.T) {
	f := NewFacade(&stubClient{}, newStubUsageStore(), testConfig(), testLogger())
	if err := f.Initialize(context.Background(), "user_123"); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}

	f.Close()
	f.ApplyCustomerInfo(entitledInfo("user_123", "pro", "pro_monthly"))

	if tier := f.Snapshot().Subscription.Tier; tier != domain.TierFree {
		t.Fatalf("expected closed facade to ignore push updates, got tier %s", tier)
	}
}

func TestAttachListenerAtMostOnce(t *testing.T) {
	f := NewFacade(&stubClient{}, newStubUsageStore(), testConfig(), testLogger())

	if !f.AttachListener() {
		t.Fatal("expected first attach to succeed")
	}
	if f.AttachListener() {
		t.Fatal("expected second attach to be rejected")
	}

	f.Reset()
	if !f.AttachListener() {
		t.Fatal("expected attach to succeed again after reset")
	}
}

func TestIdentifyUserSwitchesUsageCounter(t *testing.T) {
	usage := newStubUsageStore()
	usage.records["user_456"] = store.UsageRecord{
		AppUserID:      "user_456",
		RecordingsUsed: 5,
		LastReset:      time.Date(time.Now().Year(), time.Now().Month(), 1, 0, 0, 0, 0, time.Local),
	}

	f := NewFacade(&stubClient{}, usage, testConfig(), testLogger())
	if err := f.Initialize(context.Background(), ""); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}

	if err := f.IdentifyUser(context.Background(), "user_456"); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}

	snap := f.Snapshot()
	if snap.AppUserID != "user_456" {
		t.Fatalf("expected app user id user_456, got %q", snap.AppUserID)
	}
	if snap.Usage.RecordingsUsed != 5 {
		t.Fatalf("expected usage counter switched to 5, got %d", snap.Usage.RecordingsUsed)
	}
}

func TestLogoutSwitchesToAnonymousSession(t *testing.T) {
	f := NewFacade(&stubClient{}, newStubUsageStore(), testConfig(), testLogger())
	if err := f.Initialize(context.Background(), "user_123"); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}

	if err := f.LogoutUser(context.Background()); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}

	snap := f.Snapshot()
	if !strings.HasPrefix(snap.AppUserID, anonymousIDPrefix) {
		t.Fatalf("expected anonymous session after logout, got %q", snap.AppUserID)
	}
	if snap.Usage.RecordingsUsed != 0 {
		t.Fatalf("expected fresh usage counter after logout, got %d", snap.Usage.RecordingsUsed)
	}
}
