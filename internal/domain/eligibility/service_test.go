package eligibility

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medclaims/medclaims/internal/domain/plan"
	"github.com/medclaims/medclaims/internal/platform/cache"
)

type mockPlans struct {
	plans   map[uuid.UUID]*plan.InsurancePlan
	failure error
	calls   int
}

func (m *mockPlans) GetForUser(_ context.Context, userID, planID uuid.UUID) (*plan.InsurancePlan, error) {
	m.calls++
	if m.failure != nil {
		return nil, m.failure
	}
	p, ok := m.plans[planID]
	if !ok || p.UserID != userID {
		return nil, plan.ErrNotFound
	}
	return p, nil
}

// flakyStore simulates an unreachable cache backend on demand.
type flakyStore struct {
	*cache.MemoryStore
	failGet bool
	failSet bool
}

func (f *flakyStore) Get(ctx context.Context, key string) ([]byte, error) {
	if f.failGet {
		return nil, cache.ErrUnavailable
	}
	return f.MemoryStore.Get(ctx, key)
}

func (f *flakyStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if f.failSet {
		return cache.ErrUnavailable
	}
	return f.MemoryStore.Set(ctx, key, value, ttl)
}

type recordedEvent struct {
	claimID   uuid.UUID
	eventType string
	payload   interface{}
}

type mockRecorder struct {
	events []recordedEvent
}

func (m *mockRecorder) RecordEvent(_ context.Context, _, claimID uuid.UUID, eventType string, payload interface{}) error {
	m.events = append(m.events, recordedEvent{claimID: claimID, eventType: eventType, payload: payload})
	return nil
}

func activePlan(userID uuid.UUID) *plan.InsurancePlan {
	return &plan.InsurancePlan{
		ID: uuid.New(), UserID: userID, MemberID: "W883449464",
		IsActive: true, IsPrimary: true,
		EffectiveFrom: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

var asOf = time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)

func TestCheck_StoreThenCache(t *testing.T) {
	userID := uuid.New()
	p := activePlan(userID)
	plans := &mockPlans{plans: map[uuid.UUID]*plan.InsurancePlan{p.ID: p}}
	store := cache.NewMemoryStore()
	svc := NewService(plans, store, nil, time.Hour, zerolog.Nop())

	v, err := svc.Check(context.Background(), userID, p.ID, asOf)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if !v.Eligible || v.Source != "store" {
		t.Errorf("first check: eligible=%v source=%s, want true/store", v.Eligible, v.Source)
	}

	v, err = svc.Check(context.Background(), userID, p.ID, asOf)
	if err != nil {
		t.Fatalf("second Check: %v", err)
	}
	if !v.Eligible || v.Source != "cache" {
		t.Errorf("second check: eligible=%v source=%s, want true/cache", v.Eligible, v.Source)
	}
	if plans.calls != 1 {
		t.Errorf("store consulted %d times, want 1", plans.calls)
	}
}

func TestCheck_InactivePlanIsAnswerNotError(t *testing.T) {
	userID := uuid.New()
	p := activePlan(userID)
	p.IsActive = false
	plans := &mockPlans{plans: map[uuid.UUID]*plan.InsurancePlan{p.ID: p}}
	svc := NewService(plans, cache.NewMemoryStore(), nil, time.Hour, zerolog.Nop())

	v, err := svc.Check(context.Background(), userID, p.ID, asOf)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if v.Eligible {
		t.Error("inactive plan reported eligible")
	}
	if v.Reason != "plan inactive" {
		t.Errorf("reason = %q, want plan inactive", v.Reason)
	}
}

func TestCheck_OutsideEffectiveRange(t *testing.T) {
	userID := uuid.New()
	p := activePlan(userID)
	to := time.Date(2025, 2, 28, 0, 0, 0, 0, time.UTC)
	p.EffectiveTo = &to
	plans := &mockPlans{plans: map[uuid.UUID]*plan.InsurancePlan{p.ID: p}}
	svc := NewService(plans, cache.NewMemoryStore(), nil, time.Hour, zerolog.Nop())

	v, err := svc.Check(context.Background(), userID, p.ID, asOf)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if v.Eligible {
		t.Error("lapsed plan reported eligible")
	}
	if v.Reason != "outside effective range" {
		t.Errorf("reason = %q", v.Reason)
	}
}

func TestCheck_PlanNotFound(t *testing.T) {
	plans := &mockPlans{plans: map[uuid.UUID]*plan.InsurancePlan{}}
	svc := NewService(plans, cache.NewMemoryStore(), nil, time.Hour, zerolog.Nop())

	_, err := svc.Check(context.Background(), uuid.New(), uuid.New(), asOf)
	if !errors.Is(err, plan.ErrNotFound) {
		t.Fatalf("got %v, want plan.ErrNotFound", err)
	}
}

func TestCheck_FailClosedOnStoreFault(t *testing.T) {
	plans := &mockPlans{failure: errors.New("connection refused")}
	svc := NewService(plans, cache.NewMemoryStore(), nil, time.Hour, zerolog.Nop())

	v, err := svc.Check(context.Background(), uuid.New(), uuid.New(), asOf)
	if !errors.Is(err, ErrEligibilityFault) {
		t.Fatalf("got %v, want ErrEligibilityFault", err)
	}
	if v != nil {
		t.Error("fault must not produce a verdict")
	}
}

func TestCheck_CachedVerdictSurvivesStoreFault(t *testing.T) {
	userID := uuid.New()
	p := activePlan(userID)
	plans := &mockPlans{plans: map[uuid.UUID]*plan.InsurancePlan{p.ID: p}}
	store := cache.NewMemoryStore()
	svc := NewService(plans, store, nil, time.Hour, zerolog.Nop())

	if _, err := svc.Check(context.Background(), userID, p.ID, asOf); err != nil {
		t.Fatalf("warm-up Check: %v", err)
	}

	plans.failure = errors.New("connection refused")
	v, err := svc.Check(context.Background(), userID, p.ID, asOf)
	if err != nil {
		t.Fatalf("cached check during outage: %v", err)
	}
	if v.Source != "cache" || !v.Eligible {
		t.Errorf("got source=%s eligible=%v, want cache/true", v.Source, v.Eligible)
	}
}

func TestCheck_FailOpenOnCacheReadFault(t *testing.T) {
	userID := uuid.New()
	p := activePlan(userID)
	plans := &mockPlans{plans: map[uuid.UUID]*plan.InsurancePlan{p.ID: p}}
	store := &flakyStore{MemoryStore: cache.NewMemoryStore(), failGet: true}
	svc := NewService(plans, store, nil, time.Hour, zerolog.Nop())

	v, err := svc.Check(context.Background(), userID, p.ID, asOf)
	if err != nil {
		t.Fatalf("Check with broken cache: %v", err)
	}
	if v.Source != "store" || !v.Eligible {
		t.Errorf("got source=%s eligible=%v, want store/true", v.Source, v.Eligible)
	}
}

func TestCheck_CacheWriteFailureSwallowed(t *testing.T) {
	userID := uuid.New()
	p := activePlan(userID)
	plans := &mockPlans{plans: map[uuid.UUID]*plan.InsurancePlan{p.ID: p}}
	store := &flakyStore{MemoryStore: cache.NewMemoryStore(), failSet: true}
	svc := NewService(plans, store, nil, time.Hour, zerolog.Nop())

	v, err := svc.Check(context.Background(), userID, p.ID, asOf)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if !v.Eligible {
		t.Error("verdict lost to a cache write failure")
	}
}

func TestCheck_InvalidationBeatsTTL(t *testing.T) {
	userID := uuid.New()
	p := activePlan(userID)
	plans := &mockPlans{plans: map[uuid.UUID]*plan.InsurancePlan{p.ID: p}}
	store := cache.NewMemoryStore()
	svc := NewService(plans, store, nil, 24*time.Hour, zerolog.Nop())

	v, err := svc.Check(context.Background(), userID, p.ID, asOf)
	if err != nil || !v.Eligible {
		t.Fatalf("warm-up: v=%+v err=%v", v, err)
	}

	// A plan writer deactivates the plan and invalidates before commit.
	p.IsActive = false
	if err := store.DeletePrefix(context.Background(), cache.EligibilityPlanPrefix(p.ID)); err != nil {
		t.Fatalf("DeletePrefix: %v", err)
	}

	v, err = svc.Check(context.Background(), userID, p.ID, asOf)
	if err != nil {
		t.Fatalf("post-invalidation Check: %v", err)
	}
	if v.Eligible {
		t.Error("stale eligible verdict served after invalidation, long before TTL expiry")
	}
	if v.Source != "store" {
		t.Errorf("source = %s, want store", v.Source)
	}
}

func TestCheck_VerdictsAreDateScoped(t *testing.T) {
	userID := uuid.New()
	p := activePlan(userID)
	to := time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC)
	p.EffectiveTo = &to
	plans := &mockPlans{plans: map[uuid.UUID]*plan.InsurancePlan{p.ID: p}}
	svc := NewService(plans, cache.NewMemoryStore(), nil, time.Hour, zerolog.Nop())

	v1, err := svc.Check(context.Background(), userID, p.ID, asOf)
	if err != nil || !v1.Eligible {
		t.Fatalf("in-range check: v=%+v err=%v", v1, err)
	}

	later := time.Date(2025, 4, 2, 0, 0, 0, 0, time.UTC)
	v2, err := svc.Check(context.Background(), userID, p.ID, later)
	if err != nil {
		t.Fatalf("out-of-range check: %v", err)
	}
	if v2.Eligible {
		t.Error("verdict for one date answered for another")
	}
}

func TestCheckForClaim_RecordsEvent(t *testing.T) {
	userID := uuid.New()
	p := activePlan(userID)
	plans := &mockPlans{plans: map[uuid.UUID]*plan.InsurancePlan{p.ID: p}}
	recorder := &mockRecorder{}
	svc := NewService(plans, cache.NewMemoryStore(), recorder, time.Hour, zerolog.Nop())

	claimID := uuid.New()
	v, err := svc.CheckForClaim(context.Background(), userID, claimID, p.ID, asOf)
	if err != nil {
		t.Fatalf("CheckForClaim: %v", err)
	}
	if !v.Eligible {
		t.Error("expected eligible verdict")
	}
	if len(recorder.events) != 1 {
		t.Fatalf("got %d events, want 1", len(recorder.events))
	}
	if recorder.events[0].claimID != claimID {
		t.Errorf("event attached to %s, want %s", recorder.events[0].claimID, claimID)
	}
}
