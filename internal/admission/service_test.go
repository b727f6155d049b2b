package admission

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/machineid-io/machineid-core/internal/device"
	"github.com/machineid-io/machineid-core/internal/org"
	"github.com/machineid-io/machineid-core/internal/quota"
	"github.com/machineid-io/machineid-core/internal/requestid"
)

// ─── Mock Dependencies ──────────────────────────────────────────────────────

// mockDeviceRepo scripts device store answers per method.
type mockDeviceRepo struct {
	mu sync.Mutex

	admitResult *device.AdmitResult
	admitErr    error
	getRecord   *device.Record
	getErr      error
	revokeRec   *device.Record
	revokeErr   error
	touchErr    error

	admitCalls []string
	touchCalls []string
}

func (m *mockDeviceRepo) Get(_ context.Context, _, _ string) (*device.Record, error) {
	return m.getRecord, m.getErr
}

func (m *mockDeviceRepo) List(_ context.Context, _ string) ([]device.Record, error) {
	return nil, nil
}

func (m *mockDeviceRepo) CountActive(_ context.Context, _ string) (int, error) {
	return 0, nil
}

func (m *mockDeviceRepo) Admit(_ context.Context, _, deviceID string, _ quota.Limit) (*device.AdmitResult, error) {
	m.mu.Lock()
	m.admitCalls = append(m.admitCalls, deviceID)
	m.mu.Unlock()
	return m.admitResult, m.admitErr
}

func (m *mockDeviceRepo) Revoke(_ context.Context, _, _ string) (*device.Record, error) {
	return m.revokeRec, m.revokeErr
}

func (m *mockDeviceRepo) TouchValidated(_ context.Context, _, deviceID string, _ time.Time) error {
	m.mu.Lock()
	m.touchCalls = append(m.touchCalls, deviceID)
	m.mu.Unlock()
	return m.touchErr
}

// mockRecorder captures every decision handed to it.
type mockRecorder struct {
	mu        sync.Mutex
	decisions []Decision
	failErr   error
}

func (m *mockRecorder) RecordDecision(_ context.Context, d Decision) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failErr != nil {
		return m.failErr
	}
	m.decisions = append(m.decisions, d)
	return nil
}

func (m *mockRecorder) recorded() []Decision {
	m.mu.Lock()
	defer m.mu.Unlock()
	cpy := make([]Decision, len(m.decisions))
	copy(cpy, m.decisions)
	return cpy
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testOrg() *org.Organization {
	return &org.Organization{
		ID:          "org-aaaa1111",
		Name:        "Acme Robotics",
		Plan:        quota.PlanFree,
		DeviceLimit: 3,
		Status:      org.StatusActive,
	}
}

func activeRecord(deviceID string) *device.Record {
	return &device.Record{
		OrgID:             "org-aaaa1111",
		DeviceID:          deviceID,
		State:             device.StateActive,
		FirstRegisteredAt: time.Date(2026, 3, 15, 9, 0, 0, 0, time.UTC),
	}
}

func revokedRecord(deviceID string) *device.Record {
	rec := activeRecord(deviceID)
	rec.State = device.StateRevoked
	at := time.Date(2026, 3, 16, 9, 0, 0, 0, time.UTC)
	rec.RevokedAt = &at
	return rec
}

// ─── Register Tests ─────────────────────────────────────────────────────────

func TestRegister_Outcomes(t *testing.T) {
	tests := []struct {
		name        string
		transition  device.Transition
		wantOutcome Outcome
		wantAllowed bool
	}{
		{"new device", device.TransitionCreated, OutcomeOK, true},
		{"already active", device.TransitionExists, OutcomeExists, true},
		{"revoked restored", device.TransitionRestored, OutcomeRestored, true},
		{"limit reached", device.TransitionDenied, OutcomeLimitReached, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var rec *device.Record
			if tt.transition != device.TransitionDenied {
				rec = activeRecord("worker-01")
			}
			repo := &mockDeviceRepo{
				admitResult: &device.AdmitResult{
					Transition:  tt.transition,
					Record:      rec,
					ActiveCount: 1,
				},
			}
			recorder := &mockRecorder{}
			svc := NewService(repo, testLogger(), recorder)

			res, err := svc.Register(context.Background(), testOrg(), "worker-01")
			if err != nil {
				t.Fatalf("Register() error = %v", err)
			}
			if res.Outcome != tt.wantOutcome {
				t.Errorf("Outcome = %q, want %q", res.Outcome, tt.wantOutcome)
			}
			if res.Allowed != tt.wantAllowed {
				t.Errorf("Allowed = %v, want %v", res.Allowed, tt.wantAllowed)
			}

			decisions := recorder.recorded()
			if len(decisions) != 1 {
				t.Fatalf("recorded %d decisions, want 1", len(decisions))
			}
			if decisions[0].Op != "register" {
				t.Errorf("decision Op = %q, want register", decisions[0].Op)
			}
			if decisions[0].Outcome != tt.wantOutcome {
				t.Errorf("decision Outcome = %q, want %q", decisions[0].Outcome, tt.wantOutcome)
			}
			if decisions[0].Allowed != tt.wantAllowed {
				t.Errorf("decision Allowed = %v, want %v", decisions[0].Allowed, tt.wantAllowed)
			}
		})
	}
}

func TestRegister_InvalidDeviceID(t *testing.T) {
	repo := &mockDeviceRepo{}
	recorder := &mockRecorder{}
	svc := NewService(repo, testLogger(), recorder)

	_, err := svc.Register(context.Background(), testOrg(), "")
	if !errors.Is(err, device.ErrInvalidDeviceID) {
		t.Fatalf("Register() error = %v, want ErrInvalidDeviceID", err)
	}

	if len(repo.admitCalls) != 0 {
		t.Error("store touched for an invalid identifier")
	}
	if len(recorder.recorded()) != 0 {
		t.Error("decision recorded for an invalid identifier")
	}
}

func TestRegister_StoreFailure(t *testing.T) {
	repo := &mockDeviceRepo{admitErr: errors.New("database is locked")}
	recorder := &mockRecorder{}
	svc := NewService(repo, testLogger(), recorder)

	_, err := svc.Register(context.Background(), testOrg(), "worker-01")
	if err == nil {
		t.Fatal("Register() expected error on store failure")
	}

	// No verdict was reached, so nothing may be recorded.
	if len(recorder.recorded()) != 0 {
		t.Error("decision recorded despite store failure")
	}
}

// ─── Validate Tests ─────────────────────────────────────────────────────────

func TestValidate_ActiveDevice(t *testing.T) {
	repo := &mockDeviceRepo{getRecord: activeRecord("worker-01")}
	recorder := &mockRecorder{}
	svc := NewService(repo, testLogger(), recorder)

	res, err := svc.Validate(context.Background(), testOrg(), "worker-01")
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if res.Outcome != OutcomeOK {
		t.Errorf("Outcome = %q, want %q", res.Outcome, OutcomeOK)
	}
	if !res.Allowed {
		t.Error("Allowed = false, want true")
	}

	if len(repo.touchCalls) != 1 {
		t.Errorf("TouchValidated called %d times, want 1", len(repo.touchCalls))
	}
}

func TestValidate_RevokedDevice(t *testing.T) {
	repo := &mockDeviceRepo{getRecord: revokedRecord("worker-01")}
	recorder := &mockRecorder{}
	svc := NewService(repo, testLogger(), recorder)

	res, err := svc.Validate(context.Background(), testOrg(), "worker-01")
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if res.Outcome != OutcomeRevoked {
		t.Errorf("Outcome = %q, want %q", res.Outcome, OutcomeRevoked)
	}
	if res.Allowed {
		t.Error("Allowed = true for a revoked device")
	}

	if len(repo.touchCalls) != 0 {
		t.Error("TouchValidated called for a revoked device")
	}
}

func TestValidate_UnknownDevice(t *testing.T) {
	repo := &mockDeviceRepo{getErr: device.ErrNotRegistered}
	recorder := &mockRecorder{}
	svc := NewService(repo, testLogger(), recorder)

	res, err := svc.Validate(context.Background(), testOrg(), "ghost")
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if res.Outcome != OutcomeNotRegistered {
		t.Errorf("Outcome = %q, want %q", res.Outcome, OutcomeNotRegistered)
	}
	if res.Allowed {
		t.Error("Allowed = true for an unknown device")
	}
}

func TestValidate_TouchFailureDoesNotBlockPass(t *testing.T) {
	repo := &mockDeviceRepo{
		getRecord: activeRecord("worker-01"),
		touchErr:  errors.New("database is locked"),
	}
	svc := NewService(repo, testLogger())

	res, err := svc.Validate(context.Background(), testOrg(), "worker-01")
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if !res.Allowed {
		t.Error("a failed timestamp write turned a pass into a failure")
	}
}

func TestValidate_StoreFailure(t *testing.T) {
	repo := &mockDeviceRepo{getErr: errors.New("disk I/O error")}
	recorder := &mockRecorder{}
	svc := NewService(repo, testLogger(), recorder)

	_, err := svc.Validate(context.Background(), testOrg(), "worker-01")
	if err == nil {
		t.Fatal("Validate() expected error on store failure")
	}
	if len(recorder.recorded()) != 0 {
		t.Error("decision recorded despite store failure")
	}
}

// ─── Revoke Tests ───────────────────────────────────────────────────────────

func TestRevoke(t *testing.T) {
	repo := &mockDeviceRepo{revokeRec: revokedRecord("worker-01")}
	recorder := &mockRecorder{}
	svc := NewService(repo, testLogger(), recorder)

	rec, err := svc.Revoke(context.Background(), testOrg(), "worker-01")
	if err != nil {
		t.Fatalf("Revoke() error = %v", err)
	}
	if rec.State != device.StateRevoked {
		t.Errorf("State = %q, want %q", rec.State, device.StateRevoked)
	}

	decisions := recorder.recorded()
	if len(decisions) != 1 {
		t.Fatalf("recorded %d decisions, want 1", len(decisions))
	}
	if decisions[0].Op != "revoke" {
		t.Errorf("decision Op = %q, want revoke", decisions[0].Op)
	}
	if decisions[0].Allowed {
		t.Error("revoke decision marked allowed")
	}
}

func TestRevoke_UnknownDevice(t *testing.T) {
	repo := &mockDeviceRepo{revokeErr: device.ErrNotRegistered}
	recorder := &mockRecorder{}
	svc := NewService(repo, testLogger(), recorder)

	_, err := svc.Revoke(context.Background(), testOrg(), "ghost")
	if !errors.Is(err, device.ErrNotRegistered) {
		t.Fatalf("Revoke() error = %v, want ErrNotRegistered", err)
	}
	if len(recorder.recorded()) != 0 {
		t.Error("decision recorded for an unknown device")
	}
}

// ─── Decision Fan-Out Tests ─────────────────────────────────────────────────

func TestDecisions_CarryRequestID(t *testing.T) {
	repo := &mockDeviceRepo{getRecord: activeRecord("worker-01")}
	recorder := &mockRecorder{}
	svc := NewService(repo, testLogger(), recorder)

	ctx := requestid.NewContext(context.Background(), "req-12345678")
	if _, err := svc.Validate(ctx, testOrg(), "worker-01"); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	decisions := recorder.recorded()
	if len(decisions) != 1 {
		t.Fatalf("recorded %d decisions, want 1", len(decisions))
	}
	if decisions[0].RequestID != "req-12345678" {
		t.Errorf("RequestID = %q, want req-12345678", decisions[0].RequestID)
	}
	if decisions[0].At.IsZero() {
		t.Error("decision At not set")
	}
}

func TestRecorderFailure_DoesNotAffectVerdict(t *testing.T) {
	repo := &mockDeviceRepo{getRecord: activeRecord("worker-01")}
	failing := &mockRecorder{failErr: errors.New("broker unreachable")}
	healthy := &mockRecorder{}
	svc := NewService(repo, testLogger(), failing, healthy)

	res, err := svc.Validate(context.Background(), testOrg(), "worker-01")
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if !res.Allowed {
		t.Error("recorder failure changed the verdict")
	}

	// The remaining recorders still receive the decision.
	if len(healthy.recorded()) != 1 {
		t.Errorf("healthy recorder saw %d decisions, want 1", len(healthy.recorded()))
	}
}
