package approval

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"pdsno.io/controller/internal/domain"
	"pdsno.io/controller/internal/nib"
	apperrors "pdsno.io/controller/internal/pkg/errors"
)

func newTestStore(t *testing.T) *nib.BadgerStore {
	t.Helper()
	s, err := nib.NewBadgerStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestClassify_EscalatesOnBackboneDevice(t *testing.T) {
	devices := []*domain.Device{{DeviceID: "d1", Role: "backbone"}}
	got := Classify(domain.SensitivityLow, devices)
	require.Equal(t, domain.SensitivityHigh, got)
}

func TestClassify_HonorsHigherDeclaredSensitivity(t *testing.T) {
	devices := []*domain.Device{{DeviceID: "d1", Role: "access"}}
	got := Classify(domain.SensitivityEmergency, devices)
	require.Equal(t, domain.SensitivityEmergency, got)
}

func TestRouter_InitialState(t *testing.T) {
	r := NewRouter(true)
	require.Equal(t, domain.StatePendingRegional, r.InitialState(domain.SensitivityLow))
	require.Equal(t, domain.StatePendingRegional, r.InitialState(domain.SensitivityHigh))
	require.Equal(t, domain.StateApproved, r.InitialState(domain.SensitivityEmergency))
}

func TestRouter_NextOnApprove_ForwardsHighToGlobal(t *testing.T) {
	r := NewRouter(true)
	next := r.NextOnApprove(domain.StatePendingRegional, domain.SensitivityHigh)
	require.Equal(t, domain.StatePendingGlobal, next)

	r2 := NewRouter(false)
	next2 := r2.NextOnApprove(domain.StatePendingRegional, domain.SensitivityHigh)
	require.Equal(t, domain.StateApproved, next2)
}

func TestCanApprove(t *testing.T) {
	require.True(t, CanApprove(domain.RoleRegional, domain.StatePendingRegional))
	require.False(t, CanApprove(domain.RoleLocal, domain.StatePendingRegional))
	require.True(t, CanApprove(domain.RoleGlobal, domain.StatePendingGlobal))
	require.False(t, CanApprove(domain.RoleRegional, domain.StatePendingGlobal))
}

func TestEngine_BuildExecutionToken_OnlyOnFinalApproval(t *testing.T) {
	e := &Engine{RootKey: []byte("shared-root-key-for-tests-only-000000"), IssuerID: "regional-1"}
	r := &domain.ConfigRequest{RequestID: "req-1", ConfigHash: "h1", TargetDevices: []string{"dev-1"}, CreatedBy: "local-1"}

	tok, err := e.buildExecutionToken(r, domain.StatePendingGlobal)
	require.NoError(t, err)
	require.Nil(t, tok)

	tok, err = e.buildExecutionToken(r, domain.StateApproved)
	require.NoError(t, err)
	require.NotNil(t, tok)
	require.Equal(t, "req-1", tok.RequestID)
	require.Equal(t, 1, tok.MaxUses)
}

func TestEngine_Propose_DetectsOverlappingConflict(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	dev := &domain.Device{DeviceID: "dev-1", Region: "us-west", MAC: "aa:bb:cc:dd:ee:01", Status: domain.DeviceStatusActive}
	require.NoError(t, store.PutDevice(ctx, dev, 0))

	engine := NewEngine(store, NewRouter(true), nil)

	first := &domain.ConfigRequest{RequestID: "req-1", ConfigHash: "h1", TargetDevices: []string{"dev-1"}, DeclaredSensitivity: domain.SensitivityLow, CreatedBy: "local-1"}
	require.NoError(t, engine.Propose(ctx, first))
	require.Equal(t, domain.StatePendingRegional, first.State)

	second := &domain.ConfigRequest{RequestID: "req-2", ConfigHash: "h2", TargetDevices: []string{"dev-1"}, DeclaredSensitivity: domain.SensitivityLow, CreatedBy: "local-1"}
	err := engine.Propose(ctx, second)
	require.Error(t, err)
	require.Equal(t, domain.StatePendingConflict, second.State)
}

func TestEngine_Propose_EmergencyApprovesImmediately(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	dev := &domain.Device{DeviceID: "dev-1", Region: "us-west", MAC: "aa:bb:cc:dd:ee:02", Status: domain.DeviceStatusActive}
	require.NoError(t, store.PutDevice(ctx, dev, 0))

	engine := NewEngine(store, NewRouter(true), nil)
	r := &domain.ConfigRequest{RequestID: "req-emerg", ConfigHash: "h1", TargetDevices: []string{"dev-1"}, DeclaredSensitivity: domain.SensitivityEmergency, CreatedBy: "local-1"}
	require.NoError(t, engine.Propose(ctx, r))
	require.Equal(t, domain.StateApproved, r.State)
}

func TestEngine_Propose_RefusesDeviceWithUnresolvedDegradedRequest(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	dev := &domain.Device{DeviceID: "dev-1", Region: "us-west", MAC: "aa:bb:cc:dd:ee:03", Status: domain.DeviceStatusActive}
	require.NoError(t, store.PutDevice(ctx, dev, 0))

	degraded := &domain.ConfigRequest{RequestID: "req-degraded", ConfigHash: "h0", TargetDevices: []string{"dev-1"}, State: domain.StateDegraded, CreatedBy: "local-1"}
	require.NoError(t, store.PutConfigRequest(ctx, degraded, 0))

	engine := NewEngine(store, NewRouter(true), nil)
	next := &domain.ConfigRequest{RequestID: "req-2", ConfigHash: "h1", TargetDevices: []string{"dev-1"}, DeclaredSensitivity: domain.SensitivityLow, CreatedBy: "local-1"}
	err := engine.Propose(ctx, next)
	require.Error(t, err)

	appErr, ok := apperrors.IsAppError(err)
	require.True(t, ok)
	require.Equal(t, apperrors.CodeDeviceDegraded, appErr.Code)
}

func TestEngine_MarkAndClearDegraded(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	r := &domain.ConfigRequest{RequestID: "req-1", ConfigHash: "h1", State: domain.StateExecuting, CreatedBy: "local-1"}
	require.NoError(t, store.PutConfigRequest(ctx, r, 0))

	engine := NewEngine(store, NewRouter(true), nil)
	require.NoError(t, engine.MarkDegraded(ctx, "req-1", "local controller unreachable"))

	got, err := store.GetConfigRequest(ctx, "req-1")
	require.NoError(t, err)
	require.Equal(t, domain.StateDegraded, got.State)

	require.NoError(t, engine.ClearDegraded(ctx, "req-1", domain.StateSucceeded))
	got, err = store.GetConfigRequest(ctx, "req-1")
	require.NoError(t, err)
	require.Equal(t, domain.StateSucceeded, got.State)
}
