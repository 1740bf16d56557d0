package admission

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"pdsno.io/controller/internal/domain"
	"pdsno.io/controller/internal/nib"
)

func TestActiveControllerChecker_IsActiveController(t *testing.T) {
	ctx := context.Background()
	store, err := nib.NewBadgerStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	checker := NewActiveControllerChecker(store)

	active, err := checker.IsActiveController(ctx, "unknown-controller")
	require.NoError(t, err)
	require.False(t, active)

	require.NoError(t, store.PutController(ctx, &domain.Controller{
		ControllerID: "regional-1",
		Role:         domain.RoleRegional,
		Status:       domain.ControllerStatusActive,
	}, 0))

	active, err = checker.IsActiveController(ctx, "regional-1")
	require.NoError(t, err)
	require.True(t, active)

	require.NoError(t, store.PutController(ctx, &domain.Controller{
		ControllerID: "regional-1",
		Role:         domain.RoleRegional,
		Status:       domain.ControllerStatusRevoked,
	}, 1))

	active, err = checker.IsActiveController(ctx, "regional-1")
	require.NoError(t, err)
	require.False(t, active)
}
