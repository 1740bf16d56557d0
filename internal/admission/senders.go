package admission

import (
	"context"

	"pdsno.io/controller/internal/domain"
	"pdsno.io/controller/internal/nib"
	apperrors "pdsno.io/controller/internal/pkg/errors"
)

// ActiveControllerChecker adapts nib.Store to envelope.KnownSenders,
// letting the envelope authenticator's sender-active check (its final
// pipeline stage) consult the same NIB row the admission protocol writes
// when a controller is validated or revoked.
type ActiveControllerChecker struct {
	Store nib.Store
}

// NewActiveControllerChecker creates a KnownSenders adapter over store.
func NewActiveControllerChecker(store nib.Store) *ActiveControllerChecker {
	return &ActiveControllerChecker{Store: store}
}

// IsActiveController reports whether controllerID is an admitted,
// non-revoked controller.
func (c *ActiveControllerChecker) IsActiveController(ctx context.Context, controllerID string) (bool, error) {
	ctrl, err := c.Store.GetController(ctx, controllerID)
	if err != nil {
		if appErr, ok := apperrors.IsAppError(err); ok && appErr.Code == apperrors.CodeControllerNotFound {
			return false, nil
		}
		return false, err
	}
	return ctrl.Status == domain.ControllerStatusActive, nil
}
