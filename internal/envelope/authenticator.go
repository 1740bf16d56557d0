package envelope

import (
	"context"
	"time"

	apperrors "pdsno.io/controller/internal/pkg/errors"
)

// KnownSenders resolves whether a sender ID is a recognized controller and
// exposes its current admitted status (active vs revoked). The
// authenticator consults this last, after the cheaper structural/freshness
// /replay/signature checks have already passed.
type KnownSenders interface {
	IsActiveController(ctx context.Context, controllerID string) (bool, error)
}

// Authenticator runs the full verification pipeline: structural →
// freshness → replay → signature → sender, in that order, so the most
// expensive steps (signature, sender lookup) only run once the cheap
// ones have already rejected garbage.
type Authenticator struct {
	RootKey    []byte
	Nonces     NonceStore
	Senders    KnownSenders
	ClockSkew  time.Duration
	NonceTTL   time.Duration
	nowFunc    func() time.Time
}

// NewAuthenticator creates an Authenticator with sensible defaults.
func NewAuthenticator(rootKey []byte, nonces NonceStore, senders KnownSenders) *Authenticator {
	return &Authenticator{
		RootKey:   rootKey,
		Nonces:    nonces,
		Senders:   senders,
		ClockSkew: MaxClockSkew,
		NonceTTL:  2 * MaxClockSkew,
		nowFunc:   time.Now,
	}
}

func (a *Authenticator) now() time.Time {
	if a.nowFunc != nil {
		return a.nowFunc()
	}
	return time.Now()
}

// Verify runs the full pipeline against an inbound envelope addressed to
// recipientID.
func (a *Authenticator) Verify(ctx context.Context, e *Envelope, recipientID string) error {
	if err := e.validateStructure(); err != nil {
		return err
	}
	if e.RecipientID != recipientID {
		return apperrors.New(apperrors.CodeEnvelopeMalformed, "envelope addressed to a different recipient", 400)
	}
	if err := e.validateFreshness(a.now(), a.ClockSkew); err != nil {
		return err
	}

	fresh, err := a.Nonces.Consume(ctx, e.SenderID, e.Nonce, a.NonceTTL)
	if err != nil {
		return err
	}
	if !fresh {
		return apperrors.New(apperrors.CodeEnvelopeReplayed, "envelope nonce already seen", 409)
	}

	key, err := DeriveKey(a.RootKey, e.SenderID, e.RecipientID)
	if err != nil {
		return err
	}
	if !e.VerifySignature(key) {
		return apperrors.New(apperrors.CodeEnvelopeBadHMAC, "envelope signature invalid", 401)
	}

	if a.Senders != nil {
		active, err := a.Senders.IsActiveController(ctx, e.SenderID)
		if err != nil {
			return err
		}
		if !active {
			return apperrors.New(apperrors.CodeEnvelopeUnknownKey, "sender is not an active controller", 403)
		}
	}

	return nil
}

// Seal signs an outbound envelope addressed from senderID to recipientID
// using the derived per-pair key.
func (a *Authenticator) Seal(e *Envelope) error {
	key, err := DeriveKey(a.RootKey, e.SenderID, e.RecipientID)
	if err != nil {
		return err
	}
	return e.Sign(key)
}
