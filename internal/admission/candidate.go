package admission

import (
	"crypto/ed25519"
	"time"

	"github.com/google/uuid"

	"pdsno.io/controller/internal/domain"
)

// Candidate is the child-side state machine for a controller seeking
// admission to a parent. It holds the ed25519 keypair generated on first
// boot and answers challenges issued by Server.
type Candidate struct {
	TempID     string
	PublicKey  ed25519.PublicKey
	PrivateKey ed25519.PrivateKey
	Role       domain.ControllerRole
	Region     string
}

// NewCandidate generates a fresh ed25519 keypair and a temp_id for a
// controller that has not yet been admitted.
func NewCandidate(role domain.ControllerRole, region string) (*Candidate, error) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		return nil, err
	}
	return &Candidate{
		TempID: "temp-" + uuid.NewString(),
		PublicKey: pub, PrivateKey: priv, Role: role, Region: region,
	}, nil
}

// BuildValidationRequest constructs step 1's payload, deriving the bootstrap
// token from the shared secret rather than accepting a precomputed one so
// callers can't accidentally bind it to the wrong (temp_id, region, role).
func (c *Candidate) BuildValidationRequest(bootstrapSecret []byte, capabilities []string) ValidationRequest {
	return ValidationRequest{
		TempID:         c.TempID,
		BootstrapToken: BootstrapToken(bootstrapSecret, c.TempID, c.Region, c.Role),
		PublicKey:      c.PublicKey,
		Role:           c.Role,
		Region:         c.Region,
		Timestamp:      time.Now(),
		Capabilities:   capabilities,
	}
}

// RespondToChallenge signs the challenge nonce, producing step 3's payload.
func (c *Candidate) RespondToChallenge(ch *Challenge) ChallengeResponse {
	return ChallengeResponse{
		ChallengeID: ch.ChallengeID,
		Signature:   ed25519.Sign(c.PrivateKey, ch.Nonce),
	}
}
