package zkproof

import (
	"context"
	"strconv"

	"github.com/alznet/niev/internal/types"
)

// Placeholder is a deterministic stand-in for a proving system.
// Its proof data is a digest of the statement and verification is left
// entirely to the registry.
type Placeholder struct{}

// NewPlaceholder creates a new placeholder backend
func NewPlaceholder() *Placeholder {
	return &Placeholder{}
}

// Name implements Backend
func (p *Placeholder) Name() string { return "placeholder" }

// Prove implements Backend
func (p *Placeholder) Prove(_ context.Context, st Statement) (*Artifact, error) {
	data, err := types.CanonicalHash(map[string]interface{}{
		"public_inputs": st.PublicInputs,
		"circuit_id":    st.CircuitID,
		"timestamp":     strconv.FormatInt(st.Timestamp.UnixNano(), 10),
	})
	if err != nil {
		return nil, err
	}
	return &Artifact{
		ProofData:           data,
		VerificationKeyHash: types.HashHex(st.VerifierID, "_", st.CircuitID),
	}, nil
}

// Verify implements Backend
func (p *Placeholder) Verify(_ context.Context, proof *types.ZKProof) (bool, error) {
	return proof != nil, nil
}
