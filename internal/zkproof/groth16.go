package zkproof

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"math/big"
	"strings"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/constraint"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/frontend/cs/r1cs"
	gnarklogger "github.com/consensys/gnark/logger"
	"github.com/rs/zerolog"

	"github.com/alznet/niev/internal/types"
)

var ErrMalformedProofData = errors.New("malformed groth16 proof data")

// commitmentCircuit proves knowledge of a witness w with
// Commitment = w*w + Binding, where Binding is derived from the public inputs
type commitmentCircuit struct {
	Commitment frontend.Variable `gnark:",public"`
	Binding    frontend.Variable `gnark:",public"`
	Witness    frontend.Variable
}

// Define declares the circuit constraints
func (c *commitmentCircuit) Define(api frontend.API) error {
	api.AssertIsEqual(c.Commitment, api.Add(api.Mul(c.Witness, c.Witness), c.Binding))
	return nil
}

// Groth16 is a BN254 Groth16 backend. One trusted setup serves every
// circuit id; the verification key hash is scoped per verifier and circuit.
type Groth16 struct {
	ccs   constraint.ConstraintSystem
	pk    groth16.ProvingKey
	vk    groth16.VerifyingKey
	vkHex string
	field *big.Int
}

// NewGroth16 compiles the commitment circuit and runs the setup
func NewGroth16() (*Groth16, error) {
	gnarklogger.Set(zerolog.New(io.Discard).Level(zerolog.Disabled))

	field := ecc.BN254.ScalarField()
	ccs, err := frontend.Compile(field, r1cs.NewBuilder, &commitmentCircuit{})
	if err != nil {
		return nil, fmt.Errorf("failed to compile circuit: %w", err)
	}
	pk, vk, err := groth16.Setup(ccs)
	if err != nil {
		return nil, fmt.Errorf("failed to run setup: %w", err)
	}

	var buf bytes.Buffer
	if _, err := vk.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to serialize verifying key: %w", err)
	}
	sum := sha256.Sum256(buf.Bytes())

	logger.WithField("constraints", ccs.GetNbConstraints()).Infof("groth16 setup complete")

	return &Groth16{
		ccs:   ccs,
		pk:    pk,
		vk:    vk,
		vkHex: hex.EncodeToString(sum[:]),
		field: field,
	}, nil
}

// Name implements Backend
func (g *Groth16) Name() string { return "groth16" }

// Prove implements Backend. Proof data is "<commitment hex>:<proof hex>".
func (g *Groth16) Prove(ctx context.Context, st Statement) (*Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	seed := make([]byte, 32)
	if _, err := rand.Read(seed); err != nil {
		return nil, fmt.Errorf("failed to draw witness: %w", err)
	}
	w := new(big.Int).SetBytes(seed)
	w.Mod(w, g.field)

	binding := g.binding(st.PublicInputs, st.CircuitID)
	commitment := new(big.Int).Mul(w, w)
	commitment.Add(commitment, binding)
	commitment.Mod(commitment, g.field)

	full, err := frontend.NewWitness(&commitmentCircuit{
		Commitment: commitment,
		Binding:    binding,
		Witness:    w,
	}, g.field)
	if err != nil {
		return nil, fmt.Errorf("failed to build witness: %w", err)
	}

	proof, err := groth16.Prove(g.ccs, g.pk, full)
	if err != nil {
		return nil, fmt.Errorf("failed to prove: %w", err)
	}

	var buf bytes.Buffer
	if _, err := proof.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to serialize proof: %w", err)
	}

	return &Artifact{
		ProofData:           hex.EncodeToString(commitment.Bytes()) + ":" + hex.EncodeToString(buf.Bytes()),
		VerificationKeyHash: g.keyHash(st.VerifierID, st.CircuitID),
	}, nil
}

// Verify implements Backend
func (g *Groth16) Verify(ctx context.Context, proof *types.ZKProof) (bool, error) {
	if proof == nil {
		return false, types.ErrInvalidProof
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if proof.VerificationKeyHash != g.keyHash(proof.VerifierID, proof.CircuitID) {
		return false, nil
	}

	commitmentHex, proofHex, ok := strings.Cut(proof.ProofData, ":")
	if !ok {
		return false, ErrMalformedProofData
	}
	commitmentBytes, err := hex.DecodeString(commitmentHex)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrMalformedProofData, err)
	}
	proofBytes, err := hex.DecodeString(proofHex)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrMalformedProofData, err)
	}

	gp := groth16.NewProof(ecc.BN254)
	if _, err := gp.ReadFrom(bytes.NewReader(proofBytes)); err != nil {
		return false, fmt.Errorf("%w: %v", ErrMalformedProofData, err)
	}

	public, err := frontend.NewWitness(&commitmentCircuit{
		Commitment: new(big.Int).SetBytes(commitmentBytes),
		Binding:    g.binding(proof.PublicInputs, proof.CircuitID),
	}, g.field, frontend.PublicOnly())
	if err != nil {
		return false, fmt.Errorf("failed to build public witness: %w", err)
	}

	if err := groth16.Verify(gp, g.vk, public); err != nil {
		logger.WithError(err).WithField("circuit", proof.CircuitID).Debugf("groth16 verification failed")
		return false, nil
	}
	return true, nil
}

// binding maps the public inputs onto a field element
func (g *Groth16) binding(inputs []string, circuitID string) *big.Int {
	h := sha256.New()
	for _, in := range inputs {
		h.Write([]byte(in))
		h.Write([]byte{0})
	}
	h.Write([]byte(circuitID))
	b := new(big.Int).SetBytes(h.Sum(nil))
	return b.Mod(b, g.field)
}

func (g *Groth16) keyHash(verifierID, circuitID string) string {
	return types.HashHex(g.vkHex, verifierID, "_", circuitID)
}
