package zkproof

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/alznet/niev/internal/metrics"
	"github.com/alznet/niev/internal/storage"
	"github.com/alznet/niev/internal/types"
)

var logger = logrus.StandardLogger().WithField("module", "zkproof")

// Statement is the public data a backend proves over
type Statement struct {
	PublicInputs []string
	CircuitID    string
	VerifierID   string
	Timestamp    time.Time
}

// Artifact is what a backend produces for a statement
type Artifact struct {
	ProofData           string
	VerificationKeyHash string
}

// Backend constructs and checks proofs. Engine handles the registry.
type Backend interface {
	Name() string
	Prove(ctx context.Context, st Statement) (*Artifact, error)
	Verify(ctx context.Context, proof *types.ZKProof) (bool, error)
}

// Engine generates proof envelopes over execution results and verifies
// them against its registry
type Engine struct {
	backend   Backend
	registry  storage.Store
	proofType types.ProofType
	metrics   *metrics.Metrics
	now       func() time.Time
}

// NewEngine creates a new engine. registry is owned by the engine.
func NewEngine(backend Backend, registry storage.Store, proofType types.ProofType, m *metrics.Metrics) *Engine {
	if proofType == "" {
		proofType = types.ProofTypeSNARK
	}
	return &Engine{
		backend:   backend,
		registry:  registry,
		proofType: proofType,
		metrics:   m,
		now:       time.Now,
	}
}

// PublicInputs returns [hash(canonical(return value)), execution time, circuit id]
func PublicInputs(result *types.ExecutionResult, circuitID string) ([]string, error) {
	digest, err := types.CanonicalHash(result.ReturnValue)
	if err != nil {
		return nil, err
	}
	return []string{
		digest,
		strconv.FormatFloat(result.ExecutionTimeMs, 'f', -1, 64),
		circuitID,
	}, nil
}

// Generate produces and registers a proof for result
func (e *Engine) Generate(ctx context.Context, result *types.ExecutionResult, circuitID, verifierID string) (*types.ZKProof, error) {
	proof, err := e.generate(ctx, result, circuitID, verifierID)
	e.metrics.ObserveProof("zk", "generate", err == nil)
	return proof, err
}

func (e *Engine) generate(ctx context.Context, result *types.ExecutionResult, circuitID, verifierID string) (*types.ZKProof, error) {
	if result == nil {
		return nil, errors.New("nil execution result")
	}
	if circuitID == "" || verifierID == "" {
		return nil, errors.New("circuit id and verifier id are required")
	}

	inputs, err := PublicInputs(result, circuitID)
	if err != nil {
		return nil, fmt.Errorf("failed to compute public inputs: %w", err)
	}

	st := Statement{
		PublicInputs: inputs,
		CircuitID:    circuitID,
		VerifierID:   verifierID,
		Timestamp:    e.now().UTC(),
	}
	artifact, err := e.backend.Prove(ctx, st)
	if err != nil {
		return nil, fmt.Errorf("%s backend: %w", e.backend.Name(), err)
	}

	proof := &types.ZKProof{
		ProofType:           e.proofType,
		PublicInputs:        inputs,
		ProofData:           artifact.ProofData,
		VerifierID:          verifierID,
		CircuitID:           circuitID,
		VerificationKeyHash: artifact.VerificationKeyHash,
		Timestamp:           st.Timestamp,
	}
	if err := e.Import(ctx, proof); err != nil {
		return nil, err
	}

	logger.WithFields(logrus.Fields{
		"circuit":  circuitID,
		"verifier": verifierID,
		"backend":  e.backend.Name(),
	}).Debugf("zk proof generated")
	return proof, nil
}

// Import registers a proof produced elsewhere
func (e *Engine) Import(ctx context.Context, proof *types.ZKProof) error {
	if proof == nil || proof.VerificationKeyHash == "" {
		return types.ErrInvalidProof
	}
	data, err := json.Marshal(proof)
	if err != nil {
		return fmt.Errorf("failed to encode proof: %w", err)
	}
	if err := e.registry.Put(ctx, proof.VerificationKeyHash, data); err != nil {
		return fmt.Errorf("failed to register proof: %w", err)
	}
	return nil
}

// Verify reports whether proof is registered and accepted by the backend
func (e *Engine) Verify(ctx context.Context, proof *types.ZKProof) (bool, error) {
	ok, err := e.verify(ctx, proof)
	e.metrics.ObserveProof("zk", "verify", ok && err == nil)
	return ok, err
}

func (e *Engine) verify(ctx context.Context, proof *types.ZKProof) (bool, error) {
	if proof == nil {
		return false, types.ErrInvalidProof
	}
	registered, err := e.registry.Has(ctx, proof.VerificationKeyHash)
	if err != nil {
		return false, fmt.Errorf("failed to query registry: %w", err)
	}
	if !registered {
		logger.WithField("circuit", proof.CircuitID).Debugf("zk proof not in registry")
		return false, nil
	}
	return e.backend.Verify(ctx, proof)
}

// Check is Verify with an error naming the reason a proof was rejected
func (e *Engine) Check(ctx context.Context, proof *types.ZKProof) error {
	if proof == nil {
		return types.ErrInvalidProof
	}
	registered, err := e.registry.Has(ctx, proof.VerificationKeyHash)
	if err != nil {
		return fmt.Errorf("failed to query registry: %w", err)
	}
	if !registered {
		e.metrics.ObserveProof("zk", "verify", false)
		return fmt.Errorf("%w: circuit %s", types.ErrProofNotRegistered, proof.CircuitID)
	}
	ok, err := e.Verify(ctx, proof)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: circuit %s", types.ErrVerificationFailed, proof.CircuitID)
	}
	return nil
}

// Registered returns the registered proof for a verification key hash
func (e *Engine) Registered(ctx context.Context, vkHash string) (*types.ZKProof, error) {
	data, err := e.registry.Get(ctx, vkHash)
	if err != nil {
		return nil, err
	}
	var proof types.ZKProof
	if err := json.Unmarshal(data, &proof); err != nil {
		return nil, fmt.Errorf("failed to decode proof: %w", err)
	}
	return &proof, nil
}
