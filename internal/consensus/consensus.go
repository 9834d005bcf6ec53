package consensus

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/alznet/niev/internal/metrics"
	"github.com/alznet/niev/internal/storage"
	"github.com/alznet/niev/internal/types"
)

// DifficultyTarget is the proof-of-work target attached to generated seals
const DifficultyTarget = "0000ffff00000000000000000000000000000000000000000000000000000000"

// ParallelSlots is the number of execution slots in a parallel commitment
const ParallelSlots = 4

var logger = logrus.StandardLogger().WithField("module", "consensus")

// Source tells how a verification was decided
type Source string

const (
	SourceRegistry   Source = "registry"
	SourceStructural Source = "structural"
	SourceNone       Source = "none"
)

// Verification represents the outcome of a consensus proof check
type Verification struct {
	Valid  bool   `json:"valid"`
	Source Source `json:"source"`
}

// Layer generates consensus proofs for any supported consensus family and
// verifies them against its registry, falling back to a structural check
type Layer struct {
	config   *Config
	registry storage.Store
	metrics  *metrics.Metrics
	nonce    func() (uint32, error)
}

// NewLayer creates a new consensus layer. registry is owned by the layer.
func NewLayer(config *Config, registry storage.Store, m *metrics.Metrics) (*Layer, error) {
	if config == nil {
		config = NewConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid consensus config: %w", err)
	}
	return &Layer{
		config:   config,
		registry: registry,
		metrics:  m,
		nonce:    randomNonce,
	}, nil
}

// TypeFor returns the consensus type configured for chain
func (l *Layer) TypeFor(chain string) types.ConsensusType {
	return l.config.TypeFor(chain)
}

// RegistryKey returns the registry key of a proof
func RegistryKey(chainID string, t types.ConsensusType, height uint64, blockHash string) string {
	return types.HashHex(chainID, string(t), strconv.FormatUint(height, 10), blockHash)
}

// Generate produces and registers a consensus proof
func (l *Layer) Generate(ctx context.Context, chainID string, t types.ConsensusType, height uint64, blockHash string) (*types.ConsensusProof, error) {
	proof, err := l.generate(ctx, chainID, t, height, blockHash)
	l.metrics.ObserveProof("consensus", "generate", err == nil)
	return proof, err
}

func (l *Layer) generate(ctx context.Context, chainID string, t types.ConsensusType, height uint64, blockHash string) (*types.ConsensusProof, error) {
	data, err := l.payload(t, height, blockHash)
	if err != nil {
		return nil, err
	}

	proof := &types.ConsensusProof{
		ConsensusType: t,
		ChainID:       chainID,
		BlockHash:     blockHash,
		BlockHeight:   height,
		Data:          data,
	}
	switch d := data.(type) {
	case types.PoSData:
		proof.Signature = d.Signature
	case types.TendermintData:
		proof.ValidatorSetHash = d.ValidatorSetHash
		proof.Signature = d.Signature
	case types.BFTData:
		proof.ValidatorSetHash = d.ValidatorSetHash
		proof.Signature = d.Signature
	}

	encoded, err := types.CanonicalJSON(proof)
	if err != nil {
		return nil, fmt.Errorf("failed to encode consensus proof: %w", err)
	}
	key := RegistryKey(chainID, t, height, blockHash)
	stored, err := l.registry.PutIfAbsent(ctx, key, encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to register consensus proof: %w", err)
	}
	if !stored {
		// the first proof registered for a block stays authoritative
		registered, err := l.registered(ctx, key)
		switch {
		case err == nil:
			logger.WithField("chain", chainID).Debugf("reusing consensus proof registered at height %d", height)
			return registered, nil
		case errors.Is(err, storage.ErrNotFound):
			if err := l.registry.Put(ctx, key, encoded); err != nil {
				return nil, fmt.Errorf("failed to register consensus proof: %w", err)
			}
		default:
			return nil, err
		}
	}

	logger.WithFields(logrus.Fields{
		"chain":  chainID,
		"type":   t,
		"height": height,
	}).Debugf("consensus proof generated")
	return proof, nil
}

// payload builds the type-specific proof data
func (l *Layer) payload(t types.ConsensusType, height uint64, blockHash string) (types.ConsensusData, error) {
	h := strconv.FormatUint(height, 10)
	switch t {
	case types.ConsensusPoW:
		nonce, err := l.nonce()
		if err != nil {
			return nil, fmt.Errorf("failed to draw nonce: %w", err)
		}
		return types.PoWData{
			Nonce:            nonce,
			DifficultyTarget: DifficultyTarget,
			BlockHash:        blockHash,
		}, nil
	case types.ConsensusPoS:
		return types.PoSData{
			Slot:           height,
			ValidatorIndex: height % 1000,
			Signature:      types.HashHex(blockHash, h),
		}, nil
	case types.ConsensusParallel:
		slots := make([]int, ParallelSlots)
		for i := range slots {
			slots[i] = i
		}
		return types.ParallelData{
			ParallelExecutionHash: types.HashHex(blockHash, "parallel"),
			ExecutionSlots:        slots,
		}, nil
	case types.ConsensusTendermint:
		return types.TendermintData{
			Round:            height % 10,
			ValidatorSetHash: types.HashHex("validators_", h),
			Signature:        types.HashHex(blockHash, "tendermint"),
		}, nil
	case types.ConsensusBFT:
		return types.BFTData{
			Round:            height % 10,
			ValidatorSetHash: types.HashHex("bft_validators_", h),
			Signature:        types.HashHex(blockHash, "bft"),
		}, nil
	}
	return nil, fmt.Errorf("%w: %q", types.ErrUnknownConsensusType, t)
}

func (l *Layer) registered(ctx context.Context, key string) (*types.ConsensusProof, error) {
	data, err := l.registry.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	var proof types.ConsensusProof
	if err := json.Unmarshal(data, &proof); err != nil {
		return nil, fmt.Errorf("failed to decode registered consensus proof: %w", err)
	}
	return &proof, nil
}

// Verify checks the registry first and falls back to a structural check
// for proofs this layer did not produce
func (l *Layer) Verify(ctx context.Context, proof *types.ConsensusProof) (Verification, error) {
	v, err := l.verify(ctx, proof)
	l.metrics.ObserveProof("consensus", "verify", v.Valid && err == nil)
	return v, err
}

func (l *Layer) verify(ctx context.Context, proof *types.ConsensusProof) (Verification, error) {
	none := Verification{Valid: false, Source: SourceNone}
	if proof == nil {
		return none, types.ErrInvalidProof
	}

	key := RegistryKey(proof.ChainID, proof.ConsensusType, proof.BlockHeight, proof.BlockHash)
	stored, err := l.registry.Get(ctx, key)
	switch {
	case err == nil:
		encoded, err := types.CanonicalJSON(proof)
		if err != nil {
			return none, fmt.Errorf("failed to encode consensus proof: %w", err)
		}
		if !bytes.Equal(stored, encoded) {
			logger.WithField("chain", proof.ChainID).Warnf("consensus proof differs from registered proof at height %d", proof.BlockHeight)
			return none, nil
		}
		return Verification{Valid: true, Source: SourceRegistry}, nil
	case errors.Is(err, storage.ErrNotFound):
	default:
		return none, fmt.Errorf("failed to query registry: %w", err)
	}

	if !Structural(proof) {
		return none, nil
	}
	return Verification{Valid: true, Source: SourceStructural}, nil
}

// VerifyProof reports whether proof verifies through either path
func (l *Layer) VerifyProof(ctx context.Context, proof *types.ConsensusProof) bool {
	v, err := l.Verify(ctx, proof)
	return err == nil && v.Valid
}

// ClearRegistry drops every registered proof
func (l *Layer) ClearRegistry(ctx context.Context) error {
	return l.registry.Clear(ctx)
}

// Structural reports whether the payload carries the fields required for
// its consensus type
func Structural(proof *types.ConsensusProof) bool {
	if proof == nil || proof.BlockHeight == 0 || proof.Data == nil {
		return false
	}
	if proof.Data.Type() != proof.ConsensusType {
		return false
	}
	keys := proof.DataKeys()
	if len(keys) == 0 {
		return false
	}
	has := func(k string) bool {
		_, ok := keys[k]
		return ok
	}

	switch proof.ConsensusType {
	case types.ConsensusPoW:
		return has("nonce") && has("difficulty_target")
	case types.ConsensusPoS:
		return has("slot") || has("validator_index")
	case types.ConsensusParallel:
		return has("parallel_execution_hash")
	case types.ConsensusTendermint, types.ConsensusBFT:
		return has("round") || has("validator_set_hash")
	}
	return false
}

func randomNonce() (uint32, error) {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]), nil
}
