package types

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ConsensusType represents the consensus family of a chain
type ConsensusType string

const (
	ConsensusPoW        ConsensusType = "proof_of_work"
	ConsensusPoS        ConsensusType = "proof_of_stake"
	ConsensusParallel   ConsensusType = "parallel_execution"
	ConsensusTendermint ConsensusType = "tendermint"
	ConsensusBFT        ConsensusType = "byzantine_fault_tolerant"
)

// ConsensusTypes lists every supported consensus type
var ConsensusTypes = []ConsensusType{
	ConsensusPoW,
	ConsensusPoS,
	ConsensusParallel,
	ConsensusTendermint,
	ConsensusBFT,
}

// ParseConsensusType accepts the full names and the short aliases pow, pos,
// parallel, tendermint and bft.
func ParseConsensusType(s string) (ConsensusType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pow", string(ConsensusPoW):
		return ConsensusPoW, nil
	case "pos", string(ConsensusPoS):
		return ConsensusPoS, nil
	case "parallel", string(ConsensusParallel):
		return ConsensusParallel, nil
	case "tendermint", "bft-tendermint":
		return ConsensusTendermint, nil
	case "bft", "generic_bft", string(ConsensusBFT):
		return ConsensusBFT, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownConsensusType, s)
}

// ConsensusData is the type-specific payload of a consensus proof.
// The set of implementations is closed: PoWData, PoSData, ParallelData,
// TendermintData and BFTData.
type ConsensusData interface {
	Type() ConsensusType
	// Fields returns the keyed view of the payload. Empty string fields are omitted.
	Fields() map[string]interface{}
	sealed()
}

// PoWData carries a proof-of-work seal
type PoWData struct {
	Nonce            uint32 `json:"nonce"`
	DifficultyTarget string `json:"difficulty_target"`
	BlockHash        string `json:"block_hash"`
}

// PoSData carries a proof-of-stake attestation
type PoSData struct {
	Slot           uint64 `json:"slot"`
	ValidatorIndex uint64 `json:"validator_index"`
	Signature      string `json:"signature"`
}

// ParallelData carries a parallel-execution commitment
type ParallelData struct {
	ParallelExecutionHash string `json:"parallel_execution_hash"`
	ExecutionSlots        []int  `json:"execution_slots"`
}

// TendermintData carries a Tendermint commit
type TendermintData struct {
	Round            uint64 `json:"round"`
	ValidatorSetHash string `json:"validator_set_hash"`
	Signature        string `json:"signature"`
}

// BFTData carries a generic BFT commit
type BFTData struct {
	Round            uint64 `json:"round"`
	ValidatorSetHash string `json:"validator_set_hash"`
	Signature        string `json:"signature"`
}

func (PoWData) Type() ConsensusType        { return ConsensusPoW }
func (PoSData) Type() ConsensusType        { return ConsensusPoS }
func (ParallelData) Type() ConsensusType   { return ConsensusParallel }
func (TendermintData) Type() ConsensusType { return ConsensusTendermint }
func (BFTData) Type() ConsensusType        { return ConsensusBFT }

func (PoWData) sealed()        {}
func (PoSData) sealed()        {}
func (ParallelData) sealed()   {}
func (TendermintData) sealed() {}
func (BFTData) sealed()        {}

func (d PoWData) Fields() map[string]interface{} {
	f := map[string]interface{}{"nonce": d.Nonce}
	putString(f, "difficulty_target", d.DifficultyTarget)
	putString(f, "block_hash", d.BlockHash)
	return f
}

func (d PoSData) Fields() map[string]interface{} {
	f := map[string]interface{}{"slot": d.Slot, "validator_index": d.ValidatorIndex}
	putString(f, "signature", d.Signature)
	return f
}

func (d ParallelData) Fields() map[string]interface{} {
	f := map[string]interface{}{}
	putString(f, "parallel_execution_hash", d.ParallelExecutionHash)
	if d.ExecutionSlots != nil {
		f["execution_slots"] = d.ExecutionSlots
	}
	return f
}

func (d TendermintData) Fields() map[string]interface{} {
	f := map[string]interface{}{"round": d.Round}
	putString(f, "validator_set_hash", d.ValidatorSetHash)
	putString(f, "signature", d.Signature)
	return f
}

func (d BFTData) Fields() map[string]interface{} {
	f := map[string]interface{}{"round": d.Round}
	putString(f, "validator_set_hash", d.ValidatorSetHash)
	putString(f, "signature", d.Signature)
	return f
}

func putString(f map[string]interface{}, key, value string) {
	if value != "" {
		f[key] = value
	}
}

// ConsensusProof represents a consensus-family specific finality proof
type ConsensusProof struct {
	ConsensusType    ConsensusType
	ChainID          string
	BlockHash        string
	BlockHeight      uint64
	Data             ConsensusData
	ValidatorSetHash string
	Signature        string

	// keys present in proof_data when the proof was decoded from JSON
	decodedKeys map[string]struct{}
}

// DataKeys returns the keys present in the proof payload
func (p *ConsensusProof) DataKeys() map[string]struct{} {
	if p.decodedKeys != nil {
		return p.decodedKeys
	}
	keys := make(map[string]struct{})
	if p.Data == nil {
		return keys
	}
	for k := range p.Data.Fields() {
		keys[k] = struct{}{}
	}
	return keys
}

type consensusProofJSON struct {
	ConsensusType    ConsensusType   `json:"consensus_type"`
	ChainID          string          `json:"chain_id"`
	BlockHash        string          `json:"block_hash"`
	BlockHeight      uint64          `json:"block_height"`
	ProofData        json.RawMessage `json:"proof_data"`
	ValidatorSetHash string          `json:"validator_set_hash,omitempty"`
	Signature        string          `json:"signature,omitempty"`
}

// MarshalJSON encodes the payload under proof_data
func (p ConsensusProof) MarshalJSON() ([]byte, error) {
	data := []byte("{}")
	if p.Data != nil {
		var err error
		data, err = json.Marshal(p.Data)
		if err != nil {
			return nil, err
		}
	}
	return json.Marshal(consensusProofJSON{
		ConsensusType:    p.ConsensusType,
		ChainID:          p.ChainID,
		BlockHash:        p.BlockHash,
		BlockHeight:      p.BlockHeight,
		ProofData:        data,
		ValidatorSetHash: p.ValidatorSetHash,
		Signature:        p.Signature,
	})
}

// UnmarshalJSON decodes proof_data into the variant named by consensus_type
func (p *ConsensusProof) UnmarshalJSON(b []byte) error {
	var raw consensusProofJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	var data ConsensusData
	switch raw.ConsensusType {
	case ConsensusPoW:
		data = &PoWData{}
	case ConsensusPoS:
		data = &PoSData{}
	case ConsensusParallel:
		data = &ParallelData{}
	case ConsensusTendermint:
		data = &TendermintData{}
	case ConsensusBFT:
		data = &BFTData{}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownConsensusType, raw.ConsensusType)
	}

	keys := make(map[string]struct{})
	if len(raw.ProofData) > 0 && string(raw.ProofData) != "null" {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(raw.ProofData, &fields); err != nil {
			return fmt.Errorf("failed to decode proof_data: %w", err)
		}
		for k := range fields {
			keys[k] = struct{}{}
		}
		if err := json.Unmarshal(raw.ProofData, data); err != nil {
			return fmt.Errorf("failed to decode proof_data: %w", err)
		}
	}

	*p = ConsensusProof{
		ConsensusType:    raw.ConsensusType,
		ChainID:          raw.ChainID,
		BlockHash:        raw.BlockHash,
		BlockHeight:      raw.BlockHeight,
		Data:             deref(data),
		ValidatorSetHash: raw.ValidatorSetHash,
		Signature:        raw.Signature,
		decodedKeys:      keys,
	}
	return nil
}

func deref(d ConsensusData) ConsensusData {
	switch v := d.(type) {
	case *PoWData:
		return *v
	case *PoSData:
		return *v
	case *ParallelData:
		return *v
	case *TendermintData:
		return *v
	case *BFTData:
		return *v
	}
	return d
}
