package types

// ExecutionResult represents the outcome of one cross-chain call.
// It is created once by the execution layer; only the three proof slots are
// filled in afterwards, each at most once.
type ExecutionResult struct {
	Success         bool            `json:"success"`
	ReturnValue     interface{}     `json:"return_value"`
	ZKProof         *ZKProof        `json:"zk_proof,omitempty"`
	MerkleProof     *MerkleProof    `json:"merkle_proof,omitempty"`
	ConsensusProof  *ConsensusProof `json:"consensus_proof,omitempty"`
	ExecutionTimeMs float64         `json:"execution_time_ms"`
	GasUsed         *uint64         `json:"gas_used,omitempty"`
	BlockNumber     *uint64         `json:"block_number,omitempty"`
	IsWriteFunction bool            `json:"is_write_function"`
	StateChanged    bool            `json:"state_changed"`
}

// AttachZKProof fills the zk proof slot
func (r *ExecutionResult) AttachZKProof(proof *ZKProof) error {
	if proof == nil {
		return ErrInvalidProof
	}
	if r.ZKProof != nil {
		return ErrProofAlreadyAttached
	}
	r.ZKProof = proof
	return nil
}

// AttachMerkleProof fills the merkle proof slot
func (r *ExecutionResult) AttachMerkleProof(proof *MerkleProof) error {
	if proof == nil {
		return ErrInvalidProof
	}
	if r.MerkleProof != nil {
		return ErrProofAlreadyAttached
	}
	r.MerkleProof = proof
	return nil
}

// AttachConsensusProof fills the consensus proof slot
func (r *ExecutionResult) AttachConsensusProof(proof *ConsensusProof) error {
	if proof == nil {
		return ErrInvalidProof
	}
	if r.ConsensusProof != nil {
		return ErrProofAlreadyAttached
	}
	r.ConsensusProof = proof
	return nil
}

// AttachProofs fills all three proof slots
func (r *ExecutionResult) AttachProofs(zk *ZKProof, merkle *MerkleProof, consensus *ConsensusProof) error {
	if zk == nil || merkle == nil || consensus == nil {
		return ErrInvalidProof
	}
	if r.ZKProof != nil || r.MerkleProof != nil || r.ConsensusProof != nil {
		return ErrProofAlreadyAttached
	}
	r.ZKProof = zk
	r.MerkleProof = merkle
	r.ConsensusProof = consensus
	return nil
}

// FullyProven reports whether all three proofs are attached
func (r *ExecutionResult) FullyProven() bool {
	return r.ZKProof != nil && r.MerkleProof != nil && r.ConsensusProof != nil
}

// Clone returns a shallow copy with its own proof slots
func (r *ExecutionResult) Clone() *ExecutionResult {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}
