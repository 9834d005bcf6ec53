package types

import "time"

// ProofType represents the zero-knowledge proof system family
type ProofType string

const (
	ProofTypeSNARK ProofType = "zk-snark"
	ProofTypeSTARK ProofType = "zk-stark"
)

// ZKProof represents a zero-knowledge proof envelope over an execution result
type ZKProof struct {
	ProofType           ProofType `json:"proof_type"`
	PublicInputs        []string  `json:"public_inputs"`
	ProofData           string    `json:"proof_data"`
	VerifierID          string    `json:"verifier_id"`
	CircuitID           string    `json:"circuit_id"`
	VerificationKeyHash string    `json:"verification_key_hash"`
	Timestamp           time.Time `json:"timestamp"`
}

// MerkleProof represents a chain-agnostic inclusion proof.
// Folding LeafHash with each ProofPath element in order yields MerkleRoot.
type MerkleProof struct {
	MerkleRoot string   `json:"merkle_root"`
	LeafHash   string   `json:"leaf_hash"`
	ProofPath  []string `json:"proof_path"`
	LeafIndex  int      `json:"leaf_index"`
	TreeDepth  int      `json:"tree_depth"`
	BlockHash  string   `json:"block_hash"`
	ChainID    string   `json:"chain_id"`
}
