package merkle

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/alznet/niev/internal/metrics"
	"github.com/alznet/niev/internal/types"
)

// DefaultDepth is the depth of the generated sibling path
const DefaultDepth = 5

var (
	ErrEmptyChainID = errors.New("empty chain id")
	ErrEmptyLeaf    = errors.New("empty leaf hash")
)

var logger = logrus.StandardLogger().WithField("module", "merkle")

// Leaf represents the inclusion statement committed to by a proof
type Leaf struct {
	ChainID     string `json:"chain_id"`
	BlockHash   string `json:"block_hash"`
	TxHash      string `json:"tx_hash"`
	BlockHeight uint64 `json:"block_height"`
}

// Hash returns the digest of the canonical encoding of the leaf
func (l Leaf) Hash() (string, error) {
	return types.CanonicalHash(l)
}

// Tunnel normalizes inclusion proofs from any chain into a leaf plus an
// ordered sibling list. It keeps no state.
type Tunnel struct {
	depth   int
	metrics *metrics.Metrics
}

// NewTunnel creates a new tunnel. A non-positive depth selects DefaultDepth.
func NewTunnel(depth int, m *metrics.Metrics) *Tunnel {
	if depth <= 0 {
		depth = DefaultDepth
	}
	return &Tunnel{depth: depth, metrics: m}
}

// DefaultPath returns the placeholder sibling path of the given depth
func DefaultPath(depth int) []string {
	path := make([]string, depth)
	for i := range path {
		path[i] = types.HashHex(fmt.Sprintf("node_%d", i))
	}
	return path
}

// Create builds a proof for the transaction over the default path
func (t *Tunnel) Create(chainID, blockHash, txHash string, blockHeight uint64) (*types.MerkleProof, error) {
	leaf := Leaf{
		ChainID:     chainID,
		BlockHash:   blockHash,
		TxHash:      txHash,
		BlockHeight: blockHeight,
	}
	proof, err := t.CreateWithPath(leaf, DefaultPath(t.depth), 0)
	t.metrics.ObserveProof("merkle", "generate", err == nil)
	return proof, err
}

// CreateWithPath builds a proof over a sibling path already translated
// from the chain's native inclusion proof
func (t *Tunnel) CreateWithPath(leaf Leaf, siblings []string, leafIndex int) (*types.MerkleProof, error) {
	if leaf.ChainID == "" {
		return nil, ErrEmptyChainID
	}
	if leafIndex < 0 {
		return nil, fmt.Errorf("negative leaf index %d", leafIndex)
	}

	leafHash, err := leaf.Hash()
	if err != nil {
		return nil, fmt.Errorf("failed to hash leaf: %w", err)
	}

	path := append([]string(nil), siblings...)
	proof := &types.MerkleProof{
		MerkleRoot: Fold(leafHash, path),
		LeafHash:   leafHash,
		ProofPath:  path,
		LeafIndex:  leafIndex,
		TreeDepth:  len(path),
		BlockHash:  leaf.BlockHash,
		ChainID:    leaf.ChainID,
	}

	logger.WithFields(logrus.Fields{
		"chain": leaf.ChainID,
		"depth": proof.TreeDepth,
	}).Debugf("merkle proof created")
	return proof, nil
}

// Fold hashes leaf with each sibling in order and returns the root
func Fold(leaf string, path []string) string {
	current := leaf
	for _, sibling := range path {
		current = types.HashHex(current, sibling)
	}
	return current
}

// Verify recomputes the root from the leaf and path
func (t *Tunnel) Verify(proof *types.MerkleProof) bool {
	ok := verify(proof)
	t.metrics.ObserveProof("merkle", "verify", ok)
	return ok
}

func verify(proof *types.MerkleProof) bool {
	if proof == nil || proof.LeafHash == "" || proof.MerkleRoot == "" {
		return false
	}
	return Fold(proof.LeafHash, proof.ProofPath) == proof.MerkleRoot
}

// Check is Verify with an error describing the mismatch
func (t *Tunnel) Check(proof *types.MerkleProof) error {
	if proof == nil {
		return types.ErrInvalidProof
	}
	if proof.LeafHash == "" {
		return ErrEmptyLeaf
	}
	if !t.Verify(proof) {
		return fmt.Errorf("%w: root mismatch for chain %s", types.ErrVerificationFailed, proof.ChainID)
	}
	return nil
}
