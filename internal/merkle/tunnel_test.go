package merkle

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alznet/niev/internal/types"
)

func TestCreateAndVerify(t *testing.T) {
	tunnel := NewTunnel(0, nil)

	proof, err := tunnel.Create("polygon", types.HashHex("block"), types.HashHex("tx"), 1042)
	require.NoError(t, err)
	assert.Equal(t, DefaultDepth, proof.TreeDepth)
	assert.Len(t, proof.ProofPath, DefaultDepth)
	assert.Equal(t, 0, proof.LeafIndex)
	assert.Equal(t, "polygon", proof.ChainID)

	leafHash, err := Leaf{ChainID: "polygon", BlockHash: types.HashHex("block"), TxHash: types.HashHex("tx"), BlockHeight: 1042}.Hash()
	require.NoError(t, err)
	assert.Equal(t, leafHash, proof.LeafHash)

	assert.True(t, tunnel.Verify(proof))
	assert.NoError(t, tunnel.Check(proof))
}

func TestDefaultPath(t *testing.T) {
	path := DefaultPath(3)
	require.Len(t, path, 3)
	assert.Equal(t, types.HashHex("node_0"), path[0])
	assert.Equal(t, types.HashHex("node_2"), path[2])
}

func TestFold(t *testing.T) {
	assert.Equal(t, "leaf", Fold("leaf", nil))
	assert.Equal(t, types.HashHex(types.HashHex("leaf", "a"), "b"), Fold("leaf", []string{"a", "b"}))
}

func TestVerifyRejectsTampering(t *testing.T) {
	tunnel := NewTunnel(4, nil)
	proof, err := tunnel.Create("bitcoin", "00ff", "aa", 7)
	require.NoError(t, err)

	mutated := *proof
	mutated.MerkleRoot = types.HashHex("other root")
	assert.False(t, tunnel.Verify(&mutated))
	assert.ErrorIs(t, tunnel.Check(&mutated), types.ErrVerificationFailed)

	mutated = *proof
	mutated.LeafHash = types.HashHex("other leaf")
	assert.False(t, tunnel.Verify(&mutated))

	mutated = *proof
	mutated.ProofPath = append([]string(nil), proof.ProofPath...)
	mutated.ProofPath[0], mutated.ProofPath[1] = mutated.ProofPath[1], mutated.ProofPath[0]
	assert.False(t, tunnel.Verify(&mutated))

	// roots compare byte for byte
	upper := *proof
	upper.MerkleRoot = strings.ToUpper(proof.MerkleRoot[:1]) + proof.MerkleRoot[1:]
	if upper.MerkleRoot == proof.MerkleRoot {
		upper.MerkleRoot = strings.ToUpper(proof.MerkleRoot)
	}
	assert.False(t, tunnel.Verify(&upper))
}

func TestVerifyRejectsRootByteChange(t *testing.T) {
	tunnel := NewTunnel(0, nil)
	proof, err := tunnel.Create("ethereum", "blockhash", "txhash", 42)
	require.NoError(t, err)
	require.True(t, tunnel.Verify(proof))

	for i := range proof.MerkleRoot {
		root := []byte(proof.MerkleRoot)
		if root[i] >= 'a' && root[i] <= 'f' {
			root[i] -= 'a' - 'A'
		} else {
			root[i] = 'x'
		}
		mutated := *proof
		mutated.MerkleRoot = string(root)
		assert.False(t, tunnel.Verify(&mutated), "byte %d", i)
	}
}

func TestVerifyEmptyFields(t *testing.T) {
	tunnel := NewTunnel(0, nil)
	assert.False(t, tunnel.Verify(nil))
	assert.False(t, tunnel.Verify(&types.MerkleProof{MerkleRoot: "r"}))
	assert.False(t, tunnel.Verify(&types.MerkleProof{LeafHash: "l"}))

	assert.ErrorIs(t, tunnel.Check(nil), types.ErrInvalidProof)
	assert.ErrorIs(t, tunnel.Check(&types.MerkleProof{MerkleRoot: "r"}), ErrEmptyLeaf)
}

func TestCreateValidation(t *testing.T) {
	tunnel := NewTunnel(0, nil)

	_, err := tunnel.Create("", "b", "t", 1)
	assert.ErrorIs(t, err, ErrEmptyChainID)

	_, err = tunnel.CreateWithPath(Leaf{ChainID: "x"}, nil, -1)
	assert.Error(t, err)

	proof, err := tunnel.CreateWithPath(Leaf{ChainID: "x"}, nil, 0)
	require.NoError(t, err)
	assert.Equal(t, proof.LeafHash, proof.MerkleRoot)
	assert.True(t, tunnel.Verify(proof))
}

func TestCreateWithPathCopiesSiblings(t *testing.T) {
	tunnel := NewTunnel(0, nil)
	siblings := []string{"a", "b"}

	proof, err := tunnel.CreateWithPath(Leaf{ChainID: "cosmos", TxHash: "t"}, siblings, 2)
	require.NoError(t, err)
	siblings[0] = "z"

	assert.Equal(t, "a", proof.ProofPath[0])
	assert.True(t, tunnel.Verify(proof))
}
