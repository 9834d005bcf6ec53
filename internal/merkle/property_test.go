package merkle

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/alznet/niev/internal/types"
)

// Property: Verify(Create(leaf)) holds for any leaf with a chain id
func TestCreatedProofsVerify(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("created proofs always verify", prop.ForAll(
		func(chain, block, tx string, height uint64, depth int) bool {
			if chain == "" {
				return true
			}
			tunnel := NewTunnel(depth, nil)
			proof, err := tunnel.Create(chain, block, tx, height)
			if err != nil {
				return false
			}
			return tunnel.Verify(proof)
		},
		gen.AlphaString(),
		gen.AlphaString(),
		gen.AlphaString(),
		gen.UInt64(),
		gen.IntRange(1, 16),
	))

	properties.TestingRun(t)
}

// Property: a different root never verifies
func TestForeignRootRejected(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("foreign roots are rejected", prop.ForAll(
		func(tx, other string) bool {
			tunnel := NewTunnel(0, nil)
			proof, err := tunnel.Create("ethereum", "block", tx, 1)
			if err != nil {
				return false
			}
			root := types.HashHex(other)
			if root == proof.MerkleRoot {
				return true
			}
			proof.MerkleRoot = root
			return !tunnel.Verify(proof)
		},
		gen.AlphaString(),
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}

// Property: changing one byte of the root breaks verification
func TestRootByteMutationRejected(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("single byte root mutations are rejected", prop.ForAll(
		func(tx string, idx int, replacement byte) bool {
			tunnel := NewTunnel(0, nil)
			proof, err := tunnel.Create("ethereum", "blockhash", tx, 42)
			if err != nil {
				return false
			}
			root := []byte(proof.MerkleRoot)
			i := idx % len(root)
			if root[i] == replacement {
				return true
			}
			root[i] = replacement
			proof.MerkleRoot = string(root)
			return !tunnel.Verify(proof)
		},
		gen.AlphaString(),
		gen.IntRange(0, 63),
		gen.OneConstOf(byte('0'), byte('7'), byte('a'), byte('f'), byte('A'), byte('D'), byte('F'), byte('x')),
	))

	properties.TestingRun(t)
}

// Property: swapping two distinct siblings breaks verification
func TestPathOrderMatters(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("sibling order is significant", prop.ForAll(
		func(i, j int) bool {
			if i == j {
				return true
			}
			tunnel := NewTunnel(8, nil)
			proof, err := tunnel.Create("solana", "block", "tx", 42)
			if err != nil {
				return false
			}
			proof.ProofPath[i], proof.ProofPath[j] = proof.ProofPath[j], proof.ProofPath[i]
			return !tunnel.Verify(proof)
		},
		gen.IntRange(0, 7),
		gen.IntRange(0, 7),
	))

	properties.TestingRun(t)
}
