package signing

import (
	"crypto/ecdsa"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

var ErrNilKey = errors.New("nil private key")

// Bundle represents a signature over a message digest.
// Callers treat it as opaque.
type Bundle struct {
	Algorithm string         `json:"algorithm"`
	Digest    hexutil.Bytes  `json:"digest"`
	Signature hexutil.Bytes  `json:"signature"`
	PublicKey hexutil.Bytes  `json:"public_key"`
	Address   common.Address `json:"address"`
}

// Service signs and verifies messages
type Service interface {
	Sign(msg []byte) (*Bundle, error)
	Verify(bundle *Bundle, msg []byte) bool
}

// ECDSA signs with a secp256k1 key over the Keccak-256 digest of the message
type ECDSA struct {
	key *ecdsa.PrivateKey
}

// NewECDSA creates a new signer from an existing key
func NewECDSA(key *ecdsa.PrivateKey) (*ECDSA, error) {
	if key == nil {
		return nil, ErrNilKey
	}
	return &ECDSA{key: key}, nil
}

// GenerateECDSA creates a new signer with a fresh key
func GenerateECDSA() (*ECDSA, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	return &ECDSA{key: key}, nil
}

// LoadECDSA creates a new signer from a hex encoded private key
func LoadECDSA(hexKey string) (*ECDSA, error) {
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	return &ECDSA{key: key}, nil
}

// Address returns the address of the signing key
func (s *ECDSA) Address() common.Address {
	return crypto.PubkeyToAddress(s.key.PublicKey)
}

// Sign implements Service
func (s *ECDSA) Sign(msg []byte) (*Bundle, error) {
	digest := crypto.Keccak256(msg)
	sig, err := crypto.Sign(digest, s.key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign message: %w", err)
	}
	return &Bundle{
		Algorithm: "secp256k1-keccak256",
		Digest:    digest,
		Signature: sig,
		PublicKey: crypto.CompressPubkey(&s.key.PublicKey),
		Address:   s.Address(),
	}, nil
}

// Verify implements Service
func (s *ECDSA) Verify(bundle *Bundle, msg []byte) bool {
	return VerifyBundle(bundle, msg)
}

// VerifyBundle checks a bundle against msg without a private key
func VerifyBundle(bundle *Bundle, msg []byte) bool {
	if bundle == nil || len(bundle.Signature) != crypto.SignatureLength {
		return false
	}
	digest := crypto.Keccak256(msg)
	pub, err := crypto.SigToPub(digest, bundle.Signature)
	if err != nil {
		return false
	}
	if crypto.PubkeyToAddress(*pub) != bundle.Address {
		return false
	}
	return crypto.VerifySignature(crypto.CompressPubkey(pub), digest, bundle.Signature[:64])
}
