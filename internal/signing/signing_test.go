package signing

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignAndVerify(t *testing.T) {
	signer, err := GenerateECDSA()
	require.NoError(t, err)

	msg := []byte(`{"amount":"1","recipient":"0x742d35cc6634c0532925a3b844bc454e4438f44e"}`)
	bundle, err := signer.Sign(msg)
	require.NoError(t, err)

	assert.Equal(t, "secp256k1-keccak256", bundle.Algorithm)
	assert.Len(t, bundle.Signature, crypto.SignatureLength)
	assert.Len(t, bundle.PublicKey, 33)
	assert.Equal(t, signer.Address(), bundle.Address)
	assert.True(t, signer.Verify(bundle, msg))
	assert.True(t, VerifyBundle(bundle, msg))

	assert.False(t, VerifyBundle(bundle, []byte("tampered")))

	forged := *bundle
	forged.Address = common.HexToAddress("0x742d35Cc6634C0532925a3b844Bc454e4438f44e")
	assert.False(t, VerifyBundle(&forged, msg))

	short := *bundle
	short.Signature = bundle.Signature[:64]
	assert.False(t, VerifyBundle(&short, msg))
	assert.False(t, VerifyBundle(nil, msg))
}

func TestLoadECDSA(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	signer, err := LoadECDSA(common.Bytes2Hex(crypto.FromECDSA(key)))
	require.NoError(t, err)
	assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey), signer.Address())

	_, err = LoadECDSA("zz")
	assert.Error(t, err)

	_, err = NewECDSA(nil)
	assert.ErrorIs(t, err, ErrNilKey)
}
