package interop

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alznet/niev/internal/config"
	"github.com/alznet/niev/internal/connector"
	"github.com/alznet/niev/internal/signing"
	"github.com/alznet/niev/internal/types"
)

const recipient = "0x742d35Cc6634C0532925a3b844Bc454e4438f44e"

func newTestService(t *testing.T, opts ...Option) *Service {
	cfg := config.DefaultConfig()
	cfg.Metrics.Enabled = true
	svc, err := NewService(context.Background(), cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(svc.Close)
	return svc
}

func TestExecuteCrossChainWithProofs(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	result, err := svc.ExecuteCrossChainWithProofs(ctx, "allianza", "polygon", "transfer",
		map[string]interface{}{"to": recipient, "amount": 100})
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.True(t, result.IsWriteFunction)
	assert.True(t, result.StateChanged)
	require.True(t, result.FullyProven())

	assert.Equal(t, "cross_chain_polygon", result.ZKProof.CircuitID)
	assert.Equal(t, "verifier_polygon", result.ZKProof.VerifierID)
	assert.Equal(t, "polygon", result.MerkleProof.ChainID)
	assert.Equal(t, types.ConsensusPoS, result.ConsensusProof.ConsensusType)
	assert.Equal(t, result.MerkleProof.BlockHash, result.ConsensusProof.BlockHash)

	require.NoError(t, svc.VerifyResult(ctx, "polygon", result))

	families, err := svc.Registry().Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestVerifyResultDetectsTampering(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	result, err := svc.ExecuteCrossChainWithProofs(ctx, "allianza", "cosmos", "delegate", nil)
	require.NoError(t, err)

	tampered := result.Clone()
	merkleCopy := *result.MerkleProof
	merkleCopy.MerkleRoot = types.HashHex("forged")
	tampered.MerkleProof = &merkleCopy

	err = svc.VerifyResult(ctx, "cosmos", tampered)
	var verr *types.ProofVerificationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "merkle", verr.Layer)

	assert.ErrorIs(t, svc.VerifyResult(ctx, "cosmos", &types.ExecutionResult{Success: true}), types.ErrInvalidProof)

	// a zk proof this service never registered
	foreign := result.Clone()
	zkCopy := *result.ZKProof
	zkCopy.VerificationKeyHash = types.HashHex("verifier_other", "_", "circuit_other")
	foreign.ZKProof = &zkCopy

	err = svc.VerifyResult(ctx, "cosmos", foreign)
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "zk", verr.Layer)
	assert.ErrorIs(t, err, types.ErrProofNotRegistered)
}

func TestExecuteCrossChainFailure(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Connector.FailChains = []string{"bitcoin"}
	svc, err := NewService(context.Background(), cfg)
	require.NoError(t, err)
	defer svc.Close()

	result, err := svc.ExecuteCrossChainWithProofs(context.Background(), "allianza", "bitcoin", "transfer", nil)
	require.Error(t, err)
	require.NotNil(t, result)
	assert.False(t, result.Success)
	assert.False(t, result.FullyProven())
	assert.Nil(t, result.ZKProof)
}

func TestServiceExecuteAtomic(t *testing.T) {
	svc := newTestService(t)

	record, err := svc.ExecuteAtomic(context.Background(), []types.Call{
		{Chain: "polygon", Function: "transfer", Params: map[string]interface{}{"to": recipient}},
		{Chain: "solana", Function: "swap"},
	})
	require.NoError(t, err)
	assert.True(t, record.Confirmed())

	stored, err := svc.Orchestrator().Record(record.ExecutionID)
	require.NoError(t, err)
	assert.Equal(t, record.ExecutionID, stored.ExecutionID)
}

func TestNewServiceRejectsInvalidConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.ZK.Backend = "plonk"
	_, err := NewService(context.Background(), cfg)
	assert.Error(t, err)
}

func TestParseCall(t *testing.T) {
	call, err := ParseCall("polygon:transfer")
	require.NoError(t, err)
	assert.Equal(t, types.Call{Chain: "polygon", Function: "transfer", Params: map[string]interface{}{}}, call)

	call, err = ParseCall(`ethereum:transfer:{"to":"0xabc","memo":"a:b"}`)
	require.NoError(t, err)
	assert.Equal(t, "ethereum", call.Chain)
	assert.Equal(t, "a:b", call.Params["memo"])

	for _, bad := range []string{"", "polygon", ":transfer", "polygon:", "polygon:transfer:{not json"} {
		_, err := ParseCall(bad)
		assert.ErrorIs(t, err, types.ErrInvalidCall, bad)
	}
}

// fakeBridge records the orders it receives
type fakeBridge struct {
	orders []*TransferOrder
	txHash string
	err    error
}

func (b *fakeBridge) Transfer(_ context.Context, order *TransferOrder) (*TransferReceipt, error) {
	b.orders = append(b.orders, order)
	if b.err != nil {
		return nil, b.err
	}
	return &TransferReceipt{
		SourceTxHash: b.txHash,
		Explorers:    map[string]string{"source": "https://explorer.example/tx/" + b.txHash},
	}, nil
}

func TestRealTransferComputedBlock(t *testing.T) {
	signer, err := signing.GenerateECDSA()
	require.NoError(t, err)
	bridge := &fakeBridge{txHash: common.HexToHash("0x1234").Hex()}
	svc := newTestService(t, WithTransferConnector(bridge), WithSigner(signer))

	result, err := svc.RealTransfer(context.Background(), TransferRequest{
		SourceChain: "polygon",
		TargetChain: "ethereum",
		Amount:      "1000000000000000000",
		TokenSymbol: "MATIC",
		Recipient:   recipient,
	})
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.False(t, result.RealBlockData)
	assert.NotEmpty(t, result.Note)
	assert.Equal(t, "1000000000000000000", result.Amount)
	assert.Equal(t, types.HashHex("polygon", bridge.txHash), result.BlockHash)
	assert.Equal(t, "transfer_polygon_ethereum", result.ZKProof.CircuitID)

	require.Len(t, bridge.orders, 1)
	order := bridge.orders[0]
	require.NotNil(t, order.Signature)
	assert.Equal(t, signer.Address(), order.Signature.Address)

	unsigned := *order
	unsigned.Signature = nil
	msg, err := types.CanonicalJSON(&unsigned)
	require.NoError(t, err)
	assert.True(t, signing.VerifyBundle(order.Signature, msg))

	assert.True(t, svc.Merkle().Verify(result.MerkleProof))
	assert.True(t, svc.Consensus().VerifyProof(context.Background(), result.ConsensusProof))
}

// ethService serves the transaction lookup used to resolve block references
type ethService struct{}

func (ethService) GetTransactionByHash(hash common.Hash) map[string]interface{} {
	return map[string]interface{}{
		"hash":        hash,
		"blockNumber": hexutil.Uint64(5000000),
		"blockHash":   common.HexToHash("0xbeef"),
	}
}

func TestRealTransferRealBlock(t *testing.T) {
	server := rpc.NewServer()
	require.NoError(t, server.RegisterName("eth", ethService{}))
	defer server.Stop()
	evm := connector.NewEVM("ethereum", rpc.DialInProc(server), 0, 0)
	defer evm.Close()

	bridge := &fakeBridge{txHash: common.HexToHash("0xabcd").Hex()}
	svc := newTestService(t, WithTransferConnector(bridge), WithConnector("ethereum", evm))

	result, err := svc.RealTransfer(context.Background(), TransferRequest{
		SourceChain: "ethereum",
		TargetChain: "polygon",
		Amount:      "42",
		Recipient:   recipient,
	})
	require.NoError(t, err)
	assert.True(t, result.RealBlockData)
	assert.Empty(t, result.Note)
	assert.Equal(t, uint64(5000000), result.BlockHeight)
	assert.Equal(t, common.HexToHash("0xbeef").Hex(), result.BlockHash)
	assert.Equal(t, uint64(5000000), result.ConsensusProof.BlockHeight)
	assert.Nil(t, result.Signature)
}

func TestRealTransferValidation(t *testing.T) {
	ctx := context.Background()

	svc := newTestService(t)
	_, err := svc.RealTransfer(ctx, TransferRequest{SourceChain: "a", TargetChain: "b", Amount: "1", Recipient: recipient})
	assert.ErrorIs(t, err, types.ErrTransferUnavailable)

	bridge := &fakeBridge{txHash: "0x01"}
	svc = newTestService(t, WithTransferConnector(bridge))

	cases := []struct {
		req  TransferRequest
		want error
	}{
		{TransferRequest{TargetChain: "b", Amount: "1", Recipient: recipient}, types.ErrInvalidCall},
		{TransferRequest{SourceChain: "a", TargetChain: "b", Amount: "1", Recipient: "0xINVALID"}, connector.ErrInvalidAddress},
		{TransferRequest{SourceChain: "a", TargetChain: "b", Amount: "-5", Recipient: recipient}, types.ErrInvalidAmount},
		{TransferRequest{SourceChain: "a", TargetChain: "b", Amount: "0", Recipient: recipient}, types.ErrInvalidAmount},
		{TransferRequest{SourceChain: "a", TargetChain: "b", Amount: "ten", Recipient: recipient}, types.ErrInvalidAmount},
	}
	for _, tc := range cases {
		_, err := svc.RealTransfer(ctx, tc.req)
		assert.ErrorIs(t, err, tc.want, tc.req.Amount)
	}
	assert.Empty(t, bridge.orders)

	bridge.err = errors.New("bridge offline")
	_, err = svc.RealTransfer(ctx, TransferRequest{SourceChain: "a", TargetChain: "b", Amount: "1", Recipient: recipient})
	var connErr *types.ConnectorError
	require.True(t, errors.As(err, &connErr))
	assert.Equal(t, "a", connErr.Chain)
}
