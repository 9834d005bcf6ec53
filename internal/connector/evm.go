package connector

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/alznet/niev/internal/types"
)

var (
	ErrUnsupportedFunction = errors.New("unsupported function")
	ErrTransactionPending  = errors.New("transaction not yet included in a block")
)

var logger = logrus.StandardLogger().WithField("module", "connector")

// EVM represents a read-only connector to an EVM chain over JSON-RPC.
// State-changing calls need a signer and are rejected.
type EVM struct {
	chain     string
	rpcClient *rpc.Client
	ethClient *ethclient.Client
	limiter   *rate.Limiter
}

// DialEVM connects to the JSON-RPC endpoint at url.
// A zero rateLimit disables throttling.
func DialEVM(ctx context.Context, chain, url string, rateLimit float64, burst int) (*EVM, error) {
	rpcClient, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s rpc: %w", chain, err)
	}
	return NewEVM(chain, rpcClient, rateLimit, burst), nil
}

// NewEVM creates a new EVM connector on an existing rpc client
func NewEVM(chain string, rpcClient *rpc.Client, rateLimit float64, burst int) *EVM {
	limiter := rate.NewLimiter(rate.Inf, 0)
	if rateLimit > 0 {
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(rateLimit), burst)
	}
	return &EVM{
		chain:     chain,
		rpcClient: rpcClient,
		ethClient: ethclient.NewClient(rpcClient),
		limiter:   limiter,
	}
}

// Close releases the rpc connection
func (e *EVM) Close() {
	e.rpcClient.Close()
}

// Execute implements Connector for read functions
func (e *EVM) Execute(ctx context.Context, req Request) (*Response, error) {
	if types.IsWriteFunction(req.Function) || strings.EqualFold(req.Function, types.RollbackFunction) {
		return nil, fmt.Errorf("%w: %s on %s", types.ErrWriteUnsupported, req.Function, e.chain)
	}
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var (
		value  string
		height uint64
	)
	switch strings.ToLower(req.Function) {
	case "blocknumber":
		n, err := e.ethClient.BlockNumber(ctx)
		if err != nil {
			return nil, err
		}
		value = fmt.Sprintf("%d", n)
		height = n
	case "getbalance":
		addr, _ := req.Params["address"].(string)
		if !common.IsHexAddress(addr) {
			return nil, fmt.Errorf("%w: address=%q", ErrInvalidAddress, addr)
		}
		balance, err := e.ethClient.BalanceAt(ctx, common.HexToAddress(addr), nil)
		if err != nil {
			return nil, err
		}
		value = balance.String()
	case "chainid":
		id, err := e.ethClient.ChainID(ctx)
		if err != nil {
			return nil, err
		}
		value = id.String()
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFunction, req.Function)
	}

	logger.WithField("chain", e.chain).Debugf("rpc %s returned %s", req.Function, value)

	return &Response{
		Result: map[string]interface{}{
			"result":            value,
			"function":          req.Function,
			"params":            req.Params,
			"is_write_function": false,
		},
		BlockHeight: height,
	}, nil
}

type rpcTransaction struct {
	BlockNumber *hexutil.Big `json:"blockNumber"`
	BlockHash   *common.Hash `json:"blockHash"`
}

// BlockRef implements BlockLocator
func (e *EVM) BlockRef(ctx context.Context, txHash string) (uint64, string, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return 0, "", err
	}

	var tx *rpcTransaction
	if err := e.rpcClient.CallContext(ctx, &tx, "eth_getTransactionByHash", common.HexToHash(txHash)); err != nil {
		return 0, "", fmt.Errorf("failed to fetch transaction %s: %w", txHash, err)
	}
	if tx == nil || tx.BlockNumber == nil || tx.BlockHash == nil {
		return 0, "", ErrTransactionPending
	}
	return tx.BlockNumber.ToInt().Uint64(), tx.BlockHash.Hex(), nil
}
