package connector

import (
	"context"
	"fmt"
	"sync"

	"github.com/alznet/niev/internal/types"
)

// Request represents a call against a target chain
type Request struct {
	TargetChain     string
	Function        string
	Params          map[string]interface{}
	ContractAddress string
}

// Response represents the raw outcome of a successful call
type Response struct {
	Result          interface{}
	IsWriteFunction bool
	StateChanged    bool
	GasUsed         uint64
	BlockHeight     uint64
	BlockHash       string
	TxHash          string
}

// Connector executes calls on one or more chains.
// Native inclusion proofs must be translated into the generic
// leaf-plus-siblings shape before they leave a connector.
type Connector interface {
	Execute(ctx context.Context, req Request) (*Response, error)
}

// BlockLocator resolves the block that contains a transaction
type BlockLocator interface {
	BlockRef(ctx context.Context, txHash string) (height uint64, blockHash string, err error)
}

// Router dispatches calls to the connector registered for the target chain
type Router struct {
	mu         sync.RWMutex
	connectors map[string]Connector
	fallback   Connector
}

// NewRouter creates a new router. fallback may be nil.
func NewRouter(fallback Connector) *Router {
	return &Router{
		connectors: make(map[string]Connector),
		fallback:   fallback,
	}
}

// Register binds a connector to a chain
func (r *Router) Register(chain string, c Connector) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connectors[chain] = c
}

// Lookup returns the connector serving chain
func (r *Router) Lookup(chain string) (Connector, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if c, ok := r.connectors[chain]; ok {
		return c, true
	}
	return r.fallback, r.fallback != nil
}

// Execute implements Connector
func (r *Router) Execute(ctx context.Context, req Request) (*Response, error) {
	c, ok := r.Lookup(req.TargetChain)
	if !ok {
		return nil, fmt.Errorf("%w: %s", types.ErrConnectorNotFound, req.TargetChain)
	}
	return c.Execute(ctx, req)
}

// BlockRef resolves through the chain's connector when it can locate blocks
func (r *Router) BlockRef(ctx context.Context, chain, txHash string) (uint64, string, error) {
	c, ok := r.Lookup(chain)
	if !ok {
		return 0, "", fmt.Errorf("%w: %s", types.ErrConnectorNotFound, chain)
	}
	locator, ok := c.(BlockLocator)
	if !ok {
		return 0, "", fmt.Errorf("connector for %s cannot locate blocks", chain)
	}
	return locator.BlockRef(ctx, txHash)
}
