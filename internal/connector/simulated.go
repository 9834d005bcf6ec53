package connector

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alznet/niev/internal/types"
)

var (
	ErrInvalidAddress = errors.New("invalid address")
	ErrInjected       = errors.New("injected failure")
)

// SimulatedWriteGas is the gas reported for every simulated write
const SimulatedWriteGas uint64 = 21000

// addressParams are the parameters checked for well-formed hex addresses
var addressParams = []string{"to", "address", "recipient", "from"}

// Simulated represents an in-process connector that accepts every well-formed call.
// Failures can be injected per chain or per chain and function.
type Simulated struct {
	mu       sync.RWMutex
	failures map[string]error
	latency  time.Duration
	calls    []Request
	seq      uint64
}

// NewSimulated creates a new simulated connector
func NewSimulated() *Simulated {
	return &Simulated{
		failures: make(map[string]error),
	}
}

// FailChain makes every call on chain fail with err
func (s *Simulated) FailChain(chain string, err error) {
	if err == nil {
		err = ErrInjected
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[chain] = err
}

// FailFunction makes calls of function on chain fail with err
func (s *Simulated) FailFunction(chain, function string, err error) {
	if err == nil {
		err = ErrInjected
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[chain+"/"+strings.ToLower(function)] = err
}

// ClearFailures removes every injected failure
func (s *Simulated) ClearFailures() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = make(map[string]error)
}

// SetLatency delays every call by d
func (s *Simulated) SetLatency(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latency = d
}

// Calls returns the requests received so far
func (s *Simulated) Calls() []Request {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Request(nil), s.calls...)
}

// CallsTo returns the requests received for chain and function
func (s *Simulated) CallsTo(chain, function string) []Request {
	var matched []Request
	for _, req := range s.Calls() {
		if req.TargetChain == chain && strings.EqualFold(req.Function, function) {
			matched = append(matched, req)
		}
	}
	return matched
}

// Execute implements Connector
func (s *Simulated) Execute(ctx context.Context, req Request) (*Response, error) {
	s.mu.Lock()
	s.calls = append(s.calls, req)
	s.seq++
	seq := s.seq
	latency := s.latency
	failure := s.failures[req.TargetChain+"/"+strings.ToLower(req.Function)]
	if failure == nil {
		failure = s.failures[req.TargetChain]
	}
	s.mu.Unlock()

	if latency > 0 {
		timer := time.NewTimer(latency)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	} else if err := ctx.Err(); err != nil {
		return nil, err
	}

	if failure != nil {
		return nil, failure
	}
	if err := validateAddresses(req.Params); err != nil {
		return nil, err
	}

	paramsHash, err := types.CanonicalHash(req.Params)
	if err != nil {
		return nil, fmt.Errorf("failed to encode params: %v", err)
	}
	txHash := types.HashHex(req.TargetChain, req.Function, paramsHash, strconv.FormatUint(seq, 10))

	write := types.IsWriteFunction(req.Function)
	result := map[string]interface{}{
		"result":            fmt.Sprintf("executed %s on %s", req.Function, req.TargetChain),
		"params":            req.Params,
		"is_write_function": write,
		"tx_hash":           txHash,
	}
	resp := &Response{
		Result:          result,
		IsWriteFunction: write,
		StateChanged:    write,
		TxHash:          txHash,
	}
	if write {
		result["state_changed"] = true
		resp.GasUsed = SimulatedWriteGas
	}
	return resp, nil
}

func validateAddresses(params map[string]interface{}) error {
	for _, key := range addressParams {
		value, ok := params[key].(string)
		if !ok || !strings.HasPrefix(value, "0x") {
			continue
		}
		if !common.IsHexAddress(value) {
			return fmt.Errorf("%w: %s=%s", ErrInvalidAddress, key, value)
		}
	}
	return nil
}
