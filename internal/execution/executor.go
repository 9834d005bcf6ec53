package execution

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/alznet/niev/internal/connector"
	"github.com/alznet/niev/internal/metrics"
	"github.com/alznet/niev/internal/types"
)

var logger = logrus.StandardLogger().WithField("module", "execution")

var (
	ErrEmptyResponse = errors.New("connector returned an empty response")
)

// DefaultHistoryLimit bounds the execution history
const DefaultHistoryLimit = 1024

// Config holds the executor configuration
type Config struct {
	// Timeout bounds every connector call. Zero means no timeout.
	Timeout time.Duration
	// HistoryLimit bounds the execution history. Negative disables it.
	HistoryLimit int
}

// HistoryEntry represents one executed call
type HistoryEntry struct {
	ID          string      `json:"id"`
	SourceChain string      `json:"source_chain"`
	TargetChain string      `json:"target_chain"`
	Function    string      `json:"function"`
	Success     bool        `json:"success"`
	Result      interface{} `json:"result,omitempty"`
	Error       string      `json:"error,omitempty"`
	Timestamp   time.Time   `json:"timestamp"`
}

// Executor invokes functions on remote chains through a connector.
// It holds no state across calls other than the history.
type Executor struct {
	connector connector.Connector
	config    Config
	metrics   *metrics.Metrics

	mu      sync.Mutex
	history []HistoryEntry
}

// NewExecutor creates a new executor
func NewExecutor(conn connector.Connector, config Config, m *metrics.Metrics) *Executor {
	if config.HistoryLimit == 0 {
		config.HistoryLimit = DefaultHistoryLimit
	}
	return &Executor{
		connector: conn,
		config:    config,
		metrics:   m,
	}
}

// Execute calls function on targetChain. The returned result is never nil;
// on failure it has Success=false, a nil ReturnValue and the elapsed time, and
// the error is a *types.ConnectorError.
func (e *Executor) Execute(
	ctx context.Context,
	sourceChain, targetChain, function string,
	params map[string]interface{},
	contractAddress string,
) (*types.ExecutionResult, error) {
	start := time.Now()
	write := types.IsWriteFunction(function)

	log := logger.WithFields(logrus.Fields{
		"source":   sourceChain,
		"target":   targetChain,
		"function": function,
	})
	log.Debugf("executing native function")

	callCtx := ctx
	if e.config.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, e.config.Timeout)
		defer cancel()
	}

	resp, err := e.connector.Execute(callCtx, connector.Request{
		TargetChain:     targetChain,
		Function:        function,
		Params:          params,
		ContractAddress: contractAddress,
	})
	if err == nil && resp == nil {
		err = ErrEmptyResponse
	}
	elapsed := time.Since(start)
	if elapsed < 0 {
		elapsed = 0
	}
	e.metrics.ObserveConnectorCall(targetChain, write, err == nil, elapsed)

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			err = fmt.Errorf("timed out after %v: %w", e.config.Timeout, err)
		}
		connErr := &types.ConnectorError{Chain: targetChain, Function: function, Err: err}
		log.WithError(err).Warnf("native function failed")
		e.record(sourceChain, targetChain, function, false, nil, connErr)
		return &types.ExecutionResult{
			Success:         false,
			ReturnValue:     nil,
			ExecutionTimeMs: millis(elapsed),
			IsWriteFunction: write,
		}, connErr
	}

	write = write || resp.IsWriteFunction
	result := &types.ExecutionResult{
		Success:         true,
		ReturnValue:     resp.Result,
		ExecutionTimeMs: millis(elapsed),
		IsWriteFunction: write,
		StateChanged:    write && resp.StateChanged,
	}
	if resp.BlockHeight > 0 {
		height := resp.BlockHeight
		result.BlockNumber = &height
	}
	if resp.GasUsed > 0 {
		gas := resp.GasUsed
		result.GasUsed = &gas
	}

	e.record(sourceChain, targetChain, function, true, resp.Result, nil)
	log.WithField("write", write).Debugf("native function executed in %.3fms", result.ExecutionTimeMs)
	return result, nil
}

// History returns a copy of the recorded calls, oldest first
func (e *Executor) History() []HistoryEntry {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]HistoryEntry(nil), e.history...)
}

func (e *Executor) record(source, target, function string, success bool, result interface{}, err error) {
	if e.config.HistoryLimit < 0 {
		return
	}
	entry := HistoryEntry{
		ID:          uuid.NewString(),
		SourceChain: source,
		TargetChain: target,
		Function:    function,
		Success:     success,
		Result:      result,
		Timestamp:   time.Now(),
	}
	if err != nil {
		entry.Error = err.Error()
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.history = append(e.history, entry)
	if over := len(e.history) - e.config.HistoryLimit; over > 0 {
		e.history = append([]HistoryEntry(nil), e.history[over:]...)
	}
}

func millis(d time.Duration) float64 {
	return float64(d.Nanoseconds()) / float64(time.Millisecond)
}
