package atomic

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/alznet/niev/internal/consensus"
	"github.com/alznet/niev/internal/metrics"
	"github.com/alznet/niev/internal/storage"
	"github.com/alznet/niev/internal/types"
)

var logger = logrus.StandardLogger().WithField("module", "atomic")

// ErrCallFailed is reported when a call returns an unsuccessful result without an error
var ErrCallFailed = errors.New("call reported failure")

// Executor runs one native call on a target chain
type Executor interface {
	Execute(ctx context.Context, sourceChain, targetChain, function string, params map[string]interface{}, contractAddress string) (*types.ExecutionResult, error)
}

// ZKLayer generates and verifies zero-knowledge proof envelopes
type ZKLayer interface {
	Generate(ctx context.Context, result *types.ExecutionResult, circuitID, verifierID string) (*types.ZKProof, error)
	Verify(ctx context.Context, proof *types.ZKProof) (bool, error)
}

// MerkleLayer generates and verifies normalized inclusion proofs
type MerkleLayer interface {
	Create(chainID, blockHash, txHash string, blockHeight uint64) (*types.MerkleProof, error)
	Verify(proof *types.MerkleProof) bool
}

// ConsensusLayer generates and verifies consensus proofs
type ConsensusLayer interface {
	TypeFor(chain string) types.ConsensusType
	Generate(ctx context.Context, chainID string, t types.ConsensusType, height uint64, blockHash string) (*types.ConsensusProof, error)
	Verify(ctx context.Context, proof *types.ConsensusProof) (consensus.Verification, error)
}

// Options holds the orchestrator settings
type Options struct {
	// SourceChain is reported as the caller of every native call
	SourceChain string
	// Parallel runs each phase concurrently across participants
	Parallel bool
	// MaxParallel bounds concurrent participants in parallel mode. Zero means no bound.
	MaxParallel int
	// RollbackTimeout bounds the whole rollback sweep. Zero means no bound.
	RollbackTimeout time.Duration
}

// Orchestrator drives the execute, prove, verify and confirm phases over a
// set of participants and compensates every executed participant on failure
type Orchestrator struct {
	executor  Executor
	zk        ZKLayer
	merkle    MerkleLayer
	consensus ConsensusLayer
	records   *storage.RecordStore
	metrics   *metrics.Metrics
	opts      Options
	now       func() time.Time
}

// NewOrchestrator creates a new orchestrator
func NewOrchestrator(
	executor Executor,
	zk ZKLayer,
	merkle MerkleLayer,
	cons ConsensusLayer,
	records *storage.RecordStore,
	m *metrics.Metrics,
	opts Options,
) *Orchestrator {
	if opts.SourceChain == "" {
		opts.SourceChain = "allianza"
	}
	if records == nil {
		records, _ = storage.NewRecordStore("")
	}
	return &Orchestrator{
		executor:  executor,
		zk:        zk,
		merkle:    merkle,
		consensus: cons,
		records:   records,
		metrics:   m,
		opts:      opts,
		now:       time.Now,
	}
}

// proofSet holds the three proofs generated for one participant
type proofSet struct {
	zk        *types.ZKProof
	merkle    *types.MerkleProof
	consensus *types.ConsensusProof
}

// run holds the state of one atomic execution
type run struct {
	id        string
	calls     []types.Call
	results   []*types.ExecutionResult
	succeeded []bool
	proofs    []proofSet
	log       *logrus.Entry
}

// ExecuteAtomic runs calls as one atomic unit. An error is returned only for
// invalid input or when the finalized record cannot be stored; protocol
// failures are reported in the record.
func (o *Orchestrator) ExecuteAtomic(ctx context.Context, calls []types.Call) (*types.AtomicRecord, error) {
	if err := validateCalls(calls); err != nil {
		return nil, err
	}

	started := o.now()
	id, err := ExecutionID(calls, started)
	if err != nil {
		return nil, err
	}

	r := &run{
		id:        id,
		calls:     calls,
		results:   make([]*types.ExecutionResult, len(calls)),
		succeeded: make([]bool, len(calls)),
		proofs:    make([]proofSet, len(calls)),
		log:       logger.WithField("execution_id", id),
	}
	r.log.Infof("atomic execution started with %d participants", len(calls))

	phase, idx, failure := o.forward(ctx, r)

	record := &types.AtomicRecord{
		ExecutionID: id,
		Chains:      chainsOf(calls),
		Results:     make(map[string]*types.ExecutionResult, len(calls)),
		Timestamp:   started,
	}
	for i, res := range r.results {
		if res != nil {
			record.Results[calls[i].Chain] = res
		}
	}

	if failure == nil {
		record.Status = types.AtomicStatusConfirmed
		r.log.Infof("atomic execution confirmed")
	} else {
		record.FailedPhase = phase
		record.FailedChain = calls[idx].Chain
		record.Error = fmt.Sprintf("%s phase failed on %s: %v", phase, calls[idx].Chain, failure)
		r.log.WithError(failure).Warnf("%s phase failed on %s, rolling back", phase, calls[idx].Chain)

		o.metrics.ObservePhaseFailure(string(phase))
		record.RollbackResults = o.rollback(ctx, r)
		record.RollbackPerformed = true
		record.Status = types.AtomicStatusRolledBack
		if uncompensated := record.UncompensatedChains(); len(uncompensated) > 0 {
			r.log.Errorf("rollback failed on %s", strings.Join(uncompensated, ", "))
		}
	}
	o.metrics.ObserveAtomicRun(string(record.Status))

	if err := o.records.Save(record); err != nil {
		return record, fmt.Errorf("failed to store atomic record: %w", err)
	}
	return record, nil
}

// forward runs the four phases and returns the failing phase, the index of
// the failing participant and the cause
func (o *Orchestrator) forward(ctx context.Context, r *run) (types.Phase, int, error) {
	r.log.Debugf("phase 1: execute")
	if i, err := o.forEach(ctx, len(r.calls), func(ctx context.Context, i int) error {
		return o.execute(ctx, r, i)
	}); err != nil {
		return types.PhaseExecute, i, err
	}

	r.log.Debugf("phase 2: prove")
	if i, err := o.forEach(ctx, len(r.calls), func(ctx context.Context, i int) error {
		return o.prove(ctx, r, i)
	}); err != nil {
		return types.PhaseProve, i, err
	}

	r.log.Debugf("phase 3: verify")
	if i, err := o.forEach(ctx, len(r.calls), func(ctx context.Context, i int) error {
		return o.verify(ctx, r, i)
	}); err != nil {
		return types.PhaseVerify, i, err
	}

	r.log.Debugf("phase 4: confirm")
	for i := range r.calls {
		p := r.proofs[i]
		if err := r.results[i].AttachProofs(p.zk, p.merkle, p.consensus); err != nil {
			return types.PhaseConfirm, i, err
		}
	}
	return "", -1, nil
}

// forEach applies fn to every participant. Sequential mode stops at the
// first failure. Parallel mode awaits every participant and then reports
// the first failure in list order.
func (o *Orchestrator) forEach(ctx context.Context, n int, fn func(ctx context.Context, i int) error) (int, error) {
	if !o.opts.Parallel {
		for i := 0; i < n; i++ {
			if err := ctx.Err(); err != nil {
				return i, err
			}
			if err := fn(ctx, i); err != nil {
				return i, err
			}
		}
		return -1, nil
	}

	errs := make([]error, n)
	var g errgroup.Group
	if o.opts.MaxParallel > 0 {
		g.SetLimit(o.opts.MaxParallel)
	}
	for i := 0; i < n; i++ {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				errs[i] = err
				return nil
			}
			errs[i] = fn(ctx, i)
			return nil
		})
	}
	_ = g.Wait()

	for i, err := range errs {
		if err != nil {
			return i, err
		}
	}
	return -1, nil
}

func (o *Orchestrator) execute(ctx context.Context, r *run, i int) error {
	call := r.calls[i]
	res, err := o.executor.Execute(ctx, o.opts.SourceChain, call.Chain, call.Function, call.Params, "")
	r.results[i] = res
	if err != nil {
		return err
	}
	if res == nil || !res.Success {
		return &types.ConnectorError{Chain: call.Chain, Function: call.Function, Err: ErrCallFailed}
	}
	r.succeeded[i] = true
	return nil
}

func (o *Orchestrator) prove(ctx context.Context, r *run, i int) error {
	call := r.calls[i]
	chain := call.Chain

	zk, err := o.zk.Generate(ctx, r.results[i], "aes_"+chain+"_"+r.id, "verifier_"+chain)
	if err != nil {
		return &types.ProofGenerationError{Chain: chain, Layer: "zk", Err: err}
	}

	blockHash := types.HashHex(chain, r.id)
	txHash := types.HashHex(chain, call.Function)
	height := uint64(1000 + len(r.calls))

	merkle, err := o.merkle.Create(chain, blockHash, txHash, height)
	if err != nil {
		return &types.ProofGenerationError{Chain: chain, Layer: "merkle", Err: err}
	}

	cons, err := o.consensus.Generate(ctx, chain, o.consensus.TypeFor(chain), height, blockHash)
	if err != nil {
		return &types.ProofGenerationError{Chain: chain, Layer: "consensus", Err: err}
	}

	r.proofs[i] = proofSet{zk: zk, merkle: merkle, consensus: cons}
	return nil
}

func (o *Orchestrator) verify(ctx context.Context, r *run, i int) error {
	chain := r.calls[i].Chain
	p := r.proofs[i]

	ok, err := o.zk.Verify(ctx, p.zk)
	if err != nil || !ok {
		return &types.ProofVerificationError{Chain: chain, Layer: "zk", Err: err}
	}
	if !o.merkle.Verify(p.merkle) {
		return &types.ProofVerificationError{Chain: chain, Layer: "merkle"}
	}
	v, err := o.consensus.Verify(ctx, p.consensus)
	if err != nil || !v.Valid {
		return &types.ProofVerificationError{Chain: chain, Layer: "consensus", Err: err}
	}
	return nil
}

// rollback issues a compensating call for every participant whose execution
// succeeded. A failed compensation is reported and the sweep continues.
func (o *Orchestrator) rollback(ctx context.Context, r *run) map[string]types.RollbackOutcome {
	rbCtx := context.WithoutCancel(ctx)
	if o.opts.RollbackTimeout > 0 {
		var cancel context.CancelFunc
		rbCtx, cancel = context.WithTimeout(rbCtx, o.opts.RollbackTimeout)
		defer cancel()
	}

	outcomes := make(map[string]types.RollbackOutcome, len(r.calls))
	for i, call := range r.calls {
		if !r.succeeded[i] {
			msg := "not executed, nothing to compensate"
			if r.results[i] != nil {
				msg = "execution failed, nothing to compensate"
			}
			outcomes[call.Chain] = types.RollbackOutcome{Message: msg}
			continue
		}

		params := map[string]interface{}{
			"original_function":  call.Function,
			"original_params":    call.Params,
			"original_result":    r.results[i].ReturnValue,
			"reason":             types.RollbackReason,
			"rollback_timestamp": float64(o.now().UnixNano()) / float64(time.Second),
		}
		res, err := o.executor.Execute(rbCtx, o.opts.SourceChain, call.Chain, types.RollbackFunction, params, "")

		outcome := types.RollbackOutcome{
			OriginalSuccess:   true,
			RollbackAttempted: true,
		}
		switch {
		case err != nil:
			rbErr := &types.RollbackError{Chain: call.Chain, Err: err}
			outcome.Message = rbErr.Error()
			r.log.WithError(err).Errorf("rollback failed on %s", call.Chain)
		case res == nil || !res.Success:
			outcome.Message = (&types.RollbackError{Chain: call.Chain, Err: ErrCallFailed}).Error()
		default:
			outcome.RollbackSuccess = true
			outcome.RollbackResult = res.ReturnValue
			outcome.Message = "rollback executed"
			r.log.Infof("rolled back %s on %s", call.Function, call.Chain)
		}
		o.metrics.ObserveRollback(call.Chain, outcome.RollbackSuccess)
		outcomes[call.Chain] = outcome
	}
	return outcomes
}

// Record returns a finalized record by execution id
func (o *Orchestrator) Record(id string) (*types.AtomicRecord, error) {
	return o.records.Get(id)
}

// Records returns the finalized records, newest first
func (o *Orchestrator) Records() []*types.AtomicRecord {
	return o.records.List()
}

// ExecutionID derives the id of an atomic run from its start time and participants
func ExecutionID(calls []types.Call, at time.Time) (string, error) {
	digest, err := types.CanonicalHash(struct {
		Calls []types.Call `json:"calls"`
		At    string       `json:"at"`
	}{calls, strconv.FormatInt(at.UnixNano(), 10)})
	if err != nil {
		return "", fmt.Errorf("failed to hash participants: %w", err)
	}
	return "aes_" + strconv.FormatInt(at.Unix(), 10) + "_" + digest[:16], nil
}

func validateCalls(calls []types.Call) error {
	if len(calls) == 0 {
		return types.ErrEmptyParticipants
	}
	seen := make(map[string]struct{}, len(calls))
	for i, call := range calls {
		if call.Chain == "" || call.Function == "" {
			return fmt.Errorf("%w: participant %d needs a chain and a function", types.ErrInvalidCall, i)
		}
		if _, dup := seen[call.Chain]; dup {
			return fmt.Errorf("%w: %s", types.ErrDuplicateParticipant, call.Chain)
		}
		seen[call.Chain] = struct{}{}
	}
	return nil
}

func chainsOf(calls []types.Call) []string {
	chains := make([]string, len(calls))
	for i, call := range calls {
		chains[i] = call.Chain
	}
	return chains
}
