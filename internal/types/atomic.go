package types

import "time"

// Call represents one participant of an atomic run
type Call struct {
	Chain    string                 `json:"chain"`
	Function string                 `json:"function"`
	Params   map[string]interface{} `json:"params"`
}

// Phase represents a step of the atomic protocol
type Phase string

const (
	PhaseExecute Phase = "execute"
	PhaseProve   Phase = "prove"
	PhaseVerify  Phase = "verify"
	PhaseConfirm Phase = "confirm"
)

// AtomicStatus represents the final state of an atomic run
type AtomicStatus string

const (
	AtomicStatusConfirmed  AtomicStatus = "confirmed"
	AtomicStatusRolledBack AtomicStatus = "rolled_back"
)

// RollbackReason is sent with every compensating call
const RollbackReason = "atomicity_failure"

// RollbackFunction is the function name used for compensating calls
const RollbackFunction = "rollback"

// RollbackOutcome represents the compensation report for one participant
type RollbackOutcome struct {
	OriginalSuccess   bool        `json:"original_success"`
	RollbackAttempted bool        `json:"rollback_attempted"`
	RollbackSuccess   bool        `json:"rollback_success"`
	RollbackResult    interface{} `json:"rollback_result,omitempty"`
	Message           string      `json:"message"`
}

// AtomicRecord represents one atomic multi-chain execution.
// It is never mutated once Status is set.
type AtomicRecord struct {
	ExecutionID       string                      `json:"execution_id"`
	Chains            []string                    `json:"chains"`
	Results           map[string]*ExecutionResult `json:"results"`
	Status            AtomicStatus                `json:"status"`
	Timestamp         time.Time                   `json:"timestamp"`
	RollbackPerformed bool                        `json:"rollback_performed"`
	RollbackResults   map[string]RollbackOutcome  `json:"rollback_results,omitempty"`
	FailedPhase       Phase                       `json:"failed_phase,omitempty"`
	FailedChain       string                      `json:"failed_chain,omitempty"`
	Error             string                      `json:"error,omitempty"`
}

// Confirmed reports whether every participant was committed
func (r *AtomicRecord) Confirmed() bool {
	return r.Status == AtomicStatusConfirmed
}

// UncompensatedChains returns the chains whose rollback was attempted and failed
func (r *AtomicRecord) UncompensatedChains() []string {
	var chains []string
	for _, chain := range r.Chains {
		outcome, ok := r.RollbackResults[chain]
		if ok && outcome.RollbackAttempted && !outcome.RollbackSuccess {
			chains = append(chains, chain)
		}
	}
	return chains
}
