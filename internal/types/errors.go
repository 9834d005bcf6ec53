package types

import (
	"errors"
	"fmt"
)

// Error definitions
var (
	ErrInvalidProof         = errors.New("invalid proof")
	ErrProofAlreadyAttached = errors.New("proof already attached")
	ErrUnknownConsensusType = errors.New("unknown consensus type")
	ErrEmptyParticipants    = errors.New("no participants")
	ErrDuplicateParticipant = errors.New("duplicate participant chain")
	ErrInvalidCall          = errors.New("invalid call")
	ErrConnectorNotFound    = errors.New("connector not found")
	ErrVerificationFailed   = errors.New("verification failed")
	ErrProofNotRegistered   = errors.New("proof not registered")
	ErrWriteUnsupported     = errors.New("write functions unsupported by connector")
	ErrTransferUnavailable  = errors.New("transfer connector not configured")
	ErrInvalidAmount        = errors.New("invalid amount")
)

// ConnectorError represents a failed remote chain call
type ConnectorError struct {
	Chain    string
	Function string
	Err      error
}

func (e *ConnectorError) Error() string {
	return fmt.Sprintf("connector call %s on %s failed: %v", e.Function, e.Chain, e.Err)
}

func (e *ConnectorError) Unwrap() error { return e.Err }

// ProofGenerationError represents a failure inside one of the proof generators
type ProofGenerationError struct {
	Chain string
	Layer string
	Err   error
}

func (e *ProofGenerationError) Error() string {
	return fmt.Sprintf("%s proof generation for %s failed: %v", e.Layer, e.Chain, e.Err)
}

func (e *ProofGenerationError) Unwrap() error { return e.Err }

// ProofVerificationError represents a generated proof that did not verify
type ProofVerificationError struct {
	Chain string
	Layer string
	Err   error
}

func (e *ProofVerificationError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s proof for %s did not verify", e.Layer, e.Chain)
	}
	return fmt.Sprintf("%s proof for %s did not verify: %v", e.Layer, e.Chain, e.Err)
}

func (e *ProofVerificationError) Unwrap() error {
	if e.Err == nil {
		return ErrVerificationFailed
	}
	return e.Err
}

// RollbackError represents a compensating call that failed
type RollbackError struct {
	Chain string
	Err   error
}

func (e *RollbackError) Error() string {
	return fmt.Sprintf("rollback on %s failed: %v", e.Chain, e.Err)
}

func (e *RollbackError) Unwrap() error { return e.Err }
