package sale

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Stage errors.
var (
	ErrOutOfSale     = errors.New("sale engine: tick outside sale schedule")
	ErrSaleCancelled = errors.New("sale engine: sale cancelled")
)

// Contribution and call errors.
var (
	ErrInvalidAmount          = errors.New("sale engine: amount must be positive")
	ErrContributionTooSmall   = errors.New("sale engine: contribution below minimum")
	ErrTooManyContributions   = errors.New("sale engine: contribution count ceiling reached")
	ErrAmountOverflow         = errors.New("sale engine: amount overflow")
	ErrStaleTick              = errors.New("sale engine: tick older than last observed tick")
	ErrUnauthorized           = errors.New("sale engine: caller not authorised")
	ErrUnknownParticipant     = errors.New("sale engine: participant not found")
	ErrInvalidStage           = errors.New("sale engine: stage index out of range")
	ErrInvalidSchedule        = errors.New("sale engine: invalid stage schedule")
	ErrInvalidSettings        = errors.New("sale engine: invalid settings")
	ErrCollaboratorMissing    = errors.New("sale engine: collaborator not configured")
	ErrUnsupportedDecision    = errors.New("sale engine: unsupported decision")
	ErrNoPendingContributions = errors.New("sale engine: no pending contributions")
	ErrNotWhitelisted         = errors.New("sale engine: participant not whitelisted")
)

// Decision errors.
var (
	ErrAlreadyResolved         = errors.New("sale engine: decision already resolved")
	ErrInsufficientTokenReturn = errors.New("sale engine: participant cannot return awarded tokens")
	ErrTokenLedgerFailure      = errors.New("sale engine: token ledger failure")
)

// Withdrawal errors.
var (
	ErrInsufficientAcceptedBalance = errors.New("sale engine: insufficient accepted balance")
	ErrFundTransferFailure         = errors.New("sale engine: fund transfer failure")
	ErrNothingOwed                 = errors.New("sale engine: no refund owed")
)

// Fatal errors. These indicate a bug in the engine, never bad input.
var (
	ErrNegativeBalance    = errors.New("sale engine: negative balance")
	ErrInvariantViolation = errors.New("sale engine: invariant violation")
	ErrEngineHalted       = errors.New("sale engine: halted after invariant violation")
)

// FatalError reports an accounting invariant violation. Participant is the
// zero address when the global totals are affected.
type FatalError struct {
	Participant common.Address
	Check       string
	Err         error
}

func (e *FatalError) Error() string {
	if e.Participant == (common.Address{}) {
		return fmt.Sprintf("%v: %s", e.Err, e.Check)
	}
	return fmt.Sprintf("%v: %s (participant %s)", e.Err, e.Check, e.Participant.Hex())
}

func (e *FatalError) Unwrap() error { return e.Err }

// ErrorClass groups engine errors the way callers are expected to react.
type ErrorClass uint8

const (
	ClassNone ErrorClass = iota
	ClassInput
	ClassStage
	ClassDecision
	ClassWithdrawal
	ClassFatal
)

func (c ErrorClass) String() string {
	switch c {
	case ClassInput:
		return "input"
	case ClassStage:
		return "stage"
	case ClassDecision:
		return "decision"
	case ClassWithdrawal:
		return "withdrawal"
	case ClassFatal:
		return "fatal"
	default:
		return "none"
	}
}

// Classify maps err onto its error class.
func Classify(err error) ErrorClass {
	var fatal *FatalError
	switch {
	case err == nil:
		return ClassNone
	case errors.As(err, &fatal), errors.Is(err, ErrNegativeBalance),
		errors.Is(err, ErrInvariantViolation), errors.Is(err, ErrEngineHalted):
		return ClassFatal
	case errors.Is(err, ErrOutOfSale), errors.Is(err, ErrSaleCancelled):
		return ClassStage
	case errors.Is(err, ErrAlreadyResolved), errors.Is(err, ErrInsufficientTokenReturn),
		errors.Is(err, ErrTokenLedgerFailure), errors.Is(err, ErrNoPendingContributions),
		errors.Is(err, ErrNotWhitelisted):
		return ClassDecision
	case errors.Is(err, ErrInsufficientAcceptedBalance), errors.Is(err, ErrFundTransferFailure),
		errors.Is(err, ErrNothingOwed):
		return ClassWithdrawal
	default:
		return ClassInput
	}
}

// collaboratorError keeps both the engine sentinel and the collaborator's own
// error matchable through errors.Is.
type collaboratorError struct {
	kind  error
	cause error
}

func (e *collaboratorError) Error() string { return fmt.Sprintf("%v: %v", e.kind, e.cause) }

func (e *collaboratorError) Unwrap() []error { return []error{e.kind, e.cause} }

func wrapCollaborator(kind, cause error) error {
	return &collaboratorError{kind: kind, cause: cause}
}
