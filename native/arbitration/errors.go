package arbitration

import (
	"errors"
	"fmt"
)

// Precondition failures. Every operation checks these before any value moves,
// so a returned precondition error means nothing changed.
var (
	ErrUnauthorized    = errors.New("arbitration: unauthorized caller")
	ErrInvalidPhase    = errors.New("arbitration: operation invalid in current status")
	ErrOutsideWindow   = errors.New("arbitration: outside deadline window")
	ErrInvalidAmount   = errors.New("arbitration: invalid amount")
	ErrAlreadySet      = errors.New("arbitration: already set")
	ErrNotFound        = errors.New("arbitration: agreement not found")
	ErrInvalidArgument = errors.New("arbitration: invalid argument")

	// ErrEarlyRefund is the refund grace-window failure; it is a timing error.
	ErrEarlyRefund = fmt.Errorf("%w: refund requested too early", ErrOutsideWindow)
)

// Failures of the value substrate, distinguishable from precondition errors.
var (
	ErrTransferFailed = errors.New("arbitration: value transfer failed")
	ErrAccounting     = errors.New("arbitration: payout exceeds custody")
	// ErrRollback means a failed operation could not fully undo its value
	// movements; custody no longer matches the stored records.
	ErrRollback       = errors.New("arbitration: rollback incomplete")
	errNilState       = errors.New("arbitration engine: state not configured")
	errNilLedger      = errors.New("arbitration engine: ledger not configured")
)

// Kind is the failure category reported to callers.
type Kind string

const (
	KindNone          Kind = ""
	KindAuthorization Kind = "authorization"
	KindPhase         Kind = "phase"
	KindTiming        Kind = "timing"
	KindAmount        Kind = "amount"
	KindAlreadySet    Kind = "already-set"
	KindNotFound      Kind = "not-found"
	KindArgument      Kind = "invalid-argument"
	KindTransfer      Kind = "transfer"
	KindInternal      Kind = "internal"
)

// Classify maps an error returned by the engine to its category.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrRollback):
		return KindInternal
	case errors.Is(err, ErrUnauthorized):
		return KindAuthorization
	case errors.Is(err, ErrAlreadySet):
		return KindAlreadySet
	case errors.Is(err, ErrInvalidPhase):
		return KindPhase
	case errors.Is(err, ErrOutsideWindow):
		return KindTiming
	case errors.Is(err, ErrInvalidAmount):
		return KindAmount
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrInvalidArgument):
		return KindArgument
	case errors.Is(err, ErrTransferFailed):
		return KindTransfer
	default:
		return KindInternal
	}
}

// IsPrecondition reports whether err is one of the caller-facing precondition
// failures (as opposed to substrate or internal failures).
func IsPrecondition(err error) bool {
	switch Classify(err) {
	case KindAuthorization, KindPhase, KindTiming, KindAmount, KindAlreadySet, KindNotFound, KindArgument:
		return true
	default:
		return false
	}
}
