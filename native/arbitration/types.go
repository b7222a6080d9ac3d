package arbitration

import (
	"fmt"
	"math/big"
)

// Status represents the lifecycle phase of an agreement. Phases only move
// forward: Binding → Execution → Dispute → Concluded, or straight to
// Concluded from Binding or Execution.
type Status uint8

const (
	StatusBinding Status = iota
	StatusExecution
	StatusDispute
	StatusConcluded
)

// Valid reports whether the status value is within the supported range.
func (s Status) Valid() bool {
	switch s {
	case StatusBinding, StatusExecution, StatusDispute, StatusConcluded:
		return true
	default:
		return false
	}
}

func (s Status) String() string {
	switch s {
	case StatusBinding:
		return "binding"
	case StatusExecution:
		return "execution"
	case StatusDispute:
		return "dispute"
	case StatusConcluded:
		return "concluded"
	default:
		return "unknown"
	}
}

// ParseStatus converts the canonical string form back into a Status.
func ParseStatus(raw string) (Status, error) {
	switch raw {
	case "binding":
		return StatusBinding, nil
	case "execution":
		return StatusExecution, nil
	case "dispute":
		return StatusDispute, nil
	case "concluded":
		return StatusConcluded, nil
	default:
		return 0, fmt.Errorf("%w: unknown status %q", ErrInvalidArgument, raw)
	}
}

// Decision is the arbiter's outcome for a disputed agreement.
type Decision uint8

const (
	DecisionUnset Decision = iota
	DecisionConsumerWins
	DecisionProviderWins
)

func (d Decision) Valid() bool {
	switch d {
	case DecisionUnset, DecisionConsumerWins, DecisionProviderWins:
		return true
	default:
		return false
	}
}

func (d Decision) String() string {
	switch d {
	case DecisionUnset:
		return "unset"
	case DecisionConsumerWins:
		return "consumer"
	case DecisionProviderWins:
		return "provider"
	default:
		return "unknown"
	}
}

// ParseDecision accepts "consumer" or "provider" (the only renderable
// outcomes).
func ParseDecision(raw string) (Decision, error) {
	switch raw {
	case "consumer", "consumer-wins":
		return DecisionConsumerWins, nil
	case "provider", "provider-wins":
		return DecisionProviderWins, nil
	default:
		return DecisionUnset, fmt.Errorf("%w: unknown decision %q", ErrInvalidArgument, raw)
	}
}

// Agreement is the escrow record for a single consumer/provider/arbiter
// transaction. DisputeFeeStake is only meaningful once the agreement has
// entered Dispute; NegotiationAccumulator only while it is in Execution.
type Agreement struct {
	ID       uint64
	Consumer [20]byte
	Provider [20]byte
	Arbiter  [20]byte

	Status   Status
	Decision Decision

	ServicePrice           *big.Int
	FeeUnit                *big.Int
	ProviderFeeDeposit     *big.Int
	DisputeFeeStake        *big.Int
	NegotiationAccumulator *big.Int
	ArbiterConfirmed       bool

	ContractDuration int64
	ProcedureUnit    int64
	StartTimestamp   int64

	// Deposited and PaidOut track custody for this agreement alone.
	Deposited *big.Int
	PaidOut   *big.Int
	Settled   bool
}

// Clone returns a deep copy of the agreement so callers can mutate the copy
// without affecting the stored instance.
func (a *Agreement) Clone() *Agreement {
	if a == nil {
		return nil
	}
	clone := *a
	clone.ServicePrice = cloneBigInt(a.ServicePrice)
	clone.FeeUnit = cloneBigInt(a.FeeUnit)
	clone.ProviderFeeDeposit = cloneBigInt(a.ProviderFeeDeposit)
	clone.DisputeFeeStake = cloneBigInt(a.DisputeFeeStake)
	clone.NegotiationAccumulator = cloneBigInt(a.NegotiationAccumulator)
	clone.Deposited = cloneBigInt(a.Deposited)
	clone.PaidOut = cloneBigInt(a.PaidOut)
	return &clone
}

// Residual returns the value still held in custody for the agreement.
func (a *Agreement) Residual() *big.Int {
	if a == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Sub(cloneBigInt(a.Deposited), cloneBigInt(a.PaidOut))
}

// Deadlines derives the agreement's deadline offsets.
func (a *Agreement) Deadlines() Deadlines {
	if a == nil {
		return Deadlines{}
	}
	return ComputeDeadlines(a.ContractDuration, a.ProcedureUnit)
}

// SanitizeAgreement validates the supplied record and returns a normalised
// clone with non-nil amounts. The input is not mutated.
func SanitizeAgreement(a *Agreement) (*Agreement, error) {
	if a == nil {
		return nil, fmt.Errorf("arbitration: nil agreement")
	}
	clone := a.Clone()
	if !clone.Status.Valid() {
		return nil, fmt.Errorf("arbitration: invalid status %d", clone.Status)
	}
	if !clone.Decision.Valid() {
		return nil, fmt.Errorf("arbitration: invalid decision %d", clone.Decision)
	}
	for _, v := range []*big.Int{clone.ServicePrice, clone.ProviderFeeDeposit, clone.DisputeFeeStake, clone.NegotiationAccumulator, clone.Deposited, clone.PaidOut} {
		if v.Sign() < 0 {
			return nil, fmt.Errorf("arbitration: negative amount in agreement %d", clone.ID)
		}
	}
	if clone.FeeUnit.Sign() <= 0 {
		return nil, fmt.Errorf("arbitration: agreement %d has no fee unit", clone.ID)
	}
	if clone.PaidOut.Cmp(clone.Deposited) > 0 {
		return nil, fmt.Errorf("%w: agreement %d paid out more than deposited", ErrAccounting, clone.ID)
	}
	if clone.ContractDuration <= 0 || clone.ProcedureUnit <= 0 {
		return nil, fmt.Errorf("arbitration: non-positive durations in agreement %d", clone.ID)
	}
	if !DeadlinesFit(clone.ContractDuration, clone.ProcedureUnit) {
		return nil, fmt.Errorf("arbitration: deadlines overflow in agreement %d", clone.ID)
	}
	return clone, nil
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
