package arbitration

import (
	"fmt"
	"math/big"
)

// DeclareProviderError lets the provider abandon an agreement in Execution.
// The provider gets the fee stake back and the consumer the service price.
// When the provider has already made partial-refund offers the offered value
// stays in custody.
func (e *Engine) DeclareProviderError(id uint64, caller [20]byte) error {
	a, err := e.loadAgreement(id)
	if err != nil {
		return err
	}
	if caller != a.Provider {
		return fmt.Errorf("%w: only the provider may declare an error", ErrUnauthorized)
	}
	if a.Status != StatusExecution {
		return fmt.Errorf("%w: cannot declare provider error in status %s", ErrInvalidPhase, a.Status)
	}
	consumerShare := cloneBigInt(a.ServicePrice)
	if a.NegotiationAccumulator.Sign() == 0 {
		consumerShare.Add(consumerShare, a.DisputeFeeStake)
	}
	prev := a.Status
	a.Status = StatusConcluded
	a.Settled = true
	return e.commit(a, prev, nil, []payout{
		{to: a.Provider, role: RoleProvider, amount: cloneBigInt(a.ProviderFeeDeposit)},
		{to: a.Consumer, role: RoleConsumer, amount: consumerShare},
	})
}

// RaiseDispute opens a dispute. The consumer stakes one fee unit and must
// act strictly between the end of delivery and the dispute deadline.
func (e *Engine) RaiseDispute(id uint64, caller [20]byte, evidence string, value *big.Int) error {
	a, err := e.loadAgreement(id)
	if err != nil {
		return err
	}
	if caller != a.Consumer {
		return fmt.Errorf("%w: only the consumer may raise a dispute", ErrUnauthorized)
	}
	switch a.Status {
	case StatusDispute:
		return fmt.Errorf("%w: dispute already raised", ErrAlreadySet)
	case StatusConcluded:
		return fmt.Errorf("%w: agreement concluded", ErrInvalidPhase)
	case StatusBinding, StatusExecution:
	}
	elapsed := e.elapsed(a)
	if !a.Deadlines().DisputeOpen(elapsed) {
		return fmt.Errorf("%w: dispute window is (%d, %d), elapsed %d", ErrOutsideWindow, a.Deadlines().Delivery, a.Deadlines().DisputeClose, elapsed)
	}
	if value == nil || value.Cmp(a.FeeUnit) != 0 {
		return fmt.Errorf("%w: dispute stake must equal exactly one fee unit", ErrInvalidAmount)
	}
	prev := a.Status
	a.DisputeFeeStake = cloneBigInt(value)
	a.Status = StatusDispute
	return e.commit(a, prev, &deposit{from: caller, amount: a.DisputeFeeStake}, nil,
		NewDisputeRaisedEvent(a),
		NewEvidenceSubmittedEvent(a, caller, evidence),
	)
}

// SubmitEvidence records a reference to evidence from either party while the
// dispute is open. It does not change the agreement.
func (e *Engine) SubmitEvidence(id uint64, caller [20]byte, evidence string) error {
	a, err := e.loadAgreement(id)
	if err != nil {
		return err
	}
	if caller != a.Consumer && caller != a.Provider {
		return fmt.Errorf("%w: only the consumer or provider may submit evidence", ErrUnauthorized)
	}
	if a.Status != StatusDispute {
		return fmt.Errorf("%w: evidence only accepted during a dispute", ErrInvalidPhase)
	}
	if !a.Deadlines().EvidenceOpen(e.elapsed(a)) {
		return fmt.Errorf("%w: evidence deadline passed", ErrOutsideWindow)
	}
	e.emit(NewEvidenceSubmittedEvent(a, caller, evidence))
	return nil
}

// RenderDecision records the arbiter's outcome strictly between the evidence
// deadline and the close of the decision window. The winner claims the
// funds afterwards through ReleaseFunds or RefundFunds.
func (e *Engine) RenderDecision(id uint64, caller [20]byte, outcome Decision) error {
	a, err := e.loadAgreement(id)
	if err != nil {
		return err
	}
	if caller != a.Arbiter {
		return fmt.Errorf("%w: only the arbiter may render a decision", ErrUnauthorized)
	}
	if a.Decision != DecisionUnset {
		return fmt.Errorf("%w: decision already rendered", ErrAlreadySet)
	}
	if a.Status != StatusDispute {
		return fmt.Errorf("%w: no dispute to decide", ErrInvalidPhase)
	}
	elapsed := e.elapsed(a)
	if !a.Deadlines().DecisionOpen(elapsed) {
		return fmt.Errorf("%w: decision window is (%d, %d), elapsed %d", ErrOutsideWindow, a.Deadlines().EvidenceClose, a.Deadlines().DecisionClose, elapsed)
	}
	switch outcome {
	case DecisionConsumerWins, DecisionProviderWins:
	case DecisionUnset:
		return fmt.Errorf("%w: outcome must name a winner", ErrInvalidArgument)
	default:
		return fmt.Errorf("%w: unknown outcome %d", ErrInvalidArgument, outcome)
	}
	prev := a.Status
	a.Decision = outcome
	a.Status = StatusConcluded
	return e.commit(a, prev, nil, nil, NewDecisionRenderedEvent(a))
}

// ReleaseFunds pays the provider the service price plus its fee stake. Without
// a dispute this is available once the dispute deadline has passed; after a
// dispute it requires a provider-wins decision and the decision window to
// have closed.
func (e *Engine) ReleaseFunds(id uint64, caller [20]byte) error {
	a, err := e.loadAgreement(id)
	if err != nil {
		return err
	}
	if caller != a.Provider {
		return fmt.Errorf("%w: only the provider may release funds", ErrUnauthorized)
	}
	if a.Settled {
		return fmt.Errorf("%w: agreement already settled", ErrInvalidPhase)
	}
	elapsed := e.elapsed(a)
	dl := a.Deadlines()
	if !dl.ReleaseOpen(elapsed) {
		return fmt.Errorf("%w: funds locked until %d, elapsed %d", ErrOutsideWindow, dl.DisputeClose, elapsed)
	}
	if a.Status == StatusDispute || a.Decision != DecisionUnset {
		if !dl.DecisionClosed(elapsed) {
			return fmt.Errorf("%w: disputed funds locked until %d, elapsed %d", ErrOutsideWindow, dl.DecisionClose, elapsed)
		}
		if a.Decision != DecisionProviderWins {
			return fmt.Errorf("%w: decision is %s", ErrInvalidPhase, a.Decision)
		}
	}
	prev := a.Status
	a.Status = StatusConcluded
	a.Settled = true
	amount := new(big.Int).Add(a.ServicePrice, a.ProviderFeeDeposit)
	return e.commit(a, prev, nil, []payout{{to: a.Provider, role: RoleProvider, amount: amount}})
}

// RefundFunds returns the service price to the consumer. Refunds are never
// available during the first procedure unit after creation. After a
// consumer-wins decision the consumer also recovers the dispute stake once the
// decision window has closed.
func (e *Engine) RefundFunds(id uint64, caller [20]byte) error {
	a, err := e.loadAgreement(id)
	if err != nil {
		return err
	}
	if caller != a.Consumer {
		return fmt.Errorf("%w: only the consumer may request a refund", ErrUnauthorized)
	}
	if a.Settled {
		return fmt.Errorf("%w: agreement already settled", ErrInvalidPhase)
	}
	elapsed := e.elapsed(a)
	if elapsed <= a.ProcedureUnit {
		return ErrEarlyRefund
	}
	var amount *big.Int
	switch a.Decision {
	case DecisionConsumerWins:
		if !a.Deadlines().DecisionClosed(elapsed) {
			return fmt.Errorf("%w: disputed funds locked until %d, elapsed %d", ErrOutsideWindow, a.Deadlines().DecisionClose, elapsed)
		}
		amount = new(big.Int).Add(a.ServicePrice, a.DisputeFeeStake)
	case DecisionProviderWins:
		return fmt.Errorf("%w: decision is %s", ErrInvalidPhase, a.Decision)
	case DecisionUnset:
		if a.ProviderFeeDeposit.Cmp(a.FeeUnit) != 0 && a.DisputeFeeStake.Cmp(a.FeeUnit) != 0 {
			return fmt.Errorf("%w: no fee stake recorded, nothing refundable", ErrInvalidPhase)
		}
		amount = cloneBigInt(a.ServicePrice)
	}
	prev := a.Status
	a.Status = StatusConcluded
	a.Settled = true
	return e.commit(a, prev, nil, []payout{{to: a.Consumer, role: RoleConsumer, amount: amount}})
}
