package arbitration

import (
	"fmt"
	"math/big"
)

// OfferPercentage maps a partial-refund offer to the percentage announced to
// the consumer: one, two or three fee units offer 25, 50 or 75 percent.
func OfferPercentage(value, feeUnit *big.Int) (uint32, bool) {
	multiple, ok := exactMultiple(value, feeUnit)
	if !ok {
		return 0, false
	}
	switch multiple {
	case 1, 2, 3:
		return uint32(multiple) * 25, true
	default:
		return 0, false
	}
}

// SettlementPercentage returns the consumer's share of the service price for
// an accumulated negotiation total. Only two, three or four fee units
// trigger a settlement (25, 50 and 75 percent respectively).
func SettlementPercentage(accumulated, feeUnit *big.Int) (uint32, bool) {
	multiple, ok := exactMultiple(accumulated, feeUnit)
	if !ok {
		return 0, false
	}
	switch multiple {
	case 2:
		return 25, true
	case 3:
		return 50, true
	case 4:
		return 75, true
	default:
		return 0, false
	}
}

// SplitServicePrice divides price so the consumer receives floor(price*pct/100)
// and the provider the remainder. The two shares always sum to price.
func SplitServicePrice(price *big.Int, consumerPct uint32) (consumer, provider *big.Int) {
	total := cloneBigInt(price)
	if consumerPct > 100 {
		consumerPct = 100
	}
	consumer = new(big.Int).Mul(total, big.NewInt(int64(consumerPct)))
	consumer.Quo(consumer, big.NewInt(100))
	provider = new(big.Int).Sub(total, consumer)
	return consumer, provider
}

func exactMultiple(value, unit *big.Int) (int64, bool) {
	if value == nil || unit == nil || unit.Sign() <= 0 || value.Sign() <= 0 {
		return 0, false
	}
	q, r := new(big.Int).QuoRem(value, unit, new(big.Int))
	if r.Sign() != 0 || !q.IsInt64() {
		return 0, false
	}
	return q.Int64(), true
}

// OfferPartialRefund lets the provider put one, two or three fee units towards
// a negotiated settlement while the agreement is in Execution.
func (e *Engine) OfferPartialRefund(id uint64, caller [20]byte, value *big.Int) error {
	a, err := e.loadAgreement(id)
	if err != nil {
		return err
	}
	if caller != a.Provider {
		return fmt.Errorf("%w: only the provider may offer a partial refund", ErrUnauthorized)
	}
	if a.Status != StatusExecution {
		return fmt.Errorf("%w: cannot offer partial refund in status %s", ErrInvalidPhase, a.Status)
	}
	pct, ok := OfferPercentage(value, a.FeeUnit)
	if !ok {
		return fmt.Errorf("%w: offer must be one, two or three fee units", ErrInvalidAmount)
	}
	amount := cloneBigInt(value)
	a.NegotiationAccumulator = new(big.Int).Add(a.NegotiationAccumulator, amount)
	return e.commit(a, a.Status, &deposit{from: caller, amount: amount}, nil,
		NewPartialRefundOfferedEvent(a, pct))
}

// AcceptPartialSettlement concludes the agreement on the terms accumulated by
// the provider's offers. It reports false without changing anything when the
// accumulated total is not a settling amount yet.
func (e *Engine) AcceptPartialSettlement(id uint64, caller [20]byte) (bool, error) {
	a, err := e.loadAgreement(id)
	if err != nil {
		return false, err
	}
	if caller != a.Consumer {
		return false, fmt.Errorf("%w: only the consumer may accept a settlement", ErrUnauthorized)
	}
	if a.Status != StatusExecution {
		return false, fmt.Errorf("%w: cannot settle in status %s", ErrInvalidPhase, a.Status)
	}
	pct, ok := SettlementPercentage(a.NegotiationAccumulator, a.FeeUnit)
	if !ok {
		return false, nil
	}
	consumerShare, providerShare := SplitServicePrice(a.ServicePrice, pct)
	providerShare.Add(providerShare, a.ProviderFeeDeposit)
	prev := a.Status
	a.Status = StatusConcluded
	a.Settled = true
	out := []payout{
		{to: a.Consumer, role: RoleConsumer, amount: consumerShare},
		{to: a.Provider, role: RoleProvider, amount: providerShare},
	}
	if err := e.commit(a, prev, nil, out); err != nil {
		return false, err
	}
	return true, nil
}
