package arbitration

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"tripartite/core/events"
	"tripartite/core/types"
)

// DefaultProcedureUnit is the five-minute building block of every
// post-delivery deadline, in seconds.
const DefaultProcedureUnit int64 = 5 * 60

// DefaultFeeUnit returns one whole token in 18-decimal base units.
func DefaultFeeUnit() *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
}

// Params are the fixed denominations applied to newly created agreements.
type Params struct {
	FeeUnit       *big.Int
	ProcedureUnit int64
}

// DefaultParams returns the canonical fee and procedure units.
func DefaultParams() Params {
	return Params{FeeUnit: DefaultFeeUnit(), ProcedureUnit: DefaultProcedureUnit}
}

// Validate ensures both units are strictly positive.
func (p Params) Validate() error {
	if p.FeeUnit == nil || p.FeeUnit.Sign() <= 0 {
		return fmt.Errorf("%w: fee unit must be positive", ErrInvalidArgument)
	}
	if p.ProcedureUnit <= 0 {
		return fmt.Errorf("%w: procedure unit must be positive", ErrInvalidArgument)
	}
	if !DeadlinesFit(0, p.ProcedureUnit) {
		return fmt.Errorf("%w: procedure unit %d overflows the deadline range", ErrInvalidArgument, p.ProcedureUnit)
	}
	return nil
}

type engineState interface {
	AgreementPut(*Agreement) error
	AgreementGet(id uint64) (*Agreement, bool, error)
	AgreementCount() (uint64, error)
}

// engineLedger is the value substrate. Deposit moves value from a participant
// into custody; Transfer pays value out of custody. Both are atomic per call.
type engineLedger interface {
	Deposit(from [20]byte, amount *big.Int) error
	Transfer(to [20]byte, amount *big.Int) error
}

type arbitrationEvent struct {
	evt *types.Event
}

func (e arbitrationEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e arbitrationEvent) Event() *types.Event { return e.evt }

// Engine is the transaction registry. It owns every agreement, enforces the
// phase and deadline rules and moves value through the configured ledger.
// The engine holds no locks; callers serialise operations.
type Engine struct {
	state   engineState
	ledger  engineLedger
	emitter events.Emitter
	params  Params
	nowFn   func() int64
}

// NewEngine creates an engine with default parameters and a no-op emitter.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		params:  DefaultParams(),
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the agreement store used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetLedger configures the value substrate used for deposits and payouts.
func (e *Engine) SetLedger(ledger engineLedger) { e.ledger = ledger }

// SetParams overrides the fee and procedure units applied to agreements
// created from now on. Existing agreements keep the units they were created
// with.
func (e *Engine) SetParams(p Params) error {
	if err := p.Validate(); err != nil {
		return err
	}
	e.params = Params{FeeUnit: cloneBigInt(p.FeeUnit), ProcedureUnit: p.ProcedureUnit}
	return nil
}

// Params returns a copy of the active parameters.
func (e *Engine) Params() Params {
	return Params{FeeUnit: cloneBigInt(e.params.FeeUnit), ProcedureUnit: e.params.ProcedureUnit}
}

// SetNowFunc overrides the time source. Primarily intended for tests to
// provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetEmitter configures the event emitter used by the engine. Passing nil
// resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(arbitrationEvent{evt: event})
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func (e *Engine) elapsed(a *Agreement) int64 {
	return e.now() - a.StartTimestamp
}

func (e *Engine) ready() error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.ledger == nil {
		return errNilLedger
	}
	return nil
}

func (e *Engine) loadAgreement(id uint64) (*Agreement, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	a, ok, err := e.state.AgreementGet(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return a.Clone(), nil
}

type deposit struct {
	from   [20]byte
	amount *big.Int
}

type payout struct {
	to     [20]byte
	role   string
	amount *big.Int
}

// commit applies a mutated agreement: it collects the incoming deposit, pays
// out, persists the record and finally emits events. Any failure undoes the
// value movements already made so the stored record and balances stay as
// they were before the call. A compensating move that itself fails is
// reported as ErrRollback alongside the original cause.
func (e *Engine) commit(a *Agreement, prev Status, in *deposit, out []payout, evts ...*types.Event) error {
	var undo []func() error
	fail := func(cause error) error {
		var rollback []error
		for i := len(undo) - 1; i >= 0; i-- {
			if err := undo[i](); err != nil {
				rollback = append(rollback, err)
			}
		}
		if len(rollback) == 0 {
			return cause
		}
		return errors.Join(cause, fmt.Errorf("%w: agreement %d: %w", ErrRollback, a.ID, errors.Join(rollback...)))
	}

	if in != nil && in.amount.Sign() > 0 {
		if err := e.ledger.Deposit(in.from, in.amount); err != nil {
			return fmt.Errorf("%w: deposit from %s: %v", ErrTransferFailed, FormatAddress(in.from), err)
		}
		from, amount := in.from, in.amount
		undo = append(undo, func() error {
			if err := e.ledger.Transfer(from, amount); err != nil {
				return fmt.Errorf("return deposit to %s: %w", FormatAddress(from), err)
			}
			return nil
		})
		a.Deposited = new(big.Int).Add(a.Deposited, in.amount)
	}

	total := big.NewInt(0)
	for _, p := range out {
		total.Add(total, cloneBigInt(p.amount))
	}
	if new(big.Int).Add(a.PaidOut, total).Cmp(a.Deposited) > 0 {
		return fail(fmt.Errorf("%w: agreement %d", ErrAccounting, a.ID))
	}

	paid := make([]payout, 0, len(out))
	for _, p := range out {
		if p.amount == nil || p.amount.Sign() == 0 {
			continue
		}
		if err := e.ledger.Transfer(p.to, p.amount); err != nil {
			return fail(fmt.Errorf("%w: payout to %s %s: %v", ErrTransferFailed, p.role, FormatAddress(p.to), err))
		}
		to, amount := p.to, p.amount
		undo = append(undo, func() error {
			if err := e.ledger.Deposit(to, amount); err != nil {
				return fmt.Errorf("reclaim payout from %s: %w", FormatAddress(to), err)
			}
			return nil
		})
		paid = append(paid, p)
	}
	a.PaidOut = new(big.Int).Add(a.PaidOut, total)

	if err := e.state.AgreementPut(a); err != nil {
		return fail(err)
	}

	if prev != a.Status {
		e.emit(NewStatusChangedEvent(a.ID, prev, a.Status))
	}
	for _, evt := range evts {
		e.emit(evt)
	}
	for _, p := range paid {
		e.emit(NewPayoutEvent(a.ID, p.to, p.role, p.amount))
	}
	return nil
}

// Create opens a new agreement funded by the consumer with the service price.
// The returned agreement carries the identifier assigned in creation order.
func (e *Engine) Create(consumer, provider, arbiter [20]byte, contractDuration int64, evidence string, value *big.Int) (*Agreement, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	price := cloneBigInt(value)
	if price.Sign() < 0 {
		return nil, fmt.Errorf("%w: negative service price", ErrInvalidAmount)
	}
	if contractDuration <= 0 {
		return nil, fmt.Errorf("%w: contract duration must be positive", ErrInvalidArgument)
	}
	if !DeadlinesFit(contractDuration, e.params.ProcedureUnit) {
		return nil, fmt.Errorf("%w: contract duration %d overflows the deadline range", ErrInvalidArgument, contractDuration)
	}
	if consumer == provider || consumer == arbiter || provider == arbiter {
		return nil, fmt.Errorf("%w: consumer, provider and arbiter must be distinct", ErrInvalidArgument)
	}
	id, err := e.state.AgreementCount()
	if err != nil {
		return nil, err
	}
	a := &Agreement{
		ID:                     id,
		Consumer:               consumer,
		Provider:               provider,
		Arbiter:                arbiter,
		Status:                 StatusBinding,
		Decision:               DecisionUnset,
		ServicePrice:           price,
		FeeUnit:                cloneBigInt(e.params.FeeUnit),
		ProviderFeeDeposit:     big.NewInt(0),
		DisputeFeeStake:        big.NewInt(0),
		NegotiationAccumulator: big.NewInt(0),
		ContractDuration:       contractDuration,
		ProcedureUnit:          e.params.ProcedureUnit,
		StartTimestamp:         e.now(),
		Deposited:              big.NewInt(0),
		PaidOut:                big.NewInt(0),
	}
	if err := e.commit(a, StatusBinding, &deposit{from: consumer, amount: price}, nil,
		NewAgreementCreatedEvent(a),
		NewEvidenceRecordedEvent(id, evidence),
	); err != nil {
		return nil, err
	}
	return a.Clone(), nil
}

// DepositProviderFee records the provider's arbitration-fee stake. Binding
// completes once the arbiter has also confirmed.
func (e *Engine) DepositProviderFee(id uint64, caller [20]byte, value *big.Int) error {
	a, err := e.loadAgreement(id)
	if err != nil {
		return err
	}
	if caller != a.Provider {
		return fmt.Errorf("%w: only the provider may deposit the provider fee", ErrUnauthorized)
	}
	if a.ProviderFeeDeposit.Sign() != 0 {
		return fmt.Errorf("%w: provider fee already deposited", ErrAlreadySet)
	}
	if a.Status != StatusBinding {
		return fmt.Errorf("%w: cannot deposit provider fee in status %s", ErrInvalidPhase, a.Status)
	}
	if value == nil || value.Cmp(a.FeeUnit) != 0 {
		return fmt.Errorf("%w: provider fee must equal exactly one fee unit", ErrInvalidAmount)
	}
	prev := a.Status
	a.ProviderFeeDeposit = cloneBigInt(value)
	if a.ArbiterConfirmed {
		a.Status = StatusExecution
	}
	return e.commit(a, prev, &deposit{from: caller, amount: a.ProviderFeeDeposit}, nil)
}

// ConfirmArbiter records the arbiter's acceptance of the agreement.
func (e *Engine) ConfirmArbiter(id uint64, caller [20]byte) error {
	a, err := e.loadAgreement(id)
	if err != nil {
		return err
	}
	if caller != a.Arbiter {
		return fmt.Errorf("%w: only the arbiter may confirm", ErrUnauthorized)
	}
	if a.ArbiterConfirmed {
		return fmt.Errorf("%w: arbiter already confirmed", ErrAlreadySet)
	}
	if a.Status != StatusBinding {
		return fmt.Errorf("%w: cannot confirm arbiter in status %s", ErrInvalidPhase, a.Status)
	}
	prev := a.Status
	a.ArbiterConfirmed = true
	if a.ProviderFeeDeposit.Cmp(a.FeeUnit) == 0 {
		a.Status = StatusExecution
	}
	return e.commit(a, prev, nil, nil)
}

// Status returns the current lifecycle status of an agreement.
func (e *Engine) Status(id uint64) (Status, error) {
	a, err := e.loadAgreement(id)
	if err != nil {
		return 0, err
	}
	return a.Status, nil
}

// Agreement returns a snapshot of the stored agreement.
func (e *Engine) Agreement(id uint64) (*Agreement, error) {
	return e.loadAgreement(id)
}

// Window reports which part of the timeline the agreement is currently in.
func (e *Engine) Window(id uint64) (Window, error) {
	a, err := e.loadAgreement(id)
	if err != nil {
		return 0, err
	}
	return a.Deadlines().Phase(e.elapsed(a)), nil
}

// Count returns the number of agreements created so far.
func (e *Engine) Count() (uint64, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	return e.state.AgreementCount()
}

// Deadlines returns the deadline offsets of an agreement.
func (e *Engine) Deadlines(id uint64) (Deadlines, error) {
	a, err := e.loadAgreement(id)
	if err != nil {
		return Deadlines{}, err
	}
	return a.Deadlines(), nil
}
