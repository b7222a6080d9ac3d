package state

import (
	"encoding/binary"
	"fmt"
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"tripartite/native/arbitration"
)

func agreementStorageKey(id uint64) []byte {
	buf := make([]byte, len(agreementPrefix)+8)
	copy(buf, agreementPrefix)
	binary.BigEndian.PutUint64(buf[len(agreementPrefix):], id)
	return ethcrypto.Keccak256(buf)
}

// storedAgreement is the RLP layout of an agreement. Timestamps and durations
// are stored as unsigned values because RLP has no signed integers.
type storedAgreement struct {
	ID                     uint64
	Consumer               [20]byte
	Provider               [20]byte
	Arbiter                [20]byte
	Status                 uint8
	Decision               uint8
	ServicePrice           *big.Int
	FeeUnit                *big.Int
	ProviderFeeDeposit     *big.Int
	DisputeFeeStake        *big.Int
	NegotiationAccumulator *big.Int
	ArbiterConfirmed       bool
	ContractDuration       uint64
	ProcedureUnit          uint64
	StartTimestamp         uint64
	Deposited              *big.Int
	PaidOut                *big.Int
	Settled                bool
}

func newStoredAgreement(a *arbitration.Agreement) (*storedAgreement, error) {
	if a.StartTimestamp < 0 {
		return nil, fmt.Errorf("state: agreement %d has negative start timestamp", a.ID)
	}
	return &storedAgreement{
		ID:                     a.ID,
		Consumer:               a.Consumer,
		Provider:               a.Provider,
		Arbiter:                a.Arbiter,
		Status:                 uint8(a.Status),
		Decision:               uint8(a.Decision),
		ServicePrice:           a.ServicePrice,
		FeeUnit:                a.FeeUnit,
		ProviderFeeDeposit:     a.ProviderFeeDeposit,
		DisputeFeeStake:        a.DisputeFeeStake,
		NegotiationAccumulator: a.NegotiationAccumulator,
		ArbiterConfirmed:       a.ArbiterConfirmed,
		ContractDuration:       uint64(a.ContractDuration),
		ProcedureUnit:          uint64(a.ProcedureUnit),
		StartTimestamp:         uint64(a.StartTimestamp),
		Deposited:              a.Deposited,
		PaidOut:                a.PaidOut,
		Settled:                a.Settled,
	}, nil
}

func (s *storedAgreement) toAgreement() (*arbitration.Agreement, error) {
	if s == nil {
		return nil, fmt.Errorf("state: nil agreement record")
	}
	out := &arbitration.Agreement{
		ID:                     s.ID,
		Consumer:               s.Consumer,
		Provider:               s.Provider,
		Arbiter:                s.Arbiter,
		Status:                 arbitration.Status(s.Status),
		Decision:               arbitration.Decision(s.Decision),
		ServicePrice:           s.ServicePrice,
		FeeUnit:                s.FeeUnit,
		ProviderFeeDeposit:     s.ProviderFeeDeposit,
		DisputeFeeStake:        s.DisputeFeeStake,
		NegotiationAccumulator: s.NegotiationAccumulator,
		ArbiterConfirmed:       s.ArbiterConfirmed,
		ContractDuration:       int64(s.ContractDuration),
		ProcedureUnit:          int64(s.ProcedureUnit),
		StartTimestamp:         int64(s.StartTimestamp),
		Deposited:              s.Deposited,
		PaidOut:                s.PaidOut,
		Settled:                s.Settled,
	}
	return arbitration.SanitizeAgreement(out)
}

// AgreementCount returns the number of agreements stored, which is also the
// identifier the next agreement receives.
func (m *Manager) AgreementCount() (uint64, error) {
	count, err := m.loadBigInt(agreementCountKey)
	if err != nil {
		return 0, err
	}
	if !count.IsUint64() {
		return 0, fmt.Errorf("state: agreement counter overflow")
	}
	return count.Uint64(), nil
}

// AgreementPut stores the agreement. A record whose identifier equals the
// current count is a new agreement and advances the counter; identifiers
// beyond the count are rejected so they are never skipped.
func (m *Manager) AgreementPut(a *arbitration.Agreement) error {
	sanitized, err := arbitration.SanitizeAgreement(a)
	if err != nil {
		return err
	}
	count, err := m.AgreementCount()
	if err != nil {
		return err
	}
	if sanitized.ID > count {
		return fmt.Errorf("state: agreement id %d skips ahead of counter %d", sanitized.ID, count)
	}
	record, err := newStoredAgreement(sanitized)
	if err != nil {
		return err
	}
	encoded, err := rlp.EncodeToBytes(record)
	if err != nil {
		return err
	}
	if err := m.db.Put(agreementStorageKey(sanitized.ID), encoded); err != nil {
		return err
	}
	if sanitized.ID == count {
		return m.writeBigInt(agreementCountKey, new(big.Int).SetUint64(count+1))
	}
	return nil
}

// AgreementGet loads the agreement with the given identifier.
func (m *Manager) AgreementGet(id uint64) (*arbitration.Agreement, bool, error) {
	data, ok, err := m.get(agreementStorageKey(id))
	if err != nil || !ok {
		return nil, false, err
	}
	stored := new(storedAgreement)
	if err := rlp.DecodeBytes(data, stored); err != nil {
		return nil, false, fmt.Errorf("state: decode agreement %d: %w", id, err)
	}
	record, err := stored.toAgreement()
	if err != nil {
		return nil, false, err
	}
	return record, true, nil
}
