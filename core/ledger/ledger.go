package ledger

import (
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

var (
	ErrInsufficientBalance = errors.New("ledger: insufficient balance")
	ErrAccountFrozen       = errors.New("ledger: account frozen")
	ErrInvalidAmount       = errors.New("ledger: amount must not be negative")
)

type balanceStore interface {
	Balance(addr [20]byte) (*big.Int, error)
	SetBalance(addr [20]byte, amount *big.Int) error
}

// VaultAddress is the custody account holding every deposited value. It is
// derived from a fixed label so it cannot collide with a participant key.
func VaultAddress() [20]byte {
	var addr [20]byte
	copy(addr[:], ethcrypto.Keccak256([]byte("tripartite/arbitration/vault"))[12:])
	return addr
}

// Ledger is the value substrate behind the registry: participant balances,
// a single custody vault and a clock. Every movement is atomic: either both
// balances change or neither does.
type Ledger struct {
	mu     sync.Mutex
	state  balanceStore
	vault  [20]byte
	frozen map[[20]byte]struct{}
	nowFn  func() time.Time
}

// New builds a ledger over the supplied balance store.
func New(state balanceStore) *Ledger {
	return &Ledger{
		state:  state,
		vault:  VaultAddress(),
		frozen: make(map[[20]byte]struct{}),
		nowFn:  time.Now,
	}
}

// SetClock overrides the time source.
func (l *Ledger) SetClock(now func() time.Time) {
	if now == nil {
		now = time.Now
	}
	l.mu.Lock()
	l.nowFn = now
	l.mu.Unlock()
}

// Now returns the ledger time in Unix seconds.
func (l *Ledger) Now() int64 {
	l.mu.Lock()
	now := l.nowFn
	l.mu.Unlock()
	return now().Unix()
}

// Vault returns the custody account address.
func (l *Ledger) Vault() [20]byte { return l.vault }

// Freeze makes every movement into or out of addr fail until Unfreeze.
func (l *Ledger) Freeze(addr [20]byte) {
	l.mu.Lock()
	l.frozen[addr] = struct{}{}
	l.mu.Unlock()
}

// Unfreeze lifts a freeze placed by Freeze.
func (l *Ledger) Unfreeze(addr [20]byte) {
	l.mu.Lock()
	delete(l.frozen, addr)
	l.mu.Unlock()
}

// Balance returns the balance held by addr.
func (l *Ledger) Balance(addr [20]byte) (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state.Balance(addr)
}

// Custody returns the total value currently held by the vault.
func (l *Ledger) Custody() (*big.Int, error) {
	return l.Balance(l.vault)
}

// Credit mints amount into addr. It is the funding path for participants.
func (l *Ledger) Credit(addr [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	current, err := l.state.Balance(addr)
	if err != nil {
		return err
	}
	return l.state.SetBalance(addr, new(big.Int).Add(current, amount))
}

// Deposit moves amount from a participant into custody.
func (l *Ledger) Deposit(from [20]byte, amount *big.Int) error {
	return l.move(from, l.vault, amount)
}

// Transfer pays amount out of custody to the recipient.
func (l *Ledger) Transfer(to [20]byte, amount *big.Int) error {
	return l.move(l.vault, to, amount)
}

func (l *Ledger) move(from, to [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	if amount.Sign() == 0 {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.frozen[from]; ok {
		return fmt.Errorf("%w: %x", ErrAccountFrozen, from)
	}
	if _, ok := l.frozen[to]; ok {
		return fmt.Errorf("%w: %x", ErrAccountFrozen, to)
	}
	fromBal, err := l.state.Balance(from)
	if err != nil {
		return err
	}
	if fromBal.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	toBal, err := l.state.Balance(to)
	if err != nil {
		return err
	}
	if err := l.state.SetBalance(from, new(big.Int).Sub(fromBal, amount)); err != nil {
		return err
	}
	if err := l.state.SetBalance(to, new(big.Int).Add(toBal, amount)); err != nil {
		if rollbackErr := l.state.SetBalance(from, fromBal); rollbackErr != nil {
			return fmt.Errorf("ledger: credit failed (%v) and rollback failed: %w", err, rollbackErr)
		}
		return err
	}
	return nil
}
