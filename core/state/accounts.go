package state

import (
	"fmt"
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

func balanceKey(addr [20]byte) []byte {
	buf := make([]byte, len(balancePrefix)+len(addr))
	copy(buf, balancePrefix)
	copy(buf[len(balancePrefix):], addr[:])
	return ethcrypto.Keccak256(buf)
}

// Balance returns the account balance, zero for unknown accounts.
func (m *Manager) Balance(addr [20]byte) (*big.Int, error) {
	return m.loadBigInt(balanceKey(addr))
}

// SetBalance overwrites the account balance. A zero balance removes the
// account entry.
func (m *Manager) SetBalance(addr [20]byte, amount *big.Int) error {
	if amount != nil && amount.Sign() < 0 {
		return fmt.Errorf("state: negative balance not allowed")
	}
	if amount == nil || amount.Sign() == 0 {
		return m.del(balanceKey(addr))
	}
	return m.writeBigInt(balanceKey(addr), amount)
}
