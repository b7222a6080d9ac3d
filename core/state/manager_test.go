package state

import (
	"math/big"
	"testing"
)

func TestManagerWithoutDatabase(t *testing.T) {
	var manager *Manager
	if _, err := manager.Balance([20]byte{0x01}); err == nil {
		t.Fatalf("expected error from nil manager")
	}
	if err := NewManager(nil).SetBalance([20]byte{0x01}, big.NewInt(1)); err == nil {
		t.Fatalf("expected error without database")
	}
}
