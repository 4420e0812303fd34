package custody

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

type holding struct {
	holder common.Address
	token  common.Address
}

// Memory is an in-process custody book.
type Memory struct {
	mu        sync.Mutex
	balances  map[holding]*big.Int
	transfers []Transfer
}

func NewMemory() *Memory {
	return &Memory{balances: make(map[holding]*big.Int)}
}

// Fund adds amount of token to holder.
func (m *Memory) Fund(holder, token common.Address, amount *big.Int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := holding{holder: holder, token: token}
	current := m.balances[key]
	if current == nil {
		current = new(big.Int)
	}
	m.balances[key] = new(big.Int).Add(current, amount)
}

func (m *Memory) Available(_ context.Context, holder, token common.Address) (*big.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if bal := m.balances[holding{holder: holder, token: token}]; bal != nil {
		return new(big.Int).Set(bal), nil
	}
	return new(big.Int), nil
}

func (m *Memory) Transfer(_ context.Context, holder, token, to common.Address, amount *big.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := holding{holder: holder, token: token}
	bal := m.balances[key]
	if bal == nil || bal.Cmp(amount) < 0 {
		return fmt.Errorf("holder %s has insufficient %s", holder.Hex(), token.Hex())
	}
	m.balances[key] = new(big.Int).Sub(bal, amount)

	dest := holding{holder: to, token: token}
	if m.balances[dest] == nil {
		m.balances[dest] = new(big.Int)
	}
	m.balances[dest] = new(big.Int).Add(m.balances[dest], amount)

	m.transfers = append(m.transfers, Transfer{Holder: holder, Token: token, To: to, Amount: new(big.Int).Set(amount)})
	return nil
}

// Transfers returns every transfer executed so far.
func (m *Memory) Transfers() []Transfer {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Transfer(nil), m.transfers...)
}
