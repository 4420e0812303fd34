package custody

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"vaultBridge/internal/retry"
)

const erc20ABIJSON = `[
  {"inputs": [{"internalType": "address", "name": "account", "type": "address"}], "name": "balanceOf", "outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}], "stateMutability": "view", "type": "function"},
  {"inputs": [{"internalType": "address", "name": "to", "type": "address"}, {"internalType": "uint256", "name": "amount", "type": "uint256"}], "name": "transfer", "outputs": [{"internalType": "bool", "name": "", "type": "bool"}], "stateMutability": "nonpayable", "type": "function"}
]`

var (
	erc20ABI     abi.ABI
	erc20ABIOnce sync.Once
	erc20ABIErr  error
)

func getERC20ABI() (abi.ABI, error) {
	erc20ABIOnce.Do(func() {
		erc20ABI, erc20ABIErr = abi.JSON(strings.NewReader(erc20ABIJSON))
	})
	return erc20ABI, erc20ABIErr
}

// ContractCaller performs read-only contract calls.
type ContractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Sender executes a prepared transfer on behalf of a router binding.
type Sender interface {
	Send(ctx context.Context, transfer Transfer) error
}

// ERC20Config tunes chain reads.
type ERC20Config struct {
	MaxRetries   int
	RetryBackoff time.Duration
}

// ERC20 reads router balances from token contracts and hands transfers to a
// Sender. Sent amounts are held back from Available until the chain reflects
// them; Restore carries that holdback across restarts.
type ERC20 struct {
	cfg    ERC20Config
	caller ContractCaller
	sender Sender
	logger *zap.Logger

	mu   sync.Mutex
	base map[holding]*big.Int
	sent map[holding]*big.Int
}

func NewERC20(cfg ERC20Config, caller ContractCaller, sender Sender, logger *zap.Logger) *ERC20 {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ERC20{
		cfg:    cfg,
		caller: caller,
		sender: sender,
		logger: logger,
		base:   make(map[holding]*big.Int),
		sent:   make(map[holding]*big.Int),
	}
}

func (e *ERC20) Available(ctx context.Context, holder, token common.Address) (*big.Int, error) {
	var bal *big.Int
	err := retry.Do(ctx, e.cfg.MaxRetries, e.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		bal, err = balanceOf(ctx, e.caller, token, holder)
		if err != nil {
			e.logger.Warn("balanceOf failed", zap.Error(err), zap.String("token", token.Hex()), zap.String("holder", holder.Hex()))
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	key := holding{holder: holder, token: token}
	sent, ok := e.sent[key]
	if !ok {
		return bal, nil
	}
	// a drop below the pre-send balance means sends have landed on chain
	outstanding := new(big.Int).Set(sent)
	if base := e.base[key]; base != nil {
		if drop := new(big.Int).Sub(base, bal); drop.Sign() > 0 {
			outstanding.Sub(outstanding, drop)
		}
	}
	if outstanding.Sign() <= 0 {
		delete(e.sent, key)
		delete(e.base, key)
		return bal, nil
	}
	avail := new(big.Int).Sub(bal, outstanding)
	if avail.Sign() < 0 {
		return new(big.Int), nil
	}
	return avail, nil
}

func (e *ERC20) Transfer(ctx context.Context, holder, token, to common.Address, amount *big.Int) error {
	if e.sender == nil {
		return fmt.Errorf("transfer sender is nil")
	}
	parsed, err := getERC20ABI()
	if err != nil {
		return err
	}
	data, err := parsed.Pack("transfer", to, amount)
	if err != nil {
		return fmt.Errorf("pack transfer: %w", err)
	}

	base, err := balanceOf(ctx, e.caller, token, holder)
	if err != nil {
		return fmt.Errorf("balance before transfer: %w", err)
	}

	transfer := Transfer{
		Holder:   holder,
		Token:    token,
		To:       to,
		Amount:   new(big.Int).Set(amount),
		Calldata: data,
		QueuedAt: time.Now().UTC().Format(time.RFC3339Nano),

		BalanceBefore: new(big.Int).Set(base),
	}
	if err := e.sender.Send(ctx, transfer); err != nil {
		return fmt.Errorf("send transfer: %w", err)
	}

	e.mu.Lock()
	key := holding{holder: holder, token: token}
	if e.sent[key] == nil {
		e.sent[key] = new(big.Int)
		e.base[key] = base
	}
	e.sent[key] = new(big.Int).Add(e.sent[key], amount)
	e.mu.Unlock()
	return nil
}

// Restore seeds the holdback from transfers queued by an earlier process
// and not yet consumed by the signer. The base of each holding is the
// balance before its earliest transfer; without one, nothing is released
// until the signer drops the lines.
func (e *ERC20) Restore(transfers []Transfer) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, t := range transfers {
		if t.Amount == nil || t.Amount.Sign() <= 0 {
			continue
		}
		key := holding{holder: t.Holder, token: t.Token}
		if e.sent[key] == nil {
			e.sent[key] = new(big.Int)
			if t.BalanceBefore != nil {
				e.base[key] = new(big.Int).Set(t.BalanceBefore)
			}
		}
		e.sent[key] = new(big.Int).Add(e.sent[key], t.Amount)
	}
	if len(transfers) > 0 {
		e.logger.Info("custody holdback restored", zap.Int("transfers", len(transfers)), zap.Int("holdings", len(e.sent)))
	}
}

func balanceOf(ctx context.Context, caller ContractCaller, token common.Address, owner common.Address) (*big.Int, error) {
	if caller == nil {
		return nil, fmt.Errorf("chain client is nil")
	}
	parsed, err := getERC20ABI()
	if err != nil {
		return nil, err
	}

	data, err := parsed.Pack("balanceOf", owner)
	if err != nil {
		return nil, fmt.Errorf("pack balanceOf: %w", err)
	}

	msg := ethereum.CallMsg{To: &token, Data: data}
	resp, err := caller.CallContract(ctx, msg, nil)
	if err != nil {
		return nil, fmt.Errorf("call balanceOf: %w", err)
	}

	values, err := parsed.Unpack("balanceOf", resp)
	if err != nil {
		return nil, fmt.Errorf("unpack balanceOf: %w", err)
	}
	if len(values) != 1 {
		return nil, fmt.Errorf("balanceOf return size %d", len(values))
	}
	bal, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("balanceOf unexpected type %T", values[0])
	}
	return bal, nil
}
