package queue

import (
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"vaultBridge/internal/model"
)

var (
	requestArgs     abi.Arguments
	requestArgsOnce sync.Once
	requestArgsErr  error
)

func requestArguments() (abi.Arguments, error) {
	requestArgsOnce.Do(func() {
		types := []string{"uint64", "address[]", "uint256[]", "address", "address"}
		names := []string{"poolId", "tokens", "amounts", "sender", "recipient"}
		for i, name := range types {
			typ, err := abi.NewType(name, "", nil)
			if err != nil {
				requestArgsErr = fmt.Errorf("abi type %s: %w", name, err)
				return
			}
			requestArgs = append(requestArgs, abi.Argument{Name: names[i], Type: typ})
		}
	})
	return requestArgs, requestArgsErr
}

// EncodeRequest ABI-encodes a request for storage in a queue entry.
func EncodeRequest(kind model.EntryKind, req model.Request) ([]byte, error) {
	if err := validateLegs(kind, req); err != nil {
		return nil, err
	}
	args, err := requestArguments()
	if err != nil {
		return nil, err
	}
	data, err := args.Pack(req.PoolID, req.Tokens, req.Amounts, req.Sender, req.Recipient)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", kind, err)
	}
	return data, nil
}

// DecodeRequest decodes an entry payload according to its kind.
func DecodeRequest(kind model.EntryKind, payload []byte) (model.Request, error) {
	if _, ok := entryKinds[kind]; !ok {
		return model.Request{}, fmt.Errorf("unsupported kind %s", kind)
	}
	args, err := requestArguments()
	if err != nil {
		return model.Request{}, err
	}
	values, err := args.Unpack(payload)
	if err != nil {
		return model.Request{}, fmt.Errorf("unpack %s: %w", kind, err)
	}
	if len(values) != len(args) {
		return model.Request{}, fmt.Errorf("unpack %s: %d values", kind, len(values))
	}

	poolID, ok := values[0].(uint64)
	if !ok {
		return model.Request{}, fmt.Errorf("pool id unexpected type %T", values[0])
	}
	tokens, ok := values[1].([]common.Address)
	if !ok {
		return model.Request{}, fmt.Errorf("tokens unexpected type %T", values[1])
	}
	amounts, ok := values[2].([]*big.Int)
	if !ok {
		return model.Request{}, fmt.Errorf("amounts unexpected type %T", values[2])
	}
	sender, ok := values[3].(common.Address)
	if !ok {
		return model.Request{}, fmt.Errorf("sender unexpected type %T", values[3])
	}
	recipient, ok := values[4].(common.Address)
	if !ok {
		return model.Request{}, fmt.Errorf("recipient unexpected type %T", values[4])
	}

	req := model.Request{
		PoolID:    poolID,
		Tokens:    tokens,
		Amounts:   amounts,
		Sender:    sender,
		Recipient: recipient,
	}
	if err := validateLegs(kind, req); err != nil {
		return model.Request{}, err
	}
	return req, nil
}

var entryKinds = map[model.EntryKind]struct{}{
	model.KindDepositPerp:  {},
	model.KindWithdrawPerp: {},
	model.KindDepositSpot:  {},
	model.KindWithdrawSpot: {},
}

func validateLegs(kind model.EntryKind, req model.Request) error {
	if _, ok := entryKinds[kind]; !ok {
		return fmt.Errorf("unsupported kind %s", kind)
	}
	legs := kind.Legs()
	if len(req.Tokens) != legs || len(req.Amounts) != legs {
		return fmt.Errorf("%s expects %d legs, got %d tokens and %d amounts", kind, legs, len(req.Tokens), len(req.Amounts))
	}
	for i, amount := range req.Amounts {
		if amount == nil || amount.Sign() < 0 {
			return fmt.Errorf("%s leg %d has invalid amount", kind, i)
		}
	}
	return nil
}
