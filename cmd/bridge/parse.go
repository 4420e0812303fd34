package main

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"vaultBridge/internal/config"
)

func parsePoolID(input string) (uint64, error) {
	id, err := strconv.ParseUint(strings.TrimSpace(input), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid pool id %q", input)
	}
	return id, nil
}

func parseTokenList(inputs []string, hardcaps []string) ([]common.Address, []*big.Int, error) {
	if len(inputs) != len(hardcaps) {
		return nil, nil, fmt.Errorf("got %d tokens and %d hardcaps", len(inputs), len(hardcaps))
	}
	tokens := make([]common.Address, 0, len(inputs))
	caps := make([]*big.Int, 0, len(hardcaps))
	for i, input := range inputs {
		token, err := config.ParseAddress("token", input, false)
		if err != nil {
			return nil, nil, err
		}
		hardcap, err := config.ParseAmount("hardcap", hardcaps[i])
		if err != nil {
			return nil, nil, err
		}
		tokens = append(tokens, token)
		caps = append(caps, hardcap)
	}
	return tokens, caps, nil
}

func parseSubaccount(input string) (common.Hash, error) {
	if input == "" {
		return common.Hash{}, nil
	}
	data, err := hexutil.Decode(input)
	if err != nil {
		return common.Hash{}, fmt.Errorf("invalid subaccount: %s", input)
	}
	if len(data) > 32 {
		return common.Hash{}, fmt.Errorf("subaccount longer than 32 bytes: %s", input)
	}
	return common.BytesToHash(data), nil
}
