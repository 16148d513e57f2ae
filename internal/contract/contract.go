// Package contract deploys compiled contracts and hands out callable handles.
package contract

import (
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Handle is a deployed contract: name, on-chain address and interface.
type Handle struct {
	Name    string
	Address common.Address
	ABI     abi.ABI
}

// Pack ABI-encodes a call to the named function.
func (h *Handle) Pack(fn string, args ...interface{}) ([]byte, error) {
	data, err := h.ABI.Pack(fn, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s.%s: %w", h.Name, fn, err)
	}
	return data, nil
}

// HasFunction reports whether the contract interface defines fn.
func (h *Handle) HasFunction(fn string) bool {
	_, ok := h.ABI.Methods[fn]
	return ok
}
