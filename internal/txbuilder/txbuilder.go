// Package txbuilder builds and signs the legacy transactions the benchmarks
// submit. Anvil accepts legacy (type 0) transactions and the gas price is an
// explicit benchmark input, so there is no EIP-1559 path here.
package txbuilder

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// NewTransferTx creates a plain value transfer.
func NewTransferTx(nonce uint64, to common.Address, value *big.Int, gasLimit uint64, gasPrice *big.Int) *types.Transaction {
	return types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      gasLimit,
		To:       &to,
		Value:    value,
	})
}

// NewCallTx creates a contract call carrying ABI-encoded calldata.
func NewCallTx(nonce uint64, to common.Address, gasLimit uint64, gasPrice *big.Int, data []byte) *types.Transaction {
	return types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      gasLimit,
		To:       &to,
		Data:     data,
	})
}

// NewDeployTx creates a contract creation transaction (nil To).
func NewDeployTx(nonce uint64, gasLimit uint64, gasPrice *big.Int, data []byte) *types.Transaction {
	return types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      gasLimit,
		To:       nil,
		Data:     data,
	})
}

// Sign signs tx for chainID and returns the RLP encoding ready for
// eth_sendRawTransaction along with the transaction hash.
func Sign(tx *types.Transaction, chainID *big.Int, key *ecdsa.PrivateKey) ([]byte, common.Hash, error) {
	signer := types.LatestSignerForChainID(chainID)
	signed, err := types.SignTx(tx, signer, key)
	if err != nil {
		return nil, common.Hash{}, fmt.Errorf("failed to sign tx: %w", err)
	}

	data, err := signed.MarshalBinary()
	if err != nil {
		return nil, common.Hash{}, fmt.Errorf("failed to encode tx: %w", err)
	}

	return data, signed.Hash(), nil
}
