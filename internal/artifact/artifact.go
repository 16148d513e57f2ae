// Package artifact loads compiled-contract descriptors produced by forge.
package artifact

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Artifact is a compiled contract: its interface definition plus the
// deployable bytecode.
type Artifact struct {
	ABI      abi.ABI
	Bytecode []byte
}

// rawArtifact mirrors the parts of a Foundry artifact file we consume.
// Depending on compiler settings the bytecode lives in "bytecode.object",
// a plain "bytecode" string, or solc's "evm.bytecode.object".
type rawArtifact struct {
	ABI      json.RawMessage `json:"abi"`
	Bytecode json.RawMessage `json:"bytecode"`
	EVM      *struct {
		Bytecode struct {
			Object string `json:"object"`
		} `json:"bytecode"`
	} `json:"evm"`
}

// Load reads and parses an artifact file.
func Load(path string) (*Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact %s: %w", path, err)
	}
	return Parse(data)
}

// Parse parses an artifact from its JSON encoding.
func Parse(data []byte) (*Artifact, error) {
	var raw rawArtifact
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to unmarshal artifact: %w", err)
	}

	if len(raw.ABI) == 0 {
		return nil, fmt.Errorf("artifact has no abi")
	}

	parsedABI, err := abi.JSON(bytes.NewReader(raw.ABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse abi: %w", err)
	}

	bytecodeHex, err := extractBytecode(raw)
	if err != nil {
		return nil, err
	}

	bytecode := common.FromHex(bytecodeHex)
	if len(bytecode) == 0 {
		return nil, fmt.Errorf("artifact has empty bytecode")
	}

	return &Artifact{
		ABI:      parsedABI,
		Bytecode: bytecode,
	}, nil
}

func extractBytecode(raw rawArtifact) (string, error) {
	if len(raw.Bytecode) > 0 {
		// Foundry: {"bytecode": {"object": "0x..."}}
		var obj struct {
			Object string `json:"object"`
		}
		if err := json.Unmarshal(raw.Bytecode, &obj); err == nil && obj.Object != "" {
			return obj.Object, nil
		}

		// Older layout: {"bytecode": "0x..."}
		var s string
		if err := json.Unmarshal(raw.Bytecode, &s); err == nil && s != "" {
			return s, nil
		}
	}

	// solc standard JSON: {"evm": {"bytecode": {"object": "..."}}}
	if raw.EVM != nil && raw.EVM.Bytecode.Object != "" {
		return raw.EVM.Bytecode.Object, nil
	}

	return "", fmt.Errorf("artifact has no deployable bytecode")
}
