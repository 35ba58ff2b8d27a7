package aster

import (
	"encoding/json"
	"fmt"

	mathhex "github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// canonicalJSON serializes params the way Python's
// json.dumps(params, separators=(",", ":"), sort_keys=True) does: compact,
// with map keys in sorted order. encoding/json already sorts string map
// keys and omits whitespace by default, so a direct Marshal matches.
func canonicalJSON(params map[string]interface{}) (string, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// generateSignature signs a request's parameters with an EIP-712 typed-data
// message: domain {name: "Aster", version: "1", chainId: 1}, primary type
// "Order" with fields (params, user, nonce) — mirroring the reference
// adapter's eth_account.encode_typed_data call. nonce is a microsecond
// timestamp, matching the reference's `int(time.time() * 1_000_000)`.
func (c *Client) generateSignature(params map[string]interface{}) (string, int64, error) {
	if c.privateKey == nil {
		return "", 0, fmt.Errorf("aster: signer not initialised")
	}

	nonce := c.clock().UnixNano() / 1000
	paramsStr, err := canonicalJSON(params)
	if err != nil {
		return "", 0, fmt.Errorf("aster: encode params: %w", err)
	}

	digest, err := asterTypedDataHash(paramsStr, c.address, nonce)
	if err != nil {
		return "", 0, err
	}

	sigBytes, err := crypto.Sign(digest, c.privateKey)
	if err != nil {
		return "", 0, fmt.Errorf("aster: sign message: %w", err)
	}
	return "0x" + fmt.Sprintf("%x", sigBytes), nonce, nil
}

func asterTypedDataHash(paramsStr, address string, nonce int64) ([]byte, error) {
	domain := apitypes.TypedDataDomain{
		Name:    "Aster",
		Version: "1",
		ChainId: mathhex.NewHexOrDecimal256(1),
	}
	message := map[string]interface{}{
		"params": paramsStr,
		"user":   address,
		"nonce":  mathhex.NewHexOrDecimal256(nonce),
	}

	typedData := apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": {
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
			},
			"Order": {
				{Name: "params", Type: "string"},
				{Name: "user", Type: "address"},
				{Name: "nonce", Type: "uint256"},
			},
		},
		PrimaryType: "Order",
		Domain:      domain,
		Message:     message,
	}

	domainSeparator, err := typedData.HashStruct("EIP712Domain", typedData.Domain.Map())
	if err != nil {
		return nil, fmt.Errorf("aster: hash domain: %w", err)
	}
	messageHash, err := typedData.HashStruct(typedData.PrimaryType, typedData.Message)
	if err != nil {
		return nil, fmt.Errorf("aster: hash primary type: %w", err)
	}

	raw := make([]byte, 0, 2+len(domainSeparator)+len(messageHash))
	raw = append(raw, 0x19, 0x01)
	raw = append(raw, domainSeparator...)
	raw = append(raw, messageHash...)
	return crypto.Keccak256(raw), nil
}
