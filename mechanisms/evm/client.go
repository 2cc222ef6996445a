package evm

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	x402 "github.com/x402-foundation/x402/go"
)

// ExactEvmClient implements the SchemeNetworkClient interface for EVM exact payments (V2)
type ExactEvmClient struct {
	signer ClientEvmSigner
}

// NewExactEvmClient creates a new ExactEvmClient
func NewExactEvmClient(signer ClientEvmSigner) *ExactEvmClient {
	return &ExactEvmClient{
		signer: signer,
	}
}

// Scheme returns the scheme identifier
func (c *ExactEvmClient) Scheme() string {
	return SchemeExact
}

// CreatePaymentPayload creates a signed payment payload for the exact scheme.
// Receives raw requirements bytes and returns raw partial-payload bytes, per
// SchemeNetworkClient; the core wraps the partial payload with accepted/
// resource/extensions for v2.
func (c *ExactEvmClient) CreatePaymentPayload(
	ctx context.Context,
	version int,
	requirementsBytes []byte,
) ([]byte, error) {
	if version != x402.ProtocolVersionV1 && version != x402.ProtocolVersionV2 {
		return nil, fmt.Errorf("evm exact: unsupported x402 version %d", version)
	}

	var requirements x402.PaymentRequirements
	if err := json.Unmarshal(requirementsBytes, &requirements); err != nil {
		return nil, fmt.Errorf("evm exact: decode requirements: %w", err)
	}

	networkStr := string(requirements.Network)
	if !IsValidNetwork(networkStr) {
		return nil, fmt.Errorf("evm exact: unsupported network: %s", requirements.Network)
	}

	config, err := GetNetworkConfig(networkStr)
	if err != nil {
		return nil, err
	}

	assetInfo, err := GetAssetInfo(networkStr, requirements.Asset)
	if err != nil {
		return nil, err
	}

	amount := requirements.Amount
	if amount == "" {
		amount = requirements.MaxAmountRequired
	}
	value, ok := new(big.Int).SetString(amount, 10)
	if !ok {
		return nil, fmt.Errorf("evm exact: invalid amount: %s", amount)
	}

	nonce, err := CreateNonce()
	if err != nil {
		return nil, err
	}

	window := time.Duration(requirements.MaxTimeoutSeconds) * time.Second
	if window <= 0 {
		window = time.Hour
	}
	validAfter, validBefore := CreateValidityWindow(window)

	tokenName := assetInfo.Name
	tokenVersion := assetInfo.Version
	if requirements.Extra != nil {
		if name, ok := requirements.Extra["name"].(string); ok {
			tokenName = name
		}
		if ver, ok := requirements.Extra["version"].(string); ok {
			tokenVersion = ver
		}
	}

	authorization := ExactEIP3009Authorization{
		From:        c.signer.Address(),
		To:          requirements.PayTo,
		Value:       value.String(),
		ValidAfter:  validAfter.String(),
		ValidBefore: validBefore.String(),
		Nonce:       nonce,
	}

	signature, err := c.signAuthorization(ctx, authorization, config.ChainID, assetInfo.Address, tokenName, tokenVersion)
	if err != nil {
		return nil, fmt.Errorf("evm exact: sign authorization: %w", err)
	}

	evmPayload := &ExactEIP3009Payload{
		Signature:     BytesToHex(signature),
		Authorization: authorization,
	}

	if version == x402.ProtocolVersionV1 {
		full := x402.PaymentPayload{
			X402Version: version,
			Scheme:      SchemeExact,
			Network:     networkStr,
			Payload:     evmPayload.ToMap(),
		}
		return json.Marshal(full)
	}

	partial := x402.PartialPaymentPayload{
		X402Version: version,
		Payload:     evmPayload.ToMap(),
	}
	return json.Marshal(partial)
}

// signAuthorization signs the EIP-3009 authorization using EIP-712
func (c *ExactEvmClient) signAuthorization(
	ctx context.Context,
	authorization ExactEIP3009Authorization,
	chainID *big.Int,
	verifyingContract string,
	tokenName string,
	tokenVersion string,
) ([]byte, error) {
	// Create EIP-712 domain
	domain := TypedDataDomain{
		Name:              tokenName,
		Version:           tokenVersion,
		ChainID:           chainID,
		VerifyingContract: verifyingContract,
	}

	// Define EIP-712 types
	types := map[string][]TypedDataField{
		"EIP712Domain": {
			{Name: "name", Type: "string"},
			{Name: "version", Type: "string"},
			{Name: "chainId", Type: "uint256"},
			{Name: "verifyingContract", Type: "address"},
		},
		"TransferWithAuthorization": {
			{Name: "from", Type: "address"},
			{Name: "to", Type: "address"},
			{Name: "value", Type: "uint256"},
			{Name: "validAfter", Type: "uint256"},
			{Name: "validBefore", Type: "uint256"},
			{Name: "nonce", Type: "bytes32"},
		},
	}

	// Parse values for message
	value, _ := new(big.Int).SetString(authorization.Value, 10)
	validAfter, _ := new(big.Int).SetString(authorization.ValidAfter, 10)
	validBefore, _ := new(big.Int).SetString(authorization.ValidBefore, 10)
	nonceBytes, _ := HexToBytes(authorization.Nonce)

	// Create message
	message := map[string]interface{}{
		"from":        authorization.From,
		"to":          authorization.To,
		"value":       value,
		"validAfter":  validAfter,
		"validBefore": validBefore,
		"nonce":       nonceBytes,
	}

	// Sign the typed data
	return c.signer.SignTypedData(ctx, domain, types, "TransferWithAuthorization", message)
}
