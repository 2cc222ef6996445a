package evm

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
	"time"

	x402 "github.com/x402-foundation/x402/go"
)

// ExactEvmFacilitator implements the SchemeNetworkFacilitator interface for EVM exact payments (V2)
type ExactEvmFacilitator struct {
	signer FacilitatorEvmSigner
}

// NewExactEvmFacilitator creates a new ExactEvmFacilitator
func NewExactEvmFacilitator(signer FacilitatorEvmSigner) *ExactEvmFacilitator {
	return &ExactEvmFacilitator{
		signer: signer,
	}
}

// Scheme returns the scheme identifier
func (f *ExactEvmFacilitator) Scheme() string {
	return SchemeExact
}

// Verify verifies a payment payload against requirements.
func (f *ExactEvmFacilitator) Verify(
	ctx context.Context,
	version int,
	payloadBytes []byte,
	requirementsBytes []byte,
) (x402.VerifyResponse, error) {
	var payload x402.PaymentPayload
	if err := json.Unmarshal(payloadBytes, &payload); err != nil {
		return x402.VerifyResponse{IsValid: false, InvalidReason: "invalid_payload_format"}, nil
	}
	var requirements x402.PaymentRequirements
	if err := json.Unmarshal(requirementsBytes, &requirements); err != nil {
		return x402.VerifyResponse{IsValid: false, InvalidReason: "invalid_payload_format"}, nil
	}

	scheme := payload.Scheme
	network := payload.Network
	if version == x402.ProtocolVersionV2 {
		scheme = payload.Accepted.Scheme
		network = string(payload.Accepted.Network)
	}

	if scheme != SchemeExact {
		return x402.VerifyResponse{IsValid: false, InvalidReason: "invalid scheme"}, nil
	}
	if network != string(requirements.Network) {
		return x402.VerifyResponse{IsValid: false, InvalidReason: "network mismatch"}, nil
	}

	evmPayload, err := PayloadFromMap(payload.Payload)
	if err != nil {
		return x402.VerifyResponse{IsValid: false, InvalidReason: fmt.Sprintf("invalid payload: %v", err)}, nil
	}

	if evmPayload.Signature == "" {
		return x402.VerifyResponse{IsValid: false, InvalidReason: "missing signature"}, nil
	}

	networkStr := string(requirements.Network)
	config, err := GetNetworkConfig(networkStr)
	if err != nil {
		return x402.VerifyResponse{}, err
	}

	assetInfo, err := GetAssetInfo(networkStr, requirements.Asset)
	if err != nil {
		return x402.VerifyResponse{}, err
	}

	if !strings.EqualFold(evmPayload.Authorization.To, requirements.PayTo) {
		return x402.VerifyResponse{IsValid: false, InvalidReason: "receiver_mismatch"}, nil
	}

	authValue, ok := new(big.Int).SetString(evmPayload.Authorization.Value, 10)
	if !ok {
		return x402.VerifyResponse{IsValid: false, InvalidReason: "invalid authorization value"}, nil
	}

	reqAmount := requirements.Amount
	if reqAmount == "" {
		reqAmount = requirements.MaxAmountRequired
	}
	requiredValue, ok := new(big.Int).SetString(reqAmount, 10)
	if !ok {
		return x402.VerifyResponse{IsValid: false, InvalidReason: fmt.Sprintf("invalid required amount: %s", reqAmount)}, nil
	}

	if authValue.Cmp(requiredValue) != 0 {
		return x402.VerifyResponse{
			IsValid:       false,
			InvalidReason: fmt.Sprintf("amount_mismatch: expected %s, got %s", requiredValue.String(), authValue.String()),
			Payer:         evmPayload.Authorization.From,
		}, nil
	}

	now := time.Now().Unix()
	validAfter, _ := new(big.Int).SetString(evmPayload.Authorization.ValidAfter, 10)
	validBefore, _ := new(big.Int).SetString(evmPayload.Authorization.ValidBefore, 10)
	if validAfter == nil || validBefore == nil {
		return x402.VerifyResponse{IsValid: false, InvalidReason: "invalid_payload_format", Payer: evmPayload.Authorization.From}, nil
	}
	if now < validAfter.Int64() || now >= validBefore.Int64() {
		return x402.VerifyResponse{IsValid: false, InvalidReason: "expired_authorization", Payer: evmPayload.Authorization.From}, nil
	}
	if validBefore.Int64()-now > int64(requirements.MaxTimeoutSeconds) && requirements.MaxTimeoutSeconds > 0 {
		return x402.VerifyResponse{IsValid: false, InvalidReason: "expired_authorization", Payer: evmPayload.Authorization.From}, nil
	}

	// Reject a nonce that has already been spent on-chain (EIP-3009 replay guard).
	nonceUsed, err := f.checkNonceUsed(ctx, evmPayload.Authorization.From, evmPayload.Authorization.Nonce, assetInfo.Address)
	if err != nil {
		return x402.VerifyResponse{}, fmt.Errorf("failed to check nonce: %w", err)
	}
	if nonceUsed {
		return x402.VerifyResponse{IsValid: false, InvalidReason: "authorization_replayed", Payer: evmPayload.Authorization.From}, nil
	}

	balance, err := f.signer.GetBalance(ctx, evmPayload.Authorization.From, assetInfo.Address)
	if err != nil {
		return x402.VerifyResponse{}, fmt.Errorf("failed to get balance: %w", err)
	}
	if balance.Cmp(authValue) < 0 {
		return x402.VerifyResponse{IsValid: false, InvalidReason: "insufficient balance", Payer: evmPayload.Authorization.From}, nil
	}

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

	signatureBytes, err := HexToBytes(evmPayload.Signature)
	if err != nil {
		return x402.VerifyResponse{IsValid: false, InvalidReason: "invalid signature format", Payer: evmPayload.Authorization.From}, nil
	}

	valid, err := f.verifySignature(ctx, evmPayload.Authorization, signatureBytes, config.ChainID, assetInfo.Address, tokenName, tokenVersion)
	if err != nil {
		return x402.VerifyResponse{}, fmt.Errorf("failed to verify signature: %w", err)
	}
	if !valid {
		return x402.VerifyResponse{IsValid: false, InvalidReason: ErrInvalidSignature, Payer: evmPayload.Authorization.From}, nil
	}

	return x402.VerifyResponse{IsValid: true, Payer: evmPayload.Authorization.From}, nil
}

// Settle settles a payment on-chain. Always re-verifies first: settlement
// is never attempted against a payload that fails verification.
func (f *ExactEvmFacilitator) Settle(
	ctx context.Context,
	version int,
	payloadBytes []byte,
	requirementsBytes []byte,
) (x402.SettleResponse, error) {
	var payload x402.PaymentPayload
	if err := json.Unmarshal(payloadBytes, &payload); err != nil {
		return x402.SettleResponse{Success: false, ErrorReason: "invalid_payload_format"}, nil
	}
	var requirements x402.PaymentRequirements
	if err := json.Unmarshal(requirementsBytes, &requirements); err != nil {
		return x402.SettleResponse{Success: false, ErrorReason: "invalid_payload_format"}, nil
	}

	verifyResp, err := f.Verify(ctx, version, payloadBytes, requirementsBytes)
	if err != nil {
		return x402.SettleResponse{}, err
	}
	if !verifyResp.IsValid {
		return x402.SettleResponse{
			Success:     false,
			ErrorReason: verifyResp.InvalidReason,
			Payer:       verifyResp.Payer,
			Network:     requirements.Network,
		}, nil
	}

	evmPayload, err := PayloadFromMap(payload.Payload)
	if err != nil {
		return x402.SettleResponse{Success: false, ErrorReason: fmt.Sprintf("invalid payload: %v", err)}, nil
	}

	networkStr := string(requirements.Network)
	assetInfo, err := GetAssetInfo(networkStr, requirements.Asset)
	if err != nil {
		return x402.SettleResponse{}, err
	}

	signatureBytes, err := HexToBytes(evmPayload.Signature)
	if err != nil {
		return x402.SettleResponse{Success: false, ErrorReason: "invalid signature format"}, nil
	}
	if len(signatureBytes) != 65 {
		return x402.SettleResponse{Success: false, ErrorReason: "invalid signature length"}, nil
	}

	r := signatureBytes[0:32]
	s := signatureBytes[32:64]
	v := signatureBytes[64]

	value, _ := new(big.Int).SetString(evmPayload.Authorization.Value, 10)
	validAfter, _ := new(big.Int).SetString(evmPayload.Authorization.ValidAfter, 10)
	validBefore, _ := new(big.Int).SetString(evmPayload.Authorization.ValidBefore, 10)
	nonceBytes, _ := HexToBytes(evmPayload.Authorization.Nonce)
	var nonce32 [32]byte
	copy(nonce32[:], nonceBytes)
	var r32, s32 [32]byte
	copy(r32[:], r)
	copy(s32[:], s)

	txHash, err := f.signer.WriteContract(
		ctx,
		assetInfo.Address,
		TransferWithAuthorizationABI,
		FunctionTransferWithAuthorization,
		evmPayload.Authorization.From,
		evmPayload.Authorization.To,
		value,
		validAfter,
		validBefore,
		nonce32,
		v,
		r32,
		s32,
	)
	if err != nil {
		return x402.SettleResponse{Success: false, ErrorReason: fmt.Sprintf("network_error: %v", err), Payer: evmPayload.Authorization.From, Network: requirements.Network}, nil
	}

	receipt, err := f.signer.WaitForTransactionReceipt(ctx, txHash)
	if err != nil {
		return x402.SettleResponse{Success: false, ErrorReason: fmt.Sprintf("network_error: %v", err), Transaction: txHash, Payer: evmPayload.Authorization.From, Network: requirements.Network}, nil
	}

	if receipt.Status != TxStatusSuccess {
		return x402.SettleResponse{Success: false, ErrorReason: "transaction failed", Transaction: txHash, Payer: evmPayload.Authorization.From, Network: requirements.Network}, nil
	}

	return x402.SettleResponse{
		Success:     true,
		Transaction: txHash,
		Network:     requirements.Network,
		Payer:       evmPayload.Authorization.From,
	}, nil
}

// checkNonceUsed checks if a nonce has already been used
func (f *ExactEvmFacilitator) checkNonceUsed(ctx context.Context, from string, nonce string, tokenAddress string) (bool, error) {
	nonceBytes, err := HexToBytes(nonce)
	if err != nil {
		return false, err
	}
	var nonce32 [32]byte
	copy(nonce32[:], nonceBytes)

	result, err := f.signer.ReadContract(
		ctx,
		tokenAddress,
		AuthorizationStateABI,
		FunctionAuthorizationState,
		from,
		nonce32,
	)
	if err != nil {
		return false, err
	}

	used, ok := result.(bool)
	if !ok {
		return false, fmt.Errorf("unexpected result type from authorizationState")
	}

	return used, nil
}

// verifySignature verifies the EIP-712 signature
func (f *ExactEvmFacilitator) verifySignature(
	ctx context.Context,
	authorization ExactEIP3009Authorization,
	signature []byte,
	chainID *big.Int,
	verifyingContract string,
	tokenName string,
	tokenVersion string,
) (bool, error) {
	domain := TypedDataDomain{
		Name:              tokenName,
		Version:           tokenVersion,
		ChainID:           chainID,
		VerifyingContract: verifyingContract,
	}

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

	value, _ := new(big.Int).SetString(authorization.Value, 10)
	validAfter, _ := new(big.Int).SetString(authorization.ValidAfter, 10)
	validBefore, _ := new(big.Int).SetString(authorization.ValidBefore, 10)
	nonceBytes, _ := HexToBytes(authorization.Nonce)

	message := map[string]interface{}{
		"from":        authorization.From,
		"to":          authorization.To,
		"value":       value,
		"validAfter":  validAfter,
		"validBefore": validBefore,
		"nonce":       nonceBytes,
	}

	return f.signer.VerifyTypedData(ctx, authorization.From, domain, types, "TransferWithAuthorization", message, signature)
}
