package avm

import (
	"context"
	"encoding/json"
	"fmt"

	algotypes "github.com/algorand/go-algorand-sdk/v2/types"

	x402 "github.com/x402-foundation/x402/go"
)

// ExactAvmClient implements SchemeNetworkClient for AVM exact payments: it
// builds the atomic group described in spec.md §4.5.3 (sponsored or
// unsponsored, depending on requirements.Extra["feePayer"]) and signs every
// txn whose sender is the client's address.
type ExactAvmClient struct {
	signer ClientAvmSigner
	config ClientConfig
}

// NewExactAvmClient creates an ExactAvmClient. config is optional; when
// omitted (or its GetSuggestedParams is nil) the client builds a
// zero-valued validity window, which callers in production must replace
// with real node-fetched parameters before broadcast.
func NewExactAvmClient(signer ClientAvmSigner, config ...*ClientConfig) *ExactAvmClient {
	c := ExactAvmClient{signer: signer}
	if len(config) > 0 && config[0] != nil {
		c.config = *config[0]
	}
	return &c
}

func (c *ExactAvmClient) Scheme() string { return SchemeExact }

// CreatePaymentPayload builds, signs, and serializes the atomic group
// moving requirements.Amount of requirements.Asset from the signer to
// requirements.PayTo, optionally sponsored by requirements.Extra["feePayer"].
func (c *ExactAvmClient) CreatePaymentPayload(
	ctx context.Context,
	version int,
	requirementsBytes []byte,
) ([]byte, error) {
	if version != x402.ProtocolVersionV1 && version != x402.ProtocolVersionV2 {
		return nil, fmt.Errorf("avm exact: unsupported x402 version %d", version)
	}

	var requirements x402.PaymentRequirements
	if err := json.Unmarshal(requirementsBytes, &requirements); err != nil {
		return nil, fmt.Errorf("avm exact: decode requirements: %w", err)
	}

	networkStr := string(requirements.Network)
	if !IsValidNetwork(networkStr) {
		return nil, fmt.Errorf("avm exact: unsupported network: %s", requirements.Network)
	}
	netConfig, err := GetNetworkConfig(networkStr)
	if err != nil {
		return nil, err
	}

	assetInfo, err := GetAssetInfo(networkStr, requirements.Asset)
	if err != nil {
		return nil, err
	}

	payTo, err := algotypes.DecodeAddress(requirements.PayTo)
	if err != nil {
		return nil, fmt.Errorf("avm exact: invalid payTo: %w", err)
	}

	amount, err := ParseAmount(requirements.Amount, assetInfo.Decimals)
	if err != nil {
		return nil, fmt.Errorf("avm exact: invalid amount: %w", err)
	}

	params, err := c.suggestedParams(ctx, netConfig)
	if err != nil {
		return nil, fmt.Errorf("avm exact: suggested params: %w", err)
	}

	var feePayer *algotypes.Address
	if requirements.Extra != nil {
		if fp, ok := requirements.Extra["feePayer"].(string); ok && fp != "" {
			addr, err := algotypes.DecodeAddress(fp)
			if err != nil {
				return nil, fmt.Errorf("avm exact: invalid feePayer: %w", err)
			}
			feePayer = &addr
		}
	}

	group, paymentIndex, err := BuildPaymentGroup(BuildGroupOptions{
		Payer:    c.signer.Address(),
		PayTo:    payTo,
		AssetID:  assetInfo.ID,
		Amount:   amount,
		Params:   params,
		FeePayer: feePayer,
	})
	if err != nil {
		return nil, err
	}

	encoded, err := SignGroup(ctx, c.signer, group)
	if err != nil {
		return nil, err
	}

	avmPayload := &ExactAvmPayload{PaymentGroup: encoded, PaymentIndex: paymentIndex}

	if version == x402.ProtocolVersionV1 {
		full := x402.PaymentPayload{
			X402Version: version,
			Scheme:      SchemeExact,
			Network:     networkStr,
			Payload:     avmPayload.ToMap(),
		}
		return json.Marshal(full)
	}

	partial := x402.PartialPaymentPayload{
		X402Version: version,
		Payload:     avmPayload.ToMap(),
	}
	return json.Marshal(partial)
}

func (c *ExactAvmClient) suggestedParams(ctx context.Context, netConfig *NetworkConfig) (SuggestedParams, error) {
	if c.config.GetSuggestedParams != nil {
		return c.config.GetSuggestedParams(ctx)
	}
	return SuggestedParams{
		Fee:        MinTxnFee,
		MinFee:     MinTxnFee,
		FirstValid: 0,
		LastValid:  DefaultValidityRounds,
		GenesisID:  netConfig.GenesisID,
	}, nil
}
