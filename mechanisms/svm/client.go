package svm

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	solana "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/token"

	x402 "github.com/x402-foundation/x402/go"
)

// ExactSvmClient implements SchemeNetworkClient for SVM exact payments:
// it builds and signs a single SPL TransferChecked transaction. There is
// no pooled-fee sponsorship on SVM exact — the payer is always the fee
// payer.
type ExactSvmClient struct {
	signer ClientSvmSigner
	config ClientConfig
}

// NewExactSvmClient creates an ExactSvmClient. config is optional; when
// omitted (or its GetLatestBlockhash is nil) the client falls back to a
// zero blockhash, which callers are expected to replace before broadcast
// in setups that wire a real RPC client through a facilitator-side relay.
func NewExactSvmClient(signer ClientSvmSigner, config ...*ClientConfig) *ExactSvmClient {
	c := ExactSvmClient{signer: signer}
	if len(config) > 0 && config[0] != nil {
		c.config = *config[0]
	}
	return &c
}

func (c *ExactSvmClient) Scheme() string { return SchemeExact }

// CreatePaymentPayload builds, signs, and serializes a TransferChecked
// transaction moving requirements.Amount of requirements.Asset from the
// signer to requirements.PayTo.
func (c *ExactSvmClient) CreatePaymentPayload(
	ctx context.Context,
	version int,
	requirementsBytes []byte,
) ([]byte, error) {
	if version != x402.ProtocolVersionV1 && version != x402.ProtocolVersionV2 {
		return nil, fmt.Errorf("svm exact: unsupported x402 version %d", version)
	}

	var requirements x402.PaymentRequirements
	if err := json.Unmarshal(requirementsBytes, &requirements); err != nil {
		return nil, fmt.Errorf("svm exact: decode requirements: %w", err)
	}

	networkStr := string(requirements.Network)
	if !IsValidNetwork(networkStr) {
		return nil, fmt.Errorf("svm exact: unsupported network: %s", requirements.Network)
	}

	assetInfo, err := GetAssetInfo(networkStr, requirements.Asset)
	if err != nil {
		return nil, err
	}

	mint, err := solana.PublicKeyFromBase58(assetInfo.Address)
	if err != nil {
		return nil, fmt.Errorf("svm exact: invalid asset mint: %w", err)
	}
	payTo, err := solana.PublicKeyFromBase58(requirements.PayTo)
	if err != nil {
		return nil, fmt.Errorf("svm exact: invalid payTo: %w", err)
	}

	amount, err := ParseAmount(requirements.Amount, assetInfo.Decimals)
	if err != nil {
		return nil, fmt.Errorf("svm exact: invalid amount: %w", err)
	}

	decimals := uint8(assetInfo.Decimals)
	if requirements.Extra != nil {
		if d, ok := requirements.Extra["decimals"].(float64); ok {
			decimals = uint8(d)
		}
	}

	owner := c.signer.Address()
	sourceATA, _, err := solana.FindAssociatedTokenAddress(owner, mint)
	if err != nil {
		return nil, fmt.Errorf("svm exact: derive source ATA: %w", err)
	}
	destATA, _, err := solana.FindAssociatedTokenAddress(payTo, mint)
	if err != nil {
		return nil, fmt.Errorf("svm exact: derive destination ATA: %w", err)
	}

	transferIx := token.NewTransferCheckedInstruction(
		amount,
		decimals,
		sourceATA,
		mint,
		destATA,
		owner,
		nil,
	).Build()

	blockhash, err := c.recentBlockhash(ctx)
	if err != nil {
		return nil, fmt.Errorf("svm exact: recent blockhash: %w", err)
	}

	tx, err := solana.NewTransaction(
		[]solana.Instruction{transferIx},
		blockhash,
		solana.TransactionPayer(owner),
	)
	if err != nil {
		return nil, fmt.Errorf("svm exact: build transaction: %w", err)
	}

	if err := c.signer.SignTransaction(ctx, tx); err != nil {
		return nil, fmt.Errorf("svm exact: sign transaction: %w", err)
	}

	raw, err := tx.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("svm exact: serialize transaction: %w", err)
	}

	svmPayload := &ExactSvmPayload{Transaction: base64.StdEncoding.EncodeToString(raw)}

	if version == x402.ProtocolVersionV1 {
		full := x402.PaymentPayload{
			X402Version: version,
			Scheme:      SchemeExact,
			Network:     networkStr,
			Payload:     svmPayload.ToMap(),
		}
		return json.Marshal(full)
	}

	partial := x402.PartialPaymentPayload{
		X402Version: version,
		Payload:     svmPayload.ToMap(),
	}
	return json.Marshal(partial)
}

func (c *ExactSvmClient) recentBlockhash(ctx context.Context) (solana.Hash, error) {
	if c.config.GetLatestBlockhash != nil {
		return c.config.GetLatestBlockhash(ctx)
	}
	return solana.Hash{}, nil
}
