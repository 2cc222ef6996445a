package svm

import (
	"context"

	solana "github.com/gagliardetto/solana-go"
)

// AssetInfo describes an SPL token mint this package knows the default
// decimals for.
type AssetInfo struct {
	Address  string
	Decimals int
}

// NetworkConfig carries the cluster-specific defaults needed to build and
// verify exact-scheme payments: the CAIP-2 identifier, the default asset
// (USDC), and any additional known SPL mints.
type NetworkConfig struct {
	CAIP2           string
	DefaultAsset    AssetInfo
	SupportedAssets map[string]AssetInfo
}

// NetworkConfigs maps both CAIP-2 and legacy flat network identifiers to
// their cluster configuration.
var NetworkConfigs = map[string]NetworkConfig{
	"solana:5eykt4UsFv8P8NJdTREpY1vzqKqZKvdpKuc147dw2N9d": {
		CAIP2: "solana:5eykt4UsFv8P8NJdTREpY1vzqKqZKvdpKuc147dw2N9d",
		DefaultAsset: AssetInfo{
			Address:  "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v", // USDC, mainnet-beta
			Decimals: DefaultDecimals,
		},
	},
	"solana": {
		CAIP2: "solana:5eykt4UsFv8P8NJdTREpY1vzqKqZKvdpKuc147dw2N9d",
		DefaultAsset: AssetInfo{
			Address:  "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v",
			Decimals: DefaultDecimals,
		},
	},
	"solana:EtWTRABZaYq6iMfeYKouRu166VU2xqa1": {
		CAIP2: "solana:EtWTRABZaYq6iMfeYKouRu166VU2xqa1",
		DefaultAsset: AssetInfo{
			Address:  "4zMMC9srt5Ri5X14GAgXhaHii3GnPAEERYPJgZJDncDU", // USDC, devnet
			Decimals: DefaultDecimals,
		},
	},
	"solana-devnet": {
		CAIP2: "solana:EtWTRABZaYq6iMfeYKouRu166VU2xqa1",
		DefaultAsset: AssetInfo{
			Address:  "4zMMC9srt5Ri5X14GAgXhaHii3GnPAEERYPJgZJDncDU",
			Decimals: DefaultDecimals,
		},
	},
}

// ExactSvmPayload is the wire shape of an SVM exact-scheme payment: a
// single signed transaction, serialized and base64-encoded.
type ExactSvmPayload struct {
	Transaction string `json:"transaction"`
}

// ToMap converts the payload to a map for PartialPaymentPayload/PaymentPayload embedding.
func (p *ExactSvmPayload) ToMap() map[string]interface{} {
	return map[string]interface{}{"transaction": p.Transaction}
}

// PayloadFromMap reconstructs an ExactSvmPayload from a decoded JSON map.
func PayloadFromMap(data map[string]interface{}) (*ExactSvmPayload, error) {
	tx, _ := data["transaction"].(string)
	if tx == "" {
		return nil, errMissingTransaction
	}
	return &ExactSvmPayload{Transaction: tx}, nil
}

// ClientSvmSigner is implemented by client-side Solana wallets: it partially
// signs the payer's TransferChecked transaction built by ExactSvmClient.
type ClientSvmSigner interface {
	// Address returns the payer's public key.
	Address() solana.PublicKey

	// SignTransaction adds the payer's signature to tx in place.
	SignTransaction(ctx context.Context, tx *solana.Transaction) error
}

// FacilitatorSvmSigner is implemented by the node/RPC client a facilitator
// injects to submit and confirm transactions. SVM exact never sponsors fees
// on behalf of the payer, so the facilitator never needs to sign.
type FacilitatorSvmSigner interface {
	// GetAddresses returns the facilitator's own signer addresses, used to
	// reject transactions that try to route funds through them.
	GetAddresses() []string

	// GetSlot returns the current slot, used to check blockhash freshness.
	GetSlot(ctx context.Context) (uint64, error)

	// GetBlockhashValidity reports whether blockhash is still usable and,
	// if so, the slot it was produced at.
	GetBlockhashValidity(ctx context.Context, blockhash solana.Hash) (valid bool, producedAtSlot uint64, err error)

	// SubmitTransaction broadcasts a fully-signed transaction and returns
	// its signature (transaction id).
	SubmitTransaction(ctx context.Context, tx *solana.Transaction) (signature string, err error)

	// ConfirmTransaction blocks until signature reaches commitment (or the
	// context is cancelled).
	ConfirmTransaction(ctx context.Context, signature string, commitment string) error
}

// ClientConfig holds optional RPC-backed services the client needs in
// order to construct a transaction (a recent blockhash and the payer's
// associated-token-account addresses are deterministic, but the blockhash
// must come from the cluster).
type ClientConfig struct {
	// GetLatestBlockhash fetches a fresh recent blockhash from the cluster.
	GetLatestBlockhash func(ctx context.Context) (solana.Hash, error)
}
