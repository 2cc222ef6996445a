package avm

import (
	"context"

	algotypes "github.com/algorand/go-algorand-sdk/v2/types"
)

// AssetInfo describes an ASA this package knows the default decimals for.
type AssetInfo struct {
	ID       uint64
	Decimals int
}

// NetworkConfig carries the network-specific defaults needed to build and
// verify exact-scheme payments: the CAIP-2 identifier, the default asset
// (USDC), and any additional known ASAs.
type NetworkConfig struct {
	CAIP2           string
	GenesisID       string
	DefaultAsset    AssetInfo
	SupportedAssets map[string]AssetInfo
}

// NetworkConfigs maps both CAIP-2 and legacy flat network identifiers to
// their network configuration. Genesis hashes are base64 and match the
// conversion table in spec.md §6.
var NetworkConfigs = map[string]NetworkConfig{
	"algorand:wGHE2Pwdvd7S12BL5FaOP20EGYesN73ktiC1qzkkit8=": {
		CAIP2:     "algorand:wGHE2Pwdvd7S12BL5FaOP20EGYesN73ktiC1qzkkit8=",
		GenesisID: "mainnet-v1.0",
		DefaultAsset: AssetInfo{
			ID:       31566704, // USDC, mainnet
			Decimals: DefaultDecimals,
		},
	},
	"algorand-mainnet": {
		CAIP2:     "algorand:wGHE2Pwdvd7S12BL5FaOP20EGYesN73ktiC1qzkkit8=",
		GenesisID: "mainnet-v1.0",
		DefaultAsset: AssetInfo{
			ID:       31566704,
			Decimals: DefaultDecimals,
		},
	},
	"algorand:SGO1GKSzyE7IEPItTxCByw9x8FmnrCDexi9/cOUJOiI=": {
		CAIP2:     "algorand:SGO1GKSzyE7IEPItTxCByw9x8FmnrCDexi9/cOUJOiI=",
		GenesisID: "testnet-v1.0",
		DefaultAsset: AssetInfo{
			ID:       10458941, // USDC, testnet
			Decimals: DefaultDecimals,
		},
	},
	"algorand-testnet": {
		CAIP2:     "algorand:SGO1GKSzyE7IEPItTxCByw9x8FmnrCDexi9/cOUJOiI=",
		GenesisID: "testnet-v1.0",
		DefaultAsset: AssetInfo{
			ID:       10458941,
			Decimals: DefaultDecimals,
		},
	},
}

// ExactAvmPayload is the wire shape of an AVM exact-scheme payment: an
// atomic group of base64-msgpack-encoded transactions (some signed, some
// not) plus the index of the signed ASA transfer within the group.
type ExactAvmPayload struct {
	PaymentGroup []string `json:"paymentGroup"`
	PaymentIndex int      `json:"paymentIndex"`
}

// ToMap converts the payload to a map for PartialPaymentPayload/PaymentPayload embedding.
func (p *ExactAvmPayload) ToMap() map[string]interface{} {
	group := make([]interface{}, len(p.PaymentGroup))
	for i, entry := range p.PaymentGroup {
		group[i] = entry
	}
	return map[string]interface{}{
		"paymentGroup": group,
		"paymentIndex": p.PaymentIndex,
	}
}

// PayloadFromMap reconstructs an ExactAvmPayload from a decoded JSON map.
func PayloadFromMap(data map[string]interface{}) (*ExactAvmPayload, error) {
	rawGroup, ok := data["paymentGroup"].([]interface{})
	if !ok || len(rawGroup) == 0 {
		return nil, errEmptyPaymentGroup
	}
	group := make([]string, len(rawGroup))
	for i, entry := range rawGroup {
		s, ok := entry.(string)
		if !ok {
			return nil, errEmptyPaymentGroup
		}
		group[i] = s
	}

	idxFloat, ok := data["paymentIndex"].(float64)
	if !ok {
		return nil, errMissingPaymentIndex
	}

	return &ExactAvmPayload{PaymentGroup: group, PaymentIndex: int(idxFloat)}, nil
}

// ClientAvmSigner is implemented by client-side Algorand wallets: it signs
// every transaction in a built group whose sender is the client's own
// address, leaving fee-payer entries untouched for the facilitator.
type ClientAvmSigner interface {
	// Address returns the payer's Algorand address.
	Address() algotypes.Address

	// SignTransactions signs every txn in group whose Sender equals
	// Address, returning the msgpack-encoded SignedTxn bytes at the same
	// indexes and nil at every other index.
	SignTransactions(ctx context.Context, group []algotypes.Transaction) ([][]byte, error)
}

// FacilitatorAvmSigner is implemented by the facilitator's fee-payer
// wallet(s): it signs the unsigned self-payment transactions a client
// leaves in a sponsored group, and reports which addresses it controls so
// the facilitator can recognize and load-balance across them.
type FacilitatorAvmSigner interface {
	// FeePayerAddresses returns every address the facilitator is willing
	// to sign fee-payer transactions as.
	FeePayerAddresses() []algotypes.Address

	// SignTransaction signs an unsigned fee-payer transaction whose
	// Sender is one of FeePayerAddresses, returning the msgpack-encoded
	// SignedTxn bytes.
	SignTransaction(ctx context.Context, txn algotypes.Transaction) ([]byte, error)
}

// SimulateResult reports the outcome of a node-side dry run of a
// transaction group.
type SimulateResult struct {
	// Failed is true if any transaction in the group would fail.
	Failed bool
	// FailureMessage carries the node's reported failure reason when Failed.
	FailureMessage string
}

// NodeClient is the abstract Algorand node/indexer surface the facilitator
// needs: current round, opt-in checks, simulation, submission, and
// confirmation. Concrete implementations wrap algod (and optionally an
// indexer) behind this interface so the core never imports an HTTP client
// directly.
type NodeClient interface {
	// CurrentRound returns the node's last confirmed round.
	CurrentRound(ctx context.Context) (uint64, error)

	// SuggestedFeePerByte returns the node's current suggested fee per
	// byte, used to judge whether a fee-payer transaction's flat fee is
	// reasonable relative to network conditions (informational only;
	// MaxReasonableFee is the hard ceiling).
	SuggestedFeePerByte(ctx context.Context) (uint64, error)

	// AssetOptedIn reports whether address has opted into asset assetID.
	AssetOptedIn(ctx context.Context, address algotypes.Address, assetID uint64) (bool, error)

	// SimulateGroup dry-runs a fully-populated signed group (unsigned
	// fee-payer entries wrapped with an empty/simulate signature by the
	// caller) and reports whether every transaction would succeed.
	SimulateGroup(ctx context.Context, signedGroup [][]byte) (SimulateResult, error)

	// SubmitGroup broadcasts a fully-signed group (concatenated msgpack
	// bytes in group order) and returns the id of the payment
	// transaction (the entry at paymentIndex).
	SubmitGroup(ctx context.Context, signedGroup [][]byte, paymentIndex int) (txID string, err error)

	// WaitForConfirmation blocks until txID is included or maxRounds pass.
	WaitForConfirmation(ctx context.Context, txID string, maxRounds uint64) error
}

// SuggestedParams carries the network parameters a client needs to build a
// valid transaction group: the current fee, validity window, genesis
// metadata, and minimum fee.
type SuggestedParams struct {
	Fee             uint64
	MinFee          uint64
	FirstValid      uint64
	LastValid       uint64
	GenesisID       string
	GenesisHash     []byte
}

// ClientConfig holds optional node-backed services the client needs to
// build a transaction group (a fresh validity window is deterministic
// relative to the current round, but the round itself must come from the
// network).
type ClientConfig struct {
	// GetSuggestedParams fetches fresh network parameters from a node.
	GetSuggestedParams func(ctx context.Context) (SuggestedParams, error)
}
