package avm

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/algorand/go-algorand-sdk/v2/crypto"
	"github.com/algorand/go-algorand-sdk/v2/encoding/msgpack"
	algotypes "github.com/algorand/go-algorand-sdk/v2/types"
)

var (
	errEmptyPaymentGroup   = errors.New("avm exact: paymentGroup is empty or malformed")
	errMissingPaymentIndex = errors.New("avm exact: paymentIndex is missing or not a number")
)

// IsValidNetwork reports whether network (CAIP-2 or legacy flat name) is a
// network this package carries default asset configuration for.
func IsValidNetwork(network string) bool {
	_, ok := NetworkConfigs[network]
	return ok
}

// GetNetworkConfig looks up the network configuration for network.
func GetNetworkConfig(network string) (*NetworkConfig, error) {
	cfg, ok := NetworkConfigs[network]
	if !ok {
		return nil, fmt.Errorf("unsupported network: %s", network)
	}
	return &cfg, nil
}

// GetAssetInfo resolves an asset id (as a decimal string) or known symbol
// ("USDC") to its AssetInfo for network.
func GetAssetInfo(network string, asset string) (*AssetInfo, error) {
	config, err := GetNetworkConfig(network)
	if err != nil {
		return nil, err
	}

	if asset == "" {
		return &config.DefaultAsset, nil
	}

	upper := strings.ToUpper(asset)
	if upper == "USDC" || upper == "USD" {
		return &config.DefaultAsset, nil
	}
	if info, ok := config.SupportedAssets[upper]; ok {
		return &info, nil
	}

	if id, ok := new(big.Int).SetString(asset, 10); ok {
		if id.Cmp(new(big.Int).SetUint64(config.DefaultAsset.ID)) == 0 {
			return &config.DefaultAsset, nil
		}
		return &AssetInfo{ID: id.Uint64(), Decimals: DefaultDecimals}, nil
	}

	return nil, fmt.Errorf("avm exact: invalid asset id: %s", asset)
}

// ParseAmount converts a decimal string amount into its base-unit integer
// representation at the given decimals, using string arithmetic to avoid
// binary-float drift, matching mechanisms/svm.ParseAmount.
func ParseAmount(amount string, decimals int) (uint64, error) {
	amount = strings.TrimSpace(amount)
	if amount == "" {
		return 0, fmt.Errorf("parse amount: empty string")
	}

	intPart := amount
	fracPart := ""
	if idx := strings.IndexByte(amount, '.'); idx >= 0 {
		intPart = amount[:idx]
		fracPart = amount[idx+1:]
	}
	if intPart == "" {
		intPart = "0"
	}
	if len(fracPart) > decimals {
		return 0, fmt.Errorf("parse amount: %q has more than %d decimal places", amount, decimals)
	}
	fracPart = fracPart + strings.Repeat("0", decimals-len(fracPart))

	digits := intPart + fracPart
	result, ok := new(big.Int).SetString(digits, 10)
	if !ok {
		return 0, fmt.Errorf("parse amount: cannot parse %q", amount)
	}
	if !result.IsUint64() {
		return 0, fmt.Errorf("parse amount: %q overflows uint64", amount)
	}
	return result.Uint64(), nil
}

// FormatAmount renders a base-unit integer amount as a decimal string at
// the given decimals, trimming trailing fractional zeros.
func FormatAmount(amount uint64, decimals int) string {
	if decimals <= 0 {
		return fmt.Sprintf("%d", amount)
	}
	digits := fmt.Sprintf("%d", amount)
	for len(digits) <= decimals {
		digits = "0" + digits
	}
	intPart := digits[:len(digits)-decimals]
	fracPart := strings.TrimRight(digits[len(digits)-decimals:], "0")
	if fracPart == "" {
		return intPart
	}
	return intPart + "." + fracPart
}

// decodedEntry is one decoded entry of a paymentGroup: either a fully
// signed transaction, or an unsigned transaction awaiting a fee-payer
// signature.
type decodedEntry struct {
	Txn    algotypes.Transaction
	Signed bool
	Stxn   algotypes.SignedTxn // valid iff Signed
}

// decodeGroupEntry decodes one base64-msgpack group entry. It first tries
// to decode as a SignedTxn; if the embedded Txn is zero-valued (msgpack
// omits empty fields, so an all-unsigned blob decodes as a SignedTxn with
// an empty Sig/Msig/Lsig and a populated Txn), it is reported unsigned
// only when none of Sig/Msig/Lsig carry content.
func decodeGroupEntry(raw []byte) (decodedEntry, error) {
	var stxn algotypes.SignedTxn
	if err := msgpack.Decode(raw, &stxn); err != nil {
		return decodedEntry{}, fmt.Errorf("%s: %w", ErrInvalidTransactionEncoding, err)
	}

	signed := stxn.Sig != (algotypes.Signature{}) || len(stxn.Msig.Subsigs) > 0 || len(stxn.Lsig.Logic) > 0
	return decodedEntry{Txn: stxn.Txn, Signed: signed, Stxn: stxn}, nil
}

// groupID computes the shared group id of a transaction group by delegating
// to the SDK's own implementation, after stripping any group id already
// stamped on the inputs (ComputeGroupID requires ungrouped transactions).
func groupID(txns []algotypes.Transaction) (algotypes.Digest, error) {
	stripped := make([]algotypes.Transaction, len(txns))
	for i, t := range txns {
		stripped[i] = t
		stripped[i].Group = algotypes.Digest{}
	}
	return crypto.ComputeGroupID(stripped)
}
