package svm

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
)

var errMissingTransaction = errors.New("svm exact: missing transaction field")

// IsValidNetwork reports whether network (CAIP-2 or legacy flat name) is a
// cluster this package carries default asset configuration for.
func IsValidNetwork(network string) bool {
	_, ok := NetworkConfigs[network]
	return ok
}

// GetNetworkConfig looks up the cluster configuration for network.
func GetNetworkConfig(network string) (*NetworkConfig, error) {
	cfg, ok := NetworkConfigs[network]
	if !ok {
		return nil, fmt.Errorf("unsupported network: %s", network)
	}
	return &cfg, nil
}

// GetAssetInfo resolves a mint address or known symbol ("USDC") to its
// AssetInfo for network.
func GetAssetInfo(network string, asset string) (*AssetInfo, error) {
	config, err := GetNetworkConfig(network)
	if err != nil {
		return nil, err
	}

	if asset == "" || asset == config.DefaultAsset.Address {
		return &config.DefaultAsset, nil
	}

	upper := strings.ToUpper(asset)
	if upper == "USDC" || upper == "USD" {
		return &config.DefaultAsset, nil
	}

	if info, ok := config.SupportedAssets[upper]; ok {
		return &info, nil
	}

	// Unknown mint: accept the base58 address as-is with default decimals.
	return &AssetInfo{Address: asset, Decimals: DefaultDecimals}, nil
}

// ParseAmount converts a decimal string amount into its base-unit integer
// representation at the given decimals, using string arithmetic to avoid
// binary-float drift.
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
