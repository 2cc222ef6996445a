package evm

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
	"regexp"
	"strings"
	"time"
)

var addressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// IsValidAddress reports whether address looks like a 20-byte hex Ethereum address.
func IsValidAddress(address string) bool {
	return addressPattern.MatchString(address)
}

// IsValidNetwork reports whether network (CAIP-2 or legacy flat name) is
// one of the chains this package carries default asset configuration for.
func IsValidNetwork(network string) bool {
	_, ok := NetworkConfigs[network]
	return ok
}

// GetNetworkConfig looks up the chain configuration for network.
func GetNetworkConfig(network string) (*NetworkConfig, error) {
	cfg, ok := NetworkConfigs[network]
	if !ok {
		return nil, fmt.Errorf("unsupported network: %s", network)
	}
	return &cfg, nil
}

// GetAssetInfo resolves an asset identifier (a contract address or a
// known symbol such as "USDC") to its AssetInfo for network.
func GetAssetInfo(network string, asset string) (*AssetInfo, error) {
	config, err := GetNetworkConfig(network)
	if err != nil {
		return nil, err
	}

	if asset == "" || strings.EqualFold(asset, config.DefaultAsset.Address) {
		return &config.DefaultAsset, nil
	}

	upper := strings.ToUpper(asset)
	if upper == "USDC" || upper == "USD" {
		return &config.DefaultAsset, nil
	}

	if info, ok := config.SupportedAssets[upper]; ok {
		return &info, nil
	}
	for _, info := range config.SupportedAssets {
		if strings.EqualFold(info.Address, asset) {
			return &info, nil
		}
	}

	if IsValidAddress(asset) {
		// Unknown ERC-20, accept the address as-is with default decimals.
		return &AssetInfo{Address: asset, Decimals: DefaultDecimals}, nil
	}

	return nil, fmt.Errorf("unsupported asset: %s on network %s", asset, network)
}

// CreateNonce generates a fresh 32-byte EIP-3009 nonce as a 0x-prefixed hex string.
func CreateNonce() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("create nonce: %w", err)
	}
	return BytesToHex(buf), nil
}

// CreateValidityWindow returns a [validAfter, validBefore) pair bracketing
// now, with validBefore = now + window.
func CreateValidityWindow(window time.Duration) (validAfter, validBefore *big.Int) {
	now := time.Now().Unix()
	return big.NewInt(now - 1), big.NewInt(now + int64(window.Seconds()))
}

// BytesToHex renders b as a 0x-prefixed lowercase hex string.
func BytesToHex(b []byte) string {
	return "0x" + hex.EncodeToString(b)
}

// HexToBytes parses a 0x-prefixed (or bare) hex string into bytes.
func HexToBytes(s string) ([]byte, error) {
	s = strings.TrimPrefix(s, "0x")
	s = strings.TrimPrefix(s, "0X")
	return hex.DecodeString(s)
}

// ParseAmount converts a decimal string amount (e.g. "1.50") into its
// integer base-unit representation at the given decimals, using string
// arithmetic so values like "0.1" never pick up binary-float drift.
func ParseAmount(amount string, decimals int) (*big.Int, error) {
	amount = strings.TrimSpace(amount)
	if amount == "" {
		return nil, fmt.Errorf("parse amount: empty string")
	}

	neg := false
	if strings.HasPrefix(amount, "-") {
		neg = true
		amount = amount[1:]
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
		return nil, fmt.Errorf("parse amount: %q has more than %d decimal places", amount, decimals)
	}
	fracPart = fracPart + strings.Repeat("0", decimals-len(fracPart))

	digits := intPart + fracPart
	result, ok := new(big.Int).SetString(digits, 10)
	if !ok {
		return nil, fmt.Errorf("parse amount: cannot parse %q", amount)
	}
	if neg {
		result.Neg(result)
	}
	return result, nil
}

// FormatAmount renders a base-unit integer amount as a decimal string at
// the given decimals, trimming trailing fractional zeros.
func FormatAmount(amount *big.Int, decimals int) string {
	if decimals <= 0 {
		return amount.String()
	}
	neg := amount.Sign() < 0
	abs := new(big.Int).Abs(amount)
	digits := abs.String()
	for len(digits) <= decimals {
		digits = "0" + digits
	}
	intPart := digits[:len(digits)-decimals]
	fracPart := strings.TrimRight(digits[len(digits)-decimals:], "0")

	out := intPart
	if fracPart != "" {
		out += "." + fracPart
	}
	if neg {
		out = "-" + out
	}
	return out
}
