package x402

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"
)

// defaultUSDCDecimals is the decimal precision used by DefaultMoneyParser's
// USD->USDC conversion when no registered MoneyParser claims a price.
const defaultUSDCDecimals = 6

// moneyParserChain runs a list of MoneyParsers in order, returning the
// first non-nil result. A parser signals "not applicable" by returning
// (nil, nil); returning a non-nil error aborts the chain immediately. If
// every parser declines, moneyParserChain returns (nil, nil) so the caller
// can fall back to the scheme handler's own ParsePrice, per spec.
func moneyParserChain(parsers []MoneyParser, amount float64, network Network) (*AssetAmount, error) {
	for _, parse := range parsers {
		if parse == nil {
			continue
		}
		result, err := parse(amount, network)
		if err != nil {
			return nil, fmt.Errorf("money parser: %w", err)
		}
		if result != nil {
			return result, nil
		}
	}
	return nil, nil
}

// moneyAmount extracts a decimal dollar amount from price if price is a
// Money value per spec.md §4.4 — a bare number, or a string optionally
// prefixed "$" or suffixed "USD"/"USDC" — rather than an explicit
// AssetAmount. The second return is false when price isn't Money-shaped,
// telling the caller to skip the parser chain entirely.
func moneyAmount(price Price) (float64, bool) {
	switch v := price.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		s := strings.TrimSpace(v)
		s = strings.TrimPrefix(s, "$")
		s = strings.TrimSuffix(s, "USDC")
		s = strings.TrimSuffix(s, "USD")
		s = strings.TrimSpace(s)
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// DefaultMoneyParser converts a decimal USD amount into USDC base units (6
// decimals) using exact decimal-string arithmetic, avoiding the drift
// float64 multiplication would introduce for values like 0.1 or 0.29. It
// implements the MoneyParser signature, so a resource server can register
// it explicitly via WithMoneyParser as a network-agnostic USD->USDC
// fallback ahead of (or instead of) a scheme handler's own ParsePrice.
func DefaultMoneyParser(amount float64, network Network) (*AssetAmount, error) {
	if amount < 0 {
		return nil, fmt.Errorf("default money parser: negative amount %v", amount)
	}

	baseUnits, err := decimalToBaseUnits(amount, defaultUSDCDecimals)
	if err != nil {
		return nil, fmt.Errorf("default money parser: %w", err)
	}

	return &AssetAmount{
		Asset:  "USDC",
		Amount: baseUnits.String(),
	}, nil
}

// decimalToBaseUnits converts a float64 decimal amount to an integer
// base-unit value at the given decimal precision, using string formatting
// (not float multiplication) to avoid binary-floating-point drift.
func decimalToBaseUnits(amount float64, decimals int) (*big.Int, error) {
	// %.*f renders amount with exactly `decimals` fractional digits,
	// rounding at the last representable binary digit rather than
	// accumulating error from amount * 10^decimals.
	formatted := fmt.Sprintf("%.*f", decimals, amount)

	neg := false
	if len(formatted) > 0 && formatted[0] == '-' {
		neg = true
		formatted = formatted[1:]
	}

	var intPart, fracPart string
	for i, c := range formatted {
		if c == '.' {
			intPart = formatted[:i]
			fracPart = formatted[i+1:]
			break
		}
	}
	if intPart == "" {
		intPart = formatted
	}

	digits := intPart + fracPart
	result, ok := new(big.Int).SetString(digits, 10)
	if !ok {
		return nil, fmt.Errorf("decimal to base units: cannot parse %q", formatted)
	}
	if neg {
		result.Neg(result)
	}
	return result, nil
}
