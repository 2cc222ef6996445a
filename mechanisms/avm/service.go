package avm

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	x402 "github.com/x402-foundation/x402/go"
)

// ExactAvmService implements SchemeNetworkServer for AVM exact payments.
type ExactAvmService struct{}

// NewExactAvmService creates a new ExactAvmService.
func NewExactAvmService() *ExactAvmService {
	return &ExactAvmService{}
}

func (s *ExactAvmService) Scheme() string { return SchemeExact }

// ParsePrice parses a price and converts it to an asset amount, following
// the same pre-parsed-object / string / number fallbacks as
// mechanisms/svm.ExactSvmService.ParsePrice.
func (s *ExactAvmService) ParsePrice(price x402.Price, network x402.Network) (x402.AssetAmount, error) {
	networkStr := string(network)
	config, err := GetNetworkConfig(networkStr)
	if err != nil {
		return x402.AssetAmount{}, err
	}

	if priceMap, ok := price.(map[string]interface{}); ok {
		if amountVal, hasAmount := priceMap["amount"]; hasAmount {
			amountStr, ok := amountVal.(string)
			if !ok {
				return x402.AssetAmount{}, fmt.Errorf("amount must be a string")
			}
			asset := fmt.Sprintf("%d", config.DefaultAsset.ID)
			if assetVal, hasAsset := priceMap["asset"]; hasAsset {
				if assetStr, ok := assetVal.(string); ok {
					asset = assetStr
				}
			}
			extra := make(map[string]interface{})
			if extraVal, hasExtra := priceMap["extra"]; hasExtra {
				if extraMap, ok := extraVal.(map[string]interface{}); ok {
					extra = extraMap
				}
			}
			return x402.AssetAmount{Amount: amountStr, Asset: asset, Extra: extra}, nil
		}
	}

	if priceStr, ok := price.(string); ok {
		return s.parseStringPrice(priceStr, config)
	}

	switch v := price.(type) {
	case float64:
		return s.defaultAssetAmount(fmt.Sprintf("%.6f", v), config)
	case int:
		return s.defaultAssetAmount(strconv.Itoa(v), config)
	case int64:
		return s.defaultAssetAmount(strconv.FormatInt(v, 10), config)
	}

	return x402.AssetAmount{}, fmt.Errorf("invalid price format: %v", price)
}

func (s *ExactAvmService) defaultAssetAmount(amountStr string, config *NetworkConfig) (x402.AssetAmount, error) {
	amount, err := ParseAmount(amountStr, config.DefaultAsset.Decimals)
	if err != nil {
		return x402.AssetAmount{}, err
	}
	return x402.AssetAmount{
		Amount: strconv.FormatUint(amount, 10),
		Asset:  fmt.Sprintf("%d", config.DefaultAsset.ID),
		Extra:  make(map[string]interface{}),
	}, nil
}

func (s *ExactAvmService) parseStringPrice(priceStr string, config *NetworkConfig) (x402.AssetAmount, error) {
	cleanPrice := strings.TrimSpace(strings.TrimPrefix(priceStr, "$"))
	parts := strings.Fields(cleanPrice)

	if len(parts) == 2 {
		amountStr := parts[0]
		symbol := strings.ToUpper(parts[1])

		var assetInfo *AssetInfo
		if symbol == "USDC" || symbol == "USD" {
			assetInfo = &config.DefaultAsset
		} else {
			info, err := GetAssetInfo(config.CAIP2, symbol)
			if err != nil {
				return x402.AssetAmount{}, fmt.Errorf("unsupported asset: %s on network %s", symbol, config.CAIP2)
			}
			assetInfo = info
		}

		amount, err := ParseAmount(amountStr, assetInfo.Decimals)
		if err != nil {
			return x402.AssetAmount{}, err
		}
		return x402.AssetAmount{
			Amount: strconv.FormatUint(amount, 10),
			Asset:  fmt.Sprintf("%d", assetInfo.ID),
			Extra:  make(map[string]interface{}),
		}, nil
	}

	if len(parts) == 1 {
		return s.defaultAssetAmount(parts[0], config)
	}

	return x402.AssetAmount{}, fmt.Errorf(
		"invalid price format: %s. Must specify currency (e.g., \"0.10 USDC\") or use simple number format",
		priceStr,
	)
}

// EnhancePaymentRequirements merges supportedKind.Extra (feePayer, decimals,
// and any extension keys) into requirements.Extra, matching
// mechanisms/svm.ExactSvmService.EnhancePaymentRequirements.
func (s *ExactAvmService) EnhancePaymentRequirements(
	ctx context.Context,
	requirements x402.PaymentRequirements,
	supportedKind x402.SupportedKind,
	extensionKeys []string,
) (x402.PaymentRequirements, error) {
	_ = ctx
	if supportedKind.X402Version != 2 {
		return requirements, fmt.Errorf("v2 only supports x402 version 2")
	}

	networkStr := string(requirements.Network)
	config, err := GetNetworkConfig(networkStr)
	if err != nil {
		return requirements, err
	}

	var assetInfo *AssetInfo
	if requirements.Asset != "" {
		assetInfo, err = GetAssetInfo(networkStr, requirements.Asset)
		if err != nil {
			return requirements, err
		}
	} else {
		assetInfo = &config.DefaultAsset
		requirements.Asset = fmt.Sprintf("%d", assetInfo.ID)
	}

	if requirements.Amount != "" && strings.Contains(requirements.Amount, ".") {
		amount, err := ParseAmount(requirements.Amount, assetInfo.Decimals)
		if err != nil {
			return requirements, fmt.Errorf("failed to parse amount: %w", err)
		}
		requirements.Amount = strconv.FormatUint(amount, 10)
	}

	if requirements.Extra == nil {
		requirements.Extra = make(map[string]interface{})
	}

	if supportedKind.Extra != nil {
		if feePayer, ok := supportedKind.Extra["feePayer"]; ok {
			requirements.Extra["feePayer"] = feePayer
		}
		for _, key := range extensionKeys {
			if val, ok := supportedKind.Extra[key]; ok {
				requirements.Extra[key] = val
			}
		}
	}
	if _, ok := requirements.Extra["decimals"]; !ok {
		requirements.Extra["decimals"] = assetInfo.Decimals
	}

	return requirements, nil
}
