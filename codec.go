package x402

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// Header names used on the wire. PaymentSignatureHeader is the only header
// the engines ever emit; XPaymentHeader is accepted on input for backward
// compatibility with pre-rename clients but is never written.
const (
	PaymentRequiredHeader = "PAYMENT-REQUIRED"
	PaymentSignatureHeader = "PAYMENT-SIGNATURE"
	PaymentResponseHeader  = "PAYMENT-RESPONSE"
	XPaymentHeader         = "X-PAYMENT" // legacy, read-only
)

// EncodeHeader base64-encodes a JSON-marshaled value for use as an HTTP
// header value, per x402's header codec.
func EncodeHeader(v interface{}) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode header: marshal: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// DecodeHeader reverses EncodeHeader into v.
func DecodeHeader(value string, v interface{}) error {
	raw, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return fmt.Errorf("decode header: base64: %w", err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode header: unmarshal: %w", err)
	}
	return nil
}

// DecodeHeaderRaw base64-decodes a header value without unmarshaling it,
// so callers can run DetectVersion/ExtractRequirementsInfo against the
// raw JSON before committing to a concrete struct shape.
func DecodeHeaderRaw(value string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("decode header: base64: %w", err)
	}
	return raw, nil
}

// legacyNetworkAlias maps v1 flat network names to their canonical CAIP-2
// identifier, and vice versa via the reverse table built in init. Only
// networks with a documented legacy name are listed; networks introduced
// after the v1/v2 split (and every AVM network) are CAIP-2 only.
var legacyNetworkAlias = map[string]Network{
	"base":             "eip155:8453",
	"base-sepolia":     "eip155:84532",
	"solana":           "solana:5eykt4UsFv8P8NJdTREpY1vzqKqZKvdpKuc147dw2N9d",
	"solana-devnet":    "solana:EtWTRABZaYq6iMfeYKouRu166VU2xqa1",
	"algorand-mainnet": "algorand:wGHE2Pwdvd7S12BL5FaOP20EGYesN73ktiC1qzkkit8=",
	"algorand-testnet": "algorand:SGO1GKSzyE7IEPItTxCByw9x8FmnrCDexi9/cOUJOiI=",
}

var canonicalToLegacy = func() map[Network]string {
	m := make(map[Network]string, len(legacyNetworkAlias))
	for legacy, canon := range legacyNetworkAlias {
		m[canon] = legacy
	}
	return m
}()

// CanonicalizeNetwork resolves a v1 legacy flat network name to its CAIP-2
// form. If the identifier is already CAIP-2 (or has no registered legacy
// alias), it is returned unchanged.
func CanonicalizeNetwork(n Network) Network {
	if canon, ok := legacyNetworkAlias[string(n)]; ok {
		return canon
	}
	return n
}

// LegacyNetworkName returns the v1 flat name for a CAIP-2 network
// identifier, if one is registered. ok is false for networks with no
// legacy alias (e.g. any network introduced after the v1/v2 split).
func LegacyNetworkName(n Network) (name string, ok bool) {
	name, ok = canonicalToLegacy[n]
	return
}
