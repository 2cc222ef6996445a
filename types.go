// Package x402 implements the x402 HTTP payment protocol: a client engine
// that builds signed payment payloads, a resource-server engine that gates
// HTTP resources behind a 402 challenge, and a facilitator engine that
// verifies and settles payments on-chain across EVM, SVM and AVM families.
package x402

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Protocol version identifiers. v1 carries scheme/network at the top level
// and an opaque payload map; v2 nests scheme/network inside an "accepted"
// requirements block and adds resource/extensions. The two are never
// mixed: a v1 payload is only ever matched against a v1 registry, and
// likewise v2. ProtocolVersion is the current default version new code
// should target.
const (
	ProtocolVersionV1 = 1
	ProtocolVersion   = 2
)

// Network represents a blockchain network identifier in CAIP-2 format
// Format: namespace:reference (e.g., "eip155:1" for Ethereum mainnet)
type Network string

// Parse splits the network into namespace and reference components
func (n Network) Parse() (namespace, reference string, err error) {
	parts := strings.Split(string(n), ":")
	if len(parts) != 2 {
		return "", "", fmt.Errorf("invalid network format: %s", n)
	}
	return parts[0], parts[1], nil
}

// Match checks if this network matches a pattern (supports wildcards)
// e.g., "eip155:1" matches "eip155:*" and "eip155:*" matches "eip155:1"
func (n Network) Match(pattern Network) bool {
	if n == pattern {
		return true
	}

	nStr := string(n)
	patternStr := string(pattern)

	if strings.HasSuffix(patternStr, ":*") {
		prefix := strings.TrimSuffix(patternStr, "*")
		return strings.HasPrefix(nStr, prefix)
	}

	if strings.HasSuffix(nStr, ":*") {
		prefix := strings.TrimSuffix(nStr, "*")
		return strings.HasPrefix(patternStr, prefix)
	}

	return false
}

// specificity returns how specific a network pattern is: an exact CAIP-2
// or legacy flat name outranks a family wildcard. Used by Registry to
// resolve overlapping registrations deterministically.
func (n Network) specificity() int {
	if strings.HasSuffix(string(n), ":*") {
		return 0
	}
	return 1
}

// Price represents a price that can be specified in various formats
type Price interface{}

// AssetAmount represents an amount of a specific asset
type AssetAmount struct {
	Asset  string                 `json:"asset"`
	Amount string                 `json:"amount"`
	Extra  map[string]interface{} `json:"extra,omitempty"`
}

// PaymentRequirements defines what payment is acceptable for a resource
type PaymentRequirements struct {
	Scheme            string                 `json:"scheme"`
	Network           Network                `json:"network"`
	Asset             string                 `json:"asset"`
	Amount            string                 `json:"amount"`                      // v2 field
	MaxAmountRequired string                 `json:"maxAmountRequired,omitempty"` // v1 compatibility field
	PayTo             string                 `json:"payTo"`
	MaxTimeoutSeconds int                    `json:"maxTimeoutSeconds"`
	Extra             map[string]interface{} `json:"extra,omitempty"`
}

// amount returns Amount, falling back to the v1 MaxAmountRequired field.
func (r PaymentRequirements) amount() string {
	if r.Amount != "" {
		return r.Amount
	}
	return r.MaxAmountRequired
}

// PartialPaymentPayload contains the minimal payment data from mechanism clients
// This is what SchemeNetworkClient.CreatePaymentPayload returns
type PartialPaymentPayload struct {
	X402Version int                    `json:"x402Version"`
	Payload     map[string]interface{} `json:"payload"`
}

// PaymentPayload contains the signed payment authorization from a client
type PaymentPayload struct {
	X402Version int                    `json:"x402Version"`
	Payload     map[string]interface{} `json:"payload"`
	Accepted    PaymentRequirements    `json:"accepted"`          // V2: scheme/network in accepted
	Scheme      string                 `json:"scheme,omitempty"`  // V1: scheme at top level
	Network     string                 `json:"network,omitempty"` // V1: network at top level
	Resource    *ResourceInfo          `json:"resource,omitempty"`
	Extensions  map[string]interface{} `json:"extensions,omitempty"`
}

// ResourceInfo describes the resource being accessed
type ResourceInfo struct {
	URL         string `json:"url"`
	Description string `json:"description"`
	MimeType    string `json:"mimeType"`
}

// PaymentRequired is the 402 response sent to clients
type PaymentRequired struct {
	X402Version int                    `json:"x402Version"`
	Error       string                 `json:"error,omitempty"`
	Resource    *ResourceInfo          `json:"resource,omitempty"`
	Accepts     []PaymentRequirements  `json:"accepts"`
	Extensions  map[string]interface{} `json:"extensions,omitempty"`
}

// VerifyRequest contains the payment to verify
type VerifyRequest struct {
	PaymentPayload      PaymentPayload      `json:"paymentPayload"`
	PaymentRequirements PaymentRequirements `json:"paymentRequirements"`
}

// VerifyResponse contains the verification result
type VerifyResponse struct {
	IsValid       bool   `json:"isValid"`
	InvalidReason string `json:"invalidReason,omitempty"`
	Payer         string `json:"payer,omitempty"`
}

// SettleRequest contains the payment to settle
type SettleRequest struct {
	PaymentPayload      PaymentPayload      `json:"paymentPayload"`
	PaymentRequirements PaymentRequirements `json:"paymentRequirements"`
}

// SettleResponse contains the settlement result
type SettleResponse struct {
	Success     bool    `json:"success"`
	ErrorReason string  `json:"errorReason,omitempty"`
	Payer       string  `json:"payer,omitempty"`
	Transaction string  `json:"transaction"`
	Network     Network `json:"network"`
}

// SupportedKind represents a single supported payment configuration
type SupportedKind struct {
	X402Version int                    `json:"x402Version"`
	Scheme      string                 `json:"scheme"`
	Network     Network                `json:"network"`
	Extra       map[string]interface{} `json:"extra,omitempty"`
}

// SupportedResponse describes what payment kinds a facilitator supports
type SupportedResponse struct {
	Kinds      []SupportedKind `json:"kinds"`
	Extensions []string        `json:"extensions"`
}

// ResourceConfig defines payment configuration for a protected resource
type ResourceConfig struct {
	Scheme            string  `json:"scheme"`
	PayTo             string  `json:"payTo"`
	Price             Price   `json:"price"`
	Network           Network `json:"network"`
	MaxTimeoutSeconds int     `json:"maxTimeoutSeconds,omitempty"`
}

// DeepEqual performs deep equality check on payment requirements
func DeepEqual(a, b interface{}) bool {
	aJSON, err := json.Marshal(a)
	if err != nil {
		return false
	}
	bJSON, err := json.Marshal(b)
	if err != nil {
		return false
	}

	var aNorm, bNorm interface{}
	if err := json.Unmarshal(aJSON, &aNorm); err != nil {
		return false
	}
	if err := json.Unmarshal(bJSON, &bNorm); err != nil {
		return false
	}

	aNormJSON, _ := json.Marshal(aNorm)
	bNormJSON, _ := json.Marshal(bNorm)

	return string(aNormJSON) == string(bNormJSON)
}

// requirementsInfo carries the routing keys extracted from a raw wire
// payload or requirements block, independent of protocol version.
type requirementsInfo struct {
	Version int
	Scheme  string
	Network Network
}

// DetectVersion inspects a raw JSON payload/requirements block and reports
// whether it is shaped like a v1 or v2 object. v1 objects carry "scheme"
// and "network" at the top level; v2 objects nest them under "accepted".
// It also accepts an explicit top-level "x402Version" field when present,
// which takes precedence over shape sniffing.
func DetectVersion(raw []byte) (int, error) {
	var probe struct {
		X402Version int             `json:"x402Version"`
		Scheme      string          `json:"scheme"`
		Network     string          `json:"network"`
		Accepted    json.RawMessage `json:"accepted"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return 0, fmt.Errorf("detect version: %w", err)
	}
	switch probe.X402Version {
	case 1:
		return ProtocolVersionV1, nil
	case 2:
		return ProtocolVersionV2, nil
	}
	if len(probe.Accepted) > 0 {
		return ProtocolVersionV2, nil
	}
	if probe.Scheme != "" || probe.Network != "" {
		return ProtocolVersionV1, nil
	}
	return 0, fmt.Errorf("detect version: unrecognized payload shape")
}

// ExtractRequirementsInfo pulls the scheme/network routing keys out of a
// raw PaymentPayload or PaymentRequirements JSON blob, independent of
// protocol version, for use by registry lookups.
func ExtractRequirementsInfo(raw []byte) (requirementsInfo, error) {
	version, err := DetectVersion(raw)
	if err != nil {
		return requirementsInfo{}, err
	}

	switch version {
	case ProtocolVersionV1:
		var v1 struct {
			Scheme  string `json:"scheme"`
			Network string `json:"network"`
		}
		if err := json.Unmarshal(raw, &v1); err != nil {
			return requirementsInfo{}, fmt.Errorf("extract v1 requirements info: %w", err)
		}
		return requirementsInfo{Version: ProtocolVersionV1, Scheme: v1.Scheme, Network: Network(v1.Network)}, nil
	default:
		var v2 struct {
			Scheme   string `json:"scheme"`
			Network  string `json:"network"`
			Accepted struct {
				Scheme  string `json:"scheme"`
				Network string `json:"network"`
			} `json:"accepted"`
		}
		if err := json.Unmarshal(raw, &v2); err != nil {
			return requirementsInfo{}, fmt.Errorf("extract v2 requirements info: %w", err)
		}
		scheme, network := v2.Accepted.Scheme, v2.Accepted.Network
		if scheme == "" {
			scheme = v2.Scheme
		}
		if network == "" {
			network = v2.Network
		}
		return requirementsInfo{Version: ProtocolVersionV2, Scheme: scheme, Network: Network(network)}, nil
	}
}

// MatchPayloadToRequirements reports whether a payload's scheme/network
// matches the requirements it was built against.
func MatchPayloadToRequirements(payload PaymentPayload, requirements PaymentRequirements) bool {
	scheme := payload.Scheme
	network := payload.Network
	if scheme == "" {
		scheme = payload.Accepted.Scheme
	}
	if network == "" {
		network = string(payload.Accepted.Network)
	}
	return scheme == requirements.Scheme && Network(network).Match(requirements.Network)
}

// NewVerifyError builds a failed VerifyResponse carrying the payer address
// known so far (if any) and a structured, wrapped invalid reason.
func NewVerifyError(reason string, payer string, network Network, cause error) (VerifyResponse, error) {
	var err error
	if cause != nil {
		err = fmt.Errorf("%s: %w", reason, cause)
	}
	return VerifyResponse{IsValid: false, InvalidReason: reason, Payer: payer}, err
}

// NewSettleError builds a failed SettleResponse for a given network/payer/
// transaction (transaction may be empty if settlement never broadcast).
func NewSettleError(reason string, payer string, network Network, transaction string, cause error) (SettleResponse, error) {
	var err error
	if cause != nil {
		err = fmt.Errorf("%s: %w", reason, cause)
	}
	return SettleResponse{Success: false, ErrorReason: reason, Payer: payer, Transaction: transaction, Network: network}, err
}
