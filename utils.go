package x402

import "fmt"

// ValidatePaymentPayload checks that a payload carries the routing fields
// required for registry lookup before any mechanism-specific validation
// runs.
func ValidatePaymentPayload(p PaymentPayload) error {
	if p.X402Version != 1 && p.X402Version != 2 {
		return fmt.Errorf("%s: x402Version %d", ErrCodeUnsupportedVersion, p.X402Version)
	}
	scheme, network := p.Scheme, p.Network
	if p.X402Version == 2 {
		scheme, network = p.Accepted.Scheme, string(p.Accepted.Network)
	}
	if scheme == "" {
		return fmt.Errorf("%s: missing scheme", ErrCodeMalformedHeader)
	}
	if network == "" {
		return fmt.Errorf("%s: missing network", ErrCodeMalformedHeader)
	}
	if p.Payload == nil {
		return fmt.Errorf("%s: missing payload", ErrCodeMalformedHeader)
	}
	return nil
}

// ValidatePaymentRequirements checks that requirements carry the fields a
// client needs to construct a payload.
func ValidatePaymentRequirements(r PaymentRequirements) error {
	if r.Scheme == "" {
		return fmt.Errorf("%s: missing scheme", ErrCodeMalformedHeader)
	}
	if r.Network == "" {
		return fmt.Errorf("%s: missing network", ErrCodeMalformedHeader)
	}
	if r.amount() == "" {
		return fmt.Errorf("%s: missing amount", ErrCodeMalformedHeader)
	}
	if r.PayTo == "" {
		return fmt.Errorf("%s: missing payTo", ErrCodeMalformedHeader)
	}
	return nil
}
