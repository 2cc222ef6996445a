// Package svm provides V2 SVM (Solana Virtual Machine) blockchain support for the x402 payment protocol.
// It implements the exact payment scheme using SPL Token TransferChecked instructions.
// For V1 support, use the v1 subpackage.
package svm

import (
	"context"
	"encoding/json"

	x402 "github.com/x402-foundation/x402/go"
)

// Register registers all V2 SVM mechanism implementations with the x402 client, facilitator, and server
func Register(
	client *x402.X402Client,
	facilitator *x402.X402Facilitator,
	server *x402.X402ResourceServer,
	signer interface{},
	networks []string,
) error {
	var clientSigner ClientSvmSigner
	var facilitatorSigner FacilitatorSvmSigner

	if s, ok := signer.(ClientSvmSigner); ok {
		clientSigner = s
	}
	if s, ok := signer.(FacilitatorSvmSigner); ok {
		facilitatorSigner = s
	}

	if len(networks) == 0 {
		for network := range NetworkConfigs {
			networks = append(networks, network)
		}
	}

	if client != nil && clientSigner != nil {
		svmClient := NewExactSvmClient(clientSigner, nil)
		for _, network := range networks {
			if IsValidNetwork(network) {
				client.RegisterScheme(x402.Network(network), svmClient)
			}
		}
	}

	if facilitator != nil && facilitatorSigner != nil {
		svmFacilitator := NewExactSvmFacilitator(facilitatorSigner)
		for _, network := range networks {
			if IsValidNetwork(network) {
				facilitator.RegisterScheme(x402.Network(network), svmFacilitator)
			}
		}
	}

	// Server registration is done via RegisterServer(), which returns options
	// consumed at server construction time.
	_ = server

	return nil
}

// RegisterClient registers the V2 SVM client implementation
func RegisterClient(client *x402.X402Client, signer ClientSvmSigner, networks ...string) error {
	return Register(client, nil, nil, signer, networks)
}

// RegisterFacilitator registers the V2 SVM facilitator implementation
func RegisterFacilitator(facilitator *x402.X402Facilitator, signer FacilitatorSvmSigner, networks ...string) error {
	return Register(nil, facilitator, nil, signer, networks)
}

// RegisterServer returns the options to register the V2 SVM server implementation
func RegisterServer(networks ...string) []x402.ResourceServerOption {
	svmServer := NewExactSvmService()
	opts := []x402.ResourceServerOption{}

	if len(networks) == 0 {
		for network := range NetworkConfigs {
			networks = append(networks, network)
		}
	}

	for _, network := range networks {
		if IsValidNetwork(network) {
			opts = append(opts, x402.WithSchemeServer(x402.Network(network), svmServer))
		}
	}

	return opts
}

// CreateExactPayload is a helper to create a V2 exact SVM payment payload.
// Bridge helper: keeps struct API, marshals internally.
func CreateExactPayload(
	ctx context.Context,
	signer ClientSvmSigner,
	requirements x402.PaymentRequirements,
	version int,
) (x402.PartialPaymentPayload, error) {
	client := NewExactSvmClient(signer, nil)

	reqBytes, err := json.Marshal(requirements)
	if err != nil {
		return x402.PartialPaymentPayload{}, err
	}

	payloadBytes, err := client.CreatePaymentPayload(ctx, version, reqBytes)
	if err != nil {
		return x402.PartialPaymentPayload{}, err
	}

	var partial x402.PartialPaymentPayload
	if err := json.Unmarshal(payloadBytes, &partial); err != nil {
		return x402.PartialPaymentPayload{}, err
	}
	return partial, nil
}

// VerifyExactPayload is a helper to verify a V2 exact SVM payment payload.
// Bridge helper: keeps struct API, marshals internally.
func VerifyExactPayload(
	ctx context.Context,
	signer FacilitatorSvmSigner,
	payload x402.PaymentPayload,
	requirements x402.PaymentRequirements,
) (x402.VerifyResponse, error) {
	facilitator := NewExactSvmFacilitator(signer)

	payloadBytes, _ := json.Marshal(payload)
	requirementsBytes, _ := json.Marshal(requirements)

	return facilitator.Verify(ctx, payload.X402Version, payloadBytes, requirementsBytes)
}

// SettleExactPayload is a helper to settle a V2 exact SVM payment payload.
// Bridge helper: keeps struct API, marshals internally.
func SettleExactPayload(
	ctx context.Context,
	signer FacilitatorSvmSigner,
	payload x402.PaymentPayload,
	requirements x402.PaymentRequirements,
) (x402.SettleResponse, error) {
	facilitator := NewExactSvmFacilitator(signer)

	payloadBytes, _ := json.Marshal(payload)
	requirementsBytes, _ := json.Marshal(requirements)

	return facilitator.Settle(ctx, payload.X402Version, payloadBytes, requirementsBytes)
}
