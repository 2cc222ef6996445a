// Package avm provides AVM (Algorand Virtual Machine) blockchain support
// for the x402 payment protocol. It implements the exact payment scheme
// using atomic transaction groups, with optional pooled-fee sponsorship
// by a facilitator-controlled fee payer.
package avm

import (
	x402 "github.com/x402-foundation/x402/go"
)

// Register registers AVM mechanism implementations with the x402 client,
// facilitator, and server, mirroring mechanisms/svm.Register.
func Register(
	client *x402.X402Client,
	facilitator *x402.X402Facilitator,
	server *x402.X402ResourceServer,
	clientSigner ClientAvmSigner,
	facilitatorSigner FacilitatorAvmSigner,
	node NodeClient,
	networks []string,
) error {
	if len(networks) == 0 {
		for network := range NetworkConfigs {
			networks = append(networks, network)
		}
	}

	if client != nil && clientSigner != nil {
		avmClient := NewExactAvmClient(clientSigner)
		for _, network := range networks {
			if IsValidNetwork(network) {
				client.RegisterScheme(x402.Network(network), avmClient)
			}
		}
	}

	if facilitator != nil && facilitatorSigner != nil && node != nil {
		avmFacilitator := NewExactAvmFacilitator(facilitatorSigner, node)
		for _, network := range networks {
			if IsValidNetwork(network) {
				facilitator.RegisterScheme(x402.Network(network), avmFacilitator)
			}
		}
	}

	_ = server

	return nil
}

// RegisterClient registers the AVM client implementation.
func RegisterClient(client *x402.X402Client, signer ClientAvmSigner, networks ...string) error {
	return Register(client, nil, nil, signer, nil, nil, networks)
}

// RegisterFacilitator registers the AVM facilitator implementation.
func RegisterFacilitator(facilitator *x402.X402Facilitator, signer FacilitatorAvmSigner, node NodeClient, networks ...string) error {
	return Register(nil, facilitator, nil, nil, signer, node, networks)
}

// RegisterServer returns the options to register the AVM server implementation.
func RegisterServer(networks ...string) []x402.ResourceServerOption {
	avmServer := NewExactAvmService()
	opts := []x402.ResourceServerOption{}

	if len(networks) == 0 {
		for network := range NetworkConfigs {
			networks = append(networks, network)
		}
	}

	for _, network := range networks {
		if IsValidNetwork(network) {
			opts = append(opts, x402.WithSchemeServer(x402.Network(network), avmServer))
		}
	}

	return opts
}
