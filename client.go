package x402

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/x402-foundation/x402/go/types"
)

// X402Client manages payment mechanisms and creates payment payloads.
// This is used by applications that need to make payments (have wallets/signers).
type X402Client struct {
	mu sync.RWMutex

	// One ordered registry per protocol version, never mixed.
	schemes map[int]*Registry[SchemeNetworkClient]

	// Function to select payment requirements when multiple options exist
	requirementsSelector PaymentRequirementsSelector

	// Policies to filter/transform payment requirements
	policies []PaymentPolicy

	// Lifecycle hooks
	beforePaymentCreationHooks    []BeforePaymentCreationHook
	afterPaymentCreationHooks     []AfterPaymentCreationHook
	onPaymentCreationFailureHooks []OnPaymentCreationFailureHook
}

// PaymentRequirementsSelector chooses which payment option to use
type PaymentRequirementsSelector func(version int, requirements []PaymentRequirements) PaymentRequirements

// PaymentPolicy filters or transforms payment requirements
// Policies are applied in order before the selector chooses the final option
type PaymentPolicy func(version int, requirements []PaymentRequirements) []PaymentRequirements

// SchemeRegistration defines configuration for registering a payment scheme
type SchemeRegistration struct {
	// Network identifier (e.g., "eip155:8453", "solana:*")
	Network Network
	// The scheme client implementation
	Client SchemeNetworkClient
	// The x402 protocol version (defaults to 2)
	X402Version int
}

// X402ClientConfig holds configuration for creating an x402 client
type X402ClientConfig struct {
	Schemes                     []SchemeRegistration
	Policies                    []PaymentPolicy
	PaymentRequirementsSelector PaymentRequirementsSelector
}

// ClientOption configures the client
type ClientOption func(*X402Client)

// WithPaymentSelector sets a custom payment requirements selector
func WithPaymentSelector(selector PaymentRequirementsSelector) ClientOption {
	return func(c *X402Client) {
		c.requirementsSelector = selector
	}
}

// WithPolicy registers a payment policy at creation time
func WithPolicy(policy PaymentPolicy) ClientOption {
	return func(c *X402Client) {
		c.policies = append(c.policies, policy)
	}
}

// WithScheme registers a payment mechanism at creation time
func WithScheme(version int, network Network, client SchemeNetworkClient) ClientOption {
	return func(c *X402Client) {
		c.registerScheme(version, network, client)
	}
}

// Newx402Client creates a new x402 client
func Newx402Client(opts ...ClientOption) *X402Client {
	c := &X402Client{
		schemes:               make(map[int]*Registry[SchemeNetworkClient]),
		requirementsSelector:  defaultPaymentSelector,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Newx402ClientFromConfig creates an x402 client from a configuration object
func Newx402ClientFromConfig(config X402ClientConfig) *X402Client {
	selector := config.PaymentRequirementsSelector
	if selector == nil {
		selector = defaultPaymentSelector
	}

	c := &X402Client{
		schemes:              make(map[int]*Registry[SchemeNetworkClient]),
		requirementsSelector: selector,
	}

	for _, reg := range config.Schemes {
		version := reg.X402Version
		if version == 0 {
			version = ProtocolVersionV2
		}
		c.registerScheme(version, reg.Network, reg.Client)
	}

	c.policies = append(c.policies, config.Policies...)

	return c
}

// defaultPaymentSelector chooses the first available payment option. It is
// only ever invoked with a non-empty slice: SelectPaymentRequirements
// returns ErrCodeNoMutuallySupportedOption before calling it on an empty
// one.
func defaultPaymentSelector(version int, requirements []PaymentRequirements) PaymentRequirements {
	if len(requirements) == 0 {
		return PaymentRequirements{}
	}
	return requirements[0]
}

// RegisterScheme registers a payment mechanism for protocol v2
func (c *X402Client) RegisterScheme(network Network, client SchemeNetworkClient) *X402Client {
	return c.registerScheme(ProtocolVersionV2, network, client)
}

// RegisterSchemeV1 registers a payment mechanism for protocol v1
func (c *X402Client) RegisterSchemeV1(network Network, client SchemeNetworkClient) *X402Client {
	return c.registerScheme(ProtocolVersionV1, network, client)
}

// RegisterPolicy registers a policy to filter or transform payment requirements.
// Policies are applied in order after filtering by registered schemes and
// before the selector chooses the final payment requirement.
func (c *X402Client) RegisterPolicy(policy PaymentPolicy) *X402Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.policies = append(c.policies, policy)
	return c
}

// OnBeforePaymentCreation registers a hook to execute before payment payload creation.
// Can abort creation by returning a result with Abort=true.
func (c *X402Client) OnBeforePaymentCreation(hook BeforePaymentCreationHook) *X402Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.beforePaymentCreationHooks = append(c.beforePaymentCreationHooks, hook)
	return c
}

// OnAfterPaymentCreation registers a hook to execute after successful payment payload creation
func (c *X402Client) OnAfterPaymentCreation(hook AfterPaymentCreationHook) *X402Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.afterPaymentCreationHooks = append(c.afterPaymentCreationHooks, hook)
	return c
}

// OnPaymentCreationFailure registers a hook to execute when payment payload creation fails.
// Can recover from failure by returning a result with Recovered=true.
func (c *X402Client) OnPaymentCreationFailure(hook OnPaymentCreationFailureHook) *X402Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onPaymentCreationFailureHooks = append(c.onPaymentCreationFailureHooks, hook)
	return c
}

func (c *X402Client) registerScheme(version int, network Network, client SchemeNetworkClient) *X402Client {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.schemes[version] == nil {
		c.schemes[version] = NewRegistry[SchemeNetworkClient]()
	}
	c.schemes[version].Register(network, client.Scheme(), client)

	return c
}

// SelectPaymentRequirements chooses which payment requirements to use.
// This filters requirements to only those the client can fulfill.
// Selection process:
//  1. Filter by registered schemes (network + scheme support)
//  2. Apply all registered policies in order
//  3. Use selector to choose final requirement
func (c *X402Client) SelectPaymentRequirements(version int, requirements []PaymentRequirements) (PaymentRequirements, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	registry, exists := c.schemes[version]
	if !exists {
		return PaymentRequirements{}, &PaymentError{
			Code:    ErrCodeNoMutuallySupportedOption,
			Message: fmt.Sprintf("no schemes registered for x402 version %d", version),
		}
	}

	var supported []PaymentRequirements
	for _, req := range requirements {
		if _, ok := registry.Lookup(req.Network, req.Scheme); ok {
			supported = append(supported, req)
		}
	}

	if len(supported) == 0 {
		return PaymentRequirements{}, &PaymentError{
			Code:    ErrCodeNoMutuallySupportedOption,
			Message: "no supported payment schemes available",
			Details: map[string]interface{}{
				"version":      version,
				"requirements": requirements,
			},
		}
	}

	filtered := supported
	for _, policy := range c.policies {
		filtered = policy(version, filtered)
		if len(filtered) == 0 {
			return PaymentRequirements{}, &PaymentError{
				Code:    ErrCodeNoMutuallySupportedOption,
				Message: "all payment requirements were filtered out by policies",
				Details: map[string]interface{}{"version": version},
			}
		}
	}

	return c.requirementsSelector(version, filtered), nil
}

// CreatePaymentPayload creates a signed payment payload.
// For v2: mechanism returns partial, core wraps with accepted/resource/extensions.
// For v1: mechanism returns complete payload.
func (c *X402Client) CreatePaymentPayload(
	ctx context.Context,
	version int,
	requirementsBytes []byte,
	resource *types.ResourceInfoV2,
	extensions map[string]interface{},
) ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	info, err := ExtractRequirementsInfo(requirementsBytes)
	if err != nil {
		return nil, fmt.Errorf("create payment payload: %w", err)
	}

	registry, exists := c.schemes[version]
	if !exists {
		return nil, &PaymentError{
			Code:    ErrCodeUnsupportedVersion,
			Message: fmt.Sprintf("no schemes registered for x402 version %d", version),
		}
	}

	client, ok := registry.Lookup(info.Network, info.Scheme)
	if !ok {
		return nil, &PaymentError{
			Code:    ErrCodeUnsupportedScheme,
			Message: fmt.Sprintf("no client registered for scheme %s on network %s for version %d", info.Scheme, info.Network, version),
		}
	}

	payloadBytes, err := client.CreatePaymentPayload(ctx, version, requirementsBytes)
	if err != nil {
		return nil, fmt.Errorf("create payment payload: %w", err)
	}

	if version == 1 {
		return payloadBytes, nil
	}

	return c.wrapV2Payload(payloadBytes, requirementsBytes, resource, extensions)
}

// wrapV2Payload wraps a partial v2 payload with accepted/resource/extensions
func (c *X402Client) wrapV2Payload(
	partialPayloadBytes []byte,
	requirementsBytes []byte,
	resource *types.ResourceInfoV2,
	extensions map[string]interface{},
) ([]byte, error) {
	var partial types.PaymentPayloadV2
	if err := json.Unmarshal(partialPayloadBytes, &partial); err != nil {
		return nil, fmt.Errorf("wrap v2 payload: decode partial: %w", err)
	}

	requirements, err := types.ToPaymentRequirementsV2(requirementsBytes)
	if err != nil {
		return nil, fmt.Errorf("wrap v2 payload: %w", err)
	}

	complete := types.PaymentPayloadV2{
		X402Version: partial.X402Version,
		Payload:     partial.Payload,
		Accepted:    *requirements,
		Resource:    resource,
		Extensions:  extensions,
	}

	return json.Marshal(complete)
}

// RegisteredScheme describes one (network, scheme) registration.
type RegisteredScheme struct {
	Network Network
	Scheme  string
}

// GetRegisteredSchemes returns a list of registered schemes for debugging
func (c *X402Client) GetRegisteredSchemes() map[int][]RegisteredScheme {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make(map[int][]RegisteredScheme)
	for version, registry := range c.schemes {
		for _, key := range registry.Keys() {
			result[version] = append(result[version], RegisteredScheme{Network: key.Pattern, Scheme: key.Scheme})
		}
	}
	return result
}

// CanPay checks if the client can pay with any of the given requirements
func (c *X402Client) CanPay(version int, requirements []PaymentRequirements) bool {
	_, err := c.SelectPaymentRequirements(version, requirements)
	return err == nil
}

// CreatePaymentForRequired creates a payment for a PaymentRequired response.
// Bridge method: keeps struct API, uses bytes internally.
func (c *X402Client) CreatePaymentForRequired(ctx context.Context, required PaymentRequired) (PaymentPayload, error) {
	selected, err := c.SelectPaymentRequirements(required.X402Version, required.Accepts)
	if err != nil {
		return PaymentPayload{}, err
	}

	hookCtx := PaymentCreationContext{
		Ctx:                  ctx,
		PaymentRequired:      required,
		SelectedRequirements: selected,
	}

	c.mu.RLock()
	beforeHooks := append([]BeforePaymentCreationHook(nil), c.beforePaymentCreationHooks...)
	c.mu.RUnlock()

	for _, hook := range beforeHooks {
		result, _ := hook(hookCtx)
		if result != nil && result.Abort {
			return PaymentPayload{}, &PaymentError{Code: ErrCodeAbortedByHook, Message: result.Reason}
		}
	}

	var paymentPayload PaymentPayload
	var paymentErr error

	selectedBytes, err := json.Marshal(selected)
	if err != nil {
		paymentErr = err
	} else {
		var resourceV2 *types.ResourceInfoV2
		if required.Resource != nil {
			resourceV2 = &types.ResourceInfoV2{
				URL:         required.Resource.URL,
				Description: required.Resource.Description,
				MimeType:    required.Resource.MimeType,
			}
		}

		payloadBytes, err := c.CreatePaymentPayload(ctx, required.X402Version, selectedBytes, resourceV2, required.Extensions)
		if err != nil {
			paymentErr = err
		} else if err := json.Unmarshal(payloadBytes, &paymentPayload); err != nil {
			paymentErr = err
		}
	}

	if paymentErr == nil {
		c.mu.RLock()
		afterHooks := append([]AfterPaymentCreationHook(nil), c.afterPaymentCreationHooks...)
		c.mu.RUnlock()

		createdCtx := PaymentCreatedContext{
			PaymentCreationContext: hookCtx,
			PaymentPayload:         paymentPayload,
		}

		for _, hook := range afterHooks {
			_ = hook(createdCtx) // after-hook errors are logged by the caller, never fatal
		}

		return paymentPayload, nil
	}

	c.mu.RLock()
	failureHooks := append([]OnPaymentCreationFailureHook(nil), c.onPaymentCreationFailureHooks...)
	c.mu.RUnlock()

	failureCtx := PaymentCreationFailureContext{
		PaymentCreationContext: hookCtx,
		Error:                  paymentErr,
	}

	for _, hook := range failureHooks {
		result, _ := hook(failureCtx)
		if result != nil && result.Recovered {
			return result.Payload, nil
		}
	}

	return PaymentPayload{}, paymentErr
}
