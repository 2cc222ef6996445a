package x402

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/x402-foundation/x402/go/types"
)

// X402ResourceServer manages payment requirements and verification for protected resources
// This is used by servers/APIs that want to charge for access
type X402ResourceServer struct {
	mu                    sync.RWMutex
	schemes               *Registry[SchemeNetworkServer]
	facilitatorClients    []FacilitatorClient
	registeredExtensions  map[string]types.ResourceServerExtension
	supportedCache        *SupportedCache
	facilitatorClientsMap map[int]*Registry[FacilitatorClient]
	moneyParsers          []MoneyParser

	// Lifecycle hooks
	beforeVerifyHooks    []BeforeVerifyHook
	afterVerifyHooks     []AfterVerifyHook
	onVerifyFailureHooks []OnVerifyFailureHook
	beforeSettleHooks    []BeforeSettleHook
	afterSettleHooks     []AfterSettleHook
	onSettleFailureHooks []OnSettleFailureHook
}

// SupportedCache caches facilitator capabilities
type SupportedCache struct {
	mu     sync.RWMutex
	data   map[string]SupportedResponse // key is facilitator identifier
	expiry map[string]time.Time
	ttl    time.Duration
}

// ResourceServerOption configures the server
type ResourceServerOption func(*X402ResourceServer)

// WithFacilitatorClient adds a facilitator client
func WithFacilitatorClient(client FacilitatorClient) ResourceServerOption {
	return func(s *X402ResourceServer) {
		s.facilitatorClients = append(s.facilitatorClients, client)
	}
}

// WithSchemeServer registers a scheme server implementation
func WithSchemeServer(network Network, schemeServer SchemeNetworkServer) ResourceServerOption {
	return func(s *X402ResourceServer) {
		s.registerScheme(network, schemeServer)
	}
}

// WithCacheTTL sets the cache TTL for supported kinds
func WithCacheTTL(ttl time.Duration) ResourceServerOption {
	return func(s *X402ResourceServer) {
		s.supportedCache.ttl = ttl
	}
}

// WithMoneyParser registers a MoneyParser that BuildPaymentRequirements
// tries, in registration order, before falling back to the scheme
// handler's own ParsePrice. Each parser may return (nil, nil) to decline a
// price it doesn't recognize; the first parser to return a non-nil
// AssetAmount wins.
func WithMoneyParser(parser MoneyParser) ResourceServerOption {
	return func(s *X402ResourceServer) {
		s.moneyParsers = append(s.moneyParsers, parser)
	}
}

func Newx402ResourceServer(opts ...ResourceServerOption) *X402ResourceServer {
	s := &X402ResourceServer{
		schemes:              NewRegistry[SchemeNetworkServer](),
		facilitatorClients:   []FacilitatorClient{},
		registeredExtensions: make(map[string]types.ResourceServerExtension),
		supportedCache: &SupportedCache{
			data:   make(map[string]SupportedResponse),
			expiry: make(map[string]time.Time),
			ttl:    5 * time.Minute,
		},
		facilitatorClientsMap: make(map[int]*Registry[FacilitatorClient]),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Initialize fetches supported payment kinds from all facilitators
// Should be called on startup to populate cache and build facilitator mapping
func (s *X402ResourceServer) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Clear existing mappings
	s.facilitatorClientsMap = make(map[int]*Registry[FacilitatorClient])

	var lastErr error
	successCount := 0

	// Process facilitators in order (earlier ones get precedence)
	for i, client := range s.facilitatorClients {
		supported, err := client.GetSupported(ctx)
		if err != nil {
			lastErr = fmt.Errorf("facilitator %d: %w", i, err)
			continue
		}

		// Cache the supported kinds
		key := fmt.Sprintf("facilitator_%d", i)
		s.supportedCache.Set(key, supported)
		successCount++

		// Build the facilitatorClientsMap for quick lookup
		for _, kind := range supported.Kinds {
			registry, exists := s.facilitatorClientsMap[kind.X402Version]
			if !exists {
				registry = NewRegistry[FacilitatorClient]()
				s.facilitatorClientsMap[kind.X402Version] = registry
			}

			// Only store if not already present (gives precedence to earlier facilitators)
			if _, exists := registry.Lookup(kind.Network, kind.Scheme); !exists {
				registry.Register(kind.Network, kind.Scheme, client)
			}
		}
	}

	if successCount == 0 && lastErr != nil {
		return fmt.Errorf("failed to initialize any facilitators: %w", lastErr)
	}

	return nil
}

func (s *X402ResourceServer) Register(network Network, schemeServer SchemeNetworkServer) *X402ResourceServer {
	return s.registerScheme(network, schemeServer)
}

func (s *X402ResourceServer) registerScheme(network Network, schemeServer SchemeNetworkServer) *X402ResourceServer {
	s.schemes.Register(network, schemeServer.Scheme(), schemeServer)
	return s
}

func (s *X402ResourceServer) RegisterExtension(extension types.ResourceServerExtension) *X402ResourceServer {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.registeredExtensions[extension.Key()] = extension
	return s
}

// ============================================================================
// Hook Registration Methods (Chainable)
// ============================================================================

// OnBeforeVerify registers a hook to execute before payment verification
// Can abort verification by returning a result with Abort=true
//
// Args:
//
//	hook: The hook function to register
//
// Returns:
//
//	The server instance for chaining
func (s *X402ResourceServer) OnBeforeVerify(hook BeforeVerifyHook) *X402ResourceServer {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.beforeVerifyHooks = append(s.beforeVerifyHooks, hook)
	return s
}

// OnAfterVerify registers a hook to execute after successful payment verification
//
// Args:
//
//	hook: The hook function to register
//
// Returns:
//
//	The server instance for chaining
func (s *X402ResourceServer) OnAfterVerify(hook AfterVerifyHook) *X402ResourceServer {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.afterVerifyHooks = append(s.afterVerifyHooks, hook)
	return s
}

// OnVerifyFailure registers a hook to execute when payment verification fails
// Can recover from failure by returning a result with Recovered=true
//
// Args:
//
//	hook: The hook function to register
//
// Returns:
//
//	The server instance for chaining
func (s *X402ResourceServer) OnVerifyFailure(hook OnVerifyFailureHook) *X402ResourceServer {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onVerifyFailureHooks = append(s.onVerifyFailureHooks, hook)
	return s
}

// OnBeforeSettle registers a hook to execute before payment settlement
// Can abort settlement by returning a result with Abort=true
//
// Args:
//
//	hook: The hook function to register
//
// Returns:
//
//	The server instance for chaining
func (s *X402ResourceServer) OnBeforeSettle(hook BeforeSettleHook) *X402ResourceServer {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.beforeSettleHooks = append(s.beforeSettleHooks, hook)
	return s
}

// OnAfterSettle registers a hook to execute after successful payment settlement
//
// Args:
//
//	hook: The hook function to register
//
// Returns:
//
//	The server instance for chaining
func (s *X402ResourceServer) OnAfterSettle(hook AfterSettleHook) *X402ResourceServer {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.afterSettleHooks = append(s.afterSettleHooks, hook)
	return s
}

// OnSettleFailure registers a hook to execute when payment settlement fails
// Can recover from failure by returning a result with Recovered=true
//
// Args:
//
//	hook: The hook function to register
//
// Returns:
//
//	The server instance for chaining
func (s *X402ResourceServer) OnSettleFailure(hook OnSettleFailureHook) *X402ResourceServer {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onSettleFailureHooks = append(s.onSettleFailureHooks, hook)
	return s
}

func (s *X402ResourceServer) EnrichExtensions(
	declaredExtensions map[string]interface{},
	transportContext interface{},
) map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	enriched := make(map[string]interface{})

	for key, declaration := range declaredExtensions {
		if extension, ok := s.registeredExtensions[key]; ok {
			enriched[key] = extension.EnrichDeclaration(declaration, transportContext)
		} else {
			enriched[key] = declaration
		}
	}

	return enriched
}

// BuildPaymentRequirements creates payment requirements for a resource
func (s *X402ResourceServer) BuildPaymentRequirements(ctx context.Context, config ResourceConfig) ([]PaymentRequirements, error) {
	// Find the scheme server
	schemeServer, ok := s.schemes.Lookup(config.Network, config.Scheme)
	if !ok {
		return nil, &PaymentError{
			Code:    ErrCodeUnsupportedScheme,
			Message: fmt.Sprintf("no server registered for scheme %s on network %s", config.Scheme, config.Network),
		}
	}

	// Get supported kinds from facilitators
	supportedKind := s.findSupportedKind(ProtocolVersion, config.Network, config.Scheme)
	if supportedKind == nil {
		return nil, &PaymentError{
			Code:    ErrCodeUnsupportedNetwork,
			Message: fmt.Sprintf("facilitator does not support %s on %s", config.Scheme, config.Network),
			Details: map[string]interface{}{
				"hint": "call Initialize() to fetch supported kinds from facilitators",
			},
		}
	}

	// Run the registered MoneyParser chain first (spec.md §4.4): each parser
	// may claim a Money-shaped price (decimal string/number, optionally
	// "$"-prefixed or "USD"/"USDC"-suffixed); the first non-nil result wins.
	// An explicit AssetAmount, or a price no parser claims, falls back to
	// the scheme handler's own ParsePrice.
	var assetAmount AssetAmount
	if amount, ok := moneyAmount(config.Price); ok && len(s.moneyParsers) > 0 {
		parsed, err := moneyParserChain(s.moneyParsers, amount, config.Network)
		if err != nil {
			return nil, fmt.Errorf("failed to parse price: %w", err)
		}
		if parsed != nil {
			assetAmount = *parsed
		}
	}
	if assetAmount.Amount == "" {
		var err error
		assetAmount, err = schemeServer.ParsePrice(config.Price, config.Network)
		if err != nil {
			return nil, fmt.Errorf("failed to parse price: %w", err)
		}
	}

	// Build base requirements
	baseRequirements := PaymentRequirements{
		Scheme:            config.Scheme,
		Network:           config.Network,
		Asset:             assetAmount.Asset,
		Amount:            assetAmount.Amount,
		PayTo:             config.PayTo,
		MaxTimeoutSeconds: config.MaxTimeoutSeconds,
		Extra:             assetAmount.Extra,
	}

	// Set default timeout if not specified
	if baseRequirements.MaxTimeoutSeconds == 0 {
		baseRequirements.MaxTimeoutSeconds = 300 // 5 minutes default
	}

	// Get facilitator extensions
	extensions := s.getFacilitatorExtensions(ProtocolVersion, config.Network, config.Scheme)

	// Enhance with scheme-specific details
	enhanced, err := schemeServer.EnhancePaymentRequirements(ctx, baseRequirements, *supportedKind, extensions)
	if err != nil {
		return nil, fmt.Errorf("failed to enhance payment requirements: %w", err)
	}

	return []PaymentRequirements{enhanced}, nil
}

// CreatePaymentRequiredResponse creates a 402 response
func (s *X402ResourceServer) CreatePaymentRequiredResponse(
	requirements []PaymentRequirements,
	info ResourceInfo,
	errorMsg string,
	extensions map[string]interface{},
) PaymentRequired {
	response := PaymentRequired{
		X402Version: ProtocolVersion,
		Error:       errorMsg,
		Resource:    &info,
		Accepts:     requirements,
		Extensions:  extensions,
	}

	if errorMsg == "" {
		response.Error = "Payment required"
	}

	return response
}

// VerifyPayment verifies a payment against requirements
// Server is boundary: accepts bytes (from client), routes to facilitator
//
// Args:
//
//	ctx: Context for cancellation and metadata
//	payloadBytes: Serialized payment payload
//	requirementsBytes: Serialized payment requirements
//
// Returns:
//
//	VerifyResponse and error if verification fails
func (s *X402ResourceServer) VerifyPayment(ctx context.Context, payloadBytes []byte, requirementsBytes []byte) (VerifyResponse, error) {
	// Build hook context
	hookCtx := VerifyContext{
		Ctx:               ctx,
		PayloadBytes:      payloadBytes,
		RequirementsBytes: requirementsBytes,
	}

	// Execute beforeVerify hooks
	s.mu.RLock()
	beforeHooks := s.beforeVerifyHooks
	s.mu.RUnlock()

	for _, hook := range beforeHooks {
		result, _ := hook(hookCtx)
		if result != nil && result.Abort {
			return VerifyResponse{
				IsValid:       false,
				InvalidReason: result.Reason,
			}, nil
		}
	}

	// Perform verification
	var verifyResult VerifyResponse
	var verifyErr error

	// Detect version
	version, err := DetectVersion(payloadBytes)
	if err != nil {
		verifyErr = err
		verifyResult = VerifyResponse{IsValid: false, InvalidReason: "invalid version"}
	} else {
		// Extract scheme/network from requirements for routing
		reqInfo, err := ExtractRequirementsInfo(requirementsBytes)
		if err != nil {
			verifyErr = err
			verifyResult = VerifyResponse{IsValid: false, InvalidReason: "invalid requirements"}
		} else {
			// Find appropriate facilitator
			facilitator := s.findFacilitatorForPayment(version, reqInfo.Network, reqInfo.Scheme)
			if facilitator == nil {
				// Try all facilitators as fallback
				var lastErr error
				for _, client := range s.facilitatorClients {
					resp, err := client.Verify(ctx, payloadBytes, requirementsBytes)
					if err == nil {
						verifyResult = resp
						break
					}
					lastErr = err
				}

				if !verifyResult.IsValid && lastErr != nil {
					verifyErr = &PaymentError{
						Code:    ErrCodeUnsupportedNetwork,
						Message: "no facilitator supports this payment type",
					}
					verifyResult = VerifyResponse{
						IsValid:       false,
						InvalidReason: "no facilitator available for verification",
					}
				}
			} else {
				// Use specific facilitator
				verifyResult, verifyErr = facilitator.Verify(ctx, payloadBytes, requirementsBytes)
			}
		}
	}

	// Handle success case
	if verifyErr == nil {
		// Execute afterVerify hooks
		s.mu.RLock()
		afterHooks := s.afterVerifyHooks
		s.mu.RUnlock()

		resultCtx := VerifyResultContext{
			VerifyContext: hookCtx,
			Result:        verifyResult,
		}

		for _, hook := range afterHooks {
			_ = hook(resultCtx)
		}

		return verifyResult, nil
	}

	// Handle failure case
	s.mu.RLock()
	failureHooks := s.onVerifyFailureHooks
	s.mu.RUnlock()

	failureCtx := VerifyFailureContext{
		VerifyContext: hookCtx,
		Error:         verifyErr,
	}

	// Execute onVerifyFailure hooks
	for _, hook := range failureHooks {
		result, _ := hook(failureCtx)
		if result != nil && result.Recovered {
			// Hook recovered from failure
			return result.Result, nil
		}
	}

	// No recovery, return original error
	return verifyResult, verifyErr
}

// SettlePayment settles a verified payment
// Server is boundary: accepts bytes (from client), routes to facilitator
//
// Args:
//
//	ctx: Context for cancellation and metadata
//	payloadBytes: Serialized payment payload
//	requirementsBytes: Serialized payment requirements
//
// Returns:
//
//	SettleResponse and error if settlement fails
func (s *X402ResourceServer) SettlePayment(ctx context.Context, payloadBytes []byte, requirementsBytes []byte) (SettleResponse, error) {
	// Build hook context
	hookCtx := SettleContext{
		Ctx:               ctx,
		PayloadBytes:      payloadBytes,
		RequirementsBytes: requirementsBytes,
	}

	// Execute beforeSettle hooks
	s.mu.RLock()
	beforeHooks := s.beforeSettleHooks
	s.mu.RUnlock()

	for _, hook := range beforeHooks {
		result, _ := hook(hookCtx)
		if result != nil && result.Abort {
			return SettleResponse{
				Success:     false,
				ErrorReason: fmt.Sprintf("Settlement aborted: %s", result.Reason),
			}, fmt.Errorf("settlement aborted: %s", result.Reason)
		}
	}

	// Perform settlement
	var settleResult SettleResponse
	var settleErr error

	// Detect version
	version, err := DetectVersion(payloadBytes)
	if err != nil {
		settleErr = err
		settleResult = SettleResponse{Success: false, ErrorReason: "invalid version"}
	} else {
		// Extract scheme/network from requirements for routing
		reqInfo, err := ExtractRequirementsInfo(requirementsBytes)
		if err != nil {
			settleErr = err
			settleResult = SettleResponse{Success: false, ErrorReason: "invalid requirements"}
		} else {
			// Find appropriate facilitator
			facilitator := s.findFacilitatorForPayment(version, reqInfo.Network, reqInfo.Scheme)
			if facilitator == nil {
				// Try all facilitators as fallback
				var lastErr error
				for _, client := range s.facilitatorClients {
					resp, err := client.Settle(ctx, payloadBytes, requirementsBytes)
					if err == nil {
						settleResult = resp
						break
					}
					lastErr = err
				}

				if !settleResult.Success && lastErr != nil {
					settleErr = &PaymentError{
						Code:    ErrCodeSettlementFailed,
						Message: "no facilitator supports this payment type",
					}
					settleResult = SettleResponse{
						Success:     false,
						ErrorReason: "no facilitator available for settlement",
					}
				}
			} else {
				// Use specific facilitator
				settleResult, settleErr = facilitator.Settle(ctx, payloadBytes, requirementsBytes)
			}
		}
	}

	// Handle success case
	if settleErr == nil && settleResult.Success {
		// Execute afterSettle hooks
		s.mu.RLock()
		afterHooks := s.afterSettleHooks
		s.mu.RUnlock()

		resultCtx := SettleResultContext{
			SettleContext: hookCtx,
			Result:        settleResult,
		}

		for _, hook := range afterHooks {
			_ = hook(resultCtx)
		}

		return settleResult, nil
	}

	// Handle failure case
	s.mu.RLock()
	failureHooks := s.onSettleFailureHooks
	s.mu.RUnlock()

	failureCtx := SettleFailureContext{
		SettleContext: hookCtx,
		Error:         settleErr,
	}

	// Execute onSettleFailure hooks
	for _, hook := range failureHooks {
		result, _ := hook(failureCtx)
		if result != nil && result.Recovered {
			// Hook recovered from failure
			return result.Result, nil
		}
	}

	// No recovery, return original error
	return settleResult, settleErr
}

// FindMatchingRequirements finds requirements that match a payment payload
// Server boundary: takes bytes (payload) + structs (available requirements)
func (s *X402ResourceServer) FindMatchingRequirements(available []PaymentRequirements, payloadBytes []byte) *PaymentRequirements {
	var payload PaymentPayload
	if err := json.Unmarshal(payloadBytes, &payload); err != nil {
		return nil
	}

	for _, req := range available {
		if MatchPayloadToRequirements(payload, req) {
			return &req
		}
	}

	return nil
}

// ProcessPaymentRequest processes a payment request end-to-end
func (s *X402ResourceServer) ProcessPaymentRequest(
	ctx context.Context,
	paymentPayload *PaymentPayload,
	resourceConfig ResourceConfig,
	resourceInfo ResourceInfo,
	extensions map[string]interface{},
) (*ProcessResult, error) {
	requirements, err := s.BuildPaymentRequirements(ctx, resourceConfig)
	if err != nil {
		return nil, err
	}

	if paymentPayload == nil {
		return &ProcessResult{
			Success: false,
			RequiresPayment: &PaymentRequired{
				X402Version: ProtocolVersion,
				Error:       "Payment required",
				Resource:    &resourceInfo,
				Accepts:     requirements,
				Extensions:  extensions,
			},
		}, nil
	}

	// Marshal payment payload to bytes for matching
	payloadBytes, err := json.Marshal(paymentPayload)
	if err != nil {
		return nil, err
	}

	// Find matching requirements
	matchingRequirements := s.FindMatchingRequirements(requirements, payloadBytes)
	if matchingRequirements == nil {
		return &ProcessResult{
			Success: false,
			RequiresPayment: &PaymentRequired{
				X402Version: ProtocolVersion,
				Error:       "No matching payment requirements found",
				Resource:    &resourceInfo,
				Accepts:     requirements,
				Extensions:  extensions,
			},
		}, nil
	}

	// Marshal requirements to bytes for verification
	requirementsBytes, err := json.Marshal(matchingRequirements)
	if err != nil {
		return nil, err
	}

	// Verify payment
	verificationResult, err := s.VerifyPayment(ctx, payloadBytes, requirementsBytes)
	if err != nil {
		return nil, err
	}

	if !verificationResult.IsValid {
		return &ProcessResult{
			Success:            false,
			Error:              verificationResult.InvalidReason,
			VerificationResult: &verificationResult,
		}, nil
	}

	// Payment verified, ready for settlement
	return &ProcessResult{
		Success:            true,
		VerificationResult: &verificationResult,
	}, nil
}

// ProcessResult contains the result of processing a payment request
type ProcessResult struct {
	Success            bool
	RequiresPayment    *PaymentRequired
	VerificationResult *VerifyResponse
	SettlementResult   *SettleResponse
	Error              string
}

// Helper methods

// findSupportedKind finds a supported kind from cache
func (s *X402ResourceServer) findSupportedKind(version int, network Network, scheme string) *SupportedKind {
	s.supportedCache.mu.RLock()
	defer s.supportedCache.mu.RUnlock()

	for key, supported := range s.supportedCache.data {
		// Check if cache entry is still valid
		if expiry, exists := s.supportedCache.expiry[key]; exists {
			if time.Now().After(expiry) {
				continue // Skip expired entries
			}
		}

		// Look for matching kind
		for _, kind := range supported.Kinds {
			if kind.X402Version == version &&
				kind.Scheme == scheme &&
				Network(kind.Network).Match(network) {
				return &SupportedKind{
					X402Version: kind.X402Version,
					Scheme:      kind.Scheme,
					Network:     kind.Network,
					Extra:       kind.Extra,
				}
			}
		}
	}

	return nil
}

// getFacilitatorExtensions gets extensions for a payment type
func (s *X402ResourceServer) getFacilitatorExtensions(version int, network Network, scheme string) []string {
	s.supportedCache.mu.RLock()
	defer s.supportedCache.mu.RUnlock()

	for _, supported := range s.supportedCache.data {
		for _, kind := range supported.Kinds {
			if kind.X402Version == version &&
				kind.Scheme == scheme &&
				Network(kind.Network).Match(network) {
				return supported.Extensions
			}
		}
	}

	return []string{}
}

// findFacilitatorForPayment finds the facilitator that supports a payment type
// Uses the facilitatorClientsMap built during Initialize() for deterministic lookup
func (s *X402ResourceServer) findFacilitatorForPayment(version int, network Network, scheme string) FacilitatorClient {
	s.mu.RLock()
	defer s.mu.RUnlock()

	registry, exists := s.facilitatorClientsMap[version]
	if !exists {
		return nil
	}

	client, ok := registry.Lookup(network, scheme)
	if !ok {
		var zero FacilitatorClient
		return zero
	}
	return client
}

// Set adds an item to the cache
func (c *SupportedCache) Set(key string, value SupportedResponse) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.data[key] = value
	c.expiry[key] = time.Now().Add(c.ttl)
}

// Clear clears the cache
func (c *SupportedCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.data = make(map[string]SupportedResponse)
	c.expiry = make(map[string]time.Time)
}
