package x402

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// X402Facilitator manages payment verification and settlement.
// This is used by payment processors that execute on-chain transactions.
type X402Facilitator struct {
	mu sync.RWMutex

	// One ordered registry per protocol version, never mixed.
	schemes map[int]*Registry[SchemeNetworkFacilitator]

	// Extensions this facilitator supports (e.g., "idempotency")
	extensions []string

	settlementCache *SettlementCache

	beforeVerifyHooks    []FacilitatorBeforeVerifyHook
	afterVerifyHooks     []FacilitatorAfterVerifyHook
	onVerifyFailureHooks []FacilitatorOnVerifyFailureHook
	beforeSettleHooks    []FacilitatorBeforeSettleHook
	afterSettleHooks     []FacilitatorAfterSettleHook
	onSettleFailureHooks []FacilitatorOnSettleFailureHook
}

// FacilitatorOption configures a facilitator at construction time.
type FacilitatorOption func(*X402Facilitator)

// WithSettlementCacheTTL overrides the default 10-minute idempotency TTL
// for the facilitator's built-in settlement cache.
func WithSettlementCacheTTL(ttl time.Duration) FacilitatorOption {
	return func(f *X402Facilitator) {
		f.settlementCache = NewSettlementCache(ttl)
	}
}

// Newx402Facilitator creates a new facilitator
func Newx402Facilitator(opts ...FacilitatorOption) *X402Facilitator {
	f := &X402Facilitator{
		schemes:         make(map[int]*Registry[SchemeNetworkFacilitator]),
		settlementCache: NewSettlementCache(10 * time.Minute),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// RegisterScheme registers a payment mechanism for protocol v2
func (f *X402Facilitator) RegisterScheme(network Network, facilitator SchemeNetworkFacilitator) *X402Facilitator {
	return f.registerScheme(ProtocolVersionV2, network, facilitator)
}

// RegisterSchemeV1 registers a payment mechanism for protocol v1
func (f *X402Facilitator) RegisterSchemeV1(network Network, facilitator SchemeNetworkFacilitator) *X402Facilitator {
	return f.registerScheme(ProtocolVersionV1, network, facilitator)
}

func (f *X402Facilitator) registerScheme(version int, network Network, facilitator SchemeNetworkFacilitator) *X402Facilitator {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.schemes[version] == nil {
		f.schemes[version] = NewRegistry[SchemeNetworkFacilitator]()
	}
	f.schemes[version].Register(network, facilitator.Scheme(), facilitator)

	return f
}

// RegisterExtension registers a protocol extension
func (f *X402Facilitator) RegisterExtension(extension string) *X402Facilitator {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, ext := range f.extensions {
		if ext == extension {
			return f
		}
	}
	f.extensions = append(f.extensions, extension)
	return f
}

// OnBeforeVerify registers a hook run before Verify.
func (f *X402Facilitator) OnBeforeVerify(hook FacilitatorBeforeVerifyHook) *X402Facilitator {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.beforeVerifyHooks = append(f.beforeVerifyHooks, hook)
	return f
}

// OnAfterVerify registers a hook run after a successful Verify.
func (f *X402Facilitator) OnAfterVerify(hook FacilitatorAfterVerifyHook) *X402Facilitator {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.afterVerifyHooks = append(f.afterVerifyHooks, hook)
	return f
}

// OnVerifyFailure registers a hook run when Verify fails.
func (f *X402Facilitator) OnVerifyFailure(hook FacilitatorOnVerifyFailureHook) *X402Facilitator {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onVerifyFailureHooks = append(f.onVerifyFailureHooks, hook)
	return f
}

// OnBeforeSettle registers a hook run before Settle.
func (f *X402Facilitator) OnBeforeSettle(hook FacilitatorBeforeSettleHook) *X402Facilitator {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.beforeSettleHooks = append(f.beforeSettleHooks, hook)
	return f
}

// OnAfterSettle registers a hook run after a successful Settle.
func (f *X402Facilitator) OnAfterSettle(hook FacilitatorAfterSettleHook) *X402Facilitator {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.afterSettleHooks = append(f.afterSettleHooks, hook)
	return f
}

// OnSettleFailure registers a hook run when Settle fails.
func (f *X402Facilitator) OnSettleFailure(hook FacilitatorOnSettleFailureHook) *X402Facilitator {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onSettleFailureHooks = append(f.onSettleFailureHooks, hook)
	return f
}

func (f *X402Facilitator) resolve(payloadBytes, requirementsBytes []byte) (int, SchemeNetworkFacilitator, requirementsInfo, error) {
	version, err := DetectVersion(payloadBytes)
	if err != nil {
		return 0, nil, requirementsInfo{}, fmt.Errorf("%s: %w", ErrCodeMalformedHeader, err)
	}

	reqInfo, err := ExtractRequirementsInfo(requirementsBytes)
	if err != nil {
		return 0, nil, requirementsInfo{}, fmt.Errorf("%s: %w", ErrCodeMalformedHeader, err)
	}

	registry, exists := f.schemes[version]
	if !exists {
		return version, nil, reqInfo, &PaymentError{
			Code:    ErrCodeUnsupportedVersion,
			Message: fmt.Sprintf("x402 version %d not supported", version),
		}
	}

	facilitator, ok := registry.Lookup(reqInfo.Network, reqInfo.Scheme)
	if !ok {
		return version, nil, reqInfo, &PaymentError{
			Code:    ErrCodeUnsupportedScheme,
			Message: fmt.Sprintf("no facilitator for scheme %s on network %s", reqInfo.Scheme, reqInfo.Network),
		}
	}

	return version, facilitator, reqInfo, nil
}

// Verify checks if a payment is valid without executing it.
// Bridge method: keeps struct API, uses bytes internally. Runs the
// facilitator's before/after/failure hooks around the mechanism call.
func (f *X402Facilitator) Verify(ctx context.Context, payload PaymentPayload, requirements PaymentRequirements) (VerifyResponse, error) {
	if err := validateForVerification(payload, requirements); err != nil {
		return VerifyResponse{IsValid: false, InvalidReason: err.Error()}, err
	}

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return VerifyResponse{IsValid: false}, err
	}
	requirementsBytes, err := json.Marshal(requirements)
	if err != nil {
		return VerifyResponse{IsValid: false}, err
	}

	f.mu.RLock()
	beforeHooks := append([]FacilitatorBeforeVerifyHook(nil), f.beforeVerifyHooks...)
	afterHooks := append([]FacilitatorAfterVerifyHook(nil), f.afterVerifyHooks...)
	failureHooks := append([]FacilitatorOnVerifyFailureHook(nil), f.onVerifyFailureHooks...)
	f.mu.RUnlock()

	hookCtx := FacilitatorVerifyContext{
		Ctx:                 ctx,
		PaymentPayload:      payload,
		PaymentRequirements: requirements,
		Timestamp:           time.Now(),
	}

	for _, hook := range beforeHooks {
		result, _ := hook(hookCtx)
		if result != nil && result.Abort {
			return VerifyResponse{IsValid: false, InvalidReason: result.Reason}, &PaymentError{
				Code: ErrCodeAbortedByHook, Message: result.Reason,
			}
		}
	}

	start := time.Now()
	result, err := f.verifyOnce(ctx, payloadBytes, requirementsBytes)

	if err == nil {
		for _, hook := range afterHooks {
			_ = hook(FacilitatorVerifyResultContext{FacilitatorVerifyContext: hookCtx, Result: result, Duration: time.Since(start)})
		}
		return result, nil
	}

	failureCtx := FacilitatorVerifyFailureContext{FacilitatorVerifyContext: hookCtx, Error: err, Duration: time.Since(start)}
	for _, hook := range failureHooks {
		recovered, hookErr := hook(failureCtx)
		if hookErr != nil {
			continue
		}
		if recovered != nil && recovered.Recovered {
			return recovered.Result, nil
		}
	}
	return result, err
}

func (f *X402Facilitator) verifyOnce(ctx context.Context, payloadBytes, requirementsBytes []byte) (VerifyResponse, error) {
	f.mu.RLock()
	version, facilitator, _, err := f.resolve(payloadBytes, requirementsBytes)
	f.mu.RUnlock()
	if err != nil {
		return VerifyResponse{IsValid: false, InvalidReason: err.Error()}, err
	}

	return facilitator.Verify(ctx, int(version), payloadBytes, requirementsBytes)
}

// Settle executes a payment on-chain.
// Bridge method: keeps struct API, uses bytes internally. Deduplicates
// concurrent/retried settlement attempts for the same payload via the
// facilitator's built-in SettlementCache, and runs the facilitator's
// before/after/failure hooks around the mechanism call.
func (f *X402Facilitator) Settle(ctx context.Context, payload PaymentPayload, requirements PaymentRequirements) (SettleResponse, error) {
	if err := validateForVerification(payload, requirements); err != nil {
		return SettleResponse{Success: false, ErrorReason: err.Error()}, err
	}

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return SettleResponse{Success: false}, err
	}
	requirementsBytes, err := json.Marshal(requirements)
	if err != nil {
		return SettleResponse{Success: false}, err
	}

	key := GenerateSettlementKey(payloadBytes)
	var done chan struct{}
	for {
		status, cached, d := f.settlementCache.CheckAndMark(key)
		switch status {
		case StatusCached:
			return *cached, nil
		case StatusInFlight:
			result, err := f.settlementCache.WaitForResult(ctx, key, d)
			if err != nil {
				return SettleResponse{Success: false}, err
			}
			if result != nil {
				return *result, nil
			}
			// in-flight attempt failed without caching; loop and re-mark
			continue
		default:
			done = d
		}
		break
	}

	f.mu.RLock()
	beforeHooks := append([]FacilitatorBeforeSettleHook(nil), f.beforeSettleHooks...)
	afterHooks := append([]FacilitatorAfterSettleHook(nil), f.afterSettleHooks...)
	failureHooks := append([]FacilitatorOnSettleFailureHook(nil), f.onSettleFailureHooks...)
	f.mu.RUnlock()

	hookCtx := FacilitatorSettleContext{
		Ctx:                 ctx,
		PaymentPayload:      payload,
		PaymentRequirements: requirements,
		Timestamp:           time.Now(),
	}

	for _, hook := range beforeHooks {
		result, _ := hook(hookCtx)
		if result != nil && result.Abort {
			f.settlementCache.Fail(key, done)
			return SettleResponse{Success: false, ErrorReason: result.Reason, Network: requirements.Network}, &PaymentError{
				Code: ErrCodeAbortedByHook, Message: result.Reason,
			}
		}
	}

	start := time.Now()
	result, settleErr := f.settleOnce(ctx, payloadBytes, requirementsBytes)

	if settleErr == nil {
		f.settlementCache.Complete(key, &result, done)
		for _, hook := range afterHooks {
			_ = hook(FacilitatorSettleResultContext{FacilitatorSettleContext: hookCtx, Result: result, Duration: time.Since(start)})
		}
		return result, nil
	}

	f.settlementCache.Fail(key, done)

	failureCtx := FacilitatorSettleFailureContext{FacilitatorSettleContext: hookCtx, Error: settleErr, Duration: time.Since(start)}
	for _, hook := range failureHooks {
		recovered, hookErr := hook(failureCtx)
		if hookErr != nil {
			continue
		}
		if recovered != nil && recovered.Recovered {
			return recovered.Result, nil
		}
	}
	return result, settleErr
}

func (f *X402Facilitator) settleOnce(ctx context.Context, payloadBytes, requirementsBytes []byte) (SettleResponse, error) {
	f.mu.RLock()
	version, facilitator, _, err := f.resolve(payloadBytes, requirementsBytes)
	f.mu.RUnlock()
	if err != nil {
		return SettleResponse{Success: false, ErrorReason: err.Error()}, err
	}

	return facilitator.Settle(ctx, int(version), payloadBytes, requirementsBytes)
}

// GetSupported returns the payment kinds this facilitator supports
func (f *X402Facilitator) GetSupported() SupportedResponse {
	f.mu.RLock()
	defer f.mu.RUnlock()

	response := SupportedResponse{
		Kinds:      []SupportedKind{},
		Extensions: f.extensions,
	}

	for version, registry := range f.schemes {
		for _, key := range registry.Keys() {
			response.Kinds = append(response.Kinds, SupportedKind{
				X402Version: int(version),
				Scheme:      key.Scheme,
				Network:     key.Pattern,
				Extra:       map[string]interface{}{},
			})
		}
	}

	return response
}

// CanHandle checks if the facilitator can handle a payment type
func (f *X402Facilitator) CanHandle(version int, network Network, scheme string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()

	registry, exists := f.schemes[version]
	if !exists {
		return false
	}
	_, ok := registry.Lookup(network, scheme)
	return ok
}

// LocalFacilitatorClient wraps a local facilitator to implement FacilitatorClient
// This allows using a local facilitator in the same process as the resource server.
type LocalFacilitatorClient struct {
	facilitator *X402Facilitator
	identifier  string
}

// NewLocalFacilitatorClient creates a facilitator client backed by a local facilitator
func NewLocalFacilitatorClient(facilitator *X402Facilitator) *LocalFacilitatorClient {
	return &LocalFacilitatorClient{
		facilitator: facilitator,
		identifier:  "local",
	}
}

// Verify implements FacilitatorClient
func (c *LocalFacilitatorClient) Verify(ctx context.Context, payloadBytes []byte, requirementsBytes []byte) (VerifyResponse, error) {
	var payload PaymentPayload
	if err := json.Unmarshal(payloadBytes, &payload); err != nil {
		return VerifyResponse{IsValid: false}, err
	}
	var requirements PaymentRequirements
	if err := json.Unmarshal(requirementsBytes, &requirements); err != nil {
		return VerifyResponse{IsValid: false}, err
	}
	return c.facilitator.Verify(ctx, payload, requirements)
}

// Settle implements FacilitatorClient
func (c *LocalFacilitatorClient) Settle(ctx context.Context, payloadBytes []byte, requirementsBytes []byte) (SettleResponse, error) {
	var payload PaymentPayload
	if err := json.Unmarshal(payloadBytes, &payload); err != nil {
		return SettleResponse{Success: false}, err
	}
	var requirements PaymentRequirements
	if err := json.Unmarshal(requirementsBytes, &requirements); err != nil {
		return SettleResponse{Success: false}, err
	}
	return c.facilitator.Settle(ctx, payload, requirements)
}

// GetSupported implements FacilitatorClient
func (c *LocalFacilitatorClient) GetSupported(ctx context.Context) (SupportedResponse, error) {
	return c.facilitator.GetSupported(), nil
}
