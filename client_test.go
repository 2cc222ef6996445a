package x402

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/x402-foundation/x402/go/types"
)

// Mock client for testing
type mockSchemeNetworkClient struct {
	scheme        string
	createPayload func(ctx context.Context, version int, requirementsBytes []byte) ([]byte, error)
}

func (m *mockSchemeNetworkClient) Scheme() string {
	return m.scheme
}

func (m *mockSchemeNetworkClient) CreatePaymentPayload(ctx context.Context, version int, requirementsBytes []byte) ([]byte, error) {
	if m.createPayload != nil {
		return m.createPayload(ctx, version, requirementsBytes)
	}
	partial := PartialPaymentPayload{
		X402Version: version,
		Payload: map[string]interface{}{
			"signature": "mock_signature",
			"from":      "0xmock",
		},
	}
	return json.Marshal(partial)
}

func TestNewx402Client(t *testing.T) {
	client := Newx402Client()
	if client == nil {
		t.Fatal("Expected client to be created")
	}
	if client.schemes == nil {
		t.Fatal("Expected schemes map to be initialized")
	}
	if client.requirementsSelector == nil {
		t.Fatal("Expected default selector to be set")
	}
}

func TestClientRegisterScheme(t *testing.T) {
	client := Newx402Client()
	mockClient := &mockSchemeNetworkClient{scheme: "exact"}

	// Test v2 registration
	client.RegisterScheme("eip155:1", mockClient)

	if len(client.schemes) != 1 {
		t.Fatalf("Expected 1 version, got %d", len(client.schemes))
	}
	if got, ok := client.schemes[2].Lookup("eip155:1", "exact"); !ok || got != mockClient {
		t.Fatal("Expected mock client to be registered for v2")
	}

	// Test v1 registration
	client.RegisterSchemeV1("eip155:1", mockClient)
	if len(client.schemes) != 2 {
		t.Fatalf("Expected 2 versions, got %d", len(client.schemes))
	}
	if got, ok := client.schemes[1].Lookup("eip155:1", "exact"); !ok || got != mockClient {
		t.Fatal("Expected mock client to be registered for v1")
	}
}

func TestClientWithScheme(t *testing.T) {
	mockClient := &mockSchemeNetworkClient{scheme: "exact"}

	client := Newx402Client(
		WithScheme(2, "eip155:1", mockClient),
	)

	if got, ok := client.schemes[2].Lookup("eip155:1", "exact"); !ok || got != mockClient {
		t.Fatal("Expected mock client to be registered via option")
	}
}

func TestClientSelectPaymentRequirements(t *testing.T) {
	client := Newx402Client()
	mockClient := &mockSchemeNetworkClient{scheme: "exact"}
	client.RegisterScheme("eip155:1", mockClient)

	requirements := []PaymentRequirements{
		{
			Scheme:  "exact",
			Network: "eip155:1",
			Asset:   "USDC",
			Amount:  "1000000",
			PayTo:   "0xrecipient",
		},
		{
			Scheme:  "unsupported",
			Network: "eip155:1",
			Asset:   "USDC",
			Amount:  "2000000",
			PayTo:   "0xrecipient",
		},
	}

	// Should select the first supported requirement
	selected, err := client.SelectPaymentRequirements(2, requirements)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if selected.Scheme != "exact" {
		t.Fatalf("Expected 'exact' scheme, got %s", selected.Scheme)
	}
	if selected.Amount != "1000000" {
		t.Fatalf("Expected amount '1000000', got %s", selected.Amount)
	}

	// Test with no supported requirements
	unsupportedReqs := []PaymentRequirements{
		{
			Scheme:  "unsupported",
			Network: "eip155:1",
			Asset:   "USDC",
			Amount:  "1000000",
			PayTo:   "0xrecipient",
		},
	}

	_, err = client.SelectPaymentRequirements(2, unsupportedReqs)
	if err == nil {
		t.Fatal("Expected error for unsupported requirements")
	}

	var paymentErr *PaymentError
	if !errors.As(err, &paymentErr) || paymentErr.Code != ErrCodeNoMutuallySupportedOption {
		t.Fatal("Expected NoMutuallySupportedOption error")
	}
}

func TestClientSelectPaymentRequirementsWithCustomSelector(t *testing.T) {
	// Custom selector that chooses the highest amount
	customSelector := func(version int, requirements []PaymentRequirements) PaymentRequirements {
		if len(requirements) == 0 {
			panic("no requirements")
		}
		highest := requirements[0]
		for _, req := range requirements[1:] {
			if req.Amount > highest.Amount {
				highest = req
			}
		}
		return highest
	}

	client := Newx402Client(WithPaymentSelector(customSelector))
	mockClient := &mockSchemeNetworkClient{scheme: "exact"}
	client.RegisterScheme("eip155:1", mockClient)

	requirements := []PaymentRequirements{
		{
			Scheme:  "exact",
			Network: "eip155:1",
			Asset:   "USDC",
			Amount:  "1000000",
			PayTo:   "0xrecipient",
		},
		{
			Scheme:  "exact",
			Network: "eip155:1",
			Asset:   "USDC",
			Amount:  "2000000",
			PayTo:   "0xrecipient",
		},
	}

	selected, err := client.SelectPaymentRequirements(2, requirements)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if selected.Amount != "2000000" {
		t.Fatalf("Expected amount '2000000', got %s", selected.Amount)
	}
}

func TestClientCreatePaymentPayload(t *testing.T) {
	ctx := context.Background()
	client := Newx402Client()

	mockClient := &mockSchemeNetworkClient{scheme: "exact"}
	client.RegisterScheme("eip155:1", mockClient)

	requirements := PaymentRequirements{
		Scheme:  "exact",
		Network: "eip155:1",
		Asset:   "USDC",
		Amount:  "1000000",
		PayTo:   "0xrecipient",
	}
	requirementsBytes, err := json.Marshal(requirements)
	if err != nil {
		t.Fatalf("Unexpected marshal error: %v", err)
	}

	resource := &types.ResourceInfoV2{
		URL:         "https://example.com/api",
		Description: "Test API",
		MimeType:    "application/json",
	}

	extensions := map[string]interface{}{
		"test": "value",
	}

	payloadBytes, err := client.CreatePaymentPayload(ctx, 2, requirementsBytes, resource, extensions)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	var payload PaymentPayload
	if err := json.Unmarshal(payloadBytes, &payload); err != nil {
		t.Fatalf("Unexpected unmarshal error: %v", err)
	}

	if payload.X402Version != 2 {
		t.Fatalf("Expected version 2, got %d", payload.X402Version)
	}
	if payload.Accepted.Scheme != "exact" {
		t.Fatalf("Expected accepted scheme 'exact', got %s", payload.Accepted.Scheme)
	}
	if payload.Accepted.Network != "eip155:1" {
		t.Fatalf("Expected accepted network 'eip155:1', got %s", payload.Accepted.Network)
	}
	if payload.Payload == nil {
		t.Fatal("Expected payload to be set")
	}
	if payload.Resource == nil {
		t.Fatal("Expected resource to be set")
	}
	if payload.Extensions == nil {
		t.Fatal("Expected extensions to be set")
	}
}

func TestClientCreatePaymentPayloadNoScheme(t *testing.T) {
	ctx := context.Background()
	client := Newx402Client()

	// Register a different scheme so we get past the version check
	mockClient := &mockSchemeNetworkClient{scheme: "different"}
	client.RegisterScheme("eip155:1", mockClient)

	requirements := PaymentRequirements{
		Scheme:  "unregistered",
		Network: "eip155:1",
		Asset:   "USDC",
		Amount:  "1000000",
		PayTo:   "0xrecipient",
	}
	requirementsBytes, err := json.Marshal(requirements)
	if err != nil {
		t.Fatalf("Unexpected marshal error: %v", err)
	}

	_, err = client.CreatePaymentPayload(ctx, 2, requirementsBytes, nil, nil)
	if err == nil {
		t.Fatal("Expected error for unregistered scheme")
	}

	var paymentErr *PaymentError
	if !errors.As(err, &paymentErr) {
		t.Fatalf("Expected PaymentError, got: %v (%T)", err, err)
	}
	if paymentErr.Code != ErrCodeUnsupportedScheme {
		t.Fatalf("Expected UnsupportedScheme error code, got: %s", paymentErr.Code)
	}
}

func TestClientGetRegisteredSchemes(t *testing.T) {
	client := Newx402Client()
	mockClient1 := &mockSchemeNetworkClient{scheme: "exact"}
	mockClient2 := &mockSchemeNetworkClient{scheme: "transfer"}

	client.RegisterScheme("eip155:1", mockClient1)
	client.RegisterScheme("eip155:8453", mockClient2)
	client.RegisterSchemeV1("eip155:1", mockClient1)

	schemes := client.GetRegisteredSchemes()
	if len(schemes) != 2 {
		t.Fatalf("Expected 2 versions, got %d", len(schemes))
	}
	if len(schemes[2]) != 2 {
		t.Fatalf("Expected 2 schemes for v2, got %d", len(schemes[2]))
	}
	if len(schemes[1]) != 1 {
		t.Fatalf("Expected 1 scheme for v1, got %d", len(schemes[1]))
	}
}

func TestClientCanPay(t *testing.T) {
	client := Newx402Client()
	mockClient := &mockSchemeNetworkClient{scheme: "exact"}
	client.RegisterScheme("eip155:1", mockClient)

	requirements := []PaymentRequirements{
		{
			Scheme:  "exact",
			Network: "eip155:1",
			Asset:   "USDC",
			Amount:  "1000000",
			PayTo:   "0xrecipient",
		},
	}

	if !client.CanPay(2, requirements) {
		t.Fatal("Expected client to be able to pay")
	}

	unsupportedReqs := []PaymentRequirements{
		{
			Scheme:  "unsupported",
			Network: "eip155:1",
			Asset:   "USDC",
			Amount:  "1000000",
			PayTo:   "0xrecipient",
		},
	}

	if client.CanPay(2, unsupportedReqs) {
		t.Fatal("Expected client to not be able to pay unsupported requirements")
	}
}

func TestClientCreatePaymentForRequired(t *testing.T) {
	ctx := context.Background()
	client := Newx402Client()
	mockClient := &mockSchemeNetworkClient{scheme: "exact"}
	client.RegisterScheme("eip155:1", mockClient)

	required := PaymentRequired{
		X402Version: 2,
		Error:       "Payment required",
		Resource: &ResourceInfo{
			URL:         "https://example.com/api",
			Description: "Test API",
			MimeType:    "application/json",
		},
		Accepts: []PaymentRequirements{
			{
				Scheme:  "exact",
				Network: "eip155:1",
				Asset:   "USDC",
				Amount:  "1000000",
				PayTo:   "0xrecipient",
			},
		},
		Extensions: map[string]interface{}{
			"test": "value",
		},
	}

	payload, err := client.CreatePaymentForRequired(ctx, required)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if payload.X402Version != 2 {
		t.Fatalf("Expected version 2, got %d", payload.X402Version)
	}
	if payload.Accepted.Scheme != "exact" {
		t.Fatalf("Expected accepted scheme 'exact', got %s", payload.Accepted.Scheme)
	}
	if payload.Resource == nil {
		t.Fatal("Expected resource to be set from PaymentRequired")
	}
	if payload.Extensions == nil {
		t.Fatal("Expected extensions to be set from PaymentRequired")
	}
}

func TestClientCreatePaymentForRequiredAbortedByHook(t *testing.T) {
	ctx := context.Background()
	client := Newx402Client(
		WithBeforePaymentCreationHook(func(PaymentCreationContext) (*BeforePaymentCreationHookResult, error) {
			return &BeforePaymentCreationHookResult{Abort: true, Reason: "blocked by policy"}, nil
		}),
	)
	mockClient := &mockSchemeNetworkClient{scheme: "exact"}
	client.RegisterScheme("eip155:1", mockClient)

	required := PaymentRequired{
		X402Version: 2,
		Accepts: []PaymentRequirements{
			{Scheme: "exact", Network: "eip155:1", Asset: "USDC", Amount: "1000000", PayTo: "0xrecipient"},
		},
	}

	_, err := client.CreatePaymentForRequired(ctx, required)
	if err == nil {
		t.Fatal("Expected abort error")
	}
	var paymentErr *PaymentError
	if !errors.As(err, &paymentErr) || paymentErr.Code != ErrCodeAbortedByHook {
		t.Fatalf("Expected AbortedByHook error, got %v", err)
	}
}

func TestClientNetworkPatternMatching(t *testing.T) {
	ctx := context.Background()
	client := Newx402Client()
	mockClient := &mockSchemeNetworkClient{scheme: "exact"}

	// Register with wildcard
	client.RegisterScheme("eip155:*", mockClient)

	requirements := PaymentRequirements{
		Scheme:  "exact",
		Network: "eip155:8453", // Specific network
		Asset:   "USDC",
		Amount:  "1000000",
		PayTo:   "0xrecipient",
	}
	requirementsBytes, err := json.Marshal(requirements)
	if err != nil {
		t.Fatalf("Unexpected marshal error: %v", err)
	}

	// Should match the wildcard pattern
	payloadBytes, err := client.CreatePaymentPayload(ctx, 2, requirementsBytes, nil, nil)
	if err != nil {
		t.Fatalf("Expected pattern match to work: %v", err)
	}

	var payload PaymentPayload
	if err := json.Unmarshal(payloadBytes, &payload); err != nil {
		t.Fatalf("Unexpected unmarshal error: %v", err)
	}
	if payload.Accepted.Scheme != "exact" {
		t.Fatal("Expected payload to be created with pattern match")
	}
}
