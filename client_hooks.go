package x402

import "context"

// PaymentCreationContext carries the inputs to a client's payment payload
// creation attempt, passed to before/after/failure hooks.
type PaymentCreationContext struct {
	Ctx                  context.Context
	PaymentRequired      PaymentRequired
	SelectedRequirements PaymentRequirements
}

// PaymentCreatedContext adds the resulting payload to PaymentCreationContext.
type PaymentCreatedContext struct {
	PaymentCreationContext
	PaymentPayload PaymentPayload
}

// PaymentCreationFailureContext adds the failure to PaymentCreationContext.
type PaymentCreationFailureContext struct {
	PaymentCreationContext
	Error error
}

// BeforePaymentCreationHookResult lets a before-hook abort payload creation.
type BeforePaymentCreationHookResult struct {
	Abort  bool
	Reason string
}

// OnPaymentCreationFailureHookResult lets a failure-hook recover with an
// alternate payload.
type OnPaymentCreationFailureHookResult struct {
	Recovered bool
	Payload   PaymentPayload
}

// BeforePaymentCreationHook runs before CreatePaymentForRequired builds a
// payload; returning Abort=true short-circuits creation.
type BeforePaymentCreationHook func(PaymentCreationContext) (*BeforePaymentCreationHookResult, error)

// AfterPaymentCreationHook runs after a successful payload creation; its
// error, if any, is logged only and never affects the result.
type AfterPaymentCreationHook func(PaymentCreatedContext) error

// OnPaymentCreationFailureHook runs when payload creation fails; returning
// Recovered=true substitutes its Payload for the error.
type OnPaymentCreationFailureHook func(PaymentCreationFailureContext) (*OnPaymentCreationFailureHookResult, error)

// WithBeforePaymentCreationHook registers a before-creation hook at client
// construction time.
func WithBeforePaymentCreationHook(hook BeforePaymentCreationHook) ClientOption {
	return func(c *X402Client) {
		c.beforePaymentCreationHooks = append(c.beforePaymentCreationHooks, hook)
	}
}

// WithAfterPaymentCreationHook registers an after-creation hook at client
// construction time.
func WithAfterPaymentCreationHook(hook AfterPaymentCreationHook) ClientOption {
	return func(c *X402Client) {
		c.afterPaymentCreationHooks = append(c.afterPaymentCreationHooks, hook)
	}
}

// WithOnPaymentCreationFailureHook registers a failure hook at client
// construction time.
func WithOnPaymentCreationFailureHook(hook OnPaymentCreationFailureHook) ClientOption {
	return func(c *X402Client) {
		c.onPaymentCreationFailureHooks = append(c.onPaymentCreationFailureHooks, hook)
	}
}
