package types

// ResourceServerExtension lets a resource server enrich the declarations
// it emits in a 402 response (e.g. adding extension-specific metadata to
// a PaymentRequirements block) without the core engine knowing about the
// extension's concerns.
type ResourceServerExtension interface {
	// Key identifies the extension, e.g. for SupportedResponse.Extensions.
	Key() string
	// EnrichDeclaration mutates or returns an enriched copy of declaration
	// (a PaymentRequirements or PaymentRequired value) given the transport
	// context (the inbound HTTPAdapter, or nil outside an HTTP transport).
	EnrichDeclaration(declaration interface{}, transportContext interface{}) interface{}
}

