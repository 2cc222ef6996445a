package avm

const (
	// SchemeExact is the scheme identifier for the AVM exact payment scheme.
	SchemeExact = "exact"

	// DefaultDecimals is the decimal precision of the default stablecoin
	// asset (USDC) on every supported Algorand network, matching the
	// evm/svm packages' DefaultDecimals convention.
	DefaultDecimals = 6

	// MaxGroupSize bounds the number of transactions in an atomic group,
	// matching the network-enforced ceiling.
	MaxGroupSize = 16

	// MaxReasonableFee is the highest per-transaction fee (in microAlgos)
	// a facilitator-signed fee-payer transaction may carry. Anything above
	// this is treated as an attempt to drain the fee payer.
	MaxReasonableFee = uint64(16000)

	// MinTxnFee is the network minimum fee per transaction, in microAlgos.
	MinTxnFee = uint64(1000)

	// DefaultConfirmationRounds is how many rounds Settle waits for
	// inclusion before giving up, matching the Algorand SDK's own
	// WaitForConfirmation default.
	DefaultConfirmationRounds = uint64(4)

	// Transaction type strings, as they appear on the wire (msgpack "type" field).
	TxTypePayment        = "pay"
	TxTypeAssetTransfer   = "axfer"
	TxTypeKeyRegistration = "keyreg"

	// Error codes. Names follow the `invalid_exact_avm_payload_*` /
	// `security_*` taxonomy spec.md §7 assigns to the AVM family.
	ErrInvalidPayloadFormat        = "invalid_payload_format"
	ErrGroupSizeExceeded           = "group_size_exceeded"
	ErrInvalidPaymentIndex         = "invalid_payment_index"
	ErrInvalidTransactionEncoding  = "invalid_transaction_encoding"
	ErrInconsistentGroupID         = "inconsistent_group_id"
	ErrInvalidFeePayerTxn          = "invalid_exact_avm_payload_transaction"
	ErrAmountMismatch              = "amount_mismatch"
	ErrReceiverMismatch            = "receiver_mismatch"
	ErrAssetMismatch               = "asset_mismatch"
	ErrPaymentNotSigned            = "payment_not_signed"
	ErrInvalidFeePayer             = "invalid_fee_payer"
	ErrFeeTooHigh                  = "fee_too_high"
	ErrRoundValidity               = "round_validity"
	ErrASAOptInRequired            = "asa_opt_in_required"
	ErrSimulationFailed            = "simulation_failed"
	ErrSecurityKeyregNotAllowed    = "security_keyreg_not_allowed"
	ErrSecurityCloseToNotAllowed   = "security_close_to_not_allowed"
	ErrSecurityRekeyNotAllowed     = "security_rekey_not_allowed"
	ErrNetworkError                = "network_error"
)
