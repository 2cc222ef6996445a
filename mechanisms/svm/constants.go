package svm

const (
	// SchemeExact is the scheme identifier for the SVM exact payment scheme.
	SchemeExact = "exact"

	// DefaultDecimals is the decimal precision of the default stablecoin
	// asset (USDC) on every supported Solana cluster.
	DefaultDecimals = 6

	// MaxRecentBlockhashAgeSlots bounds how stale a transaction's recent
	// blockhash may be at verification time. Solana blockhashes are valid
	// for ~150 slots (~60s); the facilitator rejects anything older.
	MaxRecentBlockhashAgeSlots = 150

	// Well-known program addresses relevant to exact-scheme verification.
	TokenProgramAddress       = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"
	Token2022ProgramAddress   = "TokenzQdBNbLqP5VEhdkAS6EPFLC1PHnBqCXEpPxuEb"
	MemoProgramAddress        = "MemoSq4gqABAXKb96qnH8TysNcWxMyWCqXgDLGmfcHr"
	LighthouseProgramAddress  = "L2TExMFKdjpN9kozasaurPirfHy9P8sbXoAN1qA3S95"
	ComputeBudgetProgramAddress = "ComputeBudget111111111111111111111111111111"
	AssociatedTokenProgramAddress = "ATokenGPvbdGVxr1b2hvZbsiqW5xWH25efTNsLJA8knL"
	SwigProgramAddress        = "swigypWHEksbC64pWKwah1WTeh9JXwx8H1rJHLdbRbZ"

	// Swig instruction discriminators (signV1, signV2), U16 little-endian.
	SwigSignV1Discriminator = uint16(4)
	SwigSignV2Discriminator = uint16(11)

	// Error codes, matching the naming convention used by the TypeScript
	// reference implementation.
	ErrInvalidPayloadFormat   = "invalid_payload_format"
	ErrNoTransferInstruction  = "invalid_exact_svm_payload_no_transfer_instruction"
	ErrMintMismatch           = "invalid_exact_svm_payload_mint_mismatch"
	ErrRecipientMismatch      = "invalid_exact_svm_payload_recipient_mismatch"
	ErrAmountInsufficient     = "invalid_exact_svm_payload_amount_insufficient"
	ErrFeePayerTransferring   = "invalid_exact_svm_payload_transaction_fee_payer_transferring_funds"
	ErrBlockhashExpired       = "invalid_exact_svm_payload_blockhash_expired"
	ErrInvalidSignature       = "invalid_exact_svm_payload_signature"
	ErrMultipleTransfers      = "invalid_exact_svm_payload_multiple_transfer_instructions"
)
