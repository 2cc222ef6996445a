package avm

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/algorand/go-algorand-sdk/v2/encoding/msgpack"
	algotypes "github.com/algorand/go-algorand-sdk/v2/types"

	x402 "github.com/x402-foundation/x402/go"
)

// txSignDomainPrefix is prepended to a transaction's msgpack encoding
// before ed25519 signing/verification, per the Algorand transaction
// signing scheme's domain separation convention.
var txSignDomainPrefix = []byte("TX")

// ExactAvmFacilitator implements SchemeNetworkFacilitator for AVM exact
// payments: decode the atomic group, run the nine-step verification in
// spec.md §4.5.3, and on settle countersign any fee-payer entries before
// submitting the group.
type ExactAvmFacilitator struct {
	signer FacilitatorAvmSigner
	node   NodeClient
}

// NewExactAvmFacilitator creates a new ExactAvmFacilitator.
func NewExactAvmFacilitator(signer FacilitatorAvmSigner, node NodeClient) *ExactAvmFacilitator {
	return &ExactAvmFacilitator{signer: signer, node: node}
}

func (f *ExactAvmFacilitator) Scheme() string { return SchemeExact }

func decodeAvmPayload(payloadBytes []byte) (*ExactAvmPayload, x402.PaymentRequirements, error) {
	var payload x402.PaymentPayload
	if err := json.Unmarshal(payloadBytes, &payload); err != nil {
		return nil, x402.PaymentRequirements{}, errors.New(ErrInvalidPayloadFormat)
	}
	avmPayload, err := PayloadFromMap(payload.Payload)
	if err != nil {
		return nil, x402.PaymentRequirements{}, errors.New(ErrInvalidPayloadFormat)
	}
	return avmPayload, payload.Accepted, nil
}

func (f *ExactAvmFacilitator) isFeePayer(addr algotypes.Address) bool {
	for _, a := range f.signer.FeePayerAddresses() {
		if a == addr {
			return true
		}
	}
	return false
}

// decodeAndValidateGroup runs verification steps 1-6 (payload shape,
// per-entry decode, group integrity, security constraints, payment-index
// checks, fee-payer-entry checks) and returns the decoded entries plus the
// payer address on success.
func (f *ExactAvmFacilitator) decodeAndValidateGroup(
	avmPayload *ExactAvmPayload,
	requirements x402.PaymentRequirements,
) ([]decodedEntry, string, string) {
	n := len(avmPayload.PaymentGroup)
	if n == 0 || n > MaxGroupSize {
		return nil, "", ErrGroupSizeExceeded
	}
	if avmPayload.PaymentIndex < 0 || avmPayload.PaymentIndex >= n {
		return nil, "", ErrInvalidPaymentIndex
	}

	entries := make([]decodedEntry, n)
	txns := make([]algotypes.Transaction, n)
	for i, b64 := range avmPayload.PaymentGroup {
		raw, err := base64.StdEncoding.DecodeString(b64)
		if err != nil {
			return nil, "", ErrInvalidTransactionEncoding
		}
		entry, err := decodeGroupEntry(raw)
		if err != nil {
			return nil, "", ErrInvalidTransactionEncoding
		}
		if !entry.Signed && !f.isFeePayer(entry.Txn.Sender) {
			return nil, "", ErrInvalidFeePayerTxn
		}
		entries[i] = entry
		txns[i] = entry.Txn
	}

	// Step 3: group integrity.
	if n > 1 {
		expected, err := groupID(txns)
		if err != nil {
			return nil, "", ErrInconsistentGroupID
		}
		for _, t := range txns {
			if t.Group != expected {
				return nil, "", ErrInconsistentGroupID
			}
		}
	}

	// Step 4: security constraints over every transaction in the group.
	if reason := checkSecurityConstraints(txns); reason != "" {
		return nil, "", reason
	}

	// Step 5: the payment-index transaction itself.
	payTxn := entries[avmPayload.PaymentIndex]
	if payTxn.Txn.Type != algotypes.AssetTransferTx {
		return nil, "", ErrInvalidPayloadFormat
	}
	if reason := checkPaymentAmount(payTxn.Txn, requirements); reason != "" {
		return nil, "", reason
	}
	if !payTxn.Signed {
		return nil, "", ErrPaymentNotSigned
	}
	if payTxn.Signed && payTxn.Stxn.Sig != (algotypes.Signature{}) {
		if !verifyEd25519Signature(payTxn.Txn, payTxn.Txn.Sender, payTxn.Stxn.Sig) {
			return nil, "", ErrPaymentNotSigned
		}
	}

	// Step 6: every other, facilitator-owned fee-payer transaction.
	for i, entry := range entries {
		if i == avmPayload.PaymentIndex {
			continue
		}
		if reason := checkFeePayerTxn(entry.Txn); reason != "" {
			return nil, "", reason
		}
	}

	return entries, payTxn.Txn.Sender.String(), ""
}

// checkSecurityConstraints enforces step 4: no keyreg, no close-to of any
// kind, and rekey only as a same-sender sandwich of exactly two entries
// where the second restores authority to the sender.
func checkSecurityConstraints(txns []algotypes.Transaction) string {
	rekeysBySender := map[algotypes.Address][]int{}

	for i, t := range txns {
		if t.Type == algotypes.KeyRegistrationTx {
			return ErrSecurityKeyregNotAllowed
		}
		if t.Type == algotypes.PaymentTx && t.CloseRemainderTo != (algotypes.Address{}) {
			return ErrSecurityCloseToNotAllowed
		}
		if t.Type == algotypes.AssetTransferTx && t.AssetCloseTo != (algotypes.Address{}) {
			return ErrSecurityCloseToNotAllowed
		}
		if t.RekeyTo != (algotypes.Address{}) {
			rekeysBySender[t.Sender] = append(rekeysBySender[t.Sender], i)
		}
	}

	for sender, idxs := range rekeysBySender {
		if len(idxs) != 2 {
			return ErrSecurityRekeyNotAllowed
		}
		second := txns[idxs[1]]
		if second.RekeyTo != sender {
			return ErrSecurityRekeyNotAllowed
		}
	}

	return ""
}

// checkPaymentAmount enforces the three equality checks of step 5:
// assetAmount, assetReceiver, assetIndex.
func checkPaymentAmount(txn algotypes.Transaction, requirements x402.PaymentRequirements) string {
	assetInfo, err := GetAssetInfo(string(requirements.Network), requirements.Asset)
	if err != nil {
		return ErrAssetMismatch
	}
	if uint64(txn.XferAsset) != assetInfo.ID {
		return ErrAssetMismatch
	}

	wantAmount, err := ParseAmount(requirements.Amount, assetInfo.Decimals)
	if err != nil {
		return ErrAmountMismatch
	}
	if txn.AssetAmount != wantAmount {
		return fmt.Sprintf("%s: expected %d, got %d", ErrAmountMismatch, wantAmount, txn.AssetAmount)
	}

	payTo, err := algotypes.DecodeAddress(requirements.PayTo)
	if err != nil || txn.AssetReceiver != payTo {
		return ErrReceiverMismatch
	}

	return ""
}

// checkFeePayerTxn enforces step 6 for one facilitator-signed entry.
func checkFeePayerTxn(txn algotypes.Transaction) string {
	if txn.Type != algotypes.PaymentTx {
		return ErrInvalidFeePayer
	}
	if txn.Amount != 0 {
		return ErrInvalidFeePayer
	}
	if txn.CloseRemainderTo != (algotypes.Address{}) {
		return ErrSecurityCloseToNotAllowed
	}
	if txn.RekeyTo != (algotypes.Address{}) {
		return ErrSecurityRekeyNotAllowed
	}
	if uint64(txn.Fee) > MaxReasonableFee {
		return ErrFeeTooHigh
	}
	return ""
}

func verifyEd25519Signature(txn algotypes.Transaction, sender algotypes.Address, sig algotypes.Signature) bool {
	msg := append(append([]byte{}, txSignDomainPrefix...), msgpack.Encode(txn)...)
	return ed25519.Verify(sender[:], msg, sig[:])
}

// Verify runs the full nine-step AVM exact verification described in
// spec.md §4.5.3, short-circuiting on the first failed step.
func (f *ExactAvmFacilitator) Verify(
	ctx context.Context,
	version int,
	payloadBytes []byte,
	requirementsBytes []byte,
) (x402.VerifyResponse, error) {
	var requirements x402.PaymentRequirements
	if err := json.Unmarshal(requirementsBytes, &requirements); err != nil {
		return x402.VerifyResponse{IsValid: false, InvalidReason: ErrInvalidPayloadFormat}, nil
	}

	avmPayload, _, err := decodeAvmPayload(payloadBytes)
	if err != nil {
		return x402.VerifyResponse{IsValid: false, InvalidReason: err.Error()}, nil
	}

	entries, payer, reason := f.decodeAndValidateGroup(avmPayload, requirements)
	if reason != "" {
		return x402.VerifyResponse{IsValid: false, InvalidReason: reason, Payer: payer}, nil
	}
	payTxn := entries[avmPayload.PaymentIndex].Txn

	// Step 7: round validity.
	round, err := f.node.CurrentRound(ctx)
	if err != nil {
		return x402.VerifyResponse{}, fmt.Errorf("%s: %w", ErrNetworkError, err)
	}
	if round < uint64(payTxn.FirstValid) || round > uint64(payTxn.LastValid) {
		return x402.VerifyResponse{IsValid: false, InvalidReason: ErrRoundValidity, Payer: payer}, nil
	}

	// Step 8: recipient opted into the asset.
	optedIn, err := f.node.AssetOptedIn(ctx, payTxn.AssetReceiver, uint64(payTxn.XferAsset))
	if err != nil {
		return x402.VerifyResponse{}, fmt.Errorf("%s: %w", ErrNetworkError, err)
	}
	if !optedIn {
		return x402.VerifyResponse{IsValid: false, InvalidReason: ErrASAOptInRequired, Payer: payer}, nil
	}

	// Step 9: node-side simulation of the full group.
	simGroup, err := wrapForSimulation(entries)
	if err != nil {
		return x402.VerifyResponse{}, fmt.Errorf("%s: %w", ErrNetworkError, err)
	}
	simResult, err := f.node.SimulateGroup(ctx, simGroup)
	if err != nil {
		return x402.VerifyResponse{}, fmt.Errorf("%s: %w", ErrNetworkError, err)
	}
	if simResult.Failed {
		reason := ErrSimulationFailed
		if simResult.FailureMessage != "" {
			reason = fmt.Sprintf("%s: %s", ErrSimulationFailed, simResult.FailureMessage)
		}
		return x402.VerifyResponse{IsValid: false, InvalidReason: reason, Payer: payer}, nil
	}

	return x402.VerifyResponse{IsValid: true, Payer: payer}, nil
}

// wrapForSimulation re-encodes every entry for node simulation: signed
// entries are passed through as-is, unsigned fee-payer entries are
// encoded bare (algod's simulate endpoint accepts unsigned transactions
// when AllowUnnamedResources/AllowEmptySignatures is set by the NodeClient
// implementation).
func wrapForSimulation(entries []decodedEntry) ([][]byte, error) {
	out := make([][]byte, len(entries))
	for i, e := range entries {
		if e.Signed {
			out[i] = msgpack.Encode(e.Stxn)
		} else {
			out[i] = msgpack.Encode(e.Txn)
		}
	}
	return out, nil
}

// Settle re-verifies, countersigns any unsigned facilitator-owned entries,
// concatenates the group in order, submits it, and waits for confirmation.
func (f *ExactAvmFacilitator) Settle(
	ctx context.Context,
	version int,
	payloadBytes []byte,
	requirementsBytes []byte,
) (x402.SettleResponse, error) {
	var requirements x402.PaymentRequirements
	if err := json.Unmarshal(requirementsBytes, &requirements); err != nil {
		return x402.SettleResponse{Success: false, ErrorReason: ErrInvalidPayloadFormat}, nil
	}

	verifyResp, err := f.Verify(ctx, version, payloadBytes, requirementsBytes)
	if err != nil {
		return x402.SettleResponse{}, err
	}
	if !verifyResp.IsValid {
		return x402.SettleResponse{
			Success:     false,
			ErrorReason: verifyResp.InvalidReason,
			Payer:       verifyResp.Payer,
			Network:     requirements.Network,
		}, nil
	}

	avmPayload, _, err := decodeAvmPayload(payloadBytes)
	if err != nil {
		return x402.SettleResponse{Success: false, ErrorReason: err.Error()}, nil
	}

	entries := make([]decodedEntry, len(avmPayload.PaymentGroup))
	for i, b64 := range avmPayload.PaymentGroup {
		raw, err := base64.StdEncoding.DecodeString(b64)
		if err != nil {
			return x402.SettleResponse{Success: false, ErrorReason: ErrInvalidTransactionEncoding}, nil
		}
		entry, err := decodeGroupEntry(raw)
		if err != nil {
			return x402.SettleResponse{Success: false, ErrorReason: ErrInvalidTransactionEncoding}, nil
		}
		entries[i] = entry
	}

	signedBytes := make([][]byte, len(entries))
	for i, e := range entries {
		if e.Signed {
			signedBytes[i] = msgpack.Encode(e.Stxn)
			continue
		}
		signed, err := f.signer.SignTransaction(ctx, e.Txn)
		if err != nil {
			return x402.SettleResponse{
				Success:     false,
				ErrorReason: fmt.Sprintf("%s: %v", ErrNetworkError, err),
				Payer:       verifyResp.Payer,
				Network:     requirements.Network,
			}, nil
		}
		signedBytes[i] = signed
	}

	txID, err := f.node.SubmitGroup(ctx, signedBytes, avmPayload.PaymentIndex)
	if err != nil {
		return x402.SettleResponse{
			Success:     false,
			ErrorReason: fmt.Sprintf("%s: %v", ErrNetworkError, err),
			Payer:       verifyResp.Payer,
			Network:     requirements.Network,
		}, nil
	}

	if err := f.node.WaitForConfirmation(ctx, txID, DefaultConfirmationRounds); err != nil {
		return x402.SettleResponse{
			Success:     false,
			ErrorReason: fmt.Sprintf("%s: %v", ErrNetworkError, err),
			Transaction: txID,
			Payer:       verifyResp.Payer,
			Network:     requirements.Network,
		}, nil
	}

	return x402.SettleResponse{
		Success:     true,
		Transaction: txID,
		Network:     requirements.Network,
		Payer:       verifyResp.Payer,
	}, nil
}
