package svm

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	solana "github.com/gagliardetto/solana-go"

	x402 "github.com/x402-foundation/x402/go"
	exactfacilitator "github.com/x402-foundation/x402/go/mechanisms/svm/exact/facilitator"
)

// ExactSvmFacilitator implements SchemeNetworkFacilitator for SVM exact
// payments: deserialize the single signed transfer transaction, check it
// against requirements and chain state, then submit and confirm it.
type ExactSvmFacilitator struct {
	signer FacilitatorSvmSigner
}

// NewExactSvmFacilitator creates a new ExactSvmFacilitator.
func NewExactSvmFacilitator(signer FacilitatorSvmSigner) *ExactSvmFacilitator {
	return &ExactSvmFacilitator{signer: signer}
}

func (f *ExactSvmFacilitator) Scheme() string { return SchemeExact }

func decodeSvmPayload(payloadBytes []byte, version int) (*solana.Transaction, x402.PaymentRequirements, error) {
	var payload x402.PaymentPayload
	if err := json.Unmarshal(payloadBytes, &payload); err != nil {
		return nil, x402.PaymentRequirements{}, errors.New(ErrInvalidPayloadFormat)
	}

	svmPayload, err := PayloadFromMap(payload.Payload)
	if err != nil {
		return nil, x402.PaymentRequirements{}, errors.New(ErrInvalidPayloadFormat)
	}

	raw, err := base64.StdEncoding.DecodeString(svmPayload.Transaction)
	if err != nil {
		return nil, x402.PaymentRequirements{}, errors.New(ErrInvalidPayloadFormat)
	}

	tx, err := solana.TransactionFromDecoder(solana.NewBinDecoder(raw))
	if err != nil {
		return nil, x402.PaymentRequirements{}, errors.New(ErrInvalidPayloadFormat)
	}

	return tx, payload.Accepted, nil
}

// Verify checks that the transaction contains exactly one SPL transfer
// instruction matching requirements, is signed by every required account,
// has a fresh blockhash, and is fee-paid by the payer (never the
// facilitator — SVM exact has no fee sponsorship).
func (f *ExactSvmFacilitator) Verify(
	ctx context.Context,
	version int,
	payloadBytes []byte,
	requirementsBytes []byte,
) (x402.VerifyResponse, error) {
	var requirements x402.PaymentRequirements
	if err := json.Unmarshal(requirementsBytes, &requirements); err != nil {
		return x402.VerifyResponse{IsValid: false, InvalidReason: ErrInvalidPayloadFormat}, nil
	}

	tx, _, err := decodeSvmPayload(payloadBytes, version)
	if err != nil {
		return x402.VerifyResponse{IsValid: false, InvalidReason: err.Error()}, nil
	}

	if len(tx.Message.AccountKeys) == 0 {
		return x402.VerifyResponse{IsValid: false, InvalidReason: ErrInvalidPayloadFormat}, nil
	}
	feePayer := tx.Message.AccountKeys[0]

	for _, addr := range f.signer.GetAddresses() {
		if feePayer.String() == addr {
			return x402.VerifyResponse{IsValid: false, InvalidReason: ErrFeePayerTransferring}, nil
		}
	}

	transferIdx, payer, err := findTransferInstruction(tx, requirements.Asset, requirements.PayTo, requirements.Amount)
	if err != nil {
		return x402.VerifyResponse{IsValid: false, InvalidReason: err.Error()}, nil
	}

	if payer != feePayer.String() {
		return x402.VerifyResponse{IsValid: false, InvalidReason: ErrFeePayerTransferring, Payer: payer}, nil
	}

	if err := exactfacilitator.ValidateInstructionShape(tx, transferIdx); err != nil {
		return x402.VerifyResponse{IsValid: false, InvalidReason: err.Error(), Payer: payer}, nil
	}

	if err := verifySignatures(tx); err != nil {
		return x402.VerifyResponse{IsValid: false, InvalidReason: ErrInvalidSignature, Payer: payer}, nil
	}

	valid, _, err := f.signer.GetBlockhashValidity(ctx, tx.Message.RecentBlockhash)
	if err != nil {
		return x402.VerifyResponse{}, fmt.Errorf("network_error: %w", err)
	}
	if !valid {
		return x402.VerifyResponse{IsValid: false, InvalidReason: ErrBlockhashExpired, Payer: payer}, nil
	}

	return x402.VerifyResponse{IsValid: true, Payer: payer}, nil
}

// Settle re-verifies, then submits the transaction and waits for
// confirmation.
func (f *ExactSvmFacilitator) Settle(
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

	tx, _, err := decodeSvmPayload(payloadBytes, version)
	if err != nil {
		return x402.SettleResponse{Success: false, ErrorReason: err.Error()}, nil
	}

	signature, err := f.signer.SubmitTransaction(ctx, tx)
	if err != nil {
		return x402.SettleResponse{
			Success:     false,
			ErrorReason: fmt.Sprintf("network_error: %v", err),
			Payer:       verifyResp.Payer,
			Network:     requirements.Network,
		}, nil
	}

	if err := f.signer.ConfirmTransaction(ctx, signature, "confirmed"); err != nil {
		return x402.SettleResponse{
			Success:     false,
			ErrorReason: fmt.Sprintf("network_error: %v", err),
			Transaction: signature,
			Payer:       verifyResp.Payer,
			Network:     requirements.Network,
		}, nil
	}

	return x402.SettleResponse{
		Success:     true,
		Transaction: signature,
		Network:     requirements.Network,
		Payer:       verifyResp.Payer,
	}, nil
}

// findTransferInstruction locates the single required SPL TransferChecked
// (or legacy Transfer) instruction and returns its index and the source
// owner (the payer) address.
func findTransferInstruction(tx *solana.Transaction, asset, payTo, amountStr string) (int, string, error) {
	mint, err := solana.PublicKeyFromBase58(asset)
	if err != nil {
		return 0, "", errors.New(ErrMintMismatch)
	}
	payToKey, err := solana.PublicKeyFromBase58(payTo)
	if err != nil {
		return 0, "", errors.New(ErrRecipientMismatch)
	}
	expectedDest, _, err := solana.FindAssociatedTokenAddress(payToKey, mint)
	if err != nil {
		return 0, "", errors.New(ErrRecipientMismatch)
	}

	requiredAmount, ok := new(big.Int).SetString(amountStr, 10)
	if !ok {
		return 0, "", fmt.Errorf("invalid required amount: %s", amountStr)
	}

	found := -1
	var owner string
	for i, inst := range tx.Message.Instructions {
		if int(inst.ProgramIDIndex) >= len(tx.Message.AccountKeys) {
			continue
		}
		programID := tx.Message.AccountKeys[inst.ProgramIDIndex].String()
		if programID != TokenProgramAddress && programID != Token2022ProgramAddress {
			continue
		}
		if len(inst.Data) < 1 {
			continue
		}
		// TransferChecked discriminator is 12; legacy Transfer is 3.
		switch inst.Data[0] {
		case 12: // TransferChecked: [source, mint, destination, owner]
			if len(inst.Accounts) < 4 || len(inst.Data) < 9 {
				continue
			}
			if int(inst.Accounts[1]) >= len(tx.Message.AccountKeys) {
				continue
			}
			if tx.Message.AccountKeys[inst.Accounts[1]] != mint {
				return 0, "", errors.New(ErrMintMismatch)
			}
			if int(inst.Accounts[2]) >= len(tx.Message.AccountKeys) {
				continue
			}
			if tx.Message.AccountKeys[inst.Accounts[2]] != expectedDest {
				return 0, "", errors.New(ErrRecipientMismatch)
			}
			txAmount := new(big.Int).SetUint64(binary.LittleEndian.Uint64(inst.Data[1:9]))
			if txAmount.Cmp(requiredAmount) != 0 {
				return 0, "", errors.New(ErrAmountInsufficient)
			}
			if found >= 0 {
				return 0, "", errors.New(ErrMultipleTransfers)
			}
			found = i
			if int(inst.Accounts[3]) < len(tx.Message.AccountKeys) {
				owner = tx.Message.AccountKeys[inst.Accounts[3]].String()
			}
		}
	}

	if found < 0 {
		return 0, "", errors.New(ErrNoTransferInstruction)
	}
	return found, owner, nil
}

func verifySignatures(tx *solana.Transaction) error {
	message, err := tx.Message.MarshalBinary()
	if err != nil {
		return err
	}
	n := int(tx.Message.Header.NumRequiredSignatures)
	if n > len(tx.Signatures) || n > len(tx.Message.AccountKeys) {
		return fmt.Errorf("missing signatures")
	}
	for i := 0; i < n; i++ {
		pub := tx.Message.AccountKeys[i]
		sig := tx.Signatures[i]
		if !ed25519.Verify(pub[:], message, sig[:]) {
			return fmt.Errorf("invalid signature at index %d", i)
		}
	}
	return nil
}
