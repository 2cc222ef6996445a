package svm

import (
	"context"
	"fmt"
	"time"

	solana "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	x402svm "github.com/x402-foundation/x402/go/mechanisms/svm"
)

// MaxConfirmAttempts and ConfirmRetryDelay bound how long ConfirmTransaction
// polls before giving up.
const (
	MaxConfirmAttempts = 30
	ConfirmRetryDelay  = time.Second
)

// FacilitatorSigner implements x402svm.FacilitatorSvmSigner against a real
// Solana RPC endpoint. SVM exact never sponsors fees, so this signer only
// ever reads chain state and relays an already-fully-signed transaction —
// it holds no private key.
type FacilitatorSigner struct {
	client    *rpc.Client
	addresses []string
}

// NewFacilitatorSigner creates a FacilitatorSigner backed by rpcURL.
// addresses lists the facilitator's own public keys, used by
// ExactSvmFacilitator to reject transactions that route funds through the
// facilitator itself.
func NewFacilitatorSigner(rpcURL string, addresses ...string) *FacilitatorSigner {
	return &FacilitatorSigner{
		client:    rpc.New(rpcURL),
		addresses: addresses,
	}
}

func (s *FacilitatorSigner) GetAddresses() []string { return s.addresses }

func (s *FacilitatorSigner) GetSlot(ctx context.Context) (uint64, error) {
	return s.client.GetSlot(ctx, rpc.CommitmentConfirmed)
}

// GetBlockhashValidity reports whether blockhash is still usable and the
// slot it was last valid at, by comparing against the node's current
// blockhash validity window.
func (s *FacilitatorSigner) GetBlockhashValidity(ctx context.Context, blockhash solana.Hash) (bool, uint64, error) {
	result, err := s.client.IsBlockhashValid(ctx, blockhash, rpc.CommitmentConfirmed)
	if err != nil {
		return false, 0, fmt.Errorf("svm facilitator: check blockhash: %w", err)
	}
	slot, err := s.client.GetSlot(ctx, rpc.CommitmentConfirmed)
	if err != nil {
		return false, 0, fmt.Errorf("svm facilitator: get slot: %w", err)
	}
	return result.Value, slot, nil
}

// SubmitTransaction broadcasts a fully-signed transaction and returns its
// signature. Preflight is skipped because Verify has already replicated
// every on-chain check preflight would perform.
func (s *FacilitatorSigner) SubmitTransaction(ctx context.Context, tx *solana.Transaction) (string, error) {
	sig, err := s.client.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		SkipPreflight:       true,
		PreflightCommitment: rpc.CommitmentConfirmed,
	})
	if err != nil {
		return "", fmt.Errorf("svm facilitator: send transaction: %w", err)
	}
	return sig.String(), nil
}

// ConfirmTransaction polls the signature status until it reaches
// commitment or the node reports an on-chain failure.
func (s *FacilitatorSigner) ConfirmTransaction(ctx context.Context, signature string, commitment string) error {
	sig, err := solana.SignatureFromBase58(signature)
	if err != nil {
		return fmt.Errorf("svm facilitator: invalid signature: %w", err)
	}

	wantFinalized := commitment == string(rpc.CommitmentFinalized)

	for attempt := 0; attempt < MaxConfirmAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		statuses, err := s.client.GetSignatureStatuses(ctx, true, sig)
		if err == nil && statuses != nil && len(statuses.Value) > 0 && statuses.Value[0] != nil {
			status := statuses.Value[0]
			if status.Err != nil {
				return fmt.Errorf("svm facilitator: transaction failed on-chain")
			}
			if status.ConfirmationStatus == rpc.ConfirmationStatusFinalized {
				return nil
			}
			if !wantFinalized && status.ConfirmationStatus == rpc.ConfirmationStatusConfirmed {
				return nil
			}
		}

		time.Sleep(ConfirmRetryDelay)
	}

	return fmt.Errorf("svm facilitator: confirmation timed out after %d attempts", MaxConfirmAttempts)
}

var _ x402svm.FacilitatorSvmSigner = (*FacilitatorSigner)(nil)
