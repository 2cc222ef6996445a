package avm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/algorand/go-algorand-sdk/v2/client/v2/algod"
	"github.com/algorand/go-algorand-sdk/v2/client/v2/common/models"
	"github.com/algorand/go-algorand-sdk/v2/crypto"
	"github.com/algorand/go-algorand-sdk/v2/encoding/msgpack"
	algotypes "github.com/algorand/go-algorand-sdk/v2/types"

	x402avm "github.com/x402-foundation/x402/go/mechanisms/avm"
)

// FacilitatorSigner implements both x402avm.FacilitatorAvmSigner and
// x402avm.NodeClient against a real algod endpoint. It holds the private
// keys of every fee-payer account the facilitator is willing to sponsor
// group fees from.
type FacilitatorSigner struct {
	client   *algod.Client
	accounts map[algotypes.Address]crypto.Account
	addrs    []algotypes.Address
}

// NewFacilitatorSigner creates a FacilitatorSigner backed by an algod node
// at algodURL (with the given API token), sponsoring fees from accounts.
func NewFacilitatorSigner(algodURL, algodToken string, accounts ...crypto.Account) (*FacilitatorSigner, error) {
	client, err := algod.MakeClient(algodURL, algodToken)
	if err != nil {
		return nil, fmt.Errorf("avm facilitator: connect to algod: %w", err)
	}

	s := &FacilitatorSigner{
		client:   client,
		accounts: make(map[algotypes.Address]crypto.Account, len(accounts)),
	}
	for _, acct := range accounts {
		s.accounts[acct.Address] = acct
		s.addrs = append(s.addrs, acct.Address)
	}
	return s, nil
}

func (s *FacilitatorSigner) FeePayerAddresses() []algotypes.Address { return s.addrs }

// SignTransaction signs txn with whichever fee-payer account it names as
// Sender.
func (s *FacilitatorSigner) SignTransaction(ctx context.Context, txn algotypes.Transaction) ([]byte, error) {
	_ = ctx
	acct, ok := s.accounts[txn.Sender]
	if !ok {
		return nil, fmt.Errorf("avm facilitator: no key for fee-payer address %s", txn.Sender.String())
	}
	_, signed, err := crypto.SignTransaction(acct.PrivateKey, txn)
	if err != nil {
		return nil, fmt.Errorf("avm facilitator: sign fee-payer transaction: %w", err)
	}
	return signed, nil
}

// CurrentRound returns the node's last confirmed round.
func (s *FacilitatorSigner) CurrentRound(ctx context.Context) (uint64, error) {
	status, err := s.client.Status().Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("avm facilitator: node status: %w", err)
	}
	return status.LastRound, nil
}

// SuggestedFeePerByte returns the node's current suggested fee per byte.
func (s *FacilitatorSigner) SuggestedFeePerByte(ctx context.Context) (uint64, error) {
	params, err := s.client.SuggestedParams().Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("avm facilitator: suggested params: %w", err)
	}
	return params.Fee, nil
}

// AssetOptedIn reports whether address has opted into assetID, treating a
// 404 from the node as "not opted in" rather than an error.
func (s *FacilitatorSigner) AssetOptedIn(ctx context.Context, address algotypes.Address, assetID uint64) (bool, error) {
	_, err := s.client.AccountAssetInformation(address.String(), assetID).Do(ctx)
	if err != nil {
		if strings.Contains(err.Error(), "404") || strings.Contains(strings.ToLower(err.Error()), "not found") {
			return false, nil
		}
		return false, fmt.Errorf("avm facilitator: account asset information: %w", err)
	}
	return true, nil
}

// SimulateGroup dry-runs signedGroup via the node's /transactions/simulate
// endpoint, decoding each entry back into a SignedTxn for the request.
func (s *FacilitatorSigner) SimulateGroup(ctx context.Context, signedGroup [][]byte) (x402avm.SimulateResult, error) {
	txns := make([]algotypes.SignedTxn, len(signedGroup))
	for i, raw := range signedGroup {
		if err := msgpack.Decode(raw, &txns[i]); err != nil {
			return x402avm.SimulateResult{}, fmt.Errorf("avm facilitator: decode simulate entry %d: %w", i, err)
		}
	}

	request := models.SimulateRequest{
		TxnGroups: []models.SimulateRequestTransactionGroup{{Txns: txns}},
		AllowEmptySignatures: true,
		AllowUnnamedResources: true,
	}

	resp, err := s.client.SimulateTransaction(request).Do(ctx)
	if err != nil {
		return x402avm.SimulateResult{}, fmt.Errorf("avm facilitator: simulate transaction: %w", err)
	}

	for _, group := range resp.TxnGroups {
		if group.FailureMessage != "" {
			return x402avm.SimulateResult{Failed: true, FailureMessage: group.FailureMessage}, nil
		}
	}
	return x402avm.SimulateResult{Failed: false}, nil
}

// SubmitGroup concatenates signedGroup in order and broadcasts it as one
// raw transaction submission, returning the paymentIndex entry's id.
func (s *FacilitatorSigner) SubmitGroup(ctx context.Context, signedGroup [][]byte, paymentIndex int) (string, error) {
	var combined []byte
	for _, raw := range signedGroup {
		combined = append(combined, raw...)
	}

	_, err := s.client.SendRawTransaction(combined).Do(ctx)
	if err != nil {
		return "", fmt.Errorf("avm facilitator: send raw transaction: %w", err)
	}

	var stxn algotypes.SignedTxn
	if err := msgpack.Decode(signedGroup[paymentIndex], &stxn); err != nil {
		return "", fmt.Errorf("avm facilitator: decode payment entry: %w", err)
	}
	txID := stxn.Txn.ID().String()
	return txID, nil
}

// WaitForConfirmation polls PendingTransactionInformation until txID is
// confirmed or maxRounds pass.
func (s *FacilitatorSigner) WaitForConfirmation(ctx context.Context, txID string, maxRounds uint64) error {
	status, err := s.client.Status().Do(ctx)
	if err != nil {
		return fmt.Errorf("avm facilitator: node status: %w", err)
	}
	startRound := status.LastRound

	for round := startRound; round < startRound+maxRounds; {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		pending, err := s.client.PendingTransactionInformation(txID).Do(ctx)
		if err == nil {
			if pending.ConfirmedRound > 0 {
				return nil
			}
			if pending.PoolError != "" {
				return fmt.Errorf("avm facilitator: transaction rejected: %s", pending.PoolError)
			}
		}

		if _, statusErr := s.client.StatusAfterBlock(round).Do(ctx); statusErr != nil {
			time.Sleep(time.Second)
		}
		round++
	}

	return fmt.Errorf("avm facilitator: confirmation timed out after %d rounds", maxRounds)
}

var (
	_ x402avm.FacilitatorAvmSigner = (*FacilitatorSigner)(nil)
	_ x402avm.NodeClient           = (*FacilitatorSigner)(nil)
)
