package avm

import (
	"context"
	"fmt"

	"github.com/algorand/go-algorand-sdk/v2/crypto"
	"github.com/algorand/go-algorand-sdk/v2/mnemonic"
	algotypes "github.com/algorand/go-algorand-sdk/v2/types"

	x402avm "github.com/x402-foundation/x402/go/mechanisms/avm"
)

// ClientSigner implements x402avm.ClientAvmSigner from a raw Algorand
// account keypair, signing every transaction in a group whose Sender is
// its own address and leaving the rest untouched for the facilitator.
type ClientSigner struct {
	account crypto.Account
}

// NewClientSigner creates a client signer from an already-derived
// crypto.Account.
func NewClientSigner(account crypto.Account) *ClientSigner {
	return &ClientSigner{account: account}
}

// NewClientSignerFromMnemonic creates a client signer from a 25-word
// Algorand mnemonic.
func NewClientSignerFromMnemonic(mn string) (*ClientSigner, error) {
	sk, err := mnemonic.ToPrivateKey(mn)
	if err != nil {
		return nil, fmt.Errorf("avm signer: invalid mnemonic: %w", err)
	}
	account, err := crypto.AccountFromPrivateKey(sk)
	if err != nil {
		return nil, fmt.Errorf("avm signer: derive account: %w", err)
	}
	return &ClientSigner{account: account}, nil
}

func (s *ClientSigner) Address() algotypes.Address { return s.account.Address }

// SignTransactions signs every transaction in group sent by this signer's
// address, returning msgpack-encoded SignedTxn bytes at the matching
// index and nil elsewhere (left for the facilitator to countersign).
func (s *ClientSigner) SignTransactions(ctx context.Context, group []algotypes.Transaction) ([][]byte, error) {
	_ = ctx
	out := make([][]byte, len(group))
	for i, txn := range group {
		if txn.Sender != s.account.Address {
			continue
		}
		_, signed, err := crypto.SignTransaction(s.account.PrivateKey, txn)
		if err != nil {
			return nil, fmt.Errorf("avm signer: sign transaction %d: %w", i, err)
		}
		out[i] = signed
	}
	return out, nil
}

var _ x402avm.ClientAvmSigner = (*ClientSigner)(nil)
