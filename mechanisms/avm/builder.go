package avm

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/algorand/go-algorand-sdk/v2/encoding/msgpack"
	algotypes "github.com/algorand/go-algorand-sdk/v2/types"
)

// DefaultValidityRounds is how many rounds ahead of the current round a
// client-built transaction's LastValid is set, absent a tighter window
// implied by requirements.MaxTimeoutSeconds (roughly 1000 rounds / ~50min
// at Algorand's ~3s block time, mirroring the SDK's own default window).
const DefaultValidityRounds = uint64(1000)

// BuildGroupOptions carries everything BuildPaymentGroup needs beyond the
// bare requirements: the suggested network parameters and an optional fee
// payer address (present iff requirements.Extra["feePayer"] was set).
type BuildGroupOptions struct {
	Payer        algotypes.Address
	PayTo        algotypes.Address
	AssetID      uint64
	Amount       uint64
	Params       SuggestedParams
	FeePayer     *algotypes.Address
}

// BuildPaymentGroup constructs the atomic group a client submits for an
// AVM exact payment, per spec.md §4.5.3:
//
//   - With a fee payer: [fee-payer self-payment of 0 (unsigned, flat fee =
//     minFee*groupSize), ASA transfer from payer (fee 0)].
//   - Without a fee payer: [ASA transfer from payer (fee = minFee)].
//
// A group id is assigned iff the group has more than one transaction. The
// ASA transfer's index within the returned slice is also returned as
// paymentIndex.
func BuildPaymentGroup(opts BuildGroupOptions) (group []algotypes.Transaction, paymentIndex int, err error) {
	minFee := opts.Params.MinFee
	if minFee == 0 {
		minFee = MinTxnFee
	}

	assetTransfer := algotypes.Transaction{
		Type: algotypes.AssetTransferTx,
		Header: algotypes.Header{
			Sender:      opts.Payer,
			FirstValid:  algotypes.Round(opts.Params.FirstValid),
			LastValid:   algotypes.Round(opts.Params.LastValid),
			GenesisID:   opts.Params.GenesisID,
			GenesisHash: toDigest(opts.Params.GenesisHash),
		},
		AssetTransferTxnFields: algotypes.AssetTransferTxnFields{
			XferAsset:     algotypes.AssetIndex(opts.AssetID),
			AssetAmount:   opts.Amount,
			AssetReceiver: opts.PayTo,
		},
	}

	if opts.FeePayer == nil {
		assetTransfer.Fee = algotypes.MicroAlgos(minFee)
		return []algotypes.Transaction{assetTransfer}, 0, nil
	}

	groupSize := uint64(2)
	feePayerTxn := algotypes.Transaction{
		Type: algotypes.PaymentTx,
		Header: algotypes.Header{
			Sender:      *opts.FeePayer,
			Fee:         algotypes.MicroAlgos(minFee * groupSize),
			FirstValid:  algotypes.Round(opts.Params.FirstValid),
			LastValid:   algotypes.Round(opts.Params.LastValid),
			GenesisID:   opts.Params.GenesisID,
			GenesisHash: toDigest(opts.Params.GenesisHash),
		},
		PaymentTxnFields: algotypes.PaymentTxnFields{
			Receiver: *opts.FeePayer,
			Amount:   0,
		},
	}
	assetTransfer.Fee = 0

	grp := []algotypes.Transaction{feePayerTxn, assetTransfer}
	gid, err := groupID(grp)
	if err != nil {
		return nil, 0, fmt.Errorf("avm exact: compute group id: %w", err)
	}
	for i := range grp {
		grp[i].Group = gid
	}

	return grp, 1, nil
}

func toDigest(b []byte) (d algotypes.Digest) {
	copy(d[:], b)
	return d
}

// SignGroup signs every transaction in group whose Sender matches signer,
// encodes each signed entry as msgpack, and base64-encodes the result —
// the exact wire shape of one paymentGroup entry. Transactions not sent by
// signer are left as unsigned, bare-msgpack-encoded entries for the
// facilitator to countersign.
func SignGroup(ctx context.Context, signer ClientAvmSigner, group []algotypes.Transaction) ([]string, error) {
	signedBytes, err := signer.SignTransactions(ctx, group)
	if err != nil {
		return nil, fmt.Errorf("avm exact: sign group: %w", err)
	}
	if len(signedBytes) != len(group) {
		return nil, fmt.Errorf("avm exact: signer returned %d entries for a %d-txn group", len(signedBytes), len(group))
	}

	out := make([]string, len(group))
	for i, raw := range signedBytes {
		if raw != nil {
			out[i] = base64.StdEncoding.EncodeToString(raw)
			continue
		}
		// Encode unsigned entries the same way decodeGroupEntry reads them
		// back: nested under a SignedTxn's "txn" key with an empty
		// signature, not as a bare Transaction (whose top-level msgpack
		// keys don't match the canonical wire shape).
		unsigned := msgpack.Encode(algotypes.SignedTxn{Txn: group[i]})
		out[i] = base64.StdEncoding.EncodeToString(unsigned)
	}
	return out, nil
}
