package runtime

import (
	"bytes"
	"context"
	"fmt"

	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/go-errors/errors"
	"github.com/mycitadel/citadel-runtime/assetclient"
	"github.com/mycitadel/citadel-runtime/model"
)

// BroadcastFailed wraps a transport error encountered while submitting a
// finalized transaction to the indexer, distinct from a finalization
// refusal (which is a Failure, not an infrastructure error).
type BroadcastFailed struct {
	Err *errors.Error
}

func newBroadcastFailed(cause error) *BroadcastFailed {
	return &BroadcastFailed{Err: errors.Wrap(cause, 1)}
}

func (e *BroadcastFailed) Error() string { return fmt.Sprintf("broadcast failed: %v", e.Err) }
func (e *BroadcastFailed) Unwrap() error { return e.Err.Err }

// FinalizeTransfer runs miniscript finalization on psbtRaw to produce a
// fully signed transaction and submits it to the indexer once. Transport
// errors map to BroadcastFailed; an unfinalizable PSBT maps to a non-fatal
// Failure reply rather than an infrastructure error, per spec.md §4.4.
func (r *Runtime) FinalizeTransfer(ctx context.Context, psbtRaw []byte) (chainhash.Hash, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	packet, err := psbt.NewFromRawBytes(bytes.NewReader(psbtRaw), false)
	if err != nil {
		return chainhash.Hash{}, newFailure("decode PSBT: %v", err)
	}

	if err := psbt.MaybeFinalizeAll(packet); err != nil {
		return chainhash.Hash{}, newFailure("finalization failed: %v", err)
	}
	if !packet.IsComplete() {
		return chainhash.Hash{}, newFailure("finalization incomplete: not every input could be finalized")
	}

	finalTx, err := psbt.Extract(packet)
	if err != nil {
		return chainhash.Hash{}, newFailure("extract final transaction: %v", err)
	}

	var raw bytes.Buffer
	if err := finalTx.Serialize(&raw); err != nil {
		return chainhash.Hash{}, fmt.Errorf("runtime: serialize final transaction: %w", err)
	}

	txid, err := r.indexer.TransactionBroadcast(ctx, raw.Bytes())
	if err != nil {
		return chainhash.Hash{}, newBroadcastFailed(err)
	}
	return txid, nil
}

// AcceptTransfer submits consignment to the asset daemon for validation.
// When the consignment validates, every stored blinding reveal across every
// known contract is checked against the consignment's endpoint hashes
// (decoded by the daemon as part of Validate, since the core never parses a
// consignment's internals itself) and only the matching reveals are offered
// to Accept, per spec.md §4.4's "collect those whose outpoint-hash appears
// in the consignment's endpoints". The validation status is returned
// regardless of acceptance outcome.
func (r *Runtime) AcceptTransfer(ctx context.Context, consignment []byte) (assetclient.ValidationStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	validated, err := r.assetClient.Validate(ctx, assetclient.ValidateRequest{Consignment: consignment})
	if err != nil {
		return 0, newAssetDaemonError(err)
	}
	if validated.Status != assetclient.ValidationValid {
		return validated.Status, nil
	}

	endpointHashes := make(map[[32]byte]bool, len(validated.Endpoints))
	for _, h := range validated.Endpoints {
		endpointHashes[h] = true
	}

	contracts, err := r.storage.ListContracts()
	if err != nil {
		return validated.Status, fmt.Errorf("runtime: list contracts: %w", err)
	}
	var reveals []model.OutpointReveal
	for _, c := range contracts {
		for _, reveal := range c.Data.BlindingReveals {
			if endpointHashes[reveal.Hash()] {
				reveals = append(reveals, reveal)
			}
		}
	}

	if err := r.assetClient.Accept(ctx, assetclient.AcceptRequest{
		Consignment: consignment,
		Reveals:     reveals,
	}); err != nil {
		return validated.Status, newAssetDaemonError(err)
	}
	return validated.Status, nil
}
