package runtime

import (
	"context"
	"encoding/hex"
	"fmt"
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"

	"github.com/mycitadel/citadel-runtime/electrum"
	"github.com/mycitadel/citadel-runtime/model"
)

// TestSyncContractEmptyChain covers an indexer that knows of no unspents
// at all: the sync walks one policy-derived window past last_used, stops,
// and still reports the subscribed tip height and an empty bitcoin bucket.
func TestSyncContractEmptyChain(t *testing.T) {
	h := newTestHarness(t)
	h.indexer.tipHeight = 800_000

	assets, err := h.rt.SyncContract(context.Background(), h.contract.ID, 20)
	require.NoError(t, err)

	require.Len(t, assets, 1)
	require.Empty(t, assets[model.BitcoinAssetID])

	// The first round carries no scripts (no recorded tweaks), so exactly
	// one batched indexer call is made before termination.
	require.Equal(t, 1, h.indexer.batchCalls)
	require.Equal(t, 1, h.cache.updates)
	require.Equal(t, uint32(800_000), h.cache.knownHeight)
}

// TestSyncContractFindsTweakedOutput covers rediscovery of a recorded
// pay-to-contract tweak: its script is not derivable from the policy, yet
// it is part of the initial batch and the resulting UTXO carries the
// recorded tweak and pubkey.
func TestSyncContractFindsTweakedOutput(t *testing.T) {
	h := newTestHarness(t)

	pub, err := h.contract.Policy.FirstPublicKey(5)
	require.NoError(t, err)

	var tweak [32]byte
	tweak[0] = 0xaa
	tweakScript := []byte{0x00, 0x14, 0xde, 0xad, 0xbe, 0xef}
	var txid chainhash.Hash
	txid[31] = 0x42

	h.contract.AddTweak(model.TweakedOutput{
		Outpoint:        wire.OutPoint{Hash: txid, Index: 1},
		Script:          tweakScript,
		Tweak:           tweak,
		PubKey:          pub,
		DerivationIndex: 5,
	})

	scriptHash := electrum.ScriptHash(tweakScript)
	h.indexer.unspents[hex.EncodeToString(scriptHash[:])] = []electrum.ScriptUnspent{{
		Height: 700_001,
		Value:  10_000,
		Txid:   txid,
		Vout:   1,
	}}

	assets, err := h.rt.SyncContract(context.Background(), h.contract.ID, 20)
	require.NoError(t, err)

	bitcoin := assets[model.BitcoinAssetID]
	require.Len(t, bitcoin, 1)
	utxo := bitcoin[0]
	require.Equal(t, txid, utxo.Txid)
	require.Equal(t, uint32(1), utxo.Vout)
	require.Equal(t, uint64(10_000), utxo.Value)
	require.Equal(t, model.UnhardenedIndex(5), utxo.DerivationIndex)
	require.NotNil(t, utxo.Tweak)
	require.Equal(t, tweak, *utxo.Tweak)
}

// TestSyncContractAttributesAssets covers step 5 of the sync algorithm: a
// discovered UTXO with a colored-asset allocation appears in both the
// bitcoin bucket (full sat value) and the asset bucket (asset units).
func TestSyncContractAttributesAssets(t *testing.T) {
	h := newTestHarness(t)

	scripts, err := h.contract.Policy.DeriveScripts(0, 1)
	require.NoError(t, err)
	var txid chainhash.Hash
	txid[0] = 0x07

	scriptHash := electrum.ScriptHash(scripts[0])
	h.indexer.unspents[hex.EncodeToString(scriptHash[:])] = []electrum.ScriptUnspent{{
		Height: 650_000,
		Value:  50_000,
		Txid:   txid,
		Vout:   0,
	}}

	assetID := model.AssetID{0x55}
	h.assets.amounts[wire.OutPoint{Hash: txid, Index: 0}] = map[model.AssetID]uint64{
		assetID: 777,
	}

	assets, err := h.rt.SyncContract(context.Background(), h.contract.ID, 20)
	require.NoError(t, err)

	require.Len(t, assets[model.BitcoinAssetID], 1)
	require.Equal(t, uint64(50_000), assets[model.BitcoinAssetID][0].Value)

	require.Len(t, assets[assetID], 1)
	require.Equal(t, uint64(777), assets[assetID][0].Value)
	require.Equal(t, txid, assets[assetID][0].Txid)
}

// TestSyncContractDistinguishesVouts covers one funding transaction paying
// the wallet on two different output indices: the sync must admit two
// distinct UTXOs keyed by (txid, vout), not collapse them.
func TestSyncContractDistinguishesVouts(t *testing.T) {
	h := newTestHarness(t)

	scripts, err := h.contract.Policy.DeriveScripts(0, 1)
	require.NoError(t, err)
	var txid chainhash.Hash
	txid[0] = 0x31

	scriptHash := electrum.ScriptHash(scripts[0])
	h.indexer.unspents[hex.EncodeToString(scriptHash[:])] = []electrum.ScriptUnspent{
		{Height: 640_000, Value: 1_000, Txid: txid, Vout: 0},
		{Height: 640_000, Value: 2_500, Txid: txid, Vout: 2},
	}

	assets, err := h.rt.SyncContract(context.Background(), h.contract.ID, 20)
	require.NoError(t, err)

	bitcoin := assets[model.BitcoinAssetID]
	require.Len(t, bitcoin, 2)
	vouts := map[uint32]uint64{}
	for _, u := range bitcoin {
		require.Equal(t, txid, u.Txid)
		vouts[u.Vout] = u.Value
	}
	require.Equal(t, map[uint32]uint64{0: 1_000, 2: 2_500}, vouts)
}

// TestSyncContractSkipsGroupOnMerkleFailure covers the Merkle-proof error
// policy: a group whose proof cannot be fetched is logged and left out of
// this run's result instead of being admitted with a fabricated in-block
// offset; the sync itself still succeeds.
func TestSyncContractSkipsGroupOnMerkleFailure(t *testing.T) {
	h := newTestHarness(t)
	h.indexer.merkleErr = fmt.Errorf("merkle proof unavailable")

	scripts, err := h.contract.Policy.DeriveScripts(0, 1)
	require.NoError(t, err)
	var txid chainhash.Hash
	txid[0] = 0x47

	scriptHash := electrum.ScriptHash(scripts[0])
	h.indexer.unspents[hex.EncodeToString(scriptHash[:])] = []electrum.ScriptUnspent{{
		Height: 640_000,
		Value:  1_000,
		Txid:   txid,
		Vout:   0,
	}}

	assets, err := h.rt.SyncContract(context.Background(), h.contract.ID, 20)
	require.NoError(t, err)
	require.Empty(t, assets[model.BitcoinAssetID])
}

// TestSyncContractRejectsInstantPolicy covers the open-question decision:
// an Instant policy has no on-chain derivation and is rejected up front.
func TestSyncContractRejectsInstantPolicy(t *testing.T) {
	h := newTestHarness(t)

	policy := model.Policy{Type: model.PolicyInstant, Channel: &model.ChannelDescriptor{}}
	contract := &model.Contract{Policy: policy, Name: "channel", Chain: "bitcoin"}
	contract.ID[0] = 0x99
	require.NoError(t, h.storage.AddContract(contract))

	_, err := h.rt.SyncContract(context.Background(), contract.ID, 20)
	require.ErrorIs(t, err, ErrInstantPolicyRejected)
}
