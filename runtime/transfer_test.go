package runtime

import (
	"bytes"
	"context"
	"testing"

	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/stretchr/testify/require"

	"github.com/mycitadel/citadel-runtime/assetclient"
	"github.com/mycitadel/citadel-runtime/model"
)

func utxoSet(values ...uint64) []model.Utxo {
	utxos := make([]model.Utxo, len(values))
	for i, v := range values {
		utxos[i] = model.Utxo{Value: v, Vout: uint32(i)}
	}
	return utxos
}

// TestSelectCoinsGreedy covers the happy path: descending accumulation
// stops as soon as the running sum meets target, and the next unselected
// UTXO is named as the change candidate.
func TestSelectCoinsGreedy(t *testing.T) {
	pool := utxoSet(5000, 20000, 1000, 30000)

	selected, changeCandidate, err := selectCoins(pool, 25000)
	require.NoError(t, err)

	var sum uint64
	for _, u := range selected {
		sum += u.Value
	}
	require.GreaterOrEqual(t, sum, uint64(25000))
	require.Equal(t, []model.Utxo{{Value: 30000, Vout: 3}}, selected)
	require.NotNil(t, changeCandidate)
	require.Equal(t, uint64(20000), changeCandidate.Value)
}

// TestSelectCoinsExactNoChange covers the case where accumulated value
// lands exactly at target: no change candidate is left to name.
func TestSelectCoinsExactNoChange(t *testing.T) {
	pool := utxoSet(10000, 10000)

	selected, changeCandidate, err := selectCoins(pool, 20000)
	require.NoError(t, err)
	require.Len(t, selected, 2)
	require.Nil(t, changeCandidate)
}

// TestSelectCoinsSkipsZeroValue covers the edge case of a dust/zero-value
// UTXO in the pool, which selectCoins must never select.
func TestSelectCoinsSkipsZeroValue(t *testing.T) {
	pool := utxoSet(0, 15000)

	selected, _, err := selectCoins(pool, 10000)
	require.NoError(t, err)
	require.Len(t, selected, 1)
	require.Equal(t, uint64(15000), selected[0].Value)
}

// TestSelectCoinsInsufficientFunds covers the edge case where the pool
// cannot cover target even after selecting everything spendable.
func TestSelectCoinsInsufficientFunds(t *testing.T) {
	pool := utxoSet(1000, 2000)

	_, _, err := selectCoins(pool, 5000)
	require.Error(t, err)
}

func TestChainParamsRecognizesTags(t *testing.T) {
	for _, tag := range []string{"bitcoin", "mainnet", "testnet", "testnet3", "signet", "regtest"} {
		params, err := ChainParams(tag)
		require.NoError(t, err, tag)
		require.NotNil(t, params)
	}
}

func TestChainParamsRejectsUnknownTag(t *testing.T) {
	_, err := ChainParams("decred-mainnet")
	require.Error(t, err)
}

func testPayee(t *testing.T) PayeeDescriptor {
	t.Helper()
	root := testRootKey(t)
	child, err := root.Derive(1)
	require.NoError(t, err)
	return PayeeDescriptor{
		Descriptor: model.ContractDescriptor{
			Kind: model.DescriptorWpkh,
			Chains: []model.PubkeyChain{{
				Root:     child,
				Terminal: model.TerminalStep{Wildcard: true},
			}},
		},
		Index: 0,
	}
}

// TestComposeBitcoinTransfer walks the bitcoin-payment rail end to end:
// one 100k-sat UTXO at derivation 3, pay 30k with a 1k fee, expect a
// two-output PSBT with 69k change at a fresh derivation index, populated
// non_witness_utxo and bip32_derivation, and no consignment.
func TestComposeBitcoinTransfer(t *testing.T) {
	h := newTestHarness(t)
	utxo := h.fundPrevTx(t, 100_000, 3)
	h.cache.bitcoinOnly[h.contract.ID] = []model.Utxo{utxo}
	h.cache.unspent[h.contract.ID] = map[model.AssetID][]model.Utxo{
		model.BitcoinAssetID: {utxo},
	}
	h.cache.nextUnused[h.contract.ID] = 4

	reply, err := h.rt.ComposeTransfer(context.Background(), ComposeTransferRequest{
		PayFrom:    h.contract.ID,
		AssetValue: 30_000,
		BitcoinFee: 1_000,
		TransferInfo: TransferInfo{
			Kind:         TransferBitcoinPayment,
			BitcoinPayee: testPayee(t),
		},
	})
	require.NoError(t, err)
	require.Nil(t, reply.Consignment)

	packet, err := psbt.NewFromRawBytes(bytes.NewReader(reply.PSBT), false)
	require.NoError(t, err)

	require.Len(t, packet.UnsignedTx.TxIn, 1)
	require.Equal(t, utxo.OutPoint(), packet.UnsignedTx.TxIn[0].PreviousOutPoint)

	require.Len(t, packet.UnsignedTx.TxOut, 2)
	require.Equal(t, int64(30_000), packet.UnsignedTx.TxOut[0].Value)
	require.Equal(t, int64(69_000), packet.UnsignedTx.TxOut[1].Value)

	require.NotNil(t, packet.Inputs[0].NonWitnessUtxo)
	require.NotEmpty(t, packet.Inputs[0].Bip32Derivation)

	// The change address was bound at the fresh index.
	require.Equal(t, 1, len(h.cache.bound[h.contract.ID]))
	_, ok := h.cache.bound[h.contract.ID][4]
	require.True(t, ok)

	ops := h.storage.operations[h.contract.ID]
	require.Len(t, ops, 1)
	out := ops[0].Outgoing
	require.NotNil(t, out)
	require.False(t, out.Published)
	require.Equal(t, uint64(69_000), out.BitcoinChange)
	require.Equal(t, uint64(69_000), out.AssetChange)
	require.Equal(t, uint64(1_000), out.PaidBitcoinFee)
}

// TestComposeBitcoinTransferInsufficientFunds covers the user-actionable
// failure path: the reply must be a Failure naming the bitcoin-only
// restriction, not a transport error.
func TestComposeBitcoinTransferInsufficientFunds(t *testing.T) {
	h := newTestHarness(t)
	utxo := h.fundPrevTx(t, 5_000, 0)
	h.cache.bitcoinOnly[h.contract.ID] = []model.Utxo{utxo}
	h.cache.unspent[h.contract.ID] = map[model.AssetID][]model.Utxo{
		model.BitcoinAssetID: {utxo},
	}

	_, err := h.rt.ComposeTransfer(context.Background(), ComposeTransferRequest{
		PayFrom:    h.contract.ID,
		AssetValue: 30_000,
		BitcoinFee: 1_000,
		TransferInfo: TransferInfo{
			Kind:         TransferBitcoinPayment,
			BitcoinPayee: testPayee(t),
		},
	})
	var failure *Failure
	require.ErrorAs(t, err, &failure)
	require.Contains(t, failure.Info, "non-colored")
}

// TestComposeRGBBlindUtxoTransfer walks the RGB rail with a blind-UTXO
// receiver: asset inputs of 80+70 units covering a 120-unit transfer, RGB
// change of 30 allocated to the bitcoin change vout, the tweaked change
// output persisted, the disclosure self-enclosed, and the witness PSBT plus
// consignment returned.
func TestComposeRGBBlindUtxoTransfer(t *testing.T) {
	h := newTestHarness(t)

	u1 := h.fundPrevTx(t, 600, 1)
	u2 := h.fundPrevTx(t, 600, 2)
	assetID := model.AssetID{0x11}
	a1, a2 := u1, u2
	a1.Value, a2.Value = 80, 70

	h.cache.unspent[h.contract.ID] = map[model.AssetID][]model.Utxo{
		model.BitcoinAssetID: {u1, u2},
		assetID:              {a1, a2},
	}
	h.cache.nextUnused[h.contract.ID] = 3

	var tweak [32]byte
	tweak[0] = 0xcc
	var transferReq assetclient.TransferRequest
	h.assets.transferReply = func(req assetclient.TransferRequest) (assetclient.TransferReply, error) {
		transferReq = req
		packet, err := psbt.NewFromRawBytes(bytes.NewReader(req.PSBT), false)
		if err != nil {
			return assetclient.TransferReply{}, err
		}
		// The daemon tweaks the change output's key and reports it via
		// the OUT_TWEAK proprietary field.
		out := &packet.Outputs[0]
		out.Unknowns = setProprietary(out.Unknowns, subtypeOutTweak, tweak[:])
		var buf bytes.Buffer
		if err := packet.Serialize(&buf); err != nil {
			return assetclient.TransferReply{}, err
		}
		return assetclient.TransferReply{
			Consignment: []byte("consignment"),
			Disclosure:  []byte("disclosure"),
			WitnessPSBT: buf.Bytes(),
		}, nil
	}

	var blindHash [32]byte
	blindHash[0] = 0xbb
	reply, err := h.rt.ComposeTransfer(context.Background(), ComposeTransferRequest{
		PayFrom:    h.contract.ID,
		AssetValue: 120,
		BitcoinFee: 500,
		TransferInfo: TransferInfo{
			Kind:          TransferRGB,
			RGBContractID: assetID,
			RGBReceiver: RGBReceiver{
				Kind:      RGBReceiverBlindUtxo,
				BlindHash: blindHash,
			},
		},
	})
	require.NoError(t, err)
	require.Equal(t, []byte("consignment"), reply.Consignment)

	// Both asset UTXOs were needed to cover 120 units.
	require.Len(t, transferReq.Inputs, 2)
	require.Equal(t, assetID, transferReq.AssetID)

	// The receiving endpoint is the blind-UTXO hash at full asset value;
	// the 30-unit change rides on the bitcoin change vout.
	endpoint := assetclient.RGBEndpoint{Kind: assetclient.EndpointTxOutpoint, Hash: blindHash}
	require.Equal(t, uint64(120), transferReq.Endpoints[endpoint])
	require.Len(t, transferReq.ChangeMap, 1)
	for ep, amount := range transferReq.ChangeMap {
		require.Equal(t, assetclient.EndpointWitnessVout, ep.Kind)
		require.Equal(t, uint32(0), ep.Vout)
		require.Equal(t, uint64(30), amount)
	}

	// The tweaked change output was persisted for future sync.
	require.Len(t, h.contract.Data.Tweaks, 1)
	recorded := h.contract.Data.Tweaks[0]
	require.Equal(t, tweak, recorded.Tweak)
	require.Equal(t, model.UnhardenedIndex(3), recorded.DerivationIndex)

	require.Equal(t, [][]byte{[]byte("disclosure")}, h.assets.enclosed)

	ops := h.storage.operations[h.contract.ID]
	require.Len(t, ops, 1)
	out := ops[0].Outgoing
	require.False(t, out.Published)
	require.Equal(t, uint64(30), out.AssetChange)
	require.Equal(t, []byte("disclosure"), ops[0].Disclosure)
}

// TestComposeRGBChangeCandidateAllocation covers change allocation to the
// change-candidate outpoint: when coin selection leaves an unselected
// asset UTXO behind, RGB change binds to it as a blinded outpoint and the
// blinding reveal is persisted for future sync.
func TestComposeRGBChangeCandidateAllocation(t *testing.T) {
	h := newTestHarness(t)

	u1 := h.fundPrevTx(t, 600, 1)
	u2 := h.fundPrevTx(t, 600, 2)
	assetID := model.AssetID{0x22}
	a1, a2 := u1, u2
	a1.Value, a2.Value = 300, 200

	h.cache.unspent[h.contract.ID] = map[model.AssetID][]model.Utxo{
		model.BitcoinAssetID: {u1, u2},
		assetID:              {a1, a2},
	}
	h.cache.nextUnused[h.contract.ID] = 3

	var transferReq assetclient.TransferRequest
	h.assets.transferReply = func(req assetclient.TransferRequest) (assetclient.TransferReply, error) {
		transferReq = req
		return assetclient.TransferReply{
			Consignment: []byte("consignment"),
			WitnessPSBT: req.PSBT,
		}, nil
	}

	var blindHash [32]byte
	_, err := h.rt.ComposeTransfer(context.Background(), ComposeTransferRequest{
		PayFrom:    h.contract.ID,
		AssetValue: 120,
		BitcoinFee: 500,
		TransferInfo: TransferInfo{
			Kind:          TransferRGB,
			RGBContractID: assetID,
			RGBReceiver: RGBReceiver{
				Kind:      RGBReceiverBlindUtxo,
				BlindHash: blindHash,
			},
		},
	})
	require.NoError(t, err)

	// Only the 300-unit UTXO was selected; the 200-unit one became the
	// change candidate, so 180 units of change bind to it blinded.
	require.Len(t, transferReq.Inputs, 1)
	require.Len(t, transferReq.ChangeMap, 1)
	for ep, amount := range transferReq.ChangeMap {
		require.Equal(t, assetclient.EndpointTxOutpoint, ep.Kind)
		require.Equal(t, uint64(180), amount)
	}

	reveals := h.storage.reveals[h.contract.ID]
	require.Len(t, reveals, 1)
	require.Equal(t, [32]byte(a2.Txid), reveals[0].Txid)
	require.Equal(t, a2.Vout, reveals[0].Vout)
}
