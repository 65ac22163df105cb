package runtime

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"sort"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/mycitadel/citadel-runtime/assetclient"
	"github.com/mycitadel/citadel-runtime/metrics"
	"github.com/mycitadel/citadel-runtime/model"
)

// selectCoins implements the Transfer Composer's greedy coin-selection
// pass (spec.md §4.3 phase a): sort descending by value, skip zero-value
// UTXOs, accumulate until the running sum meets target, and name the next
// (unselected) UTXO as the change-candidate outpoint — a pre-existing
// owned outpoint later used as a self-addressed RGB change destination
// rather than a new transaction output.
func selectCoins(pool []model.Utxo, target uint64) (selected []model.Utxo, changeCandidate *model.Utxo, err error) {
	sorted := make([]model.Utxo, len(pool))
	copy(sorted, pool)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Value > sorted[j].Value })

	var sum uint64
	for i := range sorted {
		u := sorted[i]
		if u.Value == 0 {
			continue
		}
		if sum >= target {
			cc := u
			return selected, &cc, nil
		}
		selected = append(selected, u)
		sum += u.Value
	}
	if sum < target {
		return nil, nil, fmt.Errorf("insufficient funds: need %d, have %d", target, sum)
	}
	return selected, nil, nil
}

// ComposeTransfer builds a partially-signed transaction paying either a
// plain bitcoin amount or an RGB colored-asset amount, selecting coins,
// allocating bitcoin and RGB change, and (for RGB transfers) driving the
// external asset daemon to embed the pay-to-contract commitment. It
// implements phases (a)-(g) of spec.md §4.3.
func (r *Runtime) ComposeTransfer(ctx context.Context, req ComposeTransferRequest) (*ComposeTransferReply, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	start := time.Now()
	outcome := metrics.TransferSuccess
	defer func() {
		metrics.ObserveTransfer(outcome, time.Since(start).Seconds())
	}()

	contract, err := r.storage.Contract(req.PayFrom)
	if err != nil {
		return nil, fmt.Errorf("runtime: load contract: %w", err)
	}
	if contract.Policy.Type == model.PolicyInstant {
		outcome = metrics.TransferRejectedPolicy
		return nil, ErrInstantPolicyRejected
	}
	policy := contract.Policy
	isRGB := req.TransferInfo.Kind == TransferRGB

	// (a) Coin selection.
	var (
		pool     []model.Utxo
		assetFee uint64
	)
	if isRGB {
		unspent, err := r.cache.Unspent(req.PayFrom)
		if err != nil {
			return nil, fmt.Errorf("runtime: load unspent: %w", err)
		}
		pool = unspent[req.TransferInfo.RGBContractID]
	} else {
		pool, err = r.cache.UnspentBitcoinOnly(req.PayFrom)
		if err != nil {
			return nil, fmt.Errorf("runtime: load bitcoin-only unspent: %w", err)
		}
		assetFee = req.BitcoinFee
	}

	target := req.AssetValue + assetFee
	selected, changeCandidate, err := selectCoins(pool, target)
	if err != nil {
		outcome = metrics.TransferInsufficientFunds
		if isRGB {
			return nil, newFailure("insufficient funds: %v", err)
		}
		return nil, newFailure("insufficient funds (non-colored outputs only considered): %v", err)
	}

	// (b) Output construction.
	msgTx := wire.NewMsgTx(1)
	msgTx.LockTime = 0
	for _, u := range selected {
		msgTx.AddTxIn(&wire.TxIn{PreviousOutPoint: u.OutPoint(), Sequence: 0})
	}

	var (
		bitcoinValue uint64
		giveaway     uint64
		rgbEndpoint  assetclient.RGBEndpoint
	)
	switch req.TransferInfo.Kind {
	case TransferBitcoinPayment:
		script, err := req.TransferInfo.BitcoinPayee.Script()
		if err != nil {
			return nil, newFailure("cannot derive payee script: %v", err)
		}
		msgTx.AddTxOut(&wire.TxOut{Value: int64(req.AssetValue), PkScript: script})
		bitcoinValue = req.AssetValue

	case TransferRGB:
		switch req.TransferInfo.RGBReceiver.Kind {
		case RGBReceiverDescriptor:
			script, err := req.TransferInfo.RGBReceiver.Descriptor.Script()
			if err != nil {
				return nil, newFailure("cannot derive payee script: %v", err)
			}
			giveaway = req.TransferInfo.RGBReceiver.Giveaway
			msgTx.AddTxOut(&wire.TxOut{Value: int64(giveaway), PkScript: script})
			bitcoinValue = giveaway
			blinding, err := randUint64()
			if err != nil {
				return nil, err
			}
			rgbEndpoint = assetclient.RGBEndpoint{
				Kind:     assetclient.EndpointWitnessVout,
				Vout:     uint32(len(msgTx.TxOut) - 1),
				Blinding: blinding,
			}
		case RGBReceiverBlindUtxo:
			rgbEndpoint = assetclient.RGBEndpoint{
				Kind: assetclient.EndpointTxOutpoint,
				Hash: req.TransferInfo.RGBReceiver.BlindHash,
			}
		}
	}

	// (c) Bitcoin accounting.
	allUnspent, err := r.cache.Unspent(req.PayFrom)
	if err != nil {
		return nil, fmt.Errorf("runtime: load unspent: %w", err)
	}
	bitcoinByOutpoint := make(map[wire.OutPoint]uint64, len(allUnspent[model.BitcoinAssetID]))
	for _, u := range allUnspent[model.BitcoinAssetID] {
		bitcoinByOutpoint[u.OutPoint()] = u.Value
	}
	var bitcoinInputAmount uint64
	for _, u := range selected {
		bitcoinInputAmount += bitcoinByOutpoint[u.OutPoint()]
	}

	var (
		bitcoinChange         uint64
		changeVout            *uint32
		changeDerivationIndex *model.UnhardenedIndex
	)
	if bitcoinInputAmount > bitcoinValue+req.BitcoinFee {
		changeIndex, err := r.cache.NextUnusedDerivation(req.PayFrom)
		if err != nil {
			return nil, fmt.Errorf("runtime: next unused derivation: %w", err)
		}
		changeAddr, _, err := policy.DeriveAddress(changeIndex, r.netParams, false)
		if err != nil {
			outcome = metrics.TransferRejectedPolicy
			return nil, newFailure("cannot derive change address: %v", err)
		}
		changeScript, err := policy.Descriptor.Script(changeIndex, false)
		if err != nil {
			return nil, newFailure("cannot derive change script: %v", err)
		}
		if err := r.cache.UseAddressDerivation(req.PayFrom, changeIndex, changeAddr.String()); err != nil {
			return nil, fmt.Errorf("runtime: mark change address used: %w", err)
		}

		bitcoinChange = bitcoinInputAmount - bitcoinValue - req.BitcoinFee
		msgTx.AddTxOut(&wire.TxOut{Value: int64(bitcoinChange), PkScript: changeScript})
		vout := uint32(len(msgTx.TxOut) - 1)
		changeVout = &vout
		changeDerivationIndex = &changeIndex
	}

	// (d) RGB change allocation.
	var (
		rgbChangeMap map[assetclient.RGBEndpoint]uint64
		rgbChange    uint64
	)
	if isRGB {
		var assetInputAmount uint64
		for _, u := range selected {
			assetInputAmount += u.Value
		}
		if assetInputAmount > req.AssetValue {
			rgbChange = assetInputAmount - req.AssetValue
			rgbChangeMap = make(map[assetclient.RGBEndpoint]uint64, 1)
			switch {
			case changeCandidate != nil:
				blinding, err := randUint64()
				if err != nil {
					return nil, err
				}
				reveal := model.OutpointReveal{
					Txid:     [32]byte(changeCandidate.Txid),
					Vout:     changeCandidate.Vout,
					Blinding: blinding,
				}
				endpoint := assetclient.RGBEndpoint{Kind: assetclient.EndpointTxOutpoint, Hash: reveal.Hash()}
				rgbChangeMap[endpoint] = rgbChange
				if err := r.storage.AddBlindingReveal(req.PayFrom, reveal); err != nil {
					return nil, fmt.Errorf("runtime: record blinding reveal: %w", err)
				}
			case changeVout != nil:
				blinding, err := randUint64()
				if err != nil {
					return nil, err
				}
				endpoint := assetclient.RGBEndpoint{Kind: assetclient.EndpointWitnessVout, Vout: *changeVout, Blinding: blinding}
				rgbChangeMap[endpoint] = rgbChange
			default:
				outcome = metrics.TransferCannotAllocateChange
				return nil, newFailure("cannot allocate RGB change: no change-candidate outpoint or bitcoin change output available")
			}
		}
	}

	// (e) PSBT assembly.
	packet, err := psbt.NewFromUnsignedTx(msgTx)
	if err != nil {
		return nil, fmt.Errorf("runtime: build PSBT: %w", err)
	}

	for i, u := range selected {
		input := &packet.Inputs[i]

		if rawTx, err := r.indexer.TransactionGet(ctx, u.Txid); err != nil {
			log.Warnf("runtime: fetch previous tx %s: %v", u.Txid, err)
		} else {
			prevTx := wire.NewMsgTx(wire.TxVersion)
			if err := prevTx.Deserialize(bytes.NewReader(rawTx)); err != nil {
				log.Warnf("runtime: decode previous tx %s: %v", u.Txid, err)
			} else {
				input.NonWitnessUtxo = prevTx
			}
		}

		sources, err := policy.BIP32Derivations(u.DerivationIndex)
		if err != nil {
			return nil, fmt.Errorf("runtime: bip32 derivations: %w", err)
		}
		for pubkey, ks := range sources {
			input.Bip32Derivation = append(input.Bip32Derivation, &psbt.Bip32Derivation{
				PubKey:               []byte(pubkey),
				MasterKeyFingerprint: binary.BigEndian.Uint32(ks.Fingerprint[:]),
				Bip32Path:            ks.Path,
			})
		}

		if policy.IsScripted() {
			redeem, witness, err := policy.ExplicitScripts(u.DerivationIndex, false)
			if err != nil {
				return nil, fmt.Errorf("runtime: explicit scripts: %w", err)
			}
			input.RedeemScript = redeem
			input.WitnessScript = witness
		}

		if u.IsTweaked() {
			input.Unknowns = setProprietary(input.Unknowns, subtypeInTweak, u.Tweak[:])
			input.Unknowns = setProprietary(input.Unknowns, subtypeInTweakPubkey, u.PubKey.SerializeCompressed())
		}
	}

	if changeDerivationIndex != nil {
		pub, err := policy.FirstPublicKey(*changeDerivationIndex)
		if err != nil {
			return nil, fmt.Errorf("runtime: change output pubkey: %w", err)
		}
		packet.Outputs[*changeVout].Unknowns = setProprietary(nil, subtypeOutPubkey, pub.SerializeCompressed())
	}

	var assembled bytes.Buffer
	if err := packet.Serialize(&assembled); err != nil {
		return nil, fmt.Errorf("runtime: serialize PSBT: %w", err)
	}

	// (f) RGB commit.
	var (
		finalPSBT   = assembled.Bytes()
		consignment []byte
		disclosure  []byte
	)
	if isRGB {
		inputs := make([]wire.OutPoint, len(selected))
		for i, u := range selected {
			inputs[i] = u.OutPoint()
		}
		endpoints := map[assetclient.RGBEndpoint]uint64{rgbEndpoint: req.AssetValue}

		reply, err := r.assetClient.Transfer(ctx, assetclient.TransferRequest{
			AssetID:   req.TransferInfo.RGBContractID,
			Inputs:    inputs,
			Endpoints: endpoints,
			ChangeMap: rgbChangeMap,
			PSBT:      finalPSBT,
		})
		if err != nil {
			outcome = metrics.TransferDaemonError
			return nil, newAssetDaemonError(err)
		}
		consignment = reply.Consignment
		disclosure = reply.Disclosure
		finalPSBT = reply.WitnessPSBT

		witnessPacket, err := psbt.NewFromRawBytes(bytes.NewReader(reply.WitnessPSBT), false)
		if err != nil {
			return nil, fmt.Errorf("runtime: decode witness PSBT: %w", err)
		}
		for i, out := range witnessPacket.Outputs {
			pubBytes, hasPub := getProprietary(out.Unknowns, subtypeOutPubkey)
			tweakBytes, hasTweak := getProprietary(out.Unknowns, subtypeOutTweak)
			if !hasPub || !hasTweak {
				continue
			}
			if changeDerivationIndex == nil || uint32(i) != *changeVout {
				continue
			}
			pub, err := btcec.ParsePubKey(pubBytes)
			if err != nil {
				return nil, fmt.Errorf("runtime: parse tweaked output pubkey: %w", err)
			}
			var tweak [32]byte
			copy(tweak[:], tweakBytes)
			tweaked := model.TweakedOutput{
				Outpoint:        wire.OutPoint{Hash: witnessPacket.UnsignedTx.TxHash(), Index: uint32(i)},
				Script:          witnessPacket.UnsignedTx.TxOut[i].PkScript,
				Tweak:           tweak,
				PubKey:          pub,
				DerivationIndex: *changeDerivationIndex,
			}
			if err := r.storage.AddTweak(req.PayFrom, tweaked); err != nil {
				return nil, fmt.Errorf("runtime: record tweaked output: %w", err)
			}
		}

		if err := r.assetClient.Enclose(ctx, assetclient.EncloseRequest{Disclosure: disclosure}); err != nil {
			outcome = metrics.TransferDaemonError
			return nil, newAssetDaemonError(err)
		}
	}

	// (g) History.
	var derivationIndexes []model.UnhardenedIndex
	var changeOutputs []uint32
	assetChange := rgbChange
	if !isRGB {
		assetChange = bitcoinChange
	}
	if changeDerivationIndex != nil {
		derivationIndexes = append(derivationIndexes, *changeDerivationIndex)
		changeOutputs = append(changeOutputs, *changeVout)
	}

	txid := msgTx.TxHash()
	if isRGB {
		if witnessTx, err := extractTxHash(finalPSBT); err == nil {
			txid = witnessTx
		}
	}

	volumes := make(map[model.AssetID]uint64)
	if isRGB {
		volumes[req.TransferInfo.RGBContractID] = req.AssetValue
	}
	if bitcoinValue > 0 || req.BitcoinFee > 0 {
		volumes[model.BitcoinAssetID] = bitcoinValue + req.BitcoinFee
	}

	op := model.Operation{
		Txid:      txid,
		Direction: model.DirectionOutgoing,
		Outgoing: &model.OutgoingInfo{
			Published:               false,
			AssetChange:             assetChange,
			BitcoinChange:           bitcoinChange,
			ChangeOutputs:           changeOutputs,
			Giveaway:                giveaway,
			PaidBitcoinFee:          req.BitcoinFee,
			OutputDerivationIndexes: derivationIndexes,
			Invoice:                 req.Invoice,
		},
		Timestamp:  time.Now().UTC(),
		Volumes:    volumes,
		PSBT:       finalPSBT,
		Disclosure: disclosure,
	}
	if err := r.storage.AddOperation(req.PayFrom, op); err != nil {
		return nil, fmt.Errorf("runtime: record operation: %w", err)
	}

	return &ComposeTransferReply{PSBT: finalPSBT, Consignment: consignment}, nil
}

// extractTxHash reads back the unsigned transaction's txid from a
// serialized PSBT, used to label the Operation history record with the
// witness transaction's id once the asset daemon has embedded its
// commitment.
func extractTxHash(raw []byte) (chainhash.Hash, error) {
	packet, err := psbt.NewFromRawBytes(bytes.NewReader(raw), false)
	if err != nil {
		return chainhash.Hash{}, err
	}
	return packet.UnsignedTx.TxHash(), nil
}
