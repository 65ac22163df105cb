package rpc

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/mycitadel/citadel-runtime/assetclient"
	"github.com/mycitadel/citadel-runtime/cache"
	"github.com/mycitadel/citadel-runtime/metrics"
	"github.com/mycitadel/citadel-runtime/model"
	"github.com/mycitadel/citadel-runtime/runtime"
	"github.com/mycitadel/citadel-runtime/storage"
)

const (
	replyKindSuccess uint8 = iota
	replyKindFailure
)

// Dispatcher is the single routing point for every request on the wire
// surface described by spec.md §6: one byte naming a RequestType, a
// strict-encoded payload, in, and a reply-kind byte plus strict-encoded
// payload out. It owns nothing the Runtime doesn't already own; it exists
// purely to translate between wire bytes and the Runtime/Storage/Cache/
// AssetClient Go API, mirroring the teacher's rpcserver.rpcServer shape: a
// thin adapter in front of the wallet controller.
type Dispatcher struct {
	rt          *runtime.Runtime
	storage     storage.Driver
	cache       cache.Driver
	assetClient assetclient.Client
	chainTag    string
	progress    *ProgressFeed
}

// NewDispatcher constructs a Dispatcher over an already-assembled Runtime
// and its backing drivers. progress may be nil, in which case SyncContract
// publishes no progress notifications.
func NewDispatcher(rt *runtime.Runtime, store storage.Driver, ch cache.Driver, ac assetclient.Client, chainTag string, progress *ProgressFeed) *Dispatcher {
	return &Dispatcher{
		rt:          rt,
		storage:     store,
		cache:       ch,
		assetClient: ac,
		chainTag:    chainTag,
		progress:    progress,
	}
}

// Dispatch decodes one framed request, routes it, and returns a framed
// reply: a reply-kind byte, then either the typed reply payload or a
// strict-encoded error string. It never returns a Go error itself — every
// failure, infrastructure or user-actionable, is folded into the reply
// frame, since there is no second channel back to the ZMQ client.
func (d *Dispatcher) Dispatch(ctx context.Context, frame []byte) []byte {
	start := time.Now()
	if len(frame) < 1 {
		return encodeFailureReply(fmt.Errorf("rpc: empty request frame"))
	}
	reqType := RequestType(frame[0])
	payload := frame[1:]

	reply, err := d.route(ctx, reqType, payload)

	kind := metrics.ReplySuccess
	if err != nil {
		kind = metrics.ReplyFailure
	}
	metrics.ObserveRPC(reqType.String(), kind)
	log.Debugf("rpc: %s handled in %s (ok=%v)", reqType, time.Since(start), err == nil)

	if err != nil {
		return encodeFailureReply(err)
	}
	return append([]byte{replyKindSuccess}, reply...)
}

func encodeFailureReply(err error) []byte {
	msg, encErr := marshal(func(w io.Writer) error { return writeString(w, err.Error()) })
	if encErr != nil {
		// writeString over a bytes.Buffer cannot fail; this is unreachable.
		msg = nil
	}
	return append([]byte{replyKindFailure}, msg...)
}

func (d *Dispatcher) route(ctx context.Context, reqType RequestType, payload []byte) ([]byte, error) {
	switch reqType {
	case ReqCreateSingleSig:
		return d.createSingleSig(payload)
	case ReqContractOperations:
		return d.contractOperations(payload)
	case ReqListContracts:
		return d.listContracts()
	case ReqRenameContract:
		return d.renameContract(payload)
	case ReqDeleteContract:
		return d.deleteContract(payload)
	case ReqSyncContract:
		return d.syncContract(ctx, payload)
	case ReqUsedAddresses:
		return d.usedAddresses(payload)
	case ReqNextAddress:
		return d.nextAddress(payload)
	case ReqUnuseAddress:
		return d.unuseAddress(payload)
	case ReqBlindUtxo:
		return d.blindUtxo(payload)
	case ReqListInvoices:
		return d.listInvoices(payload)
	case ReqAddInvoice:
		return d.addInvoice(payload)
	case ReqComposeTransfer:
		return d.composeTransfer(ctx, payload)
	case ReqFinalizeTransfer:
		return d.finalizeTransfer(ctx, payload)
	case ReqAcceptTransfer:
		return d.acceptTransfer(ctx, payload)
	case ReqContractUnspent:
		return d.contractUnspent(payload)
	case ReqListIdentities:
		return d.listIdentities()
	case ReqAddSigner:
		return d.addSigner(payload)
	case ReqAddIdentity:
		return d.addIdentity(payload)
	case ReqImportAsset:
		return d.importAsset(ctx, payload)
	case ReqListAssets:
		return d.listAssets(ctx)
	default:
		return nil, fmt.Errorf("rpc: unknown request type %d", reqType)
	}
}

func (d *Dispatcher) createSingleSig(payload []byte) ([]byte, error) {
	var req CreateSingleSigRequest
	if err := unmarshalMessage(payload, req.StrictDecode); err != nil {
		return nil, err
	}
	root, err := hdkeychain.NewKeyFromString(req.XPub)
	if err != nil {
		return nil, fmt.Errorf("rpc: parse xpub: %w", err)
	}
	descriptor := model.ContractDescriptor{
		Kind: model.DescriptorSingleSig,
		Chains: []model.PubkeyChain{{
			Root:     root,
			Terminal: model.TerminalStep{Wildcard: req.Wildcard, Index: req.TerminalIndex},
		}},
		Threshold: 1,
	}
	chain := req.Chain
	if chain == "" {
		chain = d.chainTag
	}
	policy := model.Policy{Type: req.Category, Descriptor: descriptor}
	contract, err := model.NewContract(policy, req.Name, chain)
	if err != nil {
		return nil, fmt.Errorf("rpc: build contract: %w", err)
	}
	if err := d.storage.AddContract(contract); err != nil {
		return nil, err
	}
	return marshalMessage(contract.StrictEncode)
}

func (d *Dispatcher) contractOperations(payload []byte) ([]byte, error) {
	var req ContractIDRequest
	if err := unmarshalMessage(payload, req.StrictDecode); err != nil {
		return nil, err
	}
	ops, err := d.storage.ListOperations(req.ContractID)
	if err != nil {
		return nil, err
	}
	return marshalMessage((OperationsReply{Operations: ops}).StrictEncode)
}

func (d *Dispatcher) listContracts() ([]byte, error) {
	contracts, err := d.storage.ListContracts()
	if err != nil {
		return nil, err
	}
	return marshalMessage((ContractsReply{Contracts: contracts}).StrictEncode)
}

func (d *Dispatcher) renameContract(payload []byte) ([]byte, error) {
	var req RenameContractRequest
	if err := unmarshalMessage(payload, req.StrictDecode); err != nil {
		return nil, err
	}
	return nil, d.storage.RenameContract(req.ContractID, req.Name)
}

func (d *Dispatcher) deleteContract(payload []byte) ([]byte, error) {
	var req ContractIDRequest
	if err := unmarshalMessage(payload, req.StrictDecode); err != nil {
		return nil, err
	}
	return nil, d.storage.DeleteContract(req.ContractID)
}

func (d *Dispatcher) syncContract(ctx context.Context, payload []byte) ([]byte, error) {
	var req SyncContractRequest
	if err := unmarshalMessage(payload, req.StrictDecode); err != nil {
		return nil, err
	}
	depth := req.LookupDepth
	if depth == 0 {
		depth = runtime.DefaultLookupDepth
	}
	assets, err := d.rt.SyncContract(ctx, req.ContractID, depth)
	if d.progress != nil {
		if err != nil {
			d.progress.Publish(SyncProgress{ContractID: req.ContractID, Done: true, Error: err.Error()})
		} else {
			d.progress.Publish(SyncProgress{ContractID: req.ContractID, KnownUtxos: len(assets[model.BitcoinAssetID]), Done: true})
		}
	}
	if err != nil {
		return nil, err
	}
	return marshalMessage((AssetUtxoMapReply{Assets: assets}).StrictEncode)
}

func (d *Dispatcher) usedAddresses(payload []byte) ([]byte, error) {
	var req ContractIDRequest
	if err := unmarshalMessage(payload, req.StrictDecode); err != nil {
		return nil, err
	}
	addrs, err := d.cache.UsedAddresses(req.ContractID)
	if err != nil {
		return nil, err
	}
	return marshalMessage((AddressDerivationsReply{Derivations: addrs}).StrictEncode)
}

func (d *Dispatcher) nextAddress(payload []byte) ([]byte, error) {
	var req NextAddressRequest
	if err := unmarshalMessage(payload, req.StrictDecode); err != nil {
		return nil, err
	}
	contract, err := d.storage.Contract(req.ContractID)
	if err != nil {
		return nil, err
	}
	netParams, err := runtime.ChainParams(contract.Chain)
	if err != nil {
		return nil, err
	}

	var idx model.UnhardenedIndex
	if req.Index != nil {
		idx = *req.Index
	} else {
		idx, err = d.cache.NextUnusedDerivation(req.ContractID)
		if err != nil {
			return nil, err
		}
	}
	addr, path, err := contract.Policy.DeriveAddress(idx, netParams, req.Legacy)
	if err != nil {
		return nil, err
	}
	derivation := model.AddressDerivation{Address: addr.String(), Path: path}
	if req.MarkUsed {
		if err := d.cache.UseAddressDerivation(req.ContractID, idx, derivation.Address); err != nil {
			return nil, err
		}
	}
	return marshalMessage((AddressDerivationReply{Derivation: derivation}).StrictEncode)
}

func (d *Dispatcher) unuseAddress(payload []byte) ([]byte, error) {
	var req UnuseAddressRequest
	if err := unmarshalMessage(payload, req.StrictDecode); err != nil {
		return nil, err
	}
	return nil, d.cache.UnuseAddress(req.ContractID, req.Address)
}

// randBlinding draws a fresh blinding factor for BlindUtxo, independent of
// the runtime's own RNG (dispatcher-owned per its own request, rather than
// Runtime-owned, since BlindUtxo needs no Runtime method at all).
func randBlinding() (uint64, error) {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, fmt.Errorf("rpc: read RNG: %w", err)
	}
	return binary.BigEndian.Uint64(b[:]), nil
}

func (d *Dispatcher) blindUtxo(payload []byte) ([]byte, error) {
	var req ContractIDRequest
	if err := unmarshalMessage(payload, req.StrictDecode); err != nil {
		return nil, err
	}
	unspent, err := d.cache.UnspentBitcoinOnly(req.ContractID)
	if err != nil {
		return nil, err
	}
	if len(unspent) == 0 {
		return nil, fmt.Errorf("rpc: no unspent bitcoin output available to blind")
	}
	u := unspent[0]
	blinding, err := randBlinding()
	if err != nil {
		return nil, err
	}
	reveal := model.OutpointReveal{Txid: [32]byte(u.Txid), Vout: u.Vout, Blinding: blinding}
	if err := d.storage.AddBlindingReveal(req.ContractID, reveal); err != nil {
		return nil, err
	}
	return marshalMessage((OutpointRevealReply{Reveal: reveal}).StrictEncode)
}

func (d *Dispatcher) listInvoices(payload []byte) ([]byte, error) {
	var req ContractIDRequest
	if err := unmarshalMessage(payload, req.StrictDecode); err != nil {
		return nil, err
	}
	invoices, err := d.storage.ListInvoices(req.ContractID)
	if err != nil {
		return nil, err
	}
	return marshalMessage((InvoicesReply{Invoices: invoices}).StrictEncode)
}

func (d *Dispatcher) addInvoice(payload []byte) ([]byte, error) {
	var req AddInvoiceRequest
	if err := unmarshalMessage(payload, req.StrictDecode); err != nil {
		return nil, err
	}
	if err := d.storage.AddInvoice(req.ContractID, req.Invoice); err != nil {
		return nil, err
	}
	for _, si := range req.SourceInfo {
		if si.Reveal != nil {
			if err := d.storage.AddBlindingReveal(si.ContractID, *si.Reveal); err != nil {
				return nil, err
			}
		}
	}
	return nil, nil
}

func (d *Dispatcher) composeTransfer(ctx context.Context, payload []byte) ([]byte, error) {
	var req ComposeTransferRequest
	if err := unmarshalMessage(payload, req.StrictDecode); err != nil {
		return nil, err
	}
	transferInfo, err := req.TransferInfo.toRuntime()
	if err != nil {
		return nil, err
	}
	var invoice *model.Invoice
	if req.HasInvoice {
		invoice = &req.Invoice
	}
	rtReply, err := d.rt.ComposeTransfer(ctx, runtime.ComposeTransferRequest{
		PayFrom:      req.PayFrom,
		AssetValue:   req.AssetValue,
		BitcoinFee:   req.BitcoinFee,
		TransferInfo: transferInfo,
		Invoice:      invoice,
	})
	if err != nil {
		return nil, err
	}
	return marshalMessage((PreparedTransferReply{PSBT: rtReply.PSBT, Consignment: rtReply.Consignment}).StrictEncode)
}

func (t TransferInfoWire) toRuntime() (runtime.TransferInfo, error) {
	switch t.Kind {
	case transferKindBitcoin:
		return runtime.TransferInfo{
			Kind:         runtime.TransferBitcoinPayment,
			BitcoinPayee: runtime.PayeeDescriptor{Descriptor: t.BitcoinPayee.Descriptor, Index: t.BitcoinPayee.Index},
		}, nil
	case transferKindRGB:
		info := runtime.TransferInfo{Kind: runtime.TransferRGB, RGBContractID: t.RGBContractID}
		switch t.RGBReceiverKind {
		case rgbReceiverKindDescriptor:
			info.RGBReceiver = runtime.RGBReceiver{
				Kind:       runtime.RGBReceiverDescriptor,
				Descriptor: runtime.PayeeDescriptor{Descriptor: t.RGBPayeeDescr.Descriptor, Index: t.RGBPayeeDescr.Index},
				Giveaway:   t.RGBGiveaway,
			}
		case rgbReceiverKindBlindUtxo:
			info.RGBReceiver = runtime.RGBReceiver{Kind: runtime.RGBReceiverBlindUtxo, BlindHash: t.RGBBlindHash}
		default:
			return runtime.TransferInfo{}, fmt.Errorf("rpc: unknown rgb receiver kind %d", t.RGBReceiverKind)
		}
		return info, nil
	}
	return runtime.TransferInfo{}, fmt.Errorf("rpc: unknown transfer kind %d", t.Kind)
}

func (d *Dispatcher) finalizeTransfer(ctx context.Context, payload []byte) ([]byte, error) {
	var req PSBTRequest
	if err := unmarshalMessage(payload, req.StrictDecode); err != nil {
		return nil, err
	}
	txid, err := d.rt.FinalizeTransfer(ctx, req.PSBT)
	if err != nil {
		return nil, err
	}
	return marshal(func(w io.Writer) error {
		_, err := w.Write(txid[:])
		return err
	})
}

func (d *Dispatcher) acceptTransfer(ctx context.Context, payload []byte) ([]byte, error) {
	var req ConsignmentRequest
	if err := unmarshalMessage(payload, req.StrictDecode); err != nil {
		return nil, err
	}
	status, err := d.rt.AcceptTransfer(ctx, req.Consignment)
	if err != nil {
		return nil, err
	}
	return marshalMessage((ValidationStatusReply{Status: status}).StrictEncode)
}

func (d *Dispatcher) contractUnspent(payload []byte) ([]byte, error) {
	var req ContractIDRequest
	if err := unmarshalMessage(payload, req.StrictDecode); err != nil {
		return nil, err
	}
	assets, err := d.cache.Unspent(req.ContractID)
	if err != nil {
		return nil, err
	}
	return marshalMessage((AssetUtxoMapReply{Assets: assets}).StrictEncode)
}

func (d *Dispatcher) listIdentities() ([]byte, error) {
	identities, err := d.storage.ListIdentities()
	if err != nil {
		return nil, err
	}
	return marshalMessage((IdentitiesReply{Identities: identities}).StrictEncode)
}

func (d *Dispatcher) addSigner(payload []byte) ([]byte, error) {
	var req AddSignerRequest
	if err := unmarshalMessage(payload, req.StrictDecode); err != nil {
		return nil, err
	}
	if err := d.storage.AddSigner(req.Signer); err != nil {
		return nil, err
	}
	return nil, nil
}

func (d *Dispatcher) addIdentity(payload []byte) ([]byte, error) {
	var req AddIdentityRequest
	if err := unmarshalMessage(payload, req.StrictDecode); err != nil {
		return nil, err
	}
	if err := d.storage.AddIdentity(req.Identity); err != nil {
		return nil, err
	}
	return nil, nil
}

func (req AddSignerRequest) StrictEncode(w io.Writer) error {
	if err := writeString(w, req.Signer.Name); err != nil {
		return err
	}
	return writeString(w, req.Signer.XPub)
}

func (req *AddSignerRequest) StrictDecode(r io.Reader) error {
	var err error
	if req.Signer.Name, err = readString(r); err != nil {
		return err
	}
	req.Signer.XPub, err = readString(r)
	return err
}

func (req AddIdentityRequest) StrictEncode(w io.Writer) error {
	if err := writeString(w, req.Identity.Name); err != nil {
		return err
	}
	return writeString(w, req.Identity.XPub)
}

func (req *AddIdentityRequest) StrictDecode(r io.Reader) error {
	var err error
	if req.Identity.Name, err = readString(r); err != nil {
		return err
	}
	req.Identity.XPub, err = readString(r)
	return err
}

func (reply IdentitiesReply) StrictEncode(w io.Writer) error {
	if err := writeU32(w, uint32(len(reply.Identities))); err != nil {
		return err
	}
	for _, id := range reply.Identities {
		if err := writeString(w, id.Name); err != nil {
			return err
		}
		if err := writeString(w, id.XPub); err != nil {
			return err
		}
	}
	return nil
}

func (reply *IdentitiesReply) StrictDecode(r io.Reader) error {
	n, err := readU32(r)
	if err != nil {
		return err
	}
	reply.Identities = make([]Identity, n)
	for i := range reply.Identities {
		if reply.Identities[i].Name, err = readString(r); err != nil {
			return err
		}
		if reply.Identities[i].XPub, err = readString(r); err != nil {
			return err
		}
	}
	return nil
}

func (reply AssetReply) StrictEncode(w io.Writer) error {
	if err := reply.Asset.ID.StrictEncode(w); err != nil {
		return err
	}
	if err := writeString(w, reply.Asset.Ticker); err != nil {
		return err
	}
	return writeString(w, reply.Asset.Name)
}

func (reply *AssetReply) StrictDecode(r io.Reader) error {
	if err := reply.Asset.ID.StrictDecode(r); err != nil {
		return err
	}
	var err error
	if reply.Asset.Ticker, err = readString(r); err != nil {
		return err
	}
	reply.Asset.Name, err = readString(r)
	return err
}

func (reply AssetsReply) StrictEncode(w io.Writer) error {
	if err := writeU32(w, uint32(len(reply.Assets))); err != nil {
		return err
	}
	for _, a := range reply.Assets {
		if err := (AssetReply{Asset: a}).StrictEncode(w); err != nil {
			return err
		}
	}
	return nil
}

func (reply *AssetsReply) StrictDecode(r io.Reader) error {
	n, err := readU32(r)
	if err != nil {
		return err
	}
	reply.Assets = make([]assetclient.Asset, n)
	for i := range reply.Assets {
		var one AssetReply
		if err := one.StrictDecode(r); err != nil {
			return err
		}
		reply.Assets[i] = one.Asset
	}
	return nil
}

func (d *Dispatcher) importAsset(ctx context.Context, payload []byte) ([]byte, error) {
	var req ImportAssetRequest
	if err := unmarshalMessage(payload, req.StrictDecode); err != nil {
		return nil, err
	}
	reply, err := d.assetClient.ImportAsset(ctx, assetclient.ImportAssetRequest{Genesis: req.Genesis})
	if err != nil {
		return nil, &runtime.AssetDaemonError{Err: err}
	}
	return marshalMessage((AssetReply{Asset: reply.Asset}).StrictEncode)
}

func (d *Dispatcher) listAssets(ctx context.Context) ([]byte, error) {
	reply, err := d.assetClient.ListAssets(ctx)
	if err != nil {
		return nil, &runtime.AssetDaemonError{Err: err}
	}
	return marshalMessage((AssetsReply{Assets: reply.Assets}).StrictEncode)
}
