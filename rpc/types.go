package rpc

import (
	"bytes"
	"fmt"
	"io"

	"github.com/mycitadel/citadel-runtime/assetclient"
	"github.com/mycitadel/citadel-runtime/model"
)

// RequestType tags the message surface of spec.md §6's ZMQ REP-type
// endpoint: one byte ahead of every request's strict-encoded payload.
type RequestType uint8

const (
	ReqCreateSingleSig RequestType = iota
	ReqContractOperations
	ReqListContracts
	ReqRenameContract
	ReqDeleteContract
	ReqSyncContract
	ReqUsedAddresses
	ReqNextAddress
	ReqUnuseAddress
	ReqBlindUtxo
	ReqListInvoices
	ReqAddInvoice
	ReqComposeTransfer
	ReqFinalizeTransfer
	ReqAcceptTransfer
	ReqContractUnspent
	ReqListIdentities
	ReqAddSigner
	ReqAddIdentity
	ReqImportAsset
	ReqListAssets
)

func (t RequestType) String() string {
	names := [...]string{
		"CreateSingleSig", "ContractOperations", "ListContracts",
		"RenameContract", "DeleteContract", "SyncContract", "UsedAddresses",
		"NextAddress", "UnuseAddress", "BlindUtxo", "ListInvoices",
		"AddInvoice", "ComposeTransfer", "FinalizeTransfer", "AcceptTransfer",
		"ContractUnspent", "ListIdentities", "AddSigner", "AddIdentity",
		"ImportAsset", "ListAssets",
	}
	if int(t) < len(names) {
		return names[t]
	}
	return fmt.Sprintf("RequestType(%d)", t)
}

// encodePolicyDescriptor wire-encodes a bare ContractDescriptor by
// wrapping it in a throwaway Current policy and reusing Policy's exported
// strict encoding — ContractDescriptor's own encode/decode are package
// private, since every other caller reaches them only through a Policy.
func encodePolicyDescriptor(w io.Writer, d model.ContractDescriptor) error {
	p := model.Policy{Type: model.PolicyCurrent, Descriptor: d}
	return p.StrictEncode(w)
}

func decodePolicyDescriptor(r io.Reader) (model.ContractDescriptor, error) {
	var p model.Policy
	if err := p.StrictDecode(r); err != nil {
		return model.ContractDescriptor{}, err
	}
	return p.Descriptor, nil
}

// EncodeContractDescriptor and DecodeContractDescriptor expose
// encodePolicyDescriptor/decodePolicyDescriptor to out-of-process callers
// (citadel-cli) that need to build a PayeeDescriptorWire without going
// through a full Policy/Contract.
func EncodeContractDescriptor(d model.ContractDescriptor) ([]byte, error) {
	return marshal(func(w io.Writer) error { return encodePolicyDescriptor(w, d) })
}

func DecodeContractDescriptor(raw []byte) (model.ContractDescriptor, error) {
	return decodePolicyDescriptor(bytes.NewReader(raw))
}

func encodeReveal(w io.Writer, reveal model.OutpointReveal) error {
	if _, err := w.Write(reveal.Txid[:]); err != nil {
		return err
	}
	if err := writeU32(w, reveal.Vout); err != nil {
		return err
	}
	return writeU64(w, reveal.Blinding)
}

func decodeReveal(r io.Reader) (model.OutpointReveal, error) {
	var reveal model.OutpointReveal
	if _, err := io.ReadFull(r, reveal.Txid[:]); err != nil {
		return reveal, err
	}
	var err error
	if reveal.Vout, err = readU32(r); err != nil {
		return reveal, err
	}
	reveal.Blinding, err = readU64(r)
	return reveal, err
}

// --- CreateSingleSig ---

type CreateSingleSigRequest struct {
	Category      model.PolicyType
	XPub          string
	Wildcard      bool
	TerminalIndex uint32
	Name          string
	Chain         string
}

func (req CreateSingleSigRequest) StrictEncode(w io.Writer) error {
	if err := writeU8(w, uint8(req.Category)); err != nil {
		return err
	}
	if err := writeString(w, req.XPub); err != nil {
		return err
	}
	if err := writeBool(w, req.Wildcard); err != nil {
		return err
	}
	if err := writeU32(w, req.TerminalIndex); err != nil {
		return err
	}
	if err := writeString(w, req.Name); err != nil {
		return err
	}
	return writeString(w, req.Chain)
}

func (req *CreateSingleSigRequest) StrictDecode(r io.Reader) error {
	category, err := readU8(r)
	if err != nil {
		return err
	}
	req.Category = model.PolicyType(category)
	if req.XPub, err = readString(r); err != nil {
		return err
	}
	if req.Wildcard, err = readBool(r); err != nil {
		return err
	}
	if req.TerminalIndex, err = readU32(r); err != nil {
		return err
	}
	if req.Name, err = readString(r); err != nil {
		return err
	}
	req.Chain, err = readString(r)
	return err
}

// --- ContractId-only requests (ContractOperations, ListInvoices,
// DeleteContract, UsedAddresses, BlindUtxo, ContractUnspent share a shape) ---

type ContractIDRequest struct {
	ContractID model.ContractID
}

func (req ContractIDRequest) StrictEncode(w io.Writer) error {
	return req.ContractID.StrictEncode(w)
}

func (req *ContractIDRequest) StrictDecode(r io.Reader) error {
	return req.ContractID.StrictDecode(r)
}

// --- RenameContract ---

type RenameContractRequest struct {
	ContractID model.ContractID
	Name       string
}

func (req RenameContractRequest) StrictEncode(w io.Writer) error {
	if err := req.ContractID.StrictEncode(w); err != nil {
		return err
	}
	return writeString(w, req.Name)
}

func (req *RenameContractRequest) StrictDecode(r io.Reader) error {
	if err := req.ContractID.StrictDecode(r); err != nil {
		return err
	}
	var err error
	req.Name, err = readString(r)
	return err
}

// --- SyncContract ---

type SyncContractRequest struct {
	ContractID  model.ContractID
	LookupDepth uint8
}

func (req SyncContractRequest) StrictEncode(w io.Writer) error {
	if err := req.ContractID.StrictEncode(w); err != nil {
		return err
	}
	return writeU8(w, req.LookupDepth)
}

func (req *SyncContractRequest) StrictDecode(r io.Reader) error {
	if err := req.ContractID.StrictDecode(r); err != nil {
		return err
	}
	depth, err := readU8(r)
	req.LookupDepth = depth
	return err
}

type AssetUtxoMapReply struct {
	Assets map[model.AssetID][]model.Utxo
}

func (reply AssetUtxoMapReply) StrictEncode(w io.Writer) error {
	if err := writeU32(w, uint32(len(reply.Assets))); err != nil {
		return err
	}
	for asset, utxos := range reply.Assets {
		if err := asset.StrictEncode(w); err != nil {
			return err
		}
		if err := writeU32(w, uint32(len(utxos))); err != nil {
			return err
		}
		for _, u := range utxos {
			if err := u.StrictEncode(w); err != nil {
				return err
			}
		}
	}
	return nil
}

func (reply *AssetUtxoMapReply) StrictDecode(r io.Reader) error {
	n, err := readU32(r)
	if err != nil {
		return err
	}
	reply.Assets = make(map[model.AssetID][]model.Utxo, n)
	for i := uint32(0); i < n; i++ {
		var asset model.AssetID
		if err := asset.StrictDecode(r); err != nil {
			return err
		}
		m, err := readU32(r)
		if err != nil {
			return err
		}
		utxos := make([]model.Utxo, m)
		for j := range utxos {
			if err := utxos[j].StrictDecode(r); err != nil {
				return err
			}
		}
		reply.Assets[asset] = utxos
	}
	return nil
}

// --- NextAddress ---

type NextAddressRequest struct {
	ContractID model.ContractID
	Index      *model.UnhardenedIndex // nil selects NextUnusedDerivation
	Legacy     bool
	MarkUsed   bool
}

func (req NextAddressRequest) StrictEncode(w io.Writer) error {
	if err := req.ContractID.StrictEncode(w); err != nil {
		return err
	}
	hasIndex := req.Index != nil
	if err := writeBool(w, hasIndex); err != nil {
		return err
	}
	if hasIndex {
		if err := writeU32(w, uint32(*req.Index)); err != nil {
			return err
		}
	}
	if err := writeBool(w, req.Legacy); err != nil {
		return err
	}
	return writeBool(w, req.MarkUsed)
}

func (req *NextAddressRequest) StrictDecode(r io.Reader) error {
	if err := req.ContractID.StrictDecode(r); err != nil {
		return err
	}
	hasIndex, err := readBool(r)
	if err != nil {
		return err
	}
	if hasIndex {
		idx, err := readU32(r)
		if err != nil {
			return err
		}
		ui := model.UnhardenedIndex(idx)
		req.Index = &ui
	}
	if req.Legacy, err = readBool(r); err != nil {
		return err
	}
	req.MarkUsed, err = readBool(r)
	return err
}

type AddressDerivationReply struct {
	Derivation model.AddressDerivation
}

func (reply AddressDerivationReply) StrictEncode(w io.Writer) error {
	if err := writeString(w, reply.Derivation.Address); err != nil {
		return err
	}
	if err := writeU32(w, uint32(len(reply.Derivation.Path))); err != nil {
		return err
	}
	for _, step := range reply.Derivation.Path {
		if err := writeU32(w, step); err != nil {
			return err
		}
	}
	return nil
}

func (reply *AddressDerivationReply) StrictDecode(r io.Reader) error {
	var err error
	if reply.Derivation.Address, err = readString(r); err != nil {
		return err
	}
	n, err := readU32(r)
	if err != nil {
		return err
	}
	reply.Derivation.Path = make([]uint32, n)
	for i := range reply.Derivation.Path {
		if reply.Derivation.Path[i], err = readU32(r); err != nil {
			return err
		}
	}
	return nil
}

type AddressDerivationsReply struct {
	Derivations []model.AddressDerivation
}

func (reply AddressDerivationsReply) StrictEncode(w io.Writer) error {
	if err := writeU32(w, uint32(len(reply.Derivations))); err != nil {
		return err
	}
	for _, d := range reply.Derivations {
		if err := (AddressDerivationReply{d}).StrictEncode(w); err != nil {
			return err
		}
	}
	return nil
}

func (reply *AddressDerivationsReply) StrictDecode(r io.Reader) error {
	n, err := readU32(r)
	if err != nil {
		return err
	}
	reply.Derivations = make([]model.AddressDerivation, n)
	for i := range reply.Derivations {
		var one AddressDerivationReply
		if err := one.StrictDecode(r); err != nil {
			return err
		}
		reply.Derivations[i] = one.Derivation
	}
	return nil
}

// --- UnuseAddress ---

type UnuseAddressRequest struct {
	ContractID model.ContractID
	Address    string
}

func (req UnuseAddressRequest) StrictEncode(w io.Writer) error {
	if err := req.ContractID.StrictEncode(w); err != nil {
		return err
	}
	return writeString(w, req.Address)
}

func (req *UnuseAddressRequest) StrictDecode(r io.Reader) error {
	if err := req.ContractID.StrictDecode(r); err != nil {
		return err
	}
	var err error
	req.Address, err = readString(r)
	return err
}

// --- BlindUtxo ---

type OutpointRevealReply struct {
	Reveal model.OutpointReveal
}

func (reply OutpointRevealReply) StrictEncode(w io.Writer) error {
	return encodeReveal(w, reply.Reveal)
}

func (reply *OutpointRevealReply) StrictDecode(r io.Reader) error {
	reveal, err := decodeReveal(r)
	reply.Reveal = reveal
	return err
}

// --- Invoices ---

type InvoicesReply struct {
	Invoices []model.Invoice
}

func (reply InvoicesReply) StrictEncode(w io.Writer) error {
	if err := writeU32(w, uint32(len(reply.Invoices))); err != nil {
		return err
	}
	for _, inv := range reply.Invoices {
		if err := inv.StrictEncode(w); err != nil {
			return err
		}
	}
	return nil
}

func (reply *InvoicesReply) StrictDecode(r io.Reader) error {
	n, err := readU32(r)
	if err != nil {
		return err
	}
	reply.Invoices = make([]model.Invoice, n)
	for i := range reply.Invoices {
		if err := reply.Invoices[i].StrictDecode(r); err != nil {
			return err
		}
	}
	return nil
}

// SourceInfo pairs a contract that may hold a blinding reveal relevant to a
// newly recorded invoice's payment, used by AddInvoice to cross-reference
// which of the payer's own contracts a blind-UTXO reveal belongs to.
type SourceInfo struct {
	ContractID model.ContractID
	Reveal     *model.OutpointReveal
}

type AddInvoiceRequest struct {
	ContractID model.ContractID // invoice is recorded against this contract
	Invoice    model.Invoice
	SourceInfo []SourceInfo
}

func (req AddInvoiceRequest) StrictEncode(w io.Writer) error {
	if err := req.ContractID.StrictEncode(w); err != nil {
		return err
	}
	if err := req.Invoice.StrictEncode(w); err != nil {
		return err
	}
	if err := writeU32(w, uint32(len(req.SourceInfo))); err != nil {
		return err
	}
	for _, si := range req.SourceInfo {
		if err := si.ContractID.StrictEncode(w); err != nil {
			return err
		}
		hasReveal := si.Reveal != nil
		if err := writeBool(w, hasReveal); err != nil {
			return err
		}
		if hasReveal {
			if err := encodeReveal(w, *si.Reveal); err != nil {
				return err
			}
		}
	}
	return nil
}

func (req *AddInvoiceRequest) StrictDecode(r io.Reader) error {
	if err := req.ContractID.StrictDecode(r); err != nil {
		return err
	}
	if err := req.Invoice.StrictDecode(r); err != nil {
		return err
	}
	n, err := readU32(r)
	if err != nil {
		return err
	}
	req.SourceInfo = make([]SourceInfo, n)
	for i := range req.SourceInfo {
		if err := req.SourceInfo[i].ContractID.StrictDecode(r); err != nil {
			return err
		}
		hasReveal, err := readBool(r)
		if err != nil {
			return err
		}
		if hasReveal {
			reveal, err := decodeReveal(r)
			if err != nil {
				return err
			}
			req.SourceInfo[i].Reveal = &reveal
		}
	}
	return nil
}

// --- ComposeTransfer ---

// PayeeDescriptorWire is the wire shape of a runtime.PayeeDescriptor: a
// full script descriptor plus the concrete index it resolves to, so a
// payee can be named without the core needing to recognize their contract.
type PayeeDescriptorWire struct {
	Descriptor model.ContractDescriptor
	Index      model.UnhardenedIndex
}

func (p PayeeDescriptorWire) StrictEncode(w io.Writer) error {
	if err := encodePolicyDescriptor(w, p.Descriptor); err != nil {
		return err
	}
	return writeU32(w, uint32(p.Index))
}

func (p *PayeeDescriptorWire) StrictDecode(r io.Reader) error {
	d, err := decodePolicyDescriptor(r)
	if err != nil {
		return err
	}
	p.Descriptor = d
	idx, err := readU32(r)
	p.Index = model.UnhardenedIndex(idx)
	return err
}

const (
	transferKindBitcoin uint8 = iota
	transferKindRGB
)

// TransferKindBitcoin and TransferKindRGB are the exported forms of
// transferKindBitcoin/transferKindRGB, for out-of-process callers
// (citadel-cli) building a TransferInfoWire directly.
const (
	TransferKindBitcoin = transferKindBitcoin
	TransferKindRGB     = transferKindRGB
)

const (
	rgbReceiverKindDescriptor uint8 = iota
	rgbReceiverKindBlindUtxo
)

// RGBReceiverKindDescriptor and RGBReceiverKindBlindUtxo are the exported
// forms of rgbReceiverKindDescriptor/rgbReceiverKindBlindUtxo.
const (
	RGBReceiverKindDescriptor = rgbReceiverKindDescriptor
	RGBReceiverKindBlindUtxo  = rgbReceiverKindBlindUtxo
)

// TransferInfoWire is the wire shape of runtime.TransferInfo.
type TransferInfoWire struct {
	Kind uint8

	BitcoinPayee PayeeDescriptorWire

	RGBContractID   model.ContractID
	RGBReceiverKind uint8
	RGBPayeeDescr   PayeeDescriptorWire
	RGBGiveaway     uint64
	RGBBlindHash    [32]byte
}

func (t TransferInfoWire) StrictEncode(w io.Writer) error {
	if err := writeU8(w, t.Kind); err != nil {
		return err
	}
	switch t.Kind {
	case transferKindBitcoin:
		return t.BitcoinPayee.StrictEncode(w)
	case transferKindRGB:
		if err := t.RGBContractID.StrictEncode(w); err != nil {
			return err
		}
		if err := writeU8(w, t.RGBReceiverKind); err != nil {
			return err
		}
		switch t.RGBReceiverKind {
		case rgbReceiverKindDescriptor:
			if err := t.RGBPayeeDescr.StrictEncode(w); err != nil {
				return err
			}
			return writeU64(w, t.RGBGiveaway)
		case rgbReceiverKindBlindUtxo:
			_, err := w.Write(t.RGBBlindHash[:])
			return err
		}
		return fmt.Errorf("rpc: unknown rgb receiver kind %d", t.RGBReceiverKind)
	}
	return fmt.Errorf("rpc: unknown transfer kind %d", t.Kind)
}

func (t *TransferInfoWire) StrictDecode(r io.Reader) error {
	kind, err := readU8(r)
	if err != nil {
		return err
	}
	t.Kind = kind
	switch t.Kind {
	case transferKindBitcoin:
		return t.BitcoinPayee.StrictDecode(r)
	case transferKindRGB:
		if err := t.RGBContractID.StrictDecode(r); err != nil {
			return err
		}
		recvKind, err := readU8(r)
		if err != nil {
			return err
		}
		t.RGBReceiverKind = recvKind
		switch t.RGBReceiverKind {
		case rgbReceiverKindDescriptor:
			if err := t.RGBPayeeDescr.StrictDecode(r); err != nil {
				return err
			}
			t.RGBGiveaway, err = readU64(r)
			return err
		case rgbReceiverKindBlindUtxo:
			_, err := io.ReadFull(r, t.RGBBlindHash[:])
			return err
		}
		return fmt.Errorf("rpc: unknown rgb receiver kind %d", t.RGBReceiverKind)
	}
	return fmt.Errorf("rpc: unknown transfer kind %d", t.Kind)
}

type ComposeTransferRequest struct {
	PayFrom      model.ContractID
	AssetValue   uint64
	BitcoinFee   uint64
	TransferInfo TransferInfoWire

	HasInvoice bool
	Invoice    model.Invoice
}

func (req ComposeTransferRequest) StrictEncode(w io.Writer) error {
	if err := req.PayFrom.StrictEncode(w); err != nil {
		return err
	}
	if err := writeU64(w, req.AssetValue); err != nil {
		return err
	}
	if err := writeU64(w, req.BitcoinFee); err != nil {
		return err
	}
	if err := req.TransferInfo.StrictEncode(w); err != nil {
		return err
	}
	if err := writeBool(w, req.HasInvoice); err != nil {
		return err
	}
	if req.HasInvoice {
		return req.Invoice.StrictEncode(w)
	}
	return nil
}

func (req *ComposeTransferRequest) StrictDecode(r io.Reader) error {
	if err := req.PayFrom.StrictDecode(r); err != nil {
		return err
	}
	var err error
	if req.AssetValue, err = readU64(r); err != nil {
		return err
	}
	if req.BitcoinFee, err = readU64(r); err != nil {
		return err
	}
	if err := req.TransferInfo.StrictDecode(r); err != nil {
		return err
	}
	if req.HasInvoice, err = readBool(r); err != nil {
		return err
	}
	if req.HasInvoice {
		return req.Invoice.StrictDecode(r)
	}
	return nil
}

type PreparedTransferReply struct {
	PSBT        []byte
	Consignment []byte
}

func (reply PreparedTransferReply) StrictEncode(w io.Writer) error {
	if err := writeBytes(w, reply.PSBT); err != nil {
		return err
	}
	return writeBytes(w, reply.Consignment)
}

func (reply *PreparedTransferReply) StrictDecode(r io.Reader) error {
	var err error
	if reply.PSBT, err = readBytes(r); err != nil {
		return err
	}
	reply.Consignment, err = readBytes(r)
	return err
}

// --- FinalizeTransfer / AcceptTransfer ---

type PSBTRequest struct {
	PSBT []byte
}

func (req PSBTRequest) StrictEncode(w io.Writer) error { return writeBytes(w, req.PSBT) }
func (req *PSBTRequest) StrictDecode(r io.Reader) error {
	psbt, err := readBytes(r)
	req.PSBT = psbt
	return err
}

type ConsignmentRequest struct {
	Consignment []byte
}

func (req ConsignmentRequest) StrictEncode(w io.Writer) error { return writeBytes(w, req.Consignment) }
func (req *ConsignmentRequest) StrictDecode(r io.Reader) error {
	c, err := readBytes(r)
	req.Consignment = c
	return err
}

type ValidationStatusReply struct {
	Status assetclient.ValidationStatus
}

func (reply ValidationStatusReply) StrictEncode(w io.Writer) error {
	return writeU8(w, uint8(reply.Status))
}

func (reply *ValidationStatusReply) StrictDecode(r io.Reader) error {
	s, err := readU8(r)
	reply.Status = assetclient.ValidationStatus(s)
	return err
}

// --- ListContracts / ContractOperations ---

type ContractsReply struct {
	Contracts []*model.Contract
}

func (reply ContractsReply) StrictEncode(w io.Writer) error {
	if err := writeU32(w, uint32(len(reply.Contracts))); err != nil {
		return err
	}
	for _, c := range reply.Contracts {
		if err := c.StrictEncode(w); err != nil {
			return err
		}
	}
	return nil
}

func (reply *ContractsReply) StrictDecode(r io.Reader) error {
	n, err := readU32(r)
	if err != nil {
		return err
	}
	reply.Contracts = make([]*model.Contract, n)
	for i := range reply.Contracts {
		c := &model.Contract{}
		if err := c.StrictDecode(r); err != nil {
			return err
		}
		reply.Contracts[i] = c
	}
	return nil
}

type OperationsReply struct {
	Operations []model.Operation
}

func (reply OperationsReply) StrictEncode(w io.Writer) error {
	if err := writeU32(w, uint32(len(reply.Operations))); err != nil {
		return err
	}
	for _, op := range reply.Operations {
		if err := op.StrictEncode(w); err != nil {
			return err
		}
	}
	return nil
}

func (reply *OperationsReply) StrictDecode(r io.Reader) error {
	n, err := readU32(r)
	if err != nil {
		return err
	}
	reply.Operations = make([]model.Operation, n)
	for i := range reply.Operations {
		if err := reply.Operations[i].StrictDecode(r); err != nil {
			return err
		}
	}
	return nil
}

// --- Identities / Signers (spec.md §6's thin, untyped "account"/"identity"
// surface — given no further shape in the specification, these carry an
// opaque label plus an xpub, the minimum needed to be useful) ---

type Identity = model.Identity

type Signer = model.Signer

type AddSignerRequest struct{ Signer Signer }
type AddIdentityRequest struct{ Identity Identity }

type IdentitiesReply struct {
	Identities []Identity
}

// --- ImportAsset / ListAssets ---

type ImportAssetRequest struct {
	Genesis []byte
}

func (req ImportAssetRequest) StrictEncode(w io.Writer) error { return writeBytes(w, req.Genesis) }
func (req *ImportAssetRequest) StrictDecode(r io.Reader) error {
	g, err := readBytes(r)
	req.Genesis = g
	return err
}

type AssetReply struct {
	Asset assetclient.Asset
}

type AssetsReply struct {
	Assets []assetclient.Asset
}

// marshalMessage serializes any StrictEncode-implementing request/reply
// through the shared buffer helper.
func marshalMessage(enc func(io.Writer) error) ([]byte, error) {
	return marshal(enc)
}

// unmarshalMessage is a convenience wrapper for StrictDecode-implementing
// request/reply types.
func unmarshalMessage(payload []byte, dec func(io.Reader) error) error {
	return dec(bytes.NewReader(payload))
}
