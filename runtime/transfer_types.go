package runtime

import "github.com/mycitadel/citadel-runtime/model"

// PayeeDescriptor names the receiving party of a bitcoin or RGB-giveaway
// output: a descriptor plus the concrete derivation index it resolves to,
// supplied by the payee (e.g. via an invoice or address string parsed
// upstream of the Transfer Composer).
type PayeeDescriptor struct {
	Descriptor model.ContractDescriptor
	Index      model.UnhardenedIndex
}

// Script derives the payee's scriptPubKey.
func (p PayeeDescriptor) Script() ([]byte, error) {
	return p.Descriptor.Script(p.Index, false)
}

// TransferInfoKind discriminates the two payment rails ComposeTransfer
// accepts, matching transfer.rs's tagged transfer_info union.
type TransferInfoKind int

const (
	TransferBitcoinPayment TransferInfoKind = iota
	TransferRGB
)

// RGBReceiverKind discriminates the two ways an RGB transfer's endpoint can
// be named.
type RGBReceiverKind int

const (
	RGBReceiverDescriptor RGBReceiverKind = iota
	RGBReceiverBlindUtxo
)

// RGBReceiver is the receiving endpoint of an outgoing RGB transfer: either
// a payee descriptor plus a bitcoin giveaway, or an opaque blind-UTXO hash.
type RGBReceiver struct {
	Kind       RGBReceiverKind
	Descriptor PayeeDescriptor // valid when Kind == RGBReceiverDescriptor
	Giveaway   uint64          // valid when Kind == RGBReceiverDescriptor
	BlindHash  [32]byte        // valid when Kind == RGBReceiverBlindUtxo
}

// TransferInfo is the tagged union of outgoing payment rails ComposeTransfer
// accepts: a plain bitcoin payment, or an RGB colored-asset transfer against
// a specific asset contract.
type TransferInfo struct {
	Kind TransferInfoKind

	// valid when Kind == TransferBitcoinPayment
	BitcoinPayee PayeeDescriptor

	// valid when Kind == TransferRGB
	RGBContractID model.ContractID
	RGBReceiver   RGBReceiver
}

// ComposeTransferRequest is the Transfer Composer's single entry point
// input, matching spec.md §4.3's `(pay_from, asset_value, bitcoin_fee,
// transfer_info, invoice)` contract.
type ComposeTransferRequest struct {
	PayFrom      model.ContractID
	AssetValue   uint64
	BitcoinFee   uint64
	TransferInfo TransferInfo
	Invoice      *model.Invoice
}

// ComposeTransferReply is the Transfer Composer's output: the assembled (or
// RGB witness) PSBT, and a consignment for RGB transfers only.
type ComposeTransferReply struct {
	PSBT        []byte
	Consignment []byte
}
