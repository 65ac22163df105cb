package assetclient

import (
	"io"

	"github.com/btcsuite/btcd/wire"
	"github.com/mycitadel/citadel-runtime/model"
)

// RGBEndpointKind discriminates the two ways a colored-asset transfer names
// its receiving endpoint.
type RGBEndpointKind int

const (
	EndpointTxOutpoint RGBEndpointKind = iota
	EndpointWitnessVout
)

// RGBEndpoint names either a blind-UTXO hash (TxOutpoint) or a vout on the
// witness transaction still being assembled (WitnessVout), matching
// transfer.rs's two receiver/change-allocation shapes.
type RGBEndpoint struct {
	Kind     RGBEndpointKind
	Hash     [32]byte // valid when Kind == EndpointTxOutpoint
	Vout     uint32   // valid when Kind == EndpointWitnessVout
	Blinding uint64   // valid when Kind == EndpointWitnessVout
}

func (e RGBEndpoint) strictEncode(w io.Writer) error {
	if err := writeU8(w, uint8(e.Kind)); err != nil {
		return err
	}
	switch e.Kind {
	case EndpointTxOutpoint:
		_, err := w.Write(e.Hash[:])
		return err
	case EndpointWitnessVout:
		if err := writeU32(w, e.Vout); err != nil {
			return err
		}
		return writeU64(w, e.Blinding)
	}
	return nil
}

func (e *RGBEndpoint) strictDecode(r io.Reader) error {
	kind, err := readU8(r)
	if err != nil {
		return err
	}
	e.Kind = RGBEndpointKind(kind)
	switch e.Kind {
	case EndpointTxOutpoint:
		_, err := io.ReadFull(r, e.Hash[:])
		return err
	case EndpointWitnessVout:
		if e.Vout, err = readU32(r); err != nil {
			return err
		}
		e.Blinding, err = readU64(r)
		return err
	}
	return nil
}

// Asset is the colored-asset metadata the daemon reports for ImportAsset
// and ListAssets.
type Asset struct {
	ID               model.AssetID
	Ticker           string
	Name             string
	Precision        uint8
	KnownCirculating uint64
}

// ValidationStatus is the outcome of submitting a consignment to Validate.
type ValidationStatus int

const (
	ValidationValid ValidationStatus = iota
	ValidationInvalid
	ValidationUnresolved
)

// OutpointAssetsRequest asks the daemon which colored-asset allocations, if
// any, are bound to a single Bitcoin outpoint.
type OutpointAssetsRequest struct {
	Outpoint wire.OutPoint
}

// OutpointAssetsReply carries the nonzero per-asset amounts found, keyed by
// AssetID; an empty map leaves the UTXO solely in the bitcoin bucket.
type OutpointAssetsReply struct {
	Amounts map[model.AssetID]uint64
}

// TransferRequest drives the colored-asset daemon to embed a
// pay-to-contract commitment for an outgoing transfer into psbt.
type TransferRequest struct {
	AssetID   model.AssetID
	Inputs    []wire.OutPoint
	Endpoints map[RGBEndpoint]uint64 // receiving endpoint -> amount
	ChangeMap map[RGBEndpoint]uint64 // change endpoint -> amount
	PSBT      []byte
}

// TransferReply carries the consignment proving the transfer, the sender's
// self-disclosure, and the witness PSBT with the commitment embedded.
type TransferReply struct {
	Consignment []byte
	Disclosure  []byte
	WitnessPSBT []byte
}

// EncloseRequest self-encloses a disclosure so a future sync can
// reconstruct the sender's own change allocations.
type EncloseRequest struct {
	Disclosure []byte
}

// ValidateRequest submits a consignment for validation ahead of acceptance.
type ValidateRequest struct {
	Consignment []byte
}

// ValidateReply reports the validation outcome. Endpoints names the
// blind-UTXO (TxOutpoint-kind) endpoint hashes the consignment commits to,
// as decoded by the daemon while it validates the consignment's internal
// client-side-validated state — the core never parses a consignment's
// bytes itself, so it relies on the daemon to surface this list rather
// than reimplementing the RGB wire format locally.
type ValidateReply struct {
	Status    ValidationStatus
	Endpoints [][32]byte
}

// AcceptRequest finalizes acceptance of a validated consignment, supplying
// the blinding reveals whose hashes matched one of its endpoints.
type AcceptRequest struct {
	Consignment []byte
	Reveals     []model.OutpointReveal
}

// ImportAssetRequest registers a new asset from its genesis data.
type ImportAssetRequest struct {
	Genesis []byte
}

// ImportAssetReply returns the freshly registered asset's metadata.
type ImportAssetReply struct {
	Asset Asset
}

// ListAssetsReply enumerates every asset the daemon knows about.
type ListAssetsReply struct {
	Assets []Asset
}
