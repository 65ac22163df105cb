package assetclient

import (
	"fmt"
	"io"

	"github.com/btcsuite/btcd/wire"
	"github.com/mycitadel/citadel-runtime/model"
)

// rawMessage is implemented by every request/reply type exchanged with the
// colored-asset daemon; the grpc codec (codec.go) marshals directly through
// this pair of methods instead of protoc-generated code.
type rawMessage interface {
	StrictEncode(w io.Writer) error
	StrictDecode(r io.Reader) error
}

func writeOutpoint(w io.Writer, op wire.OutPoint) error {
	if _, err := w.Write(op.Hash[:]); err != nil {
		return err
	}
	return writeU32(w, op.Index)
}

func readOutpoint(r io.Reader) (wire.OutPoint, error) {
	var op wire.OutPoint
	if _, err := io.ReadFull(r, op.Hash[:]); err != nil {
		return op, err
	}
	idx, err := readU32(r)
	op.Index = idx
	return op, err
}

func (m OutpointAssetsRequest) StrictEncode(w io.Writer) error {
	return writeOutpoint(w, m.Outpoint)
}

func (m *OutpointAssetsRequest) StrictDecode(r io.Reader) error {
	op, err := readOutpoint(r)
	m.Outpoint = op
	return err
}

func (m OutpointAssetsReply) StrictEncode(w io.Writer) error {
	if err := writeU32(w, uint32(len(m.Amounts))); err != nil {
		return err
	}
	for asset, amount := range m.Amounts {
		if err := asset.StrictEncode(w); err != nil {
			return err
		}
		if err := writeU64(w, amount); err != nil {
			return err
		}
	}
	return nil
}

func (m *OutpointAssetsReply) StrictDecode(r io.Reader) error {
	n, err := readU32(r)
	if err != nil {
		return err
	}
	m.Amounts = make(map[model.AssetID]uint64, n)
	for i := uint32(0); i < n; i++ {
		var asset model.AssetID
		if err := asset.StrictDecode(r); err != nil {
			return err
		}
		amount, err := readU64(r)
		if err != nil {
			return err
		}
		m.Amounts[asset] = amount
	}
	return nil
}

func writeEndpointMap(w io.Writer, m map[RGBEndpoint]uint64) error {
	if err := writeU32(w, uint32(len(m))); err != nil {
		return err
	}
	for ep, amount := range m {
		if err := ep.strictEncode(w); err != nil {
			return err
		}
		if err := writeU64(w, amount); err != nil {
			return err
		}
	}
	return nil
}

func readEndpointMap(r io.Reader) (map[RGBEndpoint]uint64, error) {
	n, err := readU32(r)
	if err != nil {
		return nil, err
	}
	out := make(map[RGBEndpoint]uint64, n)
	for i := uint32(0); i < n; i++ {
		var ep RGBEndpoint
		if err := ep.strictDecode(r); err != nil {
			return nil, err
		}
		amount, err := readU64(r)
		if err != nil {
			return nil, err
		}
		out[ep] = amount
	}
	return out, nil
}

func (m TransferRequest) StrictEncode(w io.Writer) error {
	if err := m.AssetID.StrictEncode(w); err != nil {
		return err
	}
	if err := writeU32(w, uint32(len(m.Inputs))); err != nil {
		return err
	}
	for _, in := range m.Inputs {
		if err := writeOutpoint(w, in); err != nil {
			return err
		}
	}
	if err := writeEndpointMap(w, m.Endpoints); err != nil {
		return err
	}
	if err := writeEndpointMap(w, m.ChangeMap); err != nil {
		return err
	}
	return writeBytes(w, m.PSBT)
}

func (m *TransferRequest) StrictDecode(r io.Reader) error {
	if err := m.AssetID.StrictDecode(r); err != nil {
		return err
	}
	n, err := readU32(r)
	if err != nil {
		return err
	}
	m.Inputs = make([]wire.OutPoint, n)
	for i := range m.Inputs {
		if m.Inputs[i], err = readOutpoint(r); err != nil {
			return err
		}
	}
	if m.Endpoints, err = readEndpointMap(r); err != nil {
		return err
	}
	if m.ChangeMap, err = readEndpointMap(r); err != nil {
		return err
	}
	m.PSBT, err = readBytes(r)
	return err
}

func (m TransferReply) StrictEncode(w io.Writer) error {
	if err := writeBytes(w, m.Consignment); err != nil {
		return err
	}
	if err := writeBytes(w, m.Disclosure); err != nil {
		return err
	}
	return writeBytes(w, m.WitnessPSBT)
}

func (m *TransferReply) StrictDecode(r io.Reader) error {
	var err error
	if m.Consignment, err = readBytes(r); err != nil {
		return err
	}
	if m.Disclosure, err = readBytes(r); err != nil {
		return err
	}
	m.WitnessPSBT, err = readBytes(r)
	return err
}

func (m EncloseRequest) StrictEncode(w io.Writer) error { return writeBytes(w, m.Disclosure) }
func (m *EncloseRequest) StrictDecode(r io.Reader) error {
	var err error
	m.Disclosure, err = readBytes(r)
	return err
}

type encloseReply struct{}

func (encloseReply) StrictEncode(w io.Writer) error  { return nil }
func (*encloseReply) StrictDecode(r io.Reader) error { return nil }

func (m ValidateRequest) StrictEncode(w io.Writer) error { return writeBytes(w, m.Consignment) }
func (m *ValidateRequest) StrictDecode(r io.Reader) error {
	var err error
	m.Consignment, err = readBytes(r)
	return err
}

func (m ValidateReply) StrictEncode(w io.Writer) error {
	if err := writeU8(w, uint8(m.Status)); err != nil {
		return err
	}
	if err := writeU32(w, uint32(len(m.Endpoints))); err != nil {
		return err
	}
	for _, hash := range m.Endpoints {
		if _, err := w.Write(hash[:]); err != nil {
			return err
		}
	}
	return nil
}

func (m *ValidateReply) StrictDecode(r io.Reader) error {
	v, err := readU8(r)
	if err != nil {
		return err
	}
	m.Status = ValidationStatus(v)
	n, err := readU32(r)
	if err != nil {
		return err
	}
	if n > 1<<20 {
		return fmt.Errorf("assetclient: implausible endpoint count %d", n)
	}
	m.Endpoints = make([][32]byte, n)
	for i := range m.Endpoints {
		if _, err := io.ReadFull(r, m.Endpoints[i][:]); err != nil {
			return err
		}
	}
	return nil
}

func (m AcceptRequest) StrictEncode(w io.Writer) error {
	if err := writeBytes(w, m.Consignment); err != nil {
		return err
	}
	if err := writeU32(w, uint32(len(m.Reveals))); err != nil {
		return err
	}
	for _, reveal := range m.Reveals {
		if _, err := w.Write(reveal.Txid[:]); err != nil {
			return err
		}
		if err := writeU32(w, reveal.Vout); err != nil {
			return err
		}
		if err := writeU64(w, reveal.Blinding); err != nil {
			return err
		}
	}
	return nil
}

func (m *AcceptRequest) StrictDecode(r io.Reader) error {
	var err error
	if m.Consignment, err = readBytes(r); err != nil {
		return err
	}
	n, err := readU32(r)
	if err != nil {
		return err
	}
	m.Reveals = make([]model.OutpointReveal, n)
	for i := range m.Reveals {
		if _, err := io.ReadFull(r, m.Reveals[i].Txid[:]); err != nil {
			return err
		}
		if m.Reveals[i].Vout, err = readU32(r); err != nil {
			return err
		}
		if m.Reveals[i].Blinding, err = readU64(r); err != nil {
			return err
		}
	}
	return nil
}

type acceptReply struct{}

func (acceptReply) StrictEncode(w io.Writer) error  { return nil }
func (*acceptReply) StrictDecode(r io.Reader) error { return nil }

func (m ImportAssetRequest) StrictEncode(w io.Writer) error { return writeBytes(w, m.Genesis) }
func (m *ImportAssetRequest) StrictDecode(r io.Reader) error {
	var err error
	m.Genesis, err = readBytes(r)
	return err
}

func (a Asset) strictEncode(w io.Writer) error {
	if err := a.ID.StrictEncode(w); err != nil {
		return err
	}
	if err := writeString(w, a.Ticker); err != nil {
		return err
	}
	if err := writeString(w, a.Name); err != nil {
		return err
	}
	if err := writeU8(w, a.Precision); err != nil {
		return err
	}
	return writeU64(w, a.KnownCirculating)
}

func (a *Asset) strictDecode(r io.Reader) error {
	if err := a.ID.StrictDecode(r); err != nil {
		return err
	}
	var err error
	if a.Ticker, err = readString(r); err != nil {
		return err
	}
	if a.Name, err = readString(r); err != nil {
		return err
	}
	if a.Precision, err = readU8(r); err != nil {
		return err
	}
	a.KnownCirculating, err = readU64(r)
	return err
}

func (m ImportAssetReply) StrictEncode(w io.Writer) error  { return m.Asset.strictEncode(w) }
func (m *ImportAssetReply) StrictDecode(r io.Reader) error { return m.Asset.strictDecode(r) }

func (m ListAssetsReply) StrictEncode(w io.Writer) error {
	if err := writeU32(w, uint32(len(m.Assets))); err != nil {
		return err
	}
	for _, a := range m.Assets {
		if err := a.strictEncode(w); err != nil {
			return err
		}
	}
	return nil
}

func (m *ListAssetsReply) StrictDecode(r io.Reader) error {
	n, err := readU32(r)
	if err != nil {
		return err
	}
	m.Assets = make([]Asset, n)
	for i := range m.Assets {
		if err := m.Assets[i].strictDecode(r); err != nil {
			return err
		}
	}
	return nil
}
