package model

import (
	"io"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// OperationDirection discriminates an Operation's sub-fields.
type OperationDirection int

const (
	DirectionIncoming OperationDirection = iota
	DirectionOutgoing
)

// OutgoingInfo carries the sub-fields of an Outgoing Operation, assembled
// by the Transfer Composer's history phase (phase g).
type OutgoingInfo struct {
	// Published is false until a client reports successful broadcast;
	// the core never flips it itself once an Operation is persisted.
	Published bool

	AssetChange             uint64
	BitcoinChange           uint64
	ChangeOutputs           []uint32
	Giveaway                uint64
	PaidBitcoinFee          uint64
	OutputDerivationIndexes []UnhardenedIndex
	Invoice                 *Invoice
}

// IncomingInfo carries the sub-fields of an Incoming Operation, recorded
// when a colored-asset consignment is accepted.
type IncomingInfo struct {
	Amount   uint64
	AssetID  AssetID
	FromSelf bool
}

// Operation is an immutable wallet-history record.
type Operation struct {
	Txid       chainhash.Hash
	Direction  OperationDirection
	Outgoing   *OutgoingInfo
	Incoming   *IncomingInfo
	Timestamp  time.Time
	Height     uint32
	Volumes    map[AssetID]uint64
	PSBT       []byte
	Disclosure []byte // set only for RGB operations
	Notes      string
}

// StrictEncode writes the canonical byte representation of an Operation.
func (op Operation) StrictEncode(w io.Writer) error {
	if _, err := w.Write(op.Txid[:]); err != nil {
		return err
	}
	if err := writeU8(w, uint8(op.Direction)); err != nil {
		return err
	}
	switch op.Direction {
	case DirectionOutgoing:
		if err := op.Outgoing.strictEncode(w); err != nil {
			return err
		}
	case DirectionIncoming:
		if err := op.Incoming.strictEncode(w); err != nil {
			return err
		}
	}
	if err := writeU64(w, uint64(op.Timestamp.Unix())); err != nil {
		return err
	}
	if err := writeU32(w, op.Height); err != nil {
		return err
	}
	if err := writeU32(w, uint32(len(op.Volumes))); err != nil {
		return err
	}
	for asset, vol := range op.Volumes {
		if err := asset.StrictEncode(w); err != nil {
			return err
		}
		if err := writeU64(w, vol); err != nil {
			return err
		}
	}
	if err := writeBytes(w, op.PSBT); err != nil {
		return err
	}
	if err := writeBytes(w, op.Disclosure); err != nil {
		return err
	}
	return writeString(w, op.Notes)
}

// StrictDecode reconstructs an Operation from its strict-encoded form.
func (op *Operation) StrictDecode(r io.Reader) error {
	if _, err := io.ReadFull(r, op.Txid[:]); err != nil {
		return err
	}
	dir, err := readU8(r)
	if err != nil {
		return err
	}
	op.Direction = OperationDirection(dir)
	switch op.Direction {
	case DirectionOutgoing:
		op.Outgoing = &OutgoingInfo{}
		if err := op.Outgoing.strictDecode(r); err != nil {
			return err
		}
	case DirectionIncoming:
		op.Incoming = &IncomingInfo{}
		if err := op.Incoming.strictDecode(r); err != nil {
			return err
		}
	}
	ts, err := readU64(r)
	if err != nil {
		return err
	}
	op.Timestamp = time.Unix(int64(ts), 0).UTC()
	if op.Height, err = readU32(r); err != nil {
		return err
	}
	n, err := readU32(r)
	if err != nil {
		return err
	}
	op.Volumes = make(map[AssetID]uint64, n)
	for i := uint32(0); i < n; i++ {
		var asset AssetID
		if err := asset.StrictDecode(r); err != nil {
			return err
		}
		vol, err := readU64(r)
		if err != nil {
			return err
		}
		op.Volumes[asset] = vol
	}
	if op.PSBT, err = readBytes(r); err != nil {
		return err
	}
	if op.Disclosure, err = readBytes(r); err != nil {
		return err
	}
	op.Notes, err = readString(r)
	return err
}

func (o *OutgoingInfo) strictEncode(w io.Writer) error {
	if err := writeBool(w, o.Published); err != nil {
		return err
	}
	if err := writeU64(w, o.AssetChange); err != nil {
		return err
	}
	if err := writeU64(w, o.BitcoinChange); err != nil {
		return err
	}
	if err := writeU32(w, uint32(len(o.ChangeOutputs))); err != nil {
		return err
	}
	for _, vout := range o.ChangeOutputs {
		if err := writeU32(w, vout); err != nil {
			return err
		}
	}
	if err := writeU64(w, o.Giveaway); err != nil {
		return err
	}
	if err := writeU64(w, o.PaidBitcoinFee); err != nil {
		return err
	}
	if err := writeU32(w, uint32(len(o.OutputDerivationIndexes))); err != nil {
		return err
	}
	for _, idx := range o.OutputDerivationIndexes {
		if err := writeU32(w, uint32(idx)); err != nil {
			return err
		}
	}
	hasInvoice := o.Invoice != nil
	if err := writeBool(w, hasInvoice); err != nil {
		return err
	}
	if hasInvoice {
		return o.Invoice.StrictEncode(w)
	}
	return nil
}

func (o *OutgoingInfo) strictDecode(r io.Reader) error {
	var err error
	if o.Published, err = readBool(r); err != nil {
		return err
	}
	if o.AssetChange, err = readU64(r); err != nil {
		return err
	}
	if o.BitcoinChange, err = readU64(r); err != nil {
		return err
	}
	n, err := readU32(r)
	if err != nil {
		return err
	}
	o.ChangeOutputs = make([]uint32, n)
	for i := range o.ChangeOutputs {
		if o.ChangeOutputs[i], err = readU32(r); err != nil {
			return err
		}
	}
	if o.Giveaway, err = readU64(r); err != nil {
		return err
	}
	if o.PaidBitcoinFee, err = readU64(r); err != nil {
		return err
	}
	n, err = readU32(r)
	if err != nil {
		return err
	}
	o.OutputDerivationIndexes = make([]UnhardenedIndex, n)
	for i := range o.OutputDerivationIndexes {
		idx, err := readU32(r)
		if err != nil {
			return err
		}
		o.OutputDerivationIndexes[i] = UnhardenedIndex(idx)
	}
	hasInvoice, err := readBool(r)
	if err != nil {
		return err
	}
	if hasInvoice {
		o.Invoice = &Invoice{}
		return o.Invoice.StrictDecode(r)
	}
	return nil
}

func (inc *IncomingInfo) strictEncode(w io.Writer) error {
	if err := writeU64(w, inc.Amount); err != nil {
		return err
	}
	if err := inc.AssetID.StrictEncode(w); err != nil {
		return err
	}
	return writeBool(w, inc.FromSelf)
}

func (inc *IncomingInfo) strictDecode(r io.Reader) error {
	var err error
	if inc.Amount, err = readU64(r); err != nil {
		return err
	}
	if err := inc.AssetID.StrictDecode(r); err != nil {
		return err
	}
	inc.FromSelf, err = readBool(r)
	return err
}
