package model

import (
	"crypto/sha256"
	"io"
	"time"

	"github.com/tv42/zbase32"
)

// Invoice generalizes the teacher's BOLT11 zpay32.Invoice (Net, MilliAt,
// Timestamp, Destination, Description/DescriptionHash, Features) to a
// payment request that may target either a bitcoin amount or a colored
// RGB asset amount. The core treats an Invoice as an opaque, storable value
// per its external-invoice-semantics scope: only identity, encoding, and
// storage live here.
type Invoice struct {
	Destination     ContractID
	AssetID         *AssetID // nil for a plain bitcoin invoice
	Amount          uint64
	MilliAmount     uint64
	Timestamp       time.Time
	Expiry          time.Duration
	Description     string
	DescriptionHash *[32]byte
	Features        []byte
}

// Hash returns a content identifier for the invoice, computed over its
// strict encoding. AddInvoice does not use it and does not deduplicate.
func (inv Invoice) Hash() ([32]byte, error) {
	data, err := StrictSerialize(inv)
	if err != nil {
		return [32]byte{}, err
	}
	return sha256.Sum256(data), nil
}

// StrictEncode writes the canonical byte representation of an Invoice.
func (inv Invoice) StrictEncode(w io.Writer) error {
	if err := inv.Destination.StrictEncode(w); err != nil {
		return err
	}
	hasAsset := inv.AssetID != nil
	if err := writeBool(w, hasAsset); err != nil {
		return err
	}
	if hasAsset {
		if err := inv.AssetID.StrictEncode(w); err != nil {
			return err
		}
	}
	if err := writeU64(w, inv.Amount); err != nil {
		return err
	}
	if err := writeU64(w, inv.MilliAmount); err != nil {
		return err
	}
	if err := writeU64(w, uint64(inv.Timestamp.Unix())); err != nil {
		return err
	}
	if err := writeU64(w, uint64(inv.Expiry.Seconds())); err != nil {
		return err
	}
	if err := writeString(w, inv.Description); err != nil {
		return err
	}
	hasHash := inv.DescriptionHash != nil
	if err := writeBool(w, hasHash); err != nil {
		return err
	}
	if hasHash {
		if _, err := w.Write(inv.DescriptionHash[:]); err != nil {
			return err
		}
	}
	return writeBytes(w, inv.Features)
}

// StrictDecode reconstructs an Invoice from its strict-encoded form.
func (inv *Invoice) StrictDecode(r io.Reader) error {
	if err := inv.Destination.StrictDecode(r); err != nil {
		return err
	}
	hasAsset, err := readBool(r)
	if err != nil {
		return err
	}
	if hasAsset {
		var id AssetID
		if err := id.StrictDecode(r); err != nil {
			return err
		}
		inv.AssetID = &id
	}
	if inv.Amount, err = readU64(r); err != nil {
		return err
	}
	if inv.MilliAmount, err = readU64(r); err != nil {
		return err
	}
	ts, err := readU64(r)
	if err != nil {
		return err
	}
	inv.Timestamp = time.Unix(int64(ts), 0).UTC()
	expiry, err := readU64(r)
	if err != nil {
		return err
	}
	inv.Expiry = time.Duration(expiry) * time.Second
	if inv.Description, err = readString(r); err != nil {
		return err
	}
	hasHash, err := readBool(r)
	if err != nil {
		return err
	}
	if hasHash {
		var h [32]byte
		if _, err := io.ReadFull(r, h[:]); err != nil {
			return err
		}
		inv.DescriptionHash = &h
	}
	inv.Features, err = readBytes(r)
	return err
}

// OutpointReveal is the preimage of a blind UTXO hash: an outpoint plus a
// blinding factor, produced by BlindUtxo and consumed by AcceptTransfer.
type OutpointReveal struct {
	Txid     [32]byte
	Vout     uint32
	Blinding uint64
}

// Hash returns the blind UTXO hash sha256(txid || vout || blinding)
// committing to this reveal.
func (r OutpointReveal) Hash() [32]byte {
	h := sha256.New()
	h.Write(r.Txid[:])
	var buf [12]byte
	buf[0] = byte(r.Vout >> 24)
	buf[1] = byte(r.Vout >> 16)
	buf[2] = byte(r.Vout >> 8)
	buf[3] = byte(r.Vout)
	for i := 0; i < 8; i++ {
		buf[4+i] = byte(r.Blinding >> (56 - 8*i))
	}
	h.Write(buf[:])
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// String renders the reveal's blind UTXO hash as zbase32, a human-oriented
// alphabet (no visually ambiguous characters) suited to the short strings
// a payee copies out of a terminal or QR code.
func (r OutpointReveal) String() string {
	hash := r.Hash()
	return zbase32.EncodeToString(hash[:])
}
