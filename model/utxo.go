package model

import (
	"io"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// Utxo is a single unspent transaction output known to the wallet, as
// reconciled by the Chain Sync Engine.
type Utxo struct {
	Value           uint64
	Height          uint32
	TxPos           uint32 // in-block transaction offset, from the Merkle proof
	Txid            chainhash.Hash
	Vout            uint32
	DerivationIndex UnhardenedIndex
	Tweak           *[32]byte // set only for pay-to-contract tweaked outputs
	PubKey          *btcec.PublicKey
	Address         string // best-effort parsed address, empty if not derivable
}

// OutPoint returns the wire.OutPoint this Utxo references.
func (u Utxo) OutPoint() wire.OutPoint {
	return wire.OutPoint{Hash: u.Txid, Index: u.Vout}
}

// IsTweaked reports whether this Utxo carries a recorded pay-to-contract
// tweak rather than being derivable from the policy alone.
func (u Utxo) IsTweaked() bool {
	return u.Tweak != nil
}

// Clone returns a deep copy, used when the Chain Sync Engine partitions the
// same Utxo into multiple per-asset buckets with overwritten values.
func (u Utxo) Clone() Utxo {
	clone := u
	if u.Tweak != nil {
		t := *u.Tweak
		clone.Tweak = &t
	}
	return clone
}

// StrictEncode writes the canonical byte representation of a Utxo.
func (u Utxo) StrictEncode(w io.Writer) error {
	if err := writeU64(w, u.Value); err != nil {
		return err
	}
	if err := writeU32(w, u.Height); err != nil {
		return err
	}
	if err := writeU32(w, u.TxPos); err != nil {
		return err
	}
	if _, err := w.Write(u.Txid[:]); err != nil {
		return err
	}
	if err := writeU32(w, u.Vout); err != nil {
		return err
	}
	if err := writeU32(w, uint32(u.DerivationIndex)); err != nil {
		return err
	}
	hasTweak := u.Tweak != nil
	if err := writeBool(w, hasTweak); err != nil {
		return err
	}
	if hasTweak {
		if _, err := w.Write(u.Tweak[:]); err != nil {
			return err
		}
		pub := u.PubKey.SerializeCompressed()
		if err := writeBytes(w, pub); err != nil {
			return err
		}
	}
	return writeString(w, u.Address)
}

// StrictDecode reconstructs a Utxo from its strict-encoded representation.
func (u *Utxo) StrictDecode(r io.Reader) error {
	var err error
	if u.Value, err = readU64(r); err != nil {
		return err
	}
	if u.Height, err = readU32(r); err != nil {
		return err
	}
	if u.TxPos, err = readU32(r); err != nil {
		return err
	}
	if _, err = io.ReadFull(r, u.Txid[:]); err != nil {
		return err
	}
	if u.Vout, err = readU32(r); err != nil {
		return err
	}
	idx, err := readU32(r)
	if err != nil {
		return err
	}
	u.DerivationIndex = UnhardenedIndex(idx)
	hasTweak, err := readBool(r)
	if err != nil {
		return err
	}
	if hasTweak {
		var tweak [32]byte
		if _, err = io.ReadFull(r, tweak[:]); err != nil {
			return err
		}
		u.Tweak = &tweak
		pubBytes, err := readBytes(r)
		if err != nil {
			return err
		}
		pub, err := btcec.ParsePubKey(pubBytes)
		if err != nil {
			return err
		}
		u.PubKey = pub
	}
	u.Address, err = readString(r)
	return err
}

// TweakedOutput records a pay-to-contract commitment embedded by the
// Transfer Composer. Written for the bitcoin change output of a composed
// RGB transfer when the witness PSBT reports a pubkey and tweak for it
// (otherwise none is written), and read back by Chain Sync to recognize
// scripts that the policy alone cannot derive.
type TweakedOutput struct {
	Outpoint        wire.OutPoint
	Script          []byte
	Tweak           [32]byte
	PubKey          *btcec.PublicKey
	DerivationIndex UnhardenedIndex
}

// StrictEncode writes the canonical byte representation of a TweakedOutput.
func (t TweakedOutput) StrictEncode(w io.Writer) error {
	if _, err := w.Write(t.Outpoint.Hash[:]); err != nil {
		return err
	}
	if err := writeU32(w, t.Outpoint.Index); err != nil {
		return err
	}
	if err := writeBytes(w, t.Script); err != nil {
		return err
	}
	if _, err := w.Write(t.Tweak[:]); err != nil {
		return err
	}
	if err := writeBytes(w, t.PubKey.SerializeCompressed()); err != nil {
		return err
	}
	return writeU32(w, uint32(t.DerivationIndex))
}

// StrictDecode reconstructs a TweakedOutput from its strict-encoded form.
func (t *TweakedOutput) StrictDecode(r io.Reader) error {
	if _, err := io.ReadFull(r, t.Outpoint.Hash[:]); err != nil {
		return err
	}
	idx, err := readU32(r)
	if err != nil {
		return err
	}
	t.Outpoint.Index = idx
	if t.Script, err = readBytes(r); err != nil {
		return err
	}
	if _, err = io.ReadFull(r, t.Tweak[:]); err != nil {
		return err
	}
	pubBytes, err := readBytes(r)
	if err != nil {
		return err
	}
	if t.PubKey, err = btcec.ParsePubKey(pubBytes); err != nil {
		return err
	}
	derIdx, err := readU32(r)
	if err != nil {
		return err
	}
	t.DerivationIndex = UnhardenedIndex(derIdx)
	return nil
}

// AddressDerivation pairs a derived address with the path used to derive
// it, returned from NextAddress/UsedAddresses.
type AddressDerivation struct {
	Address string
	Path    []uint32
}
