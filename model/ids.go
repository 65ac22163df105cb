package model

import (
	"encoding/hex"
	"fmt"
	"io"

	"github.com/btcsuite/btcd/btcutil/bech32"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// ContractIDTag is the ASCII tag string mixed into the tagged-hash midstate
// used to derive a ContractId, matching the Rust original's
// `ContractIdTag`/`sha256t::Tag` commitment scheme.
const ContractIDTag = "citadel:contract"

// ContractIDHRP is the Bech32m human-readable prefix for a displayed
// ContractId.
const ContractIDHRP = "contract"

// ContractID is the stable, content-addressed identity of a Contract: a
// tagged hash over the canonical strict encoding of its Policy.
type ContractID [32]byte

// NewContractID computes the tagged hash of a policy's strict encoding.
func NewContractID(policy StrictEncoder) (ContractID, error) {
	data, err := StrictSerialize(policy)
	if err != nil {
		return ContractID{}, err
	}
	h := chainhash.TaggedHash([]byte(ContractIDTag), data)
	var id ContractID
	copy(id[:], h[:])
	return id, nil
}

// String renders the ContractId as Bech32m, e.g. "contract1...".
func (id ContractID) String() string {
	conv, err := bech32.ConvertBits(id[:], 8, 5, true)
	if err != nil {
		return hex.EncodeToString(id[:])
	}
	s, err := bech32.EncodeM(ContractIDHRP, conv)
	if err != nil {
		return hex.EncodeToString(id[:])
	}
	return s
}

// ParseContractID parses a Bech32m-encoded ContractId string.
func ParseContractID(s string) (ContractID, error) {
	hrp, data, err := bech32.DecodeNoLimit(s)
	if err != nil {
		return ContractID{}, err
	}
	if hrp != ContractIDHRP {
		return ContractID{}, fmt.Errorf("unexpected contract id prefix %q", hrp)
	}
	conv, err := bech32.ConvertBits(data, 5, 8, false)
	if err != nil {
		return ContractID{}, err
	}
	if len(conv) != 32 {
		return ContractID{}, fmt.Errorf("contract id must decode to 32 bytes, got %d", len(conv))
	}
	var id ContractID
	copy(id[:], conv)
	return id, nil
}

// IsZero reports whether id is the all-zero sentinel used as the bitcoin
// asset bucket key in per-asset UTXO maps.
func (id ContractID) IsZero() bool {
	return id == ContractID{}
}

// AssetID identifies either a colored RGB asset or, when zero, the
// distinguished bitcoin bucket used throughout the Chain Sync Engine and
// Transfer Composer's per-asset UTXO maps.
type AssetID = ContractID

// BitcoinAssetID is the zeroed AssetID representing native bitcoin value,
// as opposed to an RGB-colored allocation.
var BitcoinAssetID = AssetID{}

// StrictEncode writes the raw 32-byte id, used when a ContractId is embedded
// as a field of a larger strict-encoded structure (e.g. TweakedOutput).
func (id ContractID) StrictEncode(w io.Writer) error {
	_, err := w.Write(id[:])
	return err
}

// StrictDecode reads a raw 32-byte id back from r.
func (id *ContractID) StrictDecode(r io.Reader) error {
	_, err := io.ReadFull(r, id[:])
	return err
}
