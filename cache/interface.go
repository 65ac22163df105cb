// Package cache defines the fast-lookup boundary Chain Sync and the
// Transfer Composer rely on for UTXO sets, derivation-index bookkeeping,
// and address bindings, plus an LRU-backed implementation.
package cache

import (
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/mycitadel/citadel-runtime/model"
)

// MineInfo locates a transaction inside a block, as recorded by Chain Sync
// from the indexer's Merkle-proof response.
type MineInfo struct {
	Height uint32
	TxPos  uint32
}

// Driver is the capability interface the runtime depends on for fast UTXO
// and derivation-index lookup. Like Storage, a Driver is owned exclusively
// by the dispatcher and needs no internal locking against concurrent
// callers.
type Driver interface {
	// Unspent returns every known UTXO for contractId, partitioned by
	// AssetID, with model.BitcoinAssetID holding every bitcoin-bearing
	// UTXO regardless of any colored-asset allocation on it.
	Unspent(contractID model.ContractID) (map[model.AssetID][]model.Utxo, error)

	// UnspentBitcoinOnly returns only the UTXOs carrying no colored-asset
	// allocation, used as the coin-selection pool for bitcoin-only
	// transfers.
	UnspentBitcoinOnly(contractID model.ContractID) ([]model.Utxo, error)

	// LastUsedDerivation returns the highest derivation index bound by
	// UseAddressDerivation or carried by a bitcoin-bucket UTXO passed to
	// Update for contractID, or 0 if none yet.
	LastUsedDerivation(contractID model.ContractID) (model.UnhardenedIndex, error)

	// NextUnusedDerivation returns the lowest derivation index not yet
	// bound to an address for contractID.
	NextUnusedDerivation(contractID model.ContractID) (model.UnhardenedIndex, error)

	// UseAddressDerivation binds address to index for contractID,
	// advancing the contract's used-address set. Bindings are injective:
	// binding an index already bound to a different address is an error;
	// binding it again to the same address succeeds.
	UseAddressDerivation(contractID model.ContractID, index model.UnhardenedIndex, address string) error

	// UnuseAddress marks address as forgotten, making its derivation
	// index eligible for NextUnusedDerivation again.
	UnuseAddress(contractID model.ContractID, address string) error

	// UsedAddresses returns every address currently bound for
	// contractID.
	UsedAddresses(contractID model.ContractID) ([]model.AddressDerivation, error)

	// Update records the outcome of a Chain Sync pass: the new known
	// chain height (nil if unchanged) and the freshly partitioned
	// per-asset UTXO sets. It replaces the contract's entire UTXO set
	// with assets. The per-(height, txpos) transaction ids in mineInfo
	// are accepted but LRUDriver does not retain them, and no Driver
	// method returns them.
	Update(contractID model.ContractID, mineInfo map[MineInfo]chainhash.Hash, knownHeight *uint32, assets map[model.AssetID][]model.Utxo) error

	// KnownHeight returns the last height Update recorded.
	KnownHeight(contractID model.ContractID) (uint32, error)

	// Close releases any resources held by the driver.
	Close() error
}

// ErrAddressAlreadyBound is returned by UseAddressDerivation when index is
// already bound to a different address, violating injectivity.
var ErrAddressAlreadyBound = fmt.Errorf("cache: derivation index already bound to an address")

// ErrUnknownContract reports that a contractId has no cache state yet.
// LRUDriver never returns it: it creates empty state for an unknown
// contract instead.
var ErrUnknownContract = fmt.Errorf("cache: no cached state for contract")
