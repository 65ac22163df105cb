package cache

import (
	"sync"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	lru "github.com/hashicorp/golang-lru"
	"github.com/mycitadel/citadel-runtime/model"
)

// lruCacheSize bounds the number of contracts whose UTXO sets are held hot
// in memory; state for evicted contracts is simply recomputed on the next
// Chain Sync, since Cache is a lookup accelerator, not the system of
// record (Storage is).
const lruCacheSize = 256

type contractState struct {
	mu sync.Mutex

	unspent       map[model.AssetID][]model.Utxo
	lastUsedIndex model.UnhardenedIndex
	usedAddresses map[string]model.UnhardenedIndex // address -> index
	boundIndices  map[model.UnhardenedIndex]string // index -> address
	knownHeight   uint32
}

func newContractState() *contractState {
	return &contractState{
		unspent:       make(map[model.AssetID][]model.Utxo),
		usedAddresses: make(map[string]model.UnhardenedIndex),
		boundIndices:  make(map[model.UnhardenedIndex]string),
	}
}

// LRUDriver is the default Cache Driver implementation: an
// github.com/hashicorp/golang-lru-backed hot-path index of UTXOs and
// derivation bindings, keyed by contract.
type LRUDriver struct {
	mu     sync.Mutex
	states *lru.Cache
}

// NewLRUDriver constructs an empty LRUDriver.
func NewLRUDriver() (*LRUDriver, error) {
	c, err := lru.New(lruCacheSize)
	if err != nil {
		return nil, err
	}
	return &LRUDriver{states: c}, nil
}

func (d *LRUDriver) state(contractID model.ContractID) *contractState {
	d.mu.Lock()
	defer d.mu.Unlock()

	if v, ok := d.states.Get(contractID); ok {
		return v.(*contractState)
	}
	s := newContractState()
	d.states.Add(contractID, s)
	return s
}

func (d *LRUDriver) Unspent(contractID model.ContractID) (map[model.AssetID][]model.Utxo, error) {
	s := d.state(contractID)
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[model.AssetID][]model.Utxo, len(s.unspent))
	for asset, utxos := range s.unspent {
		cp := make([]model.Utxo, len(utxos))
		copy(cp, utxos)
		out[asset] = cp
	}
	return out, nil
}

func (d *LRUDriver) UnspentBitcoinOnly(contractID model.ContractID) ([]model.Utxo, error) {
	unspent, err := d.Unspent(contractID)
	if err != nil {
		return nil, err
	}
	bitcoin := unspent[model.BitcoinAssetID]
	delete(unspent, model.BitcoinAssetID)
	colored := make(map[wire.OutPoint]bool)
	for _, utxos := range unspent {
		for _, u := range utxos {
			colored[u.OutPoint()] = true
		}
	}
	var out []model.Utxo
	for _, u := range bitcoin {
		if !colored[u.OutPoint()] {
			out = append(out, u)
		}
	}
	return out, nil
}

func (d *LRUDriver) LastUsedDerivation(contractID model.ContractID) (model.UnhardenedIndex, error) {
	s := d.state(contractID)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUsedIndex, nil
}

func (d *LRUDriver) NextUnusedDerivation(contractID model.ContractID) (model.UnhardenedIndex, error) {
	s := d.state(contractID)
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := model.UnhardenedIndex(0)
	for {
		if _, bound := s.boundIndices[idx]; !bound {
			return idx, nil
		}
		next, ok := idx.CheckedIncrement()
		if !ok {
			return idx, nil
		}
		idx = next
	}
}

func (d *LRUDriver) UseAddressDerivation(contractID model.ContractID, index model.UnhardenedIndex, address string) error {
	s := d.state(contractID)
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, bound := s.boundIndices[index]; bound && existing != address {
		return ErrAddressAlreadyBound
	}
	s.boundIndices[index] = address
	s.usedAddresses[address] = index
	if index > s.lastUsedIndex {
		s.lastUsedIndex = index
	}
	return nil
}

func (d *LRUDriver) UnuseAddress(contractID model.ContractID, address string) error {
	s := d.state(contractID)
	s.mu.Lock()
	defer s.mu.Unlock()

	index, ok := s.usedAddresses[address]
	if !ok {
		return nil
	}
	delete(s.usedAddresses, address)
	delete(s.boundIndices, index)
	return nil
}

func (d *LRUDriver) UsedAddresses(contractID model.ContractID) ([]model.AddressDerivation, error) {
	s := d.state(contractID)
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.AddressDerivation, 0, len(s.usedAddresses))
	for addr, idx := range s.usedAddresses {
		out = append(out, model.AddressDerivation{Address: addr, Path: []uint32{uint32(idx)}})
	}
	return out, nil
}

func (d *LRUDriver) Update(contractID model.ContractID, mineInfo map[MineInfo]chainhash.Hash,
	knownHeight *uint32, assets map[model.AssetID][]model.Utxo) error {

	s := d.state(contractID)
	s.mu.Lock()
	defer s.mu.Unlock()

	s.unspent = assets
	if knownHeight != nil {
		s.knownHeight = *knownHeight
	}

	for _, utxo := range assets[model.BitcoinAssetID] {
		if utxo.DerivationIndex > s.lastUsedIndex {
			s.lastUsedIndex = utxo.DerivationIndex
		}
	}
	return nil
}

func (d *LRUDriver) KnownHeight(contractID model.ContractID) (uint32, error) {
	s := d.state(contractID)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.knownHeight, nil
}

func (d *LRUDriver) Close() error { return nil }
