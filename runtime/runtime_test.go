package runtime

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"testing"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"

	"github.com/mycitadel/citadel-runtime/assetclient"
	"github.com/mycitadel/citadel-runtime/cache"
	"github.com/mycitadel/citadel-runtime/electrum"
	"github.com/mycitadel/citadel-runtime/model"
	"github.com/mycitadel/citadel-runtime/storage"
)

// --- in-memory fakes for the four collaborator interfaces ---

type fakeStorage struct {
	contracts  map[model.ContractID]*model.Contract
	operations map[model.ContractID][]model.Operation
	reveals    map[model.ContractID][]model.OutpointReveal
	identities []model.Identity
	signers    []model.Signer
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{
		contracts:  make(map[model.ContractID]*model.Contract),
		operations: make(map[model.ContractID][]model.Operation),
		reveals:    make(map[model.ContractID][]model.OutpointReveal),
	}
}

func (s *fakeStorage) AddContract(c *model.Contract) error {
	if _, ok := s.contracts[c.ID]; ok {
		return storage.ErrContractExists
	}
	s.contracts[c.ID] = c
	return nil
}

func (s *fakeStorage) Contract(id model.ContractID) (*model.Contract, error) {
	c, ok := s.contracts[id]
	if !ok {
		return nil, storage.ErrContractNotFound
	}
	return c, nil
}

func (s *fakeStorage) ListContracts() ([]*model.Contract, error) {
	var out []*model.Contract
	for _, c := range s.contracts {
		out = append(out, c)
	}
	return out, nil
}

func (s *fakeStorage) RenameContract(id model.ContractID, name string) error {
	c, err := s.Contract(id)
	if err != nil {
		return err
	}
	c.Name = name
	return nil
}

func (s *fakeStorage) DeleteContract(id model.ContractID) error {
	if _, ok := s.contracts[id]; !ok {
		return storage.ErrContractNotFound
	}
	delete(s.contracts, id)
	delete(s.operations, id)
	return nil
}

func (s *fakeStorage) AddTweak(id model.ContractID, tweak model.TweakedOutput) error {
	c, err := s.Contract(id)
	if err != nil {
		return err
	}
	c.AddTweak(tweak)
	return nil
}

func (s *fakeStorage) AddBlindingReveal(id model.ContractID, reveal model.OutpointReveal) error {
	s.reveals[id] = append(s.reveals[id], reveal)
	return nil
}

func (s *fakeStorage) AddInvoice(id model.ContractID, invoice model.Invoice) error {
	c, err := s.Contract(id)
	if err != nil {
		return err
	}
	c.Data.Invoices = append(c.Data.Invoices, invoice)
	return nil
}

func (s *fakeStorage) ListInvoices(id model.ContractID) ([]model.Invoice, error) {
	c, err := s.Contract(id)
	if err != nil {
		return nil, err
	}
	return c.Data.Invoices, nil
}

func (s *fakeStorage) AddOperation(id model.ContractID, op model.Operation) error {
	s.operations[id] = append(s.operations[id], op)
	return nil
}

func (s *fakeStorage) ListOperations(id model.ContractID) ([]model.Operation, error) {
	return s.operations[id], nil
}

func (s *fakeStorage) AddIdentity(identity model.Identity) error {
	s.identities = append(s.identities, identity)
	return nil
}

func (s *fakeStorage) ListIdentities() ([]model.Identity, error) { return s.identities, nil }

func (s *fakeStorage) AddSigner(signer model.Signer) error {
	s.signers = append(s.signers, signer)
	return nil
}

func (s *fakeStorage) ListSigners() ([]model.Signer, error) { return s.signers, nil }

func (s *fakeStorage) Close() error { return nil }

type fakeCache struct {
	unspent     map[model.ContractID]map[model.AssetID][]model.Utxo
	bitcoinOnly map[model.ContractID][]model.Utxo
	lastUsed    map[model.ContractID]model.UnhardenedIndex
	nextUnused  map[model.ContractID]model.UnhardenedIndex
	bound       map[model.ContractID]map[model.UnhardenedIndex]string
	knownHeight uint32
	updates     int
}

func newFakeCache() *fakeCache {
	return &fakeCache{
		unspent:     make(map[model.ContractID]map[model.AssetID][]model.Utxo),
		bitcoinOnly: make(map[model.ContractID][]model.Utxo),
		lastUsed:    make(map[model.ContractID]model.UnhardenedIndex),
		nextUnused:  make(map[model.ContractID]model.UnhardenedIndex),
		bound:       make(map[model.ContractID]map[model.UnhardenedIndex]string),
	}
}

func (c *fakeCache) Unspent(id model.ContractID) (map[model.AssetID][]model.Utxo, error) {
	return c.unspent[id], nil
}

func (c *fakeCache) UnspentBitcoinOnly(id model.ContractID) ([]model.Utxo, error) {
	return c.bitcoinOnly[id], nil
}

func (c *fakeCache) LastUsedDerivation(id model.ContractID) (model.UnhardenedIndex, error) {
	return c.lastUsed[id], nil
}

func (c *fakeCache) NextUnusedDerivation(id model.ContractID) (model.UnhardenedIndex, error) {
	return c.nextUnused[id], nil
}

func (c *fakeCache) UseAddressDerivation(id model.ContractID, index model.UnhardenedIndex, address string) error {
	if c.bound[id] == nil {
		c.bound[id] = make(map[model.UnhardenedIndex]string)
	}
	if _, ok := c.bound[id][index]; ok {
		return cache.ErrAddressAlreadyBound
	}
	c.bound[id][index] = address
	if next := c.nextUnused[id]; index >= next {
		c.nextUnused[id] = index + 1
	}
	return nil
}

func (c *fakeCache) UnuseAddress(id model.ContractID, address string) error {
	for index, bound := range c.bound[id] {
		if bound == address {
			delete(c.bound[id], index)
		}
	}
	return nil
}

func (c *fakeCache) UsedAddresses(id model.ContractID) ([]model.AddressDerivation, error) {
	var out []model.AddressDerivation
	for index, address := range c.bound[id] {
		out = append(out, model.AddressDerivation{
			Address: address,
			Path:    []uint32{uint32(index)},
		})
	}
	return out, nil
}

func (c *fakeCache) Update(id model.ContractID, mineInfo map[cache.MineInfo]chainhash.Hash, knownHeight *uint32, assets map[model.AssetID][]model.Utxo) error {
	c.unspent[id] = assets
	if knownHeight != nil {
		c.knownHeight = *knownHeight
	}
	c.updates++
	return nil
}

func (c *fakeCache) KnownHeight(id model.ContractID) (uint32, error) {
	return c.knownHeight, nil
}

func (c *fakeCache) Close() error { return nil }

type fakeIndexer struct {
	unspents   map[string][]electrum.ScriptUnspent // keyed by scripthash hex
	rawTxs     map[chainhash.Hash][]byte
	tipHeight  uint32
	batchCalls int
	broadcasts [][]byte
	merkleErr  error // when set, every TransactionGetMerkle call fails
}

func newFakeIndexer() *fakeIndexer {
	return &fakeIndexer{
		unspents: make(map[string][]electrum.ScriptUnspent),
		rawTxs:   make(map[chainhash.Hash][]byte),
	}
}

func (f *fakeIndexer) BatchScriptListUnspent(_ context.Context, scripts [][]byte) (map[string][]electrum.ScriptUnspent, error) {
	f.batchCalls++
	out := make(map[string][]electrum.ScriptUnspent)
	for _, script := range scripts {
		h := electrum.ScriptHash(script)
		key := hex.EncodeToString(h[:])
		if found, ok := f.unspents[key]; ok {
			out[key] = found
		}
	}
	return out, nil
}

func (f *fakeIndexer) TransactionGetMerkle(_ context.Context, txid chainhash.Hash, height uint32) (uint32, error) {
	if f.merkleErr != nil {
		return 0, f.merkleErr
	}
	return 1, nil
}

func (f *fakeIndexer) TransactionGet(_ context.Context, txid chainhash.Hash) ([]byte, error) {
	raw, ok := f.rawTxs[txid]
	if !ok {
		return nil, errNotFound
	}
	return raw, nil
}

func (f *fakeIndexer) TransactionBroadcast(_ context.Context, rawTx []byte) (chainhash.Hash, error) {
	f.broadcasts = append(f.broadcasts, rawTx)
	tx := wire.NewMsgTx(wire.TxVersion)
	if err := tx.Deserialize(bytes.NewReader(rawTx)); err != nil {
		return chainhash.Hash{}, err
	}
	return tx.TxHash(), nil
}

func (f *fakeIndexer) BlockHeadersSubscribe(_ context.Context) (uint32, error) {
	return f.tipHeight, nil
}

func (f *fakeIndexer) BlockHeadersPop(_ context.Context) ([]electrum.BlockHeader, error) {
	return nil, nil
}

func (f *fakeIndexer) Close() error { return nil }

var errNotFound = fmt.Errorf("fake indexer: transaction not found")

type fakeAssetClient struct {
	amounts       map[wire.OutPoint]map[model.AssetID]uint64
	transferReply func(req assetclient.TransferRequest) (assetclient.TransferReply, error)
	enclosed      [][]byte
	accepted      []assetclient.AcceptRequest
}

func newFakeAssetClient() *fakeAssetClient {
	return &fakeAssetClient{amounts: make(map[wire.OutPoint]map[model.AssetID]uint64)}
}

func (f *fakeAssetClient) OutpointAssets(_ context.Context, req assetclient.OutpointAssetsRequest) (assetclient.OutpointAssetsReply, error) {
	return assetclient.OutpointAssetsReply{Amounts: f.amounts[req.Outpoint]}, nil
}

func (f *fakeAssetClient) Transfer(_ context.Context, req assetclient.TransferRequest) (assetclient.TransferReply, error) {
	return f.transferReply(req)
}

func (f *fakeAssetClient) Enclose(_ context.Context, req assetclient.EncloseRequest) error {
	f.enclosed = append(f.enclosed, req.Disclosure)
	return nil
}

func (f *fakeAssetClient) Validate(_ context.Context, req assetclient.ValidateRequest) (assetclient.ValidateReply, error) {
	return assetclient.ValidateReply{Status: assetclient.ValidationValid}, nil
}

func (f *fakeAssetClient) Accept(_ context.Context, req assetclient.AcceptRequest) error {
	f.accepted = append(f.accepted, req)
	return nil
}

func (f *fakeAssetClient) ImportAsset(_ context.Context, req assetclient.ImportAssetRequest) (assetclient.ImportAssetReply, error) {
	return assetclient.ImportAssetReply{}, nil
}

func (f *fakeAssetClient) ListAssets(_ context.Context) (assetclient.ListAssetsReply, error) {
	return assetclient.ListAssetsReply{}, nil
}

func (f *fakeAssetClient) Close() error { return nil }

// --- shared test fixtures ---

type testHarness struct {
	rt       *Runtime
	storage  *fakeStorage
	cache    *fakeCache
	indexer  *fakeIndexer
	assets   *fakeAssetClient
	contract *model.Contract
}

func testRootKey(t *testing.T) *hdkeychain.ExtendedKey {
	t.Helper()
	seed := make([]byte, 32)
	for i := range seed {
		seed[i] = byte(i + 1)
	}
	master, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	require.NoError(t, err)
	neutered, err := master.Neuter()
	require.NoError(t, err)
	return neutered
}

func newTestHarness(t *testing.T) *testHarness {
	t.Helper()

	policy := model.Policy{
		Type: model.PolicyCurrent,
		Descriptor: model.ContractDescriptor{
			Kind: model.DescriptorSingleSig,
			Chains: []model.PubkeyChain{{
				Root:     testRootKey(t),
				Terminal: model.TerminalStep{Wildcard: true},
			}},
		},
	}
	contract, err := model.NewContract(policy, "wallet-A", "bitcoin")
	require.NoError(t, err)

	st := newFakeStorage()
	require.NoError(t, st.AddContract(contract))

	ch := newFakeCache()
	idx := newFakeIndexer()
	ac := newFakeAssetClient()

	rt, err := New(Config{
		Storage:     st,
		Cache:       ch,
		Indexer:     idx,
		AssetClient: ac,
		ChainTag:    "bitcoin",
	})
	require.NoError(t, err)

	return &testHarness{rt: rt, storage: st, cache: ch, indexer: idx, assets: ac, contract: contract}
}

// fundPrevTx registers a previous transaction paying value to script at
// vout 0, returning the resulting Utxo the cache can serve.
func (h *testHarness) fundPrevTx(t *testing.T, value uint64, index model.UnhardenedIndex) model.Utxo {
	t.Helper()
	scripts, err := h.contract.Policy.DeriveScripts(index, index+1)
	require.NoError(t, err)

	prevTx := wire.NewMsgTx(wire.TxVersion)
	prevTx.AddTxOut(&wire.TxOut{Value: int64(value), PkScript: scripts[index]})
	var raw bytes.Buffer
	require.NoError(t, prevTx.Serialize(&raw))

	txid := prevTx.TxHash()
	h.indexer.rawTxs[txid] = raw.Bytes()

	return model.Utxo{
		Value:           value,
		Height:          700_000,
		Txid:            txid,
		Vout:            0,
		DerivationIndex: index,
	}
}
