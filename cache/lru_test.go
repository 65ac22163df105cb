package cache

import (
	"testing"

	"github.com/mycitadel/citadel-runtime/model"
	"github.com/stretchr/testify/require"
)

func testContractID(b byte) model.ContractID {
	var id model.ContractID
	id[0] = b
	return id
}

func TestNextUnusedDerivationAdvances(t *testing.T) {
	d, err := NewLRUDriver()
	require.NoError(t, err)
	id := testContractID(1)

	idx, err := d.NextUnusedDerivation(id)
	require.NoError(t, err)
	require.Equal(t, model.UnhardenedIndex(0), idx)

	require.NoError(t, d.UseAddressDerivation(id, 0, "addr0"))
	idx, err = d.NextUnusedDerivation(id)
	require.NoError(t, err)
	require.Equal(t, model.UnhardenedIndex(1), idx)
}

func TestAddressBindingInjective(t *testing.T) {
	d, err := NewLRUDriver()
	require.NoError(t, err)
	id := testContractID(2)

	require.NoError(t, d.UseAddressDerivation(id, 5, "addrA"))
	err = d.UseAddressDerivation(id, 5, "addrB")
	require.ErrorIs(t, err, ErrAddressAlreadyBound)
}

func TestUnuseAddressFreesIndex(t *testing.T) {
	d, err := NewLRUDriver()
	require.NoError(t, err)
	id := testContractID(3)

	require.NoError(t, d.UseAddressDerivation(id, 0, "addr0"))
	require.NoError(t, d.UnuseAddress(id, "addr0"))

	idx, err := d.NextUnusedDerivation(id)
	require.NoError(t, err)
	require.Equal(t, model.UnhardenedIndex(0), idx)
}

func TestUpdateReplacesUnspentSet(t *testing.T) {
	d, err := NewLRUDriver()
	require.NoError(t, err)
	id := testContractID(4)

	height := uint32(700_000)
	utxo := model.Utxo{Value: 1000, DerivationIndex: 7}
	assets := map[model.AssetID][]model.Utxo{model.BitcoinAssetID: {utxo}}

	require.NoError(t, d.Update(id, nil, &height, assets))

	unspent, err := d.UnspentBitcoinOnly(id)
	require.NoError(t, err)
	require.Len(t, unspent, 1)

	known, err := d.KnownHeight(id)
	require.NoError(t, err)
	require.Equal(t, height, known)

	last, err := d.LastUsedDerivation(id)
	require.NoError(t, err)
	require.Equal(t, model.UnhardenedIndex(7), last)
}
