package storage

import (
	"testing"

	"github.com/mycitadel/citadel-runtime/model"
	"github.com/stretchr/testify/require"
)

func newTestDriver(t *testing.T) Driver {
	t.Helper()
	d, err := Open(dbDriverName, t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	return d
}

func testContract(t *testing.T) *model.Contract {
	t.Helper()
	policy := Policy(t)
	c, err := model.NewContract(policy, "wallet-A", "bitcoin")
	require.NoError(t, err)
	return c
}

// Policy builds a minimal single-signature Current policy for storage
// tests, without pulling in the model package's own test helpers.
func Policy(t *testing.T) model.Policy {
	t.Helper()
	return model.Policy{
		Type: model.PolicyCurrent,
		Descriptor: model.ContractDescriptor{
			Kind: model.DescriptorBare,
		},
	}
}

func TestAddAndFetchContract(t *testing.T) {
	d := newTestDriver(t)
	c := testContract(t)

	require.NoError(t, d.AddContract(c))
	require.ErrorIs(t, d.AddContract(c), ErrContractExists)

	fetched, err := d.Contract(c.ID)
	require.NoError(t, err)
	require.Equal(t, c.Name, fetched.Name)
}

func TestRenameAndDeleteContract(t *testing.T) {
	d := newTestDriver(t)
	c := testContract(t)
	require.NoError(t, d.AddContract(c))

	require.NoError(t, d.RenameContract(c.ID, "wallet-B"))
	fetched, err := d.Contract(c.ID)
	require.NoError(t, err)
	require.Equal(t, "wallet-B", fetched.Name)

	require.NoError(t, d.DeleteContract(c.ID))
	_, err = d.Contract(c.ID)
	require.ErrorIs(t, err, ErrContractNotFound)

	list, err := d.ListContracts()
	require.NoError(t, err)
	require.Empty(t, list)
}

func TestOperationsAppendOnly(t *testing.T) {
	d := newTestDriver(t)
	c := testContract(t)
	require.NoError(t, d.AddContract(c))

	op1 := model.Operation{Direction: model.DirectionOutgoing, Outgoing: &model.OutgoingInfo{}}
	op2 := model.Operation{Direction: model.DirectionOutgoing, Outgoing: &model.OutgoingInfo{Published: true}}

	require.NoError(t, d.AddOperation(c.ID, op1))
	require.NoError(t, d.AddOperation(c.ID, op2))

	ops, err := d.ListOperations(c.ID)
	require.NoError(t, err)
	require.Len(t, ops, 2)
	require.False(t, ops[0].Outgoing.Published)
	require.True(t, ops[1].Outgoing.Published)
}

func TestInvoicesPersist(t *testing.T) {
	d := newTestDriver(t)
	c := testContract(t)
	require.NoError(t, d.AddContract(c))

	inv := model.Invoice{Amount: 1000, Description: "test"}
	require.NoError(t, d.AddInvoice(c.ID, inv))

	invoices, err := d.ListInvoices(c.ID)
	require.NoError(t, err)
	require.Len(t, invoices, 1)
	require.Equal(t, uint64(1000), invoices[0].Amount)
}

func TestIdentitiesAndSignersPersist(t *testing.T) {
	d := newTestDriver(t)

	require.NoError(t, d.AddIdentity(model.Identity{Name: "alice", XPub: "xpub-alice"}))
	require.NoError(t, d.AddIdentity(model.Identity{Name: "bob", XPub: "xpub-bob"}))
	require.NoError(t, d.AddSigner(model.Signer{Name: "hw-1", XPub: "xpub-hw"}))

	identities, err := d.ListIdentities()
	require.NoError(t, err)
	require.Len(t, identities, 2)
	require.Equal(t, "alice", identities[0].Name)
	require.Equal(t, "bob", identities[1].Name)

	signers, err := d.ListSigners()
	require.NoError(t, err)
	require.Len(t, signers, 1)
	require.Equal(t, "xpub-hw", signers[0].XPub)
}
