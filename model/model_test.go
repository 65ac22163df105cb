package model

import (
	"crypto/sha256"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/stretchr/testify/require"
)

func testRootKey(t *testing.T) *hdkeychain.ExtendedKey {
	t.Helper()
	seed := make([]byte, 32)
	for i := range seed {
		seed[i] = byte(i)
	}
	master, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	require.NoError(t, err)
	neutered, err := master.Neuter()
	require.NoError(t, err)
	return neutered
}

func singleSigPolicy(t *testing.T) Policy {
	t.Helper()
	return Policy{
		Type: PolicyCurrent,
		Descriptor: ContractDescriptor{
			Kind: DescriptorSingleSig,
			Chains: []PubkeyChain{{
				Root:     testRootKey(t),
				Terminal: TerminalStep{Wildcard: true},
			}},
		},
	}
}

// TestContractIDTaggedHashScheme pins the commitment scheme itself: the
// tagged hash of a payload must equal SHA-256 over
// SHA-256(tag) || SHA-256(tag) || payload, per the BIP-340-style
// construction, so the ContractId derivation can never silently drift
// from the published scheme.
func TestContractIDTaggedHashScheme(t *testing.T) {
	tagHash := sha256.Sum256([]byte(ContractIDTag))

	for _, payload := range [][]byte{nil, []byte("payload")} {
		h := sha256.New()
		h.Write(tagHash[:])
		h.Write(tagHash[:])
		h.Write(payload)
		expected := h.Sum(nil)

		got := chainhash.TaggedHash([]byte(ContractIDTag), payload)
		require.Equal(t, expected, got[:])
	}
}

// TestContractIDDeterministic covers testable property 1: the same policy
// always yields the same ContractId.
func TestContractIDDeterministic(t *testing.T) {
	policy := singleSigPolicy(t)
	id1, err := policy.ID()
	require.NoError(t, err)
	id2, err := policy.ID()
	require.NoError(t, err)
	require.Equal(t, id1, id2)
	require.False(t, id1.IsZero())
}

// TestContractIDBech32RoundTrip covers the ContractId display encoding.
func TestContractIDBech32RoundTrip(t *testing.T) {
	policy := singleSigPolicy(t)
	id, err := policy.ID()
	require.NoError(t, err)

	s := id.String()
	parsed, err := ParseContractID(s)
	require.NoError(t, err)
	require.Equal(t, id, parsed)
}

// TestPolicyStrictEncodeRoundTrip covers testable property 6 for Policy.
func TestPolicyStrictEncodeRoundTrip(t *testing.T) {
	policy := singleSigPolicy(t)

	data, err := StrictSerialize(policy)
	require.NoError(t, err)

	var decoded Policy
	err = StrictDeserialize(&decoded, data)
	require.NoError(t, err)

	require.Equal(t, policy.Type, decoded.Type)
	require.Equal(t, policy.Descriptor.Kind, decoded.Descriptor.Kind)
	require.Len(t, decoded.Descriptor.Chains, 1)
	require.Equal(t, policy.Descriptor.Chains[0].Terminal, decoded.Descriptor.Chains[0].Terminal)
}

func TestPolicySingleSigIsNotScripted(t *testing.T) {
	policy := singleSigPolicy(t)
	require.False(t, policy.IsScripted())
	require.False(t, policy.HasWitness())
}

func TestPolicyWpkhHasWitness(t *testing.T) {
	policy := Policy{
		Type: PolicyCurrent,
		Descriptor: ContractDescriptor{
			Kind:   DescriptorWpkh,
			Chains: []PubkeyChain{{Root: testRootKey(t), Terminal: TerminalStep{Wildcard: true}}},
		},
	}
	require.True(t, policy.IsScripted())
	require.True(t, policy.HasWitness())
}

func TestPolicyInstantRejectsDerivation(t *testing.T) {
	policy := Policy{Type: PolicyInstant, Channel: &ChannelDescriptor{}}
	_, err := policy.DeriveScripts(0, 1)
	require.ErrorIs(t, err, ErrInstantPolicyNotSupported)
}

func TestDeriveScriptsDistinctPerIndex(t *testing.T) {
	policy := singleSigPolicy(t)
	scripts, err := policy.DeriveScripts(0, 3)
	require.NoError(t, err)
	require.Len(t, scripts, 3)
	require.NotEqual(t, scripts[0], scripts[1])
	require.NotEqual(t, scripts[1], scripts[2])
}

func TestUnhardenedIndexSaturates(t *testing.T) {
	idx := MaxUnhardenedIndex
	require.Equal(t, MaxUnhardenedIndex, idx.CheckedAdd(10))
	_, ok := idx.CheckedIncrement()
	require.False(t, ok)
}

func TestUtxoStrictEncodeRoundTrip(t *testing.T) {
	u := Utxo{
		Value:           100_000,
		Height:          700_000,
		TxPos:           2,
		Vout:            1,
		DerivationIndex: 3,
		Address:         "bc1qexample",
	}
	data, err := StrictSerialize(u)
	require.NoError(t, err)

	var decoded Utxo
	require.NoError(t, StrictDeserialize(&decoded, data))
	require.Equal(t, u, decoded)
}

func TestInvoiceStrictEncodeRoundTrip(t *testing.T) {
	inv := Invoice{
		Amount:      50_000,
		Timestamp:   time.Unix(1_700_000_000, 0).UTC(),
		Expiry:      time.Hour,
		Description: "coffee beans",
	}
	data, err := StrictSerialize(inv)
	require.NoError(t, err)

	var decoded Invoice
	require.NoError(t, StrictDeserialize(&decoded, data))
	require.Equal(t, inv.Amount, decoded.Amount)
	require.Equal(t, inv.Timestamp, decoded.Timestamp)
	require.Equal(t, inv.Description, decoded.Description)
}
