package model

import (
	"fmt"
	"io"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
)

// MaxUnhardenedIndex is the largest legal BIP-32 unhardened child index.
const MaxUnhardenedIndex UnhardenedIndex = 1<<31 - 1

// UnhardenedIndex is a BIP-32 child index restricted to [0, 2^31-1].
type UnhardenedIndex uint32

// Largest returns the maximum representable UnhardenedIndex, used by Chain
// Sync as a loop sentinel.
func (UnhardenedIndex) Largest() UnhardenedIndex { return MaxUnhardenedIndex }

// CheckedAdd adds delta, saturating at Largest() rather than overflowing
// into the hardened-index range.
func (i UnhardenedIndex) CheckedAdd(delta uint32) UnhardenedIndex {
	sum := uint64(i) + uint64(delta)
	if sum > uint64(MaxUnhardenedIndex) {
		return MaxUnhardenedIndex
	}
	return UnhardenedIndex(sum)
}

// CheckedIncrement returns i+1 and true, or (i, false) if i is already
// Largest().
func (i UnhardenedIndex) CheckedIncrement() (UnhardenedIndex, bool) {
	if i == MaxUnhardenedIndex {
		return i, false
	}
	return i + 1, true
}

// TerminalStep is the final path element of a PubkeyChain: either a fixed
// index or a wildcard substituted at derivation time.
type TerminalStep struct {
	Wildcard bool
	Index    uint32
}

// PubkeyChain pairs an extended key with a terminal derivation step,
// modeling the Rust original's "extended key plus wildcard terminal path".
type PubkeyChain struct {
	Root     *hdkeychain.ExtendedKey
	Terminal TerminalStep
}

func (pc PubkeyChain) childIndex(at UnhardenedIndex) uint32 {
	if pc.Terminal.Wildcard {
		return uint32(at)
	}
	return pc.Terminal.Index
}

// DerivePublicKey substitutes the wildcard terminal step (if any) with at
// and returns the resulting child public key.
func (pc PubkeyChain) DerivePublicKey(at UnhardenedIndex) (*btcec.PublicKey, error) {
	child, err := pc.Root.Derive(pc.childIndex(at))
	if err != nil {
		return nil, fmt.Errorf("derive pubkey chain child: %w", err)
	}
	return child.ECPubKey()
}

// KeySource returns the parent fingerprint and derivation path segment used
// to populate a PSBT's bip32_derivation field for this chain at index at.
func (pc PubkeyChain) KeySource(at UnhardenedIndex) (fingerprint [4]byte, path []uint32) {
	fp := pc.Root.ParentFingerprint()
	var fb [4]byte
	fb[0] = byte(fp >> 24)
	fb[1] = byte(fp >> 16)
	fb[2] = byte(fp >> 8)
	fb[3] = byte(fp)
	return fb, []uint32{pc.childIndex(at)}
}

// DescriptorKind enumerates the supported script descriptor shapes. It is a
// closed set: every switch over DescriptorKind in this module is exhaustive
// and panics on an unrecognized value instead of silently defaulting, so
// adding a variant is a compile-time obligation everywhere it matters.
type DescriptorKind int

const (
	DescriptorSingleSig DescriptorKind = iota
	DescriptorMultisig
	DescriptorBare
	DescriptorPkh
	DescriptorSh
	DescriptorShSortedMulti
	DescriptorWpkh
	DescriptorWsh
	DescriptorWshSortedMulti
	DescriptorShWpkh
	DescriptorShWsh
	DescriptorShWshSortedMulti
)

// ContractDescriptor is the generic, pubkey-chain-parameterized descriptor
// that both Current and Saving policies carry.
type ContractDescriptor struct {
	Kind      DescriptorKind
	Chains    []PubkeyChain
	Threshold int // k, meaningful only for the *SortedMulti/Multisig kinds
}

// IsScripted reports whether Kind is anything other than SingleSig. Pkh,
// Wpkh and Bare count as scripted, although ExplicitScripts yields no
// scripts for them.
func (d ContractDescriptor) IsScripted() bool {
	return d.Kind != DescriptorSingleSig
}

// HasWitness reports whether spending this descriptor produces a witness
// stack (segwit) as opposed to a legacy scriptSig.
func (d ContractDescriptor) HasWitness() bool {
	switch d.Kind {
	case DescriptorWpkh, DescriptorWsh, DescriptorShWsh, DescriptorShWpkh,
		DescriptorWshSortedMulti, DescriptorShWshSortedMulti:
		return true
	case DescriptorSingleSig, DescriptorMultisig, DescriptorBare, DescriptorPkh,
		DescriptorSh, DescriptorShSortedMulti:
		return false
	default:
		panic(fmt.Sprintf("model: unhandled descriptor kind %d in HasWitness", d.Kind))
	}
}

// pubkeysAt derives every chain's public key at index, in chain order.
func (d ContractDescriptor) pubkeysAt(index UnhardenedIndex) ([]*btcec.PublicKey, error) {
	keys := make([]*btcec.PublicKey, len(d.Chains))
	for i, chain := range d.Chains {
		pub, err := chain.DerivePublicKey(index)
		if err != nil {
			return nil, err
		}
		keys[i] = pub
	}
	return keys, nil
}

// Script derives the scriptPubKey for this descriptor at index, rewriting
// to the nested Sh form when legacy is true (Wpkh -> Sh(Wpkh),
// Wsh(...) -> Sh(Wsh(...))).
func (d ContractDescriptor) Script(index UnhardenedIndex, legacy bool) ([]byte, error) {
	keys, err := d.pubkeysAt(index)
	if err != nil {
		return nil, err
	}

	innerKind := d.Kind
	if legacy {
		switch d.Kind {
		case DescriptorWpkh:
			innerKind = DescriptorShWpkh
		case DescriptorWsh:
			innerKind = DescriptorShWsh
		case DescriptorWshSortedMulti:
			innerKind = DescriptorShWshSortedMulti
		}
	}
	inner := d
	inner.Kind = innerKind

	switch innerKind {
	case DescriptorSingleSig, DescriptorPkh:
		pkHash := btcutil.Hash160(keys[0].SerializeCompressed())
		return txscript.NewScriptBuilder().
			AddOp(txscript.OP_DUP).AddOp(txscript.OP_HASH160).
			AddData(pkHash).AddOp(txscript.OP_EQUALVERIFY).AddOp(txscript.OP_CHECKSIG).
			Script()
	case DescriptorWpkh:
		pkHash := btcutil.Hash160(keys[0].SerializeCompressed())
		return txscript.NewScriptBuilder().AddOp(txscript.OP_0).AddData(pkHash).Script()
	case DescriptorBare:
		return txscript.NewScriptBuilder().AddData(keys[0].SerializeCompressed()).
			AddOp(txscript.OP_CHECKSIG).Script()
	case DescriptorMultisig:
		return multisigScript(d.Threshold, keys)
	case DescriptorSh, DescriptorShSortedMulti, DescriptorShWpkh, DescriptorShWsh, DescriptorShWshSortedMulti:
		redeem, err := inner.redeemScript(index, keys)
		if err != nil {
			return nil, err
		}
		redeemHash := btcutil.Hash160(redeem)
		return txscript.NewScriptBuilder().AddOp(txscript.OP_HASH160).
			AddData(redeemHash).AddOp(txscript.OP_EQUAL).Script()
	case DescriptorWsh, DescriptorWshSortedMulti:
		witnessScript, err := multisigScript(d.Threshold, keys)
		if err != nil {
			return nil, err
		}
		h := chainhashSHA256(witnessScript)
		return txscript.NewScriptBuilder().AddOp(txscript.OP_0).AddData(h[:]).Script()
	default:
		panic(fmt.Sprintf("model: unhandled descriptor kind %d in Script", innerKind))
	}
}

// redeemScript builds the inner script embedded inside Sh-family and
// Wsh-family descriptors.
func (d ContractDescriptor) redeemScript(index UnhardenedIndex, keys []*btcec.PublicKey) ([]byte, error) {
	switch d.Kind {
	case DescriptorShWpkh:
		pkHash := btcutil.Hash160(keys[0].SerializeCompressed())
		return txscript.NewScriptBuilder().AddOp(txscript.OP_0).AddData(pkHash).Script()
	case DescriptorShWsh, DescriptorShWshSortedMulti:
		inner, err := multisigScript(d.Threshold, keys)
		if err != nil {
			return nil, err
		}
		h := chainhashSHA256(inner)
		return txscript.NewScriptBuilder().AddOp(txscript.OP_0).AddData(h[:]).Script()
	case DescriptorSh, DescriptorShSortedMulti:
		return multisigScript(d.Threshold, keys)
	default:
		return nil, fmt.Errorf("model: descriptor kind %d has no redeem script", d.Kind)
	}
}

// ExplicitScripts derives the redeem_script and/or witness_script a PSBT
// input needs when spending this descriptor at index, matching
// derive_descriptor's legacy-rewrite semantics. Plain pubkey-hash spends
// (SingleSig, Pkh, Wpkh, Bare) carry neither: their witness/scriptSig is a
// bare signature and pubkey, with nothing to embed ahead of time.
func (d ContractDescriptor) ExplicitScripts(index UnhardenedIndex, legacy bool) (redeemScript, witnessScript []byte, err error) {
	keys, err := d.pubkeysAt(index)
	if err != nil {
		return nil, nil, err
	}

	innerKind := d.Kind
	if legacy {
		switch d.Kind {
		case DescriptorWpkh:
			innerKind = DescriptorShWpkh
		case DescriptorWsh:
			innerKind = DescriptorShWsh
		case DescriptorWshSortedMulti:
			innerKind = DescriptorShWshSortedMulti
		}
	}
	inner := d
	inner.Kind = innerKind

	switch innerKind {
	case DescriptorSingleSig, DescriptorPkh, DescriptorWpkh, DescriptorBare:
		return nil, nil, nil
	case DescriptorSh, DescriptorShSortedMulti:
		redeem, err := d.redeemScript(index, keys)
		return redeem, nil, err
	case DescriptorWsh, DescriptorWshSortedMulti, DescriptorMultisig:
		witness, err := multisigScript(d.Threshold, keys)
		return nil, witness, err
	case DescriptorShWpkh:
		redeem, err := inner.redeemScript(index, keys)
		return redeem, nil, err
	case DescriptorShWsh, DescriptorShWshSortedMulti:
		redeem, err := inner.redeemScript(index, keys)
		if err != nil {
			return nil, nil, err
		}
		witness, err := multisigScript(d.Threshold, keys)
		return redeem, witness, err
	default:
		panic(fmt.Sprintf("model: unhandled descriptor kind %d in ExplicitScripts", innerKind))
	}
}

func multisigScript(threshold int, keys []*btcec.PublicKey) ([]byte, error) {
	builder := txscript.NewScriptBuilder().AddOp(int64ToOp(threshold))
	for _, key := range keys {
		builder.AddData(key.SerializeCompressed())
	}
	builder.AddOp(int64ToOp(len(keys))).AddOp(txscript.OP_CHECKMULTISIG)
	return builder.Script()
}

func int64ToOp(n int) byte {
	return txscript.OP_1 + byte(n-1)
}

// PolicyType names the storage category of a Policy variant.
type PolicyType int

const (
	PolicyCurrent PolicyType = iota
	PolicyInstant
	PolicySaving
)

// Policy is the tagged union of supported wallet spending policies. Exactly
// one of Descriptor (Current/Saving) or Channel (Instant) is set, selected
// by Type.
type Policy struct {
	Type       PolicyType
	Descriptor ContractDescriptor // valid when Type is PolicyCurrent or PolicySaving
	Channel    *ChannelDescriptor // valid when Type is PolicyInstant
}

// ChannelDescriptor stands in for the Instant policy's Lightning-style
// channel descriptor. Its on-chain derivation is intentionally
// unimplemented: callers must reject Instant policies before invoking
// Chain Sync or the Transfer Composer, per the Rust original's
// ChannelDescriptor::to_descriptor() being unimplemented!().
type ChannelDescriptor struct {
	ChannelID [32]byte
}

// PolicyType returns the variant discriminant.
func (p Policy) PolicyType() PolicyType { return p.Type }

// IsScripted reports whether the policy requires an explicit script (false
// only for a SingleSig Current policy).
func (p Policy) IsScripted() bool {
	if p.Type == PolicyInstant {
		return true
	}
	return p.Descriptor.IsScripted()
}

// HasWitness reports whether spends under this policy carry a witness.
func (p Policy) HasWitness() bool {
	if p.Type == PolicyInstant {
		return true
	}
	return p.Descriptor.HasWitness()
}

// ErrInstantPolicyNotSupported is returned whenever on-chain derivation is
// attempted against an Instant policy.
var ErrInstantPolicyNotSupported = fmt.Errorf("model: Instant policy has no on-chain derivation")

// DeriveScripts derives the script pubkey for every index in [from, to).
func (p Policy) DeriveScripts(from, to UnhardenedIndex) (map[UnhardenedIndex][]byte, error) {
	if p.Type == PolicyInstant {
		return nil, ErrInstantPolicyNotSupported
	}
	out := make(map[UnhardenedIndex][]byte)
	for i := from; i < to; i++ {
		script, err := p.Descriptor.Script(i, false)
		if err != nil {
			return nil, err
		}
		out[i] = script
	}
	return out, nil
}

// DeriveAddress derives the address for index under network, applying the
// legacy (Sh-nested) rewrite when requested, and returns the derivation
// path used ([index]).
func (p Policy) DeriveAddress(index UnhardenedIndex, network *chaincfg.Params, legacy bool) (btcutil.Address, []uint32, error) {
	if p.Type == PolicyInstant {
		return nil, nil, ErrInstantPolicyNotSupported
	}
	script, err := p.Descriptor.Script(index, legacy)
	if err != nil {
		return nil, nil, err
	}
	addr, err := addressFromScript(script, network)
	if err != nil {
		return nil, nil, err
	}
	return addr, []uint32{uint32(index)}, nil
}

// ExplicitScripts derives the redeem_script and/or witness_script this
// policy's descriptor needs attached to a PSBT input spending index,
// returning (nil, nil, nil) for plain pubkey-hash spends that need neither.
func (p Policy) ExplicitScripts(index UnhardenedIndex, legacy bool) (redeemScript, witnessScript []byte, err error) {
	if p.Type == PolicyInstant {
		return nil, nil, ErrInstantPolicyNotSupported
	}
	return p.Descriptor.ExplicitScripts(index, legacy)
}

// KeySource pairs a PSBT bip32_derivation's master key fingerprint with the
// derivation path segment used to reach a given child public key.
type KeySource struct {
	Fingerprint [4]byte
	Path        []uint32
}

// BIP32Derivations collects the per-chain key-source metadata needed to
// populate a PSBT input's bip32_derivation field at index, keyed by the
// compressed child public key.
func (p Policy) BIP32Derivations(index UnhardenedIndex) (map[string]KeySource, error) {
	if p.Type == PolicyInstant {
		return nil, ErrInstantPolicyNotSupported
	}
	out := make(map[string]KeySource, len(p.Descriptor.Chains))
	for _, chain := range p.Descriptor.Chains {
		pub, err := chain.DerivePublicKey(index)
		if err != nil {
			return nil, err
		}
		fingerprint, path := chain.KeySource(index)
		out[string(pub.SerializeCompressed())] = KeySource{Fingerprint: fingerprint, Path: path}
	}
	return out, nil
}

// FirstPublicKey derives the first descriptor chain's public key at index,
// used to label outputs with ownership metadata.
func (p Policy) FirstPublicKey(index UnhardenedIndex) (*btcec.PublicKey, error) {
	if p.Type == PolicyInstant {
		return nil, ErrInstantPolicyNotSupported
	}
	if len(p.Descriptor.Chains) == 0 {
		return nil, fmt.Errorf("model: policy descriptor has no pubkey chains")
	}
	return p.Descriptor.Chains[0].DerivePublicKey(index)
}

// ID computes the policy's ContractId by tagged-hashing its strict encoding.
func (p Policy) ID() (ContractID, error) {
	return NewContractID(p)
}

// StrictEncode writes the canonical byte representation of the policy used
// both for ContractId derivation and Storage persistence.
func (p Policy) StrictEncode(w io.Writer) error {
	if err := writeU8(w, uint8(p.Type)); err != nil {
		return err
	}
	switch p.Type {
	case PolicyInstant:
		_, err := w.Write(p.Channel.ChannelID[:])
		return err
	case PolicyCurrent, PolicySaving:
		return p.Descriptor.strictEncode(w)
	default:
		return fmt.Errorf("model: unknown policy type %d", p.Type)
	}
}

// StrictDecode reconstructs a Policy from its strict-encoded representation.
func (p *Policy) StrictDecode(r io.Reader) error {
	t, err := readU8(r)
	if err != nil {
		return err
	}
	p.Type = PolicyType(t)
	switch p.Type {
	case PolicyInstant:
		p.Channel = &ChannelDescriptor{}
		_, err := io.ReadFull(r, p.Channel.ChannelID[:])
		return err
	case PolicyCurrent, PolicySaving:
		return p.Descriptor.strictDecode(r)
	default:
		return fmt.Errorf("model: unknown policy type %d", p.Type)
	}
}

func (d *ContractDescriptor) strictDecode(r io.Reader) error {
	kind, err := readU8(r)
	if err != nil {
		return err
	}
	d.Kind = DescriptorKind(kind)
	threshold, err := readU32(r)
	if err != nil {
		return err
	}
	d.Threshold = int(threshold)
	n, err := readU32(r)
	if err != nil {
		return err
	}
	d.Chains = make([]PubkeyChain, n)
	for i := range d.Chains {
		xpubStr, err := readString(r)
		if err != nil {
			return err
		}
		wildcard, idx, err := readTerminalBits(r)
		if err != nil {
			return err
		}
		root, err := hdkeychain.NewKeyFromString(xpubStr)
		if err != nil {
			return fmt.Errorf("model: decode pubkey chain root: %w", err)
		}
		d.Chains[i] = PubkeyChain{
			Root:     root,
			Terminal: TerminalStep{Wildcard: wildcard, Index: idx},
		}
	}
	return nil
}

func (d ContractDescriptor) strictEncode(w io.Writer) error {
	if err := writeU8(w, uint8(d.Kind)); err != nil {
		return err
	}
	if err := writeU32(w, uint32(d.Threshold)); err != nil {
		return err
	}
	if err := writeU32(w, uint32(len(d.Chains))); err != nil {
		return err
	}
	for _, chain := range d.Chains {
		xpub := chain.Root.String()
		if err := writeString(w, xpub); err != nil {
			return err
		}
		if err := writeTerminalBits(w, chain.Terminal.Wildcard, chain.Terminal.Index); err != nil {
			return err
		}
	}
	return nil
}
