package model

import (
	"fmt"
	"io"
)

// ContractData is the mutable payload a Contract owns: recorded
// pay-to-contract tweaks, sent invoices, and blinding reveals for received
// colored-asset allocations. Tweaks are stored as a flat list keyed by
// outpoint inside the contract rather than as back-references, per the
// "contract owns tweaks" guidance.
type ContractData struct {
	Tweaks          []TweakedOutput
	Invoices        []Invoice
	BlindingReveals []OutpointReveal
}

// Contract aggregates a ContractId (derived from Policy), the Policy
// itself, a human-readable name, the target chain tag, and its data block.
type Contract struct {
	ID     ContractID
	Policy Policy
	Name   string
	Chain  string // target chain tag, e.g. "bitcoin", "testnet"
	Data   ContractData
}

// NewContract derives the ContractId from policy and returns a fresh,
// empty-data Contract. ContractId and Policy are never stored
// independently of one another.
func NewContract(policy Policy, name, chain string) (*Contract, error) {
	id, err := policy.ID()
	if err != nil {
		return nil, fmt.Errorf("model: derive contract id: %w", err)
	}
	return &Contract{
		ID:     id,
		Policy: policy,
		Name:   name,
		Chain:  chain,
	}, nil
}

// AddTweak records a new pay-to-contract tweak, keyed implicitly by its
// outpoint within the flat Tweaks list.
func (c *Contract) AddTweak(t TweakedOutput) {
	c.Data.Tweaks = append(c.Data.Tweaks, t)
}

// TweakForOutpoint returns the recorded tweak for outpoint, if any.
func (c *Contract) TweakForOutpoint(txid [32]byte, vout uint32) (TweakedOutput, bool) {
	for _, t := range c.Data.Tweaks {
		if t.Outpoint.Hash == txid && t.Outpoint.Index == vout {
			return t, true
		}
	}
	return TweakedOutput{}, false
}

// StrictEncode writes the canonical byte representation of a Contract.
func (c Contract) StrictEncode(w io.Writer) error {
	if err := c.ID.StrictEncode(w); err != nil {
		return err
	}
	if err := c.Policy.StrictEncode(w); err != nil {
		return err
	}
	if err := writeString(w, c.Name); err != nil {
		return err
	}
	if err := writeString(w, c.Chain); err != nil {
		return err
	}
	if err := writeU32(w, uint32(len(c.Data.Tweaks))); err != nil {
		return err
	}
	for _, t := range c.Data.Tweaks {
		if err := t.StrictEncode(w); err != nil {
			return err
		}
	}
	if err := writeU32(w, uint32(len(c.Data.Invoices))); err != nil {
		return err
	}
	for _, inv := range c.Data.Invoices {
		if err := inv.StrictEncode(w); err != nil {
			return err
		}
	}
	if err := writeU32(w, uint32(len(c.Data.BlindingReveals))); err != nil {
		return err
	}
	for _, reveal := range c.Data.BlindingReveals {
		if _, err := w.Write(reveal.Txid[:]); err != nil {
			return err
		}
		if err := writeU32(w, reveal.Vout); err != nil {
			return err
		}
		if err := writeU64(w, reveal.Blinding); err != nil {
			return err
		}
	}
	return nil
}

// StrictDecode reconstructs a Contract from its strict-encoded form.
func (c *Contract) StrictDecode(r io.Reader) error {
	if err := c.ID.StrictDecode(r); err != nil {
		return err
	}
	if err := c.Policy.StrictDecode(r); err != nil {
		return err
	}
	var err error
	if c.Name, err = readString(r); err != nil {
		return err
	}
	if c.Chain, err = readString(r); err != nil {
		return err
	}
	n, err := readU32(r)
	if err != nil {
		return err
	}
	c.Data.Tweaks = make([]TweakedOutput, n)
	for i := range c.Data.Tweaks {
		if err := c.Data.Tweaks[i].StrictDecode(r); err != nil {
			return err
		}
	}
	n, err = readU32(r)
	if err != nil {
		return err
	}
	c.Data.Invoices = make([]Invoice, n)
	for i := range c.Data.Invoices {
		if err := c.Data.Invoices[i].StrictDecode(r); err != nil {
			return err
		}
	}
	n, err = readU32(r)
	if err != nil {
		return err
	}
	c.Data.BlindingReveals = make([]OutpointReveal, n)
	for i := range c.Data.BlindingReveals {
		if _, err := io.ReadFull(r, c.Data.BlindingReveals[i].Txid[:]); err != nil {
			return err
		}
		if c.Data.BlindingReveals[i].Vout, err = readU32(r); err != nil {
			return err
		}
		if c.Data.BlindingReveals[i].Blinding, err = readU64(r); err != nil {
			return err
		}
	}
	return nil
}
