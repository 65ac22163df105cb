package model

import "io"

// Identity is a named extended public key the wallet knows about but does
// not control — a counterparty or co-signer record kept purely for the
// operator's bookkeeping. The core never derives from it.
type Identity struct {
	Name string
	XPub string
}

// Signer is a named extended public key whose private half lives in an
// external signing device or process. The core references signers only as
// records; key custody and signing are out of scope.
type Signer struct {
	Name string
	XPub string
}

func (id Identity) StrictEncode(w io.Writer) error {
	if err := writeString(w, id.Name); err != nil {
		return err
	}
	return writeString(w, id.XPub)
}

func (id *Identity) StrictDecode(r io.Reader) error {
	var err error
	if id.Name, err = readString(r); err != nil {
		return err
	}
	id.XPub, err = readString(r)
	return err
}

func (s Signer) StrictEncode(w io.Writer) error {
	if err := writeString(w, s.Name); err != nil {
		return err
	}
	return writeString(w, s.XPub)
}

func (s *Signer) StrictDecode(r io.Reader) error {
	var err error
	if s.Name, err = readString(r); err != nil {
		return err
	}
	s.XPub, err = readString(r)
	return err
}
