package model

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/kkdai/bstream"
)

// StrictEncoder writes the canonical on-wire/on-disk byte representation of
// a value. Every data-model type that participates in ContractId derivation
// or Storage persistence implements this.
type StrictEncoder interface {
	StrictEncode(w io.Writer) error
}

// StrictDecoder reads a value back from its StrictEncoder representation.
type StrictDecoder interface {
	StrictDecode(r io.Reader) error
}

// StrictSerialize runs v's StrictEncoder into a byte slice, used both for
// disk persistence and for ContractId tagged-hash input.
func StrictSerialize(v StrictEncoder) ([]byte, error) {
	var buf bytes.Buffer
	if err := v.StrictEncode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// StrictDeserialize reconstructs v from its strict-encoded byte slice.
func StrictDeserialize(v StrictDecoder, b []byte) error {
	return v.StrictDecode(bytes.NewReader(b))
}

func writeU8(w io.Writer, v uint8) error {
	_, err := w.Write([]byte{v})
	return err
}

func readU8(r io.Reader) (uint8, error) {
	var b [1]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

func writeU32(w io.Writer, v uint32) error {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	_, err := w.Write(b[:])
	return err
}

func readU32(r io.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

func writeU64(w io.Writer, v uint64) error {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	_, err := w.Write(b[:])
	return err
}

func readU64(r io.Reader) (uint64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b[:]), nil
}

// writeBytes length-prefixes b with a 32-bit length before the raw bytes.
func writeBytes(w io.Writer, b []byte) error {
	if err := writeU32(w, uint32(len(b))); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

// writeTerminalBits packs a PubkeyChain terminal step's wildcard flag and
// its unhardened index into a single 32-bit word: 1 bit for the flag, 31
// bits for the index, matching UnhardenedIndex's own [0, 2^31-1] range so
// no bit goes to waste. Unlike writeBool+writeU32 this is genuine
// bit-level packing rather than two byte-aligned fields, using bstream's
// bit writer the way the teacher's input/ package does for compact wire
// data.
func writeTerminalBits(w io.Writer, wildcard bool, index uint32) error {
	bw := bstream.NewBWriter(0)
	if wildcard {
		bw.WriteBit(bstream.One)
	} else {
		bw.WriteBit(bstream.Zero)
	}
	bw.WriteBits(uint64(index), 31)
	_, err := w.Write(bw.Bytes())
	return err
}

// readTerminalBits reads back the wildcard flag and index packed by
// writeTerminalBits.
func readTerminalBits(r io.Reader) (wildcard bool, index uint32, err error) {
	var buf [4]byte
	if _, err = io.ReadFull(r, buf[:]); err != nil {
		return false, 0, err
	}
	br := bstream.NewBReader(bytes.NewReader(buf[:]), 32)
	bit, err := br.ReadBit()
	if err != nil {
		return false, 0, err
	}
	idx, err := br.ReadBits(31)
	if err != nil {
		return false, 0, err
	}
	return bit == bstream.One, uint32(idx), nil
}

func readBytes(r io.Reader) ([]byte, error) {
	n, err := readU32(r)
	if err != nil {
		return nil, err
	}
	if n > 1<<24 {
		return nil, fmt.Errorf("strict decode: implausible length %d", n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func writeString(w io.Writer, s string) error {
	return writeBytes(w, []byte(s))
}

func readString(r io.Reader) (string, error) {
	b, err := readBytes(r)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func writeBool(w io.Writer, v bool) error {
	if v {
		return writeU8(w, 1)
	}
	return writeU8(w, 0)
}

func readBool(r io.Reader) (bool, error) {
	v, err := readU8(r)
	if err != nil {
		return false, err
	}
	return v != 0, nil
}
