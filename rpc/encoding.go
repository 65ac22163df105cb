package rpc

// Wire encoding primitives for the ZMQ request/reply surface. Kept distinct
// from model's on-disk strict encoding and assetclient's daemon wire
// encoding: each transport boundary owns its own framing so a change to one
// never ripples into the others.

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

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

func writeBytes(w io.Writer, b []byte) error {
	if err := writeU32(w, uint32(len(b))); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

func readBytes(r io.Reader) ([]byte, error) {
	n, err := readU32(r)
	if err != nil {
		return nil, err
	}
	if n > 1<<24 {
		return nil, fmt.Errorf("rpc: implausible length %d", n)
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
	return v != 0, err
}

func marshal(fn func(io.Writer) error) ([]byte, error) {
	var buf bytes.Buffer
	if err := fn(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// MarshalRequest frames a request for the wire: a RequestType byte followed
// by encode's strict-encoded payload. Exported for citadel-cli and other
// out-of-process clients that otherwise have no access to Dispatcher.
func MarshalRequest(reqType RequestType, encode func(io.Writer) error) ([]byte, error) {
	var buf bytes.Buffer
	if err := buf.WriteByte(byte(reqType)); err != nil {
		return nil, err
	}
	if encode != nil {
		if err := encode(&buf); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// UnmarshalReply decodes a reply frame produced by Dispatcher.Dispatch: a
// reply-kind byte, then either decode's strict-encoded payload (success) or
// a string error message (failure, returned as a Go error).
func UnmarshalReply(frame []byte, decode func(io.Reader) error) error {
	if len(frame) < 1 {
		return fmt.Errorf("rpc: empty reply frame")
	}
	kind, payload := frame[0], frame[1:]
	if kind == replyKindFailure {
		msg, err := readString(bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("rpc: malformed failure reply: %w", err)
		}
		return fmt.Errorf("%s", msg)
	}
	if decode == nil {
		return nil
	}
	return decode(bytes.NewReader(payload))
}
