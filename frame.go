package websock

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"math/bits"

	"github.com/fenwren/websock/internal/errd"
)

// opcode is a frame's kind discriminator.
// See https://tools.ietf.org/html/rfc6455#section-11.8.
type opcode int

const (
	opContinuation opcode = iota
	opText
	opBinary
	// 3 - 7 are reserved for further non-control frames.
	_
	_
	_
	_
	_
	opClose
	opPing
	opPong
	// 11-16 are reserved for further control frames.
)

// maxControlPayload is the maximum length of a control frame payload.
// See https://tools.ietf.org/html/rfc6455#section-5.5.
const maxControlPayload = 125

// frame is a single wire unit.
// See https://tools.ietf.org/html/rfc6455#section-5.2.
//
// mask is either nil or exactly 4 bytes. A decoded frame's payload has
// already been unmasked; an encoded frame's payload is masked on the wire
// but never mutated in place.
type frame struct {
	fin     bool
	opcode  opcode
	mask    []byte
	payload []byte
}

// readFrame reads exactly one frame from r.
//
// limit, if positive, bounds the declared payload length; a longer frame
// fails with ErrFrameTooLarge before any payload bytes are read. A stream
// that ends mid-frame fails with ErrUnexpectedEOS.
func readFrame(r *bufio.Reader, limit int64) (_ frame, err error) {
	defer errd.Wrap(&err, "failed to read frame")

	b, err := r.ReadByte()
	if err != nil {
		return frame{}, eosError(err)
	}

	if b&0x70 != 0 {
		return frame{}, fmt.Errorf("%w: reserved bits set in %#02x", ErrInvalidSignature, b)
	}

	var f frame
	f.fin = b&0x80 != 0
	f.opcode = opcode(b & 0x0f)

	b, err = r.ReadByte()
	if err != nil {
		return frame{}, eosError(err)
	}
	masked := b&0x80 != 0

	length := int64(b &^ 0x80)
	switch length {
	case 126:
		var v uint16
		err = binary.Read(r, binary.BigEndian, &v)
		if err != nil {
			return frame{}, eosError(err)
		}
		length = int64(v)
	case 127:
		var v uint64
		err = binary.Read(r, binary.BigEndian, &v)
		if err != nil {
			return frame{}, eosError(err)
		}
		if v > math.MaxInt64 {
			return frame{}, fmt.Errorf("%w: declared length %d overflows", ErrFrameTooLarge, v)
		}
		length = int64(v)
	}

	if limit > 0 && length > limit {
		return frame{}, fmt.Errorf("%w: %d bytes over limit of %d", ErrFrameTooLarge, length, limit)
	}

	if masked {
		f.mask = make([]byte, 4)
		_, err = io.ReadFull(r, f.mask)
		if err != nil {
			return frame{}, eosError(err)
		}
	}

	if length > 0 {
		f.payload = make([]byte, length)
		_, err = io.ReadFull(r, f.payload)
		if err != nil {
			return frame{}, eosError(err)
		}
		if masked {
			maskBytes(binary.LittleEndian.Uint32(f.mask), f.payload)
		}
	}

	return f, nil
}

// writeFrame writes the bytes of f to w. It does not flush.
func writeFrame(w *bufio.Writer, f frame) (err error) {
	defer errd.Wrap(&err, "failed to write frame")

	if f.mask != nil && len(f.mask) != 4 {
		return fmt.Errorf("%w: got %d bytes", ErrInvalidMask, len(f.mask))
	}

	b := byte(f.opcode)
	if f.fin {
		b |= 0x80
	}
	err = w.WriteByte(b)
	if err != nil {
		return err
	}

	b = 0
	if f.mask != nil {
		b |= 0x80
	}
	switch {
	case len(f.payload) > math.MaxUint16:
		err = w.WriteByte(b | 127)
		if err != nil {
			return err
		}
		err = binary.Write(w, binary.BigEndian, uint64(len(f.payload)))
	case len(f.payload) > 125:
		err = w.WriteByte(b | 126)
		if err != nil {
			return err
		}
		err = binary.Write(w, binary.BigEndian, uint16(len(f.payload)))
	default:
		err = w.WriteByte(b | byte(len(f.payload)))
	}
	if err != nil {
		return err
	}

	if f.mask == nil {
		_, err = w.Write(f.payload)
		return err
	}

	_, err = w.Write(f.mask)
	if err != nil {
		return err
	}

	// Mask through a staging buffer so the caller's payload is not mutated.
	key := binary.LittleEndian.Uint32(f.mask)
	var buf [512]byte
	p := f.payload
	for len(p) > 0 {
		n := copy(buf[:], p)
		key = maskBytes(key, buf[:n])
		_, err = w.Write(buf[:n])
		if err != nil {
			return err
		}
		p = p[n:]
	}
	return nil
}

// maskBytes applies the XOR masking algorithm to b with the given key.
// Masking is self inverse: applying it twice with the same key restores b.
//
// The returned value is the correctly rotated key to continue
// masking/unmasking the rest of the message. The key is little endian.
//
// See https://tools.ietf.org/html/rfc6455#section-5.3.
func maskBytes(key uint32, b []byte) uint32 {
	key64 := uint64(key)<<32 | uint64(key)
	for len(b) >= 8 {
		v := binary.LittleEndian.Uint64(b)
		binary.LittleEndian.PutUint64(b, v^key64)
		b = b[8:]
	}

	for len(b) >= 4 {
		v := binary.LittleEndian.Uint32(b)
		binary.LittleEndian.PutUint32(b, v^key)
		b = b[4:]
	}

	for i := range b {
		b[i] ^= byte(key)
		key = bits.RotateLeft32(key, -8)
	}

	return key
}

// eosError maps an exhausted stream onto ErrUnexpectedEOS so a truncated
// frame is distinguishable from other transport faults.
func eosError(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: %v", ErrUnexpectedEOS, err)
	}
	return err
}
