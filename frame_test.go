package websock

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"math/bits"
	"strconv"
	"testing"

	"github.com/fenwren/websock/internal/test/assert"
	"github.com/fenwren/websock/internal/test/xrand"
)

func TestFrameRoundTrip(t *testing.T) {
	t.Parallel()

	lengths := []int{
		0,
		1,
		125,
		126,
		127,
		65535,
		65536,
		65537,
	}

	for _, masked := range []bool{false, true} {
		masked := masked
		name := "unmasked"
		if masked {
			name = "masked"
		}
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			for _, n := range lengths {
				n := n
				t.Run(strconv.Itoa(n), func(t *testing.T) {
					t.Parallel()

					exp := frame{
						fin:     xrand.Bool(),
						opcode:  opBinary,
						payload: xrand.Bytes(n),
					}
					if masked {
						exp.mask = xrand.Bytes(4)
					}

					var buf bytes.Buffer
					bw := bufio.NewWriter(&buf)
					err := writeFrame(bw, exp)
					assert.Success(t, err)
					assert.Success(t, bw.Flush())

					got, err := readFrame(bufio.NewReader(&buf), 0)
					assert.Success(t, err)

					assert.Equal(t, "fin", exp.fin, got.fin)
					assert.Equal(t, "opcode", exp.opcode, got.opcode)
					if !bytes.Equal(exp.payload, got.payload) {
						t.Fatalf("unexpected payload: %#v", got.payload)
					}
				})
			}
		})
	}
}

func TestReadFrameWireVectors(t *testing.T) {
	t.Parallel()

	// Both vectors carry "Hello"; the second is the client-masked form.
	// See https://tools.ietf.org/html/rfc6455#section-5.7.
	t.Run("unmaskedText", func(t *testing.T) {
		t.Parallel()

		b := []byte{0x81, 0x05, 'H', 'e', 'l', 'l', 'o'}
		f, err := readFrame(bufio.NewReader(bytes.NewReader(b)), 0)
		assert.Success(t, err)
		assert.Equal(t, "fin", true, f.fin)
		assert.Equal(t, "opcode", opText, f.opcode)
		assert.Equal(t, "payload", "Hello", string(f.payload))
	})

	t.Run("maskedText", func(t *testing.T) {
		t.Parallel()

		b := []byte{0x81, 0x85, 0x37, 0xfa, 0x21, 0x3d, 0x7f, 0x9f, 0x4d, 0x51, 0x58}
		f, err := readFrame(bufio.NewReader(bytes.NewReader(b)), 0)
		assert.Success(t, err)
		assert.Equal(t, "fin", true, f.fin)
		assert.Equal(t, "opcode", opText, f.opcode)
		assert.Equal(t, "payload", "Hello", string(f.payload))
	})
}

func TestWriteFrameWireVector(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	bw := bufio.NewWriter(&buf)
	err := writeFrame(bw, frame{
		fin:     true,
		opcode:  opClose,
		payload: []byte{0x03, 0xe8, 'b', 'y', 'e'},
	})
	assert.Success(t, err)
	assert.Success(t, bw.Flush())

	assert.Equal(t, "wire bytes", []byte{0x88, 0x05, 0x03, 0xe8, 'b', 'y', 'e'}, buf.Bytes())
}

func TestWriteFrameDoesNotMutatePayload(t *testing.T) {
	t.Parallel()

	payload := xrand.Bytes(777)
	orig := make([]byte, len(payload))
	copy(orig, payload)

	var buf bytes.Buffer
	bw := bufio.NewWriter(&buf)
	err := writeFrame(bw, frame{
		fin:     true,
		opcode:  opBinary,
		mask:    xrand.Bytes(4),
		payload: payload,
	})
	assert.Success(t, err)
	assert.Success(t, bw.Flush())

	assert.Equal(t, "payload", orig, payload)
}

func TestReadFrameFaults(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name  string
		b     []byte
		limit int64
		err   error
	}{
		{
			name: "reservedBits",
			b:    []byte{0xc1, 0x00},
			err:  ErrInvalidSignature,
		},
		{
			name: "emptyStream",
			b:    []byte{},
			err:  ErrUnexpectedEOS,
		},
		{
			name: "truncatedHeader",
			b:    []byte{0x81},
			err:  ErrUnexpectedEOS,
		},
		{
			name: "truncatedExtendedLength",
			b:    []byte{0x81, 126, 0x01},
			err:  ErrUnexpectedEOS,
		},
		{
			name: "truncatedMaskKey",
			b:    []byte{0x81, 0x85, 0x37, 0xfa},
			err:  ErrUnexpectedEOS,
		},
		{
			name: "truncatedPayload",
			b:    []byte{0x81, 0x05, 'H', 'e'},
			err:  ErrUnexpectedEOS,
		},
		{
			name:  "overLimit",
			b:     []byte{0x81, 0x05, 'H', 'e', 'l', 'l', 'o'},
			limit: 4,
			err:   ErrFrameTooLarge,
		},
		{
			name: "length64Overflow",
			b:    []byte{0x81, 127, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff},
			err:  ErrFrameTooLarge,
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			_, err := readFrame(bufio.NewReader(bytes.NewReader(tc.b)), tc.limit)
			assert.ErrorIs(t, tc.err, err)
		})
	}
}

func TestWriteFrameBadMask(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	bw := bufio.NewWriter(&buf)
	err := writeFrame(bw, frame{
		fin:    true,
		opcode: opBinary,
		mask:   []byte{0x01, 0x02},
	})
	assert.ErrorIs(t, ErrInvalidMask, err)
}

func TestMaskBytes(t *testing.T) {
	t.Parallel()

	t.Run("vector", func(t *testing.T) {
		t.Parallel()

		key := []byte{0xa, 0xb, 0xc, 0xff}
		key32 := binary.LittleEndian.Uint32(key)
		p := []byte{0xa, 0xb, 0xc, 0xf2, 0xc}
		gotKey32 := maskBytes(key32, p)

		assert.Equal(t, "masked bytes", []byte{0, 0, 0, 0x0d, 0x6}, p)
		assert.Equal(t, "rotated key", bits.RotateLeft32(key32, -8), gotKey32)
	})

	t.Run("selfInverse", func(t *testing.T) {
		t.Parallel()

		for _, n := range []int{0, 3, 4, 7, 8, 9, 513} {
			p := xrand.Bytes(n)
			orig := make([]byte, n)
			copy(orig, p)

			key32 := binary.LittleEndian.Uint32(xrand.Bytes(4))
			maskBytes(key32, p)
			maskBytes(key32, p)

			assert.Equal(t, "unmasked bytes", orig, p)
		}
	})
}
