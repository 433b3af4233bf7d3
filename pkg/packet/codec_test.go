// Copyright (C) 2026 RW Labs. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package packet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fieldSet(t *testing.T, fields ...Field) *FieldSet {
	t.Helper()
	fs := NewFieldSet()
	for _, f := range fields {
		require.NoError(t, fs.Set(f.Key, f.Value))
	}
	return fs
}

func encode(t *testing.T, fields ...Field) []byte {
	t.Helper()
	frame, err := Encode(fieldSet(t, fields...))
	require.NoError(t, err)
	return frame
}

func TestEncodeGolden(t *testing.T) {
	frame := encode(t,
		Field{Key: "pwm", Value: Command("set")},
		Field{Key: "lvl", Value: Uint8(200)},
	)
	expected := []byte{
		0x02, 0x0d, 0x00,
		'p', 'w', 'm', 0x05, 0x03, 's', 'e', 't',
		'l', 'v', 'l', 0x01, 0xc8,
		0xcc, 0x03,
	}
	assert.Equal(t, expected, frame)
}

func TestRoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		fields []Field
	}{
		{name: "empty"},
		{
			name: "all types",
			fields: []Field{
				{Key: "but", Value: Uint8(1)},
				{Key: "pho", Value: Uint16(512)},
				{Key: "rng", Value: Uint32(0xdeadbeef)},
				{Key: "enc", Value: Int32(-42)},
				{Key: "rnd", Value: Command("get")},
			},
		},
		{
			name: "extremes",
			fields: []Field{
				{Key: "u08", Value: Uint8(255)},
				{Key: "u16", Value: Uint16(65535)},
				{Key: "u32", Value: Uint32(0)},
				{Key: "min", Value: Int32(-2147483648)},
				{Key: "max", Value: Int32(2147483647)},
				{Key: "nil", Value: Command("")},
			},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			in := fieldSet(t, test.fields...)
			frame, err := Encode(in)
			require.NoError(t, err)

			out := NewDecoder().Feed(frame)
			require.Len(t, out, 1)
			assert.True(t, in.Equal(out[0]), "got %s, want %s", out[0], in)
		})
	}
}

func streamOfFrames(t *testing.T) ([]byte, []*FieldSet) {
	sets := []*FieldSet{
		fieldSet(t, Field{Key: "pho", Value: Uint16(512)}, Field{Key: "pot", Value: Uint16(4095)}),
		fieldSet(t, Field{Key: "rng", Value: Uint32(123456789)}),
		fieldSet(t),
		fieldSet(t, Field{Key: "enc", Value: Int32(-7)}, Field{Key: "but", Value: Uint8(1)}),
		fieldSet(t, Field{Key: "msg", Value: Command("hello\x02\x03world")}),
		// The payload holds 02 03 00 9c 'b' 'c' 'd' 03 01 00 00 00 ... which
		// starts with a complete, checksum-valid frame of its own.
		fieldSet(t,
			Field{Key: "aaa", Value: Uint32(0x9C000302)},
			Field{Key: "bcd", Value: Uint32(1)},
			Field{Key: "pho", Value: Uint16(512)},
		),
	}
	var stream []byte
	stream = append(stream, 0xff, 0x00, 0x13)
	for _, s := range sets {
		frame, err := Encode(s)
		require.NoError(t, err)
		stream = append(stream, frame...)
		stream = append(stream, 'x')
	}
	return stream, sets
}

func TestDecoderChunkIndependence(t *testing.T) {
	stream, want := streamOfFrames(t)

	for size := 1; size <= len(stream); size++ {
		d := NewDecoder()
		var got []*FieldSet
		for i := 0; i < len(stream); i += size {
			end := i + size
			if end > len(stream) {
				end = len(stream)
			}
			got = append(got, d.Feed(stream[i:end])...)
		}
		require.Len(t, got, len(want), "chunk size %d", size)
		for i := range want {
			assert.True(t, want[i].Equal(got[i]), "chunk size %d frame %d: got %s, want %s", size, i, got[i], want[i])
		}
	}
}

func TestDecoderCorruptedThenValid(t *testing.T) {
	valid := encode(t, Field{Key: "pot", Value: Uint16(100)})

	tests := []struct {
		name    string
		corrupt func([]byte) []byte
	}{
		{
			name: "bad checksum",
			corrupt: func(b []byte) []byte {
				b[len(b)-2] ^= 0xff
				return b
			},
		},
		{
			name: "bad end marker",
			corrupt: func(b []byte) []byte {
				b[len(b)-1] = 0x00
				return b
			},
		},
		{
			name: "flipped payload byte",
			corrupt: func(b []byte) []byte {
				b[5] ^= 0x20
				return b
			},
		},
		{
			name: "length too long",
			corrupt: func(b []byte) []byte {
				b[1] = 0xf0
				b[2] = 0x01
				return b
			},
		},
		{
			name: "length above maximum",
			corrupt: func(b []byte) []byte {
				b[2] = 0xff
				return b
			},
		},
		{
			name: "truncated",
			corrupt: func(b []byte) []byte {
				return b[:len(b)-3]
			},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			bad := test.corrupt(encode(t,
				Field{Key: "pho", Value: Uint16(512)},
				Field{Key: "pot", Value: Uint16(2)},
			))
			stream := append(append([]byte{}, bad...), valid...)
			// Any start marker inside the bad frame announces at most
			// MaxPayload bytes; the filler lets every such candidate be
			// judged.
			stream = append(stream, make([]byte, MaxPayload+headerLen+trailerLen)...)

			d := NewDecoder()
			got := d.Feed(stream)
			require.Len(t, got, 1)
			v, err := Get[uint16](got[0], "pot")
			require.NoError(t, err)
			assert.Equal(t, uint16(100), v)
			assert.Equal(t, -1, got[0].Index("pho"))
			assert.Equal(t, 0, d.Buffered())
			assert.NotZero(t, d.Stats().Resyncs+d.Stats().Discarded)
		})
	}
}

func TestDecoderEmbeddedFrame(t *testing.T) {
	frame := encode(t,
		Field{Key: "aaa", Value: Uint32(0x9C000302)},
		Field{Key: "bcd", Value: Uint32(1)},
		Field{Key: "pho", Value: Uint16(512)},
	)
	inner := frame[headerLen+KeyLen+1:]
	innerLen := int(inner[1])
	require.NoError(t, verifyFrame(inner[:headerLen+innerLen+trailerLen]))

	d := NewDecoder()
	var got []*FieldSet
	for i := range frame {
		got = append(got, d.Feed(frame[i:i+1])...)
	}
	require.Len(t, got, 1)
	v, err := Get[uint32](got[0], "aaa")
	require.NoError(t, err)
	assert.Equal(t, uint32(0x9C000302), v)
	assert.Equal(t, 3, got[0].Len())
	assert.Zero(t, d.Stats().Resyncs)
}

func TestDecoderCorruptedHeaderDelaysNextFrame(t *testing.T) {
	bad := encode(t, Field{Key: "but", Value: Uint8(1)})
	bad[1] = 0x40
	valid := encode(t, Field{Key: "but", Value: Uint8(2)})

	d := NewDecoder()
	assert.Empty(t, d.Feed(append(bad, valid...)))
	got := d.Feed(make([]byte, 0x40))
	require.Len(t, got, 1)
	v, err := Get[uint8](got[0], "but")
	require.NoError(t, err)
	assert.Equal(t, uint8(2), v)
}

func TestDecoderKeepsPartialFrame(t *testing.T) {
	frame := encode(t, Field{Key: "rng", Value: Uint32(7)})
	d := NewDecoder()

	assert.Empty(t, d.Feed(frame[:4]))
	assert.Equal(t, 4, d.Buffered())
	got := d.Feed(frame[4:])
	require.Len(t, got, 1)
	assert.Equal(t, 0, d.Buffered())
	assert.Equal(t, uint64(1), d.Stats().Frames)
}

func TestDecoderDiscardsGarbage(t *testing.T) {
	d := NewDecoder()
	assert.Empty(t, d.Feed([]byte("no markers in here")))
	assert.Equal(t, 0, d.Buffered())
	assert.Equal(t, uint64(18), d.Stats().Discarded)
}

func TestDecoderDuplicateKeysOverwrite(t *testing.T) {
	payload := []byte{
		'p', 'o', 't', byte(TypeUint16), 0x01, 0x00,
		'b', 'u', 't', byte(TypeUint8), 0x00,
		'p', 'o', 't', byte(TypeUint16), 0x02, 0x00,
	}
	fs, err := DecodePayload(payload)
	require.NoError(t, err)
	require.Equal(t, 2, fs.Len())
	assert.Equal(t, 0, fs.Index("pot"))
	v, err := Get[uint16](fs, "pot")
	require.NoError(t, err)
	assert.Equal(t, uint16(2), v)
}

func TestDecodePayloadDropsMalformed(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
		err     error
	}{
		{
			name: "unknown type",
			payload: []byte{
				'b', 'u', 't', byte(TypeUint8), 0x01,
				'x', 'y', 'z', 0x7f, 0x01, 0x02,
			},
			err: ErrUnknownType,
		},
		{
			name: "short value",
			payload: []byte{
				'b', 'u', 't', byte(TypeUint8), 0x01,
				'r', 'n', 'g', byte(TypeUint32), 0x01, 0x02,
			},
			err: ErrTruncated,
		},
		{
			name: "short command",
			payload: []byte{
				'b', 'u', 't', byte(TypeUint8), 0x01,
				'c', 'm', 'd', byte(TypeCommand), 0x05, 'a', 'b',
			},
			err: ErrTruncated,
		},
		{
			name: "non printable key",
			payload: []byte{
				'b', 'u', 't', byte(TypeUint8), 0x01,
				0x00, 'm', 'd', byte(TypeUint8), 0x05,
			},
			err: ErrInvalidKey,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			fs, err := DecodePayload(test.payload)
			assert.ErrorIs(t, err, test.err)
			require.Equal(t, 1, fs.Len())
			assert.Equal(t, "but", fs.At(0).Key)
		})
	}
}

func TestDecoderCountsMalformedFrames(t *testing.T) {
	payload := []byte{'b', 'u', 't', byte(TypeUint8), 0x01, 'x', 'y', 'z', 0x7f}
	frame := []byte{StartMarker, byte(len(payload)), 0}
	frame = append(frame, payload...)
	frame = append(frame, checksum(frame[1:]), EndMarker)

	d := NewDecoder()
	got := d.Feed(frame)
	require.Len(t, got, 1)
	assert.Equal(t, 1, got[0].Len())
	assert.Equal(t, uint64(1), d.Stats().MalformedFrames)
	assert.ErrorIs(t, d.LastError, ErrUnknownType)
}

func TestEncodeErrors(t *testing.T) {
	_, err := AppendField(nil, Field{Key: "toolong", Value: Uint8(1)})
	assert.ErrorIs(t, err, ErrInvalidKey)

	_, err = AppendField(nil, Field{Key: "abc"})
	assert.ErrorIs(t, err, ErrUnsupportedValue)

	fs := NewFieldSet()
	for i := 0; i < 200; i++ {
		key := string([]byte{'a' + byte(i/26%26), 'a' + byte(i%26), 'z'})
		require.NoError(t, fs.Set(key, Uint32(uint32(i))))
	}
	_, err = Encode(fs)
	assert.ErrorIs(t, err, ErrPayloadTooLarge)
}
