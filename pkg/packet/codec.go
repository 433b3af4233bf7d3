// Copyright (C) 2026 RW Labs. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package packet

import (
	"encoding/binary"
	"fmt"
)

// Frame layout. These values are shared with the device firmware and must
// not change.
//
//	start(1) | length(2, LE) | entries(length) | checksum(1) | end(1)
//
// An entry is key(3) | type(1) | value, where the value is 1, 2 or 4
// little-endian bytes, or a length byte followed by the text for commands.
// The checksum is the 8-bit sum of the length bytes and the entries.
const (
	StartMarker byte = 0x02
	EndMarker   byte = 0x03

	MaxPayload    = 1024
	MaxCommandLen = 255

	headerLen  = 3
	trailerLen = 2
)

func checksum(data []byte) byte {
	var sum byte
	for _, b := range data {
		sum += b
	}
	return sum
}

// AppendField appends the wire encoding of f to dst.
func AppendField(dst []byte, f Field) ([]byte, error) {
	if err := checkKey(f.Key); err != nil {
		return dst, err
	}
	v := f.Value
	dst = append(dst, f.Key...)
	dst = append(dst, byte(v.typ))
	switch v.typ {
	case TypeUint8:
		dst = append(dst, byte(v.num))
	case TypeUint16:
		dst = binary.LittleEndian.AppendUint16(dst, uint16(v.num))
	case TypeUint32, TypeInt32:
		dst = binary.LittleEndian.AppendUint32(dst, v.num)
	case TypeCommand:
		if len(v.text) > MaxCommandLen {
			return dst, fmt.Errorf("%w: %d > %d", ErrCommandTooLong, len(v.text), MaxCommandLen)
		}
		dst = append(dst, byte(len(v.text)))
		dst = append(dst, v.text...)
	default:
		return dst, fmt.Errorf("%w: field '%s' has %s", ErrUnsupportedValue, f.Key, v.typ)
	}
	return dst, nil
}

// Encode returns one complete frame holding the fields of s in order.
func Encode(s *FieldSet) ([]byte, error) {
	frame := []byte{StartMarker, 0, 0}
	var err error
	for _, f := range s.Fields() {
		if frame, err = AppendField(frame, f); err != nil {
			return nil, err
		}
	}
	payloadLen := len(frame) - headerLen
	if payloadLen > MaxPayload {
		return nil, fmt.Errorf("%w: %d > %d", ErrPayloadTooLarge, payloadLen, MaxPayload)
	}
	binary.LittleEndian.PutUint16(frame[1:3], uint16(payloadLen))
	frame = append(frame, checksum(frame[1:]), EndMarker)
	return frame, nil
}

// DecodePayload decodes the entries of a frame. Decoding stops at the
// first malformed entry; the entries before it are returned together with
// the error.
func DecodePayload(payload []byte) (*FieldSet, error) {
	res := NewFieldSet()
	i := 0
	for i < len(payload) {
		if len(payload)-i < KeyLen+1 {
			return res, ErrTruncated
		}
		key := string(payload[i : i+KeyLen])
		typ := Type(payload[i+KeyLen])
		i += KeyLen + 1

		var v Value
		switch typ {
		case TypeUint8, TypeUint16, TypeUint32, TypeInt32:
			w := typ.Width()
			if len(payload)-i < w {
				return res, fmt.Errorf("%w: '%s' needs %d bytes", ErrTruncated, key, w)
			}
			switch w {
			case 1:
				v = Value{typ: typ, num: uint32(payload[i])}
			case 2:
				v = Value{typ: typ, num: uint32(binary.LittleEndian.Uint16(payload[i:]))}
			default:
				v = Value{typ: typ, num: binary.LittleEndian.Uint32(payload[i:])}
			}
			i += w
		case TypeCommand:
			if len(payload)-i < 1 {
				return res, fmt.Errorf("%w: '%s' has no length", ErrTruncated, key)
			}
			n := int(payload[i])
			i++
			if len(payload)-i < n {
				return res, fmt.Errorf("%w: '%s' needs %d bytes", ErrTruncated, key, n)
			}
			v = Command(string(payload[i : i+n]))
			i += n
		default:
			return res, fmt.Errorf("%w: 0x%02x for '%s'", ErrUnknownType, uint8(typ), key)
		}
		if err := res.Set(key, v); err != nil {
			return res, err
		}
	}
	return res, nil
}

// verifyFrame checks the trailer of a complete candidate frame.
func verifyFrame(frame []byte) error {
	n := len(frame)
	if frame[n-1] != EndMarker {
		return ErrBadMarker
	}
	if checksum(frame[1:n-trailerLen]) != frame[n-2] {
		return ErrBadChecksum
	}
	return nil
}
