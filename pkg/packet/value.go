// Copyright (C) 2026 RW Labs. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package packet

import (
	"fmt"
	"strconv"
	"strings"
)

// Type is the wire type tag that follows the key of every entry.
type Type uint8

const (
	TypeUint8   Type = 0x01
	TypeUint16  Type = 0x02
	TypeUint32  Type = 0x03
	TypeInt32   Type = 0x04
	TypeCommand Type = 0x05
)

// Width returns the number of value bytes for fixed-width types, and 0 for
// commands and unknown tags.
func (t Type) Width() int {
	switch t {
	case TypeUint8:
		return 1
	case TypeUint16:
		return 2
	case TypeUint32, TypeInt32:
		return 4
	default:
		return 0
	}
}

func (t Type) Valid() bool {
	return t >= TypeUint8 && t <= TypeCommand
}

func (t Type) String() string {
	switch t {
	case TypeUint8:
		return "u8"
	case TypeUint16:
		return "u16"
	case TypeUint32:
		return "u32"
	case TypeInt32:
		return "i32"
	case TypeCommand:
		return "cmd"
	default:
		return fmt.Sprintf("type(0x%02x)", uint8(t))
	}
}

// Value is one typed field value. The zero Value is invalid.
type Value struct {
	typ  Type
	num  uint32
	text string
}

func Uint8(v uint8) Value   { return Value{typ: TypeUint8, num: uint32(v)} }
func Uint16(v uint16) Value { return Value{typ: TypeUint16, num: uint32(v)} }
func Uint32(v uint32) Value { return Value{typ: TypeUint32, num: v} }
func Int32(v int32) Value   { return Value{typ: TypeInt32, num: uint32(v)} }

// Command returns a textual command value such as "set" or "get".
func Command(s string) Value { return Value{typ: TypeCommand, text: s} }

// ValueOf converts a Go value into a Value. Strings become commands; only
// the exact integer types of the wire are accepted.
func ValueOf(v any) (Value, error) {
	switch v := v.(type) {
	case Value:
		if !v.typ.Valid() {
			return Value{}, ErrUnsupportedValue
		}
		return v, nil
	case string:
		return Command(v), nil
	case uint8:
		return Uint8(v), nil
	case uint16:
		return Uint16(v), nil
	case uint32:
		return Uint32(v), nil
	case int32:
		return Int32(v), nil
	default:
		return Value{}, fmt.Errorf("%w: %T", ErrUnsupportedValue, v)
	}
}

func (v Value) Type() Type { return v.typ }

func (v Value) mismatch(want Type) error {
	return fmt.Errorf("%w: field is %s, requested %s", ErrTypeMismatch, v.typ, want)
}

func (v Value) Uint8() (uint8, error) {
	if v.typ != TypeUint8 {
		return 0, v.mismatch(TypeUint8)
	}
	return uint8(v.num), nil
}

func (v Value) Uint16() (uint16, error) {
	if v.typ != TypeUint16 {
		return 0, v.mismatch(TypeUint16)
	}
	return uint16(v.num), nil
}

func (v Value) Uint32() (uint32, error) {
	if v.typ != TypeUint32 {
		return 0, v.mismatch(TypeUint32)
	}
	return v.num, nil
}

func (v Value) Int32() (int32, error) {
	if v.typ != TypeInt32 {
		return 0, v.mismatch(TypeInt32)
	}
	return int32(v.num), nil
}

func (v Value) Command() (string, error) {
	if v.typ != TypeCommand {
		return "", v.mismatch(TypeCommand)
	}
	return v.text, nil
}

// Interface returns the value as its natural Go type.
func (v Value) Interface() any {
	switch v.typ {
	case TypeUint8:
		return uint8(v.num)
	case TypeUint16:
		return uint16(v.num)
	case TypeUint32:
		return v.num
	case TypeInt32:
		return int32(v.num)
	case TypeCommand:
		return v.text
	default:
		return nil
	}
}

func (v Value) String() string {
	switch v.typ {
	case TypeInt32:
		return fmt.Sprintf("%s:%d", v.typ, int32(v.num))
	case TypeCommand:
		return fmt.Sprintf("%s:%s", v.typ, v.text)
	default:
		return fmt.Sprintf("%s:%d", v.typ, v.num)
	}
}

// Scalar lists the Go types a field can be read as.
type Scalar interface {
	uint8 | uint16 | uint32 | int32 | string
}

// As reads v as T. It fails with ErrTypeMismatch unless T is exactly the
// wire type of v; values are never widened or truncated.
func As[T Scalar](v Value) (T, error) {
	var out T
	var err error
	switch p := any(&out).(type) {
	case *uint8:
		*p, err = v.Uint8()
	case *uint16:
		*p, err = v.Uint16()
	case *uint32:
		*p, err = v.Uint32()
	case *int32:
		*p, err = v.Int32()
	case *string:
		*p, err = v.Command()
	}
	return out, err
}

// ParseValue parses a literal of the form "u8:200", "i32:-5" or "cmd:set".
// A literal without a type prefix is treated as a command.
func ParseValue(literal string) (Value, error) {
	typ, text, ok := strings.Cut(literal, ":")
	if !ok {
		return Command(literal), nil
	}
	switch strings.ToLower(typ) {
	case "u8", "uint8":
		n, err := strconv.ParseUint(text, 0, 8)
		if err != nil {
			return Value{}, fmt.Errorf("invalid u8 '%s': %w", text, err)
		}
		return Uint8(uint8(n)), nil
	case "u16", "uint16":
		n, err := strconv.ParseUint(text, 0, 16)
		if err != nil {
			return Value{}, fmt.Errorf("invalid u16 '%s': %w", text, err)
		}
		return Uint16(uint16(n)), nil
	case "u32", "uint32":
		n, err := strconv.ParseUint(text, 0, 32)
		if err != nil {
			return Value{}, fmt.Errorf("invalid u32 '%s': %w", text, err)
		}
		return Uint32(uint32(n)), nil
	case "i32", "int32":
		n, err := strconv.ParseInt(text, 0, 32)
		if err != nil {
			return Value{}, fmt.Errorf("invalid i32 '%s': %w", text, err)
		}
		return Int32(int32(n)), nil
	case "cmd", "command":
		return Command(text), nil
	default:
		return Value{}, fmt.Errorf("%w: unknown type '%s'", ErrUnsupportedValue, typ)
	}
}
