// Copyright (C) 2026 RW Labs. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package packet

import (
	"fmt"
	"strings"
)

// KeyLen is the fixed length of a field key on the wire.
const KeyLen = 3

// Field is a key-tagged typed value.
type Field struct {
	Key   string
	Value Value
}

func (f Field) String() string {
	return f.Key + "=" + f.Value.String()
}

// ValidKey reports whether key can be put on the wire: exactly KeyLen
// printable ASCII characters.
func ValidKey(key string) bool {
	if len(key) != KeyLen {
		return false
	}
	for i := 0; i < len(key); i++ {
		if key[i] <= ' ' || key[i] > '~' {
			return false
		}
	}
	return true
}

func checkKey(key string) error {
	if !ValidKey(key) {
		return fmt.Errorf("%w: '%s' must be %d printable characters", ErrInvalidKey, key, KeyLen)
	}
	return nil
}

// FieldSet is an insertion-ordered set of fields with unique keys.
// Overwriting a key keeps its original position.
type FieldSet struct {
	fields []Field
	index  map[string]int
}

func NewFieldSet() *FieldSet {
	return &FieldSet{index: map[string]int{}}
}

func (s *FieldSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.fields)
}

// Set inserts or overwrites key.
func (s *FieldSet) Set(key string, v Value) error {
	if err := checkKey(key); err != nil {
		return err
	}
	if !v.typ.Valid() {
		return ErrUnsupportedValue
	}
	if v.typ == TypeCommand && len(v.text) > MaxCommandLen {
		return fmt.Errorf("%w: %d > %d", ErrCommandTooLong, len(v.text), MaxCommandLen)
	}
	if s.index == nil {
		s.index = map[string]int{}
	}
	if i, ok := s.index[key]; ok {
		s.fields[i].Value = v
		return nil
	}
	s.index[key] = len(s.fields)
	s.fields = append(s.fields, Field{Key: key, Value: v})
	return nil
}

// Index returns the position of key, or -1 when it is absent.
func (s *FieldSet) Index(key string) int {
	if i, ok := s.Lookup(key); ok {
		return i
	}
	return -1
}

// Lookup returns the position of key and whether it is present.
func (s *FieldSet) Lookup(key string) (int, bool) {
	if s == nil {
		return 0, false
	}
	i, ok := s.index[key]
	return i, ok
}

func (s *FieldSet) Get(key string) (Value, error) {
	i, ok := s.Lookup(key)
	if !ok {
		return Value{}, fmt.Errorf("%w: '%s'", ErrKeyNotFound, key)
	}
	return s.fields[i].Value, nil
}

// At returns the field at position i.
func (s *FieldSet) At(i int) Field {
	return s.fields[i]
}

// Fields returns a copy of the fields in insertion order.
func (s *FieldSet) Fields() []Field {
	if s == nil {
		return nil
	}
	res := make([]Field, len(s.fields))
	copy(res, s.fields)
	return res
}

func (s *FieldSet) Reset() {
	s.fields = s.fields[:0]
	for k := range s.index {
		delete(s.index, k)
	}
}

func (s *FieldSet) Clone() *FieldSet {
	res := NewFieldSet()
	for _, f := range s.Fields() {
		res.index[f.Key] = len(res.fields)
		res.fields = append(res.fields, f)
	}
	return res
}

// Equal reports whether both sets hold the same fields in the same order.
func (s *FieldSet) Equal(o *FieldSet) bool {
	if s.Len() != o.Len() {
		return false
	}
	for i := 0; i < s.Len(); i++ {
		if s.fields[i] != o.fields[i] {
			return false
		}
	}
	return true
}

// Map returns the fields keyed by name with their natural Go values.
func (s *FieldSet) Map() map[string]any {
	res := map[string]any{}
	for _, f := range s.Fields() {
		res[f.Key] = f.Value.Interface()
	}
	return res
}

func (s *FieldSet) String() string {
	parts := make([]string, 0, s.Len())
	for _, f := range s.Fields() {
		parts = append(parts, f.String())
	}
	return "{" + strings.Join(parts, " ") + "}"
}

// Get reads key from s as T.
func Get[T Scalar](s *FieldSet, key string) (T, error) {
	v, err := s.Get(key)
	if err != nil {
		var zero T
		return zero, err
	}
	return As[T](v)
}
