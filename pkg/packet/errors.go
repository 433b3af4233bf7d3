// Copyright (C) 2026 RW Labs. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package packet

import "errors"

var (
	ErrInvalidKey       = errors.New("packet: invalid key")
	ErrKeyNotFound      = errors.New("packet: key not found")
	ErrTypeMismatch     = errors.New("packet: type mismatch")
	ErrUnsupportedValue = errors.New("packet: unsupported value")
	ErrCommandTooLong   = errors.New("packet: command too long")
	ErrPayloadTooLarge  = errors.New("packet: payload too large")
	ErrBadChecksum      = errors.New("packet: bad checksum")
	ErrBadMarker        = errors.New("packet: bad end marker")
	ErrTruncated        = errors.New("packet: truncated entry")
	ErrUnknownType      = errors.New("packet: unknown type tag")
)
