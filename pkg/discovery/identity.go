// Copyright (C) 2026 RW Labs. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

// Package discovery finds a device by probing serial ports with an
// identify request.
package discovery

import (
	"errors"
	"fmt"

	"github.com/coreos/go-semver/semver"

	"github.com/rwlabs/serialdevice/pkg/packet"
)

var (
	// ErrNotFound is returned when no port answered with the requested
	// class and type.
	ErrNotFound = errors.New("discovery: device not found")
	ErrNoReply  = errors.New("discovery: no identify reply")
	ErrBadReply = errors.New("discovery: malformed identify reply")
)

// Keys of the identify exchange.
const (
	KeyRequest      = "req"
	RequestIdentify = "idn"

	KeyClassID      = "cid"
	KeyTypeID       = "tid"
	KeyName         = "nam"
	KeyInfo         = "inf"
	KeySerial       = "ser"
	KeyVersionMajor = "vmj"
	KeyVersionMinor = "vmn"
	KeyVersionRev   = "vrv"
)

// Identity is what a device reports about itself.
type Identity struct {
	Port         string `json:"port" yaml:"port"`
	Name         string `json:"name" yaml:"name"`
	Info         string `json:"info" yaml:"info"`
	ClassID      uint16 `json:"classId" yaml:"classId"`
	TypeID       uint16 `json:"typeId" yaml:"typeId"`
	Serial       uint32 `json:"serial" yaml:"serial"`
	VersionMajor uint8  `json:"versionMajor" yaml:"versionMajor"`
	VersionMinor uint8  `json:"versionMinor" yaml:"versionMinor"`
	VersionRev   uint8  `json:"versionRev" yaml:"versionRev"`
}

func (id Identity) Version() *semver.Version {
	return &semver.Version{
		Major: int64(id.VersionMajor),
		Minor: int64(id.VersionMinor),
		Patch: int64(id.VersionRev),
	}
}

func (id Identity) Matches(classID, typeID uint16) bool {
	return id.ClassID == classID && id.TypeID == typeID
}

func (id Identity) String() string {
	return fmt.Sprintf("%s on %s (class 0x%04X, type 0x%04X, serial %d, v%s)",
		id.Name, id.Port, id.ClassID, id.TypeID, id.Serial, id.Version())
}

// IdentityFields builds the fields a device sends in reply to an identify
// request.
func IdentityFields(id Identity) *packet.FieldSet {
	fs := packet.NewFieldSet()
	// Keys are constants and the name/info are cut to the command limit, so
	// Set cannot fail here.
	fs.Set(KeyClassID, packet.Uint16(id.ClassID))
	fs.Set(KeyTypeID, packet.Uint16(id.TypeID))
	fs.Set(KeyName, packet.Command(truncate(id.Name)))
	fs.Set(KeyInfo, packet.Command(truncate(id.Info)))
	fs.Set(KeySerial, packet.Uint32(id.Serial))
	fs.Set(KeyVersionMajor, packet.Uint8(id.VersionMajor))
	fs.Set(KeyVersionMinor, packet.Uint8(id.VersionMinor))
	fs.Set(KeyVersionRev, packet.Uint8(id.VersionRev))
	return fs
}

func truncate(s string) string {
	if len(s) > packet.MaxCommandLen {
		return s[:packet.MaxCommandLen]
	}
	return s
}

// IsIdentifyReply reports whether fs looks like an answer to an identify
// request, as opposed to unrelated traffic.
func IsIdentifyReply(fs *packet.FieldSet) bool {
	_, ok := fs.Lookup(KeyClassID)
	return ok
}

// IsIdentifyRequest reports whether fs asks the device to identify itself.
func IsIdentifyRequest(fs *packet.FieldSet) bool {
	cmd, err := packet.Get[string](fs, KeyRequest)
	return err == nil && cmd == RequestIdentify
}

// ParseIdentity reads the reply fields into an Identity.
func ParseIdentity(port string, fs *packet.FieldSet) (*Identity, error) {
	id := &Identity{Port: port}
	var err error
	get := func(key string, f func(packet.Value) error) {
		if err != nil {
			return
		}
		v, e := fs.Get(key)
		if e == nil {
			e = f(v)
		}
		if e != nil {
			err = fmt.Errorf("%w: field '%s': %v", ErrBadReply, key, e)
		}
	}
	get(KeyClassID, func(v packet.Value) (e error) { id.ClassID, e = v.Uint16(); return })
	get(KeyTypeID, func(v packet.Value) (e error) { id.TypeID, e = v.Uint16(); return })
	get(KeyName, func(v packet.Value) (e error) { id.Name, e = v.Command(); return })
	get(KeyInfo, func(v packet.Value) (e error) { id.Info, e = v.Command(); return })
	get(KeySerial, func(v packet.Value) (e error) { id.Serial, e = v.Uint32(); return })
	get(KeyVersionMajor, func(v packet.Value) (e error) { id.VersionMajor, e = v.Uint8(); return })
	get(KeyVersionMinor, func(v packet.Value) (e error) { id.VersionMinor, e = v.Uint8(); return })
	get(KeyVersionRev, func(v packet.Value) (e error) { id.VersionRev, e = v.Uint8(); return })
	if err != nil {
		return nil, err
	}
	return id, nil
}
