// Copyright (C) 2026 RW Labs. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

// Package transporttest provides an in-memory Transport for tests.
package transporttest

import (
	"github.com/rwlabs/serialdevice/pkg/transport"
)

// Port is an in-memory transport.Transport. Bytes queued with Inject are
// returned by Read; bytes passed to Write are recorded in Written.
type Port struct {
	Name string

	// MaxRead limits how many bytes a single Read returns, to simulate data
	// trickling in. Zero means no limit.
	MaxRead int
	// Respond, if set, is called with every write; the returned bytes are
	// queued for reading.
	Respond func(written []byte) []byte

	OpenErr  error
	ReadErr  error
	WriteErr error

	Written []byte
	Writes  int
	Opened  int
	Closed  int

	open bool
	rx   []byte
}

func New(name string) *Port {
	return &Port{Name: name}
}

// Inject queues bytes as if the device had sent them.
func (p *Port) Inject(b []byte) {
	p.rx = append(p.rx, b...)
}

func (p *Port) IsOpen() bool {
	return p.open
}

func (p *Port) Open(port string) error {
	if p.OpenErr != nil {
		return p.OpenErr
	}
	if p.open {
		return transport.ErrAlreadyOpen
	}
	if port != "" {
		p.Name = port
	}
	p.open = true
	p.Opened++
	return nil
}

func (p *Port) Close() error {
	if p.open {
		p.Closed++
	}
	p.open = false
	return nil
}

func (p *Port) PortName() string {
	return p.Name
}

func (p *Port) BytesAvailable() (int, error) {
	if !p.open {
		return 0, transport.ErrNotOpen
	}
	if p.ReadErr != nil {
		return 0, p.ReadErr
	}
	return len(p.rx), nil
}

func (p *Port) Read(b []byte) (int, error) {
	if !p.open {
		return 0, transport.ErrNotOpen
	}
	if p.ReadErr != nil {
		return 0, p.ReadErr
	}
	n := len(b)
	if p.MaxRead > 0 && n > p.MaxRead {
		n = p.MaxRead
	}
	n = copy(b[:n], p.rx)
	p.rx = p.rx[n:]
	return n, nil
}

func (p *Port) Write(b []byte) (int, error) {
	if !p.open {
		return 0, transport.ErrNotOpen
	}
	if p.WriteErr != nil {
		return 0, p.WriteErr
	}
	p.Writes++
	p.Written = append(p.Written, b...)
	if p.Respond != nil {
		p.Inject(p.Respond(append([]byte(nil), b...)))
	}
	return len(b), nil
}
