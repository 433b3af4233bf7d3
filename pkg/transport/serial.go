// Copyright (C) 2026 RW Labs. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package transport

import (
	"fmt"
	"strings"
	"time"

	"go.bug.st/serial"
)

// Mode is the line configuration agreed with the device firmware.
type Mode struct {
	BaudRate int    `mapstructure:"baud" yaml:"baud" json:"baud"`
	DataBits int    `mapstructure:"data_bits" yaml:"data_bits" json:"data_bits"`
	Parity   string `mapstructure:"parity" yaml:"parity" json:"parity"`
	StopBits int    `mapstructure:"stop_bits" yaml:"stop_bits" json:"stop_bits"`
}

// DefaultMode is 115200 baud, 8N1.
func DefaultMode() Mode {
	return Mode{
		BaudRate: 115200,
		DataBits: 8,
		Parity:   "none",
		StopBits: 1,
	}
}

func (m Mode) serialMode() (*serial.Mode, error) {
	res := &serial.Mode{
		BaudRate: m.BaudRate,
		DataBits: m.DataBits,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	if res.BaudRate == 0 {
		res.BaudRate = 115200
	}
	if res.DataBits == 0 {
		res.DataBits = 8
	}
	switch strings.ToLower(m.Parity) {
	case "", "none":
	case "even":
		res.Parity = serial.EvenParity
	case "odd":
		res.Parity = serial.OddParity
	default:
		return nil, fmt.Errorf("unknown parity '%s'", m.Parity)
	}
	switch m.StopBits {
	case 0, 1:
	case 2:
		res.StopBits = serial.TwoStopBits
	default:
		return nil, fmt.Errorf("unsupported stop bits %d", m.StopBits)
	}
	return res, nil
}

func (m Mode) String() string {
	parity := "N"
	switch strings.ToLower(m.Parity) {
	case "even":
		parity = "E"
	case "odd":
		parity = "O"
	}
	return fmt.Sprintf("%d %d%s%d", m.BaudRate, m.DataBits, parity, m.StopBits)
}

const readChunk = 4096

// Serial is a Transport on a local serial port.
type Serial struct {
	mode    Mode
	port    serial.Port
	name    string
	pending []byte
	scratch []byte
}

func NewSerial(mode Mode) *Serial {
	return &Serial{
		mode:    mode,
		scratch: make([]byte, readChunk),
	}
}

// OpenSerial opens port with the given mode.
func OpenSerial(port string, mode Mode) (Transport, error) {
	s := NewSerial(mode)
	if err := s.Open(port); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Serial) Open(port string) error {
	if s.port != nil {
		return ErrAlreadyOpen
	}
	mode, err := s.mode.serialMode()
	if err != nil {
		return err
	}
	p, err := serial.Open(port, mode)
	if err != nil {
		return mapError(port, err)
	}
	// A zero timeout makes Read return whatever is already buffered.
	if err := p.SetReadTimeout(0); err != nil {
		p.Close()
		return fmt.Errorf("failed to configure '%s', reason: %w", port, err)
	}
	s.port = p
	s.name = port
	s.pending = s.pending[:0]
	return nil
}

func (s *Serial) Close() error {
	if s.port == nil {
		return nil
	}
	err := s.port.Close()
	s.port = nil
	s.pending = s.pending[:0]
	return err
}

func (s *Serial) PortName() string {
	return s.name
}

// poll moves whatever the OS has buffered into s.pending.
func (s *Serial) poll() error {
	if s.port == nil {
		return ErrNotOpen
	}
	n, err := s.port.Read(s.scratch)
	if err != nil {
		return mapError(s.name, err)
	}
	s.pending = append(s.pending, s.scratch[:n]...)
	return nil
}

func (s *Serial) BytesAvailable() (int, error) {
	if err := s.poll(); err != nil {
		return len(s.pending), err
	}
	return len(s.pending), nil
}

func (s *Serial) Read(p []byte) (int, error) {
	if len(s.pending) == 0 {
		if err := s.poll(); err != nil {
			return 0, err
		}
	}
	n := copy(p, s.pending)
	s.pending = s.pending[:copy(s.pending, s.pending[n:])]
	return n, nil
}

func (s *Serial) Write(p []byte) (int, error) {
	if s.port == nil {
		return 0, ErrNotOpen
	}
	n, err := s.port.Write(p)
	if err != nil {
		return n, mapError(s.name, err)
	}
	return n, nil
}

// Reset reboots boards that wire DTR/RTS to their reset line, and drops
// anything received before the reboot.
func (s *Serial) Reset() error {
	if s.port == nil {
		return ErrNotOpen
	}
	if err := s.port.SetDTR(false); err != nil {
		return mapError(s.name, err)
	}
	if err := s.port.SetRTS(true); err != nil {
		return mapError(s.name, err)
	}
	time.Sleep(100 * time.Millisecond)
	if err := s.port.SetRTS(false); err != nil {
		return mapError(s.name, err)
	}
	s.pending = s.pending[:0]
	return mapError(s.name, s.port.ResetInputBuffer())
}
