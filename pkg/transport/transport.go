// Copyright (C) 2026 RW Labs. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

// Package transport provides the byte-stream connection to a device.
package transport

import (
	"errors"
	"fmt"
	"os"

	"go.bug.st/serial"
)

var (
	ErrPortNotFound     = errors.New("transport: port not found")
	ErrPermissionDenied = errors.New("transport: permission denied")
	ErrPortBusy         = errors.New("transport: port busy")
	ErrNotOpen          = errors.New("transport: not open")
	ErrAlreadyOpen      = errors.New("transport: already open")
	// ErrDisconnected is fatal: the device went away or the port failed.
	ErrDisconnected = errors.New("transport: disconnected")
)

// Transport is a single non-blocking serial connection. Read and Write
// never wait for data that has not arrived; callers poll.
type Transport interface {
	Open(port string) error
	Close() error
	// BytesAvailable returns how many bytes Read can return right now.
	BytesAvailable() (int, error)
	// Read returns between 0 and len(p) bytes.
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	PortName() string
}

// WriteAll hands all of data to t, retrying short writes.
func WriteAll(t Transport, data []byte) error {
	for len(data) > 0 {
		n, err := t.Write(data)
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("%w: zero-length write", ErrDisconnected)
		}
		data = data[n:]
	}
	return nil
}

// mapError turns errors of the serial library into the sentinels of this
// package. Errors that are not recognized are treated as a lost device.
func mapError(port string, err error) error {
	if err == nil {
		return nil
	}
	var portErr *serial.PortError
	if errors.As(err, &portErr) {
		switch portErr.Code() {
		case serial.PortNotFound:
			return fmt.Errorf("%w: '%s'", ErrPortNotFound, port)
		case serial.PermissionDenied:
			return fmt.Errorf("%w: '%s'", ErrPermissionDenied, port)
		case serial.PortBusy:
			return fmt.Errorf("%w: '%s'", ErrPortBusy, port)
		}
	}
	if os.IsNotExist(err) {
		return fmt.Errorf("%w: '%s'", ErrPortNotFound, port)
	}
	if os.IsPermission(err) {
		return fmt.Errorf("%w: '%s'", ErrPermissionDenied, port)
	}
	return fmt.Errorf("%w: '%s', reason: %v", ErrDisconnected, port, err)
}
