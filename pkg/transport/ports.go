// Copyright (C) 2026 RW Labs. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package transport

import (
	"fmt"
	"runtime"
	"strings"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

// PortInfo describes one serial port the OS exposes.
type PortInfo struct {
	Name         string `json:"name" yaml:"name"`
	IsUSB        bool   `json:"usb" yaml:"usb"`
	VID          string `json:"vid,omitempty" yaml:"vid,omitempty"`
	PID          string `json:"pid,omitempty" yaml:"pid,omitempty"`
	SerialNumber string `json:"serialNumber,omitempty" yaml:"serialNumber,omitempty"`
	Product      string `json:"product,omitempty" yaml:"product,omitempty"`
}

func (p PortInfo) String() string {
	if !p.IsUSB {
		return p.Name
	}
	return fmt.Sprintf("%s (USB %s:%s %s)", p.Name, p.VID, p.PID, p.Product)
}

func (p PortInfo) Short() string {
	return p.Name
}

// ListPorts returns the serial ports in the order the OS lists them. That
// order is not stable across machines or reboots. Unless all is set, ports
// that cannot be an external device are filtered out.
func ListPorts(all bool) ([]PortInfo, error) {
	var ports []PortInfo
	details, err := enumerator.GetDetailedPortsList()
	if err == nil {
		for _, d := range details {
			ports = append(ports, PortInfo{
				Name:         d.Name,
				IsUSB:        d.IsUSB,
				VID:          d.VID,
				PID:          d.PID,
				SerialNumber: d.SerialNumber,
				Product:      d.Product,
			})
		}
	} else {
		names, err := serial.GetPortsList()
		if err != nil {
			return nil, fmt.Errorf("failed to list serial ports, reason: %w", err)
		}
		for _, name := range names {
			ports = append(ports, PortInfo{Name: name})
		}
	}
	if all {
		return ports, nil
	}
	return filterPorts(runtime.GOOS, ports), nil
}

// PortNames lists the names of ListPorts.
func PortNames(all bool) ([]string, error) {
	ports, err := ListPorts(all)
	if err != nil {
		return nil, err
	}
	res := make([]string, 0, len(ports))
	for _, p := range ports {
		res = append(res, p.Name)
	}
	return res, nil
}

func filterPorts(goos string, ports []PortInfo) []PortInfo {
	switch goos {
	case "darwin":
		return darwinFilterPorts(ports)
	case "linux":
		return linuxFilterPorts(ports)
	default:
		return ports
	}
}

// On macOS every device shows up twice, as /dev/tty.* and /dev/cu.*; only
// the call-up device can be opened without waiting for carrier detect.
func darwinFilterPorts(ports []PortInfo) []PortInfo {
	existing := map[string]struct{}{}
	for _, p := range ports {
		existing[p.Name] = struct{}{}
	}
	var res []PortInfo
	for _, p := range ports {
		if strings.Contains(p.Name, "Bluetooth") {
			continue
		}
		if strings.HasPrefix(p.Name, "/dev/cu") {
			res = append(res, p)
		} else if strings.HasPrefix(p.Name, "/dev/tty") {
			candidate := "/dev/cu" + strings.TrimPrefix(p.Name, "/dev/tty")
			if _, exists := existing[candidate]; !exists {
				res = append(res, p)
			}
		}
	}
	return res
}

func linuxFilterPorts(ports []PortInfo) []PortInfo {
	var res []PortInfo
	for _, p := range ports {
		if p.IsUSB || strings.Contains(p.Name, "ttyUSB") || strings.Contains(p.Name, "ttyACM") {
			res = append(res, p)
		}
	}
	return res
}
