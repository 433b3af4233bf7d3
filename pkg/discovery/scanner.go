// Copyright (C) 2026 RW Labs. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package discovery

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/rwlabs/serialdevice/pkg/metrics"
	"github.com/rwlabs/serialdevice/pkg/transport"
)

// DefaultTimeout is how long a port gets to answer the identify request.
const DefaultTimeout = 1500 * time.Millisecond

type PortLister func() ([]string, error)
type Opener func(port string) (transport.Transport, error)

// Match is a port that answered with the requested class and type. The
// transport is left open and belongs to the caller.
type Match struct {
	Identity  Identity
	Transport transport.Transport
}

type Scanner struct {
	list      PortLister
	open      Opener
	mode      transport.Mode
	allPorts  bool
	preferred string
	reset     bool
	progress  func(port string, i, n int)
	metrics   *metrics.Metrics
	log       zerolog.Logger
	handshake Handshake
}

type Option func(*Scanner)

func WithLister(l PortLister) Option {
	return func(s *Scanner) { s.list = l }
}

func WithOpener(o Opener) Option {
	return func(s *Scanner) { s.open = o }
}

func WithMode(m transport.Mode) Option {
	return func(s *Scanner) { s.mode = m }
}

// WithAllPorts disables the per-OS filtering of the port list.
func WithAllPorts(all bool) Option {
	return func(s *Scanner) { s.allPorts = all }
}

func WithLogger(l zerolog.Logger) Option {
	return func(s *Scanner) { s.log = l }
}

// WithPreferredPort makes the scanner try port first. The rest of the
// ports keep the order the OS gave them.
func WithPreferredPort(port string) Option {
	return func(s *Scanner) { s.preferred = port }
}

// WithProgress registers a callback that runs before each port is probed.
func WithProgress(f func(port string, i, n int)) Option {
	return func(s *Scanner) { s.progress = f }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Scanner) { s.metrics = m }
}

// WithResetOnOpen reboots the board through DTR/RTS right after opening,
// for transports that support it.
func WithResetOnOpen(reset bool) Option {
	return func(s *Scanner) { s.reset = reset }
}

func WithPollInterval(d time.Duration) Option {
	return func(s *Scanner) { s.handshake.PollInterval = d }
}

func NewScanner(opts ...Option) *Scanner {
	s := &Scanner{
		mode: transport.DefaultMode(),
		log:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.list == nil {
		s.list = func() ([]string, error) { return transport.PortNames(s.allPorts) }
	}
	if s.open == nil {
		s.open = func(port string) (transport.Transport, error) { return transport.OpenSerial(port, s.mode) }
	}
	if s.metrics == nil {
		s.metrics = metrics.New(nil)
	}
	s.handshake.Logger = s.log
	return s
}

// Ports returns the ports FindDevice would try, in order.
func (s *Scanner) Ports() ([]string, error) {
	ports, err := s.list()
	if err != nil {
		return nil, fmt.Errorf("failed to list ports, reason: %w", err)
	}
	if s.preferred == "" {
		return ports, nil
	}
	res := []string{s.preferred}
	for _, p := range ports {
		if p != s.preferred {
			res = append(res, p)
		}
	}
	return res, nil
}

type resetter interface {
	Reset() error
}

// FindDevice probes every port once and returns the first one whose
// identify reply carries classID and typeID. Ports that fail to open or
// answer something else are closed and skipped.
func (s *Scanner) FindDevice(ctx context.Context, classID, typeID uint16, timeoutPerPort time.Duration) (*Match, error) {
	ports, err := s.Ports()
	if err != nil {
		return nil, err
	}
	log := s.log.With().
		Str("class", fmt.Sprintf("0x%04X", classID)).
		Str("type", fmt.Sprintf("0x%04X", typeID)).
		Logger()
	log.Debug().Strs("ports", ports).Msg("scanning")

	for i, port := range ports {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if s.progress != nil {
			s.progress(port, i, len(ports))
		}
		match, err := s.probe(ctx, port, classID, typeID, timeoutPerPort, log)
		if err != nil {
			return nil, err
		}
		if match != nil {
			return match, nil
		}
	}
	return nil, fmt.Errorf("%w: class 0x%04X, type 0x%04X, %d ports tried", ErrNotFound, classID, typeID, len(ports))
}

// probe returns a nil match and a nil error when port is not the device.
// Only context errors abort the scan.
func (s *Scanner) probe(ctx context.Context, port string, classID, typeID uint16, timeout time.Duration, log zerolog.Logger) (*Match, error) {
	log = log.With().Str("port", port).Logger()
	t, err := s.open(port)
	if err != nil {
		log.Debug().Err(err).Msg("failed to open port")
		s.metrics.Probe(metrics.ProbeOpenFailed)
		return nil, nil
	}
	if s.reset {
		if r, ok := t.(resetter); ok {
			if err := r.Reset(); err != nil {
				log.Debug().Err(err).Msg("failed to reset device")
			}
		}
	}

	id, err := s.handshake.Identify(ctx, t, timeout)
	if err != nil {
		t.Close()
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if IsNoMatch(err) {
			s.metrics.Probe(metrics.ProbeNoReply)
		} else {
			s.metrics.Probe(metrics.ProbeOpenFailed)
		}
		log.Debug().Err(err).Msg("no identify reply")
		return nil, nil
	}
	if !id.Matches(classID, typeID) {
		t.Close()
		s.metrics.Probe(metrics.ProbeMismatch)
		log.Debug().Stringer("identity", id).Msg("other device")
		return nil, nil
	}
	s.metrics.Probe(metrics.ProbeMatch)
	log.Info().Stringer("identity", id).Msg("found device")
	return &Match{Identity: *id, Transport: t}, nil
}
