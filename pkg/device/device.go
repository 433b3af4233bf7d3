// Copyright (C) 2026 RW Labs. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

// Package device is the application-facing session with one discovered
// device. A Device is driven from a single loop:
//
//	update -> read fields -> ClearData -> Add fields -> SendPacket
//
// It starts no goroutines and never waits for bytes that have not arrived.
// A Device is not safe for concurrent use.
package device

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/rwlabs/serialdevice/pkg/discovery"
	"github.com/rwlabs/serialdevice/pkg/metrics"
	"github.com/rwlabs/serialdevice/pkg/packet"
	"github.com/rwlabs/serialdevice/pkg/transport"
)

var (
	// ErrNotOpen is returned by I/O on a session whose device was never
	// found or that was closed.
	ErrNotOpen = errors.New("device: not open")
	// ErrSessionFailed is returned by every I/O call after the transport
	// failed. It wraps the original cause.
	ErrSessionFailed = errors.New("device: session failed")
)

type State int

const (
	StateSearching State = iota
	StateFound
	// StateNotFound means discovery ended without a session: every
	// candidate port was tried, the ports could not be listed, or the
	// context ended the scan early. Err tells these apart.
	StateNotFound
	StateError
)

func (s State) String() string {
	switch s {
	case StateSearching:
		return "searching"
	case StateFound:
		return "found"
	case StateNotFound:
		return "not found"
	case StateError:
		return "error"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

const readChunk = 512

type options struct {
	log     zerolog.Logger
	metrics *metrics.Metrics
	scanner *discovery.Scanner
	timeout time.Duration
	mode    transport.Mode
}

type Option func(*options)

func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.log = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithScanner replaces the default scanner used by Open.
func WithScanner(s *discovery.Scanner) Option {
	return func(o *options) { o.scanner = s }
}

// WithTimeout sets how long each port gets to answer during Open.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithMode sets the serial settings of the default scanner.
func WithMode(m transport.Mode) Option {
	return func(o *options) { o.mode = m }
}

func buildOptions(opts []Option) options {
	o := options{
		log:     zerolog.Nop(),
		timeout: discovery.DefaultTimeout,
		mode:    transport.DefaultMode(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.metrics == nil {
		o.metrics = metrics.New(nil)
	}
	return o
}

type Device struct {
	id       uuid.UUID
	state    State
	err      error
	closed   bool
	identity discovery.Identity
	t        transport.Transport

	dec       *packet.Decoder
	stats     packet.Stats
	in        *packet.FieldSet
	available bool
	out       *packet.FieldSet
	buf       []byte

	log     zerolog.Logger
	metrics *metrics.Metrics
}

func newDevice(o options) *Device {
	id := uuid.New()
	return &Device{
		id:      id,
		state:   StateSearching,
		dec:     packet.NewDecoder(),
		in:      packet.NewFieldSet(),
		out:     packet.NewFieldSet(),
		buf:     make([]byte, readChunk),
		log:     o.log.With().Str("session", id.String()).Logger(),
		metrics: o.metrics,
	}
}

// Open scans all ports for a device of the given class and type. The
// returned Device is never nil; check IsFound or Err for the outcome.
//
// Without a match the state is StateNotFound. Err then wraps
// discovery.ErrNotFound when every port was tried, or is the context's
// error when ctx ended the scan first.
func Open(ctx context.Context, classID, typeID uint16, opts ...Option) *Device {
	o := buildOptions(opts)
	d := newDevice(o)
	scanner := o.scanner
	if scanner == nil {
		scanner = discovery.NewScanner(
			discovery.WithLogger(d.log),
			discovery.WithMode(o.mode),
			discovery.WithMetrics(o.metrics),
		)
	}
	match, err := scanner.FindDevice(ctx, classID, typeID, o.timeout)
	if err != nil {
		d.state = StateNotFound
		d.err = err
		if ctx.Err() != nil {
			d.log.Debug().Err(err).Msg("scan interrupted")
		} else {
			d.log.Warn().Err(err).Msg("device not found")
		}
		return d
	}
	d.attach(match.Identity, match.Transport)
	return d
}

// New starts a session on a transport that is already open and whose
// identity is known.
func New(id discovery.Identity, t transport.Transport, opts ...Option) *Device {
	d := newDevice(buildOptions(opts))
	d.attach(id, t)
	return d
}

func (d *Device) attach(id discovery.Identity, t transport.Transport) {
	d.identity = id
	d.t = t
	d.state = StateFound
	d.log = d.log.With().Str("port", id.Port).Logger()
	d.metrics.Open.Set(1)
	d.log.Debug().Stringer("identity", id).Msg("session open")
}

// fail moves the session to StateError. The transport is closed and every
// later I/O call returns ErrSessionFailed.
func (d *Device) fail(err error) error {
	d.state = StateError
	d.err = err
	d.metrics.Open.Set(0)
	if d.t != nil {
		d.t.Close()
	}
	d.log.Error().Err(err).Msg("transport failed")
	return fmt.Errorf("%w: %w", ErrSessionFailed, err)
}

func (d *Device) usable() error {
	switch {
	case d.state == StateError:
		return fmt.Errorf("%w: %w", ErrSessionFailed, d.err)
	case d.state != StateFound || d.closed:
		return ErrNotOpen
	}
	return nil
}

func (d *Device) ID() uuid.UUID { return d.id }
func (d *Device) State() State  { return d.state }

// Err returns why the session is not found or failed.
func (d *Device) Err() error { return d.err }

// IsFound reports whether discovery located the device. It stays true after
// a later transport failure.
func (d *Device) IsFound() bool {
	return d.state == StateFound || d.state == StateError
}

func (d *Device) IsOpen() bool {
	return d.state == StateFound && !d.closed
}

func (d *Device) Identity() discovery.Identity { return d.identity }
func (d *Device) PortName() string             { return d.identity.Port }
func (d *Device) Name() string                 { return d.identity.Name }
func (d *Device) Info() string                 { return d.identity.Info }
func (d *Device) ClassID() uint16              { return d.identity.ClassID }
func (d *Device) TypeID() uint16               { return d.identity.TypeID }
func (d *Device) Serial() uint32               { return d.identity.Serial }
func (d *Device) VersionMajor() uint8          { return d.identity.VersionMajor }
func (d *Device) VersionMinor() uint8          { return d.identity.VersionMinor }
func (d *Device) VersionRev() uint8            { return d.identity.VersionRev }

// Update drains the bytes the transport has buffered. Each complete frame
// replaces the inbound fields; fields are never merged across frames.
// Framing errors are absorbed. Only transport errors are returned.
func (d *Device) Update() error {
	if err := d.usable(); err != nil {
		return err
	}
	for {
		avail, err := d.t.BytesAvailable()
		if err != nil {
			return d.fail(err)
		}
		if avail == 0 {
			break
		}
		n, err := d.t.Read(d.buf)
		if err != nil {
			return d.fail(err)
		}
		if n == 0 {
			break
		}
		d.metrics.BytesRead.Add(float64(n))
		for _, fs := range d.dec.Feed(d.buf[:n]) {
			d.in = fs
			d.available = true
			d.metrics.FramesReceived.Inc()
		}
	}
	d.recordStats()
	return nil
}

func (d *Device) recordStats() {
	s := d.dec.Stats()
	if s.Resyncs > d.stats.Resyncs {
		d.metrics.Resyncs.Add(float64(s.Resyncs - d.stats.Resyncs))
		d.log.Debug().Err(d.dec.LastError).Uint64("resyncs", s.Resyncs).Msg("resynchronized")
	}
	if s.MalformedFrames > d.stats.MalformedFrames {
		d.metrics.MalformedFrames.Add(float64(s.MalformedFrames - d.stats.MalformedFrames))
	}
	d.stats = s
}

// DecoderStats returns the framing counters of this session.
func (d *Device) DecoderStats() packet.Stats {
	return d.dec.Stats()
}

// Available reports whether a frame arrived since the last ClearData.
func (d *Device) Available() bool {
	return d.available
}

// FindIndex returns the position of key in the inbound fields, or -1.
// Position 0 is a valid index; prefer Lookup.
func (d *Device) FindIndex(key string) int {
	return d.in.Index(key)
}

func (d *Device) Lookup(key string) (int, bool) {
	return d.in.Lookup(key)
}

func (d *Device) Fields() []packet.Field {
	return d.in.Fields()
}

func (d *Device) Value(key string) (packet.Value, error) {
	return d.in.Get(key)
}

func (d *Device) Uint8(key string) (uint8, error)   { return Get[uint8](d, key) }
func (d *Device) Uint16(key string) (uint16, error) { return Get[uint16](d, key) }
func (d *Device) Uint32(key string) (uint32, error) { return Get[uint32](d, key) }
func (d *Device) Int32(key string) (int32, error)   { return Get[int32](d, key) }
func (d *Device) Command(key string) (string, error) {
	return Get[string](d, key)
}

// Get reads an inbound field as T. It fails with packet.ErrKeyNotFound or
// packet.ErrTypeMismatch.
func Get[T packet.Scalar](d *Device, key string) (T, error) {
	return packet.Get[T](d.in, key)
}

// ClearData empties the inbound fields and resets Available.
func (d *Device) ClearData() {
	d.in = packet.NewFieldSet()
	d.available = false
}

// Add queues key for the next SendPacket, overwriting a queued value of
// the same key. A string is sent as a command; integers must be one of
// uint8, uint16, uint32 or int32.
func (d *Device) Add(key string, value any) error {
	v, err := packet.ValueOf(value)
	if err != nil {
		return err
	}
	return d.out.Set(key, v)
}

// Pending returns the number of queued outbound fields.
func (d *Device) Pending() int {
	return d.out.Len()
}

// Outbound returns the queued fields in send order.
func (d *Device) Outbound() []packet.Field {
	return d.out.Fields()
}

// SendPacket writes all queued fields as one frame and empties the queue.
// If the frame cannot be encoded or written, the queue is kept. With an
// empty queue nothing is sent.
func (d *Device) SendPacket() error {
	if err := d.usable(); err != nil {
		return err
	}
	if d.out.Len() == 0 {
		return nil
	}
	frame, err := packet.Encode(d.out)
	if err != nil {
		return err
	}
	if err := transport.WriteAll(d.t, frame); err != nil {
		return d.fail(err)
	}
	d.metrics.BytesWritten.Add(float64(len(frame)))
	d.metrics.FramesSent.Inc()
	d.log.Debug().Stringer("fields", d.out).Msg("sent")
	d.out.Reset()
	return nil
}

// Close releases the transport. A session cannot be reopened.
func (d *Device) Close() error {
	if d.closed || d.t == nil {
		d.closed = true
		return nil
	}
	d.closed = true
	if d.state == StateFound {
		d.metrics.Open.Set(0)
	}
	return d.t.Close()
}
