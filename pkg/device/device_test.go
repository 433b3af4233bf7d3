// Copyright (C) 2026 RW Labs. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package device

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rwlabs/serialdevice/pkg/discovery"
	"github.com/rwlabs/serialdevice/pkg/metrics"
	"github.com/rwlabs/serialdevice/pkg/packet"
	"github.com/rwlabs/serialdevice/pkg/transport"
	"github.com/rwlabs/serialdevice/pkg/transport/transporttest"
)

var widget = discovery.Identity{
	Port:         "/dev/ttyUSB0",
	Name:         "Widget",
	Info:         "bench unit",
	ClassID:      0x0A0A,
	TypeID:       0x0D0E,
	Serial:       12345,
	VersionMajor: 1,
	VersionMinor: 2,
	VersionRev:   3,
}

func frame(t *testing.T, kv ...any) []byte {
	fs := packet.NewFieldSet()
	for i := 0; i < len(kv); i += 2 {
		v, err := packet.ValueOf(kv[i+1])
		require.NoError(t, err)
		require.NoError(t, fs.Set(kv[i].(string), v))
	}
	b, err := packet.Encode(fs)
	require.NoError(t, err)
	return b
}

func session(t *testing.T, m *metrics.Metrics) (*Device, *transporttest.Port) {
	p := transporttest.New(widget.Port)
	require.NoError(t, p.Open(widget.Port))
	opts := []Option{}
	if m != nil {
		opts = append(opts, WithMetrics(m))
	}
	return New(widget, p, opts...), p
}

func TestSendPacket(t *testing.T) {
	d, p := session(t, nil)
	require.NoError(t, d.Add("pwm", "set"))
	require.NoError(t, d.Add("lvl", uint8(200)))
	assert.Equal(t, 2, d.Pending())

	require.NoError(t, d.SendPacket())
	assert.Equal(t, 0, d.Pending())
	assert.Equal(t, 1, p.Writes)
	assert.Equal(t, []byte{
		0x02, 0x0d, 0x00,
		'p', 'w', 'm', 0x05, 0x03, 's', 'e', 't',
		'l', 'v', 'l', 0x01, 0xc8,
		0xcc, 0x03,
	}, p.Written)

	frames := packet.NewDecoder().Feed(p.Written)
	require.Len(t, frames, 1)
	assert.Equal(t, []packet.Field{
		{Key: "pwm", Value: packet.Command("set")},
		{Key: "lvl", Value: packet.Uint8(200)},
	}, frames[0].Fields())
}

func TestSendPacketEmpty(t *testing.T) {
	d, p := session(t, nil)
	require.NoError(t, d.SendPacket())
	assert.Equal(t, 0, p.Writes)
}

func TestAddOverwrites(t *testing.T) {
	d, _ := session(t, nil)
	require.NoError(t, d.Add("led", "set"))
	require.NoError(t, d.Add("sta", uint8(1)))
	require.NoError(t, d.Add("led", "get"))
	assert.Equal(t, []packet.Field{
		{Key: "led", Value: packet.Command("get")},
		{Key: "sta", Value: packet.Uint8(1)},
	}, d.Outbound())
}

func TestAddRejects(t *testing.T) {
	d, _ := session(t, nil)
	assert.ErrorIs(t, d.Add("lvl", 200), packet.ErrUnsupportedValue)
	assert.ErrorIs(t, d.Add("level", uint8(1)), packet.ErrInvalidKey)
	assert.Equal(t, 0, d.Pending())
}

func TestUpdateAvailable(t *testing.T) {
	d, p := session(t, nil)
	p.Inject(frame(t, "pho", uint16(512)))

	require.NoError(t, d.Update())
	assert.True(t, d.Available())
	pho, err := Get[uint16](d, "pho")
	require.NoError(t, err)
	assert.Equal(t, uint16(512), pho)

	d.ClearData()
	require.NoError(t, d.Update())
	assert.False(t, d.Available())
	assert.Equal(t, -1, d.FindIndex("pho"))
	assert.Empty(t, d.Fields())
}

func TestUpdateReplacesFields(t *testing.T) {
	d, p := session(t, nil)
	p.MaxRead = 5
	p.Inject(frame(t, "pho", uint16(1), "pot", uint16(2)))
	p.Inject(frame(t, "rng", uint32(70000)))

	require.NoError(t, d.Update())
	assert.True(t, d.Available())
	assert.Equal(t, []packet.Field{{Key: "rng", Value: packet.Uint32(70000)}}, d.Fields())
	_, err := d.Uint16("pho")
	assert.ErrorIs(t, err, packet.ErrKeyNotFound)
}

func TestUpdateKeepsPartialFrame(t *testing.T) {
	d, p := session(t, nil)
	f := frame(t, "but", uint8(1))
	p.Inject(f[:4])
	require.NoError(t, d.Update())
	assert.False(t, d.Available())

	p.Inject(f[4:])
	require.NoError(t, d.Update())
	assert.True(t, d.Available())
	v, err := d.Uint8("but")
	require.NoError(t, err)
	assert.Equal(t, uint8(1), v)
}

func TestFindIndexAndLookup(t *testing.T) {
	d, p := session(t, nil)
	p.Inject(frame(t, "enc", int32(-7), "but", uint8(0)))
	require.NoError(t, d.Update())

	assert.Equal(t, 0, d.FindIndex("enc"))
	assert.Equal(t, 1, d.FindIndex("but"))
	assert.Equal(t, -1, d.FindIndex("pho"))

	i, ok := d.Lookup("enc")
	assert.True(t, ok)
	assert.Equal(t, 0, i)
	_, ok = d.Lookup("pho")
	assert.False(t, ok)

	enc, err := d.Int32("enc")
	require.NoError(t, err)
	assert.Equal(t, int32(-7), enc)
}

func TestGetErrors(t *testing.T) {
	d, p := session(t, nil)
	p.Inject(frame(t, "but", uint8(1), "rnd", "val"))
	require.NoError(t, d.Update())

	_, err := d.Uint32("but")
	assert.ErrorIs(t, err, packet.ErrTypeMismatch)
	_, err = Get[string](d, "but")
	assert.ErrorIs(t, err, packet.ErrTypeMismatch)
	_, err = d.Uint8("rnd")
	assert.ErrorIs(t, err, packet.ErrTypeMismatch)
	_, err = d.Uint8("pot")
	assert.ErrorIs(t, err, packet.ErrKeyNotFound)
	_, err = d.Value("pot")
	assert.ErrorIs(t, err, packet.ErrKeyNotFound)

	cmd, err := d.Command("rnd")
	require.NoError(t, err)
	assert.Equal(t, "val", cmd)

	// Usage errors leave the session alone.
	assert.True(t, d.IsOpen())
	assert.Equal(t, StateFound, d.State())
}

func TestUpdateAbsorbsCorruption(t *testing.T) {
	m := metrics.New(nil)
	d, p := session(t, m)
	bad := frame(t, "pho", uint16(3))
	bad[len(bad)-2] ^= 0xff
	p.Inject(bad)
	p.Inject(frame(t, "pho", uint16(4)))

	require.NoError(t, d.Update())
	v, err := d.Uint16("pho")
	require.NoError(t, err)
	assert.Equal(t, uint16(4), v)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FramesReceived))
	assert.GreaterOrEqual(t, testutil.ToFloat64(m.Resyncs), 1.0)
	assert.Equal(t, uint64(1), d.DecoderStats().Frames)
}

func TestTransportFailure(t *testing.T) {
	m := metrics.New(nil)
	d, p := session(t, m)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Open))

	p.ReadErr = transport.ErrDisconnected
	err := d.Update()
	assert.ErrorIs(t, err, ErrSessionFailed)
	assert.ErrorIs(t, err, transport.ErrDisconnected)
	assert.Equal(t, StateError, d.State())
	assert.False(t, d.IsOpen())
	assert.True(t, d.IsFound())
	assert.False(t, p.IsOpen())
	assert.Equal(t, 0.0, testutil.ToFloat64(m.Open))

	// Fails fast from now on, even if the port came back.
	p.ReadErr = nil
	require.NoError(t, p.Open(widget.Port))
	p.Inject(frame(t, "pho", uint16(1)))
	err = d.Update()
	assert.ErrorIs(t, err, ErrSessionFailed)
	assert.ErrorIs(t, err, transport.ErrDisconnected)
	assert.False(t, d.Available())

	require.NoError(t, d.Add("rnd", "get"))
	assert.ErrorIs(t, d.SendPacket(), ErrSessionFailed)
	assert.Equal(t, 0, p.Writes)
}

func TestSendFailureKeepsQueue(t *testing.T) {
	d, p := session(t, nil)
	p.WriteErr = errors.Join(transport.ErrDisconnected, errors.New("unplugged"))
	require.NoError(t, d.Add("led", "set"))
	require.NoError(t, d.Add("sta", uint8(1)))

	err := d.SendPacket()
	assert.ErrorIs(t, err, ErrSessionFailed)
	assert.Equal(t, 2, d.Pending())
	assert.Equal(t, StateError, d.State())
	assert.Empty(t, p.Written)
}

func TestSendEncodeFailureKeepsSession(t *testing.T) {
	d, p := session(t, nil)
	long := make([]byte, packet.MaxCommandLen)
	for i := range long {
		long[i] = 'x'
	}
	for _, key := range []string{"aaa", "bbb", "ccc", "ddd", "eee"} {
		require.NoError(t, d.Add(key, string(long)))
	}
	assert.ErrorIs(t, d.SendPacket(), packet.ErrPayloadTooLarge)
	assert.Equal(t, 5, d.Pending())
	assert.True(t, d.IsOpen())
	assert.Equal(t, 0, p.Writes)
}

func TestClose(t *testing.T) {
	d, p := session(t, nil)
	require.NoError(t, d.Close())
	assert.False(t, d.IsOpen())
	assert.False(t, p.IsOpen())
	assert.ErrorIs(t, d.Update(), ErrNotOpen)
	assert.ErrorIs(t, d.SendPacket(), ErrNotOpen)
	require.NoError(t, d.Close())
	assert.Equal(t, 1, p.Closed)
}

// deviceReplying answers identify requests with id.
func deviceReplying(t *testing.T, id discovery.Identity) func([]byte) []byte {
	reply, err := packet.Encode(discovery.IdentityFields(id))
	require.NoError(t, err)
	dec := packet.NewDecoder()
	return func(b []byte) []byte {
		for _, fs := range dec.Feed(b) {
			if discovery.IsIdentifyRequest(fs) {
				return reply
			}
		}
		return nil
	}
}

func TestOpen(t *testing.T) {
	other := widget
	other.ClassID = 0x0A0B
	ports := map[string]*transporttest.Port{
		"/dev/ttyACM0": {Respond: deviceReplying(t, other)},
		"/dev/ttyUSB0": {Respond: deviceReplying(t, widget)},
	}
	scanner := discovery.NewScanner(
		discovery.WithLister(func() ([]string, error) { return []string{"/dev/ttyACM0", "/dev/ttyUSB0"}, nil }),
		discovery.WithOpener(func(name string) (transport.Transport, error) {
			p := ports[name]
			return p, p.Open(name)
		}),
	)

	d := Open(context.Background(), 0x0A0A, 0x0D0E, WithScanner(scanner), WithTimeout(50*time.Millisecond))
	require.True(t, d.IsFound(), "%v", d.Err())
	assert.True(t, d.IsOpen())
	assert.Equal(t, StateFound, d.State())
	assert.NoError(t, d.Err())
	assert.NotEqual(t, uuid.Nil, d.ID())

	assert.Equal(t, "/dev/ttyUSB0", d.PortName())
	assert.Equal(t, "Widget", d.Name())
	assert.Equal(t, "bench unit", d.Info())
	assert.Equal(t, uint16(0x0A0A), d.ClassID())
	assert.Equal(t, uint16(0x0D0E), d.TypeID())
	assert.Equal(t, uint32(12345), d.Serial())
	assert.Equal(t, uint8(1), d.VersionMajor())
	assert.Equal(t, uint8(2), d.VersionMinor())
	assert.Equal(t, uint8(3), d.VersionRev())
	assert.False(t, ports["/dev/ttyACM0"].IsOpen())

	ports["/dev/ttyUSB0"].Inject(frame(t, "pot", uint16(1023)))
	require.NoError(t, d.Update())
	pot, err := d.Uint16("pot")
	require.NoError(t, err)
	assert.Equal(t, uint16(1023), pot)
}

func TestOpenNotFound(t *testing.T) {
	scanner := discovery.NewScanner(
		discovery.WithLister(func() ([]string, error) { return []string{"COM1"}, nil }),
		discovery.WithOpener(func(string) (transport.Transport, error) { return nil, transport.ErrPortNotFound }),
	)
	d := Open(context.Background(), 0x0A0A, 0x0D0E, WithScanner(scanner))
	assert.False(t, d.IsFound())
	assert.False(t, d.IsOpen())
	assert.Equal(t, StateNotFound, d.State())
	assert.ErrorIs(t, d.Err(), discovery.ErrNotFound)
	assert.ErrorIs(t, d.Update(), ErrNotOpen)
	assert.ErrorIs(t, d.SendPacket(), ErrNotOpen)
	assert.Equal(t, "", d.PortName())
	require.NoError(t, d.Close())
}

func TestOpenCanceled(t *testing.T) {
	opened := 0
	scanner := discovery.NewScanner(
		discovery.WithLister(func() ([]string, error) { return []string{"COM1", "COM2"}, nil }),
		discovery.WithOpener(func(name string) (transport.Transport, error) {
			opened++
			p := transporttest.New(name)
			return p, p.Open(name)
		}),
	)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d := Open(ctx, 0x0A0A, 0x0D0E, WithScanner(scanner))
	assert.Equal(t, StateNotFound, d.State())
	assert.ErrorIs(t, d.Err(), context.Canceled)
	assert.NotErrorIs(t, d.Err(), discovery.ErrNotFound)
	assert.Zero(t, opened)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "searching", StateSearching.String())
	assert.Equal(t, "found", StateFound.String())
	assert.Equal(t, "not found", StateNotFound.String())
	assert.Equal(t, "error", StateError.String())
	assert.Equal(t, "State(9)", State(9).String())
}
