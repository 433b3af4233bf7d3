// Copyright (C) 2026 RW Labs. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package discovery

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/rwlabs/serialdevice/pkg/packet"
	"github.com/rwlabs/serialdevice/pkg/transport"
)

const defaultPollInterval = 5 * time.Millisecond

// RequestFrame returns the encoded identify request.
func RequestFrame() []byte {
	fs := packet.NewFieldSet()
	fs.Set(KeyRequest, packet.Command(RequestIdentify))
	frame, err := packet.Encode(fs)
	if err != nil {
		panic(err)
	}
	return frame
}

// Handshake asks a freshly opened port who is on the other side.
type Handshake struct {
	Logger zerolog.Logger
	// PollInterval is the pause between reads while waiting for the reply.
	PollInterval time.Duration
}

// Identify writes one identify request to t and waits up to timeout for the
// reply. Frames without a class ID are skipped.
func (h *Handshake) Identify(ctx context.Context, t transport.Transport, timeout time.Duration) (*Identity, error) {
	log := h.Logger.With().Str("port", t.PortName()).Logger()
	if err := transport.WriteAll(t, RequestFrame()); err != nil {
		return nil, err
	}

	interval := h.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	deadline := time.Now().Add(timeout)
	dec := packet.NewDecoder()
	buf := make([]byte, 256)
	for {
		for {
			n, err := t.Read(buf)
			if err != nil {
				return nil, err
			}
			if n == 0 {
				break
			}
			for _, fs := range dec.Feed(buf[:n]) {
				if !IsIdentifyReply(fs) {
					log.Debug().Stringer("fields", fs).Msg("ignoring unrelated frame")
					continue
				}
				return ParseIdentity(t.PortName(), fs)
			}
		}
		if !time.Now().Before(deadline) {
			if dec.LastError != nil {
				log.Debug().Err(dec.LastError).Msg("undecodable bytes during identify")
			}
			return nil, ErrNoReply
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// IsNoMatch reports whether err only means the port holds some other
// device, or none.
func IsNoMatch(err error) bool {
	return errors.Is(err, ErrNoReply) || errors.Is(err, ErrBadReply)
}
