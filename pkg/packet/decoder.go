// Copyright (C) 2026 RW Labs. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package packet

import (
	"bytes"
	"encoding/binary"
)

// Stats counts what a Decoder has seen since it was created.
type Stats struct {
	Frames  uint64
	Resyncs uint64
	// Discarded counts bytes dropped outside of frames, including the
	// start markers of rejected candidates.
	Discarded uint64
	// MalformedFrames counts verified frames whose entries could not all
	// be decoded. The entries after the malformed one are dropped.
	MalformedFrames uint64
}

// Decoder splits a byte stream into frames. Bytes may arrive in any
// chunking and yield the same frames; a partial frame is kept until the
// rest arrives. A candidate frame is only judged once all the bytes its
// header announces are buffered. If it fails verification it costs one
// byte and the search for the next start marker continues from there, so
// a good frame behind a corrupted header is delayed, never consumed.
type Decoder struct {
	buf   []byte
	stats Stats
	// LastError is the most recent framing or entry error. It is
	// informational only.
	LastError error
}

func NewDecoder() *Decoder {
	return &Decoder{}
}

// Feed appends p and returns every frame that became complete, in stream
// order.
func (d *Decoder) Feed(p []byte) []*FieldSet {
	d.buf = append(d.buf, p...)
	var res []*FieldSet
	for {
		start := bytes.IndexByte(d.buf, StartMarker)
		if start < 0 {
			d.discard(len(d.buf))
			return res
		}
		d.discard(start)
		if len(d.buf) < headerLen {
			return res
		}

		payloadLen := int(binary.LittleEndian.Uint16(d.buf[1:headerLen]))
		if payloadLen > MaxPayload {
			d.LastError = ErrPayloadTooLarge
			d.resync()
			continue
		}
		total := headerLen + payloadLen + trailerLen
		if len(d.buf) < total {
			return res
		}

		if err := verifyFrame(d.buf[:total]); err != nil {
			d.LastError = err
			d.resync()
			continue
		}
		fs, err := DecodePayload(d.buf[headerLen : headerLen+payloadLen])
		if err != nil {
			d.LastError = err
			d.stats.MalformedFrames++
		}
		d.stats.Frames++
		res = append(res, fs)
		d.consume(total)
	}
}

// Buffered returns the number of bytes held for an incomplete frame.
func (d *Decoder) Buffered() int {
	return len(d.buf)
}

func (d *Decoder) Stats() Stats {
	return d.stats
}

// Reset drops any partial frame.
func (d *Decoder) Reset() {
	d.discard(len(d.buf))
}

func (d *Decoder) resync() {
	d.stats.Resyncs++
	d.discard(1)
}

func (d *Decoder) discard(n int) {
	d.stats.Discarded += uint64(n)
	d.consume(n)
}

func (d *Decoder) consume(n int) {
	if n == 0 {
		return
	}
	d.buf = d.buf[:copy(d.buf, d.buf[n:])]
}
