// socrt - an in-process service-oriented communication runtime
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/evrhart/socrt

// Package payload provides the opaque byte container exchanged between
// connectors: a single contiguous buffer split into an optional header
// prefix (writable, reserved for in-place wire framing) and a data suffix
// (the primary content, read-only once published).
package payload

import "bytes"

// Payload is a contiguous byte buffer split into header and data spans.
// Header and data are always adjacent: headerEnd == dataBegin.
type Payload struct {
	buf        []byte
	headerSize int
	dataSize   int
}

var empty = &Payload{buf: nil, headerSize: 0, dataSize: 0}

// Empty returns the process-wide shared empty payload: zero-length header
// and data spans over a nil buffer.
func Empty() *Payload { return empty }

// New builds a Payload from an owned byte slice. skip is the number of
// leading bytes in buf that belong to neither span (e.g. an already-consumed
// framing prefix); headerSize and dataSize are deduced from the arguments,
// not independently validated against buf's remaining capacity beyond the
// bounds check below.
//
// Construction with a header larger than the backing buffer is a programmer
// error and panics, matching the contract's "abort" semantics.
func New(buf []byte, skip, headerSize, dataSize int) *Payload {
	if skip < 0 || headerSize < 0 || dataSize < 0 {
		panic("payload: negative offset or size")
	}
	if skip+headerSize+dataSize > len(buf) {
		panic("payload: header/data span exceeds backing buffer")
	}
	return &Payload{
		buf:        buf[skip : skip+headerSize+dataSize],
		headerSize: headerSize,
		dataSize:   dataSize,
	}
}

// NewData is a convenience constructor for a payload with no header region.
func NewData(data []byte) *Payload {
	return New(data, 0, 0, len(data))
}

// Header returns the writable framing prefix.
func (p *Payload) Header() []byte {
	if p == nil {
		return nil
	}
	return p.buf[:p.headerSize]
}

// Data returns the primary content suffix.
func (p *Payload) Data() []byte {
	if p == nil {
		return nil
	}
	return p.buf[p.headerSize : p.headerSize+p.dataSize]
}

// Equal compares both the header and data regions.
func (p *Payload) Equal(other *Payload) bool {
	if p == nil || other == nil {
		return p == other
	}
	return bytes.Equal(p.Header(), other.Header()) && bytes.Equal(p.Data(), other.Data())
}

// Clone returns a deep copy, safe to mutate independently of p.
func (p *Payload) Clone() *Payload {
	if p == nil {
		return nil
	}
	buf := make([]byte, len(p.buf))
	copy(buf, p.buf)
	return &Payload{buf: buf, headerSize: p.headerSize, dataSize: p.dataSize}
}
