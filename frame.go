/* Copyright (c) 2025 Waldemar Augustyn */

package main

import (
	"encoding/binary"
	"errors"
	"fmt"
)

var be = binary.BigEndian

// ErrMalformedFrame is returned by DecodePann when a field constraint is
// violated (spec §4.1): wrong length, TTL out of range.
var ErrMalformedFrame = errors.New("meshpathd: malformed frame")

const (
	pannVersion = 1
	pannType    = 0 // PANN

	maxTTL = 255

	// field widths, in wire order (spec §6)
	flagIsGate         = 1 << 0
	flagReplyRequested = 1 << 1

	// version(1) + type(1) + origAddr(6) + origSn(8) + hopCount(1) + ttl(1) +
	// targetAddr(6) + metric(4) + flags(1)
	pannWireLen = 1 + 1 + MACLen + 8 + 1 + 1 + MACLen + 4 + 1
)

// PannFrame is the decoded form of a Proactive Announcement frame (spec §3,
// §6). Wire layout is fixed-width and big-endian, decoded/encoded without
// any length prefix framing of its own; the L2 transport (transport.go)
// supplies frame boundaries.
type PannFrame struct {
	OrigAddr       MAC
	OrigSn         uint64
	HopCount       uint8
	TTL            uint8
	TargetAddr     MAC
	Metric         uint32
	IsGate         bool
	ReplyRequested bool
}

// EncodedLen returns the wire length of any PANN frame; the format has no
// variable-length fields.
func EncodedLen() int { return pannWireLen }

// EncodePann serializes f into dst, which must be at least EncodedLen()
// bytes, and returns the number of bytes written. Encoding is infallible
// for validated inputs per spec §4.1: callers construct frames internally
// with valid TTL, so there is no error return.
func EncodePann(dst []byte, f PannFrame) int {

	if len(dst) < pannWireLen {
		log.fatal("frame: encode buffer too small: %v < %v", len(dst), pannWireLen)
	}

	off := 0
	dst[off] = pannVersion
	off++
	dst[off] = pannType
	off++
	copy(dst[off:off+MACLen], f.OrigAddr[:])
	off += MACLen
	be.PutUint64(dst[off:off+8], f.OrigSn)
	off += 8
	dst[off] = f.HopCount
	off++
	dst[off] = f.TTL
	off++
	copy(dst[off:off+MACLen], f.TargetAddr[:])
	off += MACLen
	be.PutUint32(dst[off:off+4], f.Metric)
	off += 4

	var flags byte
	if f.IsGate {
		flags |= flagIsGate
	}
	if f.ReplyRequested {
		flags |= flagReplyRequested
	}
	dst[off] = flags
	off++

	return off
}

// DecodePann parses a PANN frame from src. Returns ErrMalformedFrame if the
// length is wrong or a field constraint is violated (spec §4.1).
func DecodePann(src []byte) (PannFrame, error) {

	if len(src) < pannWireLen {
		return PannFrame{}, fmt.Errorf("%w: length %v < %v", ErrMalformedFrame, len(src), pannWireLen)
	}

	off := 0
	version := src[off]
	off++
	typ := src[off]
	off++

	if version != pannVersion {
		return PannFrame{}, fmt.Errorf("%w: unsupported version %v", ErrMalformedFrame, version)
	}
	if typ != pannType {
		return PannFrame{}, fmt.Errorf("%w: unsupported type %v", ErrMalformedFrame, typ)
	}

	var f PannFrame

	orig, err := MACFromSlice(src[off : off+MACLen])
	if err != nil {
		return PannFrame{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	f.OrigAddr = orig
	off += MACLen

	f.OrigSn = be.Uint64(src[off : off+8])
	off += 8

	f.HopCount = src[off]
	off++

	f.TTL = src[off]
	off++
	if f.TTL > maxTTL {
		return PannFrame{}, fmt.Errorf("%w: ttl %v exceeds max", ErrMalformedFrame, f.TTL)
	}

	target, err := MACFromSlice(src[off : off+MACLen])
	if err != nil {
		return PannFrame{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	f.TargetAddr = target
	off += MACLen

	f.Metric = be.Uint32(src[off : off+4])
	off += 4

	flags := src[off]
	off++
	f.IsGate = flags&flagIsGate != 0
	f.ReplyRequested = flags&flagReplyRequested != 0

	return f, nil
}
