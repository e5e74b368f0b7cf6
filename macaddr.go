/* Copyright (c) 2018-2020 Waldemar Augustyn */

package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

const MACLen = 6

// MAC is a fixed-width hardware address, used as the path table key and as
// the wire representation of origAddr/targetAddr in PANN frames.
type MAC [MACLen]byte

var BroadcastMAC = MAC{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}
var ZeroMAC = MAC{}

func (m MAC) String() string {

	toks := make([]string, MACLen)
	for i, b := range m {
		toks[i] = hex.EncodeToString([]byte{b})
	}
	return strings.ToUpper(strings.Join(toks, ":"))
}

func (m MAC) IsZero() bool {
	return m == ZeroMAC
}

func (m MAC) IsBroadcast() bool {
	return m == BroadcastMAC
}

// Less orders MACs lexicographically byte by byte, used to break ties
// during gate selection (spec §4.3).
func (m MAC) Less(other MAC) bool {
	for i := 0; i < MACLen; i++ {
		if m[i] != other[i] {
			return m[i] < other[i]
		}
	}
	return false
}

func ParseMAC(s string) (MAC, error) {

	toks := strings.Split(s, ":")
	if len(toks) != MACLen {
		return MAC{}, fmt.Errorf("mac: invalid address %q: expected %v octets, got %v", s, MACLen, len(toks))
	}
	var m MAC
	for i, tok := range toks {
		b, err := hex.DecodeString(tok)
		if err != nil || len(b) != 1 {
			return MAC{}, fmt.Errorf("mac: invalid octet %q in address %q", tok, s)
		}
		m[i] = b[0]
	}
	return m, nil
}

func MustParseMAC(s string) MAC {

	m, err := ParseMAC(s)
	if err != nil {
		log.fatal("mac: %v", err)
	}
	return m
}

func MACFromSlice(b []byte) (MAC, error) {

	if len(b) != MACLen {
		return MAC{}, errors.New("mac: slice has wrong length")
	}
	var m MAC
	copy(m[:], b)
	return m, nil
}
