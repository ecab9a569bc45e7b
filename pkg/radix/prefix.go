/*
 * Copyright (C) 2022 IBM, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 *
 */

package radix

import (
	"fmt"
	"math/bits"
	"net/netip"
	"strconv"
	"strings"
)

// Family identifies the address family of a Prefix.
type Family uint8

const (
	FamilyIPv4 Family = 4
	FamilyIPv6 Family = 6
)

// MaxBits returns the address width of the family in bits.
func (f Family) MaxBits() int {
	if f == FamilyIPv4 {
		return 32
	}
	return 128
}

func (f Family) String() string {
	switch f {
	case FamilyIPv4:
		return "ipv4"
	case FamilyIPv6:
		return "ipv6"
	}
	return "unknown"
}

// Prefix is a canonical (family, bit length, masked address) value.
// All bits beyond the bit length are zero, so two prefixes with equal
// bytes and bit length are equal.
type Prefix struct {
	family Family
	bitlen int
	addr   []byte
}

// ParsePrefix builds a Prefix from CIDR notation ("10.0.0.0/8", "2001:db8::/32").
// A bare address gets the host mask of its family.
func ParsePrefix(s string) (Prefix, error) {
	network := s
	masklen := -1
	if i := strings.IndexByte(s, '/'); i >= 0 {
		network = s[:i]
		n, err := strconv.Atoi(s[i+1:])
		if err != nil || n < 0 {
			return Prefix{}, fmt.Errorf("%w: bad mask length in %q", ErrInvalidPrefix, s)
		}
		masklen = n
	}
	return newPrefix(network, nil, masklen)
}

// NewPrefix builds a Prefix from an address string and a separate mask length.
func NewPrefix(network string, masklen int) (Prefix, error) {
	return newPrefix(network, nil, masklen)
}

// PrefixFromBytes builds a Prefix from a packed 4- or 16-byte address.
// A negative masklen means the host mask of the detected family.
func PrefixFromBytes(packed []byte, masklen int) (Prefix, error) {
	return newPrefix("", packed, masklen)
}

// newPrefix accepts exactly one of the string or packed forms; masklen < 0
// selects the family host mask. This mirrors the facade construction input:
// giving both forms, or neither, is an InvalidPrefix error.
func newPrefix(network string, packed []byte, masklen int) (Prefix, error) {
	if network != "" && packed != nil {
		return Prefix{}, fmt.Errorf("%w: both string and packed forms given", ErrInvalidPrefix)
	}
	if network == "" && packed == nil {
		return Prefix{}, fmt.Errorf("%w: no address given", ErrInvalidPrefix)
	}

	var family Family
	var addr []byte
	if network != "" {
		a, err := netip.ParseAddr(network)
		if err != nil || a.Zone() != "" {
			return Prefix{}, fmt.Errorf("%w: %q", ErrInvalidPrefix, network)
		}
		if a.Is4() {
			family = FamilyIPv4
			b := a.As4()
			addr = b[:]
		} else {
			family = FamilyIPv6
			b := a.As16()
			addr = b[:]
		}
	} else {
		switch len(packed) {
		case 4:
			family = FamilyIPv4
		case 16:
			family = FamilyIPv6
		default:
			return Prefix{}, fmt.Errorf("%w: packed address must be 4 or 16 bytes, got %d", ErrInvalidPrefix, len(packed))
		}
		addr = make([]byte, len(packed))
		copy(addr, packed)
	}

	if masklen < 0 {
		masklen = family.MaxBits()
	}
	if masklen > family.MaxBits() {
		return Prefix{}, fmt.Errorf("%w: mask length %d out of range for %s", ErrInvalidPrefix, masklen, family)
	}

	canonicalize(addr, masklen)
	return Prefix{family: family, bitlen: masklen, addr: addr}, nil
}

// canonicalize zeroes every bit beyond bitlen in place.
func canonicalize(addr []byte, bitlen int) {
	q, r := bitlen/8, bitlen%8
	if r != 0 {
		addr[q] &= byte(0xff << (8 - r))
		q++
	}
	for ; q < len(addr); q++ {
		addr[q] = 0
	}
}

// IsValid reports whether p was built by one of the constructors.
func (p Prefix) IsValid() bool { return p.addr != nil }

// Family returns the address family.
func (p Prefix) Family() Family { return p.family }

// Bitlen returns the prefix length in bits.
func (p Prefix) Bitlen() int { return p.bitlen }

// Bytes returns a copy of the canonical packed address.
func (p Prefix) Bytes() []byte {
	b := make([]byte, len(p.addr))
	copy(b, p.addr)
	return b
}

// Network returns the textual form of the masked network address.
func (p Prefix) Network() string {
	if p.addr == nil {
		return ""
	}
	if p.family == FamilyIPv4 {
		return netip.AddrFrom4([4]byte(p.addr)).String()
	}
	return netip.AddrFrom16([16]byte(p.addr)).String()
}

func (p Prefix) String() string {
	return fmt.Sprintf("%s/%d", p.Network(), p.bitlen)
}

// Equal reports whether two prefixes have the same family, length and
// canonical address.
func (p Prefix) Equal(q Prefix) bool {
	if p.family != q.family || p.bitlen != q.bitlen {
		return false
	}
	return p.MatchLen(q, p.bitlen)
}

// BitSet reports whether bit i (0 = most significant) of the address is set.
func (p Prefix) BitSet(i int) bool {
	return bitSet(p.addr, i)
}

func bitSet(addr []byte, i int) bool {
	return addr[i>>3]&(0x80>>(i&0x07)) != 0
}

// CommonPrefixLen returns the number of leading bits over which p and q
// agree, bounded by checkBit. The scan is byte-wise: a zero XOR means the
// whole byte agrees, otherwise the first set bit of the XOR marks the
// divergence.
func (p Prefix) CommonPrefixLen(q Prefix, checkBit int) int {
	return differBit(p.addr, q.addr, checkBit)
}

func differBit(a, b []byte, checkBit int) int {
	n := (checkBit + 7) / 8
	for i := 0; i < n; i++ {
		if r := a[i] ^ b[i]; r != 0 {
			d := i*8 + bits.LeadingZeros8(r)
			if d > checkBit {
				return checkBit
			}
			return d
		}
	}
	return checkBit
}

// MatchLen reports whether the addresses of p and q agree over the first
// bitlen bits.
func (p Prefix) MatchLen(q Prefix, bitlen int) bool {
	if p.addr == nil || q.addr == nil {
		return false
	}
	return differBit(p.addr, q.addr, bitlen) == bitlen
}

// Contains reports whether q falls inside the range of p.
func (p Prefix) Contains(q Prefix) bool {
	return p.family == q.family && p.bitlen <= q.bitlen && p.MatchLen(q, p.bitlen)
}
