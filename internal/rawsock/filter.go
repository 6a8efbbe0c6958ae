// ICMPv4/6 kernel filter bitmasks, adapted to also admit the ICMP error
// types the reply correlator needs to see and warn about: for ICMPv4,
// Destination Unreachable, Redirect, Time Exceeded, Parameter Problem,
// Source Quench; for ICMPv6, Destination Unreachable, Packet Too Big,
// Time Exceeded, Parameter Problem.
//
// Copyright 2013-2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rawsock

import (
	"github.com/netreach/icmprobe/internal/wire"
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

// An ipv4Filter creates an ICMPv4 filter which may be attached to a raw
// socket via ICMP_FILTER.
type ipv4Filter struct{ data uint32 }

func (f *ipv4Filter) accept(typ ipv4.ICMPType) { f.data &^= 1 << (uint32(typ) & 31) }
func (f *ipv4Filter) setAll(block bool) {
	if block {
		f.data = 1<<32 - 1
	} else {
		f.data = 0
	}
}

// ipv4FilterForKind builds the filter appropriate for kind: the matching
// reply type plus every ICMP error type the correlator inspects for
// quoted-packet warnings.
func ipv4FilterForKind(kind wire.Kind) *ipv4Filter {
	var f ipv4Filter
	f.setAll(true)

	switch kind {
	case wire.KindEchoV4:
		f.accept(ipv4.ICMPTypeEchoReply)
	case wire.KindTimestampV4:
		f.accept(ipv4.ICMPType(14)) // Timestamp Reply
	}
	f.accept(ipv4.ICMPTypeDestinationUnreachable)
	f.accept(ipv4.ICMPTypeRedirect)
	f.accept(ipv4.ICMPTypeTimeExceeded)
	f.accept(ipv4.ICMPTypeParameterProblem)
	f.accept(ipv4.ICMPTypeSourceQuench)
	return &f
}

// An ipv6Filter creates an ICMPv6 filter which may be attached to a raw
// socket via ICMPV6_FILTER.
type ipv6Filter struct{ data [8]uint32 }

func (f *ipv6Filter) accept(typ ipv6.ICMPType) { f.data[typ>>5] &^= 1 << (uint32(typ) & 31) }
func (f *ipv6Filter) setAll(block bool) {
	for i := range f.data {
		if block {
			f.data[i] = 1<<32 - 1
		} else {
			f.data[i] = 0
		}
	}
}

func ipv6FilterForKind() *ipv6Filter {
	var f ipv6Filter
	f.setAll(true)
	f.accept(ipv6.ICMPTypeEchoReply)
	f.accept(ipv6.ICMPTypeDestinationUnreachable)
	f.accept(ipv6.ICMPTypePacketTooBig)
	f.accept(ipv6.ICMPTypeTimeExceeded)
	f.accept(ipv6.ICMPTypeParameterProblem)
	return &f
}
