// Package wire implements the bit-exact ICMP Echo and Timestamp encoding and
// parsing the engine assumes: type=8/128 for Echo request, type=13 for
// Timestamp request (IPv4 only); the id field carries the process
// identifier and the seq field carries the engine's monotonic sequence
// counter, both network byte order.
//
// The Echo/Timestamp choice is a tagged variant, not an interface
// hierarchy: a Kind value picks which wire encoding and reply-type
// validation applies.
package wire

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"

	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

// A Kind selects the outbound probe encoding and the reply type the
// correlator must accept.
type Kind int

const (
	// KindEchoV4 sends ICMP Echo (type 8) and accepts Echo Reply (type 0).
	KindEchoV4 Kind = iota
	// KindEchoV6 sends ICMPv6 Echo Request (type 128) and accepts Echo
	// Reply (type 129).
	KindEchoV6
	// KindTimestampV4 sends ICMP Timestamp (type 13, IPv4 only) and accepts
	// Timestamp Reply (type 14).
	KindTimestampV4
)

// Size limits: a zero-length payload must be encodable, and the
// maximum Echo payload is bounded by the theoretical max IPv4 datagram
// minus IP and ICMP headers.
const (
	DefaultEchoPayloadSize = 56
	MaxIPPacket            = 65535
	ipHeaderSize           = 20
	icmpHeaderSize         = 8
	MaxEchoPayloadSize     = MaxIPPacket - ipHeaderSize - icmpHeaderSize
	TimestampPayloadSize   = 16
)

// NewEchoPayload returns a payload of the given size: zero-filled unless
// randomize is set, in which case it is filled with pseudo-random bytes
// (fping's -R).
func NewEchoPayload(size int, randomize bool) ([]byte, error) {
	if size < 0 || size > MaxEchoPayloadSize {
		return nil, fmt.Errorf("wire: payload size %d out of range [0, %d]", size, MaxEchoPayloadSize)
	}
	b := make([]byte, size)
	if randomize && size > 0 {
		if _, err := rand.Read(b); err != nil {
			return nil, fmt.Errorf("wire: randomize payload: %w", err)
		}
	}
	return b, nil
}

// RequestType returns the ICMP type byte used for an outbound probe of the
// given kind.
func (k Kind) RequestType() icmp.Type {
	switch k {
	case KindEchoV4:
		return ipv4.ICMPTypeEcho
	case KindEchoV6:
		return ipv6.ICMPTypeEchoRequest
	case KindTimestampV4:
		return ipv4.ICMPType(13)
	default:
		panic("wire: unknown Kind")
	}
}

// IsReply reports whether typ is the accepted reply type for this Kind.
// Echo mode accepts either family's Echo Reply regardless of which family
// k names, since a single run may hold open sockets for both (dual-stack
// target lists); the per-packet family is already pinned down by its
// source address by the time the correlator checks the id field.
func (k Kind) IsReply(typ icmp.Type) bool {
	if k == KindTimestampV4 {
		return typ == ipv4.ICMPType(14)
	}
	switch typ {
	case ipv4.ICMPTypeEchoReply, ipv6.ICMPTypeEchoReply:
		return true
	default:
		return false
	}
}

// EncodeEcho builds an ICMP Echo request message for id/seq carrying
// payload, ready for (*icmp.Message).Marshal(nil).
func EncodeEcho(k Kind, id, seq uint16, payload []byte) *icmp.Message {
	return &icmp.Message{
		Type: k.RequestType(),
		Code: 0,
		Body: &icmp.Echo{
			ID:   int(id),
			Seq:  int(seq),
			Data: payload,
		},
	}
}

// A TimestampBody is the ICMP Timestamp message body (RFC 792): id/seq
// followed by three 32-bit milliseconds-since-midnight-UTC fields. It
// satisfies golang.org/x/net/icmp's MessageBody interface so it can be
// marshaled through the same (*icmp.Message).Marshal(nil) path as Echo.
type TimestampBody struct {
	ID        uint16
	Seq       uint16
	Originate uint32
	Receive   uint32
	Transmit  uint32
}

// Len implements icmp.MessageBody.
func (b *TimestampBody) Len(int) int { return TimestampPayloadSize }

// Marshal implements icmp.MessageBody.
func (b *TimestampBody) Marshal(int) ([]byte, error) {
	out := make([]byte, TimestampPayloadSize)
	binary.BigEndian.PutUint16(out[0:2], b.ID)
	binary.BigEndian.PutUint16(out[2:4], b.Seq)
	binary.BigEndian.PutUint32(out[4:8], b.Originate)
	binary.BigEndian.PutUint32(out[8:12], b.Receive)
	binary.BigEndian.PutUint32(out[12:16], b.Transmit)
	return out, nil
}

// EncodeTimestamp builds an ICMP Timestamp request message for id/seq. Per
// RFC 792, a requester sets Originate to its own notion of
// milliseconds-since-midnight-UTC and leaves Receive/Transmit zero.
func EncodeTimestamp(id, seq uint16, originateMS uint32) *icmp.Message {
	return &icmp.Message{
		Type: ipv4.ICMPType(13),
		Code: 0,
		Body: &TimestampBody{ID: id, Seq: seq, Originate: originateMS},
	}
}

// ParseTimestampReply decodes a Timestamp Reply's raw body (the bytes
// golang.org/x/net/icmp leaves in *icmp.RawBody.Data for an unregistered
// type, i.e. everything after the 4-byte type/code/checksum header).
func ParseTimestampReply(data []byte) (id, seq uint16, originate, receive, transmit uint32, ok bool) {
	if len(data) < 16 {
		return 0, 0, 0, 0, 0, false
	}
	id = binary.BigEndian.Uint16(data[0:2])
	seq = binary.BigEndian.Uint16(data[2:4])
	originate = binary.BigEndian.Uint32(data[4:8])
	receive = binary.BigEndian.Uint32(data[8:12])
	transmit = binary.BigEndian.Uint32(data[12:16])
	return id, seq, originate, receive, transmit, true
}

// QuotedHeader recovers the id/seq of the original probe quoted inside an
// ICMP error message (Unreachable, Redirect, Time Exceeded, Parameter
// Problem, Source Quench): family-specific IP header, then 8 bytes of the
// quoted ICMP header.
func QuotedHeader(isIPv6 bool, quoted []byte) (id, seq uint16, ok bool) {
	if isIPv6 {
		// IPv6 fixed header is 40 bytes.
		if len(quoted) < 40+8 {
			return 0, 0, false
		}
		icmpHdr := quoted[40:]
		return binary.BigEndian.Uint16(icmpHdr[4:6]), binary.BigEndian.Uint16(icmpHdr[6:8]), true
	}

	if len(quoted) < ipHeaderSize {
		return 0, 0, false
	}
	ihl := int(quoted[0]&0x0F) * 4
	if ihl < ipHeaderSize || len(quoted) < ihl+8 {
		return 0, 0, false
	}
	icmpHdr := quoted[ihl:]
	return binary.BigEndian.Uint16(icmpHdr[4:6]), binary.BigEndian.Uint16(icmpHdr[6:8]), true
}
