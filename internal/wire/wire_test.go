package wire_test

import (
	"testing"

	"github.com/netreach/icmprobe/internal/wire"
	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

func TestRequestTypeAndIsReply(t *testing.T) {
	cases := []struct {
		kind    wire.Kind
		req     icmp.Type
		reply   icmp.Type
		notReply icmp.Type
	}{
		{wire.KindEchoV4, ipv4.ICMPTypeEcho, ipv4.ICMPTypeEchoReply, ipv4.ICMPTypeDestinationUnreachable},
		{wire.KindEchoV6, ipv6.ICMPTypeEchoRequest, ipv6.ICMPTypeEchoReply, ipv6.ICMPTypeDestinationUnreachable},
	}
	for _, c := range cases {
		if got := c.kind.RequestType(); got != c.req {
			t.Fatalf("RequestType() = %v, want %v", got, c.req)
		}
		if !c.kind.IsReply(c.reply) {
			t.Fatalf("IsReply(%v) = false, want true", c.reply)
		}
		if c.kind.IsReply(c.notReply) {
			t.Fatalf("IsReply(%v) = true, want false", c.notReply)
		}
	}
}

func TestEncodeEchoMarshalsAndParses(t *testing.T) {
	payload, err := wire.NewEchoPayload(wire.DefaultEchoPayloadSize, false)
	if err != nil {
		t.Fatalf("NewEchoPayload: %v", err)
	}
	if len(payload) != wire.DefaultEchoPayloadSize {
		t.Fatalf("len(payload) = %d, want %d", len(payload), wire.DefaultEchoPayloadSize)
	}

	msg := wire.EncodeEcho(wire.KindEchoV4, 0xBEEF, 7, payload)
	b, err := msg.Marshal(nil)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	parsed, err := icmp.ParseMessage(1 /* ICMPv4 */, b)
	if err != nil {
		t.Fatalf("ParseMessage: %v", err)
	}
	echo, ok := parsed.Body.(*icmp.Echo)
	if !ok {
		t.Fatalf("Body type = %T, want *icmp.Echo", parsed.Body)
	}
	if echo.ID != 0xBEEF || echo.Seq != 7 {
		t.Fatalf("echo = %+v, want ID=0xBEEF Seq=7", echo)
	}
}

func TestEncodeTimestampRoundTrip(t *testing.T) {
	msg := wire.EncodeTimestamp(123, 456, 7890)
	b, err := msg.Marshal(nil)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	parsed, err := icmp.ParseMessage(1, b)
	if err != nil {
		t.Fatalf("ParseMessage: %v", err)
	}
	raw, ok := parsed.Body.(*icmp.RawBody)
	if !ok {
		t.Fatalf("Body type = %T, want *icmp.RawBody (type 13 is unregistered)", parsed.Body)
	}

	id, seq, originate, receive, transmit, ok := wire.ParseTimestampReply(raw.Data)
	if !ok {
		t.Fatalf("ParseTimestampReply() ok = false")
	}
	if id != 123 || seq != 456 || originate != 7890 || receive != 0 || transmit != 0 {
		t.Fatalf("parsed = id=%d seq=%d orig=%d recv=%d xmit=%d, want id=123 seq=456 orig=7890 recv=0 xmit=0",
			id, seq, originate, receive, transmit)
	}
}

func TestPayloadSizeBounds(t *testing.T) {
	if _, err := wire.NewEchoPayload(0, false); err != nil {
		t.Fatalf("zero-length payload must be encodable: %v", err)
	}
	if _, err := wire.NewEchoPayload(-1, false); err == nil {
		t.Fatalf("negative payload size should error")
	}
	if _, err := wire.NewEchoPayload(wire.MaxEchoPayloadSize+1, false); err == nil {
		t.Fatalf("over-max payload size should error")
	}
}

func TestQuotedHeaderIPv4(t *testing.T) {
	quoted := make([]byte, 20+8)
	quoted[0] = 0x45 // version 4, IHL 5
	// Quoted ICMP header begins at byte 20: type, code, checksum(2), id(2), seq(2).
	quoted[20+4] = 0x12
	quoted[20+5] = 0x34
	quoted[20+6] = 0x00
	quoted[20+7] = 0x2A

	id, seq, ok := wire.QuotedHeader(false, quoted)
	if !ok {
		t.Fatalf("QuotedHeader() ok = false")
	}
	if id != 0x1234 || seq != 0x2A {
		t.Fatalf("QuotedHeader() = id=%#x seq=%d, want id=0x1234 seq=42", id, seq)
	}
}
