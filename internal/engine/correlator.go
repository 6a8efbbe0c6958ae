package engine

import (
	"net/netip"
	"time"

	"github.com/netreach/icmprobe/internal/rawsock"
	"github.com/netreach/icmprobe/internal/wire"
	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
)

// handlePacket resolves pkt's receive time into the engine's clock
// domain, then dispatches to the reply or other-ICMP path depending on
// whether pkt's type is this run's expected reply type.
func (e *Engine) handlePacket(pkt rawsock.Packet) {
	var recvNS int64
	if !pkt.RecvTime.IsZero() {
		recvNS = e.Clock.Convert(pkt.RecvTime)
	} else {
		recvNS = e.Clock.Refresh()
	}

	msg := pkt.Message
	if msg == nil {
		return
	}

	if e.Cfg.Kind.IsReply(msg.Type) {
		e.handleReply(pkt.Source, msg, recvNS)
		return
	}
	e.handleOtherICMP(pkt.Source, msg, recvNS)
}

// handleReply handles a packet whose type matched the expected reply type.
func (e *Engine) handleReply(source netip.Addr, msg *icmp.Message, recvNS int64) {
	family := 4
	if source.Is6() && !source.Is4In6() {
		family = 6
	}

	var (
		id, seq  uint16
		bytes    int
		ts       *ReplyTimestamps
	)
	switch body := msg.Body.(type) {
	case *icmp.Echo:
		id, seq = uint16(body.ID), uint16(body.Seq)
		bytes = len(body.Data)
	case *icmp.RawBody:
		originate, receive, transmit, recvID, recvSeq, ok := parseTimestampBody(body.Data)
		if !ok {
			return
		}
		id, seq = recvID, recvSeq
		bytes = len(body.Data)
		ts = &ReplyTimestamps{
			Originate:    originate,
			Receive:      receive,
			Transmit:     transmit,
			LocalReceive: msSinceMidnightUTC(time.Now()),
		}
	default:
		return
	}

	if id != e.identifier(family) {
		return
	}

	entry, ok := e.Seq.Fetch(seq, recvNS)
	if !ok {
		return
	}
	h := e.Table.Hosts[entry.Host]
	ping := entry.Ping

	creditRecvTotal(h)

	if e.Cfg.CheckSource && source != h.Addr {
		return
	}

	tslot := h.TimeoutSlot(ping)
	duplicate := !tslot.Linked()

	rtt := recvNS - entry.SentAt

	if duplicate {
		if e.Hooks.Reply != nil {
			e.Hooks.Reply(h, ping, bytes, time.Duration(rtt), true, source, ts)
		}
		return
	}

	// A reply can still outrun the timeout event that would have claimed
	// it, if it lands in the same loop iteration before that event is
	// dequeued; treat it the same as a post-timeout miss (see fping
	// issue #32).
	if rtt > h.Timeout {
		return
	}

	recordSuccess(h, ping, rtt)
	if h.Outstanding > 0 {
		h.Outstanding--
	}

	e.TimeoutQ.Remove(tslot)
	h.Timeout = h.BaseTimeout

	e.totalReplies++
	e.globalSumRTT += rtt
	if e.globalMinRTT == 0 || rtt < e.globalMinRTT {
		e.globalMinRTT = rtt
	}
	if rtt > e.globalMaxRTT {
		e.globalMaxRTT = rtt
	}

	justWentAlive := !h.Alive
	if justWentAlive {
		h.Alive = true
		e.numAlive++
		if e.Hooks.FirstAlive != nil {
			e.Hooks.FirstAlive(h)
		}
		if e.Cfg.FastReachable > 0 && e.numAlive >= e.Cfg.FastReachable {
			e.RequestFinish()
		}
	}

	if e.Hooks.Reply != nil {
		e.Hooks.Reply(h, ping, bytes, time.Duration(rtt), false, source, ts)
	}
}

// handleOtherICMP extracts the quoted probe header from an ICMP error
// body and, if it still matches a live sequence-map entry, counts it in
// the global other-ICMP counter and reports it against that host.
func (e *Engine) handleOtherICMP(source netip.Addr, msg *icmp.Message, recvNS int64) {
	isIPv6 := source.Is6() && !source.Is4In6()

	var quoted []byte
	switch body := msg.Body.(type) {
	case *icmp.DstUnreach:
		quoted = body.Data
	case *icmp.TimeExceeded:
		quoted = body.Data
	case *icmp.ParamProb:
		quoted = body.Data
	case *icmp.PacketTooBig:
		quoted = body.Data
	case *icmp.RawBody:
		// golang.org/x/net/icmp does not parse Redirect or Source Quench;
		// their quoted datagram follows a 4-byte gateway/unused field.
		if isIPv6 || (msg.Type != ipv4.ICMPTypeRedirect && msg.Type != ipv4.ICMPTypeSourceQuench) || len(body.Data) < 4 {
			return
		}
		quoted = body.Data[4:]
	default:
		return
	}

	id, seq, ok := wire.QuotedHeader(isIPv6, quoted)
	if !ok {
		return
	}

	family := 4
	if isIPv6 {
		family = 6
	}
	if id != e.identifier(family) {
		return
	}

	entry, ok := e.Seq.Fetch(seq, recvNS)
	if !ok {
		return
	}
	h := e.Table.Hosts[entry.Host]

	e.numOtherICMP++
	if e.Hooks.OtherICMP != nil {
		e.Hooks.OtherICMP(h, icmpErrorDetail(msg))
	}
}

// parseTimestampBody adapts wire.ParseTimestampReply's argument order to
// the (originate, receive, transmit, id, seq) tuple handleReply wants.
func parseTimestampBody(data []byte) (originate, receive, transmit uint32, id, seq uint16, ok bool) {
	id, seq, originate, receive, transmit, ok = wire.ParseTimestampReply(data)
	return originate, receive, transmit, id, seq, ok
}

// icmpErrorDetail renders a short, human-readable label for an other-ICMP
// hook callback.
func icmpErrorDetail(msg *icmp.Message) string {
	switch msg.Body.(type) {
	case *icmp.DstUnreach:
		return "ICMP Unreachable"
	case *icmp.TimeExceeded:
		return "ICMP Time Exceeded"
	case *icmp.ParamProb:
		return "ICMP Parameter Problem"
	case *icmp.PacketTooBig:
		return "ICMP Packet Too Big"
	default:
		return "ICMP error"
	}
}
