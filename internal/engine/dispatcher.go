package engine

import (
	"context"
	"errors"
	"syscall"
	"time"

	"github.com/netreach/icmprobe/internal/queue"
	"github.com/netreach/icmprobe/internal/target"
	"github.com/netreach/icmprobe/internal/wire"
	"golang.org/x/net/icmp"
)

// dispatchPing sends one probe for ev's (host, ping) pair, then either
// schedules its timeout and, in loop/count mode, its successor ping
// event, or — on a hard send failure — records the error without
// scheduling anything further.
func (e *Engine) dispatchPing(ctx context.Context, ev *queue.Event) {
	e.PingQ.Remove(ev)

	h := e.Table.Hosts[ev.Host]
	ping := ev.Ping

	now := e.Clock.Now()
	h.LastSendTime = now
	h.NumSent++
	e.lastSendTime = now

	seq := e.Seq.Add(ev.Host, ping, now)

	family := 4
	if h.Addr.Is6() && !h.Addr.Is4In6() {
		family = 6
	}

	msg, err := e.buildProbe(family, seq)
	if err != nil {
		e.Log.Error("icmprobe/engine: build probe", "host", h.Name, "err", err)
		return
	}

	sendErr := e.Conn.Send(ctx, h.Addr, msg)
	if sendErr != nil && !errors.Is(sendErr, syscall.EHOSTDOWN) {
		if e.Hooks.SendError != nil {
			e.Hooks.SendError(h, sendErr)
		}
		addSent(&h.Cumulative)
		addSent(&h.Interval)
		h.Cumulative.SendErrors++
		h.Interval.SendErrors++
		if e.Cfg.Mode != ModeLoop && h.RespTimes != nil && ping < len(h.RespTimes) {
			h.RespTimes[ping] = target.SlotError
		}
		return
	}

	due := now + int64(h.Timeout)
	tev := h.TimeoutSlot(ping)
	tev.Host = ev.Host
	tev.Ping = ping
	tev.Due = due
	e.TimeoutQ.Enqueue(tev)
	h.Outstanding++

	if e.Cfg.Mode != ModeLoop && h.RespTimes != nil && ping < len(h.RespTimes) {
		if h.RespTimes[ping] == target.SlotUnused {
			h.RespTimes[ping] = target.SlotWaiting
		}
	}

	switch e.Cfg.Mode {
	case ModeLoop:
		next := h.PingSlot(ping + 1)
		next.Host = ev.Host
		next.Ping = ping + 1
		next.Due = now + int64(e.Cfg.PerhostInterval)
		e.PingQ.Enqueue(next)
	case ModeCount:
		if ping+1 < e.Cfg.Count {
			next := h.PingSlot(ping + 1)
			next.Host = ev.Host
			next.Ping = ping + 1
			next.Due = now + int64(e.Cfg.PerhostInterval)
			e.PingQ.Enqueue(next)
		}
	}
}

// buildProbe encodes the outbound message for family (4 or 6), choosing
// Echo or Timestamp per the engine's configured Kind.
func (e *Engine) buildProbe(family int, seq uint16) (*icmp.Message, error) {
	id := e.identifier(family)

	if e.Cfg.Kind == wire.KindTimestampV4 {
		originate := msSinceMidnightUTC(time.Now())
		return wire.EncodeTimestamp(id, seq, originate), nil
	}

	payload, err := wire.NewEchoPayload(e.Cfg.PayloadSize, e.Cfg.Randomize)
	if err != nil {
		return nil, err
	}
	kind := wire.KindEchoV4
	if family == 6 {
		kind = wire.KindEchoV6
	}
	return wire.EncodeEcho(kind, id, seq, payload), nil
}

// msSinceMidnightUTC implements RFC 792's Timestamp request/reply time
// base: milliseconds since midnight UTC.
func msSinceMidnightUTC(t time.Time) uint32 {
	t = t.UTC()
	midnight := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return uint32(t.Sub(midnight).Milliseconds())
}
