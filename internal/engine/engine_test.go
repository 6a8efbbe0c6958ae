package engine_test

import (
	"context"
	"net/netip"
	"sync"
	"testing"
	"time"

	"github.com/netreach/icmprobe/internal/engine"
	"github.com/netreach/icmprobe/internal/rawsock"
	"github.com/netreach/icmprobe/internal/target"
	"github.com/netreach/icmprobe/internal/wire"
	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
)

// fakeConn is a rawsock.Conn that never touches a real socket. sendHook
// inspects each outbound message and optionally queues one or more
// packets for the next Receive calls, letting a test script exactly what
// the correlator sees in response to a given probe.
type fakeConn struct {
	mu      sync.Mutex
	pending []rawsock.Packet
	sent    int

	sendHook func(dst netip.Addr, msg *icmp.Message) []rawsock.Packet
}

func (c *fakeConn) Close() error { return nil }

func (c *fakeConn) Send(_ context.Context, dst netip.Addr, msg *icmp.Message) error {
	c.mu.Lock()
	c.sent++
	if c.sendHook != nil {
		c.pending = append(c.pending, c.sendHook(dst, msg)...)
	}
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) Receive(_ context.Context, wait time.Duration) (rawsock.Packet, bool, error) {
	c.mu.Lock()
	if len(c.pending) > 0 {
		p := c.pending[0]
		c.pending = c.pending[1:]
		c.mu.Unlock()
		return p, true, nil
	}
	c.mu.Unlock()

	if wait > 0 {
		time.Sleep(wait)
	}
	return rawsock.Packet{}, false, nil
}

func echoReply(dst netip.Addr, msg *icmp.Message) []rawsock.Packet {
	body, ok := msg.Body.(*icmp.Echo)
	if !ok {
		return nil
	}
	reply := &icmp.Message{
		Type: ipv4.ICMPTypeEchoReply,
		Code: 0,
		Body: &icmp.Echo{ID: body.ID, Seq: body.Seq, Data: body.Data},
	}
	return []rawsock.Packet{{Message: reply, Source: dst}}
}

func duplicateEchoReply(dst netip.Addr, msg *icmp.Message) []rawsock.Packet {
	p := echoReply(dst, msg)
	if p == nil {
		return nil
	}
	return []rawsock.Packet{p[0], p[0]}
}

func oneShotConfig() engine.Config {
	return engine.Config{
		Kind:           wire.KindEchoV4,
		Mode:           engine.ModeOneShot,
		Interval:       0,
		PerhostInterval: time.Millisecond,
		Timeout:        3 * time.Millisecond,
		Retry:          1,
		Backoff:        1.0,
		BackoffEnabled: false,
		PayloadSize:    0,
	}
}

func newSingleHostEngine(t *testing.T, cfg engine.Config, conn rawsock.Conn) (*engine.Engine, *target.Host) {
	t.Helper()
	h := target.NewHost(0, "target0", cfg.EventStorageCount(), int64(cfg.Timeout))
	h.Addr = netip.MustParseAddr("203.0.113.1")
	table := target.NewTable([]*target.Host{h})
	return engine.New(cfg, table, conn, nil), h
}

func TestEngineRunOneShotSuccess(t *testing.T) {
	conn := &fakeConn{sendHook: echoReply}
	eng, h := newSingleHostEngine(t, oneShotConfig(), conn)

	var gotReply bool
	eng.Hooks.Reply = func(rh *target.Host, trial, bytes int, rtt time.Duration, dup bool, source netip.Addr, ts *engine.ReplyTimestamps) {
		gotReply = true
		if dup {
			t.Errorf("Reply hook: dup = true, want false")
		}
	}

	eng.Seed()
	if err := eng.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if !gotReply {
		t.Fatalf("Reply hook never fired")
	}
	if !h.Alive {
		t.Fatalf("host.Alive = false, want true")
	}
	if conn.sent != 1 {
		t.Fatalf("sent = %d, want 1", conn.sent)
	}
	if got := eng.ExitCode(0, false); got != 0 {
		t.Fatalf("ExitCode() = %d, want 0", got)
	}
}

func TestEngineRunOneShotExhaustsRetries(t *testing.T) {
	conn := &fakeConn{} // never answers
	cfg := oneShotConfig()
	eng, h := newSingleHostEngine(t, cfg, conn)

	var timeouts int
	eng.Hooks.TimedOut = func(rh *target.Host, trial int) { timeouts++ }

	eng.Seed()
	if err := eng.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if h.Alive {
		t.Fatalf("host.Alive = true, want false")
	}
	wantTrials := cfg.Retry + 1
	if timeouts != wantTrials {
		t.Fatalf("timeouts = %d, want %d", timeouts, wantTrials)
	}
	if conn.sent != wantTrials {
		t.Fatalf("sent = %d, want %d", conn.sent, wantTrials)
	}
	if got := eng.ExitCode(0, false); got != 1 {
		t.Fatalf("ExitCode() = %d, want 1", got)
	}
}

func TestEngineRunFlagsDuplicateReply(t *testing.T) {
	conn := &fakeConn{sendHook: duplicateEchoReply}
	eng, h := newSingleHostEngine(t, oneShotConfig(), conn)

	var replies, dups int
	eng.Hooks.Reply = func(rh *target.Host, trial, bytes int, rtt time.Duration, dup bool, source netip.Addr, ts *engine.ReplyTimestamps) {
		replies++
		if dup {
			dups++
		}
	}

	eng.Seed()
	if err := eng.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if replies != 2 {
		t.Fatalf("Reply hook fired %d times, want 2", replies)
	}
	if dups != 1 {
		t.Fatalf("duplicate replies = %d, want 1", dups)
	}
	if !h.Alive {
		t.Fatalf("host.Alive = false, want true")
	}
}

func TestEngineCountModeSendsExactlyCount(t *testing.T) {
	conn := &fakeConn{sendHook: echoReply}
	cfg := engine.Config{
		Kind:            wire.KindEchoV4,
		Mode:            engine.ModeCount,
		Interval:        0,
		PerhostInterval: time.Millisecond,
		Timeout:         3 * time.Millisecond,
		Count:           4,
	}
	eng, h := newSingleHostEngine(t, cfg, conn)

	eng.Seed()
	if err := eng.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if conn.sent != 4 {
		t.Fatalf("sent = %d, want 4", conn.sent)
	}
	for i, v := range h.RespTimes {
		if v < 0 {
			t.Fatalf("RespTimes[%d] = %d, want a recorded RTT", i, v)
		}
	}
}

func TestEngineFastReachableStopsEarly(t *testing.T) {
	conn := &fakeConn{sendHook: echoReply}
	cfg := engine.Config{
		Kind:            wire.KindEchoV4,
		Mode:            engine.ModeLoop,
		Interval:        0,
		PerhostInterval: time.Millisecond,
		Timeout:         3 * time.Millisecond,
		FastReachable:   1,
	}
	eng, h := newSingleHostEngine(t, cfg, conn)

	eng.Seed()
	if err := eng.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if !h.Alive {
		t.Fatalf("host.Alive = false, want true")
	}
	if conn.sent == 0 {
		t.Fatalf("sent = 0, want at least 1")
	}
}

func TestEngineRunHonorsContextCancellation(t *testing.T) {
	conn := &fakeConn{} // never answers, so only cancellation can end the loop
	cfg := engine.Config{
		Kind:            wire.KindEchoV4,
		Mode:            engine.ModeLoop,
		Interval:        0,
		PerhostInterval: time.Millisecond,
		Timeout:         50 * time.Millisecond,
	}
	eng, _ := newSingleHostEngine(t, cfg, conn)
	eng.Seed()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- eng.Run(ctx) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Run() did not return after context cancellation")
	}
}

func TestExitCodeNoAddressYieldsTwo(t *testing.T) {
	h := target.NewHost(0, "unresolved", 1, int64(time.Second))
	h.NoAddr = true
	table := target.NewTable([]*target.Host{h})
	eng := engine.New(oneShotConfig(), table, &fakeConn{}, nil)

	if got := eng.ExitCode(0, false); got != 2 {
		t.Fatalf("ExitCode() = %d, want 2", got)
	}
}

func TestExitCodeMinReachableOverride(t *testing.T) {
	alive := target.NewHost(0, "up", 1, int64(time.Second))
	alive.Addr = netip.MustParseAddr("203.0.113.1")
	alive.Alive = true
	down := target.NewHost(1, "down", 1, int64(time.Second))
	down.Addr = netip.MustParseAddr("203.0.113.2")
	table := target.NewTable([]*target.Host{alive, down})
	eng := engine.New(oneShotConfig(), table, &fakeConn{}, nil)

	if got := eng.ExitCode(1, true); got != 0 {
		t.Fatalf("ExitCode(1, true) = %d, want 0 (one host alive meets the threshold)", got)
	}
	if got := eng.ExitCode(2, true); got != 1 {
		t.Fatalf("ExitCode(2, true) = %d, want 1 (threshold not met)", got)
	}
}
