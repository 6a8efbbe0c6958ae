package engine

import (
	"context"
	"log/slog"
	"net/netip"
	"os"
	"sync/atomic"
	"time"

	"github.com/netreach/icmprobe/internal/clock"
	"github.com/netreach/icmprobe/internal/queue"
	"github.com/netreach/icmprobe/internal/rawsock"
	"github.com/netreach/icmprobe/internal/seqmap"
	"github.com/netreach/icmprobe/internal/target"
)

// ReplyTimestamps carries the four values an ICMP Timestamp reply
// exposes, millisecond-since-midnight-UTC per RFC 792.
type ReplyTimestamps struct {
	Originate, Receive, Transmit, LocalReceive uint32
}

// Hooks lets the caller observe the events the core produces, without the
// engine depending on how they're rendered — per-reply lines, alive
// announcements, and periodic reports are all the reporting package's
// concern, not the scheduler's.
type Hooks struct {
	Reply          func(h *target.Host, trial, bytes int, rtt time.Duration, dup bool, source netip.Addr, ts *ReplyTimestamps)
	FirstAlive     func(h *target.Host)
	TimedOut       func(h *target.Host, trial int)
	SendError      func(h *target.Host, err error)
	OtherICMP      func(h *target.Host, detail string)
	PeriodicReport func()
}

// Engine bundles every single-owner collaborator the scheduler needs:
// the clock, the two event queues, the sequence map, the target table, and
// the socket. It holds no package-level state, so tests can instantiate
// more than one independently.
type Engine struct {
	Clock   *clock.Clock
	PingQ   *queue.Queue
	TimeoutQ *queue.Queue
	Seq     *seqmap.Map
	Table   *target.Table
	Conn    rawsock.Conn
	Cfg     Config
	Hooks   Hooks
	Log     *slog.Logger

	identV4, identV6 uint16

	lastSendTime   int64
	nextReportTime int64

	finishRequested atomic.Bool
	statusSnapshot  atomic.Bool

	numAlive     int
	numOtherICMP int
	globalMinRTT int64
	globalMaxRTT int64
	globalSumRTT int64
	totalReplies int
	startTimeNS  int64
	endTimeNS    int64
}

// New constructs an Engine over an already-resolved target table and an
// open socket collaborator. Every host in table must already have its
// Addr/NoAddr populated and its event-slot pools sized per cfg.
func New(cfg Config, table *target.Table, conn rawsock.Conn, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	e := &Engine{
		Clock:    clock.New(),
		PingQ:    &queue.Queue{},
		TimeoutQ: &queue.Queue{},
		Seq:      seqmap.New(int64(cfg.SeqRetention())),
		Table:    table,
		Conn:     conn,
		Cfg:      cfg,
		Log:      log,
		identV4:  uint16(os.Getpid() & 0xFFFF),
		identV6:  uint16(os.Getpid() & 0xFFFF),
	}
	return e
}

// RequestFinish asks the main loop to exit at the top of its next
// iteration, mirroring SIGINT's effect on finish_requested.
func (e *Engine) RequestFinish() { e.finishRequested.Store(true) }

// RequestSnapshot asks the main loop to emit one interval report without
// terminating, mirroring SIGQUIT's effect on status_snapshot.
func (e *Engine) RequestSnapshot() { e.statusSnapshot.Store(true) }

// identifier returns the 16-bit ICMP id used for family (4 or 6).
func (e *Engine) identifier(family int) uint16 {
	if family == 6 {
		return e.identV6
	}
	return e.identV4
}

// Seed schedules the first ping event for every resolved host, at the
// current time staggered by nothing (the global interval floor in the
// dispatcher naturally spaces them out as the loop drains the queue).
func (e *Engine) Seed() {
	now := e.Clock.Refresh()
	e.startTimeNS = now
	e.nextReportTime = now + int64(e.Cfg.ReportInterval)

	for _, h := range e.Table.Hosts {
		if h.NoAddr {
			continue
		}
		if h.RespTimes == nil && e.Cfg.Mode == ModeCount {
			h.InitRespTimes(e.Cfg.Trials())
		}
		ev := h.PingSlot(0)
		ev.Host = h.Index
		ev.Ping = 0
		ev.Due = now
		e.PingQ.Enqueue(ev)
	}
}

// Run drives the main loop until finish is requested or no event
// source remains, then finalizes.
func (e *Engine) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			e.RequestFinish()
		}

		if e.timeoutDue() {
			e.handleTimeout(ctx, e.TimeoutQ.PopFirst())
			continue
		}

		if ev, ok := e.duePing(); ok {
			e.dispatchPing(ctx, ev)
			continue
		}

		wait, haveSource := e.nextWait()
		if !haveSource {
			break
		}
		if e.finishRequested.Load() {
			break
		}

		pkt, ok, err := e.Conn.Receive(ctx, wait)
		if err != nil {
			e.Log.Warn("icmprobe/engine: receive error", "err", err)
		} else if ok {
			e.handlePacket(pkt)
			for {
				more, gotMore, _ := e.Conn.Receive(ctx, 0)
				if !gotMore {
					break
				}
				e.handlePacket(more)
			}
		}

		e.Clock.Refresh()
		e.maybeReport()
	}

	e.endTimeNS = e.Clock.Refresh()
	return nil
}

func (e *Engine) timeoutDue() bool {
	ev := e.TimeoutQ.Peek()
	return ev != nil && ev.Due <= e.Clock.Now()
}

func (e *Engine) duePing() (*queue.Event, bool) {
	ev := e.PingQ.Peek()
	if ev == nil {
		return nil, false
	}
	now := e.Clock.Now()
	if ev.Due > now {
		return nil, false
	}
	if now-e.lastSendTime < int64(e.Cfg.Interval) {
		return nil, false
	}
	return ev, true
}

// nextWait computes the smallest nonnegative wait among the ping head, the
// timeout head, and the next report deadline. ok is false when none of
// those sources exist, meaning the run is complete.
func (e *Engine) nextWait() (time.Duration, bool) {
	now := e.Clock.Now()
	have := false
	var wait int64 = int64(time.Second) // arbitrary cap refined below

	if ev := e.PingQ.Peek(); ev != nil {
		w := ev.Due - now
		if floor := int64(e.Cfg.Interval) - (now - e.lastSendTime); floor > w {
			w = floor
		}
		if w < 0 {
			w = 0
		}
		wait, have = w, true
	}
	if ev := e.TimeoutQ.Peek(); ev != nil {
		w := ev.Due - now
		if w < 0 {
			w = 0
		}
		if !have || w < wait {
			wait = w
		}
		have = true
	}
	if e.Cfg.ReportInterval > 0 {
		w := e.nextReportTime - now
		if w < 0 {
			w = 0
		}
		if !have || w < wait {
			wait = w
		}
		have = true
	}
	if !have {
		return 0, false
	}
	return time.Duration(wait), true
}

func (e *Engine) maybeReport() {
	now := e.Clock.Now()
	if e.statusSnapshot.CompareAndSwap(true, false) {
		if e.Hooks.PeriodicReport != nil {
			e.Hooks.PeriodicReport()
		}
	}
	if e.Cfg.ReportInterval > 0 && e.nextReportTime <= now {
		if e.Hooks.PeriodicReport != nil {
			e.Hooks.PeriodicReport()
		}
		for e.nextReportTime <= now {
			e.nextReportTime += int64(e.Cfg.ReportInterval)
		}
	}
}

// ExitCode derives the process exit code from the terminal counters.
func (e *Engine) ExitCode(minReachable int, haveMinReachable bool) int {
	alive := e.Table.Alive()
	unreachable := e.Table.Unreachable()
	noAddress := e.Table.NoAddress()

	if haveMinReachable {
		if alive >= minReachable {
			return 0
		}
		return 1
	}
	if alive == len(e.Table.Hosts)-noAddress && noAddress == 0 {
		return 0
	}
	if noAddress > 0 {
		return 2
	}
	if unreachable > 0 {
		return 1
	}
	return 0
}

// Elapsed returns the wall-clock duration of the run, valid after Run
// returns.
func (e *Engine) Elapsed() time.Duration {
	return time.Duration(e.endTimeNS - e.startTimeNS)
}

// GlobalStats snapshots the process-wide counters.
type GlobalStats struct {
	Alive, Unreachable, NoAddress int
	ICMPSent, ICMPRecv, ICMPOther int
	MinRTT, MaxRTT                time.Duration
	TotalReplies                  int
	AvgRTT                        time.Duration
}

// Snapshot returns the current global statistics.
func (e *Engine) Snapshot() GlobalStats {
	var sent, recv int
	for _, h := range e.Table.Hosts {
		sent += h.Cumulative.Sent
		recv += h.Cumulative.Recv
	}
	g := GlobalStats{
		Alive:        e.Table.Alive(),
		Unreachable:  e.Table.Unreachable(),
		NoAddress:    e.Table.NoAddress(),
		ICMPSent:     sent,
		ICMPRecv:     recv,
		ICMPOther:    e.numOtherICMP,
		MinRTT:       time.Duration(e.globalMinRTT),
		MaxRTT:       time.Duration(e.globalMaxRTT),
		TotalReplies: e.totalReplies,
	}
	if e.totalReplies > 0 {
		g.AvgRTT = time.Duration(e.globalSumRTT / int64(e.totalReplies))
	}
	return g
}
