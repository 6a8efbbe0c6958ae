// Package target implements the fixed-size host table: per-host identity,
// cumulative and interval statistics, the count-mode per-trial RTT buffer,
// and the pre-allocated ping/timeout event-slot pools the scheduler
// addresses by ping index modulo slot count.
package target

import (
	"net/netip"

	"github.com/netreach/icmprobe/internal/queue"
)

// Per-trial response-time sentinels. A genuine RTT is always a
// nonnegative nanosecond count, so every sentinel is negative; this
// resolves the ambiguity a zero-initialized slice would otherwise leave
// between "unused" and "received with a zero-nanosecond RTT".
const (
	SlotUnused  int64 = -1
	SlotWaiting int64 = -2
	SlotError   int64 = -3
	SlotTimeout int64 = -4
)

// Stats is one statistics window: either the cumulative counters that
// live for the whole run, or the interval counters a periodic report
// resets. Min/max treat zero as "unset" — the first recorded RTT always
// wins both comparisons.
type Stats struct {
	Sent       int
	Recv       int
	RecvTotal  int
	Timeouts   int
	SendErrors int

	MinRTT int64
	MaxRTT int64
	SumRTT int64
}

// AvgRTT returns the mean RTT in nanoseconds across every successful reply
// this window has recorded, or 0 if none has.
func (s Stats) AvgRTT() int64 {
	if s.Recv == 0 {
		return 0
	}
	return s.SumRTT / int64(s.Recv)
}

// A Host is one probe target: its identity, its resolved address, its
// cumulative and interval statistics, its count-mode per-trial buffer, and
// the pre-allocated event slots the scheduler re-uses across its
// lifetime.
type Host struct {
	// Index is this host's position in its owning Table.Hosts, the value
	// every queue.Event and seqmap.Entry uses to refer back to it.
	Index int
	// Name is the user-supplied target string (hostname, literal
	// address, or CIDR-expansion member).
	Name string
	// Label is the display string reporting renders: Name, the resolved
	// numeric address, or a reverse-lookup result depending on output
	// options. Defaults to Name until resolution sets it.
	Label string

	Addr   netip.Addr
	NoAddr bool

	Alive       bool
	Outstanding int
	NumSent     int

	LastSendTime int64

	// Timeout is this host's current per-probe deadline, in nanoseconds;
	// it grows under one-shot backoff and resets to BaseTimeout on every
	// accepted reply.
	Timeout     int64
	BaseTimeout int64

	// RespTimes holds one slot per trial in count mode; nil otherwise.
	// A slot holds one of the Slot* sentinels or a nonnegative RTT in
	// nanoseconds.
	RespTimes []int64

	Cumulative Stats
	Interval   Stats

	pingSlots    []queue.Event
	timeoutSlots []queue.Event
}

// NewHost allocates a Host with storageCount pre-allocated ping and
// timeout event slots — sized per Config.EventStorageCount so that no two
// concurrently outstanding probes for this host can ever alias the same
// slot — and a starting timeout of baseTimeout nanoseconds.
func NewHost(index int, name string, storageCount int, baseTimeout int64) *Host {
	if storageCount < 1 {
		storageCount = 1
	}
	return &Host{
		Index:        index,
		Name:         name,
		Label:        name,
		Timeout:      baseTimeout,
		BaseTimeout:  baseTimeout,
		pingSlots:    make([]queue.Event, storageCount),
		timeoutSlots: make([]queue.Event, storageCount),
	}
}

// InitRespTimes allocates the per-trial response buffer for count mode and
// normalizes every slot to SlotUnused, rather than leaving it at the
// zero value a freshly allocated slice would otherwise have (see the
// spec's open question on slot-zero ambiguity).
func (h *Host) InitRespTimes(trials int) {
	h.RespTimes = make([]int64, trials)
	for i := range h.RespTimes {
		h.RespTimes[i] = SlotUnused
	}
}

// PingSlot returns this host's pre-allocated ping event for ping index
// ping, re-using slots by ping modulo the pool size.
func (h *Host) PingSlot(ping int) *queue.Event {
	return &h.pingSlots[ping%len(h.pingSlots)]
}

// TimeoutSlot returns this host's pre-allocated timeout event for ping
// index ping, re-using slots by ping modulo the pool size.
func (h *Host) TimeoutSlot(ping int) *queue.Event {
	return &h.timeoutSlots[ping%len(h.timeoutSlots)]
}

// ResetInterval zeroes the interval statistics window, called after a
// non-cumulative periodic report has been emitted.
func (h *Host) ResetInterval() {
	h.Interval = Stats{}
}

// A Table is the fixed-size, ordered list of probe targets. Its order is
// fixed at construction: every queue.Event and seqmap.Entry addresses a
// host by its position here, never by pointer.
type Table struct {
	Hosts []*Host
}

// NewTable wraps hosts in a Table, preserving their order.
func NewTable(hosts []*Host) *Table {
	return &Table{Hosts: hosts}
}

// Alive returns the number of resolved hosts that have received at least
// one reply.
func (t *Table) Alive() int {
	n := 0
	for _, h := range t.Hosts {
		if !h.NoAddr && h.Alive {
			n++
		}
	}
	return n
}

// Unreachable returns the number of resolved hosts that never received a
// reply.
func (t *Table) Unreachable() int {
	n := 0
	for _, h := range t.Hosts {
		if !h.NoAddr && !h.Alive {
			n++
		}
	}
	return n
}

// NoAddress returns the number of hosts that never resolved to an
// address.
func (t *Table) NoAddress() int {
	n := 0
	for _, h := range t.Hosts {
		if h.NoAddr {
			n++
		}
	}
	return n
}
