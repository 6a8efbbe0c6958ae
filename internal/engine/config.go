// Package engine implements the probe scheduler and reply correlator: the
// single-threaded event loop that paces outbound ICMP probes, matches
// inbound replies to them, tracks per-target timeouts with optional
// backoff, and maintains cumulative and interval statistics. Everything
// else in this repository — argument parsing, DNS resolution, textual
// reporting, the raw socket, CIDR expansion — is a straightforward
// collaborator the engine consumes through a narrow interface.
package engine

import (
	"math"
	"time"

	"github.com/netreach/icmprobe/internal/wire"
)

// Mode selects how many probes each host receives and when the run ends.
type Mode int

const (
	// ModeOneShot sends one probe per host, retrying a fixed number of
	// times (with optional backoff) if it goes unanswered, then stops.
	ModeOneShot Mode = iota
	// ModeCount sends exactly Count probes to every host, then stops.
	ModeCount
	// ModeLoop sends probes to every host forever until asked to stop.
	ModeLoop
)

// Config is the engine's full runtime configuration, the union of the
// timing, packet, and mode options the CLI surface exposes.
type Config struct {
	Kind wire.Kind
	Mode Mode

	Interval        time.Duration // global inter-send floor
	PerhostInterval time.Duration // per-host inter-send floor
	Timeout         time.Duration // base per-probe timeout
	Retry           int           // one-shot mode: additional sends after the first
	Backoff         float64       // timeout multiplier per consecutive miss, one-shot mode
	BackoffEnabled  bool

	Count int // ModeCount: probes per host

	ReportInterval time.Duration // 0 disables periodic split reports

	CheckSource   bool
	FastReachable int // 0 disables; else request finish once this many hosts are alive

	PayloadSize int
	Randomize   bool

	SeqMaxAge time.Duration // sequence-map retention window; 0 picks a sane default
}

// Trials returns how many probes a single host receives over the run's
// lifetime: Count in count mode, retry+1 in one-shot mode, and 0 (no fixed
// bound) in loop mode.
func (c Config) Trials() int {
	switch c.Mode {
	case ModeCount:
		return c.Count
	case ModeOneShot:
		return c.Retry + 1
	default:
		return 0
	}
}

// EventStorageCount returns the number of pre-allocated ping/timeout
// event slots per host, chosen so slot re-use by ping index modulo this
// count never aliases two concurrently live events.
func (c Config) EventStorageCount() int {
	switch c.Mode {
	case ModeCount:
		if c.Count < 1 {
			return 1
		}
		return c.Count
	case ModeLoop:
		if c.PerhostInterval <= 0 {
			return 1
		}
		n := int(math.Ceil(float64(c.Timeout)/float64(c.PerhostInterval))) + 1
		if n < 1 {
			n = 1
		}
		return n
	default:
		return 1
	}
}

// SeqRetention returns the sequence-map retention window: the longest an
// outstanding probe can remain unanswered.
func (c Config) SeqRetention() time.Duration {
	if c.SeqMaxAge > 0 {
		return c.SeqMaxAge
	}
	if c.Mode == ModeOneShot && c.BackoffEnabled {
		window := c.Timeout
		for i := 0; i < c.Retry; i++ {
			window = time.Duration(float64(window) * c.Backoff)
		}
		return window
	}
	return c.Timeout
}
