// Package seqmap implements the bounded table that correlates inbound ICMP
// replies with the outbound probe that triggered them, keyed by the 16-bit
// ICMP sequence number.
package seqmap

// defaultMaxAge is the retention window, in nanoseconds, New falls back to
// when given a nonpositive maxAge. The window should exceed the longest an
// outstanding probe can remain unanswered: timeout*backoff^retry in
// one-shot mode, or just timeout in loop/count mode. The engine passes its
// own window (Config.SeqRetention) to New.
const defaultMaxAge = int64(60e9)

// An Entry records what was sent for a given sequence number.
type Entry struct {
	Host    int   // index into the target table
	Ping    int   // ping index (trial ordinal)
	SentAt  int64 // nanoseconds, per internal/clock
	present bool
}

// Map is a fixed-capacity table keyed by a 16-bit counter that increments
// on every send. Wraparound is benign: fetches are windowed by maxAge, so
// once an old entry ages out of the window it may be silently overwritten
// by add's next pass around the namespace.
type Map struct {
	entries [1 << 16]Entry
	next    uint16
	maxAge  int64
}

// New returns an empty Map. maxAge bounds how long a fetch may still reach
// an entry after it was added; entries older than that are treated as
// absent and may be overwritten.
func New(maxAge int64) *Map {
	if maxAge <= 0 {
		maxAge = defaultMaxAge
	}
	return &Map{maxAge: maxAge}
}

// Add assigns the next sequence number, records the send, and returns the
// assigned sequence.
func (m *Map) Add(host, ping int, sentAt int64) uint16 {
	seq := m.next
	m.next++

	m.entries[seq] = Entry{Host: host, Ping: ping, SentAt: sentAt, present: true}
	return seq
}

// Fetch returns the entry for seq iff it is present and was added no
// earlier than maxAge nanoseconds before now. A miss (absent, or too old)
// causes the caller to drop the reply silently per the reply correlator's
// contract.
func (m *Map) Fetch(seq uint16, now int64) (Entry, bool) {
	e := m.entries[seq]
	if !e.present {
		return Entry{}, false
	}
	if now-e.SentAt > m.maxAge {
		return Entry{}, false
	}
	return e, true
}

// Delete forgets the entry for seq, so a late duplicate cannot be matched
// twice. It is safe to call on an already-absent sequence.
func (m *Map) Delete(seq uint16) {
	m.entries[seq] = Entry{}
}
