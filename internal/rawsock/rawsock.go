// Package rawsock is the socket collaborator the engine consumes: it
// opens one ICMP socket per address family, sends encoded probes, and
// yields received packets with an optional kernel receive timestamp. The
// wire-level encoding lives in internal/wire; this package only owns the
// socket.
package rawsock

import (
	"context"
	"errors"
	"net/netip"
	"time"

	"github.com/netreach/icmprobe/internal/wire"
	"golang.org/x/net/icmp"
)

// ErrUnsupportedPlatform is returned by Open on platforms this package has
// no socket implementation for. Callers should treat it as the "platform
// feature missing" exit code (3) rather than a generic fatal error.
var ErrUnsupportedPlatform = errors.New("rawsock: unsupported platform")

// Options configures best-effort socket options applied at open time:
// TTL, TOS, don't-fragment, fwmark, interface bind, and source address.
type Options struct {
	Interface    string     // bind to this interface by name; empty = any
	Source       netip.Addr // bind source address; zero value = kernel choice
	TTL          int        // 0 = leave at OS default
	TOS          int        // 0 = leave at OS default
	DontFragment bool
	Mark         int // 0 = unset (fwmark / SO_MARK)
}

// A Conn sends and receives ICMP messages for one address family.
type Conn interface {
	// Close closes the underlying socket.
	Close() error

	// Send transmits an encoded ICMP message to dst.
	Send(ctx context.Context, dst netip.Addr, msg *icmp.Message) error

	// Receive blocks up to wait for an inbound ICMP message. ok is false on
	// a plain timeout (no packet available); err is non-nil only on a real
	// socket error. When the kernel attaches a receive timestamp the
	// returned Packet's RecvTime carries it; otherwise RecvTime is the zero
	// Time and the caller should use its own clock.
	Receive(ctx context.Context, wait time.Duration) (Packet, bool, error)
}

// A Packet is one inbound ICMP datagram plus its source address and,
// when available, the kernel-supplied receive timestamp.
type Packet struct {
	Message  *icmp.Message
	Source   netip.Addr
	RecvTime time.Time // zero if the kernel did not supply one
}

// Open opens an ICMP socket for family (4 or 6) bound per opts. kind
// determines which reply types the kernel-side filter admits, on top of
// the ICMP error types every family always admits.
func Open(family int, kind wire.Kind, opts Options) (Conn, error) {
	return open(family, kind, opts)
}
