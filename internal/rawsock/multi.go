package rawsock

import (
	"context"
	"fmt"
	"net/netip"
	"time"

	"github.com/netreach/icmprobe/internal/wire"
	"golang.org/x/net/icmp"
	"golang.org/x/sync/errgroup"
)

// Multi joins the v4 and v6 sockets into the single Conn the engine's main
// loop owns, so the scheduler never has to know whether it's probing one
// address family or both. Each sub-conn's blocking Receive runs on its own
// goroutine, feeding a shared channel the engine's single-threaded Receive
// drains from — the only goroutine pair in this repository, confined to
// socket multiplexing rather than the probe scheduler itself.
type Multi struct {
	v4, v6 Conn

	packets chan Packet
	errs    chan error
	done    chan struct{}
}

// OpenMulti opens a socket for every family in families (4 and/or 6) and
// returns a Conn that multiplexes all of them.
func OpenMulti(families []int, kind wire.Kind, opts Options) (*Multi, error) {
	m := &Multi{
		packets: make(chan Packet, 16),
		errs:    make(chan error, 4),
		done:    make(chan struct{}),
	}

	for _, fam := range families {
		c, err := Open(fam, kind, opts)
		if err != nil {
			m.Close()
			return nil, fmt.Errorf("rawsock: open family %d: %w", fam, err)
		}
		switch fam {
		case 4:
			m.v4 = c
		case 6:
			m.v6 = c
		default:
			c.Close()
			m.Close()
			return nil, fmt.Errorf("rawsock: unknown address family %d", fam)
		}
	}

	if m.v4 != nil {
		go m.pump(m.v4)
	}
	if m.v6 != nil {
		go m.pump(m.v6)
	}
	return m, nil
}

func (m *Multi) pump(c Conn) {
	ctx := context.Background()
	for {
		select {
		case <-m.done:
			return
		default:
		}
		pkt, ok, err := c.Receive(ctx, 200*time.Millisecond)
		if err != nil {
			select {
			case m.errs <- err:
			case <-m.done:
			}
			return
		}
		if !ok {
			continue
		}
		select {
		case m.packets <- pkt:
		case <-m.done:
			return
		}
	}
}

// Send picks the sub-conn matching dst's address family.
func (m *Multi) Send(ctx context.Context, dst netip.Addr, msg *icmp.Message) error {
	if dst.Is4() {
		if m.v4 == nil {
			return fmt.Errorf("rawsock: no IPv4 socket open")
		}
		return m.v4.Send(ctx, dst, msg)
	}
	if m.v6 == nil {
		return fmt.Errorf("rawsock: no IPv6 socket open")
	}
	return m.v6.Send(ctx, dst, msg)
}

// Receive returns the next packet from either sub-conn, waiting up to wait.
func (m *Multi) Receive(ctx context.Context, wait time.Duration) (Packet, bool, error) {
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case pkt := <-m.packets:
		return pkt, true, nil
	case err := <-m.errs:
		return Packet{}, false, err
	case <-timer.C:
		return Packet{}, false, nil
	case <-ctx.Done():
		return Packet{}, false, ctx.Err()
	}
}

// Close signals the pump goroutines to stop and shuts down both sub-conns
// concurrently, waiting for those Close calls; it does not wait for the
// pump goroutines to return.
func (m *Multi) Close() error {
	close(m.done)

	var g errgroup.Group
	if m.v4 != nil {
		c := m.v4
		g.Go(c.Close)
	}
	if m.v6 != nil {
		c := m.v6
		g.Go(c.Close)
	}
	return g.Wait()
}
