//go:build linux

package rawsock

import (
	"context"
	"fmt"
	"net/netip"
	"time"

	"github.com/mdlayher/socket"
	"github.com/netreach/icmprobe/internal/wire"
	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
	"golang.org/x/sys/unix"
)

type conn struct {
	c       *socket.Conn
	family  int
	ifIndex uint32
	b       []byte
}

func open(family int, kind wire.Kind, opts Options) (Conn, error) {
	sa, _, err := bindAddress(family, opts)
	if err != nil {
		return nil, err
	}

	var (
		domain, proto int
		name          string
	)
	if family == 4 {
		domain, proto, name = unix.AF_INET, unix.IPPROTO_ICMP, "icmprobe-ipv4"
	} else {
		domain, proto, name = unix.AF_INET6, unix.IPPROTO_ICMPV6, "icmprobe-ipv6"
	}

	c, err := socket.Socket(domain, unix.SOCK_RAW, proto, name, nil)
	if err != nil {
		return nil, fmt.Errorf("rawsock: socket: %w", err)
	}
	ok := false
	defer func() {
		if !ok {
			_ = c.Close()
		}
	}()

	var ifIndex uint32
	if opts.Interface != "" {
		idx, err := netInterfaceByName(opts.Interface)
		if err != nil {
			return nil, err
		}
		ifIndex = uint32(idx)
		if err := c.SetsockoptInt(unix.SOL_SOCKET, unix.SO_BINDTOIFINDEX, idx); err != nil {
			return nil, fmt.Errorf("rawsock: SO_BINDTOIFINDEX: %w", err)
		}
	}

	if err := applyFilter(c, family, kind); err != nil {
		return nil, err
	}

	// Best-effort options: never fatal a probe run over a TTL/TOS/DF/mark
	// the kernel happens to reject.
	if opts.TTL > 0 {
		_ = setTTL(c, family, opts.TTL)
	}
	if opts.TOS > 0 {
		_ = setTOS(c, family, opts.TOS)
	}
	if opts.DontFragment {
		_ = setDontFragment(c, family)
	}
	if opts.Mark > 0 {
		_ = c.SetsockoptInt(unix.SOL_SOCKET, unix.SO_MARK, opts.Mark)
	}

	if err := c.Bind(sa); err != nil {
		return nil, fmt.Errorf("rawsock: bind: %w", err)
	}

	ok = true
	return &conn{c: c, family: family, ifIndex: ifIndex, b: make([]byte, 65535)}, nil
}

func (c *conn) Close() error { return c.c.Close() }

func (c *conn) Send(ctx context.Context, dst netip.Addr, msg *icmp.Message) error {
	b, err := msg.Marshal(nil)
	if err != nil {
		return fmt.Errorf("rawsock: marshal: %w", err)
	}

	var zone uint32
	if c.family == 6 {
		zone = c.ifIndex
	}
	return c.c.Sendto(ctx, b, 0, toSockaddr(dst, zone))
}

func (c *conn) Receive(ctx context.Context, wait time.Duration) (Packet, bool, error) {
	rctx := ctx
	var cancel context.CancelFunc
	if wait > 0 {
		rctx, cancel = context.WithTimeout(ctx, wait)
		defer cancel()
	}

	n, addr, err := c.c.Recvfrom(rctx, c.b, 0)
	if err != nil {
		if rctx.Err() != nil && ctx.Err() == nil {
			// Only our own deadline fired: a plain receive timeout.
			return Packet{}, false, nil
		}
		return Packet{}, false, err
	}

	raw := c.b[:n]
	proto := unix.IPPROTO_ICMP
	if c.family == 4 {
		// Raw ICMPv4 sockets return the IPv4 header; strip it.
		h, err := ipv4.ParseHeader(raw)
		if err != nil {
			return Packet{}, false, fmt.Errorf("rawsock: parse ipv4 header: %w", err)
		}
		raw = raw[h.Len:n]
	} else {
		proto = unix.IPPROTO_ICMPV6
	}

	m, err := icmp.ParseMessage(proto, raw)
	if err != nil {
		return Packet{}, false, fmt.Errorf("rawsock: parse icmp message: %w", err)
	}

	// mdlayher/socket.Conn exposes Recvfrom, not Recvmsg, so no control
	// message (and thus no SO_TIMESTAMPNS-derived kernel receive time) is
	// available here. The correlator falls back to its own clock instead;
	// absence of a kernel timestamp is not an error.
	return Packet{Message: m, Source: fromSockaddr(addr)}, true, nil
}
