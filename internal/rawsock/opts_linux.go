//go:build linux

package rawsock

import (
	"fmt"
	"net"

	"github.com/mdlayher/socket"
	"github.com/netreach/icmprobe/internal/wire"
	"golang.org/x/sys/unix"
)

func netInterfaceByName(name string) (int, error) {
	ifi, err := net.InterfaceByName(name)
	if err != nil {
		return 0, fmt.Errorf("rawsock: lookup interface %q: %w", name, err)
	}
	return ifi.Index, nil
}

func applyFilter(c *socket.Conn, family int, kind wire.Kind) error {
	if family == 4 {
		f := ipv4FilterForKind(kind)
		return c.SetsockoptInt(unix.SOL_RAW, unix.ICMP_FILTER, int(f.data))
	}
	f := ipv6FilterForKind()
	return c.SetsockoptICMPv6Filter(unix.SOL_ICMPV6, unix.ICMPV6_FILTER, &unix.ICMPv6Filter{Data: f.data})
}

func setTTL(c *socket.Conn, family, ttl int) error {
	if family == 4 {
		return c.SetsockoptInt(unix.SOL_IP, unix.IP_TTL, ttl)
	}
	return c.SetsockoptInt(unix.SOL_IPV6, unix.IPV6_UNICAST_HOPS, ttl)
}

func setTOS(c *socket.Conn, family, tos int) error {
	if family == 4 {
		return c.SetsockoptInt(unix.SOL_IP, unix.IP_TOS, tos)
	}
	return c.SetsockoptInt(unix.SOL_IPV6, unix.IPV6_TCLASS, tos)
}

func setDontFragment(c *socket.Conn, family int) error {
	if family == 4 {
		return c.SetsockoptInt(unix.SOL_IP, unix.IP_MTU_DISCOVER, unix.IP_PMTUDISC_DO)
	}
	return c.SetsockoptInt(unix.SOL_IPV6, unix.IPV6_MTU_DISCOVER, unix.IP_PMTUDISC_DO)
}
