//go:build linux

package rawsock

import (
	"fmt"
	"net"
	"net/netip"
	"strconv"

	"github.com/jsimonetti/rtnetlink"
	"github.com/mdlayher/netlink"
	"golang.org/x/sys/unix"
)

// bindAddress chooses the sockaddr to bind(2) the probe socket to. If opts
// carries an explicit source address (-S), that address wins outright. If
// opts names an interface (-I) but no source, the interface's address is
// resolved via rtnetlink. With neither set, the socket binds to the
// wildcard address and the kernel routes each send.
func bindAddress(family int, opts Options) (unix.Sockaddr, netip.Addr, error) {
	if opts.Source.IsValid() {
		var zone uint32
		if opts.Interface != "" {
			ifi, err := net.InterfaceByName(opts.Interface)
			if err != nil {
				return nil, netip.Addr{}, fmt.Errorf("rawsock: lookup interface %q: %w", opts.Interface, err)
			}
			zone = uint32(ifi.Index)
		}
		return toSockaddr(opts.Source, zone), opts.Source, nil
	}

	if opts.Interface != "" {
		ifi, err := net.InterfaceByName(opts.Interface)
		if err != nil {
			return nil, netip.Addr{}, fmt.Errorf("rawsock: lookup interface %q: %w", opts.Interface, err)
		}
		return bindSockaddrForInterface(family, ifi)
	}

	if family == 4 {
		return &unix.SockaddrInet4{}, netip.IPv4Unspecified(), nil
	}
	return &unix.SockaddrInet6{}, netip.IPv6Unspecified(), nil
}

// bindSockaddrForInterface picks an IPv4 or IPv6 bind address already
// assigned to ifi, via an RTM_GETADDR dump over rtnetlink.
func bindSockaddrForInterface(family int, ifi *net.Interface) (unix.Sockaddr, netip.Addr, error) {
	rc, err := rtnetlink.Dial(&netlink.Config{Strict: true})
	if err != nil {
		return nil, netip.Addr{}, err
	}
	defer rc.Close()

	msgs, err := rc.Execute(
		&rtnetlink.AddressMessage{Index: uint32(ifi.Index)},
		unix.RTM_GETADDR,
		netlink.Request|netlink.Dump,
	)
	if err != nil {
		return nil, netip.Addr{}, err
	}

	ams := make([]*rtnetlink.AddressMessage, len(msgs))
	for i := range msgs {
		ams[i] = msgs[i].(*rtnetlink.AddressMessage)
	}

	var (
		sa unix.Sockaddr
		ip netip.Addr
		ok bool
	)
	if family == 4 {
		sa, ip, ok = selectIPv4(ifi, ams)
	} else {
		sa, ip, ok = selectIPv6(ifi, ams)
	}
	if !ok {
		return nil, netip.Addr{}, fmt.Errorf("rawsock: no valid bind address on %q", ifi.Name)
	}
	return sa, ip, nil
}

func selectIPv4(ifi *net.Interface, msgs []*rtnetlink.AddressMessage) (unix.Sockaddr, netip.Addr, bool) {
	for _, m := range msgs {
		if m.Family != unix.AF_INET || m.Index != uint32(ifi.Index) {
			continue
		}
		ip, ok := netip.AddrFromSlice(m.Attributes.Address)
		if !ok {
			continue
		}
		ip = ip.Unmap()
		return toSockaddr(ip, 0), ip, true
	}
	return nil, netip.Addr{}, false
}

func selectIPv6(ifi *net.Interface, msgs []*rtnetlink.AddressMessage) (unix.Sockaddr, netip.Addr, bool) {
	var bind netip.Addr
	for _, m := range msgs {
		if m.Family != unix.AF_INET6 || m.Index != uint32(ifi.Index) {
			continue
		}
		ip, ok := netip.AddrFromSlice(m.Attributes.Address)
		if !ok {
			continue
		}
		if !bind.IsValid() {
			bind = ip
		}
		if !ip.IsPrivate() && ip.IsGlobalUnicast() && m.Attributes.Flags&unix.IFA_F_MANAGETEMPADDR != 0 {
			bind = ip
		}
	}
	if !bind.IsValid() {
		return nil, netip.Addr{}, false
	}
	return toSockaddr(bind, uint32(ifi.Index)), bind, true
}

// toSockaddr converts an IP address and optional IPv6 zone into the
// equivalent unix.Sockaddr.
func toSockaddr(ip netip.Addr, zone uint32) unix.Sockaddr {
	switch {
	case ip.Is4():
		return &unix.SockaddrInet4{Addr: ip.As4()}
	case ip.Is6() || !ip.IsValid():
		sa := &unix.SockaddrInet6{Addr: ip.As16()}
		if ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
			sa.ZoneId = zone
		}
		return sa
	default:
		panic("rawsock: unreachable")
	}
}

// fromSockaddr converts a unix.Sockaddr into a netip.Addr.
func fromSockaddr(sa unix.Sockaddr) netip.Addr {
	switch sa := sa.(type) {
	case *unix.SockaddrInet4:
		return netip.AddrFrom4(sa.Addr)
	case *unix.SockaddrInet6:
		addr := netip.AddrFrom16(sa.Addr)
		if sa.ZoneId > 0 {
			addr = addr.WithZone(strconv.Itoa(int(sa.ZoneId)))
		}
		return addr
	default:
		panic("rawsock: unreachable")
	}
}
