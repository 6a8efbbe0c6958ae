//go:build !linux

package rawsock

import (
	"context"
	"fmt"
	"net/netip"
	"runtime"
	"time"

	"github.com/netreach/icmprobe/internal/wire"
	"golang.org/x/net/icmp"
)

var errUnimplemented = fmt.Errorf("%w: %s", ErrUnsupportedPlatform, runtime.GOOS)

type conn struct{}

func open(int, wire.Kind, Options) (Conn, error) { return nil, errUnimplemented }

func (*conn) Close() error { return errUnimplemented }
func (*conn) Send(context.Context, netip.Addr, *icmp.Message) error {
	return errUnimplemented
}
func (*conn) Receive(context.Context, time.Duration) (Packet, bool, error) {
	return Packet{}, false, errUnimplemented
}
