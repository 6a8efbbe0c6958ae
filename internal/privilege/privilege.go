// Package privilege implements a drop-after-open, re-elevate-on-demand
// model: raw ICMP sockets may need elevated privileges to open, but the
// engine should run with them dropped the rest of the time.
// Failure to re-drop after a temporary elevation is fatal (exit code 4),
// never silently continued.
package privilege

import "fmt"

// ErrCannotRestore is returned by Elevated when the effective privileges
// could not be dropped back down after a temporary re-elevation. Callers
// must treat this as fatal.
var ErrCannotRestore = fmt.Errorf("privilege: could not re-drop after temporary elevation")

// A Dropper manages one process's privilege lifecycle: open sockets and
// apply options while privileged, call Drop once, then use Elevated only
// for the rare option call (binding to an interface, setting fwmark) that
// still needs it.
type Dropper struct {
	startUID int
	startEUID int
	dropped  bool
}

// New captures the process's current real and effective UID.
func New() *Dropper {
	return newDropper()
}

// Dropped reports whether Drop has been called successfully.
func (d *Dropper) Dropped() bool { return d.dropped }
