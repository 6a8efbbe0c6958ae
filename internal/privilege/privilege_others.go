//go:build !linux

package privilege

import "os"

func newDropper() *Dropper {
	return &Dropper{startUID: os.Getuid(), startEUID: os.Geteuid()}
}

// Drop is a no-op on platforms without setresuid-style privilege
// separation support in this engine.
func (d *Dropper) Drop() error {
	d.dropped = true
	return nil
}

// Elevated simply invokes fn: unsupported platforms never dropped in the
// first place, so there is nothing to restore.
func (d *Dropper) Elevated(fn func() error) error { return fn() }
