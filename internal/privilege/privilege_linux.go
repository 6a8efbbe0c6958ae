//go:build linux

package privilege

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

func newDropper() *Dropper {
	return &Dropper{startUID: os.Getuid(), startEUID: os.Geteuid()}
}

// Drop lowers the effective UID to the real UID, once socket setup that
// needed elevation is complete. It is a no-op (and never fatal) if the
// process was never elevated in the first place.
func (d *Dropper) Drop() error {
	if d.startEUID == d.startUID {
		d.dropped = true
		return nil
	}
	// Keep startEUID in the saved-UID slot so Elevated can temporarily
	// restore it later, per setresuid(2) semantics.
	if err := unix.Setresuid(d.startUID, d.startUID, d.startEUID); err != nil {
		return fmt.Errorf("privilege: drop: %w", err)
	}
	d.dropped = true
	return nil
}

// Elevated runs fn with the effective UID temporarily restored to the
// process's original (privileged) effective UID, then re-drops
// immediately afterward regardless of fn's outcome. A failure to re-drop
// is fatal: it returns ErrCannotRestore wrapping the underlying error, and
// the caller must treat this as exit code 4, never continue running
// privileged.
func (d *Dropper) Elevated(fn func() error) error {
	if d.startEUID == d.startUID {
		// Never privileged; nothing to elevate.
		return fn()
	}

	if err := unix.Setresuid(-1, d.startEUID, -1); err != nil {
		return fmt.Errorf("privilege: elevate: %w", err)
	}

	fnErr := fn()

	if err := unix.Setresuid(-1, d.startUID, -1); err != nil {
		return fmt.Errorf("%w: %v", ErrCannotRestore, err)
	}

	return fnErr
}
