package engine

import (
	"context"

	"github.com/netreach/icmprobe/internal/queue"
)

// handleTimeout handles one timeout event; it has already been dequeued
// by the caller. It folds the miss into the stats
// windows, fires the caller's hook, and — one-shot mode only, and only
// while retries remain — applies backoff and re-dispatches immediately so
// the retry is scheduled coherently with everything else in this
// iteration.
func (e *Engine) handleTimeout(ctx context.Context, ev *queue.Event) {
	h := e.Table.Hosts[ev.Host]
	ping := ev.Ping

	recordTimeout(h, ping)
	if h.Outstanding > 0 {
		h.Outstanding--
	}

	if e.Hooks.TimedOut != nil {
		e.Hooks.TimedOut(h, ping)
	}

	if e.Cfg.Mode == ModeOneShot && h.NumSent < e.Cfg.Retry+1 {
		if e.Cfg.BackoffEnabled {
			h.Timeout = int64(float64(h.Timeout) * e.Cfg.Backoff)
		}
		next := h.PingSlot(ping + 1)
		next.Host = ev.Host
		next.Ping = ping + 1
		next.Due = e.Clock.Now()
		e.PingQ.Enqueue(next)
	}
}
