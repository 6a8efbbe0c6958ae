package engine

import "github.com/netreach/icmprobe/internal/target"

// creditRecvTotal counts every reply that matched a live sequence-map
// entry, including ones the caller will go on to discard as a duplicate,
// a wrong-source reply, or a late arrival — fping increments
// num_recv_total before any of those checks run.
func creditRecvTotal(h *target.Host) {
	h.Cumulative.RecvTotal++
	h.Interval.RecvTotal++
}

// recordSuccess folds a resolved, fresh (non-duplicate, in-window) reply
// into both the cumulative and interval windows. It is the only place Sent
// is incremented for a probe that reached resolution via a reply rather
// than a send error — mirroring fping's stats_add(), which increments
// num_sent from inside the receive and timeout paths rather than at send
// time, "so that we don't get weird loss percentage just because a packet
// was not received yet." Duplicates never reach here: they're counted by
// creditRecvTotal alone, exactly as fping's duplicate branch returns
// before calling stats_add.
func recordSuccess(h *target.Host, ping int, rtt int64) {
	addSent(&h.Cumulative)
	addSent(&h.Interval)

	h.Cumulative.Recv++
	h.Interval.Recv++
	addRTT(&h.Cumulative, rtt)
	addRTT(&h.Interval, rtt)

	if h.RespTimes != nil && ping < len(h.RespTimes) {
		h.RespTimes[ping] = rtt
	}
}

// recordTimeout folds one unanswered probe into both windows. In one-shot
// mode it runs for every timed-out attempt, including ones that are then
// retried.
func recordTimeout(h *target.Host, ping int) {
	addSent(&h.Cumulative)
	addSent(&h.Interval)

	h.Cumulative.Timeouts++
	h.Interval.Timeouts++

	if h.RespTimes != nil && ping < len(h.RespTimes) {
		h.RespTimes[ping] = target.SlotTimeout
	}
}

func addSent(s *target.Stats) { s.Sent++ }

func addRTT(s *target.Stats, rtt int64) {
	if s.MinRTT == 0 || rtt < s.MinRTT {
		s.MinRTT = rtt
	}
	if rtt > s.MaxRTT {
		s.MaxRTT = rtt
	}
	s.SumRTT += rtt
}
