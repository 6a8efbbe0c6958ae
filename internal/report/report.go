// Package report renders the engine's statistics as the textual and
// machine-readable output formats: per-reply lines, per-target summaries,
// the global summary, and a netdata-compatible split format.
package report

import (
	"fmt"
	"io"
	"math"
	"strings"
	"time"
)

// TimestampFormat selects the prefix applied to output lines under
// --timestamp-format.
type TimestampFormat int

const (
	// TimestampNone means no timestamp prefix is printed.
	TimestampNone TimestampFormat = iota
	// TimestampCtime matches C's ctime(3): "Mon Jan  2 15:04:05 2006".
	TimestampCtime
	// TimestampISO is "2006-01-02 15:04:05".
	TimestampISO
	// TimestampRFC3339 is time.RFC3339.
	TimestampRFC3339
)

// ParseTimestampFormat parses the --timestamp-format argument.
func ParseTimestampFormat(s string) (TimestampFormat, error) {
	switch strings.ToLower(s) {
	case "", "none":
		return TimestampNone, nil
	case "ctime":
		return TimestampCtime, nil
	case "iso":
		return TimestampISO, nil
	case "rfc3339":
		return TimestampRFC3339, nil
	default:
		return TimestampNone, fmt.Errorf("report: unknown timestamp format %q", s)
	}
}

// Format renders t per the selected format, or "" for TimestampNone.
func (f TimestampFormat) Format(t time.Time) string {
	switch f {
	case TimestampCtime:
		return t.Format("Mon Jan _2 15:04:05 2006")
	case TimestampISO:
		return t.Format("2006-01-02 15:04:05")
	case TimestampRFC3339:
		return t.Format(time.RFC3339)
	default:
		return ""
	}
}

// FormatRTT renders a nanosecond duration as a millisecond string with
// roughly three significant digits, narrowing precision as the value
// grows so columns stay readable.
func FormatRTT(ns int64) string {
	t := float64(ns) / 1e6
	switch {
	case t < 0:
		return fmt.Sprintf("%.2g", t)
	case t < 1.0:
		return fmt.Sprintf("%.3f", t)
	case t < 10.0:
		return fmt.Sprintf("%.2f", t)
	case t < 100.0:
		return fmt.Sprintf("%.1f", t)
	case t < 1e6:
		return fmt.Sprintf("%.0f", t)
	default:
		return fmt.Sprintf("%.3e", t)
	}
}

// Options controls which optional adornments Reporter attaches to output.
type Options struct {
	Quiet          bool
	Verbose        bool
	AliveOnly      bool // -a
	UnreachableOnly bool // -u
	PerReply       bool // default report.Options.PerReply = !loop && !count, or forced by caller
	Elapsed        bool // -e
	Outage         bool // -o
	AllTrials      bool // -C
	PrintTOS       bool
	PrintTTL       bool
	Timestamp      TimestampFormat
}

// Reporter writes the human-readable per-reply, per-target, and summary lines.
type Reporter struct {
	Out         io.Writer
	Err         io.Writer
	Opts        Options
	MaxLabelLen int
}

// New constructs a Reporter writing replies/alive lines to out and
// warnings/summaries to errOut, mirroring fping's stdout/stderr split.
func New(out, errOut io.Writer, opts Options) *Reporter {
	return &Reporter{Out: out, Err: errOut, Opts: opts}
}

func (r *Reporter) timestampPrefix(now time.Time) string {
	if r.Opts.Timestamp == TimestampNone {
		return ""
	}
	return r.Opts.Timestamp.Format(now) + " : "
}

func (r *Reporter) label(s string) string {
	return fmt.Sprintf("%-*s", r.MaxLabelLen, s)
}

// Warning prints a formatted warning to Err unless Quiet is set.
func (r *Reporter) Warning(format string, args ...any) {
	if r.Opts.Quiet {
		return
	}
	fmt.Fprintf(r.Err, format, args...)
}

// ReplyExtra carries the optional adornments a reply line may show.
type ReplyExtra struct {
	From       string // non-empty when the reply source differs from the target
	TOS        int
	HaveTOS    bool
	TTL        int
	HaveTTL    bool
	Timestamps *TimestampFields
}

// TimestampFields holds the four values printed for an ICMP Timestamp reply.
type TimestampFields struct {
	Originate, Receive, Transmit, LocalReceive uint32
}

// FirstAlive prints the "host is alive" announcement the first time a host
// replies, honoring -a/-v.
func (r *Reporter) FirstAlive(label string, now time.Time) {
	if !r.Opts.Verbose && !r.Opts.AliveOnly {
		return
	}
	fmt.Fprint(r.Out, r.timestampPrefix(now))
	fmt.Fprint(r.Out, label)
	if r.Opts.Verbose {
		fmt.Fprint(r.Out, " is alive")
	}
}

// PerReply prints one received-probe line, matching fping's per_recv_flag
// output: "label : [trial], N bytes, RTT ms (AVG avg, LOSS% loss)".
func (r *Reporter) PerReply(now time.Time, label string, trial, bytes int, rtt, avg time.Duration, sent, recv, recvTotal int, extra ReplyExtra) {
	if !r.Opts.PerReply {
		r.finishReplyAdornments(extra, rtt)
		return
	}
	fmt.Fprint(r.Out, r.timestampPrefix(now))
	fmt.Fprintf(r.Out, "%s : [%d], %d bytes, %s ms", r.label(label), trial, bytes, FormatRTT(int64(rtt)))
	fmt.Fprintf(r.Out, " (%s avg, ", FormatRTT(int64(avg)))
	if recv <= sent {
		loss := 0
		if sent > 0 {
			loss = (sent - recv) * 100 / sent
		}
		fmt.Fprintf(r.Out, "%d%% loss)", loss)
	} else {
		ret := 0
		if sent > 0 {
			ret = recvTotal * 100 / sent
		}
		fmt.Fprintf(r.Out, "%d%% return)", ret)
	}
	r.finishReplyAdornments(extra, rtt)
}

func (r *Reporter) finishReplyAdornments(extra ReplyExtra, rtt time.Duration) {
	if !r.Opts.Verbose && !r.Opts.AliveOnly && !r.Opts.PerReply {
		return
	}
	if extra.From != "" {
		fmt.Fprintf(r.Out, " [<- %s]", extra.From)
	}
	if extra.Timestamps != nil {
		sep := ","
		if r.Opts.AliveOnly {
			sep = ""
		}
		ts := extra.Timestamps
		fmt.Fprintf(r.Out, "%s timestamps: Originate=%d Receive=%d Transmit=%d Localreceive=%d",
			sep, ts.Originate, ts.Receive, ts.Transmit, ts.LocalReceive)
	}
	if r.Opts.PrintTOS {
		if extra.HaveTOS {
			fmt.Fprintf(r.Out, " (TOS %d)", extra.TOS)
		} else {
			fmt.Fprint(r.Out, " (TOS unknown)")
		}
	}
	if r.Opts.PrintTTL {
		if extra.HaveTTL {
			fmt.Fprintf(r.Out, " (TTL %d)", extra.TTL)
		} else {
			fmt.Fprint(r.Out, " (TTL unknown)")
		}
	}
	if r.Opts.Elapsed && !r.Opts.PerReply {
		fmt.Fprintf(r.Out, " (%s ms)", FormatRTT(int64(rtt)))
	}
	fmt.Fprintln(r.Out)
}

// Duplicate prints the duplicate-reply notice unless PerReply suppresses it.
func (r *Reporter) Duplicate(label string, trial, bytes int, rtt time.Duration, from string) {
	if r.Opts.PerReply {
		return
	}
	fmt.Fprintf(r.Err, "%s : duplicate for [%d], %d bytes, %s ms", label, trial, bytes, FormatRTT(int64(rtt)))
	if from != "" {
		fmt.Fprintf(r.Err, " [<- %s]", from)
	}
	fmt.Fprintln(r.Err)
}

// TimedOut prints the timeout notice when PerReply is active.
func (r *Reporter) TimedOut(now time.Time, label string, trial, sent, recv int, avg time.Duration, haveAvg bool) {
	if !r.Opts.PerReply {
		return
	}
	fmt.Fprint(r.Out, r.timestampPrefix(now))
	fmt.Fprintf(r.Out, "%s : [%d], timed out", r.label(label), trial)
	if haveAvg {
		fmt.Fprintf(r.Out, " (%s avg, ", FormatRTT(int64(avg)))
	} else {
		fmt.Fprint(r.Out, " (NaN avg, ")
	}
	if recv <= sent {
		loss := 0
		if sent > 0 {
			loss = (sent - recv) * 100 / sent
		}
		fmt.Fprintf(r.Out, "%d%% loss)", loss)
	} else {
		fmt.Fprintf(r.Out, "%d%% return)", recv*100/sent)
	}
	fmt.Fprintln(r.Out)
}

// Unreachable prints the shutdown-time "host is unreachable" line.
func (r *Reporter) Unreachable(label string, verbose bool) {
	fmt.Fprint(r.Out, label)
	if verbose {
		fmt.Fprint(r.Out, " is unreachable")
	}
	fmt.Fprintln(r.Out)
}

// TargetSummary holds the per-host counters PerTargetSummary renders.
type TargetSummary struct {
	Label                    string
	NumSent, NumRecv         int
	NumRecvTotal             int
	MinRTT, MaxRTT, SumRTT   time.Duration
	Trials                   []time.Duration // entries < 0 mean no reply, for -C
	OutagePerhostIntervalMS  int64
}

// PerTargetSummary prints one host's stats line at shutdown, either the
// full per-trial RTT list (-C) or the xmt/rcv/%loss summary.
func (r *Reporter) PerTargetSummary(s TargetSummary) {
	fmt.Fprintf(r.Err, "%s :", r.label(s.Label))

	if r.Opts.AllTrials {
		for _, t := range s.Trials {
			if t >= 0 {
				fmt.Fprintf(r.Err, " %s", FormatRTT(int64(t)))
			} else {
				fmt.Fprint(r.Err, " -")
			}
		}
		fmt.Fprintln(r.Err)
		return
	}

	if s.NumRecv <= s.NumSent {
		loss := 0
		if s.NumSent > 0 {
			loss = (s.NumSent - s.NumRecv) * 100 / s.NumSent
		}
		fmt.Fprintf(r.Err, " xmt/rcv/%%loss = %d/%d/%d%%", s.NumSent, s.NumRecv, loss)
		if r.Opts.Outage {
			fmt.Fprintf(r.Err, ", outage(ms) = %d", (int64(s.NumSent-s.NumRecv))*s.OutagePerhostIntervalMS)
		}
	} else {
		ret := 0
		if s.NumSent > 0 {
			ret = s.NumRecv * 100 / s.NumSent
		}
		fmt.Fprintf(r.Err, " xmt/rcv/%%return = %d/%d/%d%%", s.NumSent, s.NumRecv, ret)
	}

	if s.NumRecv > 0 {
		avg := s.SumRTT / time.Duration(s.NumRecv)
		fmt.Fprintf(r.Err, ", min/avg/max = %s/%s/%s", FormatRTT(int64(s.MinRTT)), FormatRTT(int64(avg)), FormatRTT(int64(s.MaxRTT)))
	}
	fmt.Fprintln(r.Err)
}

// GlobalSummary holds the process-wide counters the final report prints.
type GlobalSummary struct {
	Alive, Unreachable, NoAddress int
	ICMPSent, ICMPRecv, ICMPOther int
	MinRTT, AvgRTT, MaxRTT        time.Duration
	TotalReplies                  int
	Elapsed                        time.Duration
}

// Print renders the global summary footer.
func (r *Reporter) Print(g GlobalSummary) {
	fmt.Fprintln(r.Err)
	fmt.Fprintf(r.Err, " %d targets\n", g.Alive+g.Unreachable+g.NoAddress)
	fmt.Fprintf(r.Err, " %d alive\n", g.Alive)
	fmt.Fprintf(r.Err, " %d unreachable\n", g.Unreachable)
	if g.NoAddress > 0 {
		fmt.Fprintf(r.Err, " %d unresolvable\n", g.NoAddress)
	}
	fmt.Fprintf(r.Err, " %d timeouts (waiting for response)\n", g.ICMPSent-g.ICMPRecv)
	fmt.Fprintf(r.Err, " %d ICMP Echos sent\n", g.ICMPSent)
	fmt.Fprintf(r.Err, " %d ICMP Echo Replies received\n", g.ICMPRecv)
	fmt.Fprintf(r.Err, " %d other ICMP received\n", g.ICMPOther)
	if g.TotalReplies > 0 {
		fmt.Fprintf(r.Err, " %s ms (min round trip time)\n", FormatRTT(int64(g.MinRTT)))
		fmt.Fprintf(r.Err, " %s ms (avg round trip time)\n", FormatRTT(int64(g.AvgRTT)))
		fmt.Fprintf(r.Err, " %s ms (max round trip time)\n", FormatRTT(int64(g.MaxRTT)))
	}
	fmt.Fprintf(r.Err, " %s sec (elapsed real time)\n", formatSeconds(g.Elapsed))
}

func formatSeconds(d time.Duration) string {
	return fmt.Sprintf("%.3f", math.Max(0, d.Seconds()))
}

// ReachableVerdict prints the --reachable=N threshold outcome.
func (r *Reporter) ReachableVerdict(required, reachable, total int) bool {
	ok := reachable >= required
	if ok {
		fmt.Fprintf(r.Out, "Enough hosts reachable (required: %d, reachable: %d)\n", required, reachable)
	} else {
		fmt.Fprintf(r.Out, "Not enough hosts reachable (required: %d, reachable: %d)\n", required, reachable)
	}
	return ok
}
