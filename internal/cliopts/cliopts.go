// Package cliopts declares icmprobe's command-line surface and validates
// it into the concrete configuration the engine and reporter consume.
package cliopts

import (
	"time"

	"github.com/netreach/icmprobe/internal/report"
	"github.com/spf13/pflag"
)

const (
	defaultInterval        = 25 * time.Millisecond
	defaultPerhostInterval = 1000 * time.Millisecond
	defaultTimeout         = 500 * time.Millisecond
	defaultRetry           = 3
	defaultBackoff         = 1.5
	minBackoff             = 1.0
	maxBackoff             = 5.0
	defaultPayloadSize     = 56
	minSafeInterval        = 1 * time.Millisecond
	minSafePerhostInterval = 10 * time.Millisecond
)

// Options is the fully-parsed, validated CLI configuration. It mirrors the
// fping option set named in the external-interfaces surface: address
// family, target sourcing, timing, packet shaping, and output selection.
type Options struct {
	// Address family.
	IPv4Only bool
	IPv6Only bool

	// Targets.
	Targets      []string
	TargetFile   string
	GenerateArgs []string

	// Timing.
	Interval        time.Duration
	PerhostInterval time.Duration
	Timeout         time.Duration
	Retry           int
	Backoff         float64
	Count           int
	ReportAllTrials bool // -C
	Loop            bool
	ReportInterval  time.Duration // -Q
	ReportCumulative bool         // -Q SECS,cumulative

	// Packet shaping.
	PayloadSize   int
	TTL           int
	HaveTTL       bool
	DontFragment  bool
	TOS           int
	HaveTOS       bool
	Source        string
	Interface     string
	Mark          int
	HaveMark      bool
	Randomize     bool
	ICMPTimestamp bool

	// Output.
	AliveOnly        bool
	UnreachableOnly  bool
	ReverseDNS       bool // -d
	NumericOutput    bool // -n
	ASNumeric        bool // -A
	ElapsedSuffix    bool // -e
	Quiet            bool
	PerTargetStats   bool // -s
	NameResolution   bool // -N
	Outage           bool // -o
	Verbose          bool
	FastReachable    int // -X / --fast-reachable, first N replies end the run
	MinReachable     int // -x / --reachable
	HaveMinReachable bool
	CheckSource      bool
	PrintTOS         bool
	PrintTTL         bool
	TimestampFormat  report.TimestampFormat
	Netdata          time.Duration // -Q-style netdata split interval, 0 disables
	NetdataCumulative bool

	allowUnsafeTiming bool
	timestampFormatArg string
	netdataArg         string
	reportArg          string
}

// Register binds every CLI flag in the surface to fs and returns an
// Options whose fields fs.Parse fills in; call Validate afterward.
func Register(fs *pflag.FlagSet) *Options {
	o := &Options{}

	fs.BoolVarP(&o.IPv4Only, "ipv4", "4", false, "force IPv4 resolution")
	fs.BoolVarP(&o.IPv6Only, "ipv6", "6", false, "force IPv6 resolution")

	fs.StringVarP(&o.TargetFile, "file", "f", "", "read target list from FILE ('-' for stdin)")
	fs.StringSliceVarP(&o.GenerateArgs, "generate", "g", nil, "generate targets from a CIDR prefix or address range")

	fs.DurationVarP(&o.Interval, "interval", "i", defaultInterval, "global minimum gap between sends")
	fs.DurationVarP(&o.PerhostInterval, "period", "p", defaultPerhostInterval, "minimum gap between sends to the same host")
	fs.DurationVarP(&o.Timeout, "timeout", "t", defaultTimeout, "per-probe reply timeout")
	fs.IntVarP(&o.Retry, "retry", "r", defaultRetry, "retries for an unresponsive host in one-shot mode")
	fs.Float64VarP(&o.Backoff, "backoff", "B", defaultBackoff, "timeout growth factor after a miss (one-shot mode)")
	fs.IntVarP(&o.Count, "count", "c", 0, "number of requests to send to each target")
	fs.IntVarP(&o.Count, "vcount", "C", 0, "like --count, but always reports every trial's RTT")
	fs.BoolVarP(&o.Loop, "loop", "l", false, "loop, pinging forever")
	fs.StringVarP(&o.reportArg, "period-report", "Q", "", "SECS[,cumulative]: emit a periodic split report every SECS seconds")

	fs.IntVarP(&o.PayloadSize, "bytes", "b", defaultPayloadSize, "ICMP Echo payload size in bytes")
	fs.IntVarP(&o.TTL, "ttl", "H", 0, "set the IP TTL/hop limit")
	fs.BoolVarP(&o.DontFragment, "dont-fragment", "M", false, "set the don't-fragment bit")
	fs.IntVarP(&o.TOS, "tos", "O", 0, "set the IP TOS/traffic class")
	fs.StringVarP(&o.Source, "src", "S", "", "bind to this source address")
	fs.StringVarP(&o.Interface, "iface", "I", "", "bind to this interface")
	fs.IntVarP(&o.Mark, "fwmark", "k", 0, "set SO_MARK on the probe socket")
	fs.BoolVarP(&o.Randomize, "random", "R", false, "randomize the Echo payload bytes")
	fs.BoolVar(&o.ICMPTimestamp, "icmp-timestamp", false, "send ICMP Timestamp requests instead of Echo (IPv4 only)")

	fs.BoolVarP(&o.AliveOnly, "alive", "a", false, "show targets that are alive")
	fs.BoolVarP(&o.UnreachableOnly, "unreachable", "u", false, "show targets that are unreachable")
	fs.BoolVarP(&o.ReverseDNS, "rdns", "d", false, "display the reverse-DNS name of each target's address")
	fs.BoolVarP(&o.NumericOutput, "numeric", "n", false, "display numeric addresses instead of names")
	fs.BoolVarP(&o.ASNumeric, "as-numeric", "A", false, "accepted; no output path reads it")
	fs.BoolVarP(&o.ElapsedSuffix, "elapsed", "e", false, "show elapsed time on return packets")
	fs.BoolVarP(&o.Quiet, "quiet", "q", false, "quiet, suppress per-probe output")
	fs.BoolVarP(&o.PerTargetStats, "stats", "s", false, "print per-target statistics at the end")
	fs.BoolVarP(&o.NameResolution, "name", "N", false, "show target names instead of addresses where possible")
	fs.BoolVarP(&o.Outage, "outage", "o", false, "show cumulative outage time in per-target stats")
	fs.BoolVarP(&o.Verbose, "verbose", "v", false, "verbose output")
	fs.IntVarP(&o.MinReachable, "reachable", "x", 0, "override exit code: 0 if at least N targets are reachable")
	fs.IntVarP(&o.FastReachable, "fast-reachable", "X", 0, "exit as soon as N targets are reachable")
	fs.BoolVar(&o.CheckSource, "check-source", false, "discard replies whose source doesn't match the target")
	fs.BoolVar(&o.PrintTOS, "print-tos", false, "add a TOS field to each reply line (always printed as unknown: the socket layer does not capture it)")
	fs.BoolVar(&o.PrintTTL, "print-ttl", false, "add a TTL field to each reply line (always printed as unknown: the socket layer does not capture it)")
	fs.StringVar(&o.timestampFormatArg, "timestamp-format", "", "prefix output lines with a timestamp: ctime|iso|rfc3339")

	fs.StringVarP(&o.netdataArg, "netdata", "Z", "", "SECS[,cumulative]: emit netdata split reports every SECS seconds")

	fs.BoolVar(&o.allowUnsafeTiming, "unsafe-timing", false, "allow intervals below the safe-limits floor (no privilege check is made)")

	return o
}
