package cliopts

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/netreach/icmprobe/internal/report"
	"github.com/spf13/pflag"
)

// Validate fills in derived fields and rejects contradictory or
// out-of-range combinations, following the uping SenderConfig.Validate
// pattern: default zero fields first, then reject what's left impossible.
// fs is the FlagSet Register built o from, used only to tell "flag never
// passed" apart from "flag passed with its zero value".
func (o *Options) Validate(fs *pflag.FlagSet, args []string) error {
	o.Targets = args

	if o.IPv4Only && o.IPv6Only {
		return fmt.Errorf("cliopts: can't specify both -4 and -6")
	}
	if o.AliveOnly && o.UnreachableOnly {
		return fmt.Errorf("cliopts: specify only one of -a, -u")
	}
	if o.ReverseDNS && o.NumericOutput {
		return fmt.Errorf("cliopts: use either one of -d or -n")
	}
	if o.Count > 0 && o.Loop {
		return fmt.Errorf("cliopts: specify only one of -c/-C, -l")
	}

	if fs.Changed("ttl") {
		o.HaveTTL = true
		if o.TTL < 1 || o.TTL > 255 {
			return fmt.Errorf("cliopts: ttl %d out of range", o.TTL)
		}
	}
	if fs.Changed("tos") {
		o.HaveTOS = true
	}
	if fs.Changed("fwmark") {
		o.HaveMark = true
	}
	if fs.Changed("reachable") {
		o.HaveMinReachable = true
	}
	if fs.Changed("vcount") {
		o.ReportAllTrials = true
	}

	if o.Backoff < minBackoff || o.Backoff > maxBackoff {
		return fmt.Errorf("cliopts: backoff factor %.1f not valid, must be between %.1f and %.1f", o.Backoff, minBackoff, maxBackoff)
	}

	if o.PayloadSize < 0 {
		return fmt.Errorf("cliopts: data size %d not valid", o.PayloadSize)
	}
	if o.ICMPTimestamp {
		if o.IPv6Only {
			return fmt.Errorf("cliopts: ICMP Timestamp is IPv4 only")
		}
		if fs.Changed("bytes") {
			return fmt.Errorf("cliopts: cannot change ICMP Timestamp size")
		}
	}

	if !o.allowUnsafeTiming {
		if o.Interval < minSafeInterval {
			return fmt.Errorf("cliopts: these options are too risky for mere mortals. You need -i >= %s and -p >= %s", minSafeInterval, minSafePerhostInterval)
		}
		if o.PerhostInterval < minSafePerhostInterval {
			return fmt.Errorf("cliopts: these options are too risky for mere mortals. You need -i >= %s and -p >= %s", minSafeInterval, minSafePerhostInterval)
		}
	}

	if o.timestampFormatArg != "" {
		tf, err := report.ParseTimestampFormat(o.timestampFormatArg)
		if err != nil {
			return fmt.Errorf("cliopts: %w", err)
		}
		o.TimestampFormat = tf
	}

	if o.netdataArg != "" {
		parts := strings.SplitN(o.netdataArg, ",", 2)
		secs, err := strconv.ParseFloat(parts[0], 64)
		if err != nil || secs <= 0 {
			return fmt.Errorf("cliopts: invalid --netdata interval %q", o.netdataArg)
		}
		o.Netdata = time.Duration(secs * float64(time.Second))
		if len(parts) == 2 && strings.TrimSpace(parts[1]) == "cumulative" {
			o.NetdataCumulative = true
		}
	}

	if o.reportArg != "" {
		parts := strings.SplitN(o.reportArg, ",", 2)
		secs, err := strconv.ParseFloat(parts[0], 64)
		if err != nil || secs <= 0 {
			return fmt.Errorf("cliopts: invalid -Q interval %q", o.reportArg)
		}
		o.ReportInterval = time.Duration(secs * float64(time.Second))
		if len(parts) == 2 && strings.TrimSpace(parts[1]) == "cumulative" {
			o.ReportCumulative = true
		}
	}

	if len(o.Targets) == 0 && o.TargetFile == "" && len(o.GenerateArgs) == 0 {
		return fmt.Errorf("cliopts: no targets specified")
	}

	return nil
}

// Family returns 4 or 6 when one address family is forced, 0 otherwise.
func (o *Options) Family() int {
	switch {
	case o.IPv4Only:
		return 4
	case o.IPv6Only:
		return 6
	default:
		return 0
	}
}
