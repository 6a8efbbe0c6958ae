// Command icmprobe is a parallel ICMP reachability prober: it sends ICMP
// Echo (or Timestamp) probes to a set of targets concurrently in
// round-robin fashion and reports which hosts are alive, loss rates, and
// round-trip time statistics.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/netreach/icmprobe/internal/cliopts"
	"github.com/netreach/icmprobe/internal/engine"
	"github.com/netreach/icmprobe/internal/privilege"
	"github.com/netreach/icmprobe/internal/rawsock"
	"github.com/netreach/icmprobe/internal/report"
	"github.com/netreach/icmprobe/internal/resolve"
	"github.com/netreach/icmprobe/internal/target"
	"github.com/netreach/icmprobe/internal/wire"
	"github.com/spf13/pflag"
)

func main() {
	os.Exit(run())
}

func run() int {
	fs := pflag.NewFlagSet("icmprobe", pflag.ContinueOnError)
	o := cliopts.Register(fs)
	if err := fs.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return 0
		}
		fmt.Fprintln(os.Stderr, err)
		return 4
	}
	if err := o.Validate(fs, fs.Args()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 4
	}

	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: levelFor(o.Verbose),
	}))

	names, err := gatherNames(o)
	if err != nil {
		fmt.Fprintln(os.Stderr, "icmprobe:", err)
		return 4
	}

	cfg := buildConfig(o)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	table, families, err := resolveTargets(ctx, names, o, cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "icmprobe:", err)
		return 4
	}
	if len(families) == 0 {
		fmt.Fprintln(os.Stderr, "icmprobe: no targets resolved to any address")
		return 2
	}

	conn, exitCode := openSockets(families, cfg.Kind, socketOptions(o))
	if conn == nil {
		return exitCode
	}
	defer conn.Close()

	eng := engine.New(cfg, table, conn, log)
	reporter := report.New(os.Stdout, os.Stderr, reporterOptions(o, cfg))
	maxLabel := maxLabelLen(table)
	reporter.MaxLabelLen = maxLabel

	var netdataFmt *report.NetdataFormatter
	if o.Netdata > 0 {
		netdataFmt = report.NewNetdataFormatter(os.Stdout, o.Netdata)
	}

	wireHooks(eng, reporter, netdataFmt, o, cfg, table)

	eng.Seed()

	watchSignals(eng)

	if err := eng.Run(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "icmprobe:", err)
		return 4
	}

	return finish(eng, reporter, table, o)
}

func levelFor(verbose bool) slog.Level {
	if verbose {
		return slog.LevelDebug
	}
	return slog.LevelWarn
}

// gatherNames assembles the target-name list from positional args, -f,
// and -g.
func gatherNames(o *cliopts.Options) ([]string, error) {
	var names []string
	names = append(names, o.Targets...)

	if o.TargetFile != "" {
		fileNames, err := resolve.ReadNames(o.TargetFile)
		if err != nil {
			return nil, err
		}
		names = append(names, fileNames...)
	}

	if len(o.GenerateArgs) > 0 {
		genNames, err := expandGenerateArgs(o.GenerateArgs)
		if err != nil {
			return nil, err
		}
		names = append(names, genNames...)
	}

	return names, nil
}

// expandGenerateArgs implements -g's two forms: a single CIDR prefix, or
// two address endpoints of an inclusive range.
func expandGenerateArgs(args []string) ([]string, error) {
	switch len(args) {
	case 1:
		prefix, err := parsePrefixOrHost(args[0])
		if err != nil {
			return nil, fmt.Errorf("-g: %w", err)
		}
		return resolve.ExpandCIDR(prefix)
	case 2:
		start, err := parseAddr(args[0])
		if err != nil {
			return nil, fmt.Errorf("-g: %w", err)
		}
		end, err := parseAddr(args[1])
		if err != nil {
			return nil, fmt.Errorf("-g: %w", err)
		}
		return resolve.ExpandRange(start, end)
	default:
		return nil, fmt.Errorf("-g: expected one CIDR prefix or two range endpoints, got %d values", len(args))
	}
}

func buildConfig(o *cliopts.Options) engine.Config {
	mode := engine.ModeOneShot
	switch {
	case o.Loop:
		mode = engine.ModeLoop
	case o.Count > 0:
		mode = engine.ModeCount
	}

	kind := wire.KindEchoV4
	if o.ICMPTimestamp {
		kind = wire.KindTimestampV4
	} else if o.IPv6Only {
		kind = wire.KindEchoV6
	}

	reportInterval := o.ReportInterval
	if o.Netdata > reportInterval {
		reportInterval = o.Netdata
	}

	return engine.Config{
		Kind:            kind,
		Mode:            mode,
		Interval:        o.Interval,
		PerhostInterval: o.PerhostInterval,
		Timeout:         o.Timeout,
		Retry:           o.Retry,
		Backoff:         o.Backoff,
		BackoffEnabled:  true,
		Count:           o.Count,
		ReportInterval:  reportInterval,
		CheckSource:     o.CheckSource,
		FastReachable:   o.FastReachable,
		PayloadSize:     o.PayloadSize,
		Randomize:       o.Randomize,
	}
}

func socketOptions(o *cliopts.Options) rawsock.Options {
	opts := rawsock.Options{
		Interface:    o.Interface,
		DontFragment: o.DontFragment,
	}
	if o.HaveTTL {
		opts.TTL = o.TTL
	}
	if o.HaveTOS {
		opts.TOS = o.TOS
	}
	if o.HaveMark {
		opts.Mark = o.Mark
	}
	if o.Source != "" {
		if addr, err := parseAddr(o.Source); err == nil {
			opts.Source = addr
		}
	}
	return opts
}

// resolveTargets resolves every gathered name to an address, building the
// target table. Names that fail to resolve are kept in the table with
// NoAddr set, so they still count toward the exit-code tally.
func resolveTargets(ctx context.Context, names []string, o *cliopts.Options, cfg engine.Config) (*target.Table, []int, error) {
	if len(names) == 0 {
		return nil, nil, fmt.Errorf("no targets specified")
	}

	storageCount := cfg.EventStorageCount()
	baseTimeout := int64(cfg.Timeout)

	seenFamilies := map[int]bool{}
	hosts := make([]*target.Host, 0, len(names))

	for i, name := range names {
		h := target.NewHost(i, name, storageCount, baseTimeout)
		addr, err := resolve.Resolve(ctx, name, o.Family())
		if err != nil {
			h.NoAddr = true
			hosts = append(hosts, h)
			continue
		}
		h.Addr = addr
		h.Label = resolve.DisplayLabel(ctx, name, addr, o.NumericOutput, o.ReverseDNS || o.NameResolution)

		family := 4
		if addr.Is6() && !addr.Is4In6() {
			family = 6
		}
		seenFamilies[family] = true

		hosts = append(hosts, h)
	}

	var families []int
	for _, f := range []int{4, 6} {
		if seenFamilies[f] {
			families = append(families, f)
		}
	}

	return target.NewTable(hosts), families, nil
}

func openSockets(families []int, kind wire.Kind, opts rawsock.Options) (*rawsock.Multi, int) {
	dropper := privilege.New()

	var conn *rawsock.Multi
	err := dropper.Elevated(func() error {
		c, err := rawsock.OpenMulti(families, kind, opts)
		if err != nil {
			return err
		}
		conn = c
		return nil
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "icmprobe: open socket:", err)
		if isUnsupportedPlatform(err) {
			return nil, 3
		}
		return nil, 4
	}

	if err := dropper.Drop(); err != nil {
		fmt.Fprintln(os.Stderr, "icmprobe: drop privileges:", err)
		conn.Close()
		return nil, 4
	}

	return conn, 0
}

func isUnsupportedPlatform(err error) bool {
	return errors.Is(err, rawsock.ErrUnsupportedPlatform)
}

func maxLabelLen(table *target.Table) int {
	n := 0
	for _, h := range table.Hosts {
		if len(h.Label) > n {
			n = len(h.Label)
		}
	}
	return n
}

func reporterOptions(o *cliopts.Options, cfg engine.Config) report.Options {
	return report.Options{
		Quiet:           o.Quiet,
		Verbose:         o.Verbose,
		AliveOnly:       o.AliveOnly,
		UnreachableOnly: o.UnreachableOnly,
		PerReply:        cfg.Mode == engine.ModeOneShot,
		Elapsed:         o.ElapsedSuffix,
		Outage:          o.Outage,
		AllTrials:       o.ReportAllTrials,
		PrintTOS:        o.PrintTOS,
		PrintTTL:        o.PrintTTL,
		Timestamp:       o.TimestampFormat,
	}
}

// watchSignals wires SIGQUIT to the engine's interval-snapshot request.
// SIGINT/SIGTERM are already folded into ctx by signal.NotifyContext, and
// the engine's main loop checks ctx.Err() each iteration.
func watchSignals(eng *engine.Engine) {
	sigquit := make(chan os.Signal, 1)
	signal.Notify(sigquit, syscall.SIGQUIT)
	go func() {
		for range sigquit {
			eng.RequestSnapshot()
		}
	}()
}

// wireHooks connects the engine's observation callbacks to the textual and
// netdata reporters.
func wireHooks(eng *engine.Engine, r *report.Reporter, nd *report.NetdataFormatter, o *cliopts.Options, cfg engine.Config, table *target.Table) {
	eng.Hooks = engine.Hooks{
		Reply: func(h *target.Host, trial, bytes int, rtt time.Duration, dup bool, source netip.Addr, ts *engine.ReplyTimestamps) {
			from := ""
			if source != h.Addr {
				from = source.String()
			}
			if dup {
				r.Duplicate(h.Label, trial, bytes, rtt, from)
				return
			}

			var extra report.ReplyExtra
			extra.From = from
			if ts != nil {
				extra.Timestamps = &report.TimestampFields{
					Originate:    ts.Originate,
					Receive:      ts.Receive,
					Transmit:     ts.Transmit,
					LocalReceive: ts.LocalReceive,
				}
			}

			avg := time.Duration(h.Cumulative.AvgRTT())
			r.PerReply(time.Now(), h.Label, trial, bytes, rtt, avg, h.Cumulative.Sent, h.Cumulative.Recv, h.Cumulative.RecvTotal, extra)
		},
		FirstAlive: func(h *target.Host) {
			r.FirstAlive(h.Label, time.Now())
		},
		TimedOut: func(h *target.Host, trial int) {
			haveAvg := h.Cumulative.Recv > 0
			avg := time.Duration(h.Cumulative.AvgRTT())
			r.TimedOut(time.Now(), h.Label, trial, h.Cumulative.Sent, h.Cumulative.Recv, avg, haveAvg)
		},
		SendError: func(h *target.Host, err error) {
			r.Warning("icmprobe: %s: send error: %v\n", h.Label, err)
		},
		OtherICMP: func(h *target.Host, detail string) {
			r.Warning("icmprobe: %s: %s\n", h.Label, detail)
		},
		PeriodicReport: func() {
			emitPeriodicReport(r, nd, o, table)
		},
	}
}

func emitPeriodicReport(r *report.Reporter, nd *report.NetdataFormatter, o *cliopts.Options, table *target.Table) {
	for _, h := range table.Hosts {
		if h.NoAddr {
			continue
		}
		if nd != nil {
			nd.Emit(report.HostSplit{
				ChartName: netdataSafeName(h.Label),
				Host:      h.Label,
				NumSent:   h.Interval.Sent,
				NumRecv:   h.Interval.Recv,
				MinRTT:    time.Duration(h.Interval.MinRTT),
				AvgRTT:    time.Duration(h.Interval.AvgRTT()),
				MaxRTT:    time.Duration(h.Interval.MaxRTT),
				HaveRTT:   h.Interval.Recv > 0,
			})
		} else {
			r.PerTargetSummary(report.TargetSummary{
				Label:        h.Label,
				NumSent:      h.Interval.Sent,
				NumRecv:      h.Interval.Recv,
				NumRecvTotal: h.Interval.RecvTotal,
				MinRTT:       time.Duration(h.Interval.MinRTT),
				MaxRTT:       time.Duration(h.Interval.MaxRTT),
				SumRTT:       time.Duration(h.Interval.SumRTT),
			})
		}

		cumulative := o.NetdataCumulative
		if nd == nil {
			cumulative = o.ReportCumulative
		}
		if !cumulative {
			h.ResetInterval()
		}
	}
}

func netdataSafeName(label string) string {
	b := []byte(label)
	for i, c := range b {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		default:
			b[i] = '_'
		}
	}
	return string(b)
}

// finish tallies unreachable hosts, prints the configured summaries, and
// returns the process exit code.
func finish(eng *engine.Engine, r *report.Reporter, table *target.Table, o *cliopts.Options) int {
	for _, h := range table.Hosts {
		if h.NoAddr {
			fmt.Fprintf(os.Stderr, "icmprobe: %s: no address\n", h.Label)
			continue
		}
		if !h.Alive && (o.Verbose || o.UnreachableOnly) {
			r.Unreachable(h.Label, o.Verbose)
		}
	}

	if o.PerTargetStats || o.ReportAllTrials {
		for _, h := range table.Hosts {
			if h.NoAddr {
				continue
			}
			trials := make([]time.Duration, len(h.RespTimes))
			for i, v := range h.RespTimes {
				if v >= 0 {
					trials[i] = time.Duration(v)
				} else {
					trials[i] = -1
				}
			}
			r.PerTargetSummary(report.TargetSummary{
				Label:                   h.Label,
				NumSent:                 h.Cumulative.Sent,
				NumRecv:                 h.Cumulative.Recv,
				NumRecvTotal:            h.Cumulative.RecvTotal,
				MinRTT:                  time.Duration(h.Cumulative.MinRTT),
				MaxRTT:                  time.Duration(h.Cumulative.MaxRTT),
				SumRTT:                  time.Duration(h.Cumulative.SumRTT),
				Trials:                  trials,
				OutagePerhostIntervalMS: o.PerhostInterval.Milliseconds(),
			})
		}
	}

	if !o.Quiet {
		snap := eng.Snapshot()
		r.Print(report.GlobalSummary{
			Alive:        snap.Alive,
			Unreachable:  snap.Unreachable,
			NoAddress:    snap.NoAddress,
			ICMPSent:     snap.ICMPSent,
			ICMPRecv:     snap.ICMPRecv,
			ICMPOther:    snap.ICMPOther,
			MinRTT:       snap.MinRTT,
			AvgRTT:       snap.AvgRTT,
			MaxRTT:       snap.MaxRTT,
			TotalReplies: snap.TotalReplies,
			Elapsed:      eng.Elapsed(),
		})
	}

	if o.HaveMinReachable {
		r.ReachableVerdict(o.MinReachable, eng.Snapshot().Alive, len(table.Hosts))
	}

	return eng.ExitCode(o.MinReachable, o.HaveMinReachable)
}

func parseAddr(s string) (netip.Addr, error) {
	a, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("invalid address %q: %w", s, err)
	}
	return a, nil
}

// parsePrefixOrHost accepts either a CIDR prefix or a bare address (treated
// as a /32 or /128 host prefix), matching -g's single-argument form.
func parsePrefixOrHost(s string) (netip.Prefix, error) {
	if p, err := netip.ParsePrefix(s); err == nil {
		return p, nil
	}
	a, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Prefix{}, fmt.Errorf("invalid CIDR or address %q", s)
	}
	return netip.PrefixFrom(a, a.BitLen()), nil
}
