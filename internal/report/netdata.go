package report

import (
	"fmt"
	"io"
	"time"
)

// NetdataFormatter renders per-interval host statistics as netdata's
// external-plugin protocol: one CHART/DIMENSION declaration per host and
// metric family (emitted once) followed by a BEGIN/SET/END block per
// interval.
type NetdataFormatter struct {
	w               io.Writer
	reportInterval  time.Duration
	chartsSent      map[string]bool
}

// NewNetdataFormatter constructs a formatter that declares charts using
// reportInterval as their update_every hint.
func NewNetdataFormatter(w io.Writer, reportInterval time.Duration) *NetdataFormatter {
	return &NetdataFormatter{w: w, reportInterval: reportInterval, chartsSent: map[string]bool{}}
}

// HostSplit is one host's interval statistics, as fed to Emit.
type HostSplit struct {
	ChartName          string // netdata-safe identifier, usually the host's label with '.' replaced
	Host                string
	NumSent, NumRecv    int
	MinRTT, AvgRTT, MaxRTT time.Duration
	HaveRTT             bool
}

// Emit writes one interval's worth of CHART/BEGIN/SET/END blocks for split.
func (n *NetdataFormatter) Emit(split HostSplit) {
	secs := n.reportInterval.Seconds()
	declare := !n.chartsSent[split.ChartName]

	if declare {
		fmt.Fprintf(n.w, "CHART fping.%s_packets '' 'FPing Packets' packets '%s' fping.packets line 110020 %.0f\n", split.ChartName, split.Host, secs)
		fmt.Fprintln(n.w, "DIMENSION xmt sent absolute 1 1")
		fmt.Fprintln(n.w, "DIMENSION rcv received absolute 1 1")
	}
	fmt.Fprintf(n.w, "BEGIN fping.%s_packets\n", split.ChartName)
	fmt.Fprintf(n.w, "SET xmt = %d\n", split.NumSent)
	fmt.Fprintf(n.w, "SET rcv = %d\n", split.NumRecv)
	fmt.Fprintln(n.w, "END")

	if declare {
		fmt.Fprintf(n.w, "CHART fping.%s_quality '' 'FPing Quality' percentage '%s' fping.quality area 110010 %.0f\n", split.ChartName, split.Host, secs)
		fmt.Fprintln(n.w, "DIMENSION returned '' absolute 1 1")
	}
	fmt.Fprintf(n.w, "BEGIN fping.%s_quality\n", split.ChartName)
	returned := 0
	if split.NumSent > 0 {
		returned = split.NumRecv * 100 / split.NumSent
	}
	fmt.Fprintf(n.w, "SET returned = %d\n", returned)
	fmt.Fprintln(n.w, "END")

	if declare {
		fmt.Fprintf(n.w, "CHART fping.%s_latency '' 'FPing Latency' ms '%s' fping.latency area 110000 %.0f\n", split.ChartName, split.Host, secs)
		fmt.Fprintln(n.w, "DIMENSION min minimum absolute 1 1000000")
		fmt.Fprintln(n.w, "DIMENSION max maximum absolute 1 1000000")
		fmt.Fprintln(n.w, "DIMENSION avg average absolute 1 1000000")
	}
	fmt.Fprintf(n.w, "BEGIN fping.%s_latency\n", split.ChartName)
	if split.HaveRTT {
		fmt.Fprintf(n.w, "SET min = %d\n", split.MinRTT.Nanoseconds())
		fmt.Fprintf(n.w, "SET avg = %d\n", split.AvgRTT.Nanoseconds())
		fmt.Fprintf(n.w, "SET max = %d\n", split.MaxRTT.Nanoseconds())
	}
	fmt.Fprintln(n.w, "END")

	n.chartsSent[split.ChartName] = true
}
