package report_test

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/netreach/icmprobe/internal/report"
)

func TestFormatRTTPrecisionTiers(t *testing.T) {
	cases := []struct {
		ns   int64
		want string
	}{
		{500_000, "0.500"},
		{5_500_000, "5.50"},
		{55_000_000, "55.0"},
		{555_000_000, "555"},
	}
	for _, c := range cases {
		if got := report.FormatRTT(c.ns); got != c.want {
			t.Errorf("FormatRTT(%d) = %q, want %q", c.ns, got, c.want)
		}
	}
}

func TestParseTimestampFormat(t *testing.T) {
	for _, s := range []string{"ctime", "iso", "rfc3339", ""} {
		if _, err := report.ParseTimestampFormat(s); err != nil {
			t.Errorf("ParseTimestampFormat(%q) error = %v", s, err)
		}
	}
	if _, err := report.ParseTimestampFormat("bogus"); err == nil {
		t.Fatalf("ParseTimestampFormat(bogus) error = nil, want error")
	}
}

func TestWarningRespectsQuiet(t *testing.T) {
	var out, errOut bytes.Buffer
	r := report.New(&out, &errOut, report.Options{Quiet: true})
	r.Warning("boom %d\n", 1)
	if errOut.Len() != 0 {
		t.Fatalf("Warning wrote %q while Quiet, want nothing", errOut.String())
	}

	r = report.New(&out, &errOut, report.Options{})
	r.Warning("boom %d\n", 1)
	if !strings.Contains(errOut.String(), "boom 1") {
		t.Fatalf("Warning() = %q, want it to contain %q", errOut.String(), "boom 1")
	}
}

func TestPerTargetSummaryLossLine(t *testing.T) {
	var out, errOut bytes.Buffer
	r := report.New(&out, &errOut, report.Options{})
	r.MaxLabelLen = 10
	r.PerTargetSummary(report.TargetSummary{
		Label:   "host-a",
		NumSent: 4,
		NumRecv: 3,
		MinRTT:  1 * time.Millisecond,
		MaxRTT:  3 * time.Millisecond,
		SumRTT:  6 * time.Millisecond,
	})
	got := errOut.String()
	if !strings.Contains(got, "xmt/rcv/%loss = 4/3/25%") {
		t.Fatalf("PerTargetSummary() = %q, missing loss line", got)
	}
	if !strings.Contains(got, "min/avg/max = 1.00/2.00/3.00") {
		t.Fatalf("PerTargetSummary() = %q, missing min/avg/max", got)
	}
}

func TestPerTargetSummaryAllTrials(t *testing.T) {
	var out, errOut bytes.Buffer
	r := report.New(&out, &errOut, report.Options{AllTrials: true})
	r.PerTargetSummary(report.TargetSummary{
		Label:  "host-a",
		Trials: []time.Duration{2 * time.Millisecond, -1},
	})
	got := errOut.String()
	if !strings.Contains(got, "2.00") || !strings.Contains(got, " -") {
		t.Fatalf("PerTargetSummary(AllTrials) = %q", got)
	}
}

func TestFirstAliveSilentByDefault(t *testing.T) {
	var out, errOut bytes.Buffer
	r := report.New(&out, &errOut, report.Options{})
	r.FirstAlive("host-a", time.Now())
	if out.Len() != 0 {
		t.Fatalf("FirstAlive() wrote %q without -a/-v", out.String())
	}
}

func TestFirstAliveVerbose(t *testing.T) {
	var out, errOut bytes.Buffer
	r := report.New(&out, &errOut, report.Options{Verbose: true})
	r.FirstAlive("host-a", time.Now())
	if !strings.Contains(out.String(), "host-a is alive") {
		t.Fatalf("FirstAlive() = %q", out.String())
	}
}

func TestReachableVerdict(t *testing.T) {
	var out, errOut bytes.Buffer
	r := report.New(&out, &errOut, report.Options{})
	if !r.ReachableVerdict(2, 3, 5) {
		t.Fatalf("ReachableVerdict(2,3,5) = false, want true")
	}
	if r.ReachableVerdict(4, 3, 5) {
		t.Fatalf("ReachableVerdict(4,3,5) = true, want false")
	}
}
