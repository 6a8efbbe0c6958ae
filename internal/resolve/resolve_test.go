package resolve_test

import (
	"context"
	"net/netip"
	"os"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/netreach/icmprobe/internal/resolve"
)

func TestExpandCIDRExcludesNetworkAndBroadcast(t *testing.T) {
	prefix := netip.MustParsePrefix("192.168.1.0/30")
	got, err := resolve.ExpandCIDR(prefix)
	if err != nil {
		t.Fatalf("ExpandCIDR() error = %v", err)
	}
	want := []string{"192.168.1.1", "192.168.1.2"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("ExpandCIDR(/30) mismatch (-want +got):\n%s", diff)
	}
}

func TestExpandCIDRSlash31IncludesBothEndpoints(t *testing.T) {
	prefix := netip.MustParsePrefix("192.168.1.0/31")
	got, err := resolve.ExpandCIDR(prefix)
	if err != nil {
		t.Fatalf("ExpandCIDR() error = %v", err)
	}
	want := []string{"192.168.1.0", "192.168.1.1"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("ExpandCIDR(/31) mismatch (-want +got):\n%s", diff)
	}
}

func TestExpandCIDRSlash32IsSingleAddress(t *testing.T) {
	prefix := netip.MustParsePrefix("10.0.0.5/32")
	got, err := resolve.ExpandCIDR(prefix)
	if err != nil {
		t.Fatalf("ExpandCIDR() error = %v", err)
	}
	if diff := cmp.Diff([]string{"10.0.0.5"}, got); diff != "" {
		t.Fatalf("ExpandCIDR(/32) mismatch (-want +got):\n%s", diff)
	}
}

func TestExpandCIDRIPv6IncludesEveryAddress(t *testing.T) {
	prefix := netip.MustParsePrefix("2001:db8::/125")
	got, err := resolve.ExpandCIDR(prefix)
	if err != nil {
		t.Fatalf("ExpandCIDR() error = %v", err)
	}
	if len(got) != 8 {
		t.Fatalf("len(ExpandCIDR(v6 /125)) = %d, want 8", len(got))
	}
}

func TestExpandCIDRRejectsOversizedRange(t *testing.T) {
	prefix := netip.MustParsePrefix("10.0.0.0/8")
	if _, err := resolve.ExpandCIDR(prefix); err == nil {
		t.Fatalf("ExpandCIDR(/8) error = nil, want a limit error")
	}
}

func TestExpandRangeInclusive(t *testing.T) {
	start := netip.MustParseAddr("10.0.0.1")
	end := netip.MustParseAddr("10.0.0.4")
	got, err := resolve.ExpandRange(start, end)
	if err != nil {
		t.Fatalf("ExpandRange() error = %v", err)
	}
	want := []string{"10.0.0.1", "10.0.0.2", "10.0.0.3", "10.0.0.4"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("ExpandRange() mismatch (-want +got):\n%s", diff)
	}
}

func TestExpandRangeRejectsMixedFamilies(t *testing.T) {
	start := netip.MustParseAddr("10.0.0.1")
	end := netip.MustParseAddr("2001:db8::1")
	if _, err := resolve.ExpandRange(start, end); err == nil {
		t.Fatalf("ExpandRange() error = nil, want family mismatch error")
	}
}

func TestExpandRangeRejectsBackwardsRange(t *testing.T) {
	start := netip.MustParseAddr("10.0.0.4")
	end := netip.MustParseAddr("10.0.0.1")
	if _, err := resolve.ExpandRange(start, end); err == nil {
		t.Fatalf("ExpandRange() error = nil, want reversed-range error")
	}
}

func TestReadNamesSkipsBlankAndCommentLines(t *testing.T) {
	r := strings.NewReader("host-a\n\n# comment\nhost-b\n")
	path := writeTemp(t, r)
	got, err := resolve.ReadNames(path)
	if err != nil {
		t.Fatalf("ReadNames() error = %v", err)
	}
	want := []string{"host-a", "host-b"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("ReadNames() mismatch (-want +got):\n%s", diff)
	}
}

func TestReadNamesRejectsOverlongName(t *testing.T) {
	long := strings.Repeat("a", resolve.MaxTargetNameLen+1)
	path := writeTemp(t, strings.NewReader(long+"\n"))
	if _, err := resolve.ReadNames(path); err == nil {
		t.Fatalf("ReadNames() error = nil, want overlong-name error")
	}
}

func TestResolveNumericAddress(t *testing.T) {
	a, err := resolve.Resolve(context.Background(), "192.0.2.1", 4)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if a.String() != "192.0.2.1" {
		t.Fatalf("Resolve() = %v, want 192.0.2.1", a)
	}
}

func TestResolveNumericAddressFamilyMismatch(t *testing.T) {
	if _, err := resolve.Resolve(context.Background(), "192.0.2.1", 6); err == nil {
		t.Fatalf("Resolve() error = nil, want family mismatch error")
	}
}

func writeTemp(t *testing.T, r *strings.Reader) string {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "targets-*.txt")
	if err != nil {
		t.Fatalf("CreateTemp() error = %v", err)
	}
	buf := make([]byte, r.Len())
	r.Read(buf)
	if _, err := f.Write(buf); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	f.Close()
	return f.Name()
}
