package target_test

import (
	"testing"

	"github.com/netreach/icmprobe/internal/target"
)

func TestInitRespTimesNormalizesEverySlotToUnused(t *testing.T) {
	h := target.NewHost(0, "host0", 1, int64(1e9))
	h.InitRespTimes(4)

	if len(h.RespTimes) != 4 {
		t.Fatalf("len(RespTimes) = %d, want 4", len(h.RespTimes))
	}
	for i, v := range h.RespTimes {
		if v != target.SlotUnused {
			t.Fatalf("RespTimes[%d] = %d, want SlotUnused (%d)", i, v, target.SlotUnused)
		}
	}
}

func TestPingSlotReusesByModulo(t *testing.T) {
	h := target.NewHost(0, "host0", 3, int64(1e9))

	s0 := h.PingSlot(0)
	s3 := h.PingSlot(3)
	if s0 != s3 {
		t.Fatalf("PingSlot(0) and PingSlot(3) should alias the same slot with storageCount=3")
	}

	s1 := h.PingSlot(1)
	if s0 == s1 {
		t.Fatalf("PingSlot(0) and PingSlot(1) should not alias")
	}
}

func TestTimeoutSlotIndependentFromPingSlot(t *testing.T) {
	h := target.NewHost(0, "host0", 2, int64(1e9))

	ping := h.PingSlot(0)
	timeout := h.TimeoutSlot(0)
	ping.Host, ping.Ping, ping.Due = 0, 0, 100
	timeout.Host, timeout.Ping, timeout.Due = 0, 0, 200

	if ping.Due == timeout.Due {
		t.Fatalf("ping and timeout slots should be independent pools")
	}
}

func TestResetIntervalZeroesOnlyIntervalWindow(t *testing.T) {
	h := target.NewHost(0, "host0", 1, int64(1e9))
	h.Cumulative.Sent = 5
	h.Interval.Sent = 5

	h.ResetInterval()

	if h.Interval.Sent != 0 {
		t.Fatalf("Interval.Sent = %d after ResetInterval, want 0", h.Interval.Sent)
	}
	if h.Cumulative.Sent != 5 {
		t.Fatalf("Cumulative.Sent = %d after ResetInterval, want unchanged 5", h.Cumulative.Sent)
	}
}

func TestStatsAvgRTT(t *testing.T) {
	var s target.Stats
	if got := s.AvgRTT(); got != 0 {
		t.Fatalf("AvgRTT() on empty Stats = %d, want 0", got)
	}

	s.Recv = 2
	s.SumRTT = 300
	if got := s.AvgRTT(); got != 150 {
		t.Fatalf("AvgRTT() = %d, want 150", got)
	}
}

func TestTableAliveUnreachableNoAddress(t *testing.T) {
	alive := target.NewHost(0, "up", 1, int64(1e9))
	alive.Alive = true
	down := target.NewHost(1, "down", 1, int64(1e9))
	unresolved := target.NewHost(2, "bogus", 1, int64(1e9))
	unresolved.NoAddr = true

	table := target.NewTable([]*target.Host{alive, down, unresolved})

	if got := table.Alive(); got != 1 {
		t.Fatalf("Alive() = %d, want 1", got)
	}
	if got := table.Unreachable(); got != 1 {
		t.Fatalf("Unreachable() = %d, want 1", got)
	}
	if got := table.NoAddress(); got != 1 {
		t.Fatalf("NoAddress() = %d, want 1", got)
	}
}

func TestNewHostClampsStorageCountToAtLeastOne(t *testing.T) {
	h := target.NewHost(0, "host0", 0, int64(1e9))
	s0 := h.PingSlot(0)
	s1 := h.PingSlot(1)
	if s0 != s1 {
		t.Fatalf("storageCount=0 should clamp to 1, aliasing every ping index to the same slot")
	}
}
