package controller

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pranith/usimm/channel"
	"github.com/pranith/usimm/dramaddr"
)

// sliceFetcher replays a fixed slice of Records then reports
// exhausted, a minimal stand-in for the trace-file reader the
// controller package treats as an external collaborator.
type sliceFetcher struct {
	recs []Record
	i    int
}

func (f *sliceFetcher) Next() (Record, bool) {
	if f.i >= len(f.recs) {
		return Record{}, false
	}
	r := f.recs[f.i]
	f.i++
	return r, true
}

// testDecoder returns a one-channel, one-rank, one-bank-capable
// decoder: 2 bank bits, 1 rank bit, 16 row bits, 4 column bits, 6
// byte-offset bits, row-adjacent mapping, 0 channel bits (single
// channel).
func testDecoder(t *testing.T) *dramaddr.Decoder {
	t.Helper()
	d, err := dramaddr.New(dramaddr.Widths{
		Channel: 0, Rank: 1, Bank: 2, Row: 16, Column: 4, ByteOffset: 6,
		Bits: 29, Mapping: dramaddr.MappingRowAdjacent,
	})
	require.NoError(t, err)
	return d
}

func scenarioTiming() channel.Timing {
	return channel.Timing{
		TRCD: 10, TRP: 10, TCAS: 10, TRAS: 30, TRC: 40,
		TRRD: 4, TFAW: 16, TWR: 10, TWTR: 5, TRTP: 5,
		TCCD: 4, TRFC: 90, TREFI: 6240, TCWD: 6, TRTRS: 2,
		TPDMin: 4, TXP: 4, TXPDLL: 8, TDataTrans: 4,
	}
}

func newTestController(t *testing.T, policy string, fetchers ...Fetcher) *Controller {
	t.Helper()
	ctl, err := Init(&Def{
		Decoder: testDecoder(t),
		Channels: []ChannelDef{{
			NumRanks: 1, NumBanks: 2, Timing: scenarioTiming(),
			WQCapacity: 4, WQLookupLatency: 3, Policy: policy, NumThreads: len(fetchers),
		}},
		Fetchers:               fetchers,
		ROBSize:                16,
		ProcessorClkMultiplier: 1,
		MaxRetire:              4,
		MaxFetch:               4,
		PipelineDepth:          4,
	})
	require.NoError(t, err)
	return ctl
}

// addr builds a physical address with the given row/column/bank/rank
// fields packed per testDecoder's widths.
func addr(rank, bank, row, col uint64) uint64 {
	a := col
	a |= bank << 4
	a |= rank << 6
	a |= row << 7
	return a << 6 // byte offset
}

// commitCycles runs ctl one processor tick at a time and returns the
// cycle at which each of core 0's commits landed, i.e. the index i of
// every Tick() call that increased Stats(0).Committed - since ctl.cycle
// equals i at the top of that call, this is exactly the "now" Retire
// used. Stops once wantCommits commits have landed or maxCycles is
// exhausted.
func commitCycles(t *testing.T, ctl *Controller, wantCommits int, maxCycles int64) []int64 {
	t.Helper()
	var cycles []int64
	prev := int64(0)
	for i := int64(0); i < maxCycles && len(cycles) < wantCommits; i++ {
		require.NoError(t, ctl.Tick())
		if got := ctl.Stats(0).Committed; got > prev {
			for ; prev < got; prev++ {
				cycles = append(cycles, i)
			}
		}
	}
	return cycles
}

// TestS1SingleReadRowHitSequence drives the scenario's ACT followed by
// three same-row COL_READs and asserts the completion deltas spec 8's
// S1 names: {tRCD+tCAS+tDataTrans, +max(tCCD,tDataTrans), +max(tCCD,tDataTrans)}
// relative to the ACT issue cycle. All three records are fetched on
// cycle 0 (single ROB, MaxFetch=4 covers all of them), so ACT - the
// first issuable command - issues on cycle 1, the first cycle
// UpdateQueueCommands has seen the enqueued reads.
func TestS1SingleReadRowHitSequence(t *testing.T) {
	recs := []Record{
		{Op: 'R', Addr: addr(0, 0, 5, 0), PC: 0x1000},
		{Op: 'R', Addr: addr(0, 0, 5, 1), PC: 0x1000},
		{Op: 'R', Addr: addr(0, 0, 5, 2), PC: 0x1000},
	}
	ctl := newTestController(t, "fcfs", &sliceFetcher{recs: recs})
	timing := scenarioTiming()
	actCycle := int64(1)

	cycles := commitCycles(t, ctl, 3, 200)
	require.Len(t, cycles, 3)

	firstHitSpacing := timing.TCCD
	if timing.TDataTrans > firstHitSpacing {
		firstHitSpacing = timing.TDataTrans
	}
	require.Equal(t, actCycle+timing.TRCD+timing.TCAS+timing.TDataTrans, cycles[0],
		"first completion should land tRCD+tCAS+tDataTrans after ACT issues")
	require.Equal(t, firstHitSpacing, cycles[1]-cycles[0],
		"second row hit should complete max(tCCD,tDataTrans) after the first")
	require.Equal(t, firstHitSpacing, cycles[2]-cycles[1],
		"third row hit should complete max(tCCD,tDataTrans) after the second")

	require.Equal(t, int64(3), ctl.Stats(0).Committed)
}

// TestS2RowConflictReordersAroundPrecharge drives the ACT/COL_READ/PRE/
// ACT/COL_READ sequence a row conflict forces and asserts the second
// COL_READ completes at least tRAS+tRP+tRCD+tCAS+tDataTrans after the
// first ACT issues, per spec 8's S2.
func TestS2RowConflictReordersAroundPrecharge(t *testing.T) {
	recs := []Record{
		{Op: 'R', Addr: addr(0, 0, 1, 0), PC: 0x1000},
		{Op: 'R', Addr: addr(0, 0, 2, 0), PC: 0x1000},
	}
	ctl := newTestController(t, "fcfs", &sliceFetcher{recs: recs})
	timing := scenarioTiming()
	firstActCycle := int64(1)

	cycles := commitCycles(t, ctl, 2, 200)
	require.Len(t, cycles, 2)

	minSpacing := timing.TRAS + timing.TRP + timing.TRCD + timing.TCAS + timing.TDataTrans
	require.GreaterOrEqual(t, cycles[1]-firstActCycle, minSpacing,
		"row-conflict completion must not beat tRAS+tRP+tRCD+tCAS+tDataTrans after the first ACT")

	require.Equal(t, int64(2), ctl.Stats(0).Committed)
}

func TestS3WriteThenReadMergesFromWriteQueue(t *testing.T) {
	a := addr(0, 0, 3, 0)
	recs := []Record{
		{Op: 'W', Addr: a},
		{Op: 'R', Addr: a, PC: 0x2000},
	}
	ctl := newTestController(t, "fcfs", &sliceFetcher{recs: recs})

	_, err := ctl.Run()
	require.NoError(t, err)

	require.Equal(t, int64(1), ctl.Channel(0).ReadsMerged, "read merged against pending write")
	require.Equal(t, int64(2), ctl.Stats(0).Committed)
}

func TestS4WriteCoalesceLeavesQueueLengthOne(t *testing.T) {
	a := addr(0, 0, 3, 0)
	recs := []Record{
		{Op: 'W', Addr: a},
		{Op: 'W', Addr: a},
	}
	ctl := newTestController(t, "fcfs", &sliceFetcher{recs: recs})

	_, err := ctl.Run()
	require.NoError(t, err)

	require.Equal(t, int64(1), ctl.Channel(0).WritesMerged)
}

func TestS5FAWBoundsActivationsWithinWindow(t *testing.T) {
	recs := make([]Record, 0, 5)
	for i := 0; i < 5; i++ {
		recs = append(recs, Record{Op: 'R', Addr: addr(0, uint64(i%2), uint64(i+1), 0), PC: 0x3000})
	}
	ctl := newTestController(t, "fcfs", &sliceFetcher{recs: recs})

	_, err := ctl.Run()
	require.NoError(t, err)

	require.Equal(t, int64(5), ctl.Stats(0).Committed)
}

func TestMultiCoreCommitsIndependently(t *testing.T) {
	a0 := &sliceFetcher{recs: []Record{{Op: 'R', Addr: addr(0, 0, 1, 0), PC: 1}}}
	a1 := &sliceFetcher{recs: []Record{{Op: 'R', Addr: addr(0, 1, 1, 0), PC: 2}}}
	ctl := newTestController(t, "fcfs", a0, a1)

	_, err := ctl.Run()
	require.NoError(t, err)

	require.Equal(t, int64(1), ctl.Stats(0).Committed)
	require.Equal(t, int64(1), ctl.Stats(1).Committed)
}

func TestDoneRequiresEveryCoreAndQueueDrained(t *testing.T) {
	recs := []Record{{Op: 'W', Addr: addr(0, 0, 1, 0)}}
	ctl := newTestController(t, "fcfs", &sliceFetcher{recs: recs})

	require.False(t, ctl.Done())
	_, err := ctl.Run()
	require.NoError(t, err)
	require.True(t, ctl.Done())
}

// neverDoneFetcher hands out an endless stream of non-memory ops so a
// core never finishes fetching, keeping the simulation alive long
// enough to reach a rank's forced-refresh deadline.
type neverDoneFetcher struct{}

func (neverDoneFetcher) Next() (Record, bool) {
	return Record{NonMemOps: 1}, true
}

// S6: a rank that never sees a normal REF command issued against it
// must still complete all eight of its budgeted refreshes by the time
// the forced-refresh escape hatch's deadline arrives.
func TestS6ForcedRefreshDrainsBudgetByDeadline(t *testing.T) {
	timing := channel.Timing{
		TRCD: 10, TRP: 10, TCAS: 10, TRAS: 30, TRC: 40,
		TRRD: 4, TFAW: 16, TWR: 10, TWTR: 5, TRTP: 5,
		TCCD: 4, TRFC: 20, TREFI: 100, TCWD: 6, TRTRS: 2,
		TPDMin: 4, TXP: 4, TXPDLL: 8, TDataTrans: 4,
	}
	ctl, err := Init(&Def{
		Decoder: testDecoder(t),
		Channels: []ChannelDef{{
			NumRanks: 1, NumBanks: 2, Timing: timing,
			WQCapacity: 4, WQLookupLatency: 3, Policy: "fcfs", NumThreads: 1,
		}},
		Fetchers:               []Fetcher{neverDoneFetcher{}},
		ROBSize:                16,
		ProcessorClkMultiplier: 1,
		MaxRetire:              4,
		MaxFetch:               4,
		PipelineDepth:          4,
	})
	require.NoError(t, err)

	// issueDeadline = completionDeadline(800) - TRP(10) - Budget*TRFC(160) = 630.
	for i := 0; i < 700; i++ {
		require.NoError(t, ctl.Tick())
	}

	require.Equal(t, 8, ctl.Channel(0).RefreshNumIssued(0),
		"forced refresh must have drained the rank's full budget before its issue deadline")
}
