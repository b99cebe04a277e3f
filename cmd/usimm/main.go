// Command usimm runs the memory-subsystem simulator against a config
// file and one trace file per core, following vcs_main.go's plain
// flag-parse-then-log.Fatalf shape adapted to usimm's positional
// "usimm <config> <trace0> [<trace1> ...]" invocation (spec 6) and its
// negative-exit-code error contract (spec 7, SPEC_FULL.md's CLI
// expansion).
package main

import (
	"flag"
	"fmt"
	"log"
	"math/bits"
	"os"
	"path/filepath"

	"github.com/pranith/usimm/channel"
	"github.com/pranith/usimm/controller"
	"github.com/pranith/usimm/dramaddr"
	"github.com/pranith/usimm/internal/config"
	"github.com/pranith/usimm/internal/trace"
	"github.com/pranith/usimm/power"
)

var viDir = flag.String("vi_dir", "input", "directory to search for the chip-electrical .vi file named by the channel/core topology")

// usimmError carries one of the reference simulator's negative exit
// codes alongside a human-readable cause.
type usimmError struct {
	code int
	err  error
}

func (e usimmError) Error() string { return e.err.Error() }

func main() {
	flag.Parse()
	args := flag.Args()

	if err := run(args, *viDir); err != nil {
		if ue, ok := err.(usimmError); ok {
			fmt.Fprintln(os.Stderr, ue.err)
			os.Exit(ue.code)
		}
		log.Fatal(err)
	}
}

func run(args []string, viDir string) error {
	// main.c's own argc<3 check: at least a config file and one trace.
	if len(args) < 2 {
		return usimmError{code: -3, err: fmt.Errorf("usage: usimm <config> <trace0> [<trace1> ...]")}
	}
	configPath := args[0]
	tracePaths := args[1:]
	numCores := len(tracePaths)

	if _, err := os.Stat(configPath); err != nil {
		return usimmError{code: -4, err: fmt.Errorf("missing config file %s", configPath)}
	}
	params, err := config.Load(configPath)
	if err != nil {
		return usimmError{code: -4, err: err}
	}

	// A second config file supplies the chip-electrical IDD table, named
	// by the channel/core topology (main.c's vi_file lookup). Applied in
	// sequence over the primary config, per SPEC_FULL.md's "two config
	// files" expansion - optional here, since a config file is free to
	// set its own electrical tokens directly instead.
	if _, viName, err := power.ChipsPerRank(params.NumChannels, numCores); err == nil {
		viPath := filepath.Join(viDir, viName)
		if _, statErr := os.Stat(viPath); statErr == nil {
			if params, err = config.Load(configPath, viPath); err != nil {
				return usimmError{code: -4, err: err}
			}
		}
	}

	for _, p := range tracePaths {
		if _, err := os.Stat(p); err != nil {
			return usimmError{code: -5, err: fmt.Errorf("missing input trace file %s", p)}
		}
	}

	prefixes, err := trace.GroupPrefixes(tracePaths)
	if err != nil {
		return usimmError{code: -6, err: err}
	}

	widened, prefixShift := trace.AddressSpaceWidening(
		trace.Topology{AddressBits: params.AddressBits, NumRows: params.NumRows}, numCores)

	decoder, err := dramaddr.New(dramaddr.Widths{
		Channel:    int(log2(params.NumChannels)),
		Rank:       int(log2(params.NumRanks)),
		Bank:       int(log2(params.NumBanks)),
		Row:        int(log2(widened.NumRows)),
		Column:     int(log2(params.NumColumns)),
		ByteOffset: int(log2(params.CacheLineSize)),
		Bits:       widened.AddressBits,
		Mapping:    mappingFor(params.AddressMapping),
	})
	if err != nil {
		return usimmError{code: -4, err: err}
	}

	fmt.Printf("usimm: %d channel(s), %d rank(s)/channel, %d bank(s)/rank, %d core(s)\n",
		params.NumChannels, params.NumRanks, params.NumBanks, numCores)
	fmt.Printf("PROCESSOR_CLK_MULTIPLIER %d  ROBSIZE %d  MAX_RETIRE %d  MAX_FETCH %d  PIPELINEDEPTH %d\n",
		params.ProcessorClkMultiplier, params.ROBSize, params.MaxRetire, params.MaxFetch, params.PipelineDepth)
	fmt.Printf("ADDRESS_BITS %d (widened from %d)  NUM_ROWS %d (widened from %d)\n",
		widened.AddressBits, params.AddressBits, widened.NumRows, params.NumRows)

	policyName := params.SchedulerPolicy
	if policyName == "" {
		policyName = "fcfs"
	}

	timing := channel.Timing{
		TRCD: params.TRCD, TRP: params.TRP, TCAS: params.TCAS, TRAS: params.TRAS, TRC: params.TRC,
		TRRD: params.TRRD, TFAW: params.TFAW, TWR: params.TWR, TWTR: params.TWTR, TRTP: params.TRTP,
		TCCD: params.TCCD, TRFC: params.TRFC, TREFI: params.TREFI, TCWD: params.TCWD, TRTRS: params.TRTRS,
		TPDMin: params.TPDMin, TXP: params.TXP, TXPDLL: params.TXPDLL, TDataTrans: params.TDataTrans,
	}

	chanDefs := make([]controller.ChannelDef, params.NumChannels)
	for i := range chanDefs {
		chanDefs[i] = controller.ChannelDef{
			NumRanks: params.NumRanks, NumBanks: params.NumBanks, Timing: timing,
			WQCapacity: params.WQCapacity, WQLookupLatency: params.WQLookupLatency,
			Policy: policyName, NumThreads: numCores,
		}
	}

	fetchers := make([]controller.Fetcher, numCores)
	readers := make([]*trace.Reader, numCores)
	for i, p := range tracePaths {
		r, err := trace.Open(p, prefixes[i], prefixShift)
		if err != nil {
			return usimmError{code: -5, err: err}
		}
		readers[i] = r
		fetchers[i] = fetcherAdapter{r}
		fmt.Printf("Core %d: input trace %s : prefix %d\n", i, p, prefixes[i])
	}
	defer func() {
		for _, r := range readers {
			r.Close()
		}
	}()

	ctl, err := controller.Init(&controller.Def{
		Decoder: decoder, Channels: chanDefs, Fetchers: fetchers,
		ROBSize: params.ROBSize, ProcessorClkMultiplier: params.ProcessorClkMultiplier,
		MaxRetire: params.MaxRetire, MaxFetch: params.MaxFetch, PipelineDepth: params.PipelineDepth,
	})
	if err != nil {
		return err
	}

	cycles, err := ctl.Run()
	if err != nil {
		return err
	}

	report(ctl, params, cycles)
	return nil
}

// fetcherAdapter adapts a *trace.Reader to controller.Fetcher - the
// two share Next's shape already, but Go requires the concrete type
// conversion since controller.Record and trace.Record are distinct
// types despite being structurally identical.
type fetcherAdapter struct{ r *trace.Reader }

func (f fetcherAdapter) Next() (controller.Record, bool) {
	rec, ok := f.r.Next()
	return controller.Record{NonMemOps: rec.NonMemOps, Op: rec.Op, Addr: rec.Addr, PC: rec.PC}, ok
}

func log2(n int) uint {
	if n <= 1 {
		return 0
	}
	return uint(bits.Len(uint(n - 1)))
}

func mappingFor(mode int) dramaddr.Mapping {
	if mode == 2 {
		return dramaddr.MappingBankStriped
	}
	return dramaddr.MappingRowAdjacent
}

// report prints the end-of-run stats banner: per-core commit counts,
// merge counters, per-rank power decomposition and the system power
// summary, matching main.c's post-loop printf sequence.
func report(ctl *controller.Controller, params *config.Params, cycles int64) {
	fmt.Printf("Done with loop. Printing stats.\n")
	fmt.Printf("Cycles %d\n", cycles)

	timeDone := make([]int64, ctl.NumCores())
	for i := 0; i < ctl.NumCores(); i++ {
		s := ctl.Stats(i)
		doneAt := s.DoneAt
		if doneAt == 0 {
			doneAt = cycles
		}
		timeDone[i] = doneAt
		fmt.Printf("Done: Core %d: Fetched %d : Committed %d : At time : %d\n", i, s.Fetched, s.Committed, doneAt)
	}

	var readsMerged, writesMerged int64
	for c := 0; c < ctl.NumChannels(); c++ {
		readsMerged += ctl.Channel(c).ReadsMerged
		writesMerged += ctl.Channel(c).WritesMerged
	}
	fmt.Printf("Num reads merged: %d\n", readsMerged)
	fmt.Printf("Num writes merged: %d\n", writesMerged)

	chips, _, err := power.ChipsPerRank(params.NumChannels, len(timeDone))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return
	}

	elec := power.Electrical{
		VDD: params.VDD, IDD0: params.IDD0, IDD1: params.IDD1,
		IDD2P0: params.IDD2P0, IDD2P1: params.IDD2P1, IDD2N: params.IDD2N,
		IDD3P: params.IDD3P, IDD3N: params.IDD3N,
		IDD4R: params.IDD4R, IDD4W: params.IDD4W, IDD5: params.IDD5,
	}
	ptiming := power.Timing{
		TRAS: params.TRAS, TRC: params.TRC, TRFC: params.TRFC,
		TREFI: params.TREFI, TDataTrans: params.TDataTrans,
	}

	fmt.Printf("\n#-------------------------------------- Power Stats ----------------------------------------------\n")
	var totalRankPowerMW float64
	for c := 0; c < ctl.NumChannels(); c++ {
		for r := 0; r < ctl.Channel(c).NumRanks(); r++ {
			comp, err := power.Calculate(elec, ptiming, ctl.Channel(c).Occupancy(r))
			if err != nil {
				continue
			}
			rankPower := comp.TotalChipPower() * float64(chips)
			totalRankPowerMW += rankPower
			fmt.Printf("Channel %d Rank %d: chip power %.3f mW, rank power %.3f mW\n", c, r, comp.TotalChipPower(), rankPower)
		}
	}

	corePowerW := power.CorePower(timeDone, cycles, params.NumChannels)
	processorFreqHz := float64(params.DRAMClkFrequency) * float64(params.ProcessorClkMultiplier) * 1e6
	sys := power.System(totalRankPowerMW, corePowerW, params.NumChannels, cycles, processorFreqHz)

	fmt.Printf("\nTotal memory system power = %f W\n", sys.TotalMemoryPowerW)
	fmt.Printf("Miscellaneous system power = %f W\n", sys.MiscellaneousW)
	fmt.Printf("Processor core power = %f W\n", sys.CorePowerW)
	fmt.Printf("Total system power = %f W\n", sys.TotalSystemPowerW)
	fmt.Printf("Energy Delay product (EDP) = %.9f J.s\n", sys.EDPJouleSeconds)
}
