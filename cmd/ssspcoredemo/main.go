// Command ssspcoredemo drives a small in-process exchange over the
// communication core to exercise the whole stack end to end: config load →
// bootstrap graph/provider setup → production-mode rounds → graceful
// shutdown on SIGINT/SIGTERM.
//
// The phase structure (PHASE 0 load, PHASE 1 bootstrap, PHASE 2 cleanup,
// PHASE 3 production with signal handling) follows the teacher's main.go,
// generalized from blockchain-sync bootstrapping to warming up the demo
// graph and running a handful of exchange rounds in place of an infinite
// event-processing loop.
package main

import (
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"runtime"
	rtdebug "runtime/debug"
	"sync"
	"syscall"

	"go.uber.org/zap"

	"github.com/latticeflow/ssspcomm/alltoall"
	"github.com/latticeflow/ssspcomm/filter"
	"github.com/latticeflow/ssspcomm/graphsnapshot"
	"github.com/latticeflow/ssspcomm/mpinet"
	"github.com/latticeflow/ssspcomm/provider"
	"github.com/latticeflow/ssspcomm/sssp"
	"github.com/latticeflow/ssspcomm/ssspconfig"
	"github.com/latticeflow/ssspcomm/ssspmetrics"
	"github.com/latticeflow/ssspcomm/sssplog"
)

const (
	demoRanks        = 4
	demoVertsPerRank = 16
	demoEdgesPerVert = 3
	demoRounds       = 5
	demoMetricsAddr  = ":9108"
)

func main() {
	// PHASE 0: configuration and demo graph construction.
	cfg, err := ssspconfig.Load(os.Getenv("SSSPCOMM_CONFIG"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "ssspcoredemo: config load:", err)
		os.Exit(1)
	}

	log, err := sssplog.New(cfg.Debug)
	if err != nil {
		fmt.Fprintln(os.Stderr, "ssspcoredemo: logger init:", err)
		os.Exit(1)
	}
	defer log.Sync()

	group := mpinet.NewLocalGroup(demoRanks)
	graph, err := loadOrBuildDemoGraph(os.Getenv("SSSPCOMM_GRAPH_SNAPSHOT"), log)
	if err != nil {
		log.Error("graph load failed", zap.Error(err))
		os.Exit(1)
	}
	state := &sssp.SsspState{IsBellmanFord: true}

	countType := filter.NodeSendCountType(cfg.NodeSendCountType)

	if cfg.Profiling {
		ssspmetrics.ServeHTTP(demoMetricsAddr)
		log.Info("metrics endpoint started", zap.String("addr", demoMetricsAddr))
	}

	setupSignalHandling(log)

	// PHASE 1: bootstrap — wire up one Manager per rank and seed every
	// rank's first round of queued traffic before any round runs.
	managers := make([]*alltoall.Manager, demoRanks)
	providers := make([]*provider.Pooled, demoRanks)
	for r := 0; r < demoRanks; r++ {
		prov := provider.NewPooled(demoRanks, 256, 4096)
		providers[r] = prov
		mgr, err := alltoall.NewManager(group[r], graph, state, prov, 4, cfg.UseProperHashmap)
		if err != nil {
			log.Error("manager init failed", zap.Error(err))
			os.Exit(1)
		}
		mgr.SetLogger(log)
		managers[r] = mgr
		defer mgr.Close()
	}
	seedDemoTraffic(managers, demoVertsPerRank)

	// PHASE 2: memory cleanup before the production rounds, mirroring the
	// teacher's pre-production double GC.
	runtime.GC()
	runtime.GC()
	rtdebug.FreeOSMemory()

	// PHASE 3: production rounds.
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	for round := 0; round < demoRounds; round++ {
		if err := runDemoRound(managers, countType); err != nil {
			log.Error("round failed", zap.Error(err))
			os.Exit(1)
		}
		log.Info("round complete")
		seedDemoTraffic(managers, demoVertsPerRank)
	}

	log.Info("demo complete")
}

func runDemoRound(managers []*alltoall.Manager, countType filter.NodeSendCountType) error {
	var wg sync.WaitGroup
	errs := make([]error, len(managers))
	wg.Add(len(managers))
	for i, mgr := range managers {
		i, mgr := i, mgr
		go func() {
			defer wg.Done()
			errs[i] = mgr.RunWithBoth(countType)
		}()
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// loadOrBuildDemoGraph loads a previously captured partition from
// snapshotPath if one is set, falling back to a freshly generated demo
// graph — and writes the generated graph back to snapshotPath so a later
// run can replay the exact same partition instead of regenerating it.
func loadOrBuildDemoGraph(snapshotPath string, log *sssplog.Logger) (*sssp.Graph2DCSR, error) {
	if snapshotPath != "" {
		if graph, err := graphsnapshot.Load(snapshotPath); err == nil {
			log.Info("loaded graph snapshot", zap.String("path", snapshotPath))
			return graph, nil
		}
	}

	log.Info("generating demo graph")
	graph := buildDemoGraph(demoVertsPerRank, demoEdgesPerVert)
	if snapshotPath != "" {
		if err := graphsnapshot.Save(snapshotPath, graph); err != nil {
			return nil, err
		}
		log.Info("saved graph snapshot", zap.String("path", snapshotPath))
	}
	return graph, nil
}

// buildDemoGraph constructs a small random directed graph with edges
// fanning out across every demo rank, packing (rank, local vertex) into
// EdgeArray the way Graph2DCSR.TargetLocal expects.
func buildDemoGraph(vertsPerRank, edgesPerVert int) *sssp.Graph2DCSR {
	const localBits, rBits = 16, 8
	totalEdges := demoRanks * vertsPerRank * edgesPerVert
	edges := make([]uint32, totalEdges)
	weights := make([]float32, totalEdges)

	rng := rand.New(rand.NewSource(1))
	i := 0
	for r := 0; r < demoRanks; r++ {
		for v := 0; v < vertsPerRank; v++ {
			for e := 0; e < edgesPerVert; e++ {
				destRank := rng.Intn(demoRanks)
				destLocal := uint32(rng.Intn(vertsPerRank))
				edges[i] = uint32(destRank)<<localBits | destLocal
				weights[i] = 0.5 + rng.Float32()*4.5
				i++
			}
		}
	}

	return &sssp.Graph2DCSR{
		EdgeArray:       edges,
		EdgeWeightArray: weights,
		LocalBits:       localBits,
		RBits:           rBits,
		NumLocalVerts:   vertsPerRank,
	}
}

// seedDemoTraffic queues one pointer block per rank, targeting a
// deterministic spread of destination ranks so every Manager has something
// to exchange each round.
func seedDemoTraffic(managers []*alltoall.Manager, vertsPerRank int) {
	edgesPerVert := demoEdgesPerVert
	for r, mgr := range managers {
		dest := (r + 1) % len(managers)
		header := (uint64(r) << 32) | uint64(edgesPerVert)
		mgr.Target(dest).PutPtr(int64(r)*int64(vertsPerRank)*int64(edgesPerVert), int32(edgesPerVert), int64(header), 1.0)
	}
}

func setupSignalHandling(log *sssplog.Logger) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Info("received interrupt, shutting down")
		os.Exit(0)
	}()
}
