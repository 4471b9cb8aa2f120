/*
Copyright (c) The handover-core Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/daemon"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/ntn-constellation/handover-core/access"
	"github.com/ntn-constellation/handover-core/bridge"
	"github.com/ntn-constellation/handover-core/config"
	"github.com/ntn-constellation/handover-core/dataplane"
	"github.com/ntn-constellation/handover-core/eventbus"
	"github.com/ntn-constellation/handover-core/measurement"
	"github.com/ntn-constellation/handover-core/position"
	"github.com/ntn-constellation/handover-core/predictor"
	"github.com/ntn-constellation/handover-core/scheduler"
	syncpkg "github.com/ntn-constellation/handover-core/sync"
)

// daemonBuild wires together C2 through C8 into one running process.
type daemonBuild struct {
	cfg   *config.Config
	sched *scheduler.Scheduler
	coord *syncpkg.Coordinator
	br    *bridge.Bridge
	store *measurement.Store
	bus   *eventbus.Bus
	nodes syncpkg.NodeCoordinator
	drift *syncpkg.ManualDriftSource
	dpb   *dataplane.InMemoryBridge
}

func build(cfgPath, nodeRegistryPath string) (*daemonBuild, error) {
	var cfg *config.Config
	var err error
	if cfgPath != "" {
		cfg, err = config.Load(cfgPath)
		if err != nil {
			return nil, err
		}
	} else {
		cfg = config.Default()
	}

	provider := position.NewStaticProvider()
	scorer := access.NewDefault()
	pred := predictor.New(provider, scorer, cfg.BlockSizeDeg, cfg.MinElevationDeg)

	schedCfg := scheduler.DefaultConfig()
	schedCfg.DeltaT = cfg.DeltaT()
	schedCfg.BinarySearchPrecision = cfg.BinarySearchPrecision()
	schedCfg.MaxCandidateSatellites = cfg.MaxCandidateSatellites
	schedCfg.CandidateMinElevationDeg = cfg.SchedulerMinElevationDeg
	sched := scheduler.New(provider, pred, scorer, scheduler.StaticCatalog{}, schedCfg)

	syncCfg := syncpkg.DefaultConfig()
	syncCfg.TwoPointDelta = cfg.TwoPointDelta()
	syncCfg.SyncInterval = cfg.SyncInterval()
	syncCfg.MaxClockDriftMS = cfg.MaxClockDriftMS
	syncCfg.TargetSyncAccuracyMS = cfg.TargetSyncAccuracyMS
	syncCfg.MinElevationDeg = cfg.MinElevationDeg
	coord := syncpkg.New(provider, syncCfg)

	var nodes syncpkg.NodeCoordinator
	if nodeRegistryPath != "" {
		reg, err := config.LoadNodeRegistry(nodeRegistryPath)
		if err != nil {
			return nil, err
		}
		nodes = reg
	} else {
		log.Warning("handoverd: no node registry configured, running with no nodes to synchronize")
		nodes = emptyNodeCoordinator{}
	}
	drift := syncpkg.NewManualDriftSource()

	mode, _ := bridge.ParseMode(cfg.Mode)
	brCfg := bridge.DefaultConfig()
	brCfg.InitialMode = mode
	brCfg.FallbackTimeout = cfg.FallbackTimeout()
	br := bridge.New(sched, coord, nodes, drift, syncpkg.LEO, brCfg)

	store := measurement.New(0)

	busCfg := eventbus.DefaultConfig()
	busCfg.StoreMax = cfg.EventStoreMax
	busCfg.WorkerCount = cfg.EventWorkerCount
	busCfg.DefaultMaxRetries = cfg.EventDefaultMaxRetries
	bus := eventbus.New(busCfg)

	dpb := dataplane.NewInMemoryBridge()

	return &daemonBuild{
		cfg: cfg, sched: sched, coord: coord, br: br,
		store: store, bus: bus, nodes: nodes, drift: drift, dpb: dpb,
	}, nil
}

// emptyNodeCoordinator is used when no node registry is configured: the
// daemon still runs, but FineGrainedSync has nothing to align.
type emptyNodeCoordinator struct{}

func (emptyNodeCoordinator) AccessNodes() []string       { return nil }
func (emptyNodeCoordinator) CoreNodes() []string          { return nil }
func (emptyNodeCoordinator) SatelliteNodes() []string     { return nil }
func (emptyNodeCoordinator) GroundStationNodes() []string { return nil }
func (emptyNodeCoordinator) SyncNode(context.Context, string, time.Time) (float64, error) {
	return 0, nil
}

func (d *daemonBuild) start(ctx context.Context) error {
	if err := d.br.Start(ctx); err != nil {
		return err
	}
	return d.bus.Start(ctx)
}

func (d *daemonBuild) stop() {
	if err := d.br.Stop(); err != nil {
		log.Warningf("handoverd: stopping bridge: %v", err)
	}
	if err := d.bus.Stop(); err != nil {
		log.Warningf("handoverd: stopping event bus: %v", err)
	}
}

// serveMonitoring exposes a Prometheus scrape endpoint plus a plain-JSON
// status endpoint on monitoringPort (pattern: ptp/sptp/stats/prom_exporter.go,
// adapted from scrape-based cross-process stats to an in-process collector).
func (d *daemonBuild) serveMonitoring(port int) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(bridge.NewCollector(d.br))

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	d.registerRoutes(mux)
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		status := map[string]any{
			"mode":           d.br.Mode().String(),
			"scheduler":      d.sched.Status(),
			"sync_point":     d.coord.Current(),
			"fallback_count": d.br.FallbackActivations(),
			"events_failed":  d.bus.EventsFailed(),
			"ttl_dropped":    d.bus.TTLDropped(),
			"drift":          driftSnapshot(d.coord),
			"process":        collectSysStats(),
		}
		_ = json.NewEncoder(w).Encode(status)
	})

	addr := fmt.Sprintf(":%d", port)
	log.Infof("handoverd: monitoring endpoint listening on %s", addr)
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil && err != http.ErrServerClosed {
			log.Errorf("handoverd: monitoring server failed: %v", err)
		}
	}()
}

func sdNotifyReady() {
	supported, err := daemon.SdNotify(false, daemon.SdNotifyReady)
	if !supported && err != nil {
		log.Warningf("handoverd: sd_notify failed: %v", err)
	} else if !supported {
		log.Debug("handoverd: sd_notify not supported, skipping")
	} else {
		log.Info("handoverd: sent sd_notify ready")
	}
}

func main() {
	var (
		verboseFlag      bool
		configFlag       string
		nodeRegistryFlag string
		monitoringPort   int
	)
	flag.BoolVar(&verboseFlag, "verbose", false, "verbose output")
	flag.StringVar(&configFlag, "config", "", "path to the YAML process config")
	flag.StringVar(&nodeRegistryFlag, "node-registry", "", "path to the INI node registry")
	flag.IntVar(&monitoringPort, "monitoringport", 4270, "port to start the Prometheus/JSON monitoring endpoint on")
	flag.Parse()

	log.SetLevel(log.InfoLevel)
	if verboseFlag {
		log.SetLevel(log.DebugLevel)
	}

	d, err := build(configFlag, nodeRegistryFlag)
	if err != nil {
		log.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := d.start(ctx); err != nil {
		log.Fatal(err)
	}
	d.serveMonitoring(monitoringPort)
	sdNotifyReady()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("handoverd: shutting down")
	cancel()
	d.stop()
}
