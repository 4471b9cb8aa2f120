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

package sync

import (
	"container/ring"
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eclesh/welford"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/ntn-constellation/handover-core/position"
)

// satelliteDelay compensates the reference time for signal propagation
// delay by orbit class (§4.4 step 1).
type OrbitClass int

const (
	LEO OrbitClass = iota
	GEO
)

func satelliteDelay(class OrbitClass) time.Duration {
	if class == GEO {
		return 250 * time.Millisecond
	}
	return 20 * time.Millisecond
}

// NodeCoordinator groups the nodes FineGrainedSync must keep aligned and
// knows how to synchronize any one of them. It is the one outbound
// dependency this package needs beyond PositionProvider; a real
// implementation would talk to PTP/NTP-disciplined clocks on each node.
type NodeCoordinator interface {
	AccessNodes() []string
	CoreNodes() []string
	SatelliteNodes() []string
	GroundStationNodes() []string
	// SyncNode synchronizes one node's clock to referenceTime and reports
	// the accuracy achieved, in ms.
	SyncNode(ctx context.Context, nodeID string, referenceTime time.Time) (accuracyMS float64, err error)
}

// DriftSource reports the current measured offset, in ms, of one plane
// relative to the reference clock. A real deployment would sample this from
// the plane's disciplined clock; tests script it directly.
type DriftSource interface {
	CurrentOffsetMS(ctx context.Context, plane Plane) (float64, error)
}

// Config holds C5's configuration-surface tunables (§6).
type Config struct {
	TwoPointDelta        time.Duration // default 2 min
	SyncInterval         time.Duration // default 15s
	MaxClockDriftMS      float64       // default 50
	TargetSyncAccuracyMS float64       // default 10
	MinElevationDeg      float64       // default 10, shared with the scorer's floor
	HistorySize          int           // bounded SyncPoint history, default 32
}

// DefaultConfig matches §6's named defaults for C5.
func DefaultConfig() Config {
	return Config{
		TwoPointDelta:        DefaultTwoPointDelta,
		SyncInterval:         15 * time.Second,
		MaxClockDriftMS:      50,
		TargetSyncAccuracyMS: 10,
		MinElevationDeg:      10,
		HistorySize:          32,
	}
}

// Coordinator is C5. It owns the current SyncPoint (published by atomic
// pointer swap, §5), the offset table, and a monitoring loop that runs
// independently of C4's tick loop.
type Coordinator struct {
	provider        position.Provider
	minElevationDeg float64
	twoPointDelta   time.Duration
	cfg             Config

	current atomic.Pointer[SyncPoint]
	offsets *ClockOffsets

	history *ring.Ring

	driftMu    sync.RWMutex // guards driftStat, driftCount, smoother
	driftStat  map[Plane]*welford.Stats
	driftCount map[Plane]int
	smoother   map[Plane]*OffsetSmoother

	monitorOnce sync.Once
	stopCh      chan struct{}
	doneCh      chan struct{}
}

// New creates a Coordinator. Call EstablishSignalingFreeSync to perform the
// initial alignment and start the monitoring loop.
func New(provider position.Provider, cfg Config) *Coordinator {
	c := &Coordinator{
		provider:        provider,
		minElevationDeg: cfg.MinElevationDeg,
		twoPointDelta:   cfg.TwoPointDelta,
		cfg:             cfg,
		offsets:         NewClockOffsets(),
		history:         ring.New(maxInt(cfg.HistorySize, 1)),
		driftStat:       make(map[Plane]*welford.Stats, len(allPlanes)),
		driftCount:      make(map[Plane]int, len(allPlanes)),
		smoother:        make(map[Plane]*OffsetSmoother, len(allPlanes)),
	}
	for _, p := range allPlanes {
		c.driftStat[p] = welford.New()
		c.smoother[p] = NewOffsetSmoother()
	}
	initial := &SyncPoint{State: Desynchronized, BuiltAt: time.Now()}
	c.current.Store(initial)
	return c
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// Current returns the latest published SyncPoint. Because it's read from an
// atomic pointer, a reader concurrent with a recalibration observes either
// the old or the new value, never a torn one (§5's two-phase property: C4
// never blocks on C5).
func (c *Coordinator) Current() SyncPoint {
	return *c.current.Load()
}

// History returns up to HistorySize of the most recent SyncPoints, oldest
// first.
func (c *Coordinator) History() []SyncPoint {
	var out []SyncPoint
	c.history.Do(func(v interface{}) {
		if v != nil {
			out = append(out, v.(SyncPoint))
		}
	})
	return out
}

// OffsetHistory returns the recorded offset-sample timestamps for plane,
// oldest first (SPEC_FULL supplemented feature: per-plane clock-offset
// history).
func (c *Coordinator) OffsetHistory(p Plane) []time.Time {
	return c.offsets.OffsetHistory(p)
}

// DriftRateMSPerHour returns plane's measured drift rate, the slope between
// its oldest and newest retained offset samples (0 with fewer than two).
func (c *Coordinator) DriftRateMSPerHour(p Plane) float64 {
	return c.offsets.DriftRateMSPerHour(p)
}

// DriftStats returns plane's running mean and sample standard deviation of
// every offset reading seen so far (welford-computed, so it never stores
// the full sample history), plus how many samples contributed.
func (c *Coordinator) DriftStats(p Plane) (mean, stddev float64, count int) {
	c.driftMu.RLock()
	defer c.driftMu.RUnlock()
	stat := c.driftStat[p]
	return stat.Mean(), stat.Stddev(), c.driftCount[p]
}

// SmoothedOffsetMS returns plane's PI-servo-smoothed offset estimate (see
// OffsetSmoother), damping sample-to-sample jitter that a raw reading from
// ClockOffsets.Get would carry straight through.
func (c *Coordinator) SmoothedOffsetMS(p Plane) float64 {
	c.driftMu.RLock()
	defer c.driftMu.RUnlock()
	return c.smoother[p].Value()
}

func (c *Coordinator) publish(sp SyncPoint) {
	sp.BuiltAt = time.Now()
	c.current.Store(&sp)
	c.history.Value = sp
	c.history = c.history.Next()
}

// EstablishSignalingFreeSync implements §4.4's clock-coordination sequence:
// establish a reference time, synchronize every node concurrently, publish
// the resulting SyncPoint, then start the drift-monitoring loop. The loop is
// started at most once between Stop calls (Stop re-arms it, so a restart
// after Stop starts a fresh loop): a later recalibration (checkDrift,
// running on that same loop) reuses realign directly instead of calling back
// into this method, so repeated drift-triggered recalibrations never spawn a
// second monitorDrift goroutine racing the first over driftStat/driftCount/
// smoother.
func (c *Coordinator) EstablishSignalingFreeSync(ctx context.Context, coordinator NodeCoordinator, drift DriftSource, class OrbitClass) error {
	if err := c.realign(ctx, coordinator, drift, class); err != nil {
		return err
	}
	c.monitorOnce.Do(func() {
		c.stopCh = make(chan struct{})
		c.doneCh = make(chan struct{})
		go c.monitorDrift(ctx, coordinator, drift, class)
	})
	return nil
}

// realign performs §4.4's reference-time/node-sync/publish sequence without
// touching the monitor loop.
func (c *Coordinator) realign(ctx context.Context, coordinator NodeCoordinator, drift DriftSource, class OrbitClass) error {
	reference := time.Now().Add(satelliteDelay(class))

	nodes := append(append(append([]string{},
		coordinator.AccessNodes()...),
		coordinator.CoreNodes()...),
		coordinator.SatelliteNodes()...)
	nodes = append(nodes, coordinator.GroundStationNodes()...)

	if len(nodes) == 0 {
		return fmt.Errorf("sync: no nodes to coordinate")
	}

	eg, egCtx := errgroup.WithContext(ctx)
	accuracies := make([]float64, len(nodes))
	for i, node := range nodes {
		i, node := i, node
		eg.Go(func() error {
			acc, err := coordinator.SyncNode(egCtx, node, reference)
			if err != nil {
				log.Warningf("sync: failed to synchronize node %q: %v", node, err)
				return nil // a single node failing doesn't fail the whole coordination
			}
			accuracies[i] = acc
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return fmt.Errorf("sync: coordinating nodes: %w", err)
	}

	var sum float64
	var n int
	for _, a := range accuracies {
		if a > 0 {
			sum += a
			n++
		}
	}
	avgAccuracy := c.cfg.TargetSyncAccuracyMS
	if n > 0 {
		avgAccuracy = sum / float64(n)
	}

	c.offsets.Reset()
	c.publish(SyncPoint{
		AccessNetTime:      reference,
		CoreNetTime:        reference,
		SatelliteNetTime:   reference,
		GroundStationTime:  reference,
		AccuracyMS:         avgAccuracy,
		DriftRateMSPerHour: 0,
		State:              Synchronized,
	})
	return nil
}

// Stop ends the monitoring loop. Calling it again without an intervening
// EstablishSignalingFreeSync is a no-op.
func (c *Coordinator) Stop() {
	if c.stopCh == nil {
		return
	}
	close(c.stopCh)
	<-c.doneCh
	c.stopCh = nil
	c.monitorOnce = sync.Once{}
}

// monitorDrift re-checks every plane's drift every SyncInterval; a plane
// drifting past MaxClockDriftMS triggers a full recalibration (§4.4 step 4).
// It runs as its own worker, independent of the tick loop driving C4 or of
// any in-flight PredictSatelliteAccess call (§5).
func (c *Coordinator) monitorDrift(ctx context.Context, coordinator NodeCoordinator, drift DriftSource, class OrbitClass) {
	defer close(c.doneCh)
	ticker := time.NewTicker(c.cfg.SyncInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.checkDrift(ctx, coordinator, drift, class)
		}
	}
}

func (c *Coordinator) checkDrift(ctx context.Context, coordinator NodeCoordinator, drift DriftSource, class OrbitClass) {
	now := time.Now()
	var worst float64
	var worstPlane Plane
	for _, p := range allPlanes {
		offsetMS, err := drift.CurrentOffsetMS(ctx, p)
		if err != nil {
			log.Warningf("sync: reading drift for plane %s: %v", p, err)
			continue
		}
		c.offsets.Set(p, offsetMS)
		c.driftMu.Lock()
		c.driftStat[p].Add(offsetMS)
		c.driftCount[p]++
		c.smoother[p].Sample(offsetMS, now)
		c.driftMu.Unlock()
		abs := absf(offsetMS)
		if abs >= worst {
			worst = abs
			worstPlane = p
		}
	}
	sp := c.Current()
	sp.DriftRateMSPerHour = c.offsets.DriftRateMSPerHour(worstPlane)
	c.publish(sp)

	if worst > c.cfg.MaxClockDriftMS {
		log.Warningf("sync: plane %s drifted %.1fms past the %.1fms limit, recalibrating", worstPlane, worst, c.cfg.MaxClockDriftMS)
		if err := c.realign(ctx, coordinator, drift, class); err != nil {
			log.Errorf("sync: recalibration failed: %v", err)
			sp := c.Current()
			sp.State = SyncError
			c.publish(sp)
		}
	}
}
