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

package bridge

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/ntn-constellation/handover-core/position"
	"github.com/ntn-constellation/handover-core/scheduler"
	syncpkg "github.com/ntn-constellation/handover-core/sync"
)

// Config holds §6's IntegrationBridge tunables.
type Config struct {
	InitialMode      Mode
	FallbackTimeout  time.Duration // default 10s
	ModeHistoryLimit int           // bounded audit trail, default 100
	PredictionHorizon time.Duration // horizon handed to C5's PredictSatelliteAccess
}

// DefaultConfig matches §6's named defaults.
func DefaultConfig() Config {
	return Config{
		InitialMode:       PaperOnly,
		FallbackTimeout:   10 * time.Second,
		ModeHistoryLimit:  100,
		PredictionHorizon: 10 * time.Minute,
	}
}

// Request is one external decision request (§2 data flow: "external
// request → IntegrationBridge selects path").
type Request struct {
	UEID               string
	Position           position.GeoPosition
	CandidateSatellite string // satellite C5 should evaluate; required for EnhancedOnly/Hybrid/Fallback
}

// Decision is the outcome of Decide, uniform across all four modes.
type Decision struct {
	UEID            string
	SatelliteID     string
	NextSatelliteID string
	HandoverInstant time.Time
	Confidence      float64
	Source          Mode
	FusionNote      string
}

// Bridge is C6. It owns the active Mode (an atomic word, §5) and delegates
// to a Scheduler (C4) and a Coordinator (C5).
type Bridge struct {
	cfg         Config
	scheduler   *scheduler.Scheduler
	coordinator *syncpkg.Coordinator

	nodes      syncpkg.NodeCoordinator
	drift      syncpkg.DriftSource
	orbitClass syncpkg.OrbitClass

	mode    int32 // atomic Mode
	running int32 // atomic bool

	mu                   sync.Mutex
	lastModeSwitch       time.Time
	modeHistory          []ModeSwitch
	fallbackActivations  int64

	metrics map[Mode]*modeMetrics
}

// New creates a Bridge over an already-constructed Scheduler and
// Coordinator. Both must be distinct instances owned exclusively by this
// Bridge's lifecycle once Start is called.
func New(sched *scheduler.Scheduler, coord *syncpkg.Coordinator, nodes syncpkg.NodeCoordinator, drift syncpkg.DriftSource, class syncpkg.OrbitClass, cfg Config) *Bridge {
	metrics := make(map[Mode]*modeMetrics, 4)
	for _, m := range []Mode{PaperOnly, EnhancedOnly, Hybrid, Fallback} {
		metrics[m] = newModeMetrics()
	}
	return &Bridge{
		cfg:         cfg,
		scheduler:   sched,
		coordinator: coord,
		nodes:       nodes,
		drift:       drift,
		orbitClass:  class,
		mode:        int32(cfg.InitialMode),
		metrics:     metrics,
	}
}

// Mode returns the currently active mode (wait-free read, §5).
func (b *Bridge) Mode() Mode {
	return Mode(atomic.LoadInt32(&b.mode))
}

// Start starts both delegate paths (§4.5 SwitchMode's "Start() both
// paths").
func (b *Bridge) Start(ctx context.Context) error {
	if err := b.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("bridge: starting scheduler: %w", err)
	}
	if err := b.coordinator.EstablishSignalingFreeSync(ctx, b.nodes, b.drift, b.orbitClass); err != nil {
		_ = b.scheduler.Stop()
		return fmt.Errorf("bridge: starting coordinator: %w", err)
	}
	atomic.StoreInt32(&b.running, 1)
	return nil
}

// Stop stops both delegate paths.
func (b *Bridge) Stop() error {
	atomic.StoreInt32(&b.running, 0)
	b.coordinator.Stop()
	return b.scheduler.Stop()
}

// SwitchMode implements §4.5's contract: a no-op if new == current;
// otherwise both paths are stopped, the mode is swapped, both paths are
// restarted. In-flight requests complete under the old mode because Decide
// snapshots the mode once at entry (§5, §8 invariant 8: mode atomicity).
func (b *Bridge) SwitchMode(ctx context.Context, newMode Mode, reason string) error {
	cur := b.Mode()
	if newMode == cur {
		return nil
	}

	wasRunning := atomic.LoadInt32(&b.running) == 1
	if wasRunning {
		if err := b.Stop(); err != nil {
			return fmt.Errorf("bridge: stopping for mode switch: %w", err)
		}
	}

	atomic.StoreInt32(&b.mode, int32(newMode))

	b.mu.Lock()
	now := time.Now()
	b.lastModeSwitch = now
	b.modeHistory = append(b.modeHistory, ModeSwitch{From: cur, To: newMode, At: now, Reason: reason})
	if limit := b.cfg.ModeHistoryLimit; limit > 0 && len(b.modeHistory) > limit {
		b.modeHistory = b.modeHistory[len(b.modeHistory)-limit:]
	}
	b.mu.Unlock()

	if wasRunning {
		if err := b.Start(ctx); err != nil {
			return fmt.Errorf("bridge: restarting after mode switch: %w", err)
		}
	}
	return nil
}

// LastModeSwitch returns the timestamp of the most recent SwitchMode call.
func (b *Bridge) LastModeSwitch() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastModeSwitch
}

// ModeHistory returns the bounded mode-switch audit trail, oldest first
// (SPEC_FULL supplemented feature).
func (b *Bridge) ModeHistory() []ModeSwitch {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]ModeSwitch, len(b.modeHistory))
	copy(out, b.modeHistory)
	return out
}

// FallbackActivations returns how many times Fallback mode has fallen back
// to C4 after a C5 timeout or error.
func (b *Bridge) FallbackActivations() int64 {
	return atomic.LoadInt64(&b.fallbackActivations)
}

// Metrics returns a snapshot of one mode's request metrics.
func (b *Bridge) Metrics(m Mode) Snapshot {
	return b.metrics[m].snapshot(time.Now())
}

// Decide routes req through the active mode and records metrics under that
// mode (§4.5).
func (b *Bridge) Decide(ctx context.Context, req Request) (Decision, error) {
	mode := b.Mode() // snapshot once: §8 invariant 8
	start := time.Now()

	var (
		decision Decision
		err      error
	)
	switch mode {
	case PaperOnly:
		decision, err = b.runPaper(req)
	case EnhancedOnly:
		decision, err = b.runEnhanced(ctx, req)
	case Hybrid:
		decision, err = b.runHybrid(ctx, req)
	case Fallback:
		decision, err = b.runFallback(ctx, req)
	default:
		err = fmt.Errorf("bridge: unknown mode %v", mode)
	}

	b.metrics[mode].record(time.Since(start), err == nil, start)
	return decision, err
}

func (b *Bridge) runPaper(req Request) (Decision, error) {
	status := b.scheduler.Status()
	for _, info := range status.R {
		if info.UEID == req.UEID {
			return Decision{
				UEID:            info.UEID,
				SatelliteID:     info.SatelliteID,
				NextSatelliteID: info.NextSatelliteID,
				HandoverInstant: info.HandoverInstant,
				Confidence:      info.Confidence,
				Source:          PaperOnly,
			}, nil
		}
	}
	return Decision{}, fmt.Errorf("bridge: no scheduler entry for UE %q", req.UEID)
}

func (b *Bridge) runEnhanced(ctx context.Context, req Request) (Decision, error) {
	if req.CandidateSatellite == "" {
		return Decision{}, fmt.Errorf("bridge: EnhancedOnly requires a candidate satellite for UE %q", req.UEID)
	}
	pred, err := b.coordinator.PredictSatelliteAccess(ctx, req.Position, req.CandidateSatellite, b.cfg.PredictionHorizon)
	if err != nil {
		return Decision{}, fmt.Errorf("bridge: enhanced prediction for %q: %w", req.UEID, err)
	}
	return Decision{
		UEID:            req.UEID,
		SatelliteID:     req.CandidateSatellite,
		HandoverInstant: pred.Instant,
		Confidence:      pred.Confidence,
		Source:          EnhancedOnly,
	}, nil
}

// runHybrid tries C5 first; if its confidence clears the threshold it wins
// outright, otherwise C4's result is returned with a fusion note (§4.5).
func (b *Bridge) runHybrid(ctx context.Context, req Request) (Decision, error) {
	enhanced, err := b.runEnhanced(ctx, req)
	if err == nil && enhanced.Confidence >= hybridConfidenceThreshold {
		enhanced.Source = Hybrid
		return enhanced, nil
	}
	paper, perr := b.runPaper(req)
	if perr != nil {
		if err != nil {
			return Decision{}, fmt.Errorf("bridge: hybrid mode, both paths failed: enhanced=%v paper=%w", err, perr)
		}
		return Decision{}, perr
	}
	paper.Source = Hybrid
	if err != nil {
		paper.FusionNote = fmt.Sprintf("enhanced path failed (%v), used paper-only result", err)
	} else {
		paper.FusionNote = fmt.Sprintf("enhanced confidence %.2f below threshold %.2f, used paper-only result", enhanced.Confidence, hybridConfidenceThreshold)
	}
	return paper, nil
}

// runFallback tries C5 with a bounded timeout; on timeout or failure it
// falls back to C4 and increments fallback_activations (§4.5).
func (b *Bridge) runFallback(ctx context.Context, req Request) (Decision, error) {
	fctx, cancel := context.WithTimeout(ctx, b.cfg.FallbackTimeout)
	defer cancel()

	type result struct {
		decision Decision
		err      error
	}
	ch := make(chan result, 1)
	go func() {
		d, err := b.runEnhanced(fctx, req)
		ch <- result{d, err}
	}()

	select {
	case r := <-ch:
		if r.err == nil {
			r.decision.Source = Fallback
			return r.decision, nil
		}
		log.Warningf("bridge: enhanced path failed for %q, falling back: %v", req.UEID, r.err)
	case <-fctx.Done():
		log.Warningf("bridge: enhanced path timed out for %q after %s, falling back", req.UEID, b.cfg.FallbackTimeout)
	}

	atomic.AddInt64(&b.fallbackActivations, 1)
	paper, err := b.runPaper(req)
	if err != nil {
		return Decision{}, fmt.Errorf("bridge: fallback to paper-only also failed: %w", err)
	}
	paper.Source = Fallback
	paper.FusionNote = "enhanced path unavailable, used paper-only result"
	return paper, nil
}
