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

/*
Package scheduler implements the periodic orbit-driven scheduler (Algorithm-1):
every delta-t it predicts each UE's best-access satellite at t and at t+delta,
binary-searches the precise handover instant for anyone whose assignment is
about to change, and maintains the R/Tp tables C6 and C7 read from.
*/
package scheduler

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/ntn-constellation/handover-core/access"
	"github.com/ntn-constellation/handover-core/position"
	"github.com/ntn-constellation/handover-core/predictor"
)

// AccessInfo is one R-table entry (§3). SatelliteID is the satellite serving
// the UE right now; NextSatelliteID and HandoverInstant are only set while a
// handover is pending (R-Tp coherence, §8 invariant 2).
type AccessInfo struct {
	UEID            string
	SatelliteID     string
	NextSatelliteID string
	HandoverInstant time.Time
	LastUpdate      time.Time
	AccessQuality   float64
	Confidence      float64
}

// pending reports whether this entry has a scheduled handover.
func (a AccessInfo) pending() bool {
	return a.NextSatelliteID != "" && a.SatelliteID != a.NextSatelliteID
}

// Config holds every tunable named in the configuration surface (§6) that
// this component reads.
type Config struct {
	DeltaT                   time.Duration // scheduler period, default 5s
	TickPeriod               time.Duration // monotonic tick granularity, default 100ms
	BinarySearchPrecision    time.Duration // default 10ms
	MaxBinarySearchIterations int          // default 50 (safety cap, §9)
	MaxCandidateSatellites   int           // default 5
	CandidateMinElevationDeg float64       // default 30 for the scheduler's own candidate filter
	ConsecutiveFailureLimit  int           // default 10
	StatusSnapshotLimit      int           // how many R entries Status() returns, default 50
	ShutdownGrace            time.Duration // default 5s
}

// DefaultConfig matches §6's named defaults for C4.
func DefaultConfig() Config {
	return Config{
		DeltaT:                    5 * time.Second,
		TickPeriod:                100 * time.Millisecond,
		BinarySearchPrecision:     10 * time.Millisecond,
		MaxBinarySearchIterations: 50,
		MaxCandidateSatellites:    5,
		CandidateMinElevationDeg:  30,
		ConsecutiveFailureLimit:   10,
		StatusSnapshotLimit:       50,
		ShutdownGrace:             5 * time.Second,
	}
}

// Status is a read-only snapshot (§4.3 Status()).
type Status struct {
	State               State
	R                    []AccessInfo // first StatusSnapshotLimit entries, sorted by UEID
	Tp                   map[string]time.Time
	ConsecutiveFailures  int
	LastTickDuration     time.Duration
	LastPeriodicUpdate   time.Time
	GlobalScans          int64
}

// Scheduler is C4. One instance drives one tick loop; Start/Stop are
// idempotent and return ErrStateMachineViolation when already in the
// requested state.
type Scheduler struct {
	cfg       Config
	provider  position.Provider
	predictor *predictor.Predictor
	scorer    *access.Scorer
	catalog   Catalog

	state int32 // atomic State

	mu                  sync.RWMutex
	r                   map[string]AccessInfo
	tp                  map[string]time.Time
	lastTickDuration    time.Duration
	lastPeriodicUpdate  time.Time
	consecutiveFailures int

	ueChanges chan string
	stopCh    chan struct{}
	doneCh    chan struct{}
}

// New creates a Scheduler. scorer may be nil (access.NewDefault is used).
func New(provider position.Provider, pred *predictor.Predictor, scorer *access.Scorer, catalog Catalog, cfg Config) *Scheduler {
	if scorer == nil {
		scorer = access.NewDefault()
	}
	return &Scheduler{
		cfg:       cfg,
		provider:  provider,
		predictor: pred,
		scorer:    scorer,
		catalog:   catalog,
		state:     int32(Stopped),
		r:         make(map[string]AccessInfo),
		tp:        make(map[string]time.Time),
		ueChanges: make(chan string, 256),
	}
}

func (s *Scheduler) State() State {
	return State(atomic.LoadInt32(&s.state))
}

// Start transitions Stopped -> Initializing -> Running and launches the tick
// loop. Returns ErrStateMachineViolation if not currently Stopped.
func (s *Scheduler) Start(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&s.state, int32(Stopped), int32(Initializing)) {
		return &ErrStateMachineViolation{Op: "Start", State: s.State()}
	}
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	atomic.StoreInt32(&s.state, int32(Running))
	go s.run(ctx)
	return nil
}

// Stop requests the tick loop to exit and waits up to ShutdownGrace for it.
// Returns ErrStateMachineViolation if already Stopped.
func (s *Scheduler) Stop() error {
	cur := s.State()
	if cur == Stopped {
		return &ErrStateMachineViolation{Op: "Stop", State: cur}
	}
	close(s.stopCh)
	select {
	case <-s.doneCh:
	case <-time.After(s.cfg.ShutdownGrace):
		log.Warning("scheduler: tick loop did not exit within shutdown grace period")
	}
	atomic.StoreInt32(&s.state, int32(Stopped))
	return nil
}

// UpdateUE queues an external change for one UE, processed in the next
// tick's on-demand phase (§4.3 `detectUEChanges`).
func (s *Scheduler) UpdateUE(ue string) {
	select {
	case s.ueChanges <- ue:
	default:
		log.Warningf("scheduler: UE change queue full, dropping update for %q", ue)
	}
}

// Status returns a read-only snapshot. R is truncated to StatusSnapshotLimit
// entries (sorted by UE id) so callers can't force an unbounded copy.
func (s *Scheduler) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.r))
	for id := range s.r {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	limit := s.cfg.StatusSnapshotLimit
	if limit <= 0 || limit > len(ids) {
		limit = len(ids)
	}
	r := make([]AccessInfo, 0, limit)
	for _, id := range ids[:limit] {
		r = append(r, s.r[id])
	}
	tp := make(map[string]time.Time, len(s.tp))
	for k, v := range s.tp {
		tp[k] = v
	}
	return Status{
		State:               s.State(),
		R:                   r,
		Tp:                  tp,
		ConsecutiveFailures: s.consecutiveFailures,
		LastTickDuration:    s.lastTickDuration,
		LastPeriodicUpdate:  s.lastPeriodicUpdate,
		GlobalScans:         s.predictor.GlobalScans(),
	}
}

// run is the tick loop (§4.3, §5: "non-reentrant: if a tick exceeds the
// period, the next tick starts immediately with no catch-up").
func (s *Scheduler) run(ctx context.Context) {
	defer close(s.doneCh)
	ticker := time.NewTicker(s.cfg.TickPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if s.lastPeriodicUpdate.IsZero() || now.Sub(s.lastPeriodicUpdate) >= s.cfg.DeltaT {
				start := time.Now()
				if err := s.periodicUpdate(ctx, now); err != nil {
					s.onTickFailure(err)
				} else {
					s.mu.Lock()
					s.consecutiveFailures = 0
					s.mu.Unlock()
				}
				s.mu.Lock()
				s.lastTickDuration = time.Since(start)
				s.lastPeriodicUpdate = now
				s.mu.Unlock()
			}
			s.drainUEChanges(ctx, now)
		}
	}
}

func (s *Scheduler) onTickFailure(err error) {
	log.Errorf("scheduler: tick failed: %v", err)
	s.mu.Lock()
	s.consecutiveFailures++
	failures := s.consecutiveFailures
	s.mu.Unlock()
	if failures >= s.cfg.ConsecutiveFailureLimit {
		atomic.StoreInt32(&s.state, int32(Error))
		log.Errorf("scheduler: %d consecutive tick failures, transitioning to Error", failures)
	}
}

// drainUEChanges processes every UE change queued since the last tick
// (§4.3's on-demand phase), non-blocking.
func (s *Scheduler) drainUEChanges(ctx context.Context, now time.Time) {
	for {
		select {
		case ue := <-s.ueChanges:
			s.handleUEChange(ctx, ue, now)
		default:
			return
		}
	}
}

// handleUEChange re-evaluates a single UE immediately, outside the normal
// delta-t cadence.
func (s *Scheduler) handleUEChange(ctx context.Context, ue string, now time.Time) {
	regs := s.predictor.Registrations()
	var reg *predictor.Registration
	for i := range regs {
		if regs[i].UEID == ue {
			reg = &regs[i]
			break
		}
	}
	if reg == nil {
		return
	}
	candidates, err := regionalCandidates(ctx, s.provider, s.catalog, reg.Position, now, s.cfg.MaxCandidateSatellites, s.cfg.CandidateMinElevationDeg)
	if err != nil {
		log.Warningf("scheduler: on-demand candidate lookup failed for %q: %v", ue, err)
		return
	}
	result, err := s.predictor.Predict(ctx, []string{ue}, candidates, now)
	if err != nil {
		log.Warningf("scheduler: on-demand predict failed for %q: %v", ue, err)
		return
	}
	sat, ok := result[ue]
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	info := s.r[ue]
	info.UEID = ue
	info.SatelliteID = sat
	info.LastUpdate = now
	info.NextSatelliteID = ""
	info.HandoverInstant = time.Time{}
	s.r[ue] = info
	delete(s.tp, ue)
}

// periodicUpdate implements the periodic phase of §4.3's main loop:
// A_now, A_next, per-UE binary search, then R/Tp update.
func (s *Scheduler) periodicUpdate(ctx context.Context, now time.Time) error {
	next := now.Add(s.cfg.DeltaT)
	regs := s.predictor.Registrations()
	if len(regs) == 0 {
		return nil
	}

	ueIDs := make([]string, len(regs))
	byID := make(map[string]predictor.Registration, len(regs))
	candidateSet := map[string]bool{}
	for i, reg := range regs {
		ueIDs[i] = reg.UEID
		byID[reg.UEID] = reg
		c, err := regionalCandidates(ctx, s.provider, s.catalog, reg.Position, now, s.cfg.MaxCandidateSatellites, s.cfg.CandidateMinElevationDeg)
		if err != nil {
			return err
		}
		for _, id := range c {
			candidateSet[id] = true
		}
	}
	satelliteIDs := make([]string, 0, len(candidateSet))
	for id := range candidateSet {
		satelliteIDs = append(satelliteIDs, id)
	}

	aNow, err := s.predictor.Predict(ctx, ueIDs, satelliteIDs, now)
	if err != nil {
		return err
	}
	aNext, err := s.predictor.Predict(ctx, ueIDs, satelliteIDs, next)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ue := range ueIDs {
		current, haveCurrent := aNow[ue]
		upcoming, haveUpcoming := aNext[ue]
		info := s.r[ue]
		info.UEID = ue
		info.LastUpdate = now
		if !haveCurrent {
			// Position provider couldn't place this UE this tick; leave its
			// prior assignment untouched rather than guessing.
			s.r[ue] = info
			continue
		}
		info.SatelliteID = current

		if haveUpcoming && upcoming != "" && upcoming != current {
			result, err := s.binarySearchHandoverTime(ctx, byID[ue].Position, current, upcoming, now, next)
			if err != nil {
				log.Warningf("scheduler: binary search failed for %q: %v", ue, err)
				info.NextSatelliteID = ""
				info.HandoverInstant = time.Time{}
				delete(s.tp, ue)
			} else if result.noHandover {
				info.NextSatelliteID = ""
				info.HandoverInstant = time.Time{}
				delete(s.tp, ue)
			} else {
				info.NextSatelliteID = upcoming
				info.HandoverInstant = result.instant
				info.Confidence = confidenceFor(result)
				s.tp[ue] = result.instant
			}
		} else {
			info.NextSatelliteID = ""
			info.HandoverInstant = time.Time{}
			delete(s.tp, ue)
		}
		s.r[ue] = info
	}
	return nil
}

func confidenceFor(r searchResult) float64 {
	if r.converged {
		return 1.0
	}
	return 0.5
}
