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

// Package dataplane defines the outbound interfaces C6 and C7 depend on to
// actually move a UE's session to a new satellite and to record what
// happened, plus an in-memory reference implementation used when no real
// UPF backend is configured ("measurement-only mode").
package dataplane

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// HandoverCommand is what IntegrationBridge hands to the data plane once a
// decision has been made.
type HandoverCommand struct {
	UEID               string
	SourceSatelliteID  string
	TargetSatelliteID  string
	HandoverInstant    time.Time
	Reason             string
}

// HandoverOutcome reports what actually happened when a command was
// executed against the real (or simulated) data plane.
type HandoverOutcome struct {
	UEID        string
	Success     bool
	AppliedAt   time.Time
	LatencyMS   float64
	Error       string
}

// DataPlaneBridge moves a UE's session from one satellite to another.
// Implementations talk to a UPF or, in measurement-only mode, just record
// the intent.
type DataPlaneBridge interface {
	ApplyHandover(ctx context.Context, cmd HandoverCommand) (HandoverOutcome, error)
}

// MeasurementSink receives handover outcomes for later analysis. It is
// declared here so dataplane doesn't import measurement; measurement.Store
// does not implement it (Store records HandoverEvent values via Record).
type MeasurementSink interface {
	RecordOutcome(outcome HandoverOutcome, sourceGNB, targetGNB string)
}

// InMemoryBridge is a reference DataPlaneBridge that never talks to a real
// UPF: it just records every command it was asked to apply and reports
// success. Used by tests and by cmd/handoverd when running in
// measurement-only mode (§6).
type InMemoryBridge struct {
	mu       sync.Mutex
	applied  []HandoverCommand
	failFor  map[string]bool // UEIDs to force a synthetic failure for, test hook
}

// NewInMemoryBridge creates an InMemoryBridge.
func NewInMemoryBridge() *InMemoryBridge {
	return &InMemoryBridge{failFor: make(map[string]bool)}
}

// ForceFailure makes subsequent ApplyHandover calls for ueID fail, for
// exercising C6/C7 error paths in tests.
func (b *InMemoryBridge) ForceFailure(ueID string, fail bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if fail {
		b.failFor[ueID] = true
	} else {
		delete(b.failFor, ueID)
	}
}

// ApplyHandover records cmd and reports success unless ForceFailure was
// called for cmd.UEID.
func (b *InMemoryBridge) ApplyHandover(ctx context.Context, cmd HandoverCommand) (HandoverOutcome, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.applied = append(b.applied, cmd)

	if b.failFor[cmd.UEID] {
		err := fmt.Errorf("dataplane: simulated failure applying handover for ue %s", cmd.UEID)
		return HandoverOutcome{UEID: cmd.UEID, Success: false, AppliedAt: time.Now(), Error: err.Error()}, err
	}
	return HandoverOutcome{
		UEID:      cmd.UEID,
		Success:   true,
		AppliedAt: time.Now(),
		LatencyMS: float64(time.Since(cmd.HandoverInstant).Milliseconds()),
	}, nil
}

// Applied returns every command the bridge has seen, in order.
func (b *InMemoryBridge) Applied() []HandoverCommand {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]HandoverCommand, len(b.applied))
	copy(out, b.applied)
	return out
}
