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
Package eventbus implements EventBusCore (C8): an in-process pub/sub with
four priority levels, a strict-highest-first worker pool, per-handler
concurrency limits, retry with backoff, TTL expiry, and bounded retention.
*/
package eventbus

import "time"

// Priority selects one of four delivery queues. Critical is serviced
// before High, High before Normal, Normal before Low (§4.7).
type Priority int

const (
	Low Priority = iota
	Normal
	High
	Critical
)

func (p Priority) String() string {
	switch p {
	case Low:
		return "Low"
	case Normal:
		return "Normal"
	case High:
		return "High"
	case Critical:
		return "Critical"
	}
	return "Unknown"
}

// priorityOrder lists priorities from highest to lowest, the order the
// worker pool drains queues in.
var priorityOrder = [...]Priority{Critical, High, Normal, Low}

// Event is one published message (§3). Extras-style optional telemetry
// lives in Payload itself, since Payload is already a free-form map by
// contract (§6 Publish/PositionProvider-adjacent interfaces use the same
// "typed record + scalar map" shape as §9's design note).
type Event struct {
	ID            string
	Type          string
	Source        string
	Priority      Priority
	Seq           uint64
	Timestamp     time.Time
	Payload       map[string]any
	CorrelationID string
	CausationID   string
	RetryCount    int
	MaxRetries    int
	TTL           time.Duration // 0 means no expiry
}

// expired reports whether e's TTL (if any) has elapsed as of now (§3
// invariant: "an event past its TTL is dropped before delivery").
func (e Event) expired(now time.Time) bool {
	return e.TTL > 0 && now.After(e.Timestamp.Add(e.TTL))
}

// State is the bus's lifecycle state (§4.7).
type State int32

const (
	Stopped State = iota
	Running
	Stopping
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "Stopped"
	case Running:
		return "Running"
	case Stopping:
		return "Stopping"
	}
	return "Unknown"
}

// DeadLetter records one dropped event for operator inspection (SPEC_FULL
// supplemented feature, from event_bus_service.py's retry logic): the bus
// already counts events_failed; this names *why* each one was dropped.
type DeadLetter struct {
	Event  Event
	Reason string
	At     time.Time
}
