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
Package bridge implements the mode arbiter (C6): it routes each decision
request through one of four paths over the scheduler (C4) and the
fine-grained coordinator (C5), collects per-mode metrics, and supports an
atomic mode switch.
*/
package bridge

import "time"

// Mode selects which path a Decide call takes. Exactly one is active at a
// time (§4.5); it is a sum type, not a polymorphic base class, so
// SwitchMode is a single atomic enum write.
type Mode int32

const (
	PaperOnly Mode = iota
	EnhancedOnly
	Hybrid
	Fallback
)

func (m Mode) String() string {
	switch m {
	case PaperOnly:
		return "PaperOnly"
	case EnhancedOnly:
		return "EnhancedOnly"
	case Hybrid:
		return "Hybrid"
	case Fallback:
		return "Fallback"
	}
	return "Unknown"
}

// ParseMode accepts the configuration-surface spelling of a mode (§6).
func ParseMode(s string) (Mode, bool) {
	switch s {
	case "PaperOnly":
		return PaperOnly, true
	case "EnhancedOnly":
		return EnhancedOnly, true
	case "Hybrid":
		return Hybrid, true
	case "Fallback":
		return Fallback, true
	}
	return 0, false
}

// hybridConfidenceThreshold is the §4.5 Hybrid-mode cutoff: C5's result is
// trusted directly when its confidence is at least this high.
const hybridConfidenceThreshold = 0.8

// ModeSwitch is one entry in the mode-switch audit trail (SPEC_FULL
// supplemented feature, from algorithm_integration_bridge.py): beyond the
// bare last-switch timestamp the spec requires, operators can see the
// history of switches and why each happened.
type ModeSwitch struct {
	From      Mode
	To        Mode
	At        time.Time
	Reason    string // as passed to SwitchMode, e.g. "manual"
}
