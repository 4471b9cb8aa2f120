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

package eventbus

import (
	"context"
	"time"
)

// Handler processes one event. Returning a non-nil error counts as a
// failure for retry purposes (§4.7).
type Handler func(ctx context.Context, e Event) error

// registration is one registered handler, bound to a single event type.
type registration struct {
	id            string
	eventType     string
	handler       Handler
	priority      Priority // informational: the priority this handler was registered at, not the event's
	maxConcurrent int
	timeout       time.Duration
	sem           chan struct{}
}
