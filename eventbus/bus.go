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
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
)

// Config holds §6's event-bus tunables.
type Config struct {
	WorkerCount     int // default 4
	QueueSize       int // per-priority channel capacity
	StoreMax        int // default 10000
	DefaultMaxRetries int // default 3
	DeadLetterLimit int // bounded dead-letter ring, default 256
}

// DefaultConfig matches §6's named defaults for C8.
func DefaultConfig() Config {
	return Config{
		WorkerCount:       4,
		QueueSize:         1024,
		StoreMax:          10000,
		DefaultMaxRetries: 3,
		DeadLetterLimit:   256,
	}
}

// ErrStateMachineViolation is returned by Publish when the bus is Stopping
// (§7 StateMachineViolation).
type ErrStateMachineViolation struct {
	Op    string
	State State
}

func (e *ErrStateMachineViolation) Error() string {
	return fmt.Sprintf("eventbus: cannot %s while bus is %s", e.Op, e.State)
}

// Bus is C8.
type Bus struct {
	cfg    Config
	state  int32 // atomic State
	queues [4]chan Event

	seq uint64 // atomic, monotonic event sequence number

	handlersMu sync.RWMutex
	handlers   map[string][]*registration // by event type
	byID       map[string]*registration

	storeMu      sync.Mutex
	store        []Event
	eventsFailed int64
	ttlDropped   int64

	deadLettersMu sync.Mutex
	deadLetters   []DeadLetter

	wg     sync.WaitGroup
	stopCh chan struct{}
}

// New creates a Bus. Call Start to launch the worker pool.
func New(cfg Config) *Bus {
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1024
	}
	if cfg.StoreMax <= 0 {
		cfg.StoreMax = 10000
	}
	if cfg.DefaultMaxRetries < 0 {
		cfg.DefaultMaxRetries = 3
	}
	if cfg.DeadLetterLimit <= 0 {
		cfg.DeadLetterLimit = 256
	}
	b := &Bus{
		cfg:      cfg,
		state:    int32(Stopped),
		handlers: make(map[string][]*registration),
		byID:     make(map[string]*registration),
	}
	for i := range b.queues {
		b.queues[i] = make(chan Event, cfg.QueueSize)
	}
	return b
}

// State returns the bus's current lifecycle state.
func (b *Bus) State() State {
	return State(atomic.LoadInt32(&b.state))
}

// Start transitions Stopped -> Running and launches the worker pool.
func (b *Bus) Start(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&b.state, int32(Stopped), int32(Running)) {
		return &ErrStateMachineViolation{Op: "Start", State: b.State()}
	}
	b.stopCh = make(chan struct{})
	for i := 0; i < b.cfg.WorkerCount; i++ {
		b.wg.Add(1)
		go b.worker(ctx, i)
	}
	return nil
}

// Stop transitions Running -> Stopping -> Stopped. Handlers already in
// flight run to completion or their timeout, whichever comes first (§4.7).
func (b *Bus) Stop() error {
	if !atomic.CompareAndSwapInt32(&b.state, int32(Running), int32(Stopping)) {
		return &ErrStateMachineViolation{Op: "Stop", State: b.State()}
	}
	close(b.stopCh)
	b.wg.Wait()
	atomic.StoreInt32(&b.state, int32(Stopped))
	return nil
}

// Publish enqueues a new event and returns its id. Returns
// ErrStateMachineViolation if the bus is Stopping (§4.7).
func (b *Bus) Publish(eventType string, payload map[string]any, source string, priority Priority, correlationID string, ttl time.Duration) (string, error) {
	if b.State() == Stopping {
		return "", &ErrStateMachineViolation{Op: "Publish", State: Stopping}
	}
	seq := atomic.AddUint64(&b.seq, 1)
	e := Event{
		ID:            fmt.Sprintf("evt-%d", seq),
		Type:          eventType,
		Source:        source,
		Priority:      priority,
		Seq:           seq,
		Timestamp:     time.Now(),
		Payload:       payload,
		CorrelationID: correlationID,
		MaxRetries:    b.cfg.DefaultMaxRetries,
		TTL:           ttl,
	}
	b.retain(e)
	b.enqueue(e)
	return e.ID, nil
}

// retain appends e to the bounded event store, evicting the oldest 10% on
// overflow (§4.7 Retention).
func (b *Bus) retain(e Event) {
	b.storeMu.Lock()
	defer b.storeMu.Unlock()
	b.store = append(b.store, e)
	if len(b.store) > b.cfg.StoreMax {
		evict := b.cfg.StoreMax / 10
		if evict < 1 {
			evict = 1
		}
		b.store = b.store[evict:]
	}
}

func (b *Bus) enqueue(e Event) {
	select {
	case b.queues[e.Priority] <- e:
	default:
		log.Warningf("eventbus: queue for priority %s full, dropping event %s", e.Priority, e.ID)
		atomic.AddInt64(&b.eventsFailed, 1)
	}
}

// RegisterHandler adds a handler for eventType. Returns a handler id usable
// with Unregister.
func (b *Bus) RegisterHandler(eventType string, handler Handler, priority Priority, maxConcurrent int, timeout time.Duration) string {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	b.handlersMu.Lock()
	defer b.handlersMu.Unlock()
	id := fmt.Sprintf("handler-%d", len(b.byID)+1)
	reg := &registration{
		id: id, eventType: eventType, handler: handler,
		priority: priority, maxConcurrent: maxConcurrent, timeout: timeout,
		sem: make(chan struct{}, maxConcurrent),
	}
	b.handlers[eventType] = append(b.handlers[eventType], reg)
	b.byID[id] = reg
	return id
}

// Unregister removes a previously registered handler.
func (b *Bus) Unregister(handlerID string) {
	b.handlersMu.Lock()
	defer b.handlersMu.Unlock()
	reg, ok := b.byID[handlerID]
	if !ok {
		return
	}
	delete(b.byID, handlerID)
	regs := b.handlers[reg.eventType]
	for i, r := range regs {
		if r.id == handlerID {
			b.handlers[reg.eventType] = append(regs[:i], regs[i+1:]...)
			break
		}
	}
}

func (b *Bus) handlersFor(eventType string) []*registration {
	b.handlersMu.RLock()
	defer b.handlersMu.RUnlock()
	out := make([]*registration, len(b.handlers[eventType]))
	copy(out, b.handlers[eventType])
	return out
}

// worker drains the four queues strict-highest-first; when all are empty it
// blocks for up to 1s on any of them (§4.7).
func (b *Bus) worker(ctx context.Context, id int) {
	defer b.wg.Done()
	for {
		select {
		case <-b.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		e, ok := b.dequeue(ctx)
		if !ok {
			continue
		}
		b.deliver(ctx, e)
	}
}

func (b *Bus) dequeue(ctx context.Context) (Event, bool) {
	for _, p := range priorityOrder {
		select {
		case e := <-b.queues[p]:
			return e, true
		default:
		}
	}
	timeout := time.NewTimer(time.Second)
	defer timeout.Stop()
	select {
	case e := <-b.queues[Critical]:
		return e, true
	case e := <-b.queues[High]:
		return e, true
	case e := <-b.queues[Normal]:
		return e, true
	case e := <-b.queues[Low]:
		return e, true
	case <-b.stopCh:
		return Event{}, false
	case <-ctx.Done():
		return Event{}, false
	case <-timeout.C:
		return Event{}, false
	}
}

// deliver runs every registered handler for e.Type concurrently, retries on
// total failure, and drops expired events before delivery (§4.7).
func (b *Bus) deliver(ctx context.Context, e Event) {
	if e.expired(time.Now()) {
		atomic.AddInt64(&b.ttlDropped, 1)
		b.recordDeadLetter(e, "ttl expired before delivery")
		return
	}

	regs := b.handlersFor(e.Type)
	if len(regs) == 0 {
		return
	}

	var wg sync.WaitGroup
	results := make([]bool, len(regs))
	for i, reg := range regs {
		i, reg := i, reg
		reg.sem <- struct{}{}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-reg.sem }()
			results[i] = b.runHandler(ctx, reg, e)
		}()
	}
	wg.Wait()

	succeeded := false
	for _, ok := range results {
		if ok {
			succeeded = true
			break
		}
	}
	if succeeded {
		return
	}

	if e.RetryCount < e.MaxRetries {
		b.scheduleRetry(e)
		return
	}
	atomic.AddInt64(&b.eventsFailed, 1)
	b.recordDeadLetter(e, "exhausted retries")
}

func (b *Bus) runHandler(ctx context.Context, reg *registration, e Event) bool {
	hctx := ctx
	var cancel context.CancelFunc
	if reg.timeout > 0 {
		hctx, cancel = context.WithTimeout(ctx, reg.timeout)
		defer cancel()
	}
	done := make(chan error, 1)
	go func() { done <- reg.handler(hctx, e) }()
	select {
	case err := <-done:
		if err != nil {
			log.Warningf("eventbus: handler %s failed for event %s: %v", reg.id, e.ID, err)
			return false
		}
		return true
	case <-hctx.Done():
		log.Warningf("eventbus: handler %s timed out for event %s", reg.id, e.ID)
		return false
	}
}

// scheduleRetry re-enqueues e after an exponential backoff capped at 60s
// (§4.7: "2^retry_count seconds capped at 60s").
func (b *Bus) scheduleRetry(e Event) {
	e.RetryCount++
	backoff := time.Duration(1<<uint(e.RetryCount-1)) * time.Second
	if backoff > 60*time.Second {
		backoff = 60 * time.Second
	}
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		timer := time.NewTimer(backoff)
		defer timer.Stop()
		select {
		case <-timer.C:
			if b.State() != Stopping {
				b.enqueue(e)
			}
		case <-b.stopCh:
		}
	}()
}

func (b *Bus) recordDeadLetter(e Event, reason string) {
	b.deadLettersMu.Lock()
	defer b.deadLettersMu.Unlock()
	b.deadLetters = append(b.deadLetters, DeadLetter{Event: e, Reason: reason, At: time.Now()})
	if len(b.deadLetters) > b.cfg.DeadLetterLimit {
		b.deadLetters = b.deadLetters[len(b.deadLetters)-b.cfg.DeadLetterLimit:]
	}
}

// DeadLetters returns the bounded ring of recently dropped events, oldest
// first (SPEC_FULL supplemented feature).
func (b *Bus) DeadLetters() []DeadLetter {
	b.deadLettersMu.Lock()
	defer b.deadLettersMu.Unlock()
	out := make([]DeadLetter, len(b.deadLetters))
	copy(out, b.deadLetters)
	return out
}

// EventsFailed returns the total count of events dropped after exhausting
// retries or finding a full queue.
func (b *Bus) EventsFailed() int64 {
	return atomic.LoadInt64(&b.eventsFailed)
}

// TTLDropped returns the total count of events dropped for having expired
// before delivery.
func (b *Bus) TTLDropped() int64 {
	return atomic.LoadInt64(&b.ttlDropped)
}

// StoredEvents returns an immutable snapshot of the retained event store.
func (b *Bus) StoredEvents() []Event {
	b.storeMu.Lock()
	defer b.storeMu.Unlock()
	out := make([]Event, len(b.store))
	copy(out, b.store)
	return out
}
