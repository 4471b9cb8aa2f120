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
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPublishBeforeStartIsQueuedNotLost(t *testing.T) {
	b := New(DefaultConfig())
	id, err := b.Publish("handover.requested", nil, "scheduler", Normal, "", 0)
	require.NoError(t, err)
	require.NotEmpty(t, id)
	require.Len(t, b.StoredEvents(), 1)
}

func TestPriorityOrderingDrainsHighestFirst(t *testing.T) {
	cfg := DefaultConfig()
	cfg.WorkerCount = 1
	b := New(cfg)

	var mu sync.Mutex
	var order []Priority
	done := make(chan struct{}, 4)
	b.RegisterHandler("probe", func(_ context.Context, e Event) error {
		mu.Lock()
		order = append(order, e.Priority)
		mu.Unlock()
		done <- struct{}{}
		return nil
	}, Normal, 1, time.Second)

	// Publish out of priority order before the single worker starts; it
	// then drains the queued events strict-highest-first, so delivery order
	// comes out Critical, High, Normal, Low.
	_, _ = b.Publish("probe", nil, "t", Normal, "", 0)
	_, _ = b.Publish("probe", nil, "t", Low, "", 0)
	_, _ = b.Publish("probe", nil, "t", Critical, "", 0)
	_, _ = b.Publish("probe", nil, "t", High, "", 0)

	ctx := context.Background()
	require.NoError(t, b.Start(ctx))
	defer b.Stop()

	for i := 0; i < 4; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for handler deliveries")
		}
	}

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []Priority{Critical, High, Normal, Low}, order)
}

func TestRetryBackoffEventuallySucceeds(t *testing.T) {
	b := New(DefaultConfig())

	var attempts int32
	var mu sync.Mutex
	succeeded := make(chan struct{})
	b.RegisterHandler("retryme", func(_ context.Context, e Event) error {
		mu.Lock()
		attempts++
		n := attempts
		mu.Unlock()
		if n < 2 {
			return errors.New("not yet")
		}
		close(succeeded)
		return nil
	}, Normal, 1, time.Second)

	ctx := context.Background()
	require.NoError(t, b.Start(ctx))
	defer b.Stop()

	_, err := b.Publish("retryme", nil, "t", Critical, "", 0)
	require.NoError(t, err)

	select {
	case <-succeeded:
	case <-time.After(5 * time.Second):
		t.Fatal("handler never succeeded after retry")
	}
}

func TestTTLExpiredEventIsDroppedBeforeDelivery(t *testing.T) {
	b := New(DefaultConfig())

	delivered := make(chan struct{}, 1)
	b.RegisterHandler("stale", func(_ context.Context, e Event) error {
		delivered <- struct{}{}
		return nil
	}, Normal, 1, time.Second)

	ctx := context.Background()
	require.NoError(t, b.Start(ctx))
	defer b.Stop()

	e := Event{
		ID: "evt-stale", Type: "stale", Priority: Critical,
		Timestamp: time.Now().Add(-time.Hour), TTL: time.Millisecond,
	}
	b.enqueue(e)

	select {
	case <-delivered:
		t.Fatal("expired event was delivered to handler")
	case <-time.After(300 * time.Millisecond):
	}
	require.EqualValues(t, 1, b.TTLDropped())
	require.Len(t, b.DeadLetters(), 1)
	require.Equal(t, "ttl expired before delivery", b.DeadLetters()[0].Reason)
}

func TestExhaustedRetriesRecordsDeadLetter(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DefaultMaxRetries = 1
	b := New(cfg)

	b.RegisterHandler("alwaysfails", func(_ context.Context, e Event) error {
		return errors.New("boom")
	}, Normal, 1, time.Second)

	ctx := context.Background()
	require.NoError(t, b.Start(ctx))
	defer b.Stop()

	_, err := b.Publish("alwaysfails", nil, "t", Critical, "", 0)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return b.EventsFailed() > 0
	}, 5*time.Second, 20*time.Millisecond)

	dls := b.DeadLetters()
	require.NotEmpty(t, dls)
	require.Equal(t, "exhausted retries", dls[len(dls)-1].Reason)
}

func TestRetentionBoundEvictsOldestTenPercent(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StoreMax = 10
	b := New(cfg)

	for i := 0; i < 15; i++ {
		_, err := b.Publish("probe", nil, "t", Normal, "", 0)
		require.NoError(t, err)
	}
	require.LessOrEqual(t, len(b.StoredEvents()), 10)
}

func TestStateMachineRejectsPublishWhileStopping(t *testing.T) {
	b := New(DefaultConfig())
	atomic.StoreInt32(&b.state, int32(Stopping))

	_, err := b.Publish("probe", nil, "t", Normal, "", 0)
	require.Error(t, err)
	var smErr *ErrStateMachineViolation
	require.ErrorAs(t, err, &smErr)
}

func TestStopIsIdempotentAgainstDoubleStop(t *testing.T) {
	b := New(DefaultConfig())
	require.NoError(t, b.Start(context.Background()))
	require.NoError(t, b.Stop())
	err := b.Stop()
	require.Error(t, err)
}

func TestUnregisterStopsFurtherDelivery(t *testing.T) {
	b := New(DefaultConfig())

	var calls int32
	var mu sync.Mutex
	id := b.RegisterHandler("probe", func(_ context.Context, e Event) error {
		mu.Lock()
		calls++
		mu.Unlock()
		return nil
	}, Normal, 1, time.Second)

	ctx := context.Background()
	require.NoError(t, b.Start(ctx))
	defer b.Stop()

	b.Unregister(id)
	_, err := b.Publish("probe", nil, "t", Critical, "", 0)
	require.NoError(t, err)

	time.Sleep(200 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	require.EqualValues(t, 0, calls)
}
